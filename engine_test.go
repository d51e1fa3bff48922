package motionqa

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/opd-ai/motionqa/config"
	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSize = 128

// texel is a deterministic noise pattern defined for any integer position.
func texel(x, y int) byte {
	h := uint32(x)*73856093 ^ uint32(y)*19349663
	h ^= h >> 13
	h *= 0x5bd1e995
	h ^= h >> 15
	return byte(h)
}

func shiftedFrame(size, dx, dy int) *frame.VideoFrame {
	y := make([]byte, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			y[row*size+col] = texel(col-dx, row-dy)
		}
	}
	return &frame.VideoFrame{Width: size, Height: size, Y: y, YStride: size}
}

func staticFrames(n int) []*frame.VideoFrame {
	f := shiftedFrame(testSize, 0, 0)
	frames := make([]*frame.VideoFrame, n)
	for i := range frames {
		frames[i] = f
	}
	return frames
}

// panningFrames moves the texture by an uneven step so that motion varies.
func panningFrames(n int) []*frame.VideoFrame {
	frames := make([]*frame.VideoFrame, n)
	x := 0
	for i := range frames {
		frames[i] = shiftedFrame(testSize, x, 0)
		x += 1 + i%3
	}
	return frames
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	return e
}

// failingSource yields its frames and then a decode error.
type failingSource struct {
	frames []*frame.VideoFrame
	pos    int
}

func (s *failingSource) Next() (*frame.Sample, error) {
	if s.pos < len(s.frames) {
		f := s.frames[s.pos]
		s.pos++
		return &frame.Sample{Index: s.pos - 1, Timestamp: float64(s.pos-1) / 30, Frame: f}, nil
	}
	return nil, io.ErrUnexpectedEOF
}

func (s *failingSource) DeclaredFPS() float64 { return 30 }
func (s *failingSource) Close() error         { return nil }

// TestAnalyzeStaticScene checks every analyzer on frozen video.
func TestAnalyzeStaticScene(t *testing.T) {
	e := newTestEngine(t, nil)
	rep, err := e.Analyze(context.Background(), frame.FromFrames(30, staticFrames(10)))
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.Empty(t, rep.Failures)
	assert.Equal(t, 10, rep.FrameCount)
	assert.Equal(t, 10, rep.AnalyzedFrames)

	require.NotNil(t, rep.Timing)
	assert.InDelta(t, 30.0, rep.Timing.EffectiveFPS, 1e-9)
	assert.Empty(t, rep.Drops)

	require.NotNil(t, rep.Duplicates)
	assert.Equal(t, 1.0, rep.Duplicates.DuplicateRatio)

	require.NotNil(t, rep.Continuity)
	assert.Equal(t, 100.0, rep.Continuity.ContinuityScore)
	assert.Len(t, rep.MotionSeries, 9)

	require.NotNil(t, rep.Wobble)
	assert.Equal(t, 0.0, rep.Wobble.DistortionScore)
	require.NotNil(t, rep.Dynamics)
	require.NotNil(t, rep.FPSDynamics)

	// Timing, continuity and wobble are perfect; every frame is a duplicate.
	assert.True(t, rep.Summary.Available)
	assert.InDelta(t, 70.0, rep.Summary.Overall, 1e-6)
	assert.Equal(t, QualityFair, rep.Summary.Level)

	fields := rep.Fields()
	assert.InDelta(t, 70.0, fields["summary.overall"], 1e-6)
	assert.Equal(t, 1.0, fields["similarity.duplicate_ratio"])
	assert.Equal(t, 0.0, fields["drops.count"])
}

func TestAnalyzeRecordsShortSequenceFailures(t *testing.T) {
	e := newTestEngine(t, nil)
	rep, err := e.Analyze(context.Background(), frame.FromFrames(30, staticFrames(2)))
	require.NoError(t, err)

	assert.Equal(t, []string{AnalyzerContinuity}, rep.FailedAnalyzers())
	assert.ErrorIs(t, rep.Failures[AnalyzerContinuity], qaerr.ErrInsufficientData)
	assert.Nil(t, rep.Continuity)
	assert.NotContains(t, rep.Fields(), "continuity.continuity_score")
	assert.Contains(t, rep.FailureMessages(), AnalyzerContinuity)

	// Remaining weights: timing 100, duplicates 0, wobble 100.
	assert.Nil(t, rep.Summary.Continuity)
	assert.InDelta(t, 60.0, rep.Summary.Overall, 1e-6)
}

func TestAnalyzeRecordsSizeChange(t *testing.T) {
	frames := staticFrames(3)
	frames = append(frames, shiftedFrame(64, 0, 0))

	e := newTestEngine(t, nil)
	rep, err := e.Analyze(context.Background(), frame.FromFrames(30, frames))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{AnalyzerContinuity, AnalyzerDynamics, AnalyzerSimilarity, AnalyzerWobble},
		rep.FailedAnalyzers())
	for _, name := range rep.FailedAnalyzers() {
		assert.ErrorIs(t, rep.Failures[name], qaerr.ErrInvalidInput, name)
		var qe *qaerr.Error
		require.True(t, errors.As(rep.Failures[name], &qe), name)
		assert.Equal(t, 3, qe.Index, name)
	}

	require.NotNil(t, rep.Timing)
	assert.Equal(t, 4, rep.Timing.FrameCount)
	assert.InDelta(t, 100.0, rep.Summary.Overall, 1e-6)
}

func TestAnalyzeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(t, nil)
	rep, err := e.Analyze(ctx, frame.FromFrames(30, staticFrames(5)))
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, qaerr.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	e := newTestEngine(t, nil)
	rep, err := e.Analyze(context.Background(), &failingSource{frames: staticFrames(3)})
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, qaerr.ErrUpstreamDecodeFailure)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var qe *qaerr.Error
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 3, qe.Index)
}

func TestAnalyzeRejectsNilSource(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.Analyze(context.Background(), nil)
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)

	_, err = e.AnalyzeParallel(context.Background(), nil)
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}

func TestNewEngineValidatesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SampleRate = 0
	_, err := NewEngine(cfg, nil)
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)

	cfg = config.Default()
	cfg.Flow.BlockSize = 1
	_, err = NewEngine(cfg, nil)
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}

// TestSampleRateAppliesToPixelAnalyzers checks timing still sees every frame.
func TestSampleRateAppliesToPixelAnalyzers(t *testing.T) {
	cfg := config.Default()
	cfg.SampleRate = 2
	e := newTestEngine(t, cfg)

	rep, err := e.Analyze(context.Background(), frame.FromFrames(30, panningFrames(10)))
	require.NoError(t, err)

	assert.Equal(t, 10, rep.FrameCount)
	assert.Equal(t, 5, rep.AnalyzedFrames)
	require.NotNil(t, rep.Timing)
	assert.Equal(t, 10, rep.Timing.FrameCount)
	require.NotNil(t, rep.Duplicates)
	assert.Equal(t, 4, rep.Duplicates.ComparedPairs)
	assert.Len(t, rep.MotionSeries, 4)
	assert.Equal(t, []int{2, 4, 6, 8}, rep.MotionFrames)
}

// TestMotionFlagsUseFrameIndices checks jumps and wobble are reported
// against source frames, not positions in the sampled series.
func TestMotionFlagsUseFrameIndices(t *testing.T) {
	cfg := config.Default()
	cfg.SampleRate = 2
	cfg.Wobble.FlagThreshold = 0
	e := newTestEngine(t, cfg)

	// a steady 1px pan with a 5px jump into frame 6
	frames := make([]*frame.VideoFrame, 12)
	for i := range frames {
		x := i
		if i >= 6 {
			x += 5
		}
		frames[i] = shiftedFrame(testSize, x, 0)
	}

	rep, err := e.Analyze(context.Background(), frame.FromFrames(30, frames))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6, 8, 10}, rep.MotionFrames)
	require.Len(t, rep.MotionSeries, 5)

	require.NotNil(t, rep.Continuity)
	assert.Equal(t, []int{2}, rep.Continuity.Discontinuities)
	assert.Equal(t, []int{6}, rep.DiscontinuityFrames())

	require.NotNil(t, rep.Wobble)
	for _, idx := range rep.Wobble.FlaggedFrames {
		assert.Contains(t, rep.MotionFrames, idx)
	}
}

// TestParallelMatchesSharedPass verifies both execution modes agree.
func TestParallelMatchesSharedPass(t *testing.T) {
	for _, rate := range []int{1, 2} {
		cfg := config.Default()
		cfg.SampleRate = rate
		e := newTestEngine(t, cfg)
		src := frame.FromFrames(24, panningFrames(12))

		shared, err := e.Analyze(context.Background(), src)
		require.NoError(t, err)
		parallel, err := e.AnalyzeParallel(context.Background(), src.Opener())
		require.NoError(t, err)

		assert.NotEqual(t, shared.RunID, parallel.RunID)
		assert.Equal(t, shared.FrameCount, parallel.FrameCount, "rate %d", rate)
		assert.Equal(t, shared.AnalyzedFrames, parallel.AnalyzedFrames, "rate %d", rate)
		assert.Equal(t, shared.MotionSeries, parallel.MotionSeries, "rate %d", rate)
		assert.Equal(t, shared.MotionFrames, parallel.MotionFrames, "rate %d", rate)
		assert.Equal(t, shared.Duplicates, parallel.Duplicates, "rate %d", rate)
		assert.Equal(t, shared.Dynamics, parallel.Dynamics, "rate %d", rate)
		assert.Equal(t, shared.FailedAnalyzers(), parallel.FailedAnalyzers(), "rate %d", rate)
		assert.Equal(t, shared.Fields(), parallel.Fields(), "rate %d", rate)
	}
}

func TestAnalyzeParallelOpenerFailure(t *testing.T) {
	boom := errors.New("cannot open")
	var calls atomic.Int32
	open := func() (frame.Source, error) {
		if calls.Add(1) == 3 {
			return nil, boom
		}
		return frame.FromFrames(30, staticFrames(4)), nil
	}

	e := newTestEngine(t, nil)
	rep, err := e.AnalyzeParallel(context.Background(), open)
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, qaerr.ErrUpstreamDecodeFailure)
	assert.ErrorIs(t, err, boom)

	var qe *qaerr.Error
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, qaerr.NoIndex, qe.Index)
}

func TestAnalyzeParallelPrefersRealFailure(t *testing.T) {
	var calls atomic.Int32
	open := func() (frame.Source, error) {
		if calls.Add(1) == 2 {
			return &failingSource{frames: staticFrames(2)}, nil
		}
		return frame.FromFrames(30, staticFrames(20)), nil
	}

	e := newTestEngine(t, nil)
	_, err := e.AnalyzeParallel(context.Background(), open)
	assert.ErrorIs(t, err, qaerr.ErrUpstreamDecodeFailure)
	assert.False(t, errors.Is(err, qaerr.ErrCanceled))
}

func TestAnalyzeParallelCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(t, nil)
	rep, err := e.AnalyzeParallel(ctx, frame.FromFrames(30, staticFrames(5)).Opener())
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, qaerr.ErrCanceled)
}

func TestProgressCallback(t *testing.T) {
	e := newTestEngine(t, nil)
	last := map[string]int{}
	calls := 0
	e.SetProgressCallback(func(pass string, frames int) {
		calls++
		last[pass] = frames
	})

	src := frame.FromFrames(30, staticFrames(6))
	_, err := e.Analyze(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 6, calls)
	assert.Equal(t, map[string]int{PassShared: 6}, last)

	calls = 0
	delete(last, PassShared)
	_, err = e.AnalyzeParallel(context.Background(), src.Opener())
	require.NoError(t, err)
	assert.Equal(t, 24, calls)
	assert.Equal(t, map[string]int{
		PassTiming:     6,
		PassSimilarity: 6,
		PassMotion:     6,
		PassDynamics:   6,
	}, last)

	e.SetProgressCallback(nil)
	_, err = e.Analyze(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 24, calls)
}

func TestQualityThresholdsOverride(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetQualityThresholds(QualityThresholds{Excellent: 65, Good: 55, Fair: 45, Poor: 35})

	rep, err := e.Analyze(context.Background(), frame.FromFrames(30, staticFrames(10)))
	require.NoError(t, err)
	assert.Equal(t, QualityExcellent, rep.Summary.Level)
}

// TestCompletionLogDoesNotShadowLevel checks the grade is logged under its
// own key so formatters keep the entry's log level.
func TestCompletionLogDoesNotShadowLevel(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()
	prev := logrus.GetLevel()
	logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetLevel(prev)

	e := newTestEngine(t, nil)
	_, err := e.Analyze(context.Background(), frame.FromFrames(30, staticFrames(10)))
	require.NoError(t, err)

	var done *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Analysis complete" {
			done = entry
		}
	}
	require.NotNil(t, done)
	assert.Equal(t, logrus.InfoLevel, done.Level)
	assert.Equal(t, "Fair", done.Data["quality_level"])
	assert.NotContains(t, done.Data, "level")
}
