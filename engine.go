package motionqa

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/motionqa/config"
	"github.com/opd-ai/motionqa/flow"
	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
)

// windowSize is the number of recent sampled frames a pass keeps.
const windowSize = 3

// Pass names reported to the progress callback.
const (
	PassShared     = "shared"
	PassTiming     = "timing"
	PassSimilarity = "similarity"
	PassMotion     = "motion"
	PassDynamics   = "dynamics"
)

// ProgressFunc is called after every frame a pass consumes with the pass
// name and the number of frames it has read so far.
type ProgressFunc func(pass string, frames int)

// Engine runs every analyzer over a frame sequence.
type Engine struct {
	cfg *config.Config
	est flow.Estimator

	mu         sync.RWMutex
	progressCb ProgressFunc
	thresholds QualityThresholds

	// progressMu serializes callback invocations across parallel passes
	progressMu sync.Mutex
}

// NewEngine creates an engine. A nil cfg selects config.Default and a nil
// estimator selects the block matcher configured by cfg.Flow.
func NewEngine(cfg *config.Config, est flow.Estimator) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if est == nil {
		bm, err := flow.NewBlockMatcher(cfg.Flow)
		if err != nil {
			return nil, err
		}
		est = bm
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewEngine",
		"sample_rate": cfg.SampleRate,
		"block_size":  cfg.Flow.BlockSize,
		"grid_size":   cfg.Wobble.GridSize,
	}).Debug("Engine created")

	return &Engine{
		cfg:        cfg,
		est:        est,
		thresholds: DefaultQualityThresholds(),
	}, nil
}

// SetProgressCallback sets the callback invoked as passes consume frames.
// Pass nil to remove it.
func (e *Engine) SetProgressCallback(callback ProgressFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progressCb = callback
}

// SetQualityThresholds replaces the thresholds used to grade the overall score.
func (e *Engine) SetQualityThresholds(thresholds QualityThresholds) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thresholds = thresholds
}

func (e *Engine) progress(pass string, frames int) {
	e.mu.RLock()
	cb := e.progressCb
	e.mu.RUnlock()
	if cb == nil {
		return
	}
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	cb(pass, frames)
}

// pass feeds samples from one source to a set of stages. The timing
// runner sees every sample; the others see every stride-th one.
type pass struct {
	name   string
	open   frame.Opener
	stride int

	timing *runner
	pixel  []*runner
	window *frame.Window

	declaredFPS float64
	frames      int
	analyzed    int
}

func newPass(name string, stride int, timing *runner, pixel ...*runner) *pass {
	return &pass{
		name:   name,
		stride: stride,
		timing: timing,
		pixel:  pixel,
		window: frame.NewWindow(windowSize),
	}
}

func (p *pass) feed(s *frame.Sample) {
	if p.timing != nil {
		p.timing.observe(s, nil)
	}
	keep := p.frames%p.stride == 0
	p.frames++
	if !keep || len(p.pixel) == 0 {
		return
	}

	p.window.Push(s)
	p.analyzed++
	prev := p.window.Back(1)
	for _, r := range p.pixel {
		r.observe(s, prev)
	}
}

func (p *pass) finish(rep *Report) {
	if p.timing != nil {
		p.timing.finish(rep)
	}
	for _, r := range p.pixel {
		r.finish(rep)
	}
}

func (e *Engine) drain(ctx context.Context, op string, p *pass, src frame.Source) error {
	p.declaredFPS = src.DeclaredFPS()
	_, err := frame.Drain(ctx, op, src, func(s *frame.Sample) error {
		p.feed(s)
		e.progress(p.name, p.frames)
		return nil
	})
	return err
}

type stages struct {
	timing     *runner
	similarity *runner
	motion     *runner
	dynamics   *runner
}

func (e *Engine) newStages() (*stages, error) {
	sim, err := newSimilarityStage(e.cfg)
	if err != nil {
		return nil, err
	}
	motion, err := newMotionStage(e.cfg, e.est)
	if err != nil {
		return nil, err
	}
	return &stages{
		timing:     &runner{stage: newTimingStage(e.cfg)},
		similarity: &runner{stage: sim},
		motion:     &runner{stage: motion},
		dynamics:   &runner{stage: newDynamicsStage()},
	}, nil
}

// Analyze runs every analyzer in one pass over src. Pixel analyzers see
// every SampleRate-th frame; timing sees all of them.
//
// Cancellation and source failures abort the run and no report is
// returned. Analyzers that cannot produce a statistic are listed in
// Report.Failures instead.
func (e *Engine) Analyze(ctx context.Context, src frame.Source) (*Report, error) {
	const op = "motionqa.Engine.Analyze"
	if src == nil {
		return nil, qaerr.InvalidInput(op, "source", nil, "source must not be nil")
	}

	st, err := e.newStages()
	if err != nil {
		return nil, err
	}
	rep := newReport(uuid.NewString(), src.DeclaredFPS())
	logrus.WithFields(logrus.Fields{
		"function":     "Engine.Analyze",
		"run_id":       rep.RunID,
		"declared_fps": rep.DeclaredFPS,
	}).Info("Starting analysis")

	p := newPass(PassShared, e.cfg.SampleRate, st.timing, st.similarity, st.motion, st.dynamics)
	if err := e.drain(ctx, op, p, src); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.Analyze",
			"run_id":   rep.RunID,
			"frames":   p.frames,
			"error":    err.Error(),
		}).Warn("Analysis aborted")
		return nil, err
	}

	rep.FrameCount = p.frames
	rep.AnalyzedFrames = p.analyzed
	p.finish(rep)
	e.complete(rep)
	return rep, nil
}

// AnalyzeParallel runs timing, similarity, motion and dynamics as four
// independent passes, each over its own source obtained from open.
//
// The first pass to fail cancels the others. The returned error is the
// first failure that is not a cancellation, if any.
func (e *Engine) AnalyzeParallel(ctx context.Context, open frame.Opener) (*Report, error) {
	const op = "motionqa.Engine.AnalyzeParallel"
	if open == nil {
		return nil, qaerr.InvalidInput(op, "opener", nil, "opener must not be nil")
	}

	st, err := e.newStages()
	if err != nil {
		return nil, err
	}
	pixelOpen := frame.StridedOpener(open, e.cfg.SampleRate)

	timingPass := newPass(PassTiming, 1, st.timing)
	timingPass.open = open
	passes := []*pass{timingPass}
	for _, pp := range []struct {
		name string
		r    *runner
	}{
		{PassSimilarity, st.similarity},
		{PassMotion, st.motion},
		{PassDynamics, st.dynamics},
	} {
		p := newPass(pp.name, 1, nil, pp.r)
		p.open = pixelOpen
		passes = append(passes, p)
	}

	runID := uuid.NewString()
	started := time.Now()
	logrus.WithFields(logrus.Fields{
		"function": "Engine.AnalyzeParallel",
		"run_id":   runID,
		"passes":   len(passes),
	}).Info("Starting parallel analysis")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(passes))
	var wg sync.WaitGroup
	for i, p := range passes {
		wg.Add(1)
		go func(i int, p *pass) {
			defer wg.Done()
			if err := e.runPass(ctx, op, p); err != nil {
				errs[i] = err
				cancel()
			}
		}(i, p)
	}
	wg.Wait()

	if err := firstError(errs); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.AnalyzeParallel",
			"run_id":   runID,
			"error":    err.Error(),
		}).Warn("Analysis aborted")
		return nil, err
	}

	rep := newReport(runID, timingPass.declaredFPS)
	rep.StartedAt = started
	rep.FrameCount = timingPass.frames
	rep.AnalyzedFrames = passes[1].analyzed
	for _, p := range passes {
		p.finish(rep)
	}
	e.complete(rep)
	return rep, nil
}

func (e *Engine) runPass(ctx context.Context, op string, p *pass) error {
	src, err := p.open()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.runPass",
			"pass":     p.name,
			"error":    err.Error(),
		}).Error("Failed to open frame source")
		if errors.Is(err, qaerr.ErrUpstreamDecodeFailure) {
			return err
		}
		return qaerr.UpstreamDecode(op, qaerr.NoIndex, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.runPass",
				"pass":     p.name,
				"error":    err.Error(),
			}).Debug("Failed to close frame source")
		}
	}()

	if err := e.drain(ctx, op+"."+p.name, p, src); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "Engine.runPass",
		"pass":     p.name,
		"frames":   p.frames,
	}).Debug("Pass complete")
	return nil
}

// firstError prefers a real failure over the cancellations it triggered.
func firstError(errs []error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, qaerr.ErrCanceled) {
			return err
		}
		if canceled == nil {
			canceled = err
		}
	}
	return canceled
}

func (e *Engine) complete(rep *Report) {
	e.mu.RLock()
	thresholds := e.thresholds
	e.mu.RUnlock()

	rep.Summary = Summarize(rep, thresholds)
	rep.Elapsed = time.Since(rep.StartedAt)

	logrus.WithFields(logrus.Fields{
		"function":        "Engine.complete",
		"run_id":          rep.RunID,
		"frames":          rep.FrameCount,
		"analyzed_frames": rep.AnalyzedFrames,
		"overall":         rep.Summary.Overall,
		"quality_level":   rep.Summary.Level.String(),
		"failed":          rep.FailedAnalyzers(),
		"elapsed":         rep.Elapsed,
	}).Info("Analysis complete")
}
