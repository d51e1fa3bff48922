package continuity

import (
	"errors"
	"math"
	"testing"

	"github.com/opd-ai/motionqa/qaerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestZeroMotionIsContinuous verifies a static clip scores perfectly.
func TestZeroMotionIsContinuous(t *testing.T) {
	report, err := Analyze(make([]float64, 20), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 0.0, report.MeanJerk)
	assert.Equal(t, 0.0, report.JerkinessScore)
	assert.Equal(t, 100.0, report.ContinuityScore)
	assert.Empty(t, report.PeakIndices)
}

// TestSingleSpikeIsOnePeak covers one outlier on a constant baseline.
func TestSingleSpikeIsOnePeak(t *testing.T) {
	report, err := Analyze([]float64{1, 1, 1, 1, 10, 1, 1, 1, 1}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []int{4}, report.PeakIndices)
	assert.InDelta(t, 1.0/7, report.JerkPeakRatio, 1e-12)
	assert.Greater(t, report.JerkPeakRatio, 0.0)
	assert.InDelta(t, 100.0/7*5, report.JerkinessScore, 1e-9)
	assert.InDelta(t, 36.0/7, report.MeanJerk, 1e-9)
	assert.InDelta(t, 2.0, report.MeanMotion, 1e-12)
}

// TestConstantAccelerationHasNoPeaks verifies a smooth ramp is not jerky.
func TestConstantAccelerationHasNoPeaks(t *testing.T) {
	series := make([]float64, 12)
	for i := range series {
		series[i] = 0.5 * float64(i*i)
	}
	report, err := Analyze(series, DefaultConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, report.MeanJerk, 1e-9)
	assert.Equal(t, 0.0, report.JerkPeakRatio)
	assert.Equal(t, 100.0, report.ContinuityScore)
}

// TestLinearRampIsContinuous verifies rounding noise in the second
// difference of a non-integer ramp is not reported as jerk.
func TestLinearRampIsContinuous(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		series[i] = 0.7*float64(i) + 1.3
	}
	report, err := Analyze(series, DefaultConfig())
	require.NoError(t, err)

	assert.Empty(t, report.PeakIndices)
	assert.Equal(t, 0.0, report.JerkinessScore)
	assert.Equal(t, 100.0, report.ContinuityScore)
	assert.Empty(t, report.Discontinuities)

	// a real spike on the same ramp is still found
	series[20] += 5
	report, err = Analyze(series, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{19, 20, 21}, report.PeakIndices)
	assert.Equal(t, []int{20}, report.Discontinuities)
}

func TestDiscontinuities(t *testing.T) {
	series := []float64{0, 6, 6, 12, 12, 6, 6, 3, 3}
	assert.Equal(t, []int{3, 5}, Discontinuities(series, 0.3, 5))
	assert.Equal(t, []int{1, 3, 5}, Discontinuities(append([]float64{1}, series[1:]...), 0.3, 5))
	assert.Empty(t, Discontinuities(series, 1.5, 5))
	assert.Empty(t, Discontinuities(series, 0.3, 20))
	assert.Empty(t, Discontinuities(nil, 0.3, 5))

	report, err := Analyze(series, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, report.Discontinuities)
	assert.Equal(t, 2.0, report.Fields()["discontinuity_count"])
}

func TestJerkinessSaturates(t *testing.T) {
	cfg := Config{PeakMultiplier: 0, ScaleFactor: 5}
	report, err := Analyze([]float64{0, 5, 0, 5, 0, 9, 0}, cfg)
	require.NoError(t, err)

	assert.Equal(t, 100.0, report.JerkinessScore)
	assert.Equal(t, 0.0, report.ContinuityScore)
	assert.LessOrEqual(t, report.JerkPeakRatio, 1.0)
}

func TestScoresAreComplementary(t *testing.T) {
	series := []float64{2, 2.5, 2.1, 7, 2.2, 2.4, 2.3, 0.4, 2.2, 2.6}
	report, err := Analyze(series, DefaultConfig())
	require.NoError(t, err)

	assert.InDelta(t, 100.0, report.JerkinessScore+report.ContinuityScore, 1e-12)
	assert.GreaterOrEqual(t, report.JerkinessScore, 0.0)
	assert.LessOrEqual(t, report.JerkinessScore, 100.0)
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
		cfg    Config
		kind   error
	}{
		{"empty", nil, DefaultConfig(), qaerr.ErrInsufficientData},
		{"two samples", []float64{1, 2}, DefaultConfig(), qaerr.ErrInsufficientData},
		{"negative magnitude", []float64{1, -2, 3}, DefaultConfig(), qaerr.ErrInvalidInput},
		{"nan magnitude", []float64{1, math.NaN(), 3}, DefaultConfig(), qaerr.ErrInvalidInput},
		{"negative multiplier", []float64{1, 2, 3}, Config{PeakMultiplier: -1, ScaleFactor: 5}, qaerr.ErrInvalidInput},
		{"zero scale", []float64{1, 2, 3}, Config{PeakMultiplier: 2, ScaleFactor: 0}, qaerr.ErrInvalidInput},
		{"negative ratio", []float64{1, 2, 3}, Config{PeakMultiplier: 2, ScaleFactor: 5, DiscontinuityRatio: -0.1}, qaerr.ErrInvalidInput},
		{"nan min motion", []float64{1, 2, 3}, Config{PeakMultiplier: 2, ScaleFactor: 5, DiscontinuityMinMotion: math.NaN()}, qaerr.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Analyze(tt.series, tt.cfg)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestInvalidMagnitudeNamesIndex(t *testing.T) {
	_, err := Analyze([]float64{1, 2, 3, -0.5}, DefaultConfig())

	var qe *qaerr.Error
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 3, qe.Index)
	assert.Equal(t, -0.5, qe.Value)
}

func TestJerk(t *testing.T) {
	jerk, err := Jerk([]float64{1, 1, 1, 1, 10, 1, 1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 9, 18, 9, 0, 0}, jerk)
}
