// Package timing analyzes presentation timestamps of a frame sequence.
//
// It measures how far the real frame cadence strays from the nominal frame
// rate a container declares:
//
//	report, err := timing.Analyze(timestamps, 30)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("effective %.2f fps, jitter %.2f ms\n",
//	    report.EffectiveFPS, report.JitterStdMs)
//
// Only timestamps are consumed; pixel data never reaches this package.
// EffectiveFPS is derived from the elapsed timestamp span and frame count,
// never from the declared rate.
package timing

import (
	"math"

	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Report holds frame timing statistics.
type Report struct {
	DeclaredFPS        float64 `json:"declared_fps" yaml:"declared_fps"`
	EffectiveFPS       float64 `json:"effective_fps" yaml:"effective_fps"`
	JitterStdMs        float64 `json:"jitter_std_ms" yaml:"jitter_std_ms"`
	JitterMaxMs        float64 `json:"jitter_max_ms" yaml:"jitter_max_ms"`
	JitterPercentage   float64 `json:"jitter_percentage" yaml:"jitter_percentage"`
	FrameCount         int     `json:"frame_count" yaml:"frame_count"`
	MeanIntervalMs     float64 `json:"mean_interval_ms" yaml:"mean_interval_ms"`
	ExpectedIntervalMs float64 `json:"expected_interval_ms" yaml:"expected_interval_ms"`
}

// Fields returns the report as named numeric fields.
func (r Report) Fields() map[string]float64 {
	return map[string]float64{
		"declared_fps":         r.DeclaredFPS,
		"effective_fps":        r.EffectiveFPS,
		"jitter_std_ms":        r.JitterStdMs,
		"jitter_max_ms":        r.JitterMaxMs,
		"jitter_percentage":    r.JitterPercentage,
		"frame_count":          float64(r.FrameCount),
		"mean_interval_ms":     r.MeanIntervalMs,
		"expected_interval_ms": r.ExpectedIntervalMs,
	}
}

// Intervals returns the inter-frame intervals t[i]-t[i-1]. A negative
// interval is a data-quality error reported with the index of the later
// frame.
func Intervals(timestamps []float64) ([]float64, error) {
	if len(timestamps) < 2 {
		return nil, qaerr.InsufficientData("timing.Intervals", len(timestamps), 2)
	}
	if t := timestamps[0]; math.IsNaN(t) || math.IsInf(t, 0) {
		return nil, qaerr.InvalidInput("timing.Intervals", "timestamp", t,
			"timestamps must be finite").WithIndex(0)
	}
	intervals := make([]float64, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		t := timestamps[i]
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, qaerr.InvalidInput("timing.Intervals", "timestamp", t,
				"timestamps must be finite").WithIndex(i)
		}
		d := t - timestamps[i-1]
		if d < 0 {
			return nil, qaerr.InvalidInput("timing.Intervals", "interval", d,
				"timestamps must be non-decreasing").WithIndex(i)
		}
		intervals[i-1] = d
	}
	return intervals, nil
}

// Analyze computes effective frame rate and jitter statistics.
//
// Parameters:
//   - timestamps: presentation times in seconds, non-decreasing
//   - declaredFPS: the nominal frame rate of the source
//
// Returns InsufficientData for fewer than 2 timestamps and InvalidInput for
// a non-positive declared rate, decreasing timestamps or a zero time span.
func Analyze(timestamps []float64, declaredFPS float64) (*Report, error) {
	if err := frame.ValidateFPS("timing.Analyze", declaredFPS); err != nil {
		return nil, err
	}
	if len(timestamps) < 2 {
		return nil, qaerr.InsufficientData("timing.Analyze", len(timestamps), 2)
	}
	if t0 := timestamps[0]; math.IsNaN(t0) || math.IsInf(t0, 0) {
		return nil, qaerr.InvalidInput("timing.Analyze", "timestamp", t0,
			"timestamps must be finite").WithIndex(0)
	}

	intervals, err := Intervals(timestamps)
	if err != nil {
		return nil, err
	}

	n := len(timestamps)
	span := timestamps[n-1] - timestamps[0]
	if span <= 0 {
		return nil, qaerr.InvalidInput("timing.Analyze", "span", span,
			"all timestamps are equal; effective frame rate is undefined")
	}

	expected := 1.0 / declaredFPS
	meanInterval, stdInterval := stat.PopMeanStdDev(intervals, nil)

	maxDeviation := 0.0
	for _, d := range intervals {
		if dev := math.Abs(d - expected); dev > maxDeviation {
			maxDeviation = dev
		}
	}

	jitterStdMs := stdInterval * 1000
	report := &Report{
		DeclaredFPS:        declaredFPS,
		EffectiveFPS:       float64(n-1) / span,
		JitterStdMs:        jitterStdMs,
		JitterMaxMs:        maxDeviation * 1000,
		JitterPercentage:   jitterStdMs / (expected * 1000) * 100,
		FrameCount:         n,
		MeanIntervalMs:     meanInterval * 1000,
		ExpectedIntervalMs: expected * 1000,
	}

	logrus.WithFields(logrus.Fields{
		"function":      "Analyze",
		"frame_count":   n,
		"declared_fps":  declaredFPS,
		"effective_fps": report.EffectiveFPS,
		"jitter_std_ms": report.JitterStdMs,
		"jitter_max_ms": report.JitterMaxMs,
	}).Debug("Timing analysis completed")

	return report, nil
}
