// Package continuity scores how smoothly motion evolves over time.
//
// Input is a motion series: one mean flow magnitude per consecutive frame
// pair. Jerk is the absolute second difference of that series. Isolated
// jerk spikes are the signature of stutter, dropped motion or abrupt
// temporal inconsistencies in generated video.
package continuity

import (
	"math"

	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Config holds the jerk peak calibration.
type Config struct {
	// PeakMultiplier is k in the peak threshold mean(jerk) + k·std(jerk)
	PeakMultiplier float64 `yaml:"peak_multiplier" json:"peak_multiplier"`
	// ScaleFactor maps the peak ratio onto 0-100; with 5, a 20% peak
	// ratio saturates the jerkiness score
	ScaleFactor float64 `yaml:"scale_factor" json:"scale_factor"`
	// DiscontinuityRatio is the band 1±r the step ratio m[t]/m[t−1] must
	// stay inside
	DiscontinuityRatio float64 `yaml:"discontinuity_ratio" json:"discontinuity_ratio"`
	// DiscontinuityMinMotion is the magnitude a step must exceed to count
	DiscontinuityMinMotion float64 `yaml:"discontinuity_min_motion" json:"discontinuity_min_motion"`
}

// DefaultConfig returns the default calibration.
func DefaultConfig() Config {
	return Config{
		PeakMultiplier:         1.5,
		ScaleFactor:            5,
		DiscontinuityRatio:     0.3,
		DiscontinuityMinMotion: 5,
	}
}

// Validate checks the calibration constants.
func (c Config) Validate() error {
	if c.PeakMultiplier < 0 || math.IsNaN(c.PeakMultiplier) || math.IsInf(c.PeakMultiplier, 0) {
		return qaerr.InvalidInput("continuity.Config", "peak_multiplier", c.PeakMultiplier, "must be a non-negative finite number")
	}
	if c.ScaleFactor <= 0 || math.IsNaN(c.ScaleFactor) || math.IsInf(c.ScaleFactor, 0) {
		return qaerr.InvalidInput("continuity.Config", "scale_factor", c.ScaleFactor, "must be a positive finite number")
	}
	if c.DiscontinuityRatio < 0 || math.IsNaN(c.DiscontinuityRatio) || math.IsInf(c.DiscontinuityRatio, 0) {
		return qaerr.InvalidInput("continuity.Config", "discontinuity_ratio", c.DiscontinuityRatio, "must be a non-negative finite number")
	}
	if c.DiscontinuityMinMotion < 0 || math.IsNaN(c.DiscontinuityMinMotion) || math.IsInf(c.DiscontinuityMinMotion, 0) {
		return qaerr.InvalidInput("continuity.Config", "discontinuity_min_motion", c.DiscontinuityMinMotion, "must be a non-negative finite number")
	}
	return nil
}

// Report holds motion continuity statistics.
type Report struct {
	MeanMotion      float64 `json:"mean_motion" yaml:"mean_motion"`
	MotionStd       float64 `json:"motion_std" yaml:"motion_std"`
	MeanJerk        float64 `json:"mean_jerk" yaml:"mean_jerk"`
	JerkPeakRatio   float64 `json:"jerk_peak_ratio" yaml:"jerk_peak_ratio"`
	JerkinessScore  float64 `json:"jerkiness_score" yaml:"jerkiness_score"`
	ContinuityScore float64 `json:"continuity_score" yaml:"continuity_score"`
	// PeakIndices are positions in the motion series of the jerk peaks.
	PeakIndices []int `json:"peak_indices" yaml:"peak_indices"`
	// Discontinuities are positions in the motion series where motion
	// jumped or collapsed relative to the previous pair.
	Discontinuities []int `json:"discontinuities" yaml:"discontinuities"`
}

// Fields returns the numeric fields of the report.
func (r Report) Fields() map[string]float64 {
	return map[string]float64{
		"mean_motion":         r.MeanMotion,
		"motion_std":          r.MotionStd,
		"mean_jerk":           r.MeanJerk,
		"jerk_peak_ratio":     r.JerkPeakRatio,
		"jerkiness_score":     r.JerkinessScore,
		"continuity_score":    r.ContinuityScore,
		"peak_count":          float64(len(r.PeakIndices)),
		"discontinuity_count": float64(len(r.Discontinuities)),
	}
}

// flatTolerance is the relative jerk spread treated as zero.
const flatTolerance = 1e-9

// Jerk returns |m[t+1] − 2·m[t] + m[t−1]| for every interior t.
func Jerk(series []float64) ([]float64, error) {
	if len(series) < 3 {
		return nil, qaerr.InsufficientData("continuity.Jerk", len(series), 3)
	}
	jerk := make([]float64, len(series)-2)
	for t := 1; t < len(series)-1; t++ {
		jerk[t-1] = math.Abs(series[t+1] - 2*series[t] + series[t-1])
	}
	return jerk, nil
}

// Discontinuities returns the positions t where m[t−1] > 0, m[t] exceeds
// minMotion and m[t]/m[t−1] falls outside [1−ratio, 1+ratio].
func Discontinuities(series []float64, ratio, minMotion float64) []int {
	var out []int
	for t := 1; t < len(series); t++ {
		prev, cur := series[t-1], series[t]
		if prev <= 0 || cur <= minMotion {
			continue
		}
		if r := cur / prev; r < 1-ratio || r > 1+ratio {
			out = append(out, t)
		}
	}
	return out
}

// Analyze scores a motion series.
//
// A jerk value is a peak when it reaches mean + PeakMultiplier·std of all
// jerk values (population std). Jerk spread at rounding level, relative to
// the motion scale, counts as flat, so a perfectly regular series has no
// peaks. Fewer than 3 samples return InsufficientData; negative or
// non-finite magnitudes return InvalidInput.
func Analyze(series []float64, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(series) < 3 {
		return nil, qaerr.InsufficientData("continuity.Analyze", len(series), 3)
	}
	for i, m := range series {
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, qaerr.InvalidInput("continuity.Analyze", "magnitude", m,
				"motion magnitudes must be finite and non-negative").WithIndex(i)
		}
	}

	jerk, err := Jerk(series)
	if err != nil {
		return nil, err
	}

	meanMotion, motionStd := stat.PopMeanStdDev(series, nil)
	meanJerk, jerkStd := stat.PopMeanStdDev(jerk, nil)

	// rounding noise of the second difference scales with the magnitudes
	tol := flatTolerance * math.Max(1, meanMotion)

	var peaks []int
	if jerkStd > tol {
		threshold := meanJerk + cfg.PeakMultiplier*jerkStd
		for i, j := range jerk {
			if j >= threshold && j-meanJerk > tol {
				peaks = append(peaks, i+1)
			}
		}
	}

	ratio := float64(len(peaks)) / float64(len(jerk))
	jerkiness := math.Min(100, ratio*100*cfg.ScaleFactor)

	r := &Report{
		MeanMotion:      meanMotion,
		MotionStd:       motionStd,
		MeanJerk:        meanJerk,
		JerkPeakRatio:   ratio,
		JerkinessScore:  jerkiness,
		ContinuityScore: 100 - jerkiness,
		PeakIndices:     peaks,
		Discontinuities: Discontinuities(series, cfg.DiscontinuityRatio, cfg.DiscontinuityMinMotion),
	}

	logrus.WithFields(logrus.Fields{
		"function":         "Analyze",
		"samples":          len(series),
		"jerk_peaks":       len(peaks),
		"discontinuities":  len(r.Discontinuities),
		"jerk_peak_ratio":  ratio,
		"continuity_score": r.ContinuityScore,
	}).Debug("Motion continuity analysis completed")

	return r, nil
}
