// Package dynamics tracks how exposure and frame-to-frame change evolve
// over a clip, second by second.
//
// Every frame contributes its brightness (mean luma) and contrast (luma
// standard deviation). Every frame after the first also contributes the
// mean and standard deviation of its absolute luma difference to the
// previous frame. The first frame has no predecessor, so it adds nothing
// to the difference statistics rather than a misleading zero.
package dynamics

import (
	"context"
	"errors"
	"math"

	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FrameStats are the measurements of one frame.
type FrameStats struct {
	Index      int     `json:"index" yaml:"index"`
	Timestamp  float64 `json:"timestamp" yaml:"timestamp"`
	Brightness float64 `json:"brightness" yaml:"brightness"`
	Contrast   float64 `json:"contrast" yaml:"contrast"`
	// Difference and Intensity are the mean and std of |cur − prev|.
	Difference    float64 `json:"difference" yaml:"difference"`
	Intensity     float64 `json:"intensity" yaml:"intensity"`
	HasDifference bool    `json:"has_difference" yaml:"has_difference"`
}

// Summary describes the distribution of one measurement.
type Summary struct {
	Mean float64 `json:"mean" yaml:"mean"`
	Std  float64 `json:"std" yaml:"std"`
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
}

func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	return Summary{Mean: mean, Std: std, Min: floats.Min(values), Max: floats.Max(values)}
}

// Stats aggregates the frames of one interval.
type Stats struct {
	Frames      int     `json:"frames" yaml:"frames"`
	Brightness  Summary `json:"brightness" yaml:"brightness"`
	Contrast    Summary `json:"contrast" yaml:"contrast"`
	Difference  Summary `json:"difference" yaml:"difference"`
	Intensity   Summary `json:"intensity" yaml:"intensity"`
	Differences int     `json:"differences" yaml:"differences"`
}

// SecondStats are the statistics of one whole second of presentation time.
type SecondStats struct {
	Second int `json:"second" yaml:"second"`
	Stats  `yaml:",inline"`
}

// Report holds per-second and whole-clip statistics.
type Report struct {
	Seconds []SecondStats `json:"seconds" yaml:"seconds"`
	Overall Stats         `json:"overall" yaml:"overall"`
}

// Fields returns the whole-clip statistics as named numeric fields.
func (r Report) Fields() map[string]float64 {
	o := r.Overall
	return map[string]float64{
		"frames":          float64(o.Frames),
		"seconds":         float64(len(r.Seconds)),
		"brightness_mean": o.Brightness.Mean,
		"brightness_std":  o.Brightness.Std,
		"brightness_min":  o.Brightness.Min,
		"brightness_max":  o.Brightness.Max,
		"contrast_mean":   o.Contrast.Mean,
		"contrast_std":    o.Contrast.Std,
		"contrast_min":    o.Contrast.Min,
		"contrast_max":    o.Contrast.Max,
		"difference_mean": o.Difference.Mean,
		"difference_max":  o.Difference.Max,
		"intensity_mean":  o.Intensity.Mean,
		"intensity_max":   o.Intensity.Max,
	}
}

// Measure returns the brightness and contrast of a frame's luma plane.
func Measure(f *frame.VideoFrame) (brightness, contrast float64) {
	return stat.PopMeanStdDev(lumaValues(f, nil), nil)
}

// Difference returns the mean and std of the absolute luma difference of
// two frames of equal size.
func Difference(prev, cur *frame.VideoFrame) (mean, std float64, err error) {
	if err := frame.CheckPair("dynamics.Difference", prev, cur); err != nil {
		return 0, 0, err
	}
	ps, cs := prev.LumaStride(), cur.LumaStride()
	diff := make([]float64, 0, cur.Width*cur.Height)
	for y := 0; y < cur.Height; y++ {
		pr := prev.Y[y*ps : y*ps+prev.Width]
		cr := cur.Y[y*cs : y*cs+cur.Width]
		for x := range cr {
			diff = append(diff, math.Abs(float64(cr[x])-float64(pr[x])))
		}
	}
	mean, std = stat.PopMeanStdDev(diff, nil)
	return mean, std, nil
}

func lumaValues(f *frame.VideoFrame, buf []float64) []float64 {
	buf = buf[:0]
	stride := f.LumaStride()
	for y := 0; y < f.Height; y++ {
		for _, v := range f.Y[y*stride : y*stride+f.Width] {
			buf = append(buf, float64(v))
		}
	}
	return buf
}

// Tracker measures samples one at a time, keeping only the previous frame.
type Tracker struct {
	prev  *frame.VideoFrame
	stats []FrameStats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe measures s and its difference to the previous sample.
func (t *Tracker) Observe(s *frame.Sample) error {
	if s == nil || s.Frame == nil {
		return qaerr.InvalidInput("dynamics.Observe", "sample", nil, "sample has no frame")
	}
	if err := s.Frame.Validate(); err != nil {
		return err
	}

	fs := FrameStats{Index: s.Index, Timestamp: s.Timestamp}
	fs.Brightness, fs.Contrast = Measure(s.Frame)

	if t.prev != nil {
		mean, std, err := Difference(t.prev, s.Frame)
		if err != nil {
			var qe *qaerr.Error
			if errors.As(err, &qe) {
				return qe.WithIndex(s.Index)
			}
			return err
		}
		fs.Difference, fs.Intensity, fs.HasDifference = mean, std, true
	}

	t.prev = s.Frame
	t.stats = append(t.stats, fs)
	return nil
}

// Frames returns a copy of the per-frame measurements.
func (t *Tracker) Frames() []FrameStats {
	return append([]FrameStats(nil), t.stats...)
}

// Report aggregates the observed frames.
func (t *Tracker) Report() (*Report, error) {
	return Aggregate(t.stats)
}

// Aggregate buckets per-frame measurements by whole second of timestamp.
// Empty input returns InsufficientData.
func Aggregate(stats []FrameStats) (*Report, error) {
	if len(stats) == 0 {
		return nil, qaerr.InsufficientData("dynamics.Aggregate", 0, 1)
	}
	for i, fs := range stats {
		if math.IsNaN(fs.Timestamp) || math.IsInf(fs.Timestamp, 0) || fs.Timestamp < 0 {
			return nil, qaerr.InvalidInput("dynamics.Aggregate", "timestamp", fs.Timestamp,
				"timestamps must be finite and non-negative").WithIndex(i)
		}
		if i > 0 && fs.Timestamp < stats[i-1].Timestamp {
			return nil, qaerr.InvalidInput("dynamics.Aggregate", "timestamp", fs.Timestamp,
				"timestamps must be non-decreasing").WithIndex(i)
		}
	}

	var seconds []SecondStats
	start := 0
	for i := 1; i <= len(stats); i++ {
		if i < len(stats) && second(stats[i]) == second(stats[start]) {
			continue
		}
		seconds = append(seconds, SecondStats{
			Second: second(stats[start]),
			Stats:  aggregate(stats[start:i]),
		})
		start = i
	}

	r := &Report{Seconds: seconds, Overall: aggregate(stats)}

	logrus.WithFields(logrus.Fields{
		"function":        "Aggregate",
		"frames":          len(stats),
		"seconds":         len(seconds),
		"brightness_mean": r.Overall.Brightness.Mean,
		"difference_mean": r.Overall.Difference.Mean,
	}).Debug("Frame dynamics aggregated")

	return r, nil
}

func second(fs FrameStats) int {
	return int(math.Floor(fs.Timestamp))
}

func aggregate(stats []FrameStats) Stats {
	brightness := make([]float64, len(stats))
	contrast := make([]float64, len(stats))
	var diff, intensity []float64
	for i, fs := range stats {
		brightness[i] = fs.Brightness
		contrast[i] = fs.Contrast
		if fs.HasDifference {
			diff = append(diff, fs.Difference)
			intensity = append(intensity, fs.Intensity)
		}
	}
	return Stats{
		Frames:      len(stats),
		Brightness:  summarize(brightness),
		Contrast:    summarize(contrast),
		Difference:  summarize(diff),
		Intensity:   summarize(intensity),
		Differences: len(diff),
	}
}

// Analyze measures every sample of src.
func Analyze(ctx context.Context, src frame.Source) (*Report, error) {
	t := NewTracker()
	if _, err := frame.Drain(ctx, "dynamics.Analyze", src, t.Observe); err != nil {
		return nil, err
	}
	return t.Report()
}
