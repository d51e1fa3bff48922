package timing

import (
	"math"
	"sort"

	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultDropRatio flags an interval as a drop when it exceeds the expected
// interval divided by this ratio (1.25x the nominal interval).
const DefaultDropRatio = 0.8

// SecondFPS is the frame count observed in one wall-clock second of the
// presentation timeline.
type SecondFPS struct {
	Second   int     `json:"second" yaml:"second"`
	Frames   int     `json:"frames" yaml:"frames"`
	FPS      float64 `json:"fps" yaml:"fps"`
	Complete bool    `json:"complete" yaml:"complete"`
}

// FPSDynamics summarizes how the frame rate varies second by second.
// Statistics cover complete seconds only, unless the clip is shorter than
// one second, in which case the partial second is used.
type FPSDynamics struct {
	DeclaredFPS     float64     `json:"declared_fps" yaml:"declared_fps"`
	Seconds         []SecondFPS `json:"seconds" yaml:"seconds"`
	MeanFPS         float64     `json:"mean_fps" yaml:"mean_fps"`
	MedianFPS       float64     `json:"median_fps" yaml:"median_fps"`
	StdFPS          float64     `json:"std_fps" yaml:"std_fps"`
	MinFPS          float64     `json:"min_fps" yaml:"min_fps"`
	MaxFPS          float64     `json:"max_fps" yaml:"max_fps"`
	CompleteSeconds int         `json:"complete_seconds" yaml:"complete_seconds"`
}

// Fields returns the summary statistics as named numeric fields.
func (d FPSDynamics) Fields() map[string]float64 {
	return map[string]float64{
		"declared_fps":     d.DeclaredFPS,
		"mean_fps":         d.MeanFPS,
		"median_fps":       d.MedianFPS,
		"std_fps":          d.StdFPS,
		"min_fps":          d.MinFPS,
		"max_fps":          d.MaxFPS,
		"complete_seconds": float64(d.CompleteSeconds),
		"total_seconds":    float64(len(d.Seconds)),
	}
}

// Dynamics buckets frames by whole second of presentation time. Only
// seconds holding at least one frame are reported, so a stray far-future
// timestamp adds one bucket rather than every second up to it.
//
// Each frame occupies 1/declaredFPS seconds, so the last bucket is complete
// only if the final frame's display period reaches the end of that second.
// A partial last second reports frames divided by the covered span.
func Dynamics(timestamps []float64, declaredFPS float64) (*FPSDynamics, error) {
	if err := frame.ValidateFPS("timing.Dynamics", declaredFPS); err != nil {
		return nil, err
	}
	if len(timestamps) == 0 {
		return nil, qaerr.InsufficientData("timing.Dynamics", 0, 1)
	}
	if len(timestamps) > 1 {
		if _, err := Intervals(timestamps); err != nil {
			return nil, err
		}
	} else if t := timestamps[0]; math.IsNaN(t) || math.IsInf(t, 0) {
		return nil, qaerr.InvalidInput("timing.Dynamics", "timestamp", t, "timestamps must be finite").WithIndex(0)
	}

	// timestamps are non-decreasing, so each second is one run
	var seconds []SecondFPS
	for _, t := range timestamps {
		sec := int(math.Floor(t))
		if n := len(seconds); n > 0 && seconds[n-1].Second == sec {
			seconds[n-1].Frames++
			continue
		}
		seconds = append(seconds, SecondFPS{Second: sec, Frames: 1})
	}

	end := timestamps[len(timestamps)-1] + 1.0/declaredFPS
	const eps = 1e-9

	var complete, all []float64
	for i := range seconds {
		s := &seconds[i]
		s.FPS = float64(s.Frames)
		s.Complete = true
		if i == len(seconds)-1 {
			covered := end - float64(s.Second)
			if covered < 1-eps {
				s.Complete = false
				if covered > 0 {
					s.FPS = float64(s.Frames) / covered
				}
			}
		}
		all = append(all, s.FPS)
		if s.Complete {
			complete = append(complete, s.FPS)
		}
	}

	values := complete
	if len(values) == 0 {
		values = all
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	d := &FPSDynamics{
		DeclaredFPS:     declaredFPS,
		Seconds:         seconds,
		MeanFPS:         mean,
		MedianFPS:       median(values),
		StdFPS:          std,
		MinFPS:          floats.Min(values),
		MaxFPS:          floats.Max(values),
		CompleteSeconds: len(complete),
	}

	logrus.WithFields(logrus.Fields{
		"function":         "Dynamics",
		"seconds":          len(seconds),
		"complete_seconds": d.CompleteSeconds,
		"mean_fps":         d.MeanFPS,
		"std_fps":          d.StdFPS,
	}).Debug("Per-second frame rate computed")

	return d, nil
}

// Drop is an inter-frame interval noticeably longer than the nominal one.
type Drop struct {
	Index            int     `json:"index" yaml:"index"` // index of the later frame
	ExpectedInterval float64 `json:"expected_interval" yaml:"expected_interval"`
	ActualInterval   float64 `json:"actual_interval" yaml:"actual_interval"`
}

// Drops lists intervals longer than expected/dropRatio, where expected is
// 1/declaredFPS. dropRatio must lie in (0,1].
func Drops(timestamps []float64, declaredFPS, dropRatio float64) ([]Drop, error) {
	if err := frame.ValidateFPS("timing.Drops", declaredFPS); err != nil {
		return nil, err
	}
	if dropRatio <= 0 || dropRatio > 1 || math.IsNaN(dropRatio) {
		return nil, qaerr.InvalidInput("timing.Drops", "drop_ratio", dropRatio, "must lie in (0,1]")
	}
	intervals, err := Intervals(timestamps)
	if err != nil {
		return nil, err
	}

	expected := 1.0 / declaredFPS
	limit := expected / dropRatio
	var drops []Drop
	for i, d := range intervals {
		if d > limit {
			drops = append(drops, Drop{
				Index:            i + 1,
				ExpectedInterval: expected,
				ActualInterval:   d,
			})
		}
	}

	if len(drops) > 0 {
		logrus.WithFields(logrus.Fields{
			"function":     "Drops",
			"drop_count":   len(drops),
			"declared_fps": declaredFPS,
		}).Debug("Frame rate drops detected")
	}

	return drops, nil
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
