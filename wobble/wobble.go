// Package wobble scores non-rigid motion across the frame.
//
// Rigid camera motion moves every region of the frame by the same vector.
// Rolling-shutter wobble and the "jelly" artifacts of generated video make
// neighbouring regions disagree in speed or direction. For every frame pair
// the block-wise flow grid is reduced to one wobble value combining the
// spread of magnitudes and the circular spread of directions across blocks.
package wobble

import (
	"errors"
	"math"

	"github.com/opd-ai/motionqa/flow"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Config holds the wobble grid and weighting.
type Config struct {
	// GridSize is the number of blocks per side of the flow grid
	GridSize int `yaml:"grid_size" json:"grid_size"`
	// Scale maps the mean wobble value onto the 0-100 distortion score
	Scale float64 `yaml:"scale" json:"scale"`
	// DirectionWeight multiplies the circular direction variance
	DirectionWeight float64 `yaml:"direction_weight" json:"direction_weight"`
	// MagnitudeWeight multiplies the magnitude variance
	MagnitudeWeight float64 `yaml:"magnitude_weight" json:"magnitude_weight"`
	// StillEpsilon is the block magnitude below which a block has no
	// meaningful direction
	StillEpsilon float64 `yaml:"still_epsilon" json:"still_epsilon"`
	// FlagThreshold flags a frame pair whose wobble value exceeds it
	FlagThreshold float64 `yaml:"flag_threshold" json:"flag_threshold"`
}

// DefaultConfig returns the default wobble settings.
func DefaultConfig() Config {
	return Config{
		GridSize:        8,
		Scale:           10,
		DirectionWeight: 10,
		MagnitudeWeight: 1,
		StillEpsilon:    1e-3,
		FlagThreshold:   2,
	}
}

// Validate checks the wobble settings.
func (c Config) Validate() error {
	if c.GridSize < 2 {
		return qaerr.InvalidConfiguration("wobble.Config", "grid_size", c.GridSize, "grid must be at least 2x2")
	}
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"scale", c.Scale},
		{"direction_weight", c.DirectionWeight},
		{"magnitude_weight", c.MagnitudeWeight},
		{"still_epsilon", c.StillEpsilon},
		{"flag_threshold", c.FlagThreshold},
	} {
		if p.value < 0 || math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return qaerr.InvalidInput("wobble.Config", p.name, p.value, "must be a non-negative finite number")
		}
	}
	if c.Scale == 0 {
		return qaerr.InvalidInput("wobble.Config", "scale", c.Scale, "must be positive")
	}
	return nil
}

// Report holds wobble statistics over all frame pairs.
type Report struct {
	MeanWobble      float64 `json:"mean_wobble" yaml:"mean_wobble"`
	WobbleStd       float64 `json:"wobble_std" yaml:"wobble_std"`
	DistortionScore float64 `json:"distortion_score" yaml:"distortion_score"`
	PairCount       int     `json:"pair_count" yaml:"pair_count"`
	// FlaggedFrames are the indices of pairs whose wobble value exceeds
	// FlagThreshold: frame indices of the later sample when the values come
	// from a Tracker, positions in the value list otherwise.
	FlaggedFrames []int `json:"flagged_frames" yaml:"flagged_frames"`
}

// Fields returns the numeric fields of the report.
func (r Report) Fields() map[string]float64 {
	return map[string]float64{
		"mean_wobble":      r.MeanWobble,
		"wobble_std":       r.WobbleStd,
		"distortion_score": r.DistortionScore,
		"pair_count":       float64(r.PairCount),
		"flagged_count":    float64(len(r.FlaggedFrames)),
	}
}

// Value reduces one block grid to its wobble value,
// MagnitudeWeight·var(magnitude) + DirectionWeight·circvar(direction).
//
// Direction variance is the mean squared angular deviation from the
// circular mean, with deviations wrapped into (−π, π], so directions on
// either side of ±π count as close. Blocks slower than StillEpsilon add to
// the magnitude term only.
func Value(grid *flow.Grid, cfg Config) (float64, error) {
	if grid == nil || grid.Rows < 1 || grid.Cols < 1 || grid.Rows*grid.Cols < 2 {
		rows, cols := 0, 0
		if grid != nil {
			rows, cols = grid.Rows, grid.Cols
		}
		return 0, qaerr.InvalidConfiguration("wobble.Value", "grid", [2]int{rows, cols},
			"a single block has no spatial variance")
	}

	mags := make([]float64, len(grid.Blocks))
	var angles []float64
	for i, v := range grid.Blocks {
		mags[i] = v.Magnitude()
		if mags[i] >= cfg.StillEpsilon && mags[i] > 0 {
			angles = append(angles, v.Angle())
		}
	}

	_, magVar := stat.PopMeanVariance(mags, nil)
	return cfg.MagnitudeWeight*magVar + cfg.DirectionWeight*circularVariance(angles), nil
}

// circularVariance returns the mean squared wrapped deviation from the
// circular mean. Fewer than two angles have no spread.
func circularVariance(angles []float64) float64 {
	if len(angles) < 2 {
		return 0
	}
	mean := stat.CircularMean(angles, nil)
	sum := 0.0
	for _, a := range angles {
		d := wrapAngle(a - mean)
		sum += d * d
	}
	return sum / float64(len(angles))
}

// wrapAngle maps an angle into (−π, π].
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Summarize aggregates per-pair wobble values into a report. Flagged pairs
// are reported by their position in values.
func Summarize(values []float64, cfg Config) (*Report, error) {
	return summarize(values, nil, cfg)
}

// summarize flags pairs by indices[i], or by i when indices is nil.
func summarize(values []float64, indices []int, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, qaerr.InsufficientData("wobble.Summarize", 0, 1)
	}
	for i, v := range values {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, qaerr.InvalidInput("wobble.Summarize", "wobble", v,
				"wobble values must be finite and non-negative").WithIndex(i)
		}
	}

	var flagged []int
	for i, v := range values {
		if v <= cfg.FlagThreshold {
			continue
		}
		if indices != nil {
			flagged = append(flagged, indices[i])
		} else {
			flagged = append(flagged, i)
		}
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	r := &Report{
		MeanWobble:      mean,
		WobbleStd:       std,
		DistortionScore: math.Min(100, mean*cfg.Scale),
		PairCount:       len(values),
		FlaggedFrames:   flagged,
	}

	logrus.WithFields(logrus.Fields{
		"function":         "Summarize",
		"pairs":            len(values),
		"mean_wobble":      mean,
		"distortion_score": r.DistortionScore,
		"flagged_frames":   len(flagged),
	}).Debug("Wobble analysis completed")

	return r, nil
}

// Analyze computes the wobble value of every grid and summarizes them.
// Grids must have GridSize blocks per side.
func Analyze(grids []*flow.Grid, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(grids) == 0 {
		return nil, qaerr.InsufficientData("wobble.Analyze", 0, 1)
	}

	values := make([]float64, len(grids))
	for i, g := range grids {
		if g != nil && (g.Rows != cfg.GridSize || g.Cols != cfg.GridSize) {
			return nil, qaerr.InvalidConfiguration("wobble.Analyze", "grid", [2]int{g.Rows, g.Cols},
				"grid does not match the configured grid size").WithIndex(i)
		}
		v, err := Value(g, cfg)
		if err != nil {
			var qe *qaerr.Error
			if errors.As(err, &qe) {
				return nil, qe.WithIndex(i)
			}
			return nil, err
		}
		values[i] = v
	}
	return Summarize(values, cfg)
}

// Tracker turns consecutive flow fields into wobble values.
type Tracker struct {
	cfg     Config
	values  []float64
	indices []int
}

// NewTracker creates a tracker after validating cfg.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{cfg: cfg}, nil
}

// Observe reduces field to a GridSize×GridSize grid and records its value
// under index, the frame index of the later sample of the pair.
func (t *Tracker) Observe(index int, field *flow.Field) error {
	grid, err := field.Grid(t.cfg.GridSize, t.cfg.GridSize)
	if err != nil {
		return err
	}
	v, err := Value(grid, t.cfg)
	if err != nil {
		return err
	}
	t.values = append(t.values, v)
	t.indices = append(t.indices, index)
	return nil
}

// Values returns a copy of the recorded wobble values.
func (t *Tracker) Values() []float64 {
	return append([]float64(nil), t.values...)
}

// Report summarizes the recorded values.
func (t *Tracker) Report() (*Report, error) {
	return summarize(t.values, t.indices, t.cfg)
}
