// Package similarity classifies consecutive frames as exact duplicates,
// near duplicates or distinct frames.
//
// A pair is first compared by mean absolute luma difference. Pairs that are
// not exact duplicates are then compared by structural similarity. Every
// pair falls into exactly one class, so the exact and near ratios never
// overlap and their sum is at most 1.
package similarity

import (
	"context"
	"fmt"
	"math"

	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
)

// Config holds the duplicate detection thresholds.
type Config struct {
	// DuplicateThreshold is the pixel similarity at or above which a pair
	// is an exact duplicate
	DuplicateThreshold float64 `yaml:"duplicate_threshold" json:"duplicate_threshold"`
	// SSIMThreshold is the structural similarity at or above which a
	// non-exact pair is a near duplicate
	SSIMThreshold float64 `yaml:"ssim_threshold" json:"ssim_threshold"`
	// CompareWidth and CompareHeight set the luma size frames are reduced
	// to before comparison. Zero compares at full size.
	CompareWidth  int `yaml:"compare_width" json:"compare_width"`
	CompareHeight int `yaml:"compare_height" json:"compare_height"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		DuplicateThreshold: 0.98,
		SSIMThreshold:      0.95,
		CompareWidth:       160,
		CompareHeight:      120,
	}
}

// Validate checks that both thresholds lie in (0,1].
func (c Config) Validate() error {
	if !inUnitInterval(c.DuplicateThreshold) {
		return qaerr.InvalidInput("similarity.Config", "duplicate_threshold", c.DuplicateThreshold, "must lie in (0,1]")
	}
	if !inUnitInterval(c.SSIMThreshold) {
		return qaerr.InvalidInput("similarity.Config", "ssim_threshold", c.SSIMThreshold, "must lie in (0,1]")
	}
	if c.CompareWidth < 0 || c.CompareHeight < 0 {
		return qaerr.InvalidInput("similarity.Config", "compare_size",
			fmt.Sprintf("%dx%d", c.CompareWidth, c.CompareHeight), "must not be negative")
	}
	if (c.CompareWidth == 0) != (c.CompareHeight == 0) {
		return qaerr.InvalidConfiguration("similarity.Config", "compare_size",
			fmt.Sprintf("%dx%d", c.CompareWidth, c.CompareHeight), "width and height must both be set or both be zero")
	}
	return nil
}

func inUnitInterval(v float64) bool {
	return v > 0 && v <= 1 && !math.IsNaN(v)
}

// Class is the classification of one consecutive frame pair.
type Class int

const (
	// Distinct frames differ visibly.
	Distinct Class = iota
	// Exact duplicates are pixel-identical within the duplicate threshold.
	Exact
	// Near duplicates are structurally similar but not exact.
	Near
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case Distinct:
		return "distinct"
	case Exact:
		return "exact"
	case Near:
		return "near"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Scores are the similarity measures computed for a pair. SSIM is only
// computed for pairs that are not exact duplicates.
type Scores struct {
	Pixel   float64
	SSIM    float64
	HasSSIM bool
}

// Report holds duplicate statistics over a sequence.
type Report struct {
	DuplicateRatio        float64 `json:"duplicate_ratio" yaml:"duplicate_ratio"`
	NearDuplicateRatio    float64 `json:"near_duplicate_ratio" yaml:"near_duplicate_ratio"`
	DuplicateFrameIndices []int   `json:"duplicate_frame_indices" yaml:"duplicate_frame_indices"`
	ComparedPairs         int     `json:"compared_pairs" yaml:"compared_pairs"`
	DuplicateCount        int     `json:"duplicate_count" yaml:"duplicate_count"`
	NearDuplicateCount    int     `json:"near_duplicate_count" yaml:"near_duplicate_count"`
}

// Fields returns the numeric fields of the report.
func (r Report) Fields() map[string]float64 {
	return map[string]float64{
		"duplicate_ratio":      r.DuplicateRatio,
		"near_duplicate_ratio": r.NearDuplicateRatio,
		"compared_pairs":       float64(r.ComparedPairs),
		"duplicate_count":      float64(r.DuplicateCount),
		"near_duplicate_count": float64(r.NearDuplicateCount),
	}
}

// Detector accumulates duplicate statistics one sample at a time. It keeps
// only the reduced luma of the previous sample.
type Detector struct {
	cfg Config

	prev     *frame.VideoFrame // reduced luma of the previous sample
	prevFull *frame.VideoFrame
	frames   int

	exact   int
	near    int
	indices []int
}

// NewDetector creates a detector after validating cfg.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Classify compares two frames of identical size.
func (d *Detector) Classify(prev, cur *frame.VideoFrame) (Class, Scores, error) {
	if err := frame.CheckPair("similarity.Classify", prev, cur); err != nil {
		return Distinct, Scores{}, err
	}
	a, err := d.reduce(prev)
	if err != nil {
		return Distinct, Scores{}, err
	}
	b, err := d.reduce(cur)
	if err != nil {
		return Distinct, Scores{}, err
	}
	class, scores := d.classifyReduced(a, b)
	return class, scores, nil
}

func (d *Detector) reduce(f *frame.VideoFrame) (*frame.VideoFrame, error) {
	if d.cfg.CompareWidth == 0 {
		return f, nil
	}
	return frame.ResizeLuma(f, d.cfg.CompareWidth, d.cfg.CompareHeight)
}

func (d *Detector) classifyReduced(a, b *frame.VideoFrame) (Class, Scores) {
	scores := Scores{Pixel: PixelSimilarity(a, b)}
	if scores.Pixel >= d.cfg.DuplicateThreshold {
		return Exact, scores
	}
	scores.SSIM = GlobalSSIM(a, b)
	scores.HasSSIM = true
	if scores.SSIM >= d.cfg.SSIMThreshold {
		return Near, scores
	}
	return Distinct, scores
}

// Observe compares s with the previously observed sample and records the
// class of the pair under the index of s.
func (d *Detector) Observe(s *frame.Sample) error {
	if s == nil || s.Frame == nil {
		return qaerr.InvalidInput("similarity.Observe", "sample", nil, "sample has no frame")
	}
	if err := s.Frame.Validate(); err != nil {
		return err
	}

	if d.prevFull != nil && !d.prevFull.SameSize(s.Frame) {
		return qaerr.InvalidInput("similarity.Observe", "frame_size",
			fmt.Sprintf("%dx%d vs %dx%d", d.prevFull.Width, d.prevFull.Height, s.Frame.Width, s.Frame.Height),
			"consecutive frames differ in size").WithIndex(s.Index)
	}

	reduced, err := d.reduce(s.Frame)
	if err != nil {
		return err
	}

	if d.prev != nil {
		class, scores := d.classifyReduced(d.prev, reduced)
		switch class {
		case Exact:
			d.exact++
			d.record(s.Index)
		case Near:
			d.near++
		}

		logrus.WithFields(logrus.Fields{
			"function":    "Detector.Observe",
			"frame_index": s.Index,
			"class":       class.String(),
			"pixel":       scores.Pixel,
			"ssim":        scores.SSIM,
		}).Trace("Frame pair classified")
	}

	d.prev = reduced
	d.prevFull = s.Frame
	d.frames++
	return nil
}

// record appends index keeping the list ascending and free of repeats.
func (d *Detector) record(index int) {
	if n := len(d.indices); n > 0 && d.indices[n-1] >= index {
		return
	}
	d.indices = append(d.indices, index)
}

// Report returns the statistics for the samples observed so far.
func (d *Detector) Report() (*Report, error) {
	pairs := d.frames - 1
	if pairs < 1 {
		return nil, qaerr.InsufficientData("similarity.Report", d.frames, 2)
	}

	indices := make([]int, len(d.indices))
	copy(indices, d.indices)

	r := &Report{
		DuplicateRatio:        float64(d.exact) / float64(pairs),
		NearDuplicateRatio:    float64(d.near) / float64(pairs),
		DuplicateFrameIndices: indices,
		ComparedPairs:         pairs,
		DuplicateCount:        d.exact,
		NearDuplicateCount:    d.near,
	}

	logrus.WithFields(logrus.Fields{
		"function":             "Detector.Report",
		"compared_pairs":       pairs,
		"duplicate_ratio":      r.DuplicateRatio,
		"near_duplicate_ratio": r.NearDuplicateRatio,
	}).Debug("Duplicate analysis completed")

	return r, nil
}

// Analyze runs a detector over every sample of src.
func Analyze(ctx context.Context, src frame.Source, cfg Config) (*Report, error) {
	d, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := frame.Drain(ctx, "similarity.Analyze", src, d.Observe); err != nil {
		return nil, err
	}
	return d.Report()
}
