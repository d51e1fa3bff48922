package motionqa

import (
	"sort"
	"time"

	"github.com/opd-ai/motionqa/continuity"
	"github.com/opd-ai/motionqa/dynamics"
	"github.com/opd-ai/motionqa/similarity"
	"github.com/opd-ai/motionqa/timing"
	"github.com/opd-ai/motionqa/wobble"
)

// Analyzer names used as keys of Report.Failures and field prefixes.
const (
	AnalyzerTiming      = "timing"
	AnalyzerFPSDynamics = "fps_dynamics"
	AnalyzerDrops       = "drops"
	AnalyzerSimilarity  = "similarity"
	AnalyzerContinuity  = "continuity"
	AnalyzerWobble      = "wobble"
	AnalyzerDynamics    = "dynamics"
)

// Report is the combined result of one analysis run.
type Report struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`

	DeclaredFPS    float64 `json:"declared_fps" yaml:"declared_fps"`
	FrameCount     int     `json:"frame_count" yaml:"frame_count"`         // frames read from the source
	AnalyzedFrames int     `json:"analyzed_frames" yaml:"analyzed_frames"` // frames kept after sampling

	Timing      *timing.Report      `json:"timing,omitempty" yaml:"timing,omitempty"`
	FPSDynamics *timing.FPSDynamics `json:"fps_dynamics,omitempty" yaml:"fps_dynamics,omitempty"`
	Drops       []timing.Drop       `json:"drops,omitempty" yaml:"drops,omitempty"`
	Duplicates  *similarity.Report  `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	Continuity  *continuity.Report  `json:"continuity,omitempty" yaml:"continuity,omitempty"`
	Wobble      *wobble.Report      `json:"wobble,omitempty" yaml:"wobble,omitempty"`
	Dynamics    *dynamics.Report    `json:"dynamics,omitempty" yaml:"dynamics,omitempty"`

	// MotionSeries holds the mean flow magnitude of every analyzed pair.
	MotionSeries []float64 `json:"motion_series,omitempty" yaml:"motion_series,omitempty"`
	// MotionFrames holds the index of the later frame of each pair.
	MotionFrames []int `json:"motion_frames,omitempty" yaml:"motion_frames,omitempty"`

	Summary Summary `json:"summary" yaml:"summary"`

	// Failures maps analyzer names to the error that kept them from
	// producing a report.
	Failures map[string]error `json:"-" yaml:"-"`
}

func newReport(runID string, fps float64) *Report {
	return &Report{
		RunID:       runID,
		StartedAt:   time.Now(),
		DeclaredFPS: fps,
		Failures:    make(map[string]error),
	}
}

func (r *Report) fail(name string, err error) {
	if _, exists := r.Failures[name]; !exists {
		r.Failures[name] = err
	}
}

// Failed reports whether the named analyzer failed.
func (r *Report) Failed(name string) bool {
	_, failed := r.Failures[name]
	return failed
}

// FailureMessages returns the failure texts keyed by analyzer name, for
// serializers that cannot carry error values.
func (r *Report) FailureMessages() map[string]string {
	out := make(map[string]string, len(r.Failures))
	for name, err := range r.Failures {
		out[name] = err.Error()
	}
	return out
}

// FailedAnalyzers returns the names of failed analyzers in sorted order.
func (r *Report) FailedAnalyzers() []string {
	names := make([]string, 0, len(r.Failures))
	for name := range r.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DiscontinuityFrames maps the continuity discontinuities onto the frame
// that ends each jump.
func (r *Report) DiscontinuityFrames() []int {
	if r.Continuity == nil {
		return nil
	}
	var out []int
	for _, pos := range r.Continuity.Discontinuities {
		if pos >= 0 && pos < len(r.MotionFrames) {
			out = append(out, r.MotionFrames[pos])
		}
	}
	return out
}

type fielder interface {
	Fields() map[string]float64
}

// Fields flattens every available report into "analyzer.field" keys.
// Analyzers without a report contribute nothing.
func (r *Report) Fields() map[string]float64 {
	out := map[string]float64{
		"frame_count":     float64(r.FrameCount),
		"analyzed_frames": float64(r.AnalyzedFrames),
		"declared_fps":    r.DeclaredFPS,
	}
	add := func(prefix string, f fielder) {
		for k, v := range f.Fields() {
			out[prefix+"."+k] = v
		}
	}

	if r.Timing != nil {
		add(AnalyzerTiming, r.Timing)
	}
	if r.FPSDynamics != nil {
		add(AnalyzerFPSDynamics, r.FPSDynamics)
	}
	if !r.Failed(AnalyzerDrops) && r.Timing != nil {
		out[AnalyzerDrops+".count"] = float64(len(r.Drops))
	}
	if r.Duplicates != nil {
		add(AnalyzerSimilarity, r.Duplicates)
	}
	if r.Continuity != nil {
		add(AnalyzerContinuity, r.Continuity)
	}
	if r.Wobble != nil {
		add(AnalyzerWobble, r.Wobble)
	}
	if r.Dynamics != nil {
		add(AnalyzerDynamics, r.Dynamics)
	}
	add("summary", r.Summary)
	return out
}
