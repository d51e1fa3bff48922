package motionqa

import (
	"errors"

	"github.com/opd-ai/motionqa/config"
	"github.com/opd-ai/motionqa/continuity"
	"github.com/opd-ai/motionqa/dynamics"
	"github.com/opd-ai/motionqa/flow"
	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/opd-ai/motionqa/similarity"
	"github.com/opd-ai/motionqa/timing"
	"github.com/opd-ai/motionqa/wobble"
	"github.com/sirupsen/logrus"
)

// stage is one analyzer fed by a pass. observe receives the newest sample
// and the one before it (nil for the first sample of the pass).
type stage interface {
	analyzers() []string
	observe(cur, prev *frame.Sample) error
	finish(r *Report)
}

// runner disables a stage after its first error and remembers the error
// for every analyzer the stage feeds.
type runner struct {
	stage stage
	err   error
}

func (r *runner) observe(cur, prev *frame.Sample) {
	if r.err != nil {
		return
	}
	if err := r.stage.observe(cur, prev); err != nil {
		r.err = withIndex(err, cur.Index)
		logrus.WithFields(logrus.Fields{
			"function":    "runner.observe",
			"analyzers":   r.stage.analyzers(),
			"frame_index": cur.Index,
			"error":       r.err.Error(),
		}).Warn("Analyzer disabled for the rest of the run")
	}
}

func (r *runner) finish(rep *Report) {
	if r.err != nil {
		for _, name := range r.stage.analyzers() {
			rep.fail(name, r.err)
		}
		return
	}
	r.stage.finish(rep)
}

// withIndex ties an analyzer error that carries no frame position to index.
func withIndex(err error, index int) error {
	var qe *qaerr.Error
	if errors.As(err, &qe) && qe.Index == qaerr.NoIndex {
		return qe.WithIndex(index)
	}
	return err
}

// timingStage collects presentation timestamps of every frame.
// The declared rate is taken from the report at finish time.
type timingStage struct {
	dropRatio  float64
	timestamps []float64
}

func newTimingStage(cfg *config.Config) *timingStage {
	return &timingStage{dropRatio: cfg.Timing.DropRatio}
}

func (s *timingStage) analyzers() []string {
	return []string{AnalyzerTiming, AnalyzerFPSDynamics, AnalyzerDrops}
}

func (s *timingStage) observe(cur, _ *frame.Sample) error {
	s.timestamps = append(s.timestamps, cur.Timestamp)
	return nil
}

func (s *timingStage) finish(r *Report) {
	if rep, err := timing.Analyze(s.timestamps, r.DeclaredFPS); err != nil {
		r.fail(AnalyzerTiming, err)
	} else {
		r.Timing = rep
	}
	if dyn, err := timing.Dynamics(s.timestamps, r.DeclaredFPS); err != nil {
		r.fail(AnalyzerFPSDynamics, err)
	} else {
		r.FPSDynamics = dyn
	}
	if drops, err := timing.Drops(s.timestamps, r.DeclaredFPS, s.dropRatio); err != nil {
		r.fail(AnalyzerDrops, err)
	} else {
		r.Drops = drops
	}
}

// similarityStage feeds the duplicate detector.
type similarityStage struct {
	detector *similarity.Detector
}

func newSimilarityStage(cfg *config.Config) (*similarityStage, error) {
	d, err := similarity.NewDetector(cfg.Similarity)
	if err != nil {
		return nil, err
	}
	return &similarityStage{detector: d}, nil
}

func (s *similarityStage) analyzers() []string {
	return []string{AnalyzerSimilarity}
}

func (s *similarityStage) observe(cur, _ *frame.Sample) error {
	return s.detector.Observe(cur)
}

func (s *similarityStage) finish(r *Report) {
	rep, err := s.detector.Report()
	if err != nil {
		r.fail(AnalyzerSimilarity, err)
		return
	}
	r.Duplicates = rep
}

// motionStage estimates flow per pair and derives the motion series and
// wobble values from each field. A wobble failure, typically a field too
// coarse for the configured grid, leaves the motion series running.
type motionStage struct {
	est        flow.Estimator
	continuity continuity.Config
	wobble     *wobble.Tracker
	wobbleErr  error
	series     []float64
	frames     []int
}

func newMotionStage(cfg *config.Config, est flow.Estimator) (*motionStage, error) {
	tracker, err := wobble.NewTracker(cfg.Wobble)
	if err != nil {
		return nil, err
	}
	return &motionStage{est: est, continuity: cfg.Continuity, wobble: tracker}, nil
}

func (s *motionStage) analyzers() []string {
	return []string{AnalyzerContinuity, AnalyzerWobble}
}

func (s *motionStage) observe(cur, prev *frame.Sample) error {
	if prev == nil {
		return nil
	}
	field, err := s.est.Estimate(prev.Frame, cur.Frame)
	if err != nil {
		return err
	}
	s.series = append(s.series, field.MeanMagnitude())
	s.frames = append(s.frames, cur.Index)

	if s.wobbleErr == nil {
		if err := s.wobble.Observe(cur.Index, field); err != nil {
			s.wobbleErr = withIndex(err, cur.Index)
			logrus.WithFields(logrus.Fields{
				"function":    "motionStage.observe",
				"frame_index": cur.Index,
				"field_cols":  field.Cols,
				"field_rows":  field.Rows,
				"error":       s.wobbleErr.Error(),
			}).Warn("Wobble scoring disabled")
		}
	}
	return nil
}

func (s *motionStage) finish(r *Report) {
	r.MotionSeries = append([]float64(nil), s.series...)
	r.MotionFrames = append([]int(nil), s.frames...)

	if rep, err := continuity.Analyze(s.series, s.continuity); err != nil {
		r.fail(AnalyzerContinuity, err)
	} else {
		r.Continuity = rep
	}

	if s.wobbleErr != nil {
		r.fail(AnalyzerWobble, s.wobbleErr)
		return
	}
	if rep, err := s.wobble.Report(); err != nil {
		r.fail(AnalyzerWobble, err)
	} else {
		r.Wobble = rep
	}
}

// dynamicsStage feeds the per-second brightness and difference tracker.
type dynamicsStage struct {
	tracker *dynamics.Tracker
}

func newDynamicsStage() *dynamicsStage {
	return &dynamicsStage{tracker: dynamics.NewTracker()}
}

func (s *dynamicsStage) analyzers() []string {
	return []string{AnalyzerDynamics}
}

func (s *dynamicsStage) observe(cur, _ *frame.Sample) error {
	return s.tracker.Observe(cur)
}

func (s *dynamicsStage) finish(r *Report) {
	rep, err := s.tracker.Report()
	if err != nil {
		r.fail(AnalyzerDynamics, err)
		return
	}
	r.Dynamics = rep
}
