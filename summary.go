package motionqa

import (
	"fmt"
	"math"
)

// QualityLevel grades the overall motion quality score.
type QualityLevel int

const (
	// QualityExcellent indicates no visible temporal defects
	QualityExcellent QualityLevel = iota
	// QualityGood indicates minor defects
	QualityGood
	// QualityFair indicates noticeable defects
	QualityFair
	// QualityPoor indicates significant defects
	QualityPoor
	// QualityUnacceptable indicates severe defects
	QualityUnacceptable
)

// String returns a human-readable quality level name.
func (q QualityLevel) String() string {
	switch q {
	case QualityExcellent:
		return "Excellent"
	case QualityGood:
		return "Good"
	case QualityFair:
		return "Fair"
	case QualityPoor:
		return "Poor"
	case QualityUnacceptable:
		return "Unacceptable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(q))
	}
}

// MarshalText encodes the level by name.
func (q QualityLevel) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// QualityThresholds are the lowest overall scores of each level.
type QualityThresholds struct {
	Excellent float64
	Good      float64
	Fair      float64
	Poor      float64
}

// DefaultQualityThresholds returns the default grading thresholds.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		Excellent: 90,
		Good:      80,
		Fair:      60,
		Poor:      40,
	}
}

// Level grades score.
func (t QualityThresholds) Level(score float64) QualityLevel {
	switch {
	case score >= t.Excellent:
		return QualityExcellent
	case score >= t.Good:
		return QualityGood
	case score >= t.Fair:
		return QualityFair
	case score >= t.Poor:
		return QualityPoor
	default:
		return QualityUnacceptable
	}
}

// Sub-score weights of the overall score.
const (
	timingWeight     = 0.20
	duplicateWeight  = 0.30
	continuityWeight = 0.25
	wobbleWeight     = 0.25
)

// Summary is the overall quality score of a run. A nil sub-score means
// the underlying analyzer failed; the overall score is then the weighted
// mean of the remaining sub-scores.
type Summary struct {
	Timing     *float64     `json:"timing_score,omitempty" yaml:"timing_score,omitempty"`
	Duplicate  *float64     `json:"duplicate_score,omitempty" yaml:"duplicate_score,omitempty"`
	Continuity *float64     `json:"continuity_score,omitempty" yaml:"continuity_score,omitempty"`
	Wobble     *float64     `json:"wobble_score,omitempty" yaml:"wobble_score,omitempty"`
	Overall    float64      `json:"overall" yaml:"overall"`
	Level      QualityLevel `json:"level" yaml:"level"`
	// Available is false when no sub-score could be computed.
	Available bool `json:"available" yaml:"available"`
}

// Fields returns the numeric fields of the summary.
func (s Summary) Fields() map[string]float64 {
	out := map[string]float64{}
	if !s.Available {
		return out
	}
	out["overall"] = s.Overall
	for name, v := range map[string]*float64{
		"timing_score":     s.Timing,
		"duplicate_score":  s.Duplicate,
		"continuity_score": s.Continuity,
		"wobble_score":     s.Wobble,
	} {
		if v != nil {
			out[name] = *v
		}
	}
	return out
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// Summarize derives the overall score from the analyzer reports held by r.
func Summarize(r *Report, thresholds QualityThresholds) Summary {
	var s Summary
	if r.Timing != nil {
		drops := 0
		if !r.Failed(AnalyzerDrops) {
			drops = len(r.Drops)
		}
		v := clampScore(100 - math.Min(50, r.Timing.JitterPercentage) - 2*float64(drops))
		s.Timing = &v
	}
	if r.Duplicates != nil {
		v := clampScore(100 - 200*(r.Duplicates.DuplicateRatio+r.Duplicates.NearDuplicateRatio))
		s.Duplicate = &v
	}
	if r.Continuity != nil {
		v := clampScore(r.Continuity.ContinuityScore)
		s.Continuity = &v
	}
	if r.Wobble != nil {
		v := clampScore(100 - r.Wobble.DistortionScore)
		s.Wobble = &v
	}

	var total, weights float64
	for _, part := range []struct {
		score  *float64
		weight float64
	}{
		{s.Timing, timingWeight},
		{s.Duplicate, duplicateWeight},
		{s.Continuity, continuityWeight},
		{s.Wobble, wobbleWeight},
	} {
		if part.score == nil {
			continue
		}
		total += *part.score * part.weight
		weights += part.weight
	}
	if weights == 0 {
		s.Level = QualityUnacceptable
		return s
	}

	s.Available = true
	s.Overall = total / weights
	s.Level = thresholds.Level(s.Overall)
	return s
}
