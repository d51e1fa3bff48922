package motionqa

import (
	"errors"
	"testing"

	"github.com/opd-ai/motionqa/continuity"
	"github.com/opd-ai/motionqa/similarity"
	"github.com/opd-ai/motionqa/timing"
	"github.com/opd-ai/motionqa/wobble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeWeightsSubScores(t *testing.T) {
	r := newReport("run", 30)
	r.Timing = &timing.Report{JitterPercentage: 10}
	r.Drops = []timing.Drop{{Index: 3}, {Index: 9}}
	r.Duplicates = &similarity.Report{DuplicateRatio: 0.05, NearDuplicateRatio: 0.05}
	r.Continuity = &continuity.Report{ContinuityScore: 90}
	r.Wobble = &wobble.Report{DistortionScore: 30}

	s := Summarize(r, DefaultQualityThresholds())
	require.True(t, s.Available)
	assert.InDelta(t, 86.0, *s.Timing, 1e-9)
	assert.InDelta(t, 80.0, *s.Duplicate, 1e-9)
	assert.InDelta(t, 90.0, *s.Continuity, 1e-9)
	assert.InDelta(t, 70.0, *s.Wobble, 1e-9)
	assert.InDelta(t, 81.2, s.Overall, 1e-9)
	assert.Equal(t, QualityGood, s.Level)
}

func TestSummarizeClampsSubScores(t *testing.T) {
	r := newReport("run", 30)
	r.Timing = &timing.Report{JitterPercentage: 80}
	r.Drops = make([]timing.Drop, 30)

	s := Summarize(r, DefaultQualityThresholds())
	assert.Equal(t, 0.0, *s.Timing)
	assert.Equal(t, 0.0, s.Overall)
	assert.Equal(t, QualityUnacceptable, s.Level)
}

func TestSummarizeIgnoresFailedDrops(t *testing.T) {
	r := newReport("run", 30)
	r.Timing = &timing.Report{}
	r.Drops = make([]timing.Drop, 5)
	r.fail(AnalyzerDrops, errors.New("bad ratio"))

	s := Summarize(r, DefaultQualityThresholds())
	assert.Equal(t, 100.0, *s.Timing)
}

func TestSummarizeWithoutScores(t *testing.T) {
	s := Summarize(newReport("run", 30), DefaultQualityThresholds())
	assert.False(t, s.Available)
	assert.Equal(t, 0.0, s.Overall)
	assert.Empty(t, s.Fields())
}

func TestReportFailKeepsFirstError(t *testing.T) {
	r := newReport("run", 30)
	first := errors.New("first")
	r.fail(AnalyzerWobble, first)
	r.fail(AnalyzerWobble, errors.New("second"))
	assert.Equal(t, first, r.Failures[AnalyzerWobble])
	assert.True(t, r.Failed(AnalyzerWobble))
	assert.False(t, r.Failed(AnalyzerTiming))
}

func TestQualityLevels(t *testing.T) {
	th := DefaultQualityThresholds()
	tests := []struct {
		score float64
		want  QualityLevel
	}{
		{95, QualityExcellent},
		{90, QualityExcellent},
		{85, QualityGood},
		{60, QualityFair},
		{45, QualityPoor},
		{10, QualityUnacceptable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Level(tt.score), "score %v", tt.score)
	}

	assert.Equal(t, "Fair", QualityFair.String())
	assert.Equal(t, "Unknown(9)", QualityLevel(9).String())

	text, err := QualityPoor.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Poor", string(text))
}
