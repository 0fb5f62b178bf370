package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultHistory_BoundedEviction(t *testing.T) {
	h := NewResultHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(&TestResult{ScenarioID: fmt.Sprintf("scn-%d", i)})
	}
	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "scn-2", snap[0].ScenarioID, "oldest entries evicted first")
	assert.Equal(t, "scn-4", snap[2].ScenarioID)
}

func TestResultHistory_Since(t *testing.T) {
	h := NewResultHistory(10)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		h.Add(&TestResult{ScenarioID: fmt.Sprintf("scn-%d", i), CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	assert.Len(t, h.Since(base.Add(2*time.Hour)), 2)
	assert.Len(t, h.Since(time.Time{}), 4)
}

func TestResultHistory_SnapshotIsCopy(t *testing.T) {
	h := NewResultHistory(10)
	h.Add(&TestResult{ScenarioID: "scn-0"})
	snap := h.Snapshot()
	snap[0] = &TestResult{ScenarioID: "mutated"}
	assert.Equal(t, "scn-0", h.Snapshot()[0].ScenarioID)
}

func TestFallbackScore(t *testing.T) {
	s := FallbackScore("backend unreachable")
	assert.InDelta(t, 0.5, s.Score, 1e-9)
	assert.InDelta(t, FallbackConfidence, s.Confidence, 1e-9)
	assert.Contains(t, s.Suggestions, "Retry assessment")
}

func TestQualityAssessmentResult_MetricScores(t *testing.T) {
	r := &QualityAssessmentResult{Scores: map[QualityMetric]QualityScore{
		MetricSafety:   {Score: 0.9, Confidence: 0.8},
		MetricAccuracy: {Score: 0.7, Confidence: 0.6},
	}}
	flat := r.MetricScores()
	assert.InDelta(t, 0.9, flat[MetricSafety], 1e-9)
	assert.InDelta(t, 0.7, flat[MetricAccuracy], 1e-9)
	assert.Len(t, flat, 2)
}
