package models

import "time"

// QualityScore is one judge's verdict on one metric.
type QualityScore struct {
	Score       float64  `json:"score"`      // 0..1
	Confidence  float64  `json:"confidence"` // 0..1
	Reasoning   string   `json:"reasoning,omitempty"`
	Evidence    []string `json:"evidence,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// FallbackConfidence is the confidence assigned to scores produced when a
// judge backend failed or returned an unparseable response. Results at or
// below this confidence are never cached.
const FallbackConfidence = 0.1

// FallbackScore builds the neutral score used when a judge cannot assess.
// The 0.5 value deliberately preserves signal; the low confidence lets
// downstream aggregation discount it.
func FallbackScore(reason string) QualityScore {
	return QualityScore{
		Score:       0.5,
		Confidence:  FallbackConfidence,
		Reasoning:   reason,
		Suggestions: []string{"Retry assessment"},
	}
}

// QualityAssessmentRequest asks the judge service for one assessment.
type QualityAssessmentRequest struct {
	InputPrompt string         `json:"input_prompt"`
	AIOutput    string         `json:"ai_output"`
	ContextData map[string]any `json:"context_data,omitempty"`

	Metrics  []QualityMetric `json:"metrics,omitempty"`
	Strategy JudgeStrategy   `json:"strategy,omitempty"`

	// Weights override the default metric weighting for overall_score.
	Weights map[QualityMetric]float64 `json:"weights,omitempty"`
}

// JudgeVerdict is one judge's full verdict for one metric, preserved under
// MULTI_JUDGE so individual scores survive aggregation.
type JudgeVerdict struct {
	Judge  string        `json:"judge"`
	Model  string        `json:"model"`
	Metric QualityMetric `json:"metric"`
	QualityScore
}

// QualityAssessmentResult is the outcome of one assessment. Every requested
// metric has an entry in Scores, with a fallback value when all judges
// failed it.
type QualityAssessmentResult struct {
	AssessmentID string `json:"assessment_id"`

	Strategy JudgeStrategy `json:"strategy"`
	Models   []string      `json:"models,omitempty"`

	Scores map[QualityMetric]QualityScore `json:"scores"`

	// IndividualVerdicts preserves per-judge scores under multi-judge
	// strategies; empty for SINGLE_JUDGE.
	IndividualVerdicts []JudgeVerdict `json:"individual_verdicts,omitempty"`

	OverallScore      float64 `json:"overall_score"`      // weighted aggregate
	OverallConfidence float64 `json:"overall_confidence"` // mean of confidences

	CacheHit   bool      `json:"cache_hit"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// MetricScores flattens the per-metric scores for TestResult.QualityScores.
func (r *QualityAssessmentResult) MetricScores() map[QualityMetric]float64 {
	out := make(map[QualityMetric]float64, len(r.Scores))
	for m, s := range r.Scores {
		out[m] = s.Score
	}
	return out
}

// ComparisonRequest asks the judge service to score multiple candidate
// outputs for the same prompt independently.
type ComparisonRequest struct {
	InputPrompt string          `json:"input_prompt"`
	Outputs     []string        `json:"outputs"`
	Metrics     []QualityMetric `json:"metrics,omitempty"`
	ContextData map[string]any  `json:"context_data,omitempty"`
}

// ComparisonEntry is one candidate's aggregate under COMPARATIVE scoring.
type ComparisonEntry struct {
	Index        int                      `json:"index"`
	OverallScore float64                  `json:"overall_score"`
	Result       *QualityAssessmentResult `json:"result,omitempty"`
}

// ComparisonResult ranks candidate outputs by overall score. Best is the
// index of the highest-scoring output.
type ComparisonResult struct {
	Entries []ComparisonEntry `json:"entries"`
	Best    int               `json:"best"`
}
