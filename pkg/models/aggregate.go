package models

import "time"

// ReportRequest bounds one aggregation run.
type ReportRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	TestTypes []TestType `json:"test_types,omitempty"`
	Services  []string   `json:"services,omitempty"`

	IncludeTrends   bool `json:"include_trends"`
	IncludeInsights bool `json:"include_insights"`
}

// TestSummary is the aggregate outcome of a result set. An empty window
// produces the zero value, never an error.
type TestSummary struct {
	TotalTests    int     `json:"total_tests"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	PassRate      float64 `json:"pass_rate"`
	AvgScore      float64 `json:"avg_score"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// MetricStats summarises a numeric series.
type MetricStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P95   float64 `json:"p95"`
}

// PerformanceSummary aggregates the performance metrics seen across the
// window, keyed by metric name.
type PerformanceSummary struct {
	AvgDurationMS float64                `json:"avg_duration_ms"`
	P95DurationMS float64                `json:"p95_duration_ms"`
	Metrics       map[string]MetricStats `json:"metrics,omitempty"`
}

// TrendAnalysis describes one metric's movement across daily means.
type TrendAnalysis struct {
	Metric      string         `json:"metric"`
	Direction   TrendDirection `json:"direction"`
	Slope       float64        `json:"slope"`
	Correlation float64        `json:"correlation"`
	Confidence  float64        `json:"confidence"`
	DataPoints  int            `json:"data_points"`

	// CoefficientOfVariation above 0.5 marks the trend VOLATILE regardless
	// of slope.
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
}

// Anomaly is one sample deviating more than two standard deviations from
// the series mean. Anomalies feed insights, never alerts directly.
type Anomaly struct {
	Metric      string    `json:"metric"`
	ExecutionID string    `json:"execution_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
	Deviation   float64   `json:"deviation"`
}

// Insight type tags produced by the aggregator's detectors.
const (
	InsightRegression  = "regression"
	InsightImprovement = "improvement"
	InsightPattern     = "pattern"
	InsightComparative = "comparative"
	InsightAnomaly     = "anomaly"
)

// QualityInsight is a derived observation over the result window.
type QualityInsight struct {
	Type            string         `json:"type"`
	Confidence      float64        `json:"confidence"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	AffectedMetrics []string       `json:"affected_metrics,omitempty"`
	Evidence        map[string]any `json:"evidence,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Priority        AlertPriority  `json:"priority"`
}

// FailurePattern is one of the top failing scenarios in the window.
type FailurePattern struct {
	ScenarioID   string    `json:"scenario_id"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
	SampleErrors []string  `json:"sample_errors,omitempty"`
}

// PerformerEntry is one of the top performing scenarios, ranked by
// avg_score / max(avg_duration_s, 0.1).
type PerformerEntry struct {
	ScenarioID    string  `json:"scenario_id"`
	AvgScore      float64 `json:"avg_score"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	Efficiency    float64 `json:"efficiency"`
}

// AggregatedResults is one generated report. JSON is the canonical export
// format; Markdown and CSV renderings are deterministic given equal reports.
type AggregatedResults struct {
	ReportID    string    `json:"report_id"`
	GeneratedAt time.Time `json:"generated_at"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`

	Summary    TestSummary              `json:"summary"`
	ByTestType map[TestType]TestSummary `json:"by_test_type,omitempty"`
	ByService  map[string]TestSummary   `json:"by_service,omitempty"`

	Trends      []TrendAnalysis     `json:"trends,omitempty"`
	Insights    []QualityInsight    `json:"insights,omitempty"`
	Anomalies   []Anomaly           `json:"anomalies,omitempty"`
	Performance *PerformanceSummary `json:"performance,omitempty"`

	TopFailures   []FailurePattern `json:"top_failures,omitempty"`
	TopPerformers []PerformerEntry `json:"top_performers,omitempty"`

	Recommendations  []string `json:"recommendations,omitempty"`
	DataCompleteness float64  `json:"data_completeness"` // 0..1
	ResultCount      int      `json:"result_count"`
}

// CollectRequest forces a pull-collection from executors over a window.
type CollectRequest struct {
	Since time.Time `json:"since,omitempty"`
}

// CollectResponse reports how many results each source contributed.
type CollectResponse struct {
	Collected int            `json:"collected"`
	BySource  map[string]int `json:"by_source,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
}
