package models

import (
	"strings"
	"time"
)

// ErrorType classifies executor failures for the error taxonomy. Executors
// never propagate raw errors; they populate these fields instead.
type ErrorType string

const (
	ErrorTypeTimeout    ErrorType = "TIMEOUT"
	ErrorTypeConnection ErrorType = "CONNECTION"
	ErrorTypeHTTP       ErrorType = "HTTP"
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeCancelled  ErrorType = "CANCELLED"
	ErrorTypeCapacity   ErrorType = "CAPACITY"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// Evidence references artifacts persisted during an execution. Paths are
// relative to the configured evidence directory.
type Evidence struct {
	Screenshots []string `json:"screenshots,omitempty"`
	Videos      []string `json:"videos,omitempty"`
	Logs        []string `json:"logs,omitempty"`
	Traces      []string `json:"traces,omitempty"`
}

// APITestResult is the api_results bundle of a TestResult.
type APITestResult struct {
	StatusCode     int   `json:"status_code"`
	ResponseTimeMS int64 `json:"response_time_ms"`
	ResponseSize   int   `json:"response_size_bytes"`
	Attempts       int   `json:"attempts"`

	StatusValidation  bool `json:"status_validation"`
	SchemaValidation  bool `json:"schema_validation"`
	HeadersValidation bool `json:"headers_validation"`
	ContentValidation bool `json:"content_validation"`
	PerformancePassed bool `json:"performance_passed"`

	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// ActionResult records one executed UI action.
type ActionResult struct {
	Index      int    `json:"index"`
	Type       string `json:"type"`
	Selector   string `json:"selector,omitempty"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// AssertionResult records one evaluated UI assertion.
type AssertionResult struct {
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	Expected string `json:"expected_value,omitempty"`
	Actual   string `json:"actual_value,omitempty"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`
}

// VisualComparison is the outcome of a screenshot-against-baseline check.
type VisualComparison struct {
	BaselineCreated bool    `json:"baseline_created"`
	DiffRatio       float64 `json:"diff_ratio"`
	Threshold       float64 `json:"threshold"`
	Match           bool    `json:"match"`
	BaselinePath    string  `json:"baseline_path,omitempty"`
	CurrentPath     string  `json:"current_path,omitempty"`
	DiffPath        string  `json:"diff_path,omitempty"`
}

// AccessibilityViolation is one issue reported by the accessibility scan.
type AccessibilityViolation struct {
	RuleID    string   `json:"rule_id"`
	Impact    string   `json:"impact,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Selectors []string `json:"selectors,omitempty"`
}

// AccessibilityReport is the outcome of an axe-style scan.
// Score = passes / (passes + violations); 1.0 with an annotation when the
// scan engine is unavailable.
type AccessibilityReport struct {
	Violations []AccessibilityViolation `json:"violations,omitempty"`
	Passes     int                      `json:"passes"`
	Incomplete []string                 `json:"incomplete,omitempty"`
	Score      float64                  `json:"score"`
	Annotation string                   `json:"annotation,omitempty"`
}

// PerformanceCapture holds page timing and resource metrics. Values the
// engine could not observe are nil.
type PerformanceCapture struct {
	LoadTimeMS            *float64 `json:"load_time_ms,omitempty"`
	DOMContentLoadedMS    *float64 `json:"dom_content_loaded_ms,omitempty"`
	FirstContentfulMS     *float64 `json:"first_contentful_paint_ms,omitempty"`
	LargestContentfulMS   *float64 `json:"largest_contentful_paint_ms,omitempty"`
	CumulativeLayoutShift *float64 `json:"cumulative_layout_shift,omitempty"`
	FirstInputDelayMS     *float64 `json:"first_input_delay_ms,omitempty"`

	ResourceCount int   `json:"resource_count"`
	ResourceBytes int64 `json:"resource_bytes"`
	JSHeapBytes   int64 `json:"js_heap_bytes"`
}

// ViewportCheck is the responsive evaluation of one viewport preset.
type ViewportCheck struct {
	Preset   string   `json:"preset"`
	Viewport Viewport `json:"viewport"`
	Score    float64  `json:"score"`
	Issues   []string `json:"issues,omitempty"`
}

// ResponsiveReport aggregates per-viewport layout checks.
// Score is the mean of the per-viewport scores.
type ResponsiveReport struct {
	Checks []ViewportCheck `json:"checks"`
	Score  float64         `json:"score"`
}

// UITestResult is the ui_results bundle of a TestResult.
type UITestResult struct {
	ActionResults    []ActionResult    `json:"action_results,omitempty"`
	AssertionResults []AssertionResult `json:"assertion_results,omitempty"`

	Visual        *VisualComparison    `json:"visual,omitempty"`
	Accessibility *AccessibilityReport `json:"accessibility,omitempty"`
	Performance   *PerformanceCapture  `json:"performance,omitempty"`
	Responsive    *ResponsiveReport    `json:"responsive,omitempty"`

	ConsoleErrors []string `json:"console_errors,omitempty"`
}

// TestResult is the outcome record of one execution, produced exactly once
// per terminal execution. The executor's score is authoritative.
type TestResult struct {
	ExecutionID string   `json:"execution_id"`
	ScenarioID  string   `json:"scenario_id"`
	TestType    TestType `json:"test_type"`

	Passed     bool    `json:"passed"`
	Score      float64 `json:"score"` // 0..1
	DurationMS int64   `json:"duration_ms"`

	APIResults       *APITestResult           `json:"api_results,omitempty"`
	UIResults        *UITestResult            `json:"ui_results,omitempty"`
	AIQualityResults *QualityAssessmentResult `json:"ai_quality_results,omitempty"`

	QualityScores      map[QualityMetric]float64 `json:"quality_scores,omitempty"`
	PerformanceMetrics map[string]float64        `json:"performance_metrics,omitempty"`

	Evidence *Evidence `json:"evidence,omitempty"`

	ErrorType    ErrorType `json:"error_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	Recommendations []string  `json:"recommendations,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// FailureResult builds the zero-score result used when an executor cannot
// produce a real outcome. It is the only way internal errors reach callers.
func FailureResult(executionID, scenarioID string, tt TestType, et ErrorType, msg string, recommendations ...string) *TestResult {
	return &TestResult{
		ExecutionID:     executionID,
		ScenarioID:      scenarioID,
		TestType:        tt,
		Passed:          false,
		Score:           0,
		ErrorType:       et,
		ErrorMessage:    msg,
		Recommendations: recommendations,
		CreatedAt:       time.Now().UTC(),
	}
}

// ServiceFromExecutionID extracts the producing service name, the leading
// token of the execution ID before the first underscore.
func ServiceFromExecutionID(executionID string) string {
	if i := strings.Index(executionID, "_"); i > 0 {
		return executionID[:i]
	}
	return executionID
}

// LoadStats aggregates one load run. RequestsPerSecond is computed over the
// wall-clock duration of the whole run, not per-session time.
type LoadStats struct {
	ConcurrentUsers int     `json:"concurrent_users"`
	DurationSeconds float64 `json:"duration_seconds"`

	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	FailedRequests     int     `json:"failed_requests"`
	SuccessRate        float64 `json:"success_rate"`

	AverageResponseTimeMS float64 `json:"average_response_time_ms"`
	MinResponseTimeMS     float64 `json:"min_response_time_ms"`
	MaxResponseTimeMS     float64 `json:"max_response_time_ms"`
	P50ResponseTimeMS     float64 `json:"p50_response_time_ms"`
	P95ResponseTimeMS     float64 `json:"p95_response_time_ms"`

	RequestsPerSecond float64 `json:"requests_per_second"`

	// Errors holds up to 10 distinct error strings observed during the run.
	Errors []string `json:"errors,omitempty"`
}
