// Package models contains the shared contract types of the testing control
// plane: scenarios, executions, results, quality assessments, alerts and
// notifications, plus the validation rules that guard them at every boundary.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// TestScenario is the immutable unit of test intent. Updates produce a new
// version with a monotonically advancing UpdatedAt.
//
// Exactly one of the config payloads must be set, and it must match TestType:
// API -> APISpec, UI -> UISpec, AI_QUALITY -> AIQualitySpec. Composite types
// (INTEGRATION, PERFORMANCE, ...) reuse the payload of their base executor.
type TestScenario struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	TestType    TestType `json:"test_type"`

	Priority       int `json:"priority"`        // 1..10
	TimeoutSeconds int `json:"timeout_seconds"` // 1..3600
	RetryCount     int `json:"retry_count"`     // 0..10

	APISpec       *APITestSpec   `json:"api_spec,omitempty"`
	UISpec        *UITestSpec    `json:"ui_spec,omitempty"`
	AIQualitySpec *AIQualitySpec `json:"ai_quality_spec,omitempty"`

	ExpectedOutcomes      []string                  `json:"expected_outcomes,omitempty"`
	QualityThresholds     map[QualityMetric]float64 `json:"quality_thresholds,omitempty"`
	PerformanceThresholds map[string]float64        `json:"performance_thresholds,omitempty"`

	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// APITestSpec configures one HTTP probe.
type APITestSpec struct {
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	PathParams  map[string]string `json:"path_params,omitempty"`
	RequestBody any               `json:"request_body,omitempty"`

	ExpectedStatus          int               `json:"expected_status"` // 100..599
	ExpectedResponseSchema  map[string]any    `json:"expected_response_schema,omitempty"`
	ExpectedHeaders         map[string]string `json:"expected_headers,omitempty"`
	ExpectedContent         []string          `json:"expected_content,omitempty"`
	ResponseTimeThresholdMS int               `json:"response_time_threshold_ms"`
	RetryDelaySeconds       float64           `json:"retry_delay_seconds,omitempty"`
}

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// UIAction is one step of a browser flow. Value carries the action argument:
// text for type, option value for select, key name for press, seconds for
// wait, pixels for scroll.
type UIAction struct {
	Type      string `json:"type"`
	Selector  string `json:"selector,omitempty"`
	Value     any    `json:"value,omitempty"`
	TimeoutMS *int   `json:"timeout_ms,omitempty"`
}

// StringValue returns the action value as a string.
func (a UIAction) StringValue() string {
	switch v := a.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FloatValue returns the action value as a float64 when it is numeric or a
// numeric string.
func (a UIAction) FloatValue() (float64, bool) {
	switch v := a.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// UIAssertion is one expectation evaluated after the action sequence.
type UIAssertion struct {
	Type      string `json:"type"`
	Selector  string `json:"selector,omitempty"`
	Expected  string `json:"expected_value,omitempty"`
	TimeoutMS *int   `json:"timeout_ms,omitempty"`
}

// UITestSpec configures one browser flow.
type UITestSpec struct {
	PageURL      string      `json:"page_url"`
	ViewportSize Viewport    `json:"viewport_size"`
	DeviceType   DeviceType  `json:"device_type,omitempty"`
	Browser      BrowserType `json:"browser"`

	Actions    []UIAction    `json:"actions,omitempty"`
	Assertions []UIAssertion `json:"assertions,omitempty"`

	ScreenshotComparison bool    `json:"screenshot_comparison"`
	VisualThreshold      float64 `json:"visual_threshold"` // 0..1

	PerformanceMetrics     []string `json:"performance_metrics,omitempty"`
	AccessibilityStandards []string `json:"accessibility_standards,omitempty"`
	CheckResponsive        bool     `json:"check_responsive,omitempty"`
}

// AIQualitySpec configures one LLM output assessment.
type AIQualitySpec struct {
	InputPrompt      string                    `json:"input_prompt"`
	ContextData      map[string]any            `json:"context_data,omitempty"`
	AssessmentModels []string                  `json:"assessment_models"`
	QualityMetrics   []QualityMetric           `json:"quality_metrics,omitempty"`
	ReferenceOutputs []string                  `json:"reference_outputs,omitempty"`
	BaselineScores   map[QualityMetric]float64 `json:"baseline_scores,omitempty"`
	Strategy         JudgeStrategy             `json:"strategy,omitempty"`

	Temperature float64 `json:"temperature"` // 0..2
	MaxTokens   int     `json:"max_tokens"`  // 1..4000
}

// TestContext threads session-scoped metadata through every execution.
// Executors treat it as read-only.
type TestContext struct {
	SessionID   string         `json:"session_id"`
	UserID      string         `json:"user_id,omitempty"`
	Environment Environment    `json:"environment"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// BaseURL returns context.metadata.base_url when present.
func (c TestContext) BaseURL() string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata["base_url"].(string); ok {
		return v
	}
	return ""
}

// ScenarioCollection groups scenarios for batch runs. Persisted as
// collection_{id}.json.
type ScenarioCollection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ScenarioIDs []string  `json:"scenario_ids"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// knownActions and knownAssertions are the DSL operations of the browser
// executor.
var knownActions = map[string]bool{
	"click": true, "type": true, "select": true, "hover": true,
	"wait": true, "scroll": true, "press": true,
}

var knownAssertions = map[string]bool{
	"visible": true, "hidden": true, "text": true, "value": true,
	"count": true, "url": true, "title": true,
}

var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// Validate checks the scenario against the contract: ranges, enum validity,
// and the config union invariant. It returns a *ValidationError on the first
// violation.
func (s *TestScenario) Validate() error {
	if s.Name == "" {
		return NewValidationError("name", "must not be empty")
	}
	if !s.TestType.IsValid() {
		return NewValidationError("test_type", fmt.Sprintf("unknown test type %q", s.TestType))
	}
	if s.Priority < 1 || s.Priority > 10 {
		return NewValidationError("priority", "must be in [1,10]")
	}
	if s.TimeoutSeconds < 1 || s.TimeoutSeconds > 3600 {
		return NewValidationError("timeout_seconds", "must be in [1,3600]")
	}
	if s.RetryCount < 0 || s.RetryCount > 10 {
		return NewValidationError("retry_count", "must be in [0,10]")
	}
	for m, v := range s.QualityThresholds {
		if !m.IsValid() {
			return NewValidationError("quality_thresholds", fmt.Sprintf("unknown metric %q", m))
		}
		if v < 0 || v > 1 {
			return NewValidationError("quality_thresholds", fmt.Sprintf("threshold for %s must be in [0,1]", m))
		}
	}
	if err := s.validateConfigUnion(); err != nil {
		return err
	}
	return nil
}

// validateConfigUnion enforces that exactly one config payload is present
// and that it matches the declared test type.
func (s *TestScenario) validateConfigUnion() error {
	set := 0
	if s.APISpec != nil {
		set++
	}
	if s.UISpec != nil {
		set++
	}
	if s.AIQualitySpec != nil {
		set++
	}
	if set != 1 {
		return NewValidationError("config", fmt.Sprintf("exactly one config payload required, got %d", set))
	}

	switch s.TestType {
	case TestTypeAPI, TestTypePerformance, TestTypeSecurity:
		if s.APISpec == nil {
			return NewValidationError("config", fmt.Sprintf("test type %s requires api_spec", s.TestType))
		}
		return s.APISpec.Validate()
	case TestTypeUI, TestTypeAccessibility:
		if s.UISpec == nil {
			return NewValidationError("config", fmt.Sprintf("test type %s requires ui_spec", s.TestType))
		}
		return s.UISpec.Validate()
	case TestTypeAIQuality:
		if s.AIQualitySpec == nil {
			return NewValidationError("config", "test type AI_QUALITY requires ai_quality_spec")
		}
		return s.AIQualitySpec.Validate()
	case TestTypeIntegration:
		// Integration scenarios run against whichever executor their payload
		// selects; any single valid payload is acceptable.
		switch {
		case s.APISpec != nil:
			return s.APISpec.Validate()
		case s.UISpec != nil:
			return s.UISpec.Validate()
		default:
			return s.AIQualitySpec.Validate()
		}
	}
	return nil
}

// Validate checks the API spec ranges and required fields.
func (s *APITestSpec) Validate() error {
	if s.Endpoint == "" {
		return NewValidationError("api_spec.endpoint", "must not be empty")
	}
	if !knownMethods[s.Method] {
		return NewValidationError("api_spec.method", fmt.Sprintf("unknown HTTP method %q", s.Method))
	}
	if s.ExpectedStatus < 100 || s.ExpectedStatus > 599 {
		return NewValidationError("api_spec.expected_status", "must be in [100,599]")
	}
	if s.ResponseTimeThresholdMS <= 0 {
		return NewValidationError("api_spec.response_time_threshold_ms", "must be > 0")
	}
	if s.RetryDelaySeconds < 0 {
		return NewValidationError("api_spec.retry_delay_seconds", "must be >= 0")
	}
	return nil
}

// Validate checks the UI spec: URL, viewport, browser, DSL operation names
// and the visual threshold range.
func (s *UITestSpec) Validate() error {
	if s.PageURL == "" {
		return NewValidationError("ui_spec.page_url", "must not be empty")
	}
	if s.ViewportSize.Width <= 0 || s.ViewportSize.Height <= 0 {
		return NewValidationError("ui_spec.viewport_size", "width and height must be > 0")
	}
	if s.Browser != "" && !s.Browser.IsValid() {
		return NewValidationError("ui_spec.browser", fmt.Sprintf("unknown browser %q", s.Browser))
	}
	if s.DeviceType != "" && !s.DeviceType.IsValid() {
		return NewValidationError("ui_spec.device_type", fmt.Sprintf("unknown device type %q", s.DeviceType))
	}
	if s.VisualThreshold < 0 || s.VisualThreshold > 1 {
		return NewValidationError("ui_spec.visual_threshold", "must be in [0,1]")
	}
	for i, a := range s.Actions {
		if !knownActions[a.Type] {
			return NewValidationError(fmt.Sprintf("ui_spec.actions[%d]", i), fmt.Sprintf("unknown action %q", a.Type))
		}
		if a.Type != "wait" && a.Type != "scroll" && a.Selector == "" {
			return NewValidationError(fmt.Sprintf("ui_spec.actions[%d]", i), fmt.Sprintf("action %q requires a selector", a.Type))
		}
	}
	for i, a := range s.Assertions {
		if !knownAssertions[a.Type] {
			return NewValidationError(fmt.Sprintf("ui_spec.assertions[%d]", i), fmt.Sprintf("unknown assertion %q", a.Type))
		}
		switch a.Type {
		case "url", "title":
			// page-level, no selector
		default:
			if a.Selector == "" {
				return NewValidationError(fmt.Sprintf("ui_spec.assertions[%d]", i), fmt.Sprintf("assertion %q requires a selector", a.Type))
			}
		}
	}
	return nil
}

// Validate checks the AI quality spec: prompt, models, metric validity and
// sampling parameter ranges.
func (s *AIQualitySpec) Validate() error {
	if s.InputPrompt == "" {
		return NewValidationError("ai_quality_spec.input_prompt", "must not be empty")
	}
	if len(s.AssessmentModels) == 0 {
		return NewValidationError("ai_quality_spec.assessment_models", "must not be empty")
	}
	for _, m := range s.QualityMetrics {
		if !m.IsValid() {
			return NewValidationError("ai_quality_spec.quality_metrics", fmt.Sprintf("unknown metric %q", m))
		}
	}
	if s.Strategy != "" && !s.Strategy.IsValid() {
		return NewValidationError("ai_quality_spec.strategy", fmt.Sprintf("unknown strategy %q", s.Strategy))
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return NewValidationError("ai_quality_spec.temperature", "must be in [0,2]")
	}
	if s.MaxTokens < 1 || s.MaxTokens > 4000 {
		return NewValidationError("ai_quality_spec.max_tokens", "must be in [1,4000]")
	}
	return nil
}

// Validate checks the context enums.
func (c *TestContext) Validate() error {
	if c.Environment != "" && !c.Environment.IsValid() {
		return NewValidationError("context.environment", fmt.Sprintf("unknown environment %q", c.Environment))
	}
	return nil
}
