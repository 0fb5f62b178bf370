package apitester

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cruciblehq/crucible/pkg/models"
)

// securityHeaders are checked for presence only; their absence is advisory
// and never affects the verdict.
var securityHeaders = []string{
	"x-content-type-options",
	"x-frame-options",
	"x-xss-protection",
	"strict-transport-security",
}

// leakMarkers flag 5xx bodies that look like they expose internals.
var leakMarkers = []string{"traceback", "stack trace", "panic:", "exception", "at java.", "goroutine "}

// evaluateResponse computes the four validation verdicts plus the
// performance check. Each verdict is independent; a vacuous check (nothing
// expected) passes.
func evaluateResponse(spec *models.APITestSpec, resp *probeResponse) *models.APITestResult {
	api := &models.APITestResult{
		StatusCode:     resp.statusCode,
		ResponseTimeMS: resp.responseTime.Milliseconds(),
		ResponseSize:   len(resp.body),
	}

	api.StatusValidation = resp.statusCode == spec.ExpectedStatus
	if !api.StatusValidation {
		api.ValidationErrors = append(api.ValidationErrors,
			fmt.Sprintf("expected status %d, got %d", spec.ExpectedStatus, resp.statusCode))
	}

	api.SchemaValidation = true
	if len(spec.ExpectedResponseSchema) > 0 && resp.statusCode < 400 {
		api.SchemaValidation = validateSchema(spec.ExpectedResponseSchema, resp.body, api)
	}

	api.HeadersValidation = true
	for name, expected := range spec.ExpectedHeaders {
		actual, ok := resp.headers[strings.ToLower(name)]
		if !ok {
			api.HeadersValidation = false
			api.ValidationErrors = append(api.ValidationErrors,
				fmt.Sprintf("missing expected header %s", name))
			continue
		}
		if actual != expected {
			api.HeadersValidation = false
			api.ValidationErrors = append(api.ValidationErrors,
				fmt.Sprintf("header %s: expected %q, got %q", name, expected, actual))
		}
	}

	api.ContentValidation = true
	for _, want := range spec.ExpectedContent {
		if !bytes.Contains(resp.body, []byte(want)) {
			api.ContentValidation = false
			api.ValidationErrors = append(api.ValidationErrors,
				fmt.Sprintf("response body does not contain %q", want))
		}
	}

	api.PerformancePassed = api.ResponseTimeMS <= int64(spec.ResponseTimeThresholdMS)
	if !api.PerformancePassed {
		api.ValidationErrors = append(api.ValidationErrors,
			fmt.Sprintf("response time %dms exceeded threshold %dms", api.ResponseTimeMS, spec.ResponseTimeThresholdMS))
	}

	return api
}

func validateSchema(schema map[string]any, body []byte, api *models.APITestResult) bool {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		api.ValidationErrors = append(api.ValidationErrors, "Response is not valid JSON")
		return false
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		api.ValidationErrors = append(api.ValidationErrors,
			fmt.Sprintf("schema validation failed: %v", err))
		return false
	}
	if result.Valid() {
		return true
	}

	for i, desc := range result.Errors() {
		if i == 3 {
			api.ValidationErrors = append(api.ValidationErrors,
				fmt.Sprintf("... and %d more schema violations", len(result.Errors())-i))
			break
		}
		api.ValidationErrors = append(api.ValidationErrors,
			fmt.Sprintf("schema: %s", desc.String()))
	}
	return false
}

// validationScore is the probe rubric: equal weight for the four
// validations and the latency check.
func validationScore(api *models.APITestResult) float64 {
	checks := []bool{
		api.StatusValidation,
		api.SchemaValidation,
		api.HeadersValidation,
		api.ContentValidation,
		api.PerformancePassed,
	}
	passed := 0
	for _, ok := range checks {
		if ok {
			passed++
		}
	}
	return float64(passed) / float64(len(checks))
}

// validationRecommendations turns failed verdicts into actionable advice.
func validationRecommendations(api *models.APITestResult) []string {
	var recs []string
	if !api.StatusValidation {
		recs = append(recs, "Check the endpoint path and the target's routing configuration")
	}
	if !api.SchemaValidation {
		recs = append(recs, "Response shape drifted from the expected schema; review recent API changes")
	}
	if !api.PerformancePassed {
		recs = append(recs, "Investigate target latency or raise response_time_threshold_ms")
	}
	return recs
}

// securityPosture reports advisory findings: recommended headers that are
// absent, and 5xx bodies that look like internal leaks.
func securityPosture(resp *probeResponse) []string {
	var recs []string
	for _, h := range securityHeaders {
		if _, ok := resp.headers[h]; !ok {
			recs = append(recs, fmt.Sprintf("Missing recommended security header: %s", h))
		}
	}

	if resp.statusCode >= 500 {
		lower := strings.ToLower(string(resp.body))
		for _, marker := range leakMarkers {
			if strings.Contains(lower, marker) {
				recs = append(recs, "5xx response body appears to expose internal details; review error handling")
				break
			}
		}
	}
	return recs
}
