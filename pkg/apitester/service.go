// Package apitester executes HTTP probe scenarios and bounded load runs.
// Probes report independent validation verdicts; failures become TestResults,
// never errors, so the orchestrator sees exactly one outcome per execution.
package apitester

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/history"
	"github.com/cruciblehq/crucible/pkg/models"
)

const historySize = 1000

// Service runs API scenarios against their targets.
type Service struct {
	cfg     *config.APITestingConfig
	client  *fasthttp.Client
	history *history.Ring
}

// NewService builds the executor with a shared fasthttp client.
func NewService(cfg *config.APITestingConfig) *Service {
	return &Service{
		cfg: cfg,
		client: &fasthttp.Client{
			Name:                "crucible-apitester",
			MaxConnsPerHost:     512,
			ReadTimeout:         cfg.RequestTimeout,
			WriteTimeout:        cfg.RequestTimeout,
			MaxIdleConnDuration: time.Minute,
			TLSConfig:           &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		},
		history: history.New(historySize),
	}
}

// History exposes the rolling result buffer for /history and the
// aggregator's pull path.
func (s *Service) History() *history.Ring {
	return s.history
}

// probeResponse is one completed HTTP exchange. Header keys are lowercased.
type probeResponse struct {
	statusCode   int
	responseTime time.Duration
	body         []byte
	headers      map[string]string
}

// ExecuteAPITest runs one probe scenario and returns its result. The error
// return is reserved for invalid input; probe failures of any kind are
// encoded in the TestResult.
func (s *Service) ExecuteAPITest(ctx context.Context, sc *models.TestScenario, tc models.TestContext) (*models.TestResult, error) {
	spec := sc.APISpec
	if spec == nil {
		return nil, models.NewValidationError("api_spec", "required for API scenarios")
	}

	executionID := newExecutionID()
	timeout := s.cfg.RequestTimeout
	if sc.TimeoutSeconds > 0 {
		timeout = time.Duration(sc.TimeoutSeconds) * time.Second
	}

	target := buildURL(spec, tc)
	headers := mergeHeaders(spec, tc)
	body, err := encodeBody(spec.RequestBody)
	if err != nil {
		return nil, models.NewValidationError("api_spec.request_body", err.Error())
	}

	start := time.Now()
	resp, attempts, lastErr := s.probeWithRetries(ctx, sc, target, headers, body, timeout)
	if resp == nil {
		result := s.failureResult(executionID, sc, lastErr, timeout, attempts)
		s.history.Record(result)
		return result, nil
	}

	api := evaluateResponse(spec, resp)
	api.Attempts = attempts
	recommendations := append(validationRecommendations(api), securityPosture(resp)...)

	passed := api.StatusValidation && api.SchemaValidation && api.HeadersValidation &&
		api.ContentValidation && api.PerformancePassed

	result := &models.TestResult{
		ExecutionID: executionID,
		ScenarioID:  sc.ID,
		TestType:    sc.TestType,
		Passed:      passed,
		Score:       validationScore(api),
		DurationMS:  time.Since(start).Milliseconds(),
		APIResults:  api,
		PerformanceMetrics: map[string]float64{
			"response_time_ms":    float64(api.ResponseTimeMS),
			"response_size_bytes": float64(api.ResponseSize),
		},
		Recommendations: recommendations,
		CreatedAt:       time.Now().UTC(),
	}
	s.history.Record(result)
	return result, nil
}

// probeWithRetries issues the request up to 1+retry_count times. Transport
// errors and unexpected 5xx responses are transient and retried; anything
// else is a usable response. Attempt n waits retry_delay_seconds x n first.
func (s *Service) probeWithRetries(ctx context.Context, sc *models.TestScenario, target string, headers map[string]string, body []byte, timeout time.Duration) (*probeResponse, int, error) {
	spec := sc.APISpec
	attempts := 0
	var lastErr error

	for attempt := 0; attempt <= sc.RetryCount; attempt++ {
		if attempt > 0 {
			delay := time.Duration(spec.RetryDelaySeconds*float64(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return nil, attempts, ctx.Err()
			case <-time.After(delay):
			}
		}

		attempts++
		resp, err := s.do(spec.Method, target, headers, body, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.statusCode >= 500 && resp.statusCode != spec.ExpectedStatus && attempt < sc.RetryCount {
			lastErr = fmt.Errorf("server returned %d", resp.statusCode)
			continue
		}
		return resp, attempts, nil
	}
	return nil, attempts, lastErr
}

func (s *Service) do(method, target string, headers map[string]string, body []byte, timeout time.Duration) (*probeResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(target)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if len(body) > 0 {
		req.SetBody(body)
	}

	start := time.Now()
	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, err
	}

	out := &probeResponse{
		statusCode:   resp.StatusCode(),
		responseTime: time.Since(start),
		body:         append([]byte(nil), resp.Body()...),
		headers:      make(map[string]string),
	}
	resp.Header.VisitAll(func(k, v []byte) {
		out.headers[strings.ToLower(string(k))] = string(v)
	})
	return out, nil
}

// failureResult maps a transport failure onto the error taxonomy. Timeouts
// report the full configured budget as their duration.
func (s *Service) failureResult(executionID string, sc *models.TestScenario, err error, timeout time.Duration, attempts int) *models.TestResult {
	var (
		errorType models.ErrorType
		message   string
		rec       string
		duration  int64
	)
	switch {
	case errors.Is(err, context.Canceled):
		errorType = models.ErrorTypeCancelled
		message = "request cancelled"
	case isTimeout(err):
		errorType = models.ErrorTypeTimeout
		message = fmt.Sprintf("request exceeded %s", timeout)
		rec = "Increase timeout_seconds or check the target's responsiveness"
		duration = timeout.Milliseconds()
	default:
		errorType = models.ErrorTypeConnection
		message = fmt.Sprintf("request failed: %v", err)
		rec = "Verify the endpoint URL and that the target service is reachable"
	}

	result := models.FailureResult(executionID, sc.ID, sc.TestType, errorType, message)
	result.DurationMS = duration
	if rec != "" {
		result.Recommendations = []string{rec}
	}
	if attempts > 0 {
		result.APIResults = &models.APITestResult{Attempts: attempts}
	}
	return result
}

func isTimeout(err error) bool {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newExecutionID() string {
	return "api_" + uuid.New().String()
}

// buildURL substitutes {name} path parameters, joins relative endpoints
// onto the context base URL and appends query parameters.
func buildURL(spec *models.APITestSpec, tc models.TestContext) string {
	endpoint := spec.Endpoint
	for name, value := range spec.PathParams {
		endpoint = strings.ReplaceAll(endpoint, "{"+name+"}", url.PathEscape(value))
	}

	if base := tc.BaseURL(); base != "" && !isAbsolute(endpoint) {
		endpoint = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}

	if len(spec.QueryParams) > 0 {
		q := url.Values{}
		for k, v := range spec.QueryParams {
			q.Set(k, v)
		}
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + q.Encode()
	}
	return endpoint
}

func isAbsolute(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}

// mergeHeaders layers scenario headers over auth headers derived from the
// test context; the scenario wins on conflict.
func mergeHeaders(spec *models.APITestSpec, tc models.TestContext) map[string]string {
	merged := make(map[string]string)
	if tc.Metadata != nil {
		if token, ok := tc.Metadata["auth_token"].(string); ok && token != "" {
			merged["Authorization"] = "Bearer " + token
		}
		if key, ok := tc.Metadata["api_key"].(string); ok && key != "" {
			merged["X-API-Key"] = key
		}
	}
	for k, v := range spec.Headers {
		merged[k] = v
	}
	if spec.RequestBody != nil && !hasHeader(merged, "Content-Type") {
		merged["Content-Type"] = "application/json"
	}
	return merged
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("not JSON-encodable: %v", err)
		}
		return data, nil
	}
}
