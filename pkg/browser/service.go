package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/history"
	"github.com/cruciblehq/crucible/pkg/models"
)

const (
	historySize = 1000

	// defaultExecutionTimeout bounds a run when the scenario carries no
	// timeout of its own.
	defaultExecutionTimeout = 60 * time.Second

	// engineRequestTimeout caps single sidecar round trips.
	engineRequestTimeout = 45 * time.Second
)

// Service executes UI test scenarios through a browser engine behind the
// Driver interface. Concurrency is bounded by the context pool; visual
// baselines and evidence artifacts live on disk.
type Service struct {
	cfg     *config.BrowserAutomationConfig
	driver  Driver
	pool    *Pool
	visual  *VisualComparer
	history *history.Ring

	healthy atomic.Bool
}

// NewService builds the executor for the configured engine. An unreachable
// engine leaves the service constructed but unhealthy, so the health
// endpoint can report the dependency instead of the process dying.
func NewService(cfg *config.BrowserAutomationConfig) (*Service, error) {
	var driver Driver
	switch cfg.Engine {
	case config.BrowserEngineSidecar:
		driver = NewSidecarDriver(cfg.EngineURL, engineRequestTimeout)
	case config.BrowserEngineScripted:
		driver = NewScriptedDriver()
	default:
		return nil, fmt.Errorf("unknown browser engine: %s", cfg.Engine)
	}
	return NewServiceWithDriver(cfg, driver)
}

// NewServiceWithDriver wires an explicit driver, used by tests and by
// embedders that bring their own engine.
func NewServiceWithDriver(cfg *config.BrowserAutomationConfig, driver Driver) (*Service, error) {
	visual, err := NewVisualComparer(cfg.BaselineDir, cfg.EvidenceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize visual comparer: %w", err)
	}

	s := &Service{
		cfg:     cfg,
		driver:  driver,
		pool:    NewPool(cfg.MaxConcurrentContexts),
		visual:  visual,
		history: history.New(historySize),
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := driver.Healthy(probeCtx); err != nil {
		slog.Warn("Browser engine unreachable at startup", "engine", driver.Name(), "error", err)
	} else {
		s.healthy.Store(true)
	}

	slog.Info("Browser automation service initialized",
		"engine", driver.Name(),
		"max_contexts", cfg.MaxConcurrentContexts,
		"healthy", s.healthy.Load())
	return s, nil
}

// History exposes the recent execution ring.
func (s *Service) History() *history.Ring { return s.history }

// Healthy reports the last observed engine state.
func (s *Service) Healthy() bool { return s.healthy.Load() }

// ActiveContexts reports how many pool slots are currently held.
func (s *Service) ActiveContexts() int { return s.pool.Active() }

// Health probes the engine and refreshes the service's health state.
func (s *Service) Health(ctx context.Context) error {
	if err := s.driver.Healthy(ctx); err != nil {
		s.healthy.Store(false)
		return fmt.Errorf("browser engine %s unhealthy: %w", s.driver.Name(), err)
	}
	s.healthy.Store(true)
	return nil
}

// ExecuteUITest runs one browser flow: actions, assertions, screenshot and
// visual comparison, accessibility scan, performance capture, and the
// responsive sweep when requested. Test failures land in the result; the
// error return is reserved for invalid input and pool exhaustion.
func (s *Service) ExecuteUITest(ctx context.Context, sc *models.TestScenario, tc models.TestContext) (*models.TestResult, error) {
	spec := sc.UISpec
	if spec == nil {
		return nil, models.NewValidationError("ui_spec", "scenario has no UI test spec")
	}
	if spec.PageURL == "" {
		return nil, models.NewValidationError("page_url", "page URL is required")
	}

	release, err := s.pool.TryAcquire()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	executionID := newExecutionID()

	timeout := defaultExecutionTimeout
	if sc.TimeoutSeconds > 0 {
		timeout = time.Duration(sc.TimeoutSeconds) * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	debug := tc.Environment == models.EnvDebug
	session, err := s.driver.NewSession(execCtx, SessionOptions{
		Browser:     spec.Browser,
		Viewport:    spec.ViewportSize,
		RecordVideo: debug,
		RecordTrace: debug,
	})
	if err != nil {
		result := s.sessionFailure(executionID, sc, start, err,
			fmt.Sprintf("failed to open browser session: %v", err),
			"Check that the browser engine is running and reachable")
		return result, nil
	}

	slog.Info("UI test started",
		"execution_id", executionID,
		"scenario_id", sc.ID,
		"page_url", spec.PageURL,
		"browser", spec.Browser)

	if err := session.Navigate(execCtx, spec.PageURL); err != nil {
		session.Close(execCtx)
		result := s.sessionFailure(executionID, sc, start, err,
			fmt.Sprintf("failed to load %s: %v", spec.PageURL, err),
			"Verify the page URL is reachable from the test runner")
		return result, nil
	}

	ui := &models.UITestResult{}
	evidence := &models.Evidence{}

	ui.ActionResults = s.runActions(execCtx, session, spec)
	ui.AssertionResults = s.runAssertions(execCtx, session, spec)

	if consoleErrs, err := session.ConsoleErrors(execCtx); err == nil {
		ui.ConsoleErrors = consoleErrs
	}

	s.captureVisual(execCtx, session, spec, executionID, ui, evidence)
	ui.Accessibility = s.captureAccessibility(execCtx, session)

	if capture, err := session.Metrics(execCtx); err != nil {
		slog.Warn("Performance capture failed", "execution_id", executionID, "error", err)
	} else {
		ui.Performance = capture
	}

	if sessionEvidence, err := session.Close(execCtx); err != nil {
		slog.Warn("Browser session close failed", "execution_id", executionID, "error", err)
	} else if sessionEvidence != nil {
		if sessionEvidence.VideoPath != "" {
			evidence.Videos = append(evidence.Videos, sessionEvidence.VideoPath)
		}
		if sessionEvidence.TracePath != "" {
			evidence.Traces = append(evidence.Traces, sessionEvidence.TracePath)
		}
	}

	// The main slot is returned before the sweep so the sweep's own
	// acquisitions cannot deadlock on a small pool.
	release()

	if spec.CheckResponsive {
		if report, err := s.runResponsiveSweep(execCtx, spec); err != nil {
			slog.Warn("Responsive sweep incomplete", "execution_id", executionID, "error", err)
		} else {
			ui.Responsive = report
		}
	}

	result := &models.TestResult{
		ExecutionID: executionID,
		ScenarioID:  sc.ID,
		TestType:    sc.TestType,
		Passed:      uiPassed(ui),
		Score:       uiScore(ui, sc.PerformanceThresholds),
		DurationMS:  time.Since(start).Milliseconds(),
		UIResults:   ui,
		CreatedAt:   time.Now().UTC(),
	}
	if len(evidence.Screenshots)+len(evidence.Videos)+len(evidence.Traces) > 0 {
		result.Evidence = evidence
	}
	if ui.Performance != nil && ui.Performance.LoadTimeMS != nil {
		result.PerformanceMetrics = map[string]float64{"load_time_ms": *ui.Performance.LoadTimeMS}
	}
	result.Recommendations = uiRecommendations(ui)

	s.history.Record(result)
	slog.Info("UI test finished",
		"execution_id", executionID,
		"passed", result.Passed,
		"score", result.Score,
		"duration_ms", result.DurationMS)
	return result, nil
}

// CaptureScreenshot loads a page and stores a one-off screenshot under the
// evidence directory, returning its path.
func (s *Service) CaptureScreenshot(ctx context.Context, pageURL string, browser models.BrowserType, viewport models.Viewport) (string, error) {
	if pageURL == "" {
		return "", models.NewValidationError("page_url", "page URL is required")
	}

	release, err := s.pool.TryAcquire()
	if err != nil {
		return "", err
	}
	defer release()

	session, err := s.driver.NewSession(ctx, SessionOptions{Browser: browser, Viewport: viewport})
	if err != nil {
		return "", fmt.Errorf("failed to open browser session: %w", err)
	}
	defer session.Close(ctx)

	if err := session.Navigate(ctx, pageURL); err != nil {
		return "", fmt.Errorf("failed to load %s: %w", pageURL, err)
	}
	shot, err := session.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}

	path := filepath.Join(s.cfg.EvidenceDir, "screenshot_"+uuid.NewString()+".png")
	if err := os.WriteFile(path, shot, 0644); err != nil {
		return "", fmt.Errorf("failed to store screenshot: %w", err)
	}
	return path, nil
}

func (s *Service) sessionFailure(executionID string, sc *models.TestScenario, start time.Time, cause error, message, recommendation string) *models.TestResult {
	errorType := models.ErrorTypeConnection
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		errorType = models.ErrorTypeTimeout
	case errors.Is(cause, context.Canceled):
		errorType = models.ErrorTypeCancelled
	}
	result := models.FailureResult(executionID, sc.ID, sc.TestType, errorType, message, recommendation)
	result.DurationMS = time.Since(start).Milliseconds()
	s.history.Record(result)
	slog.Warn("UI test failed before evaluation",
		"execution_id", executionID,
		"scenario_id", sc.ID,
		"error", message)
	return result
}

// captureVisual screenshots the page, stores it as evidence, and runs the
// baseline comparison when the spec asks for one.
func (s *Service) captureVisual(ctx context.Context, session Session, spec *models.UITestSpec, executionID string, ui *models.UITestResult, evidence *models.Evidence) {
	shot, err := session.Screenshot(ctx)
	if err != nil {
		slog.Warn("Screenshot capture failed", "execution_id", executionID, "error", err)
		return
	}

	path := filepath.Join(s.cfg.EvidenceDir, executionID+".png")
	if err := os.WriteFile(path, shot, 0644); err != nil {
		slog.Warn("Failed to store screenshot", "execution_id", executionID, "error", err)
	} else {
		evidence.Screenshots = append(evidence.Screenshots, path)
	}

	if !spec.ScreenshotComparison {
		return
	}
	comparison, err := s.visual.Compare(spec.PageURL, shot, spec.VisualThreshold)
	if err != nil {
		slog.Warn("Visual comparison failed", "execution_id", executionID, "error", err)
		return
	}
	ui.Visual = comparison
	if comparison.DiffPath != "" {
		evidence.Screenshots = append(evidence.Screenshots, comparison.DiffPath)
	}
}

// captureAccessibility always yields a report: an unavailable scan engine
// scores 1.0 with an annotation instead of failing the run.
func (s *Service) captureAccessibility(ctx context.Context, session Session) *models.AccessibilityReport {
	scan, err := session.Accessibility(ctx)
	if err != nil {
		return &models.AccessibilityReport{
			Score:      1.0,
			Annotation: fmt.Sprintf("accessibility scan unavailable: %v", err),
		}
	}

	report := &models.AccessibilityReport{
		Violations: scan.Violations,
		Passes:     scan.Passes,
		Incomplete: scan.Incomplete,
	}
	total := scan.Passes + len(scan.Violations)
	if total == 0 {
		report.Score = 1.0
	} else {
		report.Score = float64(scan.Passes) / float64(total)
	}
	return report
}

// uiPassed is the binary verdict: every action succeeded, every assertion
// held, and the visual comparison (when run) matched.
func uiPassed(ui *models.UITestResult) bool {
	for _, a := range ui.ActionResults {
		if !a.Success {
			return false
		}
	}
	for _, a := range ui.AssertionResults {
		if !a.Passed {
			return false
		}
	}
	if ui.Visual != nil && !ui.Visual.Match {
		return false
	}
	return true
}

// uiScore averages the components that actually ran: action rate,
// assertion rate, visual match, responsive score, accessibility score, and
// the page-load check against performance_thresholds["load_time_ms"].
func uiScore(ui *models.UITestResult, thresholds map[string]float64) float64 {
	var components []float64

	if n := len(ui.ActionResults); n > 0 {
		ok := 0
		for _, a := range ui.ActionResults {
			if a.Success {
				ok++
			}
		}
		components = append(components, float64(ok)/float64(n))
	}
	if n := len(ui.AssertionResults); n > 0 {
		ok := 0
		for _, a := range ui.AssertionResults {
			if a.Passed {
				ok++
			}
		}
		components = append(components, float64(ok)/float64(n))
	}
	if ui.Visual != nil {
		if ui.Visual.Match {
			components = append(components, 1.0)
		} else {
			components = append(components, 0.5)
		}
	}
	if ui.Responsive != nil {
		components = append(components, ui.Responsive.Score)
	}
	if ui.Accessibility != nil {
		components = append(components, ui.Accessibility.Score)
	}
	if limit, ok := thresholds["load_time_ms"]; ok && ui.Performance != nil && ui.Performance.LoadTimeMS != nil {
		if *ui.Performance.LoadTimeMS <= limit {
			components = append(components, 1.0)
		} else {
			components = append(components, 0.5)
		}
	}

	if len(components) == 0 {
		return 1.0
	}
	var sum float64
	for _, c := range components {
		sum += c
	}
	return sum / float64(len(components))
}

func uiRecommendations(ui *models.UITestResult) []string {
	var recs []string

	failedActions := 0
	for _, a := range ui.ActionResults {
		if !a.Success {
			failedActions++
		}
	}
	if failedActions > 0 {
		recs = append(recs, fmt.Sprintf("%d actions failed; check that selectors still match the current page structure", failedActions))
	}

	failedAssertions := 0
	for _, a := range ui.AssertionResults {
		if !a.Passed {
			failedAssertions++
		}
	}
	if failedAssertions > 0 {
		recs = append(recs, fmt.Sprintf("%d assertions failed; review expected values against the rendered page", failedAssertions))
	}

	if ui.Visual != nil && !ui.Visual.Match {
		recs = append(recs, "Visual diff exceeded the threshold; inspect the diff image and reset the baseline if the change is intentional")
	}
	if ui.Accessibility != nil && len(ui.Accessibility.Violations) > 0 {
		recs = append(recs, fmt.Sprintf("Address %d accessibility violations reported by the scan", len(ui.Accessibility.Violations)))
	}
	if ui.Responsive != nil && ui.Responsive.Score < 0.8 {
		recs = append(recs, "Improve responsive layout on the flagged viewports")
	}
	if len(ui.ConsoleErrors) > 0 {
		recs = append(recs, fmt.Sprintf("Investigate %d console errors captured during the run", len(ui.ConsoleErrors)))
	}
	return recs
}

func newExecutionID() string {
	return "ui_" + uuid.New().String()
}
