// Package e2e boots the full platform in-process and exercises it over
// HTTP and WebSocket, the way a deployment's clients would.
package e2e

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/aggregator"
	"github.com/cruciblehq/crucible/pkg/alerts"
	"github.com/cruciblehq/crucible/pkg/api"
	"github.com/cruciblehq/crucible/pkg/apitester"
	"github.com/cruciblehq/crucible/pkg/browser"
	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/orchestrator"
	"github.com/cruciblehq/crucible/pkg/quality"
	"github.com/cruciblehq/crucible/pkg/scenario"
	"github.com/cruciblehq/crucible/pkg/telemetry"
)

// TestApp boots a complete single-process deployment for e2e testing:
// every service co-hosted, sharing one event bus, with the REST API served
// from an httptest server.
type TestApp struct {
	Config *config.Config

	// Shared event infrastructure.
	Bus       *events.Bus
	Publisher *events.Publisher

	// Hosted services.
	Scenarios    *scenario.Service
	APITester    *apitester.Service
	Browser      *browser.Service
	Quality      *quality.Service
	Aggregator   *aggregator.Service
	Alerts       *alerts.Service
	Orchestrator *orchestrator.Service

	// Pages scripts the browser driver: register page fixtures here
	// before starting UI scenarios.
	Pages *browser.ScriptedDriver

	Metrics *telemetry.Metrics
	Server  *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/ws"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	cfg                   *config.Config
	maxConcurrentSessions int
	sessionTimeout        time.Duration
	rules                 []config.RuleConfig
	pullSources           []string
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithMaxConcurrentSessions sets the orchestrator admission cap.
func WithMaxConcurrentSessions(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxConcurrentSessions = n }
}

// WithSessionTimeout sets the per-session execution deadline.
func WithSessionTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.sessionTimeout = d }
}

// WithAlertRules installs alert trigger rules before the engine starts.
func WithAlertRules(rules ...config.RuleConfig) TestAppOption {
	return func(c *testAppConfig) { c.rules = rules }
}

// WithPullSources points the aggregator's pull collector at remote
// executor history endpoints.
func WithPullSources(sources ...string) TestAppOption {
	return func(c *testAppConfig) { c.pullSources = sources }
}

// WithConfig sets a custom base config. Later options still apply on top.
func WithConfig(cfg *config.Config) TestAppOption {
	return func(c *testAppConfig) { c.cfg = cfg }
}

// NewTestApp creates and starts a full platform instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	// Apply options.
	tc := &testAppConfig{
		sessionTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.cfg == nil {
		tc.cfg = defaultTestConfig(t)
	}
	cfg := tc.cfg
	cfg.Orchestrator.SessionTimeout = tc.sessionTimeout
	if tc.maxConcurrentSessions > 0 {
		cfg.Orchestrator.MaxConcurrentSessions = tc.maxConcurrentSessions
	}
	if tc.rules != nil {
		cfg.Notification.Rules = tc.rules
	}
	if tc.pullSources != nil {
		cfg.Aggregation.PullSources = tc.pullSources
	}

	ctx := context.Background()

	// 1. Event bus and publisher, shared by every service below.
	bus := events.NewBus(cfg.Events.ReplaySize)
	publisher := events.NewPublisher(bus)

	// 2. Services, in dependency order.
	scenarioSvc, err := scenario.NewService(cfg.Scenarios)
	require.NoError(t, err)
	scenarioSvc.Start(ctx)

	apiTester := apitester.NewService(cfg.APITesting)

	pages := browser.NewScriptedDriver()
	browserSvc, err := browser.NewServiceWithDriver(cfg.BrowserAutomation, pages)
	require.NoError(t, err)

	qualitySvc, err := quality.NewService(cfg.AIQuality)
	require.NoError(t, err)

	aggregatorSvc, err := aggregator.NewService(cfg.Aggregation, bus, publisher)
	require.NoError(t, err)
	aggregatorSvc.Start(ctx)

	alertSvc, err := alerts.NewService(cfg.Notification, bus, publisher)
	require.NoError(t, err)
	alertSvc.Start(ctx)

	orch, err := orchestrator.NewService(cfg.Orchestrator, publisher, orchestrator.Executors{
		API:        apiTester,
		UI:         browserSvc,
		Quality:    qualitySvc,
		Aggregator: aggregatorSvc,
		Scenarios:  scenarioSvc,
	})
	require.NoError(t, err)
	orch.Start(ctx)

	// 3. Telemetry fed from the bus, matching the production wiring.
	metrics := telemetry.NewMetrics()
	collector, err := telemetry.NewCollector(bus, metrics)
	require.NoError(t, err)
	collector.Start(ctx)
	metrics.TrackAggregatorWindow(aggregatorSvc.WindowSize)
	metrics.TrackActiveSessions(orch.ActiveSessions)
	qualitySvc.InstrumentJudges(metrics.RecordJudgeCall)

	// 4. HTTP server on a random port.
	services := api.Services{
		Orchestrator: orch,
		Scenarios:    scenarioSvc,
		APITester:    apiTester,
		Browser:      browserSvc,
		Quality:      qualitySvc,
		Aggregator:   aggregatorSvc,
		Alerts:       alertSvc,
	}
	server, err := api.NewServer(cfg, services, bus, metrics)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())

	app := &TestApp{
		Config:       cfg,
		Bus:          bus,
		Publisher:    publisher,
		Scenarios:    scenarioSvc,
		APITester:    apiTester,
		Browser:      browserSvc,
		Quality:      qualitySvc,
		Aggregator:   aggregatorSvc,
		Alerts:       alertSvc,
		Orchestrator: orch,
		Pages:        pages,
		Metrics:      metrics,
		Server:       server,
		BaseURL:      ts.URL,
		WSURL:        "ws" + ts.URL[len("http"):] + "/ws",
		t:            t,
	}

	// Register cleanup in reverse-creation order. Server shutdown closes
	// lingering WebSocket connections before the listener goes away.
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		ts.Close()
		orch.Stop()
		alertSvc.Stop()
		aggregatorSvc.Stop()
		collector.Stop()
		scenarioSvc.Stop()
		bus.Close()
	})

	return app
}

// defaultTestConfig builds a config suitable for in-process tests: temp
// directories, a tight notification delivery tick, and two offline static
// judges so ensemble strategies have a quorum without any API keys.
func defaultTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Server:            config.DefaultServerConfig(),
		Orchestrator:      config.DefaultOrchestratorConfig(),
		Scenarios:         config.DefaultScenariosConfig(),
		APITesting:        config.DefaultAPITestingConfig(),
		BrowserAutomation: config.DefaultBrowserAutomationConfig(),
		AIQuality:         config.DefaultAIQualityConfig(),
		Aggregation:       config.DefaultAggregationConfig(),
		Notification:      config.DefaultNotificationConfig(),
		Events:            config.DefaultEventsConfig(),
		Telemetry:         config.DefaultTelemetryConfig(),
	}

	cfg.Orchestrator.GracefulShutdownTimeout = 5 * time.Second

	cfg.Scenarios.Dir = t.TempDir()
	cfg.BrowserAutomation.EvidenceDir = t.TempDir()
	cfg.BrowserAutomation.BaselineDir = t.TempDir()
	cfg.Aggregation.ExportDir = t.TempDir()
	cfg.Notification.LogDir = t.TempDir()

	cfg.Notification.DeliverInterval = 10 * time.Millisecond
	cfg.Notification.Rules = nil

	cfg.AIQuality.Judges = map[string]config.JudgeConfig{
		"primary":   {Provider: config.JudgeProviderStatic, Model: "static-heuristic"},
		"secondary": {Provider: config.JudgeProviderStatic, Model: "static-heuristic"},
	}

	return cfg
}
