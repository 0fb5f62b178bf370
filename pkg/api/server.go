// Package api exposes the HTTP surface of the platform: REST endpoints
// for every hosted service, the WebSocket event stream, health, and the
// Prometheus scrape endpoint.
//
// The server hosts whichever services are non-nil in Services; routes for
// absent services are simply not registered, so a single binary can run
// the full platform or any subset behind one listener.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/aggregator"
	"github.com/cruciblehq/crucible/pkg/alerts"
	"github.com/cruciblehq/crucible/pkg/apitester"
	"github.com/cruciblehq/crucible/pkg/browser"
	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/orchestrator"
	"github.com/cruciblehq/crucible/pkg/quality"
	"github.com/cruciblehq/crucible/pkg/scenario"
	"github.com/cruciblehq/crucible/pkg/telemetry"
)

// Services carries the hosted service instances. A nil field means the
// service is not hosted by this process and its routes are not registered.
type Services struct {
	Orchestrator *orchestrator.Service
	Scenarios    *scenario.Service
	APITester    *apitester.Service
	Browser      *browser.Service
	Quality      *quality.Service
	Aggregator   *aggregator.Service
	Alerts       *alerts.Service
}

// Server is the HTTP server hosting the REST API, WebSocket endpoint, and
// observability surface.
type Server struct {
	cfg      *config.Config
	echo     *echo.Echo
	services Services
	bus      *events.Bus
	connMgr  *events.ConnectionManager
	metrics  *telemetry.Metrics
	httpSrv  *http.Server
}

// NewServer wires the HTTP surface over the hosted services. The metrics
// registry is optional; passing nil disables the /metrics endpoint and
// request instrumentation.
func NewServer(cfg *config.Config, services Services, bus *events.Bus, metrics *telemetry.Metrics) (*Server, error) {
	if cfg == nil || cfg.Server == nil {
		return nil, fmt.Errorf("server configuration is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	eventsCfg := cfg.Events
	if eventsCfg == nil {
		eventsCfg = config.DefaultEventsConfig()
	}

	s := &Server{
		cfg:      cfg,
		echo:     echo.New(),
		services: services,
		bus:      bus,
		connMgr:  events.NewConnectionManager(bus, eventsCfg.WriteTimeout),
		metrics:  metrics,
	}

	s.echo.Use(securityHeaders())
	s.registerRoutes()

	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     s.Handler(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	return s, nil
}

// Handler returns the full middleware-wrapped handler chain. Exposed so
// tests can drive the server without a listener.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.echo
	h = s.instrument(h)
	h = recoverPanics(h)
	return h
}

// ConnectionManager exposes the WebSocket fan-out, primarily for health
// reporting.
func (s *Server) ConnectionManager() *events.ConnectionManager {
	return s.connMgr
}

// Start runs the HTTP listener and blocks until the server is shut down.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, then closes any remaining WebSocket
// connections. Hijacked connections are not tracked by the http.Server, so
// the manager closes them explicitly.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.connMgr.CloseAll()
	return err
}

// registerRoutes attaches every endpoint whose backing service is hosted.
// Paths are stable API surface; the aggregator's pull collector appends
// "/history" to its configured source URLs, so the history routes must
// keep that suffix.
func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.websocketHandler)
	if s.metrics != nil {
		e.GET("/metrics", s.metricsHandler)
	}

	if s.services.Orchestrator != nil {
		e.POST("/sessions", s.startSessionHandler)
		e.GET("/sessions", s.listSessionsHandler)
		e.GET("/sessions/:id", s.getSessionHandler)
		e.POST("/sessions/:id/cancel", s.cancelSessionHandler)
	}

	if s.services.APITester != nil {
		e.POST("/test", s.executeAPITestHandler)
		e.POST("/test/load", s.loadTestHandler)
		e.GET("/test/history", s.apiTestHistoryHandler)
	}

	if s.services.Browser != nil {
		e.POST("/execute", s.executeUITestHandler)
		e.POST("/screenshot", s.screenshotHandler)
		e.GET("/execute/history", s.uiTestHistoryHandler)
	}

	if s.services.Quality != nil {
		e.POST("/assess", s.assessHandler)
		e.POST("/compare", s.compareHandler)
		e.GET("/assess/history", s.assessmentHistoryHandler)
	}

	if s.services.Aggregator != nil {
		e.POST("/collect", s.collectHandler)
		e.POST("/report", s.generateReportHandler)
		e.GET("/export/:report_id", s.exportReportHandler)
	}

	if s.services.Alerts != nil {
		e.POST("/alert", s.createAlertHandler)
		e.GET("/alerts", s.listAlertsHandler)
		e.POST("/alerts/:id/acknowledge", s.acknowledgeAlertHandler)
		e.POST("/alerts/:id/resolve", s.resolveAlertHandler)
		e.GET("/alerts/:id/notifications", s.alertNotificationsHandler)
	}

	if s.services.Scenarios != nil {
		e.GET("/scenarios", s.listScenariosHandler)
		e.POST("/scenarios", s.createScenarioHandler)
		e.GET("/scenarios/templates", s.listTemplatesHandler)
		e.POST("/scenarios/generate", s.generateScenariosHandler)
		e.POST("/scenarios/import/postman", s.importPostmanHandler)
		e.GET("/scenarios/:id", s.getScenarioHandler)
		e.PUT("/scenarios/:id", s.updateScenarioHandler)
		e.DELETE("/scenarios/:id", s.deleteScenarioHandler)

		e.GET("/collections", s.listCollectionsHandler)
		e.POST("/collections", s.createCollectionHandler)
		e.GET("/collections/:id", s.getCollectionHandler)
		e.DELETE("/collections/:id", s.deleteCollectionHandler)
		e.GET("/collections/:id/scenarios", s.resolveCollectionHandler)
		e.POST("/collections/:id/scenarios", s.addToCollectionHandler)
	}
}

// metricsHandler serves the Prometheus exposition for the private registry.
func (s *Server) metricsHandler(c *echo.Context) error {
	s.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
