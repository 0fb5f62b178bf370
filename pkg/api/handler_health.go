package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// browserProbeTimeout bounds the live engine check inside the health
// handler so a wedged engine cannot stall the endpoint.
const browserProbeTimeout = 5 * time.Second

// healthHandler handles GET /health. It reports one status per hosted
// service plus an overall verdict: unhealthy (503) only when every hosted
// service is down, degraded (200) when some are, healthy otherwise. A
// process hosting a single broken executor therefore reports 503 while the
// full platform with one broken executor keeps serving.
func (s *Server) healthHandler(c *echo.Context) error {
	deps := make(map[string]string)
	metrics := map[string]any{
		"websocket_connections": s.connMgr.ActiveConnections(),
	}

	if s.services.Orchestrator != nil {
		deps["orchestrator"] = healthStatusHealthy
		metrics["active_sessions"] = s.services.Orchestrator.ActiveSessions()
	}
	if s.services.Scenarios != nil {
		deps["scenarios"] = healthStatusHealthy
		stats := s.services.Scenarios.Stats()
		metrics["scenarios"] = stats.Scenarios
		metrics["collections"] = stats.Collections
	}
	if s.services.APITester != nil {
		deps["api_tester"] = healthStatusHealthy
		metrics["api_test_history"] = s.services.APITester.History().Len()
	}
	if s.services.Browser != nil {
		probeCtx, cancel := context.WithTimeout(c.Request().Context(), browserProbeTimeout)
		if err := s.services.Browser.Health(probeCtx); err != nil {
			deps["browser"] = healthStatusUnhealthy
		} else {
			deps["browser"] = healthStatusHealthy
		}
		cancel()
		metrics["browser_contexts"] = s.services.Browser.ActiveContexts()
	}
	if s.services.Quality != nil {
		deps["quality"] = healthStatusHealthy
		metrics["judges"] = len(s.services.Quality.Judges())
	}
	if s.services.Aggregator != nil {
		deps["aggregator"] = healthStatusHealthy
		metrics["window_results"] = s.services.Aggregator.WindowSize()
	}
	if s.services.Alerts != nil {
		deps["alerts"] = healthStatusHealthy
		metrics["active_alerts"] = len(s.services.Alerts.ActiveAlerts())
		metrics["pending_notifications"] = s.services.Alerts.PendingCount()
	}

	status := overallStatus(deps)
	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		ServiceName:  version.AppName,
		Status:       status,
		Version:      version.GitCommit,
		Dependencies: deps,
		Metrics:      metrics,
	})
}

// overallStatus folds per-service statuses into one verdict.
func overallStatus(deps map[string]string) string {
	if len(deps) == 0 {
		return healthStatusHealthy
	}
	unhealthy := 0
	for _, st := range deps {
		if st == healthStatusUnhealthy {
			unhealthy++
		}
	}
	switch {
	case unhealthy == 0:
		return healthStatusHealthy
	case unhealthy == len(deps):
		return healthStatusUnhealthy
	default:
		return healthStatusDegraded
	}
}
