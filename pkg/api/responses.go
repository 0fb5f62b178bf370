package api

import (
	"github.com/cruciblehq/crucible/pkg/models"
	"github.com/cruciblehq/crucible/pkg/orchestrator"
	"github.com/cruciblehq/crucible/pkg/scenario"
)

// StartSessionResponse acknowledges an accepted session with its plan.
type StartSessionResponse struct {
	SessionID   string                   `json:"session_id"`
	Status      models.SessionStatus     `json:"status"`
	PlanSummary map[models.TestPhase]int `json:"plan_summary"`
}

// SessionListResponse lists known sessions, newest first.
type SessionListResponse struct {
	Sessions []*orchestrator.Session `json:"sessions"`
	Count    int                     `json:"count"`
}

// HistoryResponse carries recent executor results. The aggregator's pull
// collector consumes this shape.
type HistoryResponse struct {
	Results []*models.TestResult `json:"results"`
	Count   int                  `json:"count"`
}

// ScreenshotResponse returns where a captured page render was stored.
type ScreenshotResponse struct {
	Path string `json:"path"`
}

// AlertListResponse lists active (unresolved) alerts.
type AlertListResponse struct {
	Alerts []*models.Alert `json:"alerts"`
	Count  int             `json:"count"`
}

// NotificationListResponse lists the notifications fanned out for an alert.
type NotificationListResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Count         int                    `json:"count"`
}

// ScenarioListResponse lists scenarios matching a filter.
type ScenarioListResponse struct {
	Scenarios []*models.TestScenario `json:"scenarios"`
	Count     int                    `json:"count"`
}

// CollectionListResponse lists scenario collections.
type CollectionListResponse struct {
	Collections []*models.ScenarioCollection `json:"collections"`
	Count       int                          `json:"count"`
}

// TemplateListResponse lists the built-in scenario templates.
type TemplateListResponse struct {
	Templates []scenario.TemplateInfo `json:"templates"`
	Count     int                     `json:"count"`
}

// HealthResponse is the composite health report for the hosted services.
type HealthResponse struct {
	ServiceName  string            `json:"service_name"`
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Metrics      map[string]any    `json:"metrics"`
}
