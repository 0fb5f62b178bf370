package events

import (
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// Timestamp returns the wall-clock timestamp format used by every payload.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SessionStartedPayload is published when the orchestrator admits a session
// and its plan is fixed.
type SessionStartedPayload struct {
	Type          string             `json:"type"` // always EventTypeSessionStarted
	SessionID     string             `json:"session_id"`
	ScenarioCount int                `json:"scenario_count"`
	Phases        []models.TestPhase `json:"phases"`
	Timestamp     string             `json:"timestamp"` // RFC3339Nano
}

// PhaseStartedPayload is published when one plan phase begins executing.
type PhaseStartedPayload struct {
	Type      string           `json:"type"` // always EventTypePhaseStarted
	SessionID string           `json:"session_id"`
	Phase     models.TestPhase `json:"phase"`
	Scenarios int              `json:"scenarios"`
	Timestamp string           `json:"timestamp"` // RFC3339Nano
}

// PhaseCompletedPayload is published when one plan phase finishes, whatever
// the outcome.
type PhaseCompletedPayload struct {
	Type       string           `json:"type"` // always EventTypePhaseCompleted
	SessionID  string           `json:"session_id"`
	Phase      models.TestPhase `json:"phase"`
	Passed     bool             `json:"passed"`
	Score      float64          `json:"score"`
	DurationMS int64            `json:"duration_ms"`
	Timestamp  string           `json:"timestamp"` // RFC3339Nano
}

// SessionCompletedPayload carries the composite verdict. Published to the
// session channel and, transiently, to the global sessions channel.
type SessionCompletedPayload struct {
	Type         string  `json:"type"` // always EventTypeSessionCompleted
	SessionID    string  `json:"session_id"`
	Passed       bool    `json:"passed"`
	OverallScore float64 `json:"overall_score"`
	DurationMS   int64   `json:"duration_ms"`
	Timestamp    string  `json:"timestamp"` // RFC3339Nano
}

// SessionCancelledPayload is published when cancellation is requested for a
// session. Executors stop at their next suspension point afterwards.
type SessionCancelledPayload struct {
	Type      string `json:"type"` // always EventTypeSessionCancelled
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"` // RFC3339Nano
}

// ResultCompletedPayload is published once per terminal execution. The
// aggregator and the alert engine subscribe to these on the results channel.
type ResultCompletedPayload struct {
	Type        string          `json:"type"` // always EventTypeResultCompleted
	SessionID   string          `json:"session_id,omitempty"`
	ExecutionID string          `json:"execution_id"`
	ScenarioID  string          `json:"scenario_id"`
	TestType    models.TestType `json:"test_type"`
	Passed      bool            `json:"passed"`
	Score       float64         `json:"score"`
	DurationMS  int64           `json:"duration_ms"`
	Timestamp   string          `json:"timestamp"` // RFC3339Nano

	// Result carries the full record for push-mode ingestion; subscribers
	// that only need the headline fields may ignore it.
	Result *models.TestResult `json:"result,omitempty"`
}

// AggregateUpdatedPayload is published after each report generation.
type AggregateUpdatedPayload struct {
	Type        string  `json:"type"` // always EventTypeAggregateUpdated
	ReportID    string  `json:"report_id"`
	ResultCount int     `json:"result_count"`
	PassRate    float64 `json:"pass_rate"`
	AvgScore    float64 `json:"avg_score"`
	Timestamp   string  `json:"timestamp"` // RFC3339Nano

	// Report carries the full aggregate for alert-engine evaluation.
	Report *models.AggregatedResults `json:"report,omitempty"`
}

// AlertCreatedPayload is published when a rule fires or a caller submits a
// custom alert.
type AlertCreatedPayload struct {
	Type      string               `json:"type"` // always EventTypeAlertCreated
	AlertID   string               `json:"alert_id"`
	AlertType string               `json:"alert_type"`
	Priority  models.AlertPriority `json:"priority"`
	Title     string               `json:"title"`
	Timestamp string               `json:"timestamp"` // RFC3339Nano
}

// NotificationStatusPayload tracks one notification's delivery transitions.
type NotificationStatusPayload struct {
	Type           string                    `json:"type"` // always EventTypeNotificationStatus
	NotificationID string                    `json:"notification_id"`
	AlertID        string                    `json:"alert_id"`
	Channel        models.ChannelType        `json:"channel"`
	Status         models.NotificationStatus `json:"status"`
	RetryCount     int                       `json:"retry_count"`
	Timestamp      string                    `json:"timestamp"` // RFC3339Nano
}
