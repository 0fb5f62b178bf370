// Package events provides the in-process event bus and the WebSocket fan-out
// used for real-time progress delivery.
//
// ════════════════════════════════════════════════════════════════
// Delivery model
// ════════════════════════════════════════════════════════════════
//
// Publication is best-effort: execution correctness never depends on event
// delivery — the direct result path between orchestrator and executors is
// authoritative. The bus preserves per-channel publication order to any
// single subscriber; no ordering holds across channels.
//
// Every event is published to one or more named channels:
//
//	session:{id}  — all lifecycle and phase events of one session
//	sessions      — transient session status copies for list views
//	results       — every completed TestResult (aggregator, alert engine)
//	aggregates    — aggregate.updated notifications
//	alerts        — alert.created and notification.status events
//
// Each channel keeps a bounded replay ring. Events carry a per-channel
// monotonic "event_seq"; WebSocket clients resume with a catchup request
// carrying the last seq they saw. When more events were missed than the
// ring holds, the client receives catchup.overflow and must do a full REST
// reload instead of paginating.
package events

// Session lifecycle and phase progress events.
const (
	EventTypeSessionStarted   = "session.started"
	EventTypeSessionCompleted = "session.completed"
	EventTypeSessionCancelled = "session.cancelled"
	EventTypePhaseStarted     = "phase.started"
	EventTypePhaseCompleted   = "phase.completed"
)

// Executor and aggregation events.
const (
	EventTypeResultCompleted  = "result.completed"
	EventTypeAggregateUpdated = "aggregate.updated"
)

// Alerting events.
const (
	EventTypeAlertCreated       = "alert.created"
	EventTypeNotificationStatus = "notification.status"
)

// GlobalSessionsChannel carries transient session status copies for list
// views; per-session detail lives on the session channel.
const GlobalSessionsChannel = "sessions"

// Shared fan-out channels.
const (
	ResultsChannel    = "results"
	AggregatesChannel = "aggregates"
	AlertsChannel     = "alerts"
)

// SessionChannel returns the channel name for one session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // channel name (e.g., "session:abc-123")
	LastEventID *int64 `json:"last_event_id,omitempty"` // for catchup: last event_seq seen
}
