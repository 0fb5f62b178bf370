package models

import (
	"errors"
	"time"
)

// AlertStatus is derived from the acknowledged/resolved flags.
type AlertStatus string

const (
	AlertOpen         AlertStatus = "OPEN"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertResolved     AlertStatus = "RESOLVED"
)

var (
	// ErrAlertResolved indicates a state change on a resolved alert.
	ErrAlertResolved = errors.New("alert already resolved")

	// ErrAlreadyAcknowledged indicates a repeated acknowledgement.
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
)

// Alert is a rule-synthesised or caller-submitted condition requiring
// attention. Acknowledgement is optional and non-reversible; resolution is
// terminal.
type Alert struct {
	ID        string        `json:"id"`
	AlertType string        `json:"alert_type"`
	Priority  AlertPriority `json:"priority"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`

	Details map[string]any `json:"details,omitempty"`

	TestResultID  string `json:"test_result_id,omitempty"`
	ScenarioID    string `json:"scenario_id,omitempty"`
	SourceService string `json:"source_service,omitempty"`

	CurrentValues   map[string]float64 `json:"current_values,omitempty"`
	ThresholdValues map[string]float64 `json:"threshold_values,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`

	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Status derives the lifecycle state from the flags.
func (a *Alert) Status() AlertStatus {
	switch {
	case a.Resolved:
		return AlertResolved
	case a.Acknowledged:
		return AlertAcknowledged
	}
	return AlertOpen
}

// Acknowledge moves OPEN -> ACKNOWLEDGED.
func (a *Alert) Acknowledge(by string, at time.Time) error {
	if a.Resolved {
		return ErrAlertResolved
	}
	if a.Acknowledged {
		return ErrAlreadyAcknowledged
	}
	a.Acknowledged = true
	a.AcknowledgedBy = by
	t := at
	a.AcknowledgedAt = &t
	return nil
}

// Resolve moves the alert to its terminal state from OPEN or ACKNOWLEDGED.
func (a *Alert) Resolve(at time.Time) error {
	if a.Resolved {
		return ErrAlertResolved
	}
	a.Resolved = true
	t := at
	a.ResolvedAt = &t
	return nil
}

// RuleSchedule restricts when a rule may fire. Zero value means always
// active. Times are UTC "HH:MM"; an empty DaysOfWeek set means every day.
type RuleSchedule struct {
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	StartTime  string         `json:"start_time,omitempty"`
	EndTime    string         `json:"end_time,omitempty"`
}

// AlertRule turns qualifying results into alerts and notifications.
type AlertRule struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	// Predicates. An empty AlertTypes set matches every alert type.
	AlertTypes        []string      `json:"alert_types,omitempty"`
	PriorityThreshold AlertPriority `json:"priority_threshold,omitempty"`
	MinQualityScore   *float64      `json:"min_quality_score,omitempty"`
	MaxFailureRate    *float64      `json:"max_failure_rate,omitempty"`
	MaxResponseTimeMS *float64      `json:"max_response_time_ms,omitempty"`

	Recipients []string      `json:"recipients"`
	Channels   []ChannelType `json:"channels"`

	CooldownMinutes         int          `json:"cooldown_minutes"`
	MaxNotificationsPerHour int          `json:"max_notifications_per_hour"`
	Schedule                RuleSchedule `json:"schedule,omitempty"`
}

// Validate checks rule fields; zero cooldown/cap values are filled with the
// defaults (15 minutes, 10 per hour) rather than rejected.
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return NewValidationError("name", "must not be empty")
	}
	if len(r.Channels) == 0 {
		return NewValidationError("channels", "must not be empty")
	}
	for _, c := range r.Channels {
		if !c.IsValid() {
			return NewValidationError("channels", "unknown channel "+string(c))
		}
	}
	if r.PriorityThreshold != "" && !r.PriorityThreshold.IsValid() {
		return NewValidationError("priority_threshold", "unknown priority "+string(r.PriorityThreshold))
	}
	if r.CooldownMinutes < 0 {
		return NewValidationError("cooldown_minutes", "must be >= 0")
	}
	if r.MaxNotificationsPerHour < 0 {
		return NewValidationError("max_notifications_per_hour", "must be >= 0")
	}
	if r.CooldownMinutes == 0 {
		r.CooldownMinutes = 15
	}
	if r.MaxNotificationsPerHour == 0 {
		r.MaxNotificationsPerHour = 10
	}
	return nil
}

// ErrNotificationFinal indicates a mutation on a DELIVERED or terminally
// FAILED notification.
var ErrNotificationFinal = errors.New("notification in final state")

// Notification is one delivery attempt of one alert on one channel to one
// recipient.
type Notification struct {
	ID       string        `json:"id"`
	AlertID  string        `json:"alert_id"`
	Channel  ChannelType   `json:"channel"`
	Priority AlertPriority `json:"priority,omitempty"`

	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Content   string `json:"content"`

	Status     NotificationStatus `json:"status"`
	RetryCount int                `json:"retry_count"`
	MaxRetries int                `json:"max_retries"`

	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	Error string `json:"error,omitempty"`
}

// IsFinal reports whether the notification can no longer change state.
// FAILED is always final; retryable failures use RETRYING.
func (n *Notification) IsFinal() bool {
	return n.Status == NotificationDelivered || n.Status == NotificationFailed
}

// MarkSent records a successful handoff to the channel.
func (n *Notification) MarkSent(at time.Time) error {
	if n.IsFinal() {
		return ErrNotificationFinal
	}
	n.Status = NotificationSent
	t := at
	n.SentAt = &t
	return nil
}

// MarkDelivered records confirmed delivery. The notification is immutable
// afterwards.
func (n *Notification) MarkDelivered(at time.Time) error {
	if n.IsFinal() {
		return ErrNotificationFinal
	}
	n.Status = NotificationDelivered
	t := at
	n.DeliveredAt = &t
	return nil
}

// MarkFailed records a delivery failure. Below the retry budget the
// notification moves to RETRYING with a linear back-off delay of
// 30*(retry_count+1) seconds; otherwise it fails terminally and is retained
// for audit. Returns true when a retry was scheduled.
func (n *Notification) MarkFailed(at time.Time, cause string) (bool, error) {
	if n.IsFinal() {
		return false, ErrNotificationFinal
	}
	n.Error = cause
	if n.RetryCount < n.MaxRetries {
		delay := time.Duration(30*(n.RetryCount+1)) * time.Second
		n.RetryCount++
		n.Status = NotificationRetrying
		next := at.Add(delay)
		n.NextAttemptAt = &next
		return true, nil
	}
	n.Status = NotificationFailed
	n.NextAttemptAt = nil
	return false, nil
}
