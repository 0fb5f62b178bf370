package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// Publisher exposes typed publish methods over the bus. Each method builds
// the payload, stamps it, and routes it to the channels its consumers
// watch. All publication is best-effort: failures are logged and never
// propagate into execution paths.
//
// Each public method accepts a specific typed payload struct — see
// payloads.go.
type Publisher struct {
	bus *Bus
	now func() time.Time
}

// NewPublisher creates a Publisher over the given bus.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus, now: time.Now}
}

// publish sends the payload to every listed channel, logging failures.
func (p *Publisher) publish(ctx context.Context, payload any, channels ...string) {
	for _, ch := range channels {
		if err := p.bus.Publish(ctx, ch, payload); err != nil {
			slog.Warn("Failed to publish event", "channel", ch, "error", err)
		}
	}
}

// PublishSessionStarted announces a new session on its channel and the
// global sessions channel.
func (p *Publisher) PublishSessionStarted(ctx context.Context, sessionID string, scenarioCount int, phases []models.TestPhase) {
	p.publish(ctx, SessionStartedPayload{
		Type:          EventTypeSessionStarted,
		SessionID:     sessionID,
		ScenarioCount: scenarioCount,
		Phases:        phases,
		Timestamp:     Timestamp(p.now()),
	}, SessionChannel(sessionID), GlobalSessionsChannel)
}

// PublishPhaseStarted announces one phase beginning.
func (p *Publisher) PublishPhaseStarted(ctx context.Context, sessionID string, phase models.TestPhase, scenarios int) {
	p.publish(ctx, PhaseStartedPayload{
		Type:      EventTypePhaseStarted,
		SessionID: sessionID,
		Phase:     phase,
		Scenarios: scenarios,
		Timestamp: Timestamp(p.now()),
	}, SessionChannel(sessionID))
}

// PublishPhaseCompleted announces one phase's outcome.
func (p *Publisher) PublishPhaseCompleted(ctx context.Context, sessionID string, phase models.TestPhase, passed bool, score float64, durationMS int64) {
	p.publish(ctx, PhaseCompletedPayload{
		Type:       EventTypePhaseCompleted,
		SessionID:  sessionID,
		Phase:      phase,
		Passed:     passed,
		Score:      score,
		DurationMS: durationMS,
		Timestamp:  Timestamp(p.now()),
	}, SessionChannel(sessionID))
}

// PublishSessionCompleted announces the composite verdict on the session
// channel and, transiently, on the global sessions channel.
func (p *Publisher) PublishSessionCompleted(ctx context.Context, sessionID string, passed bool, overallScore float64, durationMS int64) {
	p.publish(ctx, SessionCompletedPayload{
		Type:         EventTypeSessionCompleted,
		SessionID:    sessionID,
		Passed:       passed,
		OverallScore: overallScore,
		DurationMS:   durationMS,
		Timestamp:    Timestamp(p.now()),
	}, SessionChannel(sessionID), GlobalSessionsChannel)
}

// PublishSessionCancelled announces a cancellation request.
func (p *Publisher) PublishSessionCancelled(ctx context.Context, sessionID string) {
	p.publish(ctx, SessionCancelledPayload{
		Type:      EventTypeSessionCancelled,
		SessionID: sessionID,
		Timestamp: Timestamp(p.now()),
	}, SessionChannel(sessionID), GlobalSessionsChannel)
}

// PublishResultCompleted pushes a terminal result to the results channel
// and the owning session channel.
func (p *Publisher) PublishResultCompleted(ctx context.Context, sessionID string, result *models.TestResult) {
	payload := ResultCompletedPayload{
		Type:        EventTypeResultCompleted,
		SessionID:   sessionID,
		ExecutionID: result.ExecutionID,
		ScenarioID:  result.ScenarioID,
		TestType:    result.TestType,
		Passed:      result.Passed,
		Score:       result.Score,
		DurationMS:  result.DurationMS,
		Timestamp:   Timestamp(p.now()),
		Result:      result,
	}
	channels := []string{ResultsChannel}
	if sessionID != "" {
		channels = append(channels, SessionChannel(sessionID))
	}
	p.publish(ctx, payload, channels...)
}

// PublishAggregateUpdated announces a freshly generated report.
func (p *Publisher) PublishAggregateUpdated(ctx context.Context, report *models.AggregatedResults) {
	p.publish(ctx, AggregateUpdatedPayload{
		Type:        EventTypeAggregateUpdated,
		ReportID:    report.ReportID,
		ResultCount: report.ResultCount,
		PassRate:    report.Summary.PassRate,
		AvgScore:    report.Summary.AvgScore,
		Timestamp:   Timestamp(p.now()),
		Report:      report,
	}, AggregatesChannel)
}

// PublishAlertCreated announces a new alert.
func (p *Publisher) PublishAlertCreated(ctx context.Context, alert *models.Alert) {
	p.publish(ctx, AlertCreatedPayload{
		Type:      EventTypeAlertCreated,
		AlertID:   alert.ID,
		AlertType: alert.AlertType,
		Priority:  alert.Priority,
		Title:     alert.Title,
		Timestamp: Timestamp(p.now()),
	}, AlertsChannel)
}

// PublishNotificationStatus tracks a notification's delivery transition.
func (p *Publisher) PublishNotificationStatus(ctx context.Context, n *models.Notification) {
	p.publish(ctx, NotificationStatusPayload{
		Type:           EventTypeNotificationStatus,
		NotificationID: n.ID,
		AlertID:        n.AlertID,
		Channel:        n.Channel,
		Status:         n.Status,
		RetryCount:     n.RetryCount,
		Timestamp:      Timestamp(p.now()),
	}, AlertsChannel)
}
