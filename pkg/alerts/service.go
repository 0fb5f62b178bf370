// Package alerts turns test results and aggregated reports into alerts
// and delivers them over the configured notification channels.
//
// Rules gate evaluation with predicates, a cooldown, an hourly cap and an
// active schedule. Admitted rules synthesise one alert and fan out one
// notification per (recipient, channel) pair. A single delivery worker
// drains the queue in batches; within a batch, channel sends run
// concurrently. Failed deliveries back off linearly until the retry
// budget is spent.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/models"
)

// deliveryBatchSize caps the notifications drained per worker tick.
const deliveryBatchSize = 10

// maxStoredAlerts caps the alerts held between cleanup sweeps.
const maxStoredAlerts = 10000

// Service is the alert and notification engine.
type Service struct {
	cfg       *config.NotificationConfig
	rules     []*models.AlertRule
	templates *TemplateRegistry
	channels  map[models.ChannelType]Channel
	bus       *events.Bus
	publisher *events.Publisher

	mu            sync.Mutex
	alerts        map[string]*models.Alert
	alertOrder    []string
	notifications map[string]*models.Notification
	queue         []string
	ruleStates    map[string]*ruleState

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the engine with rules and channels materialised from
// configuration. Channels with invalid settings are logged and skipped;
// the bus and publisher are optional.
func NewService(cfg *config.NotificationConfig, bus *events.Bus, publisher *events.Publisher) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notification configuration is required")
	}
	rules, err := rulesFromConfig(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("load alert rules: %w", err)
	}
	s := &Service{
		cfg:           cfg,
		rules:         rules,
		templates:     NewTemplateRegistry(),
		channels:      buildChannels(cfg),
		bus:           bus,
		publisher:     publisher,
		alerts:        make(map[string]*models.Alert),
		notifications: make(map[string]*models.Notification),
		ruleStates:    make(map[string]*ruleState),
	}
	slog.Info("Alert engine initialized",
		"rules", len(rules),
		"channels", len(s.channels),
		"max_retries", cfg.MaxRetries)
	return s, nil
}

func buildChannels(cfg *config.NotificationConfig) map[models.ChannelType]Channel {
	var candidates []Channel
	if cfg.ConsoleOn() {
		candidates = append(candidates, ConsoleChannel{})
	}
	if cfg.LogDir != "" {
		candidates = append(candidates, NewFileChannel(cfg.LogDir))
	}
	if cfg.Email != nil && cfg.Email.Enabled {
		candidates = append(candidates, NewEmailChannel(cfg.Email))
	}
	if cfg.Slack != nil && cfg.Slack.Enabled {
		candidates = append(candidates, NewSlackChannel(cfg.Slack))
	}
	if cfg.Webhook != nil && cfg.Webhook.Enabled {
		candidates = append(candidates, NewWebhookChannel(cfg.Webhook))
	}

	channels := make(map[models.ChannelType]Channel, len(candidates))
	for _, ch := range candidates {
		if err := ch.ValidateConfig(); err != nil {
			slog.Warn("Notification channel disabled by invalid configuration",
				"channel", ch.Type(), "error", err)
			continue
		}
		channels[ch.Type()] = ch
	}
	return channels
}

// Templates exposes the registry so callers can install custom templates.
func (s *Service) Templates() *TemplateRegistry {
	return s.templates
}

// Rules returns the loaded rules.
func (s *Service) Rules() []*models.AlertRule {
	return s.rules
}

// Start launches the background loop: bus consumption, the delivery
// worker and the retention sweep.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	var sub *events.Subscription
	if s.bus != nil {
		sub = s.bus.Subscribe(events.ResultsChannel, events.AggregatesChannel)
	}
	go s.run(ctx, sub)
	slog.Info("Alert engine started")
}

// Stop signals the background loop to exit and waits for it.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Alert engine stopped")
}

func (s *Service) run(ctx context.Context, sub *events.Subscription) {
	defer close(s.done)
	if sub != nil {
		defer s.bus.Unsubscribe(sub)
	}

	var eventCh <-chan events.Message
	if sub != nil {
		eventCh = sub.Events()
	}

	deliverEvery := s.cfg.DeliverInterval
	if deliverEvery <= 0 {
		deliverEvery = time.Second
	}
	deliverTicker := time.NewTicker(deliverEvery)
	defer deliverTicker.Stop()

	cleanupInterval := s.cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			s.consume(ctx, m)
		case <-deliverTicker.C:
			s.deliverBatch(ctx)
		case <-cleanupTicker.C:
			s.cleanup()
		}
	}
}

func (s *Service) consume(ctx context.Context, m events.Message) {
	switch m.Channel {
	case events.ResultsChannel:
		var payload events.ResultCompletedPayload
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			slog.Warn("Alert engine: dropping undecodable result event", "error", err)
			return
		}
		if payload.Result == nil {
			return
		}
		s.EvaluateResult(ctx, payload.Result)
	case events.AggregatesChannel:
		var payload events.AggregateUpdatedPayload
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			slog.Warn("Alert engine: dropping undecodable aggregate event", "error", err)
			return
		}
		if payload.Report == nil {
			return
		}
		s.EvaluateReport(ctx, payload.Report)
	}
}

// EvaluateResult runs every enabled rule against one result. Each
// admitted rule synthesises an alert and fans out its notifications; the
// created alerts are returned.
func (s *Service) EvaluateResult(ctx context.Context, r *models.TestResult) []*models.Alert {
	if r == nil {
		return nil
	}
	now := time.Now().UTC()
	var created []*models.Alert

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		conds := filterConditions(rule, resultConditions(rule, r))
		if len(conds) == 0 {
			continue
		}
		state := s.stateFor(rule.ID)
		if !state.admit(rule, now) {
			continue
		}
		alert := alertFromCondition(primaryCondition(conds), now)
		alert.TestResultID = r.ExecutionID
		alert.ScenarioID = r.ScenarioID
		alert.SourceService = models.ServiceFromExecutionID(r.ExecutionID)
		s.storeAlertLocked(ctx, alert)
		notifs := s.fanOutLocked(ctx, alert, rule, now)
		state.record(now, len(notifs))
		created = append(created, alert)
	}
	return created
}

// EvaluateReport runs the aggregate-level rules against one report.
func (s *Service) EvaluateReport(ctx context.Context, report *models.AggregatedResults) []*models.Alert {
	if report == nil {
		return nil
	}
	now := time.Now().UTC()
	var created []*models.Alert

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		conds := filterConditions(rule, reportConditions(rule, report))
		if len(conds) == 0 {
			continue
		}
		state := s.stateFor(rule.ID)
		if !state.admit(rule, now) {
			continue
		}
		alert := alertFromCondition(primaryCondition(conds), now)
		s.storeAlertLocked(ctx, alert)
		notifs := s.fanOutLocked(ctx, alert, rule, now)
		state.record(now, len(notifs))
		created = append(created, alert)
	}
	return created
}

// CreateAlert stores a caller-submitted alert and routes it through the
// rules whose type and priority predicates match, fanning out their
// notifications.
func (s *Service) CreateAlert(ctx context.Context, alert *models.Alert) (*models.Alert, error) {
	if alert == nil {
		return nil, models.NewValidationError("alert", "must not be nil")
	}
	if alert.AlertType == "" {
		return nil, models.NewValidationError("alert_type", "must not be empty")
	}
	if alert.Title == "" {
		return nil, models.NewValidationError("title", "must not be empty")
	}
	if alert.Priority == "" {
		alert.Priority = models.PriorityMedium
	}
	if !alert.Priority.IsValid() {
		return nil, models.NewValidationError("priority", "unknown priority "+string(alert.Priority))
	}

	now := time.Now().UTC()
	if alert.ID == "" {
		alert.ID = "alert_" + uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.Details = redactDetails(alert.Details)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return nil, fmt.Errorf("alert %s: %w", alert.ID, models.ErrAlreadyExists)
	}
	s.storeAlertLocked(ctx, alert)
	for _, rule := range s.rules {
		if !rule.Enabled || !ruleMatchesAlert(rule, alert) {
			continue
		}
		state := s.stateFor(rule.ID)
		if !state.admit(rule, now) {
			continue
		}
		notifs := s.fanOutLocked(ctx, alert, rule, now)
		state.record(now, len(notifs))
	}
	return alert, nil
}

// ActiveAlerts returns snapshots of the unresolved alerts, newest first.
// Accessors copy because the stored records keep changing under the lock.
func (s *Service) ActiveAlerts() []*models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Alert
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		a := s.alerts[s.alertOrder[i]]
		if a != nil && !a.Resolved {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out
}

// Alert returns a snapshot of one alert by id.
func (s *Service) Alert(id string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	copied := *a
	return &copied, nil
}

// Acknowledge moves an open alert to ACKNOWLEDGED.
func (s *Service) Acknowledge(id, by string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	if err := a.Acknowledge(by, time.Now().UTC()); err != nil {
		return nil, err
	}
	copied := *a
	return &copied, nil
}

// ResolveAlert moves an alert to its terminal RESOLVED state.
func (s *Service) ResolveAlert(id string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	if err := a.Resolve(time.Now().UTC()); err != nil {
		return nil, err
	}
	copied := *a
	return &copied, nil
}

// Notifications lists snapshots of an alert's notifications, oldest first.
func (s *Service) Notifications(alertID string) []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Notification
	for _, n := range s.notifications {
		if n.AlertID == alertID {
			copied := *n
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// PendingCount reports how many notification deliveries are queued.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Service) stateFor(ruleID string) *ruleState {
	st, ok := s.ruleStates[ruleID]
	if !ok {
		st = &ruleState{}
		s.ruleStates[ruleID] = st
	}
	return st
}

func alertFromCondition(cond condition, now time.Time) *models.Alert {
	return &models.Alert{
		ID:              "alert_" + uuid.New().String(),
		AlertType:       cond.alertType,
		Priority:        cond.priority,
		Title:           cond.title,
		Message:         cond.message,
		Details:         redactDetails(cond.details),
		CurrentValues:   cond.currentValues,
		ThresholdValues: cond.thresholdValues,
		CreatedAt:       now,
	}
}

func (s *Service) storeAlertLocked(ctx context.Context, alert *models.Alert) {
	s.alerts[alert.ID] = alert
	s.alertOrder = append(s.alertOrder, alert.ID)
	for len(s.alertOrder) > maxStoredAlerts {
		delete(s.alerts, s.alertOrder[0])
		s.alertOrder = s.alertOrder[1:]
	}
	if s.publisher != nil {
		s.publisher.PublishAlertCreated(ctx, alert)
	}
	slog.Info("Alert created",
		"alert_id", alert.ID,
		"alert_type", alert.AlertType,
		"priority", alert.Priority)
}

// fanOutLocked creates one pending notification per (recipient, channel)
// pair of the rule. Rules without recipients still notify each channel
// once, with an empty recipient.
func (s *Service) fanOutLocked(ctx context.Context, alert *models.Alert, rule *models.AlertRule, now time.Time) []*models.Notification {
	recipients := rule.Recipients
	if len(recipients) == 0 {
		recipients = []string{""}
	}
	var created []*models.Notification
	for _, recipient := range recipients {
		for _, channel := range rule.Channels {
			subject, content := s.templates.render(alert, channel)
			n := &models.Notification{
				ID:         "notif_" + uuid.New().String(),
				AlertID:    alert.ID,
				Channel:    channel,
				Priority:   alert.Priority,
				Recipient:  recipient,
				Subject:    subject,
				Content:    content,
				Status:     models.NotificationPending,
				MaxRetries: s.cfg.MaxRetries,
				CreatedAt:  now,
			}
			s.notifications[n.ID] = n
			s.queue = append(s.queue, n.ID)
			if s.publisher != nil {
				s.publisher.PublishNotificationStatus(ctx, n)
			}
			created = append(created, n)
		}
	}
	return created
}

// deliverBatch drains up to one batch from the queue and delivers it,
// sends running concurrently within the batch.
func (s *Service) deliverBatch(ctx context.Context) {
	batch := s.nextBatch(time.Now().UTC())
	if len(batch) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, n := range batch {
		wg.Add(1)
		go func(n *models.Notification) {
			defer wg.Done()
			s.deliverOne(ctx, n)
		}(n)
	}
	wg.Wait()
}

// nextBatch dequeues the due notifications, preserving queue order.
// Entries whose retry delay has not elapsed stay queued; entries removed
// by cleanup or already final are dropped.
func (s *Service) nextBatch(now time.Time) []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var batch []*models.Notification
	var kept []string
	for i, id := range s.queue {
		if len(batch) == deliveryBatchSize {
			kept = append(kept, s.queue[i:]...)
			break
		}
		n, ok := s.notifications[id]
		if !ok || n.IsFinal() {
			continue
		}
		if n.NextAttemptAt != nil && n.NextAttemptAt.After(now) {
			kept = append(kept, id)
			continue
		}
		batch = append(batch, n)
	}
	s.queue = kept
	return batch
}

func (s *Service) deliverOne(ctx context.Context, n *models.Notification) {
	tracer := otel.Tracer("crucible.alerts")
	ctx, span := tracer.Start(ctx, "alerts.deliver",
		trace.WithAttributes(
			attribute.String("notification.id", n.ID),
			attribute.String("alert.id", n.AlertID),
			attribute.String("channel", string(n.Channel)),
			attribute.Int("retry_count", n.RetryCount),
		),
	)
	defer span.End()

	var confirmed bool
	var err error
	if ch := s.channels[n.Channel]; ch == nil {
		err = fmt.Errorf("channel %s not configured", n.Channel)
	} else {
		confirmed, err = ch.Send(ctx, n)
		if err == nil && !confirmed {
			err = fmt.Errorf("delivery not confirmed")
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if err != nil {
		retry, markErr := n.MarkFailed(now, err.Error())
		if markErr == nil && retry {
			s.queue = append(s.queue, n.ID)
		}
	} else {
		if markErr := n.MarkSent(now); markErr == nil {
			// Every built-in channel confirms synchronously, so a
			// successful send is a delivery.
			_ = n.MarkDelivered(now)
		}
	}
	status := n.Status
	s.mu.Unlock()

	if s.publisher != nil {
		s.publisher.PublishNotificationStatus(ctx, n)
	}
	if err != nil {
		slog.Warn("Notification delivery failed",
			"notification_id", n.ID,
			"channel", n.Channel,
			"status", status,
			"error", err)
	}
}

// cleanup drops alerts past retention and notifications that finished
// their delivery past retention. Pending and retrying notifications are
// always kept.
func (s *Service) cleanup() {
	days := s.cfg.RetentionDays
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	s.mu.Lock()
	removedAlerts := 0
	keptOrder := s.alertOrder[:0]
	for _, id := range s.alertOrder {
		a := s.alerts[id]
		if a != nil && a.CreatedAt.Before(cutoff) {
			delete(s.alerts, id)
			removedAlerts++
			continue
		}
		keptOrder = append(keptOrder, id)
	}
	s.alertOrder = keptOrder

	removedNotifications := 0
	for id, n := range s.notifications {
		if n.CreatedAt.Before(cutoff) && sweepableStatus(n.Status) {
			delete(s.notifications, id)
			removedNotifications++
		}
	}
	s.mu.Unlock()

	if removedAlerts > 0 || removedNotifications > 0 {
		slog.Info("Alert engine: retention sweep",
			"alerts_removed", removedAlerts,
			"notifications_removed", removedNotifications)
	}
}

func sweepableStatus(st models.NotificationStatus) bool {
	return st == models.NotificationSent ||
		st == models.NotificationDelivered ||
		st == models.NotificationFailed
}
