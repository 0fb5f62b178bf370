package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/models"
)

func setupCollector(t *testing.T) (*Metrics, *events.Publisher) {
	t.Helper()

	bus := events.NewBus(64)
	metrics := NewMetrics()
	collector, err := NewCollector(bus, metrics)
	require.NoError(t, err)

	collector.Start(context.Background())
	t.Cleanup(func() {
		collector.Stop()
		bus.Close()
	})
	return metrics, events.NewPublisher(bus)
}

func executionCount(m *Metrics, testType, status string) float64 {
	return testutil.ToFloat64(m.executions.WithLabelValues(testType, status))
}

func TestNewCollector_Validation(t *testing.T) {
	bus := events.NewBus(8)
	defer bus.Close()

	_, err := NewCollector(nil, NewMetrics())
	assert.ErrorContains(t, err, "event bus is required")

	_, err = NewCollector(bus, nil)
	assert.ErrorContains(t, err, "metrics registry is required")
}

func TestCollector_CountsExecutions(t *testing.T) {
	metrics, publisher := setupCollector(t)
	ctx := context.Background()

	publisher.PublishResultCompleted(ctx, "session_1", &models.TestResult{
		ExecutionID: "api_1",
		ScenarioID:  "scenario_1",
		TestType:    models.TestTypeAPI,
		Passed:      true,
		Score:       0.95,
		DurationMS:  12,
	})
	publisher.PublishResultCompleted(ctx, "session_1", models.FailureResult(
		"api_2", "scenario_2", models.TestTypeAPI, models.ErrorTypeTimeout, "deadline exceeded"))
	publisher.PublishResultCompleted(ctx, "", models.FailureResult(
		"ui_1", "scenario_3", models.TestTypeUI, models.ErrorTypeCancelled, "cancelled"))
	publisher.PublishResultCompleted(ctx, "", models.FailureResult(
		"quality_1", "scenario_4", models.TestTypeAIQuality, models.ErrorTypeInternal, "backend exploded"))

	require.Eventually(t, func() bool {
		return executionCount(metrics, "AI_QUALITY", "FAILED") == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1.0, executionCount(metrics, "API", "COMPLETED"))
	assert.Equal(t, 1.0, executionCount(metrics, "API", "TIMEOUT"))
	assert.Equal(t, 1.0, executionCount(metrics, "UI", "CANCELLED"))
}

func TestCollector_CountsDeliveries(t *testing.T) {
	metrics, publisher := setupCollector(t)
	ctx := context.Background()

	publisher.PublishNotificationStatus(ctx, &models.Notification{
		ID:      "notif_1",
		AlertID: "alert_1",
		Channel: models.ChannelSlack,
		Status:  models.NotificationSent,
	})
	publisher.PublishNotificationStatus(ctx, &models.Notification{
		ID:         "notif_2",
		AlertID:    "alert_1",
		Channel:    models.ChannelEmail,
		Status:     models.NotificationFailed,
		RetryCount: 3,
	})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.deliveries.WithLabelValues("EMAIL", "FAILED")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.deliveries.WithLabelValues("SLACK", "SENT")))
}

func TestCollector_IgnoresUnrelatedEvents(t *testing.T) {
	metrics, publisher := setupCollector(t)
	ctx := context.Background()

	publisher.PublishAlertCreated(ctx, &models.Alert{
		ID:        "alert_1",
		AlertType: "quality_degradation",
		Priority:  models.PriorityHigh,
		Title:     "quality dropped",
	})
	publisher.PublishResultCompleted(ctx, "", &models.TestResult{
		ExecutionID: "api_9",
		ScenarioID:  "scenario_9",
		TestType:    models.TestTypeAPI,
		Passed:      true,
		Score:       1,
	})

	require.Eventually(t, func() bool {
		return executionCount(metrics, "API", "COMPLETED") == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.deliveries.WithLabelValues("SLACK", "SENT")))
}

func TestExecutionStatus(t *testing.T) {
	passed := &events.ResultCompletedPayload{Passed: true}
	assert.Equal(t, models.ExecutionCompleted, executionStatus(passed))

	headline := &events.ResultCompletedPayload{Passed: false}
	assert.Equal(t, models.ExecutionFailed, executionStatus(headline))

	timeout := &events.ResultCompletedPayload{
		Result: &models.TestResult{ErrorType: models.ErrorTypeTimeout},
	}
	assert.Equal(t, models.ExecutionTimeout, executionStatus(timeout))

	cancelled := &events.ResultCompletedPayload{
		Result: &models.TestResult{ErrorType: models.ErrorTypeCancelled},
	}
	assert.Equal(t, models.ExecutionCancelled, executionStatus(cancelled))
}
