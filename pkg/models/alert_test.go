package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertLifecycle(t *testing.T) {
	a := &Alert{ID: "a1", AlertType: "test_failure", Priority: PriorityHigh}
	assert.Equal(t, AlertOpen, a.Status())

	require.NoError(t, a.Acknowledge("oncall", time.Now()))
	assert.Equal(t, AlertAcknowledged, a.Status())
	assert.Equal(t, "oncall", a.AcknowledgedBy)

	// Acknowledgement is non-reversible and non-repeatable.
	assert.ErrorIs(t, a.Acknowledge("other", time.Now()), ErrAlreadyAcknowledged)

	require.NoError(t, a.Resolve(time.Now()))
	assert.Equal(t, AlertResolved, a.Status())

	// Resolution is terminal.
	assert.ErrorIs(t, a.Resolve(time.Now()), ErrAlertResolved)
	assert.ErrorIs(t, a.Acknowledge("late", time.Now()), ErrAlertResolved)
}

func TestAlertLifecycle_ResolveWithoutAck(t *testing.T) {
	a := &Alert{ID: "a2"}
	require.NoError(t, a.Resolve(time.Now()))
	assert.Equal(t, AlertResolved, a.Status())
	assert.False(t, a.Acknowledged)
}

func TestAlertPriority_Ordering(t *testing.T) {
	assert.True(t, PriorityCritical.AtLeast(PriorityHigh))
	assert.True(t, PriorityHigh.AtLeast(PriorityHigh))
	assert.False(t, PriorityLow.AtLeast(PriorityMedium))
	assert.Greater(t, PriorityUrgent.Rank(), PriorityCritical.Rank())
}

func TestNotification_RetryBackoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &Notification{ID: "n1", Status: NotificationPending, MaxRetries: 3}

	// First failure: 30s delay, retry scheduled.
	retry, err := n.MarkFailed(now, "dial error")
	require.NoError(t, err)
	assert.True(t, retry)
	assert.Equal(t, NotificationRetrying, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	require.NotNil(t, n.NextAttemptAt)
	assert.Equal(t, now.Add(30*time.Second), *n.NextAttemptAt)

	// Second failure: 60s delay.
	retry, err = n.MarkFailed(now, "dial error")
	require.NoError(t, err)
	assert.True(t, retry)
	assert.Equal(t, now.Add(60*time.Second), *n.NextAttemptAt)

	// Third failure: 90s delay, budget now spent.
	retry, err = n.MarkFailed(now, "dial error")
	require.NoError(t, err)
	assert.True(t, retry)
	assert.Equal(t, now.Add(90*time.Second), *n.NextAttemptAt)
	assert.Equal(t, 3, n.RetryCount)

	// Fourth failure: terminal.
	retry, err = n.MarkFailed(now, "dial error")
	require.NoError(t, err)
	assert.False(t, retry)
	assert.Equal(t, NotificationFailed, n.Status)
	assert.Nil(t, n.NextAttemptAt)
}

func TestNotification_DeliveredIsImmutable(t *testing.T) {
	n := &Notification{ID: "n2", Status: NotificationPending, MaxRetries: 3}
	require.NoError(t, n.MarkSent(time.Now()))
	require.NoError(t, n.MarkDelivered(time.Now()))

	_, err := n.MarkFailed(time.Now(), "late failure")
	assert.ErrorIs(t, err, ErrNotificationFinal)
	assert.ErrorIs(t, n.MarkSent(time.Now()), ErrNotificationFinal)
	assert.Equal(t, NotificationDelivered, n.Status)
}

func TestNotification_FinalFailureIsImmutable(t *testing.T) {
	n := &Notification{ID: "n3", Status: NotificationPending, MaxRetries: 0}
	retry, err := n.MarkFailed(time.Now(), "boom")
	require.NoError(t, err)
	assert.False(t, retry)
	assert.ErrorIs(t, n.MarkSent(time.Now()), ErrNotificationFinal)
}

func TestAlertRule_ValidateAppliesDefaults(t *testing.T) {
	r := &AlertRule{Name: "high-priority", Channels: []ChannelType{ChannelConsole}}
	require.NoError(t, r.Validate())
	assert.Equal(t, 15, r.CooldownMinutes)
	assert.Equal(t, 10, r.MaxNotificationsPerHour)
}

func TestAlertRule_ValidateRejectsUnknownChannel(t *testing.T) {
	r := &AlertRule{Name: "bad", Channels: []ChannelType{"CARRIER_PIGEON"}}
	err := r.Validate()
	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "channels", ve.Field)
}
