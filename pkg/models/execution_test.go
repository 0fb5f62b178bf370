package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionLifecycle_CompletedPath(t *testing.T) {
	e := NewTestExecution("apitester_1", "scn-1", "sess-1")
	assert.Equal(t, ExecutionPending, e.Status)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, e.Start(start))
	assert.Equal(t, ExecutionRunning, e.Status)
	require.NotNil(t, e.StartedAt)

	end := start.Add(1500 * time.Millisecond)
	require.NoError(t, e.Complete(end))
	assert.Equal(t, ExecutionCompleted, e.Status)
	require.NotNil(t, e.CompletedAt)
	assert.Equal(t, int64(1500), e.DurationMS, "duration must equal completed_at - started_at")
}

func TestExecutionLifecycle_PendingToCancelled(t *testing.T) {
	e := NewTestExecution("browser_1", "scn-1", "sess-1")
	require.NoError(t, e.Cancel(time.Now()))
	assert.Equal(t, ExecutionCancelled, e.Status)
	assert.Nil(t, e.StartedAt)
}

func TestExecutionLifecycle_IllegalTransitions(t *testing.T) {
	now := time.Now()

	// Completing without starting.
	e := NewTestExecution("x_1", "scn", "sess")
	assert.Error(t, e.Complete(now))

	// Restarting a terminal execution.
	e = NewTestExecution("x_2", "scn", "sess")
	require.NoError(t, e.Start(now))
	require.NoError(t, e.Fail(now.Add(time.Second), "boom"))
	assert.Error(t, e.Start(now))
	assert.Error(t, e.Complete(now))

	// Cancelling a terminal execution.
	assert.ErrorIs(t, e.Cancel(now), ErrNotCancellable)
}

func TestExecutionLifecycle_TimeoutRecordsReason(t *testing.T) {
	e := NewTestExecution("x_3", "scn", "sess")
	require.NoError(t, e.Start(time.Now()))
	require.NoError(t, e.Timeout(time.Now()))
	assert.Equal(t, ExecutionTimeout, e.Status)
	assert.NotEmpty(t, e.Error)
}

func TestExecutionStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to ExecutionStatus
		legal    bool
	}{
		{ExecutionPending, ExecutionRunning, true},
		{ExecutionPending, ExecutionCancelled, true},
		{ExecutionPending, ExecutionCompleted, false},
		{ExecutionRunning, ExecutionCompleted, true},
		{ExecutionRunning, ExecutionFailed, true},
		{ExecutionRunning, ExecutionTimeout, true},
		{ExecutionRunning, ExecutionCancelled, true},
		{ExecutionRunning, ExecutionPending, false},
		{ExecutionCompleted, ExecutionRunning, false},
		{ExecutionCancelled, ExecutionRunning, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.legal, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestServiceFromExecutionID(t *testing.T) {
	assert.Equal(t, "apitester", ServiceFromExecutionID("apitester_ab12"))
	assert.Equal(t, "quality", ServiceFromExecutionID("quality_x_y"))
	assert.Equal(t, "bare", ServiceFromExecutionID("bare"))
}
