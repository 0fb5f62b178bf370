package models

import (
	"fmt"
	"time"
)

// TestExecution is one run of a scenario under a session. Transitions go
// through the methods below; direct status writes bypass the state machine
// and are a bug.
type TestExecution struct {
	ID         string          `json:"id"`
	ScenarioID string          `json:"scenario_id"`
	SessionID  string          `json:"session_id"`
	Status     ExecutionStatus `json:"status"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`

	Error string `json:"error,omitempty"`
}

// NewTestExecution creates a PENDING execution for a scenario.
func NewTestExecution(id, scenarioID, sessionID string) *TestExecution {
	return &TestExecution{
		ID:         id,
		ScenarioID: scenarioID,
		SessionID:  sessionID,
		Status:     ExecutionPending,
	}
}

// transition moves the execution to next, enforcing the state machine.
func (e *TestExecution) transition(next ExecutionStatus, at time.Time) error {
	if !e.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal execution transition %s -> %s", e.Status, next)
	}
	e.Status = next
	if next == ExecutionRunning {
		t := at
		e.StartedAt = &t
		return nil
	}
	if next.IsTerminal() {
		t := at
		e.CompletedAt = &t
		if e.StartedAt != nil {
			e.DurationMS = t.Sub(*e.StartedAt).Milliseconds()
		}
	}
	return nil
}

// Start moves PENDING -> RUNNING and stamps StartedAt.
func (e *TestExecution) Start(at time.Time) error {
	return e.transition(ExecutionRunning, at)
}

// Complete moves RUNNING -> COMPLETED.
func (e *TestExecution) Complete(at time.Time) error {
	return e.transition(ExecutionCompleted, at)
}

// Fail moves RUNNING -> FAILED and records the reason.
func (e *TestExecution) Fail(at time.Time, reason string) error {
	if err := e.transition(ExecutionFailed, at); err != nil {
		return err
	}
	e.Error = reason
	return nil
}

// Timeout moves RUNNING -> TIMEOUT.
func (e *TestExecution) Timeout(at time.Time) error {
	if err := e.transition(ExecutionTimeout, at); err != nil {
		return err
	}
	e.Error = "deadline exceeded"
	return nil
}

// Cancel moves PENDING or RUNNING -> CANCELLED. Cancelling a terminal
// execution returns ErrNotCancellable.
func (e *TestExecution) Cancel(at time.Time) error {
	if e.Status.IsTerminal() {
		return ErrNotCancellable
	}
	return e.transition(ExecutionCancelled, at)
}
