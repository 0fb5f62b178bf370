package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/api"
	"github.com/cruciblehq/crucible/pkg/models"
	"github.com/cruciblehq/crucible/pkg/orchestrator"
)

// ────────────────────────────────────────────────────────────
// Timeout tests — a session that outlives its budget fails with
// a timeout error and a failing verdict, while the stalled probe
// itself times out at the scenario budget and still lands in the
// executor history.
// ────────────────────────────────────────────────────────────

func TestE2E_SessionTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	// Session budget below the scenario budget: the session deadline
	// fires first, then the probe gives up on its own timer.
	app := NewTestApp(t, WithSessionTimeout(500*time.Millisecond))
	target, _ := gatedTarget(t)

	sc := probeScenario("stuck probe", target.URL+"/health")
	sc.TimeoutSeconds = 1

	resp := app.StartSession(t, &orchestrator.StartRequest{
		Scenarios: []*models.TestScenario{sc},
		Context:   models.TestContext{Environment: models.EnvTest},
	})

	sess := app.AwaitSession(t, resp.SessionID)
	assert.Equal(t, models.SessionFailed, sess.Status)
	assert.Equal(t, "session timeout exceeded", sess.Error)
	require.Len(t, sess.Executions, 1)
	assert.Equal(t, models.ExecutionTimeout, sess.Executions[0].Status)
	assert.NotNil(t, sess.Executions[0].CompletedAt)

	// Timed-out sessions still render a verdict so the caller sees
	// which phase sank it.
	require.NotNil(t, sess.Verdict)
	assert.False(t, sess.Verdict.Passed)
	assert.Equal(t, 0.0, sess.Verdict.PhaseScores[models.PhaseAPIProbes])

	apiPhase := sess.PhaseResults[models.PhaseAPIProbes]
	require.NotNil(t, apiPhase)
	assert.False(t, apiPhase.Passed)
	require.Len(t, apiPhase.Results, 1)
	probe := apiPhase.Results[0]
	assert.Equal(t, models.ErrorTypeTimeout, probe.ErrorType)
	assert.Contains(t, probe.ErrorMessage, "request exceeded")
	assert.Contains(t, probe.Recommendations,
		"Increase timeout_seconds or check the target's responsiveness")

	// The probe's failure is also retrievable from the executor history.
	hist := getJSON[api.HistoryResponse](t, app, "/test/history", http.StatusOK)
	var recorded *models.TestResult
	for _, r := range hist.Results {
		if r.ExecutionID == probe.ExecutionID {
			recorded = r
		}
	}
	require.NotNil(t, recorded, "timed-out probe missing from /test/history")
	assert.Equal(t, models.ErrorTypeTimeout, recorded.ErrorType)
}

func TestE2E_ScenarioTimeoutWithinSessionBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	// Generous session budget: only the probe times out, so the session
	// completes normally with a failing result inside it.
	app := NewTestApp(t)
	target, _ := gatedTarget(t)

	sc := probeScenario("slow endpoint", target.URL+"/health")
	sc.TimeoutSeconds = 1

	resp := app.StartSession(t, &orchestrator.StartRequest{
		Scenarios: []*models.TestScenario{sc},
		Context:   models.TestContext{Environment: models.EnvTest},
	})

	sess := app.AwaitSession(t, resp.SessionID)
	assert.Equal(t, models.SessionCompleted, sess.Status)
	assert.Empty(t, sess.Error)
	require.Len(t, sess.Executions, 1)
	assert.Equal(t, models.ExecutionTimeout, sess.Executions[0].Status)

	require.NotNil(t, sess.Verdict)
	assert.False(t, sess.Verdict.Passed)

	apiPhase := sess.PhaseResults[models.PhaseAPIProbes]
	require.NotNil(t, apiPhase)
	require.Len(t, apiPhase.Results, 1)
	assert.Equal(t, models.ErrorTypeTimeout, apiPhase.Results[0].ErrorType)
	assert.Equal(t, int64(1000), apiPhase.Results[0].DurationMS)
}
