package e2e

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/browser"
	"github.com/cruciblehq/crucible/pkg/models"
	"github.com/cruciblehq/crucible/pkg/orchestrator"
)

// ────────────────────────────────────────────────────────────
// Full pipeline — one session spanning all three executors plus
// aggregation, followed by a report export.
// ────────────────────────────────────────────────────────────

func TestE2E_Pipeline(t *testing.T) {
	app := NewTestApp(t)
	target := okTarget(t)

	// Scripted page: clicking #login reveals the greeting.
	const pageURL = "https://app.crucible.test/dashboard"
	app.Pages.ScriptPage(pageURL, browser.PageState{
		Title: "Crucible Dashboard",
		Elements: map[string]*browser.ElementState{
			"#login":   {Visible: true, Reveals: []string{"#welcome"}},
			"#welcome": {Text: "Welcome back"},
		},
	})

	// The API scenario is stored first and referenced by id; the UI and
	// quality scenarios travel inline.
	stored := app.CreateScenario(t, probeScenario("checkout api", target.URL+"/healthz"))
	require.NotEmpty(t, stored.ID)

	ui := flowScenario("dashboard login", pageURL)
	ui.UISpec.Actions = []models.UIAction{{Type: "click", Selector: "#login"}}
	ui.UISpec.Assertions = []models.UIAssertion{
		{Type: "visible", Selector: "#welcome"},
		{Type: "text", Selector: "#welcome", Expected: "Welcome back"},
		{Type: "title", Expected: "Crucible"},
	}

	accepted := app.StartSession(t, &orchestrator.StartRequest{
		ScenarioIDs: []string{stored.ID},
		Scenarios: []*models.TestScenario{
			ui,
			assessmentScenario("release summary", "Summarise the release notes."),
		},
		Context: models.TestContext{
			Environment: models.EnvStaging,
			Metadata: map[string]any{
				"ai_output": "The release ships three fixes and one new export format.",
			},
		},
	})
	require.NotEmpty(t, accepted.SessionID)
	assert.Equal(t, map[models.TestPhase]int{
		models.PhaseAPIProbes:          1,
		models.PhaseUIFlows:            1,
		models.PhaseQualityAssessments: 1,
	}, accepted.PlanSummary)

	sess := app.AwaitSession(t, accepted.SessionID)
	require.Equal(t, models.SessionCompleted, sess.Status, "session error: %s", sess.Error)

	// Every execution ran to completion.
	require.Len(t, sess.Executions, 3)
	for _, exec := range sess.Executions {
		assert.Equal(t, models.ExecutionCompleted, exec.Status, "execution %s", exec.ID)
	}

	// All three executor phases consolidated, plus aggregation.
	require.Len(t, sess.PhaseResults, 4)
	for _, phase := range []models.TestPhase{
		models.PhaseAPIProbes, models.PhaseUIFlows,
		models.PhaseQualityAssessments, models.PhaseAggregation,
	} {
		require.Contains(t, sess.PhaseResults, phase)
	}
	apiPhase := sess.PhaseResults[models.PhaseAPIProbes]
	assert.True(t, apiPhase.Passed)
	assert.Equal(t, 1.0, apiPhase.Score)
	uiPhase := sess.PhaseResults[models.PhaseUIFlows]
	assert.True(t, uiPhase.Passed)
	require.Len(t, uiPhase.Results, 1)
	require.NotNil(t, uiPhase.Results[0].UIResults)
	for _, ar := range uiPhase.Results[0].UIResults.AssertionResults {
		assert.True(t, ar.Passed, "assertion %d (%s)", ar.Index, ar.Type)
	}

	// The verdict scores executor phases only; aggregation consolidates
	// but never gates.
	require.NotNil(t, sess.Verdict)
	assert.True(t, sess.Verdict.Passed)
	assert.Len(t, sess.Verdict.PhaseScores, 3)
	assert.NotContains(t, sess.Verdict.PhaseScores, models.PhaseAggregation)
	assert.GreaterOrEqual(t, sess.Verdict.OverallScore, sess.Verdict.Threshold)

	// The aggregation phase generated an exportable report.
	require.NotEmpty(t, sess.ReportID)
	body, contentType := getRaw(t, app, "/export/"+sess.ReportID+"?format=markdown", http.StatusOK)
	assert.Equal(t, "text/markdown", contentType)
	assert.Contains(t, string(body), "# Aggregated Test Report")
}

func TestE2E_FailingVerdictStillCompletes(t *testing.T) {
	app := NewTestApp(t)
	target := startTarget(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	sc := probeScenario("flaky upstream", target.URL)
	sc.RetryCount = 0

	accepted := app.StartSession(t, &orchestrator.StartRequest{
		Scenarios: []*models.TestScenario{sc},
	})

	sess := app.AwaitSession(t, accepted.SessionID)

	// A failing verdict is still an orderly completion. The status check
	// is the only failed check, so the score lands exactly on the 0.8
	// threshold; the failed phase is what sinks the verdict.
	assert.Equal(t, models.SessionCompleted, sess.Status)
	require.NotNil(t, sess.Verdict)
	assert.False(t, sess.Verdict.Passed)
	assert.InDelta(t, 0.8, sess.Verdict.OverallScore, 0.001)

	require.Len(t, sess.Executions, 1)
	assert.Equal(t, models.ExecutionCompleted, sess.Executions[0].Status)

	apiPhase := sess.PhaseResults[models.PhaseAPIProbes]
	require.NotNil(t, apiPhase)
	assert.False(t, apiPhase.Passed)
	require.Len(t, apiPhase.Results, 1)
	assert.False(t, apiPhase.Results[0].Passed)
	require.NotNil(t, apiPhase.Results[0].APIResults)
	assert.False(t, apiPhase.Results[0].APIResults.StatusValidation)
}

func TestE2E_CollectAndReport(t *testing.T) {
	// A remote executor's history endpoint with two finished results.
	remote := startTarget(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		payload := map[string]any{
			"results": []*models.TestResult{
				{
					ExecutionID: "remote_api_1",
					ScenarioID:  "sc-remote-1",
					TestType:    models.TestTypeAPI,
					Passed:      true,
					Score:       0.96,
					DurationMS:  120,
					CreatedAt:   time.Now().UTC(),
				},
				{
					ExecutionID: "remote_api_2",
					ScenarioID:  "sc-remote-2",
					TestType:    models.TestTypeAPI,
					Passed:      false,
					Score:       0.4,
					DurationMS:  340,
					ErrorType:   models.ErrorTypeHTTP,
					CreatedAt:   time.Now().UTC(),
				},
			},
			"count": 2,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})

	app := NewTestApp(t, WithPullSources(remote.URL))

	collected := postJSON[models.CollectResponse](t, app, "/collect", nil, http.StatusOK)
	assert.Equal(t, 2, collected.Collected)
	assert.Equal(t, 2, collected.BySource[remote.URL])
	assert.Empty(t, collected.Errors)

	// Re-collecting the same window dedupes on execution id.
	again := postJSON[models.CollectResponse](t, app, "/collect", nil, http.StatusOK)
	assert.Zero(t, again.Collected)

	report := postJSON[models.AggregatedResults](t, app, "/report", map[string]any{}, http.StatusOK)
	require.NotEmpty(t, report.ReportID)
	assert.Equal(t, 2, report.ResultCount)
	assert.Equal(t, 2, report.Summary.TotalTests)
	assert.Equal(t, 1, report.Summary.Passed)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.InDelta(t, 0.5, report.Summary.PassRate, 0.001)

	body, contentType := getRaw(t, app, "/export/"+report.ReportID+"?format=csv", http.StatusOK)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(body), "scope,name,total_tests")
}
