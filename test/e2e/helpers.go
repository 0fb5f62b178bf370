package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/api"
	"github.com/cruciblehq/crucible/pkg/models"
	"github.com/cruciblehq/crucible/pkg/orchestrator"
)

// ────────────────────────────────────────────────────────────
// HTTP client helpers
// ────────────────────────────────────────────────────────────

// postJSON posts a JSON body and decodes the response into T. A nil body
// sends an empty POST.
func postJSON[T any](t *testing.T, app *TestApp, path string, body any, expectedStatus int) T {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: %s", path, raw)

	var result T
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &result), "POST %s: %s", path, raw)
	}
	return result
}

// getJSON fetches a path and decodes the response into T.
func getJSON[T any](t *testing.T, app *TestApp, path string, expectedStatus int) T {
	t.Helper()

	resp, err := http.Get(app.BaseURL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: %s", path, raw)

	var result T
	require.NoError(t, json.Unmarshal(raw, &result), "GET %s: %s", path, raw)
	return result
}

// getRaw fetches a path and returns the raw body and content type. Used
// for report exports and the Prometheus endpoint.
func getRaw(t *testing.T, app *TestApp, path string, expectedStatus int) ([]byte, string) {
	t.Helper()

	resp, err := http.Get(app.BaseURL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: %s", path, raw)
	return raw, resp.Header.Get("Content-Type")
}

// ────────────────────────────────────────────────────────────
// Domain helpers
// ────────────────────────────────────────────────────────────

// CreateScenario stores a scenario through the API and returns the stored
// copy with its assigned id.
func (app *TestApp) CreateScenario(t *testing.T, sc *models.TestScenario) *models.TestScenario {
	t.Helper()
	created := postJSON[models.TestScenario](t, app, "/scenarios", sc, http.StatusCreated)
	return &created
}

// StartSession submits a session and returns the accepted response.
func (app *TestApp) StartSession(t *testing.T, req *orchestrator.StartRequest) api.StartSessionResponse {
	t.Helper()
	return postJSON[api.StartSessionResponse](t, app, "/sessions", req, http.StatusAccepted)
}

// GetSession fetches one session snapshot.
func (app *TestApp) GetSession(t *testing.T, sessionID string) *orchestrator.Session {
	t.Helper()
	sess := getJSON[orchestrator.Session](t, app, "/sessions/"+sessionID, http.StatusOK)
	return &sess
}

// AwaitSession polls the session endpoint until the session reaches a
// terminal state and returns the final snapshot.
func (app *TestApp) AwaitSession(t *testing.T, sessionID string) *orchestrator.Session {
	t.Helper()

	var last orchestrator.Session
	require.Eventually(t, func() bool {
		resp, err := http.Get(app.BaseURL + "/sessions/" + sessionID)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(resp.Body).Decode(&last); err != nil {
			return false
		}
		return last.CompletedAt != nil
	}, 15*time.Second, 50*time.Millisecond, "session %s did not reach a terminal state", sessionID)
	return &last
}

// AwaitRunning polls until the session has at least one execution in
// flight. Sessions report RUNNING from creation, so the execution state is
// what proves the executor actually picked the work up.
func (app *TestApp) AwaitRunning(t *testing.T, sessionID string) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := http.Get(app.BaseURL + "/sessions/" + sessionID)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var sess orchestrator.Session
		if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
			return false
		}
		for _, exec := range sess.Executions {
			if exec.Status == models.ExecutionRunning {
				return true
			}
		}
		return false
	}, 10*time.Second, 25*time.Millisecond, "session %s never started executing", sessionID)
}

// AwaitAlert polls the active alert list until an alert of the given type
// appears and returns it.
func (app *TestApp) AwaitAlert(t *testing.T, alertType string) *models.Alert {
	t.Helper()

	var found models.Alert
	require.Eventually(t, func() bool {
		resp, err := http.Get(app.BaseURL + "/alerts")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var list api.AlertListResponse
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			return false
		}
		for _, a := range list.Alerts {
			if a.AlertType == alertType {
				found = *a
				return true
			}
		}
		return false
	}, 10*time.Second, 50*time.Millisecond, "no %s alert was raised", alertType)
	return &found
}

// AwaitNotifications polls until the alert has at least n notifications in
// a final state and returns them all.
func (app *TestApp) AwaitNotifications(t *testing.T, alertID string, n int) []*models.Notification {
	t.Helper()

	var last []*models.Notification
	require.Eventually(t, func() bool {
		resp, err := http.Get(app.BaseURL + "/alerts/" + alertID + "/notifications")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var list api.NotificationListResponse
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			return false
		}
		last = list.Notifications
		final := 0
		for _, notif := range list.Notifications {
			if notif.IsFinal() {
				final++
			}
		}
		return final >= n
	}, 10*time.Second, 50*time.Millisecond, "alert %s never reached %d final notifications", alertID, n)
	return last
}

// ────────────────────────────────────────────────────────────
// Target fixtures
// ────────────────────────────────────────────────────────────

// startTarget serves a stub system-under-test and registers its shutdown.
func startTarget(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	target := httptest.NewServer(handler)
	t.Cleanup(target.Close)
	return target
}

// okTarget answers every request with a small healthy JSON document.
func okTarget(t *testing.T) *httptest.Server {
	t.Helper()
	return startTarget(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","version":"1.4.2"}`)
	})
}

// gatedTarget serves a stub that stalls every request until release is
// called, keeping a session observably in flight. The handler also lets
// go on server shutdown so an early test failure cannot wedge cleanup.
// release is idempotent and registered as a cleanup.
func gatedTarget(t *testing.T) (*httptest.Server, func()) {
	t.Helper()

	gate := make(chan struct{})
	target := startTarget(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	release := sync.OnceFunc(func() { close(gate) })
	t.Cleanup(release)
	return target, release
}

// ────────────────────────────────────────────────────────────
// Scenario fixtures
// ────────────────────────────────────────────────────────────

// probeScenario builds a minimal API scenario against endpoint.
func probeScenario(name, endpoint string) *models.TestScenario {
	return &models.TestScenario{
		Name:           name,
		TestType:       models.TestTypeAPI,
		Priority:       5,
		TimeoutSeconds: 10,
		APISpec: &models.APITestSpec{
			Endpoint:                endpoint,
			Method:                  "GET",
			ExpectedStatus:          200,
			ResponseTimeThresholdMS: 5000,
		},
	}
}

// flowScenario builds a minimal UI scenario against pageURL. Callers add
// actions and assertions for the scripted page they registered.
func flowScenario(name, pageURL string) *models.TestScenario {
	return &models.TestScenario{
		Name:           name,
		TestType:       models.TestTypeUI,
		Priority:       5,
		TimeoutSeconds: 30,
		UISpec: &models.UITestSpec{
			PageURL:      pageURL,
			ViewportSize: models.Viewport{Width: 1280, Height: 720},
			Browser:      models.BrowserChromium,
		},
	}
}

// assessmentScenario builds an AI quality scenario judged by the harness's
// two static judges.
func assessmentScenario(name, prompt string) *models.TestScenario {
	return &models.TestScenario{
		Name:           name,
		TestType:       models.TestTypeAIQuality,
		Priority:       5,
		TimeoutSeconds: 60,
		AIQualitySpec: &models.AIQualitySpec{
			InputPrompt:      prompt,
			AssessmentModels: []string{"primary", "secondary"},
			QualityMetrics:   []models.QualityMetric{models.MetricAccuracy, models.MetricRelevance},
			MaxTokens:        256,
		},
	}
}
