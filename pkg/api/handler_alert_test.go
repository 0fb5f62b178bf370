package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/alerts"
	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/models"
)

func newAlertTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultNotificationConfig()
	cfg.LogDir = ""
	cfg.DeliverInterval = 10 * time.Millisecond
	cfg.Rules = []config.RuleConfig{{
		Name:     "manual",
		Channels: []string{"console"},
	}}

	svc, err := alerts.NewService(cfg, nil, nil)
	require.NoError(t, err)

	srv, _ := newTestServer(t, Services{Alerts: svc})
	return srv
}

func manualAlert(title string) models.Alert {
	return models.Alert{
		AlertType: "test_failure",
		Title:     title,
		Message:   "3 consecutive failures",
	}
}

func createAlert(t *testing.T, srv *Server, alert models.Alert) models.Alert {
	t.Helper()
	rec := perform(t, srv, http.MethodPost, "/alert", alert)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	return decode[models.Alert](t, rec)
}

func TestCreateAlertHandler(t *testing.T) {
	srv := newAlertTestServer(t)

	created := createAlert(t, srv, manualAlert("Checkout failing"))
	assert.True(t, strings.HasPrefix(created.ID, "alert_"))
	assert.Equal(t, models.PriorityMedium, created.Priority, "blank priority defaults to MEDIUM")
	assert.False(t, created.Acknowledged)
	assert.False(t, created.Resolved)
}

func TestCreateAlertHandler_MissingTitle(t *testing.T) {
	srv := newAlertTestServer(t)

	rec := perform(t, srv, http.MethodPost, "/alert", models.Alert{AlertType: "test_failure"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[ErrorBody](t, rec)
	require.Len(t, body.Details, 1)
	assert.Equal(t, "title", body.Details[0].Field)
}

func TestCreateAlertHandler_DuplicateID(t *testing.T) {
	srv := newAlertTestServer(t)

	alert := manualAlert("Checkout failing")
	alert.ID = "alert_fixed"
	createAlert(t, srv, alert)

	rec := perform(t, srv, http.MethodPost, "/alert", alert)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListAlertsHandler(t *testing.T) {
	srv := newAlertTestServer(t)

	rec := perform(t, srv, http.MethodGet, "/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alerts":[]`)

	createAlert(t, srv, manualAlert("Checkout failing"))
	createAlert(t, srv, manualAlert("Search degraded"))

	rec = perform(t, srv, http.MethodGet, "/alerts", nil)
	body := decode[AlertListResponse](t, rec)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "Search degraded", body.Alerts[0].Title, "newest first")
}

func TestAcknowledgeAlertHandler(t *testing.T) {
	srv := newAlertTestServer(t)
	created := createAlert(t, srv, manualAlert("Checkout failing"))

	rec := perform(t, srv, http.MethodPost, "/alerts/"+created.ID+"/acknowledge",
		AcknowledgeRequest{AcknowledgedBy: "dana"})
	require.Equal(t, http.StatusOK, rec.Code)

	acked := decode[models.Alert](t, rec)
	assert.True(t, acked.Acknowledged)
	assert.Equal(t, "dana", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)
}

func TestAcknowledgeAlertHandler_IdentityFromProxyHeaders(t *testing.T) {
	srv := newAlertTestServer(t)
	created := createAlert(t, srv, manualAlert("Checkout failing"))

	req := httptest.NewRequest(http.MethodPost, "/alerts/"+created.ID+"/acknowledge", nil)
	req.Header.Set("X-Forwarded-User", "qa-oncall")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	acked := decode[models.Alert](t, rec)
	assert.Equal(t, "qa-oncall", acked.AcknowledgedBy)
}

func TestAcknowledgeAlertHandler_DefaultIdentity(t *testing.T) {
	srv := newAlertTestServer(t)
	created := createAlert(t, srv, manualAlert("Checkout failing"))

	rec := perform(t, srv, http.MethodPost, "/alerts/"+created.ID+"/acknowledge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	acked := decode[models.Alert](t, rec)
	assert.Equal(t, "api-client", acked.AcknowledgedBy)
}

func TestAcknowledgeAlertHandler_NotFound(t *testing.T) {
	srv := newAlertTestServer(t)

	rec := perform(t, srv, http.MethodPost, "/alerts/alert_missing/acknowledge", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveAlertHandler(t *testing.T) {
	srv := newAlertTestServer(t)
	created := createAlert(t, srv, manualAlert("Checkout failing"))

	rec := perform(t, srv, http.MethodPost, "/alerts/"+created.ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resolved := decode[models.Alert](t, rec)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedAt)

	// Resolved alerts leave the active list.
	rec = perform(t, srv, http.MethodGet, "/alerts", nil)
	body := decode[AlertListResponse](t, rec)
	assert.Equal(t, 0, body.Count)
}

func TestResolveAlertHandler_AlreadyResolved(t *testing.T) {
	srv := newAlertTestServer(t)
	created := createAlert(t, srv, manualAlert("Checkout failing"))

	rec := perform(t, srv, http.MethodPost, "/alerts/"+created.ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = perform(t, srv, http.MethodPost, "/alerts/"+created.ID+"/resolve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAlertNotificationsHandler(t *testing.T) {
	srv := newAlertTestServer(t)
	created := createAlert(t, srv, manualAlert("Checkout failing"))

	rec := perform(t, srv, http.MethodGet, "/alerts/"+created.ID+"/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[NotificationListResponse](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, created.ID, body.Notifications[0].AlertID)
	assert.Equal(t, models.ChannelConsole, body.Notifications[0].Channel)
	assert.Equal(t, models.NotificationPending, body.Notifications[0].Status)
}

func TestAlertNotificationsHandler_UnknownAlert(t *testing.T) {
	srv := newAlertTestServer(t)

	rec := perform(t, srv, http.MethodGet, "/alerts/alert_missing/notifications", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
