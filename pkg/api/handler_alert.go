package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/models"
)

// createAlertHandler handles POST /alert: manual alert submission outside
// the rule engine. The alert flows through the same store, notification
// fan-out, and event publication as rule-generated ones.
func (s *Server) createAlertHandler(c *echo.Context) error {
	var alert models.Alert
	if err := c.Bind(&alert); err != nil {
		return httpError(c, http.StatusBadRequest, "malformed request body")
	}

	created, err := s.services.Alerts.CreateAlert(c.Request().Context(), &alert)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// listAlertsHandler handles GET /alerts, returning unresolved alerts
// newest first.
func (s *Server) listAlertsHandler(c *echo.Context) error {
	active := s.services.Alerts.ActiveAlerts()
	if active == nil {
		active = []*models.Alert{}
	}
	return c.JSON(http.StatusOK, &AlertListResponse{
		Alerts: active,
		Count:  len(active),
	})
}

// acknowledgeAlertHandler handles POST /alerts/:id/acknowledge. The
// acknowledging identity comes from the body, falling back to proxy
// headers, then to a generic API principal.
func (s *Server) acknowledgeAlertHandler(c *echo.Context) error {
	alertID := c.Param("id")
	if alertID == "" {
		return httpError(c, http.StatusBadRequest, "alert id is required")
	}

	var req AcknowledgeRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return httpError(c, http.StatusBadRequest, "malformed request body")
		}
	}
	by := req.AcknowledgedBy
	if by == "" {
		by = extractAuthor(c)
	}

	alert, err := s.services.Alerts.Acknowledge(alertID, by)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, alert)
}

// resolveAlertHandler handles POST /alerts/:id/resolve.
func (s *Server) resolveAlertHandler(c *echo.Context) error {
	alertID := c.Param("id")
	if alertID == "" {
		return httpError(c, http.StatusBadRequest, "alert id is required")
	}

	alert, err := s.services.Alerts.ResolveAlert(alertID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, alert)
}

// alertNotificationsHandler handles GET /alerts/:id/notifications, listing
// the delivery attempts fanned out for one alert.
func (s *Server) alertNotificationsHandler(c *echo.Context) error {
	alertID := c.Param("id")
	if alertID == "" {
		return httpError(c, http.StatusBadRequest, "alert id is required")
	}

	if _, err := s.services.Alerts.Alert(alertID); err != nil {
		return mapServiceError(c, err)
	}
	notifications := s.services.Alerts.Notifications(alertID)
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	return c.JSON(http.StatusOK, &NotificationListResponse{
		Notifications: notifications,
		Count:         len(notifications),
	})
}

// extractAuthor extracts the caller identity from proxy headers.
// Priority: X-Forwarded-User > X-Forwarded-Email > X-Remote-User >
// "api-client".
func extractAuthor(c *echo.Context) string {
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.Request().Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	if user := c.Request().Header.Get("X-Remote-User"); user != "" {
		return user
	}
	return "api-client"
}
