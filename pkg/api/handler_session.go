package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/orchestrator"
)

// startSessionHandler handles POST /sessions. The session is accepted and
// runs asynchronously; clients follow progress via GET /sessions/:id or the
// session's WebSocket channel.
func (s *Server) startSessionHandler(c *echo.Context) error {
	var req orchestrator.StartRequest
	if err := c.Bind(&req); err != nil {
		return httpError(c, http.StatusBadRequest, "malformed request body")
	}

	sess, err := s.services.Orchestrator.StartSession(c.Request().Context(), &req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusAccepted, &StartSessionResponse{
		SessionID:   sess.ID,
		Status:      sess.Status,
		PlanSummary: sess.Plan.Summary(),
	})
}

// listSessionsHandler handles GET /sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	sessions := s.services.Orchestrator.ListSessions()
	return c.JSON(http.StatusOK, &SessionListResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

// getSessionHandler handles GET /sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return httpError(c, http.StatusBadRequest, "session id is required")
	}

	sess, err := s.services.Orchestrator.GetSession(sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// cancelSessionHandler handles POST /sessions/:id/cancel. Cancellation is
// cooperative: the response carries the session snapshot, which reaches
// CANCELLED once in-flight executions wind down.
func (s *Server) cancelSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return httpError(c, http.StatusBadRequest, "session id is required")
	}

	sess, err := s.services.Orchestrator.CancelSession(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}
