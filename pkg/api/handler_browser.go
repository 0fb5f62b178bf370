package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/models"
)

// executeUITestHandler handles POST /execute. Like the API tester, a
// failing flow comes back as a 200 with passed=false; the error path is
// reserved for invalid scenarios and pool exhaustion.
func (s *Server) executeUITestHandler(c *echo.Context) error {
	var req ExecuteTestRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}
	if err := req.Scenario.Validate(); err != nil {
		return mapServiceError(c, err)
	}

	result, err := s.services.Browser.ExecuteUITest(c.Request().Context(), req.Scenario, req.Context)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// screenshotHandler handles POST /screenshot.
func (s *Server) screenshotHandler(c *echo.Context) error {
	var req ScreenshotRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	viewport := models.Viewport{}
	if req.Viewport != nil {
		viewport = *req.Viewport
	}
	path, err := s.services.Browser.CaptureScreenshot(c.Request().Context(), req.PageURL, req.Browser, viewport)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, &ScreenshotResponse{Path: path})
}
