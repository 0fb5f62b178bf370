package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// executeAPITestHandler handles POST /test. A failing test is a successful
// request: the 200 body carries passed=false with diagnosis. Only
// malformed or invalid submissions are rejected.
func (s *Server) executeAPITestHandler(c *echo.Context) error {
	var req ExecuteTestRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}
	if err := req.Scenario.Validate(); err != nil {
		return mapServiceError(c, err)
	}

	result, err := s.services.APITester.ExecuteAPITest(c.Request().Context(), req.Scenario, req.Context)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// loadTestHandler handles POST /test/load.
func (s *Server) loadTestHandler(c *echo.Context) error {
	var req LoadTestRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}
	if err := req.Scenario.Validate(); err != nil {
		return mapServiceError(c, err)
	}

	stats, err := s.services.APITester.RunLoadTest(c.Request().Context(), req.Scenario, req.ConcurrentUsers, req.DurationSeconds)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
