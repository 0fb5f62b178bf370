package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/history"
	"github.com/cruciblehq/crucible/pkg/models"
)

// apiTestHistoryHandler handles GET /test/history.
func (s *Server) apiTestHistoryHandler(c *echo.Context) error {
	return serveHistory(c, s.services.APITester.History())
}

// uiTestHistoryHandler handles GET /execute/history.
func (s *Server) uiTestHistoryHandler(c *echo.Context) error {
	return serveHistory(c, s.services.Browser.History())
}

// assessmentHistoryHandler handles GET /assess/history.
func (s *Server) assessmentHistoryHandler(c *echo.Context) error {
	return serveHistory(c, s.services.Quality.History())
}

// serveHistory renders an executor's recent results. With ?since= (RFC3339)
// only results completed after that instant are returned — the aggregator's
// incremental pull path. Otherwise ?limit= caps the count, defaulting to
// the full retained window.
func serveHistory(c *echo.Context, ring *history.Ring) error {
	if v := c.QueryParam("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return httpError(c, http.StatusBadRequest, "invalid since: must be RFC3339")
		}
		results := ring.Since(since)
		if results == nil {
			results = []*models.TestResult{}
		}
		return c.JSON(http.StatusOK, &HistoryResponse{Results: results, Count: len(results)})
	}

	limit, ok := parseIntParam(c, "limit", 0)
	if !ok {
		return httpError(c, http.StatusBadRequest, "invalid limit: must be an integer")
	}
	results := ring.Recent(limit)
	return c.JSON(http.StatusOK, &HistoryResponse{Results: results, Count: len(results)})
}
