package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/models"
)

// assessHandler handles POST /assess. The request binds straight into the
// contract type; judge selection, strategy, and metric validation happen in
// the quality service.
func (s *Server) assessHandler(c *echo.Context) error {
	var req models.QualityAssessmentRequest
	if err := c.Bind(&req); err != nil {
		return httpError(c, http.StatusBadRequest, "malformed request body")
	}

	result, err := s.services.Quality.Assess(c.Request().Context(), &req)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// compareHandler handles POST /compare.
func (s *Server) compareHandler(c *echo.Context) error {
	var req models.ComparisonRequest
	if err := c.Bind(&req); err != nil {
		return httpError(c, http.StatusBadRequest, "malformed request body")
	}

	result, err := s.services.Quality.Compare(c.Request().Context(), &req)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
