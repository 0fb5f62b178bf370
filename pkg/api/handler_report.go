package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/models"
)

// collectHandler handles POST /collect: an on-demand pull from every
// configured executor history endpoint. The body is optional; an empty
// POST collects everything since the last pull.
func (s *Server) collectHandler(c *echo.Context) error {
	var req models.CollectRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return httpError(c, http.StatusBadRequest, "malformed request body")
		}
	}

	resp, err := s.services.Aggregator.Collect(c.Request().Context(), &req)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// generateReportHandler handles POST /report.
func (s *Server) generateReportHandler(c *echo.Context) error {
	var req models.ReportRequest
	if err := c.Bind(&req); err != nil {
		return httpError(c, http.StatusBadRequest, "malformed request body")
	}

	report, err := s.services.Aggregator.GenerateReport(c.Request().Context(), &req)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// exportReportHandler handles GET /export/:report_id?format=. The body is
// written raw with the renderer's content type (json, csv, markdown, html).
func (s *Server) exportReportHandler(c *echo.Context) error {
	reportID := c.Param("report_id")
	if reportID == "" {
		return httpError(c, http.StatusBadRequest, "report id is required")
	}
	format := c.QueryParam("format")
	if format == "" {
		format = "json"
	}

	data, contentType, err := s.services.Aggregator.ExportReport(reportID, format)
	if err != nil {
		return mapServiceError(c, err)
	}

	w := c.Response()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(data)
	return err
}
