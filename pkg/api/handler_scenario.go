package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/models"
	"github.com/cruciblehq/crucible/pkg/scenario"
)

// listScenariosHandler handles GET /scenarios?type=&tag=.
func (s *Server) listScenariosHandler(c *echo.Context) error {
	filter := scenario.ListFilter{
		TestType: models.TestType(c.QueryParam("type")),
		Tag:      c.QueryParam("tag"),
	}
	if filter.TestType != "" && !filter.TestType.IsValid() {
		return httpError(c, http.StatusBadRequest, "invalid type: "+string(filter.TestType))
	}

	scenarios := s.services.Scenarios.List(c.Request().Context(), filter)
	return c.JSON(http.StatusOK, &ScenarioListResponse{
		Scenarios: scenarios,
		Count:     len(scenarios),
	})
}

// createScenarioHandler handles POST /scenarios.
func (s *Server) createScenarioHandler(c *echo.Context) error {
	var sc models.TestScenario
	if err := c.Bind(&sc); err != nil {
		return httpError(c, http.StatusBadRequest, "malformed request body")
	}

	created, err := s.services.Scenarios.Create(c.Request().Context(), &sc)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// getScenarioHandler handles GET /scenarios/:id.
func (s *Server) getScenarioHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return httpError(c, http.StatusBadRequest, "scenario id is required")
	}

	sc, err := s.services.Scenarios.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, sc)
}

// updateScenarioHandler handles PUT /scenarios/:id.
func (s *Server) updateScenarioHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return httpError(c, http.StatusBadRequest, "scenario id is required")
	}

	var sc models.TestScenario
	if err := c.Bind(&sc); err != nil {
		return httpError(c, http.StatusBadRequest, "malformed request body")
	}

	updated, err := s.services.Scenarios.Update(c.Request().Context(), id, &sc)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// deleteScenarioHandler handles DELETE /scenarios/:id.
func (s *Server) deleteScenarioHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return httpError(c, http.StatusBadRequest, "scenario id is required")
	}

	if err := s.services.Scenarios.Delete(c.Request().Context(), id); err != nil {
		return mapServiceError(c, err)
	}
	return c.String(http.StatusNoContent, "")
}

// importPostmanHandler handles POST /scenarios/import/postman. The body is
// a Postman collection v2.1 export; every request item becomes an API
// scenario.
func (s *Server) importPostmanHandler(c *echo.Context) error {
	imported, err := s.services.Scenarios.ImportPostman(c.Request().Context(), c.Request().Body)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, &ScenarioListResponse{
		Scenarios: imported,
		Count:     len(imported),
	})
}

// listTemplatesHandler handles GET /scenarios/templates.
func (s *Server) listTemplatesHandler(c *echo.Context) error {
	templates := s.services.Scenarios.ListTemplates()
	return c.JSON(http.StatusOK, &TemplateListResponse{
		Templates: templates,
		Count:     len(templates),
	})
}

// generateScenariosHandler handles POST /scenarios/generate, rendering and
// storing scenarios from a built-in template.
func (s *Server) generateScenariosHandler(c *echo.Context) error {
	var req GenerateScenariosRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	created, err := s.services.Scenarios.CreateFromTemplate(c.Request().Context(), req.Template, req.Params)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, &ScenarioListResponse{
		Scenarios: created,
		Count:     len(created),
	})
}

// listCollectionsHandler handles GET /collections.
func (s *Server) listCollectionsHandler(c *echo.Context) error {
	collections := s.services.Scenarios.ListCollections(c.Request().Context())
	if collections == nil {
		collections = []*models.ScenarioCollection{}
	}
	return c.JSON(http.StatusOK, &CollectionListResponse{
		Collections: collections,
		Count:       len(collections),
	})
}

// createCollectionHandler handles POST /collections.
func (s *Server) createCollectionHandler(c *echo.Context) error {
	var col models.ScenarioCollection
	if err := c.Bind(&col); err != nil {
		return httpError(c, http.StatusBadRequest, "malformed request body")
	}

	created, err := s.services.Scenarios.CreateCollection(c.Request().Context(), &col)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// getCollectionHandler handles GET /collections/:id.
func (s *Server) getCollectionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return httpError(c, http.StatusBadRequest, "collection id is required")
	}

	col, err := s.services.Scenarios.GetCollection(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, col)
}

// deleteCollectionHandler handles DELETE /collections/:id.
func (s *Server) deleteCollectionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return httpError(c, http.StatusBadRequest, "collection id is required")
	}

	if err := s.services.Scenarios.DeleteCollection(c.Request().Context(), id); err != nil {
		return mapServiceError(c, err)
	}
	return c.String(http.StatusNoContent, "")
}

// resolveCollectionHandler handles GET /collections/:id/scenarios,
// expanding the collection's membership into full scenario records.
func (s *Server) resolveCollectionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return httpError(c, http.StatusBadRequest, "collection id is required")
	}

	scenarios, err := s.services.Scenarios.ResolveCollection(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, &ScenarioListResponse{
		Scenarios: scenarios,
		Count:     len(scenarios),
	})
}

// addToCollectionHandler handles POST /collections/:id/scenarios.
func (s *Server) addToCollectionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return httpError(c, http.StatusBadRequest, "collection id is required")
	}

	var req AddToCollectionRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	col, err := s.services.Scenarios.AddToCollection(c.Request().Context(), id, req.ScenarioID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, col)
}
