package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	postman "github.com/rbretecher/go-postman-collection"

	"github.com/cruciblehq/crucible/pkg/models"
)

// ImportPostman converts a Postman collection (v2.x export) into API
// scenarios and persists them. Each request item becomes one scenario;
// folders contribute to the scenario name. Items that do not map to a valid
// scenario are skipped with a warning so one odd request cannot block the
// rest of the import.
func (s *Service) ImportPostman(ctx context.Context, r io.Reader) ([]*models.TestScenario, error) {
	c, err := postman.ParseCollection(r)
	if err != nil {
		return nil, models.NewValidationError("collection", fmt.Sprintf("invalid Postman collection: %v", err))
	}

	var imported []*models.TestScenario
	for _, item := range c.Items {
		imported = append(imported, s.importItems(ctx, item, nil)...)
	}
	if len(imported) == 0 {
		return nil, models.NewValidationError("collection", "no importable requests found")
	}

	slog.Info("Imported Postman collection",
		"collection", c.Info.Name,
		"scenarios", len(imported))
	return imported, nil
}

func (s *Service) importItems(ctx context.Context, item *postman.Items, path []string) []*models.TestScenario {
	if item == nil {
		return nil
	}

	if len(item.Items) > 0 {
		var out []*models.TestScenario
		childPath := append(append([]string{}, path...), item.Name)
		for _, child := range item.Items {
			out = append(out, s.importItems(ctx, child, childPath)...)
		}
		return out
	}

	if item.Request == nil {
		return nil
	}

	sc := requestToScenario(item, path)
	saved, err := s.Create(ctx, sc)
	if err != nil {
		slog.Warn("Skipping unimportable Postman request", "item", item.Name, "error", err)
		return nil
	}
	return []*models.TestScenario{saved}
}

// requestToScenario maps one Postman request item onto an API scenario.
// The expected status comes from the first saved example response when the
// item has one, otherwise 200.
func requestToScenario(item *postman.Items, path []string) *models.TestScenario {
	req := item.Request

	name := item.Name
	if len(path) > 0 {
		name = strings.Join(path, " / ") + " / " + item.Name
	}

	spec := &models.APITestSpec{
		Method:                  string(req.Method),
		ExpectedStatus:          200,
		ResponseTimeThresholdMS: 5000,
	}
	if req.URL != nil {
		spec.Endpoint = req.URL.Raw
		for _, q := range req.URL.Query {
			if q == nil {
				continue
			}
			if spec.QueryParams == nil {
				spec.QueryParams = make(map[string]string)
			}
			spec.QueryParams[q.Key] = q.Value
		}
	}
	for _, h := range req.Header {
		if h == nil || h.Disabled {
			continue
		}
		if spec.Headers == nil {
			spec.Headers = make(map[string]string)
		}
		spec.Headers[h.Key] = h.Value
	}
	if req.Body != nil && req.Body.Mode == "raw" && req.Body.Raw != "" {
		var parsed any
		if err := json.Unmarshal([]byte(req.Body.Raw), &parsed); err == nil {
			spec.RequestBody = parsed
		} else {
			spec.RequestBody = req.Body.Raw
		}
	}
	for _, resp := range item.Responses {
		if resp != nil && resp.Code != 0 {
			spec.ExpectedStatus = resp.Code
			break
		}
	}

	return &models.TestScenario{
		Name:           name,
		Description:    item.Description,
		TestType:       models.TestTypeAPI,
		Priority:       5,
		TimeoutSeconds: 30,
		APISpec:        spec,
		Tags:           []string{"postman"},
	}
}
