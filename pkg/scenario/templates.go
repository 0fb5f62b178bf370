package scenario

import (
	"context"
	"fmt"
	"sort"

	"github.com/cruciblehq/crucible/pkg/models"
)

// TemplateParams customizes a built-in template. Every field is optional;
// unset fields fall back to template defaults.
type TemplateParams struct {
	Name   string   `json:"name,omitempty"`
	Target string   `json:"target,omitempty"` // endpoint or page URL
	Prompt string   `json:"prompt,omitempty"` // ai-quality-baseline only
	Models []string `json:"models,omitempty"` // judge names, ai-quality-baseline only
	Tags   []string `json:"tags,omitempty"`
}

// TemplateInfo describes one built-in template for listing.
type TemplateInfo struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	ScenarioCount int    `json:"scenario_count"`
}

type templateFunc func(params TemplateParams) []*models.TestScenario

var templates = map[string]struct {
	description string
	count       int
	render      templateFunc
}{
	"api-health-check": {
		description: "single GET probe against a health endpoint",
		count:       1,
		render:      renderAPIHealthCheck,
	},
	"api-crud": {
		description: "create/read/update/delete probes against one resource",
		count:       4,
		render:      renderAPICRUD,
	},
	"ui-smoke": {
		description: "page load with a basic visibility assertion",
		count:       1,
		render:      renderUISmoke,
	},
	"ai-quality-baseline": {
		description: "multi-metric quality assessment of one prompt",
		count:       1,
		render:      renderAIQualityBaseline,
	},
	"load-baseline": {
		description: "performance scenario with latency thresholds",
		count:       1,
		render:      renderLoadBaseline,
	},
}

// ListTemplates returns the built-in templates sorted by name.
func (s *Service) ListTemplates() []TemplateInfo {
	out := make([]TemplateInfo, 0, len(templates))
	for name, t := range templates {
		out = append(out, TemplateInfo{Name: name, Description: t.description, ScenarioCount: t.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateFromTemplate renders a built-in template and persists every
// resulting scenario. Unknown template names are a validation error.
func (s *Service) CreateFromTemplate(ctx context.Context, name string, params TemplateParams) ([]*models.TestScenario, error) {
	t, ok := templates[name]
	if !ok {
		return nil, models.NewValidationError("template", fmt.Sprintf("unknown template %q", name))
	}

	rendered := t.render(params)
	created := make([]*models.TestScenario, 0, len(rendered))
	for _, sc := range rendered {
		sc.Tags = append(sc.Tags, params.Tags...)
		saved, err := s.Create(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		created = append(created, saved)
	}
	return created, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func renderAPIHealthCheck(p TemplateParams) []*models.TestScenario {
	return []*models.TestScenario{{
		Name:           orDefault(p.Name, "API health check"),
		Description:    "Verifies the service health endpoint answers quickly.",
		TestType:       models.TestTypeAPI,
		Priority:       9,
		TimeoutSeconds: 30,
		RetryCount:     2,
		APISpec: &models.APITestSpec{
			Endpoint:                orDefault(p.Target, "/health"),
			Method:                  "GET",
			ExpectedStatus:          200,
			ExpectedContent:         []string{"status"},
			ResponseTimeThresholdMS: 2000,
			RetryDelaySeconds:       1,
		},
		Tags: []string{"health", "api"},
	}}
}

func renderAPICRUD(p TemplateParams) []*models.TestScenario {
	base := orDefault(p.Name, "API CRUD")
	resource := orDefault(p.Target, "/api/items")
	item := resource + "/{id}"
	body := map[string]any{"name": "crucible probe"}

	mk := func(suffix, method, endpoint string, status int, reqBody any, pathParams map[string]string) *models.TestScenario {
		return &models.TestScenario{
			Name:           fmt.Sprintf("%s %s", base, suffix),
			TestType:       models.TestTypeAPI,
			Priority:       5,
			TimeoutSeconds: 30,
			RetryCount:     1,
			APISpec: &models.APITestSpec{
				Endpoint:                endpoint,
				Method:                  method,
				RequestBody:             reqBody,
				PathParams:              pathParams,
				ExpectedStatus:          status,
				ResponseTimeThresholdMS: 3000,
				RetryDelaySeconds:       1,
			},
			Tags: []string{"crud", "api"},
		}
	}

	idParam := map[string]string{"id": "1"}
	return []*models.TestScenario{
		mk("create", "POST", resource, 201, body, nil),
		mk("read", "GET", item, 200, nil, idParam),
		mk("update", "PUT", item, 200, body, idParam),
		mk("delete", "DELETE", item, 204, nil, idParam),
	}
}

func renderUISmoke(p TemplateParams) []*models.TestScenario {
	return []*models.TestScenario{{
		Name:           orDefault(p.Name, "UI smoke"),
		Description:    "Loads the page and checks the body renders.",
		TestType:       models.TestTypeUI,
		Priority:       7,
		TimeoutSeconds: 60,
		RetryCount:     1,
		UISpec: &models.UITestSpec{
			PageURL:      orDefault(p.Target, "http://localhost:3000"),
			ViewportSize: models.Viewport{Width: 1920, Height: 1080},
			Browser:      models.BrowserChromium,
			Assertions: []models.UIAssertion{
				{Type: "visible", Selector: "body"},
			},
			PerformanceMetrics: []string{"load_time_ms", "first_contentful_paint_ms"},
		},
		Tags: []string{"smoke", "ui"},
	}}
}

func renderAIQualityBaseline(p TemplateParams) []*models.TestScenario {
	judges := p.Models
	if len(judges) == 0 {
		judges = []string{"primary"}
	}
	return []*models.TestScenario{{
		Name:           orDefault(p.Name, "AI quality baseline"),
		Description:    "Scores a representative prompt on the core quality metrics.",
		TestType:       models.TestTypeAIQuality,
		Priority:       6,
		TimeoutSeconds: 120,
		RetryCount:     0,
		AIQualitySpec: &models.AIQualitySpec{
			InputPrompt:      orDefault(p.Prompt, "Summarize the current deployment status in two sentences."),
			AssessmentModels: judges,
			QualityMetrics: []models.QualityMetric{
				models.MetricAccuracy,
				models.MetricCoherence,
				models.MetricRelevance,
			},
			Strategy:    models.StrategyEnsemble,
			Temperature: 0.2,
			MaxTokens:   1024,
		},
		QualityThresholds: map[models.QualityMetric]float64{
			models.MetricAccuracy:  0.7,
			models.MetricCoherence: 0.7,
			models.MetricRelevance: 0.7,
		},
		Tags: []string{"quality", "ai"},
	}}
}

func renderLoadBaseline(p TemplateParams) []*models.TestScenario {
	return []*models.TestScenario{{
		Name:           orDefault(p.Name, "Load baseline"),
		Description:    "Sustained probe used as the target of load runs.",
		TestType:       models.TestTypePerformance,
		Priority:       6,
		TimeoutSeconds: 300,
		RetryCount:     0,
		APISpec: &models.APITestSpec{
			Endpoint:                orDefault(p.Target, "/health"),
			Method:                  "GET",
			ExpectedStatus:          200,
			ResponseTimeThresholdMS: 2000,
		},
		PerformanceThresholds: map[string]float64{
			"avg_response_time_ms": 500,
			"p95_response_time_ms": 2000,
			"error_rate":           0.05,
		},
		Tags: []string{"load", "performance"},
	}}
}
