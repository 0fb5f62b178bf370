package api

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/models"
	"github.com/cruciblehq/crucible/pkg/scenario"
)

// validate checks request DTO shape at the HTTP boundary. Field names in
// violation details come from the json tag so clients see wire names, not
// Go identifiers. Semantic validation (enum values, cross-field rules)
// stays in the services.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindRequest decodes and shape-checks a JSON request body. On failure the
// error response has already been written; callers return the second value
// and stop.
func bindRequest(c *echo.Context, v any) (bool, error) {
	if err := c.Bind(v); err != nil {
		return false, httpError(c, http.StatusBadRequest, "malformed request body")
	}
	if err := validate.Struct(v); err != nil {
		return false, validationFailed(c, err)
	}
	return true, nil
}

// ExecuteTestRequest submits one scenario for immediate execution.
type ExecuteTestRequest struct {
	Scenario *models.TestScenario `json:"scenario" validate:"required"`
	Context  models.TestContext   `json:"context"`
}

// LoadTestRequest runs a load profile against a scenario's API spec.
type LoadTestRequest struct {
	Scenario        *models.TestScenario `json:"scenario" validate:"required"`
	ConcurrentUsers int                  `json:"concurrent_users" validate:"gte=1"`
	DurationSeconds int                  `json:"duration_seconds" validate:"gte=1"`
}

// ScreenshotRequest captures one page render.
type ScreenshotRequest struct {
	PageURL  string             `json:"page_url" validate:"required,url"`
	Browser  models.BrowserType `json:"browser,omitempty"`
	Viewport *models.Viewport   `json:"viewport,omitempty"`
}

// AcknowledgeRequest names who acknowledged an alert.
type AcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by,omitempty"`
}

// AddToCollectionRequest adds one scenario to a collection.
type AddToCollectionRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// GenerateScenariosRequest renders scenarios from a built-in template.
type GenerateScenariosRequest struct {
	Template string                  `json:"template" validate:"required"`
	Params   scenario.TemplateParams `json:"params"`
}
