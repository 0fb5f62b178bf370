package alerts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// Template renders one notification's subject and content. Placeholders
// use {name} syntax; unknown names render as the empty string.
type Template struct {
	Subject string
	Content string
}

var defaultTemplate = Template{
	Subject: "[{priority}] {title}",
	Content: "{message}\n\nAlert: {alert_id}\nType: {alert_type}\nService: {source_service}\nCreated: {created_at}",
}

// TemplateRegistry resolves templates by (alert type, channel), falling
// back to the alert type alone, then to the built-in default.
type TemplateRegistry struct {
	mu            sync.RWMutex
	byTypeChannel map[string]Template
	byType        map[string]Template
}

// NewTemplateRegistry creates a registry pre-loaded with the built-in
// per-type templates.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		byTypeChannel: make(map[string]Template),
		byType: map[string]Template{
			AlertTypeTestFailure: {
				Subject: "[{priority}] {title}",
				Content: "{message}\n\nScenario: {details.scenario_id}\nExecution: {details.execution_id}\nService: {source_service}\nAlert: {alert_id}\nCreated: {created_at}",
			},
			AlertTypeLowQualityScore: {
				Subject: "[{priority}] {title}",
				Content: "{message}\n\nScore: {current_values.score}\nService: {source_service}\nAlert: {alert_id}\nCreated: {created_at}",
			},
			AlertTypeSlowResponse: {
				Subject: "[{priority}] {title}",
				Content: "{message}\n\nResponse time: {current_values.response_time_ms}ms\nService: {source_service}\nAlert: {alert_id}\nCreated: {created_at}",
			},
			AlertTypeHighFailureRate: {
				Subject: "[{priority}] {title}",
				Content: "{message}\n\nFailure rate: {current_values.failure_rate}\nReport: {details.report_id}\nAlert: {alert_id}\nCreated: {created_at}",
			},
		},
	}
}

// Register installs a template for an alert type. A non-empty channel
// scopes the template to that channel; otherwise it covers every channel
// without a more specific entry.
func (tr *TemplateRegistry) Register(alertType string, channel models.ChannelType, tpl Template) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if channel == "" {
		tr.byType[alertType] = tpl
		return
	}
	tr.byTypeChannel[typeChannelKey(alertType, channel)] = tpl
}

// Resolve returns the most specific template for the pair.
func (tr *TemplateRegistry) Resolve(alertType string, channel models.ChannelType) Template {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	if tpl, ok := tr.byTypeChannel[typeChannelKey(alertType, channel)]; ok {
		return tpl
	}
	if tpl, ok := tr.byType[alertType]; ok {
		return tpl
	}
	return defaultTemplate
}

// render produces a notification's subject and content for an alert on a
// channel.
func (tr *TemplateRegistry) render(alert *models.Alert, channel models.ChannelType) (subject, content string) {
	tpl := tr.Resolve(alert.AlertType, channel)
	return renderTemplate(tpl.Subject, alert), renderTemplate(tpl.Content, alert)
}

func typeChannelKey(alertType string, channel models.ChannelType) string {
	return alertType + "|" + string(channel)
}

var templateVars = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// renderTemplate substitutes {name} placeholders from the alert. Missing
// variables become the empty string, never an error.
func renderTemplate(text string, alert *models.Alert) string {
	return templateVars.ReplaceAllStringFunc(text, func(m string) string {
		return templateValue(alert, m[1:len(m)-1])
	})
}

func templateValue(alert *models.Alert, name string) string {
	switch name {
	case "alert_id":
		return alert.ID
	case "alert_type":
		return alert.AlertType
	case "title":
		return alert.Title
	case "message":
		return alert.Message
	case "priority":
		return string(alert.Priority)
	case "source_service":
		return alert.SourceService
	case "created_at":
		if alert.CreatedAt.IsZero() {
			return ""
		}
		return alert.CreatedAt.UTC().Format(time.RFC3339)
	case "details":
		if len(alert.Details) == 0 {
			return ""
		}
		b, err := json.Marshal(alert.Details)
		if err != nil {
			return ""
		}
		return string(b)
	}
	if key, ok := strings.CutPrefix(name, "details."); ok {
		v, present := alert.Details[key]
		if !present || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}
	if key, ok := strings.CutPrefix(name, "current_values."); ok {
		v, present := alert.CurrentValues[key]
		if !present {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
