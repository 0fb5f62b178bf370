package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// validChannels are the channel names a rule may target.
var validChannels = map[string]bool{
	"EMAIL":   true,
	"SLACK":   true,
	"WEBHOOK": true,
	"CONSOLE": true,
	"FILE":    true,
}

// validPriorities are the alert priorities a rule threshold may name.
var validPriorities = map[string]bool{
	"LOW":      true,
	"MEDIUM":   true,
	"HIGH":     true,
	"CRITICAL": true,
	"URGENT":   true,
}

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := v.validateOrchestrator(); err != nil {
		return fmt.Errorf("orchestrator validation failed: %w", err)
	}

	if err := v.validateAPITesting(); err != nil {
		return fmt.Errorf("api_testing validation failed: %w", err)
	}

	if err := v.validateBrowserAutomation(); err != nil {
		return fmt.Errorf("browser_automation validation failed: %w", err)
	}

	if err := v.validateJudges(); err != nil {
		return fmt.Errorf("judge validation failed: %w", err)
	}

	if err := v.validateAggregation(); err != nil {
		return fmt.Errorf("aggregation validation failed: %w", err)
	}

	if err := v.validateNotification(); err != nil {
		return fmt.Errorf("notification validation failed: %w", err)
	}

	if err := v.validateEvents(); err != nil {
		return fmt.Errorf("events validation failed: %w", err)
	}

	if err := v.validateTelemetry(); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return NewValidationError("server", "server", "port", fmt.Errorf("must be in [1,65535], got %d", s.Port))
	}
	if s.ShutdownTimeout <= 0 {
		return NewValidationError("server", "server", "shutdown_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateOrchestrator() error {
	o := v.cfg.Orchestrator
	if o.MaxConcurrentSessions < 1 {
		return NewValidationError("orchestrator", "orchestrator", "max_concurrent_sessions", fmt.Errorf("must be at least 1"))
	}
	if o.QualityThreshold < 0 || o.QualityThreshold > 1 {
		return NewValidationError("orchestrator", "orchestrator", "quality_threshold", fmt.Errorf("must be in [0,1], got %v", o.QualityThreshold))
	}
	if o.SessionTimeout <= 0 {
		return NewValidationError("orchestrator", "orchestrator", "session_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateAPITesting() error {
	a := v.cfg.APITesting
	if a.RequestTimeout <= 0 {
		return NewValidationError("api_testing", "api_testing", "request_timeout", fmt.Errorf("must be positive"))
	}
	if a.MaxLoadUsers < 1 {
		return NewValidationError("api_testing", "api_testing", "max_load_users", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *ConfigValidator) validateBrowserAutomation() error {
	b := v.cfg.BrowserAutomation
	if !b.Engine.IsValid() {
		return NewValidationError("browser_automation", "browser_automation", "engine", fmt.Errorf("invalid engine: %s", b.Engine))
	}
	if b.Engine == BrowserEngineSidecar && b.EngineURL == "" {
		return NewValidationError("browser_automation", "browser_automation", "engine_url", fmt.Errorf("required for sidecar engine"))
	}
	if b.MaxConcurrentContexts < 1 {
		return NewValidationError("browser_automation", "browser_automation", "max_concurrent_contexts", fmt.Errorf("must be at least 1"))
	}
	if b.EvidenceDir == "" {
		return NewValidationError("browser_automation", "browser_automation", "evidence_dir", fmt.Errorf("required"))
	}
	return nil
}

// validateJudges checks each configured judge is well-formed. Zero judges
// is allowed here: the quality service itself refuses to start assessments
// without judges, and deployments not hosting it don't need any.
func (v *ConfigValidator) validateJudges() error {
	for name, judge := range v.cfg.AIQuality.Judges {
		if !judge.Provider.IsValid() {
			return NewValidationError("judge", name, "provider", fmt.Errorf("invalid provider: %s", judge.Provider))
		}

		if judge.Model == "" && judge.Provider != JudgeProviderStatic {
			return NewValidationError("judge", name, "model", fmt.Errorf("model required"))
		}

		// Validate API key environment variable is set (if required)
		if judge.Provider.RequiresAPIKey() {
			if judge.APIKeyEnv == "" {
				return NewValidationError("judge", name, "api_key_env", fmt.Errorf("required for provider %s", judge.Provider))
			}
			if value := os.Getenv(judge.APIKeyEnv); value == "" {
				return NewValidationError("judge", name, "api_key_env", fmt.Errorf("environment variable %s is not set", judge.APIKeyEnv))
			}
		}

		if judge.Temperature != nil && (*judge.Temperature < 0 || *judge.Temperature > 2) {
			return NewValidationError("judge", name, "temperature", fmt.Errorf("must be in [0,2]"))
		}
		if judge.MaxTokens < 0 {
			return NewValidationError("judge", name, "max_tokens", fmt.Errorf("must not be negative"))
		}
	}

	q := v.cfg.AIQuality
	if q.CacheTTLSeconds < 0 {
		return NewValidationError("ai_quality", "ai_quality", "cache_ttl_seconds", fmt.Errorf("must not be negative"))
	}
	return nil
}

func (v *ConfigValidator) validateAggregation() error {
	a := v.cfg.Aggregation
	if a.WindowDays < 1 {
		return NewValidationError("aggregation", "aggregation", "window_days", fmt.Errorf("must be at least 1"))
	}
	if a.MinDataPointsForTrend < 2 {
		return NewValidationError("aggregation", "aggregation", "min_data_points_for_trend", fmt.Errorf("must be at least 2"))
	}
	if a.ExpectedTestsPerHour < 0 {
		return NewValidationError("aggregation", "aggregation", "expected_tests_per_hour", fmt.Errorf("must not be negative"))
	}
	if len(a.PullSources) > 0 && a.PullInterval <= 0 {
		return NewValidationError("aggregation", "aggregation", "pull_interval", fmt.Errorf("must be positive when pull_sources set"))
	}
	return nil
}

func (v *ConfigValidator) validateNotification() error {
	n := v.cfg.Notification

	if n.MaxRetries < 0 {
		return NewValidationError("notification", "notification", "max_retries", fmt.Errorf("must not be negative"))
	}
	if n.DeliverInterval < 0 {
		return NewValidationError("notification", "notification", "deliver_interval", fmt.Errorf("must not be negative"))
	}

	if n.Email != nil && n.Email.Enabled {
		if n.Email.SMTPHost == "" {
			return NewValidationError("channel", "email", "smtp_host", fmt.Errorf("required when enabled"))
		}
		if n.Email.From == "" {
			return NewValidationError("channel", "email", "from", fmt.Errorf("required when enabled"))
		}
	}

	if n.Slack != nil && n.Slack.Enabled {
		if n.Slack.WebhookURL == "" && n.Slack.TokenEnv == "" {
			return NewValidationError("channel", "slack", "webhook_url", fmt.Errorf("webhook_url or token_env required when enabled"))
		}
		if n.Slack.TokenEnv != "" && n.Slack.Channel == "" {
			return NewValidationError("channel", "slack", "channel", fmt.Errorf("required with token_env"))
		}
	}

	if n.Webhook != nil && n.Webhook.Enabled {
		if n.Webhook.URL == "" {
			return NewValidationError("channel", "webhook", "url", fmt.Errorf("required when enabled"))
		}
		switch strings.ToUpper(n.Webhook.Method) {
		case "", "POST", "PUT":
		default:
			return NewValidationError("channel", "webhook", "method", fmt.Errorf("must be POST or PUT, got %s", n.Webhook.Method))
		}
	}

	for i, rule := range n.Rules {
		if err := v.validateRule(i, &rule); err != nil {
			return err
		}
	}

	return nil
}

func (v *ConfigValidator) validateRule(index int, rule *RuleConfig) error {
	id := rule.Name
	if id == "" {
		return NewValidationError("rule", fmt.Sprintf("[%d]", index), "name", fmt.Errorf("name required"))
	}

	if len(rule.Channels) == 0 {
		return NewValidationError("rule", id, "channels", fmt.Errorf("at least one channel required"))
	}
	for _, ch := range rule.Channels {
		if !validChannels[strings.ToUpper(ch)] {
			return NewValidationError("rule", id, "channels", fmt.Errorf("unknown channel: %s", ch))
		}
	}

	if rule.PriorityThreshold != "" && !validPriorities[strings.ToUpper(rule.PriorityThreshold)] {
		return NewValidationError("rule", id, "priority_threshold", fmt.Errorf("unknown priority: %s", rule.PriorityThreshold))
	}

	if rule.CooldownMinutes < 0 {
		return NewValidationError("rule", id, "cooldown_minutes", fmt.Errorf("must not be negative"))
	}
	if rule.MaxNotificationsPerHour < 0 {
		return NewValidationError("rule", id, "max_notifications_per_hour", fmt.Errorf("must not be negative"))
	}

	if rule.MinQualityScore != nil && (*rule.MinQualityScore < 0 || *rule.MinQualityScore > 1) {
		return NewValidationError("rule", id, "min_quality_score", fmt.Errorf("must be in [0,1]"))
	}
	if rule.MaxFailureRate != nil && (*rule.MaxFailureRate < 0 || *rule.MaxFailureRate > 1) {
		return NewValidationError("rule", id, "max_failure_rate", fmt.Errorf("must be in [0,1]"))
	}

	if rule.Schedule != nil {
		if err := v.validateSchedule(id, rule.Schedule); err != nil {
			return err
		}
	}

	return nil
}

func (v *ConfigValidator) validateSchedule(ruleID string, s *ScheduleConfig) error {
	for _, day := range s.DaysOfWeek {
		switch strings.ToLower(day) {
		case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		default:
			return NewValidationError("rule", ruleID, "schedule.days_of_week", fmt.Errorf("unknown day: %s", day))
		}
	}

	// Both ends of the window must be given together, in HH:MM.
	if (s.StartTime == "") != (s.EndTime == "") {
		return NewValidationError("rule", ruleID, "schedule", fmt.Errorf("start_time and end_time must be set together"))
	}
	if s.StartTime != "" {
		if _, err := time.Parse("15:04", s.StartTime); err != nil {
			return NewValidationError("rule", ruleID, "schedule.start_time", fmt.Errorf("must be HH:MM, got %s", s.StartTime))
		}
		if _, err := time.Parse("15:04", s.EndTime); err != nil {
			return NewValidationError("rule", ruleID, "schedule.end_time", fmt.Errorf("must be HH:MM, got %s", s.EndTime))
		}
	}

	return nil
}

func (v *ConfigValidator) validateEvents() error {
	e := v.cfg.Events
	if e.ReplaySize < 1 {
		return NewValidationError("events", "events", "replay_size", fmt.Errorf("must be at least 1"))
	}
	if e.WriteTimeout <= 0 {
		return NewValidationError("events", "events", "write_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateTelemetry() error {
	t := v.cfg.Telemetry
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return NewValidationError("telemetry", "telemetry", "sample_ratio", fmt.Errorf("must be in [0,1], got %v", t.SampleRatio))
	}
	if t.TracingEnabled && t.OTLPEndpoint == "" {
		return NewValidationError("telemetry", "telemetry", "otlp_endpoint", fmt.Errorf("required when tracing enabled"))
	}
	return nil
}
