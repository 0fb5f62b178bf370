package config

import "time"

// NotificationConfig controls the alert engine: delivery channels, rules,
// retry policy, and retention.
type NotificationConfig struct {
	// MaxRetries is the delivery retry budget per notification.
	MaxRetries int `yaml:"max_retries"`

	// RetentionDays is how long alerts and finished notifications are
	// kept before cleanup.
	RetentionDays int `yaml:"retention_days"`

	// CleanupInterval is how often the retention sweep runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// DeliverInterval is the delivery worker's tick; each tick drains a
	// batch of pending notifications.
	DeliverInterval time.Duration `yaml:"deliver_interval"`

	// LogDir is where the FILE channel writes daily notification logs
	// (notifications_YYYYMMDD.log).
	LogDir string `yaml:"log_dir"`

	Email   *EmailChannelConfig   `yaml:"email,omitempty"`
	Slack   *SlackChannelConfig   `yaml:"slack,omitempty"`
	Webhook *WebhookChannelConfig `yaml:"webhook,omitempty"`

	// ConsoleEnabled turns the CONSOLE channel on. Nil means enabled, so
	// a bare deployment still surfaces alerts somewhere.
	ConsoleEnabled *bool `yaml:"console_enabled,omitempty"`

	// Rules are the alert trigger definitions.
	Rules []RuleConfig `yaml:"rules"`
}

// EmailChannelConfig holds SMTP settings for the EMAIL channel.
type EmailChannelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SMTPHost    string `yaml:"smtp_host"`
	SMTPPort    int    `yaml:"smtp_port"`
	From        string `yaml:"from"`
	UsernameEnv string `yaml:"username_env,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
}

// SlackChannelConfig holds settings for the SLACK channel. Either a
// webhook URL or a bot token (for the Web API) must be configured.
type SlackChannelConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
	TokenEnv   string `yaml:"token_env,omitempty"`
	Channel    string `yaml:"channel,omitempty"`
}

// WebhookChannelConfig holds settings for the generic WEBHOOK channel.
type WebhookChannelConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method,omitempty"` // POST (default) or PUT
	Headers map[string]string `yaml:"headers,omitempty"`
}

// RuleConfig defines one alert trigger: predicates on results or
// aggregates, target channels, and rate limiting.
type RuleConfig struct {
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled,omitempty"` // nil means enabled

	// Predicates. A rule fires when all configured predicates match.
	AlertTypes        []string `yaml:"alert_types,omitempty"`
	PriorityThreshold string   `yaml:"priority_threshold,omitempty"`
	MinQualityScore   *float64 `yaml:"min_quality_score,omitempty"`
	MaxFailureRate    *float64 `yaml:"max_failure_rate,omitempty"`
	MaxResponseTimeMS *float64 `yaml:"max_response_time_ms,omitempty"`

	// Targets.
	Channels   []string `yaml:"channels"`
	Recipients []string `yaml:"recipients,omitempty"`

	// Rate limiting.
	CooldownMinutes         int `yaml:"cooldown_minutes,omitempty"`           // default 15
	MaxNotificationsPerHour int `yaml:"max_notifications_per_hour,omitempty"` // default 10

	// Schedule restricts when the rule is active. Nil means always.
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
}

// ScheduleConfig is a days-of-week set plus an optional HH:MM window, UTC.
type ScheduleConfig struct {
	DaysOfWeek []string `yaml:"days_of_week,omitempty"` // "monday".."sunday"
	StartTime  string   `yaml:"start_time,omitempty"`   // "HH:MM"
	EndTime    string   `yaml:"end_time,omitempty"`     // "HH:MM"
}

// ConsoleOn reports whether the CONSOLE channel is enabled.
func (n *NotificationConfig) ConsoleOn() bool {
	return n.ConsoleEnabled == nil || *n.ConsoleEnabled
}

// DefaultNotificationConfig returns the built-in notification defaults.
func DefaultNotificationConfig() *NotificationConfig {
	return &NotificationConfig{
		MaxRetries:      3,
		RetentionDays:   7,
		CleanupInterval: 1 * time.Hour,
		DeliverInterval: 1 * time.Second,
		LogDir:          "data/notifications",
	}
}
