package config

// Config is the umbrella configuration object returned by Initialize()
// and threaded through service construction. Every section is non-nil
// after Initialize.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Server            *ServerConfig
	Orchestrator      *OrchestratorConfig
	Scenarios         *ScenariosConfig
	APITesting        *APITestingConfig
	BrowserAutomation *BrowserAutomationConfig
	AIQuality         *AIQualityConfig
	Aggregation       *AggregationConfig
	Notification      *NotificationConfig
	Events            *EventsConfig
	Telemetry         *TelemetryConfig
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Judges   int
	Rules    int
	Channels int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.AIQuality != nil {
		s.Judges = len(c.AIQuality.Judges)
	}
	if c.Notification != nil {
		s.Rules = len(c.Notification.Rules)
		s.Channels = len(c.Notification.EnabledChannels())
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetJudge retrieves a judge configuration by name.
func (c *Config) GetJudge(name string) (*JudgeConfig, error) {
	j, ok := c.AIQuality.Judges[name]
	if !ok {
		return nil, ErrJudgeNotFound
	}
	return &j, nil
}

// EnabledChannels lists the channel names with usable configuration.
// CONSOLE and FILE need nothing beyond their flags; the rest are present
// only when their section is enabled.
func (n *NotificationConfig) EnabledChannels() []string {
	var out []string
	if n.Email != nil && n.Email.Enabled {
		out = append(out, "EMAIL")
	}
	if n.Slack != nil && n.Slack.Enabled {
		out = append(out, "SLACK")
	}
	if n.Webhook != nil && n.Webhook.Enabled {
		out = append(out, "WEBHOOK")
	}
	if n.ConsoleOn() {
		out = append(out, "CONSOLE")
	}
	if n.LogDir != "" {
		out = append(out, "FILE")
	}
	return out
}
