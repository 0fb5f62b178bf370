package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	configDir := setupTestConfigDir(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Every section is non-nil after Initialize
	assert.NotNil(t, cfg.Server)
	assert.NotNil(t, cfg.Orchestrator)
	assert.NotNil(t, cfg.Scenarios)
	assert.NotNil(t, cfg.APITesting)
	assert.NotNil(t, cfg.BrowserAutomation)
	assert.NotNil(t, cfg.AIQuality)
	assert.NotNil(t, cfg.Aggregation)
	assert.NotNil(t, cfg.Notification)
	assert.NotNil(t, cfg.Events)
	assert.NotNil(t, cfg.Telemetry)

	// User overrides took effect
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.BrowserAutomation.MaxConcurrentContexts)

	// Unset values keep built-in defaults
	assert.Equal(t, 0.8, cfg.Orchestrator.QualityThreshold)
	assert.Equal(t, 3600, cfg.AIQuality.CacheTTLSeconds)
	assert.Equal(t, 7, cfg.Aggregation.WindowDays)
	assert.Equal(t, 15*time.Minute, cfg.Orchestrator.SessionTimeout)

	// Judges loaded
	stats := cfg.Stats()
	assert.Equal(t, 1, stats.Judges)
	judge, err := cfg.GetJudge("primary")
	require.NoError(t, err)
	assert.Equal(t, JudgeProviderGemini, judge.Provider)
	assert.Equal(t, "gemini-2.5-flash", judge.Model)
}

func TestInitializeConfigNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Initialize(ctx, "/nonexistent/directory")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeInvalidYAML(t *testing.T) {
	configDir := t.TempDir()

	invalidYAML := `server: [not a map`
	err := os.WriteFile(filepath.Join(configDir, "crucible.yaml"), []byte(invalidYAML), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = Initialize(ctx, configDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeMissingJudgesFileIsFine(t *testing.T) {
	configDir := t.TempDir()
	err := os.WriteFile(filepath.Join(configDir, "crucible.yaml"), []byte("server:\n  port: 8080\n"), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	assert.Empty(t, cfg.AIQuality.Judges)
}

func TestInitializeValidationFailure(t *testing.T) {
	configDir := t.TempDir()

	badConfig := `
orchestrator:
  quality_threshold: 1.5
`
	err := os.WriteFile(filepath.Join(configDir, "crucible.yaml"), []byte(badConfig), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = Initialize(ctx, configDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "quality_threshold")
}

func TestLoadCrucibleYAML(t *testing.T) {
	configDir := t.TempDir()

	config := `
server:
  host: "127.0.0.1"
  port: 9999
  shutdown_timeout: 10s

notification:
  max_retries: 5
  rules:
    - name: "critical-failures"
      priority_threshold: "CRITICAL"
      channels: ["SLACK", "EMAIL"]
      cooldown_minutes: 30
      schedule:
        days_of_week: ["monday", "friday"]
        start_time: "09:00"
        end_time: "17:00"
`
	err := os.WriteFile(filepath.Join(configDir, "crucible.yaml"), []byte(config), 0644)
	require.NoError(t, err)

	loader := &configLoader{configDir: configDir}
	crucibleConfig, err := loader.loadCrucibleYAML()

	require.NoError(t, err)
	require.NotNil(t, crucibleConfig.Server)
	assert.Equal(t, "127.0.0.1", crucibleConfig.Server.Host)
	assert.Equal(t, 9999, crucibleConfig.Server.Port)
	assert.Equal(t, 10*time.Second, crucibleConfig.Server.ShutdownTimeout)

	require.NotNil(t, crucibleConfig.Notification)
	assert.Equal(t, 5, crucibleConfig.Notification.MaxRetries)
	require.Len(t, crucibleConfig.Notification.Rules, 1)
	rule := crucibleConfig.Notification.Rules[0]
	assert.Equal(t, "critical-failures", rule.Name)
	assert.Equal(t, []string{"SLACK", "EMAIL"}, rule.Channels)
	assert.Equal(t, 30, rule.CooldownMinutes)
	require.NotNil(t, rule.Schedule)
	assert.Equal(t, "09:00", rule.Schedule.StartTime)
}

func TestLoadJudgesYAML(t *testing.T) {
	configDir := t.TempDir()

	config := `
judges:
  fast:
    provider: gemini
    model: gemini-2.5-flash
    api_key_env: TEST_GEMINI_KEY
  careful:
    provider: anthropic
    model: claude-sonnet-4-20250514
    api_key_env: TEST_ANTHROPIC_KEY
    max_tokens: 2000
`
	err := os.WriteFile(filepath.Join(configDir, "judges.yaml"), []byte(config), 0644)
	require.NoError(t, err)

	loader := &configLoader{configDir: configDir}
	judges, err := loader.loadJudgesYAML()

	require.NoError(t, err)
	assert.Len(t, judges, 2)
	fast := judges["fast"]
	assert.Equal(t, JudgeProviderGemini, fast.Provider)
	assert.Equal(t, "gemini-2.5-flash", fast.Model)
	careful := judges["careful"]
	assert.Equal(t, JudgeProviderAnthropic, careful.Provider)
	assert.Equal(t, 2000, careful.MaxTokens)
}

func TestEnvironmentVariableInterpolationInConfig(t *testing.T) {
	configDir := t.TempDir()

	config := `
notification:
  webhook:
    enabled: true
    url: "https://{{.HOOK_HOST}}/notify"
aggregation:
  pull_sources:
    - "http://{{.EXECUTOR_HOST}}:8080"
`
	err := os.WriteFile(filepath.Join(configDir, "crucible.yaml"), []byte(config), 0644)
	require.NoError(t, err)

	t.Setenv("HOOK_HOST", "hooks.example.com")
	t.Setenv("EXECUTOR_HOST", "api-tester")

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	require.NotNil(t, cfg.Notification.Webhook)
	assert.Equal(t, "https://hooks.example.com/notify", cfg.Notification.Webhook.URL)
	assert.Equal(t, []string{"http://api-tester:8080"}, cfg.Aggregation.PullSources)
}

func TestConsoleChannelDefaultsOn(t *testing.T) {
	configDir := t.TempDir()
	err := os.WriteFile(filepath.Join(configDir, "crucible.yaml"), []byte("server:\n  port: 8080\n"), 0644)
	require.NoError(t, err)

	cfg, err := Initialize(context.Background(), configDir)
	require.NoError(t, err)

	assert.True(t, cfg.Notification.ConsoleOn())
	assert.Contains(t, cfg.Notification.EnabledChannels(), "CONSOLE")
	assert.Contains(t, cfg.Notification.EnabledChannels(), "FILE")
}

func TestConsoleChannelDisable(t *testing.T) {
	configDir := t.TempDir()
	config := `
notification:
  console_enabled: false
`
	err := os.WriteFile(filepath.Join(configDir, "crucible.yaml"), []byte(config), 0644)
	require.NoError(t, err)

	cfg, err := Initialize(context.Background(), configDir)
	require.NoError(t, err)

	assert.False(t, cfg.Notification.ConsoleOn())
	assert.NotContains(t, cfg.Notification.EnabledChannels(), "CONSOLE")
}

// Helper function to set up test config directory
func setupTestConfigDir(t *testing.T) string {
	dir := t.TempDir()

	crucibleYAML := `
server:
  port: 9090

browser_automation:
  max_concurrent_contexts: 4
`
	err := os.WriteFile(filepath.Join(dir, "crucible.yaml"), []byte(crucibleYAML), 0644)
	require.NoError(t, err)

	judgesYAML := `
judges:
  primary:
    provider: gemini
    model: gemini-2.5-flash
    api_key_env: GEMINI_API_KEY
`
	err = os.WriteFile(filepath.Join(dir, "judges.yaml"), []byte(judgesYAML), 0644)
	require.NoError(t, err)

	return dir
}
