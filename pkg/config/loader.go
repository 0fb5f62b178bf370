package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// CrucibleYAMLConfig represents the complete crucible.yaml file structure
type CrucibleYAMLConfig struct {
	Server            *ServerConfig            `yaml:"server"`
	Orchestrator      *OrchestratorConfig      `yaml:"orchestrator"`
	Scenarios         *ScenariosConfig         `yaml:"scenarios"`
	APITesting        *APITestingConfig        `yaml:"api_testing"`
	BrowserAutomation *BrowserAutomationConfig `yaml:"browser_automation"`
	AIQuality         *AIQualityConfig         `yaml:"ai_quality"`
	Aggregation       *AggregationConfig       `yaml:"aggregation"`
	Notification      *NotificationConfig      `yaml:"notification"`
	Events            *EventsConfig            `yaml:"events"`
	Telemetry         *TelemetryConfig         `yaml:"telemetry"`
}

// JudgesYAMLConfig represents the complete judges.yaml file structure
type JudgesYAMLConfig struct {
	Judges map[string]JudgeConfig `yaml:"judges"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-defined sections over built-in defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"judges", stats.Judges,
		"rules", stats.Rules,
		"channels", stats.Channels)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load crucible.yaml (all service sections)
	crucibleConfig, err := loader.loadCrucibleYAML()
	if err != nil {
		return nil, NewLoadError("crucible.yaml", err)
	}

	// 2. Load judges.yaml (optional; quality service refuses real
	// assessments without judges, but other services run fine)
	judges, err := loader.loadJudgesYAML()
	if err != nil {
		return nil, NewLoadError("judges.yaml", err)
	}

	// 3. Merge each user section over built-in defaults. Non-zero user
	// values override; unset values keep defaults.
	cfg := &Config{
		configDir:         configDir,
		Server:            DefaultServerConfig(),
		Orchestrator:      DefaultOrchestratorConfig(),
		Scenarios:         DefaultScenariosConfig(),
		APITesting:        DefaultAPITestingConfig(),
		BrowserAutomation: DefaultBrowserAutomationConfig(),
		AIQuality:         DefaultAIQualityConfig(),
		Aggregation:       DefaultAggregationConfig(),
		Notification:      DefaultNotificationConfig(),
		Events:            DefaultEventsConfig(),
		Telemetry:         DefaultTelemetryConfig(),
	}

	if crucibleConfig.Server != nil {
		if err := mergo.Merge(cfg.Server, crucibleConfig.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}
	if crucibleConfig.Orchestrator != nil {
		if err := mergo.Merge(cfg.Orchestrator, crucibleConfig.Orchestrator, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge orchestrator config: %w", err)
		}
	}
	if crucibleConfig.Scenarios != nil {
		if err := mergo.Merge(cfg.Scenarios, crucibleConfig.Scenarios, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge scenarios config: %w", err)
		}
	}
	if crucibleConfig.APITesting != nil {
		if err := mergo.Merge(cfg.APITesting, crucibleConfig.APITesting, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge api_testing config: %w", err)
		}
	}
	if crucibleConfig.BrowserAutomation != nil {
		if err := mergo.Merge(cfg.BrowserAutomation, crucibleConfig.BrowserAutomation, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge browser_automation config: %w", err)
		}
	}
	if crucibleConfig.AIQuality != nil {
		if err := mergo.Merge(cfg.AIQuality, crucibleConfig.AIQuality, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge ai_quality config: %w", err)
		}
	}
	if crucibleConfig.Aggregation != nil {
		if err := mergo.Merge(cfg.Aggregation, crucibleConfig.Aggregation, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge aggregation config: %w", err)
		}
	}
	if crucibleConfig.Notification != nil {
		if err := mergo.Merge(cfg.Notification, crucibleConfig.Notification, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge notification config: %w", err)
		}
	}
	if crucibleConfig.Events != nil {
		if err := mergo.Merge(cfg.Events, crucibleConfig.Events, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge events config: %w", err)
		}
	}
	if crucibleConfig.Telemetry != nil {
		if err := mergo.Merge(cfg.Telemetry, crucibleConfig.Telemetry, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge telemetry config: %w", err)
		}
	}

	cfg.AIQuality.Judges = judges

	return cfg, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	// Parse YAML
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadCrucibleYAML() (*CrucibleYAMLConfig, error) {
	var config CrucibleYAMLConfig

	if err := l.loadYAML("crucible.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// loadJudgesYAML loads judges.yaml. A missing file is not an error:
// deployments without the quality service don't ship one.
func (l *configLoader) loadJudgesYAML() (map[string]JudgeConfig, error) {
	var config JudgesYAMLConfig

	// Initialize map to avoid nil map
	config.Judges = make(map[string]JudgeConfig)

	if err := l.loadYAML("judges.yaml", &config); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return config.Judges, nil
		}
		return nil, err
	}

	return config.Judges, nil
}
