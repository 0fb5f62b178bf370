package quality

import (
	"fmt"
	"os"
	"time"

	"github.com/cruciblehq/crucible/pkg/config"
)

const (
	defaultJudgeMaxTokens   = 1024
	defaultJudgeTemperature = 0.1
)

// newBackend builds the provider client for one configured judge. Providers
// that require an API key fail here when the env var is empty so a
// misconfigured judge is caught at startup, not on the first assessment.
func newBackend(jc config.JudgeConfig, timeout time.Duration) (backend, error) {
	switch jc.Provider {
	case config.JudgeProviderGemini:
		return newGeminiBackend(jc)
	case config.JudgeProviderAnthropic:
		return newAnthropicBackend(jc)
	case config.JudgeProviderOpenAI:
		return newOpenAIBackend(jc, timeout)
	case config.JudgeProviderStatic:
		return newStaticBackend(), nil
	default:
		return nil, fmt.Errorf("unknown judge provider %q", jc.Provider)
	}
}

func requireAPIKey(jc config.JudgeConfig) (string, error) {
	if jc.APIKeyEnv == "" {
		return "", fmt.Errorf("provider %s requires api_key_env", jc.Provider)
	}
	key := os.Getenv(jc.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("env var %s holds no API key", jc.APIKeyEnv)
	}
	return key, nil
}

func maxTokensOrDefault(v int) int {
	if v > 0 {
		return v
	}
	return defaultJudgeMaxTokens
}

func temperatureOrDefault(v *float64) float64 {
	if v != nil {
		return *v
	}
	return defaultJudgeTemperature
}
