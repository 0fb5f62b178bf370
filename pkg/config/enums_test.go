package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJudgeProviderIsValid(t *testing.T) {
	valid := []JudgeProvider{
		JudgeProviderGemini,
		JudgeProviderAnthropic,
		JudgeProviderOpenAI,
		JudgeProviderStatic,
	}
	for _, p := range valid {
		assert.True(t, p.IsValid(), "provider %s should be valid", p)
	}

	assert.False(t, JudgeProvider("").IsValid())
	assert.False(t, JudgeProvider("bard").IsValid())
	assert.False(t, JudgeProvider("GEMINI").IsValid(), "providers are lowercase")
}

func TestJudgeProviderRequiresAPIKey(t *testing.T) {
	assert.True(t, JudgeProviderGemini.RequiresAPIKey())
	assert.True(t, JudgeProviderAnthropic.RequiresAPIKey())
	assert.True(t, JudgeProviderOpenAI.RequiresAPIKey())
	assert.False(t, JudgeProviderStatic.RequiresAPIKey())
}

func TestBrowserEngineIsValid(t *testing.T) {
	assert.True(t, BrowserEngineSidecar.IsValid())
	assert.True(t, BrowserEngineScripted.IsValid())
	assert.False(t, BrowserEngine("selenium").IsValid())
	assert.False(t, BrowserEngine("").IsValid())
}
