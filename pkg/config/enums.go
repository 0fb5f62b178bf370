package config

// JudgeProvider defines supported AI judge backends
type JudgeProvider string

const (
	// JudgeProviderGemini is Google Gemini API
	JudgeProviderGemini JudgeProvider = "gemini"
	// JudgeProviderAnthropic is Anthropic Claude API
	JudgeProviderAnthropic JudgeProvider = "anthropic"
	// JudgeProviderOpenAI is OpenAI API
	JudgeProviderOpenAI JudgeProvider = "openai"
	// JudgeProviderStatic is a deterministic heuristic judge with no
	// external dependency, for air-gapped and test deployments
	JudgeProviderStatic JudgeProvider = "static"
)

// IsValid checks if the judge provider is valid
func (p JudgeProvider) IsValid() bool {
	switch p {
	case JudgeProviderGemini,
		JudgeProviderAnthropic,
		JudgeProviderOpenAI,
		JudgeProviderStatic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey reports whether the provider needs an API key at startup
func (p JudgeProvider) RequiresAPIKey() bool {
	return p != JudgeProviderStatic
}

// BrowserEngine defines how UI tests drive a browser
type BrowserEngine string

const (
	// BrowserEngineSidecar drives a Playwright-protocol sidecar over HTTP
	BrowserEngineSidecar BrowserEngine = "sidecar"
	// BrowserEngineScripted replays scripted page models without a real
	// browser, for CI and test deployments
	BrowserEngineScripted BrowserEngine = "scripted"
)

// IsValid checks if the browser engine is valid
func (e BrowserEngine) IsValid() bool {
	return e == BrowserEngineSidecar || e == BrowserEngineScripted
}
