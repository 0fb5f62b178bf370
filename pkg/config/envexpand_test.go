package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_HOST", "api.example.com")
	t.Setenv("TEST_PORT", "8443")

	input := []byte(`endpoint: "https://{{.TEST_HOST}}:{{.TEST_PORT}}/health"`)
	result := ExpandEnv(input)

	assert.Equal(t, `endpoint: "https://api.example.com:8443/health"`, string(result))
}

func TestExpandEnvMissingVariable(t *testing.T) {
	input := []byte(`api_key: "{{.DEFINITELY_NOT_SET_VAR_12345}}"`)
	result := ExpandEnv(input)

	// Missing variables expand to empty string
	assert.Equal(t, `api_key: ""`, string(result))
}

func TestExpandEnvPreservesDollarSigns(t *testing.T) {
	// Selectors and regex patterns with $ must pass through untouched
	inputs := []string{
		`selector: "a[href$='.pdf']"`,
		`expected_content: "^total.*\\$[0-9]+"`,
		`value: "p@ss$word"`,
	}

	for _, input := range inputs {
		result := ExpandEnv([]byte(input))
		assert.Equal(t, input, string(result))
	}
}

func TestExpandEnvMalformedTemplate(t *testing.T) {
	// Unclosed template action: parsing fails, original data passes through
	input := []byte(`endpoint: "{{.UNCLOSED"`)
	result := ExpandEnv(input)

	assert.Equal(t, string(input), string(result))
}

func TestExpandEnvNoTemplates(t *testing.T) {
	input := []byte("server:\n  port: 8080\n")
	result := ExpandEnv(input)

	assert.Equal(t, string(input), string(result))
}

func TestExpandEnvValueWithEquals(t *testing.T) {
	t.Setenv("TEST_QUERY", "a=1&b=2")

	result := ExpandEnv([]byte(`query: "{{.TEST_QUERY}}"`))
	assert.Equal(t, `query: "a=1&b=2"`, string(result))
}

func TestExpandEnvMultipleOccurrences(t *testing.T) {
	t.Setenv("TEST_TOKEN", "sekrit")

	input := []byte("a: {{.TEST_TOKEN}}\nb: {{.TEST_TOKEN}}\n")
	result := ExpandEnv(input)

	assert.Equal(t, "a: sekrit\nb: sekrit\n", string(result))
}
