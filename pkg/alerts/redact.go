package alerts

import (
	"regexp"
	"strings"
)

// redactedValue replaces any detail whose key names a credential.
const redactedValue = "__REDACTED__"

// secretKeyFragments flag detail keys whose whole value is dropped,
// regardless of content.
var secretKeyFragments = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "credential", "private_key",
}

// redactionPattern rewrites credential-shaped substrings inside free-form
// detail values.
type redactionPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// Ordered most specific first so the well-known token formats keep their
// distinct markers before the generic sweeps run.
var redactionPatterns = []redactionPattern{
	{
		regex:       regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`),
		replacement: "__REDACTED_CERTIFICATE__",
	},
	{
		regex:       regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,72}`),
		replacement: "__REDACTED_SLACK_TOKEN__",
	},
	{
		regex:       regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,255}`),
		replacement: "__REDACTED_GITHUB_TOKEN__",
	},
	{
		regex:       regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
		replacement: "__REDACTED_AWS_KEY__",
	},
	{
		regex:       regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|client[_-]?secret|access[_-]?key)(["']?\s*[:=]\s*)["']?[A-Za-z0-9_\-./+]{8,}["']?`),
		replacement: `${1}${2}` + redactedValue,
	},
	{
		regex:       regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.=]{8,}`),
		replacement: "Bearer " + redactedValue,
	},
	{
		regex:       regexp.MustCompile(`(?i)(token|jwt)(["']?\s*[:=]\s*)["']?[A-Za-z0-9_\-.=]{8,}["']?`),
		replacement: `${1}${2}` + redactedValue,
	},
	{
		regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)(["']?\s*[:=]\s*)["']?[^"'\s]{4,}["']?`),
		replacement: `${1}${2}` + redactedValue,
	},
}

// redactDetails returns a copy of details with credential-bearing values
// replaced. Keys that name a secret lose their value outright; remaining
// string values are swept for credential-shaped substrings. Non-string
// values pass through untouched.
func redactDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if secretKey(k) {
			out[k] = redactedValue
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return redactString(val)
	case map[string]any:
		return redactDetails(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	}
	return v
}

func redactString(s string) string {
	for _, p := range redactionPatterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

func secretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
