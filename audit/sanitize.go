package audit

import (
	"regexp"
	"strings"
)

// RedactionMarker replaces the value of any detail whose key matches a
// sensitive-term pattern.
const RedactionMarker = "[REDACTED]"

// maxStringLength bounds free-text detail values, in runes, to prevent
// log-based exfiltration of oversized payloads.
const maxStringLength = 100

// sensitiveTerms match detail keys case-insensitively by substring.
var sensitiveTerms = []string{
	"password", "token", "key", "secret", "credential",
	"auth", "session", "cookie", "private", "confidential",
}

var (
	windowsPathPattern = regexp.MustCompile(`[A-Za-z]:\\[^\s]*`)
	unixPathPattern    = regexp.MustCompile(`/[^\s]*`)
	injectionPattern   = regexp.MustCompile(`('|"|;|--|/\*|\*/)`)
)

// IsSensitiveKey reports whether a detail key matches the sensitive-term
// pattern and must have its value redacted.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, term := range sensitiveTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// SanitizeDetails returns a sanitized copy of a details mapping. Values under
// sensitive keys are replaced with the redaction marker; nested mappings are
// sanitized recursively; string values are scrubbed and truncated. The input
// map is never mutated.
func SanitizeDetails(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}

	sanitized := make(map[string]interface{}, len(details))
	for key, value := range details {
		switch {
		case IsSensitiveKey(key):
			sanitized[key] = RedactionMarker
		default:
			sanitized[key] = sanitizeValue(value)
		}
	}
	return sanitized
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return SanitizeDetails(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	case string:
		return SanitizeString(v)
	default:
		return value
	}
}

// SanitizeString scrubs a free-text value for persistence: filesystem-path
// substrings are collapsed to a placeholder, injection metacharacters are
// stripped, and the result is truncated to the length bound.
func SanitizeString(text string) string {
	if text == "" {
		return text
	}

	text = windowsPathPattern.ReplaceAllString(text, "[PATH]")
	text = unixPathPattern.ReplaceAllString(text, "[PATH]")
	text = injectionPattern.ReplaceAllString(text, "")

	// Truncate on a rune boundary so a multi-byte character is never split
	// into invalid UTF-8.
	if runes := []rune(text); len(runes) > maxStringLength {
		text = string(runes[:maxStringLength]) + "..."
	}

	return text
}
