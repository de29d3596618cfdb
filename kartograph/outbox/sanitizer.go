package outbox

import (
	"regexp"
	"strings"
)

// Error causes are stored in the last_error column and may echo connection
// strings or tokens from downstream clients. Redact before persisting and
// keep the column bounded (CWE-209).
const maxErrorLength = 512

const errorTruncatedSuffix = "... (truncated)"

const redactedValue = "[REDACTED]"

type sensitiveDataPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

var sensitiveDataPatterns = []sensitiveDataPattern{
	{
		pattern:     regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^:\s/]+):([^@\s]+)@`),
		replacement: `$1:` + redactedValue + `@`,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]+=*\b`),
		replacement: "Bearer " + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)(authorization\s*:\s*basic\s+)[a-z0-9+/=]+`),
		replacement: `$1` + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`\beyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\b`),
		replacement: redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(api[-_ ]?key|access[-_ ]?token|refresh[-_ ]?token|password|secret)\s*[:=]\s*([^\s,;]+)`),
		replacement: `$1=` + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)([?&](?:password|pass|pwd|token|api[_-]?key|access[_-]?token|refresh[_-]?token)=)([^&\s]+)`),
		replacement: `$1` + redactedValue,
	},
}

func sanitizeCause(err error) string {
	if err == nil {
		return ""
	}

	return SanitizeErrorMessage(err.Error())
}

// SanitizeErrorMessage redacts credentials and tokens from an error message
// and enforces a bounded length suitable for the last_error column.
func SanitizeErrorMessage(msg string) string {
	redacted := strings.TrimSpace(msg)

	for _, matcher := range sensitiveDataPatterns {
		redacted = matcher.pattern.ReplaceAllString(redacted, matcher.replacement)
	}

	return truncateError(redacted, maxErrorLength, errorTruncatedSuffix)
}

func truncateError(msg string, maxRunes int, suffix string) string {
	runes := []rune(msg)
	if len(runes) <= maxRunes {
		return msg
	}

	suffixRunes := []rune(suffix)
	if maxRunes <= len(suffixRunes) {
		return string(runes[:maxRunes])
	}

	return string(runes[:maxRunes-len(suffixRunes)]) + suffix
}
