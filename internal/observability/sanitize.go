package observability

import (
	"regexp"
	"strings"
)

const credentialRedacted = "[CREDENTIAL_REDACTED]"

type credentialPattern struct {
	re          *regexp.Regexp
	replacement string
}

// Secrets that can reach log lines through upstream error text: critique API
// keys, Phoenix bearer tokens, and database DSNs.
var credentialPatterns = []credentialPattern{
	// OpenAI-style keys: sk-..., sk-proj-...
	{re: regexp.MustCompile(`(?i)\bsk-[a-z0-9_-]{16,}`), replacement: credentialRedacted},
	// Underscore-prefixed keys: sk_, pk_, rk_, ghp_ and friends.
	{re: regexp.MustCompile(`(?i)\b(?:sk|pk|rk|gh[pousr]|pat)_[a-z0-9_-]{8,}\b`), replacement: credentialRedacted},
	{re: regexp.MustCompile(`(?i)eyj[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}`), replacement: credentialRedacted},
	{re: regexp.MustCompile(`(?i)\bBearer\s+[a-z0-9_.\-/+=]{8,}\b`), replacement: credentialRedacted},
	// DSN key/value secrets: password=..., api_key=..., token=...
	{re: regexp.MustCompile(`(?i)\b(?:password|secret|token|api_key|apikey)\s*=\s*\S{4,}`), replacement: credentialRedacted},
	// Passwords in URL userinfo keep the user and host visible. A secret never
	// starts with "[" so the redacted form does not match again.
	{re: regexp.MustCompile(`(?i)(\b[a-z][a-z0-9+.-]*://[^/\s:@]+:)[^@\s/\[][^@\s/]*(@)`), replacement: "${1}" + credentialRedacted + "${2}"},
}

// ContainsCredential reports whether s matches any known credential pattern.
func ContainsCredential(s string) bool {
	if len(s) < 8 {
		return false
	}
	for _, p := range credentialPatterns {
		if p.re.MatchString(s) {
			return true
		}
	}
	return false
}

// ScrubCredentials replaces detected credentials in s. Strings without a match
// are returned unchanged.
func ScrubCredentials(s string) string {
	if !ContainsCredential(s) {
		return s
	}
	result := s
	for _, p := range credentialPatterns {
		result = p.re.ReplaceAllString(result, p.replacement)
	}
	return strings.TrimSpace(result)
}
