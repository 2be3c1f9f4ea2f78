// Package redact strips sensitive material from strings before they reach
// logs or error responses. Provider and storage errors routinely embed
// signed URLs, API keys, and connection strings; everything leaving the
// service boundary passes through here first.
package redact

import "regexp"

// Redaction placeholders.
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	TokenPlaceholder      = "[REDACTED_TOKEN]"
	QueryPlaceholder      = "[REDACTED_QUERY]"
)

var (
	// Connection strings with inline credentials.
	connStringRegex = regexp.MustCompile(`(?i)(postgres|postgresql|redis|mysql|amqp)://[^@\s]+@`)

	// API keys and secrets in key=value or header form.
	apiKeyRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|authorization|bearer)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// Three-part JWTs.
	jwtRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// Signed URL query strings. Provider media URLs carry expiring
	// signatures; the path is fine, the query is not.
	signedQueryRegex = regexp.MustCompile(`(?i)\?(?:[^\s]*(?:sig|signature|expires|token|key)=)[^\s]*`)

	replacements = []struct {
		pattern     *regexp.Regexp
		placeholder string
	}{
		{connStringRegex, CredentialPlaceholder},
		{apiKeyRegex, KeyPlaceholder},
		{jwtRegex, TokenPlaceholder},
		{signedQueryRegex, QueryPlaceholder},
	}
)

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, r := range replacements {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
