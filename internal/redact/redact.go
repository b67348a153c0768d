// Package redact strips secret material from HTTP response bodies before they
// are stored in errors or written to logs. Token endpoint and API error bodies
// are echoed back to the operator, so anything that looks like a bearer token,
// a signed assertion, or a private key is masked and the result is truncated.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxBodyLen is the maximum number of bytes of a response body kept in an error.
const MaxBodyLen = 512

// Placeholder replaces every masked value.
const Placeholder = "[REDACTED]"

const truncatedSuffix = "...(truncated)"

var (
	privateKeyPattern = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?(-----END [A-Z ]*PRIVATE KEY-----|$)`)
	jwtPattern        = regexp.MustCompile(`eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`)
	jsonFieldPattern  = regexp.MustCompile(`"(access_token|refresh_token|id_token|client_assertion|client_secret|token)"\s*:\s*"[^"]*"`)
	formFieldPattern  = regexp.MustCompile(`(access_token|refresh_token|client_assertion|client_secret)=[^&\s"]+`)
	bearerPattern     = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)
)

// String masks secrets in s without truncating it.
func String(s string) string {
	s = privateKeyPattern.ReplaceAllString(s, Placeholder)
	s = jsonFieldPattern.ReplaceAllString(s, `"$1":"`+Placeholder+`"`)
	s = formFieldPattern.ReplaceAllString(s, "$1="+Placeholder)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+Placeholder)
	s = jwtPattern.ReplaceAllString(s, Placeholder)

	return s
}

// Body masks secrets in a response body and truncates the result to
// MaxBodyLen bytes on a rune boundary. Redaction runs before truncation so a
// secret straddling the cut is still masked as a whole.
func Body(body []byte) string {
	s := strings.TrimSpace(String(string(body)))
	if len(s) <= MaxBodyLen {
		return s
	}

	cut := MaxBodyLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut] + truncatedSuffix
}
