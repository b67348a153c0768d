// Package auth manages the OAuth 2.0 access token for the AxM API. Tokens are
// obtained with the client credentials grant authenticated by an ES256-signed
// client assertion, cached encrypted on disk, and refreshed on expiry or
// explicit invalidation.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonimelisma/axm-go/internal/credentials"
)

// Token is an access token with its absolute expiry. Value is the bearer
// credential and is never printed: String and LogValue omit it.
type Token struct {
	Value     string
	ExpiresAt time.Time
	Scope     credentials.Scope
	// Cached reports whether the token came from the token cache rather than
	// a token endpoint round-trip.
	Cached bool
}

// Valid reports whether the token is usable at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

func (t Token) String() string {
	return fmt.Sprintf("Token{scope=%s expires_at=%s}", t.Scope, t.ExpiresAt.Format(time.RFC3339))
}

// LogValue implements slog.LogValuer.
func (t Token) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("scope", t.Scope.String()),
		slog.Time("expires_at", t.ExpiresAt),
		slog.Bool("cached", t.Cached),
	)
}

// Sentinel errors for token acquisition. Use errors.Is(err, auth.ErrInvalidCredentials).
var (
	ErrTokenRequest       = errors.New("auth: token request failed")
	ErrInvalidCredentials = errors.New("auth: credentials rejected by token endpoint")
	ErrThrottled          = errors.New("auth: token endpoint throttled")
	ErrMalformedToken     = errors.New("auth: token endpoint returned an unusable token")
)

// Error describes a failed token request. Body is redacted and truncated; it
// never contains the client assertion or key material.
type Error struct {
	StatusCode int
	Body       string
	Err        error // sentinel, for errors.Is()

	retryAfter time.Duration
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
	}

	if e.StatusCode == http.StatusBadRequest {
		msg += " (check client_id, key_id and scope)"
	}

	if e.Body != "" {
		msg += ": " + e.Body
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyStatus maps a token endpoint status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidCredentials
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		return ErrTokenRequest
	}
}
