// Package credentials loads the signing key and identifiers issued by Apple
// School Manager or Apple Business Manager for API access. A loaded
// Credentials value is immutable and safe to share.
package credentials

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Scope selects the vendor program the credentials were issued for.
type Scope string

// The two API scopes Apple issues client credentials for.
const (
	ScopeSchool   Scope = "school.api"
	ScopeBusiness Scope = "business.api"
)

// API base URLs per scope.
const (
	schoolBaseURL   = "https://api-school.apple.com/v1"
	businessBaseURL = "https://api-business.apple.com/v1"
)

// Sentinel errors for credential loading.
var (
	ErrInvalidScope = errors.New("credentials: invalid scope (expected school.api or business.api)")
	ErrMissingField = errors.New("credentials: missing required field")
	ErrInvalidKey   = errors.New("credentials: invalid private key")
)

// ParseScope normalizes a scope string. It accepts the exact scope values
// and, like the vendor tooling, any string that names the program.
func ParseScope(raw string) (Scope, error) {
	s := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case s == string(ScopeSchool) || strings.Contains(s, "school"):
		return ScopeSchool, nil
	case s == string(ScopeBusiness) || strings.Contains(s, "business"):
		return ScopeBusiness, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, raw)
	}
}

// BaseURL returns the API base URL for the scope.
func (s Scope) BaseURL() string {
	if s == ScopeSchool {
		return schoolBaseURL
	}

	return businessBaseURL
}

func (s Scope) String() string {
	return string(s)
}

// Credentials holds the identifiers and signing key for one API account.
// The private key is never exposed through String or slog output.
type Credentials struct {
	ClientID string
	TeamID   string
	KeyID    string
	Scope    Scope

	key *ecdsa.PrivateKey
}

// Source describes where credentials come from. Exactly one of
// PrivateKeyPath and PrivateKeyPEM must be set.
type Source struct {
	ClientID       string
	TeamID         string // defaults to ClientID
	KeyID          string
	Scope          string
	PrivateKeyPath string
	PrivateKeyPEM  []byte
}

// Load validates src, reads and parses the private key, and returns
// immutable Credentials.
func Load(src Source, logger *slog.Logger) (*Credentials, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var missing []string

	if strings.TrimSpace(src.ClientID) == "" {
		missing = append(missing, "client_id")
	}

	if strings.TrimSpace(src.KeyID) == "" {
		missing = append(missing, "key_id")
	}

	if strings.TrimSpace(src.Scope) == "" {
		missing = append(missing, "scope")
	}

	if src.PrivateKeyPath == "" && len(src.PrivateKeyPEM) == 0 {
		missing = append(missing, "private_key_path")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	scope, err := ParseScope(src.Scope)
	if err != nil {
		return nil, err
	}

	pemBytes := src.PrivateKeyPEM
	if len(pemBytes) == 0 {
		pemBytes, err = os.ReadFile(src.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("credentials: reading private key %s: %w", src.PrivateKeyPath, err)
		}
	}

	key, err := ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(src.ClientID)

	teamID := strings.TrimSpace(src.TeamID)
	if teamID == "" {
		teamID = clientID
	}

	creds := &Credentials{
		ClientID: clientID,
		TeamID:   teamID,
		KeyID:    strings.TrimSpace(src.KeyID),
		Scope:    scope,
		key:      key,
	}

	logger.Debug("loaded credentials",
		slog.String("client_id", creds.ClientID),
		slog.String("key_id", creds.KeyID),
		slog.String("scope", creds.Scope.String()),
	)

	return creds, nil
}

// ParsePrivateKey decodes a PEM-encoded ECDSA P-256 private key (PKCS#8 or
// SEC1). The error never includes key bytes.
func ParsePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, keyParseReason(err))
	}

	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: ES256 requires a P-256 key, got %s", ErrInvalidKey, key.Curve.Params().Name)
	}

	return key, nil
}

// keyParseReason maps parse failures to a short description. Library error
// strings are not forwarded because some include decoded input.
func keyParseReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrKeyMustBePEMEncoded):
		return "not PEM encoded"
	case errors.Is(err, jwt.ErrNotECPrivateKey):
		return "not an EC private key"
	default:
		return "unparseable key material"
	}
}

// SigningKey returns the private key used to sign client assertions.
func (c *Credentials) SigningKey() *ecdsa.PrivateKey {
	return c.key
}

// NewForTest builds Credentials around an in-memory key.
func NewForTest(clientID, keyID string, scope Scope, key *ecdsa.PrivateKey) *Credentials {
	return &Credentials{
		ClientID: clientID,
		TeamID:   clientID,
		KeyID:    keyID,
		Scope:    scope,
		key:      key,
	}
}

// String describes the credentials without key material.
func (c *Credentials) String() string {
	return fmt.Sprintf("Credentials{client_id=%s key_id=%s scope=%s}", c.ClientID, c.KeyID, c.Scope)
}

// LogValue implements slog.LogValuer so logging a Credentials never
// reaches the key.
func (c *Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_id", c.ClientID),
		slog.String("key_id", c.KeyID),
		slog.String("scope", c.Scope.String()),
	)
}
