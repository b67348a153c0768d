package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tonimelisma/axm-go/internal/credentials"
)

// DefaultAudience is the aud claim the token endpoint expects in client
// assertions. It differs from the token URL itself.
const DefaultAudience = "https://account.apple.com/auth/oauth2/v2/token"

// assertionTTL bounds the validity window of a client assertion.
const assertionTTL = 5 * time.Minute

// buildAssertion signs a fresh ES256 client assertion. Every call produces a
// new jti; assertions are never cached or logged.
func buildAssertion(creds *credentials.Credentials, audience string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": creds.TeamID,
		"sub": creds.ClientID,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(assertionTTL).Unix(),
		"jti": uuid.NewString(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = creds.KeyID

	signed, err := tok.SignedString(creds.SigningKey())
	if err != nil {
		return "", fmt.Errorf("auth: signing client assertion: %w", err)
	}

	return signed, nil
}
