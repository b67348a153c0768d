package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tonimelisma/axm-go/internal/credentials"
	"github.com/tonimelisma/axm-go/internal/redact"
	"github.com/tonimelisma/axm-go/internal/retry"
	"github.com/tonimelisma/axm-go/internal/tokenfile"
)

// DefaultTokenURL is the fixed token endpoint for ASM/ABM client credentials.
const DefaultTokenURL = "https://account.apple.com/auth/oauth2/token"

const (
	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// expiryMargin is subtracted from a token's lifetime when deciding
	// whether it is still usable, so a token is not handed out seconds
	// before it dies mid-request.
	expiryMargin = 30 * time.Second

	// throttleWait applies when the token endpoint returns 429 without a
	// Retry-After header.
	throttleWait = 60 * time.Second

	// fallbackLifetime is assumed when the token response carries no
	// expires_in. Short on purpose: the token is refetched soon after.
	fallbackLifetime = 5 * time.Minute
)

// Config configures a Manager. Credentials is required; everything else
// has a default.
type Config struct {
	Credentials *credentials.Credentials
	// Cache persists tokens across runs. Nil keeps tokens in memory only.
	Cache      *tokenfile.Cache
	HTTPClient *http.Client
	TokenURL   string
	Audience   string
	Now        func() time.Time
	Logger     *slog.Logger
}

// Manager hands out valid access tokens, fetching and caching them as
// needed. It is safe for concurrent use, though the CLI drives it from a
// single goroutine.
type Manager struct {
	creds      *credentials.Credentials
	cache      *tokenfile.Cache
	httpClient *http.Client
	tokenURL   string
	audience   string
	now        func() time.Time
	logger     *slog.Logger

	// sleepFunc waits out a 429 from the token endpoint. Tests override it.
	sleepFunc retry.SleepFunc

	mu      sync.Mutex
	current *Token
	// bypassCache forces the next acquisition to skip the persisted cache.
	// Set by Invalidate so a cache file that could not be removed is not
	// served again.
	bypassCache bool
}

// NewManager creates a Manager from cfg.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("auth: credentials are required")
	}

	m := &Manager{
		creds:      cfg.Credentials,
		cache:      cfg.Cache,
		httpClient: cfg.HTTPClient,
		tokenURL:   cfg.TokenURL,
		audience:   cfg.Audience,
		now:        cfg.Now,
		logger:     cfg.Logger,
		sleepFunc:  retry.Sleep,
	}

	if m.httpClient == nil {
		m.httpClient = http.DefaultClient
	}

	if m.tokenURL == "" {
		m.tokenURL = DefaultTokenURL
	}

	if m.audience == "" {
		m.audience = DefaultAudience
	}

	if m.now == nil {
		m.now = time.Now
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m, nil
}

// GetValidToken returns a token that is valid for at least the safety
// margin. It serves the in-memory token, then the persisted cache, and only
// then calls the token endpoint.
func (m *Manager) GetValidToken(ctx context.Context) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if m.current != nil && m.usable(*m.current, now) {
		return *m.current, nil
	}

	if tok, ok := m.loadCached(now); ok {
		m.current = &tok
		return tok, nil
	}

	m.logger.Info("cached token not found or expired, requesting new token",
		slog.String("scope", m.creds.Scope.String()),
	)

	tok, err := m.fetch(ctx)
	if err != nil {
		return Token{}, err
	}

	m.current = &tok
	m.bypassCache = false
	m.store(tok)

	return tok, nil
}

// Token returns the bearer value of a valid token. It adapts Manager to
// token-source interfaces that only need the string.
func (m *Manager) Token(ctx context.Context) (string, error) {
	tok, err := m.GetValidToken(ctx)
	if err != nil {
		return "", err
	}

	return tok.Value, nil
}

// Invalidate drops the current token from memory and from the persisted
// cache. The next GetValidToken performs a full token request.
func (m *Manager) Invalidate(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	m.bypassCache = true

	m.logger.Info("access token invalidated")

	if m.cache == nil {
		return nil
	}

	if err := m.cache.Clear(); err != nil {
		return fmt.Errorf("auth: clearing token cache: %w", err)
	}

	return nil
}

func (m *Manager) usable(t Token, now time.Time) bool {
	return t.Valid(now.Add(expiryMargin))
}

func (m *Manager) loadCached(now time.Time) (Token, bool) {
	if m.cache == nil || m.bypassCache {
		return Token{}, false
	}

	e, ok := m.cache.Load(m.creds.ClientID, m.creds.Scope.String())
	if !ok {
		return Token{}, false
	}

	tok := Token{
		Value:     e.AccessToken,
		ExpiresAt: e.ExpiresAt,
		Scope:     m.creds.Scope,
		Cached:    true,
	}

	if !m.usable(tok, now) {
		m.logger.Debug("cached token expired", slog.Time("expires_at", e.ExpiresAt))
		return Token{}, false
	}

	m.logger.Info("using cached token",
		slog.Duration("remaining", tok.ExpiresAt.Sub(now).Truncate(time.Second)),
	)

	return tok, true
}

func (m *Manager) store(tok Token) {
	if m.cache == nil {
		return
	}

	err := m.cache.Save(tokenfile.Entry{
		AccessToken: tok.Value,
		TokenType:   "Bearer",
		ExpiresAt:   tok.ExpiresAt,
		ClientID:    m.creds.ClientID,
		Scope:       m.creds.Scope.String(),
	})
	if err != nil {
		// The token is still good for this run.
		m.logger.Warn("failed to persist token cache", slog.String("error", err.Error()))
		return
	}

	m.logger.Debug("token cached", slog.Time("expires_at", tok.ExpiresAt))
}

// fetch requests a token, retrying exactly once if the endpoint throttles.
func (m *Manager) fetch(ctx context.Context) (Token, error) {
	tok, err := m.requestToken(ctx)

	var authErr *Error
	if err == nil || !errors.As(err, &authErr) || authErr.StatusCode != http.StatusTooManyRequests {
		return tok, err
	}

	wait := authErr.retryAfter
	if wait <= 0 {
		wait = throttleWait
	}

	m.logger.Warn("token endpoint throttled, retrying once", slog.Duration("wait", wait))

	if sleepErr := m.sleepFunc(ctx, wait); sleepErr != nil {
		return Token{}, fmt.Errorf("auth: token request canceled: %w", sleepErr)
	}

	return m.requestToken(ctx)
}

// requestToken performs one client credentials exchange.
func (m *Manager) requestToken(ctx context.Context) (Token, error) {
	issued := m.now()

	assertion, err := buildAssertion(m.creds, m.audience, issued)
	if err != nil {
		return Token{}, err
	}

	cc := clientcredentials.Config{
		ClientID: m.creds.ClientID,
		TokenURL: m.tokenURL,
		Scopes:   []string{m.creds.Scope.String()},
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}

	ot, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, m.httpClient))
	if err != nil {
		return Token{}, m.tokenError(ctx, err)
	}

	if ot.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: empty access_token", ErrMalformedToken)
	}

	tok := Token{
		Value:     ot.AccessToken,
		ExpiresAt: issued.Add(m.lifetime(ot)),
		Scope:     m.creds.Scope,
	}

	if !m.usable(tok, issued) {
		return Token{}, fmt.Errorf("%w: expires at %s", ErrMalformedToken, tok.ExpiresAt.Format(time.RFC3339))
	}

	m.logger.Info("new access token acquired", slog.Time("expires_at", tok.ExpiresAt))

	return tok, nil
}

// lifetime reads expires_in from the raw response. oauth2 only derives
// Expiry from that same field, so a response without it gets the fallback.
func (m *Manager) lifetime(ot *oauth2.Token) time.Duration {
	if secs, ok := expiresIn(ot.Extra("expires_in")); ok {
		return time.Duration(secs) * time.Second
	}

	m.logger.Warn("token response has no expires_in, assuming short lifetime",
		slog.Duration("lifetime", fallbackLifetime),
	)

	return fallbackLifetime
}

func expiresIn(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// tokenError converts library errors into *Error with a redacted body.
func (m *Manager) tokenError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("auth: token request canceled: %w", ctx.Err())
	}

	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		m.logger.Error("token request failed", slog.String("error", redact.String(err.Error())))

		return &Error{Err: ErrTokenRequest, Body: redact.String(err.Error())}
	}

	ae := &Error{Body: redact.Body(re.Body), Err: ErrTokenRequest}

	if re.Response != nil {
		ae.StatusCode = re.Response.StatusCode
		ae.Err = classifyStatus(ae.StatusCode)

		if ra, ok := retry.RetryAfter(re.Response.Header, m.now()); ok {
			ae.retryAfter = ra
		}
	}

	m.logger.Error("token endpoint rejected request",
		slog.Int("status", ae.StatusCode),
	)

	return ae
}
