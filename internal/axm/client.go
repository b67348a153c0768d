package axm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tonimelisma/axm-go/internal/redact"
	"github.com/tonimelisma/axm-go/internal/retry"
)

// Retry and backoff constants.
const (
	maxServerAttempts = 3
	baseBackoff       = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25
	throttleWait      = 60 * time.Second
	userAgent         = "axm-go/0.1"
	requestIDHeader   = "X-Request-Id"
)

var serverBackoff = retry.Backoff{
	Base:   baseBackoff,
	Max:    maxBackoff,
	Factor: backoffFactor,
	Jitter: jitterFraction,
}

// TokenSource provides bearer tokens and can discard the current one when
// the API rejects it. Defined at the consumer; auth.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Client is an HTTP client for the AxM API.
// It handles request construction, authentication, retry, and error
// classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	pageLimit  int

	// sleepFunc is called to wait between retries. Tests override it to
	// avoid real delays.
	sleepFunc retry.SleepFunc
}

// NewClient creates an API client.
// baseURL is the scope's base, e.g. "https://api-business.apple.com/v1".
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		pageLimit:  DefaultPageLimit,
		sleepFunc:  retry.Sleep,
	}
}

// SetPageLimit overrides the page size requested by Pages. Values outside
// 1..DefaultPageLimit are ignored.
func (c *Client) SetPageLimit(n int) {
	if n > 0 && n <= DefaultPageLimit {
		c.pageLimit = n
	}
}

// Execute performs an authenticated request against the API. The path,
// including any query string, is appended to the base URL. A non-nil body is
// sent as JSON. On success the caller must close the response body; every
// failure is an *APIError or a wrapped context error.
func (c *Client) Execute(ctx context.Context, method, path string, body any) (*http.Response, error) {
	return c.execute(ctx, method, c.baseURL+path, path, body, true)
}

// ExecuteUnauthenticated performs a GET against an absolute URL without an
// Authorization header, for pre-signed download URLs. The URL's query is
// never logged or included in errors.
func (c *Client) ExecuteUnauthenticated(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.execute(ctx, http.MethodGet, rawURL, safePath(rawURL), nil, false)
}

func (c *Client) execute(ctx context.Context, method, target, path string, body any, authenticated bool) (*http.Response, error) {
	if _, err := url.Parse(target); err != nil {
		return nil, fmt.Errorf("axm: invalid request URL for %s: %w", path, ErrBadRequest)
	}

	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("axm: encoding request body: %w", err)
		}
	}

	var (
		attempts      int
		serverRetries int
		refreshed     bool
		throttled     bool
	)

	for {
		attempts++

		var bearer string

		if authenticated {
			tok, err := c.token.Token(ctx)
			if err != nil {
				return nil, fmt.Errorf("axm: obtaining token: %w", err)
			}

			bearer = tok
		}

		resp, err := c.doOnce(ctx, method, target, payload, bearer)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("axm: request canceled: %w", ctx.Err())
			}

			// Network errors share the server error budget.
			if serverRetries < maxServerAttempts-1 {
				backoff := serverBackoff.Delay(serverRetries)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempts),
					slog.Duration("backoff", backoff),
					slog.String("error", networkReason(err)),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("axm: request canceled: %w", sleepErr)
				}

				serverRetries++

				continue
			}

			c.logger.Error("request failed, no response",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempts", attempts),
			)

			return nil, &APIError{
				Method:   method,
				Path:     path,
				Attempts: attempts,
				Body:     networkReason(err),
				Err:      ErrNetwork,
			}
		}

		// 2xx: success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempts),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && authenticated && !refreshed:
			refreshed = true

			c.logger.Info("token rejected, refreshing once",
				slog.String("method", method),
				slog.String("path", path),
			)

			if err := c.token.Invalidate(ctx); err != nil {
				c.logger.Warn("invalidating token failed", slog.String("error", err.Error()))
			}

			continue

		case resp.StatusCode == http.StatusTooManyRequests && !throttled:
			throttled = true

			wait, ok := retry.RetryAfter(resp.Header, time.Now())
			if !ok {
				wait = throttleWait
			}

			c.logger.Warn("throttled, retrying once",
				slog.String("method", method),
				slog.String("path", path),
				slog.Duration("wait", wait),
			)

			if err := c.sleepFunc(ctx, wait); err != nil {
				return nil, fmt.Errorf("axm: request canceled: %w", err)
			}

			continue

		case resp.StatusCode >= http.StatusInternalServerError && serverRetries < maxServerAttempts-1:
			backoff := serverBackoff.Delay(serverRetries)
			c.logger.Warn("retrying after server error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempts),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("axm: request canceled: %w", err)
			}

			serverRetries++

			continue
		}

		apiErr := &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get(requestIDHeader),
			Body:       redact.Body(errBody),
			Attempts:   attempts,
			Err:        classifyStatus(resp.StatusCode),
		}

		if attempts > 1 || resp.StatusCode != http.StatusNotFound {
			c.logger.Error("request failed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempts),
			)
		}

		return nil, apiErr
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, target string, payload []byte, bearer string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	return resp, nil
}

// safePath strips the query and credentials from a URL so signed download
// links can be logged.
func safePath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "(unparseable url)"
	}

	return u.Scheme + "://" + u.Host + u.Path
}

// networkReason describes a transport failure without the request URL,
// which may carry a signed query.
func networkReason(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		return redact.String(ue.Err.Error())
	}

	return redact.String(err.Error())
}

// decodeJSON reads and closes resp.Body into v.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("axm: decoding response: %w", err)
	}

	return nil
}
