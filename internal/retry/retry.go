// Package retry holds the timing primitives shared by the token manager and
// the API client: context-aware sleeping, Retry-After parsing, and jittered
// exponential backoff.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SleepFunc waits for d or until ctx is done. Clients hold one so tests can
// substitute a recorder that returns immediately.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for the given duration or until the context is canceled.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryAfter reads the Retry-After header as delta-seconds or an HTTP-date.
// The second result is false when the header is absent or unparseable.
func RetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(ra); err == nil {
		if seconds < 0 {
			return 0, false
		}

		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(ra); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}

		return d, true
	}

	return 0, false
}

// Backoff computes exponential delays with symmetric jitter.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // fraction of the delay, e.g. 0.25 for ±25%
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}

	jitter := d * b.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	d += jitter

	return time.Duration(d)
}
