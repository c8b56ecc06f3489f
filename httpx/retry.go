package httpx

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Policy retries an operation with exponential backoff. The zero value
// never retries; use DefaultPolicy for the settings tuned against the
// quota limits of the APIs this module talks to.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsRateLimited.
	Retryable func(error) bool

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration) error
}

// DefaultPolicy backs off 10s, 50s, 250s... for up to five attempts,
// matching the pacing the rate-limited upstream APIs expect.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Second,
		Factor:      5,
		MaxDelay:    5 * time.Minute,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or exhausts
// the attempt budget. The context cancels any in-progress backoff wait.
func (p Policy) Do(ctx context.Context, op func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRateLimited
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt >= attempts || !retryable(err) {
			return err
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * p.Factor)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

// IsRateLimited reports whether an error looks like an API quota rejection.
func IsRateLimited(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		if status.StatusCode == 429 {
			return true
		}
		return strings.Contains(strings.ToLower(status.Body), "quota exceeded")
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
