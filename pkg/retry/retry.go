package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Option configures a retry policy.
type Option func(*policy)

type policy struct {
	maxAttempts     uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// WithMaxAttempts caps the total number of attempts (first try included).
func WithMaxAttempts(n uint64) Option {
	return func(p *policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithInitialInterval sets the delay before the first retry.
func WithInitialInterval(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.initialInterval = d
		}
	}
}

// WithMaxInterval caps the delay between retries.
func WithMaxInterval(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.maxInterval = d
		}
	}
}

// Do runs op, retrying transient failures with exponential backoff until
// it succeeds, the attempt budget is spent, or ctx is done. Wrap an error
// with Permanent to stop retrying immediately.
func Do(ctx context.Context, op func() error, opts ...Option) error {
	p := &policy{
		maxAttempts:     3,
		initialInterval: 500 * time.Millisecond,
		maxInterval:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.MaxInterval = p.maxInterval

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, p.maxAttempts-1), ctx))
}

// Permanent marks err as non-retryable, aborting Do on the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
