package adapters

import (
	"context"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 2 * time.Second
)

// RetryPolicy retries classified-retryable failures (network, rate-limited)
// with exponential backoff: the delay before retry n is BaseDelay * 2^(n-1).
// Everything else fails immediately.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a retry policy. Non-positive arguments fall back to
// 3 retries with a 2s base delay.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration) *RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		sleep:      sleepCtx,
	}
}

// Do runs fn, retrying on retryable errors. The last error is returned when
// retries are exhausted. Context cancellation aborts the backoff wait.
func (p *RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) || attempt >= p.MaxRetries {
			return lastErr
		}

		delay := p.BaseDelay << attempt
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// sleepCtx waits for d or until the context is cancelled.
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
