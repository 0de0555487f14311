package dispatch

import (
	"context"
	"time"

	"dispatch-server/internal/gateway"
)

// RetryPolicy retries rate-limited operations with bounded exponential
// backoff. Any failure without a rate-limit signal propagates immediately so
// permanent errors are never masked as transient.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy matches the vendor throttling windows observed in
// production: three retries, 1s base, 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

// delayFor computes the backoff before retry attempt k (0-indexed):
// min(base * 2^k, max).
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs op, retrying rate-limited failures up to MaxRetries times. The
// backoff sleep respects context cancellation. After exhaustion the last
// error is returned for the caller to record; it never aborts a whole run.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !gateway.IsRateLimited(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			return err
		}

		timer := time.NewTimer(p.delayFor(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
