package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch-server/internal/gateway"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
	}
}

func TestRetryPolicy_SucceedsFirstTry(t *testing.T) {
	attempts := 0
	err := testPolicy().Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryPolicy_RetriesRateLimitedUntilExhausted(t *testing.T) {
	rateLimited := &gateway.RateLimitError{Provider: "evolution", Err: errors.New("429")}

	attempts := 0
	err := testPolicy().Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return rateLimited
	})
	if !gateway.IsRateLimited(err) {
		t.Errorf("expected the rate limit error to propagate, got %v", err)
	}
	// Initial attempt plus MaxRetries retries.
	if attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", attempts)
	}
}

func TestRetryPolicy_RecoversMidway(t *testing.T) {
	rateLimited := &gateway.RateLimitError{Provider: "waha", Err: errors.New("429")}

	attempts := 0
	err := testPolicy().Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return rateLimited
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicy_PermanentErrorNotRetried(t *testing.T) {
	permanent := errors.New("recipient does not exist")

	attempts := 0
	err := testPolicy().Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("expected the permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryPolicy_BackoffDoublesAndCaps(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for attempt, want := range expected {
		if got := policy.delayFor(attempt); got != want {
			t.Errorf("attempt %d: expected delay %v, got %v", attempt, want, got)
		}
	}
}

func TestRetryPolicy_ContextCancelDuringBackoff(t *testing.T) {
	rateLimited := &gateway.RateLimitError{Provider: "telegram", Err: errors.New("429")}
	policy := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Hour,
		MaxDelay:   time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(ctx context.Context) error {
			return rateLimited
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}
