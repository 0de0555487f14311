package dispatch

import (
	"context"
	"math/rand"
	"time"

	"dispatch-server/internal/gateway"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/store"
)

const (
	minTypingDelay = 1 * time.Second
	maxTypingDelay = 10 * time.Second

	// Rough typing speed used to scale the pause to the message length.
	charsPerSecond = 1.5

	presenceTimeout = 1 * time.Second
)

// TypingSimulator inserts a human-scale pause before each send and signals a
// "composing" presence on the gateway so the recipient sees a typing
// indicator. The pause is proportional to message length with +-20% jitter,
// clamped to [1s, 10s].
type TypingSimulator struct {
	registry *gateway.Registry
	logger   *observability.Logger

	minDelay time.Duration
	maxDelay time.Duration

	// randFloat returns a value in [0,1). Injectable for deterministic tests.
	randFloat func() float64
}

func NewTypingSimulator(registry *gateway.Registry, logger *observability.Logger) *TypingSimulator {
	return &TypingSimulator{
		registry:  registry,
		logger:    logger,
		minDelay:  minTypingDelay,
		maxDelay:  maxTypingDelay,
		randFloat: rand.Float64,
	}
}

// Delay computes the simulated typing duration for a message of the given
// length.
func (t *TypingSimulator) Delay(messageLength int) time.Duration {
	base := float64(messageLength) / charsPerSecond * float64(time.Second)
	jitter := 0.8 + 0.4*t.randFloat()
	d := time.Duration(base * jitter)
	if d < t.minDelay {
		d = t.minDelay
	}
	if d > t.maxDelay {
		d = t.maxDelay
	}
	return d
}

// Simulate fires the presence signal and sleeps for the typing delay. The
// presence call is best effort: it runs in its own goroutine with a short
// timeout and a failure never delays or aborts the send.
func (t *TypingSimulator) Simulate(ctx context.Context, instance store.GatewayInstance, recipient string, messageLength int) error {
	go func() {
		presenceCtx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := t.registry.SendPresence(presenceCtx, instance, recipient); err != nil {
			t.logger.Debug(presenceCtx, "typing presence failed: "+err.Error())
		}
	}()

	timer := time.NewTimer(t.Delay(messageLength))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
