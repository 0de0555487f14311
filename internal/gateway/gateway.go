package gateway

import (
	"context"
	"errors"
	"fmt"

	"dispatch-server/internal/store"
)

// ErrNoSenderForProvider is returned when an instance references a provider
// the registry does not know.
var ErrNoSenderForProvider = errors.New("no sender registered for provider")

// RateLimitError marks a send failure caused by vendor throttling. Only these
// failures are retried; everything else propagates immediately.
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err carries a rate-limit signal.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// Sender is the contract every gateway provider client implements. Send is
// timeout-bound by the client's own HTTP deadline. SendPresence emits a
// "composing" indicator and is strictly best-effort: callers fire it with a
// short deadline and ignore the result.
type Sender interface {
	Send(ctx context.Context, instance store.GatewayInstance, recipient, text string) error
	SendPresence(ctx context.Context, instance store.GatewayInstance, recipient string) error
}

// Registry routes sends to the provider client matching the instance.
type Registry struct {
	senders map[string]Sender
}

// NewRegistry builds a registry from a provider-name-to-client map.
func NewRegistry(senders map[string]Sender) *Registry {
	return &Registry{senders: senders}
}

// SenderFor returns the client for a gateway instance's provider.
func (r *Registry) SenderFor(instance store.GatewayInstance) (Sender, error) {
	sender, ok := r.senders[instance.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSenderForProvider, instance.Provider)
	}
	return sender, nil
}

// Send dispatches one message through the instance's provider client.
func (r *Registry) Send(ctx context.Context, instance store.GatewayInstance, recipient, text string) error {
	sender, err := r.SenderFor(instance)
	if err != nil {
		return err
	}
	return sender.Send(ctx, instance, recipient, text)
}

// SendPresence forwards a composing indicator through the instance's provider client.
func (r *Registry) SendPresence(ctx context.Context, instance store.GatewayInstance, recipient string) error {
	sender, err := r.SenderFor(instance)
	if err != nil {
		return err
	}
	return sender.SendPresence(ctx, instance, recipient)
}
