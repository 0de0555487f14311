package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	redisclient "dispatch-server/internal/clients/redis"
)

// FlagTTL is how long a stop request stays observable. Flags self-clear after
// the TTL whether or not a worker saw them, so a stale flag cannot affect an
// unrelated future run that reuses the same id.
const FlagTTL = 60 * time.Second

// Signal is a keyed cooperative stop/pause request shared between the HTTP
// layer and long-running dispatch loops. Workers poll IsSet at least once per
// recipient, bounding stop latency to roughly one send cycle.
type Signal interface {
	Request(ctx context.Context, key string) error
	IsSet(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, key string) error
}

// MemorySignal keeps flags in process memory with lazy TTL expiry.
type MemorySignal struct {
	mu    sync.Mutex
	flags map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
}

// NewMemorySignal creates an in-memory control signal store
func NewMemorySignal() *MemorySignal {
	return &MemorySignal{
		flags: make(map[string]time.Time),
		ttl:   FlagTTL,
		now:   time.Now,
	}
}

// Request raises the flag for a key.
func (s *MemorySignal) Request(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.flags[key] = now.Add(s.ttl)

	// Sweep expired flags while holding the lock; the map stays small.
	for k, expiry := range s.flags {
		if now.After(expiry) {
			delete(s.flags, k)
		}
	}
	return nil
}

// IsSet reports whether a live flag exists for the key.
func (s *MemorySignal) IsSet(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.flags[key]
	if !ok {
		return false, nil
	}
	if s.now().After(expiry) {
		delete(s.flags, key)
		return false, nil
	}
	return true, nil
}

// Clear removes the flag for a key.
func (s *MemorySignal) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, key)
	return nil
}

// RedisSignal keeps flags in Redis, with the TTL enforced server-side.
type RedisSignal struct {
	client *redisclient.Client
}

// NewRedisSignal creates a Redis-backed control signal store
func NewRedisSignal(client *redisclient.Client) *RedisSignal {
	return &RedisSignal{client: client}
}

func redisKey(key string) string {
	return "control:" + key
}

// Request raises the flag for a key.
func (s *RedisSignal) Request(ctx context.Context, key string) error {
	if err := s.client.Set(ctx, redisKey(key), "1", FlagTTL); err != nil {
		return fmt.Errorf("failed to set control flag: %w", err)
	}
	return nil
}

// IsSet reports whether a live flag exists for the key.
func (s *RedisSignal) IsSet(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(key))
	if err != nil {
		return false, fmt.Errorf("failed to check control flag: %w", err)
	}
	return n > 0, nil
}

// Clear removes the flag for a key.
func (s *RedisSignal) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)); err != nil {
		return fmt.Errorf("failed to clear control flag: %w", err)
	}
	return nil
}
