package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisclient "dispatch-server/internal/clients/redis"
)

// entryTTL keeps abandoned Redis entries from accumulating forever.
const entryTTL = 24 * time.Hour

// RedisStore keeps progress entries in Redis so a shared backend can serve
// polling clients of several nodes. Updates are read-modify-write, which is
// safe under the single-writer-per-key usage pattern.
type RedisStore struct {
	client *redisclient.Client
}

// NewRedisStore creates a Redis-backed progress store
func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(key string) string {
	return "progress:" + key
}

// Update merges a partial update into the keyed entry, creating it on first use.
func (s *RedisStore) Update(ctx context.Context, key string, update Update) error {
	var entry Entry
	raw, err := s.client.Get(ctx, redisKey(key))
	if err != nil && !redisclient.IsNil(err) {
		return fmt.Errorf("failed to read progress entry: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return fmt.Errorf("failed to decode progress entry: %w", err)
		}
	}

	apply(&entry, update, time.Now())

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode progress entry: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(key), encoded, entryTTL); err != nil {
		return fmt.Errorf("failed to write progress entry: %w", err)
	}
	return nil
}

// Read returns a snapshot of the keyed entry.
func (s *RedisStore) Read(ctx context.Context, key string) (Entry, error) {
	raw, err := s.client.Get(ctx, redisKey(key))
	if err != nil {
		if redisclient.IsNil(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("failed to read progress entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to decode progress entry: %w", err)
	}
	return entry, nil
}

// Delete removes the keyed entry.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKey(key))
}
