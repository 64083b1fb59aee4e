package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AltairaLabs/SightRelay/admission"
)

const defaultRedisTTL = time.Hour

// RedisStore is a Redis-backed Store. Records are stored as JSON with a TTL
// so abandoned sessions age out without an explicit delete. Suitable for
// multi-replica deployments where a reconnecting client may land elsewhere.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for session records. After this duration an
// untouched record is deleted by Redis. Set to 0 for no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys. Default is "sightrelay".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed session store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(time.Hour),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultRedisTTL,
		prefix: "sightrelay",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Load retrieves a session's admission record from Redis.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*admission.Record, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec admission.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// Save persists a session's admission record with TTL. Every save refreshes
// the expiration, so active sessions never age out.
func (s *RedisStore) Save(ctx context.Context, sessionID string, rec *admission.Record) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	if rec == nil {
		return ErrInvalidRecord
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := s.client.Set(ctx, s.sessionKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a session's record from Redis.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	n, err := s.client.Del(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// sessionKey generates the Redis key for a session's admission record.
func (s *RedisStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:admission", s.prefix, sessionID)
}
