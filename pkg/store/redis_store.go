package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps step results in Redis with a TTL. Suited to
// idempotency windows rather than long-term audit: records expire.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// DefaultRedisTTL bounds how long a completed step suppresses re-runs.
const DefaultRedisTTL = 24 * time.Hour

// NewRedisStore creates the store. A zero ttl falls back to
// DefaultRedisTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(stepID string) string {
	return "stepresult:" + stepID
}

// Get returns the record for stepID or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, stepID string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKey(stepID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode step result: %w", err)
	}
	return &rec, nil
}

// Put stores the record under the configured TTL.
func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.StepID == "" {
		return errors.New("record requires a step id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode step result: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(rec.StepID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
