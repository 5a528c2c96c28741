package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "console:state:"

// RedisStore keeps states as JSON strings with a Redis TTL, so expiry needs no
// purge job.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, nowFunc: time.Now}, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (*State, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client state: %w", err)
	}
	var st State
	if err := json.Unmarshal(val, &st); err != nil {
		return nil, fmt.Errorf("decode client state: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, st State) error {
	now := s.nowFunc()
	st.ExpiresAt = expiry(now, s.ttl)
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode client state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), b, st.ExpiresAt.Sub(now)).Err(); err != nil {
		return fmt.Errorf("set client state: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete client state: %w", err)
	}
	return nil
}

// Ping reports whether Redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
