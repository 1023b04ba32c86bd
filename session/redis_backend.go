package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type RedisBackend struct {
	c *rdb.Client
}

// NewRedisBackend stores sessions on client. Close closes the client.
func NewRedisBackend(client *rdb.Client) *RedisBackend {
	return &RedisBackend{c: client}
}

func (r *RedisBackend) Load(ctx context.Context, id string) (map[string]string, bool, error) {
	b, err := r.c.Get(ctx, storageKey(id)).Bytes()
	if errors.Is(err, rdb.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session: redis get: %w", err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, false, fmt.Errorf("session: decode session %s: %w", id, err)
	}
	return values, true, nil
}

func (r *RedisBackend) Save(ctx context.Context, id string, values map[string]string, ttl time.Duration) error {
	b, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("session: encode session %s: %w", id, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.c.Set(ctx, storageKey(id), b, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (r *RedisBackend) Destroy(ctx context.Context, id string) error {
	if err := r.c.Del(ctx, storageKey(id)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.c.Close()
}
