package gojob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	jobredis "github.com/goliatone/go-job/queue/adapters/redis"
	goredis "github.com/redis/go-redis/v9"
)

// RedisClient implements the go-job redis queue client on go-redis.
type RedisClient struct {
	c goredis.UniversalClient
}

func NewRedisClient(client goredis.UniversalClient) *RedisClient {
	return &RedisClient{c: client}
}

func (r *RedisClient) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, 0, len(values)*2)
	for field, value := range values {
		args = append(args, field, value)
	}
	return r.c.HSet(ctx, key, args...).Err()
}

func (r *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.c.HGetAll(ctx, key).Result()
}

func (r *RedisClient) HGet(ctx context.Context, key, field string) (string, error) {
	value, err := r.c.HGet(ctx, key, field).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return value, err
}

func (r *RedisClient) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return r.c.HDel(ctx, key, fields...).Err()
}

func (r *RedisClient) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, 0, len(values))
	for _, value := range values {
		args = append(args, value)
	}
	return r.c.LPush(ctx, key, args...).Err()
}

func (r *RedisClient) RPop(ctx context.Context, key string) (string, error) {
	value, err := r.c.RPop(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return value, err
}

func (r *RedisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return r.c.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
}

func (r *RedisClient) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, 0, len(members))
	for _, member := range members {
		args = append(args, member)
	}
	return r.c.ZRem(ctx, key, args...).Err()
}

func (r *RedisClient) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]jobredis.ZItem, error) {
	opt := &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}
	if limit > 0 {
		opt.Count = limit
	}
	entries, err := r.c.ZRangeByScoreWithScores(ctx, key, opt).Result()
	if err != nil {
		return nil, err
	}
	items := make([]jobredis.ZItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, jobredis.ZItem{Member: fmt.Sprint(entry.Member), Score: entry.Score})
	}
	return items, nil
}

func (r *RedisClient) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	value, err := r.c.Eval(ctx, script, keys, args...).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return value, err
}

func (r *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.c.Expire(ctx, key, ttl).Err()
}

func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}

// NewRedisQueue builds a go-job queue adapter on client. Messages live under
// keys prefixed with queueName.
func NewRedisQueue(client goredis.UniversalClient, queueName string, visibility time.Duration) *jobredis.Adapter {
	opts := []jobredis.Option{jobredis.WithQueueName(queueName)}
	if visibility > 0 {
		opts = append(opts, jobredis.WithVisibilityTimeout(visibility))
	}
	return jobredis.NewAdapter(jobredis.NewStorage(NewRedisClient(client), opts...))
}

var _ jobredis.Client = (*RedisClient)(nil)
