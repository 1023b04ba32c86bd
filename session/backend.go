// Package session keeps per-visitor key/value state behind a cookie. It
// backs the install flow's nonce bookkeeping with either an in-process
// cache or redis.
package session

import (
	"context"
	"strings"
	"time"
)

const keyPrefix = "appinstall::session::"

// Backend persists whole session maps keyed by session id.
type Backend interface {
	Load(ctx context.Context, id string) (map[string]string, bool, error)
	Save(ctx context.Context, id string, values map[string]string, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

func storageKey(id string) string {
	return keyPrefix + strings.TrimSpace(id)
}

func copyValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
