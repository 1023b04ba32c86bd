package session

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type MemoryBackend struct {
	c *gocache.Cache
}

func NewMemoryBackend(defaultTTL time.Duration) *MemoryBackend {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &MemoryBackend{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *MemoryBackend) Load(_ context.Context, id string) (map[string]string, bool, error) {
	v, ok := m.c.Get(storageKey(id))
	if !ok {
		return nil, false, nil
	}
	values, _ := v.(map[string]string)
	return copyValues(values), true, nil
}

func (m *MemoryBackend) Save(_ context.Context, id string, values map[string]string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(storageKey(id), copyValues(values), ttl)
	return nil
}

func (m *MemoryBackend) Destroy(_ context.Context, id string) error {
	m.c.Delete(storageKey(id))
	return nil
}

func (m *MemoryBackend) Len() int {
	return m.c.ItemCount()
}
