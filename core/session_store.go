package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NoncePlaceholder is the value stored under each minted nonce.
const NoncePlaceholder = "true"

// MintNonce derives the install nonce from the clock in whole seconds.
func MintNonce(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10)
}

// MemorySessionStore is a process-local SessionStore for a single session.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{entries: map[string]string{}}
}

func (s *MemorySessionStore) Get(_ context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, fmt.Errorf("core: session store is not configured")
	}
	s.mu.Lock()
	value, ok := s.entries[key]
	s.mu.Unlock()
	return value, ok, nil
}

func (s *MemorySessionStore) Set(_ context.Context, key string, value string) error {
	if s == nil {
		return fmt.Errorf("core: session store is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("core: session key is required")
	}
	s.mu.Lock()
	if s.entries == nil {
		s.entries = map[string]string{}
	}
	s.entries[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, key string) error {
	if s == nil {
		return fmt.Errorf("core: session store is not configured")
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Keys() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

var _ SessionStore = (*MemorySessionStore)(nil)
