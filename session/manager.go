package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-appinstall/core"
	"github.com/google/uuid"
)

// Manager binds HTTP requests to sessions through a cookie holding an
// opaque session id.
type Manager struct {
	backend    Backend
	cookieName string
	ttl        time.Duration
	secure     bool
}

type ManagerOption func(*Manager)

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) ManagerOption {
	return func(m *Manager) {
		m.secure = secure
	}
}

func NewManager(backend Backend, cfg core.SessionConfig, opts ...ManagerOption) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("session: backend is required")
	}
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		name = core.DefaultConfig().Session.CookieName
	}
	manager := &Manager{
		backend:    backend,
		cookieName: name,
		ttl:        cfg.TTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager, nil
}

// Load returns the session named by the request cookie, starting a new
// one (and writing its cookie) when the request carries none.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) *Session {
	if cookie, err := r.Cookie(m.cookieName); err == nil {
		if id := strings.TrimSpace(cookie.Value); id != "" {
			return m.session(id)
		}
	}

	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if m.ttl > 0 {
		cookie.MaxAge = int(m.ttl.Seconds())
	}
	http.SetCookie(w, cookie)
	return m.session(id)
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) session(id string) *Session {
	return &Session{id: id, backend: m.backend, ttl: m.ttl}
}

// Session is one visitor's key/value state.
type Session struct {
	mu      sync.Mutex
	id      string
	backend Backend
	ttl     time.Duration
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, _, err := s.backend.Load(ctx, s.id)
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

func (s *Session) Set(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, _, err := s.backend.Load(ctx, s.id)
	if err != nil {
		return err
	}
	if values == nil {
		values = map[string]string{}
	}
	values[key] = value
	return s.backend.Save(ctx, s.id, values, s.ttl)
}

func (s *Session) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, found, err := s.backend.Load(ctx, s.id)
	if err != nil || !found {
		return err
	}
	delete(values, key)
	return s.backend.Save(ctx, s.id, values, s.ttl)
}

// Values returns a copy of everything stored in the session.
func (s *Session) Values(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, _, err := s.backend.Load(ctx, s.id)
	if err != nil {
		return nil, err
	}
	return copyValues(values), nil
}

var _ core.SessionStore = (*Session)(nil)
