package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"

	sessionBackendMemory = "memory"
	sessionBackendRedis  = "redis"
)

type fileConfig struct {
	Service  serviceSection  `toml:"service"`
	Server   serverSection   `toml:"server"`
	Database databaseSection `toml:"database"`
	Session  sessionSection  `toml:"session"`
	Cache    cacheSection    `toml:"cache"`
	Secrets  secretsSection  `toml:"secrets"`
	Jobs     jobsSection     `toml:"jobs"`
}

type serviceSection struct {
	Name            string   `toml:"name"`
	Scopes          []string `toml:"scopes"`
	CallbackPath    string   `toml:"callback_path"`
	DefaultShop     string   `toml:"default_shop"`
	StrictCommit    bool     `toml:"strict_commit"`
	ExchangeTimeout string   `toml:"exchange_timeout"`
	TokenURL        string   `toml:"token_url"`
}

type serverSection struct {
	Addr            string `toml:"addr"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	SecureCookies   bool   `toml:"secure_cookies"`
}

type databaseSection struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	Debug  bool   `toml:"debug"`
}

type sessionSection struct {
	Backend    string `toml:"backend"`
	CookieName string `toml:"cookie_name"`
	TTL        string `toml:"ttl"`
	RedisAddr  string `toml:"redis_addr"`
	RedisDB    int    `toml:"redis_db"`
}

type cacheSection struct {
	Enabled bool   `toml:"enabled"`
	TTL     string `toml:"ttl"`
}

// secretsSection points at the dotenv secrets file. An empty path reads the
// process environment only.
type secretsSection struct {
	Path string `toml:"path"`
}

// jobsSection moves exchange and commit off the callback request onto a
// go-job worker backed by redis.
type jobsSection struct {
	Enabled      bool   `toml:"enabled"`
	RedisAddr    string `toml:"redis_addr"`
	RedisDB      int    `toml:"redis_db"`
	Queue        string `toml:"queue"`
	Workers      int    `toml:"workers"`
	MaxAttempts  int    `toml:"max_attempts"`
	RetryBackoff string `toml:"retry_backoff"`
	Visibility   string `toml:"visibility_timeout"`
}

// redisAddr falls back to the session redis when the jobs section leaves it
// unset.
func (j jobsSection) redisAddr(sess sessionSection) (string, int) {
	if addr := strings.TrimSpace(j.RedisAddr); addr != "" {
		return addr, j.RedisDB
	}
	return strings.TrimSpace(sess.RedisAddr), sess.RedisDB
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Server: serverSection{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},
		Database: databaseSection{
			Driver: driverSQLite,
			DSN:    "file:appinstall.db?cache=shared&_foreign_keys=on",
		},
		Session: sessionSection{
			Backend: sessionBackendMemory,
		},
		Secrets: secretsSection{
			Path: ".env",
		},
		Jobs: jobsSection{
			Queue:        "appinstall",
			Workers:      1,
			MaxAttempts:  3,
			RetryBackoff: "1s",
			Visibility:   "1m",
		},
	}
}

// loadFileConfig decodes path over the defaults. An empty path keeps the
// defaults. Unknown keys are returned so the caller can warn about them.
func loadFileConfig(path string) (fileConfig, []string, error) {
	cfg := defaultFileConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return fileConfig{}, nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	var undecoded []string
	for _, key := range md.Undecoded() {
		undecoded = append(undecoded, key.String())
	}
	return cfg, undecoded, nil
}

// serviceLayer converts the file sections into the raw map consumed by the
// core config provider. Only keys set in the file are emitted.
func (c fileConfig) serviceLayer() (map[string]any, error) {
	raw := map[string]any{}
	if name := strings.TrimSpace(c.Service.Name); name != "" {
		raw["service_name"] = name
	}
	if len(c.Service.Scopes) > 0 {
		raw["scopes"] = append([]string(nil), c.Service.Scopes...)
	}
	if path := strings.TrimSpace(c.Service.CallbackPath); path != "" {
		raw["callback_path"] = path
	}
	if shop := strings.TrimSpace(c.Service.DefaultShop); shop != "" {
		raw["default_shop"] = shop
	}
	if c.Service.StrictCommit {
		raw["strict_commit"] = true
	}

	exchange := map[string]any{}
	timeout, err := parseDuration("service.exchange_timeout", c.Service.ExchangeTimeout)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		exchange["timeout"] = timeout
	}
	if tokenURL := strings.TrimSpace(c.Service.TokenURL); tokenURL != "" {
		exchange["token_url"] = tokenURL
	}
	if len(exchange) > 0 {
		raw["exchange"] = exchange
	}

	session := map[string]any{}
	if name := strings.TrimSpace(c.Session.CookieName); name != "" {
		session["cookie_name"] = name
	}
	ttl, err := parseDuration("session.ttl", c.Session.TTL)
	if err != nil {
		return nil, err
	}
	if ttl > 0 {
		session["ttl"] = ttl
	}
	if len(session) > 0 {
		raw["session"] = session
	}
	return raw, nil
}

func (c fileConfig) validate() error {
	switch strings.TrimSpace(c.Database.Driver) {
	case driverPostgres, driverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q", driverPostgres, driverSQLite)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch strings.TrimSpace(c.Session.Backend) {
	case sessionBackendMemory:
	case sessionBackendRedis:
		if strings.TrimSpace(c.Session.RedisAddr) == "" {
			return fmt.Errorf("session.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("session.backend must be %q or %q", sessionBackendMemory, sessionBackendRedis)
	}
	if c.Jobs.Enabled {
		if addr, _ := c.Jobs.redisAddr(c.Session); addr == "" {
			return fmt.Errorf("jobs.redis_addr or session.redis_addr is required when jobs are enabled")
		}
		if c.Service.StrictCommit {
			return fmt.Errorf("service.strict_commit cannot be combined with jobs.enabled")
		}
		if c.Jobs.Workers < 0 || c.Jobs.MaxAttempts < 0 {
			return fmt.Errorf("jobs.workers and jobs.max_attempts must not be negative")
		}
	}
	for field, value := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"cache.ttl":               c.Cache.TTL,
		"jobs.retry_backoff":      c.Jobs.RetryBackoff,
		"jobs.visibility_timeout": c.Jobs.Visibility,
	} {
		if _, err := parseDuration(field, value); err != nil {
			return err
		}
	}
	return nil
}

func parseDuration(field string, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := parseDuration("", value)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}
