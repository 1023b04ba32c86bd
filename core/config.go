package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	ScopeReadScriptTags  = "read_script_tags"
	ScopeWriteScriptTags = "write_script_tags"

	defaultCallbackPath      = "/auth"
	defaultExchangeTimeout   = 30 * time.Second
	defaultSessionTTL        = 24 * time.Hour
	defaultSessionCookieName = "appinstall_session"
)

type ExchangeConfig struct {
	Timeout  time.Duration `koanf:"timeout" mapstructure:"timeout"`
	TokenURL string        `koanf:"token_url" mapstructure:"token_url"`
}

type SessionConfig struct {
	CookieName string        `koanf:"cookie_name" mapstructure:"cookie_name"`
	TTL        time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

// Config is resolved once at process start and copied into the Service.
type Config struct {
	ServiceName  string         `koanf:"service_name" mapstructure:"service_name"`
	ClientID     string         `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string         `koanf:"client_secret" mapstructure:"client_secret"`
	Scopes       []string       `koanf:"scopes" mapstructure:"scopes"`
	CallbackPath string         `koanf:"callback_path" mapstructure:"callback_path"`
	DefaultShop  string         `koanf:"default_shop" mapstructure:"default_shop"`
	StrictCommit bool           `koanf:"strict_commit" mapstructure:"strict_commit"`
	Exchange     ExchangeConfig `koanf:"exchange" mapstructure:"exchange"`
	Session      SessionConfig  `koanf:"session" mapstructure:"session"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  "appinstall",
		Scopes:       []string{ScopeReadScriptTags, ScopeWriteScriptTags},
		CallbackPath: defaultCallbackPath,
		Exchange: ExchangeConfig{
			Timeout: defaultExchangeTimeout,
		},
		Session: SessionConfig{
			CookieName: defaultSessionCookieName,
			TTL:        defaultSessionTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("core: client_id is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("core: client_secret is required")
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("core: scopes are required")
	}
	if !strings.HasPrefix(c.CallbackPath, "/") {
		return fmt.Errorf("core: callback_path must start with /")
	}
	if c.Exchange.Timeout < 0 {
		return fmt.Errorf("core: exchange.timeout must not be negative")
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("core: session.ttl must not be negative")
	}
	return nil
}

func (c Config) clone() Config {
	c.Scopes = append([]string(nil), c.Scopes...)
	return c
}
