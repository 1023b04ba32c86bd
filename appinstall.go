package appinstall

import (
	"github.com/goliatone/go-appinstall/core"
	"github.com/goliatone/go-appinstall/providers/shopify"
)

type Config = core.Config
type ExchangeConfig = core.ExchangeConfig
type SessionConfig = core.SessionConfig

type Option = core.Option

type Service = core.Service

type Provider = core.Provider
type CredentialStore = core.CredentialStore
type SessionStore = core.SessionStore
type SecretProvider = core.SecretProvider
type MetricsRecorder = core.MetricsRecorder

type Credential = core.Credential
type CredentialFilter = core.CredentialFilter
type InstallRequest = core.InstallRequest
type InstallResponse = core.InstallResponse
type CallbackParams = core.CallbackParams
type CommitResult = core.CommitResult

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorFactory    = core.WithErrorFactory
	WithErrorMapper     = core.WithErrorMapper
	WithSecretProvider  = core.WithSecretProvider
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithProvider        = core.WithProvider
	WithCredentialStore = core.WithCredentialStore
	WithClock           = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// ShopifyProvider builds the storefront provider with the exchange settings
// taken from cfg.
func ShopifyProvider(cfg Config) (Provider, error) {
	return shopify.New(shopify.Config{
		TokenURL:       cfg.Exchange.TokenURL,
		RequestTimeout: cfg.Exchange.Timeout,
	})
}
