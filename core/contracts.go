package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type InstallURLBuilder interface {
	InstallURL(in InstallURLInput) string
}

// CallbackVerifier checks the signature carried by callback parameters.
// It must return false when the signature is absent.
type CallbackVerifier interface {
	VerifyCallback(params map[string]string, secret string) bool
}

type TokenExchanger interface {
	ExchangeCode(ctx context.Context, req ExchangeRequest) (ExchangeResponse, error)
}

// Provider builds install URLs, verifies callback signatures and exchanges
// authorization codes for one storefront platform.
type Provider interface {
	ID() string
	InstallURLBuilder
	CallbackVerifier
	TokenExchanger
}

// InstallService is the full handshake surface of Service.
type InstallService interface {
	BuildInstallURL(ctx context.Context, req InstallRequest, session SessionStore) (InstallResponse, error)
	Verify(ctx context.Context, params CallbackParams) bool
	Exchange(ctx context.Context, accountName string, code string) (ExchangeResponse, error)
	Commit(ctx context.Context, response ExchangeResponse, accountName string) (CommitResult, error)
	CompleteInstall(ctx context.Context, params CallbackParams) (CommitResult, error)
	ListCredentials(ctx context.Context, filter CredentialFilter) ([]Credential, error)
}

// SessionStore is the per-browser session key/value map.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

type CredentialStore interface {
	Create(ctx context.Context, in CreateCredentialInput) (Credential, error)
	List(ctx context.Context, filter CredentialFilter) ([]Credential, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
