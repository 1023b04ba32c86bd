package core

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxAccessTokenLength       = 128
	maxAccountIdentifierLength = 255
)

var (
	ErrAccountNameRequired = errors.New("core: account name is required")
	ErrHostRequired        = errors.New("core: request host is required")
	ErrCodeRequired        = errors.New("core: authorization code is required")
	ErrShopRequired        = errors.New("core: shop parameter is required")
	ErrSessionRequired     = errors.New("core: session store is required")
	ErrCallbackForbidden   = errors.New("core: callback signature verification failed")
)

// Credential is the persisted outcome of one successful code exchange.
type Credential struct {
	ID                string
	AccessToken       string
	AccountIdentifier string
	GrantedScopes     string
	TokenEncrypted    bool
	CreatedAt         time.Time
}

type CreateCredentialInput struct {
	AccessToken       string
	AccountIdentifier string
	GrantedScopes     string
	TokenEncrypted    bool
}

func (in CreateCredentialInput) Validate() error {
	if strings.TrimSpace(in.AccessToken) == "" {
		return fmt.Errorf("core: access token is required")
	}
	if strings.TrimSpace(in.AccountIdentifier) == "" {
		return fmt.Errorf("core: account identifier is required")
	}
	if utf8.RuneCountInString(in.AccountIdentifier) > maxAccountIdentifierLength {
		return fmt.Errorf("core: account identifier exceeds %d characters", maxAccountIdentifierLength)
	}
	if !in.TokenEncrypted && utf8.RuneCountInString(in.AccessToken) > maxAccessTokenLength {
		return fmt.Errorf("core: access token exceeds %d characters", maxAccessTokenLength)
	}
	return nil
}

type CredentialFilter struct {
	AccountIdentifier string
	Limit             int
	Offset            int
}

type InstallRequest struct {
	AccountName string
	Host        string
}

func (r InstallRequest) Validate() error {
	if strings.TrimSpace(r.AccountName) == "" {
		return ErrAccountNameRequired
	}
	if strings.TrimSpace(r.Host) == "" {
		return ErrHostRequired
	}
	return nil
}

type InstallResponse struct {
	URL         string
	Nonce       string
	RedirectURI string
}

type InstallURLInput struct {
	AccountName string
	ClientID    string
	Scopes      []string
	RedirectURI string
	State       string
}

// CallbackParams holds the query parameters of a provider callback, one
// value per key.
type CallbackParams struct {
	Values map[string]string `json:"values"`
}

// NewCallbackParams keeps the last value of repeated keys.
func NewCallbackParams(query url.Values) CallbackParams {
	values := make(map[string]string, len(query))
	for key, entries := range query {
		if len(entries) == 0 {
			values[key] = ""
			continue
		}
		values[key] = entries[len(entries)-1]
	}
	return CallbackParams{Values: values}
}

func (p CallbackParams) Get(key string) string {
	if p.Values == nil {
		return ""
	}
	return p.Values[key]
}

func (p CallbackParams) Shop() string  { return strings.TrimSpace(p.Get("shop")) }
func (p CallbackParams) Code() string  { return strings.TrimSpace(p.Get("code")) }
func (p CallbackParams) State() string { return strings.TrimSpace(p.Get("state")) }

// Validate checks the fields the exchange needs. Signature checks are
// separate and run first.
func (p CallbackParams) Validate() error {
	if p.Shop() == "" {
		return ErrShopRequired
	}
	if p.Code() == "" {
		return ErrCodeRequired
	}
	return nil
}

func (p CallbackParams) Clone() map[string]string {
	out := make(map[string]string, len(p.Values))
	for key, value := range p.Values {
		out[key] = value
	}
	return out
}

func (p CallbackParams) Keys() []string {
	keys := make([]string, 0, len(p.Values))
	for key := range p.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type ExchangeRequest struct {
	AccountName  string
	Code         string
	ClientID     string
	ClientSecret string
}

func (r ExchangeRequest) Validate() error {
	if strings.TrimSpace(r.AccountName) == "" {
		return ErrShopRequired
	}
	if strings.TrimSpace(r.Code) == "" {
		return ErrCodeRequired
	}
	if strings.TrimSpace(r.ClientID) == "" || strings.TrimSpace(r.ClientSecret) == "" {
		return fmt.Errorf("core: client id and client secret are required")
	}
	return nil
}

// ExchangeResponse is the provider answer to a code exchange. Rejections and
// undecodable bodies are carried here rather than returned as errors.
type ExchangeResponse struct {
	StatusCode  int
	AccessToken string
	Scope       string
	Fields      map[string]any
	Malformed   bool
}

type CommitOutcome string

const (
	CommitOutcomeSuccess CommitOutcome = "success"
	CommitOutcomeFailure CommitOutcome = "failure"
)

type FailureReason string

const (
	FailureExchangeRejected   FailureReason = "exchange_rejected"
	FailureMissingAccessToken FailureReason = "missing_access_token"
	FailureMalformedResponse  FailureReason = "malformed_response"
)

// CommitResult is either a committed Credential or the reason nothing was
// committed.
type CommitResult struct {
	Outcome    CommitOutcome
	Credential Credential
	Reason     FailureReason
	StatusCode int
}

func Success(credential Credential) CommitResult {
	return CommitResult{Outcome: CommitOutcomeSuccess, Credential: credential, StatusCode: 200}
}

func Failure(reason FailureReason, statusCode int) CommitResult {
	return CommitResult{Outcome: CommitOutcomeFailure, Reason: reason, StatusCode: statusCode}
}

func (r CommitResult) Succeeded() bool {
	return r.Outcome == CommitOutcomeSuccess
}
