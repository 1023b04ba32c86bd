package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-appinstall/core"
)

const (
	ProviderID = "shopify"

	defaultAuthorizePath = "/admin/oauth/authorize"
	defaultTokenPath     = "/admin/oauth/access_token"
	defaultDomainSuffix  = ".myshopify.com"
)

type Config struct {
	// TokenURL pins the exchange endpoint. When empty it is derived from the
	// callback shop domain.
	TokenURL       string
	RequestTimeout time.Duration
	HTTPClient     HTTPDoer
	BuildTokenURL  func(shopDomain string) (string, error)
}

type Provider struct {
	exchange *ExchangeClient
}

func New(cfg Config) (*Provider, error) {
	builder := cfg.BuildTokenURL
	if builder == nil {
		fixed := strings.TrimSpace(cfg.TokenURL)
		if fixed != "" {
			if _, err := url.Parse(fixed); err != nil {
				return nil, fmt.Errorf("providers/shopify: parse token_url: %w", err)
			}
			builder = func(string) (string, error) { return fixed, nil }
		}
	}
	return &Provider{
		exchange: NewExchangeClient(ExchangeClientConfig{
			TokenRequestTimeout: cfg.RequestTimeout,
			HTTPClient:          cfg.HTTPClient,
			BuildTokenURL:       builder,
		}),
	}, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) InstallURL(in core.InstallURLInput) string {
	return BuildInstallURL(in.AccountName, in.ClientID, in.Scopes, in.RedirectURI, in.State)
}

func (p *Provider) VerifyCallback(params map[string]string, secret string) bool {
	return Verify(params, secret)
}

func (p *Provider) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.ExchangeResponse, error) {
	if p == nil || p.exchange == nil {
		return core.ExchangeResponse{}, &ExchangeError{
			Message: "exchange client is not configured",
			Cause:   ErrTokenExchangeFailed,
		}
	}
	return p.exchange.Exchange(ctx, req)
}

// BuildInstallURL renders the authorize URL for accountName. The account
// name is used as the shop subdomain as given.
func BuildInstallURL(accountName, clientID string, scopes []string, redirectURI, nonce string) string {
	return fmt.Sprintf(
		"https://%s%s%s?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		accountName,
		defaultDomainSuffix,
		defaultAuthorizePath,
		clientID,
		strings.Join(scopes, ","),
		redirectURI,
		nonce,
	)
}

// TokenURL returns the access token endpoint of a shop.
func TokenURL(shopDomain string) (string, error) {
	normalized, err := normalizeShopDomain(shopDomain)
	if err != nil {
		return "", err
	}
	return (&url.URL{
		Scheme: "https",
		Host:   normalized,
		Path:   defaultTokenPath,
	}).String(), nil
}

func normalizeShopDomain(value string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "", fmt.Errorf("providers/shopify: shop domain is required")
	}
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("providers/shopify: parse shop domain: %w", err)
		}
		trimmed = strings.TrimSpace(strings.ToLower(parsed.Hostname()))
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("providers/shopify: invalid shop domain")
	}
	if !strings.Contains(trimmed, ".") {
		trimmed += defaultDomainSuffix
	}
	if !strings.HasSuffix(trimmed, defaultDomainSuffix) {
		return "", fmt.Errorf("providers/shopify: shop domain must end with %q", defaultDomainSuffix)
	}
	return trimmed, nil
}

var (
	_ core.Provider = (*Provider)(nil)
	_ HTTPDoer      = (*http.Client)(nil)
)
