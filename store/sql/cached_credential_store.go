package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-appinstall/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialListCacheKeyPrefix = "go-appinstall::credentials::v1"

// CachedCredentialStore serves unpaginated credential listings from a
// read-through cache. Create always reaches the base store and evicts the
// listings it affects.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialListCacheKey returns go-appinstall::credentials::v1::<account>,
// with the account path-escaped and "*" standing for all accounts.
func CredentialListCacheKey(accountIdentifier string) string {
	account := strings.TrimSpace(accountIdentifier)
	if account == "" {
		account = "*"
	} else {
		account = url.PathEscape(account)
	}
	return credentialListCacheKeyPrefix + "::" + account
}

func (s *CachedCredentialStore) Create(ctx context.Context, in core.CreateCredentialInput) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.Credential{}, err
	}
	for _, key := range []string{
		CredentialListCacheKey(created.AccountIdentifier),
		CredentialListCacheKey(""),
	} {
		if err := s.cache.Delete(ctx, key); err != nil {
			return core.Credential{}, err
		}
	}
	return created, nil
}

func (s *CachedCredentialStore) List(ctx context.Context, filter core.CredentialFilter) ([]core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if filter.Limit > 0 || filter.Offset > 0 {
		return s.base.List(ctx, filter)
	}

	cacheKey := CredentialListCacheKey(filter.AccountIdentifier)
	credentials, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Credential, error) {
		return s.base.List(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return append([]core.Credential(nil), credentials...), nil
}
