package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-appinstall/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// CredentialStore persists install credentials as plain inserts. Repeated
// installs for one account produce one row each.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo}, nil
}

func (s *CredentialStore) Create(ctx context.Context, in core.CreateCredentialInput) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	if err := in.Validate(); err != nil {
		return core.Credential{}, err
	}

	record := newCredentialRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Credential{}, fmt.Errorf("sqlstore: insert credential: %w", err)
	}
	return created.toDomain(), nil
}

func (s *CredentialStore) List(ctx context.Context, filter core.CredentialFilter) ([]core.Credential, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	criteria := []repository.SelectCriteria{
		repository.OrderBy("created_at ASC"),
	}
	if account := strings.TrimSpace(filter.AccountIdentifier); account != "" {
		criteria = append(criteria, repository.SelectBy("account_identifier", "=", account))
	}
	if filter.Limit > 0 || filter.Offset > 0 {
		criteria = append(criteria, repository.SelectPaginate(filter.Limit, filter.Offset))
	}

	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list credentials: %w", err)
	}
	out := make([]core.Credential, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Count returns how many credential rows exist for an account, or across
// all accounts when the identifier is empty.
func (s *CredentialStore) Count(ctx context.Context, accountIdentifier string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: credential store is not configured")
	}
	query := s.db.NewSelect().Model((*credentialRecord)(nil))
	if account := strings.TrimSpace(accountIdentifier); account != "" {
		query = query.Where("?TableAlias.account_identifier = ?", account)
	}
	count, err := query.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: count credentials: %w", err)
	}
	return count, nil
}
