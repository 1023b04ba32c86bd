package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-appinstall/core"
	"github.com/google/uuid"
)

func newCredentialRecord(in core.CreateCredentialInput, now time.Time) *credentialRecord {
	return &credentialRecord{
		ID:                uuid.NewString(),
		AccessToken:       in.AccessToken,
		AccountIdentifier: strings.TrimSpace(in.AccountIdentifier),
		GrantedScopes:     in.GrantedScopes,
		TokenEncrypted:    in.TokenEncrypted,
		CreatedAt:         now,
	}
}

func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		ID:                r.ID,
		AccessToken:       r.AccessToken,
		AccountIdentifier: r.AccountIdentifier,
		GrantedScopes:     r.GrantedScopes,
		TokenEncrypted:    r.TokenEncrypted,
		CreatedAt:         r.CreatedAt.UTC(),
	}
}
