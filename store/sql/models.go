package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:shop_credentials,alias:sc"`

	ID                string    `bun:"id,pk"`
	AccessToken       string    `bun:"access_token,notnull"`
	AccountIdentifier string    `bun:"account_identifier,notnull"`
	GrantedScopes     string    `bun:"granted_scopes,notnull"`
	TokenEncrypted    bool      `bun:"token_encrypted,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
