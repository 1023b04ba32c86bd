package sqlstore

import "github.com/goliatone/go-appinstall/core"

var (
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.CredentialStore = (*CachedCredentialStore)(nil)
)
