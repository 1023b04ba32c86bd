package query

import (
	"github.com/goliatone/go-appinstall/core"
)

const TypeListCredentials = "appinstall.query.credentials.list"

type ListCredentialsMessage struct {
	Filter core.CredentialFilter
}

func (ListCredentialsMessage) Type() string { return TypeListCredentials }

func (m ListCredentialsMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}
