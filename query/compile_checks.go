package query

import (
	"github.com/goliatone/go-appinstall/core"
	gocmd "github.com/goliatone/go-command"
)

var _ gocmd.Querier[ListCredentialsMessage, []core.Credential] = (*ListCredentialsQuery)(nil)
