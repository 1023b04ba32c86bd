package query

import (
	"context"

	"github.com/goliatone/go-appinstall/core"
)

type CredentialReader interface {
	ListCredentials(ctx context.Context, filter core.CredentialFilter) ([]core.Credential, error)
}

type ListCredentialsQuery struct {
	reader CredentialReader
}

func NewListCredentialsQuery(reader CredentialReader) *ListCredentialsQuery {
	return &ListCredentialsQuery{reader: reader}
}

func (q *ListCredentialsQuery) Query(ctx context.Context, msg ListCredentialsMessage) ([]core.Credential, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: credential reader is required")
	}
	return q.reader.ListCredentials(ctx, msg.Filter)
}
