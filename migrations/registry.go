// Package migrations exposes the embedded credential schema per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	appinstall "github.com/goliatone/go-appinstall"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const schemaRoot = "data/sql/migrations"

// schemaDirs maps each dialect to its directory in the embedded tree.
// Postgres files sit at the root, sqlite variants in a subdirectory.
var schemaDirs = map[string]string{
	DialectPostgres: schemaRoot,
	DialectSQLite:   schemaRoot + "/sqlite",
}

// RegisterFunc receives the schema of one dialect.
type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// Schema returns the credential migrations for dialect. It fails when the
// dialect is unknown or its directory holds no up migrations.
func Schema(dialect string) (fs.FS, error) {
	return schemaFrom(appinstall.GetMigrationsFS(), dialect)
}

func schemaFrom(root fs.FS, dialect string) (fs.FS, error) {
	dialect = strings.ToLower(strings.TrimSpace(dialect))
	dir, ok := schemaDirs[dialect]
	if !ok {
		return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
	}
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s schema: %w", dialect, err)
	}
	ups, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: list %s schema: %w", dialect, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s schema in %s has no up migrations", dialect, dir)
	}
	return sub, nil
}

// Register hands the schema of each dialect to fn, postgres first. With no
// dialects every known schema is registered.
func Register(ctx context.Context, fn RegisterFunc, dialects ...string) error {
	if fn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	if len(dialects) == 0 {
		dialects = []string{DialectPostgres, DialectSQLite}
	}
	seen := map[string]bool{}
	for _, dialect := range dialects {
		dialect = strings.ToLower(strings.TrimSpace(dialect))
		if seen[dialect] {
			continue
		}
		seen[dialect] = true
		fsys, err := Schema(dialect)
		if err != nil {
			return err
		}
		if err := fn(ctx, dialect, fsys); err != nil {
			return fmt.Errorf("migrations: register %s: %w", dialect, err)
		}
	}
	return nil
}
