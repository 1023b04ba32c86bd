package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	appinstall "github.com/goliatone/go-appinstall"
	_ "github.com/mattn/go-sqlite3"
)

func TestSchema_ResolvesBothDialects(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectSQLite, " SQLite "} {
		fsys, err := Schema(dialect)
		if err != nil {
			t.Fatalf("schema %q: %v", dialect, err)
		}
		if _, err := fs.ReadFile(fsys, "00001_appinstall_shop_credentials.up.sql"); err != nil {
			t.Fatalf("expected credential table migration for %q: %v", dialect, err)
		}
	}
	sqliteFS, _ := Schema(DialectSQLite)
	content, err := fs.ReadFile(sqliteFS, "00001_appinstall_shop_credentials.up.sql")
	if err != nil || strings.Contains(strings.ToUpper(string(content)), "TIMESTAMPTZ") {
		t.Fatalf("expected sqlite variant of the credential table, got %v", err)
	}
	if _, err := Schema("mysql"); err == nil {
		t.Fatalf("expected unknown dialect to fail")
	}
}

func TestSchemaFrom_RejectsTreeWithoutSQLiteVariant(t *testing.T) {
	tree := fstest.MapFS{
		"data/sql/migrations/00001_x.up.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
	}
	if _, err := schemaFrom(tree, DialectPostgres); err != nil {
		t.Fatalf("expected postgres schema, got %v", err)
	}
	if _, err := schemaFrom(tree, DialectSQLite); err == nil {
		t.Fatalf("expected missing sqlite migrations to fail")
	}
}

func TestRegister_OnlyRequestedDialects(t *testing.T) {
	var calls []string
	err := Register(context.Background(), func(_ context.Context, dialect string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, DialectSQLite, "sqlite")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected one sqlite registration, got %v", calls)
	}

	calls = nil
	if err := Register(context.Background(), func(_ context.Context, dialect string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}); err != nil {
		t.Fatalf("register all: %v", err)
	}
	if len(calls) != 2 || calls[0] != DialectPostgres || calls[1] != DialectSQLite {
		t.Fatalf("expected postgres then sqlite, got %v", calls)
	}
}

func TestRegister_WrapsCallbackError(t *testing.T) {
	err := Register(context.Background(), func(context.Context, string, fs.FS) error {
		return fs.ErrPermission
	}, DialectPostgres)
	if err == nil || !strings.Contains(err.Error(), "register postgres") {
		t.Fatalf("expected wrapped register error, got %v", err)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected nil register function to fail")
	}
}

func TestShopCredentialMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := appinstall.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_appinstall_shop_credentials.up.sql",
		"data/sql/migrations/00001_appinstall_shop_credentials.down.sql",
		"data/sql/migrations/sqlite/00001_appinstall_shop_credentials.up.sql",
		"data/sql/migrations/sqlite/00001_appinstall_shop_credentials.down.sql",
		"data/sql/migrations/00002_appinstall_shop_credentials_account_index.up.sql",
		"data/sql/migrations/sqlite/00002_appinstall_shop_credentials_account_index.up.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteShopCredentialMigration_AllowsDuplicateAccounts(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-shop-credentials?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(appinstall.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	for _, migration := range []string{
		"00001_appinstall_shop_credentials.up.sql",
		"00002_appinstall_shop_credentials_account_index.up.sql",
	} {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	insert := `INSERT INTO shop_credentials (id, access_token, account_identifier, granted_scopes) VALUES (?, ?, ?, ?)`
	for _, id := range []string{"c1", "c2"} {
		if _, err := db.ExecContext(context.Background(), insert, id, "T", "acme", "read_x"); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	var count int
	if err := db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM shop_credentials WHERE account_identifier = ?`, "acme",
	).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two rows for repeated installs, got %d", count)
	}

	for _, migration := range []string{
		"00002_appinstall_shop_credentials_account_index.down.sql",
		"00001_appinstall_shop_credentials.down.sql",
	} {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("rollback %s: %v", migration, err)
		}
	}
	if err := db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, "shop_credentials",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected shop_credentials to be dropped")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
