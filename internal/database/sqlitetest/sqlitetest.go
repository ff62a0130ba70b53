// Package sqlitetest opens throwaway SQLite databases carrying the
// application schema, for tests that need real SQL behaviour without a
// MySQL server.
package sqlitetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/trailhub/trailhub-api/internal/database"
	_ "modernc.org/sqlite"
)

// Open creates a file-backed database in t.TempDir, enables foreign keys and
// runs the migrations.  A single connection is used so concurrent
// transactions queue instead of failing with SQLITE_BUSY.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trailhub.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
