// Package almanacdb provides a seeded SQLite knowledgebase for tests.
package almanacdb

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"path/filepath"
	"testing"

	"moalmanac-api/internal/store"
)

//go:embed fixture.yaml
var fixture []byte

// Fixture returns the parsed fixture seed.
func Fixture() (store.Seed, error) {
	return store.ParseSeed(bytes.NewReader(fixture))
}

// NewTestDB creates a file-backed SQLite database under the test's temp
// directory, creates the tables and loads the fixture. The database is
// closed when the test ends.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := store.OpenSQLite(NewTestSnapshot(t))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// NewTestSnapshot writes a seeded snapshot file under the test's temp
// directory and returns its path.
func NewTestSnapshot(t testing.TB) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "almanac.db")
	db, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	seed, err := Fixture()
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	if _, err := seed.Load(ctx, db); err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return path
}
