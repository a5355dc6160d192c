// Package dbtest opens throwaway migrated SQLite databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/saq-app/backend/internal/config"
	"github.com/saq-app/backend/internal/database"
)

// Open returns a fresh, fully migrated database that is closed when the
// test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Connect(config.Database{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "saq.db"),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, database.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a plain user and returns its id.
func CreateUser(t testing.TB, db *sql.DB, username string) int64 {
	t.Helper()

	now := time.Now().UnixMilli()
	var id int64
	err := db.QueryRow(
		`INSERT INTO users (email, name, username, password, is_lazy, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		username+"@example.com", username, username, "x", false, now, now,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return id
}
