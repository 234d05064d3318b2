// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"testing"

	"rally/internal/database"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewSQLiteDB opens a private in-memory SQLite database with every persistent
// model migrated. The pool is pinned to one connection so the in-memory
// database is shared by all queries and transactions serialize. Tests that
// run operations concurrently on it check the logic under interleaved calls,
// not the row locks; the FOR UPDATE ordering is asserted by the sqlmock tests
// in the repository and service packages.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// UintPtr returns a pointer to v.
func UintPtr(v uint) *uint { return &v }
