// Package test provides integration tests for leafdb.
package test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexhholmes/leafdb"
)

// setup creates a temporary leafdb database for testing.
func setup(t *testing.T, options ...leafdb.DBOption) (*leafdb.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := leafdb.Open(path, options...)
	require.NoError(t, err, "Failed to create DB")

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, path
}

// reopen closes db and opens the file again.
func reopen(t *testing.T, db *leafdb.DB, options ...leafdb.DBOption) *leafdb.DB {
	t.Helper()

	require.NoError(t, db.Close(), "Failed to close DB")
	db, err := leafdb.Open(db.Path(), options...)
	require.NoError(t, err, "Failed to reopen DB")

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
