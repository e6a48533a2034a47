package store

import (
	"path/filepath"
	"testing"
)

// createTestSQLite opens a SQLite backend in a temporary directory.
func createTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends opens one of each backend for conformance tests.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	ldb, err := OpenLevelDB(filepath.Join(t.TempDir(), "ldb"))
	if err != nil {
		t.Fatalf("OpenLevelDB() failed: %v", err)
	}
	t.Cleanup(func() { ldb.Close() })
	return map[string]Backend{
		DriverSQLite:  createTestSQLite(t),
		DriverLevelDB: ldb,
		DriverMemory:  NewMemory(),
	}
}
