package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - snapshots only
// 1 - added named_blobs
const currentSchemaVersion = 1

// SQLite stores snapshots in a single SQLite database file.
// Uses WAL mode so inspection can read while the replay writes.
type SQLite struct {
	db *sql.DB
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutSnapshot stores data at height, replacing any previous snapshot there.
func (s *SQLite) PutSnapshot(ctx context.Context, height int64, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (height, data) VALUES (?, ?)
		ON CONFLICT(height) DO UPDATE SET data = excluded.data
	`, height, data)
	if err != nil {
		return fmt.Errorf("put snapshot %d: %w", height, err)
	}
	return nil
}

// GetSnapshot returns the snapshot at height.
func (s *SQLite) GetSnapshot(ctx context.Context, height int64) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE height = ?`, height).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get snapshot %d: %w", height, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", height, err)
	}
	return data, nil
}

// DeleteSnapshots removes the listed heights in one transaction. Heights
// that are not stored are skipped.
func (s *SQLite) DeleteSnapshots(ctx context.Context, heights []int64) error {
	if len(heights) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete snapshots: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM snapshots WHERE height = ?`)
	if err != nil {
		return fmt.Errorf("delete snapshots: prepare: %w", err)
	}
	defer stmt.Close()

	for _, h := range heights {
		if _, err := stmt.ExecContext(ctx, h); err != nil {
			return fmt.Errorf("delete snapshot %d: %w", h, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete snapshots: commit: %w", err)
	}
	return nil
}

// SnapshotHeights lists stored heights in ascending order.
func (s *SQLite) SnapshotHeights(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT height FROM snapshots ORDER BY height ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var heights []int64
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("list snapshots: scan: %w", err)
		}
		heights = append(heights, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return heights, nil
}

// PutNamed stores data under name, replacing any previous value.
func (s *SQLite) PutNamed(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO named_blobs (name, data) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data
	`, name, data)
	if err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

// GetNamed returns the blob stored under name.
func (s *SQLite) GetNamed(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM named_blobs WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return data, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds named_blobs for databases created before payment records
// moved out of the snapshot table. New databases get it from schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS named_blobs (
			name TEXT PRIMARY KEY COLLATE BINARY,
			data BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
