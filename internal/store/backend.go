package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a snapshot height or named blob is absent.
var ErrNotFound = errors.New("not found")

// Backend persists snapshots by height and blobs by name.
//
// Implementations must be safe for concurrent use. Writes of a single
// snapshot or blob are atomic; DeleteSnapshots removes all listed heights
// or none.
type Backend interface {
	PutSnapshot(ctx context.Context, height int64, data []byte) error
	GetSnapshot(ctx context.Context, height int64) ([]byte, error)
	DeleteSnapshots(ctx context.Context, heights []int64) error

	// SnapshotHeights lists stored heights in ascending order.
	SnapshotHeights(ctx context.Context) ([]int64, error)

	PutNamed(ctx context.Context, name string, data []byte) error
	GetNamed(ctx context.Context, name string) ([]byte, error)

	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
	DriverMemory  = "memory"
)

// Open opens the backend named by driver at path. path is ignored for the
// memory driver.
func Open(driver, path string) (Backend, error) {
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(path)
	case DriverLevelDB:
		return OpenLevelDB(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
