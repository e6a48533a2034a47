package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/orderedcode"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes.
const (
	prefixSnapshot = int64(1)
	prefixNamed    = int64(2)
)

// LevelDB stores snapshots in a LevelDB directory.
type LevelDB struct {
	db *leveldb.DB
}

var _ Backend = (*LevelDB)(nil)

var syncWrite = &opt.WriteOptions{Sync: true}

// OpenLevelDB creates or opens a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// Close closes the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

func (l *LevelDB) PutSnapshot(_ context.Context, height int64, data []byte) error {
	if err := l.db.Put(snapshotKey(height), data, syncWrite); err != nil {
		return fmt.Errorf("put snapshot %d: %w", height, err)
	}
	return nil
}

func (l *LevelDB) GetSnapshot(_ context.Context, height int64) ([]byte, error) {
	data, err := l.db.Get(snapshotKey(height), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("get snapshot %d: %w", height, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", height, err)
	}
	return data, nil
}

func (l *LevelDB) DeleteSnapshots(_ context.Context, heights []int64) error {
	if len(heights) == 0 {
		return nil
	}
	batch := new(leveldb.Batch)
	for _, h := range heights {
		batch.Delete(snapshotKey(h))
	}
	if err := l.db.Write(batch, syncWrite); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}

func (l *LevelDB) SnapshotHeights(_ context.Context) ([]int64, error) {
	iter := l.db.NewIterator(util.BytesPrefix(keyPrefix(prefixSnapshot)), nil)
	defer iter.Release()

	var heights []int64
	for iter.Next() {
		h, err := decodeSnapshotKey(iter.Key())
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		heights = append(heights, h)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return heights, nil
}

func (l *LevelDB) PutNamed(_ context.Context, name string, data []byte) error {
	if err := l.db.Put(namedKey(name), data, syncWrite); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

func (l *LevelDB) GetNamed(_ context.Context, name string) ([]byte, error) {
	data, err := l.db.Get(namedKey(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("get %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return data, nil
}

func keyPrefix(prefix int64) []byte {
	key, err := orderedcode.Append(nil, prefix)
	if err != nil {
		panic(err)
	}
	return key
}

func snapshotKey(height int64) []byte {
	key, err := orderedcode.Append(nil, prefixSnapshot, height)
	if err != nil {
		panic(err)
	}
	return key
}

func decodeSnapshotKey(key []byte) (int64, error) {
	var prefix, height int64
	remaining, err := orderedcode.Parse(string(key), &prefix, &height)
	if err != nil {
		return 0, err
	}
	if len(remaining) != 0 {
		return 0, fmt.Errorf("expected complete key but got remainder: %q", remaining)
	}
	if prefix != prefixSnapshot {
		return 0, fmt.Errorf("incorrect prefix. Expected %v, got %v", prefixSnapshot, prefix)
	}
	return height, nil
}

func namedKey(name string) []byte {
	key, err := orderedcode.Append(nil, prefixNamed, name)
	if err != nil {
		panic(err)
	}
	return key
}
