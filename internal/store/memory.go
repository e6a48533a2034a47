package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory keeps everything in maps. Stored slices are copied on the way in
// and out.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[int64][]byte
	named     map[string][]byte
}

var _ Backend = (*Memory)(nil)

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[int64][]byte),
		named:     make(map[string][]byte),
	}
}

func (m *Memory) PutSnapshot(_ context.Context, height int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[height] = slices.Clone(data)
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, height int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.snapshots[height]
	if !ok {
		return nil, fmt.Errorf("get snapshot %d: %w", height, ErrNotFound)
	}
	return slices.Clone(data), nil
}

func (m *Memory) DeleteSnapshots(_ context.Context, heights []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range heights {
		delete(m.snapshots, h)
	}
	return nil
}

func (m *Memory) SnapshotHeights(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	heights := make([]int64, 0, len(m.snapshots))
	for h := range m.snapshots {
		heights = append(heights, h)
	}
	slices.Sort(heights)
	return heights, nil
}

func (m *Memory) PutNamed(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.named[name] = slices.Clone(data)
	return nil
}

func (m *Memory) GetNamed(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.named[name]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", name, ErrNotFound)
	}
	return slices.Clone(data), nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
