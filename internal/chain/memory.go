package chain

import (
	"context"
	"fmt"
	"sync"
)

// MemorySource is a BlockSource backed by a map. It is safe for concurrent
// use, so tests can extend or fork the chain while a replay is running.
type MemorySource struct {
	mu     sync.RWMutex
	blocks map[int64]Block
	tip    int64
}

// NewMemorySource returns a source holding blocks.
func NewMemorySource(blocks ...Block) *MemorySource {
	s := &MemorySource{blocks: make(map[int64]Block)}
	for _, b := range blocks {
		s.Put(b)
	}
	return s
}

// Put stores b, replacing any block at the same height. Blocks above a
// replaced height are dropped so the source always describes one chain.
func (s *MemorySource) Put(b Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blocks[b.Height]; exists {
		for h := range s.blocks {
			if h > b.Height {
				delete(s.blocks, h)
			}
		}
		s.tip = b.Height
	}
	s.blocks[b.Height] = b
	if b.Height > s.tip {
		s.tip = b.Height
	}
}

// LatestHeight implements BlockSource.
func (s *MemorySource) LatestHeight(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tip, nil
}

// BlockAt implements BlockSource.
func (s *MemorySource) BlockAt(ctx context.Context, height int64) (Block, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[height]
	if !ok {
		return Block{}, fmt.Errorf("height %d: %w", height, ErrBlockNotFound)
	}
	return b, nil
}
