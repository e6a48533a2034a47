package testutil

import (
	"sync"
	"time"
)

// BlockInterval is the spacing BlockClock puts between blocks.
const BlockInterval = 10 * time.Minute

// GenesisTime is the timestamp of the first block a BlockClock produces.
var GenesisTime = time.Date(2013, time.June, 1, 0, 0, 0, 0, time.UTC)

// BlockClock hands out block timestamps at a fixed interval.
//
// Unlike wall time it is reproducible, and it can be reset so the same
// scenario yields identical timestamps on every run.
type BlockClock struct {
	mu    sync.Mutex
	start time.Time
	n     int64
}

// NewBlockClock creates a clock whose first timestamp is GenesisTime.
func NewBlockClock() *BlockClock {
	return &BlockClock{start: GenesisTime}
}

// Next returns the next block timestamp.
func (c *BlockClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * BlockInterval)
	c.n++
	return t
}

// Advance skips d of chain time.
func (c *BlockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = c.start.Add(d)
}

// Reset rewinds the clock to GenesisTime.
func (c *BlockClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = GenesisTime
	c.n = 0
}
