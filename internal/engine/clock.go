package engine

import "sync/atomic"

// Clock hands out request sequence numbers.
//
// Every request gets a strictly increasing Seq. The counter is persisted
// with each snapshot, so a replay resumed from disk continues the same
// numbering and a rolled-back block re-issues the numbers it used before.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
