// Package chain provides the ledger substrate the auction runs on: a block
// height clock and a balance book for native value and tokens.
package chain

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultBlockTime is the expected spacing between blocks
const DefaultBlockTime = 12 * time.Second

// Clock is a monotonic logical clock measured in blocks
type Clock interface {
	Height() uint64
}

// ManualClock only moves when told to
type ManualClock struct {
	height atomic.Uint64
}

// NewManualClock creates a clock starting at height
func NewManualClock(height uint64) *ManualClock {
	c := &ManualClock{}
	c.height.Store(height)
	return c
}

// Height returns the current block height
func (c *ManualClock) Height() uint64 {
	return c.height.Load()
}

// Advance moves the clock forward by n blocks and returns the new height
func (c *ManualClock) Advance(n uint64) uint64 {
	return c.height.Add(n)
}

// Set moves the clock to height. Heights below the current one are ignored.
func (c *ManualClock) Set(height uint64) {
	for {
		cur := c.height.Load()
		if height <= cur || c.height.CompareAndSwap(cur, height) {
			return
		}
	}
}

// TickingClock advances one block per interval
type TickingClock struct {
	ManualClock
	interval time.Duration
	onTick   func(height uint64)
}

// NewTickingClock creates a clock starting at height that ticks every interval
// once Run is called
func NewTickingClock(height uint64, interval time.Duration) *TickingClock {
	if interval <= 0 {
		interval = DefaultBlockTime
	}
	c := &TickingClock{interval: interval}
	c.height.Store(height)
	return c
}

// OnTick registers fn to be called with the new height after every tick.
// It must be set before Run.
func (c *TickingClock) OnTick(fn func(height uint64)) {
	c.onTick = fn
}

// Run advances the clock until ctx is cancelled
func (c *TickingClock) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := c.Advance(1)
			if c.onTick != nil {
				c.onTick(h)
			}
		}
	}
}
