package ledger

import (
	"sync/atomic"
	"time"
)

// Clock is the network time source, in milliseconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().UnixMilli())
}

// ManualClock only moves when told to.
type ManualClock struct {
	ms atomic.Uint64
}

func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.ms.Store(start)
	return c
}

func (c *ManualClock) Now() uint64 {
	return c.ms.Load()
}

func (c *ManualClock) Set(ms uint64) {
	c.ms.Store(ms)
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) uint64 {
	return c.ms.Add(uint64(d.Milliseconds()))
}
