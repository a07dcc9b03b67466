package engine

import "sync/atomic"

// CycleCounter numbers poll cycles. Every cycle gets a strictly increasing
// number, used to correlate log lines and budget errors.
//
// Safe for concurrent use, although only the poll goroutine calls Next.
type CycleCounter struct {
	seq atomic.Int64
}

// NewCycleCounter creates a counter starting at 0.
func NewCycleCounter() *CycleCounter {
	return &CycleCounter{}
}

// NewCycleCounterAt creates a counter starting at start.
func NewCycleCounterAt(start int64) *CycleCounter {
	c := &CycleCounter{}
	c.seq.Store(start)
	return c
}

// Next returns the next cycle number.
func (c *CycleCounter) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the number of the last cycle started.
func (c *CycleCounter) Current() int64 {
	return c.seq.Load()
}
