package engine

import "sync/atomic"

// Clock is a monotonic logical clock.
//
// The engine stamps every transaction and every reduced message with a
// strictly increasing sequence number from its clock. Observers order the
// journal and traces by these numbers, never by wall time, so two runs of the
// same scenario produce the same trace.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
