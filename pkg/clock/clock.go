// Package clock counts scheduler ticks, the only unit of time the airlock
// controller knows about.
//
// A tick is one invocation of the fixed-period scheduler. Durations in the
// configuration are expressed in ticks; the helpers here convert operator
// facing seconds into ticks and ticks into a wall-clock period.
//
// Note: Clock is not goroutine-safe. It is owned by the scheduler, which runs
// on a single goroutine.
package clock

import "time"

// Clock is a monotonic tick counter. Not goroutine-safe; see package doc.
type Clock struct {
	n int64
}

// Tick advances the clock by one and returns the new tick number.
func (c *Clock) Tick() int64 {
	c.n++
	return c.n
}

// Value returns the current tick without advancing it.
func (c *Clock) Value() int64 { return c.n }

// Set seeds the clock. Used to continue numbering from the highest tick in
// the event journal so journal entries stay ordered across runs.
func (c *Clock) Set(v int64) { c.n = v }

// Observe moves the clock forward to t if t is ahead of it and returns the
// resulting value. The clock never moves backwards.
func (c *Clock) Observe(t int64) int64 {
	if t > c.n {
		c.n = t
	}
	return c.n
}

// FromSeconds converts a duration in seconds into ticks at the given rate.
// Non-positive inputs yield 0.
func FromSeconds(seconds, ticksPerSecond int) int {
	if seconds <= 0 || ticksPerSecond <= 0 {
		return 0
	}
	return seconds * ticksPerSecond
}

// Seconds converts ticks back into seconds at the given rate.
func Seconds(ticks, ticksPerSecond int) float64 {
	if ticksPerSecond <= 0 {
		return 0
	}
	return float64(ticks) / float64(ticksPerSecond)
}

// Period is the wall-clock interval between ticks at the given rate.
func Period(ticksPerSecond int) time.Duration {
	if ticksPerSecond <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(ticksPerSecond)
}
