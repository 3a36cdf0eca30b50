// Package hlc implements the hybrid logical clock that stamps commits.
package hlc

import (
	"sync"
	"time"

	"github.com/roach88/strata/internal/model"
)

// TimeSource returns the current wall-clock time.
type TimeSource func() time.Time

// Clock issues strictly increasing HybridTimestamps for one replica.
//
// Each reading takes the wall clock; when the wall clock has not moved past
// the last issued timestamp (same millisecond, or a regression after a clock
// reset) the clock reuses the last instant and bumps the counter instead.
// Observe folds in timestamps seen from other replicas so that commits
// authored after a sync sort after everything that was merged.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	now  TimeSource
	last model.HybridTimestamp
}

// Option configures a Clock.
type Option func(*Clock)

// WithTimeSource replaces time.Now, for tests and simulations.
func WithTimeSource(src TimeSource) Option {
	return func(c *Clock) {
		c.now = src
	}
}

// New creates a clock that has issued nothing yet.
func New(opts ...Option) *Clock {
	c := &Clock{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewAt creates a clock resuming after last, typically the newest persisted commit.
func NewAt(last model.HybridTimestamp, opts ...Option) *Clock {
	c := New(opts...)
	c.last = last
	return c
}

// Now returns the next timestamp. Calls are linearizable and every
// returned value is strictly greater than the previous one.
func (c *Clock) Now() model.HybridTimestamp {
	wall := model.TruncateMillis(c.now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if !wall.After(c.last.DateTime) {
		c.last = model.HybridTimestamp{DateTime: c.last.DateTime, Counter: c.last.Counter + 1}
	} else {
		c.last = model.HybridTimestamp{DateTime: wall, Counter: 0}
	}
	return c.last
}

// Observe adopts the greatest of timestamps if it is later than the last
// issued reading. Earlier timestamps are ignored.
func (c *Clock) Observe(timestamps ...model.HybridTimestamp) {
	if len(timestamps) == 0 {
		return
	}
	maxTS := timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts.After(maxTS) {
			maxTS = ts
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if maxTS.After(c.last) {
		c.last = maxTS
	}
}

// Last returns the most recently issued or observed timestamp.
func (c *Clock) Last() model.HybridTimestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
