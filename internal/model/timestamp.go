package model

import (
	"fmt"
	"time"
)

// HybridTimestamp is a hybrid logical clock reading: a wall-clock instant
// plus a logical counter that orders events sharing the same instant.
//
// DateTime is always UTC with millisecond precision so that a timestamp
// survives a round trip through storage and the sync wire format unchanged.
type HybridTimestamp struct {
	DateTime time.Time `json:"date_time"`
	Counter  int64     `json:"counter"`
}

// NewHybridTimestamp normalises t to UTC milliseconds.
func NewHybridTimestamp(t time.Time, counter int64) HybridTimestamp {
	return HybridTimestamp{DateTime: TruncateMillis(t), Counter: counter}
}

// TruncateMillis converts t to UTC and drops sub-millisecond precision.
func TruncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// Compare orders by instant, then by counter. Returns -1, 0 or 1.
func (h HybridTimestamp) Compare(other HybridTimestamp) int {
	if c := h.DateTime.Compare(other.DateTime); c != 0 {
		return c
	}
	switch {
	case h.Counter < other.Counter:
		return -1
	case h.Counter > other.Counter:
		return 1
	}
	return 0
}

// After reports whether h is strictly later than other.
func (h HybridTimestamp) After(other HybridTimestamp) bool {
	return h.Compare(other) > 0
}

// UnixMilli returns the instant as epoch milliseconds, the unit used by SyncState.
func (h HybridTimestamp) UnixMilli() int64 {
	return h.DateTime.UnixMilli()
}

// IsZero reports whether the timestamp was never set.
func (h HybridTimestamp) IsZero() bool {
	return h.DateTime.IsZero() && h.Counter == 0
}

func (h HybridTimestamp) String() string {
	return fmt.Sprintf("%s#%d", h.DateTime.Format(time.RFC3339Nano), h.Counter)
}
