package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// ID returns a readable fixed uuid: ID(1) is 00000000-0000-0000-0000-000000000001.
func ID(n uint64) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[8:], n)
	return u
}

// SequentialIDs hands out ID(prefix<<32 + 1), ID(prefix<<32 + 2), ...
//
// This enables deterministic test execution and golden comparison: the same
// scenario run with a fresh SequentialIDs produces byte-identical ids.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix uint64
	next   uint64
}

// NewSequentialIDs creates a generator whose ids all share prefix in the
// upper half of the last eight bytes, so two generators never collide.
func NewSequentialIDs(prefix uint32) *SequentialIDs {
	return &SequentialIDs{prefix: uint64(prefix) << 32}
}

// New returns the next id.
func (g *SequentialIDs) New() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return ID(g.prefix | g.next)
}
