package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClock_DefaultsToEpoch(t *testing.T) {
	clock := NewManualClock(time.Time{})
	assert.Equal(t, Epoch, clock.Now())
}

func TestManualClock_AdvanceAndSet(t *testing.T) {
	clock := NewManualClock(Epoch)

	got := clock.Advance(5 * time.Second)
	assert.Equal(t, Epoch.Add(5*time.Second), got)
	assert.Equal(t, got, clock.Now())

	// Moving backwards is allowed
	clock.Set(Epoch.Add(-time.Hour))
	assert.Equal(t, Epoch.Add(-time.Hour), clock.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(Epoch)
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
		}()
	}
	wg.Wait()

	require.Equal(t, Epoch.Add(goroutines*time.Millisecond), clock.Now())
}

func TestID_Readable(t *testing.T) {
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", ID(1).String())
	assert.Equal(t, "00000000-0000-0000-0000-0000000000ff", ID(255).String())
}

func TestSequentialIDs_UniqueAcrossPrefixes(t *testing.T) {
	a := NewSequentialIDs(1)
	b := NewSequentialIDs(2)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		for _, id := range []string{a.New().String(), b.New().String()} {
			assert.False(t, seen[id], "id %s generated twice", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 200)
}

func TestSequentialIDs_Deterministic(t *testing.T) {
	first := NewSequentialIDs(7)
	second := NewSequentialIDs(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first.New(), second.New())
	}
}
