package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAllOrNothing(t *testing.T) {
	l := NewLedger()
	l.SetCapacity("db", 2)
	l.SetCapacity("api", 1)

	require.True(t, l.Reserve(map[string]int{"db": 1, "api": 1}))

	// api is now exhausted, so the whole request must fail and db must
	// stay untouched.
	require.False(t, l.Reserve(map[string]int{"db": 1, "api": 1}))
	assert.True(t, l.Reserve(map[string]int{"db": 1}))
}

func TestReserveUndeclaredResourceDefaultsToOne(t *testing.T) {
	l := NewLedger()

	require.True(t, l.Reserve(map[string]int{"gpu": 1}))
	assert.False(t, l.Reserve(map[string]int{"gpu": 1}))

	l.Release(map[string]int{"gpu": 1})
	assert.True(t, l.Reserve(map[string]int{"gpu": 1}))
}

func TestReserveEmptyAlwaysSucceeds(t *testing.T) {
	l := NewLedger()
	assert.True(t, l.Reserve(nil))
	assert.True(t, l.Reserve(map[string]int{}))
}

func TestCapacityRaiseUnblocksWaiters(t *testing.T) {
	l := NewLedger()
	l.SetCapacity("slots", 1)

	require.True(t, l.Reserve(map[string]int{"slots": 1}))
	require.False(t, l.Reserve(map[string]int{"slots": 1}))

	l.SetCapacity("slots", 2)
	assert.True(t, l.Reserve(map[string]int{"slots": 1}))
}

func TestReleaseClearsZeroedEntries(t *testing.T) {
	l := NewLedger()
	require.True(t, l.Reserve(map[string]int{"db": 1}))
	l.Release(map[string]int{"db": 1})

	assert.Empty(t, l.used)
}

func TestSnapshotSorted(t *testing.T) {
	l := NewLedger()
	l.SetCapacity("zeta", 4)
	l.SetCapacity("alpha", 2)
	require.True(t, l.Reserve(map[string]int{"alpha": 1, "mid": 1}))

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "alpha", snap[0].Name)
	assert.Equal(t, 2, snap[0].Total)
	assert.Equal(t, 1, snap[0].Used)
	assert.Equal(t, "mid", snap[1].Name)
	assert.Equal(t, 1, snap[1].Total)
	assert.Equal(t, "zeta", snap[2].Name)
	assert.Equal(t, 0, snap[2].Used)
}
