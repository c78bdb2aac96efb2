package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocWithinBudget(t *testing.T) {
	a := NewAccountant(1024)
	require.NoError(t, a.Alloc(512))

	stats := a.Stats()
	assert.Equal(t, uint64(1), stats.Allocations)
	assert.Equal(t, uint64(512), stats.BytesAllocated)
	assert.Equal(t, uint64(512), stats.CurrentFree)
	assert.Equal(t, uint64(512), stats.MinimumFree)
	assert.Equal(t, uint64(512), stats.PeakUsage)
	assert.Equal(t, uint32(1), stats.Active)
}

func TestAllocBeyondBudgetFails(t *testing.T) {
	a := NewAccountant(1024)
	require.NoError(t, a.Alloc(1024))
	err := a.Alloc(1)
	assert.ErrorIs(t, err, ErrBudgetExhausted)

	stats := a.Stats()
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Equal(t, uint64(1), stats.Allocations)
	assert.Equal(t, uint64(1024), stats.BytesAllocated)
}

func TestFreeRestoresBudget(t *testing.T) {
	a := NewAccountant(1024)
	require.NoError(t, a.Alloc(1024))
	a.Free(1024)

	require.NoError(t, a.Alloc(256))
	stats := a.Stats()
	assert.Equal(t, uint64(256), stats.BytesAllocated)
	assert.Equal(t, uint64(1), stats.Frees)
	assert.Equal(t, uint32(1), stats.Active)
}

func TestMarksAreMonotone(t *testing.T) {
	a := NewAccountant(1000)
	require.NoError(t, a.Alloc(800))
	a.Free(800)
	require.NoError(t, a.Alloc(100))

	stats := a.Stats()
	assert.Equal(t, uint64(800), stats.PeakUsage)
	assert.Equal(t, uint64(200), stats.MinimumFree)
}

func TestBalancedAccounting(t *testing.T) {
	a := NewAccountant(4096)
	sizes := []uint64{64, 256, 512, 64, 512}
	for _, n := range sizes {
		require.NoError(t, a.Alloc(n))
		a.Free(n)
	}

	stats := a.Stats()
	assert.Equal(t, stats.Allocations, stats.Frees)
	assert.Zero(t, stats.BytesAllocated)
	assert.Zero(t, stats.Active)
}
