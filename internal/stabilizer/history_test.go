package stabilizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidstab/pkg/geometry"
)

func TestHistoryPushEvictsOldest(t *testing.T) {
	h := NewTransformHistory(3)
	for i := 1; i <= 5; i++ {
		h.Push(geometry.Translation(float64(i), 0))
	}

	require.Equal(t, 3, h.Len())
	snap := h.Snapshot()
	assert.Equal(t, 3.0, snap[0].TX)
	assert.Equal(t, 4.0, snap[1].TX)
	assert.Equal(t, 5.0, snap[2].TX)
}

func TestHistoryClearKeepsCapacity(t *testing.T) {
	h := NewTransformHistory(4)
	h.Push(geometry.Translation(1, 0))
	h.Push(geometry.Translation(2, 0))

	h.Clear()
	assert.Equal(t, 0, h.Len())

	for i := 0; i < 10; i++ {
		h.Push(geometry.Identity())
	}
	assert.Equal(t, 4, h.Len())
}

func TestHistoryShrinkKeepsMostRecent(t *testing.T) {
	h := NewTransformHistory(5)
	for i := 1; i <= 5; i++ {
		h.Push(geometry.Translation(float64(i), 0))
	}

	h.SetCapacity(2)
	require.Equal(t, 2, h.Len())
	snap := h.Snapshot()
	assert.Equal(t, 4.0, snap[0].TX)
	assert.Equal(t, 5.0, snap[1].TX)
}

func TestHistoryGrowKeepsEntries(t *testing.T) {
	h := NewTransformHistory(2)
	h.Push(geometry.Translation(1, 0))
	h.Push(geometry.Translation(2, 0))

	h.SetCapacity(4)
	require.Equal(t, 2, h.Len())

	h.Push(geometry.Translation(3, 0))
	h.Push(geometry.Translation(4, 0))
	assert.Equal(t, 4, h.Len())
	assert.Equal(t, 1.0, h.Snapshot()[0].TX)
}

func TestHistoryInvalidCapacityIgnored(t *testing.T) {
	h := NewTransformHistory(3)
	h.Push(geometry.Translation(1, 0))

	h.SetCapacity(0)
	h.Push(geometry.Translation(2, 0))
	h.Push(geometry.Translation(3, 0))
	h.Push(geometry.Translation(4, 0))
	assert.Equal(t, 3, h.Len())
}
