package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingFillsToCapacity(t *testing.T) {
	r := New(4)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 4, r.Cap())

	for i := 1; i <= 3; i++ {
		r.Push(float64(i))
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []float64{1, 2, 3}, r.Window(3))
}

func TestRingOverwritesOldest(t *testing.T) {
	r := New(3)
	for i := 1; i <= 5; i++ {
		r.Push(float64(i))
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []float64{3, 4, 5}, r.Window(3))
	assert.Equal(t, 5.0, r.Last())
}

func TestWindowSmallerThanContents(t *testing.T) {
	r := New(10)
	for i := 1; i <= 8; i++ {
		r.Push(float64(i))
	}
	assert.Equal(t, []float64{6, 7, 8}, r.Window(3))
}

func TestWindowLargerThanContents(t *testing.T) {
	r := New(10)
	r.Push(1)
	r.Push(2)
	assert.Equal(t, []float64{1, 2}, r.Window(5))
}

func TestWindowCopiesOut(t *testing.T) {
	r := New(3)
	r.Push(1)
	w := r.Window(1)
	w[0] = 99
	assert.Equal(t, 1.0, r.Last())
}

func TestEmptyRing(t *testing.T) {
	r := New(3)
	assert.Nil(t, r.Window(3))
	assert.Equal(t, 0.0, r.Last())
}
