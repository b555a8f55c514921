package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoiseFloorTrackerFirstUpdateAdoptsMedian(t *testing.T) {
	tr := newNoiseFloorTracker()
	got := tr.update(100, []float32{-90, -95, -100})
	assert.InDelta(t, -95, got, 0.01)
}

func TestNoiseFloorTrackerConvergesTowardNewMedian(t *testing.T) {
	tr := newNoiseFloorTracker()
	tr.update(100, []float32{-90, -90, -90})
	second := tr.update(100, []float32{-60, -60, -60})
	assert.InDelta(t, 0.7*-90+0.3*-60, second, 0.01)

	for i := 0; i < 50; i++ {
		second = tr.update(100, []float32{-60, -60, -60})
	}
	assert.InDelta(t, -60, second, 0.5)
}

func TestNoiseFloorTrackerIsPerCenter(t *testing.T) {
	tr := newNoiseFloorTracker()
	tr.update(100, []float32{-90})
	tr.update(200, []float32{-50})

	a, ok := tr.get(100)
	assert.True(t, ok)
	assert.InDelta(t, -90, a, 0.01)

	b, ok := tr.get(200)
	assert.True(t, ok)
	assert.InDelta(t, -50, b, 0.01)

	_, ok = tr.get(300)
	assert.False(t, ok)
}
