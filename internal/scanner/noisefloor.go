package scanner

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// noiseFloorTracker holds a low-pass-filtered per-center noise floor
// estimate: nf_new = 0.7*nf_prev + 0.3*median.
type noiseFloorTracker struct {
	mu     sync.Mutex
	floors map[uint64]float64
}

func newNoiseFloorTracker() *noiseFloorTracker {
	return &noiseFloorTracker{floors: make(map[uint64]float64)}
}

// update folds one FFT power-bin slice into the rolling estimate for
// centerHz and returns the new floor.
func (t *noiseFloorTracker) update(centerHz uint64, magnitudesDB []float32) float64 {
	med := median(magnitudesDB)

	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.floors[centerHz]
	if !ok {
		t.floors[centerHz] = med
		return med
	}
	next := 0.7*prev + 0.3*med
	t.floors[centerHz] = next
	return next
}

func (t *noiseFloorTracker) get(centerHz uint64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.floors[centerHz]
	return v, ok
}

// median returns gonum's exact-rank median (stat.Quantile at p=0.5) over a
// sorted copy of data, in place of a hand-rolled stdlib sort.Slice plus
// manual percentile indexing.
func median(data []float32) float64 {
	if len(data) == 0 {
		return 0
	}
	f64 := make([]float64, len(data))
	for i, v := range data {
		f64[i] = float64(v)
	}
	sort.Float64s(f64)
	return stat.Quantile(0.5, stat.Empirical, f64, nil)
}
