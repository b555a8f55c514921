package mux

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// noiseFloorTracker holds a low-pass-filtered noise floor estimate for the
// FFT path: nf_new = 0.7*nf_prev + 0.3*median, the same recurrence
// internal/scanner's tracker uses per sweep center. The Multiplexer
// observes one fixed band rather than sweeping, so a single running
// estimate is enough.
type noiseFloorTracker struct {
	mu    sync.Mutex
	floor float64
	has   bool
}

func newNoiseFloorTracker() *noiseFloorTracker {
	return &noiseFloorTracker{}
}

// update folds one FFT power-bin slice into the rolling estimate and
// returns the new floor.
func (t *noiseFloorTracker) update(magnitudesDB []float32) float64 {
	med := median(magnitudesDB)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.has {
		t.floor = med
		t.has = true
		return med
	}
	t.floor = 0.7*t.floor + 0.3*med
	return t.floor
}

// median returns gonum's exact-rank median (stat.Quantile at p=0.5) over a
// sorted copy of data.
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
