package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// New registers every collector against the global default registerer, so
// constructing it twice in one process panics on duplicate registration.
// All assertions below therefore share a single Registry built once.
func TestRegistry(t *testing.T) {
	r := New()

	t.Run("fft and demod counters", func(t *testing.T) {
		r.ObserveFFT(0.001)
		r.ObserveFFT(0.002)
		r.ObserveDemodFrame()

		assert.Equal(t, float64(2), testutil.ToFloat64(r.fftFramesTotal))
		assert.Equal(t, float64(1), testutil.ToFloat64(r.demodFramesTotal))
	})

	t.Run("batch observation tracks count and timestamp", func(t *testing.T) {
		r.ObserveBatch(5, 0, 1700000000)
		r.ObserveBatch(3, 0.25, 1700000001)

		assert.Equal(t, float64(2), testutil.ToFloat64(r.batchesSentTotal))
		assert.Equal(t, float64(1700000001), testutil.ToFloat64(r.lastBatchUnixTime))
	})

	t.Run("park duration increments hit counter", func(t *testing.T) {
		before := testutil.ToFloat64(r.scannerHitsTotal)
		r.ObserveParkDuration(2.5)
		assert.Equal(t, before+1, testutil.ToFloat64(r.scannerHitsTotal))
	})

	t.Run("scanner state gauge reflects exactly one active state", func(t *testing.T) {
		known := []string{"idle", "scanning", "parked"}
		r.SetScannerState("parked", known)

		assert.Equal(t, float64(0), testutil.ToFloat64(r.scannerState.WithLabelValues("idle")))
		assert.Equal(t, float64(0), testutil.ToFloat64(r.scannerState.WithLabelValues("scanning")))
		assert.Equal(t, float64(1), testutil.ToFloat64(r.scannerState.WithLabelValues("parked")))

		r.SetScannerState("idle", known)
		assert.Equal(t, float64(1), testutil.ToFloat64(r.scannerState.WithLabelValues("idle")))
		assert.Equal(t, float64(0), testutil.ToFloat64(r.scannerState.WithLabelValues("parked")))
	})

	t.Run("fanout counters are per channel", func(t *testing.T) {
		r.RecordFanoutDrop("main")
		r.RecordFanoutDrop("main")
		r.RecordFanoutDrop("signal")
		r.SetFanoutSubscribers("main", 4)
		r.RecordFanoutBroadcastBytes("main", 128)

		assert.Equal(t, float64(2), testutil.ToFloat64(r.fanoutDroppedTotal.WithLabelValues("main")))
		assert.Equal(t, float64(1), testutil.ToFloat64(r.fanoutDroppedTotal.WithLabelValues("signal")))
		assert.Equal(t, float64(4), testutil.ToFloat64(r.fanoutSubscribers.WithLabelValues("main")))
		assert.Equal(t, float64(128), testutil.ToFloat64(r.fanoutBroadcastBytes.WithLabelValues("main")))
	})

	t.Run("goroutine gauge function reports a positive count", func(t *testing.T) {
		assert.Greater(t, testutil.ToFloat64(r.goroutines), float64(0))
	})
}
