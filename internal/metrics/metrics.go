// Package metrics exposes this system's observable properties (batch
// cadence, dropped frames, park duration, FFT/demod throughput) as
// Prometheus collectors: one struct holding every GaugeVec/CounterVec/
// HistogramVec, built with promauto so each collector self-registers on
// construction, and a set of narrow Record*/Observe* methods instead of
// exposing the collectors directly to callers.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector this system exports.
type Registry struct {
	fftFramesTotal   prometheus.Counter
	demodFramesTotal prometheus.Counter
	fftDurationSec   prometheus.Histogram

	batchesSentTotal  prometheus.Counter
	batchSizeFrames   prometheus.Histogram
	batchCadenceSec   prometheus.Histogram
	lastBatchUnixTime prometheus.Gauge

	scannerDwellSec  prometheus.Histogram
	scannerParkSec   prometheus.Histogram
	scannerHitsTotal prometheus.Counter
	scannerState     *prometheus.GaugeVec

	fanoutDroppedTotal   *prometheus.CounterVec
	fanoutSubscribers    *prometheus.GaugeVec
	fanoutBroadcastBytes *prometheus.CounterVec

	goroutines prometheus.GaugeFunc
}

// New builds and registers every collector against the default registry.
// Constructing a second Registry in the same process would panic on
// duplicate registration, since promauto registers each collector by
// name against the package-global default registerer.
func New() *Registry {
	r := &Registry{
		fftFramesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sdrcore_fft_frames_total",
			Help: "Total number of IQ frames run through the FFT path.",
		}),
		demodFramesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sdrcore_demod_frames_total",
			Help: "Total number of IQ frames run through a demodulator.",
		}),
		fftDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdrcore_fft_duration_seconds",
			Help:    "Wall time spent computing one FFT, including windowing.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
		batchesSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sdrcore_spectrum_batches_total",
			Help: "Total number of spectrum batches flushed to subscribers.",
		}),
		batchSizeFrames: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdrcore_spectrum_batch_frames",
			Help:    "Number of frames coalesced into one flushed batch.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
		batchCadenceSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdrcore_spectrum_batch_cadence_seconds",
			Help:    "Time between successive batch flushes.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		lastBatchUnixTime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sdrcore_spectrum_last_batch_timestamp",
			Help: "Unix timestamp of the most recent batch flush.",
		}),
		scannerDwellSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdrcore_scanner_dwell_seconds",
			Help:    "Time spent on one sweep step before advancing or parking.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		scannerParkSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdrcore_scanner_park_duration_seconds",
			Help:    "Duration of a completed park, from parkAt to parkExit.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		scannerHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sdrcore_scanner_hits_total",
			Help: "Total number of hits logged by the scanner.",
		}),
		scannerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sdrcore_scanner_state",
			Help: "Current scanner state (1 for the active state, 0 otherwise) by state name.",
		}, []string{"state"}),
		fanoutDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sdrcore_fanout_dropped_total",
			Help: "Total number of messages dropped because a subscriber's queue or byte budget overran.",
		}, []string{"channel"}),
		fanoutSubscribers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sdrcore_fanout_subscribers",
			Help: "Current live subscriber count per channel.",
		}, []string{"channel"}),
		fanoutBroadcastBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sdrcore_fanout_broadcast_bytes_total",
			Help: "Total bytes enqueued for broadcast per channel.",
		}, []string{"channel"}),
	}
	r.goroutines = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sdrcore_goroutines",
		Help: "Current number of goroutines, sampled on scrape.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })
	return r
}

// ObserveFFT records one FFT computation.
func (r *Registry) ObserveFFT(seconds float64) {
	r.fftFramesTotal.Inc()
	r.fftDurationSec.Observe(seconds)
}

// ObserveDemodFrame records one frame run through a demodulator.
func (r *Registry) ObserveDemodFrame() {
	r.demodFramesTotal.Inc()
}

// ObserveBatch records one flushed spectrum batch of the given frame count,
// cadenceSec since the previous flush (zero for the first flush).
func (r *Registry) ObserveBatch(frames int, cadenceSec float64, unixTime int64) {
	r.batchesSentTotal.Inc()
	r.batchSizeFrames.Observe(float64(frames))
	if cadenceSec > 0 {
		r.batchCadenceSec.Observe(cadenceSec)
	}
	r.lastBatchUnixTime.Set(float64(unixTime))
}

// ObserveDwell records time spent on one sweep step.
func (r *Registry) ObserveDwell(seconds float64) {
	r.scannerDwellSec.Observe(seconds)
}

// ObserveParkDuration records the duration of one completed park and
// increments the hit counter.
func (r *Registry) ObserveParkDuration(seconds float64) {
	r.scannerParkSec.Observe(seconds)
	r.scannerHitsTotal.Inc()
}

// SetScannerState marks `state` as the active state and every other known
// state as inactive, always setting the complete label set rather than
// incrementally, so a scrape never sees two states marked active at once.
func (r *Registry) SetScannerState(state string, known []string) {
	for _, s := range known {
		if s == state {
			r.scannerState.WithLabelValues(s).Set(1)
		} else {
			r.scannerState.WithLabelValues(s).Set(0)
		}
	}
}

// RecordFanoutDrop increments the drop counter for a channel.
func (r *Registry) RecordFanoutDrop(channel string) {
	r.fanoutDroppedTotal.WithLabelValues(channel).Inc()
}

// SetFanoutSubscribers reports the current live subscriber count for a
// channel.
func (r *Registry) SetFanoutSubscribers(channel string, count int) {
	r.fanoutSubscribers.WithLabelValues(channel).Set(float64(count))
}

// RecordFanoutBroadcastBytes adds to the broadcast byte counter for a
// channel.
func (r *Registry) RecordFanoutBroadcastBytes(channel string, n int) {
	r.fanoutBroadcastBytes.WithLabelValues(channel).Add(float64(n))
}
