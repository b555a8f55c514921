// Package spectrum implements the Spectrum Batcher: it accumulates
// FFTFrame magnitude payloads and flushes a binary batch at display
// cadence rather than one WebSocket message per FFT frame. The flush is
// event-driven, evaluated on each arriving frame, to avoid the jitter a
// free-running ticker would add on top of the frame arrival cadence. The
// accumulation strategy mirrors the rolling-buffer bookkeeping in
// noise_floor.go's FFTBuffer, adapted from a time-windowed retention ring
// to a flush-on-deadline accumulator.
package spectrum

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"time"
)

// Frame is one FFTFrame's worth of magnitude data queued for the next
// flush.
type Frame struct {
	MagnitudesDB []float32
	CenterFreqHz uint64
	SampleRateHz uint32
	FFTSize      uint32
	NoiseFloorDB float32
	PeakBin      uint32
	PeakDB       float32
}

// Meta is the JSON sidecar emitted at most once per second, describing
// the band and FFT parameters the accompanying binary batches were
// computed with.
type Meta struct {
	Type         string `json:"type"`
	CenterFreqHz uint64 `json:"center_freq_hz"`
	SampleRateHz uint32 `json:"sample_rate_hz"`
	FFTSize      uint32 `json:"fft_size"`
}

const defaultFlushInterval = 8 * time.Millisecond
const defaultMetaInterval = time.Second

// Batcher accumulates Frame payloads and flushes them as one binary batch
// once flushInterval has elapsed since the last flush. It is not safe for
// concurrent Push calls: it is meant to be driven from a single DSP
// worker goroutine.
type Batcher struct {
	flushInterval time.Duration
	metaInterval  time.Duration

	lastFlush time.Time
	lastMeta  time.Time

	pending []Frame

	onBatch func(batch []byte)
	onMeta  func(meta Meta)
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithFlushInterval overrides the default 8ms flush cadence.
func WithFlushInterval(d time.Duration) Option {
	return func(b *Batcher) { b.flushInterval = d }
}

// WithMetaInterval overrides the default 1s meta cadence.
func WithMetaInterval(d time.Duration) Option {
	return func(b *Batcher) { b.metaInterval = d }
}

// New constructs a Batcher. onBatch receives the encoded binary batch;
// onMeta receives the fft_meta JSON record, at most once per
// metaInterval.
func New(onBatch func([]byte), onMeta func(Meta), opts ...Option) *Batcher {
	b := &Batcher{
		flushInterval: defaultFlushInterval,
		metaInterval:  defaultMetaInterval,
		onBatch:       onBatch,
		onMeta:        onMeta,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push adds one FFTFrame to the pending batch and flushes (and, at most
// once per metaInterval, emits meta) if the flush deadline has passed.
// Called once per arriving FFTFrame; the flush check itself is what
// makes this event-driven instead of timer-driven.
func (b *Batcher) Push(f Frame) {
	now := time.Now()
	if b.lastFlush.IsZero() {
		b.lastFlush = now
	}
	if b.lastMeta.IsZero() || now.Sub(b.lastMeta) >= b.metaInterval {
		b.lastMeta = now
		if b.onMeta != nil {
			b.onMeta(Meta{
				Type:         "fft_meta",
				CenterFreqHz: f.CenterFreqHz,
				SampleRateHz: f.SampleRateHz,
				FFTSize:      f.FFTSize,
			})
		}
	}

	b.pending = append(b.pending, f)

	if now.Sub(b.lastFlush) >= b.flushInterval {
		b.flush(now)
	}
}

// flush encodes the pending frames into one binary batch:
// [count:u32 LE][payload_1]...[payload_count], each payload fft_size*4
// bytes of f32 LE magnitudes.
func (b *Batcher) flush(now time.Time) {
	if len(b.pending) == 0 {
		b.lastFlush = now
		return
	}

	total := 4
	for _, f := range b.pending {
		total += len(f.MagnitudesDB) * 4
	}
	out := make([]byte, total)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(b.pending)))
	offset := 4
	for _, f := range b.pending {
		for _, mag := range f.MagnitudesDB {
			binary.LittleEndian.PutUint32(out[offset:offset+4], float32bits(mag))
			offset += 4
		}
	}

	if b.onBatch != nil {
		b.onBatch(out)
	}

	b.pending = b.pending[:0]
	b.lastFlush = now
}

// Flush forces an immediate flush regardless of the deadline, used on
// shutdown so no trailing frames are lost.
func (b *Batcher) Flush() {
	b.flush(time.Now())
}

// MarshalMeta is a small helper so callers that deliver Meta over the
// Fan-out Plane's JSON path don't need to import encoding/json themselves.
func MarshalMeta(m Meta) ([]byte, error) {
	return json.Marshal(m)
}

func float32bits(f float32) uint32 {
	return math.Float32bits(f)
}
