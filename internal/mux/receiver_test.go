package mux

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReceiverDDCShiftsToneToBaseband feeds a complex tone at deltaHz from
// the parent center, i.e. on the receiver's own center, and checks that a
// NFM receiver (whose
// discriminator responds to frequency, not amplitude) settles near zero
// output once filtering has flushed its transient, since a pure tone
// exactly on the receiver's target frequency demodulates to a constant.
func TestReceiverDDCShiftsToneToBaseband(t *testing.T) {
	const parentRate = 256000
	r, err := newReceiver(ReceiverSpec{
		ID:           "r1",
		CenterFreqHz: 100_100_100,
		BandwidthHz:  12500,
		OutputRateHz: 8000,
		Mode:         ModeNFM,
	}, parentRate)
	require.NoError(t, err)

	deltaHz := 100_100.0 // receiver sits 100.1kHz above parent center; not a
	// multiple of the 8kHz output rate, so a sign error in the downconverter
	// would alias to a nonzero tone instead of coincidentally landing on DC
	phase := 0.0
	var lastOut float32
	var gotOutput bool
	for n := 0; n < 20000; n++ {
		phase += 2 * math.Pi * deltaHz / parentRate
		i := math.Cos(phase)
		q := math.Sin(phase)
		if out, ok := r.processSample(i, q, deltaHz, parentRate); ok {
			lastOut = out
			gotOutput = true
		}
	}
	require.True(t, gotOutput)
	assert.Less(t, math.Abs(float64(lastOut)), 0.3, "tone exactly on target should discriminate near zero frequency deviation")
}

func TestReceiverIndependentIQRails(t *testing.T) {
	r, err := newReceiver(ReceiverSpec{
		ID:           "r2",
		CenterFreqHz: 100_000_000,
		BandwidthHz:  12500,
		OutputRateHz: 8000,
		Mode:         ModeAM,
	}, 256000)
	require.NoError(t, err)

	// Feeding asymmetric I/Q must not panic or corrupt either rail; both
	// fir and firQ must be distinct instances.
	assert.NotSame(t, r.fir, r.firQ)
	for n := 0; n < 100; n++ {
		r.processSample(float64(n)*0.001, -float64(n)*0.002, 0, 256000)
	}
}

func TestRegistryOutOfBandRejected(t *testing.T) {
	reg := newRegistry()
	err := reg.add(ReceiverSpec{
		ID:           "far",
		CenterFreqHz: 200_000_000,
		BandwidthHz:  12500,
		OutputRateHz: 8000,
		Mode:         ModeAM,
	}, 100_000_000, 256000)
	assert.ErrorIs(t, err, ErrOutOfBand)
}

func TestRegistryAddRetuneRemove(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.add(ReceiverSpec{
		ID:           "a",
		CenterFreqHz: 100_050_000,
		BandwidthHz:  12500,
		OutputRateHz: 8000,
		Mode:         ModeAM,
	}, 100_000_000, 256000))

	require.NoError(t, reg.retune("a", 100_060_000, 100_000_000))
	assert.Len(t, reg.snapshot(), 1)

	assert.Error(t, reg.retune("missing", 1, 100_000_000))

	reg.remove("a")
	assert.Len(t, reg.snapshot(), 0)
	reg.remove("a") // idempotent
}

func TestJitteredBackoffBounded(t *testing.T) {
	base := 2 * time.Second
	ceiling := 60 * time.Second
	for attempt := 0; attempt < 10; attempt++ {
		d := jitteredBackoff(attempt, base, ceiling)
		assert.LessOrEqual(t, d, ceiling)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}
