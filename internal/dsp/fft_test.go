package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func powerOfTwoSize(t *rapid.T) int {
	exp := rapid.IntRange(0, 10).Draw(t, "exp")
	return 1 << exp
}

func TestFFTRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := powerOfTwoSize(t)
		re := make([]float64, n)
		im := make([]float64, n)
		for i := range re {
			re[i] = rapid.Float64Range(-1, 1).Draw(t, "re")
			im[i] = rapid.Float64Range(-1, 1).Draw(t, "im")
		}
		origRe := append([]float64(nil), re...)
		origIm := append([]float64(nil), im...)

		require.NoError(t, FFTInplace(re, im))
		require.NoError(t, IFFTInplace(re, im))

		var errSq float64
		for i := range re {
			dr := re[i] - origRe[i]
			di := im[i] - origIm[i]
			errSq += dr*dr + di*di
		}
		assert.LessOrEqual(t, math.Sqrt(errSq), 1e-6*float64(n)+1e-6)
	})
}

func TestFFTInvalidSize(t *testing.T) {
	re := make([]float64, 3)
	im := make([]float64, 3)
	assert.ErrorIs(t, FFTInplace(re, im), ErrInvalidSize)
}

func TestFFTShiftInvolution(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		exp := rapid.IntRange(1, 10).Draw(t, "exp")
		n := 1 << exp
		buf := make([]float32, n)
		for i := range buf {
			buf[i] = float32(rapid.Float64Range(-100, 100).Draw(t, "v"))
		}
		orig := append([]float32(nil), buf...)
		FFTShift(buf)
		FFTShift(buf)
		assert.Equal(t, orig, buf)
	})
}

func TestBlackmanHarrisDC(t *testing.T) {
	for _, n := range []int{64, 512, 2048, 4096} {
		w := BlackmanHarris(n)
		var sum float64
		for _, v := range w {
			sum += v
		}
		avg := sum / float64(n)
		assert.InDelta(t, bhA0, avg, 1e-2, "n=%d", n)
	}
}

func TestFIRDCGain(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		taps := rapid.IntRange(3, 200).Draw(t, "taps")
		if taps%2 == 0 {
			taps++
		}
		cutoff := rapid.Float64Range(0.01, 0.9).Draw(t, "cutoff")
		fir, err := DesignLowpassFIR(taps, cutoff)
		require.NoError(t, err)
		var sum float64
		for _, v := range fir {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	})
}

func TestFIREvenTapsRejected(t *testing.T) {
	_, err := DesignLowpassFIR(10, 0.2)
	assert.ErrorIs(t, err, ErrOddTapsRequired)
}

func TestNCOUnitMagnitude(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		phase := 0.0
		freq := rapid.Float64Range(-1e6, 1e6).Draw(t, "freq")
		rate := uint32(rapid.IntRange(1000, 10_000_000).Draw(t, "rate"))
		steps := rapid.IntRange(1, 500).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			phase = NCOStep(phase, freq, rate)
			mag := math.Cos(phase)*math.Cos(phase) + math.Sin(phase)*math.Sin(phase)
			assert.InDelta(t, 1.0, mag, 1e-9)
			assert.GreaterOrEqual(t, phase, -math.Pi-1e-9)
			assert.LessOrEqual(t, phase, math.Pi+1e-9)
		}
	})
}

func TestWAVHeaderShape(t *testing.T) {
	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = 0.5
	}
	out := EncodeWAVPCM16(samples, 8000, 1)
	require.Len(t, out, 44+8000*2)
	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, "fmt ", string(out[12:16]))
	assert.Equal(t, "data", string(out[36:40]))
}
