package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPowerDBFloor(t *testing.T) {
	assert.InDelta(t, 20*math.Log10(1e-10), PowerDB(0), 1e-9)
	assert.InDelta(t, 0.0, PowerDB(1.0), 1e-9)
}

func TestAMEnvelope(t *testing.T) {
	assert.InDelta(t, 5.0, AMEnvelope(3, 4), 1e-9)
}

func TestFMDiscriminateZeroShift(t *testing.T) {
	// Identical consecutive samples carry no instantaneous frequency.
	assert.InDelta(t, 0.0, FMDiscriminate(1, 0, 1, 0), 1e-9)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(3.5))
	assert.Equal(t, -1.0, Clamp(-3.5))
	assert.Equal(t, 0.25, Clamp(0.25))
}

func TestDeemphasisConverges(t *testing.T) {
	d := NewDeemphasis(75e-6, 32000)
	var out float64
	for i := 0; i < 10000; i++ {
		out = d.Apply(1.0)
	}
	assert.InDelta(t, 1.0, out, 1e-3)
}

func TestDecimatorRatio(t *testing.T) {
	dec := NewDecimator(4)
	produced := 0
	for i := 0; i < 100; i++ {
		if _, ok := dec.Push(float64(i)); ok {
			produced++
		}
	}
	assert.Equal(t, 25, produced)
}
