package dsp

import "math"

// PowerDB returns 20*log10(max(magnitude, 1e-10)), the dB conversion used
// throughout the spectrum and detection paths.
func PowerDB(magnitude float64) float64 {
	if magnitude < 1e-10 {
		magnitude = 1e-10
	}
	return 20 * math.Log10(magnitude)
}

// FMDiscriminate returns the instantaneous-frequency estimate between the
// current (i, q) sample and the previous one, normalized to (-1, 1] by
// dividing by pi.
func FMDiscriminate(i, q, prevI, prevQ float64) float64 {
	return math.Atan2(q*prevI-i*prevQ, i*prevI+q*prevQ) / math.Pi
}

// AMEnvelope returns the instantaneous magnitude sqrt(i^2 + q^2).
func AMEnvelope(i, q float64) float64 {
	return math.Hypot(i, q)
}

// Deemphasis is a single-pole IIR de-emphasis filter used by WFM, with time
// constant tau (seconds) at the given sample rate.
type Deemphasis struct {
	alpha float64
	prev  float64
}

// NewDeemphasis builds a de-emphasis filter for time constant tauSeconds at
// sampleRateHz. WFM defaults to the 75us North American constant; the
// 50us constant some other regions use is supported by constructing a
// second instance with that value.
func NewDeemphasis(tauSeconds float64, sampleRateHz float64) *Deemphasis {
	dt := 1.0 / sampleRateHz
	alpha := dt / (tauSeconds + dt)
	return &Deemphasis{alpha: alpha}
}

// Apply runs one sample through the filter.
func (d *Deemphasis) Apply(sample float64) float64 {
	d.prev += d.alpha * (sample - d.prev)
	return d.prev
}

// SidebandMixer implements the Weaver-style USB/LSB demodulator: complex
// multiply by a +-pi/2 carrier, then take the real part. upper selects USB
// (true) vs LSB (false).
type SidebandMixer struct {
	phase float64
	upper bool
}

// NewSidebandMixer constructs a sideband demodulator for USB (upper=true)
// or LSB (upper=false).
func NewSidebandMixer(upper bool) *SidebandMixer {
	return &SidebandMixer{upper: upper}
}

// Demodulate mixes one complex sample against a quarter-cycle-per-sample
// carrier and returns the real output.
func (m *SidebandMixer) Demodulate(i, q float64) float64 {
	step := math.Pi / 2
	if !m.upper {
		step = -step
	}
	mi, mq := MixSample(i, q, m.phase)
	m.phase = WrapPhase(m.phase + step)
	return mi
}

// Clamp restricts v to [-1, 1].
func Clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
