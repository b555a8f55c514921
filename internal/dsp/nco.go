package dsp

import "math"

// NCOStep advances phase by 2*pi*freqHz/sampleRateHz and wraps the result
// into (-pi, pi]. A numerically-controlled-oscillator phase accumulator
// underlies every digital down-conversion in the Multiplexer and Scanner.
func NCOStep(phase, freqHz float64, sampleRateHz uint32) float64 {
	phase += 2 * math.Pi * freqHz / float64(sampleRateHz)
	return WrapPhase(phase)
}

// WrapPhase wraps an arbitrary phase into (-pi, pi].
func WrapPhase(phase float64) float64 {
	phase = math.Mod(phase+math.Pi, 2*math.Pi)
	if phase <= 0 {
		phase += 2 * math.Pi
	}
	return phase - math.Pi
}

// MixSample returns the complex product of (i, q) with the NCO's unit
// carrier at the given phase: (i+jq) * (cos(phase) + j*sin(phase)).
func MixSample(i, q, phase float64) (float64, float64) {
	c, s := math.Cos(phase), math.Sin(phase)
	return i*c - q*s, i*s + q*c
}

// MixDownconvert returns the complex product of (i, q) with the
// conjugate of the NCO's unit carrier at the given phase: (i+jq) *
// (cos(phase) - j*sin(phase)). Downconverting a tone to baseband means
// cancelling its phase, which takes the conjugate carrier rather than
// MixSample's same-sign multiply.
func MixDownconvert(i, q, phase float64) (float64, float64) {
	c, s := math.Cos(phase), math.Sin(phase)
	return i*c + q*s, q*c - i*s
}
