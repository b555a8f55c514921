package dsp

// Decimator drops all but every Nth sample of a filtered stream. Each
// VirtualReceiver chains two instances per rail (I and Q): a first stage
// to ~32 kHz and a second stage down to the receiver's output_rate_hz,
// fed by that rail's own FIR output.
type Decimator struct {
	factor  int
	counter int
}

// NewDecimator builds a decimator that keeps one sample out of every
// factor. factor must be >= 1.
func NewDecimator(factor int) *Decimator {
	if factor < 1 {
		factor = 1
	}
	return &Decimator{factor: factor}
}

// Push feeds one filtered sample through the decimator. ok is true when
// this call produced an output sample (the counter rolled over).
func (d *Decimator) Push(sample float64) (out float64, ok bool) {
	d.counter++
	if d.counter >= d.factor {
		d.counter = 0
		return sample, true
	}
	return 0, false
}
