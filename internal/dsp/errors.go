// Package dsp implements the signal-processing kernel: FFT, windowing, FIR
// design/application, NCO generation, discriminators and WAV encoding. All
// functions are pure or operate on caller-owned state buffers so hot paths
// never allocate.
package dsp

import "errors"

// ErrInvalidSize is returned when an FFT is requested at a size that is not
// a power of two.
var ErrInvalidSize = errors.New("dsp: size must be a power of two")

// ErrOddTapsRequired is returned when an FIR design is requested with an
// even tap count.
var ErrOddTapsRequired = errors.New("dsp: num_taps must be odd")
