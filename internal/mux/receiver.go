package mux

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cwsl/sdrcore/internal/dsp"
)

// Mode is a VirtualReceiver's demodulation mode.
type Mode string

const (
	ModeNFM Mode = "NFM"
	ModeWFM Mode = "WFM"
	ModeAM  Mode = "AM"
	ModeUSB Mode = "USB"
	ModeLSB Mode = "LSB"
)

// ReceiverSpec describes a VirtualReceiver to be created.
type ReceiverSpec struct {
	ID             string
	CenterFreqHz   uint64
	BandwidthHz    uint32
	OutputRateHz   uint32
	Mode           Mode
	DecoderTag     string
	DeemphasisUs   float64 // WFM only; defaults to 75us, the North American broadcast constant
}

// AudioChunk is one receiver's demodulated output for a single IQFrame.
type AudioChunk struct {
	ReceiverID string
	Samples    []float32
}

// receiver holds a VirtualReceiver's live DSP state: NCO phase, FIR
// history, decimator counters and demodulator state, all caller-owned so
// the per-frame path never allocates.
type receiver struct {
	spec ReceiverSpec

	taps []float64
	fir  *dsp.FIRState // I-rail channel filter state
	firQ *dsp.FIRState // Q-rail channel filter state

	stage1  *dsp.Decimator
	stage1q *dsp.Decimator
	stage2  *dsp.Decimator
	stage2q *dsp.Decimator

	ncoPhase float64

	prevI, prevQ float64
	deemph       *dsp.Deemphasis
	sideband     *dsp.SidebandMixer

	gain float64
}

const defaultAudioGain = 5.0
const channelRateHz = 32000

func newReceiver(spec ReceiverSpec, parentRateHz uint32) (*receiver, error) {
	if spec.OutputRateHz == 0 {
		spec.OutputRateHz = 8000
	}
	cutoff := float64(spec.BandwidthHz) / 2 / (float64(parentRateHz) / 2)
	if cutoff <= 0 || cutoff >= 1 {
		return nil, fmt.Errorf("receiver %s: bandwidth produces invalid cutoff %.4f", spec.ID, cutoff)
	}
	taps, err := dsp.DesignLowpassFIR(127, cutoff)
	if err != nil {
		return nil, err
	}

	stage1Factor := int(parentRateHz) / channelRateHz
	if stage1Factor < 1 {
		stage1Factor = 1
	}
	stage2Factor := channelRateHz / int(spec.OutputRateHz)
	if stage2Factor < 1 {
		stage2Factor = 1
	}

	r := &receiver{
		spec:    spec,
		taps:    taps,
		fir:     dsp.NewFIRState(len(taps)),
		firQ:    dsp.NewFIRState(len(taps)),
		stage1:  dsp.NewDecimator(stage1Factor),
		stage1q: dsp.NewDecimator(stage1Factor),
		stage2:  dsp.NewDecimator(stage2Factor),
		stage2q: dsp.NewDecimator(stage2Factor),
		gain:    defaultAudioGain,
	}
	if spec.Mode == ModeWFM {
		tau := spec.DeemphasisUs
		if tau <= 0 {
			tau = 75
		}
		r.deemph = dsp.NewDeemphasis(tau*1e-6, float64(spec.OutputRateHz))
	}
	if spec.Mode == ModeUSB || spec.Mode == ModeLSB {
		r.sideband = dsp.NewSidebandMixer(spec.Mode == ModeUSB)
	}
	return r, nil
}

// processSample runs one complex IQ sample through DDC, channel filter,
// two-stage decimation and demodulation. deltaHz is receiver.center -
// parent.center, recomputed by the caller whenever either changes. It
// returns an output sample and ok=true only on decimator output cycles.
func (r *receiver) processSample(i, q float64, deltaHz float64, parentRateHz uint32) (float32, bool) {
	r.ncoPhase = dsp.NCOStep(r.ncoPhase, deltaHz, parentRateHz)
	mi, mq := dsp.MixDownconvert(i, q, r.ncoPhase)

	fi := r.fir.Apply(r.taps, mi)
	fq := r.firQ.Apply(r.taps, mq)

	s1, ok := r.stage1.Push(fi)
	if !ok {
		return 0, false
	}
	s1q, ok := r.stage1q.Push(fq)
	if !ok {
		return 0, false
	}
	s2, ok := r.stage2.Push(s1)
	if !ok {
		return 0, false
	}
	s2q, ok := r.stage2q.Push(s1q)
	if !ok {
		return 0, false
	}
	mi, mq = s2, s2q

	var out float64
	switch r.spec.Mode {
	case ModeNFM, ModeWFM:
		out = dsp.FMDiscriminate(mi, mq, r.prevI, r.prevQ)
		if r.deemph != nil {
			out = r.deemph.Apply(out)
		}
	case ModeAM:
		out = dsp.AMEnvelope(mi, mq)
	case ModeUSB, ModeLSB:
		out = r.sideband.Demodulate(mi, mq)
	default:
		out = dsp.AMEnvelope(mi, mq)
	}
	r.prevI, r.prevQ = mi, mq

	out = dsp.Clamp(out * r.gain)
	return float32(out), true
}

// Registry holds the live set of VirtualReceivers for one Multiplexer,
// guarded by a lock for membership changes; the per-frame processing path
// takes a snapshot and runs lock-free, so a slow or busy receiver never
// blocks registration of another.
type Registry struct {
	mu   sync.RWMutex
	recs map[string]*receiver
}

func newRegistry() *Registry {
	return &Registry{recs: make(map[string]*receiver)}
}

// ErrOutOfBand is returned when a receiver's passband would fall outside
// the parent stream's Nyquist range.
var ErrOutOfBand = fmt.Errorf("mux: receiver out of band")

func (reg *Registry) add(spec ReceiverSpec, parentCenterHz uint64, parentRateHz uint32) error {
	offset := int64(spec.CenterFreqHz) - int64(parentCenterHz)
	if offset < 0 {
		offset = -offset
	}
	if uint64(offset)+uint64(spec.BandwidthHz)/2 > uint64(parentRateHz)/2 {
		return ErrOutOfBand
	}
	r, err := newReceiver(spec, parentRateHz)
	if err != nil {
		return err
	}
	reg.mu.Lock()
	reg.recs[spec.ID] = r
	reg.mu.Unlock()
	return nil
}

// remove is idempotent: removing an unknown ID is not an error.
func (reg *Registry) remove(id string) {
	reg.mu.Lock()
	delete(reg.recs, id)
	reg.mu.Unlock()
}

// retune adjusts a receiver's NCO target frequency without resetting its
// FIR/decimator state.
func (reg *Registry) retune(id string, freqHz uint64, parentCenterHz uint64) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.recs[id]
	if !ok {
		return fmt.Errorf("mux: unknown receiver %q", id)
	}
	r.spec.CenterFreqHz = freqHz
	return nil
}

func (reg *Registry) snapshot() []*receiver {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*receiver, 0, len(reg.recs))
	for _, r := range reg.recs {
		out = append(out, r)
	}
	return out
}

// jitteredBackoff returns the next backoff duration for reconnection,
// exponential with base 2s, capped at 60s, with +-jitter.
func jitteredBackoff(attempt int, base, ceiling time.Duration) time.Duration {
	d := base << attempt
	if d > ceiling || d <= 0 {
		d = ceiling
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	out := d - d/8 + jitter
	if out > ceiling {
		out = ceiling
	}
	return out
}
