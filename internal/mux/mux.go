// Package mux implements the SDR multiplexer: it takes one IQFrame
// stream from internal/rtltcp and produces FFTFrames for the whole band
// plus one narrowband audio stream per VirtualReceiver. Reconnection
// backoff policy lives here rather than in internal/rtltcp, since the
// Multiplexer is the one that decides when a dropped connection warrants
// a reconnect attempt.
package mux

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwsl/sdrcore/internal/dsp"
	"github.com/cwsl/sdrcore/internal/rtltcp"
)

// FFTFrame is the spectrum-path output of one IQFrame.
type FFTFrame struct {
	MagnitudesDB []float32
	CenterFreqHz uint64
	SampleRateHz uint32
	FFTSize      uint32
	NoiseFloorDB float32
	PeakBin      uint32
	PeakDB       float32
}

// Config tunes the Multiplexer's FFT path, device tuning and reconnect
// policy.
type Config struct {
	FFTSize      int
	CenterFreqHz uint64
	SampleRateHz uint32
	GainTenthsDB int32
	BackoffBase  time.Duration
	BackoffCap   time.Duration
}

func (c Config) withDefaults() Config {
	if c.FFTSize == 0 {
		c.FFTSize = 2048
	}
	if c.SampleRateHz == 0 {
		c.SampleRateHz = 2_048_000
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 60 * time.Second
	}
	return c
}

// Multiplexer owns a rtltcp.Client while active and fans its IQFrames out
// to the FFT path and every registered VirtualReceiver.
type Multiplexer struct {
	cfg Config

	client *rtltcp.Client
	addr   string

	registry   *Registry
	noiseFloor *noiseFloorTracker

	onFFT   func(FFTFrame)
	onAudio func(AudioChunk)

	window []float64
	re, im []float64

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
	reconnectTry int
	parentCenter atomic.Uint64
	parentRate   atomic.Uint32

	// targetFreq/targetRate/targetGain hold the tuning this Multiplexer
	// applies on (re)connect; SetTuning updates them and, if a client is
	// already connected, pushes the change live too.
	targetFreq atomic.Uint64
	targetRate atomic.Uint32
	targetGain atomic.Int32

	logger *log.Logger
}

// New constructs a Multiplexer that will dial addr when Start is called.
func New(addr string, cfg Config, onFFT func(FFTFrame), onAudio func(AudioChunk)) *Multiplexer {
	cfg = cfg.withDefaults()
	m := &Multiplexer{
		cfg:        cfg,
		addr:       addr,
		registry:   newRegistry(),
		noiseFloor: newNoiseFloorTracker(),
		onFFT:      onFFT,
		onAudio:    onAudio,
		window:     dsp.BlackmanHarris(cfg.FFTSize),
		re:         make([]float64, cfg.FFTSize),
		im:         make([]float64, cfg.FFTSize),
		logger:     log.New(log.Writer(), "[mux] ", log.LstdFlags),
	}
	m.targetFreq.Store(cfg.CenterFreqHz)
	m.targetRate.Store(cfg.SampleRateHz)
	m.targetGain.Store(cfg.GainTenthsDB)
	return m
}

// AddReceiver validates and registers a new VirtualReceiver.
func (m *Multiplexer) AddReceiver(spec ReceiverSpec) error {
	return m.registry.add(spec, m.parentCenter.Load(), m.parentRate.Load())
}

// RemoveReceiver is idempotent.
func (m *Multiplexer) RemoveReceiver(id string) { m.registry.remove(id) }

// RetuneReceiver adjusts a receiver's NCO target without resetting filter
// state.
func (m *Multiplexer) RetuneReceiver(id string, freqHz uint64) error {
	return m.registry.retune(id, freqHz, m.parentCenter.Load())
}

// SetTuning retunes the device this Multiplexer owns. Any of the four
// pointers may be nil to leave that parameter alone. Changes apply to the
// live rtl_tcp connection immediately if one is up, and are remembered for
// the next (re)connect either way.
func (m *Multiplexer) SetTuning(freqHz *uint64, sampleRateHz *uint32, gainTenthsDB *int32, agc *bool) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client != nil && client.State() != rtltcp.StateStreaming {
		client = nil
	}

	if freqHz != nil {
		m.targetFreq.Store(*freqHz)
		if client != nil {
			if err := client.SetFrequency(*freqHz); err != nil {
				return fmt.Errorf("mux: set frequency: %w", err)
			}
			m.parentCenter.Store(*freqHz)
		}
	}
	if sampleRateHz != nil {
		m.targetRate.Store(*sampleRateHz)
		if client != nil {
			if err := client.SetSampleRate(*sampleRateHz); err != nil {
				return fmt.Errorf("mux: set sample rate: %w", err)
			}
			m.parentRate.Store(*sampleRateHz)
		}
	}
	if gainTenthsDB != nil {
		m.targetGain.Store(*gainTenthsDB)
		if client != nil {
			if err := client.SetGain(*gainTenthsDB); err != nil {
				return fmt.Errorf("mux: set gain: %w", err)
			}
		}
	}
	if agc != nil && client != nil {
		if err := client.SetAGCMode(*agc); err != nil {
			return fmt.Errorf("mux: set agc: %w", err)
		}
	}
	return nil
}

// Start dials the device and begins processing frames until Stop is
// called or ctx is cancelled, reconnecting with exponential backoff on
// disconnect (base 2s, cap 60s, jitter).
func (m *Multiplexer) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop signals the worker loop to exit and waits for it. This call blocks
// until the loop notices stopCh, which it checks at every frame boundary,
// so shutdown is prompt even mid-stream.
func (m *Multiplexer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	client := m.client
	m.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	m.wg.Wait()
}

func (m *Multiplexer) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		disconnected := make(chan struct{})
		client := rtltcp.New(m.addr, rtltcp.WithDisconnectHandler(func(error) { close(disconnected) }))
		m.mu.Lock()
		m.client = client
		m.mu.Unlock()

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		desc, err := client.Connect(cctx)
		cancel()
		if err != nil {
			m.logger.Printf("connect failed: %v", err)
			if !m.sleepBackoff() {
				return
			}
			continue
		}
		m.reconnectTry = 0
		m.logger.Printf("connected: tuner=%s gains=%d", desc.TunerName, desc.GainCount)

		targetRate := m.targetRate.Load()
		targetFreq := m.targetFreq.Load()
		targetGain := m.targetGain.Load()
		if err := client.SetSampleRate(targetRate); err != nil {
			m.logger.Printf("set sample rate failed: %v", err)
		}
		if err := client.SetFrequency(targetFreq); err != nil {
			m.logger.Printf("set frequency failed: %v", err)
		}
		if targetGain != 0 {
			if err := client.SetGain(targetGain); err != nil {
				m.logger.Printf("set gain failed: %v", err)
			}
		}
		m.parentCenter.Store(targetFreq)
		m.parentRate.Store(targetRate)

		frames := client.Stream(ctx)
	consume:
		for {
			select {
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			case f, ok := <-frames:
				if !ok {
					break consume
				}
				m.parentCenter.Store(f.CenterFreqHz)
				m.parentRate.Store(f.SampleRateHz)
				m.processFrame(f)
			}
		}

		select {
		case <-disconnected:
		default:
		}
		if !m.sleepBackoff() {
			return
		}
	}
}

func (m *Multiplexer) sleepBackoff() bool {
	d := jitteredBackoff(m.reconnectTry, m.cfg.BackoffBase, m.cfg.BackoffCap)
	m.reconnectTry++
	select {
	case <-time.After(d):
		return true
	case <-m.stopCh:
		return false
	}
}

// processFrame runs the FFT path once and every VirtualReceiver's DSP
// chain once per frame.
func (m *Multiplexer) processFrame(f rtltcp.IQFrame) {
	m.runFFTPath(f)
	m.runReceivers(f)
}

func (m *Multiplexer) runFFTPath(f rtltcp.IQFrame) {
	n := len(m.re)
	nSamples := len(f.Samples) / 2
	if nSamples < n {
		return
	}
	start := nSamples - n
	for k := 0; k < n; k++ {
		idx := (start + k) * 2
		m.re[k] = float64(f.Samples[idx])
		m.im[k] = float64(f.Samples[idx+1])
	}
	dsp.ApplyWindow(m.re, m.window)
	dsp.ApplyWindow(m.im, m.window)

	if err := dsp.FFTInplace(m.re, m.im); err != nil {
		m.logger.Printf("fft error: %v", err)
		return
	}

	mags := make([]float32, n)
	var peakDB float32 = -300
	var peakBin uint32
	for i := 0; i < n; i++ {
		p := m.re[i]*m.re[i] + m.im[i]*m.im[i]
		db := float32(dsp.PowerDB(math.Sqrt(p + 1e-20)))
		mags[i] = db
		if db > peakDB {
			peakDB = db
			peakBin = uint32(i)
		}
	}
	dsp.FFTShift(mags)
	// peakBin was computed pre-shift; rotate it the same way FFTShift did
	// so it still indexes the shifted buffer.
	peakBin = (peakBin + uint32(n)/2) % uint32(n)
	floor := m.noiseFloor.update(mags)

	if m.onFFT != nil {
		m.onFFT(FFTFrame{
			MagnitudesDB: mags,
			CenterFreqHz: f.CenterFreqHz,
			SampleRateHz: f.SampleRateHz,
			FFTSize:      uint32(n),
			NoiseFloorDB: float32(floor),
			PeakBin:      peakBin,
			PeakDB:       peakDB,
		})
	}
}

func (m *Multiplexer) runReceivers(f rtltcp.IQFrame) {
	recs := m.registry.snapshot()
	if len(recs) == 0 {
		return
	}
	nSamples := len(f.Samples) / 2
	chunks := make(map[string][]float32, len(recs))
	for _, r := range recs {
		deltaHz := float64(int64(r.spec.CenterFreqHz) - int64(f.CenterFreqHz))
		out := make([]float32, 0, nSamples/4)
		for k := 0; k < nSamples; k++ {
			i := float64(f.Samples[k*2])
			q := float64(f.Samples[k*2+1])
			if s, ok := r.processSample(i, q, deltaHz, f.SampleRateHz); ok {
				out = append(out, s)
			}
		}
		chunks[r.spec.ID] = out
	}
	if m.onAudio != nil {
		for id, samples := range chunks {
			m.onAudio(AudioChunk{ReceiverID: id, Samples: samples})
		}
	}
}

