// Package scanner implements a close-call style UHF scanner that sweeps
// configured ranges with priority channels
// interleaved, detects signals via FFT energy against a running
// noise-floor estimate, parks and demodulates, records VOX clips, logs
// hits and respects a lockout set.
package scanner

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwsl/sdrcore/internal/dsp"
	"github.com/cwsl/sdrcore/internal/rtltcp"
	"github.com/cwsl/sdrcore/internal/store"
)

// State is the scanner's operating state.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateParked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateScanning:
		return "SCANNING"
	case StateParked:
		return "PARKED"
	default:
		return "UNKNOWN"
	}
}

// Event is a state-change or hit notification delivered to whatever
// listens on OnEvent (the Main fan-out channel, typically).
type Event struct {
	Type        string  `json:"type"`
	State       string  `json:"state,omitempty"`
	FrequencyHz uint64  `json:"frequency_hz,omitempty"`
	StrengthDB  float64 `json:"strength_db,omitempty"`
	DurationMs  int64   `json:"duration_ms,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// Config configures one Scanner instance.
type Config struct {
	Ranges           []Range
	DwellMs          int
	ThresholdDB      float64
	SquelchTimeoutMs int
	MaxParkMs        int
	SampleRateHz     uint32
	GainTenthsDB     int32
	PriorityInterval int
	FFTSize          int
	RecordingDir     string
	BackoffBase      time.Duration
	BackoffCap       time.Duration
}

func (c Config) withDefaults() Config {
	if c.DwellMs == 0 {
		c.DwellMs = 100
	}
	if c.ThresholdDB == 0 {
		c.ThresholdDB = 10
	}
	if c.SquelchTimeoutMs == 0 {
		c.SquelchTimeoutMs = 3000
	}
	if c.MaxParkMs == 0 {
		c.MaxParkMs = 15000
	}
	if c.SampleRateHz == 0 {
		c.SampleRateHz = 2_048_000
	}
	if c.PriorityInterval == 0 {
		c.PriorityInterval = 3
	}
	if c.FFTSize == 0 {
		c.FFTSize = 2048
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 60 * time.Second
	}
	return c
}

const parkChannelBandwidthHz = 12500
const parkChannelRateHz = 32000
const parkOutputRateHz = 8000

type parkDemod struct {
	taps         []float64
	fir, firQ    *dsp.FIRState
	stage1       *dsp.Decimator
	stage1q      *dsp.Decimator
	stage2       *dsp.Decimator
	stage2q      *dsp.Decimator
	ncoPhase     float64
	prevI, prevQ float64
}

func newParkDemod(sampleRateHz uint32) (*parkDemod, error) {
	cutoff := float64(parkChannelBandwidthHz) / 2 / (float64(sampleRateHz) / 2)
	taps, err := dsp.DesignLowpassFIR(127, cutoff)
	if err != nil {
		return nil, err
	}
	s1 := int(sampleRateHz) / parkChannelRateHz
	if s1 < 1 {
		s1 = 1
	}
	s2 := parkChannelRateHz / parkOutputRateHz
	if s2 < 1 {
		s2 = 1
	}
	return &parkDemod{
		taps:    taps,
		fir:     dsp.NewFIRState(len(taps)),
		firQ:    dsp.NewFIRState(len(taps)),
		stage1:  dsp.NewDecimator(s1),
		stage1q: dsp.NewDecimator(s1),
		stage2:  dsp.NewDecimator(s2),
		stage2q: dsp.NewDecimator(s2),
	}, nil
}

func (d *parkDemod) process(i, q, deltaHz float64, sampleRateHz uint32) (out float64, power float64, ok bool) {
	d.ncoPhase = dsp.NCOStep(d.ncoPhase, deltaHz, sampleRateHz)
	mi, mq := dsp.MixDownconvert(i, q, d.ncoPhase)

	fi := d.fir.Apply(d.taps, mi)
	fq := d.firQ.Apply(d.taps, mq)

	s1, ok1 := d.stage1.Push(fi)
	s1q, ok1q := d.stage1q.Push(fq)
	if !ok1 || !ok1q {
		return 0, 0, false
	}
	s2, ok2 := d.stage2.Push(s1)
	s2q, ok2q := d.stage2q.Push(s1q)
	if !ok2 || !ok2q {
		return 0, 0, false
	}

	power = dsp.PowerDB(math.Hypot(s2, s2q))
	fm := dsp.FMDiscriminate(s2, s2q, d.prevI, d.prevQ)
	d.prevI, d.prevQ = s2, s2q
	return dsp.Clamp(fm), power, true
}

type command struct {
	run  func() error
	done chan error
}

// Scanner owns one rtl_tcp device while active, sweeping per Config and
// persisting state through store.Store.
type Scanner struct {
	cfg  Config
	st   *store.Store
	addr string

	client *rtltcp.Client

	state        atomic.Int32
	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
	reconnectTry int

	cmds chan command

	planner    *priorityPlanner
	noiseFloor *noiseFloorTracker
	lockouts   *lockoutSet
	rec        *recorder

	window         []float64
	re, im         []float64
	lastMagnitudes []float32

	currentCenter uint64
	lastStepAt    time.Time

	parkedFreq   uint64
	parkedAt     time.Time
	lastSignalAt time.Time
	lastPeakDB   float64
	demod        *parkDemod

	onAudio func([]float32)
	onEvent func(Event)

	logger *log.Logger
}

// New constructs a Scanner bound to st for persistence. onAudio receives
// demodulated audio chunks while PARKED; onEvent receives state changes
// and hit notifications.
func New(addr string, cfg Config, st *store.Store, onAudio func([]float32), onEvent func(Event)) *Scanner {
	cfg = cfg.withDefaults()
	steps := buildSweepSteps(cfg.Ranges, cfg.SampleRateHz)
	s := &Scanner{
		cfg:            cfg,
		st:             st,
		addr:           addr,
		cmds:           make(chan command),
		planner:        newPriorityPlanner(steps, cfg.PriorityInterval),
		noiseFloor:     newNoiseFloorTracker(),
		lockouts:       newLockoutSet(),
		rec:            newRecorder(cfg.RecordingDir),
		window:         dsp.BlackmanHarris(cfg.FFTSize),
		re:             make([]float64, cfg.FFTSize),
		im:             make([]float64, cfg.FFTSize),
		lastMagnitudes: make([]float32, cfg.FFTSize),
		onAudio:        onAudio,
		onEvent:        onEvent,
		logger:         log.New(log.Writer(), "[scanner] ", log.LstdFlags),
	}
	s.state.Store(int32(StateIdle))
	if entries, err := st.ListLockouts(); err == nil {
		s.lockouts.reload(entries)
	}
	return s
}

// State returns the scanner's current operating state.
func (s *Scanner) State() State { return State(s.state.Load()) }

func (s *Scanner) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

// Start dials the device and begins sweeping until Stop is called or ctx
// is cancelled.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the scanner's worker loop to exit and waits for it.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	if s.client != nil {
		s.client.Disconnect()
	}
	s.wg.Wait()
	s.state.Store(int32(StateIdle))
}

func (s *Scanner) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		disconnected := make(chan struct{})
		client := rtltcp.New(s.addr, rtltcp.WithDisconnectHandler(func(error) { close(disconnected) }))
		s.client = client

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := client.Connect(cctx)
		cancel()
		if err != nil {
			s.logger.Printf("connect failed: %v", err)
			if !s.sleepBackoff() {
				return
			}
			continue
		}
		s.reconnectTry = 0

		client.SetSampleRate(s.cfg.SampleRateHz)
		if s.cfg.GainTenthsDB != 0 {
			client.SetGain(s.cfg.GainTenthsDB)
		}

		s.state.Store(int32(StateScanning))
		s.emit(Event{Type: "scanner_state", State: StateScanning.String()})
		s.advanceStep()

		frames := client.Stream(ctx)
	consume:
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case cmd := <-s.cmds:
				cmd.done <- cmd.run()
			case f, ok := <-frames:
				if !ok {
					break consume
				}
				s.processFrame(f)
			}
		}

		select {
		case <-disconnected:
		default:
		}
		s.state.Store(int32(StateIdle))
		if !s.sleepBackoff() {
			return
		}
	}
}

func (s *Scanner) sleepBackoff() bool {
	d := jitteredBackoff(s.reconnectTry, s.cfg.BackoffBase, s.cfg.BackoffCap)
	s.reconnectTry++
	select {
	case <-time.After(d):
		return true
	case <-s.stopCh:
		return false
	}
}

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

func (s *Scanner) processFrame(f rtltcp.IQFrame) {
	s.currentCenter = f.CenterFreqHz
	switch State(s.state.Load()) {
	case StateScanning:
		s.processScanningFrame(f)
	case StateParked:
		s.processParkedFrame(f)
	}
}

// runFFT windows and transforms the trailing FFTSize samples of f,
// recording per-bin magnitudes in dB into s.lastMagnitudes and returning
// the peak bin (post-shift) and its magnitude.
func (s *Scanner) runFFT(f rtltcp.IQFrame) (peakBin uint32, peakDB float64, ok bool) {
	n := len(s.re)
	nSamples := len(f.Samples) / 2
	if nSamples < n {
		return 0, 0, false
	}
	start := nSamples - n
	for k := 0; k < n; k++ {
		idx := (start + k) * 2
		s.re[k] = float64(f.Samples[idx])
		s.im[k] = float64(f.Samples[idx+1])
	}
	dsp.ApplyWindow(s.re, s.window)
	dsp.ApplyWindow(s.im, s.window)

	if err := dsp.FFTInplace(s.re, s.im); err != nil {
		s.logger.Printf("fft error: %v", err)
		return 0, 0, false
	}

	var best float32 = -300
	var bestBin uint32
	for i := 0; i < n; i++ {
		p := s.re[i]*s.re[i] + s.im[i]*s.im[i]
		db := float32(dsp.PowerDB(math.Sqrt(p + 1e-20)))
		s.lastMagnitudes[i] = db
		if db > best {
			best = db
			bestBin = uint32(i)
		}
	}
	dsp.FFTShift(s.lastMagnitudes)
	bestBin = (bestBin + uint32(n)/2) % uint32(n)
	return bestBin, float64(best), true
}

func (s *Scanner) processScanningFrame(f rtltcp.IQFrame) {
	peakBin, peakDB, ok := s.runFFT(f)
	if !ok {
		return
	}
	floor := s.noiseFloor.update(s.currentCenter, s.lastMagnitudes)

	peakFreq := peakFrequency(f.CenterFreqHz, f.SampleRateHz, uint32(len(s.re)), peakBin)
	if peakDB > floor+s.cfg.ThresholdDB && !s.lockouts.isLocked(peakFreq) {
		s.parkAt(peakFreq, peakDB)
		return
	}

	if time.Since(s.lastStepAt) >= time.Duration(s.cfg.DwellMs)*time.Millisecond {
		s.advanceStep()
	}
}

func (s *Scanner) processParkedFrame(f rtltcp.IQFrame) {
	if s.demod == nil {
		return
	}
	deltaHz := float64(int64(s.parkedFreq) - int64(s.currentCenter))
	nSamples := len(f.Samples) / 2
	audio := make([]float32, 0, nSamples/4)
	sawSignal := false
	for k := 0; k < nSamples; k++ {
		i := float64(f.Samples[k*2])
		q := float64(f.Samples[k*2+1])
		out, power, ok := s.demod.process(i, q, deltaHz, f.SampleRateHz)
		if !ok {
			continue
		}
		audio = append(audio, float32(out))
		if floor, ok := s.noiseFloor.get(s.currentCenter); ok && power > floor+s.cfg.ThresholdDB {
			sawSignal = true
		}
	}
	if sawSignal {
		s.lastSignalAt = time.Now()
	}
	if len(audio) > 0 {
		s.rec.append(audio)
		if s.onAudio != nil {
			s.onAudio(audio)
		}
	}

	if time.Since(s.lastSignalAt) > time.Duration(s.cfg.SquelchTimeoutMs)*time.Millisecond {
		s.parkExit("squelch")
		return
	}
	if time.Since(s.parkedAt) > time.Duration(s.cfg.MaxParkMs)*time.Millisecond {
		s.parkExit("max_park")
	}
}

func peakFrequency(centerHz uint64, sampleRateHz uint32, fftSize uint32, peakBin uint32) uint64 {
	offset := int64(peakBin)*int64(sampleRateHz)/int64(fftSize) - int64(sampleRateHz)/2
	return uint64(int64(centerHz) + offset)
}

func (s *Scanner) advanceStep() {
	channels, _ := s.st.ListChannels()
	next := s.planner.next(channels)
	if next == 0 {
		return
	}
	s.currentCenter = next
	if s.client != nil {
		s.client.SetFrequency(next)
	}
	s.lastStepAt = time.Now()
}

func (s *Scanner) parkAt(freqHz uint64, peakDB float64) {
	demod, err := newParkDemod(s.cfg.SampleRateHz)
	if err != nil {
		s.logger.Printf("park demod init failed: %v", err)
		return
	}
	s.demod = demod
	s.parkedFreq = freqHz
	s.parkedAt = time.Now()
	s.lastSignalAt = s.parkedAt
	s.lastPeakDB = peakDB
	s.rec.reset()
	s.state.Store(int32(StateParked))
	s.emit(Event{Type: "scanner_state", State: StateParked.String(), FrequencyHz: freqHz, StrengthDB: peakDB})
}

// parkExit finalizes the current park, logs a hit, persists a VOX clip if
// long enough, and resumes scanning.
func (s *Scanner) parkExit(reason string) {
	now := time.Now()
	duration := now.Sub(s.parkedAt)

	var channelID *int64
	var channelLabel string
	if channels, err := s.st.ListChannels(); err == nil {
		for _, c := range channels {
			if roundTo1kHz(c.Frequency) == roundTo1kHz(s.parkedFreq) {
				id := c.ID
				channelID = &id
				channelLabel = c.Label
				break
			}
		}
	}

	hitID, err := s.st.InsertHit(store.Hit{
		TS:         now.Unix(),
		Frequency:  s.parkedFreq,
		StrengthDB: s.lastPeakDB,
		DurationMs: duration.Milliseconds(),
		ChannelID:  channelID,
	})
	if err != nil {
		s.logger.Printf("insert hit failed: %v", err)
	}

	if err == nil && s.rec.long() {
		if path, perr := s.rec.flush(s.parkedFreq, channelLabel, now); perr == nil && path != "" {
			if uerr := s.st.UpdateHitAudioPath(hitID, path); uerr != nil {
				s.logger.Printf("update hit audio path failed: %v", uerr)
			}
		} else if perr != nil {
			s.logger.Printf("recording flush failed: %v", perr)
		}
	}

	s.emit(Event{Type: "scanner_hit", FrequencyHz: s.parkedFreq, StrengthDB: s.lastPeakDB, DurationMs: duration.Milliseconds(), Reason: reason})

	s.demod = nil
	s.state.Store(int32(StateScanning))
	s.emit(Event{Type: "scanner_state", State: StateScanning.String()})
	if reason != "stopped" {
		s.advanceStep()
	}
}

// sendCommand runs fn serialized with frame processing inside the
// scanner's owning goroutine, so external commands never race a
// state transition mid-frame.
func (s *Scanner) sendCommand(fn func() error) error {
	done := make(chan error, 1)
	select {
	case s.cmds <- command{run: fn, done: done}:
		return <-done
	case <-time.After(2 * time.Second):
		return fmt.Errorf("scanner: command timed out, scanner not running")
	}
}

// Lock forces a transition to PARKED on freqHz, idempotent if already
// parked there.
func (s *Scanner) Lock(freqHz uint64) error {
	return s.sendCommand(func() error {
		if State(s.state.Load()) == StateParked && roundTo1kHz(s.parkedFreq) == roundTo1kHz(freqHz) {
			return nil
		}
		if State(s.state.Load()) == StateParked {
			s.parkExit("relocked")
		}
		span := int64(s.cfg.SampleRateHz) / 2
		if d := int64(freqHz) - int64(s.currentCenter); d < -span || d > span {
			s.currentCenter = freqHz
			if s.client != nil {
				s.client.SetFrequency(freqHz)
			}
		}
		floor, _ := s.noiseFloor.get(s.currentCenter)
		s.parkAt(freqHz, floor+s.cfg.ThresholdDB)
		return nil
	})
}

// Unlock returns to SCANNING if currently PARKED; idempotent.
func (s *Scanner) Unlock() error {
	return s.sendCommand(func() error {
		if State(s.state.Load()) != StateParked {
			return nil
		}
		s.parkExit("unlock")
		return nil
	})
}

// LockoutCurrent adds the parked frequency to the lockout set and resumes
// scanning. Only valid while PARKED.
func (s *Scanner) LockoutCurrent() error {
	return s.sendCommand(func() error {
		if State(s.state.Load()) != StateParked {
			return fmt.Errorf("scanner: lockout_current requires PARKED state")
		}
		freq := s.parkedFreq
		if err := s.st.AddLockout(freq, "lockout_current"); err != nil {
			return err
		}
		s.lockouts.add(freq, 0)
		s.parkExit("lockout")
		return nil
	})
}

// SetTuning adjusts live device parameters without disturbing the sweep
// or park state machine. Any of the four pointers may be nil to leave
// that parameter alone. Sample-rate and gain changes are also
// remembered so the next reconnect or parkAt reapplies them; a frequency
// change holds only until the sweep's next step or a park retunes.
func (s *Scanner) SetTuning(freqHz *uint64, sampleRateHz *uint32, gainTenthsDB *int32, agc *bool) error {
	return s.sendCommand(func() error {
		if freqHz != nil {
			s.currentCenter = *freqHz
			if s.client != nil {
				if err := s.client.SetFrequency(*freqHz); err != nil {
					return fmt.Errorf("scanner: set frequency: %w", err)
				}
			}
		}
		if sampleRateHz != nil {
			s.cfg.SampleRateHz = *sampleRateHz
			if s.client != nil {
				if err := s.client.SetSampleRate(*sampleRateHz); err != nil {
					return fmt.Errorf("scanner: set sample rate: %w", err)
				}
			}
		}
		if gainTenthsDB != nil {
			s.cfg.GainTenthsDB = *gainTenthsDB
			if s.client != nil {
				if err := s.client.SetGain(*gainTenthsDB); err != nil {
					return fmt.Errorf("scanner: set gain: %w", err)
				}
			}
		}
		if agc != nil && s.client != nil {
			if err := s.client.SetAGCMode(*agc); err != nil {
				return fmt.Errorf("scanner: set agc: %w", err)
			}
		}
		return nil
	})
}
