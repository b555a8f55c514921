// Package rtltcp implements the client side of the rtl_tcp wire protocol:
// the opening handshake, uint8->f32 IQ normalization, and 5-byte command
// framing. It owns exactly one TCP connection per Client and never
// retries on its own; reconnection policy belongs to whatever component
// (the multiplexer) decides to take ownership of the device next.
package rtltcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// State is the Transport connection state machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateStreaming:
		return "STREAMING"
	default:
		return "UNKNOWN"
	}
}

// Opcode enumerates the recognised rtl_tcp command bytes.
type Opcode byte

const (
	OpSetFrequency     Opcode = 0x01
	OpSetSampleRate    Opcode = 0x02
	OpSetGainMode      Opcode = 0x03
	OpSetGain          Opcode = 0x04
	OpSetFreqCorr      Opcode = 0x05
	OpSetIFGain        Opcode = 0x06
	OpSetAGCMode       Opcode = 0x08
	OpSetDirectSampling Opcode = 0x09
	OpSetOffsetTuning  Opcode = 0x0a
	OpSetBiasTee       Opcode = 0x0e
)

const (
	handshakeMagic = "RTL0"
	handshakeLen   = 12
	defaultTimeout = 10 * time.Second
	defaultChunk   = 4096 // complex samples per emitted IQFrame
)

// Descriptor is returned by Connect on success.
type Descriptor struct {
	TunerTypeID   uint32
	TunerName     string
	GainCount     uint32
	AppliedConfig AppliedConfig
}

// AppliedConfig tracks the device configuration this Transport believes is
// in effect, updated optimistically by the Set* calls.
type AppliedConfig struct {
	mu             sync.RWMutex
	SampleRateHz   uint32
	CenterFreqHz   uint64
	GainTenthsDB   int32
	ManualGain     bool
}

func (c *AppliedConfig) snapshot() AppliedConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return AppliedConfig{
		SampleRateHz: c.SampleRateHz,
		CenterFreqHz: c.CenterFreqHz,
		GainTenthsDB: c.GainTenthsDB,
		ManualGain:   c.ManualGain,
	}
}

// IQFrame is a whole chunk of normalized interleaved I,Q samples with the
// metadata in effect when the chunk was captured.
type IQFrame struct {
	Samples      []float32 // interleaved I,Q,I,Q...
	SampleRateHz uint32
	CenterFreqHz uint64
	Seq          uint64
	WallTSMs     uint64
}

// ConnectionError is the taxonomy member for every Transport failure; the
// Kind is always one of the four constants below.
type ConnectionError struct {
	Kind string
	Err  error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("rtltcp: %s: %v", e.Kind, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

const (
	KindConnectRefused = "CONNECT_REFUSED"
	KindTimeout        = "TIMEOUT"
	KindHandshakeFail  = "HANDSHAKE_FAIL"
	KindIOError        = "IO_ERROR"
)

func connErr(kind string, err error) error {
	return &ConnectionError{Kind: kind, Err: err}
}

// tunerNames maps rtl_tcp's tuner-type-id to a human name, the values
// rtl_tcp itself has used historically.
var tunerNames = map[uint32]string{
	1: "E4000",
	2: "FC0012",
	3: "FC0013",
	4: "FC2580",
	5: "R820T",
	6: "R828D",
}

// Client is a single rtl_tcp connection. Not safe for concurrent Connect
// calls; Disconnect/SetXxx may be called concurrently with the reader.
type Client struct {
	addr    string
	timeout time.Duration

	mu    sync.Mutex
	conn  net.Conn
	state atomic.Int32

	applied AppliedConfig

	seq uint64

	disconnectOnce sync.Once
	onDisconnected func(error)

	logger *log.Logger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithTimeout overrides the default 10s connect timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithDisconnectHandler registers a callback invoked at most once per
// Client, on the first read failure or Disconnect call. A failed Connect
// moves the state to DISCONNECTED without invoking it.
func WithDisconnectHandler(fn func(error)) Option {
	return func(c *Client) { c.onDisconnected = fn }
}

// New constructs a Client targeting host:port.
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		timeout: defaultTimeout,
		logger:  log.New(log.Writer(), "[rtltcp] ", log.LstdFlags),
	}
	c.state.Store(int32(StateDisconnected))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// AppliedConfig returns a snapshot of the configuration this client
// believes is currently applied on the device.
func (c *Client) AppliedConfig() AppliedConfig { return c.applied.snapshot() }

// Connect dials addr, performs the opening handshake and returns the
// device descriptor. It does not start streaming; call Stream to begin
// reading IQFrames.
func (c *Client) Connect(ctx context.Context) (Descriptor, error) {
	c.state.Store(int32(StateConnecting))

	dialer := net.Dialer{Timeout: c.timeout}
	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		if ctx.Err() != nil {
			return Descriptor{}, connErr(KindTimeout, err)
		}
		return Descriptor{}, connErr(KindConnectRefused, err)
	}

	c.state.Store(int32(StateHandshaking))
	conn.SetReadDeadline(deadline)

	hdr := make([]byte, handshakeLen)
	if _, err := readFull(conn, hdr); err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		if isTimeout(err) {
			return Descriptor{}, connErr(KindTimeout, err)
		}
		return Descriptor{}, connErr(KindHandshakeFail, err)
	}
	if string(hdr[0:4]) != handshakeMagic {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		return Descriptor{}, connErr(KindHandshakeFail, fmt.Errorf("bad magic %q", hdr[0:4]))
	}
	tunerID := binary.BigEndian.Uint32(hdr[4:8])
	gainCount := binary.BigEndian.Uint32(hdr[8:12])

	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.state.Store(int32(StateStreaming))

	name, ok := tunerNames[tunerID]
	if !ok {
		name = fmt.Sprintf("UNKNOWN(0x%x)", tunerID)
	}

	c.logger.Printf("connected to %s: tuner=%s gains=%d", c.addr, name, gainCount)

	return Descriptor{
		TunerTypeID:   tunerID,
		TunerName:     name,
		GainCount:     gainCount,
		AppliedConfig: c.applied.snapshot(),
	}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Stream reads the IQ byte stream and emits IQFrame values of defaultChunk
// complex samples on the returned channel until the connection fails or
// ctx is cancelled. The channel is closed exactly once: after the single
// disconnect notification when a read fails, or without one when ctx is
// cancelled while a frame is waiting to be sent.
func (c *Client) Stream(ctx context.Context) <-chan IQFrame {
	out := make(chan IQFrame, 4)
	go c.readLoop(ctx, out)
	return out
}

func (c *Client) readLoop(ctx context.Context, out chan<- IQFrame) {
	defer close(out)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.fail(fmt.Errorf("stream called before connect"))
		return
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	raw := make([]byte, defaultChunk*2)
	reader := bufio.NewReaderSize(conn, 1<<16)

	for {
		if _, err := readFullReader(reader, raw); err != nil {
			c.fail(err)
			return
		}
		cfg := c.applied.snapshot()
		samples := make([]float32, defaultChunk*2)
		for i, b := range raw {
			samples[i] = (float32(b) - 127.5) / 127.5
		}
		frame := IQFrame{
			Samples:      samples,
			SampleRateHz: cfg.SampleRateHz,
			CenterFreqHz: cfg.CenterFreqHz,
			Seq:          atomic.AddUint64(&c.seq, 1),
			WallTSMs:     uint64(time.Now().UnixMilli()),
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func readFullReader(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// fail transitions to DISCONNECTED and emits the disconnected callback
// exactly once regardless of which I/O call surfaced the error, so a
// caller never sees more than one disconnect notification per failure.
func (c *Client) fail(err error) {
	c.state.Store(int32(StateDisconnected))
	c.disconnectOnce.Do(func() {
		c.logger.Printf("disconnected: %v", err)
		if c.onDisconnected != nil {
			c.onDisconnected(connErr(KindIOError, err))
		}
	})
}

// Disconnect closes the underlying socket and emits the disconnected
// callback once (a no-op if it already fired from a read error).
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.disconnectOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))
		c.logger.Printf("disconnected by caller")
		if c.onDisconnected != nil {
			c.onDisconnected(nil)
		}
	})
}

func (c *Client) sendCommand(op Opcode, value uint32) error {
	pkt := make([]byte, 5)
	pkt[0] = byte(op)
	binary.BigEndian.PutUint32(pkt[1:], value)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return connErr(KindIOError, fmt.Errorf("not connected"))
	}
	if _, err := conn.Write(pkt); err != nil {
		return connErr(KindIOError, err)
	}
	return nil
}

// SetFrequency tunes the device and records the value in AppliedConfig.
func (c *Client) SetFrequency(hz uint64) error {
	c.applied.mu.Lock()
	c.applied.CenterFreqHz = hz
	c.applied.mu.Unlock()
	return c.sendCommand(OpSetFrequency, uint32(hz))
}

// SetSampleRate sets the device sample rate and records it.
func (c *Client) SetSampleRate(hz uint32) error {
	c.applied.mu.Lock()
	c.applied.SampleRateHz = hz
	c.applied.mu.Unlock()
	return c.sendCommand(OpSetSampleRate, hz)
}

// SetGain forces manual gain mode, then sets gain in tenths of dB.
func (c *Client) SetGain(tenthsDB int32) error {
	if err := c.SetGainMode(true); err != nil {
		return err
	}
	c.applied.mu.Lock()
	c.applied.GainTenthsDB = tenthsDB
	c.applied.mu.Unlock()
	return c.sendCommand(OpSetGain, uint32(int32(tenthsDB)))
}

// SetGainMode switches between automatic (false) and manual (true) gain.
func (c *Client) SetGainMode(manual bool) error {
	c.applied.mu.Lock()
	c.applied.ManualGain = manual
	c.applied.mu.Unlock()
	v := uint32(0)
	if manual {
		v = 1
	}
	return c.sendCommand(OpSetGainMode, v)
}

// SetFreqCorrection sets the frequency correction in PPM.
func (c *Client) SetFreqCorrection(ppm int32) error {
	return c.sendCommand(OpSetFreqCorr, uint32(ppm))
}

// SetIFGain sets intermediate-frequency gain in tenths of dB.
func (c *Client) SetIFGain(tenthsDB int32) error {
	return c.sendCommand(OpSetIFGain, uint32(tenthsDB))
}

// SetAGCMode toggles the tuner's automatic gain control.
func (c *Client) SetAGCMode(enabled bool) error {
	v := uint32(0)
	if enabled {
		v = 1
	}
	return c.sendCommand(OpSetAGCMode, v)
}

// SetDirectSampling selects a direct-sampling mode (0=off, 1=I, 2=Q).
func (c *Client) SetDirectSampling(mode uint32) error {
	return c.sendCommand(OpSetDirectSampling, mode)
}

// SetOffsetTuning enables or disables offset tuning.
func (c *Client) SetOffsetTuning(enabled bool) error {
	v := uint32(0)
	if enabled {
		v = 1
	}
	return c.sendCommand(OpSetOffsetTuning, v)
}

// SetBiasTee enables or disables the bias tee.
func (c *Client) SetBiasTee(enabled bool) error {
	v := uint32(0)
	if enabled {
		v = 1
	}
	return c.sendCommand(OpSetBiasTee, v)
}
