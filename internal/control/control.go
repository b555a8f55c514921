// Package control implements a single entry point for every external
// command, routing typed command variants to the Multiplexer, Scanner or
// Store, and arbitrating which of Multiplexer or Scanner owns the rtl_tcp
// device at any moment.
//
// Each command is its own Go type rather than one flat struct with a
// `Type` discriminator and a pile of optional pointer fields; Dispatch
// type switches over them.
package control

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cwsl/sdrcore/internal/mux"
	"github.com/cwsl/sdrcore/internal/scanner"
	"github.com/cwsl/sdrcore/internal/store"
)

// handoverGrace is how long the Surface waits after stopping one device
// owner before starting the other, so the rtl_tcp server has time to
// notice the prior TCP connection close.
const handoverGrace = 500 * time.Millisecond

// Response is the result of dispatching one command.
type Response struct {
	OK      bool   `json:"ok"`
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(kind string, data any) Response { return Response{OK: true, Kind: kind, Data: data} }

func fail(kind string, err error) Response {
	return Response{OK: false, Kind: kind, Message: err.Error()}
}

// Command variants. Each is dispatched by Go type via Dispatch's type
// switch rather than a string discriminator field.
type (
	StartMux       struct{}
	StopMux        struct{}
	AddReceiver    struct{ Spec mux.ReceiverSpec }
	RemoveReceiver struct{ ID string }
	TuneReceiver   struct {
		ID          string
		FrequencyHz uint64
	}

	StartScanner   struct{}
	StopScanner    struct{}
	Lock           struct{ FrequencyHz uint64 }
	Unlock         struct{}
	LockoutCurrent struct{}

	AddLockout struct {
		FrequencyHz uint64
		Label       string
	}
	RemoveLockout struct{ ID int64 }

	AddChannel struct{ Channel store.Channel }
	UpdateChannel struct {
		ID    int64
		Patch store.ChannelPatch
	}
	DeleteChannel struct{ ID int64 }

	// SetDevice either repoints the configured device address (Addr,
	// only while no owner holds the device) or retunes whichever of
	// Multiplexer/Scanner currently owns it. FrequencyHz, SampleRateHz,
	// GainTenthsDB and AGC are optional; a nil pointer leaves that
	// parameter untouched.
	SetDevice struct {
		Addr         string
		FrequencyHz  *uint64
		SampleRateHz *uint32
		GainTenthsDB *int32
		AGC          *bool
	}
)

// owner names which component currently holds the rtl_tcp device.
type owner int

const (
	ownerNone owner = iota
	ownerMux
	ownerScanner
)

// Surface is the single dispatch point for every command, guarded by one
// mutex so device-ownership transitions never race a concurrent command.
type Surface struct {
	mu sync.Mutex

	ctx   context.Context
	addr  string
	owner owner

	mux    *mux.Multiplexer
	newMux func(addr string) *mux.Multiplexer

	scanner    *scanner.Scanner
	newScanner func(addr string) *scanner.Scanner

	st *store.Store

	resumeMuxOnScannerStop bool

	logger *log.Logger
}

// New constructs a Surface bound to ctx's lifetime. newMux/newScanner
// build fresh component instances bound to a device address; Dispatch
// calls them lazily on StartMux/StartScanner so a Surface can be built
// before any device address is known.
func New(ctx context.Context, addr string, st *store.Store, newMux func(string) *mux.Multiplexer, newScanner func(string) *scanner.Scanner, resumeMuxOnScannerStop bool) *Surface {
	return &Surface{
		ctx:                    ctx,
		addr:                   addr,
		st:                     st,
		newMux:                 newMux,
		newScanner:             newScanner,
		resumeMuxOnScannerStop: resumeMuxOnScannerStop,
		logger:                 log.New(log.Writer(), "[control] ", log.LstdFlags),
	}
}

// Dispatch routes one command to its handler and returns a Response.
// Never panics on an unrecognized command type; it returns a failed
// Response instead.
func (s *Surface) Dispatch(cmd any) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c := cmd.(type) {
	case StartMux:
		return s.startMuxLocked()
	case StopMux:
		return s.stopMuxLocked()
	case AddReceiver:
		return s.withMux("add_receiver", func() error { return s.mux.AddReceiver(c.Spec) })
	case RemoveReceiver:
		return s.withMux("remove_receiver", func() error { s.mux.RemoveReceiver(c.ID); return nil })
	case TuneReceiver:
		return s.withMux("tune_receiver", func() error { return s.mux.RetuneReceiver(c.ID, c.FrequencyHz) })

	case StartScanner:
		return s.startScannerLocked()
	case StopScanner:
		return s.stopScannerLocked()
	case Lock:
		return s.withScanner("lock", func() error { return s.scanner.Lock(c.FrequencyHz) })
	case Unlock:
		return s.withScanner("unlock", func() error { return s.scanner.Unlock() })
	case LockoutCurrent:
		return s.withScanner("lockout_current", func() error { return s.scanner.LockoutCurrent() })

	case AddLockout:
		return s.withStore("add_lockout", func() error { return s.st.AddLockout(c.FrequencyHz, c.Label) })
	case RemoveLockout:
		return s.withStore("remove_lockout", func() error { return s.st.RemoveLockout(c.ID) })

	case AddChannel:
		var id int64
		err := s.runStore(func() error {
			var e error
			id, e = s.st.AddChannel(c.Channel)
			return e
		})
		if err != nil {
			return fail("add_channel", err)
		}
		return ok("add_channel", id)
	case UpdateChannel:
		return s.withStore("update_channel", func() error { return s.st.UpdateChannel(c.ID, c.Patch) })
	case DeleteChannel:
		return s.withStore("delete_channel", func() error { return s.st.DeleteChannel(c.ID) })

	case SetDevice:
		return s.setDeviceLocked(c)

	default:
		return fail("unknown", fmt.Errorf("control: unrecognized command %T", cmd))
	}
}

func (s *Surface) withMux(kind string, fn func() error) Response {
	if s.mux == nil || s.owner != ownerMux {
		return fail(kind, fmt.Errorf("control: multiplexer is not the active device owner"))
	}
	if err := fn(); err != nil {
		return fail(kind, err)
	}
	return ok(kind, nil)
}

func (s *Surface) withScanner(kind string, fn func() error) Response {
	if s.scanner == nil || s.owner != ownerScanner {
		return fail(kind, fmt.Errorf("control: scanner is not the active device owner"))
	}
	if err := fn(); err != nil {
		return fail(kind, err)
	}
	return ok(kind, nil)
}

func (s *Surface) withStore(kind string, fn func() error) Response {
	if err := s.runStore(fn); err != nil {
		return fail(kind, err)
	}
	return ok(kind, nil)
}

func (s *Surface) runStore(fn func() error) error {
	if s.st == nil {
		return fmt.Errorf("control: no store configured")
	}
	return fn()
}

func (s *Surface) startMuxLocked() Response {
	if s.owner == ownerMux {
		return ok("start_mux", nil)
	}
	if s.owner == ownerScanner {
		s.scanner.Stop()
		s.owner = ownerNone
		time.Sleep(handoverGrace)
	}
	s.mux = s.newMux(s.addr)
	s.mux.Start(s.ctx)
	s.owner = ownerMux
	return ok("start_mux", nil)
}

func (s *Surface) stopMuxLocked() Response {
	if s.owner != ownerMux || s.mux == nil {
		return ok("stop_mux", nil)
	}
	s.mux.Stop()
	s.owner = ownerNone
	return ok("stop_mux", nil)
}

func (s *Surface) startScannerLocked() Response {
	if s.owner == ownerScanner {
		return ok("start_scanner", nil)
	}
	if s.owner == ownerMux {
		s.mux.Stop()
		s.owner = ownerNone
		time.Sleep(handoverGrace)
	}
	s.scanner = s.newScanner(s.addr)
	s.scanner.Start(s.ctx)
	s.owner = ownerScanner
	return ok("start_scanner", nil)
}

func (s *Surface) stopScannerLocked() Response {
	if s.owner != ownerScanner || s.scanner == nil {
		return ok("stop_scanner", nil)
	}
	s.scanner.Stop()
	s.owner = ownerNone
	if s.resumeMuxOnScannerStop {
		time.Sleep(handoverGrace)
		return s.startMuxLocked()
	}
	return ok("stop_scanner", nil)
}

// setDeviceLocked either repoints the device address (when nothing owns
// the device yet) or forwards a live retune to whichever of
// Multiplexer/Scanner currently owns it.
func (s *Surface) setDeviceLocked(c SetDevice) Response {
	if c.Addr != "" {
		if s.owner != ownerNone {
			return fail("set_device", fmt.Errorf("control: stop the active device owner before changing the device address"))
		}
		s.addr = c.Addr
		return ok("set_device", nil)
	}

	var err error
	switch s.owner {
	case ownerMux:
		err = s.mux.SetTuning(c.FrequencyHz, c.SampleRateHz, c.GainTenthsDB, c.AGC)
	case ownerScanner:
		err = s.scanner.SetTuning(c.FrequencyHz, c.SampleRateHz, c.GainTenthsDB, c.AGC)
	default:
		err = fmt.Errorf("control: no device owner active to retune")
	}
	if err != nil {
		return fail("set_device", err)
	}
	return ok("set_device", nil)
}

// Owner reports which component currently owns the device, for status
// reporting ("none", "mux" or "scanner").
func (s *Surface) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.owner {
	case ownerMux:
		return "mux"
	case ownerScanner:
		return "scanner"
	default:
		return "none"
	}
}
