// Package health samples host load periodically in the background and
// exposes it, with host uptime and process age, as a standalone Snapshot.
// It uses gopsutil/v3's cpu, load, and host subpackages to read system
// load and uptime portably. The per-process instance identifier is
// generated with uuid.New().String(); there is no central-reporting
// server to persist it against, so it is generated fresh per process
// rather than read back from config.
package health

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
)

// Status is a coarse load classification, same three tiers and the same
// avgLoad-vs-cores thresholds as load_history.go's sampleLoop.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Sample is one point-in-time host load reading.
type Sample struct {
	Load1  float64
	Load5  float64
	Load15 float64
	Status Status
	At     time.Time
}

// Snapshot is one combined reading returned by Tracker.Snapshot: the latest
// load sample plus host uptime, process age and instance identity.
type Snapshot struct {
	Sample
	CPUCores   int
	UptimeSec  uint64
	ProcessAge time.Duration
	InstanceID string
}

const historyLimit = 60

// Tracker periodically samples host load and keeps a short rolling history,
// the same bounded-slice-plus-mutex shape as LoadHistoryTracker.
type Tracker struct {
	cpuCores   int
	startedAt  time.Time
	instanceID string

	mu      sync.RWMutex
	history []Sample
	latest  Sample

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool

	logger *log.Logger
}

// New constructs a Tracker. interval defaults to 1 second.
func New(interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = time.Second
	}
	cores := 0
	if info, err := cpu.Info(); err == nil {
		for _, c := range info {
			cores += int(c.Cores)
		}
	}
	return &Tracker{
		cpuCores:   cores,
		interval:   interval,
		instanceID: uuid.New().String(),
		stopCh:     make(chan struct{}),
		logger:     log.New(log.Writer(), "[health] ", log.LstdFlags),
	}
}

// Start begins the sampling loop. Idempotent.
func (t *Tracker) Start(ctx context.Context) {
	if t.running {
		return
	}
	t.running = true
	t.startedAt = time.Now()
	t.stopCh = make(chan struct{})

	t.sample()

	t.wg.Add(1)
	go t.loop(ctx)
	t.logger.Printf("started (cpu cores: %d, interval: %s)", t.cpuCores, t.interval)
}

// Stop halts the sampling loop and waits for it to exit. Idempotent.
func (t *Tracker) Stop() {
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	t.wg.Wait()
}

func (t *Tracker) loop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sample()
		}
	}
}

func (t *Tracker) sample() {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	s := Sample{
		Load1:  avg.Load1,
		Load5:  avg.Load5,
		Load15: avg.Load15,
		Status: classify(avg.Load1, avg.Load5, avg.Load15, t.cpuCores),
		At:     time.Now(),
	}

	t.mu.Lock()
	t.latest = s
	t.history = append(t.history, s)
	if len(t.history) > historyLimit {
		t.history = t.history[len(t.history)-historyLimit:]
	}
	t.mu.Unlock()
}

// classify mirrors load_history.go's avgLoad-vs-cores thresholds: warning
// at 1x cores, critical at 2x cores.
func classify(load1, load5, load15 float64, cores int) Status {
	if cores <= 0 {
		return StatusOK
	}
	avg := (load1 + load5 + load15) / 3.0
	switch {
	case avg >= float64(cores)*2.0:
		return StatusCritical
	case avg >= float64(cores):
		return StatusWarning
	default:
		return StatusOK
	}
}

// Snapshot returns the latest sample plus host uptime and the time since
// Start. Safe to call before Start: the sample is then zero-valued and
// ProcessAge is 0.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	latest := t.latest
	t.mu.RUnlock()

	var uptimeSec uint64
	if u, err := host.Uptime(); err == nil {
		uptimeSec = u
	}

	var age time.Duration
	if !t.startedAt.IsZero() {
		age = time.Since(t.startedAt)
	}

	return Snapshot{
		Sample:     latest,
		CPUCores:   t.cpuCores,
		UptimeSec:  uptimeSec,
		ProcessAge: age,
		InstanceID: t.instanceID,
	}
}

// History returns a copy of the rolling sample history, oldest first.
func (t *Tracker) History() []Sample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Sample, len(t.history))
	copy(out, t.history)
	return out
}
