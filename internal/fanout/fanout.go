// Package fanout implements the multi-channel broadcast plane: Main
// (JSON+binary), Signal (binary-only) and ScannerAudio channels, each with
// independent subscriber sets. Every subscriber owns a bounded queue and a
// dedicated writer goroutine so a slow reader can never block a producer:
// a buffered channel plus a non-blocking select/default send, generalized
// across N named transport-agnostic channels rather than one hard-coded
// WebSocket-bound queue.
package fanout

import (
	"log"
	"sync"
	"sync/atomic"
)

// Kind identifies which of the three logical channels a Subscriber is
// attached to.
type Kind int

const (
	KindMain Kind = iota
	KindSignal
	KindScannerAudio
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindSignal:
		return "signal"
	case KindScannerAudio:
		return "scanner-audio"
	default:
		return "unknown"
	}
}

// Message is one unit of broadcast payload. Exactly one of JSON/Binary is
// set, matching the "binary path must not touch JSON" design note.
type Message struct {
	Binary []byte
	JSON   any
}

const (
	defaultQueueDepth    = 64
	defaultQueueBytesCap = 4 << 20 // 4 MB
)

// Subscriber is one registered receiver on a Channel. Construct with
// NewSubscriber and register it with Channel.Add.
type Subscriber struct {
	ID   uint64
	kind Kind

	sendMu     sync.Mutex // guards queue send vs. close so evict never races a concurrent Broadcast
	queue      chan Message
	queueBytes atomic.Int64
	byteLimit  int64

	alive     atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	deliver func(Message) error

	drops atomic.Uint64
}

// NewSubscriber builds a Subscriber whose deliver function performs the
// actual transport write. deliver is only ever called from this
// Subscriber's own writer goroutine, so transports with single-writer
// constraints (like a WebSocket connection) are safe to use directly.
func NewSubscriber(id uint64, kind Kind, deliver func(Message) error) *Subscriber {
	return NewSubscriberWithLimits(id, kind, deliver, defaultQueueDepth, defaultQueueBytesCap)
}

// NewSubscriberWithLimits is NewSubscriber with an explicit queue depth and
// byte budget, for callers that need a non-default send_queue_depth_limit.
func NewSubscriberWithLimits(id uint64, kind Kind, deliver func(Message) error, depthLimit int, byteLimit int64) *Subscriber {
	if depthLimit <= 0 {
		depthLimit = defaultQueueDepth
	}
	if byteLimit <= 0 {
		byteLimit = defaultQueueBytesCap
	}
	s := &Subscriber{
		ID:        id,
		kind:      kind,
		queue:     make(chan Message, depthLimit),
		byteLimit: byteLimit,
		done:      make(chan struct{}),
		deliver:   deliver,
	}
	s.alive.Store(true)
	go s.run()
	return s
}

// Alive reports whether this subscriber is still eligible for delivery.
func (s *Subscriber) Alive() bool { return s.alive.Load() }

// Dropped returns the number of messages dropped for this subscriber
// because its queue or byte budget overran.
func (s *Subscriber) Dropped() uint64 { return s.drops.Load() }

// Kind returns which logical channel this subscriber belongs to.
func (s *Subscriber) Kind() Kind { return s.kind }

// enqueue attempts a non-blocking send. If the queue is full or the byte
// budget is exceeded, the subscriber is evicted immediately rather than
// having one frame dropped while it stays registered, since a subscriber
// that can't keep up with one frame is unlikely to recover on its own.
func (s *Subscriber) enqueue(msg Message) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.alive.Load() {
		return false
	}
	if s.queueBytes.Load()+int64(len(msg.Binary)) > s.byteLimit {
		s.drops.Add(1)
		s.evictLocked()
		return false
	}
	select {
	case s.queue <- msg:
		s.queueBytes.Add(int64(len(msg.Binary)))
		return true
	default:
		s.drops.Add(1)
		s.evictLocked()
		return false
	}
}

func (s *Subscriber) run() {
	defer close(s.done)
	for msg := range s.queue {
		s.queueBytes.Add(-int64(len(msg.Binary)))
		if !s.alive.Load() {
			continue // evicted mid-drain: stop delivering, just unblock enqueue.
		}
		if err := s.deliver(msg); err != nil {
			s.evict()
		}
	}
}

// evict marks the subscriber dead and closes its queue so the writer
// goroutine unblocks; safe to call multiple times or concurrently.
func (s *Subscriber) evict() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.evictLocked()
}

// evictLocked is evict's body for callers that already hold sendMu.
func (s *Subscriber) evictLocked() {
	s.alive.Store(false)
	s.closeOnce.Do(func() { close(s.queue) })
}

// Close evicts the subscriber and waits for its writer goroutine to exit.
func (s *Subscriber) Close() {
	s.evict()
	<-s.done
}

// Channel is one logical broadcast channel with its own subscriber
// registry. Membership changes are guarded by a lock; delivery after
// lookup is lock-free per-subscriber (each has its own queue/goroutine).
type Channel struct {
	kind Kind

	mu   sync.RWMutex
	subs map[uint64]*Subscriber

	logger *log.Logger
}

// NewChannel constructs an empty channel of the given kind.
func NewChannel(kind Kind) *Channel {
	return &Channel{
		kind:   kind,
		subs:   make(map[uint64]*Subscriber),
		logger: log.New(log.Writer(), "[fanout] ", log.LstdFlags),
	}
}

// Add registers a subscriber on this channel.
func (c *Channel) Add(s *Subscriber) {
	c.mu.Lock()
	c.subs[s.ID] = s
	c.mu.Unlock()
}

// Remove evicts and unregisters a subscriber by ID.
func (c *Channel) Remove(id uint64) {
	c.mu.Lock()
	s, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Len returns the current live subscriber count.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Broadcast enqueues msg on every subscriber's queue and returns
// immediately; it never blocks on a slow or dead subscriber, and is safe
// against concurrent Add/Remove calls.
func (c *Channel) Broadcast(msg Message) {
	c.mu.RLock()
	targets := make([]*Subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		targets = append(targets, s)
	}
	c.mu.RUnlock()

	var dead []*Subscriber
	for _, s := range targets {
		s.enqueue(msg)
		if !s.Alive() {
			dead = append(dead, s)
		}
	}
	if len(dead) == 0 {
		return
	}
	// Evicted subscribers have already closed their own queues; dropping
	// them from the map without Close keeps the producer from waiting on a
	// writer goroutine that may still be stuck in deliver.
	c.mu.Lock()
	for _, s := range dead {
		if c.subs[s.ID] == s {
			delete(c.subs, s.ID)
		}
	}
	c.mu.Unlock()
}

// Plane bundles the three logical broadcast channels.
type Plane struct {
	Main         *Channel
	Signal       *Channel
	ScannerAudio *Channel
}

// NewPlane constructs a Plane with all three channels initialized.
func NewPlane() *Plane {
	return &Plane{
		Main:         NewChannel(KindMain),
		Signal:       NewChannel(KindSignal),
		ScannerAudio: NewChannel(KindScannerAudio),
	}
}

// Channel returns the named channel for a given Kind.
func (p *Plane) Channel(kind Kind) *Channel {
	switch kind {
	case KindSignal:
		return p.Signal
	case KindScannerAudio:
		return p.ScannerAudio
	default:
		return p.Main
	}
}
