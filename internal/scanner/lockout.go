package scanner

import (
	"sync"

	"github.com/cwsl/sdrcore/internal/store"
)

// lockoutSet is an in-memory mirror of the persisted lockout table, kept
// for the per-frame is_locked check so detection never blocks on sqlite.
type lockoutSet struct {
	mu    sync.RWMutex
	byKey map[uint64]int64 // rounded-to-1kHz key -> store row id (0 when added by LockoutCurrent)
}

func newLockoutSet() *lockoutSet {
	return &lockoutSet{byKey: make(map[uint64]int64)}
}

func roundTo1kHz(freqHz uint64) uint64 {
	return ((freqHz + 500) / 1000) * 1000
}

// reload replaces the in-memory set from the store's authoritative list.
func (l *lockoutSet) reload(entries []store.Lockout) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byKey = make(map[uint64]int64, len(entries))
	for _, e := range entries {
		l.byKey[roundTo1kHz(e.Frequency)] = e.ID
	}
}

func (l *lockoutSet) add(freqHz uint64, id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byKey[roundTo1kHz(freqHz)] = id
}

// isLocked reports whether any lockout key lies within +-5kHz of
// round(freqHz, 1kHz).
func (l *lockoutSet) isLocked(freqHz uint64) bool {
	key := roundTo1kHz(freqHz)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for k := range l.byKey {
		var delta uint64
		if k > key {
			delta = k - key
		} else {
			delta = key - k
		}
		if delta <= 5000 {
			return true
		}
	}
	return false
}
