package monitor

import (
	"sync"
	"time"
)

const pairTimeout = 2 * time.Second

type pendingEntry struct {
	firstSeen time.Time
	kind      RawKind
	file      string
}

// PairTable is the monitor's pending-pair table (spec section 3): entries
// are keyed by the OS-supplied correlation cookie, inserted on the first
// half of a move and deleted on a match. Observe does not check that a
// cookie is never reused (invariant 5): a cookie seen again after its pair
// matched is stored as a new pending half.
type PairTable struct {
	mu      sync.Mutex
	entries map[uint64]pendingEntry
}

// NewPairTable returns an empty pairing table.
func NewPairTable() *PairTable {
	return &PairTable{entries: make(map[uint64]pendingEntry)}
}

// TimedOut describes one pending half that aged out without a match.
type TimedOut struct {
	File   string
	Kind   RawKind // RawMovedFrom or RawMovedTo
	Cookie uint64
}

// Observe records one half of a move event. If the cookie's other half is
// already pending, the match is returned (and the entry removed);
// otherwise the half is stored for later pairing or timeout.
func (p *PairTable) Observe(cookie uint64, kind RawKind, file string, now time.Time) (matched bool, otherFile string, otherKind RawKind) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.entries[cookie]; ok {
		delete(p.entries, cookie)
		return true, existing.file, existing.kind
	}

	p.entries[cookie] = pendingEntry{firstSeen: now, kind: kind, file: file}
	return false, "", 0
}

// Sweep removes every entry older than the 2s pairing timeout and returns
// them for downgrade to their single-sided equivalent (RawMovedFrom ->
// DELETE, RawMovedTo -> CREATE).
func (p *PairTable) Sweep(now time.Time) []TimedOut {
	p.mu.Lock()
	defer p.mu.Unlock()

	var timedOut []TimedOut
	for cookie, e := range p.entries {
		if now.Sub(e.firstSeen) < pairTimeout {
			continue
		}
		timedOut = append(timedOut, TimedOut{File: e.file, Kind: e.kind, Cookie: cookie})
		delete(p.entries, cookie)
	}
	return timedOut
}

// Empty reports whether the table currently holds no pending halves — the
// caller uses this to know when the timeout tick can be unscheduled.
func (p *PairTable) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) == 0
}
