package monitor

import (
	"sync"
	"time"
)

const (
	blackListThreshold  = 5
	blackListQuiescence = 30 * time.Second
)

type blackListEntry struct {
	count     int
	lastEvent time.Time
	crossed   bool
}

// BlackList is the per-path debounce counter from spec section 3: count is
// monotonically non-decreasing until the entry is dropped after 30s of
// quiescence; if the threshold was ever crossed, dropping the entry
// requires emitting one synthetic CREATED to force a recheck.
//
// All methods take the current time explicitly rather than reading the
// clock internally, so tests can drive the 30s quiescence window without
// sleeping.
type BlackList struct {
	mu      sync.Mutex
	entries map[string]*blackListEntry
}

// NewBlackList returns an empty black list.
func NewBlackList() *BlackList {
	return &BlackList{entries: make(map[string]*blackListEntry)}
}

// Record increments path's counter and reports whether the event should
// be suppressed (count >= threshold after incrementing). Move events
// should not call Record — pairing must not be suppressed by the black
// list (spec section 4.2, step 3).
func (b *BlackList) Record(path string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[path]
	if !ok {
		e = &blackListEntry{}
		b.entries[path] = e
	}
	e.count++
	e.lastEvent = now
	if e.count >= blackListThreshold {
		e.crossed = true
		return true
	}
	return false
}

// Sweep drops every entry whose last event is older than the quiescence
// window relative to now, and returns the paths that had ever crossed the
// threshold — callers must emit one synthetic CREATED for each.
func (b *BlackList) Sweep(now time.Time) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var needsRecheck []string
	for path, e := range b.entries {
		if now.Sub(e.lastEvent) < blackListQuiescence {
			continue
		}
		if e.crossed {
			needsRecheck = append(needsRecheck, path)
		}
		delete(b.entries, path)
	}
	return needsRecheck
}

// Len reports the number of tracked paths (test/metrics helper).
func (b *BlackList) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
