package monitor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"coreindexd/internal/logging"
	"coreindexd/internal/metrics"
	"coreindexd/internal/pathutil"
)

const (
	defaultWatchLimit = 8192
	inotifyHeadroom   = 500
	ioPauseDelay      = 5 * time.Second
)

// IOPauseSetter lets the monitor flip the Indexer-is-paused-for-IO flag;
// implemented by internal/status.Owner via a tiny adapter in the
// processor so this package does not need to import status.
type IOPauseSetter interface {
	SetIOPause(bool)
}

// Monitor wraps the OS change-notification backend: one watch table per
// module, a black-list debounce layer, and move-pair matching.
type Monitor struct {
	mu      sync.RWMutex
	watches map[string]map[string]bool // module -> watched path set

	watcher *fsnotify.Watcher
	black   *BlackList
	pairs   *PairTable

	maxWatches    int
	watchesWarned bool

	enableWatches bool
	noWatchRoots  []string

	ioPause      IOPauseSetter
	ioUnpauseAt  time.Time
	ioPauseTimer *time.Timer

	// pendingRenames is a small FIFO of rename-halves awaiting their
	// paired create, used because fsnotify (unlike raw inotify) does not
	// surface the kernel's correlation cookie. See DESIGN.md.
	pendingRenames []uint64
	nextCookie     uint64

	Events chan Event

	log *logging.Logger
}

// New constructs a Monitor. One hash table per module is created lazily
// on first Add. The watch-cap probe mirrors the inotify-specific rule
// from spec section 4.2: on Linux it reads the kernel cap and subtracts
// 500 headroom; elsewhere it falls back to a fixed conservative default.
func New(enableWatches bool, noWatchRoots []string, ioPause IOPauseSetter, log *logging.Logger) (*Monitor, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Monitor{
		watches:       make(map[string]map[string]bool),
		watcher:       w,
		black:         NewBlackList(),
		pairs:         NewPairTable(),
		maxWatches:    probeWatchLimit(),
		enableWatches: enableWatches,
		noWatchRoots:  noWatchRoots,
		ioPause:       ioPause,
		Events:        make(chan Event, 1024),
		log:           log,
	}, nil
}

func probeWatchLimit() int {
	if runtime.GOOS != "linux" {
		return defaultWatchLimit
	}
	b, err := os.ReadFile("/proc/sys/fs/inotify/max_user_watches")
	if err != nil {
		return defaultWatchLimit
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || n <= inotifyHeadroom {
		return defaultWatchLimit
	}
	return n - inotifyHeadroom
}

// Close releases the underlying OS watcher.
func (m *Monitor) Close() error {
	return m.watcher.Close()
}

// Count returns the total watch count, or the count for a single module
// when names is non-empty.
func (m *Monitor) Count(names ...string) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(names) > 0 {
		return uint32(len(m.watches[names[0]]))
	}
	var total uint32
	for _, set := range m.watches {
		total += uint32(len(set))
	}
	return total
}

// IsWatched reports whether file is watched under module.
func (m *Monitor) IsWatched(module, file string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watches[module][file]
}

// Add installs a watch on file under module. It rejects the request if
// watches are disabled in config, if the path is a no-watch root or lies
// under one, or if the backend's watch cap would be exceeded — the cap breach
// is logged once, not once per rejected path.
func (m *Monitor) Add(module, file string) bool {
	if !m.enableWatches {
		return false
	}
	for _, root := range m.noWatchRoots {
		if pathutil.IsUnder(root, file) {
			return false
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watches[module] == nil {
		m.watches[module] = make(map[string]bool)
	}
	if m.watches[module][file] {
		return true
	}

	var total uint32
	for _, set := range m.watches {
		total += uint32(len(set))
	}
	if int(total) >= m.maxWatches {
		if !m.watchesWarned {
			m.watchesWarned = true
			if m.log != nil {
				m.log.Warnf("monitor: watch cap (%d) reached, further watches refused", m.maxWatches)
			}
		}
		return false
	}

	if err := m.watcher.Add(file); err != nil {
		if m.log != nil {
			m.log.Warnf("monitor: failed to watch %s: %v", file, err)
		}
		return false
	}

	m.watches[module][file] = true
	metrics.WatchCount.WithLabelValues(module).Set(float64(len(m.watches[module])))
	return true
}

// Remove cancels the watch on file under module.
func (m *Monitor) Remove(module, file string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watches[module] == nil || !m.watches[module][file] {
		return
	}
	delete(m.watches[module], file)
	_ = m.watcher.Remove(file)
	metrics.WatchCount.WithLabelValues(module).Set(float64(len(m.watches[module])))
}

// RemoveUnderRoot recursively cancels every watch, across every module,
// rooted under root — used on device unmount (spec section 5,
// cancellation rules).
func (m *Monitor) RemoveUnderRoot(root string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for module, set := range m.watches {
		for path := range set {
			if pathutil.IsUnder(root, path) {
				delete(set, path)
				_ = m.watcher.Remove(path)
			}
		}
		metrics.WatchCount.WithLabelValues(module).Set(float64(len(set)))
	}
}

// resolveModule finds which module owns path, checking the path itself
// and then its parent directory.
func (m *Monitor) resolveModule(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parent := filepath.Dir(path)
	for module, set := range m.watches {
		if set[path] || set[parent] {
			return module, true
		}
	}
	return "", false
}

// Run drains the backend's event stream until ctx is cancelled,
// translating each raw event through the pipeline described in spec
// section 4.2 and emitting the result on m.Events.
func (m *Monitor) Run(ctx context.Context) {
	sweepTicker := time.NewTicker(1 * time.Second)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleFSEvent(ev, time.Now())

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			if m.log != nil {
				m.log.Warnf("monitor: backend error: %v", err)
			}

		case now := <-sweepTicker.C:
			m.sweepBlackList(now)
			m.sweepPairs(now)
		}
	}
}

func (m *Monitor) handleFSEvent(ev fsnotify.Event, now time.Time) {
	switch {
	case ev.Has(fsnotify.Create):
		// fsnotify reports a rename's second half as a plain Create for the
		// new name — it never synthesizes a moved-to kind itself. A Create
		// arriving while a moved-from half is still pending is treated as
		// that half's pair rather than a standalone create (see
		// handleMoveClass and DESIGN.md's fsnotify cookie note).
		if m.hasPendingRename() {
			m.handleRaw(RawEvent{Path: ev.Name, Kind: RawMovedTo, Time: now})
		} else {
			m.handleRaw(RawEvent{Path: ev.Name, Kind: RawCreate, Time: now})
		}
	case ev.Has(fsnotify.Write):
		m.handleRaw(RawEvent{Path: ev.Name, Kind: RawUpdate, Time: now})
	case ev.Has(fsnotify.Remove):
		m.handleRaw(RawEvent{Path: ev.Name, Kind: RawDelete, Time: now})
	case ev.Has(fsnotify.Rename):
		m.handleRaw(RawEvent{Path: ev.Name, Kind: RawMovedFrom, Time: now})
	case ev.Has(fsnotify.Chmod):
		m.handleRaw(RawEvent{Path: ev.Name, Kind: RawAttribChange, Time: now})
	}
}

// handleRaw implements the per-event pipeline from spec section 4.2.
func (m *Monitor) handleRaw(raw RawEvent) {
	// Step 1: drop low-value kinds outright.
	if raw.Kind == RawAttribChange || raw.Kind == RawOverflow {
		return
	}

	// Step 2: resolve module.
	module, ok := m.resolveModule(raw.Path)
	if !ok {
		return
	}

	isMoveClass := raw.Kind == RawMovedFrom || raw.Kind == RawMovedTo

	// Step 3: black-list counter (skipped for move events).
	if !isMoveClass {
		if m.black.Record(raw.Path, raw.Time) {
			metrics.BlackListSuppressions.WithLabelValues(module).Inc()
			return
		}
	}

	// Step 4: IO-pause bookkeeping.
	m.scheduleIOPause(raw.Time)

	if isMoveClass {
		m.handleMoveClass(module, raw)
		return
	}

	var kind Kind
	switch raw.Kind {
	case RawCreate:
		kind = ItemCreated
	case RawUpdate:
		kind = ItemUpdated
	case RawDelete:
		kind = ItemDeleted
	default:
		return
	}

	m.emit(Event{Module: module, Kind: kind, File: raw.Path})
}

// handleMoveClass pairs or stages one half of a move. fsnotify does not
// expose the kernel's rename cookie, so pairing is approximated with a
// FIFO of outstanding rename halves rather than the OS-supplied cookie
// the abstract contract describes (see DESIGN.md).
func (m *Monitor) handleMoveClass(module string, raw RawEvent) {
	m.mu.Lock()
	cookie := raw.Cookie
	if cookie == 0 {
		if raw.Kind == RawMovedFrom {
			m.nextCookie++
			cookie = m.nextCookie
			m.pendingRenames = append(m.pendingRenames, cookie)
		} else if len(m.pendingRenames) > 0 {
			cookie = m.pendingRenames[0]
			m.pendingRenames = m.pendingRenames[1:]
		} else {
			m.mu.Unlock()
			// No rename half is pending: this Create stands alone.
			m.emit(Event{Module: module, Kind: ItemCreated, File: raw.Path})
			return
		}
	}
	m.mu.Unlock()

	matched, otherFile, _ := m.pairs.Observe(cookie, raw.Kind, raw.Path, raw.Time)
	if !matched {
		return
	}

	source, target := raw.Path, otherFile
	if raw.Kind == RawMovedTo {
		source, target = otherFile, raw.Path
	}
	m.emit(Event{
		Module:             module,
		Kind:               ItemMoved,
		File:               source,
		OtherFile:          target,
		SourceWasMonitored: true,
	})
}

// hasPendingRename reports whether a moved-from half is still awaiting its
// pair, so handleFSEvent can tell a rename's second Create apart from an
// unrelated new file.
func (m *Monitor) hasPendingRename() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingRenames) > 0
}

func (m *Monitor) scheduleIOPause(now time.Time) {
	if m.ioPause == nil {
		return
	}
	m.ioPause.SetIOPause(true)
	m.ioUnpauseAt = now.Add(ioPauseDelay)
	if m.ioPauseTimer != nil {
		m.ioPauseTimer.Stop()
	}
	m.ioPauseTimer = time.AfterFunc(ioPauseDelay, func() {
		m.ioPause.SetIOPause(false)
	})
}

func (m *Monitor) sweepBlackList(now time.Time) {
	for _, path := range m.black.Sweep(now) {
		if module, ok := m.resolveModule(path); ok {
			m.emit(Event{Module: module, Kind: ItemCreated, File: path})
		}
	}
}

func (m *Monitor) sweepPairs(now time.Time) {
	for _, t := range m.pairs.Sweep(now) {
		// A timed-out half is resolved: drop its cookie from the FIFO so a
		// later, unrelated Create is never mistaken for this half's pair.
		m.dropPendingRename(t.Cookie)

		module, ok := m.resolveModule(t.File)
		if !ok {
			continue
		}
		if t.Kind == RawMovedFrom {
			m.emit(Event{Module: module, Kind: ItemDeleted, File: t.File})
		} else {
			m.emit(Event{Module: module, Kind: ItemCreated, File: t.File})
		}
	}
}

// dropPendingRename removes cookie from the pending-rename FIFO if it is
// still present. Used once a half times out in the pair table so a stale
// cookie can never be handed out to a later unrelated Create.
func (m *Monitor) dropPendingRename(cookie uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.pendingRenames {
		if c == cookie {
			m.pendingRenames = append(m.pendingRenames[:i], m.pendingRenames[i+1:]...)
			return
		}
	}
}

func (m *Monitor) emit(ev Event) {
	select {
	case m.Events <- ev:
	default:
		if m.log != nil {
			m.log.Warnf("monitor: event channel full, dropping %v for %s", ev.Kind, ev.File)
		}
	}
}
