package monitor

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func newTestMonitor(t *testing.T, watchedDir string) *Monitor {
	t.Helper()
	m, err := New(true, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	// Populate the watch table directly rather than through Add, which
	// would try to install a real inotify watch on a path that may not
	// exist on disk.
	m.watches["files"] = map[string]bool{watchedDir: true}
	return m
}

func drainMonitorEvents(m *Monitor) []Event {
	var events []Event
	for {
		select {
		case ev := <-m.Events:
			events = append(events, ev)
		default:
			return events
		}
	}
}

// A real fsnotify rename delivers a Rename event for the old name and a
// plain Create for the new name — never a dedicated "moved to" kind. The
// monitor must still recognize the second half and emit one ItemMoved,
// not a create-then-delete pair (spec section 4.2, testable property 5).
func TestHandleFSEvent_RenamePairsIntoItemMoved(t *testing.T) {
	m := newTestMonitor(t, "/r")
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	m.handleFSEvent(fsnotify.Event{Name: "/r/a", Op: fsnotify.Rename}, base)
	m.handleFSEvent(fsnotify.Event{Name: "/r/b", Op: fsnotify.Create}, base.Add(500*time.Millisecond))

	events := drainMonitorEvents(m)
	if len(events) != 1 {
		t.Fatalf("events = %v, want exactly one ItemMoved", events)
	}
	ev := events[0]
	if ev.Kind != ItemMoved || ev.File != "/r/a" || ev.OtherFile != "/r/b" {
		t.Fatalf("event = %+v, want ItemMoved(/r/a -> /r/b)", ev)
	}
}

func TestHandleFSEvent_PlainCreateWithoutPendingRename(t *testing.T) {
	m := newTestMonitor(t, "/r")

	m.handleFSEvent(fsnotify.Event{Name: "/r/new.txt", Op: fsnotify.Create}, time.Now())

	events := drainMonitorEvents(m)
	if len(events) != 1 || events[0].Kind != ItemCreated || events[0].File != "/r/new.txt" {
		t.Fatalf("events = %v, want a single ItemCreated for an unrelated new file", events)
	}
}

func TestHandleFSEvent_UnpairedRenameTimesOutToDeleteThenCreateStandsAlone(t *testing.T) {
	m := newTestMonitor(t, "/r")
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	m.handleFSEvent(fsnotify.Event{Name: "/r/a", Op: fsnotify.Rename}, base)
	m.sweepPairs(base.Add(pairTimeout))

	events := drainMonitorEvents(m)
	if len(events) != 1 || events[0].Kind != ItemDeleted || events[0].File != "/r/a" {
		t.Fatalf("events = %v, want a single ItemDeleted once the moved-from half times out", events)
	}

	// A later, unrelated Create must not be mistaken for a pair: the
	// pending-rename FIFO is empty after the timeout already popped it.
	m.handleFSEvent(fsnotify.Event{Name: "/r/c", Op: fsnotify.Create}, base.Add(3*time.Second))
	events = drainMonitorEvents(m)
	if len(events) != 1 || events[0].Kind != ItemCreated || events[0].File != "/r/c" {
		t.Fatalf("events = %v, want a standalone ItemCreated for /r/c", events)
	}
}
