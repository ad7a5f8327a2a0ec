package processor

import (
	"context"
	"testing"

	"coreindexd/internal/crawler"
	"coreindexd/internal/indexer"
	"coreindexd/internal/monitor"
	"coreindexd/internal/status"
	"coreindexd/internal/types"
	"coreindexd/internal/volume"
)

// fakeVolume is a no-op volume.Backend: tests drive device lifecycle
// directly through Processor.MountPointAdded/Removed rather than through
// Poller's own mountinfo polling.
type fakeVolume struct {
	events chan volume.Event
}

func newFakeVolume() *fakeVolume { return &fakeVolume{events: make(chan volume.Event, 8)} }

func (f *fakeVolume) Events() <-chan volume.Event               { return f.events }
func (f *fakeVolume) Lookup(path string) (string, bool)         { return "", false }
func (f *fakeVolume) Roots() (removable, nonRemovable []string) { return nil, nil }
func (f *fakeVolume) Run(ctx context.Context)                   {}

func newTestProcessor(t *testing.T, modules []types.Module) (*Processor, *indexer.MockClient) {
	t.Helper()

	client := indexer.NewMockClient()
	owner := status.New(NewStatusNotifier(client), nil, nil)

	mon, err := monitor.New(false, nil, NewIOPauseSetter(owner), nil)
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}
	t.Cleanup(func() { mon.Close() })

	throttle := crawler.NewThrottle(0)
	p := New(types.AppConfig{}, modules, owner, client, mon, newFakeVolume(), throttle, t.TempDir(), nil)
	return p, client
}

func TestProcessor_FilesCheck_DispatchesCreatedBatch(t *testing.T) {
	p, client := newTestProcessor(t, []types.Module{{Name: "files"}})

	p.FilesCheck("files", []string{"/r/a.txt"})
	p.drainTick()

	if len(client.Calls) != 1 {
		t.Fatalf("Calls = %v, want exactly one dispatch", client.Calls)
	}
	call := client.Calls[0]
	if call.Method != "FilesCheck" || call.Module != "files" || len(call.Paths) != 1 || call.Paths[0] != "/r/a.txt" {
		t.Fatalf("call = %+v, want FilesCheck(files, [/r/a.txt])", call)
	}
}

func TestProcessor_DrainTick_PriorityDeletedOverCreated(t *testing.T) {
	p, client := newTestProcessor(t, []types.Module{{Name: "files"}})

	p.FilesCheck("files", []string{"/r/a", "/r/c"})
	p.FilesDelete("files", []string{"/r/b"})

	p.drainTick()
	if len(client.Calls) != 1 || client.Calls[0].Method != "FilesDelete" {
		t.Fatalf("first dispatched call = %+v, want FilesDelete (highest priority)", client.Calls)
	}

	p.drainTick()
	if len(client.Calls) != 2 || client.Calls[1].Method != "FilesCheck" {
		t.Fatalf("second dispatched call = %+v, want FilesCheck", client.Calls)
	}
	if len(client.Calls[1].Paths) != 2 {
		t.Fatalf("FilesCheck batch = %v, want both /r/a and /r/c", client.Calls[1].Paths)
	}
}

func TestProcessor_DrainTick_PriorityOutranksModuleOrder(t *testing.T) {
	// "files" is first in module order but only has a lower-priority
	// Created item queued; "photos" is later in module order but has a
	// Deleted item queued. Deleted must dispatch first regardless of
	// module order (spec section 4.4: priority order is the outer key).
	p, client := newTestProcessor(t, []types.Module{{Name: "files"}, {Name: "photos"}})

	p.FilesCheck("files", []string{"/r/a"})
	p.FilesDelete("photos", []string{"/r/b"})

	p.drainTick()
	if len(client.Calls) != 1 {
		t.Fatalf("Calls = %v, want exactly one dispatch", client.Calls)
	}
	call := client.Calls[0]
	if call.Method != "FilesDelete" || call.Module != "photos" {
		t.Fatalf("first dispatched call = %+v, want FilesDelete on photos (highest priority across modules)", call)
	}

	p.drainTick()
	if len(client.Calls) != 2 {
		t.Fatalf("Calls = %v, want a second dispatch", client.Calls)
	}
	call = client.Calls[1]
	if call.Method != "FilesCheck" || call.Module != "files" {
		t.Fatalf("second dispatched call = %+v, want FilesCheck on files", call)
	}
}

func TestProcessor_DrainTick_FailedBatchIsRequeued(t *testing.T) {
	p, client := newTestProcessor(t, []types.Module{{Name: "files"}})

	client.FailNext["FilesCheck"] = true
	p.FilesCheck("files", []string{"/r/a.txt"})

	p.drainTick()
	if len(client.Calls) != 1 {
		t.Fatalf("Calls = %v, want one failed attempt", client.Calls)
	}

	// The failed batch must have gone back to the head of the queue and
	// dispatch again on the next tick, this time succeeding.
	p.drainTick()
	if len(client.Calls) != 2 {
		t.Fatalf("Calls = %v, want a retried second dispatch", client.Calls)
	}
	if client.Calls[1].Method != "FilesCheck" || client.Calls[1].Paths[0] != "/r/a.txt" {
		t.Fatalf("retried call = %+v, want FilesCheck(/r/a.txt)", client.Calls[1])
	}
}

func TestProcessor_DrainTick_NoOpWhilePaused(t *testing.T) {
	p, client := newTestProcessor(t, []types.Module{{Name: "files"}})

	p.status.SetPause(types.Manual, true)
	p.FilesCheck("files", []string{"/r/a.txt"})
	p.drainTick()

	if len(client.Calls) != 0 {
		t.Fatalf("Calls = %v, want none while paused", client.Calls)
	}
}

func TestProcessor_MountPointRemoved_DropsQueuedItemsUnderRoot(t *testing.T) {
	p, client := newTestProcessor(t, []types.Module{{Name: "files"}})

	p.FilesCheck("files", []string{"/m/a", "/m/b"})
	p.MountPointRemoved("udi-1", "/m")

	if !p.queueFor("files").Empty() {
		t.Fatalf("queue should be empty after unmount drops everything under /m")
	}

	var sawVolumeUpdate bool
	for _, c := range client.Calls {
		if c.Method == "VolumeUpdateState" && c.Module == "udi-1" && len(c.Paths) == 1 && c.Paths[0] == "/m" {
			sawVolumeUpdate = true
		}
	}
	if !sawVolumeUpdate {
		t.Fatalf("Calls = %v, want a VolumeUpdateState(udi-1, /m, false) dispatch", client.Calls)
	}

	p.drainTick()
	for _, c := range client.Calls {
		if c.Method == "FilesCheck" {
			t.Fatalf("dropped items should never reach the indexer: %+v", c)
		}
	}
}
