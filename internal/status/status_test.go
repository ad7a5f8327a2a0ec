package status

import (
	"errors"
	"testing"

	"coreindexd/internal/types"
)

type fakeNotifier struct {
	pauseCalls, continueCalls int
	failPause, failContinue   bool
}

func (f *fakeNotifier) Pause() error {
	f.pauseCalls++
	if f.failPause {
		return errors.New("pause rpc failed")
	}
	return nil
}

func (f *fakeNotifier) Continue() error {
	f.continueCalls++
	if f.failContinue {
		return errors.New("continue rpc failed")
	}
	return nil
}

func TestOwner_PauseAggregationLaw(t *testing.T) {
	n := &fakeNotifier{}
	var changes []types.Status
	o := New(n, func(s types.Status) { changes = append(changes, s) }, nil)

	assertLaw := func() {
		t.Helper()
		snap := o.Snapshot()
		if (snap.State == types.Paused) != snap.IsPaused() {
			t.Fatalf("law violated: state=%v isPaused=%v", snap.State, snap.IsPaused())
		}
	}

	assertLaw()
	o.SetPause(types.Manual, true)
	assertLaw()
	if o.Snapshot().State != types.Paused {
		t.Fatalf("state = %v, want Paused after SetPause(Manual, true)", o.Snapshot().State)
	}

	o.SetPause(types.Battery, true)
	assertLaw()
	if o.Snapshot().State != types.Paused {
		t.Fatalf("state should remain Paused while any reason is set")
	}

	o.SetPause(types.Manual, false)
	assertLaw()
	if o.Snapshot().State != types.Paused {
		t.Fatalf("state should stay Paused: Battery reason is still set")
	}

	o.SetPause(types.Battery, false)
	assertLaw()
	if o.Snapshot().State == types.Paused {
		t.Fatalf("state should leave Paused once every reason clears")
	}
}

func TestOwner_SetPause_NotifiesOnlyOnRealFlip(t *testing.T) {
	n := &fakeNotifier{}
	o := New(n, nil, nil)

	o.SetPause(types.Manual, true)
	if n.pauseCalls != 1 {
		t.Fatalf("pauseCalls = %d, want 1 after the first pause flip", n.pauseCalls)
	}

	// Redundant set: no flip, no second RPC.
	o.SetPause(types.Manual, true)
	if n.pauseCalls != 1 {
		t.Fatalf("pauseCalls = %d, want 1 (redundant SetPause should not re-notify)", n.pauseCalls)
	}

	o.SetPause(types.Battery, true)
	if n.pauseCalls != 1 {
		t.Fatalf("pauseCalls = %d, want 1 (already paused, adding a second reason is not a flip)", n.pauseCalls)
	}

	o.SetPause(types.Manual, false)
	if n.continueCalls != 0 {
		t.Fatalf("continueCalls = %d, want 0 (still paused via Battery)", n.continueCalls)
	}

	o.SetPause(types.Battery, false)
	if n.continueCalls != 1 {
		t.Fatalf("continueCalls = %d, want 1 after the last reason clears", n.continueCalls)
	}
}

func TestOwner_SetPause_RetriesFailedNotifyOnNextChange(t *testing.T) {
	n := &fakeNotifier{failPause: true}
	o := New(n, nil, nil)

	o.SetPause(types.Manual, true)
	if n.pauseCalls != 1 {
		t.Fatalf("pauseCalls = %d, want 1", n.pauseCalls)
	}
	// The state must still flip to Paused even though the RPC failed: the
	// core's own view of pause is authoritative, only the indexer's
	// knowledge of it can lag.
	if o.Snapshot().State != types.Paused {
		t.Fatalf("state = %v, want Paused even when the notify RPC failed", o.Snapshot().State)
	}

	n.failPause = false
	// Any subsequent SetPause call (even a redundant one) retries the
	// pending notification.
	o.SetPause(types.Battery, true)
	if n.pauseCalls != 2 {
		t.Fatalf("pauseCalls = %d, want 2 (pending notify retried)", n.pauseCalls)
	}
}

func TestOwner_SetState_DeferredWhilePaused(t *testing.T) {
	o := New(&fakeNotifier{}, nil, nil)

	if err := o.SetState(types.Watching); err != nil {
		t.Fatalf("SetState(Watching) error = %v", err)
	}

	o.SetPause(types.Manual, true)

	if err := o.SetState(types.Indexing); err != nil {
		t.Fatalf("SetState(Indexing) while paused error = %v", err)
	}
	if o.Snapshot().State != types.Paused {
		t.Fatalf("state = %v, want to remain Paused", o.Snapshot().State)
	}

	o.SetPause(types.Manual, false)
	if got := o.Snapshot().State; got != types.Indexing {
		t.Fatalf("state after unpausing = %v, want the deferred Indexing request", got)
	}
}

func TestOwner_SetState_RejectsDirectPaused(t *testing.T) {
	o := New(&fakeNotifier{}, nil, nil)
	if err := o.SetState(types.Paused); err == nil {
		t.Fatalf("SetState(Paused) should be rejected; use SetPause instead")
	}
}
