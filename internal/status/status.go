// Package status owns the run-state machine: the single source of truth
// for whether the core is allowed to do work, and for transitioning the
// backend indexer between running and paused.
package status

import (
	"fmt"
	"sync"

	"coreindexd/internal/lockfile"
	"coreindexd/internal/logging"
	"coreindexd/internal/types"
)

// Notifier is the subset of the indexer client the status owner drives
// directly: Pause/Continue RPCs fire exactly on aggregate-paused
// transitions.
type Notifier interface {
	Pause() error
	Continue() error
}

// ChangeFunc is invoked on every real state-change or pause-aggregate
// flip, carrying the new snapshot. External controllers (or the processor)
// subscribe through this to distinguish paused-for-space from
// paused-for-battery from paused-manually.
type ChangeFunc func(types.Status)

// Owner is the sole mutator of run-state. Its fields are guarded by mu,
// because the processor loop, the disk and battery watchdogs and the
// monitor's IO-pause timer each call it from their own goroutine.
type Owner struct {
	mu sync.Mutex

	st types.Status

	notifier Notifier
	onChange ChangeFunc
	log      *logging.Logger

	// pendingNotify records that the last attempt to tell the indexer
	// about an aggregate-paused flip failed. It is retried on the next
	// SetPause call rather than the state being considered "not really
	// flipped" — the core itself always honors its own pause flags
	// immediately; only the indexer's knowledge of it can lag.
	pendingNotify bool
	wantPaused    bool
}

// New creates a status owner in Initializing state.
func New(notifier Notifier, onChange ChangeFunc, log *logging.Logger) *Owner {
	return &Owner{
		st: types.Status{
			State:              types.Initializing,
			StatusBeforePaused: types.Initializing,
		},
		notifier: notifier,
		onChange: onChange,
		log:      log,
	}
}

// DetermineRunLevel performs the startup advisory-lock check (spec
// section 4.1): examine the per-user lock file and the NFS-locking flag,
// then apply the on-battery + first-time-index downgrade rule.
func DetermineRunLevel(appName string, nfsLocking, onBattery, isFirstTime, disableOnBatteryInit bool) (types.RunLevel, *lockfile.Handle, error) {
	level, handle, err := lockfile.Acquire(appName, nfsLocking)
	if err != nil {
		return level, handle, err
	}

	if level == types.MainInstance && onBattery && (isFirstTime || disableOnBatteryInit) {
		return types.ReadOnly, handle, nil
	}

	return level, handle, nil
}

// Snapshot returns an immutable copy of the current status.
func (o *Owner) Snapshot() types.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.st
}

// IsPaused reports the aggregate paused predicate.
func (o *Owner) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.st.IsPaused()
}

// SetPause sets the given pause reason, recomputes the aggregate, and — on
// a real flip — notifies the indexer and emits a state-change
// notification.
func (o *Owner) SetPause(reason types.PauseReason, value bool) {
	o.mu.Lock()

	before := o.st.IsPaused()
	o.setFlag(reason, value)
	after := o.st.IsPaused()

	if before != after || o.pendingNotify {
		o.wantPaused = after
		o.syncState(before, after)
	}

	snap := o.st
	o.mu.Unlock()

	if before != after && o.onChange != nil {
		o.onChange(snap)
	}
}

// syncState applies the Paused/running transition to types.Status.State
// and attempts the matching indexer RPC. Must be called with mu held.
func (o *Owner) syncState(before, after bool) {
	if after && o.st.State != types.Paused {
		o.st.StatusBeforePaused = o.st.State
		o.st.State = types.Paused
	}
	if !after && o.st.State == types.Paused {
		o.st.State = o.st.StatusBeforePaused
	}

	if o.notifier == nil {
		return
	}

	var err error
	if o.wantPaused {
		err = o.notifier.Pause()
	} else {
		err = o.notifier.Continue()
	}

	if err != nil {
		o.pendingNotify = true
		if o.log != nil {
			o.log.Errorf("indexer pause/continue RPC failed, will retry on next status change: %v", err)
		}
		return
	}
	o.pendingNotify = false
}

func (o *Owner) setFlag(reason types.PauseReason, value bool) {
	switch reason {
	case types.Manual:
		o.st.PausedManual = value
	case types.Battery:
		o.st.PausedBattery = value
	case types.IO:
		o.st.PausedIO = value
	case types.DiskSpace:
		o.st.PausedDiskSpace = value
	case types.External:
		o.st.PausedExternal = value
	case types.Other:
		o.st.PausedOther = value
	}
}

// SetState requests a transition to newState. Legal from any state except
// Paused, where the request is only recorded in StatusBeforePaused so that
// leaving Paused later restores it.
func (o *Owner) SetState(newState types.RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if newState == types.Paused {
		return fmt.Errorf("status: use SetPause to enter Paused, not SetState")
	}

	if o.st.State == types.Paused {
		o.st.StatusBeforePaused = newState
		return nil
	}

	if o.st.State == newState {
		return nil
	}

	o.st.State = newState
	snap := o.st
	o.mu.Unlock()
	if o.onChange != nil {
		o.onChange(snap)
	}
	o.mu.Lock()
	return nil
}

// SetFirstTime and SetReadOnly record facts established once at startup
// so that they appear in Snapshot(); nothing in this package reads them.
func (o *Owner) SetFirstTime(v bool) {
	o.mu.Lock()
	o.st.IsFirstTime = v
	o.mu.Unlock()
}

func (o *Owner) SetReadOnly(v bool) {
	o.mu.Lock()
	o.st.IsReadOnly = v
	o.mu.Unlock()
}
