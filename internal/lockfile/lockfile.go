// Package lockfile implements the core's sole persisted artifact: a
// per-user advisory lock file in a system temp directory, and the startup
// RunLevel check built on top of it.
package lockfile

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/gofrs/flock"

	"coreindexd/internal/pathutil"
	"coreindexd/internal/types"
)

// Handle owns the advisory lock file for the process lifetime.
type Handle struct {
	path string
	flk  *flock.Flock
}

// Path returns the lock file's location, named <user>_<app>_lock under the
// system temp directory.
func Path(appName string) (string, error) {
	u, err := user.Current()
	username := "unknown"
	if err == nil {
		username = u.Username
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_%s_lock", username, appName)), nil
}

// Acquire determines the RunLevel for this process and, when it is
// MainInstance, holds the exclusive advisory lock for as long as the
// returned Handle is not released.
//
// Semantics (spec §4.1):
//   - Disallowed: another instance holds the lock and nfsLocking is false.
//   - ReadOnly: another instance holds the lock and nfsLocking is true —
//     start, but never write.
//   - MainInstance: lock acquired.
func Acquire(appName string, nfsLocking bool) (types.RunLevel, *Handle, error) {
	path, err := Path(appName)
	if err != nil {
		return types.Disallowed, nil, err
	}

	if !pathutil.IsDirWritable(filepath.Dir(path)) {
		return types.Disallowed, nil, fmt.Errorf("lock directory not writable: %s", filepath.Dir(path))
	}

	flk := flock.New(path)
	locked, err := flk.TryLock()
	if err != nil {
		return types.Disallowed, nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !locked {
		if nfsLocking {
			return types.ReadOnly, nil, nil
		}
		return types.Disallowed, nil, nil
	}

	return types.MainInstance, &Handle{path: path, flk: flk}, nil
}

// Release drops the advisory lock and removes the lock file. Safe to call
// on a nil Handle (ReadOnly/Disallowed runs hold none).
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	err := h.flk.Unlock()
	_ = os.Remove(h.path)
	return err
}
