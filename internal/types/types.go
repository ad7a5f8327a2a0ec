// Package types holds the data model shared across the core: modules,
// devices, queued work items, and the daemon's run state. None of these
// types own behavior beyond small invariant-preserving constructors; the
// packages in internal/status, internal/monitor, internal/crawler, and
// internal/processor hold the logic that acts on them.
package types

import (
	"time"

	"coreindexd/internal/logging"
)

// AppConfig is the central configuration object for the daemon.
//
// It is built once in app.Run() (config.ini values plus the CLI-flag
// fields) and shared read-only from then on.
type AppConfig struct {
	// ConfigDir holds config.ini, logging.json, and the modules/ manifest
	// directory.
	ConfigDir string

	// DataDir is the core's own data directory: home of the first-run
	// marker file. Its free space is what the disk-space watchdog samples.
	// The advisory lock file lives in the system temp directory instead.
	DataDir string

	LogSettings  logging.LogSettings
	LogRetention int

	// Throttle is the per-item crawl delay in milliseconds, tripled under
	// the battery profile; no range is enforced. See internal/crawler.Throttle.
	Throttle int

	EnableWatches           bool
	LowDiskSpaceLimitPct    int // -1 disables the watchdog
	IndexMountedDirectories bool
	IndexRemovableDevices   bool
	DisableOnBattery        bool
	DisableOnBatteryInit    bool
	InitialSleep            time.Duration
	NFSLocking              bool

	DisabledModules []string
	NoWatchRoots    []string
	WatchRoots      []string
	CrawlRoots      []string

	// IndexerSocket is the unix-domain socket path the RPC client dials.
	IndexerSocket string
}

// Module is a named configuration bundle describing what to index. It is
// loaded at startup and fixed for the lifetime of the process.
type Module struct {
	Name string

	MonitorRoots  []string
	CrawlRoots    []string
	ShallowRoots  []string
	ExcludedRoots []string

	IgnoredDirPatterns  []string
	IgnoredFilePatterns []string
	RequiredFilePatterns []string
}

// ModuleDisabled reports whether name is present in the disabled-modules set.
func (c AppConfig) ModuleDisabled(name string) bool {
	for _, d := range c.DisabledModules {
		if d == name {
			return true
		}
	}
	return false
}

// Device is a removable-storage root reported by the volume backend.
type Device struct {
	UDI        string
	MountPoint string
	Mounted    bool
}

// QueueKind identifies one of the four per-module dispatch queues. Order
// matters: it is also drain priority (Deleted > Created > Updated > Moved).
type QueueKind int

const (
	Deleted QueueKind = iota
	Created
	Updated
	Moved
)

func (k QueueKind) String() string {
	switch k {
	case Deleted:
		return "deleted"
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// DrainOrder is the fixed priority order consulted at every drain tick.
var DrainOrder = [...]QueueKind{Deleted, Created, Updated, Moved}

// PathItem is one unit of queued work: a module, a file, an optional
// second path (the move target), and whether it came from a recursive
// root.
type PathItem struct {
	Module    string
	File      string
	OtherFile string // populated for Moved items: target path
	Recursive bool
}

// PauseReason enumerates the independent reasons the core can be paused.
// The aggregate Paused predicate is the OR of all of them.
type PauseReason int

const (
	Manual PauseReason = iota
	Battery
	IO
	DiskSpace
	External
	Other
	pauseReasonCount
)

func (r PauseReason) String() string {
	switch r {
	case Manual:
		return "manual"
	case Battery:
		return "battery"
	case IO:
		return "io"
	case DiskSpace:
		return "disk_space"
	case External:
		return "external"
	case Other:
		return "other"
	default:
		return "unknown"
	}
}

// RunState is the coarse state machine value. Paused is the sole state
// whose truth is derived (state == Paused iff some pause reason is set),
// every other transition is driven directly by the owning component.
type RunState int

const (
	Initializing RunState = iota
	Watching
	Pending
	Indexing
	Paused
	Optimizing
	Idle
	Shutdown
)

func (s RunState) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Watching:
		return "watching"
	case Pending:
		return "pending"
	case Indexing:
		return "indexing"
	case Paused:
		return "paused"
	case Optimizing:
		return "optimizing"
	case Idle:
		return "idle"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// RunLevel is the result of the startup advisory-lock check.
type RunLevel int

const (
	MainInstance RunLevel = iota
	ReadOnly
	Disallowed
)

func (l RunLevel) String() string {
	switch l {
	case MainInstance:
		return "main_instance"
	case ReadOnly:
		return "read_only"
	case Disallowed:
		return "disallowed"
	default:
		return "unknown"
	}
}

// Status is an immutable snapshot of the run-state machine, as returned by
// Snapshot(). See internal/status for the mutable owner.
type Status struct {
	State              RunState
	IsReadOnly         bool
	IsFirstTime        bool
	InMerge            bool
	PausedManual       bool
	PausedBattery      bool
	PausedIO           bool
	PausedDiskSpace    bool
	PausedExternal     bool
	PausedOther        bool
	StatusBeforePaused RunState
}

// IsPaused is the aggregate predicate: true iff any individual pause reason
// is set. It must always equal Status.State == Paused.
func (s Status) IsPaused() bool {
	return s.PausedManual || s.PausedBattery || s.PausedIO ||
		s.PausedDiskSpace || s.PausedExternal || s.PausedOther
}
