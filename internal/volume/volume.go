// Package volume tracks removable-storage mount/unmount events and
// assigns each newly seen mount a stable volume identifier, standing in
// for the OS volume subsystem the spec treats as an external
// collaborator (spec section 6's "Volume backend").
package volume

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"coreindexd/internal/logging"
)

const pollInterval = 3 * time.Second

// nonRemovableFSTypes are mounted filesystems never treated as a
// removable device even though they appear in mountinfo.
var nonRemovableFSTypes = map[string]bool{
	"proc": true, "sysfs": true, "devtmpfs": true, "devpts": true,
	"tmpfs": true, "cgroup": true, "cgroup2": true, "overlay": true,
	"squashfs": true, "debugfs": true, "tracefs": true, "mqueue": true,
	"autofs": true, "bpf": true, "pstore": true, "configfs": true,
}

// Event is one mount-added or mount-removed notification.
type Event struct {
	Added      bool
	UDI        string
	MountPoint string
}

// Backend exposes the read queries and event stream a processor needs
// from the volume subsystem.
type Backend interface {
	Events() <-chan Event
	// Lookup reports whether path is under a currently-mounted
	// removable device, and if so its udi.
	Lookup(path string) (udi string, removable bool)
	// Roots splits the currently known mount points into removable and
	// non-removable sets.
	Roots() (removable, nonRemovable []string)
	Run(ctx context.Context)
}

type mount struct {
	udi        string
	mountPoint string
	removable  bool
}

// Poller is a Backend implementation that polls /proc/self/mountinfo.
// No udisks/dbus client library appears anywhere in the retrieved
// corpus, so this reads the kernel's own mount table directly, the same
// surface such a library would ultimately wrap.
type Poller struct {
	mu     sync.RWMutex
	mounts map[string]mount // keyed by mount point

	events chan Event
	log    *logging.Logger
}

// NewPoller returns a Poller that has not yet performed its first scan.
func NewPoller(log *logging.Logger) *Poller {
	return &Poller{
		mounts: make(map[string]mount),
		events: make(chan Event, 32),
		log:    log,
	}
}

func (p *Poller) Events() <-chan Event { return p.events }

func (p *Poller) Lookup(path string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, m := range p.mounts {
		if m.removable && strings.HasPrefix(path, m.mountPoint) {
			return m.udi, true
		}
	}
	return "", false
}

func (p *Poller) Roots() (removable, nonRemovable []string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, m := range p.mounts {
		if m.removable {
			removable = append(removable, m.mountPoint)
		} else {
			nonRemovable = append(nonRemovable, m.mountPoint)
		}
	}
	return removable, nonRemovable
}

// Run polls mountinfo every 3s until ctx is cancelled, diffing the
// observed mount set against the previous scan and emitting one Event
// per added or removed mount point.
func (p *Poller) Run(ctx context.Context) {
	p.scan()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scan()
		}
	}
}

func (p *Poller) scan() {
	current, err := readMountInfo("/proc/self/mountinfo")
	if err != nil {
		if p.log != nil {
			p.log.Warnf("volume: failed to read mountinfo: %v", err)
		}
		return
	}

	p.mu.Lock()
	var added, removed []mount

	for mp, m := range current {
		if _, ok := p.mounts[mp]; !ok {
			added = append(added, m)
		}
	}
	for mp, m := range p.mounts {
		if _, ok := current[mp]; !ok {
			removed = append(removed, m)
		}
	}
	p.mounts = current
	p.mu.Unlock()

	for _, m := range removed {
		if m.removable {
			p.events <- Event{Added: false, UDI: m.udi, MountPoint: m.mountPoint}
		}
	}
	for _, m := range added {
		if m.removable {
			p.events <- Event{Added: true, UDI: m.udi, MountPoint: m.mountPoint}
		}
	}
}

// udisForMountPoint remembers udis assigned to a mount point across
// scans so a device that stays mounted keeps the same identity.
var udiMu sync.Mutex
var udisForMountPoint = make(map[string]string)

func readMountInfo(path string) (map[string]mount, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := make(map[string]mount)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// mountinfo format: ... mountPoint ... - fstype source options
		dashIdx := -1
		for i, field := range fields {
			if field == "-" {
				dashIdx = i
				break
			}
		}
		if dashIdx < 0 || dashIdx+1 >= len(fields) || len(fields) < 5 {
			continue
		}
		mountPoint := fields[4]
		fsType := fields[dashIdx+1]

		removable := !nonRemovableFSTypes[fsType] && strings.HasPrefix(mountPoint, "/media/") ||
			!nonRemovableFSTypes[fsType] && strings.HasPrefix(mountPoint, "/run/media/") ||
			!nonRemovableFSTypes[fsType] && strings.HasPrefix(mountPoint, "/mnt/")

		udiMu.Lock()
		udi, ok := udisForMountPoint[mountPoint]
		if !ok {
			udi = uuid.NewString()
			udisForMountPoint[mountPoint] = udi
		}
		udiMu.Unlock()

		result[mountPoint] = mount{udi: udi, mountPoint: mountPoint, removable: removable}
	}
	return result, scanner.Err()
}
