package status

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"coreindexd/internal/logging"
	"coreindexd/internal/types"
)

const diskSampleInterval = 10 * time.Second

// RunDiskWatchdog samples free space of dataDir every 10s while (a)
// already paused for space, or (b) the aggregate run-state is Indexing or
// Optimizing. When free percentage drops at or below limitPct,
// paused_disk_space is set; it is cleared once back above the limit.
// limitPct < 1 disables the watchdog entirely.
//
// Grounded on the same gopsutil disk.Usage ticker shape used elsewhere in
// the retrieved corpus for threshold-based disk alerting.
func RunDiskWatchdog(ctx context.Context, owner *Owner, dataDir string, limitPct int, log *logging.Logger) {
	if limitPct < 1 {
		return
	}

	ticker := time.NewTicker(diskSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := owner.Snapshot()
			shouldSample := snap.PausedDiskSpace ||
				snap.State == types.Indexing || snap.State == types.Optimizing
			if !shouldSample {
				continue
			}

			usage, err := disk.Usage(dataDir)
			if err != nil {
				if log != nil {
					log.Warnf("disk-space watchdog: sampling %s failed: %v", dataDir, err)
				}
				continue
			}

			freePct := 100 - usage.UsedPercent
			if freePct <= float64(limitPct) {
				if !snap.PausedDiskSpace {
					if log != nil {
						log.Warnf("disk-space watchdog: %s at %.1f%% free, pausing indexing", dataDir, freePct)
					}
					owner.SetPause(types.DiskSpace, true)
				}
			} else if snap.PausedDiskSpace {
				if log != nil {
					log.Infof("disk-space watchdog: %s recovered to %.1f%% free, resuming", dataDir, freePct)
				}
				owner.SetPause(types.DiskSpace, false)
			}
		}
	}
}
