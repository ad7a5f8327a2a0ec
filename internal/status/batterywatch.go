package status

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"coreindexd/internal/logging"
	"coreindexd/internal/types"
)

const (
	batterySampleInterval = 10 * time.Second
	batteryLowPercent     = 5
	powerSupplyRoot       = "/sys/class/power_supply"
)

// ThrottleController is the narrow interface the battery watchdog needs
// from the crawler: a way to step the per-item sleep between its default
// and battery profiles. Implemented by internal/crawler.Throttle.
type ThrottleController interface {
	SetBatteryProfile(active bool)
}

// RunBatteryWatchdog polls battery state every 10s. While on battery with
// percentage <= 5%, paused_battery is set; it clears when the percentage
// recovers or the unit is plugged in. The crawl throttle is stepped to
// its battery profile for the whole time the unit runs unplugged, not
// just while paused — matching the spec's "adjusts ... between a default
// ... and a battery profile" language, which is about the battery state,
// not the pause state.
//
// No battery-reading library appears anywhere in the retrieved example
// corpus, so this reads the kernel's own sysfs battery class directly
// (the same surface a library like distatus/battery would wrap).
func RunBatteryWatchdog(ctx context.Context, owner *Owner, throttle ThrottleController, log *logging.Logger) {
	if _, err := os.Stat(powerSupplyRoot); err != nil {
		// No battery on this host (desktop, server, container): nothing to watch.
		return
	}

	ticker := time.NewTicker(batterySampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			onBattery, percent, ok := readBatteryState()
			if !ok {
				continue
			}

			if throttle != nil {
				throttle.SetBatteryProfile(onBattery)
			}

			low := onBattery && percent <= batteryLowPercent
			wasPaused := owner.Snapshot().PausedBattery

			if low && !wasPaused {
				if log != nil {
					log.Warnf("battery watchdog: %d%% remaining on battery, pausing indexing", percent)
				}
				owner.SetPause(types.Battery, true)
			} else if !low && wasPaused {
				if log != nil {
					log.Info("battery watchdog: battery recovered or plugged in, resuming")
				}
				owner.SetPause(types.Battery, false)
			}
		}
	}
}

// readBatteryState scans every supply under /sys/class/power_supply. It
// reports "on battery" when at least one Mains/USB supply exists and none
// of them is online, and percent is the capacity of the last Battery-type
// supply read. ok is false when no battery device could be read.
func readBatteryState() (onBattery bool, percent int, ok bool) {
	entries, err := os.ReadDir(powerSupplyRoot)
	if err != nil {
		return false, 0, false
	}

	sawBattery := false
	sawMainsOnline := false
	sawMains := false

	for _, e := range entries {
		dir := filepath.Join(powerSupplyRoot, e.Name())
		supplyType := strings.TrimSpace(readSysfsFile(filepath.Join(dir, "type")))

		switch supplyType {
		case "Battery":
			cap, capOK := readSysfsInt(filepath.Join(dir, "capacity"))
			if capOK {
				sawBattery = true
				percent = cap
			}
		case "Mains", "USB":
			sawMains = true
			online, onlineOK := readSysfsInt(filepath.Join(dir, "online"))
			if onlineOK && online == 1 {
				sawMainsOnline = true
			}
		}
	}

	if !sawBattery {
		return false, 0, false
	}
	return sawMains && !sawMainsOnline, percent, true
}

func readSysfsFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func readSysfsInt(path string) (int, bool) {
	s := strings.TrimSpace(readSysfsFile(path))
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
