// Package app wires the daemon together: it owns startup order (lock
// acquisition, config load, indexer dial) and the goroutines that make up
// a running core (monitor, volume poller, watchdogs, the processor driver
// loop), and the graceful-shutdown path.
package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"coreindexd/internal/config"
	"coreindexd/internal/crawler"
	"coreindexd/internal/indexer"
	"coreindexd/internal/logging"
	"coreindexd/internal/metrics"
	"coreindexd/internal/monitor"
	"coreindexd/internal/processor"
	"coreindexd/internal/setup"
	"coreindexd/internal/status"
	"coreindexd/internal/types"
	"coreindexd/internal/utils"
	"coreindexd/internal/volume"
)

// appName identifies this daemon's advisory lock file. It is the same for
// every installation; the lock file name (<user>_<app>_lock) adds the user.
const appName = "coreindexd"

// Options collects everything main() gathers from flags before handing off
// to Run.
type Options struct {
	ConfigDir     string
	DataDir       string
	LogSettings   logging.LogSettings
	IndexerSocket string
}

// Run performs the full startup sequence described in spec section 4.1 and
// then blocks, driving the core, until ctx is cancelled (normally by
// SIGINT/SIGTERM) or the processor reports itself fully finished with no
// further work pending. It returns nil on a clean shutdown and a non-nil
// error for every Fatal condition in the error-handling design: advisory
// lock contention without NFS locking, and failure to open the RPC channel
// to the indexer.
func Run(ctx context.Context, opts Options) error {
	log, err := logging.New(opts.ConfigDir, opts.LogSettings)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	if err := setup.EnsureConfig(opts.ConfigDir); err != nil {
		return fmt.Errorf("ensure config: %w", err)
	}

	cfg, err := config.ReadDaemonConfig(opts.ConfigDir, log)
	if err != nil {
		return fmt.Errorf("read daemon config: %w", err)
	}
	cfg.ConfigDir = opts.ConfigDir
	cfg.DataDir = opts.DataDir
	cfg.LogSettings = opts.LogSettings
	cfg.IndexerSocket = opts.IndexerSocket

	if !opts.LogSettings.NoLogs && cfg.LogRetention > 0 {
		if err := logging.RemoveOldLogs(opts.LogSettings.LogDir, cfg.LogRetention); err != nil {
			log.Warnf("log retention cleanup failed: %v", err)
		}
	}

	modules, err := config.ReadModules(opts.ConfigDir, cfg.DisabledModules)
	if err != nil {
		return fmt.Errorf("read modules: %w", err)
	}
	log.Infof("loaded %d module manifests", len(modules))

	onBattery, _, haveBattery := probeBatteryOnce()
	isFirstTime := !stateFileExists(opts.DataDir)

	runLevel, lockHandle, err := status.DetermineRunLevel(appName, cfg.NFSLocking, haveBattery && onBattery, isFirstTime, cfg.DisableOnBatteryInit)
	if err != nil {
		return fmt.Errorf("determine run level: %w", err)
	}
	if runLevel == types.Disallowed {
		msg := "another instance is already running and NFS locking is disabled; refusing to start"
		utils.Alert(appName, msg)
		return fmt.Errorf("%s", msg)
	}
	defer lockHandle.Release()

	if cfg.InitialSleep > 0 && runLevel == types.MainInstance {
		log.Infof("initial sleep: waiting %s before first crawl", cfg.InitialSleep)
		select {
		case <-time.After(cfg.InitialSleep):
		case <-ctx.Done():
			return nil
		}
	}

	client, err := indexer.Dial(ctx, cfg.IndexerSocket, log)
	if err != nil {
		msg := fmt.Sprintf("could not connect to indexer at %s: %v", cfg.IndexerSocket, err)
		utils.Alert(appName, msg)
		return fmt.Errorf("dial indexer: %w", err)
	}
	defer client.Close()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	owner := status.New(processor.NewStatusNotifier(client), func(snap types.Status) {
		log.Infof("status: %s (paused=%v)", snap.State, snap.IsPaused())
	}, log)
	owner.SetFirstTime(isFirstTime)
	owner.SetReadOnly(runLevel == types.ReadOnly)

	mon, err := monitor.New(cfg.EnableWatches, cfg.NoWatchRoots, processor.NewIOPauseSetter(owner), log)
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}
	defer mon.Close()

	vol := volume.NewPoller(log)
	throttle := crawler.NewThrottle(cfg.Throttle)

	tempDir, err := os.MkdirTemp("", appName+"-crawl-*")
	if err != nil {
		return fmt.Errorf("create crawl temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	proc := processor.New(cfg, modules, owner, client, mon, vol, throttle, tempDir, log)

	if runLevel == types.ReadOnly {
		log.Warnf("starting read-only: another instance holds the advisory lock")
	}

	go mon.Run(ctx)
	go vol.Run(ctx)
	go status.RunDiskWatchdog(ctx, owner, opts.DataDir, cfg.LowDiskSpaceLimitPct, log)
	go status.RunBatteryWatchdog(ctx, owner, throttle, log)

	if cfg.DisableOnBattery && haveBattery && onBattery {
		owner.SetPause(types.Battery, true)
	}

	proc.Start(ctx)
	markStateFile(opts.DataDir)

	select {
	case <-ctx.Done():
		log.Infof("shutting down: %v", ctx.Err())
		return nil
	case <-proc.Finished:
		log.Successf("fully finished: all modules drained and indexer settled")
		return nil
	}
}

// RunUntilSignal is the convenience entrypoint main() calls: it builds a
// context cancelled on SIGINT/SIGTERM and delegates to Run.
func RunUntilSignal(opts Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, opts)
}

// probeBatteryOnce reports whether the host has a battery and is currently
// running on it, for the one-shot startup RunLevel check (spec section
// 4.1's "on battery" condition at lock-acquisition time, independent of
// the ongoing sampling in status.RunBatteryWatchdog).
func probeBatteryOnce() (onBattery bool, percent int, haveBattery bool) {
	const powerSupplyRoot = "/sys/class/power_supply"
	entries, err := os.ReadDir(powerSupplyRoot)
	if err != nil {
		return false, 0, false
	}

	sawBattery, sawMains, sawMainsOnline := false, false, false
	for _, e := range entries {
		dir := filepath.Join(powerSupplyRoot, e.Name())
		switch strings.TrimSpace(readSysfsLine(filepath.Join(dir, "type"))) {
		case "Battery":
			if cap, ok := readSysfsIntLocal(filepath.Join(dir, "capacity")); ok {
				sawBattery = true
				percent = cap
			}
		case "Mains", "USB":
			sawMains = true
			if online, ok := readSysfsIntLocal(filepath.Join(dir, "online")); ok && online == 1 {
				sawMainsOnline = true
			}
		}
	}

	if !sawBattery {
		return false, 0, false
	}
	return sawMains && !sawMainsOnline, percent, true
}

func readSysfsLine(path string) string {
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

func readSysfsIntLocal(path string) (int, bool) {
	s := strings.TrimSpace(readSysfsLine(path))
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// stateFileExists/markStateFile track whether this host has completed a
// prior indexing pass, the on-disk fact the spec's "first-time-index"
// condition refers to.
func stateFileExists(dataDir string) bool {
	_, err := os.Stat(stateFilePath(dataDir))
	return err == nil
}

func markStateFile(dataDir string) {
	_ = os.WriteFile(stateFilePath(dataDir), []byte("1"), 0o644)
}

func stateFilePath(dataDir string) string {
	return dataDir + string(os.PathSeparator) + ".coreindexd-initialized"
}
