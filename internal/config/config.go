// Package config reads config.ini (daemon knobs, in the teacher's own
// hand-rolled INI format) and modules/*.toml (per-module crawl/monitor
// manifests, new in this daemon).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"coreindexd/internal/logging"
	"coreindexd/internal/types"
)

// ReadDaemonConfig reads config.ini's [daemon] section into an AppConfig,
// leaving ConfigDir/DataDir/LogSettings/IndexerSocket for the caller to
// fill in (they come from CLI flags, not the file).
func ReadDaemonConfig(configDir string, log *logging.Logger) (types.AppConfig, error) {
	var cfg types.AppConfig

	configFile := filepath.Join(configDir, "config.ini")
	b, err := os.ReadFile(configFile)
	if err != nil {
		return cfg, fmt.Errorf("read config.ini: %w", err)
	}

	content := string(b)
	if len(content) > 2 && content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		content = content[3:]
	}

	sections, _, err := parseIniSections(content)
	if err != nil {
		return cfg, fmt.Errorf("parse config.ini: %w", err)
	}

	daemon := sections["daemon"]

	cfg.Throttle = intOr(daemon["throttle"], 0)
	cfg.EnableWatches = boolOr(daemon["enable_watches"], true)
	cfg.LowDiskSpaceLimitPct = intOr(daemon["low_disk_space_limit_percent"], -1)
	cfg.IndexMountedDirectories = boolOr(daemon["index_mounted_directories"], true)
	cfg.IndexRemovableDevices = boolOr(daemon["index_removable_devices"], true)
	cfg.DisableOnBattery = boolOr(daemon["disable_indexing_on_battery"], false)
	cfg.DisableOnBatteryInit = boolOr(daemon["disable_indexing_on_battery_init"], false)
	cfg.InitialSleep = time.Duration(intOr(daemon["initial_sleep_seconds"], 0)) * time.Second
	cfg.NFSLocking = boolOr(daemon["nfs_locking"], false)
	cfg.LogRetention = intOr(daemon["log_retention_days"], 30)

	cfg.DisabledModules = splitCSV(daemon["disabled_modules"])
	cfg.NoWatchRoots = splitCSV(daemon["no_watch_roots"])
	cfg.WatchRoots = splitCSV(daemon["watch_roots"])
	cfg.CrawlRoots = splitCSV(daemon["crawl_roots"])

	if log != nil {
		log.Infof("Loaded daemon config: %d disabled modules, low-disk-space limit %d%%",
			len(cfg.DisabledModules), cfg.LowDiskSpaceLimitPct)
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intOr(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func boolOr(s string, def bool) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "true", "yes", "y", "1":
		return true
	case "false", "no", "n", "0":
		return false
	default:
		return def
	}
}

// parseIniSections parses a simple INI-style config file. Returns a map of
// section name to key-value pairs and a list of standalone (no '=') lines
// per section, for sections that allow bare entries.
func parseIniSections(content string) (map[string]map[string]string, map[string][]string, error) {
	sections := make(map[string]map[string]string)
	standaloneLines := make(map[string][]string)
	var currentSection string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			sectionName := strings.Trim(line, "[]")
			if sectionName == "" {
				return nil, nil, fmt.Errorf("empty section name")
			}
			currentSection = sectionName
			sections[currentSection] = make(map[string]string)
			continue
		}

		if strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if currentSection == "" {
			return nil, nil, fmt.Errorf("line outside of section: %s", line)
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			sections[currentSection][key] = value
		} else {
			standaloneLines[currentSection] = append(standaloneLines[currentSection], line)
		}
	}

	return sections, standaloneLines, nil
}
