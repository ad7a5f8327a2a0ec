// Package setup provisions a first-run config.ini and default module
// manifest so the daemon can start unattended the first time it is
// launched on a host, the same spirit as the teacher's setup wizard but
// without a GUI dependency — a background daemon has no desktop session to
// show a wizard in.
package setup

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigINI = `; coreindexd configuration
; Generated automatically on first run. Edit freely; the daemon only reads
; this file at startup.

[daemon]
throttle=0
enable_watches=true
low_disk_space_limit_percent=5
index_mounted_directories=true
index_removable_devices=true
disable_indexing_on_battery=false
disable_indexing_on_battery_init=false
initial_sleep_seconds=15
nfs_locking=false
log_retention_days=30
disabled_modules=
no_watch_roots=
watch_roots=
crawl_roots=
`

const defaultFilesModuleTOML = `name = "files"
monitor_roots = []
crawl_roots = []
shallow_roots = []
excluded_roots = []
ignored_dir_patterns = [".git", "node_modules", ".cache"]
ignored_file_patterns = ["*.tmp", "*.swp", "*~"]
required_file_patterns = []
`

// ConfigExists reports whether config.ini is already present in configDir.
func ConfigExists(configDir string) bool {
	_, err := os.Stat(GetConfigPath(configDir))
	return err == nil
}

// EnsureConfig makes sure configDir/config.ini and configDir/modules/*.toml
// exist, writing conservative defaults when they don't. Unlike the
// teacher's interactive wizard this never blocks on user input: a daemon
// started from an init system or container has no terminal or desktop to
// prompt on.
func EnsureConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if !ConfigExists(configDir) {
		if err := os.WriteFile(GetConfigPath(configDir), []byte(defaultConfigINI), 0o644); err != nil {
			return fmt.Errorf("write default config.ini: %w", err)
		}
	}

	modulesDir := filepath.Join(configDir, "modules")
	if err := os.MkdirAll(modulesDir, 0o755); err != nil {
		return fmt.Errorf("create modules directory: %w", err)
	}

	entries, err := os.ReadDir(modulesDir)
	if err != nil {
		return fmt.Errorf("read modules directory: %w", err)
	}
	if len(entries) == 0 {
		defaultPath := filepath.Join(modulesDir, "files.toml")
		if err := os.WriteFile(defaultPath, []byte(defaultFilesModuleTOML), 0o644); err != nil {
			return fmt.Errorf("write default module manifest: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the full path to config.ini within configDir.
func GetConfigPath(configDir string) string {
	return filepath.Join(configDir, "config.ini")
}

// GetDefaultConfigDir returns the default config directory given the
// executable's directory.
func GetDefaultConfigDir(exeDir string) string {
	return filepath.Join(exeDir, "config")
}
