package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// IsFileOlder reports whether info's modification time is strictly before
// now-days. ModTime is used rather than access time since access-time
// tracking is frequently disabled.
func IsFileOlder(info os.FileInfo, days int) bool {
	cutoff := time.Now().AddDate(0, 0, -days)
	return info.ModTime().Before(cutoff)
}

// RemoveOldLogs deletes log files older than days from the top level of
// logPath (non-recursive, best-effort per file). Returns an error only for
// environment failures (logPath unreadable or not a directory); a single
// locked or unremovable log file is skipped rather than failing the run.
func RemoveOldLogs(logPath string, days int) error {
	info, err := os.Stat(logPath)
	if err != nil {
		if err := os.MkdirAll(logPath, 0o755); err != nil {
			return fmt.Errorf("create log path: %w", err)
		}
		return nil
	}
	if !info.IsDir() {
		return fmt.Errorf("log path is not a directory: %s", logPath)
	}

	entries, err := os.ReadDir(logPath)
	if err != nil {
		return fmt.Errorf("read log folder contents: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(logPath, entry.Name())
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if IsFileOlder(fi, days) {
			_ = os.Remove(full)
		}
	}
	return nil
}
