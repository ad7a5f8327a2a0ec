package crawler

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"coreindexd/internal/pathutil"
	"coreindexd/internal/types"
)

// systemRoots are always rejected, regardless of module configuration.
var systemRoots = []string{"/dev", "/lib", "/proc", "/sys"}

// Filter is the pure is_path_ignored predicate, shared between the
// crawler's own enumeration and the monitor's event routing so both
// apply identical rules to the same path.
type Filter struct {
	module    types.Module
	tempDir   string
	noWatch   []string
}

// NewFilter builds a Filter for one module. tempDir is the OS temp
// directory root (os.TempDir by default, overridable for tests).
func NewFilter(module types.Module, tempDir string, noWatchRoots []string) *Filter {
	return &Filter{module: module, tempDir: tempDir, noWatch: noWatchRoots}
}

// IsIgnored reports whether path should be skipped, applying the rules
// from spec section 4.3 in order: structural rejections first, then the
// dotfile-directory exception, then pattern matching.
func (f *Filter) IsIgnored(path string, isDirectory bool) bool {
	if path == "" || !utf8.ValidString(path) {
		return true
	}

	if isDirectory {
		for _, root := range systemRoots {
			if pathutil.SamePath(root, path) || pathutil.IsUnder(root, path) {
				return true
			}
		}
		if f.tempDir != "" && (pathutil.SamePath(f.tempDir, path) || pathutil.IsUnder(f.tempDir, path)) {
			return true
		}
		for _, root := range f.noWatch {
			if pathutil.SamePath(root, path) {
				return true
			}
		}
	}

	base := filepath.Base(path)

	if isDirectory {
		if strings.HasPrefix(base, ".") {
			return !f.isConfiguredRoot(path)
		}
		return pathutil.MatchesAny(f.module.IgnoredDirPatterns, base)
	}

	if strings.HasPrefix(base, ".") {
		return true
	}
	if pathutil.MatchesAny(f.module.IgnoredFilePatterns, base) {
		return true
	}
	if len(f.module.RequiredFilePatterns) > 0 && !pathutil.MatchesAny(f.module.RequiredFilePatterns, base) {
		return true
	}
	return false
}

// isConfiguredRoot reports whether path is itself one of the module's
// watch or crawl roots — the one exception that lets a dotfile
// directory (e.g. a module root named ".config") through the filter.
func (f *Filter) isConfiguredRoot(path string) bool {
	for _, root := range f.module.MonitorRoots {
		if pathutil.SamePath(root, path) {
			return true
		}
	}
	for _, root := range f.module.CrawlRoots {
		if pathutil.SamePath(root, path) {
			return true
		}
	}
	for _, root := range f.module.ShallowRoots {
		if pathutil.SamePath(root, path) {
			return true
		}
	}
	return false
}
