package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"coreindexd/internal/types"
)

// moduleManifest mirrors types.Module field-for-field; it exists only so
// BurntSushi/toml has plain string/slice fields to decode into.
type moduleManifest struct {
	Name                 string   `toml:"name"`
	MonitorRoots         []string `toml:"monitor_roots"`
	CrawlRoots           []string `toml:"crawl_roots"`
	ShallowRoots         []string `toml:"shallow_roots"`
	ExcludedRoots        []string `toml:"excluded_roots"`
	IgnoredDirPatterns   []string `toml:"ignored_dir_patterns"`
	IgnoredFilePatterns  []string `toml:"ignored_file_patterns"`
	RequiredFilePatterns []string `toml:"required_file_patterns"`
}

// ReadModules loads every modules/*.toml manifest in configDir, skipping
// any module named in disabled. Modules are loaded once at startup and
// never reloaded for the lifetime of the process, per the core's module
// lifecycle.
func ReadModules(configDir string, disabled []string) ([]types.Module, error) {
	dir := filepath.Join(configDir, "modules")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read modules directory: %w", err)
	}

	disabledSet := make(map[string]bool, len(disabled))
	for _, d := range disabled {
		disabledSet[d] = true
	}

	var modules []types.Module
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}

		var m moduleManifest
		path := filepath.Join(dir, e.Name())
		if _, err := toml.DecodeFile(path, &m); err != nil {
			return nil, fmt.Errorf("parse module manifest %s: %w", e.Name(), err)
		}
		if m.Name == "" {
			m.Name = strings.TrimSuffix(e.Name(), ".toml")
		}
		if disabledSet[m.Name] {
			continue
		}

		modules = append(modules, types.Module{
			Name:                 m.Name,
			MonitorRoots:         m.MonitorRoots,
			CrawlRoots:           m.CrawlRoots,
			ShallowRoots:         m.ShallowRoots,
			ExcludedRoots:        m.ExcludedRoots,
			IgnoredDirPatterns:   m.IgnoredDirPatterns,
			IgnoredFilePatterns:  m.IgnoredFilePatterns,
			RequiredFilePatterns: m.RequiredFilePatterns,
		})
	}

	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })
	return modules, nil
}
