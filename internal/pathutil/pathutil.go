// Package pathutil holds small path-safety helpers shared by the monitor,
// crawler, and processor. None of it touches the filesystem except the
// writability probe.
package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path is not safely contained within a
// configured root.
var ErrEscapesRoot = errors.New("path escapes root")

// RelUnder computes path relative to root and fails if the result would
// climb out of root (a ".." component, or root/"../"-prefixed result).
func RelUnder(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	rel = filepath.Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrEscapesRoot
	}
	return rel, nil
}

// IsUnder reports whether path is root itself or a descendant of root.
func IsUnder(root, path string) bool {
	if SamePath(root, path) {
		return true
	}
	rel, err := RelUnder(root, path)
	if err != nil {
		return false
	}
	return rel != "."
}

// SamePath compares two filesystem paths for equality, tolerating the
// case-insensitivity of some platforms and filesystems.
func SamePath(a, b string) bool {
	pa, err1 := filepath.Abs(a)
	pb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return strings.EqualFold(filepath.Clean(pa), filepath.Clean(pb))
}

// IsDirWritable validates that dir exists, is a directory, and accepts a
// real write. Used before the core commits to a role (MainInstance,
// data-directory owner) that requires durable writes.
func IsDirWritable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.CreateTemp(dir, ".writetest_*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}

// MatchesAny reports whether base matches any of the given glob patterns
// (path/filepath.Match semantics — no library glob engine is available in
// this module's dependency set).
func MatchesAny(patterns []string, base string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, base); err == nil && ok {
			return true
		}
	}
	return false
}
