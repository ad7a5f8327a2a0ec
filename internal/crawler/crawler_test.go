package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", path, err)
	}
}

func mustWriteFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

// drain runs the crawler's tick loop synchronously to completion and
// collects every emitted event — there is no throttle or pause gate
// involved, so this exercises the same state machine Run drives without
// depending on wall-clock timing.
func drain(t *testing.T, c *Crawler) []Event {
	t.Helper()
	ctx := context.Background()
	var events []Event

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range c.Events {
			events = append(events, ev)
			if ev.Kind == Finished {
				return
			}
		}
	}()

	for c.tick(ctx) {
	}

	<-done
	return events
}

func TestCrawler_Start_FalseWhenNoRootsExist(t *testing.T) {
	m := testModule()
	m.CrawlRoots = []string{"/does/not/exist"}
	m.ShallowRoots = nil
	c := New("files", m, "/tmp", nil, nil)
	if c.Start() {
		t.Fatalf("Start() = true, want false when every configured root is missing")
	}
}

func TestCrawler_EnumeratesRecursiveRoot(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.txt"))
	mustWriteFile(t, filepath.Join(root, "b.txt"))
	sub := filepath.Join(root, "sub")
	mustMkdir(t, sub)
	mustWriteFile(t, filepath.Join(sub, "c.txt"))

	m := testModule()
	m.MonitorRoots = nil
	m.CrawlRoots = []string{root}
	m.ShallowRoots = nil
	m.IgnoredDirPatterns = nil
	m.IgnoredFilePatterns = nil

	c := New("files", m, filepath.Join(root, "__not_temp__"), nil, nil)
	if !c.Start() {
		t.Fatalf("Start() = false, want true")
	}

	events := drain(t, c)

	var files []string
	var finished *Event
	for i := range events {
		switch events[i].Kind {
		case ProcessingFile:
			files = append(files, events[i].Path)
		case Finished:
			finished = &events[i]
		}
	}

	want := map[string]bool{
		filepath.Join(root, "a.txt"): true,
		filepath.Join(root, "b.txt"): true,
		filepath.Join(sub, "c.txt"):  true,
	}
	if len(files) != len(want) {
		t.Fatalf("got %d files, want %d: %v", len(files), len(want), files)
	}
	for _, f := range files {
		if !want[f] {
			t.Fatalf("unexpected file emitted: %s", f)
		}
	}

	if finished == nil {
		t.Fatalf("no Finished event emitted")
	}
	if finished.Stats.FilesFound != 3 {
		t.Fatalf("Stats.FilesFound = %d, want 3", finished.Stats.FilesFound)
	}
	if finished.Stats.DirectoriesFound != 1 {
		t.Fatalf("Stats.DirectoriesFound = %d, want 1", finished.Stats.DirectoriesFound)
	}
}

func TestCrawler_ShallowRootDoesNotRecurse(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "top.txt"))
	sub := filepath.Join(root, "sub")
	mustMkdir(t, sub)
	mustWriteFile(t, filepath.Join(sub, "nested.txt"))

	m := testModule()
	m.MonitorRoots = nil
	m.CrawlRoots = nil
	m.ShallowRoots = []string{root}
	m.IgnoredDirPatterns = nil
	m.IgnoredFilePatterns = nil

	c := New("files", m, filepath.Join(root, "__not_temp__"), nil, nil)
	if !c.Start() {
		t.Fatalf("Start() = false, want true")
	}

	events := drain(t, c)

	var files []string
	for _, ev := range events {
		if ev.Kind == ProcessingFile {
			files = append(files, ev.Path)
		}
	}
	if len(files) != 1 || files[0] != filepath.Join(root, "top.txt") {
		t.Fatalf("files = %v, want only the shallow root's direct child", files)
	}
}

func TestCrawler_IgnoredDirectoryIsSkippedAndCounted(t *testing.T) {
	root := t.TempDir()
	ignored := filepath.Join(root, "node_modules")
	mustMkdir(t, ignored)
	mustWriteFile(t, filepath.Join(ignored, "pkg.json"))
	mustWriteFile(t, filepath.Join(root, "keep.txt"))

	m := testModule()
	m.MonitorRoots = nil
	m.CrawlRoots = []string{root}
	m.ShallowRoots = nil

	c := New("files", m, filepath.Join(root, "__not_temp__"), nil, nil)
	if !c.Start() {
		t.Fatalf("Start() = false, want true")
	}

	events := drain(t, c)

	var files []string
	var finished *Event
	for i := range events {
		switch events[i].Kind {
		case ProcessingFile:
			files = append(files, events[i].Path)
		case Finished:
			finished = &events[i]
		}
	}

	if len(files) != 1 || files[0] != filepath.Join(root, "keep.txt") {
		t.Fatalf("files = %v, want only keep.txt (node_modules excluded)", files)
	}
	if finished == nil || finished.Stats.DirectoriesIgnored != 1 {
		t.Fatalf("finished = %+v, want DirectoriesIgnored = 1", finished)
	}
}

func TestCrawler_EnumeratesDirectoryLargerThanOneBatch(t *testing.T) {
	root := t.TempDir()
	const n = enumerateBatchSize + 37
	for i := 0; i < n; i++ {
		mustWriteFile(t, filepath.Join(root, fmt.Sprintf("f%04d.txt", i)))
	}

	m := testModule()
	m.MonitorRoots = nil
	m.CrawlRoots = []string{root}
	m.ShallowRoots = nil
	m.IgnoredDirPatterns = nil
	m.IgnoredFilePatterns = nil

	c := New("files", m, filepath.Join(root, "__not_temp__"), nil, nil)
	if !c.Start() {
		t.Fatalf("Start() = false, want true")
	}

	events := drain(t, c)

	var files int
	var finished *Event
	for i := range events {
		switch events[i].Kind {
		case ProcessingFile:
			files++
		case Finished:
			finished = &events[i]
		}
	}

	if files != n {
		t.Fatalf("files = %d, want %d (no entries dropped past the first batch)", files, n)
	}
	if finished == nil || finished.Stats.FilesFound != n {
		t.Fatalf("finished = %+v, want FilesFound = %d", finished, n)
	}
}

func TestCrawler_AddPath_RejectedOnceRunning(t *testing.T) {
	root := t.TempDir()
	m := testModule()
	m.CrawlRoots = []string{root}
	m.ShallowRoots = nil
	c := New("files", m, "/tmp", nil, nil)
	if !c.Start() {
		t.Fatalf("Start() = false, want true")
	}
	c.AddPath("/another/root")
	if len(c.module.CrawlRoots) != 1 {
		t.Fatalf("AddPath should be a no-op once running")
	}
}
