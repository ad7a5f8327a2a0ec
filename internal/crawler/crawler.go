// Package crawler performs asynchronous, filtered, recursive enumeration
// of a module's configured roots, adapting the teacher's bounded-walker
// goroutine pool and single-consumer channel pattern to directory
// discovery instead of file deletion.
package crawler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"coreindexd/internal/logging"
	"coreindexd/internal/metrics"
	"coreindexd/internal/types"
)

const enumerateBatchSize = 100

// maxConcurrentEnumerations bounds the goroutine pool performing
// enumerate_children, mirroring the teacher's semaphore-bounded walker.
const maxConcurrentEnumerations = 4

// EventKind is the crawler's public event vocabulary (spec section 4.3).
type EventKind int

const (
	ProcessingFile EventKind = iota
	ProcessingDirectory
	Finished
)

// Stats accumulates the four counters the spec's finished event reports.
type Stats struct {
	DirectoriesFound   int
	DirectoriesIgnored int
	FilesFound         int
	FilesIgnored       int
	Duration           time.Duration
}

// Event is one item the crawler emits.
type Event struct {
	Kind  EventKind
	Path  string
	Stats Stats
}

type rootKind int

const (
	recursiveRoot rootKind = iota
	shallowRoot
)

type queuedDir struct {
	path string
	kind rootKind
}

type enumResult struct {
	dir     queuedDir
	entries []os.DirEntry
	err     error
}

// Crawler enumerates one module's configured roots. It is not safe for
// concurrent use by more than one caller of Start/Stop/Run.
type Crawler struct {
	name   string
	module types.Module
	filter *Filter

	useModulePaths bool
	specialPaths   []string

	mu       sync.Mutex
	roots    []queuedDir
	rootIdx  int
	dirQueue []queuedDir
	fileQueue []string
	pendingEnum int
	running   bool

	sem      *semaphore.Weighted
	resultCh chan enumResult

	stats     Stats
	startTime time.Time

	Events chan Event

	log *logging.Logger
}

// New constructs a Crawler for one module. tempDir and noWatchRoots feed
// the shared Filter so monitor and crawler reject the same paths.
func New(name string, module types.Module, tempDir string, noWatchRoots []string, log *logging.Logger) *Crawler {
	return &Crawler{
		name:           name,
		module:         module,
		filter:         NewFilter(module, tempDir, noWatchRoots),
		useModulePaths: true,
		sem:            semaphore.NewWeighted(maxConcurrentEnumerations),
		resultCh:       make(chan enumResult, maxConcurrentEnumerations),
		Events:         make(chan Event, 256),
		log:            log,
	}
}

// IsPathIgnored exposes the shared filter predicate (spec section 4.3)
// so the monitor can apply identical rules to OS-delivered events.
func (c *Crawler) IsPathIgnored(path string, isDirectory bool) bool {
	return c.filter.IsIgnored(path, isDirectory)
}

// AddPath appends an extra recursive root. Valid only before Start.
func (c *Crawler) AddPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.module.CrawlRoots = append(c.module.CrawlRoots, path)
}

// SetUseModulePaths toggles whether Start considers the module's own
// configured roots, or only the explicitly added special-path set — used
// for on-demand removable-device crawls of a single mount point.
func (c *Crawler) SetUseModulePaths(use bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useModulePaths = use
}

// SpecialPathsAdd appends to the explicitly-added root set.
func (c *Crawler) SpecialPathsAdd(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specialPaths = append(c.specialPaths, path)
}

// SpecialPathsClear empties the explicitly-added root set.
func (c *Crawler) SpecialPathsClear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specialPaths = nil
}

// Start prunes non-existent roots, deduplicates, and seeds the internal
// to-visit queue. It returns false (and does nothing else) if the
// resulting recursive and shallow root sets are both empty.
func (c *Crawler) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var roots []queuedDir

	addRoot := func(path string, kind rootKind) {
		if path == "" || seen[path] {
			return
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		seen[path] = true
		roots = append(roots, queuedDir{path: path, kind: kind})
	}

	if c.useModulePaths {
		for _, p := range c.module.CrawlRoots {
			addRoot(p, recursiveRoot)
		}
		for _, p := range c.module.ShallowRoots {
			addRoot(p, shallowRoot)
		}
	}
	for _, p := range c.specialPaths {
		addRoot(p, recursiveRoot)
	}

	if len(roots) == 0 {
		return false
	}

	c.roots = roots
	c.rootIdx = 0
	c.dirQueue = []queuedDir{roots[0]}
	c.fileQueue = nil
	c.pendingEnum = 0
	c.stats = Stats{}
	c.startTime = time.Now()
	c.running = true
	return true
}

// Stop cancels the in-flight enumeration. Outstanding enumerate_children
// results are discarded as they arrive rather than synchronously
// unwound, matching the spec's asynchronous-close cancellation rule.
func (c *Crawler) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.dirQueue = nil
	c.fileQueue = nil
}

func (c *Crawler) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Run drives the cooperative tick loop until ctx is cancelled or the
// crawler finishes and emits Finished. throttle supplies the per-item
// sleep (default profile, or battery profile while on battery); isPaused
// reports the current run-state so a paused tick is a no-op.
func (c *Crawler) Run(ctx context.Context, throttle *Throttle, isPaused func() bool) {
	idleWait := time.NewTicker(50 * time.Millisecond)
	defer idleWait.Stop()

	for c.isRunning() {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		default:
		}

		if isPaused() {
			select {
			case <-ctx.Done():
				return
			case <-idleWait.C:
			}
			continue
		}

		throttle.Sleep(ctx)

		if c.tick(ctx) {
			continue
		}
		if !c.isRunning() {
			return
		}
	}
}

// tick performs exactly one unit of work and reports whether the caller
// should immediately tick again (true) or the crawler has finished and
// emitted Finished (false).
func (c *Crawler) tick(ctx context.Context) bool {
	c.mu.Lock()

	if len(c.fileQueue) > 0 {
		file := c.fileQueue[0]
		c.fileQueue = c.fileQueue[1:]
		c.stats.FilesFound++
		c.mu.Unlock()
		c.emit(Event{Kind: ProcessingFile, Path: file})
		return true
	}

	// At most maxConcurrentEnumerations results may be outstanding, so a
	// worker's send on resultCh never blocks while holding a semaphore slot.
	if len(c.dirQueue) > 0 && c.pendingEnum < maxConcurrentEnumerations {
		dir := c.dirQueue[0]
		c.dirQueue = c.dirQueue[1:]
		c.pendingEnum++
		c.mu.Unlock()
		c.emit(Event{Kind: ProcessingDirectory, Path: dir.path})
		c.enumerateAsync(ctx, dir)
		return true
	}

	if c.pendingEnum > 0 {
		c.mu.Unlock()
		c.drainOneResult()
		return true
	}

	// Both queues and all enumerations are empty: advance to the next root.
	c.rootIdx++
	if c.rootIdx >= len(c.roots) {
		c.running = false
		stats := c.stats
		stats.Duration = time.Since(c.startTime)
		c.mu.Unlock()
		c.emit(Event{Kind: Finished, Stats: stats})
		return false
	}
	c.dirQueue = []queuedDir{c.roots[c.rootIdx]}
	c.mu.Unlock()
	return true
}

// enumerateAsync reads one directory's children in a bounded worker
// goroutine and delivers the result on resultCh for the tick loop to
// fold back into the queues. The weighted semaphore caps how many reads
// run concurrently, the same role the teacher's buffered-channel ticket
// pool plays for its worker pool.
func (c *Crawler) enumerateAsync(ctx context.Context, dir queuedDir) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.resultCh <- enumResult{dir: dir, err: err}
		return
	}
	go func() {
		defer c.sem.Release(1)
		entries, err := readDirPaged(dir.path)
		c.resultCh <- enumResult{dir: dir, entries: entries, err: err}
	}()
}

// readDirPaged enumerates a directory's children in pages of
// enumerateBatchSize, the batch width spec section 4.3 calls out, and
// keeps paging until the directory is exhausted instead of stopping
// after the first page.
func readDirPaged(path string) ([]os.DirEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []os.DirEntry
	for {
		batch, err := f.ReadDir(enumerateBatchSize)
		all = append(all, batch...)
		if err != nil {
			if err == io.EOF {
				return all, nil
			}
			return all, err
		}
		if len(batch) < enumerateBatchSize {
			return all, nil
		}
	}
}

func (c *Crawler) drainOneResult() {
	res := <-c.resultCh

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingEnum--
	if !c.running {
		return
	}
	if res.err != nil {
		if c.log != nil {
			c.log.Warnf("crawler[%s]: failed to read %s: %v", c.name, res.dir.path, res.err)
		}
		return
	}

	for _, entry := range res.entries {
		childPath := filepath.Join(res.dir.path, entry.Name())
		isDir := entry.IsDir()

		if c.filter.IsIgnored(childPath, isDir) {
			if isDir {
				c.stats.DirectoriesIgnored++
				metrics.CrawlDirectories.WithLabelValues(c.name, "ignored").Inc()
			} else {
				c.stats.FilesIgnored++
				metrics.CrawlFiles.WithLabelValues(c.name, "ignored").Inc()
			}
			continue
		}

		if isDir {
			c.stats.DirectoriesFound++
			metrics.CrawlDirectories.WithLabelValues(c.name, "found").Inc()
			if res.dir.kind == recursiveRoot {
				c.dirQueue = append(c.dirQueue, queuedDir{path: childPath, kind: recursiveRoot})
			}
			continue
		}

		metrics.CrawlFiles.WithLabelValues(c.name, "found").Inc()
		c.fileQueue = append(c.fileQueue, childPath)
	}
}

func (c *Crawler) emit(ev Event) {
	select {
	case c.Events <- ev:
	default:
		if c.log != nil {
			c.log.Warnf("crawler[%s]: event channel full, dropping %v for %s", c.name, ev.Kind, ev.Path)
		}
	}
}
