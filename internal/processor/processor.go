// Package processor drives the overall pipeline: it owns per-module
// crawlers, the monitor, the per-module queue tables, the device list,
// and the RPC connection to the indexer, implementing the driver state
// machine from spec section 4.4.
package processor

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"coreindexd/internal/crawler"
	"coreindexd/internal/indexer"
	"coreindexd/internal/logging"
	"coreindexd/internal/metrics"
	"coreindexd/internal/monitor"
	"coreindexd/internal/queue"
	"coreindexd/internal/status"
	"coreindexd/internal/types"
	"coreindexd/internal/volume"
)

const (
	drainIntervalNormal = 2 * time.Second
	drainIntervalQuick  = 1 * time.Second
	quickThreshold      = 50
)

type driverPhase int

const (
	phaseModules driverPhase = iota
	phaseDevices
	phaseDraining
)

type deviceWork struct {
	module string
	root   string
}

// statusNotifier adapts indexer.Client to status.Notifier, since the
// status owner's Pause/Continue calls are synchronous and
// context-free while the RPC client methods are not.
type statusNotifier struct{ client indexer.Client }

func (n statusNotifier) Pause() error    { return n.client.Pause(context.Background()) }
func (n statusNotifier) Continue() error { return n.client.Continue(context.Background()) }

// ioPauseAdapter lets the monitor flip the IO pause reason on the
// status owner without the monitor package importing status.
type ioPauseAdapter struct{ owner *status.Owner }

func (a ioPauseAdapter) SetIOPause(v bool) { a.owner.SetPause(types.IO, v) }

// NewStatusNotifier builds the status.Notifier the app wires into
// status.New.
func NewStatusNotifier(client indexer.Client) status.Notifier { return statusNotifier{client: client} }

// NewIOPauseSetter builds the monitor.IOPauseSetter the app wires into
// monitor.New.
func NewIOPauseSetter(owner *status.Owner) monitor.IOPauseSetter { return ioPauseAdapter{owner: owner} }

// crawlerEvent tags a crawler.Event with the module whose crawler
// produced it, so all per-module crawler goroutines can fan their
// events into one channel the driver loop selects on.
type crawlerEvent struct {
	module string
	ev     crawler.Event
}

// Processor is the pipeline driver.
type Processor struct {
	cfg          types.AppConfig
	modules      []types.Module
	moduleByName map[string]types.Module

	status    *status.Owner
	client    indexer.Client
	mon       *monitor.Monitor
	vol       volume.Backend
	throttle  *crawler.Throttle
	tempDir   string
	noWatch   []string
	log       *logging.Logger

	mu       sync.Mutex
	queues   map[string]*queue.Set
	filters  map[string]*crawler.Filter
	crawlers map[string]*crawler.Crawler
	devices  map[string]types.Device

	crawlerEvents chan crawlerEvent

	phase       driverPhase
	moduleIdx   int
	deviceQueue []deviceWork
	deviceIdx   int

	indexerFinishedSignal bool
	Finished              chan struct{}
	finishedOnce          sync.Once
}

// New builds a Processor. The caller starts mon.Run/vol.Run separately;
// Start begins the driver loop that consumes their event channels.
func New(cfg types.AppConfig, modules []types.Module, owner *status.Owner, client indexer.Client,
	mon *monitor.Monitor, vol volume.Backend, throttle *crawler.Throttle, tempDir string, log *logging.Logger) *Processor {

	byName := make(map[string]types.Module, len(modules))
	queues := make(map[string]*queue.Set, len(modules))
	filters := make(map[string]*crawler.Filter, len(modules))
	crawlers := make(map[string]*crawler.Crawler, len(modules))

	for _, m := range modules {
		byName[m.Name] = m
		queues[m.Name] = queue.NewSet()
		filters[m.Name] = crawler.NewFilter(m, tempDir, cfg.NoWatchRoots)
		crawlers[m.Name] = crawler.New(m.Name, m, tempDir, cfg.NoWatchRoots, log)
	}

	return &Processor{
		cfg:           cfg,
		modules:       modules,
		moduleByName:  byName,
		status:        owner,
		client:        client,
		mon:           mon,
		vol:           vol,
		throttle:      throttle,
		tempDir:       tempDir,
		noWatch:       cfg.NoWatchRoots,
		log:           log,
		queues:        queues,
		filters:       filters,
		crawlers:      crawlers,
		devices:       make(map[string]types.Device),
		crawlerEvents: make(chan crawlerEvent, 512),
		Finished:      make(chan struct{}),
	}
}

func (p *Processor) isPaused() bool {
	snap := p.status.Snapshot()
	return snap.IsPaused() || snap.State == types.Watching || snap.State == types.Pending
}

// Start seeds the driver at the module phase and runs the central event
// loop until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.phase = phaseModules
	p.startModuleFrom(ctx, 0)
	go p.loop(ctx)
}

func (p *Processor) loop(ctx context.Context) {
	drainTimer := time.NewTimer(drainIntervalNormal)
	defer drainTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ce := <-p.crawlerEvents:
			p.handleCrawlerEvent(ctx, ce)

		case ev, ok := <-p.mon.Events:
			if !ok {
				continue
			}
			p.handleMonitorEvent(ctx, ev)

		case ev, ok := <-p.client.Events():
			if !ok {
				continue
			}
			p.handleIndexerEvent(ev)

		case ev, ok := <-p.vol.Events():
			if !ok {
				continue
			}
			if ev.Added {
				p.MountPointAdded(ctx, ev.UDI, ev.MountPoint)
			} else {
				p.MountPointRemoved(ev.UDI, ev.MountPoint)
			}

		case <-drainTimer.C:
			p.drainTick()
			drainTimer.Reset(p.nextDrainInterval())
		}
	}
}

func (p *Processor) nextDrainInterval() time.Duration {
	if p.outstandingItems() <= quickThreshold {
		return drainIntervalQuick
	}
	return drainIntervalNormal
}

func (p *Processor) outstandingItems() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, q := range p.queues {
		for _, k := range types.DrainOrder {
			total += q.Len(k)
		}
	}
	return total
}

// ---- module / device iteration ----

func (p *Processor) startModuleFrom(ctx context.Context, idx int) {
	for idx < len(p.modules) {
		m := p.modules[idx]
		if p.cfg.ModuleDisabled(m.Name) {
			idx++
			continue
		}
		for _, root := range m.MonitorRoots {
			p.mon.Add(m.Name, root)
		}
		cr := p.crawlers[m.Name]
		cr.SetUseModulePaths(true)
		if cr.Start() {
			p.moduleIdx = idx
			p.runCrawler(ctx, m.Name, cr)
			return
		}
		idx++
	}
	p.moduleIdx = len(p.modules)
	p.enterDevicePhase(ctx)
}

func (p *Processor) enterDevicePhase(ctx context.Context) {
	p.phase = phaseDevices
	p.deviceQueue = nil

	if p.cfg.IndexRemovableDevices {
		removable, _ := p.vol.Roots()
		sort.Strings(removable)
		for _, m := range p.modules {
			if p.cfg.ModuleDisabled(m.Name) {
				continue
			}
			for _, root := range removable {
				p.deviceQueue = append(p.deviceQueue, deviceWork{module: m.Name, root: root})
			}
		}
	}

	p.startDeviceFrom(ctx, 0)
}

func (p *Processor) startDeviceFrom(ctx context.Context, idx int) {
	for idx < len(p.deviceQueue) {
		dw := p.deviceQueue[idx]
		cr := p.crawlers[dw.module]
		cr.SpecialPathsClear()
		cr.SpecialPathsAdd(dw.root)
		cr.SetUseModulePaths(false)
		p.mon.Add(dw.module, dw.root)
		if cr.Start() {
			p.deviceIdx = idx
			p.runCrawler(ctx, dw.module, cr)
			return
		}
		idx++
	}
	p.deviceIdx = len(p.deviceQueue)
	p.phase = phaseDraining
	p.checkFullyFinished()
}

// runCrawler spawns the crawler's cooperative tick loop plus a fan-in
// goroutine forwarding its events into the shared crawlerEvents channel.
func (p *Processor) runCrawler(ctx context.Context, module string, cr *crawler.Crawler) {
	go cr.Run(ctx, p.throttle, p.isPaused)
	go func() {
		for ev := range cr.Events {
			select {
			case p.crawlerEvents <- crawlerEvent{module: module, ev: ev}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Processor) handleCrawlerEvent(ctx context.Context, ce crawlerEvent) {
	switch ce.ev.Kind {
	case crawler.ProcessingDirectory:
		p.mon.Add(ce.module, ce.ev.Path)
		p.enqueue(ce.module, types.Created, ce.ev.Path, "", true)
	case crawler.ProcessingFile:
		p.enqueue(ce.module, types.Created, ce.ev.Path, "", false)
	case crawler.Finished:
		p.advanceDriver(ctx, ce.module)
	}
}

func (p *Processor) advanceDriver(ctx context.Context, module string) {
	switch p.phase {
	case phaseModules:
		p.startModuleFrom(ctx, p.moduleIdx+1)
	case phaseDevices:
		p.startDeviceFrom(ctx, p.deviceIdx+1)
	default:
		// A late-finishing ephemeral crawl (unexpected-root discovery):
		// no driver advance needed, just feed the queues via its events.
	}
}

// ---- monitor event routing ----

func (p *Processor) handleMonitorEvent(ctx context.Context, ev monitor.Event) {
	filter := p.filters[ev.Module]
	if filter == nil {
		return
	}

	switch ev.Kind {
	case monitor.ItemCreated, monitor.ItemUpdated:
		info, err := os.Stat(ev.File)
		isDir := err == nil && info.IsDir()
		if filter.IsIgnored(ev.File, isDir) {
			return
		}
		kind := types.Created
		if ev.Kind == monitor.ItemUpdated {
			kind = types.Updated
		}
		p.enqueue(ev.Module, kind, ev.File, "", isDir)
		if isDir && ev.Kind == monitor.ItemCreated {
			p.crawlUnexpectedRoot(ctx, ev.Module, ev.File)
		}

	case monitor.ItemDeleted:
		p.queueFor(ev.Module).Remove(ev.File)
		p.enqueue(ev.Module, types.Deleted, ev.File, "", false)

	case monitor.ItemMoved:
		p.handleMove(ctx, ev)
	}
}

func (p *Processor) handleMove(ctx context.Context, ev monitor.Event) {
	sourceMonitored := p.mon.IsWatched(ev.Module, ev.File)
	if !sourceMonitored {
		if info, err := os.Stat(ev.OtherFile); err == nil && info.IsDir() {
			p.crawlUnexpectedRoot(ctx, ev.Module, ev.OtherFile)
		}
		return
	}

	targetInfo, targetErr := os.Stat(ev.OtherFile)
	targetIsDir := targetErr == nil && targetInfo.IsDir()
	if filter := p.filters[ev.Module]; filter != nil && (targetErr != nil || filter.IsIgnored(ev.OtherFile, targetIsDir)) {
		p.queueFor(ev.Module).Remove(ev.File)
		p.enqueue(ev.Module, types.Deleted, ev.File, "", false)
		return
	}

	q := p.queueFor(ev.Module)
	q.Remove(ev.File)
	q.Remove(ev.OtherFile)
	p.enqueue(ev.Module, types.Moved, ev.File, ev.OtherFile, targetIsDir)
}

// crawlUnexpectedRoot starts a throwaway crawl of a directory that
// appeared without having been discovered by the module's own
// enumeration order (spec section 4.4: "unexpected-path crawl").
func (p *Processor) crawlUnexpectedRoot(ctx context.Context, module, path string) {
	m, ok := p.moduleByName[module]
	if !ok {
		return
	}

	cr := crawler.New(module, m, p.tempDir, p.noWatch, p.log)
	cr.SetUseModulePaths(false)
	cr.SpecialPathsAdd(path)
	if !cr.Start() {
		return
	}
	p.runCrawler(ctx, module, cr)
}

func (p *Processor) queueFor(module string) *queue.Set {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queues[module]
}

func (p *Processor) enqueue(module string, kind types.QueueKind, file, other string, recursive bool) {
	q := p.queueFor(module)
	if q == nil {
		return
	}
	q.Push(kind, types.PathItem{Module: module, File: file, OtherFile: other, Recursive: recursive})
	metrics.QueueDepth.WithLabelValues(module, kind.String()).Set(float64(q.Len(kind)))
}

// ---- explicit injection (files_check / files_update / files_delete / files_move) ----

func (p *Processor) FilesCheck(module string, paths []string)  { p.injectMany(module, types.Created, paths) }
func (p *Processor) FilesUpdate(module string, paths []string) { p.injectMany(module, types.Updated, paths) }
func (p *Processor) FilesDelete(module string, paths []string) { p.injectMany(module, types.Deleted, paths) }

func (p *Processor) FilesMove(module string, from, to []string) {
	q := p.queueFor(module)
	if q == nil {
		return
	}
	n := len(from)
	if len(to) < n {
		n = len(to)
	}
	for i := 0; i < n; i++ {
		q.Remove(from[i])
		q.Remove(to[i])
		p.enqueue(module, types.Moved, from[i], to[i], false)
	}
}

func (p *Processor) injectMany(module string, kind types.QueueKind, paths []string) {
	for _, path := range paths {
		p.queueFor(module).Remove(path)
		p.enqueue(module, kind, path, "", false)
	}
}

// ---- device lifecycle ----

func (p *Processor) MountPointAdded(ctx context.Context, udi, mountPoint string) {
	p.mu.Lock()
	p.devices[udi] = types.Device{UDI: udi, MountPoint: mountPoint, Mounted: true}
	wasIdle := p.phase == phaseDraining && len(p.deviceQueue) == p.deviceIdx
	p.mu.Unlock()

	if wasIdle && p.cfg.IndexRemovableDevices {
		p.phase = phaseDevices
		for _, m := range p.modules {
			if !p.cfg.ModuleDisabled(m.Name) {
				p.deviceQueue = append(p.deviceQueue, deviceWork{module: m.Name, root: mountPoint})
			}
		}
		p.startDeviceFrom(ctx, p.deviceIdx)
	}

	_ = p.client.VolumeUpdateState(context.Background(), udi, mountPoint, true)
}

func (p *Processor) MountPointRemoved(udi, mountPoint string) {
	p.mu.Lock()
	delete(p.devices, udi)
	p.mu.Unlock()

	p.mon.RemoveUnderRoot(mountPoint)
	for _, q := range p.queues {
		q.RemoveUnderRoot(mountPoint)
	}
	_ = p.client.VolumeUpdateState(context.Background(), udi, mountPoint, false)
}

// ---- indexer feedback + queue drain ----

func (p *Processor) handleIndexerEvent(ev indexer.Event) {
	switch ev.Kind {
	case indexer.Finished:
		p.indexerFinishedSignal = true
		p.checkFullyFinished()
	case indexer.Status, indexer.Started, indexer.Paused, indexer.Continued:
		// Not acted on; only logged at debug level.
		if p.log != nil {
			p.log.Debugf("processor: indexer event %v", ev.Kind)
		}
	}
}

// drainTick attempts one RPC batch, respecting the single-in-flight and
// pause rules from spec section 4.4. Priority order (Deleted > Created >
// Updated > Moved) is the outer key across every module; module order
// only breaks ties within one priority tier, so a Deleted batch waiting
// in a later module still dispatches before an earlier module's Updated
// or Moved batch.
func (p *Processor) drainTick() {
	if p.isPaused() {
		return
	}

	names := p.moduleNamesInOrder()
	for _, kind := range types.DrainOrder {
		for _, module := range names {
			q := p.queues[module]
			batch, ok := q.NextBatchOfKind(kind)
			if !ok {
				continue
			}
			p.dispatch(module, q, batch)
			return
		}
	}

	p.checkFullyFinished()
}

func (p *Processor) moduleNamesInOrder() []string {
	names := make([]string, 0, len(p.modules))
	for _, m := range p.modules {
		names = append(names, m.Name)
	}
	return names
}

func (p *Processor) dispatch(module string, q *queue.Set, batch queue.Batch) {
	p.indexerFinishedSignal = false

	paths := make([]string, len(batch.Items))
	for i, it := range batch.Items {
		paths[i] = it.File
	}

	ctx := context.Background()
	var err error

	switch batch.Kind {
	case types.Deleted:
		err = p.client.FilesDelete(ctx, module, paths)
	case types.Created:
		err = p.client.FilesCheck(ctx, module, paths)
	case types.Updated:
		err = p.client.FilesUpdate(ctx, module, paths)
	case types.Moved:
		from := make([]string, 0, len(batch.Items))
		to := make([]string, 0, len(batch.Items))
		for _, it := range batch.Items {
			from = append(from, it.File)
			to = append(to, it.OtherFile)
		}
		err = p.client.FilesMove(ctx, module, from, to)
	}

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		q.Requeue(batch.Kind, batch.Items)
		if p.log != nil {
			p.log.Errorf("processor: %s batch for module %s failed, re-queued: %v", batch.Kind, module, err)
		}
	}
	metrics.RPCBatches.WithLabelValues(batch.Kind.String(), outcome).Inc()
}

// checkFullyFinished closes Finished the first time the driver is draining,
// every queue is empty and the indexer has signalled Finished (spec section
// 4.4: "fully finished"). It closes the channel at most once per Processor.
func (p *Processor) checkFullyFinished() {
	if p.phase != phaseDraining {
		return
	}
	if !p.indexerFinishedSignal {
		return
	}
	if p.outstandingItems() > 0 {
		return
	}
	p.finishedOnce.Do(func() { close(p.Finished) })
}
