// Package metrics exposes Prometheus instrumentation for the crawl/
// monitor/queue pipeline. No metrics library appears in the teacher
// repo itself, but github.com/prometheus/client_golang is the corpus's
// shared choice for this concern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WatchCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coreindexd_watch_count",
		Help: "Active filesystem watches, by module.",
	}, []string{"module"})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coreindexd_queue_depth",
		Help: "Pending items in a module's dispatch queue, by kind.",
	}, []string{"module", "kind"})

	BlackListSuppressions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coreindexd_blacklist_suppressions_total",
		Help: "Events suppressed by the per-path debounce counter.",
	}, []string{"module"})

	CrawlDirectories = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coreindexd_crawl_directories_total",
		Help: "Directories seen during enumeration, by module and outcome.",
	}, []string{"module", "outcome"}) // outcome: found|ignored

	CrawlFiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coreindexd_crawl_files_total",
		Help: "Files seen during enumeration, by module and outcome.",
	}, []string{"module", "outcome"})

	RPCBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coreindexd_rpc_batches_total",
		Help: "Indexer RPC batches dispatched, by kind and outcome.",
	}, []string{"kind", "outcome"}) // outcome: ok|failed
)

// MustRegister registers every collector above against reg. Called once
// from app.Run with the process's registry.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(WatchCount, QueueDepth, BlackListSuppressions, CrawlDirectories, CrawlFiles, RPCBatches)
}
