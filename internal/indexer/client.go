// Package indexer is the core's RPC boundary to the external indexer
// process: a thin asynchronous client plus the inbound event stream the
// indexer pushes back.
package indexer

import "context"

// Client is the set of asynchronous calls the core issues to the
// indexer (spec section 6's method table). Every call can fail with a
// transient error; callers re-enqueue at the head of the source queue
// on failure rather than retrying here.
type Client interface {
	Pause(ctx context.Context) error
	Continue(ctx context.Context) error
	FilesCheck(ctx context.Context, module string, paths []string) error
	FilesUpdate(ctx context.Context, module string, paths []string) error
	FilesDelete(ctx context.Context, module string, paths []string) error
	FileMove(ctx context.Context, module, from, to string) error
	FilesMove(ctx context.Context, module string, from, to []string) error
	VolumeUpdateState(ctx context.Context, udi, mountPoint string, online bool) error
	VolumeDisableAll(ctx context.Context) error

	// Events delivers inbound Started/Finished/Status/Paused/Continued
	// notifications. Closed when the client is shut down.
	Events() <-chan Event

	Close() error
}

// EventKind is the inbound vocabulary the indexer may push at any time.
type EventKind int

const (
	Started EventKind = iota
	Finished
	Status
	Paused
	Continued
)

// Event is one inbound notification from the indexer.
type Event struct {
	Kind EventKind

	// Finished
	SecondsElapsed float64
	ItemsProcessed int
	ItemsIndexed   int
	Interrupted    bool

	// Status (and SecondsElapsed/ItemsProcessed/ItemsIndexed above)
	ModuleName     string
	ItemsRemaining int

	// Paused
	Reason string
}
