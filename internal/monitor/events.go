// Package monitor wraps OS file-change notification (via fsnotify),
// debounces noisy paths through a black-list counter, and pairs rename
// halves into single Moved events.
package monitor

import "time"

// RawKind is one of the event kinds the monitor backend contract (spec
// section 6) requires a platform implementation to deliver.
type RawKind int

const (
	RawCreate RawKind = iota
	RawUpdate
	RawAttribChange
	RawDelete
	RawMovedFrom
	RawMovedTo
	RawMoveSelf
	RawDeleteSelf
	RawUnmount
	RawOverflow
)

// RawEvent is what a monitor backend delivers for one raw OS
// notification: a path, its kind, and — for move-class events — a
// correlation cookie supplied by the backend to link both halves of a
// rename. A cookie of 0 means "no correlation available".
type RawEvent struct {
	Path   string
	Kind   RawKind
	Cookie uint64
	Time   time.Time
}

// Kind is the abstract event kind the monitor emits after debouncing and
// pairing.
type Kind int

const (
	ItemCreated Kind = iota
	ItemUpdated
	ItemDeleted
	ItemMoved
)

// Event is one abstract, forwarded change notification. OtherFile and
// SourceWasMonitored are only meaningful for ItemMoved.
type Event struct {
	Module             string
	Kind               Kind
	File               string
	OtherFile          string
	IsDirectory        bool
	SourceWasMonitored bool
}
