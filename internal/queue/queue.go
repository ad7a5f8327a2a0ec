// Package queue implements the processor's per-module FIFO queue set:
// one queue each of kind Deleted, Created, Updated, Moved, drained in
// strict priority order with head re-enqueue on dispatch failure.
package queue

import (
	"sync"

	"coreindexd/internal/pathutil"
	"coreindexd/internal/types"
)

const (
	// maxBatchSize bounds a single drain for CREATED/UPDATED/DELETED
	// queues (spec section 4.4's "up to 1000 items/batch").
	maxBatchSize = 1000
	// maxMoveBatchPairs bounds a MOVED drain to two pairs at a time.
	maxMoveBatchPairs = 2
)

// Set is one module's four FIFO queues. A path may appear in at most
// one queue at a time (invariant 1) — callers are responsible for that
// invariant since only the processor knows a path's current membership.
type Set struct {
	mu     sync.Mutex
	queues map[types.QueueKind][]types.PathItem
}

// NewSet returns an empty queue set with all four kinds initialized.
func NewSet() *Set {
	s := &Set{queues: make(map[types.QueueKind][]types.PathItem)}
	for _, k := range types.DrainOrder {
		s.queues[k] = nil
	}
	return s
}

// Push appends item to the kind queue.
func (s *Set) Push(kind types.QueueKind, item types.PathItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[kind] = append(s.queues[kind], item)
}

// Remove drops file from every queue, used when a later event (e.g. a
// DELETE) supersedes an item still waiting to be dispatched.
func (s *Set) Remove(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, items := range s.queues {
		s.queues[kind] = removeByFile(items, file)
	}
}

func removeByFile(items []types.PathItem, file string) []types.PathItem {
	out := items[:0]
	for _, it := range items {
		if it.File != file {
			out = append(out, it)
		}
	}
	return out
}

// RemoveUnderRoot drops every item whose File is root or falls under it,
// used on device unmount to drop pending crawl items beneath the
// departed mount point.
func (s *Set) RemoveUnderRoot(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, items := range s.queues {
		out := items[:0]
		for _, it := range items {
			if !pathutil.SamePath(root, it.File) && !pathutil.IsUnder(root, it.File) {
				out = append(out, it)
			}
		}
		s.queues[kind] = out
	}
}

// Empty reports whether every queue is empty.
func (s *Set) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, items := range s.queues {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

// Len reports the number of items currently queued under kind.
func (s *Set) Len(kind types.QueueKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[kind])
}

// Batch is one drained unit of work ready for RPC dispatch.
type Batch struct {
	Kind  types.QueueKind
	Items []types.PathItem
}

// NextBatch inspects the queues in the fixed priority order Deleted >
// Created > Updated > Moved (types.DrainOrder) and pops a batch from the
// first non-empty one. It reports ok=false if every queue is empty.
func (s *Set) NextBatch() (batch Batch, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range types.DrainOrder {
		items := s.queues[kind]
		if len(items) == 0 {
			continue
		}

		limit := maxBatchSize
		if kind == types.Moved {
			// Each Moved item carries a whole (File, OtherFile) pair.
			limit = maxMoveBatchPairs
		}
		if limit > len(items) {
			limit = len(items)
		}

		popped := make([]types.PathItem, limit)
		copy(popped, items[:limit])
		s.queues[kind] = items[limit:]

		return Batch{Kind: kind, Items: popped}, true
	}
	return Batch{}, false
}

// NextBatchOfKind pops a batch from this set's kind queue only, applying
// the same per-kind size cap as NextBatch. It reports ok=false if that
// queue is empty. Callers that must rank several modules' queues by
// priority before picking a module (spec section 4.4: priority order is
// the outer key, module order only breaks ties within a tier) drive the
// kind loop themselves and call this instead of NextBatch.
func (s *Set) NextBatchOfKind(kind types.QueueKind) (batch Batch, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.queues[kind]
	if len(items) == 0 {
		return Batch{}, false
	}

	limit := maxBatchSize
	if kind == types.Moved {
		limit = maxMoveBatchPairs
	}
	if limit > len(items) {
		limit = len(items)
	}

	popped := make([]types.PathItem, limit)
	copy(popped, items[:limit])
	s.queues[kind] = items[limit:]

	return Batch{Kind: kind, Items: popped}, true
}

// Requeue pushes items back onto the head of the kind queue, preserving
// their relative order — used when an RPC dispatch fails (spec section
// 4.4: "re-enqueued at the head of the queue preserving order").
func (s *Set) Requeue(kind types.QueueKind, items []types.PathItem) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[kind] = append(append([]types.PathItem{}, items...), s.queues[kind]...)
}
