package queue

import (
	"testing"

	"coreindexd/internal/types"
)

func item(file string) types.PathItem {
	return types.PathItem{Module: "files", File: file}
}

func TestSet_NextBatch_PriorityOrder(t *testing.T) {
	s := NewSet()
	s.Push(types.Updated, item("/r/u"))
	s.Push(types.Created, item("/r/c"))
	s.Push(types.Deleted, item("/r/d"))

	batch, ok := s.NextBatch()
	if !ok {
		t.Fatalf("NextBatch() ok = false, want true")
	}
	if batch.Kind != types.Deleted {
		t.Fatalf("first batch kind = %v, want Deleted (highest priority)", batch.Kind)
	}

	batch, ok = s.NextBatch()
	if !ok || batch.Kind != types.Created {
		t.Fatalf("second batch = (%v, %v), want (Created, true)", batch.Kind, ok)
	}

	batch, ok = s.NextBatch()
	if !ok || batch.Kind != types.Updated {
		t.Fatalf("third batch = (%v, %v), want (Updated, true)", batch.Kind, ok)
	}

	if _, ok := s.NextBatch(); ok {
		t.Fatalf("NextBatch() on an empty set should report ok = false")
	}
}

func TestSet_NextBatch_CapsBatchSize(t *testing.T) {
	s := NewSet()
	for i := 0; i < 1200; i++ {
		s.Push(types.Created, item("/r/f"))
	}
	batch, ok := s.NextBatch()
	if !ok {
		t.Fatalf("NextBatch() ok = false")
	}
	if len(batch.Items) != maxBatchSize {
		t.Fatalf("len(batch.Items) = %d, want %d", len(batch.Items), maxBatchSize)
	}
	if s.Len(types.Created) != 200 {
		t.Fatalf("remaining queue length = %d, want 200", s.Len(types.Created))
	}
}

func TestSet_NextBatch_MovedCapsAtTwoPairs(t *testing.T) {
	s := NewSet()
	for i := 0; i < 5; i++ {
		s.Push(types.Moved, types.PathItem{Module: "files", File: "/r/a", OtherFile: "/r/b"})
	}
	batch, ok := s.NextBatch()
	if !ok {
		t.Fatalf("NextBatch() ok = false")
	}
	if len(batch.Items) != 2 {
		t.Fatalf("len(batch.Items) = %d, want 2 (two pairs)", len(batch.Items))
	}
	if s.Len(types.Moved) != 3 {
		t.Fatalf("remaining Moved length = %d, want 3", s.Len(types.Moved))
	}
}

func TestSet_Requeue_PreservesOrderAtHead(t *testing.T) {
	s := NewSet()
	s.Push(types.Created, item("/r/old"))

	batch, ok := s.NextBatch()
	if !ok {
		t.Fatalf("NextBatch() ok = false")
	}

	s.Push(types.Created, item("/r/new"))
	s.Requeue(types.Created, batch.Items)

	got, ok := s.NextBatch()
	if !ok || len(got.Items) != 2 {
		t.Fatalf("NextBatch() after requeue = %+v, want 2 items", got)
	}
	if got.Items[0].File != "/r/old" || got.Items[1].File != "/r/new" {
		t.Fatalf("order = %v, want [old, new] (requeued items go to the head)", got.Items)
	}
}

func TestSet_Remove_DropsFromEveryQueue(t *testing.T) {
	s := NewSet()
	s.Push(types.Created, item("/r/a"))
	s.Remove("/r/a")
	if !s.Empty() {
		t.Fatalf("Empty() = false after removing the only queued item")
	}
}

func TestSet_RemoveUnderRoot_DropsDescendants(t *testing.T) {
	s := NewSet()
	s.Push(types.Created, item("/mnt/usb/a"))
	s.Push(types.Updated, item("/mnt/usb/sub/b"))
	s.Push(types.Deleted, item("/home/user/c"))

	s.RemoveUnderRoot("/mnt/usb")

	if s.Len(types.Created) != 0 || s.Len(types.Updated) != 0 {
		t.Fatalf("items under /mnt/usb should have been dropped")
	}
	if s.Len(types.Deleted) != 1 {
		t.Fatalf("unrelated item should survive RemoveUnderRoot")
	}
}

func TestSet_AtMostOneQueueInvariant(t *testing.T) {
	s := NewSet()
	s.Push(types.Created, item("/r/a"))
	// A later Delete supersedes the pending Create: caller removes first.
	s.Remove("/r/a")
	s.Push(types.Deleted, item("/r/a"))

	count := 0
	for _, k := range types.DrainOrder {
		count += s.Len(k)
	}
	if count != 1 {
		t.Fatalf("path present in %d queues, want exactly 1", count)
	}
}

func TestSet_Empty(t *testing.T) {
	s := NewSet()
	if !s.Empty() {
		t.Fatalf("new set should be Empty()")
	}
	s.Push(types.Moved, item("/r/a"))
	if s.Empty() {
		t.Fatalf("set with one queued item should not be Empty()")
	}
}
