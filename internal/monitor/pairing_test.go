package monitor

import (
	"testing"
	"time"
)

func TestPairTable_ObserveMatch(t *testing.T) {
	p := NewPairTable()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	matched, _, _ := p.Observe(7, RawMovedFrom, "/r/a", base)
	if matched {
		t.Fatalf("first half reported a match")
	}
	if p.Empty() {
		t.Fatalf("table should hold one pending entry")
	}

	matched, otherFile, otherKind := p.Observe(7, RawMovedTo, "/r/b", base.Add(500*time.Millisecond))
	if !matched {
		t.Fatalf("second half did not match")
	}
	if otherFile != "/r/a" || otherKind != RawMovedFrom {
		t.Fatalf("Observe() = (%q, %v), want (/r/a, RawMovedFrom)", otherFile, otherKind)
	}
	if !p.Empty() {
		t.Fatalf("table should be empty after a matched pair")
	}
}

func TestPairTable_DistinctCookiesDoNotMatch(t *testing.T) {
	p := NewPairTable()
	now := time.Now()

	p.Observe(1, RawMovedFrom, "/r/a", now)
	matched, _, _ := p.Observe(2, RawMovedTo, "/r/b", now)
	if matched {
		t.Fatalf("unrelated cookies should never pair")
	}
	if p.Empty() {
		t.Fatalf("both halves should still be pending under distinct cookies")
	}
}

func TestPairTable_Sweep_TimesOutUnmatchedHalves(t *testing.T) {
	p := NewPairTable()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	p.Observe(9, RawMovedFrom, "/r/a", base)

	// Before the 2s timeout: nothing swept.
	if got := p.Sweep(base.Add(pairTimeout - time.Millisecond)); len(got) != 0 {
		t.Fatalf("Sweep() before timeout = %v, want none", got)
	}

	// At/after the 2s timeout: the half downgrades to its single-sided event.
	got := p.Sweep(base.Add(pairTimeout))
	if len(got) != 1 {
		t.Fatalf("Sweep() = %v, want exactly one timed-out half", got)
	}
	if got[0].File != "/r/a" || got[0].Kind != RawMovedFrom {
		t.Fatalf("Sweep()[0] = %+v, want {/r/a RawMovedFrom}", got[0])
	}
	if !p.Empty() {
		t.Fatalf("table should be empty after sweeping its only entry")
	}
}

func TestPairTable_Sweep_LeavesFreshEntriesAlone(t *testing.T) {
	p := NewPairTable()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	p.Observe(1, RawMovedFrom, "/r/old", base)
	p.Observe(2, RawMovedFrom, "/r/new", base.Add(1500*time.Millisecond))

	got := p.Sweep(base.Add(pairTimeout + time.Millisecond))
	if len(got) != 1 || got[0].File != "/r/old" {
		t.Fatalf("Sweep() = %v, want only /r/old timed out", got)
	}
	if p.Empty() {
		t.Fatalf("/r/new should still be pending")
	}
}

func TestPairTable_MovedToFirstThenMovedFrom(t *testing.T) {
	p := NewPairTable()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	matched, _, _ := p.Observe(3, RawMovedTo, "/r/b", base)
	if matched {
		t.Fatalf("first half (MovedTo) reported a match")
	}

	matched, otherFile, otherKind := p.Observe(3, RawMovedFrom, "/r/a", base.Add(time.Second))
	if !matched {
		t.Fatalf("second half (MovedFrom) did not match")
	}
	if otherFile != "/r/b" || otherKind != RawMovedTo {
		t.Fatalf("Observe() = (%q, %v), want (/r/b, RawMovedTo)", otherFile, otherKind)
	}
}
