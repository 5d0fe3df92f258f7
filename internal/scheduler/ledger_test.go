package scheduler

import (
	"testing"
	"time"
)

func TestLedgerMarkAndFired(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	at := time.Date(2025, 6, 1, 7, 3, 0, 0, time.UTC)

	if l.Fired(1, at, "10:00") {
		t.Fatal("fresh ledger reports fired")
	}
	l.MarkFired(1, at, "10:00")
	if !l.Fired(1, at, "10:00") {
		t.Fatal("marked slot not reported as fired")
	}

	// Same day, different slot or channel stays independent.
	if l.Fired(1, at, "15:00") {
		t.Fatal("different slot reported as fired")
	}
	if l.Fired(2, at, "10:00") {
		t.Fatal("different channel reported as fired")
	}

	// Next day the same slot may fire again.
	if l.Fired(1, at.Add(24*time.Hour), "10:00") {
		t.Fatal("next day reported as fired")
	}
}

func TestLedgerPrune(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	l.MarkFired(1, now.Add(-5*24*time.Hour), "10:00")
	l.MarkFired(1, now.Add(-24*time.Hour), "10:00")
	l.MarkFired(1, now, "10:00")

	l.Prune(now)
	if l.Len() != 2 {
		t.Fatalf("Len = %d after prune, want 2", l.Len())
	}
	if l.Fired(1, now.Add(-5*24*time.Hour), "10:00") {
		t.Fatal("pruned entry still reported as fired")
	}
	if !l.Fired(1, now, "10:00") {
		t.Fatal("recent entry lost in prune")
	}
}
