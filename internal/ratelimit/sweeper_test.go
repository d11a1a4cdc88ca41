package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rating-service/internal/models"
	"rating-service/internal/ratelimit"
	"rating-service/internal/repository/memory"
)

func TestSweeper_RemovesOnlyLongExpiredEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.NewLedgerStore()
	ledger := newLedger(store, clock)
	ctx := context.Background()

	// old: created at t0, will be expired by more than the margin
	if _, err := ledger.CheckAndConsume(ctx, "old", ratelimit.ActionVote, "m"); err != nil {
		t.Fatal(err)
	}

	clock.Advance(36 * time.Hour)
	// recent: expired at sweep time but inside the margin
	if _, err := ledger.CheckAndConsume(ctx, "recent", ratelimit.ActionVote, "m"); err != nil {
		t.Fatal(err)
	}

	clock.Advance(11 * time.Hour)
	// active: full quota, inside its window
	if _, err := ledger.CheckAndConsume(ctx, "active", ratelimit.ActionVote, "m"); err != nil {
		t.Fatal(err)
	}

	clock.Advance(14 * time.Hour)
	// sweep at t0+61h: old ended at t0+24h (37h ago), recent at t0+60h (1h ago),
	// active started 14h ago.
	sweeper := ratelimit.NewSweeper(store, 24*time.Hour).WithClock(clock.Now)
	deleted, err := sweeper.SweepExpiredEntries(ctx, sweeper.DefaultMargin())
	if err != nil {
		t.Fatalf("SweepExpiredEntries: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	for _, id := range []string{"recent", "active"} {
		if _, ok := store.Entry(ratelimit.Key{Identity: id, Action: ratelimit.ActionVote, Scope: "m"}); !ok {
			t.Errorf("entry %q should survive the sweep", id)
		}
	}
	if _, ok := store.Entry(ratelimit.Key{Identity: "old", Action: ratelimit.ActionVote, Scope: "m"}); ok {
		t.Error("entry \"old\" should have been swept")
	}

	// the surviving full entry still blocks
	if d, _ := ledger.CheckAndConsume(ctx, "active", ratelimit.ActionVote, "m"); d.Allowed {
		t.Fatal("sweep must not reset an active entry")
	}
}

func TestSweeper_ZeroMarginNeverTouchesActiveWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.NewLedgerStore()
	ledger := newLedger(store, clock)

	if _, err := ledger.CheckAndConsume(context.Background(), "id", ratelimit.ActionComment, models.GlobalScope); err != nil {
		t.Fatal(err)
	}
	clock.Advance(23*time.Hour + 59*time.Minute)

	sweeper := ratelimit.NewSweeper(store, 0).WithClock(clock.Now)
	deleted, err := sweeper.SweepExpiredEntries(context.Background(), -time.Hour)
	if err != nil || deleted != 0 {
		t.Fatalf("deleted = %d, err = %v; want 0, nil", deleted, err)
	}
	if store.Len() != 1 {
		t.Fatalf("store has %d entries, want 1", store.Len())
	}
}

func TestSweeper_MarginHasFloor(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.NewLedgerStore()
	ledger := newLedger(store, clock)

	if _, err := ledger.CheckAndConsume(context.Background(), "id", ratelimit.ActionVote, "m"); err != nil {
		t.Fatal(err)
	}
	// the window ended 30 minutes ago, inside the minimum margin
	clock.Advance(24*time.Hour + 30*time.Minute)

	sweeper := ratelimit.NewSweeper(store, 0).WithClock(clock.Now)
	if sweeper.DefaultMargin() != models.MinSweepMargin {
		t.Errorf("DefaultMargin = %v, want %v", sweeper.DefaultMargin(), models.MinSweepMargin)
	}
	deleted, err := sweeper.SweepExpiredEntries(context.Background(), 0)
	if err != nil || deleted != 0 {
		t.Fatalf("deleted = %d, err = %v; want 0, nil", deleted, err)
	}

	clock.Advance(time.Hour)
	deleted, err = sweeper.SweepExpiredEntries(context.Background(), 0)
	if err != nil || deleted != 1 {
		t.Fatalf("deleted = %d, err = %v; want 1, nil", deleted, err)
	}
}

func TestSweeper_PropagatesStoreError(t *testing.T) {
	storeErr := errors.New("scan failed")
	sweeper := ratelimit.NewSweeper(failingStore{err: storeErr}, time.Hour)

	if _, err := sweeper.SweepExpiredEntries(context.Background(), time.Hour); !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}
