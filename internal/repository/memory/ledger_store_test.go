package memory

import (
	"context"
	"testing"
	"time"

	"rating-service/internal/ratelimit"
)

func TestLedgerStore_DeniedAttemptNotWritten(t *testing.T) {
	store := NewLedgerStore()
	key := ratelimit.Key{Identity: "a", Action: ratelimit.ActionVote, Scope: "m"}
	policy := ratelimit.Policy{Quota: 1, Window: time.Hour, PerResource: true}
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if d, err := store.CheckAndConsume(context.Background(), key, policy, t0); err != nil || !d.Allowed {
		t.Fatalf("first = %+v, %v", d, err)
	}
	if d, _ := store.CheckAndConsume(context.Background(), key, policy, t0.Add(time.Minute)); d.Allowed {
		t.Fatal("second attempt should be denied")
	}

	entry, _ := store.Entry(key)
	if entry.Count != 1 || !entry.WindowStart.Equal(t0) {
		t.Fatalf("entry = %+v, want count 1 from t0", entry)
	}
}

func TestLedgerStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLedgerStore().CheckAndConsume(ctx, ratelimit.Key{}, ratelimit.Policy{Quota: 1, Window: time.Hour}, time.Now())
	if err == nil {
		t.Fatal("expected context error")
	}
}
