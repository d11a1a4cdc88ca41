package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rating-service/internal/config"
	"rating-service/internal/models"
	"rating-service/internal/ratelimit"
	"rating-service/internal/repository/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingStore struct{ err error }

func (f failingStore) CheckAndConsume(context.Context, ratelimit.Key, ratelimit.Policy, time.Time) (ratelimit.Decision, error) {
	// a broken backend may still report an optimistic decision
	return ratelimit.Decision{Allowed: true, Remaining: 5}, f.err
}

func (f failingStore) SweepExpired(context.Context, time.Time, time.Duration) (int, error) {
	return 0, f.err
}

func (f failingStore) Name() string { return "failing" }

type slowStore struct{ ratelimit.Store }

func (s slowStore) CheckAndConsume(ctx context.Context, key ratelimit.Key, p ratelimit.Policy, now time.Time) (ratelimit.Decision, error) {
	<-ctx.Done()
	return ratelimit.Decision{}, ctx.Err()
}

func newLedger(store ratelimit.Store, clock *fakeClock) *ratelimit.Ledger {
	policies := ratelimit.PoliciesFromConfig(config.RateLimitConfig{
		Window:       24 * time.Hour,
		VoteQuota:    1,
		CommentQuota: 3,
	})
	return ratelimit.NewLedger(store, policies, time.Second).WithClock(clock.Now)
}

func TestLedger_VoteOncePerWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
	ledger := newLedger(memory.NewLedgerStore(), clock)
	ctx := context.Background()

	first, err := ledger.CheckAndConsume(ctx, "identity-a", ratelimit.ActionVote, "model/x")
	if err != nil || !first.Allowed || first.Remaining != 0 {
		t.Fatalf("first vote = %+v, %v; want allowed with remaining 0", first, err)
	}

	second, err := ledger.CheckAndConsume(ctx, "identity-a", ratelimit.ActionVote, "model/x")
	if err != nil || second.Allowed || second.Remaining != 0 {
		t.Fatalf("second vote = %+v, %v; want denied with remaining 0", second, err)
	}

	other, err := ledger.CheckAndConsume(ctx, "identity-a", ratelimit.ActionVote, "model/y")
	if err != nil || !other.Allowed {
		t.Fatalf("vote on other resource = %+v, %v; want allowed", other, err)
	}
}

func TestLedger_ResetAfterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
	store := memory.NewLedgerStore()
	ledger := newLedger(store, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d, _ := ledger.CheckAndConsume(ctx, "id", ratelimit.ActionComment, models.GlobalScope); !d.Allowed {
			t.Fatalf("comment %d denied", i+1)
		}
	}
	if d, _ := ledger.CheckAndConsume(ctx, "id", ratelimit.ActionComment, models.GlobalScope); d.Allowed {
		t.Fatal("fourth comment should be denied")
	}

	clock.Advance(24 * time.Hour)

	d, err := ledger.CheckAndConsume(ctx, "id", ratelimit.ActionComment, models.GlobalScope)
	if err != nil || !d.Allowed || d.Remaining != 2 {
		t.Fatalf("after window = %+v, %v; want allowed with remaining 2", d, err)
	}

	entry, ok := store.Entry(ratelimit.Key{Identity: "id", Action: ratelimit.ActionComment, Scope: models.GlobalScope})
	if !ok || entry.Count != 1 || !entry.WindowStart.Equal(clock.Now()) {
		t.Fatalf("entry after reset = %+v", entry)
	}
}

func TestLedger_ConcurrentAttemptsNeverExceedQuota(t *testing.T) {
	tests := []struct {
		name   string
		action ratelimit.Action
		quota  int
	}{
		{name: "vote", action: ratelimit.ActionVote, quota: 1},
		{name: "comment", action: ratelimit.ActionComment, quota: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
			ledger := newLedger(memory.NewLedgerStore(), clock)

			var admitted int64
			var wg sync.WaitGroup
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d, err := ledger.CheckAndConsume(context.Background(), "racer", tt.action, "model/x")
					if err != nil {
						t.Errorf("CheckAndConsume: %v", err)
						return
					}
					if d.Allowed {
						atomic.AddInt64(&admitted, 1)
					}
				}()
			}
			wg.Wait()

			if admitted != int64(tt.quota) {
				t.Fatalf("admitted %d attempts, want %d", admitted, tt.quota)
			}
		})
	}
}

func TestLedger_FailsClosed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	storeErr := errors.New("connection reset")
	ledger := newLedger(failingStore{err: storeErr}, clock)

	d, err := ledger.CheckAndConsume(context.Background(), "id", ratelimit.ActionVote, "m")
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("decision = %+v, want denied", d)
	}
}

func TestLedger_TimeoutDenies(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	policies := ratelimit.PoliciesFromConfig(config.RateLimitConfig{Window: time.Hour, VoteQuota: 1, CommentQuota: 3})
	ledger := ratelimit.NewLedger(slowStore{memory.NewLedgerStore()}, policies, 20*time.Millisecond).WithClock(clock.Now)

	d, err := ledger.CheckAndConsume(context.Background(), "id", ratelimit.ActionVote, "m")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if d.Allowed {
		t.Fatal("timed out check must deny")
	}
}

func TestLedger_UnknownAction(t *testing.T) {
	ledger := newLedger(memory.NewLedgerStore(), &fakeClock{now: time.Now()})

	d, err := ledger.CheckAndConsume(context.Background(), "id", ratelimit.Action("like"), "m")
	if !errors.Is(err, ratelimit.ErrUnknownAction) || d.Allowed {
		t.Fatalf("got %+v, %v; want ErrUnknownAction and deny", d, err)
	}
	if _, err := ledger.Scope(ratelimit.Action("like"), "m"); !errors.Is(err, ratelimit.ErrUnknownAction) {
		t.Fatalf("Scope err = %v", err)
	}
}
