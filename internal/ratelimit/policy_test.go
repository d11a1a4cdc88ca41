package ratelimit

import (
	"testing"
	"time"

	"rating-service/internal/config"
	"rating-service/internal/models"
)

func TestDecide(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	policy := Policy{Quota: 3, Window: 24 * time.Hour}
	key := Key{Identity: "id", Action: ActionComment, Scope: models.GlobalScope}

	entry := func(count int, age time.Duration) *models.RateLimitEntry {
		return &models.RateLimitEntry{Bucket: 7, Count: count, WindowStart: now.Add(-age), Window: 24 * time.Hour}
	}

	tests := []struct {
		name          string
		entry         *models.RateLimitEntry
		wantAllowed   bool
		wantRemaining int
		wantCount     int
		wantStart     time.Time
	}{
		{name: "first attempt", entry: nil, wantAllowed: true, wantRemaining: 2, wantCount: 1, wantStart: now},
		{name: "inside window below quota", entry: entry(1, time.Hour), wantAllowed: true, wantRemaining: 1, wantCount: 2, wantStart: now.Add(-time.Hour)},
		{name: "last slot", entry: entry(2, time.Hour), wantAllowed: true, wantRemaining: 0, wantCount: 3, wantStart: now.Add(-time.Hour)},
		{name: "quota exhausted", entry: entry(3, time.Hour), wantAllowed: false, wantRemaining: 0, wantCount: 3, wantStart: now.Add(-time.Hour)},
		{name: "window elapsed exactly", entry: entry(3, 24*time.Hour), wantAllowed: true, wantRemaining: 2, wantCount: 1, wantStart: now},
		{name: "window long elapsed", entry: entry(3, 72*time.Hour), wantAllowed: true, wantRemaining: 2, wantCount: 1, wantStart: now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, d := Decide(tt.entry, key, policy, now)
			if d.Allowed != tt.wantAllowed || d.Remaining != tt.wantRemaining {
				t.Fatalf("decision = %+v, want allowed=%v remaining=%d", d, tt.wantAllowed, tt.wantRemaining)
			}
			if next.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", next.Count, tt.wantCount)
			}
			if !next.WindowStart.Equal(tt.wantStart) {
				t.Errorf("window start = %v, want %v", next.WindowStart, tt.wantStart)
			}
			if tt.entry != nil && next.Bucket != 7 {
				t.Errorf("bucket = %d, want it carried over", next.Bucket)
			}
		})
	}
}

func TestDecide_UsesPolicyWindow(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	key := Key{Identity: "id", Action: ActionVote, Scope: "m"}

	tests := []struct {
		name        string
		stored      time.Duration
		policy      time.Duration
		age         time.Duration
		wantAllowed bool
		wantCount   int
	}{
		// the window was widened after the entry was written
		{name: "widened window still blocks", stored: time.Hour, policy: 24 * time.Hour, age: 2 * time.Hour, wantAllowed: false, wantCount: 1},
		// the window was narrowed after the entry was written
		{name: "narrowed window resets", stored: 24 * time.Hour, policy: time.Hour, age: 2 * time.Hour, wantAllowed: true, wantCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &models.RateLimitEntry{Count: 1, WindowStart: now.Add(-tt.age), Window: tt.stored}
			next, d := Decide(entry, key, Policy{Quota: 1, Window: tt.policy}, now)
			if d.Allowed != tt.wantAllowed {
				t.Fatalf("allowed = %v, want %v", d.Allowed, tt.wantAllowed)
			}
			if next.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", next.Count, tt.wantCount)
			}
			if d.Allowed && next.Window != tt.policy {
				t.Errorf("stored window = %v, want policy window %v", next.Window, tt.policy)
			}
		})
	}
}

func TestDecide_IncrementRefreshesStoredWindow(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := &models.RateLimitEntry{Count: 1, WindowStart: now.Add(-time.Minute), Window: time.Hour}

	next, d := Decide(entry, Key{Identity: "id", Action: ActionComment, Scope: models.GlobalScope}, Policy{Quota: 3, Window: 24 * time.Hour}, now)
	if !d.Allowed || next.Count != 2 {
		t.Fatalf("decision = %+v count = %d, want allowed count 2", d, next.Count)
	}
	if next.Window != 24*time.Hour {
		t.Errorf("stored window = %v, want 24h", next.Window)
	}
}

func TestPoliciesFromConfig(t *testing.T) {
	policies := PoliciesFromConfig(config.RateLimitConfig{Window: time.Hour, VoteQuota: 1, CommentQuota: 3})

	vote := policies[ActionVote]
	if vote.Quota != 1 || !vote.PerResource || vote.Scope("m/1") != "m/1" {
		t.Errorf("vote policy = %+v", vote)
	}
	comment := policies[ActionComment]
	if comment.Quota != 3 || comment.PerResource || comment.Scope("m/1") != models.GlobalScope {
		t.Errorf("comment policy = %+v", comment)
	}
}
