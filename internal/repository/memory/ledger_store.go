// Package memory provides in-process implementations of the stores for
// single-instance deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"rating-service/internal/models"
	"rating-service/internal/ratelimit"
)

// LedgerStore serializes every check-and-consume behind one mutex.
type LedgerStore struct {
	mu      sync.Mutex
	entries map[ratelimit.Key]models.RateLimitEntry
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{entries: make(map[ratelimit.Key]models.RateLimitEntry)}
}

func (s *LedgerStore) Name() string { return "memory" }

func (s *LedgerStore) CheckAndConsume(ctx context.Context, key ratelimit.Key, policy ratelimit.Policy, now time.Time) (ratelimit.Decision, error) {
	if err := ctx.Err(); err != nil {
		return ratelimit.Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current *models.RateLimitEntry
	if e, ok := s.entries[key]; ok {
		current = &e
	}

	next, decision := ratelimit.Decide(current, key, policy, now)
	if decision.Allowed {
		s.entries[key] = next
	}
	return decision, nil
}

func (s *LedgerStore) SweepExpired(ctx context.Context, now time.Time, margin time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, entry := range s.entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if entry.Purgeable(now, margin) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Entry returns a copy of the entry stored under key.
func (s *LedgerStore) Entry(key ratelimit.Key) (models.RateLimitEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *LedgerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
