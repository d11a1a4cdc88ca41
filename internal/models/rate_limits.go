package models

import "time"

// GlobalScope is the resource scope of quotas shared across all resources.
const GlobalScope = "*"

// MinSweepMargin is the smallest retention margin a sweep runs with, so
// clock skew between nodes cannot purge an entry at its window boundary.
const MinSweepMargin = time.Hour

// RateLimitEntry is one ledger row keyed by (Identity, Action, Scope).
// Bucket is the storage partition derived from the identity.
type RateLimitEntry struct {
	Bucket      int           `db:"bucket"`
	Identity    string        `db:"identity"`
	Action      string        `db:"action"`
	Scope       string        `db:"scope"`
	Count       int           `db:"count"`
	WindowStart time.Time     `db:"window_start"`
	Window      time.Duration `db:"window_ms"`
}

// Expired reports whether a window of length window opened at WindowStart
// has elapsed at now. Callers pass the current policy window, not the stored
// one, so every backend decides against the same duration.
func (e *RateLimitEntry) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(e.WindowStart) >= window
}

// Purgeable reports whether the entry's window ended more than margin ago.
func (e *RateLimitEntry) Purgeable(now time.Time, margin time.Duration) bool {
	return !now.Before(e.WindowStart.Add(e.Window).Add(margin))
}
