package ratelimit

import (
	"time"

	"rating-service/internal/config"
	"rating-service/internal/models"
)

type Action string

const (
	ActionVote    Action = "vote"
	ActionComment Action = "comment"
)

// Policy is the static quota of one action kind. PerResource policies are
// counted per resource id; the others share the global scope.
type Policy struct {
	Quota       int
	Window      time.Duration
	PerResource bool
}

// Scope returns the ledger scope an attempt on resourceID counts against.
func (p Policy) Scope(resourceID string) string {
	if p.PerResource {
		return resourceID
	}
	return models.GlobalScope
}

// PoliciesFromConfig returns the vote and comment policies.
func PoliciesFromConfig(cfg config.RateLimitConfig) map[Action]Policy {
	return map[Action]Policy{
		ActionVote:    {Quota: cfg.VoteQuota, Window: cfg.Window, PerResource: true},
		ActionComment: {Quota: cfg.CommentQuota, Window: cfg.Window, PerResource: false},
	}
}

// Key identifies one ledger entry.
type Key struct {
	Identity string
	Action   Action
	Scope    string
}

type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Decide applies one attempt to entry, which is nil when the key has no
// ledger row yet. It returns the entry to persist and the decision. A denied
// attempt leaves the entry unchanged and must not be written.
func Decide(entry *models.RateLimitEntry, key Key, policy Policy, now time.Time) (models.RateLimitEntry, Decision) {
	if entry == nil || entry.Expired(now, policy.Window) {
		next := models.RateLimitEntry{
			Identity:    key.Identity,
			Action:      string(key.Action),
			Scope:       key.Scope,
			Count:       1,
			WindowStart: now,
			Window:      policy.Window,
		}
		if entry != nil {
			next.Bucket = entry.Bucket
		}
		return next, Decision{Allowed: true, Remaining: policy.Quota - 1}
	}

	next := *entry
	if next.Count < policy.Quota {
		next.Count++
		next.Window = policy.Window
		return next, Decision{Allowed: true, Remaining: policy.Quota - next.Count}
	}
	return next, Decision{Allowed: false, Remaining: 0}
}
