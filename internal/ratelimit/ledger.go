package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rating-service/internal/metrics"
	"rating-service/internal/util"

	"go.uber.org/zap"
)

var (
	ErrUnknownAction = errors.New("unknown rate limit action")
	// ErrContention is returned by stores that gave up on a compare-and-set
	// loop. The attempt is denied.
	ErrContention = errors.New("rate limit entry under contention")
)

// Store performs the read-check-write of one attempt as a single atomic
// operation against its backend.
type Store interface {
	CheckAndConsume(ctx context.Context, key Key, policy Policy, now time.Time) (Decision, error)
	// SweepExpired deletes entries whose window ended at least margin before
	// now and returns how many were removed.
	SweepExpired(ctx context.Context, now time.Time, margin time.Duration) (int, error)
	Name() string
}

type Ledger struct {
	store    Store
	policies map[Action]Policy
	timeout  time.Duration
	now      func() time.Time
}

func NewLedger(store Store, policies map[Action]Policy, timeout time.Duration) *Ledger {
	return &Ledger{
		store:    store,
		policies: policies,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the ledger's time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Scope returns the scope an action on resourceID is counted against.
func (l *Ledger) Scope(action Action, resourceID string) (string, error) {
	p, ok := l.policies[action]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return p.Scope(resourceID), nil
}

// CheckAndConsume admits or rejects one attempt of action by identity in
// scope. It fails closed: whenever err is non-nil the decision denies.
func (l *Ledger) CheckAndConsume(ctx context.Context, identity string, action Action, scope string) (Decision, error) {
	policy, ok := l.policies[action]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	key := Key{Identity: identity, Action: action, Scope: scope}
	decision, err := l.store.CheckAndConsume(ctx, key, policy, l.now())
	metrics.RecordLedgerDecision(string(action), l.store.Name(), decision.Allowed && err == nil, time.Since(start), err)

	if err != nil {
		util.Error("Rate limit check failed",
			util.Identity(identity),
			zap.String("action", string(action)),
			zap.String("scope", scope),
			zap.String("backend", l.store.Name()),
			zap.Error(err))
		return Decision{Allowed: false, Remaining: 0}, fmt.Errorf("failed to check rate limit: %w", err)
	}

	util.Debug("Rate limit decision",
		util.Identity(identity),
		zap.String("action", string(action)),
		zap.String("scope", scope),
		zap.Bool("allowed", decision.Allowed),
		zap.Int("remaining", decision.Remaining))

	return decision, nil
}
