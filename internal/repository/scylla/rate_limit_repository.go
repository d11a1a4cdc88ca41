package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"rating-service/internal/bucketing"
	"rating-service/internal/metrics"
	"rating-service/internal/models"
	"rating-service/internal/ratelimit"
	"rating-service/internal/util"
)

const (
	selectLedgerEntry = `SELECT count, window_start, window_ms FROM rate_limit_entries
        WHERE bucket = ? AND identity = ? AND action = ? AND scope = ?`

	insertLedgerEntry = `INSERT INTO rate_limit_entries (bucket, identity, action, scope, count, window_start, window_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`

	updateLedgerEntry = `UPDATE rate_limit_entries SET count = ?, window_start = ?, window_ms = ?
        WHERE bucket = ? AND identity = ? AND action = ? AND scope = ?
        IF count = ? AND window_start = ?`

	scanLedgerBucket = `SELECT identity, action, scope, window_start, window_ms FROM rate_limit_entries
        WHERE bucket = ?`

	deleteLedgerEntry = `DELETE FROM rate_limit_entries
        WHERE bucket = ? AND identity = ? AND action = ? AND scope = ?
        IF window_start = ?`
)

// maxCASAttempts bounds the compare-and-set loop of one check-and-consume.
const maxCASAttempts = 8

// ledgerSession is the slice of the Scylla session the ledger runs on.
type ledgerSession interface {
	// Get scans one row into dest and returns gocql.ErrNotFound when absent.
	Get(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) error
	// CAS executes a conditional statement and reports whether it applied.
	CAS(ctx context.Context, stmt string, values ...interface{}) (bool, error)
	Iter(ctx context.Context, stmt string, values ...interface{}) rowIterator
}

// rowIterator is satisfied by *gocql.Iter.
type rowIterator interface {
	Scan(dest ...interface{}) bool
	Close() error
}

type clientSession struct {
	client *ScyllaClient
}

// Get reads at LOCAL_QUORUM. A stale read only makes the following
// conditional write miss its guard and retry.
func (s clientSession) Get(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) error {
	return s.client.Query(ctx, stmt, values...).Consistency(gocql.LocalQuorum).Scan(dest...)
}

func (s clientSession) CAS(ctx context.Context, stmt string, values ...interface{}) (bool, error) {
	return s.client.Query(ctx, stmt, values...).MapScanCAS(map[string]interface{}{})
}

func (s clientSession) Iter(ctx context.Context, stmt string, values ...interface{}) rowIterator {
	return s.client.Query(ctx, stmt, values...).Iter()
}

// RateLimitRepository is the ScyllaDB ledger. Each attempt is a lightweight
// transaction guarded on the entry's observed state, retried while another
// writer wins the race. Timestamps are stored as unix milliseconds so the
// guard compares exactly what was read.
type RateLimitRepository struct {
	session   ledgerSession
	bucketing *bucketing.BucketingManager
}

func NewRateLimitRepository(client *ScyllaClient, bm *bucketing.BucketingManager) *RateLimitRepository {
	return newRateLimitRepository(clientSession{client: client}, bm)
}

func newRateLimitRepository(session ledgerSession, bm *bucketing.BucketingManager) *RateLimitRepository {
	return &RateLimitRepository{session: session, bucketing: bm}
}

func (r *RateLimitRepository) Name() string { return "scylla" }

func (r *RateLimitRepository) CheckAndConsume(ctx context.Context, key ratelimit.Key, policy ratelimit.Policy, now time.Time) (ratelimit.Decision, error) {
	bucket := r.bucketing.GetLedgerBucket(key.Identity)

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if attempt > 0 {
			metrics.LedgerCASRetries.Inc()
		}

		current, err := r.load(ctx, bucket, key)
		if err != nil {
			return ratelimit.Decision{}, err
		}

		next, decision := ratelimit.Decide(current, key, policy, now)
		if !decision.Allowed {
			return decision, nil
		}

		var applied bool
		if current == nil {
			applied, err = r.session.CAS(ctx, insertLedgerEntry,
				bucket, key.Identity, string(key.Action), key.Scope,
				next.Count, next.WindowStart.UnixMilli(), next.Window.Milliseconds(),
			)
		} else {
			applied, err = r.session.CAS(ctx, updateLedgerEntry,
				next.Count, next.WindowStart.UnixMilli(), next.Window.Milliseconds(),
				bucket, key.Identity, string(key.Action), key.Scope,
				current.Count, current.WindowStart.UnixMilli(),
			)
		}
		if err != nil {
			return ratelimit.Decision{}, fmt.Errorf("failed to write rate limit entry: %w", err)
		}
		if applied {
			return decision, nil
		}
	}

	util.Warn("Rate limit entry contention exhausted retries",
		util.Identity(key.Identity),
		zap.String("action", string(key.Action)),
		zap.Int("attempts", maxCASAttempts))
	return ratelimit.Decision{}, ratelimit.ErrContention
}

func (r *RateLimitRepository) load(ctx context.Context, bucket int, key ratelimit.Key) (*models.RateLimitEntry, error) {
	var count int
	var windowStart, windowMS int64

	err := r.session.Get(ctx, selectLedgerEntry,
		[]interface{}{bucket, key.Identity, string(key.Action), key.Scope},
		&count, &windowStart, &windowMS)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rate limit entry: %w", err)
	}

	return &models.RateLimitEntry{
		Bucket:      bucket,
		Identity:    key.Identity,
		Action:      string(key.Action),
		Scope:       key.Scope,
		Count:       count,
		WindowStart: time.UnixMilli(windowStart).UTC(),
		Window:      time.Duration(windowMS) * time.Millisecond,
	}, nil
}

// SweepExpired walks every ledger bucket and conditionally deletes entries
// past their window plus margin. A bucket that fails is logged and skipped;
// the first such error is returned after the walk.
func (r *RateLimitRepository) SweepExpired(ctx context.Context, now time.Time, margin time.Duration) (int, error) {
	deleted := 0
	var firstErr error

	for bucket := 0; bucket < r.bucketing.GetLedgerBuckets(); bucket++ {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		n, err := r.sweepBucket(ctx, bucket, now, margin)
		deleted += n
		if err != nil {
			util.Warn("Failed to sweep ledger bucket", zap.Int("bucket", bucket), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return deleted, firstErr
}

func (r *RateLimitRepository) sweepBucket(ctx context.Context, bucket int, now time.Time, margin time.Duration) (int, error) {
	iter := r.session.Iter(ctx, scanLedgerBucket, bucket)

	var expired []models.RateLimitEntry
	var identity, action, scope string
	var windowStart, windowMS int64
	for iter.Scan(&identity, &action, &scope, &windowStart, &windowMS) {
		entry := models.RateLimitEntry{
			Bucket:      bucket,
			Identity:    identity,
			Action:      action,
			Scope:       scope,
			WindowStart: time.UnixMilli(windowStart).UTC(),
			Window:      time.Duration(windowMS) * time.Millisecond,
		}
		if entry.Purgeable(now, margin) {
			expired = append(expired, entry)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("failed to scan ledger bucket %d: %w", bucket, err)
	}

	deleted := 0
	for _, e := range expired {
		applied, err := r.session.CAS(ctx, deleteLedgerEntry,
			e.Bucket, e.Identity, e.Action, e.Scope, e.WindowStart.UnixMilli(),
		)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete ledger entry: %w", err)
		}
		if applied {
			deleted++
		}
	}
	return deleted, nil
}
