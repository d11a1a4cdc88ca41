package ratelimit

import (
	"context"
	"fmt"
	"time"

	"rating-service/internal/metrics"
	"rating-service/internal/models"
	"rating-service/internal/util"

	"go.uber.org/zap"
)

// Sweeper purges ledger entries whose window is long over. It never touches
// an entry inside its active window.
type Sweeper struct {
	store  Store
	margin time.Duration
	now    func() time.Time
}

// NewSweeper raises margin to models.MinSweepMargin when it is smaller.
func NewSweeper(store Store, margin time.Duration) *Sweeper {
	return &Sweeper{
		store:  store,
		margin: max(margin, models.MinSweepMargin),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// DefaultMargin is the retention margin configured for scheduled runs.
func (s *Sweeper) DefaultMargin() time.Duration {
	return s.margin
}

// SweepExpiredEntries deletes entries with now >= window_start + window + margin.
// Margins below models.MinSweepMargin are raised to it.
func (s *Sweeper) SweepExpiredEntries(ctx context.Context, margin time.Duration) (int, error) {
	margin = max(margin, models.MinSweepMargin)

	start := time.Now()
	deleted, err := s.store.SweepExpired(ctx, s.now(), margin)
	metrics.RecordSweep(deleted, err)
	if err != nil {
		util.Error("Rate limit sweep failed",
			zap.String("backend", s.store.Name()),
			zap.Int("deleted", deleted),
			zap.Error(err))
		return deleted, fmt.Errorf("failed to sweep expired entries: %w", err)
	}

	util.Info("Rate limit sweep completed",
		zap.String("backend", s.store.Name()),
		zap.Int("deleted", deleted),
		zap.Duration("margin", margin),
		zap.Duration("took", time.Since(start)))

	return deleted, nil
}
