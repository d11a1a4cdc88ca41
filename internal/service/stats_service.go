package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"rating-service/internal/bucketing"
	"rating-service/internal/metrics"
	"rating-service/internal/models"
	"rating-service/internal/repository"
	"rating-service/internal/validation"
)

const (
	DefaultStatsDays = 30
	MaxStatsDays     = 365
	MaxRangeDays     = 366
)

// TrendSource is the cross-model activity archive.
type TrendSource interface {
	Trends(ctx context.Context, days int) ([]models.ActivityPoint, error)
}

// ModelStats combines the persisted history of a model with the live
// aggregate of the current day.
type ModelStats struct {
	ResourceID string                `json:"model_id"`
	Days       int                   `json:"days"`
	History    []models.DailySummary `json:"history"`
	Today      *models.DailySummary  `json:"today"`
}

type StatsService struct {
	store      repository.SubmissionStore
	aggregator *Aggregator
	trends     TrendSource
	timeout    time.Duration
	now        func() time.Time
}

// NewStatsService wires the read side. trends may be nil.
func NewStatsService(store repository.SubmissionStore, aggregator *Aggregator, trends TrendSource, timeout time.Duration) *StatsService {
	return &StatsService{
		store:      store,
		aggregator: aggregator,
		trends:     trends,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.now = now
	return s
}

// GetDailySummary returns repository.ErrNotFound when nobody voted on
// resourceID that day.
func (s *StatsService) GetDailySummary(ctx context.Context, resourceID, day string) (*models.DailySummary, error) {
	if !validation.IsResourceID(resourceID) {
		return nil, fmt.Errorf("%w: invalid model_id", ErrInvalidInput)
	}
	if _, err := bucketing.ParseDay(day); err != nil {
		return nil, fmt.Errorf("%w: day must be YYYY-MM-DD", ErrInvalidInput)
	}

	start := time.Now()
	gctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := s.store.GetDailySummary(gctx, resourceID, day)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordStoreOperation("get_daily_summary", time.Since(start), nil)
		return nil, err
	}
	metrics.RecordStoreOperation("get_daily_summary", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get daily summary: %w", ErrStoreUnavailable, err)
	}
	return summary, nil
}

// GetSummaryRange returns the summaries of from..to inclusive, ascending.
// Days without votes are absent rather than zero filled.
func (s *StatsService) GetSummaryRange(ctx context.Context, resourceID, from, to string) ([]models.DailySummary, error) {
	if !validation.IsResourceID(resourceID) {
		return nil, fmt.Errorf("%w: invalid model_id", ErrInvalidInput)
	}
	fromDay, err := bucketing.ParseDay(from)
	if err != nil {
		return nil, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidInput)
	}
	toDay, err := bucketing.ParseDay(to)
	if err != nil {
		return nil, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidInput)
	}
	if toDay.Before(fromDay) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidInput)
	}
	if toDay.Sub(fromDay) >= MaxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidInput, MaxRangeDays)
	}

	return s.summaryRange(ctx, resourceID, from, to)
}

// GetModelStats returns the last days days before today from the stored
// summaries plus today's live aggregate. days is clamped to 1..MaxStatsDays;
// zero selects DefaultStatsDays.
func (s *StatsService) GetModelStats(ctx context.Context, resourceID string, days int) (*ModelStats, error) {
	if !validation.IsResourceID(resourceID) {
		return nil, fmt.Errorf("%w: invalid model_id", ErrInvalidInput)
	}
	days = ClampDays(days)

	now := s.now()
	today := bucketing.DayOf(now)
	from := bucketing.DayOf(now.AddDate(0, 0, -days))
	to := bucketing.DayOf(now.AddDate(0, 0, -1))

	stats := &ModelStats{ResourceID: resourceID, Days: days}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		history, err := s.summaryRange(gctx, resourceID, from, to)
		if err != nil {
			return err
		}
		stats.History = history
		return nil
	})
	g.Go(func() error {
		live, err := s.aggregator.LiveSummary(gctx, resourceID, today)
		if err != nil {
			return err
		}
		stats.Today = live
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetTrends returns the cross-model activity of the last days days.
func (s *StatsService) GetTrends(ctx context.Context, days int) ([]models.ActivityPoint, error) {
	if s.trends == nil {
		return nil, fmt.Errorf("%w: activity trends", ErrFeatureDisabled)
	}

	tctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	points, err := s.trends.Trends(tctx, ClampDays(days))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if points == nil {
		points = []models.ActivityPoint{}
	}
	return points, nil
}

func (s *StatsService) summaryRange(ctx context.Context, resourceID, from, to string) ([]models.DailySummary, error) {
	start := time.Now()
	rctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	summaries, err := s.store.GetSummaryRange(rctx, resourceID, from, to)
	metrics.RecordStoreOperation("get_summary_range", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get summary range: %w", ErrStoreUnavailable, err)
	}
	if summaries == nil {
		summaries = []models.DailySummary{}
	}
	return summaries, nil
}

// ClampDays maps a requested day count into 1..MaxStatsDays, treating
// zero as DefaultStatsDays.
func ClampDays(days int) int {
	switch {
	case days == 0:
		return DefaultStatsDays
	case days < 1:
		return 1
	case days > MaxStatsDays:
		return MaxStatsDays
	default:
		return days
	}
}
