package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"rating-service/internal/metrics"
	"rating-service/internal/models"
	"rating-service/internal/repository"
	"rating-service/internal/util"
)

// auditTolerance bounds the difference allowed between stored and
// recomputed means.
const auditTolerance = 1e-9

// Aggregator derives DailySummary rows from raw submissions.
type Aggregator struct {
	store   repository.SubmissionStore
	timeout time.Duration
	now     func() time.Time
}

func NewAggregator(store repository.SubmissionStore, timeout time.Duration) *Aggregator {
	return &Aggregator{
		store:   store,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// AuditReport compares a stored summary with a fresh recompute.
type AuditReport struct {
	ResourceID string               `json:"model_id"`
	Day        string               `json:"day"`
	Consistent bool                 `json:"consistent"`
	Stored     *models.DailySummary `json:"stored"`
	Recomputed *models.DailySummary `json:"recomputed"`
}

// RecomputeDailySummary rebuilds and stores the summary of (resourceID, day).
// The summary is stamped with the time its rows were read so that, among
// concurrent recomputes, the one that read last is kept.
func (a *Aggregator) RecomputeDailySummary(ctx context.Context, resourceID, day string) (*models.DailySummary, error) {
	readAt := a.now()
	rows, err := a.listSubmissions(ctx, resourceID, day)
	if err != nil {
		return nil, err
	}

	summary := Summarize(resourceID, day, rows, readAt)

	start := time.Now()
	uctx, cancel := withTimeout(ctx, a.timeout)
	err = a.store.UpsertDailySummary(uctx, summary)
	cancel()
	metrics.RecordStoreOperation("upsert_daily_summary", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upsert daily summary: %w", ErrStoreUnavailable, err)
	}

	metrics.AggregationRecomputes.Inc()
	return summary, nil
}

// LiveSummary aggregates the raw rows of (resourceID, day) without
// persisting the result.
func (a *Aggregator) LiveSummary(ctx context.Context, resourceID, day string) (*models.DailySummary, error) {
	readAt := a.now()
	rows, err := a.listSubmissions(ctx, resourceID, day)
	if err != nil {
		return nil, err
	}
	return Summarize(resourceID, day, rows, readAt), nil
}

// Audit recomputes (resourceID, day) without writing and compares it to the
// stored summary. A mismatch is reported, never repaired.
func (a *Aggregator) Audit(ctx context.Context, resourceID, day string) (*AuditReport, error) {
	recomputed, err := a.LiveSummary(ctx, resourceID, day)
	if err != nil {
		return nil, err
	}

	gctx, cancel := withTimeout(ctx, a.timeout)
	stored, err := a.store.GetDailySummary(gctx, resourceID, day)
	cancel()
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: failed to get daily summary: %w", ErrStoreUnavailable, err)
	}

	report := &AuditReport{
		ResourceID: resourceID,
		Day:        day,
		Stored:     stored,
		Recomputed: recomputed,
		Consistent: summariesMatch(stored, recomputed),
	}
	if report.Consistent {
		return report, nil
	}

	metrics.AggregationInconsistencies.Inc()
	storedVotes := 0
	if stored != nil {
		storedVotes = stored.TotalVotes
	}
	util.Error("Aggregation inconsistency detected",
		util.String("resource_id", resourceID),
		util.String("day", day),
		util.Int("stored_votes", storedVotes),
		util.Int("recomputed_votes", recomputed.TotalVotes),
	)
	return report, fmt.Errorf("%w: %s on %s", ErrAggregationInconsistency, resourceID, day)
}

func (a *Aggregator) listSubmissions(ctx context.Context, resourceID, day string) ([]models.RatingSubmission, error) {
	start := time.Now()
	lctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	rows, err := a.store.ListSubmissions(lctx, resourceID, day)
	metrics.RecordStoreOperation("list_submissions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list submissions: %w", ErrStoreUnavailable, err)
	}
	return rows, nil
}

// Summarize computes the vote count and per-column means of rows. Columns a
// row left unrated do not contribute to that column's mean.
func Summarize(resourceID, day string, rows []models.RatingSubmission, computedAt time.Time) *models.DailySummary {
	var perf, speed, intel, rel mean
	for _, row := range rows {
		perf.add(row.Ratings.Performance)
		speed.add(row.Ratings.Speed)
		intel.add(row.Ratings.Intelligence)
		rel.add(row.Ratings.Reliability)
	}

	return &models.DailySummary{
		ResourceID:      resourceID,
		Day:             day,
		TotalVotes:      len(rows),
		AvgPerformance:  perf.value(),
		AvgSpeed:        speed.value(),
		AvgIntelligence: intel.value(),
		AvgReliability:  rel.value(),
		ComputedAt:      computedAt,
	}
}

type mean struct {
	sum int
	n   int
}

func (m *mean) add(v *int) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m *mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := float64(m.sum) / float64(m.n)
	return &v
}

// summariesMatch treats a missing summary as equal to an empty recompute.
func summariesMatch(stored, recomputed *models.DailySummary) bool {
	if stored == nil {
		return recomputed.TotalVotes == 0
	}
	return stored.TotalVotes == recomputed.TotalVotes &&
		floatsMatch(stored.AvgPerformance, recomputed.AvgPerformance) &&
		floatsMatch(stored.AvgSpeed, recomputed.AvgSpeed) &&
		floatsMatch(stored.AvgIntelligence, recomputed.AvgIntelligence) &&
		floatsMatch(stored.AvgReliability, recomputed.AvgReliability)
}

func floatsMatch(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= auditTolerance
}
