package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"rating-service/internal/metrics"
	"rating-service/internal/models"
	"rating-service/internal/repository"
	"rating-service/internal/util"
)

const (
	upsertSubmission = `INSERT INTO raw_submissions (
            resource_id, day, identity, performance, speed, intelligence, reliability, issue_tag, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSubmissions = `SELECT identity, performance, speed, intelligence, reliability, issue_tag, created_at
        FROM raw_submissions WHERE resource_id = ? AND day = ?`

	// The write timestamp is the summary's read time, so a recompute that
	// read earlier can never replace one that read later.
	upsertSummary = `INSERT INTO daily_summaries (
            resource_id, day, total_votes, avg_performance, avg_speed, avg_intelligence, avg_reliability, computed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?) USING TIMESTAMP ?`

	selectSummary = `SELECT total_votes, avg_performance, avg_speed, avg_intelligence, avg_reliability, computed_at
        FROM daily_summaries WHERE resource_id = ? AND day = ?`

	selectSummaryRange = `SELECT day, total_votes, avg_performance, avg_speed, avg_intelligence, avg_reliability, computed_at
        FROM daily_summaries WHERE resource_id = ? AND day >= ? AND day <= ?`
)

// SubmissionRepository stores raw submissions and daily summaries.
type SubmissionRepository struct {
	client *ScyllaClient
}

func NewSubmissionRepository(client *ScyllaClient) *SubmissionRepository {
	return &SubmissionRepository{client: client}
}

func (r *SubmissionRepository) RecordSubmission(ctx context.Context, sub *models.RatingSubmission) error {
	start := time.Now()
	issueTag := nullableString(sub.IssueTag)

	err := r.client.Query(ctx, upsertSubmission,
		sub.ResourceID, sub.Day, sub.Identity,
		sub.Ratings.Performance, sub.Ratings.Speed, sub.Ratings.Intelligence, sub.Ratings.Reliability,
		issueTag, sub.CreatedAt,
	).Exec()
	metrics.RecordStoreOperation("record_submission", time.Since(start), err)
	if err != nil {
		util.Error("Failed to record submission",
			zap.String("model_id", sub.ResourceID),
			zap.String("day", sub.Day),
			util.Identity(sub.Identity),
			zap.Error(err))
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) ListSubmissions(ctx context.Context, resourceID, day string) ([]models.RatingSubmission, error) {
	start := time.Now()
	iter := r.client.Query(ctx, selectSubmissions, resourceID, day).Iter()

	var out []models.RatingSubmission
	for {
		sub := models.RatingSubmission{ResourceID: resourceID, Day: day}
		var issueTag *string
		if !iter.Scan(&sub.Identity,
			&sub.Ratings.Performance, &sub.Ratings.Speed, &sub.Ratings.Intelligence, &sub.Ratings.Reliability,
			&issueTag, &sub.CreatedAt) {
			break
		}
		if issueTag != nil {
			sub.IssueTag = *issueTag
		}
		out = append(out, sub)
	}

	err := iter.Close()
	metrics.RecordStoreOperation("list_submissions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return out, nil
}

func (r *SubmissionRepository) UpsertDailySummary(ctx context.Context, s *models.DailySummary) error {
	start := time.Now()
	err := r.client.Query(ctx, upsertSummary,
		s.ResourceID, s.Day, s.TotalVotes,
		s.AvgPerformance, s.AvgSpeed, s.AvgIntelligence, s.AvgReliability,
		s.ComputedAt, s.ComputedAt.UnixMicro(),
	).Exec()
	metrics.RecordStoreOperation("upsert_summary", time.Since(start), err)
	if err != nil {
		util.Error("Failed to upsert daily summary",
			zap.String("model_id", s.ResourceID),
			zap.String("day", s.Day),
			zap.Error(err))
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) GetDailySummary(ctx context.Context, resourceID, day string) (*models.DailySummary, error) {
	start := time.Now()
	s := &models.DailySummary{ResourceID: resourceID, Day: day}

	err := r.client.Query(ctx, selectSummary, resourceID, day).Scan(
		&s.TotalVotes, &s.AvgPerformance, &s.AvgSpeed, &s.AvgIntelligence, &s.AvgReliability, &s.ComputedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		metrics.RecordStoreOperation("get_summary", time.Since(start), nil)
		return nil, repository.ErrNotFound
	}
	metrics.RecordStoreOperation("get_summary", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summary: %w", err)
	}
	return s, nil
}

func (r *SubmissionRepository) GetSummaryRange(ctx context.Context, resourceID, from, to string) ([]models.DailySummary, error) {
	start := time.Now()
	iter := r.client.Query(ctx, selectSummaryRange, resourceID, from, to).Iter()

	var out []models.DailySummary
	for {
		s := models.DailySummary{ResourceID: resourceID}
		if !iter.Scan(&s.Day, &s.TotalVotes,
			&s.AvgPerformance, &s.AvgSpeed, &s.AvgIntelligence, &s.AvgReliability, &s.ComputedAt) {
			break
		}
		out = append(out, s)
	}

	err := iter.Close()
	metrics.RecordStoreOperation("summary_range", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get summary range: %w", err)
	}
	return out, nil
}

func (r *SubmissionRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
