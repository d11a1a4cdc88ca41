// Package repository declares the persistence contracts of the service.
// Implementations live in the scylla, redis and memory subpackages.
package repository

import (
	"context"
	"errors"

	"rating-service/internal/models"
)

var ErrNotFound = errors.New("not found")

// SubmissionStore holds raw rating submissions and the daily summaries
// derived from them. It enforces the key invariants only; payload
// validation is the caller's job.
type SubmissionStore interface {
	// RecordSubmission upserts on (ResourceID, Day, Identity). An existing
	// row is fully replaced.
	RecordSubmission(ctx context.Context, sub *models.RatingSubmission) error
	ListSubmissions(ctx context.Context, resourceID, day string) ([]models.RatingSubmission, error)

	// UpsertDailySummary stores summary unless a summary computed from a
	// later read is already present.
	UpsertDailySummary(ctx context.Context, summary *models.DailySummary) error
	// GetDailySummary returns ErrNotFound when no summary exists.
	GetDailySummary(ctx context.Context, resourceID, day string) (*models.DailySummary, error)
	// GetSummaryRange returns the summaries of days from..to inclusive in
	// ascending day order. Days without a summary are absent.
	GetSummaryRange(ctx context.Context, resourceID, from, to string) ([]models.DailySummary, error)

	HealthCheck(ctx context.Context) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	// ListComments returns at most limit comments, newest first.
	ListComments(ctx context.Context, resourceID string, limit int) ([]models.Comment, error)
}

// CommentIndex is the full-text search side of comments.
type CommentIndex interface {
	IndexComment(ctx context.Context, comment *models.Comment) error
	SearchComments(ctx context.Context, resourceID, query string, limit int) ([]models.Comment, error)
}
