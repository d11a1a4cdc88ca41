package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rating-service/internal/bucketing"
	"rating-service/internal/fingerprint"
	"rating-service/internal/metrics"
	"rating-service/internal/models"
	"rating-service/internal/ratelimit"
	"rating-service/internal/repository"
	"rating-service/internal/util"
	"rating-service/internal/validation"
)

// EventPublisher receives accepted ratings. Publishing is best effort.
type EventPublisher interface {
	PublishRating(ctx context.Context, event models.RatingEvent) error
}

type RatingRequest struct {
	ResourceID string                      `json:"model_id" validate:"required,resource_id"`
	Ratings    models.Ratings              `json:"ratings"`
	IssueTag   string                      `json:"issue_type" validate:"omitempty,oneof=hallucination refused off-topic slow error other"`
	Metadata   fingerprint.RequestMetadata `json:"-"`
}

type RatingService struct {
	generator  *fingerprint.Generator
	ledger     *ratelimit.Ledger
	store      repository.SubmissionStore
	aggregator *Aggregator
	publisher  EventPublisher
	timeout    time.Duration
	now        func() time.Time
}

// NewRatingService wires the vote path. publisher may be nil.
func NewRatingService(
	generator *fingerprint.Generator,
	ledger *ratelimit.Ledger,
	store repository.SubmissionStore,
	aggregator *Aggregator,
	publisher EventPublisher,
	timeout time.Duration,
) *RatingService {
	return &RatingService{
		generator:  generator,
		ledger:     ledger,
		store:      store,
		aggregator: aggregator,
		publisher:  publisher,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *RatingService) WithClock(now func() time.Time) *RatingService {
	s.now = now
	return s
}

// SubmitRating validates req, derives the voter identity, consumes one vote
// from the ledger, records the raw submission and recomputes the day's
// summary. Invalid input never reaches the ledger, and nothing is written
// when the ledger cannot decide.
func (s *RatingService) SubmitRating(ctx context.Context, req RatingRequest) (*SubmissionResult, error) {
	result, err := s.submitRating(ctx, req)
	metrics.RecordSubmissionOutcome(string(ratelimit.ActionVote), string(result.Status))
	return result, err
}

func (s *RatingService) submitRating(ctx context.Context, req RatingRequest) (*SubmissionResult, error) {
	if err := validation.ValidateStruct(req); err != nil {
		return invalid("%s", err.Error())
	}
	if req.Ratings.IsEmpty() {
		return invalid("at least one rating is required")
	}

	identity := s.generator.Generate(req.Metadata)

	scope, err := s.ledger.Scope(ratelimit.ActionVote, req.ResourceID)
	if err != nil {
		return failed("resolve rate limit scope", err)
	}
	decision, err := s.ledger.CheckAndConsume(ctx, identity, ratelimit.ActionVote, scope)
	if err != nil {
		return failed("check rate limit", err)
	}
	if !decision.Allowed {
		util.Info("Vote rejected by rate limit",
			util.Identity(identity),
			util.String("resource_id", req.ResourceID))
		return rateLimited()
	}

	now := s.now()
	sub := &models.RatingSubmission{
		ResourceID: req.ResourceID,
		Day:        bucketing.DayOf(now),
		Identity:   identity,
		Ratings:    req.Ratings,
		IssueTag:   req.IssueTag,
		CreatedAt:  now,
	}

	start := time.Now()
	wctx, cancel := withTimeout(ctx, s.timeout)
	err = s.store.RecordSubmission(wctx, sub)
	cancel()
	metrics.RecordStoreOperation("record_submission", time.Since(start), err)
	if err != nil {
		util.Error("Failed to record submission",
			util.Identity(identity),
			util.String("resource_id", sub.ResourceID),
			util.ErrorField(err))
		return failed("record submission", err)
	}

	summary, err := s.aggregator.RecomputeDailySummary(ctx, sub.ResourceID, sub.Day)
	if err != nil {
		util.Error("Failed to recompute daily summary",
			util.String("resource_id", sub.ResourceID),
			util.String("day", sub.Day),
			util.ErrorField(err))
		return &SubmissionResult{Status: StatusFailed, Reason: "recompute daily summary failed"}, err
	}

	s.publish(ctx, sub)

	util.Info("Vote accepted",
		util.Identity(identity),
		util.String("resource_id", sub.ResourceID),
		util.String("day", sub.Day),
		util.Int("total_votes", summary.TotalVotes))

	return &SubmissionResult{
		Status:    StatusAccepted,
		Remaining: decision.Remaining,
		Summary:   summary,
	}, nil
}

func (s *RatingService) publish(ctx context.Context, sub *models.RatingSubmission) {
	if s.publisher == nil {
		return
	}
	event := models.RatingEvent{
		EventID:     uuid.NewString(),
		ResourceID:  sub.ResourceID,
		Day:         sub.Day,
		Ratings:     sub.Ratings,
		IssueTag:    sub.IssueTag,
		SubmittedAt: sub.CreatedAt,
	}
	if err := s.publisher.PublishRating(context.WithoutCancel(ctx), event); err != nil {
		util.Warn("Failed to publish rating event",
			util.String("resource_id", sub.ResourceID),
			util.ErrorField(err))
	}
}
