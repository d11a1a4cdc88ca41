package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"rating-service/internal/fingerprint"
	"rating-service/internal/metrics"
	"rating-service/internal/models"
	"rating-service/internal/ratelimit"
	"rating-service/internal/repository"
	"rating-service/internal/util"
	"rating-service/internal/validation"
)

const (
	MaxCommentLength   = 1000
	MaxSearchLength    = 200
	CommentListLimit   = 50
	CommentSearchLimit = 20
)

type CommentRequest struct {
	ResourceID string                      `json:"model_id" validate:"required,resource_id"`
	Text       string                      `json:"comment_text"`
	Metadata   fingerprint.RequestMetadata `json:"-"`
}

type CommentService struct {
	generator *fingerprint.Generator
	ledger    *ratelimit.Ledger
	store     repository.CommentStore
	index     repository.CommentIndex
	timeout   time.Duration
	now       func() time.Time
}

// NewCommentService wires the comment path. index may be nil, which
// disables search.
func NewCommentService(
	generator *fingerprint.Generator,
	ledger *ratelimit.Ledger,
	store repository.CommentStore,
	index repository.CommentIndex,
	timeout time.Duration,
) *CommentService {
	return &CommentService{
		generator: generator,
		ledger:    ledger,
		store:     store,
		index:     index,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *CommentService) WithClock(now func() time.Time) *CommentService {
	s.now = now
	return s
}

// SubmitComment stores one comment after consuming from the identity's
// comment quota, which is shared across all models.
func (s *CommentService) SubmitComment(ctx context.Context, req CommentRequest) (*SubmissionResult, error) {
	result, err := s.submitComment(ctx, req)
	metrics.RecordSubmissionOutcome(string(ratelimit.ActionComment), string(result.Status))
	return result, err
}

func (s *CommentService) submitComment(ctx context.Context, req CommentRequest) (*SubmissionResult, error) {
	if err := validation.ValidateStruct(req); err != nil {
		return invalid("%s", err.Error())
	}
	text := util.NormalizeSpace(req.Text)
	if n := utf8.RuneCountInString(text); n == 0 || n > MaxCommentLength {
		return invalid("comment_text must be between 1 and %d characters", MaxCommentLength)
	}

	identity := s.generator.Generate(req.Metadata)

	scope, err := s.ledger.Scope(ratelimit.ActionComment, req.ResourceID)
	if err != nil {
		return failed("resolve rate limit scope", err)
	}
	decision, err := s.ledger.CheckAndConsume(ctx, identity, ratelimit.ActionComment, scope)
	if err != nil {
		return failed("check rate limit", err)
	}
	if !decision.Allowed {
		util.Info("Comment rejected by rate limit", util.Identity(identity))
		return rateLimited()
	}

	comment := &models.Comment{
		CommentID:  uuid.NewString(),
		ResourceID: req.ResourceID,
		Identity:   identity,
		AuthorHash: models.AuthorHashOf(identity),
		Text:       util.SanitizeInput(text),
		CreatedAt:  s.now(),
	}

	start := time.Now()
	wctx, cancel := withTimeout(ctx, s.timeout)
	err = s.store.CreateComment(wctx, comment)
	cancel()
	metrics.RecordStoreOperation("create_comment", time.Since(start), err)
	if err != nil {
		util.Error("Failed to store comment",
			util.Identity(identity),
			util.String("resource_id", comment.ResourceID),
			util.ErrorField(err))
		return failed("store comment", err)
	}

	if s.index != nil {
		ictx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeout)
		if err := s.index.IndexComment(ictx, comment); err != nil {
			util.Warn("Failed to index comment",
				util.String("comment_id", comment.CommentID),
				util.ErrorField(err))
		}
		cancel()
	}

	util.Info("Comment accepted",
		util.Identity(identity),
		util.String("resource_id", comment.ResourceID))

	return &SubmissionResult{
		Status:    StatusAccepted,
		Remaining: decision.Remaining,
		Comment:   comment,
	}, nil
}

// ListComments returns the latest comments on resourceID, newest first.
func (s *CommentService) ListComments(ctx context.Context, resourceID string) ([]models.Comment, error) {
	if !validation.IsResourceID(resourceID) {
		return nil, fmt.Errorf("%w: invalid model_id", ErrInvalidInput)
	}

	start := time.Now()
	lctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	comments, err := s.store.ListComments(lctx, resourceID, CommentListLimit)
	metrics.RecordStoreOperation("list_comments", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list comments: %w", ErrStoreUnavailable, err)
	}
	return withAuthorHash(comments), nil
}

// SearchComments runs a full-text query. An empty resourceID searches all
// models.
func (s *CommentService) SearchComments(ctx context.Context, resourceID, query string) ([]models.Comment, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: comment search", ErrFeatureDisabled)
	}
	if resourceID != "" && !validation.IsResourceID(resourceID) {
		return nil, fmt.Errorf("%w: invalid model_id", ErrInvalidInput)
	}
	query = util.NormalizeSpace(query)
	if n := utf8.RuneCountInString(query); n == 0 || n > MaxSearchLength {
		return nil, fmt.Errorf("%w: q must be between 1 and %d characters", ErrInvalidInput, MaxSearchLength)
	}

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	comments, err := s.index.SearchComments(sctx, resourceID, query, CommentSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search comments: %w", ErrStoreUnavailable, err)
	}
	return withAuthorHash(comments), nil
}

func withAuthorHash(comments []models.Comment) []models.Comment {
	for i := range comments {
		if comments[i].AuthorHash == "" {
			comments[i].AuthorHash = models.AuthorHashOf(comments[i].Identity)
		}
	}
	if comments == nil {
		return []models.Comment{}
	}
	return comments
}
