package memory

import (
	"context"
	"sort"
	"sync"

	"rating-service/internal/bucketing"
	"rating-service/internal/models"
	"rating-service/internal/repository"
)

type submissionKey struct {
	resourceID string
	day        string
	identity   string
}

type summaryKey struct {
	resourceID string
	day        string
}

// SubmissionStore keeps raw submissions and summaries in maps.
type SubmissionStore struct {
	mu          sync.RWMutex
	submissions map[submissionKey]models.RatingSubmission
	summaries   map[summaryKey]models.DailySummary
	comments    map[string][]models.Comment
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		submissions: make(map[submissionKey]models.RatingSubmission),
		summaries:   make(map[summaryKey]models.DailySummary),
		comments:    make(map[string][]models.Comment),
	}
}

func (s *SubmissionStore) RecordSubmission(ctx context.Context, sub *models.RatingSubmission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[submissionKey{sub.ResourceID, sub.Day, sub.Identity}] = copySubmission(*sub)
	return nil
}

func (s *SubmissionStore) ListSubmissions(ctx context.Context, resourceID, day string) ([]models.RatingSubmission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RatingSubmission
	for k, sub := range s.submissions {
		if k.resourceID == resourceID && k.day == day {
			out = append(out, copySubmission(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (s *SubmissionStore) UpsertDailySummary(ctx context.Context, summary *models.DailySummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := summaryKey{summary.ResourceID, summary.Day}
	if existing, ok := s.summaries[key]; ok && existing.ComputedAt.After(summary.ComputedAt) {
		return nil
	}
	s.summaries[key] = *summary
	return nil
}

func (s *SubmissionStore) GetDailySummary(ctx context.Context, resourceID, day string) (*models.DailySummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[summaryKey{resourceID, day}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &summary, nil
}

func (s *SubmissionStore) GetSummaryRange(ctx context.Context, resourceID, from, to string) ([]models.DailySummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start, err := bucketing.ParseDay(from)
	if err != nil {
		return nil, err
	}
	end, err := bucketing.ParseDay(to)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DailySummary
	for _, day := range bucketing.DaysBetween(start, end) {
		if summary, ok := s.summaries[summaryKey{resourceID, day}]; ok {
			out = append(out, summary)
		}
	}
	return out, nil
}

func (s *SubmissionStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[comment.ResourceID] = append(s.comments[comment.ResourceID], *comment)
	return nil
}

func (s *SubmissionStore) ListComments(ctx context.Context, resourceID string, limit int) ([]models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	all := append([]models.Comment(nil), s.comments[resourceID]...)
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *SubmissionStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func copySubmission(sub models.RatingSubmission) models.RatingSubmission {
	sub.Ratings = models.Ratings{
		Performance:  copyInt(sub.Ratings.Performance),
		Speed:        copyInt(sub.Ratings.Speed),
		Intelligence: copyInt(sub.Ratings.Intelligence),
		Reliability:  copyInt(sub.Ratings.Reliability),
	}
	return sub
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
