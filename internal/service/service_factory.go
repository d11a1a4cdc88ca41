package service

import (
	"sync"
	"time"

	"rating-service/internal/fingerprint"
	"rating-service/internal/ratelimit"
	"rating-service/internal/repository"
)

// Dependencies are the collaborators shared by the services. CommentIndex,
// Publisher and Trends are optional and left nil when their backend is
// disabled.
type Dependencies struct {
	Generator    *fingerprint.Generator
	Ledger       *ratelimit.Ledger
	Submissions  repository.SubmissionStore
	Comments     repository.CommentStore
	CommentIndex repository.CommentIndex
	Publisher    EventPublisher
	Trends       TrendSource
	StoreTimeout time.Duration
	Clock        func() time.Time
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps Dependencies

	mu             sync.Mutex
	aggregator     *Aggregator
	ratingService  *RatingService
	commentService *CommentService
	statsService   *StatsService
}

func NewServiceFactory(deps Dependencies) *ServiceFactory {
	return &ServiceFactory{deps: deps}
}

// Aggregator returns the aggregator instance (singleton)
func (f *ServiceFactory) Aggregator() *Aggregator {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aggregatorLocked()
}

func (f *ServiceFactory) aggregatorLocked() *Aggregator {
	if f.aggregator == nil {
		f.aggregator = NewAggregator(f.deps.Submissions, f.deps.StoreTimeout)
		if f.deps.Clock != nil {
			f.aggregator.WithClock(f.deps.Clock)
		}
	}
	return f.aggregator
}

// RatingService returns the rating service instance (singleton)
func (f *ServiceFactory) RatingService() *RatingService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ratingService == nil {
		f.ratingService = NewRatingService(
			f.deps.Generator,
			f.deps.Ledger,
			f.deps.Submissions,
			f.aggregatorLocked(),
			f.deps.Publisher,
			f.deps.StoreTimeout,
		)
		if f.deps.Clock != nil {
			f.ratingService.WithClock(f.deps.Clock)
		}
	}
	return f.ratingService
}

// CommentService returns the comment service instance (singleton)
func (f *ServiceFactory) CommentService() *CommentService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentService == nil {
		f.commentService = NewCommentService(
			f.deps.Generator,
			f.deps.Ledger,
			f.deps.Comments,
			f.deps.CommentIndex,
			f.deps.StoreTimeout,
		)
		if f.deps.Clock != nil {
			f.commentService.WithClock(f.deps.Clock)
		}
	}
	return f.commentService
}

// StatsService returns the stats service instance (singleton)
func (f *ServiceFactory) StatsService() *StatsService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsService == nil {
		f.statsService = NewStatsService(
			f.deps.Submissions,
			f.aggregatorLocked(),
			f.deps.Trends,
			f.deps.StoreTimeout,
		)
		if f.deps.Clock != nil {
			f.statsService.WithClock(f.deps.Clock)
		}
	}
	return f.statsService
}
