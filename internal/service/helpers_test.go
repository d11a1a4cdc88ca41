package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"rating-service/internal/config"
	"rating-service/internal/fingerprint"
	"rating-service/internal/models"
	"rating-service/internal/ratelimit"
	"rating-service/internal/repository/memory"
	"rating-service/internal/service"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Microsecond)
	return c.now
}

type testEnv struct {
	store   *memory.SubmissionStore
	factory *service.ServiceFactory
	clock   *fakeClock
	events  *recordingPublisher
}

type envOption func(*envConfig)

type envConfig struct {
	voteQuota   int
	ledgerStore ratelimit.Store
	publisher   service.EventPublisher
	index       *fakeIndex
}

func withVoteQuota(n int) envOption {
	return func(c *envConfig) { c.voteQuota = n }
}

func withLedgerStore(s ratelimit.Store) envOption {
	return func(c *envConfig) { c.ledgerStore = s }
}

func withPublisher(p service.EventPublisher) envOption {
	return func(c *envConfig) { c.publisher = p }
}

func withIndex(idx *fakeIndex) envOption {
	return func(c *envConfig) { c.index = idx }
}

func newTestEnv(opts ...envOption) *testEnv {
	cfg := envConfig{voteQuota: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	env := &testEnv{
		store:  memory.NewSubmissionStore(),
		clock:  &fakeClock{now: testNow},
		events: &recordingPublisher{},
	}
	var ledgerStore ratelimit.Store = memory.NewLedgerStore()
	if cfg.ledgerStore != nil {
		ledgerStore = cfg.ledgerStore
	}

	policies := ratelimit.PoliciesFromConfig(config.RateLimitConfig{
		Window:       24 * time.Hour,
		VoteQuota:    cfg.voteQuota,
		CommentQuota: 3,
	})
	ledger := ratelimit.NewLedger(ledgerStore, policies, time.Second).WithClock(env.clock.Now)

	publisher := service.EventPublisher(env.events)
	if cfg.publisher != nil {
		publisher = cfg.publisher
	}

	deps := service.Dependencies{
		Generator:    fingerprint.NewGenerator("test-pepper"),
		Ledger:       ledger,
		Submissions:  env.store,
		Comments:     env.store,
		Publisher:    publisher,
		StoreTimeout: time.Second,
		Clock:        env.clock.Now,
	}
	if cfg.index != nil {
		deps.CommentIndex = cfg.index
	}
	env.factory = service.NewServiceFactory(deps)
	return env
}

func voter(addr string) fingerprint.RequestMetadata {
	return fingerprint.RequestMetadata{
		SourceAddress:  addr,
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "en-US",
		AcceptEncoding: "gzip",
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RatingEvent
	err    error
}

func (p *recordingPublisher) PublishRating(ctx context.Context, event models.RatingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type brokenLedgerStore struct{}

func (brokenLedgerStore) CheckAndConsume(context.Context, ratelimit.Key, ratelimit.Policy, time.Time) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("connection refused")
}

func (brokenLedgerStore) SweepExpired(context.Context, time.Time, time.Duration) (int, error) {
	return 0, errors.New("connection refused")
}

func (brokenLedgerStore) Name() string { return "broken" }

type fakeIndex struct {
	mu       sync.Mutex
	indexed  []models.Comment
	queries  []string
	indexErr error
}

func (f *fakeIndex) IndexComment(ctx context.Context, c *models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, *c)
	return nil
}

func (f *fakeIndex) SearchComments(ctx context.Context, resourceID, query string, limit int) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	var out []models.Comment
	for _, c := range f.indexed {
		if resourceID == "" || c.ResourceID == resourceID {
			out = append(out, c)
		}
	}
	return out, nil
}
