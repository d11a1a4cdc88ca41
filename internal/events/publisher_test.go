package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"rating-service/internal/models"
)

type recordingProducer struct {
	mu       sync.Mutex
	err      error
	calls    int
	topic    string
	key      []byte
	value    []byte
	eventTyp string
}

func (r *recordingProducer) ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.topic, r.key, r.value, r.eventTyp = topic, key, value, headers[HeaderEventType]
	return r.err
}

func TestPublishRating(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(producer, "ratings.submitted", DefaultBreakerConfig())

	event := models.RatingEvent{
		EventID:     "e-1",
		ResourceID:  "openai/gpt-4o",
		Day:         "2025-01-01",
		Ratings:     models.Ratings{Speed: models.IntPtr(4)},
		SubmittedAt: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := pub.PublishRating(context.Background(), event); err != nil {
		t.Fatalf("PublishRating: %v", err)
	}

	if producer.topic != "ratings.submitted" || string(producer.key) != "openai/gpt-4o" || producer.eventTyp != EventTypeRating {
		t.Fatalf("unexpected message: topic=%s key=%s type=%s", producer.topic, producer.key, producer.eventTyp)
	}
	var decoded models.RatingEvent
	if err := json.Unmarshal(producer.value, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.EventID != "e-1" || decoded.Ratings.Speed == nil || *decoded.Ratings.Speed != 4 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestPublishRating_BreakerOpens(t *testing.T) {
	producer := &recordingProducer{err: errors.New("broker down")}
	pub := NewPublisher(producer, "t", BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute, MaxHalfOpen: 1})
	event := models.RatingEvent{ResourceID: "m"}

	for i := 0; i < 2; i++ {
		if err := pub.PublishRating(context.Background(), event); err == nil {
			t.Fatal("expected producer error")
		}
	}

	err := pub.PublishRating(context.Background(), event)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if producer.calls != 2 {
		t.Fatalf("producer called %d times, want 2", producer.calls)
	}
	if pub.State() != gobreaker.StateOpen.String() {
		t.Fatalf("state = %s", pub.State())
	}
}
