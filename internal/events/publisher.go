// Package events publishes accepted ratings to Kafka for the activity
// archive. Publishing is best effort behind a circuit breaker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"rating-service/internal/metrics"
	"rating-service/internal/models"
	"rating-service/internal/util"
)

const (
	HeaderEventType = "event_type"
	EventTypeRating = "rating.submitted"
)

// Producer is satisfied by client.KafkaProducer.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	MaxHalfOpen      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		MaxHalfOpen:      1,
	}
}

type Publisher struct {
	producer Producer
	topic    string
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker[struct{}]
}

func NewPublisher(producer Producer, topic string, cfg BreakerConfig) *Publisher {
	settings := gobreaker.Settings{
		Name:        "kafka-" + topic,
		MaxRequests: cfg.MaxHalfOpen,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			util.Warn("Event publisher circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Publisher{
		producer: producer,
		topic:    topic,
		timeout:  2 * time.Second,
		breaker:  gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// PublishRating sends event keyed by model id so one model's events stay
// ordered within a partition.
func (p *Publisher) PublishRating(ctx context.Context, event models.RatingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode rating event: %w", err)
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return struct{}{}, p.producer.ProduceMessage(ctx, p.topic, []byte(event.ResourceID), payload,
			map[string]string{HeaderEventType: EventTypeRating})
	})

	switch {
	case err == nil:
		metrics.EventsPublished.WithLabelValues("ok").Inc()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.EventsPublished.WithLabelValues("breaker_open").Inc()
		return fmt.Errorf("failed to publish rating event: %w", err)
	default:
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish rating event: %w", err)
	}
}

// State reports the breaker state for health output.
func (p *Publisher) State() string {
	return p.breaker.State().String()
}
