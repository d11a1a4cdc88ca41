package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"rating-service/internal/models"
	"rating-service/internal/util"
)

// Consumer is satisfied by client.KafkaConsumer.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// EventSink receives decoded batches.
type EventSink interface {
	InsertEvents(ctx context.Context, events []models.RatingEvent) error
}

// Archiver moves rating events from Kafka into the archive in batches.
// Offsets are committed only after a batch is stored, so a crash replays
// at most the uncommitted batch.
type Archiver struct {
	consumer      Consumer
	sink          EventSink
	batchSize     int
	flushInterval time.Duration
	insertRetries int
}

func NewArchiver(consumer Consumer, sink EventSink) *Archiver {
	return &Archiver{
		consumer:      consumer,
		sink:          sink,
		batchSize:     500,
		flushInterval: 5 * time.Second,
		insertRetries: 3,
	}
}

func (a *Archiver) WithBatching(size int, interval time.Duration) *Archiver {
	if size > 0 {
		a.batchSize = size
	}
	if interval > 0 {
		a.flushInterval = interval
	}
	return a
}

func (a *Archiver) String() string { return "rating-archiver" }

// Serve runs until ctx is cancelled or the consumer fails.
func (a *Archiver) Serve(ctx context.Context) error {
	util.Info("Rating archiver started",
		zap.Int("batch_size", a.batchSize),
		zap.Duration("flush_interval", a.flushInterval))

	for {
		events, msgs, err := a.collect(ctx)
		if ctx.Err() != nil {
			// uncommitted messages are redelivered to the group
			return ctx.Err()
		}
		if len(msgs) > 0 {
			if ferr := a.flush(ctx, events, msgs); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return err
		}
	}
}

func (a *Archiver) collect(ctx context.Context) ([]models.RatingEvent, []kafka.Message, error) {
	var events []models.RatingEvent
	var msgs []kafka.Message
	deadline := time.Now().Add(a.flushInterval)

	for len(msgs) < a.batchSize {
		fetchCtx, cancel := context.WithDeadline(ctx, deadline)
		msg, err := a.consumer.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return events, msgs, nil
			}
			return events, msgs, err
		}

		msgs = append(msgs, msg)
		var event models.RatingEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			util.Warn("Skipping undecodable rating event",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, msgs, nil
}

func (a *Archiver) flush(ctx context.Context, events []models.RatingEvent, msgs []kafka.Message) error {
	var err error
	for attempt := 0; attempt < a.insertRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		if err = a.sink.InsertEvents(ctx, events); err == nil {
			break
		}
		util.Warn("Archive insert failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	if err != nil {
		return fmt.Errorf("failed to archive batch: %w", err)
	}

	if err := a.consumer.CommitMessages(ctx, msgs...); err != nil {
		return err
	}

	util.Debug("Archived rating events", zap.Int("events", len(events)), zap.Int("messages", len(msgs)))
	return nil
}
