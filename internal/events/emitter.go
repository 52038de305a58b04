// Package events publishes lifecycle events to the shared Kafka stream so
// downstream consumers (dashboard, digests) follow the pipeline without
// polling the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// Emitter publishes lifecycle events.
type Emitter interface {
	// Emit publishes one event, keyed by its aggregate ID.
	Emit(ctx context.Context, event domain.Event) error

	// TryEmit publishes best-effort: failures are logged, never returned.
	// Pipeline jobs must not fail because the event stream hiccuped.
	TryEmit(ctx context.Context, event domain.Event)

	Close() error
}

// Config holds Kafka producer settings.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the lifecycle event topic.
	Topic string
}

// messageWriter is the slice of kafka.Writer the emitter needs; tests
// substitute a capture.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes events to one Kafka topic.
type KafkaEmitter struct {
	writer messageWriter
	source string
	logger zerolog.Logger
}

var _ Emitter = (*KafkaEmitter)(nil)

// NewKafkaEmitter creates an emitter over a shared async producer.
func NewKafkaEmitter(cfg Config, logger zerolog.Logger) *KafkaEmitter {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaEmitter{
		writer: writer,
		source: "analysis-service",
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// newWithWriter is used by tests.
func newWithWriter(writer messageWriter, logger zerolog.Logger) *KafkaEmitter {
	return &KafkaEmitter{writer: writer, source: "analysis-service", logger: logger}
}

// Emit publishes one event. Missing identity fields are filled in: event ID,
// occurred-at timestamp, and source.
func (e *KafkaEmitter) Emit(ctx context.Context, event domain.Event) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Source == "" {
		event.Source = e.source
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", event.EventType, err)
	}

	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publishing event %s: %w", event.EventType, err)
	}
	return nil
}

// TryEmit publishes best-effort and logs failures.
func (e *KafkaEmitter) TryEmit(ctx context.Context, event domain.Event) {
	if err := e.Emit(ctx, event); err != nil {
		e.logger.Warn().Err(err).
			Str("event_type", event.EventType).
			Str("aggregate_id", event.AggregateID).
			Msg("event publish failed")
	}
}

// Close flushes and closes the underlying producer.
func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}

// NopEmitter discards every event, used when the event stream is disabled.
type NopEmitter struct{}

var _ Emitter = NopEmitter{}

func (NopEmitter) Emit(context.Context, domain.Event) error { return nil }
func (NopEmitter) TryEmit(context.Context, domain.Event)    {}
func (NopEmitter) Close() error                             { return nil }
