package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperpulse/analysis-service/internal/domain"
)

type captureWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaEmitter_Emit(t *testing.T) {
	ctx := context.Background()

	t.Run("fills identity fields and keys by aggregate", func(t *testing.T) {
		writer := &captureWriter{}
		emitter := newWithWriter(writer, zerolog.Nop())

		err := emitter.Emit(ctx, domain.Event{
			EventType:   domain.EventTypePaperIngested,
			AggregateID: "2401.99999",
			Payload:     domain.PaperIngestedPayload{ExternalID: "2401.99999", PrimaryCategory: "cs.LG"},
		})
		require.NoError(t, err)
		require.Len(t, writer.messages, 1)

		assert.Equal(t, []byte("2401.99999"), writer.messages[0].Key)

		var sent domain.Event
		require.NoError(t, json.Unmarshal(writer.messages[0].Value, &sent))
		assert.Equal(t, domain.EventTypePaperIngested, sent.EventType)
		assert.NotEmpty(t, sent.EventID)
		assert.False(t, sent.OccurredAt.IsZero())
		assert.Equal(t, "analysis-service", sent.Source)
	})

	t.Run("keeps caller-supplied identity", func(t *testing.T) {
		writer := &captureWriter{}
		emitter := newWithWriter(writer, zerolog.Nop())
		at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

		err := emitter.Emit(ctx, domain.Event{
			EventID:     "fixed-id",
			EventType:   domain.EventTypeBatchCompleted,
			AggregateID: "batch-1",
			OccurredAt:  at,
			Source:      "migration-script",
		})
		require.NoError(t, err)

		var sent domain.Event
		require.NoError(t, json.Unmarshal(writer.messages[0].Value, &sent))
		assert.Equal(t, "fixed-id", sent.EventID)
		assert.True(t, sent.OccurredAt.Equal(at))
		assert.Equal(t, "migration-script", sent.Source)
	})

	t.Run("write failure is returned", func(t *testing.T) {
		emitter := newWithWriter(&captureWriter{err: errors.New("broker down")}, zerolog.Nop())

		err := emitter.Emit(ctx, domain.Event{EventType: domain.EventTypeToggleChanged})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})

	t.Run("TryEmit swallows failures", func(t *testing.T) {
		emitter := newWithWriter(&captureWriter{err: errors.New("broker down")}, zerolog.Nop())
		emitter.TryEmit(ctx, domain.Event{EventType: domain.EventTypeToggleChanged})
	})

	t.Run("close closes the writer", func(t *testing.T) {
		writer := &captureWriter{}
		emitter := newWithWriter(writer, zerolog.Nop())
		require.NoError(t, emitter.Close())
		assert.True(t, writer.closed)
	})
}
