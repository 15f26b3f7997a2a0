package usecase

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/helpdesk/internal/outbox/domain"
)

func TestTelemetryEventHandler_Handle(t *testing.T) {
	t.Run("logs delivered event", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		handler := NewTelemetryEventHandler(logger)

		actorUserID := "user-42"
		delivery := &domain.Delivery{
			OutboxID:      uuid.Must(uuid.NewV7()),
			EventID:       uuid.Must(uuid.NewV7()),
			EventName:     "ticket.assigned",
			Payload:       `{"assignee":"agent-7"}`,
			AggregateType: "ticket",
			AggregateID:   "ticket-123",
			ActorUserID:   &actorUserID,
			Source:        "core",
		}

		err := handler.Handle(context.Background(), delivery)

		require.NoError(t, err)
		output := buf.String()
		assert.Contains(t, output, "domain event delivered")
		assert.Contains(t, output, "ticket.assigned")
		assert.Contains(t, output, "agent-7")
		assert.Contains(t, output, "user-42")
	})

	t.Run("nil logger still succeeds", func(t *testing.T) {
		handler := NewTelemetryEventHandler(nil)

		delivery := &domain.Delivery{
			OutboxID:  uuid.Must(uuid.NewV7()),
			EventID:   uuid.Must(uuid.NewV7()),
			EventName: "ticket.created",
			Payload:   `{}`,
		}

		err := handler.Handle(context.Background(), delivery)
		assert.NoError(t, err)
	})

	t.Run("undecodable payload is a delivery failure", func(t *testing.T) {
		handler := NewTelemetryEventHandler(nil)

		delivery := &domain.Delivery{
			OutboxID:  uuid.Must(uuid.NewV7()),
			EventID:   uuid.Must(uuid.NewV7()),
			EventName: "ticket.created",
			Payload:   `{not json`,
		}

		err := handler.Handle(context.Background(), delivery)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode event payload")
	})
}
