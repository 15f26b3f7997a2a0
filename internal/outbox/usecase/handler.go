package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/allisson/helpdesk/internal/outbox/domain"

	apperrors "github.com/allisson/helpdesk/internal/errors"
)

// TelemetryEventHandler is the default EventHandler: it decodes the payload and
// emits a structured log record per delivered event. Real integrations (message
// brokers, webhooks, notification fan-out) plug in through the same interface.
type TelemetryEventHandler struct {
	logger *slog.Logger
}

// NewTelemetryEventHandler creates a new TelemetryEventHandler.
func NewTelemetryEventHandler(logger *slog.Logger) *TelemetryEventHandler {
	return &TelemetryEventHandler{
		logger: logger,
	}
}

// Handle logs the delivered event. A payload that fails to decode is a delivery
// failure and goes through the normal retry policy.
func (h *TelemetryEventHandler) Handle(ctx context.Context, delivery *domain.Delivery) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(delivery.Payload), &payload); err != nil {
		return apperrors.Wrap(err, "failed to decode event payload")
	}

	if h.logger != nil {
		attrs := []slog.Attr{
			slog.String("event_id", delivery.EventID.String()),
			slog.String("event_name", delivery.EventName),
			slog.String("aggregate_type", delivery.AggregateType),
			slog.String("aggregate_id", delivery.AggregateID),
			slog.String("source", delivery.Source),
			slog.Any("payload", payload),
		}
		if delivery.ActorUserID != nil {
			attrs = append(attrs, slog.String("actor_user_id", *delivery.ActorUserID))
		}
		h.logger.LogAttrs(ctx, slog.LevelInfo, "domain event delivered", attrs...)
	}

	return nil
}
