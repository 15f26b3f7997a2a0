// Package usecase implements domain event publishing with the transactional
// outbox pattern: the event fact and its delivery queue entry are inserted in
// one transaction, so a caller that publishes inside its own business
// transaction can never commit state without the event or vice versa.
package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/helpdesk/internal/database"
	eventsDomain "github.com/allisson/helpdesk/internal/events/domain"
	outboxDomain "github.com/allisson/helpdesk/internal/outbox/domain"

	apperrors "github.com/allisson/helpdesk/internal/errors"
)

// PublishInput carries the parameters for publishing a domain event.
type PublishInput struct {
	// EventName is the dot-namespaced event name (e.g. "ticket.created"). Required.
	EventName string
	// AggregateType is the kind of business entity the event concerns. Required.
	AggregateType string
	// AggregateID identifies the business entity the event concerns. Required.
	AggregateID string
	// ActorUserID optionally identifies the originating user.
	ActorUserID *string
	// Payload is an arbitrary JSON-serializable map; nil means empty object.
	Payload map[string]any
	// CorrelationID optionally links related events.
	CorrelationID *string
	// Source is a free-text origin tag; empty means "core".
	Source string
	// OccurredAt optionally backdates the event; nil means now.
	OccurredAt *time.Time
}

// PublishResult describes the durably queued event.
type PublishResult struct {
	OutboxID  uuid.UUID           `json:"outbox_id"`
	EventID   uuid.UUID           `json:"event_id"`
	EventName string              `json:"event_name"`
	Status    outboxDomain.Status `json:"status"`
}

// EventPublisher implements Publisher over the event store and outbox queue.
type EventPublisher struct {
	txManager  database.TxManager
	eventRepo  EventRepository
	outboxRepo OutboxRepository
	logger     *slog.Logger
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(
	txManager database.TxManager,
	eventRepo EventRepository,
	outboxRepo OutboxRepository,
	logger *slog.Logger,
) *EventPublisher {
	return &EventPublisher{
		txManager:  txManager,
		eventRepo:  eventRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Publish validates the input, then inserts the domain event and its outbox
// entry atomically. If the context already carries a transaction (the caller's
// business transaction), both inserts join it.
func (p *EventPublisher) Publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	if input.EventName == "" {
		return nil, eventsDomain.ErrEventNameRequired
	}
	if input.AggregateType == "" || input.AggregateID == "" {
		return nil, eventsDomain.ErrAggregateReferenceRequired
	}

	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to serialize event payload")
	}

	source := input.Source
	if source == "" {
		source = eventsDomain.DefaultSource
	}

	now := time.Now().UTC()
	occurredAt := now
	if input.OccurredAt != nil {
		occurredAt = input.OccurredAt.UTC()
	}

	event := &eventsDomain.DomainEvent{
		ID:            uuid.Must(uuid.NewV7()),
		EventName:     input.EventName,
		AggregateType: input.AggregateType,
		AggregateID:   input.AggregateID,
		ActorUserID:   input.ActorUserID,
		Payload:       string(payloadJSON),
		CorrelationID: input.CorrelationID,
		Source:        source,
		OccurredAt:    occurredAt,
	}

	entry := &outboxDomain.OutboxEntry{
		ID:            uuid.Must(uuid.NewV7()),
		EventID:       event.ID,
		EventName:     event.EventName,
		Payload:       event.Payload,
		Status:        outboxDomain.StatusPending,
		Attempts:      0,
		NextAttemptAt: now,
	}

	err = p.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := p.eventRepo.Create(ctx, event); err != nil {
			return err
		}
		return p.outboxRepo.Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	if p.logger != nil {
		p.logger.Debug("domain event published",
			slog.String("event_id", event.ID.String()),
			slog.String("event_name", event.EventName),
			slog.String("aggregate_type", event.AggregateType),
			slog.String("aggregate_id", event.AggregateID),
		)
	}

	return &PublishResult{
		OutboxID:  entry.ID,
		EventID:   event.ID,
		EventName: event.EventName,
		Status:    outboxDomain.StatusPending,
	}, nil
}
