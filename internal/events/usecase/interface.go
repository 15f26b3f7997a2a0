package usecase

import (
	"context"

	eventsDomain "github.com/allisson/helpdesk/internal/events/domain"
	outboxDomain "github.com/allisson/helpdesk/internal/outbox/domain"
)

// EventRepository defines domain event persistence operations.
type EventRepository interface {
	Create(ctx context.Context, event *eventsDomain.DomainEvent) error
}

// OutboxRepository defines the outbox operations the publisher needs.
// The full queue contract lives with the outbox worker; the publisher only enqueues.
type OutboxRepository interface {
	Create(ctx context.Context, entry *outboxDomain.OutboxEntry) error
}

// Publisher defines the interface for publishing domain events.
type Publisher interface {
	Publish(ctx context.Context, input PublishInput) (*PublishResult, error)
}
