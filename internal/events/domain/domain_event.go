// Package domain defines the core domain event entities and types.
//
// Domain events are immutable facts: one row per published event, created inside
// the same transaction as the business mutation it describes and never mutated
// or deleted afterwards. The event store owns these records for audit and replay.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/helpdesk/internal/errors"
)

// DefaultSource is the origin tag recorded when the publisher is not told otherwise.
const DefaultSource = "core"

// DomainEvent represents an immutable domain event fact.
type DomainEvent struct {
	// ID is the unique identifier of the event.
	ID uuid.UUID
	// EventName is the dot-namespaced event name (e.g. "ticket.created").
	EventName string
	// AggregateType is the kind of business entity this event concerns.
	AggregateType string
	// AggregateID identifies the business entity this event concerns.
	AggregateID string
	// ActorUserID optionally identifies the originating user.
	ActorUserID *string
	// Payload is the JSON-serialized event payload, immutable once written.
	Payload string
	// CorrelationID optionally links related events across boundaries.
	CorrelationID *string
	// Source is a free-text origin tag, defaults to "core".
	Source string
	// OccurredAt is when the event happened; may be backdated by the caller.
	OccurredAt time.Time
	// CreatedAt is when the row was inserted, always set at insert time.
	CreatedAt time.Time
}

// Domain-specific errors for event publishing.
var (
	// ErrEventNameRequired indicates the event name is empty.
	ErrEventNameRequired = errors.Wrap(errors.ErrInvalidInput, "event_name_required")

	// ErrAggregateReferenceRequired indicates the aggregate type or id is empty.
	ErrAggregateReferenceRequired = errors.Wrap(errors.ErrInvalidInput, "aggregate_reference_required")
)
