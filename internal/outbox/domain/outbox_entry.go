// Package domain defines the core outbox domain entities and types.
//
// An outbox entry is the mutable delivery state for exactly one domain event.
// Entries move through a small state machine driven by the worker:
//
//	pending --claimed, handler ok--------------------> sent (terminal)
//	pending --claimed, handler fails, attempts < max-> pending (backoff)
//	pending --claimed, handler fails, attempts >= max> failed (terminal)
//	processing --stuck beyond timeout----------------> pending (recovered)
//
// "processing" is a transient claim marker: only a crash mid-tick leaves an
// entry parked there, and the next tick's recovery sweep returns it to pending.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/helpdesk/internal/errors"
)

// Status represents the delivery status of an outbox entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// ErrInvalidStatus indicates a status filter that is not one of the four valid values.
var ErrInvalidStatus = errors.Wrap(errors.ErrInvalidInput, "invalid_outbox_status")

// ParseStatus validates a status string and returns the typed status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusSent, StatusFailed:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// OutboxEntry represents the mutable delivery state of one domain event.
type OutboxEntry struct {
	// ID is the unique identifier of the entry, distinct from the event id.
	ID uuid.UUID
	// EventID references the domain event this entry delivers (one-to-one).
	EventID uuid.UUID
	// EventName is a denormalized copy of the event name for delivery without a join.
	EventName string
	// Payload is a denormalized copy of the event payload.
	Payload string
	// Status is the current delivery status.
	Status Status
	// Attempts counts delivery failures so far.
	Attempts int
	// NextAttemptAt is when the entry becomes eligible for claiming again.
	NextAttemptAt time.Time
	// LastError holds the most recent failure reason, cleared on success.
	LastError *string
	// ProcessedAt is set when the entry transitions to sent.
	ProcessedAt *time.Time
	// CreatedAt is when the entry was enqueued.
	CreatedAt time.Time
	// UpdatedAt is refreshed on every state transition; stuck detection keys off it.
	UpdatedAt time.Time
}

// Delivery is what the worker hands to the injected delivery handler for one
// claimed entry: the entry's denormalized fields plus the event metadata joined
// at claim time.
type Delivery struct {
	OutboxID      uuid.UUID
	EventID       uuid.UUID
	EventName     string
	Payload       string
	AggregateType string
	AggregateID   string
	ActorUserID   *string
	Source        string
}

// ClaimedEntry is a due entry the worker flipped to processing, carrying the
// delivery fields plus the attempt count needed for the retry decision.
type ClaimedEntry struct {
	Delivery
	Attempts int
}

// EntryDetail is an outbox entry joined with its event metadata, as returned
// by the operator listing query.
type EntryDetail struct {
	OutboxEntry
	AggregateType string
	AggregateID   string
	ActorUserID   *string
	CorrelationID *string
	Source        string
	OccurredAt    time.Time
}

// TickSummary reports what a single worker tick did.
type TickSummary struct {
	// Skipped is true when the tick was dropped by the re-entrancy guard.
	Skipped        bool  `json:"skipped"`
	RecoveredStuck int64 `json:"recovered_stuck"`
	Claimed        int   `json:"claimed"`
	Succeeded      int   `json:"succeeded"`
	Retried        int   `json:"retried"`
	DeadLettered   int   `json:"dead_lettered"`
}

// QueueStats is a point-in-time aggregation over outbox queue state.
type QueueStats struct {
	Total                   int64 `json:"total"`
	Pending                 int64 `json:"pending"`
	Processing              int64 `json:"processing"`
	Sent                    int64 `json:"sent"`
	Failed                  int64 `json:"failed"`
	DueNow                  int64 `json:"due_now"`
	OldestPendingAgeSeconds int64 `json:"oldest_pending_age_seconds"`
	Stuck                   int64 `json:"stuck"`
}

// RuntimeStats is a snapshot of the worker's in-process counters since start.
type RuntimeStats struct {
	Running        bool       `json:"running"`
	Ticks          int64      `json:"ticks"`
	Processed      int64      `json:"processed"`
	Succeeded      int64      `json:"succeeded"`
	Retried        int64      `json:"retried"`
	DeadLettered   int64      `json:"dead_lettered"`
	RecoveredStuck int64      `json:"recovered_stuck"`
	LastTickAt     *time.Time `json:"last_tick_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// Health evaluates queue state against configured alert thresholds.
// Each flag is true iff its metric meets or exceeds the threshold; a zero
// threshold disables that check.
type Health struct {
	Status              string   `json:"status"`
	Warnings            []string `json:"warnings"`
	PendingTooHigh      bool     `json:"pending_too_high"`
	OldestPendingTooOld bool     `json:"oldest_pending_too_old"`
	TooManyStuck        bool     `json:"too_many_stuck"`
	TooManyFailed       bool     `json:"too_many_failed"`
}

// Stats is the full observability snapshot returned by the stats reporter.
type Stats struct {
	Queue   QueueStats   `json:"queue"`
	Runtime RuntimeStats `json:"runtime"`
	Health  Health       `json:"health"`
}
