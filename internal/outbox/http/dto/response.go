package dto

import (
	"time"

	"github.com/allisson/helpdesk/internal/outbox/domain"
)

// EntryResponse represents an outbox entry joined with its event metadata.
type EntryResponse struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	EventName     string     `json:"event_name"`
	Payload       string     `json:"payload"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     *string    `json:"last_error,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	AggregateType string     `json:"aggregate_type"`
	AggregateID   string     `json:"aggregate_id"`
	ActorUserID   *string    `json:"actor_user_id,omitempty"`
	CorrelationID *string    `json:"correlation_id,omitempty"`
	Source        string     `json:"source"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// ListEntriesResponse wraps the outbox entry listing.
type ListEntriesResponse struct {
	Entries []EntryResponse `json:"entries"`
}

// MapEntryToResponse maps a domain entry detail to its response representation.
func MapEntryToResponse(entry *domain.EntryDetail) EntryResponse {
	return EntryResponse{
		ID:            entry.ID.String(),
		EventID:       entry.EventID.String(),
		EventName:     entry.EventName,
		Payload:       entry.Payload,
		Status:        string(entry.Status),
		Attempts:      entry.Attempts,
		NextAttemptAt: entry.NextAttemptAt,
		LastError:     entry.LastError,
		ProcessedAt:   entry.ProcessedAt,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
		AggregateType: entry.AggregateType,
		AggregateID:   entry.AggregateID,
		ActorUserID:   entry.ActorUserID,
		CorrelationID: entry.CorrelationID,
		Source:        entry.Source,
		OccurredAt:    entry.OccurredAt,
	}
}

// MapEntriesToListResponse maps a slice of entry details to the list response.
func MapEntriesToListResponse(entries []*domain.EntryDetail) ListEntriesResponse {
	response := ListEntriesResponse{
		Entries: make([]EntryResponse, 0, len(entries)),
	}
	for _, entry := range entries {
		response.Entries = append(response.Entries, MapEntryToResponse(entry))
	}
	return response
}
