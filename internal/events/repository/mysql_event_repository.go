// Package repository provides data persistence implementations for domain events.
package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/helpdesk/internal/database"
	"github.com/allisson/helpdesk/internal/events/domain"

	apperrors "github.com/allisson/helpdesk/internal/errors"
)

// MySQLEventRepository handles domain event persistence for MySQL.
type MySQLEventRepository struct {
	db *sql.DB
}

// NewMySQLEventRepository creates a new MySQLEventRepository.
func NewMySQLEventRepository(db *sql.DB) *MySQLEventRepository {
	return &MySQLEventRepository{
		db: db,
	}
}

// Create inserts a new domain event. Events are append-only: there is no
// update or delete path for this table.
func (r *MySQLEventRepository) Create(ctx context.Context, event *domain.DomainEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO domain_events (id, event_name, aggregate_type, aggregate_id, actor_user_id,
			  payload, correlation_id, source, occurred_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())`

	// Convert UUID to bytes for MySQL BINARY(16)
	idBytes, err := event.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	_, err = querier.ExecContext(ctx, query, idBytes, event.EventName, event.AggregateType,
		event.AggregateID, event.ActorUserID, event.Payload, event.CorrelationID,
		event.Source, event.OccurredAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create domain event")
	}

	return nil
}
