// Package repository provides data persistence implementations for domain events.
package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/helpdesk/internal/database"
	"github.com/allisson/helpdesk/internal/events/domain"

	apperrors "github.com/allisson/helpdesk/internal/errors"
)

// PostgreSQLEventRepository handles domain event persistence for PostgreSQL.
type PostgreSQLEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLEventRepository creates a new PostgreSQLEventRepository.
func NewPostgreSQLEventRepository(db *sql.DB) *PostgreSQLEventRepository {
	return &PostgreSQLEventRepository{
		db: db,
	}
}

// Create inserts a new domain event. Events are append-only: there is no
// update or delete path for this table.
func (r *PostgreSQLEventRepository) Create(ctx context.Context, event *domain.DomainEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO domain_events (id, event_name, aggregate_type, aggregate_id, actor_user_id,
			  payload, correlation_id, source, occurred_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err := querier.ExecContext(ctx, query, event.ID, event.EventName, event.AggregateType,
		event.AggregateID, event.ActorUserID, event.Payload, event.CorrelationID,
		event.Source, event.OccurredAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create domain event")
	}

	return nil
}
