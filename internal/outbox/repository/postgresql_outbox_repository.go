// Package repository provides data persistence implementations for outbox entries.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/helpdesk/internal/database"
	"github.com/allisson/helpdesk/internal/outbox/domain"

	apperrors "github.com/allisson/helpdesk/internal/errors"
)

// PostgreSQLOutboxRepository handles outbox entry persistence for PostgreSQL.
type PostgreSQLOutboxRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxRepository creates a new PostgreSQLOutboxRepository.
func NewPostgreSQLOutboxRepository(db *sql.DB) *PostgreSQLOutboxRepository {
	return &PostgreSQLOutboxRepository{
		db: db,
	}
}

// Create inserts a new outbox entry.
func (r *PostgreSQLOutboxRepository) Create(ctx context.Context, entry *domain.OutboxEntry) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO event_outbox (id, event_id, event_name, payload, status, attempts,
			  next_attempt_at, last_error, processed_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query, entry.ID, entry.EventID, entry.EventName,
		entry.Payload, entry.Status, entry.Attempts, entry.NextAttemptAt,
		entry.LastError, entry.ProcessedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox entry")
	}

	return nil
}

// GetDueEntries retrieves up to limit pending entries whose next attempt is due,
// oldest-created first, joined with their event metadata. Rows are locked with
// SKIP LOCKED so concurrent workers scanning the queue never block each other.
func (r *PostgreSQLOutboxRepository) GetDueEntries(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.ClaimedEntry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT o.id, o.event_id, o.event_name, o.payload, o.attempts,
			  e.aggregate_type, e.aggregate_id, e.actor_user_id, e.source
			  FROM event_outbox o
			  JOIN domain_events e ON e.id = o.event_id
			  WHERE o.status = $1 AND o.next_attempt_at <= $2
			  ORDER BY o.created_at ASC
			  LIMIT $3
			  FOR UPDATE OF o SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.StatusPending, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query due outbox entries")
	}
	defer rows.Close() //nolint:errcheck

	var entries []*domain.ClaimedEntry
	for rows.Next() {
		var entry domain.ClaimedEntry

		err := rows.Scan(&entry.OutboxID, &entry.EventID, &entry.EventName, &entry.Payload,
			&entry.Attempts, &entry.AggregateType, &entry.AggregateID, &entry.ActorUserID,
			&entry.Source)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan due outbox entry")
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate due outbox entries")
	}

	return entries, nil
}

// MarkProcessing atomically flips a pending entry to processing. Returns false
// when the entry was no longer pending, meaning another worker won the claim.
func (r *PostgreSQLOutboxRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE event_outbox
			  SET status = $1, updated_at = NOW()
			  WHERE id = $2 AND status = $3`

	result, err := querier.ExecContext(ctx, query, domain.StatusProcessing, id, domain.StatusPending)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to mark outbox entry processing")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read claim result")
	}

	return affected == 1, nil
}

// RecoverStuck returns entries parked in processing since before the cutoff to
// pending, in one bulk update. Attempts and next_attempt_at are left untouched
// so recovered entries are retried without burning retry budget.
func (r *PostgreSQLOutboxRepository) RecoverStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE event_outbox
			  SET status = $1, updated_at = NOW()
			  WHERE status = $2 AND updated_at <= $3`

	result, err := querier.ExecContext(ctx, query, domain.StatusPending, domain.StatusProcessing, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to recover stuck outbox entries")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read recovery result")
	}

	return affected, nil
}

// MarkSent transitions an entry to the terminal sent state, clearing last_error.
func (r *PostgreSQLOutboxRepository) MarkSent(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE event_outbox
			  SET status = $1, last_error = NULL, processed_at = $2, updated_at = NOW()
			  WHERE id = $3`

	_, err := querier.ExecContext(ctx, query, domain.StatusSent, processedAt, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox entry sent")
	}

	return nil
}

// MarkRetry returns an entry to pending with an incremented attempt count and
// the backoff-computed next attempt time.
func (r *PostgreSQLOutboxRepository) MarkRetry(
	ctx context.Context,
	id uuid.UUID,
	attempts int,
	nextAttemptAt time.Time,
	lastError string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE event_outbox
			  SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4, updated_at = NOW()
			  WHERE id = $5`

	_, err := querier.ExecContext(ctx, query, domain.StatusPending, attempts, nextAttemptAt, lastError, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox entry for retry")
	}

	return nil
}

// MarkFailed transitions an entry to the terminal dead-letter state.
func (r *PostgreSQLOutboxRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	attempts int,
	lastError string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE event_outbox
			  SET status = $1, attempts = $2, last_error = $3, updated_at = NOW()
			  WHERE id = $4`

	_, err := querier.ExecContext(ctx, query, domain.StatusFailed, attempts, lastError, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox entry failed")
	}

	return nil
}

// List retrieves entries joined with their event metadata, newest-created first,
// optionally filtered to one status. Used for operator inspection, not by the worker.
func (r *PostgreSQLOutboxRepository) List(
	ctx context.Context,
	limit int,
	status *domain.Status,
) ([]*domain.EntryDetail, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT o.id, o.event_id, o.event_name, o.payload, o.status, o.attempts,
			  o.next_attempt_at, o.last_error, o.processed_at, o.created_at, o.updated_at,
			  e.aggregate_type, e.aggregate_id, e.actor_user_id, e.correlation_id, e.source, e.occurred_at
			  FROM event_outbox o
			  JOIN domain_events e ON e.id = o.event_id`

	args := []any{}
	if status != nil {
		query += ` WHERE o.status = $1
			  ORDER BY o.created_at DESC
			  LIMIT $2`
		args = append(args, *status, limit)
	} else {
		query += ` ORDER BY o.created_at DESC
			  LIMIT $1`
		args = append(args, limit)
	}

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list outbox entries")
	}
	defer rows.Close() //nolint:errcheck

	var entries []*domain.EntryDetail
	for rows.Next() {
		var entry domain.EntryDetail

		err := rows.Scan(&entry.ID, &entry.EventID, &entry.EventName, &entry.Payload,
			&entry.Status, &entry.Attempts, &entry.NextAttemptAt, &entry.LastError,
			&entry.ProcessedAt, &entry.CreatedAt, &entry.UpdatedAt,
			&entry.AggregateType, &entry.AggregateID, &entry.ActorUserID,
			&entry.CorrelationID, &entry.Source, &entry.OccurredAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox entry")
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox entries")
	}

	return entries, nil
}

// QueueStats aggregates queue state in a single pass: per-status counts, entries
// due now, the oldest pending age, and entries stuck in processing since before
// the stuck cutoff.
func (r *PostgreSQLOutboxRepository) QueueStats(
	ctx context.Context,
	now time.Time,
	stuckCutoff time.Time,
) (*domain.QueueStats, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*),
			  COUNT(*) FILTER (WHERE status = 'pending'),
			  COUNT(*) FILTER (WHERE status = 'processing'),
			  COUNT(*) FILTER (WHERE status = 'sent'),
			  COUNT(*) FILTER (WHERE status = 'failed'),
			  COUNT(*) FILTER (WHERE status = 'pending' AND next_attempt_at <= $1),
			  COALESCE(GREATEST(EXTRACT(EPOCH FROM ($1 - MIN(created_at) FILTER (WHERE status = 'pending')))::BIGINT, 0), 0),
			  COUNT(*) FILTER (WHERE status = 'processing' AND updated_at <= $2)
			  FROM event_outbox`

	var stats domain.QueueStats
	err := querier.QueryRowContext(ctx, query, now, stuckCutoff).Scan(
		&stats.Total, &stats.Pending, &stats.Processing, &stats.Sent, &stats.Failed,
		&stats.DueNow, &stats.OldestPendingAgeSeconds, &stats.Stuck,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to aggregate outbox queue stats")
	}

	return &stats, nil
}
