package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/helpdesk/internal/outbox/domain"
)

// EntryRepository defines outbox entry repository operations.
type EntryRepository interface {
	Create(ctx context.Context, entry *domain.OutboxEntry) error
	GetDueEntries(ctx context.Context, now time.Time, limit int) ([]*domain.ClaimedEntry, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	RecoverStuck(ctx context.Context, cutoff time.Time) (int64, error)
	MarkSent(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
	List(ctx context.Context, limit int, status *domain.Status) ([]*domain.EntryDetail, error)
	QueueStats(ctx context.Context, now time.Time, stuckCutoff time.Time) (*domain.QueueStats, error)
}

// EventHandler is the delivery-side contract: one method, injected at worker
// construction. The worker has no knowledge of what delivery means — telemetry,
// email, or any downstream integration plugs in here. Handlers may be invoked
// more than once for the same event and must be idempotent or order-tolerant.
type EventHandler interface {
	Handle(ctx context.Context, delivery *domain.Delivery) error
}

// Clock abstracts time lookups so backoff and stuck-detection arithmetic is
// testable and portable across relational engines.
type Clock interface {
	Now() time.Time
}

// RuntimeReporter exposes the worker's in-process runtime snapshot.
type RuntimeReporter interface {
	Runtime() domain.RuntimeStats
}

// WorkerUseCase defines the outbox worker operations.
type WorkerUseCase interface {
	Start(ctx context.Context) bool
	Stop() bool
	RunOnce(ctx context.Context) (*domain.TickSummary, error)
	Runtime() domain.RuntimeStats
}

// StatsUseCaseInterface defines the read-only observability operations.
type StatsUseCaseInterface interface {
	GetStats(ctx context.Context) (*domain.Stats, error)
	ListEntries(ctx context.Context, limit int, status *domain.Status) ([]*domain.EntryDetail, error)
}
