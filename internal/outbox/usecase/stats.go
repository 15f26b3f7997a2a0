package usecase

import (
	"context"
	"time"

	"github.com/allisson/helpdesk/internal/outbox/domain"
)

// Default and maximum page sizes for the operator listing query.
const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Health warning names surfaced to operators.
const (
	warnPendingTooHigh      = "pending_too_high"
	warnOldestPendingTooOld = "oldest_pending_too_old"
	warnTooManyStuck        = "too_many_stuck"
	warnTooManyFailed       = "too_many_failed"
)

// StatsConfig holds the observability configuration: the processing timeout used
// for stuck detection and the four alert thresholds. A zero threshold disables
// its check.
type StatsConfig struct {
	ProcessingTimeout time.Duration
	PendingThreshold  int
	OldestPendingAge  time.Duration
	StuckThreshold    int
	FailedThreshold   int
}

// StatsUseCase computes read-only queue and worker snapshots for health
// alerting and operator inspection. It never mutates queue state.
type StatsUseCase struct {
	config  StatsConfig
	repo    EntryRepository
	runtime RuntimeReporter
	clock   Clock
}

// NewStatsUseCase creates a new StatsUseCase.
func NewStatsUseCase(
	config StatsConfig,
	repo EntryRepository,
	runtime RuntimeReporter,
	clock Clock,
) *StatsUseCase {
	if clock == nil {
		clock = NewClock()
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = 60 * time.Second
	}

	return &StatsUseCase{
		config:  config,
		repo:    repo,
		runtime: runtime,
		clock:   clock,
	}
}

// GetStats aggregates the queue snapshot, the worker runtime snapshot, and the
// health evaluation against configured thresholds.
func (uc *StatsUseCase) GetStats(ctx context.Context) (*domain.Stats, error) {
	now := uc.clock.Now()

	queue, err := uc.repo.QueueStats(ctx, now, now.Add(-uc.config.ProcessingTimeout))
	if err != nil {
		return nil, err
	}

	runtime := domain.RuntimeStats{}
	if uc.runtime != nil {
		runtime = uc.runtime.Runtime()
	}

	return &domain.Stats{
		Queue:   *queue,
		Runtime: runtime,
		Health:  uc.evaluateHealth(queue),
	}, nil
}

// ListEntries returns outbox entries joined with event metadata, newest-created
// first. The limit defaults to 100 and caps at 500; a nil status returns all
// entries, otherwise the caller must pass one of the four valid statuses.
func (uc *StatsUseCase) ListEntries(
	ctx context.Context,
	limit int,
	status *domain.Status,
) ([]*domain.EntryDetail, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	if status != nil {
		if _, err := domain.ParseStatus(string(*status)); err != nil {
			return nil, err
		}
	}

	return uc.repo.List(ctx, limit, status)
}

// evaluateHealth sets each flag iff its metric meets or exceeds the configured
// threshold; zero thresholds disable their checks.
func (uc *StatsUseCase) evaluateHealth(queue *domain.QueueStats) domain.Health {
	health := domain.Health{
		Status:   "ok",
		Warnings: []string{},
	}

	if uc.config.PendingThreshold > 0 && queue.Pending >= int64(uc.config.PendingThreshold) {
		health.PendingTooHigh = true
		health.Warnings = append(health.Warnings, warnPendingTooHigh)
	}

	oldestAgeThreshold := int64(uc.config.OldestPendingAge / time.Second)
	if oldestAgeThreshold > 0 && queue.OldestPendingAgeSeconds >= oldestAgeThreshold {
		health.OldestPendingTooOld = true
		health.Warnings = append(health.Warnings, warnOldestPendingTooOld)
	}

	if uc.config.StuckThreshold > 0 && queue.Stuck >= int64(uc.config.StuckThreshold) {
		health.TooManyStuck = true
		health.Warnings = append(health.Warnings, warnTooManyStuck)
	}

	if uc.config.FailedThreshold > 0 && queue.Failed >= int64(uc.config.FailedThreshold) {
		health.TooManyFailed = true
		health.Warnings = append(health.Warnings, warnTooManyFailed)
	}

	if len(health.Warnings) > 0 {
		health.Status = "warning"
	}

	return health
}
