// Package integration provides end-to-end tests for the event delivery
// pipeline: publish through the transactional outbox, run worker ticks against
// a real PostgreSQL database, and observe delivery state and stats.
package integration

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/helpdesk/internal/database"
	eventsRepository "github.com/allisson/helpdesk/internal/events/repository"
	eventsUsecase "github.com/allisson/helpdesk/internal/events/usecase"
	"github.com/allisson/helpdesk/internal/outbox/domain"
	outboxRepository "github.com/allisson/helpdesk/internal/outbox/repository"
	outboxUsecase "github.com/allisson/helpdesk/internal/outbox/usecase"
	"github.com/allisson/helpdesk/internal/testutil"
)

// recordingHandler is a test delivery handler with a scriptable failure count.
type recordingHandler struct {
	mu        sync.Mutex
	failures  int
	delivered []*domain.Delivery
}

func (h *recordingHandler) Handle(_ context.Context, delivery *domain.Delivery) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.failures > 0 {
		h.failures--
		return errors.New("simulated delivery failure")
	}
	h.delivered = append(h.delivered, delivery)
	return nil
}

func (h *recordingHandler) deliveredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.delivered)
}

// pipeline wires the publisher, worker, and stats use case against a real database.
type pipeline struct {
	db         *sql.DB
	publisher  *eventsUsecase.EventPublisher
	worker     *outboxUsecase.Worker
	stats      *outboxUsecase.StatsUseCase
	handler    *recordingHandler
	outboxRepo *outboxRepository.PostgreSQLOutboxRepository
}

func setupPipeline(t *testing.T, config outboxUsecase.Config) *pipeline {
	t.Helper()

	db := testutil.SetupPostgresDB(t)
	t.Cleanup(func() {
		testutil.CleanupPostgresDB(t, db)
		testutil.TeardownDB(t, db)
	})

	txManager := database.NewTxManager(db)
	eventRepo := eventsRepository.NewPostgreSQLEventRepository(db)
	outboxRepo := outboxRepository.NewPostgreSQLOutboxRepository(db)
	handler := &recordingHandler{}

	worker := outboxUsecase.NewWorker(config, txManager, outboxRepo, handler, nil, nil, nil)
	stats := outboxUsecase.NewStatsUseCase(outboxUsecase.StatsConfig{
		ProcessingTimeout: 60 * time.Second,
		PendingThreshold:  100,
		StuckThreshold:    1,
		FailedThreshold:   1,
	}, outboxRepo, worker, nil)

	return &pipeline{
		db:         db,
		publisher:  eventsUsecase.NewEventPublisher(txManager, eventRepo, outboxRepo, nil),
		worker:     worker,
		stats:      stats,
		handler:    handler,
		outboxRepo: outboxRepo,
	}
}

func (p *pipeline) publish(t *testing.T, eventName string) *eventsUsecase.PublishResult {
	t.Helper()

	result, err := p.publisher.Publish(context.Background(), eventsUsecase.PublishInput{
		EventName:     eventName,
		AggregateType: "ticket",
		AggregateID:   "ticket-123",
		Payload:       map[string]any{"subject": "printer on fire"},
	})
	require.NoError(t, err)
	return result
}

func (p *pipeline) entryStatus(t *testing.T, result *eventsUsecase.PublishResult) domain.Status {
	t.Helper()

	details, err := p.outboxRepo.List(context.Background(), 500, nil)
	require.NoError(t, err)
	for _, detail := range details {
		if detail.ID == result.OutboxID {
			return detail.Status
		}
	}
	t.Fatalf("outbox entry %s not found", result.OutboxID)
	return ""
}

func TestPublishAndDeliver(t *testing.T) {
	testutil.SkipIfNoPostgres(t)

	p := setupPipeline(t, outboxUsecase.Config{})
	result := p.publish(t, "ticket.created")

	assert.Equal(t, domain.StatusPending, result.Status)
	assert.Equal(t, domain.StatusPending, p.entryStatus(t, result))

	summary, err := p.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Claimed)
	assert.Equal(t, 1, summary.Succeeded)

	assert.Equal(t, domain.StatusSent, p.entryStatus(t, result))
	require.Equal(t, 1, p.handler.deliveredCount())
	assert.Equal(t, "ticket.created", p.handler.delivered[0].EventName)
	assert.Equal(t, "ticket", p.handler.delivered[0].AggregateType)
	assert.JSONEq(t, `{"subject":"printer on fire"}`, p.handler.delivered[0].Payload)
}

func TestRetryThenDeliver(t *testing.T) {
	testutil.SkipIfNoPostgres(t)

	p := setupPipeline(t, outboxUsecase.Config{
		MaxAttempts: 5,
		RetryBase:   500 * time.Millisecond,
	})
	p.handler.failures = 1

	result := p.publish(t, "ticket.updated")

	// First tick fails and schedules a retry
	summary, err := p.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retried)
	assert.Equal(t, domain.StatusPending, p.entryStatus(t, result))

	// Immediately the entry is still backing off
	summary, err = p.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Claimed)

	// After the backoff delay the retry succeeds
	time.Sleep(600 * time.Millisecond)
	summary, err = p.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, domain.StatusSent, p.entryStatus(t, result))
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	testutil.SkipIfNoPostgres(t)

	p := setupPipeline(t, outboxUsecase.Config{
		MaxAttempts: 2,
		RetryBase:   500 * time.Millisecond,
	})
	p.handler.failures = 10

	result := p.publish(t, "ticket.closed")

	summary, err := p.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retried)

	time.Sleep(600 * time.Millisecond)
	summary, err = p.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DeadLettered)
	assert.Equal(t, domain.StatusFailed, p.entryStatus(t, result))

	// Dead-lettered entries are never claimed again
	time.Sleep(600 * time.Millisecond)
	summary, err = p.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Claimed)
}

func TestStatsReflectQueueState(t *testing.T) {
	testutil.SkipIfNoPostgres(t)

	p := setupPipeline(t, outboxUsecase.Config{
		MaxAttempts: 1,
	})
	p.handler.failures = 1

	// One of the two entries fails its single attempt and dead-letters
	p.publish(t, "ticket.created")
	p.publish(t, "ticket.updated")

	summary, err := p.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Claimed)

	stats, err := p.stats.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Queue.Total)
	assert.Equal(t, int64(1), stats.Queue.Sent)
	assert.Equal(t, int64(1), stats.Queue.Failed)
	assert.Equal(t, int64(1), stats.Runtime.Ticks)
	assert.True(t, stats.Health.TooManyFailed)
	assert.Equal(t, "warning", stats.Health.Status)
	assert.Contains(t, stats.Health.Warnings, "too_many_failed")
}

func TestPublishRollsBackWithBusinessTransaction(t *testing.T) {
	testutil.SkipIfNoPostgres(t)

	p := setupPipeline(t, outboxUsecase.Config{})
	txManager := database.NewTxManager(p.db)

	// A failing business transaction takes the published event down with it
	sentinel := errors.New("business rule violated")
	err := txManager.WithTx(context.Background(), func(ctx context.Context) error {
		_, err := p.publisher.Publish(ctx, eventsUsecase.PublishInput{
			EventName:     "ticket.created",
			AggregateType: "ticket",
			AggregateID:   "ticket-123",
		})
		require.NoError(t, err)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	details, err := p.outboxRepo.List(context.Background(), 500, nil)
	require.NoError(t, err)
	assert.Len(t, details, 0)

	var eventCount int
	err = p.db.QueryRow("SELECT COUNT(*) FROM domain_events").Scan(&eventCount)
	require.NoError(t, err)
	assert.Zero(t, eventCount)
}
