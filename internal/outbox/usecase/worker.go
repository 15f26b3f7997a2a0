// Package usecase implements the outbox worker and observability business logic.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allisson/helpdesk/internal/database"
	"github.com/allisson/helpdesk/internal/metrics"
	"github.com/allisson/helpdesk/internal/outbox/domain"
)

// maxErrorLength bounds last_error text stored per entry.
const maxErrorLength = 1000

// Config holds outbox worker configuration. Zero values fall back to defaults
// and out-of-range values are clamped to their floors.
type Config struct {
	// PollInterval is how often the scheduler ticks. Floor 1s, default 5s.
	PollInterval time.Duration
	// BatchSize is the maximum entries claimed per tick. Range 1-100, default 25.
	BatchSize int
	// MaxAttempts is the number of delivery failures before dead-lettering. Floor 1, default 5.
	MaxAttempts int
	// ProcessingTimeout is how long a processing entry may sit before the
	// recovery sweep returns it to pending. Floor 1s, default 60s.
	ProcessingTimeout time.Duration
	// RetryBase is the base delay for exponential backoff. Floor 500ms, default 2s.
	RetryBase time.Duration
	// RetryMax is the backoff ceiling; clamped up to RetryBase when smaller. Default 5m.
	RetryMax time.Duration
}

// withDefaults applies defaults and floors. RetryMax below RetryBase is clamped
// up rather than rejected, matching the historical behavior; the clamp is logged
// so misconfiguration is visible.
func (c Config) withDefaults(logger *slog.Logger) Config {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollInterval < time.Second {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.BatchSize > 100 {
		c.BatchSize = 100
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.ProcessingTimeout == 0 {
		c.ProcessingTimeout = 60 * time.Second
	}
	if c.ProcessingTimeout < time.Second {
		c.ProcessingTimeout = time.Second
	}
	if c.RetryBase == 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryBase < 500*time.Millisecond {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMax == 0 {
		c.RetryMax = 5 * time.Minute
	}
	if c.RetryMax < c.RetryBase {
		if logger != nil {
			logger.Warn("retry max below retry base, clamping up",
				slog.Duration("retry_base", c.RetryBase),
				slog.Duration("retry_max", c.RetryMax),
			)
		}
		c.RetryMax = c.RetryBase
	}
	return c
}

// RetryBackoff computes the exponential retry delay for the given attempt count
// (1-based): min(max, base * 2^(attempt-1)). The shift is overflow-guarded so
// large attempt counts saturate at the ceiling.
func RetryBackoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay <= 0 || delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// runtimeCounters are the worker's cumulative in-process counters since start.
type runtimeCounters struct {
	mu             sync.Mutex
	ticks          int64
	processed      int64
	succeeded      int64
	retried        int64
	deadLettered   int64
	recoveredStuck int64
	lastTickAt     *time.Time
	lastError      string
}

// Worker claims due outbox entries on a fixed poll interval, invokes the
// injected delivery handler for each, and drives the retry/dead-letter state
// machine. Safe to run in multiple processes against the same store: the
// conditional pending->processing flip is the single point of mutual exclusion.
type Worker struct {
	config    Config
	txManager database.TxManager
	repo      EntryRepository
	handler   EventHandler
	clock     Clock
	logger    *slog.Logger
	metrics   metrics.WorkerMetrics

	// tickGuard drops a tick that would overlap a running one; skipped ticks
	// are reported, never queued.
	tickGuard atomic.Bool

	counters runtimeCounters

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker creates a new outbox Worker. The handler is required; nil metrics
// and logger degrade to no-ops.
func NewWorker(
	config Config,
	txManager database.TxManager,
	repo EntryRepository,
	handler EventHandler,
	clock Clock,
	logger *slog.Logger,
	workerMetrics metrics.WorkerMetrics,
) *Worker {
	if clock == nil {
		clock = NewClock()
	}
	if workerMetrics == nil {
		workerMetrics = metrics.NewNoOpWorkerMetrics()
	}

	return &Worker{
		config:    config.withDefaults(logger),
		txManager: txManager,
		repo:      repo,
		handler:   handler,
		clock:     clock,
		logger:    logger,
		metrics:   workerMetrics,
	}
}

// Config returns the effective (defaulted and clamped) worker configuration.
func (w *Worker) Config() Config {
	return w.config
}

// Start launches the polling loop in a background goroutine. Returns false if
// the worker is already running. The loop stops when Stop is called or the
// context is canceled; an in-flight tick always runs to completion.
func (w *Worker) Start(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return false
	}

	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	if w.logger != nil {
		w.logger.Info("starting outbox worker",
			slog.Duration("poll_interval", w.config.PollInterval),
			slog.Int("batch_size", w.config.BatchSize),
			slog.Int("max_attempts", w.config.MaxAttempts),
		)
	}

	go w.loop(ctx, w.stopCh, w.doneCh)

	return true
}

// Stop halts future ticks and waits for an in-flight tick to finish.
// Returns false if the worker is not running.
func (w *Worker) Stop() bool {
	w.mu.Lock()

	if !w.running {
		w.mu.Unlock()
		return false
	}

	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	<-doneCh

	if w.logger != nil {
		w.logger.Info("outbox worker stopped")
	}

	return true
}

// loop is the scheduler: tick errors are logged and never crash the timer.
func (w *Worker) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				if w.logger != nil {
					w.logger.Error("outbox tick failed", slog.Any("error", err))
				}
			}
		}
	}
}

// RunOnce executes one worker tick: recover stuck entries, claim due entries,
// deliver each, and report a summary. A tick that would overlap a running one
// is skipped entirely and reported with Skipped set.
func (w *Worker) RunOnce(ctx context.Context) (*domain.TickSummary, error) {
	if !w.tickGuard.CompareAndSwap(false, true) {
		w.metrics.RecordTick(ctx, 0, "skipped")
		return &domain.TickSummary{Skipped: true}, nil
	}
	defer w.tickGuard.Store(false)

	start := w.clock.Now()
	summary := &domain.TickSummary{}

	// Recovery sweep runs in its own transaction: entries left in processing by
	// a crashed worker go back to pending with attempts untouched.
	err := w.txManager.WithTx(ctx, func(ctx context.Context) error {
		recovered, err := w.repo.RecoverStuck(ctx, start.Add(-w.config.ProcessingTimeout))
		if err != nil {
			return err
		}
		summary.RecoveredStuck = recovered
		return nil
	})
	if err != nil {
		return w.finishTick(ctx, start, summary, fmt.Errorf("recovery sweep: %w", err))
	}

	// Claim runs in one transaction per batch: select due entries oldest-first,
	// then conditionally flip each to processing. Rows another worker flipped
	// first simply drop out of the claimed set.
	var claimed []*domain.ClaimedEntry
	err = w.txManager.WithTx(ctx, func(ctx context.Context) error {
		due, err := w.repo.GetDueEntries(ctx, start, w.config.BatchSize)
		if err != nil {
			return err
		}

		for _, entry := range due {
			ok, err := w.repo.MarkProcessing(ctx, entry.OutboxID)
			if err != nil {
				return err
			}
			if ok {
				claimed = append(claimed, entry)
			}
		}
		return nil
	})
	if err != nil {
		return w.finishTick(ctx, start, summary, fmt.Errorf("claim batch: %w", err))
	}

	summary.Claimed = len(claimed)

	// Each claimed entry resolves independently: one handler failure never
	// aborts or rolls back another entry in the batch.
	for _, entry := range claimed {
		w.resolveEntry(ctx, entry, summary)
	}

	return w.finishTick(ctx, start, summary, nil)
}

// resolveEntry invokes the delivery handler for one claimed entry and applies
// the resulting state transition.
func (w *Worker) resolveEntry(ctx context.Context, entry *domain.ClaimedEntry, summary *domain.TickSummary) {
	handlerErr := w.invokeHandler(ctx, &entry.Delivery)

	if handlerErr == nil {
		if err := w.repo.MarkSent(ctx, entry.OutboxID, w.clock.Now()); err != nil {
			w.logEntryError(entry, "failed to mark outbox entry sent", err)
			return
		}
		summary.Succeeded++
		return
	}

	nextAttempts := entry.Attempts + 1
	lastError := truncateError(handlerErr)

	if nextAttempts >= w.config.MaxAttempts {
		if err := w.repo.MarkFailed(ctx, entry.OutboxID, nextAttempts, lastError); err != nil {
			w.logEntryError(entry, "failed to dead-letter outbox entry", err)
			return
		}
		summary.DeadLettered++

		if w.logger != nil {
			w.logger.Error("outbox entry dead-lettered",
				slog.String("outbox_id", entry.OutboxID.String()),
				slog.String("event_name", entry.EventName),
				slog.Int("attempts", nextAttempts),
				slog.String("last_error", lastError),
			)
		}
		return
	}

	delay := RetryBackoff(w.config.RetryBase, w.config.RetryMax, nextAttempts)
	nextAttemptAt := w.clock.Now().Add(delay)

	if err := w.repo.MarkRetry(ctx, entry.OutboxID, nextAttempts, nextAttemptAt, lastError); err != nil {
		w.logEntryError(entry, "failed to schedule outbox entry retry", err)
		return
	}
	summary.Retried++

	if w.logger != nil {
		w.logger.Warn("outbox entry delivery failed, retrying",
			slog.String("outbox_id", entry.OutboxID.String()),
			slog.String("event_name", entry.EventName),
			slog.Int("attempts", nextAttempts),
			slog.Duration("retry_in", delay),
			slog.String("last_error", lastError),
		)
	}
}

// invokeHandler calls the injected handler, converting panics into delivery
// errors so a misbehaving handler follows the same retry policy as one that
// returns an error.
func (w *Worker) invokeHandler(ctx context.Context, delivery *domain.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler.Handle(ctx, delivery)
}

// finishTick updates runtime counters and metrics, and returns the tick result.
func (w *Worker) finishTick(
	ctx context.Context,
	start time.Time,
	summary *domain.TickSummary,
	tickErr error,
) (*domain.TickSummary, error) {
	now := w.clock.Now()

	w.counters.mu.Lock()
	w.counters.ticks++
	w.counters.processed += int64(summary.Claimed)
	w.counters.succeeded += int64(summary.Succeeded)
	w.counters.retried += int64(summary.Retried)
	w.counters.deadLettered += int64(summary.DeadLettered)
	w.counters.recoveredStuck += summary.RecoveredStuck
	w.counters.lastTickAt = &now
	if tickErr != nil {
		w.counters.lastError = tickErr.Error()
	}
	w.counters.mu.Unlock()

	status := "ok"
	if tickErr != nil {
		status = "error"
	}
	w.metrics.RecordTick(ctx, now.Sub(start), status)
	w.metrics.RecordOutcome(ctx, "succeeded", int64(summary.Succeeded))
	w.metrics.RecordOutcome(ctx, "retried", int64(summary.Retried))
	w.metrics.RecordOutcome(ctx, "dead_lettered", int64(summary.DeadLettered))
	w.metrics.RecordOutcome(ctx, "recovered_stuck", summary.RecoveredStuck)

	return summary, tickErr
}

// Runtime returns a snapshot of the worker's cumulative counters since start.
func (w *Worker) Runtime() domain.RuntimeStats {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	w.counters.mu.Lock()
	defer w.counters.mu.Unlock()

	return domain.RuntimeStats{
		Running:        running,
		Ticks:          w.counters.ticks,
		Processed:      w.counters.processed,
		Succeeded:      w.counters.succeeded,
		Retried:        w.counters.retried,
		DeadLettered:   w.counters.deadLettered,
		RecoveredStuck: w.counters.recoveredStuck,
		LastTickAt:     w.counters.lastTickAt,
		LastError:      w.counters.lastError,
	}
}

// logEntryError logs a per-entry persistence failure without aborting the batch.
func (w *Worker) logEntryError(entry *domain.ClaimedEntry, message string, err error) {
	if w.logger != nil {
		w.logger.Error(message,
			slog.String("outbox_id", entry.OutboxID.String()),
			slog.String("event_name", entry.EventName),
			slog.Any("error", err),
		)
	}
}

// truncateError renders a handler error as bounded last_error text.
func truncateError(err error) string {
	msg := err.Error()
	if msg == "" {
		return "unknown_error"
	}
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}
