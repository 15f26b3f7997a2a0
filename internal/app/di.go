// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/helpdesk/internal/config"
	"github.com/allisson/helpdesk/internal/database"
	eventsRepository "github.com/allisson/helpdesk/internal/events/repository"
	eventsUsecase "github.com/allisson/helpdesk/internal/events/usecase"
	"github.com/allisson/helpdesk/internal/http"
	"github.com/allisson/helpdesk/internal/metrics"
	outboxHTTP "github.com/allisson/helpdesk/internal/outbox/http"
	outboxRepository "github.com/allisson/helpdesk/internal/outbox/repository"
	outboxUsecase "github.com/allisson/helpdesk/internal/outbox/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger *slog.Logger
	db     *sql.DB

	// Managers
	txManager database.TxManager

	// Repositories
	eventRepo  eventsUsecase.EventRepository
	outboxRepo outboxUsecase.EntryRepository

	// Use Cases
	publisher    eventsUsecase.Publisher
	worker       outboxUsecase.WorkerUseCase
	statsUseCase outboxUsecase.StatsUseCaseInterface

	// Metrics
	metricsProvider *metrics.Provider
	workerMetrics   metrics.WorkerMetrics

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                sync.Mutex
	loggerInit        sync.Once
	dbInit            sync.Once
	txManagerInit     sync.Once
	eventRepoInit     sync.Once
	outboxRepoInit    sync.Once
	publisherInit     sync.Once
	workerInit        sync.Once
	statsUseCaseInit  sync.Once
	metricsInit       sync.Once
	workerMetricsInit sync.Once
	httpServerInit    sync.Once
	metricsServerInit sync.Once
	initErrors        map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := c.initDB()
		if err != nil {
			c.initErrors["db"] = err
			return
		}
		c.db = db
	})
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		txManager, err := c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
			return
		}
		c.txManager = txManager
	})
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// EventRepository returns the domain event repository instance.
func (c *Container) EventRepository() (eventsUsecase.EventRepository, error) {
	c.eventRepoInit.Do(func() {
		repo, err := c.initEventRepository()
		if err != nil {
			c.initErrors["eventRepo"] = err
			return
		}
		c.eventRepo = repo
	})
	if storedErr, exists := c.initErrors["eventRepo"]; exists {
		return nil, storedErr
	}
	return c.eventRepo, nil
}

// OutboxRepository returns the outbox entry repository instance.
func (c *Container) OutboxRepository() (outboxUsecase.EntryRepository, error) {
	c.outboxRepoInit.Do(func() {
		repo, err := c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepo"] = err
			return
		}
		c.outboxRepo = repo
	})
	if storedErr, exists := c.initErrors["outboxRepo"]; exists {
		return nil, storedErr
	}
	return c.outboxRepo, nil
}

// Publisher returns the event publisher instance.
func (c *Container) Publisher() (eventsUsecase.Publisher, error) {
	c.publisherInit.Do(func() {
		publisher, err := c.initPublisher()
		if err != nil {
			c.initErrors["publisher"] = err
			return
		}
		c.publisher = publisher
	})
	if storedErr, exists := c.initErrors["publisher"]; exists {
		return nil, storedErr
	}
	return c.publisher, nil
}

// Worker returns the outbox worker instance.
func (c *Container) Worker() (outboxUsecase.WorkerUseCase, error) {
	c.workerInit.Do(func() {
		worker, err := c.initWorker()
		if err != nil {
			c.initErrors["worker"] = err
			return
		}
		c.worker = worker
	})
	if storedErr, exists := c.initErrors["worker"]; exists {
		return nil, storedErr
	}
	return c.worker, nil
}

// StatsUseCase returns the outbox stats use case instance.
func (c *Container) StatsUseCase() (outboxUsecase.StatsUseCaseInterface, error) {
	c.statsUseCaseInit.Do(func() {
		statsUseCase, err := c.initStatsUseCase()
		if err != nil {
			c.initErrors["statsUseCase"] = err
			return
		}
		c.statsUseCase = statsUseCase
	})
	if storedErr, exists := c.initErrors["statsUseCase"]; exists {
		return nil, storedErr
	}
	return c.statsUseCase, nil
}

// MetricsProvider returns the metrics provider instance.
// Returns nil when metrics are disabled in configuration.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
			return
		}
		c.metricsProvider = provider
	})
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// WorkerMetrics returns the worker metrics recorder.
// Falls back to a no-op implementation when metrics are disabled.
func (c *Container) WorkerMetrics() (metrics.WorkerMetrics, error) {
	c.workerMetricsInit.Do(func() {
		workerMetrics, err := c.initWorkerMetrics()
		if err != nil {
			c.initErrors["workerMetrics"] = err
			return
		}
		c.workerMetrics = workerMetrics
	})
	if storedErr, exists := c.initErrors["workerMetrics"]; exists {
		return nil, storedErr
	}
	return c.workerMetrics, nil
}

// HTTPServer returns the ops API server instance.
func (c *Container) HTTPServer() (*http.Server, error) {
	c.httpServerInit.Do(func() {
		server, err := c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		c.httpServer = server
	})
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server instance.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		server, err := c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		c.metricsServer = server
	})
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	// Stop the worker loop before closing anything it depends on
	if c.worker != nil {
		c.worker.Stop()
	}

	// Shutdown HTTP server if initialized
	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	// Shutdown metrics server if initialized
	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	// Shutdown metrics provider if initialized
	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Close database connection if initialized
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	// Return combined errors if any occurred
	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initEventRepository creates the domain event repository instance.
func (c *Container) initEventRepository() (eventsUsecase.EventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for event repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "mysql":
		return eventsRepository.NewMySQLEventRepository(db), nil
	case "postgres":
		return eventsRepository.NewPostgreSQLEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutboxRepository creates the outbox entry repository instance.
func (c *Container) initOutboxRepository() (outboxUsecase.EntryRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "mysql":
		return outboxRepository.NewMySQLOutboxRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLOutboxRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initPublisher creates the event publisher with all its dependencies.
func (c *Container) initPublisher() (eventsUsecase.Publisher, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for publisher: %w", err)
	}

	eventRepo, err := c.EventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get event repository for publisher: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for publisher: %w", err)
	}

	return eventsUsecase.NewEventPublisher(txManager, eventRepo, outboxRepo, c.Logger()), nil
}

// initWorker creates the outbox worker with all its dependencies.
func (c *Container) initWorker() (outboxUsecase.WorkerUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for worker: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for worker: %w", err)
	}

	workerMetrics, err := c.WorkerMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get worker metrics for worker: %w", err)
	}

	logger := c.Logger()

	workerConfig := outboxUsecase.Config{
		PollInterval:      c.config.OutboxPollInterval,
		BatchSize:         c.config.OutboxBatchSize,
		MaxAttempts:       c.config.OutboxMaxAttempts,
		ProcessingTimeout: c.config.OutboxProcessingTimeout,
		RetryBase:         c.config.OutboxRetryBase,
		RetryMax:          c.config.OutboxRetryMax,
	}

	handler := outboxUsecase.NewTelemetryEventHandler(logger)
	worker := outboxUsecase.NewWorker(
		workerConfig, txManager, outboxRepo, handler, nil, logger, workerMetrics,
	)

	return worker, nil
}

// initStatsUseCase creates the outbox stats use case with all its dependencies.
func (c *Container) initStatsUseCase() (outboxUsecase.StatsUseCaseInterface, error) {
	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for stats use case: %w", err)
	}

	worker, err := c.Worker()
	if err != nil {
		return nil, fmt.Errorf("failed to get worker for stats use case: %w", err)
	}

	statsConfig := outboxUsecase.StatsConfig{
		ProcessingTimeout: c.config.OutboxProcessingTimeout,
		PendingThreshold:  c.config.OutboxAlertPendingThreshold,
		OldestPendingAge:  c.config.OutboxAlertOldestPendingAge,
		StuckThreshold:    c.config.OutboxAlertStuckThreshold,
		FailedThreshold:   c.config.OutboxAlertFailedThreshold,
	}

	return outboxUsecase.NewStatsUseCase(statsConfig, outboxRepo, worker, nil), nil
}

// initWorkerMetrics creates the worker metrics recorder.
func (c *Container) initWorkerMetrics() (metrics.WorkerMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for worker metrics: %w", err)
	}

	if provider == nil {
		return metrics.NewNoOpWorkerMetrics(), nil
	}

	workerMetrics, err := metrics.NewWorkerMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker metrics: %w", err)
	}

	return workerMetrics, nil
}

// initHTTPServer creates the ops API server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	statsUseCase, err := c.StatsUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get stats use case for http server: %w", err)
	}

	worker, err := c.Worker()
	if err != nil {
		return nil, fmt.Errorf("failed to get worker for http server: %w", err)
	}

	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	outboxHandler := outboxHTTP.NewOutboxHandler(statsUseCase, worker, logger)

	return http.NewServer(c.config, logger, db, outboxHandler, metricsProvider), nil
}

// initMetricsServer creates the Prometheus metrics server.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}

	return http.NewMetricsServer(
		c.config.ServerHost,
		c.config.MetricsPort,
		c.Logger(),
		metricsProvider,
	), nil
}
