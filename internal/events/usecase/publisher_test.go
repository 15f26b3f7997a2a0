package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/helpdesk/internal/errors"
	eventsDomain "github.com/allisson/helpdesk/internal/events/domain"
	outboxDomain "github.com/allisson/helpdesk/internal/outbox/domain"
)

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	// Execute the function to test the logic inside
	return fn(ctx)
}

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Create(ctx context.Context, event *eventsDomain.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockOutboxRepository is a mock implementation of OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, entry *outboxDomain.OutboxEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func TestPublish(t *testing.T) {
	t.Run("publishes event and outbox entry atomically", func(t *testing.T) {
		txManager := &MockTxManager{}
		eventRepo := &MockEventRepository{}
		outboxRepo := &MockOutboxRepository{}

		var createdEvent *eventsDomain.DomainEvent
		var createdEntry *outboxDomain.OutboxEntry

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		eventRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.DomainEvent")).
			Run(func(args mock.Arguments) {
				createdEvent = args.Get(1).(*eventsDomain.DomainEvent)
			}).
			Return(nil)
		outboxRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.OutboxEntry")).
			Run(func(args mock.Arguments) {
				createdEntry = args.Get(1).(*outboxDomain.OutboxEntry)
			}).
			Return(nil)

		publisher := NewEventPublisher(txManager, eventRepo, outboxRepo, nil)

		actorUserID := "user-42"
		result, err := publisher.Publish(context.Background(), PublishInput{
			EventName:     "ticket.created",
			AggregateType: "ticket",
			AggregateID:   "ticket-123",
			ActorUserID:   &actorUserID,
			Payload:       map[string]any{"subject": "printer on fire"},
			Source:        "api",
		})

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "ticket.created", result.EventName)
		assert.Equal(t, outboxDomain.StatusPending, result.Status)

		require.NotNil(t, createdEvent)
		assert.Equal(t, result.EventID, createdEvent.ID)
		assert.Equal(t, "ticket", createdEvent.AggregateType)
		assert.Equal(t, "ticket-123", createdEvent.AggregateID)
		assert.Equal(t, &actorUserID, createdEvent.ActorUserID)
		assert.Equal(t, "api", createdEvent.Source)
		assert.JSONEq(t, `{"subject":"printer on fire"}`, createdEvent.Payload)

		require.NotNil(t, createdEntry)
		assert.Equal(t, result.OutboxID, createdEntry.ID)
		assert.Equal(t, createdEvent.ID, createdEntry.EventID)
		assert.Equal(t, createdEvent.Payload, createdEntry.Payload)
		assert.Equal(t, outboxDomain.StatusPending, createdEntry.Status)
		assert.Zero(t, createdEntry.Attempts)
		assert.False(t, createdEntry.NextAttemptAt.After(time.Now().UTC()))

		eventRepo.AssertExpectations(t)
		outboxRepo.AssertExpectations(t)
	})

	t.Run("nil payload becomes empty object", func(t *testing.T) {
		txManager := &MockTxManager{}
		eventRepo := &MockEventRepository{}
		outboxRepo := &MockOutboxRepository{}

		var createdEvent *eventsDomain.DomainEvent

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		eventRepo.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				createdEvent = args.Get(1).(*eventsDomain.DomainEvent)
			}).
			Return(nil)
		outboxRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

		publisher := NewEventPublisher(txManager, eventRepo, outboxRepo, nil)

		_, err := publisher.Publish(context.Background(), PublishInput{
			EventName:     "ticket.created",
			AggregateType: "ticket",
			AggregateID:   "ticket-123",
		})

		require.NoError(t, err)
		assert.Equal(t, "{}", createdEvent.Payload)
		assert.Equal(t, eventsDomain.DefaultSource, createdEvent.Source)
	})

	t.Run("occurred at is honored when provided", func(t *testing.T) {
		txManager := &MockTxManager{}
		eventRepo := &MockEventRepository{}
		outboxRepo := &MockOutboxRepository{}

		var createdEvent *eventsDomain.DomainEvent

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		eventRepo.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				createdEvent = args.Get(1).(*eventsDomain.DomainEvent)
			}).
			Return(nil)
		outboxRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

		publisher := NewEventPublisher(txManager, eventRepo, outboxRepo, nil)

		occurredAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
		_, err := publisher.Publish(context.Background(), PublishInput{
			EventName:     "ticket.closed",
			AggregateType: "ticket",
			AggregateID:   "ticket-123",
			OccurredAt:    &occurredAt,
		})

		require.NoError(t, err)
		assert.Equal(t, occurredAt, createdEvent.OccurredAt)
	})

	t.Run("missing event name is rejected", func(t *testing.T) {
		publisher := NewEventPublisher(&MockTxManager{}, &MockEventRepository{}, &MockOutboxRepository{}, nil)

		result, err := publisher.Publish(context.Background(), PublishInput{
			AggregateType: "ticket",
			AggregateID:   "ticket-123",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, eventsDomain.ErrEventNameRequired)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Nil(t, result)
	})

	t.Run("missing aggregate reference is rejected", func(t *testing.T) {
		publisher := NewEventPublisher(&MockTxManager{}, &MockEventRepository{}, &MockOutboxRepository{}, nil)

		tests := []PublishInput{
			{EventName: "ticket.created", AggregateID: "ticket-123"},
			{EventName: "ticket.created", AggregateType: "ticket"},
		}

		for _, input := range tests {
			result, err := publisher.Publish(context.Background(), input)
			require.Error(t, err)
			assert.ErrorIs(t, err, eventsDomain.ErrAggregateReferenceRequired)
			assert.Nil(t, result)
		}
	})

	t.Run("event insert failure rolls back without an outbox write", func(t *testing.T) {
		txManager := &MockTxManager{}
		eventRepo := &MockEventRepository{}
		outboxRepo := &MockOutboxRepository{}

		repoErr := errors.New("unique constraint violation")
		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		eventRepo.On("Create", mock.Anything, mock.Anything).Return(repoErr)

		publisher := NewEventPublisher(txManager, eventRepo, outboxRepo, nil)

		result, err := publisher.Publish(context.Background(), PublishInput{
			EventName:     "ticket.created",
			AggregateType: "ticket",
			AggregateID:   "ticket-123",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, repoErr)
		assert.Nil(t, result)
		outboxRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("outbox insert failure surfaces the error", func(t *testing.T) {
		txManager := &MockTxManager{}
		eventRepo := &MockEventRepository{}
		outboxRepo := &MockOutboxRepository{}

		repoErr := errors.New("disk full")
		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		eventRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
		outboxRepo.On("Create", mock.Anything, mock.Anything).Return(repoErr)

		publisher := NewEventPublisher(txManager, eventRepo, outboxRepo, nil)

		result, err := publisher.Publish(context.Background(), PublishInput{
			EventName:     "ticket.created",
			AggregateType: "ticket",
			AggregateID:   "ticket-123",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, repoErr)
		assert.Nil(t, result)
	})

	t.Run("unserializable payload is rejected before the transaction", func(t *testing.T) {
		txManager := &MockTxManager{}
		publisher := NewEventPublisher(txManager, &MockEventRepository{}, &MockOutboxRepository{}, nil)

		result, err := publisher.Publish(context.Background(), PublishInput{
			EventName:     "ticket.created",
			AggregateType: "ticket",
			AggregateID:   "ticket-123",
			Payload:       map[string]any{"fn": func() {}},
		})

		require.Error(t, err)
		var typeErr *json.UnsupportedTypeError
		assert.ErrorAs(t, err, &typeErr)
		assert.Nil(t, result)
		txManager.AssertNotCalled(t, "WithTx", mock.Anything, mock.Anything)
	})
}
