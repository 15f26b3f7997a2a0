package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/allisson/helpdesk/internal/app"
	"github.com/allisson/helpdesk/internal/config"
	eventsUsecase "github.com/allisson/helpdesk/internal/events/usecase"
)

// PublishEventInput carries the CLI flags for the publish-event command.
type PublishEventInput struct {
	EventName     string
	AggregateType string
	AggregateID   string
	Payload       string
	ActorUserID   string
	CorrelationID string
	Source        string
	Format        string
}

// RunPublishEvent publishes a domain event through the transactional outbox.
// The event fact and its delivery queue entry are inserted atomically; the
// running worker picks the entry up on its next tick. Outputs the queued
// event's identifiers in either text or JSON format.
//
// Requirements: Database must be migrated and accessible.
func RunPublishEvent(ctx context.Context, input PublishEventInput, cmdIO IOTuple) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)
	logger := container.Logger()

	defer closeContainer(container, logger)

	publisher, err := container.Publisher()
	if err != nil {
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}

	var payload map[string]any
	if input.Payload != "" {
		if err := json.Unmarshal([]byte(input.Payload), &payload); err != nil {
			return fmt.Errorf("failed to parse payload JSON: %w", err)
		}
	}

	publishInput := eventsUsecase.PublishInput{
		EventName:     input.EventName,
		AggregateType: input.AggregateType,
		AggregateID:   input.AggregateID,
		Payload:       payload,
		Source:        input.Source,
	}
	if input.ActorUserID != "" {
		publishInput.ActorUserID = &input.ActorUserID
	}
	if input.CorrelationID != "" {
		publishInput.CorrelationID = &input.CorrelationID
	}

	result, err := publisher.Publish(ctx, publishInput)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	// Output result based on format
	if input.Format == "json" {
		outputPublishJSON(result, cmdIO.Writer)
	} else {
		outputPublishText(result, cmdIO.Writer)
	}

	logger.Info("event published",
		slog.String("event_id", result.EventID.String()),
		slog.String("outbox_id", result.OutboxID.String()),
		slog.String("event_name", result.EventName),
	)

	return nil
}

// outputPublishText outputs the result in human-readable text format.
func outputPublishText(result *eventsUsecase.PublishResult, writer io.Writer) {
	_, _ = fmt.Fprintln(writer, "\nEvent published successfully!")
	_, _ = fmt.Fprintf(writer, "Event ID: %s\n", result.EventID.String())
	_, _ = fmt.Fprintf(writer, "Outbox ID: %s\n", result.OutboxID.String())
	_, _ = fmt.Fprintf(writer, "Event name: %s\n", result.EventName)
	_, _ = fmt.Fprintf(writer, "Status: %s\n", result.Status)
}

// outputPublishJSON outputs the result in JSON format for machine consumption.
func outputPublishJSON(result *eventsUsecase.PublishResult, writer io.Writer) {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
}
