// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/helpdesk/cmd/app/commands"
)

func main() {
	cmd := &cli.Command{
		Name:    "app",
		Usage:   "Helpdesk event delivery service",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the ops API server, metrics server, and outbox worker",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx)
				},
			},
			{
				Name:  "worker",
				Usage: "Start the outbox worker without the HTTP servers",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunWorker(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunMigrations()
				},
			},
			{
				Name:  "publish-event",
				Usage: "Publish a domain event through the transactional outbox",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "event-name",
						Aliases:  []string{"e"},
						Required: true,
						Usage:    "Dot-namespaced event name (e.g., ticket.created)",
					},
					&cli.StringFlag{
						Name:     "aggregate-type",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Type of the aggregate the event refers to (e.g., ticket)",
					},
					&cli.StringFlag{
						Name:     "aggregate-id",
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "Identifier of the aggregate the event refers to",
					},
					&cli.StringFlag{
						Name:    "payload",
						Aliases: []string{"p"},
						Value:   "{}",
						Usage:   "JSON object with the event payload",
					},
					&cli.StringFlag{
						Name:  "actor-user-id",
						Usage: "User responsible for the action, if any",
					},
					&cli.StringFlag{
						Name:  "correlation-id",
						Usage: "Correlation identifier for request tracing",
					},
					&cli.StringFlag{
						Name:  "source",
						Value: "",
						Usage: "Originating system (defaults to 'core')",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunPublishEvent(
						ctx,
						commands.PublishEventInput{
							EventName:     cmd.String("event-name"),
							AggregateType: cmd.String("aggregate-type"),
							AggregateID:   cmd.String("aggregate-id"),
							Payload:       cmd.String("payload"),
							ActorUserID:   cmd.String("actor-user-id"),
							CorrelationID: cmd.String("correlation-id"),
							Source:        cmd.String("source"),
							Format:        cmd.String("format"),
						},
						commands.DefaultIO(),
					)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
