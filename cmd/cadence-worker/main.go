// Package main provides the cadence worker: it consumes campaign dispatch
// events and executes workflow runs against the channel gateways.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	cli "github.com/urfave/cli/v3"

	"github.com/vantagecrm/cadence/pkg/cmd"
	"github.com/vantagecrm/cadence/pkg/engine"
	"github.com/vantagecrm/cadence/pkg/inbox"
	"github.com/vantagecrm/cadence/pkg/log"
	"github.com/vantagecrm/cadence/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "cadence-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute campaign outreach runs",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Optional Redis URL for run state and sent counters",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent-runs",
				Usage:   "Upper bound on simultaneously executing runs",
				Value:   engine.DefaultMaxConcurrentRuns,
				Sources: cli.EnvVars("MAX_CONCURRENT_RUNS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "json",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		}, gatewayFlags()...),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("cadence-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing cadence worker")

	tracerProvider, err := otelhelper.NewTracerProvider(ctx, "cadence-worker")
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)

		return err
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shut down tracer provider", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), "cadence-worker", logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	store := cmd.WithRedisRuntime(ctx,
		cmd.NewPersistence(ctx, logger, command.String("database-url")),
		command.String("redis-url"))
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	clock := clockwork.NewRealClock()

	registry, mailbox := cmd.NewGatewayRegistry(gatewayConfigFromFlags(command), store.AuditRepository(), clock, logger)

	reader := inbox.NewReader(store.InboundRepository(), clock, logger)

	var poller *inbox.Poller
	if mailbox != nil {
		poller = inbox.NewPoller(mailbox, store.InboundRepository(), logger)
	}

	walker := engine.NewWalker(registry, reader, poller, store.RunStateRepository(), eventBus, clock, logger)

	dispatcher := engine.NewDispatcher(
		workerID,
		store,
		walker,
		eventBus,
		int(command.Int("max-concurrent-runs")),
		logger,
	)

	if err := dispatcher.Resume(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to resume persisted runs", "error", err)
	}

	if err := dispatcher.Start(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to start dispatcher", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Worker started")

	<-ctx.Done()

	logger.Info("Shutting down, suspending in-flight runs")
	dispatcher.Shutdown()

	return nil
}
