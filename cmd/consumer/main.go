package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/glizzus/kafka-connector/internal/bootstrap"
	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/config"
	"github.com/glizzus/kafka-connector/internal/connector"
	"github.com/glizzus/kafka-connector/internal/datalayer"
	"github.com/glizzus/kafka-connector/internal/repository"
)

var debug = flag.Bool("debug", false, "Log at debug level")

func runConsumerForever() error {
	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	loopConfig, err := config.NewConsumerLoopConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load consumer config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := bootstrap.New(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := clients.Close(); err != nil {
			slog.Warn("failed to close clients", "error", err)
		}
	}()

	// The consumer loop closes the receiver when it stops.
	receiver, err := clients.Receiver(ctx, flag.Args()...)
	if err != nil {
		return fmt.Errorf("failed to create receiver: %w", err)
	}

	consumer, err := connector.NewConsumer(receiver)
	if err != nil {
		return err
	}

	handler := logMessage
	if loopConfig.Archive {
		pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		defer pool.Close()
		if err := datalayer.MigratePostgres(pool); err != nil {
			return fmt.Errorf("failed to migrate postgres: %w", err)
		}
		handler = archiveMessages(repository.NewPostgresMessageRepository(pool))
	}

	slog.Info("consumer starting",
		"backend", clients.Backend(),
		"pollTimeout", loopConfig.PollTimeout,
		"archive", loopConfig.Archive,
	)
	return consumer.Loop(ctx, handler, loopConfig.PollTimeout)
}

func logMessage(ctx context.Context, msg *broker.Message) error {
	slog.InfoContext(ctx, "message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", msg.Key,
		"value", msg.Value,
	)
	return nil
}

func archiveMessages(repo repository.MessagePersister) connector.Handler {
	return func(ctx context.Context, msg *broker.Message) error {
		if err := repo.Save(ctx, msg); err != nil {
			return fmt.Errorf("failed to archive message: %w", err)
		}
		return nil
	}
}

func main() {
	flag.Parse()
	if err := runConsumerForever(); err != nil {
		slog.Error("Consumer encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
