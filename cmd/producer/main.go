package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glizzus/kafka-connector/internal/bootstrap"
	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/config"
	"github.com/glizzus/kafka-connector/internal/connector"
	"github.com/glizzus/kafka-connector/internal/datalayer"
	"github.com/glizzus/kafka-connector/internal/generator"
	"github.com/glizzus/kafka-connector/internal/repository"
	"github.com/glizzus/kafka-connector/internal/schedule"
)

var (
	debug = flag.Bool("debug", false, "Log at debug level")
	topic = flag.String("topic", "", "Topic to produce to, overrides KAFKA_TOPIC")
)

func runProducerForever() error {
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

	loopConfig, err := config.NewProducerLoopConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load producer config: %w", err)
	}
	unit, err := schedule.ParseUnit(loopConfig.Unit)
	if err != nil {
		return err
	}
	begin, err := schedule.ParseBegin(loopConfig.Begin)
	if err != nil {
		return err
	}
	loc, err := schedule.ParseLocation(loopConfig.Location)
	if err != nil {
		return err
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

	sender, err := clients.Sender(*topic)
	if err != nil {
		return fmt.Errorf("failed to create sender: %w", err)
	}
	defer func() {
		if err := sender.Close(); err != nil {
			slog.Warn("failed to close sender", "error", err)
		}
	}()

	producer, err := connector.NewProducer(sender, connector.WithLocation(loc))
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}
	value := generator.Heartbeat(hostname)
	if !clients.EncodesValues() {
		value = generator.JSON(value)
	}
	data := generator.Records(&generator.UUIDV7Generator{}, value)

	if loopConfig.Archive {
		pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		defer pool.Close()
		if err := datalayer.MigratePostgres(pool); err != nil {
			return fmt.Errorf("failed to migrate postgres: %w", err)
		}
		data = archiveDeliveries(data, producer, repository.NewPostgresDeliveryRepository(pool))
	}

	slog.Info("producer starting",
		"backend", clients.Backend(),
		"interval", loopConfig.Interval,
		"unit", unit,
		"begin", begin,
	)
	return producer.Loop(ctx, data, loopConfig.Interval, unit, begin)
}

// archiveDeliveries attaches a delivery callback that logs the report and
// stores it.
func archiveDeliveries(data connector.DataFunc, producer *connector.Producer, repo repository.DeliveryPersister) connector.DataFunc {
	onDelivery := func(report broker.DeliveryReport) {
		producer.LogDelivery(report)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.SaveDelivery(ctx, report); err != nil {
			slog.Error("failed to archive delivery report", "error", err)
		}
	}
	return func(ctx context.Context) (any, error) {
		v, err := data(ctx)
		if err != nil {
			return nil, err
		}
		if record, ok := v.(broker.Record); ok {
			record.OnDelivery = onDelivery
			return record, nil
		}
		return v, nil
	}
}

func main() {
	flag.Parse()
	if err := runProducerForever(); err != nil {
		slog.Error("Producer encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
