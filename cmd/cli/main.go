package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/glizzus/kafka-connector/internal/bootstrap"
	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/broker/memory"
	"github.com/glizzus/kafka-connector/internal/config"
	"github.com/glizzus/kafka-connector/internal/connector"
	"github.com/glizzus/kafka-connector/internal/datalayer"
	"github.com/glizzus/kafka-connector/internal/generator"
	"github.com/glizzus/kafka-connector/internal/repository"
	"github.com/glizzus/kafka-connector/internal/schedule"
)

var scheduleFlags = []cli.Flag{
	&cli.IntFlag{Name: "interval", Value: 1, Usage: "Number of units between ticks"},
	&cli.StringFlag{Name: "unit", Value: "s", Usage: "ms, s, m or h"},
	&cli.StringFlag{Name: "begin", Value: "immediately", Usage: "immediately, full-second, 06:00,18:00, cron:*/5 * * * * ..."},
	&cli.StringFlag{Name: "location", Usage: "IANA time zone, defaults to local time"},
}

type scheduleArgs struct {
	interval int
	unit     schedule.Unit
	begin    schedule.Begin
	loc      *time.Location
}

func parseScheduleFlags(c *cli.Context) (scheduleArgs, error) {
	unit, err := schedule.ParseUnit(c.String("unit"))
	if err != nil {
		return scheduleArgs{}, err
	}
	begin, err := schedule.ParseBegin(c.String("begin"))
	if err != nil {
		return scheduleArgs{}, err
	}
	loc, err := schedule.ParseLocation(c.String("location"))
	if err != nil {
		return scheduleArgs{}, err
	}
	return scheduleArgs{interval: c.Int("interval"), unit: unit, begin: begin, loc: loc}, nil
}

func nextRuns(c *cli.Context) error {
	args, err := parseScheduleFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	runs, err := schedule.Preview(args.interval, args.unit, args.begin, time.Now(), args.loc, c.Int("count"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	for _, run := range runs {
		fmt.Println(run.Format(time.RFC3339Nano))
	}
	return nil
}

func produce(c *cli.Context) error {
	clients, err := bootstrap.New(c.Context, slog.Default())
	if err != nil {
		return cli.Exit("Failed to connect: "+err.Error(), 1)
	}
	defer clients.Close()

	sender, err := clients.Sender(c.String("topic"))
	if err != nil {
		return cli.Exit("Failed to create sender: "+err.Error(), 1)
	}
	defer sender.Close()

	producer, err := connector.NewProducer(sender)
	if err != nil {
		return err
	}
	record := broker.Record{Value: c.String("value")}
	if c.IsSet("key") {
		record.Key = c.String("key")
	}
	if c.IsSet("partition") {
		record.Partition = broker.Partition(int32(c.Int("partition")))
	}
	for range c.Int("count") {
		if err := producer.Produce(c.Context, record); err != nil {
			return cli.Exit("Failed to produce: "+err.Error(), 1)
		}
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("flush-timeout"))
	defer cancel()
	if err := sender.Flush(ctx); err != nil {
		return cli.Exit("Failed to flush: "+err.Error(), 1)
	}
	return nil
}

func consume(c *cli.Context) error {
	clients, err := bootstrap.New(c.Context, slog.Default())
	if err != nil {
		return cli.Exit("Failed to connect: "+err.Error(), 1)
	}
	defer clients.Close()

	receiver, err := clients.Receiver(c.Context, c.StringSlice("topic")...)
	if err != nil {
		return cli.Exit("Failed to create receiver: "+err.Error(), 1)
	}
	consumer, err := connector.NewConsumer(receiver)
	if err != nil {
		return err
	}

	limit := c.Int("count")
	handler := func(ctx context.Context, msg *broker.Message) error {
		log.Printf("%s[%d]@%d key=%v value=%v", msg.Topic, msg.Partition, msg.Offset, msg.Key, msg.Value)
		if limit > 0 && consumer.Handled() >= uint64(limit) {
			consumer.Stop()
		}
		return nil
	}
	return consumer.Loop(c.Context, handler, c.Duration("timeout"))
}

// demo runs a producer and a consumer against an in-process broker.
func demo(c *cli.Context) error {
	args, err := parseScheduleFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	b := memory.New()
	topic := c.String("topic")
	producer, err := connector.NewProducer(b.Sender(topic), connector.WithLocation(args.loc))
	if err != nil {
		return err
	}
	consumer, err := connector.NewConsumer(b.Receiver([]string{topic}, memory.WithPartitionEOF()))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("duration"))
	defer cancel()

	data := generator.Records(&generator.UUIDV7Generator{}, generator.Heartbeat("demo"))
	handler := func(_ context.Context, msg *broker.Message) error {
		log.Printf("consumed offset=%d key=%v value=%v", msg.Offset, msg.Key, msg.Value)
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return producer.Loop(ctx, data, args.interval, args.unit, args.begin)
	})
	g.Go(func() error {
		return consumer.Loop(ctx, handler, 100*time.Millisecond)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("produced %d, consumed %d", len(b.Messages(topic)), consumer.Handled())
	return nil
}

func listMessages(c *cli.Context) error {
	pool, err := datalayer.NewPostgresPoolFromEnv(c.Context)
	if err != nil {
		return cli.Exit("Failed to create postgres pool: "+err.Error(), 1)
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return cli.Exit("Failed to migrate postgres: "+err.Error(), 1)
	}

	repo := repository.NewPostgresMessageRepository(pool)
	msgs, err := repo.List(c.Context, c.String("topic"), c.Int("limit"))
	if err != nil {
		return cli.Exit("Failed to retrieve messages: "+err.Error(), 1)
	}
	if len(msgs) == 0 {
		log.Println("No messages archived for the specified topic.")
		return nil
	}
	for _, msg := range msgs {
		log.Printf("%s[%d]@%d key=%s value=%s consumedAt=%s",
			msg.Topic, msg.Partition, msg.Offset, msg.Key, msg.Value, msg.ConsumedAt.Format(time.RFC3339))
	}
	return nil
}

func uploadSchema(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("Please provide a schema file", 1)
	}
	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return cli.Exit("Failed to create minio storage: "+err.Error(), 1)
	}
	if err := storage.EnsureBucket(c.Context); err != nil {
		return cli.Exit("Failed to ensure minio bucket: "+err.Error(), 1)
	}

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit("Failed to open schema: "+err.Error(), 1)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	key := c.String("key")
	if key == "" {
		key = filepath.Base(path)
	}
	if err := storage.Put(c.Context, key, f, datalayer.PutOptions{
		Size:        info.Size(),
		ContentType: "application/json",
	}); err != nil {
		return cli.Exit("Failed to upload schema: "+err.Error(), 1)
	}
	log.Printf("Uploaded %s as %s", path, key)
	return nil
}

func main() {
	if err := config.LoadEnv(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "kafka-connector-cli",
		Description: "A development CLI for the producer and consumer loops",
		Commands: []*cli.Command{
			{
				Name:   "next-runs",
				Usage:  "Print the instants a producer loop would tick at",
				Action: nextRuns,
				Flags: append([]cli.Flag{
					&cli.IntFlag{Name: "count", Value: 5, Usage: "Number of runs to print"},
				}, scheduleFlags...),
			},
			{
				Name:   "produce",
				Usage:  "Send a record to a topic",
				Action: produce,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "topic", Usage: "Topic to produce to, defaults to KAFKA_TOPIC"},
					&cli.StringFlag{Name: "key", Usage: "Record key"},
					&cli.StringFlag{Name: "value", Usage: "Record value", Required: true},
					&cli.IntFlag{Name: "partition", Usage: "Target partition"},
					&cli.IntFlag{Name: "count", Value: 1, Usage: "Number of copies to send"},
					&cli.DurationFlag{Name: "flush-timeout", Value: 10 * time.Second},
				},
			},
			{
				Name:   "consume",
				Usage:  "Print messages from topics until interrupted",
				Action: consume,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "topic", Usage: "Topics to subscribe to, defaults to KAFKA_TOPICS"},
					&cli.IntFlag{Name: "count", Usage: "Stop after this many messages"},
					&cli.DurationFlag{Name: "timeout", Value: time.Second, Usage: "Poll timeout"},
				},
			},
			{
				Name:   "demo",
				Usage:  "Run a producer and a consumer against an in-process broker",
				Action: demo,
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "topic", Value: "demo"},
					&cli.DurationFlag{Name: "duration", Value: 5 * time.Second},
				}, scheduleFlags...),
			},
			{
				Name:   "messages",
				Usage:  "List archived messages for a topic",
				Action: listMessages,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "topic", Required: true},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
			},
			{
				Name:      "upload-schema",
				Usage:     "Upload an Avro schema to object storage",
				ArgsUsage: "<schema.avsc>",
				Action:    uploadSchema,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "Object key, defaults to the file name"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
