// Package bootstrap builds broker clients from the environment for the
// binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hamba/avro/v2/registry"
	"github.com/redis/go-redis/v9"

	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/broker/kafka"
	"github.com/glizzus/kafka-connector/internal/broker/memory"
	"github.com/glizzus/kafka-connector/internal/broker/redisstream"
	"github.com/glizzus/kafka-connector/internal/config"
	"github.com/glizzus/kafka-connector/internal/datalayer"
	"github.com/glizzus/kafka-connector/internal/serde"
	"github.com/glizzus/kafka-connector/internal/util"
)

// Clients owns the connections shared by the senders and receivers it builds.
type Clients struct {
	log    *slog.Logger
	broker *config.BrokerConfig
	schema *config.SchemaConfig

	memory *memory.Broker
	redis  *redis.Client

	keyCodec   serde.Codec
	valueCodec serde.Codec
	closers    []func() error
}

// New reads BROKER_BACKEND and the schema settings, connects to the
// backend's shared services and loads the configured schemas.
func New(ctx context.Context, logger *slog.Logger) (*Clients, error) {
	brokerCfg, err := config.NewBrokerConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load broker config: %w", err)
	}
	schemaCfg, err := config.NewSchemaConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load schema config: %w", err)
	}

	c := &Clients{log: logger, broker: brokerCfg, schema: schemaCfg}
	if brokerCfg.Backend == config.BackendMemory {
		c.memory = memory.New()
	}
	if brokerCfg.Backend == config.BackendRedis {
		if err := c.connectRedis(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.loadCodecs(ctx); err != nil {
		return nil, errors.Join(err, c.Close())
	}
	return c, nil
}

// Backend reports which broker the clients talk to.
func (c *Clients) Backend() config.Backend {
	return c.broker.Backend
}

// Topic is the producer's destination.
func (c *Clients) Topic() string {
	return c.broker.Topic
}

// Topics is the consumer's subscription.
func (c *Clients) Topics() []string {
	return c.broker.Topics
}

// EncodesValues reports whether record values go through an Avro codec.
// Without one, senders accept only []byte and string values.
func (c *Clients) EncodesValues() bool {
	return c.valueCodec != nil
}

// Sender builds a sender for topic, or for KAFKA_TOPIC when topic is empty.
func (c *Clients) Sender(topic string) (broker.Sender, error) {
	if topic == "" {
		topic = c.broker.Topic
	}
	if topic == "" {
		return nil, fmt.Errorf("no topic: set KAFKA_TOPIC")
	}

	switch c.broker.Backend {
	case config.BackendMemory:
		return c.memory.Sender(topic), nil
	case config.BackendRedis:
		redisCfg, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return nil, err
		}
		sender, err := redisstream.NewSender(c.redis, redisstream.SenderConfig{
			Stream:     topic,
			MaxLen:     redisCfg.MaxLen,
			KeyCodec:   c.keyCodec,
			ValueCodec: c.valueCodec,
		})
		if err != nil {
			return nil, err
		}
		return sender, nil
	default:
		kafkaCfg, err := config.NewKafkaConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load kafka config: %w", err)
		}
		brokers, err := kafka.ParseBootstrapServers(kafkaCfg.BootstrapServers)
		if err != nil {
			return nil, err
		}
		sender, err := kafka.NewSender(kafka.SenderConfig{
			Brokers:    brokers,
			Topic:      topic,
			Config:     util.Merge(kafkaCfg.Properties, kafkaCfg.ProducerProperties),
			KeyCodec:   c.keyCodec,
			ValueCodec: c.valueCodec,
			Logger:     c.log,
		})
		if err != nil {
			return nil, err
		}
		return sender, nil
	}
}

// Receiver builds a receiver for topics, or for KAFKA_TOPICS when none are given.
func (c *Clients) Receiver(ctx context.Context, topics ...string) (broker.Receiver, error) {
	if len(topics) == 0 {
		topics = c.broker.Topics
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics: set KAFKA_TOPICS")
	}

	switch c.broker.Backend {
	case config.BackendMemory:
		return c.memory.Receiver(topics, memory.WithPartitionEOF()), nil
	case config.BackendRedis:
		redisCfg, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return nil, err
		}
		consumer := redisCfg.Consumer
		if consumer == "" {
			if consumer, err = os.Hostname(); err != nil {
				return nil, fmt.Errorf("failed to get hostname: %w", err)
			}
		}
		receiver, err := redisstream.NewReceiver(ctx, c.redis, redisstream.ReceiverConfig{
			Streams:    topics,
			Group:      redisCfg.Group,
			Consumer:   consumer,
			KeyCodec:   c.keyCodec,
			ValueCodec: c.valueCodec,
		})
		if err != nil {
			return nil, err
		}
		return receiver, nil
	default:
		kafkaCfg, err := config.NewKafkaConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load kafka config: %w", err)
		}
		brokers, err := kafka.ParseBootstrapServers(kafkaCfg.BootstrapServers)
		if err != nil {
			return nil, err
		}
		receiver, err := kafka.NewReceiver(kafka.ReceiverConfig{
			Brokers:    brokers,
			GroupID:    kafkaCfg.GroupID,
			Topics:     topics,
			Config:     util.Merge(kafkaCfg.Properties, kafkaCfg.ConsumerProperties),
			KeyCodec:   c.keyCodec,
			ValueCodec: c.valueCodec,
			Logger:     c.log,
		})
		if err != nil {
			return nil, err
		}
		return receiver, nil
	}
}

// Close releases shared connections.
func (c *Clients) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Clients) connectRedis(ctx context.Context) error {
	redisCfg, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.redis = rdb
	c.closers = append(c.closers, rdb.Close)
	return nil
}

func (c *Clients) loadCodecs(ctx context.Context) error {
	if !c.schema.Enabled() {
		return nil
	}
	client, err := registry.NewClient(c.schema.RegistryURL)
	if err != nil {
		return fmt.Errorf("failed to create schema registry client: %w", err)
	}

	var blobs serde.BlobGetter
	if strings.HasPrefix(c.schema.KeySchema, "s3://") || strings.HasPrefix(c.schema.ValueSchema, "s3://") {
		storage, err := datalayer.NewMinioStorageFromEnv()
		if err != nil {
			return fmt.Errorf("failed to create blob storage: %w", err)
		}
		blobs = storage
	}

	if c.keyCodec, err = codec(ctx, client, c.schema.KeySchema, blobs, serde.KeyField); err != nil {
		return err
	}
	if c.valueCodec, err = codec(ctx, client, c.schema.ValueSchema, blobs, serde.ValueField); err != nil {
		return err
	}
	c.log.InfoContext(ctx, "schemas loaded",
		"registry", c.schema.RegistryURL,
		"keySchema", c.schema.KeySchema,
		"valueSchema", c.schema.ValueSchema,
	)
	return nil
}

// codec returns an Avro codec for source, or nil when no schema is
// configured for the field so that it travels as raw bytes.
func codec(ctx context.Context, reg serde.Registry, source string, blobs serde.BlobGetter, field serde.Field) (serde.Codec, error) {
	if source == "" {
		return nil, nil
	}
	schema, err := serde.LoadSchema(ctx, source, blobs)
	if err != nil {
		return nil, err
	}
	c, err := serde.NewAvroCodec(reg, schema, field)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ serde.BlobGetter = (*datalayer.MinioStorage)(nil)
