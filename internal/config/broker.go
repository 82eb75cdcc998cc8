package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Backend names a broker implementation.
type Backend string

const (
	BackendKafka  Backend = "kafka"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// BrokerConfig selects the backend and the topics (Redis streams) used.
type BrokerConfig struct {
	Backend Backend `env:"BROKER_BACKEND, default=kafka"`
	// Topic is the producer's destination.
	Topic string `env:"KAFKA_TOPIC"`
	// Topics is the consumer's subscription, comma separated.
	Topics []string `env:"KAFKA_TOPICS"`
}

func NewBrokerConfigFromEnv() (*BrokerConfig, error) {
	var cfg BrokerConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendKafka, BackendRedis, BackendMemory:
		return &cfg, nil
	default:
		return nil, fmt.Errorf("BROKER_BACKEND must be one of kafka, redis or memory, got %q", cfg.Backend)
	}
}

// KafkaConfig holds the Kafka connection settings.
type KafkaConfig struct {
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS, required"`
	GroupID          string `env:"KAFKA_GROUP_ID, default=kafka-connector"`
	// Properties are client properties as key:value pairs, comma separated,
	// shared by producers and consumers. The direction specific maps are
	// merged over them.
	Properties         map[string]string `env:"KAFKA_PROPERTIES"`
	ProducerProperties map[string]string `env:"KAFKA_PRODUCER_PROPERTIES"`
	ConsumerProperties map[string]string `env:"KAFKA_CONSUMER_PROPERTIES"`
}

func NewKafkaConfigFromEnv() (*KafkaConfig, error) {
	var cfg KafkaConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SchemaConfig locates the Avro schemas and the registry they are
// published to. Schemas are file paths or s3://bucket/key locations.
type SchemaConfig struct {
	RegistryURL string `env:"SCHEMA_REGISTRY_URL"`
	KeySchema   string `env:"KAFKA_KEY_SCHEMA"`
	ValueSchema string `env:"KAFKA_VALUE_SCHEMA"`
}

func NewSchemaConfigFromEnv() (*SchemaConfig, error) {
	var cfg SchemaConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if (cfg.KeySchema != "" || cfg.ValueSchema != "") && cfg.RegistryURL == "" {
		return nil, fmt.Errorf("SCHEMA_REGISTRY_URL is required when a schema is configured")
	}
	return &cfg, nil
}

// Enabled reports whether any schema is configured.
func (c *SchemaConfig) Enabled() bool {
	return c.RegistryURL != ""
}

// ProducerLoopConfig schedules the producer loop.
type ProducerLoopConfig struct {
	Interval int    `env:"PRODUCER_INTERVAL, default=1"`
	Unit     string `env:"PRODUCER_UNIT, default=s"`
	// Begin accepts the forms understood by schedule.ParseBegin.
	Begin    string `env:"PRODUCER_BEGIN, default=immediately"`
	Location string `env:"PRODUCER_LOCATION"`
	// Archive stores every delivery report in Postgres.
	Archive bool `env:"PRODUCER_ARCHIVE"`
}

func NewProducerLoopConfigFromEnv() (*ProducerLoopConfig, error) {
	var cfg ProducerLoopConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConsumerLoopConfig configures the consumer loop.
type ConsumerLoopConfig struct {
	// PollTimeout of 0 waits for each message without a deadline.
	PollTimeout time.Duration `env:"CONSUMER_POLL_TIMEOUT, default=1s"`
	// Archive stores every consumed message in Postgres.
	Archive bool `env:"CONSUMER_ARCHIVE"`
}

func NewConsumerLoopConfigFromEnv() (*ConsumerLoopConfig, error) {
	var cfg ConsumerLoopConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.PollTimeout < 0 {
		return nil, fmt.Errorf("CONSUMER_POLL_TIMEOUT must not be negative, got %s", cfg.PollTimeout)
	}
	return &cfg, nil
}
