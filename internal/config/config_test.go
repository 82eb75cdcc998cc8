package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/kafka-connector/internal/config"
)

func TestNewKafkaConfigFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("KAFKA_PROPERTIES", "queue.buffering.max.ms:50,client.id:feed")

	cfg, err := config.NewKafkaConfigFromEnv()
	if err != nil {
		t.Fatalf("NewKafkaConfigFromEnv returned error: %v", err)
	}
	if cfg.GroupID != "kafka-connector" {
		t.Errorf("expected default group id, got %q", cfg.GroupID)
	}
	want := map[string]string{"queue.buffering.max.ms": "50", "client.id": "feed"}
	if diff := cmp.Diff(want, cfg.Properties); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
	if cfg.ConsumerProperties != nil {
		t.Errorf("expected no consumer properties, got %v", cfg.ConsumerProperties)
	}
}

func TestKafkaDirectionalProperties(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "kafka-1:9092")
	t.Setenv("KAFKA_PRODUCER_PROPERTIES", "acks:1")
	t.Setenv("KAFKA_CONSUMER_PROPERTIES", "auto.offset.reset:latest,fetch.min.bytes:1024")

	cfg, err := config.NewKafkaConfigFromEnv()
	if err != nil {
		t.Fatalf("NewKafkaConfigFromEnv returned error: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"acks": "1"}, cfg.ProducerProperties); diff != "" {
		t.Errorf("producer properties mismatch (-want +got):\n%s", diff)
	}
	want := map[string]string{"auto.offset.reset": "latest", "fetch.min.bytes": "1024"}
	if diff := cmp.Diff(want, cfg.ConsumerProperties); diff != "" {
		t.Errorf("consumer properties mismatch (-want +got):\n%s", diff)
	}
}

func TestNewSchemaConfigFromEnv(t *testing.T) {
	t.Setenv("KAFKA_VALUE_SCHEMA", "schemas/reading.avsc")
	t.Setenv("SCHEMA_REGISTRY_URL", "")
	if _, err := config.NewSchemaConfigFromEnv(); err == nil {
		t.Errorf("expected an error without SCHEMA_REGISTRY_URL")
	}

	t.Setenv("SCHEMA_REGISTRY_URL", "http://registry:8081")
	cfg, err := config.NewSchemaConfigFromEnv()
	if err != nil {
		t.Fatalf("NewSchemaConfigFromEnv returned error: %v", err)
	}
	if !cfg.Enabled() {
		t.Errorf("expected schemas to be enabled")
	}
}

func TestNewBrokerConfigFromEnv(t *testing.T) {
	t.Setenv("BROKER_BACKEND", "redis")
	t.Setenv("KAFKA_TOPICS", "readings,alerts")
	cfg, err := config.NewBrokerConfigFromEnv()
	if err != nil || cfg.Backend != config.BackendRedis {
		t.Fatalf("got %v, %v; want redis", cfg, err)
	}
	if diff := cmp.Diff([]string{"readings", "alerts"}, cfg.Topics); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}

	t.Setenv("BROKER_BACKEND", "carrier-pigeon")
	if _, err := config.NewBrokerConfigFromEnv(); err == nil {
		t.Errorf("expected an error for an unknown backend")
	}
}

func TestLoopConfigDefaults(t *testing.T) {
	p, err := config.NewProducerLoopConfigFromEnv()
	if err != nil {
		t.Fatalf("NewProducerLoopConfigFromEnv returned error: %v", err)
	}
	if p.Interval != 1 || p.Unit != "s" || p.Begin != "immediately" {
		t.Errorf("unexpected defaults %+v", p)
	}

	t.Setenv("CONSUMER_POLL_TIMEOUT", "250ms")
	c, err := config.NewConsumerLoopConfigFromEnv()
	if err != nil {
		t.Fatalf("NewConsumerLoopConfigFromEnv returned error: %v", err)
	}
	if c.PollTimeout != 250*time.Millisecond {
		t.Errorf("PollTimeout = %s", c.PollTimeout)
	}

	t.Setenv("CONSUMER_POLL_TIMEOUT", "0s")
	if c, err = config.NewConsumerLoopConfigFromEnv(); err != nil || c.PollTimeout != 0 {
		t.Errorf("zero poll timeout: got %v, %v", c, err)
	}
	t.Setenv("CONSUMER_POLL_TIMEOUT", "-1s")
	if _, err := config.NewConsumerLoopConfigFromEnv(); err == nil {
		t.Errorf("expected an error for a negative poll timeout")
	}
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("KAFKA_TOPIC=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KAFKA_TOPIC", "")
	os.Unsetenv("KAFKA_TOPIC")

	if err := config.LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv returned error: %v", err)
	}
	if got := os.Getenv("KAFKA_TOPIC"); got != "from-file" {
		t.Errorf("KAFKA_TOPIC = %q", got)
	}

	err := config.LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
	if !os.IsNotExist(err) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}
