package bootstrap_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glizzus/kafka-connector/internal/bootstrap"
	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/config"
	"github.com/glizzus/kafka-connector/internal/schedule"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryBackendRoundTrip(t *testing.T) {
	t.Setenv("BROKER_BACKEND", "memory")
	t.Setenv("KAFKA_TOPIC", "readings")
	t.Setenv("KAFKA_TOPICS", "readings")
	t.Setenv("SCHEMA_REGISTRY_URL", "")
	t.Setenv("KAFKA_KEY_SCHEMA", "")
	t.Setenv("KAFKA_VALUE_SCHEMA", "")

	clients, err := bootstrap.New(t.Context(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = clients.Close() })

	assert.Equal(t, config.BackendMemory, clients.Backend())
	assert.Equal(t, "readings", clients.Topic())
	assert.Equal(t, []string{"readings"}, clients.Topics())
	assert.False(t, clients.EncodesValues())

	sender, err := clients.Sender("")
	require.NoError(t, err)
	receiver, err := clients.Receiver(t.Context())
	require.NoError(t, err)

	var report broker.DeliveryReport
	require.NoError(t, sender.Send(t.Context(), broker.Record{
		Key:        "k",
		Value:      "v",
		OnDelivery: func(r broker.DeliveryReport) { report = r },
	}))
	require.NoError(t, sender.Flush(t.Context()))
	require.NoError(t, report.Err)

	msg, err := receiver.Poll(t.Context(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "readings", msg.Topic)
	assert.Equal(t, "v", msg.Value)
	require.NoError(t, receiver.Close())
}

func TestMissingTopics(t *testing.T) {
	t.Setenv("BROKER_BACKEND", "memory")
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("KAFKA_TOPICS", "")
	t.Setenv("SCHEMA_REGISTRY_URL", "")
	t.Setenv("KAFKA_KEY_SCHEMA", "")
	t.Setenv("KAFKA_VALUE_SCHEMA", "")

	clients, err := bootstrap.New(t.Context(), quietLogger())
	require.NoError(t, err)

	_, err = clients.Sender("")
	assert.Error(t, err)
	_, err = clients.Receiver(t.Context())
	assert.Error(t, err)

	sender, err := clients.Sender("explicit")
	require.NoError(t, err)
	assert.NoError(t, sender.Close())
}

func TestUnknownBackend(t *testing.T) {
	t.Setenv("BROKER_BACKEND", "carrier-pigeon")
	_, err := bootstrap.New(t.Context(), quietLogger())
	assert.Error(t, err)
}

func TestKafkaSenderRejectsUnknownProperties(t *testing.T) {
	t.Setenv("BROKER_BACKEND", "kafka")
	t.Setenv("KAFKA_TOPIC", "readings")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")
	t.Setenv("KAFKA_PROPERTIES", "client.id:bootstrap-test")
	t.Setenv("KAFKA_PRODUCER_PROPERTIES", "fetch.min.bytes:1")
	t.Setenv("SCHEMA_REGISTRY_URL", "")
	t.Setenv("KAFKA_KEY_SCHEMA", "")
	t.Setenv("KAFKA_VALUE_SCHEMA", "")

	clients, err := bootstrap.New(t.Context(), quietLogger())
	require.NoError(t, err)

	_, err = clients.Sender("")
	var cfgErr *schedule.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestValueSchemaFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.avsc")
	schema := `{"type":"record","name":"Heartbeat","fields":[{"name":"source","type":"string"},{"name":"seq","type":"long"},{"name":"sentAt","type":"long"}]}`
	require.NoError(t, os.WriteFile(path, []byte(schema), 0o600))

	t.Setenv("BROKER_BACKEND", "memory")
	t.Setenv("SCHEMA_REGISTRY_URL", "http://127.0.0.1:8081")
	t.Setenv("KAFKA_KEY_SCHEMA", "")
	t.Setenv("KAFKA_VALUE_SCHEMA", path)

	clients, err := bootstrap.New(t.Context(), quietLogger())
	require.NoError(t, err)
	assert.True(t, clients.EncodesValues())
	assert.NoError(t, clients.Close())

	t.Setenv("KAFKA_VALUE_SCHEMA", filepath.Join(t.TempDir(), "missing.avsc"))
	_, err = bootstrap.New(t.Context(), quietLogger())
	var cfgErr *schedule.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
