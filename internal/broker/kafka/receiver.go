package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/serde"
)

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// Config overrides DefaultConsumerConfig.
	Config     ConfigMap
	KeyCodec   serde.Codec
	ValueCodec serde.Codec
	OnError    ErrorFunc
	Logger     *slog.Logger
}

// messageReader is the part of *kafka.Reader the Receiver uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Receiver reads from a consumer group subscribed to a list of topics.
// Offsets are committed by the group as messages are read.
type Receiver struct {
	reader     messageReader
	keyCodec   serde.Codec
	valueCodec serde.Codec
}

func NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if len(cfg.Brokers) == 0 {
		return nil, &ConfigurationError{Field: "bootstrap.servers", Reason: "no brokers given"}
	}
	if cfg.GroupID == "" {
		return nil, &ConfigurationError{Field: "group.id", Reason: "consumer group is empty"}
	}
	if len(cfg.Topics) == 0 {
		return nil, &ConfigurationError{Field: "topics", Reason: "no topics given"}
	}
	settings, err := parseConsumerConfig(cfg.Config)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "kafka-receiver", "group", cfg.GroupID)
	onError := cfg.OnError
	if onError == nil {
		onError = LogError(logger)
	}

	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    settings.minBytes,
		MaxBytes:    settings.maxBytes,
		MaxWait:     settings.maxWait,
		StartOffset: settings.startOffset,
		ErrorLogger: errorLogger(onError),
		Dialer:      &kafka.Dialer{ClientID: settings.clientID, Timeout: 10 * time.Second, DualStack: true},
	}
	if settings.debug {
		rc.Logger = debugLogger(logger)
	}
	return newReceiver(kafka.NewReader(rc), cfg.KeyCodec, cfg.ValueCodec), nil
}

func newReceiver(r messageReader, keyCodec, valueCodec serde.Codec) *Receiver {
	return &Receiver{reader: r, keyCodec: keyCodec, valueCodec: valueCodec}
}

// Poll waits up to timeout for the next message, or until ctx is done
// when timeout is zero. Keys and values are decoded with the configured
// codecs; without one they stay []byte. The group commits a message's
// offset when it is read, so a message that fails to decode is not
// redelivered; the returned error names its position.
func (r *Receiver) Poll(ctx context.Context, timeout time.Duration) (*broker.Message, error) {
	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m, err := r.reader.ReadMessage(pollCtx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, nil
	case errors.Is(err, io.EOF):
		return nil, broker.ErrClosed
	default:
		return nil, err
	}

	msg := toBrokerMessage(m, m.Topic)
	if msg.Key, err = decode(ctx, r.keyCodec, m.Topic, m.Key); err != nil {
		return nil, fmt.Errorf("skipped %s[%d]@%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	if msg.Value, err = decode(ctx, r.valueCodec, m.Topic, m.Value); err != nil {
		return nil, fmt.Errorf("skipped %s[%d]@%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	return &msg, nil
}

func (r *Receiver) Close() error {
	return r.reader.Close()
}

func decode(ctx context.Context, codec serde.Codec, topic string, data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	if codec == nil {
		return data, nil
	}
	return codec.Decode(ctx, topic, data)
}

var (
	_ broker.Receiver = (*Receiver)(nil)
	_ messageReader   = (*kafka.Reader)(nil)
)
