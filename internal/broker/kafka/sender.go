package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/serde"
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	Brokers []string
	Topic   string
	// Config overrides DefaultProducerConfig.
	Config ConfigMap
	// KeyCodec and ValueCodec encode record keys and values. Without a
	// codec only []byte and string are accepted.
	KeyCodec   serde.Codec
	ValueCodec serde.Codec
	// OnError defaults to LogError.
	OnError ErrorFunc
	Logger  *slog.Logger
}

// messageWriter is the part of *kafka.Writer the Sender uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender writes records to one Kafka topic asynchronously. Delivery
// reports are passed to each record's OnDelivery from the writer's
// completion goroutine.
type Sender struct {
	topic      string
	writer     messageWriter
	keyCodec   serde.Codec
	valueCodec serde.Codec
	maxQueued  int
	log        *slog.Logger

	mu      sync.Mutex
	queued  int
	drained chan struct{}
	closed  bool
}

// delivery travels with a message through the writer.
type delivery struct {
	partition  *int32
	onDelivery broker.DeliveryFunc
}

func NewSender(cfg SenderConfig) (*Sender, error) {
	if len(cfg.Brokers) == 0 {
		return nil, &ConfigurationError{Field: "bootstrap.servers", Reason: "no brokers given"}
	}
	if cfg.Topic == "" {
		return nil, &ConfigurationError{Field: "topic", Reason: "topic is empty"}
	}
	settings, err := parseProducerConfig(cfg.Config)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "kafka-sender", "topic", cfg.Topic)
	onError := cfg.OnError
	if onError == nil {
		onError = LogError(logger)
	}

	s := newSender(cfg.Topic, nil, cfg.KeyCodec, cfg.ValueCodec, settings.maxQueued, logger)
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     newPartitionBalancer(),
		BatchTimeout: settings.batchTimeout,
		MaxAttempts:  settings.maxAttempts,
		RequiredAcks: settings.requiredAcks,
		Compression:  settings.compression,
		Async:        true,
		Completion:   s.complete,
		ErrorLogger:  errorLogger(onError),
		Transport:    &kafka.Transport{ClientID: settings.clientID},
	}
	if settings.debug {
		w.Logger = debugLogger(logger)
	}
	s.writer = w
	return s, nil
}

func newSender(topic string, w messageWriter, keyCodec, valueCodec serde.Codec, maxQueued int, logger *slog.Logger) *Sender {
	drained := make(chan struct{})
	close(drained)
	return &Sender{
		topic:      topic,
		writer:     w,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		maxQueued:  maxQueued,
		log:        logger,
		drained:    drained,
	}
}

// Send encodes the record and hands it to the writer. It fails with
// broker.ErrBufferFull when queue.buffering.max.messages records are
// still awaiting delivery.
func (s *Sender) Send(ctx context.Context, record broker.Record) error {
	msg, err := s.encode(ctx, record)
	if err != nil {
		return err
	}
	if err := s.acquire(); err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.release(1)
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Flush waits until every queued record has a delivery report.
func (s *Sender) Flush(ctx context.Context) error {
	s.mu.Lock()
	drained := s.drained
	s.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending writes and releases the connection.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.writer.Close()
}

func (s *Sender) encode(ctx context.Context, record broker.Record) (kafka.Message, error) {
	key, err := s.bytes(ctx, serde.KeyField, s.keyCodec, record.Key)
	if err != nil {
		return kafka.Message{}, err
	}
	value, err := s.bytes(ctx, serde.ValueField, s.valueCodec, record.Value)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:        key,
		Value:      value,
		Time:       record.Timestamp,
		WriterData: &delivery{partition: record.Partition, onDelivery: record.OnDelivery},
	}, nil
}

func (s *Sender) bytes(ctx context.Context, field serde.Field, codec serde.Codec, v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if codec != nil {
		return codec.Encode(ctx, s.topic, v)
	}
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, &broker.SerializationError{Topic: s.topic, Field: string(field), Err: fmt.Errorf("no codec configured for %T", v)}
	}
}

func (s *Sender) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return broker.ErrClosed
	}
	if s.maxQueued > 0 && s.queued >= s.maxQueued {
		return broker.ErrBufferFull
	}
	if s.queued == 0 {
		s.drained = make(chan struct{})
	}
	s.queued++
	return nil
}

func (s *Sender) release(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = max(s.queued-n, 0)
	if s.queued == 0 {
		select {
		case <-s.drained:
		default:
			close(s.drained)
		}
	}
}

// complete is the writer's completion callback.
func (s *Sender) complete(messages []kafka.Message, err error) {
	defer s.release(len(messages))
	for _, m := range messages {
		d, _ := m.WriterData.(*delivery)
		if d == nil || d.onDelivery == nil {
			continue
		}
		d.onDelivery(broker.DeliveryReport{Message: toBrokerMessage(m, s.topic), Err: err})
	}
}

func toBrokerMessage(m kafka.Message, topic string) broker.Message {
	if m.Topic != "" {
		topic = m.Topic
	}
	out := broker.Message{
		Topic:     topic,
		Partition: int32(m.Partition),
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
	}
	if len(m.Headers) > 0 {
		out.Headers = make(map[string][]byte, len(m.Headers))
		for _, h := range m.Headers {
			out.Headers[h.Key] = h.Value
		}
	}
	return out
}

var (
	_ broker.Sender = (*Sender)(nil)
	_ messageWriter = (*kafka.Writer)(nil)
)
