// Package redisstream implements broker.Sender and broker.Receiver on top
// of Redis Streams and consumer groups.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/schedule"
	"github.com/glizzus/kafka-connector/internal/serde"
)

// Stream entry fields.
const (
	fieldKey       = "key"
	fieldValue     = "value"
	fieldTimestamp = "timestamp"
	fieldPartition = "partition"
)

// HeaderID carries the stream entry ID in Message.Headers.
const HeaderID = "redis-stream-id"

// ConfigurationError reports invalid adapter settings.
type ConfigurationError = schedule.ConfigurationError

// Sender appends records to a stream with XADD. Writes are synchronous, so
// delivery reports are sent before Send returns.
type Sender struct {
	client     redis.Cmdable
	stream     string
	maxLen     int64
	keyCodec   serde.Codec
	valueCodec serde.Codec
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	Stream string
	// MaxLen trims the stream to roughly this many entries. Zero keeps everything.
	MaxLen     int64
	KeyCodec   serde.Codec
	ValueCodec serde.Codec
}

func NewSender(client redis.Cmdable, cfg SenderConfig) (*Sender, error) {
	if client == nil {
		return nil, &ConfigurationError{Field: "client", Reason: "redis client is nil"}
	}
	if cfg.Stream == "" {
		return nil, &ConfigurationError{Field: "stream", Reason: "stream name is empty"}
	}
	return &Sender{
		client:     client,
		stream:     cfg.Stream,
		maxLen:     cfg.MaxLen,
		keyCodec:   cfg.KeyCodec,
		valueCodec: cfg.ValueCodec,
	}, nil
}

func (s *Sender) Send(ctx context.Context, record broker.Record) error {
	values, err := s.values(ctx, record)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{Stream: s.stream, Values: values}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		if broker.IsConnectivity(err) {
			err = &broker.TransientConnectivityError{Op: "xadd " + s.stream, Err: err}
		}
		if record.OnDelivery != nil {
			record.OnDelivery(broker.DeliveryReport{Message: broker.Message{Topic: s.stream}, Err: err})
		}
		return fmt.Errorf("failed to add to stream %s: %w", s.stream, err)
	}

	if record.OnDelivery != nil {
		msg := broker.Message{
			Topic:     s.stream,
			Key:       record.Key,
			Value:     record.Value,
			Timestamp: record.Timestamp,
			Headers:   map[string][]byte{HeaderID: []byte(id)},
		}
		if record.Partition != nil {
			msg.Partition = *record.Partition
		}
		msg.Offset, _ = idMillis(id)
		record.OnDelivery(broker.DeliveryReport{Message: msg})
	}
	return nil
}

// Flush returns at once: every Send has already been written.
func (s *Sender) Flush(ctx context.Context) error {
	return ctx.Err()
}

// Close does not close the shared client.
func (s *Sender) Close() error {
	return nil
}

func (s *Sender) values(ctx context.Context, record broker.Record) (map[string]any, error) {
	values := make(map[string]any, 4)
	if record.Key != nil {
		b, err := encode(ctx, s.keyCodec, s.stream, serde.KeyField, record.Key)
		if err != nil {
			return nil, err
		}
		values[fieldKey] = b
	}
	if record.Value != nil {
		b, err := encode(ctx, s.valueCodec, s.stream, serde.ValueField, record.Value)
		if err != nil {
			return nil, err
		}
		values[fieldValue] = b
	}
	if !record.Timestamp.IsZero() {
		values[fieldTimestamp] = record.Timestamp.UnixMilli()
	}
	if record.Partition != nil {
		values[fieldPartition] = *record.Partition
	}
	if len(values) == 0 {
		// XADD needs at least one field.
		values[fieldValue] = ""
	}
	return values, nil
}

func encode(ctx context.Context, codec serde.Codec, stream string, field serde.Field, v any) ([]byte, error) {
	if codec != nil {
		return codec.Encode(ctx, stream, v)
	}
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, &broker.SerializationError{Topic: stream, Field: string(field), Err: fmt.Errorf("no codec configured for %T", v)}
	}
}

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	Streams  []string
	Group    string
	Consumer string
	// StartID is where a newly created group starts reading: "$" for new
	// entries only (the default) or "0" for the whole stream.
	StartID    string
	KeyCodec   serde.Codec
	ValueCodec serde.Codec
}

// Receiver reads streams as one member of a consumer group. Entries are
// acknowledged as soon as they are returned by Poll. It is not safe for
// concurrent use.
type Receiver struct {
	client     redis.Cmdable
	streams    []string
	group      string
	consumer   string
	keyCodec   serde.Codec
	valueCodec serde.Codec

	buffered []streamEntry
}

type streamEntry struct {
	stream string
	entry  redis.XMessage
}

// NewReceiver creates the consumer group on every stream if needed.
func NewReceiver(ctx context.Context, client redis.Cmdable, cfg ReceiverConfig) (*Receiver, error) {
	if client == nil {
		return nil, &ConfigurationError{Field: "client", Reason: "redis client is nil"}
	}
	if len(cfg.Streams) == 0 {
		return nil, &ConfigurationError{Field: "streams", Reason: "no streams given"}
	}
	if cfg.Group == "" || cfg.Consumer == "" {
		return nil, &ConfigurationError{Field: "group", Reason: "consumer group and consumer name are required"}
	}
	start := cfg.StartID
	if start == "" {
		start = "$"
	}

	for _, stream := range cfg.Streams {
		err := client.XGroupCreateMkStream(ctx, stream, cfg.Group, start).Err()
		if err != nil && !errors.Is(err, redis.Nil) && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("failed to create consumer group %s on %s: %w", cfg.Group, stream, err)
		}
	}

	return &Receiver{
		client:     client,
		streams:    cfg.Streams,
		group:      cfg.Group,
		consumer:   cfg.Consumer,
		keyCodec:   cfg.KeyCodec,
		valueCodec: cfg.ValueCodec,
	}, nil
}

func (r *Receiver) Poll(ctx context.Context, timeout time.Duration) (*broker.Message, error) {
	if len(r.buffered) == 0 {
		if err := r.read(ctx, timeout); err != nil {
			return nil, err
		}
		if len(r.buffered) == 0 {
			return nil, nil
		}
	}

	next := r.buffered[0]
	r.buffered = r.buffered[1:]
	if err := r.client.XAck(ctx, next.stream, r.group, next.entry.ID).Err(); err != nil {
		return nil, fmt.Errorf("failed to ack %s on %s: %w", next.entry.ID, next.stream, err)
	}
	return r.toMessage(ctx, next.stream, next.entry)
}

// read fetches at most one new entry per stream into the buffer.
func (r *Receiver) read(ctx context.Context, timeout time.Duration) error {
	// BLOCK 0 waits for an entry; a negative Block would not block at all.
	timeout = max(timeout, 0)
	args := &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  make([]string, 0, 2*len(r.streams)),
		Count:    1,
		Block:    timeout,
	}
	args.Streams = append(args.Streams, r.streams...)
	for range r.streams {
		args.Streams = append(args.Streams, ">")
	}

	res, err := r.client.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return broker.ErrClosed
		}
		return err
	}
	for _, stream := range res {
		for _, entry := range stream.Messages {
			r.buffered = append(r.buffered, streamEntry{stream: stream.Stream, entry: entry})
		}
	}
	return nil
}

// Close does not close the shared client.
func (r *Receiver) Close() error {
	return nil
}

func (r *Receiver) toMessage(ctx context.Context, stream string, entry redis.XMessage) (*broker.Message, error) {
	msg := &broker.Message{
		Topic:   stream,
		Headers: map[string][]byte{HeaderID: []byte(entry.ID)},
	}
	msg.Offset, _ = idMillis(entry.ID)

	var err error
	if raw, ok := entry.Values[fieldKey]; ok {
		if msg.Key, err = decode(ctx, r.keyCodec, stream, raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := entry.Values[fieldValue]; ok {
		if msg.Value, err = decode(ctx, r.valueCodec, stream, raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := entry.Values[fieldTimestamp].(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			msg.Timestamp = time.UnixMilli(ms)
		}
	}
	if raw, ok := entry.Values[fieldPartition].(string); ok {
		if p, err := strconv.ParseInt(raw, 10, 32); err == nil {
			msg.Partition = int32(p)
		}
	}
	return msg, nil
}

func decode(ctx context.Context, codec serde.Codec, stream string, raw any) (any, error) {
	s, _ := raw.(string)
	if codec == nil {
		return []byte(s), nil
	}
	return codec.Decode(ctx, stream, []byte(s))
}

// idMillis returns the millisecond part of a stream entry ID.
func idMillis(id string) (int64, error) {
	ms, _, _ := strings.Cut(id, "-")
	return strconv.ParseInt(ms, 10, 64)
}

var (
	_ broker.Sender   = (*Sender)(nil)
	_ broker.Receiver = (*Receiver)(nil)
)
