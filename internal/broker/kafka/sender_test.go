package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glizzus/kafka-connector/internal/broker"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// heldWriter keeps written messages until complete is called.
type heldWriter struct {
	mu       sync.Mutex
	held     []kafka.Message
	complete func([]kafka.Message, error)
	closed   bool
}

func (w *heldWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	w.held = append(w.held, msgs...)
	return nil
}

func (w *heldWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *heldWriter) deliver(err error) {
	w.mu.Lock()
	msgs := w.held
	w.held = nil
	w.mu.Unlock()
	for i := range msgs {
		msgs[i].Partition = 1
		msgs[i].Offset = int64(i)
	}
	w.complete(msgs, err)
}

func newTestSender(t *testing.T, maxQueued int, keyCodec, valueCodec stubCodec) (*Sender, *heldWriter) {
	t.Helper()
	w := &heldWriter{}
	var kc, vc = codecOrNil(keyCodec), codecOrNil(valueCodec)
	s := newSender("readings", w, kc, vc, maxQueued, quietLogger)
	w.complete = s.complete
	return s, w
}

func TestSenderDeliveryReports(t *testing.T) {
	s, w := newTestSender(t, 0, stubCodec{}, stubCodec{})

	var reports []broker.DeliveryReport
	onDelivery := func(r broker.DeliveryReport) { reports = append(reports, r) }
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Send(t.Context(), broker.Record{Key: "k", Value: []byte("v"), Timestamp: ts, OnDelivery: onDelivery}))
	require.NoError(t, s.Send(t.Context(), broker.Record{Value: "second", OnDelivery: onDelivery}))

	w.mu.Lock()
	require.Len(t, w.held, 2)
	assert.Equal(t, []byte("k"), w.held[0].Key)
	assert.Equal(t, ts, w.held[0].Time)
	assert.Nil(t, w.held[1].Key)
	w.mu.Unlock()

	w.deliver(nil)
	require.Len(t, reports, 2)
	assert.Equal(t, "readings", reports[0].Message.Topic)
	assert.Equal(t, int32(1), reports[1].Message.Partition)
	assert.Equal(t, int64(1), reports[1].Message.Offset)

	require.NoError(t, s.Send(t.Context(), broker.Record{Value: "third", OnDelivery: onDelivery}))
	w.deliver(errors.New("leader not available"))
	assert.EqualError(t, reports[2].Err, "leader not available")
}

func TestSenderFlushWaitsForCompletion(t *testing.T) {
	s, w := newTestSender(t, 0, stubCodec{}, stubCodec{})
	require.NoError(t, s.Flush(t.Context()), "flushing an idle sender returns at once")

	require.NoError(t, s.Send(t.Context(), broker.Record{Value: "v"}))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Flush(ctx), context.DeadlineExceeded)

	go w.deliver(nil)
	require.NoError(t, s.Flush(t.Context()))
}

func TestSenderBufferFull(t *testing.T) {
	s, w := newTestSender(t, 2, stubCodec{}, stubCodec{})
	require.NoError(t, s.Send(t.Context(), broker.Record{Value: "1"}))
	require.NoError(t, s.Send(t.Context(), broker.Record{Value: "2"}))
	assert.ErrorIs(t, s.Send(t.Context(), broker.Record{Value: "3"}), broker.ErrBufferFull)

	w.deliver(nil)
	assert.NoError(t, s.Send(t.Context(), broker.Record{Value: "4"}))
}

func TestSenderEncoding(t *testing.T) {
	t.Run("without codec", func(t *testing.T) {
		s, _ := newTestSender(t, 0, stubCodec{}, stubCodec{})
		err := s.Send(t.Context(), broker.Record{Value: map[string]any{"a": 1}})
		var serErr *broker.SerializationError
		require.ErrorAs(t, err, &serErr)
		assert.Equal(t, "value", serErr.Field)
	})

	t.Run("with codec", func(t *testing.T) {
		s, w := newTestSender(t, 0, stubCodec{prefix: "key:"}, stubCodec{prefix: "value:"})
		require.NoError(t, s.Send(t.Context(), broker.Record{Key: 7, Value: map[string]any{"a": 1}}))
		w.mu.Lock()
		defer w.mu.Unlock()
		assert.Equal(t, "key:7", string(w.held[0].Key))
		assert.Equal(t, "value:map[a:1]", string(w.held[0].Value))
	})

	t.Run("transient codec failure is returned unchanged", func(t *testing.T) {
		transient := &broker.TransientConnectivityError{Op: "register schema", Err: errors.New("refused")}
		s, w := newTestSender(t, 0, stubCodec{}, stubCodec{err: transient})
		err := s.Send(t.Context(), broker.Record{Value: "v"})
		assert.True(t, broker.IsTransient(err))
		w.mu.Lock()
		defer w.mu.Unlock()
		assert.Empty(t, w.held, "nothing is written when encoding fails")
	})
}

func TestSenderClose(t *testing.T) {
	s, w := newTestSender(t, 0, stubCodec{}, stubCodec{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, s.Send(t.Context(), broker.Record{Value: "v"}), broker.ErrClosed)
}

func TestNewSenderValidation(t *testing.T) {
	_, err := NewSender(SenderConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewSender(SenderConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
	_, err = NewSender(SenderConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Config: ConfigMap{"bogus": "1"}})
	assert.Error(t, err)

	s, err := NewSender(SenderConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Logger: quietLogger})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
