package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/serde"
)

// stubCodec prefixes encoded values and strips the prefix on decode.
type stubCodec struct {
	prefix string
	err    error
}

func (c stubCodec) Encode(_ context.Context, _ string, v any) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []byte(c.prefix + fmt.Sprint(v)), nil
}

func (c stubCodec) Decode(_ context.Context, _ string, data []byte) (any, error) {
	if c.err != nil {
		return nil, c.err
	}
	return string(data[len(c.prefix):]), nil
}

// codecOrNil treats the zero stubCodec as "no codec".
func codecOrNil(c stubCodec) serde.Codec {
	if c == (stubCodec{}) {
		return nil
	}
	return c
}

type fakeReader struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	if len(r.messages) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestReceiverPoll(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{
		Topic:     "readings",
		Partition: 2,
		Offset:    41,
		Key:       []byte("key:kitchen"),
		Value:     []byte("value:21.5"),
		Headers:   []kafka.Header{{Key: "source", Value: []byte("sensor")}},
		Time:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}}
	r := newReceiver(reader, stubCodec{prefix: "key:"}, stubCodec{prefix: "value:"})

	msg, err := r.Poll(t.Context(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "kitchen", msg.Key)
	assert.Equal(t, "21.5", msg.Value)
	assert.Equal(t, int32(2), msg.Partition)
	assert.Equal(t, int64(41), msg.Offset)
	assert.Equal(t, []byte("sensor"), msg.Headers["source"])

	msg, err = r.Poll(t.Context(), 10*time.Millisecond)
	assert.NoError(t, err, "a timeout is not an error")
	assert.Nil(t, msg)

	require.NoError(t, r.Close())
	assert.True(t, reader.closed)
}

func TestReceiverPollWithoutCodecs(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Topic: "raw", Value: []byte("payload")}}}
	r := newReceiver(reader, nil, nil)

	msg, err := r.Poll(t.Context(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, msg.Key)
	assert.Equal(t, []byte("payload"), msg.Value)
}

func TestReceiverPollErrors(t *testing.T) {
	r := newReceiver(&fakeReader{err: io.EOF}, nil, nil)
	_, err := r.Poll(t.Context(), time.Second)
	assert.ErrorIs(t, err, broker.ErrClosed)

	boom := errors.New("group coordinator not available")
	r = newReceiver(&fakeReader{err: boom}, nil, nil)
	_, err = r.Poll(t.Context(), time.Second)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	r = newReceiver(&fakeReader{}, nil, nil)
	_, err = r.Poll(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	serErr := &broker.SerializationError{Topic: "t", Field: "value", Err: errors.New("bad")}
	r = newReceiver(&fakeReader{messages: []kafka.Message{{Topic: "t", Partition: 3, Offset: 17, Value: []byte("x")}}}, nil, stubCodec{err: serErr})
	_, err = r.Poll(t.Context(), time.Second)
	assert.ErrorAs(t, err, &serErr)
	assert.ErrorContains(t, err, "t[3]@17")
}

func TestReceiverPollZeroTimeout(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Topic: "raw", Value: []byte("payload")}}}
	r := newReceiver(reader, nil, nil)

	msg, err := r.Poll(t.Context(), 0)
	require.NoError(t, err)
	require.NotNil(t, msg)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	msg, err = r.Poll(ctx, 0)
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "without a poll timeout only ctx ends the wait")
}

func TestErrorLoggerFormatsMessages(t *testing.T) {
	var got error
	logger := errorLogger(func(err error) { got = err })
	logger.Printf("failed to dial %s after %d attempts", "kafka-1:9092", 3)
	require.Error(t, got)
	assert.Equal(t, "failed to dial kafka-1:9092 after 3 attempts", got.Error())
}

func TestNewReceiverValidation(t *testing.T) {
	brokers := []string{"localhost:9092"}
	_, err := NewReceiver(ReceiverConfig{GroupID: "g", Topics: []string{"t"}})
	assert.Error(t, err)
	_, err = NewReceiver(ReceiverConfig{Brokers: brokers, Topics: []string{"t"}})
	assert.Error(t, err)
	_, err = NewReceiver(ReceiverConfig{Brokers: brokers, GroupID: "g"})
	assert.Error(t, err)
}
