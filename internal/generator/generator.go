package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/glizzus/kafka-connector/internal/broker"
)

// Generator is an interface that defines a method to generate a new value of type T.
// This can be used to generate unique identifiers, lazily iterate, etc.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator produces random UUIDv4 strings.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// UUIDV7Generator produces time-ordered UUIDv7 strings, so keys sort in
// the order records were produced.
type UUIDV7Generator struct{}

func (g *UUIDV7Generator) Next() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Counter yields 1, 2, 3, ...
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Next() (int64, error) {
	return c.n.Add(1), nil
}

var (
	_ Generator[string] = &UUIDV4Generator{}
	_ Generator[string] = &UUIDV7Generator{}
	_ Generator[int64]  = &Counter{}
)

// Records returns a data function for a producer loop. Each call yields a
// record keyed by keys, with the value built by value from a running
// sequence number and the current time.
func Records(keys Generator[string], value func(seq int64, now time.Time) any) func(ctx context.Context) (any, error) {
	var seq Counter
	return func(context.Context) (any, error) {
		key, err := keys.Next()
		if err != nil {
			return nil, err
		}
		n, _ := seq.Next()
		now := time.Now()
		return broker.Record{Key: key, Value: value(n, now), Timestamp: now}, nil
	}
}

// Heartbeat is a value function producing a small JSON document.
func Heartbeat(source string) func(seq int64, now time.Time) any {
	return func(seq int64, now time.Time) any {
		return map[string]any{
			"source": source,
			"seq":    seq,
			"sentAt": now.UnixMilli(),
		}
	}
}

// JSON marshals the values built by value, for senders without a codec.
// A value that cannot be marshalled is sent as its %v representation.
func JSON(value func(seq int64, now time.Time) any) func(seq int64, now time.Time) any {
	return func(seq int64, now time.Time) any {
		v := value(seq, now)
		b, err := json.Marshal(v)
		if err != nil {
			return []byte(fmt.Sprintf("%v", v))
		}
		return b
	}
}
