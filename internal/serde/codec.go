package serde

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/registry"

	"github.com/glizzus/kafka-connector/internal/broker"
)

const (
	magicByte  = 0
	headerSize = 5
)

// ErrMalformedPayload is returned when decoding bytes that do not carry
// the wire format header.
var ErrMalformedPayload = errors.New("payload is not in schema registry wire format")

// Codec turns record keys and values into bytes and back.
type Codec interface {
	Encode(ctx context.Context, topic string, v any) ([]byte, error)
	Decode(ctx context.Context, topic string, data []byte) (any, error)
}

// Registry is the part of a schema registry client the codec uses.
// *registry.Client satisfies it.
type Registry interface {
	CreateSchema(ctx context.Context, subject, schema string, references ...registry.SchemaReference) (int, avro.Schema, error)
	GetSchema(ctx context.Context, id int) (avro.Schema, error)
}

var _ Registry = (*registry.Client)(nil)

// Field selects whether a codec handles record keys or values. It picks
// the registry subject, <topic>-key or <topic>-value.
type Field string

const (
	KeyField   Field = "key"
	ValueField Field = "value"
)

// AvroCodec encodes with one writer schema and decodes with whatever
// schema the payload's ID resolves to.
type AvroCodec struct {
	registry Registry
	schema   avro.Schema
	field    Field

	mu       sync.Mutex
	subjects map[string]int
	schemas  map[int]avro.Schema
}

func NewAvroCodec(reg Registry, schema avro.Schema, field Field) (*AvroCodec, error) {
	if reg == nil {
		return nil, &ConfigurationError{Field: "registry", Reason: "schema registry client is nil"}
	}
	if field != KeyField && field != ValueField {
		return nil, &ConfigurationError{Field: "field", Reason: fmt.Sprintf("must be %q or %q, got %q", KeyField, ValueField, field)}
	}
	return &AvroCodec{
		registry: reg,
		schema:   schema,
		field:    field,
		subjects: make(map[string]int),
		schemas:  make(map[int]avro.Schema),
	}, nil
}

// Encode registers the writer schema under the topic's subject, once per
// topic, and serializes v. A registry that cannot be reached is reported
// as a *broker.TransientConnectivityError.
func (c *AvroCodec) Encode(ctx context.Context, topic string, v any) ([]byte, error) {
	if c.schema == nil {
		return nil, &broker.SerializationError{Topic: topic, Field: string(c.field), Err: errors.New("no schema configured")}
	}
	id, err := c.schemaID(ctx, topic)
	if err != nil {
		if broker.IsConnectivity(err) {
			return nil, &broker.TransientConnectivityError{Op: "register schema", Err: err}
		}
		return nil, &broker.SerializationError{Topic: topic, Field: string(c.field), Err: err}
	}

	payload, err := avro.Marshal(c.schema, v)
	if err != nil {
		return nil, &broker.SerializationError{Topic: topic, Field: string(c.field), Err: err}
	}
	return frame(id, payload), nil
}

// Decode reads the schema ID from data and deserializes the payload into
// generic Go values (maps for records).
func (c *AvroCodec) Decode(ctx context.Context, topic string, data []byte) (any, error) {
	id, payload, err := unframe(data)
	if err != nil {
		return nil, &broker.SerializationError{Topic: topic, Field: string(c.field), Err: err}
	}

	schema, err := c.schemaByID(ctx, id)
	if err != nil {
		if broker.IsConnectivity(err) {
			return nil, &broker.TransientConnectivityError{Op: "fetch schema", Err: err}
		}
		return nil, &broker.SerializationError{Topic: topic, Field: string(c.field), Err: err}
	}

	var out any
	if err := avro.Unmarshal(schema, payload, &out); err != nil {
		return nil, &broker.SerializationError{Topic: topic, Field: string(c.field), Err: err}
	}
	return out, nil
}

func (c *AvroCodec) subject(topic string) string {
	return topic + "-" + string(c.field)
}

func (c *AvroCodec) schemaID(ctx context.Context, topic string) (int, error) {
	subject := c.subject(topic)
	c.mu.Lock()
	id, ok := c.subjects[subject]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	id, _, err := c.registry.CreateSchema(ctx, subject, c.schema.String())
	if err != nil {
		return 0, fmt.Errorf("failed to register schema for subject %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subjects[subject] = id
	c.schemas[id] = c.schema
	c.mu.Unlock()
	return id, nil
}

func (c *AvroCodec) schemaByID(ctx context.Context, id int) (avro.Schema, error) {
	c.mu.Lock()
	schema, ok := c.schemas[id]
	c.mu.Unlock()
	if ok {
		return schema, nil
	}

	schema, err := c.registry.GetSchema(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema %d: %w", id, err)
	}

	c.mu.Lock()
	c.schemas[id] = schema
	c.mu.Unlock()
	return schema, nil
}

func frame(id int, payload []byte) []byte {
	out := make([]byte, headerSize, headerSize+len(payload))
	out[0] = magicByte
	binary.BigEndian.PutUint32(out[1:headerSize], uint32(id))
	return append(out, payload...)
}

func unframe(data []byte) (int, []byte, error) {
	if len(data) < headerSize || data[0] != magicByte {
		return 0, nil, ErrMalformedPayload
	}
	return int(binary.BigEndian.Uint32(data[1:headerSize])), data[headerSize:], nil
}

var _ Codec = (*AvroCodec)(nil)
