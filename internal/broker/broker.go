package broker

import (
	"context"
	"time"
)

// Sender publishes records to a topic chosen when the Sender was built.
type Sender interface {
	// Send queues a record for delivery. Delivery outcomes are reported
	// through Record.OnDelivery, possibly on another goroutine.
	Send(ctx context.Context, record Record) error
	// Flush waits until queued records are delivered or ctx is done.
	Flush(ctx context.Context) error
	Close() error
}

// Receiver polls messages from the topics it is subscribed to.
type Receiver interface {
	// Poll waits at most timeout for a message. It returns (nil, nil) when
	// the timeout expires with nothing to deliver, and (nil, err) when the
	// client reports an error. A timeout of zero waits until a message
	// arrives or ctx is done.
	Poll(ctx context.Context, timeout time.Duration) (*Message, error)
	Close() error
}

// DeliveryFunc receives the outcome of a single send.
type DeliveryFunc func(report DeliveryReport)

// Record is an outbound message. Zero fields are left for the client to
// fill in: no key, no value, client-chosen partition, current time.
type Record struct {
	Key        any
	Value      any
	Partition  *int32
	Timestamp  time.Time
	OnDelivery DeliveryFunc
}

// IsEmpty reports whether no field of the record is set.
func (r Record) IsEmpty() bool {
	return r.Key == nil && r.Value == nil && r.Partition == nil && r.Timestamp.IsZero() && r.OnDelivery == nil
}

// Message is an inbound, decoded message.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       any
	Value     any
	Timestamp time.Time
	Headers   map[string][]byte
}

// DeliveryReport is the outcome of sending one record.
type DeliveryReport struct {
	Message Message
	Err     error
}

// Partition is a convenience for building Record.Partition.
func Partition(p int32) *int32 {
	return &p
}
