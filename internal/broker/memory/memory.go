// Package memory is an in-process broker for tests and local runs. Topics
// are append-only logs with a single partition unless a record names one.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/glizzus/kafka-connector/internal/broker"
)

// Broker holds every topic log. All methods are safe for concurrent use.
type Broker struct {
	mu     sync.Mutex
	topics map[string][]broker.Message
	// notify is closed and replaced whenever a message is appended.
	notify chan struct{}
	now    func() time.Time
}

func New() *Broker {
	return &Broker{
		topics: make(map[string][]broker.Message),
		notify: make(chan struct{}),
		now:    time.Now,
	}
}

// Messages returns a copy of the topic log.
func (b *Broker) Messages(topic string) []broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.topics[topic])
}

func (b *Broker) append(topic string, r broker.Record) broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := broker.Message{
		Topic:     topic,
		Offset:    int64(len(b.topics[topic])),
		Key:       r.Key,
		Value:     r.Value,
		Timestamp: r.Timestamp,
	}
	if r.Partition != nil {
		msg.Partition = *r.Partition
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}
	b.topics[topic] = append(b.topics[topic], msg)

	close(b.notify)
	b.notify = make(chan struct{})
	return msg
}

// next returns the message at offset, or a channel that is closed once
// the topic grows.
func (b *Broker) next(topic string, offset int64) (*broker.Message, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	log := b.topics[topic]
	if offset < int64(len(log)) {
		msg := log[offset]
		return &msg, nil
	}
	return nil, b.notify
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithQueue makes the Sender hold delivery reports until Flush, accepting
// at most n undelivered records before failing with broker.ErrBufferFull.
func WithQueue(n int) SenderOption {
	return func(s *Sender) {
		s.capacity = max(n, 0)
	}
}

// Sender appends records to one topic.
type Sender struct {
	broker   *Broker
	topic    string
	capacity int

	mu      sync.Mutex
	pending []pendingReport
	closed  bool
}

type pendingReport struct {
	fn     broker.DeliveryFunc
	report broker.DeliveryReport
}

func (b *Broker) Sender(topic string, opts ...SenderOption) *Sender {
	s := &Sender{broker: b, topic: topic}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) Send(ctx context.Context, record broker.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return broker.ErrClosed
	}
	if s.capacity > 0 && len(s.pending) >= s.capacity {
		s.mu.Unlock()
		return broker.ErrBufferFull
	}
	msg := s.broker.append(s.topic, record)
	report := broker.DeliveryReport{Message: msg}
	if s.capacity > 0 {
		s.pending = append(s.pending, pendingReport{fn: record.OnDelivery, report: report})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if record.OnDelivery != nil {
		record.OnDelivery(report)
	}
	return nil
}

// Flush delivers queued reports.
func (s *Sender) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for i, p := range pending {
		if err := ctx.Err(); err != nil {
			s.mu.Lock()
			s.pending = append(pending[i:], s.pending...)
			s.mu.Unlock()
			return err
		}
		if p.fn != nil {
			p.fn(p.report)
		}
	}
	return nil
}

// Pending returns the number of undelivered reports.
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithPartitionEOF makes Poll report broker.ErrNoMoreMessages once each
// time the Receiver catches up with a topic.
func WithPartitionEOF() ReceiverOption {
	return func(r *Receiver) {
		r.reportEOF = true
	}
}

// Receiver reads topics from the beginning, round-robin.
type Receiver struct {
	broker    *Broker
	topics    []string
	reportEOF bool

	mu      sync.Mutex
	offsets map[string]int64
	atEOF   map[string]bool
	turn    int
	closed  bool
}

func (b *Broker) Receiver(topics []string, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		broker:  b,
		topics:  slices.Clone(topics),
		offsets: make(map[string]int64),
		atEOF:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Receiver) Poll(ctx context.Context, timeout time.Duration) (*broker.Message, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		msg, wait, err := r.tryNext()
		if msg != nil || err != nil {
			return msg, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-expired:
			return nil, nil
		case <-wait:
		}
	}
}

// tryNext returns the next message of any topic, an EOF report, or a
// channel to wait on.
func (r *Receiver) tryNext() (*broker.Message, <-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nil, broker.ErrClosed
	}

	var wait <-chan struct{}
	for i := range r.topics {
		topic := r.topics[(r.turn+i)%len(r.topics)]
		msg, ch := r.broker.next(topic, r.offsets[topic])
		if msg != nil {
			r.offsets[topic]++
			r.atEOF[topic] = false
			r.turn = (r.turn + i + 1) % len(r.topics)
			return msg, nil, nil
		}
		if r.reportEOF && !r.atEOF[topic] && r.offsets[topic] > 0 {
			r.atEOF[topic] = true
			return nil, nil, broker.ErrNoMoreMessages
		}
		wait = ch
	}
	if wait == nil {
		// no topics
		return nil, make(chan struct{}), nil
	}
	return nil, wait, nil
}

func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var (
	_ broker.Sender   = (*Sender)(nil)
	_ broker.Receiver = (*Receiver)(nil)
)
