package connector_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glizzus/kafka-connector/internal/broker"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// logBuffer collects log output from several goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) Count(s string) int {
	return strings.Count(b.String(), s)
}

func newBufferedLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// fakeSender records what it is asked to do.
type fakeSender struct {
	mu      sync.Mutex
	sent    []broker.Record
	flushes int
	closed  bool
	sendErr error
}

func (s *fakeSender) Send(_ context.Context, r broker.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, r)
	return nil
}

func (s *fakeSender) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSender) Sent() []broker.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]broker.Record(nil), s.sent...)
}

type pollResult struct {
	msg *broker.Message
	err error
}

// scriptedReceiver replays results, then calls done on every further poll.
type scriptedReceiver struct {
	mu      sync.Mutex
	results []pollResult
	polls   int
	closed  bool
	done    func()
}

func (r *scriptedReceiver) Poll(context.Context, time.Duration) (*broker.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	if len(r.results) == 0 {
		if r.done != nil {
			r.done()
		}
		return nil, nil
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res.msg, res.err
}

func (r *scriptedReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *scriptedReceiver) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// failingReceiver fails every poll with err.
type failingReceiver struct {
	mu    sync.Mutex
	err   error
	polls int
}

func (r *failingReceiver) Poll(context.Context, time.Duration) (*broker.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	return nil, r.err
}

func (r *failingReceiver) Close() error { return nil }

func (r *failingReceiver) Polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

var (
	_ broker.Sender   = (*fakeSender)(nil)
	_ broker.Receiver = (*scriptedReceiver)(nil)
	_ broker.Receiver = (*failingReceiver)(nil)
)
