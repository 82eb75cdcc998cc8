package connector

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/schedule"
)

// Handler processes one consumed message. Errors are logged and do not
// stop the loop.
type Handler func(ctx context.Context, msg *broker.Message) error

// Consumer polls a broker.Receiver and dispatches every message to a Handler.
type Consumer struct {
	receiver broker.Receiver
	opts     *options
	log      *slog.Logger
	idle     *rate.Sometimes

	state   atomic.Int32
	stop    atomic.Bool
	handled atomic.Uint64
}

func NewConsumer(receiver broker.Receiver, opts ...Option) (*Consumer, error) {
	if receiver == nil {
		return nil, &ConfigurationError{Field: "receiver", Reason: "receiver is nil"}
	}
	o := applyOptions(opts)
	return &Consumer{
		receiver: receiver,
		opts:     o,
		log:      o.logger.With("component", "consumer"),
		idle:     &rate.Sometimes{Interval: o.idleLogEvery},
	}, nil
}

// Loop polls with the given timeout until Stop is called or ctx is
// cancelled, then closes the receiver and returns nil. A timeout of zero
// or less makes each poll wait until a message arrives or ctx is done.
// Messages are handled synchronously on the calling goroutine. After a
// failed poll the loop pauses for the backoff, capped at the timeout.
func (c *Consumer) Loop(ctx context.Context, onDelivery Handler, timeout time.Duration) error {
	if onDelivery == nil {
		return &ConfigurationError{Field: "on_delivery", Reason: "handler is nil"}
	}
	timeout = max(timeout, 0)
	if !c.state.CompareAndSwap(int32(schedule.NotStarted), int32(schedule.Running)) {
		return schedule.ErrAlreadyStarted
	}
	defer c.finish(ctx)

	c.log.InfoContext(ctx, "consumer started", "timeout", timeout)
	for !c.stop.Load() && ctx.Err() == nil {
		msg, err := c.receiver.Poll(ctx, timeout)
		switch {
		case errors.Is(err, broker.ErrNoMoreMessages):
		case err != nil:
			if ctx.Err() == nil {
				c.log.ErrorContext(ctx, "poll failed", slog.Any("error", &PollError{Err: err}))
				c.pause(ctx, timeout)
			}
		case msg == nil:
			c.logIdle(ctx, timeout)
		default:
			c.dispatch(ctx, onDelivery, msg)
		}
	}
	if ctx.Err() != nil {
		c.log.InfoContext(ctx, "consumer interrupted")
	}
	return nil
}

// Stop ends a running Loop after the current poll or handler returns.
func (c *Consumer) Stop() {
	c.stop.Store(true)
}

func (c *Consumer) Status() schedule.State {
	return schedule.State(c.state.Load())
}

func (c *Consumer) IsStopped() bool {
	return c.Status() == schedule.Stopped
}

// Handled returns how many messages were passed to the handler.
func (c *Consumer) Handled() uint64 {
	return c.handled.Load()
}

func (c *Consumer) dispatch(ctx context.Context, onDelivery Handler, msg *broker.Message) {
	c.log.InfoContext(ctx, "received message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	c.handled.Add(1)
	if err := c.invoke(ctx, onDelivery, msg); err != nil {
		attrs := []any{
			"topic", msg.Topic,
			"offset", msg.Offset,
			slog.Any("error", err),
		}
		if p, ok := err.(*schedule.PanicError); ok {
			attrs = append(attrs, slog.String("stack", string(p.Stack)))
		}
		c.log.ErrorContext(ctx, "message handler failed", attrs...)
	}
}

func (c *Consumer) invoke(ctx context.Context, onDelivery Handler, msg *broker.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &schedule.PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return onDelivery(ctx, msg)
}

// pause keeps a failing receiver from being polled in a tight loop.
func (c *Consumer) pause(ctx context.Context, timeout time.Duration) {
	d := c.opts.backoff
	if timeout > 0 {
		d = min(d, timeout)
	}
	_ = c.opts.clock.Sleep(ctx, d)
}

func (c *Consumer) logIdle(ctx context.Context, timeout time.Duration) {
	log := func() { c.log.DebugContext(ctx, "no message received", "timeout", timeout) }
	if c.opts.idleLogEvery == 0 {
		log()
		return
	}
	c.idle.Do(log)
}

func (c *Consumer) finish(ctx context.Context) {
	if err := c.receiver.Close(); err != nil {
		c.log.ErrorContext(ctx, "failed to close receiver", slog.Any("error", err))
	}
	c.state.Store(int32(schedule.Stopped))
	c.log.InfoContext(ctx, "consumer stopped", "handled", c.handled.Load())
}
