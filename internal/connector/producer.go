package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/glizzus/kafka-connector/internal/broker"
	"github.com/glizzus/kafka-connector/internal/schedule"
)

// DataFunc supplies the record to produce on each tick. It may return a
// broker.Record, a *broker.Record, a map[string]any keyed by the *Field
// constants, or nil to skip the tick.
type DataFunc func(ctx context.Context) (any, error)

// Producer sends records through a broker.Sender, either one at a time
// with Produce or on a schedule with Loop.
type Producer struct {
	sender broker.Sender
	opts   *options
	log    *slog.Logger

	stopRequested atomic.Bool
	timer         atomic.Pointer[schedule.Timer]
}

func NewProducer(sender broker.Sender, opts ...Option) (*Producer, error) {
	if sender == nil {
		return nil, &ConfigurationError{Field: "sender", Reason: "sender is nil"}
	}
	o := applyOptions(opts)
	return &Producer{
		sender: sender,
		opts:   o,
		log:    o.logger.With("component", "producer"),
	}, nil
}

// Produce sends a single record. Records without a delivery callback get
// LogDelivery. When the sender reports a connectivity failure the
// producer logs it, pauses for the configured backoff and returns nil, so
// a scheduled loop simply tries again on its next tick.
func (p *Producer) Produce(ctx context.Context, record broker.Record) error {
	if record.OnDelivery == nil {
		record.OnDelivery = p.LogDelivery
	}

	err := p.sender.Send(ctx, record)
	if err == nil {
		return nil
	}
	if broker.IsTransient(err) {
		p.log.WarnContext(ctx, "connection failed, backing off",
			"backoff", p.opts.backoff,
			slog.Any("error", err),
		)
		return p.opts.clock.Sleep(ctx, p.opts.backoff)
	}
	return fmt.Errorf("failed to produce record: %w", err)
}

// Loop produces whatever data returns, every interval units, starting at
// the instant chosen by begin. It blocks until Stop is called or ctx is
// cancelled. On either, buffered records get a bounded flush and Loop
// returns nil. Invalid scheduling arguments are returned before anything runs.
func (p *Producer) Loop(ctx context.Context, data DataFunc, interval int, unit schedule.Unit, begin schedule.Begin) error {
	if data == nil {
		return &ConfigurationError{Field: "data", Reason: "data function is nil"}
	}

	timer, err := schedule.NewTimer(
		func(ctx context.Context) error { return p.tick(ctx, data) },
		interval, unit, begin,
		schedule.WithLogger(p.opts.logger),
		schedule.WithClock(p.opts.clock),
		schedule.WithLocation(p.opts.loc),
		schedule.WithName("producer"),
	)
	if err != nil {
		return err
	}
	if !p.timer.CompareAndSwap(nil, timer) {
		return schedule.ErrAlreadyStarted
	}
	if p.stopRequested.Load() {
		timer.Stop()
	}

	err = timer.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if ctx.Err() != nil {
		p.log.InfoContext(ctx, "producer interrupted")
	}
	p.flush(ctx)
	return nil
}

// Stop ends a running Loop after its current tick. Calling it before Loop
// makes Loop return at once.
func (p *Producer) Stop() {
	p.stopRequested.Store(true)
	if t := p.timer.Load(); t != nil {
		t.Stop()
	}
}

// Status reports the state of the loop.
func (p *Producer) Status() schedule.State {
	if t := p.timer.Load(); t != nil {
		return t.Status()
	}
	return schedule.NotStarted
}

// NextRun returns the next scheduled tick, or the zero time if the loop
// is not running.
func (p *Producer) NextRun() time.Time {
	if t := p.timer.Load(); t != nil {
		return t.NextRun()
	}
	return time.Time{}
}

// LogDelivery is the default delivery callback.
func (p *Producer) LogDelivery(report broker.DeliveryReport) {
	msg := report.Message
	if report.Err != nil {
		p.log.Error("message delivery failed",
			"topic", msg.Topic,
			slog.Any("error", report.Err),
		)
		return
	}
	p.log.Info("delivered message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
}

func (p *Producer) tick(ctx context.Context, data DataFunc) error {
	v, err := data(ctx)
	if err != nil {
		return fmt.Errorf("data function failed: %w", err)
	}

	c, err := toRecord(v)
	if err != nil {
		return err
	}
	if len(c.ignored) > 0 {
		p.log.WarnContext(ctx, "ignoring unknown record fields", "fields", c.ignored)
	}
	if c.skip != "" {
		p.log.WarnContext(ctx, "nothing to produce", "reason", c.skip)
		return nil
	}
	return p.Produce(ctx, c.record)
}

func (p *Producer) flush(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.flushTimeout)
	defer cancel()
	if err := p.sender.Flush(flushCtx); err != nil {
		p.log.Warn("flush did not complete",
			"timeout", p.opts.flushTimeout,
			slog.Any("error", err),
		)
	}
}
