package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Timer.
type State int32

const (
	NotStarted State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// TickFunc is invoked once per tick.
type TickFunc func(ctx context.Context) error

// sleepLogThreshold is the shortest sleep worth an info record.
const sleepLogThreshold = 30 * time.Second

// Timer invokes a TickFunc every interval, starting at an instant picked
// by its Begin policy. The next run is advanced from the previous target,
// never from the time a tick finished, so latency does not accumulate.
type Timer struct {
	tick     TickFunc
	interval int
	unit     Unit
	begin    Begin

	log   *slog.Logger
	clock Clock
	loc   *time.Location

	state   atomic.Int32
	stop    atomic.Bool
	nextRun atomic.Int64
	ticks   atomic.Uint64
}

// NewTimer validates its arguments and returns a Timer that has not been
// started. All configuration errors are reported here, never by Start.
func NewTimer(tick TickFunc, interval int, unit Unit, begin Begin, opts ...Option) (*Timer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if tick == nil {
		return nil, &ConfigurationError{Field: "tick", Reason: "tick function is nil"}
	}
	if interval <= 0 {
		return nil, &ConfigurationError{Field: "interval", Reason: fmt.Sprintf("must be a positive integer, got %d", interval)}
	}
	if unit.Duration() == 0 {
		return nil, &ConfigurationError{Field: "unit", Reason: fmt.Sprintf("unrecognized unit %s", unit)}
	}
	if err := begin.validate(o.clock.Now().In(o.loc)); err != nil {
		return nil, err
	}

	return &Timer{
		tick:     tick,
		interval: interval,
		unit:     unit,
		begin:    begin,
		log:      o.logger.With("component", o.name),
		clock:    o.clock,
		loc:      o.loc,
	}, nil
}

// Start runs the Timer on the calling goroutine until Stop is called or
// ctx is done. Cancelling ctx wakes a pending sleep and makes Start
// return ctx.Err(); Stop lets the current sleep finish and returns nil.
func (t *Timer) Start(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(NotStarted), int32(Running)) {
		return ErrAlreadyStarted
	}
	defer t.state.Store(int32(Stopped))

	if t.stop.Load() {
		return nil
	}

	next := t.begin.FirstRun(t.clock.Now(), t.loc)
	t.nextRun.Store(next)
	step := int64(t.interval) * t.unit.Duration().Milliseconds()

	t.log.InfoContext(ctx, "timer started",
		"begin", t.begin.String(),
		"interval", time.Duration(step)*time.Millisecond,
		"firstRun", time.UnixMilli(next).In(t.loc),
	)

	if err := t.sleepUntil(ctx, next); err != nil {
		return err
	}
	for !t.stop.Load() {
		t.runTick(ctx)

		next += step
		t.nextRun.Store(next)
		if err := t.sleepUntil(ctx, next); err != nil {
			return err
		}
	}

	t.log.InfoContext(ctx, "timer stopped", "ticks", t.ticks.Load())
	return nil
}

// Stop asks the Timer to exit once the current tick and sleep are over.
// It does not block and may be called more than once.
func (t *Timer) Stop() {
	t.stop.Store(true)
}

// Status reports the lifecycle state.
func (t *Timer) Status() State {
	return State(t.state.Load())
}

// IsStarted reports whether Start has been called.
func (t *Timer) IsStarted() bool {
	return t.Status() != NotStarted
}

// IsStopped reports whether the Timer loop has finished.
func (t *Timer) IsStopped() bool {
	return t.Status() == Stopped
}

// NextRun returns the instant of the next scheduled tick, or the zero
// time before Start has computed it.
func (t *Timer) NextRun() time.Time {
	ms := t.nextRun.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Ticks returns how many ticks have been invoked.
func (t *Timer) Ticks() uint64 {
	return t.ticks.Load()
}

func (t *Timer) runTick(ctx context.Context) {
	n := t.ticks.Add(1)
	err := t.invoke(ctx)
	if err == nil {
		return
	}

	tickErr := &TickError{Tick: n, Scheduled: time.UnixMilli(t.nextRun.Load()), Err: err}
	attrs := []any{
		slog.Uint64("tick", n),
		slog.Time("scheduled", tickErr.Scheduled),
		slog.Any("error", tickErr),
	}
	if p, ok := err.(*PanicError); ok {
		attrs = append(attrs, slog.String("stack", string(p.Stack)))
	}
	t.log.ErrorContext(ctx, "tick failed", attrs...)
}

func (t *Timer) invoke(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return t.tick(ctx)
}

func (t *Timer) sleepUntil(ctx context.Context, ms int64) error {
	d := max(time.UnixMilli(ms).Sub(t.clock.Now()), 0)
	if d > sleepLogThreshold {
		t.log.InfoContext(ctx, "going to sleep",
			"duration", d.Round(time.Second),
			"until", time.UnixMilli(ms).In(t.loc),
		)
	}
	return t.clock.Sleep(ctx, d)
}
