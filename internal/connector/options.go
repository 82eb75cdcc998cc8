package connector

import (
	"log/slog"
	"time"

	"github.com/glizzus/kafka-connector/internal/schedule"
)

const (
	defaultBackoff      = time.Second
	defaultFlushTimeout = 100 * time.Millisecond
	defaultIdleLogEvery = 10 * time.Second
)

// Option configures a Producer or a Consumer.
type Option func(*options)

// ProducerOption and ConsumerOption name the options each constructor takes.
type (
	ProducerOption = Option
	ConsumerOption = Option
)

type options struct {
	logger       *slog.Logger
	clock        schedule.Clock
	loc          *time.Location
	backoff      time.Duration
	flushTimeout time.Duration
	idleLogEvery time.Duration
}

func defaultOptions() *options {
	return &options{
		logger:       slog.Default(),
		clock:        schedule.WallClock(),
		loc:          time.Local,
		backoff:      defaultBackoff,
		flushTimeout: defaultFlushTimeout,
		idleLogEvery: defaultIdleLogEvery,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces the wall clock used for scheduling and backoff.
func WithClock(clock schedule.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLocation sets where producer times of day are evaluated.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithBackoff sets how long the producer pauses after a connectivity error
// and the consumer after a failed poll.
func WithBackoff(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.backoff = d
		}
	}
}

// WithFlushTimeout bounds the flush performed when a producer loop is interrupted.
func WithFlushTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushTimeout = d
		}
	}
}

// WithIdleLogInterval limits how often the consumer logs empty polls.
func WithIdleLogInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.idleLogEvery = d
		}
	}
}
