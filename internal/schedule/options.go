package schedule

import (
	"log/slog"
	"time"
)

// Option configures a Timer.
type Option func(*options)

type options struct {
	logger *slog.Logger
	clock  Clock
	loc    *time.Location
	name   string
}

func defaultOptions() *options {
	return &options{
		logger: slog.Default(),
		clock:  WallClock(),
		loc:    time.Local,
		name:   "timer",
	}
}

// WithLogger sets the logger the Timer reports tick failures to.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLocation sets the location times of day and cron expressions are
// evaluated in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithName labels the Timer's log records.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}
