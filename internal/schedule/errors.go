package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyStarted is returned when Start is called on a Timer that has
// already been started. A stopped Timer cannot be restarted.
var ErrAlreadyStarted = errors.New("timer already started")

// ConfigurationError reports an invalid constructor argument.
// It is fatal: a loop built from an invalid configuration never starts.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

var _ error = (*ConfigurationError)(nil)

// TickError wraps a failure raised by a single tick. The Timer logs it and
// keeps running.
type TickError struct {
	Tick      uint64
	Scheduled time.Time
	Err       error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick %d scheduled at %s failed: %v", e.Tick, e.Scheduled.Format(time.RFC3339Nano), e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}

var _ error = (*TickError)(nil)

// PanicError carries a value recovered from a panicking tick.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("tick panicked: %v", e.Value)
}

var _ error = (*PanicError)(nil)
