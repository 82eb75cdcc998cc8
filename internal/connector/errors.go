package connector

import (
	"fmt"

	"github.com/glizzus/kafka-connector/internal/schedule"
)

// ConfigurationError is returned by constructors and by a Loop that
// cannot start.
type ConfigurationError = schedule.ConfigurationError

// PollError wraps an error the Receiver reported while polling. The
// consumer logs it and keeps polling.
type PollError struct {
	Err error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll failed: %v", e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

var _ error = (*PollError)(nil)

// RecordError reports data that looked like a record but could not be
// turned into one.
type RecordError struct {
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("invalid record field %q: %s", e.Field, e.Reason)
}

var _ error = (*RecordError)(nil)
