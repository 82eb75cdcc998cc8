package kafka

import (
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// ErrorFunc receives errors the client reports outside of a call, such as
// broker disconnects.
type ErrorFunc func(err error)

// LogError is the default ErrorFunc.
func LogError(logger *slog.Logger) ErrorFunc {
	return func(err error) {
		logger.Error("kafka client error", slog.Any("error", err))
	}
}

func errorLogger(fn ErrorFunc) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...any) {
		fn(fmt.Errorf(msg, args...))
	})
}

func debugLogger(logger *slog.Logger) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...any) {
		logger.Debug(fmt.Sprintf(msg, args...))
	})
}
