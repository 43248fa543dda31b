package dispatch

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// watermillLogger adapts the service logger to watermill.LoggerAdapter.
// Watermill's trace output is mapped to debug.
type watermillLogger struct {
	logger *slog.Logger
}

// newWatermillLogger wraps logger for use by the watermill router and pub/sub.
func newWatermillLogger(logger *logging.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger.Logger.With("component", "watermill")}
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error(msg, append(attrs(fields), "error", err)...)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Info(msg, attrs(fields)...)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug(msg, attrs(fields)...)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.Debug(msg, append(attrs(fields), "trace", true)...)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: w.logger.With(attrs(fields)...)}
}

// attrs flattens watermill fields into slog key/value pairs.
func attrs(fields watermill.LogFields) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
