package logging

import (
	"log/slog"
	"sort"

	"lendpool/core/events"
)

// EventLogger writes every pool event to a structured logger.
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger returns an emitter logging through logger, or the default
// logger when nil.
func NewEventLogger(logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{logger: logger.With(slog.String("component", "lending"))}
}

// Emit implements events.Emitter.
func (l *EventLogger) Emit(evt events.Event) {
	flat := events.Flatten(evt)
	if flat == nil {
		return
	}
	keys := make([]string, 0, len(flat.Attributes))
	for key := range flat.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)+1)
	args = append(args, slog.String("event", flat.Type))
	for _, key := range keys {
		args = append(args, slog.String(key, flat.Attributes[key]))
	}
	l.logger.Info("pool event", args...)
}
