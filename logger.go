package leafdb

// Logger interface matches the implementation of slog.
// See pkg logger for adapters implementations for common logger libraries.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// DiscardLogger is the default logger that compiles to a no-op
type DiscardLogger struct{}

func (d DiscardLogger) Error(string, ...any) {}

func (d DiscardLogger) Warn(string, ...any) {}

func (d DiscardLogger) Info(string, ...any) {}

// fieldLogger prepends fixed key-value pairs to every message.
type fieldLogger struct {
	logger Logger
	fields []any
}

func withFields(logger Logger, fields ...any) Logger {
	if _, ok := logger.(DiscardLogger); ok {
		return logger
	}
	return fieldLogger{logger: logger, fields: fields}
}

func (l fieldLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.merge(args)...)
}

func (l fieldLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, l.merge(args)...)
}

func (l fieldLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.merge(args)...)
}

func (l fieldLogger) merge(args []any) []any {
	out := make([]any, 0, len(l.fields)+len(args))
	out = append(out, l.fields...)
	return append(out, args...)
}
