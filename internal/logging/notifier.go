package logging

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier emits a log record at most once per condition for the life of
// the process. Degradations such as a missing lexical backend or a tripped
// expansion breaker are reported through it so they are visible once
// without flooding the log on every request.
type Notifier struct {
	logger *slog.Logger
	seen   sync.Map // condition -> struct{}
}

// NewNotifier creates a Notifier. A nil logger uses slog.Default().
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Warn logs msg at warn level unless condition was already reported.
// It reports whether the record was emitted.
func (n *Notifier) Warn(condition, msg string, attrs ...slog.Attr) bool {
	return n.emit(slog.LevelWarn, condition, msg, attrs)
}

// Info is Warn at info level.
func (n *Notifier) Info(condition, msg string, attrs ...slog.Attr) bool {
	return n.emit(slog.LevelInfo, condition, msg, attrs)
}

// Seen reports whether condition has already been emitted.
func (n *Notifier) Seen(condition string) bool {
	if n == nil {
		return false
	}
	_, ok := n.seen.Load(condition)
	return ok
}

func (n *Notifier) emit(level slog.Level, condition, msg string, attrs []slog.Attr) bool {
	if n == nil {
		return false
	}
	if _, loaded := n.seen.LoadOrStore(condition, struct{}{}); loaded {
		return false
	}
	attrs = append(attrs, slog.String("condition", condition))
	n.logger.LogAttrs(context.Background(), level, msg, attrs...)
	return true
}
