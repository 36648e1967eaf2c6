package badgerstate

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes badger's printf-style logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (b *badgerLogger) Errorf(msg string, args ...any) {
	b.logger.Error(format(msg, args), "component", "state")
}

func (b *badgerLogger) Warningf(msg string, args ...any) {
	b.logger.Warn(format(msg, args), "component", "state")
}

func (b *badgerLogger) Infof(msg string, args ...any) {
	b.logger.Info(format(msg, args), "component", "state")
}

func (b *badgerLogger) Debugf(msg string, args ...any) {
	b.logger.Debug(format(msg, args), "component", "state")
}

func format(msg string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(msg, args...))
}
