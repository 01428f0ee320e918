package device

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var logp atomic.Pointer[slog.Logger]

func init() {
	logp.Store(slog.New(nopHandler{}))
}

// SetLogger sets the package logger. nil restores the no-op logger.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	logp.Store(l)
}

func logger() *slog.Logger { return logp.Load() }
