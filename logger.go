package sprite

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/sprite/backend"
	"github.com/gogpu/sprite/gpucore"
)

// nopHandler drops every record. Enabled reports false, so disabled draw
// path logging never formats its attributes.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var silent = slog.New(nopHandler{})

// current is the package logger. Renderers created without WithLogger
// capture it at construction.
var current atomic.Pointer[slog.Logger]

func init() { current.Store(silent) }

// SetLogger sets the package logger and the logger handed to backends
// created through the registry afterwards. Nil restores the silent
// default. It is safe to call at any time.
//
// Levels:
//   - [slog.LevelDebug]: renderer and pipeline creation, stream growth,
//     per-frame draw totals, instance population
//   - [slog.LevelInfo]: backend selection, texture array rebuilds
//   - [slog.LevelWarn]: images skipped because an array is full
//
// Example:
//
//	sprite.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	current.Store(l)
	backend.SetLogger(l)
}

// Logger returns the package logger.
func Logger() *slog.Logger { return current.Load() }

// propagateLogger hands l to b when the backend accepts one.
func propagateLogger(b gpucore.Backend, l *slog.Logger) {
	if ls, ok := b.(interface{ SetLogger(*slog.Logger) }); ok {
		ls.SetLogger(l)
	}
}
