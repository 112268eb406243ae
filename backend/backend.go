package backend

import (
	"errors"
	"log/slog"
	"sync/atomic"
)

// Backend name constants.
const (
	// NameExplicit is the backend with set/binding indices fixed at
	// pipeline creation (gogpu/wgpu HAL).
	NameExplicit = "explicit"
	// NameLegacy is the backend with named slots resolved at link time
	// through a legacy.Context.
	NameLegacy = "legacy"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// logger is handed to every backend the registry creates.
var logger atomic.Pointer[slog.Logger]

func init() { logger.Store(slog.New(slog.DiscardHandler)) }

func slogger() *slog.Logger { return logger.Load() }

// SetLogger sets the logger handed to backends created by Get and Default.
// Nil discards their output. sprite.SetLogger calls it.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	logger.Store(l)
}
