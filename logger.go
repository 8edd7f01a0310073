// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/rhi/driver"
)

// nopHandler drops every record. Enabled reports false, so disabled calls
// never format their arguments.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() { loggerPtr.Store(slog.New(nopHandler{})) }

// SetLogger installs l for rhi and hands it to every registered driver
// that accepts a logger. rhi is silent by default; nil restores that.
// SetLogger may run concurrently with logging.
//
// Levels:
//   - [slog.LevelDebug]: allocations, pipeline instances, submissions
//   - [slog.LevelInfo]: adapter selection, device lifetime
//   - [slog.LevelWarn]: format fallbacks, software adapters, slow waits
//   - [slog.LevelError]: broken invariants right before they panic
//
// Example:
//
//	rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
	for _, d := range driver.Drivers() {
		if ls, ok := d.(loggerSetter); ok {
			ls.SetLogger(l)
		}
	}
}

// Logger returns the logger installed by SetLogger.
func Logger() *slog.Logger { return loggerPtr.Load() }

// loggerSetter is implemented by drivers with their own package logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}
