// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/rhi/backend/soft"
	"github.com/gogpu/rhi/driver"
)

func TestDefaultLoggerDiscards(t *testing.T) {
	h := nopHandler{}
	ctx := context.Background()
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(ctx, level) {
			t.Errorf("nopHandler enabled at %v", level)
		}
	}
	if err := h.Handle(ctx, slog.Record{}); err != nil {
		t.Errorf("Handle = %v", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.Int("slot", 3)}).WithGroup("heap").(nopHandler); !ok {
		t.Error("derived handlers must stay silent")
	}
	if Logger() == nil || Logger().Enabled(ctx, slog.LevelWarn) {
		t.Error("the package logger is silent until SetLogger")
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)
	if Logger() != custom {
		t.Fatal("Logger did not return the installed logger")
	}
	Logger().Debug("rhi: staged upload", "bytes", 256)
	if !strings.Contains(buf.String(), "staged upload") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("SetLogger(nil) should set nop logger, not nil")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
}

// loggingDriver records the logger it receives.
type loggingDriver struct {
	name   string
	mu     sync.Mutex
	logger *slog.Logger
}

func (d *loggingDriver) Name() string                            { return d.name }
func (d *loggingDriver) Adapters() ([]driver.AdapterInfo, error) { return nil, nil }
func (d *loggingDriver) Open(string) (driver.GPU, error)         { return nil, driver.ErrNoDevice }

func (d *loggingDriver) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = l
}

func (d *loggingDriver) current() *slog.Logger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logger
}

func TestSetLoggerPropagatesToDrivers(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	mock := &loggingDriver{name: "logger-test"}
	driver.Register(mock)

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)

	if mock.current() != custom {
		t.Error("SetLogger did not propagate to a registered driver via loggerSetter")
	}

	SetLogger(nil)
	if got := mock.current(); got == nil || got.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should hand drivers a disabled logger")
	}
}

func TestDeviceLogsAdapterSelection(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf syncBuffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	dev, _ := newTestDevice(t, soft.Config{})
	dev.Close()

	out := buf.String()
	for _, want := range []string{"using software adapter", "device created", "device closed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoggerConcurrentAccess(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			Logger().Debug("rhi: submit", "value", i)
		}()
		go func() {
			defer wg.Done()
			SetLogger(slog.Default())
			SetLogger(nil)
		}()
	}
	wg.Wait()
	if Logger() == nil {
		t.Fatal("Logger returned nil")
	}
}

func BenchmarkDisabledLogger(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		Logger().Debug("rhi: binding table", "resources", 4, "samplers", 2)
	}
}
