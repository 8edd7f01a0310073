// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

var (
	// ErrNoDevice is returned when adapter enumeration found no capable device.
	ErrNoDevice = errors.New("rhi: no capable device")

	// ErrOutOfDeviceMemory is returned when a native allocation fails.
	ErrOutOfDeviceMemory = errors.New("rhi: out of device memory")

	// ErrUnsupportedTextureFormat is returned when a format is not in the
	// device's capability table for the requested usage.
	ErrUnsupportedTextureFormat = errors.New("rhi: unsupported texture format")

	// ErrIncompleteFramebuffer is returned when framebuffer attachments do
	// not match their layout or each other's size.
	ErrIncompleteFramebuffer = errors.New("rhi: incomplete framebuffer")

	// ErrOutOfDescriptors is returned when a binding table does not fit in
	// the descriptor heaps. It also matches ErrOutOfDeviceMemory.
	ErrOutOfDescriptors = errors.Mark(errors.New("rhi: out of descriptor slots"), ErrOutOfDeviceMemory)

	// ErrTimeout is returned by blocking helpers whose wait expired.
	ErrTimeout = errors.New("rhi: wait timed out")

	// ErrDeviceClosed is returned by operations on a closed device.
	ErrDeviceClosed = errors.New("rhi: device closed")
)

// translate maps a driver error onto the rhi taxonomy. Errors signalling a
// broken invariant do not return.
func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrapf(err, format, args...)
	switch {
	case errors.Is(err, driver.ErrFatal), errors.HasAssertionFailure(err):
		fatal(wrapped)
	case errors.Is(err, driver.ErrNoDeviceMemory):
		return errors.Mark(wrapped, ErrOutOfDeviceMemory)
	case errors.Is(err, driver.ErrUnsupportedFormat):
		return errors.Mark(wrapped, ErrUnsupportedTextureFormat)
	case errors.Is(err, driver.ErrNoDevice), errors.Is(err, driver.ErrNotInstalled):
		return errors.Mark(wrapped, ErrNoDevice)
	}
	return wrapped
}

// fatal aborts on a broken invariant.
func fatal(err error) {
	Logger().Error("rhi: fatal", "error", err)
	panic(err)
}

// invariant panics with an assertion failure when cond is false.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		fatal(errors.AssertionFailedf(format, args...))
	}
}
