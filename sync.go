// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// Fence is a CPU-observable completion point.
//
// A fence passed to Submit completes when every command buffer of that
// submission retired. A fresh or reset fence is complete. A fence must be
// Reset before it is passed to Submit again.
type Fence struct {
	dev *Device
	// value is the device timeline value to reach; 0 when unbound.
	value atomic.Uint64
}

// NewFence creates an unbound fence.
func (d *Device) NewFence() (*Fence, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	return &Fence{dev: d}, nil
}

// Wait blocks until the fence completed or timeout elapsed and reports
// whether it completed. A negative timeout waits forever.
func (f *Fence) Wait(timeout time.Duration) bool {
	v := f.value.Load()
	if v == 0 {
		return true
	}
	if f.dev.timeline.Completed() < v {
		start := time.Now()
		ok, err := f.dev.timeline.Wait(v, timeout)
		if err != nil {
			fatal(errors.Wrapf(err, "rhi: wait for timeline value %d", v))
		}
		if !ok {
			return false
		}
		if d := time.Since(start); d > 100*time.Millisecond {
			Logger().Warn("rhi: slow fence wait", "value", v, "elapsed", d)
		}
	}
	f.dev.collect()
	return true
}

// Signaled reports whether the fence completed without blocking.
func (f *Fence) Signaled() bool {
	v := f.value.Load()
	return v == 0 || f.dev.timeline.Completed() >= v
}

// Reset unbinds the fence so it can be passed to Submit again. Resetting a
// fence whose submission is still pending is a programmer error.
func (f *Fence) Reset() {
	invariant(f.Signaled(), "rhi: reset of a pending fence (value %d)", f.value.Load())
	f.value.Store(0)
}

// Destroy releases the fence.
func (f *Fence) Destroy() {}

func (f *Fence) bind(v uint64) {
	invariant(f.value.CompareAndSwap(0, v), "rhi: fence submitted again without Reset")
}

// Semaphore orders GPU work. It is only passed to Submit, Present and
// Swapchain.Acquire.
//
// Every signal must be consumed by exactly one wait before the semaphore is
// signaled again.
type Semaphore struct {
	refs
	native driver.Semaphore
	// pending is set by a signal and cleared by the matching wait.
	// Guarded by Device.queueMu.
	pending   bool
	destroyed atomic.Bool
}

// NewSemaphore creates an unsignaled semaphore.
func (d *Device) NewSemaphore() (*Semaphore, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	native, err := d.gpu.NewSemaphore()
	if err != nil {
		return nil, translate(err, "rhi: create semaphore")
	}
	s := &Semaphore{native: native}
	s.init(native.Destroy)
	return s, nil
}

// Destroy releases the semaphore once no submission uses it.
func (s *Semaphore) Destroy() {
	if s.destroyed.CompareAndSwap(false, true) {
		s.drop()
	}
}

func nativeSemaphores(sems []*Semaphore) []driver.Semaphore {
	if len(sems) == 0 {
		return nil
	}
	out := make([]driver.Semaphore, len(sems))
	for i, s := range sems {
		out[i] = s.native
	}
	return out
}

// checkSemaphores verifies that every waited semaphore was signaled and
// no signaled one is still pending. The caller holds Device.queueMu.
func checkSemaphores(wait, signal []*Semaphore) {
	for _, s := range wait {
		invariant(s.pending, "rhi: wait on a semaphore that no submission signals")
	}
	for _, s := range signal {
		invariant(!s.pending || containsSemaphore(wait, s), "rhi: semaphore signaled twice without a wait")
	}
}

// applySemaphores records an enqueued wait/signal pair of lists.
// The caller holds Device.queueMu.
func applySemaphores(wait, signal []*Semaphore) {
	for _, s := range wait {
		s.pending = false
	}
	for _, s := range signal {
		s.pending = true
	}
}

func containsSemaphore(list []*Semaphore, s *Semaphore) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
