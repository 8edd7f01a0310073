// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	minPoll = 50 * time.Microsecond
	maxPoll = 2 * time.Millisecond
)

// point maps a fence value onto the submission that reaches it.
type point struct {
	value uint64
	index uint64
}

// fence is a timeline advanced by HAL submission indices. The HAL queue
// reports completed submissions; fence values are retired once their
// submission completed.
type fence struct {
	gpu *gpu

	mu        sync.Mutex
	completed uint64
	pending   []point
}

func (f *fence) push(value, index uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, point{value: value, index: index})
}

// poll retires the points whose submission completed.
func (f *fence) poll() uint64 {
	done := f.gpu.queue.PollCompleted()
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.pending {
		if p.index > done {
			break
		}
		f.completed = max(f.completed, p.value)
		n++
	}
	f.pending = f.pending[n:]
	return f.completed
}

func (f *fence) Completed() uint64 { return f.poll() }

func (f *fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	if f.poll() >= value {
		return true, nil
	}
	if timeout < 0 {
		if err := f.gpu.dev.WaitIdle(); err != nil {
			return false, errors.Wrap(halError(err), "wgpu: wait")
		}
		return f.poll() >= value, nil
	}
	deadline := time.Now().Add(timeout)
	step := minPoll
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return f.poll() >= value, nil
		}
		time.Sleep(min(step, left))
		if f.poll() >= value {
			return true, nil
		}
		step = min(step*2, maxPoll)
	}
}

func (f *fence) Destroy() {}

// semaphore orders nothing beyond what the single queue already orders.
type semaphore struct{}

func (semaphore) Destroy() {}
