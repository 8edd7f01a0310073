// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"sync"
	"time"
)

type job struct {
	run   func()
	fence *fence
	value uint64
}

// queue executes jobs in submission order on its own goroutine.
//
// State machine of a job:
//
//	enqueued -> running -> retired (fence advanced)
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	jobs    []job
	pending int
	closed  bool
	done    chan struct{}
}

func newQueue() *queue {
	q := &queue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

func (q *queue) enqueue(run func(), f *fence, value uint64) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job{run: run, fence: f, value: value})
	q.pending++
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.jobs) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.jobs) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs[0] = job{}
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		if j.run != nil {
			j.run()
		}
		if j.fence != nil {
			j.fence.signal(j.value)
		}

		q.mu.Lock()
		q.pending--
		q.mu.Unlock()
		q.cond.Broadcast()
	}
}

func (q *queue) waitIdle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.cond.Wait()
	}
}

// close drains the queue and stops the goroutine.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	<-q.done
}

// fence is a monotonically increasing counter advanced by the queue.
type fence struct {
	mu      sync.Mutex
	value   uint64
	changed chan struct{}
}

func newFence() *fence { return &fence{changed: make(chan struct{})} }

func (f *fence) signal(v uint64) {
	f.mu.Lock()
	if v > f.value {
		f.value = v
	}
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()
}

func (f *fence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *fence) Wait(v uint64, timeout time.Duration) (bool, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		f.mu.Lock()
		if f.value >= v {
			f.mu.Unlock()
			return true, nil
		}
		ch := f.changed
		f.mu.Unlock()
		select {
		case <-ch:
		case <-expired:
			return f.Completed() >= v, nil
		}
	}
}

func (f *fence) Destroy() {}

// semaphore orders nothing beyond what the single queue already orders.
type semaphore struct{}

func (semaphore) Destroy() {}
