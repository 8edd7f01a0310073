// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// submission is an enqueued batch and what it keeps alive.
type submission struct {
	value uint64
	keep  retainList
}

// uploadBatch collects the copies of staged allocations until Commit.
type uploadBatch struct {
	cmd  driver.CmdBuffer
	keep retainList
	n    int
}

// record appends commands to the pending upload batch.
func (d *Device) record(fn func(cmd driver.CmdBuffer, keep *retainList)) error {
	d.uploadMu.Lock()
	defer d.uploadMu.Unlock()
	if d.batch == nil {
		cmd, err := d.gpu.NewCmdBuffer()
		if err != nil {
			return translate(err, "rhi: upload command buffer")
		}
		if err := cmd.Begin(); err != nil {
			cmd.Destroy()
			return translate(err, "rhi: begin upload batch")
		}
		d.batch = &uploadBatch{cmd: cmd}
	}
	fn(d.batch.cmd, &d.batch.keep)
	d.batch.n++
	return nil
}

// Commit enqueues the pending upload batch as one submission. It does not
// wait for the GPU. Submit and Present commit implicitly.
func (d *Device) Commit() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.queueMu.Lock()
	err := d.commitLocked()
	d.queueMu.Unlock()
	d.collect()
	return err
}

func (d *Device) commitLocked() error {
	d.uploadMu.Lock()
	b := d.batch
	d.batch = nil
	d.uploadMu.Unlock()
	if b == nil {
		return nil
	}
	if err := b.cmd.End(); err != nil {
		fatal(errors.Wrap(err, "rhi: end upload batch"))
	}
	b.keep = append(b.keep, onRetire(b.cmd.Destroy))
	v, err := d.enqueueLocked([]driver.CmdBuffer{b.cmd}, nil, nil, b.keep)
	if err != nil {
		b.keep.drop()
		return err
	}
	Logger().Debug("rhi: upload batch committed", "commands", b.n, "value", v)
	return nil
}

// enqueueLocked submits to the native queue with the next timeline value
// and tracks keep until that value retires. The caller holds queueMu.
func (d *Device) enqueueLocked(cmds []driver.CmdBuffer, wait, signal []driver.Semaphore, keep retainList) (uint64, error) {
	v := d.lastValue.Load() + 1
	if err := d.gpu.Submit(cmds, wait, signal, d.timeline, v); err != nil {
		return 0, translate(err, "rhi: submit")
	}
	d.lastValue.Store(v)
	d.retireMu.Lock()
	d.inflight = append(d.inflight, submission{value: v, keep: keep})
	d.retireMu.Unlock()
	return v, nil
}

// collect releases the retain lists of retired submissions.
func (d *Device) collect() {
	done := d.timeline.Completed()
	d.retireMu.Lock()
	i := 0
	for i < len(d.inflight) && d.inflight[i].value <= done {
		i++
	}
	retired := append([]submission(nil), d.inflight[:i]...)
	d.inflight = append(d.inflight[:0], d.inflight[i:]...)
	d.retireMu.Unlock()

	for _, s := range retired {
		s.keep.drop()
	}
}

// Submit enqueues cmds as one batch. The queue waits on every semaphore in
// wait, runs cmds in order, signals every semaphore in signal and then
// completes fence, if given. Batches run in submission order. Submit
// commits pending uploads first and does not wait for the GPU.
func (d *Device) Submit(cmds []*CommandBuffer, wait, signal []*Semaphore, fence *Fence) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	natives := make([]driver.CmdBuffer, len(cmds))
	for i, c := range cmds {
		invariant(c.dev == d, "rhi: command buffer of another device")
		invariant(c.state == CmdExecutable, "rhi: submit of a %s command buffer", c.state)
		invariant(!slices.Contains(cmds[:i], c), "rhi: command buffer submitted twice in one batch")
		natives[i] = c.native
	}

	v, err := d.enqueueBatch(cmds, natives, wait, signal, fence)
	if err != nil {
		return err
	}
	Logger().Debug("rhi: submit", "buffers", len(cmds), "wait", len(wait), "signal", len(signal), "value", v)
	d.collect()
	return nil
}

// enqueueBatch validates and enqueues one Submit batch under queueMu.
func (d *Device) enqueueBatch(cmds []*CommandBuffer, natives []driver.CmdBuffer, wait, signal []*Semaphore, fence *Fence) (uint64, error) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	if err := d.commitLocked(); err != nil {
		return 0, err
	}
	checkSemaphores(wait, signal)
	invariant(fence == nil || fence.value.Load() == 0, "rhi: fence submitted again without Reset")

	var extra retainList
	var keep retainList
	for _, c := range cmds {
		keep = append(keep, c.keep...)
		extra.add(c)
		for _, t := range c.tables {
			t.inflight.Add(1)
			extra = append(extra, onRetire(t.retired))
		}
	}
	for _, s := range wait {
		extra.add(s)
	}
	for _, s := range signal {
		extra.add(s)
	}
	keep = append(keep, extra...)

	v, err := d.enqueueLocked(natives, nativeSemaphores(wait), nativeSemaphores(signal), keep)
	if err != nil {
		extra.drop()
		return 0, err
	}
	applySemaphores(wait, signal)
	for _, c := range cmds {
		c.keep = nil
		c.held = nil
		c.tables = nil
		c.value.Store(v)
		c.state = CmdSubmitted
	}
	if fence != nil {
		fence.bind(v)
	}
	return v, nil
}
