// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

type buffer struct {
	gpu   *gpu
	data  []byte
	usage driver.Usage
	heap  driver.Heap
}

func (b *buffer) Size() int64 { return int64(len(b.data)) }

func (b *buffer) Write(off int64, p []byte) error {
	if !b.heap.HostVisible() {
		return errors.AssertionFailedf("soft: write to %s heap", b.heap)
	}
	if off < 0 || off+int64(len(p)) > int64(len(b.data)) {
		return errors.AssertionFailedf("soft: write [%d,%d) outside buffer of %d bytes",
			off, off+int64(len(p)), len(b.data))
	}
	copy(b.data[off:], p)
	return nil
}

func (b *buffer) Read(off int64, p []byte) error {
	if !b.heap.HostVisible() {
		return errors.AssertionFailedf("soft: read from %s heap", b.heap)
	}
	if off < 0 || off+int64(len(p)) > int64(len(b.data)) {
		return errors.AssertionFailedf("soft: read [%d,%d) outside buffer of %d bytes",
			off, off+int64(len(p)), len(b.data))
	}
	copy(p, b.data[off:])
	return nil
}

func (b *buffer) Destroy() {
	b.gpu.mem.release(int64(len(b.data)))
	b.data = nil
}

// texture stores every level tightly packed in its native format.
type texture struct {
	gpu    *gpu
	desc   driver.TextureDesc
	size   int64
	levels [][]byte
	layout []driver.Layout
}

func (t *texture) Desc() driver.TextureDesc { return t.desc }

func (t *texture) Destroy() {
	t.gpu.mem.release(t.size)
	t.levels = nil
}

func (t *texture) level(mip int) (data []byte, width, height int) {
	w, h := driver.MipSize(t.desc.Width, t.desc.Height, mip)
	return t.levels[mip], w, h
}

type shader struct {
	desc driver.ShaderDesc
}

func (*shader) Destroy() {}

type bindingLayout struct {
	entries []driver.BindingEntry
}

func (*bindingLayout) Destroy() {}

type pipeline struct {
	graphics *driver.PipelineDesc
	compute  *driver.ComputeDesc
}

func (*pipeline) Destroy() {}

type descriptor struct {
	tex     *texture
	buf     *buffer
	off     int64
	size    int64
	sampler driver.Sampler
	set     bool
}

type descriptorHeap struct {
	kind  driver.HeapKind
	slots []descriptor
}

func (h *descriptorHeap) Kind() driver.HeapKind { return h.kind }
func (h *descriptorHeap) Len() int              { return len(h.slots) }
func (h *descriptorHeap) Destroy()              {}

func (h *descriptorHeap) SetTexture(slot int, tex driver.Texture) {
	h.slots[slot] = descriptor{tex: tex.(*texture), set: true}
}

func (h *descriptorHeap) SetBuffer(slot int, buf driver.Buffer, off, size int64) {
	h.slots[slot] = descriptor{buf: buf.(*buffer), off: off, size: size, set: true}
}

func (h *descriptorHeap) SetSampler(slot int, s driver.Sampler) {
	h.slots[slot] = descriptor{sampler: s, set: true}
}
