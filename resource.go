// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// refs is a reference count shared by a client handle and every
// submission retain list that references the object. release runs once,
// when the last reference is dropped.
type refs struct {
	n       atomic.Int32
	release func()
}

func (r *refs) init(release func()) {
	r.n.Store(1)
	r.release = release
}

func (r *refs) retain() {
	n := r.n.Add(1)
	invariant(n > 1, "rhi: retain of a released object")
}

func (r *refs) drop() {
	n := r.n.Add(-1)
	invariant(n >= 0, "rhi: object released twice")
	if n == 0 && r.release != nil {
		r.release()
	}
}

// retainer is anything a submission can keep alive.
type retainer interface {
	retain()
	drop()
}

// retainList holds strong references for the lifetime of a submission.
type retainList []retainer

func (l *retainList) add(r retainer) {
	r.retain()
	*l = append(*l, r)
}

func (l retainList) drop() {
	for _, r := range l {
		r.drop()
	}
}

// onRetire runs a function when the submission holding it retires.
// It is used for internal objects that have no client handle.
type onRetire func()

func (onRetire) retain()  {}
func (f onRetire) drop() { f() }

// Buffer is a GPU buffer.
//
// The native buffer is destroyed once Destroy was called and every
// submission that referenced the buffer retired.
type Buffer struct {
	refs
	dev       *Device
	native    driver.Buffer
	size      int64
	usage     MemUsage
	heap      BufferHeap
	destroyed atomic.Bool
}

func newBuffer(dev *Device, native driver.Buffer, usage MemUsage, heap BufferHeap) *Buffer {
	b := &Buffer{dev: dev, native: native, size: native.Size(), usage: usage, heap: heap}
	b.init(native.Destroy)
	return b
}

// Size returns the size in bytes.
func (b *Buffer) Size() int64 { return b.size }

// Usage returns the usage mask the buffer was created with.
func (b *Buffer) Usage() MemUsage { return b.usage }

// Heap returns the memory class of the buffer.
func (b *Buffer) Heap() BufferHeap { return b.heap }

// Update writes data at off. Upload buffers are written immediately.
// Static buffers receive the bytes through a staged copy in the pending
// upload batch, ordered before the next submission. Readback buffers
// cannot be written.
func (b *Buffer) Update(off int64, data []byte) error {
	b.checkAlive()
	invariant(off >= 0 && off+int64(len(data)) <= b.size,
		"rhi: update [%d,%d) outside buffer of %d bytes", off, off+int64(len(data)), b.size)
	switch b.heap {
	case HeapUpload:
		return translate(b.native.Write(off, data), "rhi: update buffer")
	case HeapStatic:
		return b.dev.stageBuffer(b, off, data)
	default:
		fatal(errors.AssertionFailedf("rhi: update of a %s buffer", b.heap))
		return nil
	}
}

// Read copies bytes at off into dst. Only host-visible buffers can be
// read; the caller waits for the writing submission first.
func (b *Buffer) Read(off int64, dst []byte) error {
	b.checkAlive()
	invariant(b.heap.HostVisible(), "rhi: read of a %s buffer", b.heap)
	invariant(off >= 0 && off+int64(len(dst)) <= b.size,
		"rhi: read [%d,%d) outside buffer of %d bytes", off, off+int64(len(dst)), b.size)
	return translate(b.native.Read(off, dst), "rhi: read buffer")
}

// Destroy releases the client reference.
func (b *Buffer) Destroy() {
	if b.destroyed.CompareAndSwap(false, true) {
		b.drop()
	}
}

func (b *Buffer) checkAlive() {
	invariant(!b.destroyed.Load(), "rhi: use of a destroyed buffer")
}

// Texture is a GPU texture.
//
// Between submissions every texture rests in one layout: Sampler for
// sampled textures and attachments, Present for swapchain images. Command
// buffers move textures out of the resting layout as commands require and
// restore it at End.
type Texture struct {
	refs
	dev       *Device
	native    driver.Texture
	desc      driver.TextureDesc
	resting   TextureLayout
	swapchain bool
	destroyed atomic.Bool
}

func newTexture(dev *Device, native driver.Texture, resting TextureLayout) *Texture {
	t := &Texture{dev: dev, native: native, desc: native.Desc(), resting: resting}
	t.init(native.Destroy)
	return t
}

// Width returns the width of level 0.
func (t *Texture) Width() int { return t.desc.Width }

// Height returns the height of level 0.
func (t *Texture) Height() int { return t.desc.Height }

// Mips returns the number of mip levels.
func (t *Texture) Mips() int { return t.desc.Mips }

// Format returns the pixel format.
func (t *Texture) Format() TextureFormat { return t.desc.Format }

// Usage returns the native usage mask.
func (t *Texture) Usage() MemUsage { return t.desc.Usage }

// Layout returns the layout the texture rests in between submissions.
func (t *Texture) Layout() TextureLayout { return t.resting }

// Destroy releases the client reference. Swapchain images are owned by
// their swapchain and ignore Destroy.
func (t *Texture) Destroy() {
	if t.swapchain {
		return
	}
	if t.destroyed.CompareAndSwap(false, true) {
		t.drop()
	}
}

func (t *Texture) checkAlive() {
	invariant(!t.destroyed.Load(), "rhi: use of a destroyed texture")
}
