// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

type buffer struct {
	gpu  *gpu
	raw  hal.Buffer
	size int64
	heap driver.Heap
}

func (b *buffer) Size() int64 { return b.size }

// mapped runs fn on the host mapping of [off, off+n).
func (b *buffer) mapped(op string, off int64, n int, fn func(mem []byte)) error {
	if !b.heap.HostVisible() {
		return errors.AssertionFailedf("wgpu: %s on %s heap", op, b.heap)
	}
	if off < 0 || off+int64(n) > b.size {
		return errors.AssertionFailedf("wgpu: %s [%d,%d) outside buffer of %d bytes", op, off, off+int64(n), b.size)
	}
	if n == 0 {
		return nil
	}
	m, err := b.gpu.dev.MapBuffer(b.raw, uint64(off), uint64(n))
	if err != nil {
		return errors.Wrapf(halError(err), "wgpu: map for %s", op)
	}
	fn(unsafe.Slice((*byte)(m.Ptr), n))
	if err := b.gpu.dev.UnmapBuffer(b.raw); err != nil {
		return errors.Wrapf(halError(err), "wgpu: unmap after %s", op)
	}
	return nil
}

func (b *buffer) Write(off int64, p []byte) error {
	return b.mapped("write", off, len(p), func(mem []byte) { copy(mem, p) })
}

func (b *buffer) Read(off int64, p []byte) error {
	return b.mapped("read", off, len(p), func(mem []byte) { copy(p, mem) })
}

func (b *buffer) Destroy() { b.gpu.dev.DestroyBuffer(b.raw) }

// texture owns its HAL texture and lazily created views.
type texture struct {
	gpu    *gpu
	raw    hal.Texture
	desc   driver.TextureDesc
	format gputypes.TextureFormat

	// present is the usage LayoutPresent stands for.
	present gputypes.TextureUsage

	mu    sync.Mutex
	views []hal.TextureView // one per mip
	all   hal.TextureView
}

func (t *texture) Desc() driver.TextureDesc { return t.desc }

func (t *texture) aspect() gputypes.TextureAspect {
	if t.desc.Format.IsDepth() {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

// view returns the view of level mip, or of every level when mip < 0.
func (t *texture) view(mip int) (hal.TextureView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := &t.all
	desc := &hal.TextureViewDescriptor{
		Label:           "rhi view",
		Format:          t.format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   uint32(t.desc.Mips),
		ArrayLayerCount: 1,
	}
	if mip >= 0 {
		slot = &t.views[mip]
		desc.BaseMipLevel = uint32(mip)
		desc.MipLevelCount = 1
	}
	if *slot != nil {
		return *slot, nil
	}
	v, err := t.gpu.dev.CreateTextureView(t.raw, desc)
	if err != nil {
		return nil, errors.Wrapf(halError(err), "wgpu: view of mip %d", mip)
	}
	*slot = v
	return v, nil
}

func (t *texture) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, v := range t.views {
		if v != nil {
			t.gpu.dev.DestroyTextureView(v)
			t.views[i] = nil
		}
	}
	if t.all != nil {
		t.gpu.dev.DestroyTextureView(t.all)
		t.all = nil
	}
	if t.raw != nil {
		t.gpu.dev.DestroyTexture(t.raw)
		t.raw = nil
	}
}

type bindingLayout struct {
	gpu      *gpu
	entries  []driver.BindingEntry // sorted by binding
	group    hal.BindGroupLayout
	pipeline hal.PipelineLayout
}

func (l *bindingLayout) Destroy() {
	l.gpu.dev.DestroyPipelineLayout(l.pipeline)
	l.gpu.dev.DestroyBindGroupLayout(l.group)
}

type pipeline struct {
	gpu     *gpu
	layout  *bindingLayout
	render  hal.RenderPipeline
	compute hal.ComputePipeline
}

func (p *pipeline) Destroy() {
	if p.render != nil {
		p.gpu.dev.DestroyRenderPipeline(p.render)
	}
	if p.compute != nil {
		p.gpu.dev.DestroyComputePipeline(p.compute)
	}
}

type descriptor struct {
	tex     *texture
	buf     *buffer
	off     int64
	size    int64
	sampler driver.Sampler
	set     bool
}

// descriptorHeap holds descriptors on the CPU. Bind groups are built from
// it when command buffers are encoded.
type descriptorHeap struct {
	kind driver.HeapKind

	mu    sync.RWMutex
	slots []descriptor
}

func (h *descriptorHeap) Kind() driver.HeapKind { return h.kind }
func (h *descriptorHeap) Len() int              { return len(h.slots) }
func (h *descriptorHeap) Destroy()              {}

func (h *descriptorHeap) put(slot int, d descriptor) {
	h.mu.Lock()
	h.slots[slot] = d
	h.mu.Unlock()
}

func (h *descriptorHeap) get(slot int) descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.slots[slot]
}

func (h *descriptorHeap) SetTexture(slot int, tex driver.Texture) {
	h.put(slot, descriptor{tex: tex.(*texture), set: true})
}

func (h *descriptorHeap) SetBuffer(slot int, buf driver.Buffer, off, size int64) {
	h.put(slot, descriptor{buf: buf.(*buffer), off: off, size: size, set: true})
}

func (h *descriptorHeap) SetSampler(slot int, s driver.Sampler) {
	h.put(slot, descriptor{sampler: s, set: true})
}

// samplerCache keeps one HAL sampler per sampler state for the device
// lifetime.
type samplerCache struct {
	gpu *gpu
	mu  sync.Mutex
	m   map[driver.Sampler]hal.Sampler
}

func (c *samplerCache) get(s driver.Sampler) (hal.Sampler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if raw, ok := c.m[s]; ok {
		return raw, nil
	}
	mip := gputypes.FilterModeLinear
	if s.MipFilter == driver.FilterNearest {
		mip = gputypes.FilterModeNearest
	}
	addr := addressMode(s.Address)
	raw, err := c.gpu.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        "rhi sampler",
		AddressModeU: addr,
		AddressModeV: addr,
		AddressModeW: addr,
		MagFilter:    filterMode(s.Mag),
		MinFilter:    filterMode(s.Min),
		MipmapFilter: mip,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return nil, errors.Wrap(halError(err), "wgpu: sampler")
	}
	if c.m == nil {
		c.m = make(map[driver.Sampler]hal.Sampler)
	}
	c.m[s] = raw
	return raw, nil
}

func (c *samplerCache) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, raw := range c.m {
		c.gpu.dev.DestroySampler(raw)
	}
	c.m = nil
}
