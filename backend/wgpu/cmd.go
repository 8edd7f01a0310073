// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

// op is one recorded command, replayed into a HAL encoder at Submit.
type op func(e *encoder)

type vertexBinding struct {
	buf *buffer
	off int64
}

type indexBinding struct {
	buf    *buffer
	format driver.IndexFormat
	off    int64
}

// encoder is the replay state of one submission. Pass state is applied
// lazily so that pipelines, bindings and vertex buffers may be set before
// the pass they are used in.
type encoder struct {
	gpu *gpu
	raw hal.CommandEncoder
	rp  hal.RenderPassEncoder
	cp  hal.ComputePassEncoder
	err error

	pipeline *pipeline
	group    hal.BindGroup
	vertex   map[int]vertexBinding
	index    *indexBinding
	dirty    bool

	transient []hal.BindGroup
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) endCompute() {
	if e.cp != nil {
		e.cp.End()
		e.cp = nil
	}
}

// flushRender applies the bound state to the render pass.
func (e *encoder) flushRender() {
	if !e.dirty {
		return
	}
	e.rp.SetPipeline(e.pipeline.render)
	if e.group != nil {
		e.rp.SetBindGroup(0, e.group, nil)
	}
	for slot, vb := range e.vertex {
		e.rp.SetVertexBuffer(uint32(slot), vb.buf.raw, uint64(vb.off))
	}
	if e.index != nil {
		e.rp.SetIndexBuffer(e.index.buf.raw, indexFormat(e.index.format), uint64(e.index.off))
	}
	e.dirty = false
}

func (e *encoder) flushCompute() {
	if e.cp == nil {
		e.cp = e.raw.BeginComputePass(&hal.ComputePassDescriptor{Label: "rhi compute"})
		e.dirty = true
	}
	if !e.dirty {
		return
	}
	e.cp.SetPipeline(e.pipeline.compute)
	if e.group != nil {
		e.cp.SetBindGroup(0, e.group, nil)
	}
	e.dirty = false
}

func (e *encoder) barrier(t *texture, mip int, from, to gputypes.TextureUsage) {
	if from == to {
		return
	}
	e.raw.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Range: hal.TextureRange{
			Aspect:          gputypes.TextureAspectAll,
			BaseMipLevel:    uint32(mip),
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		},
		Usage: hal.TextureUsageTransition{OldUsage: from, NewUsage: to},
	}})
}

// cmdBuffer records ops.
//
// State machine:
//
//	idle      -> Begin() -> recording
//	recording -> End()   -> ended
//	ended     -> Reset() -> idle
//
// The HAL encoder and command buffer of the last submission are kept until
// the next Reset, Destroy or submission.
type cmdBuffer struct {
	gpu       *gpu
	ops       []op
	recording bool
	ended     bool
	inPass    bool
	pipeline  *pipeline

	raw       hal.CommandEncoder
	buf       hal.CommandBuffer
	transient []hal.BindGroup
}

func (c *cmdBuffer) Begin() error {
	if c.recording {
		return errors.AssertionFailedf("wgpu: Begin while recording")
	}
	c.ops = nil
	c.recording = true
	c.ended = false
	return nil
}

func (c *cmdBuffer) End() error {
	if !c.recording {
		return errors.AssertionFailedf("wgpu: End while not recording")
	}
	if c.inPass {
		return errors.AssertionFailedf("wgpu: End inside a render pass")
	}
	c.recording = false
	c.ended = true
	return nil
}

func (c *cmdBuffer) Reset() error {
	c.release()
	c.ops = nil
	c.recording = false
	c.ended = false
	c.inPass = false
	c.pipeline = nil
	return nil
}

func (c *cmdBuffer) Destroy() {
	c.release()
	c.ops = nil
}

func (c *cmdBuffer) release() {
	dev := c.gpu.dev
	for _, g := range c.transient {
		dev.DestroyBindGroup(g)
	}
	c.transient = nil
	if c.buf != nil {
		dev.FreeCommandBuffer(c.buf)
		c.buf = nil
	}
	if c.raw != nil {
		c.raw.Destroy()
		c.raw = nil
	}
}

// encode replays the recorded ops into a new HAL command buffer.
// The caller holds gpu.submitMu.
func (c *cmdBuffer) encode() (hal.CommandBuffer, error) {
	c.release()
	raw, err := c.gpu.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "rhi commands"})
	if err != nil {
		return nil, errors.Wrap(halError(err), "wgpu: command encoder")
	}
	c.raw = raw
	if err := raw.BeginEncoding("rhi commands"); err != nil {
		return nil, errors.Wrap(halError(err), "wgpu: begin encoding")
	}
	e := &encoder{gpu: c.gpu, raw: raw, vertex: make(map[int]vertexBinding)}
	for _, o := range c.ops {
		if e.err != nil {
			break
		}
		o(e)
	}
	e.endCompute()
	c.transient = e.transient
	if e.err != nil {
		raw.DiscardEncoding()
		return nil, e.err
	}
	buf, err := raw.EndEncoding()
	if err != nil {
		return nil, errors.Wrap(halError(err), "wgpu: end encoding")
	}
	c.buf = buf
	return buf, nil
}

func (c *cmdBuffer) record(name string, o op) {
	if !c.recording {
		panic(errors.AssertionFailedf("wgpu: %s outside recording", name))
	}
	c.ops = append(c.ops, o)
}

func (c *cmdBuffer) BeginPass(desc driver.PassDesc) {
	if c.inPass {
		panic(errors.AssertionFailedf("wgpu: nested render pass"))
	}
	targets := append([]driver.ColorTarget(nil), desc.Color...)
	var depth *driver.DepthTarget
	if desc.Depth != nil {
		d := *desc.Depth
		depth = &d
	}
	c.record("BeginPass", func(e *encoder) {
		e.endCompute()
		rd := &hal.RenderPassDescriptor{
			Label:            "rhi pass",
			ColorAttachments: make([]hal.RenderPassColorAttachment, len(targets)),
		}
		for i, ct := range targets {
			v, err := ct.Texture.(*texture).view(0)
			if err != nil {
				e.fail(err)
				return
			}
			rd.ColorAttachments[i] = hal.RenderPassColorAttachment{
				View:    v,
				LoadOp:  loadOp(ct.Load),
				StoreOp: gputypes.StoreOpStore,
				ClearValue: gputypes.Color{
					R: float64(ct.Clear[0]),
					G: float64(ct.Clear[1]),
					B: float64(ct.Clear[2]),
					A: float64(ct.Clear[3]),
				},
			}
		}
		if depth != nil {
			t := depth.Texture.(*texture)
			v, err := t.view(0)
			if err != nil {
				e.fail(err)
				return
			}
			ds := &hal.RenderPassDepthStencilAttachment{
				View:            v,
				DepthLoadOp:     loadOp(depth.Load),
				DepthStoreOp:    gputypes.StoreOpStore,
				DepthClearValue: depth.Clear,
			}
			if t.desc.Format == driver.FormatDepth24S8 {
				ds.StencilLoadOp = loadOp(depth.Load)
				ds.StencilStoreOp = gputypes.StoreOpStore
			}
			rd.DepthStencilAttachment = ds
		}
		e.rp = e.raw.BeginRenderPass(rd)
		e.dirty = true
	})
	c.inPass = true
}

func (c *cmdBuffer) EndPass() {
	if !c.inPass {
		panic(errors.AssertionFailedf("wgpu: EndPass without BeginPass"))
	}
	c.record("EndPass", func(e *encoder) {
		e.rp.End()
		e.rp = nil
		e.pipeline = nil
	})
	c.inPass = false
}

func (c *cmdBuffer) SetPipeline(p driver.Pipeline) {
	pl := p.(*pipeline)
	c.pipeline = pl
	c.record("SetPipeline", func(e *encoder) {
		e.pipeline = pl
		e.group = nil
		e.dirty = true
	})
}

// SetBindings snapshots the descriptors now; the bind group is created
// when the buffer is encoded.
func (c *cmdBuffer) SetBindings(layout driver.BindingLayout, res driver.DescriptorHeap, resBase int, smp driver.DescriptorHeap, smpBase int) {
	bl := layout.(*bindingLayout)
	rh, sh := res.(*descriptorHeap), smp.(*descriptorHeap)
	resources := make([]descriptor, len(bl.entries))
	var samplers []descriptor
	for i, entry := range bl.entries {
		resources[i] = rh.get(resBase + i)
		if entry.Kind == driver.BindTexture {
			samplers = append(samplers, sh.get(smpBase+len(samplers)))
		}
	}
	c.record("SetBindings", func(e *encoder) {
		g, err := e.gpu.bindGroup(bl, resources, samplers)
		if err != nil {
			e.fail(err)
			return
		}
		e.transient = append(e.transient, g)
		e.group = g
		e.dirty = true
	})
}

// bindGroup creates a bind group of l from snapshotted descriptors.
func (g *gpu) bindGroup(l *bindingLayout, resources, samplers []descriptor) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, 0, len(resources)+len(samplers))
	s := 0
	for i, entry := range l.entries {
		d := resources[i]
		if !d.set {
			return nil, errors.AssertionFailedf("wgpu: binding %d has no descriptor", entry.Binding)
		}
		switch entry.Kind {
		case driver.BindTexture:
			v, err := d.tex.view(-1)
			if err != nil {
				return nil, err
			}
			sd := samplers[s]
			s++
			smp, err := g.samplers.get(sd.sampler)
			if err != nil {
				return nil, err
			}
			entries = append(entries,
				gputypes.BindGroupEntry{
					Binding:  uint32(entry.Binding),
					Resource: gputypes.TextureViewBinding{TextureView: v.NativeHandle()},
				},
				gputypes.BindGroupEntry{
					Binding:  uint32(entry.Binding + SamplerBindingOffset),
					Resource: gputypes.SamplerBinding{Sampler: smp.NativeHandle()},
				})
		default:
			entries = append(entries, gputypes.BindGroupEntry{
				Binding: uint32(entry.Binding),
				Resource: gputypes.BufferBinding{
					Buffer: d.buf.raw.NativeHandle(),
					Offset: uint64(d.off),
					Size:   uint64(d.size),
				},
			})
		}
	}
	bg, err := g.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "rhi bindings",
		Layout:  l.group,
		Entries: entries,
	})
	if err != nil {
		return nil, errors.Wrap(halError(err), "wgpu: bind group")
	}
	return bg, nil
}

func (c *cmdBuffer) SetVertexBuffer(slot int, buf driver.Buffer, off int64) {
	b := buf.(*buffer)
	c.record("SetVertexBuffer", func(e *encoder) {
		e.vertex[slot] = vertexBinding{buf: b, off: off}
		e.dirty = true
	})
}

func (c *cmdBuffer) SetIndexBuffer(buf driver.Buffer, format driver.IndexFormat, off int64) {
	b := buf.(*buffer)
	c.record("SetIndexBuffer", func(e *encoder) {
		e.index = &indexBinding{buf: b, format: format, off: off}
		e.dirty = true
	})
}

func (c *cmdBuffer) checkDraw(name string) {
	if !c.inPass || c.pipeline == nil || c.pipeline.render == nil {
		panic(errors.AssertionFailedf("wgpu: %s needs a render pass and a graphics pipeline", name))
	}
}

func (c *cmdBuffer) Draw(vertices, instances, firstVertex, firstInstance int) {
	c.checkDraw("Draw")
	c.record("Draw", func(e *encoder) {
		e.flushRender()
		e.rp.Draw(uint32(vertices), uint32(instances), uint32(firstVertex), uint32(firstInstance))
	})
}

func (c *cmdBuffer) DrawIndexed(indices, instances, firstIndex, baseVertex, firstInstance int) {
	c.checkDraw("DrawIndexed")
	c.record("DrawIndexed", func(e *encoder) {
		e.flushRender()
		e.rp.DrawIndexed(uint32(indices), uint32(instances), uint32(firstIndex), int32(baseVertex), uint32(firstInstance))
	})
}

func (c *cmdBuffer) Dispatch(x, y, z int) {
	if c.inPass || c.pipeline == nil || c.pipeline.compute == nil {
		panic(errors.AssertionFailedf("wgpu: Dispatch needs a compute pipeline outside render passes"))
	}
	c.record("Dispatch", func(e *encoder) {
		e.flushCompute()
		e.cp.Dispatch(uint32(x), uint32(y), uint32(z))
	})
}

func (c *cmdBuffer) Transition(tex driver.Texture, mip int, from, to driver.Layout) {
	t := tex.(*texture)
	c.record("Transition", func(e *encoder) {
		e.endCompute()
		e.barrier(t, mip, layoutUsage(from, t.present), layoutUsage(to, t.present))
	})
}

func (c *cmdBuffer) CopyBuffer(dst driver.Buffer, dstOff int64, src driver.Buffer, srcOff, size int64) {
	d, s := dst.(*buffer), src.(*buffer)
	if dstOff+size > d.Size() || srcOff+size > s.Size() {
		panic(errors.AssertionFailedf("wgpu: buffer copy of %d bytes out of range", size))
	}
	c.record("CopyBuffer", func(e *encoder) {
		e.endCompute()
		e.raw.CopyBufferToBuffer(s.raw, d.raw, []hal.BufferCopy{{
			SrcOffset: uint64(srcOff),
			DstOffset: uint64(dstOff),
			Size:      uint64(size),
		}})
	})
}

// region describes level mip of t inside a buffer.
func region(t *texture, mip int, layout driver.BufferLayout) hal.BufferTextureCopy {
	w, h := driver.MipSize(t.desc.Width, t.desc.Height, mip)
	if t.desc.Format.IsCompressed() {
		// Copies of block-compressed levels cover whole blocks.
		w, h = driver.BlockCount(w)*4, driver.BlockCount(h)*4
	}
	return hal.BufferTextureCopy{
		BufferLayout: hal.ImageDataLayout{
			Offset:       uint64(layout.Offset),
			BytesPerRow:  uint32(layout.BytesPerRow),
			RowsPerImage: uint32(layout.Rows),
		},
		TextureBase: hal.ImageCopyTexture{
			Texture:  t.raw,
			MipLevel: uint32(mip),
			Aspect:   t.aspect(),
		},
		Size: hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	}
}

func checkLayout(t *texture, mip int, l driver.BufferLayout, size int64) {
	w, h := driver.MipSize(t.desc.Width, t.desc.Height, mip)
	row, rows := t.desc.Format.RowBytes(w), t.desc.Format.Rows(h)
	if l.BytesPerRow < row || l.Rows < rows {
		panic(errors.AssertionFailedf("wgpu: buffer layout %+v too small for %d rows of %d bytes", l, rows, row))
	}
	if end := l.Offset + int64((rows-1)*l.BytesPerRow+row); end > size {
		panic(errors.AssertionFailedf("wgpu: copy ends at %d past buffer of %d bytes", end, size))
	}
}

func (c *cmdBuffer) CopyBufferToTexture(dst driver.Texture, mip int, src driver.Buffer, layout driver.BufferLayout) {
	t, b := dst.(*texture), src.(*buffer)
	checkLayout(t, mip, layout, b.Size())
	c.record("CopyBufferToTexture", func(e *encoder) {
		e.endCompute()
		e.raw.CopyBufferToTexture(b.raw, t.raw, []hal.BufferTextureCopy{region(t, mip, layout)})
	})
}

func (c *cmdBuffer) CopyTextureToBuffer(dst driver.Buffer, layout driver.BufferLayout, src driver.Texture, mip int) {
	b, t := dst.(*buffer), src.(*texture)
	checkLayout(t, mip, layout, b.Size())
	c.record("CopyTextureToBuffer", func(e *encoder) {
		e.endCompute()
		e.raw.CopyTextureToBuffer(t.raw, b.raw, []hal.BufferTextureCopy{region(t, mip, layout)})
	})
}

func (c *cmdBuffer) Blit(dst driver.Texture, dstMip int, src driver.Texture, srcMip int) {
	d, s := dst.(*texture), src.(*texture)
	if d.desc.Format.IsCompressed() || d.desc.Format.IsDepth() || s.desc.Format.IsDepth() {
		panic(errors.AssertionFailedf("wgpu: blit %s -> %s is not supported", s.desc.Format, d.desc.Format))
	}
	c.record("Blit", func(e *encoder) {
		e.endCompute()
		e.blit(d, dstMip, s, srcMip, gputypes.TextureUsageCopyDst, gputypes.TextureUsageCopySrc)
	})
}

// blit scales level srcMip of s into level dstMip of d. The levels start
// and end in the usages dstUsage and srcUsage. Levels of equal size and
// format are copied.
func (e *encoder) blit(d *texture, dstMip int, s *texture, srcMip int, dstUsage, srcUsage gputypes.TextureUsage) {
	dw, dh := driver.MipSize(d.desc.Width, d.desc.Height, dstMip)
	sw, sh := driver.MipSize(s.desc.Width, s.desc.Height, srcMip)
	if d.format == s.format && dw == sw && dh == sh {
		e.raw.CopyTextureToTexture(s.raw, d.raw, []hal.TextureCopy{{
			SrcBase: hal.ImageCopyTexture{Texture: s.raw, MipLevel: uint32(srcMip), Aspect: gputypes.TextureAspectAll},
			DstBase: hal.ImageCopyTexture{Texture: d.raw, MipLevel: uint32(dstMip), Aspect: gputypes.TextureAspectAll},
			Size:    hal.Extent3D{Width: uint32(dw), Height: uint32(dh), DepthOrArrayLayers: 1},
		}})
		return
	}
	dv, err := d.view(dstMip)
	if err != nil {
		e.fail(err)
		return
	}
	e.barrier(d, dstMip, dstUsage, gputypes.TextureUsageRenderAttachment)
	e.blitPass(dv, d.format, s, srcMip, srcUsage)
	e.barrier(d, dstMip, gputypes.TextureUsageRenderAttachment, dstUsage)
}

// blitPass renders level srcMip of s into the render target dv of format.
// The source level starts and ends in srcUsage.
func (e *encoder) blitPass(dv hal.TextureView, format gputypes.TextureFormat, s *texture, srcMip int, srcUsage gputypes.TextureUsage) {
	bp, err := e.gpu.blits.get(format)
	if err != nil {
		e.fail(err)
		return
	}
	sv, err := s.view(srcMip)
	if err != nil {
		e.fail(err)
		return
	}
	group, err := e.gpu.blits.bindGroup(sv)
	if err != nil {
		e.fail(err)
		return
	}
	e.transient = append(e.transient, group)

	e.barrier(s, srcMip, srcUsage, gputypes.TextureUsageTextureBinding)
	rp := e.raw.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "rhi blit",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    dv,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		}},
	})
	rp.SetPipeline(bp)
	rp.SetBindGroup(0, group, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
	e.barrier(s, srcMip, gputypes.TextureUsageTextureBinding, srcUsage)
}
