// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/rhi/driver"
)

// CmdState is the state of a command buffer.
type CmdState uint8

// Command buffer states.
//
//	Initial    -> Begin()  -> Recording
//	Recording  -> End()    -> Executable
//	Executable -> Submit() -> Submitted
//	Submitted  -> (GPU)    -> Completed
//	Completed  -> Reset()  -> Initial
//	Executable -> Reset()  -> Initial
const (
	CmdInitial CmdState = iota
	CmdRecording
	CmdExecutable
	CmdSubmitted
	CmdCompleted
)

func (s CmdState) String() string {
	switch s {
	case CmdInitial:
		return "Initial"
	case CmdRecording:
		return "Recording"
	case CmdExecutable:
		return "Executable"
	case CmdSubmitted:
		return "Submitted"
	case CmdCompleted:
		return "Completed"
	}
	return fmt.Sprintf("CmdState(%d)", uint8(s))
}

// ClearValue selects how a pass attachment is loaded.
type ClearValue struct {
	Load  LoadOp
	Color [4]float32
	Depth float32
}

// ClearColor clears a color attachment to (r, g, b, a).
func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Load: LoadClear, Color: [4]float32{r, g, b, a}}
}

// ClearDepth clears a depth attachment to d.
func ClearDepth(d float32) ClearValue {
	return ClearValue{Load: LoadClear, Depth: d}
}

// KeepContents preserves the previous contents of an attachment.
func KeepContents() ClearValue { return ClearValue{Load: LoadKeep} }

// CommandBuffer records GPU work.
//
// A command buffer is recorded by one goroutine at a time. Every object a
// command references is kept alive until the submission retires.
type CommandBuffer struct {
	refs
	dev    *Device
	native driver.CmdBuffer
	state  CmdState
	value  atomic.Uint64

	keep    retainList
	held    map[retainer]struct{}
	tables  []*BindingTable
	layouts map[*Texture]TextureLayout

	pass     *Framebuffer
	pipeline *Pipeline
	compute  *ComputePipeline

	destroyed atomic.Bool
}

// NewCommandBuffer creates a command buffer in the Initial state.
func (d *Device) NewCommandBuffer() (*CommandBuffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	native, err := d.gpu.NewCmdBuffer()
	if err != nil {
		return nil, translate(err, "rhi: create command buffer")
	}
	c := &CommandBuffer{dev: d, native: native}
	c.init(native.Destroy)
	return c, nil
}

// State returns the current state.
func (c *CommandBuffer) State() CmdState {
	if c.state == CmdSubmitted && c.dev.timeline.Completed() >= c.value.Load() {
		return CmdCompleted
	}
	return c.state
}

// Begin starts recording.
func (c *CommandBuffer) Begin() error {
	invariant(c.state == CmdInitial, "rhi: Begin of a %s command buffer", c.State())
	if err := c.native.Begin(); err != nil {
		return translate(err, "rhi: begin command buffer")
	}
	c.held = make(map[retainer]struct{})
	c.layouts = make(map[*Texture]TextureLayout)
	c.state = CmdRecording
	return nil
}

// End finishes recording. Textures moved out of their resting layout are
// moved back.
func (c *CommandBuffer) End() error {
	c.checkRecording("End")
	invariant(c.pass == nil, "rhi: End inside a render pass")
	for t, l := range c.layouts {
		if l != t.resting {
			transitionAll(c.native, t, l, t.resting)
		}
	}
	c.layouts = nil
	if err := c.native.End(); err != nil {
		return translate(err, "rhi: end command buffer")
	}
	c.state = CmdExecutable
	return nil
}

// Reset returns the command buffer to the Initial state. Resetting a
// buffer whose submission has not completed is a programmer error.
func (c *CommandBuffer) Reset() error {
	st := c.State()
	invariant(st != CmdSubmitted, "rhi: Reset of a command buffer still in flight")
	if err := c.native.Reset(); err != nil {
		return translate(err, "rhi: reset command buffer")
	}
	c.keep.drop()
	c.keep, c.held, c.tables, c.layouts = nil, nil, nil, nil
	c.pass, c.pipeline, c.compute = nil, nil, nil
	c.value.Store(0)
	c.state = CmdInitial
	return nil
}

// Destroy releases the command buffer once its submission retired.
func (c *CommandBuffer) Destroy() {
	if !c.destroyed.CompareAndSwap(false, true) {
		return
	}
	if c.state != CmdSubmitted {
		c.keep.drop()
		c.keep = nil
	}
	c.drop()
}

func (c *CommandBuffer) checkRecording(op string) {
	invariant(c.state == CmdRecording, "rhi: %s on a %s command buffer", op, c.state)
}

func (c *CommandBuffer) checkOutsidePass(op string) {
	c.checkRecording(op)
	invariant(c.pass == nil, "rhi: %s inside a render pass", op)
}

// hold keeps r alive until the submission retires.
func (c *CommandBuffer) hold(r retainer) {
	if _, ok := c.held[r]; ok {
		return
	}
	c.held[r] = struct{}{}
	c.keep.add(r)
}

// layout returns the layout t is in at this point of the recording.
func (c *CommandBuffer) layout(t *Texture) TextureLayout {
	if l, ok := c.layouts[t]; ok {
		return l
	}
	return t.resting
}

// use moves every level of t into layout to.
func (c *CommandBuffer) use(t *Texture, to TextureLayout) {
	t.checkAlive()
	invariant(t.dev == c.dev, "rhi: texture of another device")
	c.hold(t)
	if from := c.layout(t); from != to {
		transitionAll(c.native, t, from, to)
	}
	c.layouts[t] = to
}

func (c *CommandBuffer) useBuffer(b *Buffer) {
	b.checkAlive()
	invariant(b.dev == c.dev, "rhi: buffer of another device")
	c.hold(b)
}

func transitionAll(cmd driver.CmdBuffer, t *Texture, from, to TextureLayout) {
	for mip := 0; mip < t.desc.Mips; mip++ {
		cmd.Transition(t.native, mip, from, to)
	}
}

// BeginPass starts a render pass on fb. clears apply to the color
// attachments in order and then to the depth attachment. Color attachments
// without a clear value keep their contents; depth is cleared to 1.
func (c *CommandBuffer) BeginPass(fb *Framebuffer, clears ...ClearValue) {
	c.checkOutsidePass("BeginPass")
	invariant(fb.dev == c.dev, "rhi: framebuffer of another device")
	c.hold(fb)

	desc := driver.PassDesc{Color: make([]driver.ColorTarget, len(fb.colors))}
	for i, t := range fb.colors {
		c.use(t, LayoutColorAttach)
		cv := KeepContents()
		if i < len(clears) {
			cv = clears[i]
		}
		desc.Color[i] = driver.ColorTarget{Texture: t.native, Load: cv.Load, Clear: cv.Color}
	}
	if fb.depth != nil {
		c.use(fb.depth, LayoutDepthAttach)
		cv := ClearDepth(1)
		if i := len(fb.colors); i < len(clears) {
			cv = clears[i]
		}
		desc.Depth = &driver.DepthTarget{Texture: fb.depth.native, Load: cv.Load, Clear: cv.Depth}
	}
	c.native.BeginPass(desc)
	c.pass = fb
}

// EndPass ends the current render pass.
func (c *CommandBuffer) EndPass() {
	c.checkRecording("EndPass")
	invariant(c.pass != nil, "rhi: EndPass without BeginPass")
	c.native.EndPass()
	c.pass = nil
	c.pipeline = nil
}

// SetPipeline binds p for the current pass, creating the native instance
// for the pass's attachment layout on first use.
func (c *CommandBuffer) SetPipeline(p *Pipeline) error {
	c.checkRecording("SetPipeline")
	invariant(c.pass != nil, "rhi: SetPipeline outside a render pass")
	inst, err := p.Instance(c.pass.layout)
	if err != nil {
		return err
	}
	c.hold(p)
	c.native.SetPipeline(inst)
	c.pipeline = p
	return nil
}

// SetComputePipeline binds a compute pipeline outside render passes.
func (c *CommandBuffer) SetComputePipeline(p *ComputePipeline) {
	c.checkOutsidePass("SetComputePipeline")
	c.hold(p)
	c.native.SetPipeline(p.native)
	c.compute = p
}

// SetBindings binds t to the current pipeline. Textures in t must be in
// their resting layout.
func (c *CommandBuffer) SetBindings(t *BindingTable) {
	c.checkRecording("SetBindings")
	var layout *BindingLayout
	switch {
	case c.pass != nil && c.pipeline != nil:
		layout = c.pipeline.layout
	case c.pass == nil && c.compute != nil:
		layout = c.compute.layout
	default:
		invariant(false, "rhi: SetBindings without a pipeline")
	}
	invariant(t.layout == layout, "rhi: binding table layout does not match the pipeline")
	for _, tex := range t.textures() {
		invariant(c.layout(tex) == LayoutSampler, "rhi: sampled texture is in layout %s", c.layout(tex))
		c.hold(tex)
	}
	if _, ok := c.held[t]; !ok {
		c.tables = append(c.tables, t)
	}
	c.hold(t)
	c.native.SetBindings(layout.native, c.dev.resHeap, t.resBase, c.dev.smpHeap, t.smpBase)
}

// SetVertexBuffer binds b to vertex buffer slot.
func (c *CommandBuffer) SetVertexBuffer(slot int, b *Buffer, off int64) {
	c.checkRecording("SetVertexBuffer")
	c.useBuffer(b)
	c.native.SetVertexBuffer(slot, b.native, off)
}

// SetIndexBuffer binds b as the index buffer.
func (c *CommandBuffer) SetIndexBuffer(b *Buffer, format IndexFormat, off int64) {
	c.checkRecording("SetIndexBuffer")
	c.useBuffer(b)
	c.native.SetIndexBuffer(b.native, format, off)
}

// Draw draws non-indexed primitives with the current pipeline.
func (c *CommandBuffer) Draw(vertices, instances, firstVertex, firstInstance int) {
	c.checkRecording("Draw")
	invariant(c.pipeline != nil, "rhi: Draw without a pipeline")
	c.native.Draw(vertices, instances, firstVertex, firstInstance)
}

// DrawIndexed draws indexed primitives with the current pipeline.
func (c *CommandBuffer) DrawIndexed(indices, instances, firstIndex, baseVertex, firstInstance int) {
	c.checkRecording("DrawIndexed")
	invariant(c.pipeline != nil, "rhi: DrawIndexed without a pipeline")
	c.native.DrawIndexed(indices, instances, firstIndex, baseVertex, firstInstance)
}

// Dispatch runs the current compute pipeline.
func (c *CommandBuffer) Dispatch(x, y, z int) {
	c.checkOutsidePass("Dispatch")
	invariant(c.compute != nil, "rhi: Dispatch without a compute pipeline")
	c.native.Dispatch(x, y, z)
}

// Transition moves every level of t into layout to. The texture returns to
// its resting layout at End.
func (c *CommandBuffer) Transition(t *Texture, to TextureLayout) {
	c.checkOutsidePass("Transition")
	c.use(t, to)
}

// CopyBuffer copies size bytes from src at srcOff to dst at dstOff.
func (c *CommandBuffer) CopyBuffer(dst *Buffer, dstOff int64, src *Buffer, srcOff, size int64) {
	c.checkOutsidePass("CopyBuffer")
	invariant(dstOff >= 0 && srcOff >= 0 && dstOff+size <= dst.size && srcOff+size <= src.size,
		"rhi: buffer copy of %d bytes out of range", size)
	c.useBuffer(dst)
	c.useBuffer(src)
	c.native.CopyBuffer(dst.native, dstOff, src.native, srcOff, size)
}

// CopyBufferToTexture copies level mip of dst from src.
func (c *CommandBuffer) CopyBufferToTexture(dst *Texture, mip int, src *Buffer, layout BufferLayout) {
	c.checkOutsidePass("CopyBufferToTexture")
	invariant(mip >= 0 && mip < dst.desc.Mips, "rhi: mip %d of %d", mip, dst.desc.Mips)
	c.useBuffer(src)
	c.use(dst, LayoutTransferDst)
	c.native.CopyBufferToTexture(dst.native, mip, src.native, layout)
}

// CopyTextureToBuffer copies level mip of src into dst.
func (c *CommandBuffer) CopyTextureToBuffer(dst *Buffer, layout BufferLayout, src *Texture, mip int) {
	c.checkOutsidePass("CopyTextureToBuffer")
	invariant(mip >= 0 && mip < src.desc.Mips, "rhi: mip %d of %d", mip, src.desc.Mips)
	c.useBuffer(dst)
	c.use(src, LayoutTransferSrc)
	c.native.CopyTextureToBuffer(dst.native, layout, src.native, mip)
}

// Blit scales level srcMip of src into level dstMip of dst with linear
// filtering, converting formats. Compressed sources are decoded.
func (c *CommandBuffer) Blit(dst *Texture, dstMip int, src *Texture, srcMip int) {
	c.checkOutsidePass("Blit")
	invariant(dstMip >= 0 && dstMip < dst.desc.Mips && srcMip >= 0 && srcMip < src.desc.Mips,
		"rhi: blit between mips %d and %d out of range", srcMip, dstMip)
	invariant(!dst.desc.Format.IsCompressed(), "rhi: blit into compressed format %s", dst.desc.Format)
	if dst == src {
		invariant(dstMip != srcMip, "rhi: blit of mip %d onto itself", dstMip)
		c.use(dst, c.layout(dst))
		cur := c.layout(dst)
		c.native.Transition(dst.native, srcMip, cur, LayoutTransferSrc)
		c.native.Transition(dst.native, dstMip, cur, LayoutTransferDst)
		c.native.Blit(dst.native, dstMip, src.native, srcMip)
		c.native.Transition(dst.native, srcMip, LayoutTransferSrc, cur)
		c.native.Transition(dst.native, dstMip, LayoutTransferDst, cur)
		return
	}
	c.use(src, LayoutTransferSrc)
	c.use(dst, LayoutTransferDst)
	c.native.Blit(dst.native, dstMip, src.native, srcMip)
}

// GenerateMips fills levels 1.. of t from level 0 by successive blits.
func (c *CommandBuffer) GenerateMips(t *Texture) {
	c.checkOutsidePass("GenerateMips")
	if t.desc.Mips < 2 {
		return
	}
	c.use(t, c.layout(t))
	cur := c.layout(t)
	recordMips(c.native, t.native, t.desc.Mips, cur, cur, cur)
}

// recordMips blits every level from the one above it. Level 0 starts in
// base, the other levels in others; all levels end in to.
func recordMips(cmd driver.CmdBuffer, tex driver.Texture, mips int, base, others, to TextureLayout) {
	if base != LayoutTransferSrc {
		cmd.Transition(tex, 0, base, LayoutTransferSrc)
	}
	for i := 1; i < mips; i++ {
		if others != LayoutTransferDst {
			cmd.Transition(tex, i, others, LayoutTransferDst)
		}
		cmd.Blit(tex, i, tex, i-1)
		cmd.Transition(tex, i, LayoutTransferDst, LayoutTransferSrc)
	}
	if to != LayoutTransferSrc {
		for i := 0; i < mips; i++ {
			cmd.Transition(tex, i, LayoutTransferSrc, to)
		}
	}
}
