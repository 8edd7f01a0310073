// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// op is one recorded command. Ops run on the queue goroutine.
type op func()

// cmdBuffer records ops.
//
// State machine:
//
//	idle      -> Begin() -> recording
//	recording -> End()   -> ended
//	ended     -> Reset() -> idle
type cmdBuffer struct {
	gpu       *gpu
	ops       []op
	recording bool
	ended     bool
	inPass    bool
	pipeline  *pipeline
}

func (c *cmdBuffer) Begin() error {
	if c.recording {
		return errors.AssertionFailedf("soft: Begin while recording")
	}
	c.ops = nil
	c.recording = true
	c.ended = false
	return nil
}

func (c *cmdBuffer) End() error {
	if !c.recording {
		return errors.AssertionFailedf("soft: End while not recording")
	}
	if c.inPass {
		return errors.AssertionFailedf("soft: End inside a render pass")
	}
	c.recording = false
	c.ended = true
	return nil
}

func (c *cmdBuffer) Reset() error {
	c.ops = nil
	c.recording = false
	c.ended = false
	c.inPass = false
	c.pipeline = nil
	return nil
}

func (c *cmdBuffer) Destroy() { c.ops = nil }

func (c *cmdBuffer) record(name string, o op) {
	if !c.recording {
		panic(errors.AssertionFailedf("soft: %s outside recording", name))
	}
	c.ops = append(c.ops, o)
}

func (c *cmdBuffer) BeginPass(desc driver.PassDesc) {
	if c.inPass {
		panic(errors.AssertionFailedf("soft: nested render pass"))
	}
	g := c.gpu
	targets := append([]driver.ColorTarget(nil), desc.Color...)
	var depth *driver.DepthTarget
	if desc.Depth != nil {
		d := *desc.Depth
		depth = &d
	}
	c.record("BeginPass", func() {
		g.passes.Add(1)
		for _, ct := range targets {
			if ct.Load != driver.LoadClear {
				continue
			}
			t := ct.Texture.(*texture)
			clearLevel(t, 0, encodeColor(t.desc.Format, ct.Clear))
		}
		if depth != nil && depth.Load == driver.LoadClear {
			t := depth.Texture.(*texture)
			clearLevel(t, 0, encodeDepth(t.desc.Format, depth.Clear))
		}
	})
	c.inPass = true
}

func (c *cmdBuffer) EndPass() {
	if !c.inPass {
		panic(errors.AssertionFailedf("soft: EndPass without BeginPass"))
	}
	c.record("EndPass", func() {})
	c.inPass = false
}

func (c *cmdBuffer) SetPipeline(p driver.Pipeline) {
	c.pipeline = p.(*pipeline)
	c.record("SetPipeline", func() {})
}

func (c *cmdBuffer) SetBindings(driver.BindingLayout, driver.DescriptorHeap, int, driver.DescriptorHeap, int) {
	c.record("SetBindings", func() {})
}

func (c *cmdBuffer) SetVertexBuffer(int, driver.Buffer, int64) {
	c.record("SetVertexBuffer", func() {})
}

func (c *cmdBuffer) SetIndexBuffer(driver.Buffer, driver.IndexFormat, int64) {
	c.record("SetIndexBuffer", func() {})
}

func (c *cmdBuffer) Draw(vertices, instances, _, _ int) {
	c.checkDraw("Draw")
	g := c.gpu
	c.record("Draw", func() {
		if vertices > 0 && instances > 0 {
			g.draws.Add(1)
		}
	})
}

func (c *cmdBuffer) DrawIndexed(indices, instances, _, _, _ int) {
	c.checkDraw("DrawIndexed")
	g := c.gpu
	c.record("DrawIndexed", func() {
		if indices > 0 && instances > 0 {
			g.draws.Add(1)
		}
	})
}

func (c *cmdBuffer) checkDraw(name string) {
	if !c.inPass || c.pipeline == nil || c.pipeline.graphics == nil {
		panic(errors.AssertionFailedf("soft: %s needs a render pass and a graphics pipeline", name))
	}
}

func (c *cmdBuffer) Dispatch(x, y, z int) {
	if c.inPass || c.pipeline == nil || c.pipeline.compute == nil {
		panic(errors.AssertionFailedf("soft: Dispatch needs a compute pipeline outside render passes"))
	}
	g := c.gpu
	c.record("Dispatch", func() {
		if x > 0 && y > 0 && z > 0 {
			g.dispatches.Add(1)
		}
	})
}

func (c *cmdBuffer) Transition(tex driver.Texture, mip int, _, to driver.Layout) {
	t := tex.(*texture)
	c.record("Transition", func() {
		if t.layout == nil {
			t.layout = make([]driver.Layout, t.desc.Mips)
		}
		t.layout[mip] = to
	})
}

func (c *cmdBuffer) CopyBuffer(dst driver.Buffer, dstOff int64, src driver.Buffer, srcOff, size int64) {
	d, s := dst.(*buffer), src.(*buffer)
	if dstOff+size > d.Size() || srcOff+size > s.Size() {
		panic(errors.AssertionFailedf("soft: buffer copy of %d bytes out of range", size))
	}
	g := c.gpu
	c.record("CopyBuffer", func() {
		g.copies.Add(1)
		copy(d.data[dstOff:dstOff+size], s.data[srcOff:srcOff+size])
	})
}

func (c *cmdBuffer) CopyBufferToTexture(dst driver.Texture, mip int, src driver.Buffer, layout driver.BufferLayout) {
	t, b := dst.(*texture), src.(*buffer)
	_, w, h := t.level(mip)
	row := t.desc.Format.RowBytes(w)
	rows := t.desc.Format.Rows(h)
	checkLayout(layout, row, rows, b.Size())
	g := c.gpu
	c.record("CopyBufferToTexture", func() {
		g.copies.Add(1)
		lvl := t.levels[mip]
		for r := 0; r < rows; r++ {
			so := layout.Offset + int64(r*layout.BytesPerRow)
			copy(lvl[r*row:(r+1)*row], b.data[so:so+int64(row)])
		}
	})
}

func (c *cmdBuffer) CopyTextureToBuffer(dst driver.Buffer, layout driver.BufferLayout, src driver.Texture, mip int) {
	b, t := dst.(*buffer), src.(*texture)
	_, w, h := t.level(mip)
	row := t.desc.Format.RowBytes(w)
	rows := t.desc.Format.Rows(h)
	checkLayout(layout, row, rows, b.Size())
	g := c.gpu
	c.record("CopyTextureToBuffer", func() {
		g.copies.Add(1)
		lvl := t.levels[mip]
		for r := 0; r < rows; r++ {
			do := layout.Offset + int64(r*layout.BytesPerRow)
			copy(b.data[do:do+int64(row)], lvl[r*row:(r+1)*row])
		}
	})
}

func checkLayout(l driver.BufferLayout, row, rows int, size int64) {
	if l.BytesPerRow < row || l.Rows < rows {
		panic(errors.AssertionFailedf("soft: buffer layout %+v too small for %d rows of %d bytes", l, rows, row))
	}
	if end := l.Offset + int64((rows-1)*l.BytesPerRow+row); end > size {
		panic(errors.AssertionFailedf("soft: copy ends at %d past buffer of %d bytes", end, size))
	}
}

func (c *cmdBuffer) Blit(dst driver.Texture, dstMip int, src driver.Texture, srcMip int) {
	d, s := dst.(*texture), src.(*texture)
	if !canEncode(d.desc.Format) || d.desc.Format.IsDepth() || s.desc.Format.IsDepth() {
		panic(errors.AssertionFailedf("soft: blit %s -> %s is not supported", s.desc.Format, d.desc.Format))
	}
	g := c.gpu
	c.record("Blit", func() {
		g.blits.Add(1)
		blit(d, dstMip, s, srcMip)
	})
}
