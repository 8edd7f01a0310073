// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

// gpu is an open HAL device.
//
// Thread Safety:
// Object creation is safe from any goroutine. Submissions are serialized
// by submitMu, which also guards the submission index bookkeeping.
type gpu struct {
	info   driver.AdapterInfo
	dev    hal.Device
	queue  hal.Queue
	limits gputypes.Limits

	// Set only when the device was opened by the driver.
	instance hal.Instance
	adapter  hal.Adapter
	owned    bool

	// surfaceFormat is the preferred format of adopted devices.
	surfaceFormat gputypes.TextureFormat

	submitMu  sync.Mutex
	lastIndex uint64

	samplers samplerCache
	blits    blitCache
}

func newGPU(info driver.AdapterInfo, dev hal.Device, queue hal.Queue, limits gputypes.Limits) *gpu {
	g := &gpu{info: info, dev: dev, queue: queue, limits: limits}
	g.samplers.gpu = g
	g.blits.gpu = g
	return g
}

func (g *gpu) Info() driver.AdapterInfo { return g.info }

func (g *gpu) NewBuffer(size int64, usage driver.Usage, heap driver.Heap) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.AssertionFailedf("wgpu: buffer size %d", size)
	}
	raw, err := g.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "rhi buffer",
		// Copies and mappings work in multiples of 4 bytes.
		Size:  uint64(size+3) &^ 3,
		Usage: bufferUsage(usage, heap),
	})
	if err != nil {
		return nil, errors.Wrapf(halError(err), "wgpu: buffer of %d bytes", size)
	}
	return &buffer{gpu: g, raw: raw, size: size, heap: heap}, nil
}

func (g *gpu) NewTexture(desc driver.TextureDesc) (driver.Texture, error) {
	tf, ok := textureFormat(desc.Format)
	if !ok {
		return nil, errors.Wrapf(driver.ErrUnsupportedFormat, "wgpu: texture format %s", desc.Format)
	}
	if desc.Width <= 0 || desc.Height <= 0 || desc.Mips <= 0 {
		return nil, errors.AssertionFailedf("wgpu: invalid texture %+v", desc)
	}
	// Blits are render passes and mip levels are copied in both directions,
	// so color textures get every usage their format allows.
	usage := textureUsage(desc.Usage) | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if !desc.Format.IsDepth() {
		if g.info.Caps.Sampled.Has(desc.Format) {
			usage |= gputypes.TextureUsageTextureBinding
		}
		if g.info.Caps.Attachment.Has(desc.Format) {
			usage |= gputypes.TextureUsageRenderAttachment
		}
	}
	return g.newTexture(desc, tf, usage)
}

func (g *gpu) newTexture(desc driver.TextureDesc, tf gputypes.TextureFormat, usage gputypes.TextureUsage) (*texture, error) {
	raw, err := g.dev.CreateTexture(&hal.TextureDescriptor{
		Label: "rhi texture",
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: uint32(desc.Mips),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        tf,
		Usage:         usage,
	})
	if err != nil {
		return nil, errors.Wrapf(halError(err), "wgpu: texture %dx%d %s", desc.Width, desc.Height, desc.Format)
	}
	return &texture{
		gpu:     g,
		raw:     raw,
		desc:    desc,
		format:  tf,
		present: gputypes.TextureUsageCopySrc,
		views:   make([]hal.TextureView, desc.Mips),
	}, nil
}

func (g *gpu) NewShader(desc driver.ShaderDesc) (driver.Shader, error) {
	return g.compileShader(desc)
}

func (g *gpu) NewBindingLayout(entries []driver.BindingEntry) (driver.BindingLayout, error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b driver.BindingEntry) int { return a.Binding - b.Binding })

	used := make(map[int]bool, len(sorted))
	claim := func(binding int) error {
		if used[binding] {
			return errors.AssertionFailedf("wgpu: binding %d is used twice", binding)
		}
		used[binding] = true
		return nil
	}
	var layout []gputypes.BindGroupLayoutEntry
	for _, e := range sorted {
		if err := claim(e.Binding); err != nil {
			return nil, err
		}
		entry := gputypes.BindGroupLayoutEntry{
			Binding:    uint32(e.Binding),
			Visibility: shaderStages(e.Stages),
		}
		switch e.Kind {
		case driver.BindUniformBuffer:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case driver.BindStorageBuffer:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		case driver.BindTexture:
			if e.Binding >= SamplerBindingOffset {
				return nil, errors.AssertionFailedf("wgpu: texture binding %d must be below %d",
					e.Binding, SamplerBindingOffset)
			}
			if err := claim(e.Binding + SamplerBindingOffset); err != nil {
				return nil, err
			}
			entry.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
			layout = append(layout, entry, gputypes.BindGroupLayoutEntry{
				Binding:    uint32(e.Binding + SamplerBindingOffset),
				Visibility: entry.Visibility,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			})
			continue
		}
		layout = append(layout, entry)
	}

	bgl, err := g.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "rhi bindings",
		Entries: layout,
	})
	if err != nil {
		return nil, errors.Wrap(halError(err), "wgpu: bind group layout")
	}
	pl, err := g.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "rhi pipeline layout",
		BindGroupLayouts: []hal.BindGroupLayout{bgl},
	})
	if err != nil {
		g.dev.DestroyBindGroupLayout(bgl)
		return nil, errors.Wrap(halError(err), "wgpu: pipeline layout")
	}
	return &bindingLayout{gpu: g, entries: sorted, group: bgl, pipeline: pl}, nil
}

func (g *gpu) NewPipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	bl, ok := desc.Layout.(*bindingLayout)
	vs, vok := desc.Vertex.(*shader)
	if !ok || !vok {
		return nil, errors.AssertionFailedf("wgpu: pipeline without vertex shader or layout")
	}

	var buffers []gputypes.VertexBufferLayout
	if len(desc.VertexLayout.Attributes) > 0 {
		attrs := make([]gputypes.VertexAttribute, len(desc.VertexLayout.Attributes))
		for i, a := range desc.VertexLayout.Attributes {
			attrs[i] = gputypes.VertexAttribute{
				Format:         vertexFormat(a.Format),
				Offset:         uint64(a.Offset),
				ShaderLocation: uint32(a.Location),
			}
		}
		buffers = []gputypes.VertexBufferLayout{{
			ArrayStride: uint64(desc.VertexLayout.Stride),
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  attrs,
		}}
	}

	pd := &hal.RenderPipelineDescriptor{
		Label:  "rhi pipeline",
		Layout: bl.pipeline,
		Vertex: hal.VertexState{
			Module:     vs.module,
			EntryPoint: vs.entry,
			Buffers:    buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  topology(desc.State.Topology),
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  cullMode(desc.State.Cull),
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	}
	if desc.DepthFormat != driver.FormatUndefined {
		tf, ok := textureFormat(desc.DepthFormat)
		if !ok {
			return nil, errors.Wrapf(driver.ErrUnsupportedFormat, "wgpu: depth target %s", desc.DepthFormat)
		}
		always := hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways}
		pd.DepthStencil = &hal.DepthStencilState{
			Format:            tf,
			DepthWriteEnabled: desc.State.DepthWrite,
			DepthCompare:      compareFunction(desc.State.DepthTest),
			StencilFront:      always,
			StencilBack:       always,
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		}
	}
	if fs, ok := desc.Fragment.(*shader); ok {
		targets := make([]gputypes.ColorTargetState, len(desc.ColorFormats))
		for i, f := range desc.ColorFormats {
			tf, ok := textureFormat(f)
			if !ok || !g.info.Caps.Attachment.Has(f) {
				return nil, errors.Wrapf(driver.ErrUnsupportedFormat, "wgpu: color target %s", f)
			}
			targets[i] = gputypes.ColorTargetState{
				Format:    tf,
				Blend:     blendState(desc.State.Blend),
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}
		pd.Fragment = &hal.FragmentState{Module: fs.module, EntryPoint: fs.entry, Targets: targets}
	}

	raw, err := g.dev.CreateRenderPipeline(pd)
	if err != nil {
		return nil, errors.Wrap(halError(err), "wgpu: render pipeline")
	}
	return &pipeline{gpu: g, layout: bl, render: raw}, nil
}

func (g *gpu) NewComputePipeline(desc driver.ComputeDesc) (driver.Pipeline, error) {
	bl, ok := desc.Layout.(*bindingLayout)
	cs, cok := desc.Shader.(*shader)
	if !ok || !cok {
		return nil, errors.AssertionFailedf("wgpu: compute pipeline without shader or layout")
	}
	raw, err := g.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "rhi compute pipeline",
		Layout: bl.pipeline,
		Compute: hal.ComputeState{
			Module:     cs.module,
			EntryPoint: cs.entry,
		},
	})
	if err != nil {
		return nil, errors.Wrap(halError(err), "wgpu: compute pipeline")
	}
	return &pipeline{gpu: g, layout: bl, compute: raw}, nil
}

func (g *gpu) NewDescriptorHeap(kind driver.HeapKind, n int) (driver.DescriptorHeap, error) {
	return &descriptorHeap{kind: kind, slots: make([]descriptor, n)}, nil
}

func (g *gpu) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &cmdBuffer{gpu: g}, nil
}

func (g *gpu) NewFence() (driver.Fence, error) { return &fence{gpu: g}, nil }

func (g *gpu) NewSemaphore() (driver.Semaphore, error) { return semaphore{}, nil }

func (g *gpu) Submit(cmds []driver.CmdBuffer, _, _ []driver.Semaphore, fnc driver.Fence, value uint64) error {
	// One queue: semaphores need no work beyond submission order.
	g.submitMu.Lock()
	defer g.submitMu.Unlock()

	raws := make([]hal.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		cb, ok := c.(*cmdBuffer)
		if !ok || cb.gpu != g {
			return errors.Wrap(driver.ErrFatal, "wgpu: foreign command buffer")
		}
		if cb.recording || !cb.ended {
			return errors.Wrap(driver.ErrFatal, "wgpu: command buffer not executable")
		}
		raw, err := cb.encode()
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}
	if len(raws) > 0 {
		idx, err := g.queue.Submit(raws)
		if err != nil {
			return errors.Wrap(halError(err), "wgpu: submit")
		}
		g.lastIndex = idx
	}
	if f, ok := fnc.(*fence); ok {
		f.push(value, g.lastIndex)
	}
	return nil
}

func (g *gpu) WaitIdle() error {
	if err := g.dev.WaitIdle(); err != nil {
		return errors.Wrap(halError(err), "wgpu: wait idle")
	}
	return nil
}

func (g *gpu) Close() {
	g.blits.destroy()
	g.samplers.destroy()
	if !g.owned {
		return
	}
	g.dev.Destroy()
	g.adapter.Destroy()
	g.instance.Destroy()
	slogger().Debug("wgpu: device closed", "adapter", g.info.Name)
}
