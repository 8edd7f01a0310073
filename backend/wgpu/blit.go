// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	_ "embed"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/blit.wgsl
var blitShaderSource string

// blitCache holds the blit pipelines of a device, one per target format.
// The shader, layouts and sampler are shared and created on first use.
type blitCache struct {
	gpu *gpu

	mu        sync.Mutex
	module    hal.ShaderModule
	group     hal.BindGroupLayout
	layout    hal.PipelineLayout
	sampler   hal.Sampler
	pipelines map[gputypes.TextureFormat]hal.RenderPipeline
}

func (c *blitCache) init() error {
	if c.module != nil {
		return nil
	}
	dev := c.gpu.dev
	module, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "rhi blit",
		Source: hal.ShaderSource{WGSL: blitShaderSource},
	})
	if err != nil {
		return errors.Wrap(halError(err), "wgpu: blit shader")
	}
	group, err := dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "rhi blit",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		dev.DestroyShaderModule(module)
		return errors.Wrap(halError(err), "wgpu: blit bind group layout")
	}
	layout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "rhi blit",
		BindGroupLayouts: []hal.BindGroupLayout{group},
	})
	if err != nil {
		dev.DestroyBindGroupLayout(group)
		dev.DestroyShaderModule(module)
		return errors.Wrap(halError(err), "wgpu: blit pipeline layout")
	}
	sampler, err := dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        "rhi blit",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		Anisotropy:   1,
	})
	if err != nil {
		dev.DestroyPipelineLayout(layout)
		dev.DestroyBindGroupLayout(group)
		dev.DestroyShaderModule(module)
		return errors.Wrap(halError(err), "wgpu: blit sampler")
	}
	c.module, c.group, c.layout, c.sampler = module, group, layout, sampler
	c.pipelines = make(map[gputypes.TextureFormat]hal.RenderPipeline)
	return nil
}

// get returns the pipeline rendering into format.
func (c *blitCache) get(format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.init(); err != nil {
		return nil, err
	}
	if p, ok := c.pipelines[format]; ok {
		return p, nil
	}
	p, err := c.gpu.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "rhi blit",
		Layout: c.layout,
		Vertex: hal.VertexState{Module: c.module, EntryPoint: "vs_main"},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     c.module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(halError(err), "wgpu: blit pipeline for %v", format)
	}
	c.pipelines[format] = p
	return p, nil
}

// bindGroup binds src with the linear sampler. get must have succeeded.
func (c *blitCache) bindGroup(src hal.TextureView) (hal.BindGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, err := c.gpu.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "rhi blit",
		Layout: c.group,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: src.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: c.sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, errors.Wrap(halError(err), "wgpu: blit bind group")
	}
	return g, nil
}

func (c *blitCache) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.module == nil {
		return
	}
	dev := c.gpu.dev
	for _, p := range c.pipelines {
		dev.DestroyRenderPipeline(p)
	}
	dev.DestroySampler(c.sampler)
	dev.DestroyPipelineLayout(c.layout)
	dev.DestroyBindGroupLayout(c.group)
	dev.DestroyShaderModule(c.module)
	c.module, c.pipelines = nil, nil
}
