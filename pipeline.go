// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// Pipeline is an immutable graphics pipeline description plus a lazily
// filled cache of native pipelines, one per attachment layout it was used
// with.
//
// Thread Safety:
// Instance may be called from any goroutine. The cache lock belongs to the
// pipeline, so lookups on different pipelines never contend.
type Pipeline struct {
	refs
	dev    *Device
	layout *BindingLayout
	vs, fs driver.Shader
	vertex VertexLayout
	state  RenderState

	mu        sync.RWMutex
	instances map[AttachmentLayout]driver.Pipeline

	hits   atomic.Uint64
	misses atomic.Uint64

	destroyed atomic.Bool
}

// PipelineStats reports the state of a pipeline's instance cache.
type PipelineStats struct {
	Instances int
	Hits      uint64
	Misses    uint64
}

// CreatePipeline creates the shader modules of a graphics pipeline. Native
// pipeline state is built per attachment layout by Instance.
func (d *Device) CreatePipeline(state RenderState, vertex VertexLayout, layout *BindingLayout, vs, fs Shader) (*Pipeline, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	invariant(layout != nil, "rhi: pipeline without a binding layout")
	nvs, err := d.newShader(driver.StageVertex, vs)
	if err != nil {
		return nil, err
	}
	var nfs driver.Shader
	if len(fs.Code) > 0 {
		if nfs, err = d.newShader(driver.StageFragment, fs); err != nil {
			nvs.Destroy()
			return nil, err
		}
	}
	layout.retain()
	p := &Pipeline{
		dev:       d,
		layout:    layout,
		vs:        nvs,
		fs:        nfs,
		vertex:    VertexLayout{Stride: vertex.Stride, Attributes: append([]VertexAttribute(nil), vertex.Attributes...)},
		state:     state,
		instances: make(map[AttachmentLayout]driver.Pipeline),
	}
	p.init(p.release)
	return p, nil
}

func (d *Device) newShader(stage driver.ShaderStage, s Shader) (driver.Shader, error) {
	invariant(len(s.Code) > 0, "rhi: empty shader blob")
	native, err := d.gpu.NewShader(driver.ShaderDesc{Stage: stage, Code: s.Code, Entry: s.Entry})
	if err != nil {
		return nil, translate(err, "rhi: create shader")
	}
	return native, nil
}

// Instance returns the native pipeline for attachment layout al, building
// it on first use. Layouts that are Equal share one instance.
func (p *Pipeline) Instance(al AttachmentLayout) (driver.Pipeline, error) {
	invariant(!p.destroyed.Load(), "rhi: use of a destroyed pipeline")
	key := al.key()

	p.mu.RLock()
	inst, ok := p.instances[key]
	p.mu.RUnlock()
	if ok {
		p.hits.Add(1)
		return inst, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if inst, ok := p.instances[key]; ok {
		p.hits.Add(1)
		return inst, nil
	}

	caps := p.dev.caps
	for _, f := range al.colors[:al.n] {
		if !caps.SupportsAttachment(f) {
			return nil, errors.Wrapf(ErrUnsupportedTextureFormat, "rhi: %s color attachment", f)
		}
	}
	depth, hasDepth := al.Depth()
	if hasDepth && !caps.SupportsDepth(depth) {
		return nil, errors.Wrapf(ErrUnsupportedTextureFormat, "rhi: %s depth attachment", depth)
	}

	inst, err := p.dev.gpu.NewPipeline(driver.PipelineDesc{
		Layout:       p.layout.native,
		Vertex:       p.vs,
		Fragment:     p.fs,
		VertexLayout: p.vertex,
		State:        p.state,
		ColorFormats: al.Colors(),
		DepthFormat:  depth,
	})
	if err != nil {
		return nil, translate(err, "rhi: pipeline instance for %s", al)
	}
	p.instances[key] = inst
	p.misses.Add(1)
	Logger().Debug("rhi: pipeline instance", "layout", al.String(), "instances", len(p.instances))
	return inst, nil
}

// Layout returns the binding layout of the pipeline.
func (p *Pipeline) Layout() *BindingLayout { return p.layout }

// Stats returns cache statistics.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.RLock()
	n := len(p.instances)
	p.mu.RUnlock()
	return PipelineStats{Instances: n, Hits: p.hits.Load(), Misses: p.misses.Load()}
}

// Destroy releases the pipeline and its instances once no submission uses
// them.
func (p *Pipeline) Destroy() {
	if p.destroyed.CompareAndSwap(false, true) {
		p.drop()
	}
}

func (p *Pipeline) release() {
	p.mu.Lock()
	for _, inst := range p.instances {
		inst.Destroy()
	}
	p.instances = nil
	p.mu.Unlock()
	p.vs.Destroy()
	if p.fs != nil {
		p.fs.Destroy()
	}
	p.layout.drop()
}

// ComputePipeline is a compute pipeline. It does not depend on attachment
// layouts and is built eagerly.
type ComputePipeline struct {
	refs
	layout    *BindingLayout
	shader    driver.Shader
	native    driver.Pipeline
	destroyed atomic.Bool
}

// CreateComputePipeline creates a compute pipeline from a compute shader.
func (d *Device) CreateComputePipeline(layout *BindingLayout, cs Shader) (*ComputePipeline, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	invariant(layout != nil, "rhi: compute pipeline without a binding layout")
	shader, err := d.newShader(driver.StageCompute, cs)
	if err != nil {
		return nil, err
	}
	native, err := d.gpu.NewComputePipeline(driver.ComputeDesc{Layout: layout.native, Shader: shader})
	if err != nil {
		shader.Destroy()
		return nil, translate(err, "rhi: create compute pipeline")
	}
	layout.retain()
	p := &ComputePipeline{layout: layout, shader: shader, native: native}
	p.init(func() {
		native.Destroy()
		shader.Destroy()
		layout.drop()
	})
	return p, nil
}

// Layout returns the binding layout of the pipeline.
func (p *ComputePipeline) Layout() *BindingLayout { return p.layout }

// Destroy releases the pipeline once no submission uses it.
func (p *ComputePipeline) Destroy() {
	if p.destroyed.CompareAndSwap(false, true) {
		p.drop()
	}
}
