// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "fmt"

// Usage is a mask of resource usages.
type Usage uint32

// Resource usages.
const (
	UsageCopySrc Usage = 1 << iota
	UsageCopyDst
	UsageUniform
	UsageVertex
	UsageIndex
	UsageStorage
	UsageSampled
	UsageColorAttachment
	UsageDepthAttachment
)

// Has reports whether every bit of x is set in u.
func (u Usage) Has(x Usage) bool { return u&x == x }

// Heap is the memory class a buffer lives in.
type Heap uint8

// Memory classes. Values match the native heap numbering of the
// explicit backends.
const (
	HeapStatic   Heap = 0 // device-local
	HeapUpload   Heap = 1 // CPU to GPU
	HeapReadback Heap = 3 // GPU to CPU
)

func (h Heap) String() string {
	switch h {
	case HeapStatic:
		return "Static"
	case HeapUpload:
		return "Upload"
	case HeapReadback:
		return "Readback"
	}
	return fmt.Sprintf("Heap(%d)", uint8(h))
}

// HostVisible reports whether memory in h can be accessed by the CPU.
func (h Heap) HostVisible() bool { return h == HeapUpload || h == HeapReadback }

// Layout is the state a texture is in with respect to the GPU.
type Layout uint8

// Texture layouts.
const (
	LayoutUndefined Layout = iota
	LayoutSampler
	LayoutColorAttach
	LayoutDepthAttach
	LayoutPresent
	LayoutTransferSrc
	LayoutTransferDst
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutSampler:
		return "Sampler"
	case LayoutColorAttach:
		return "ColorAttach"
	case LayoutDepthAttach:
		return "DepthAttach"
	case LayoutPresent:
		return "Present"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// AdapterType classifies adapters.
type AdapterType uint8

// Adapter types.
const (
	AdapterOther AdapterType = iota
	AdapterDiscrete
	AdapterIntegrated
	AdapterVirtual
	AdapterCPU
)

func (t AdapterType) String() string {
	switch t {
	case AdapterDiscrete:
		return "Discrete"
	case AdapterIntegrated:
		return "Integrated"
	case AdapterVirtual:
		return "Virtual"
	case AdapterCPU:
		return "CPU"
	}
	return "Other"
}

// Caps is the capability table of an adapter.
// It is computed once when the adapter is enumerated and never changes.
type Caps struct {
	Sampled    FormatSet
	Attachment FormatSet
	Depth      FormatSet

	MaxTextureSize      int
	MaxColorAttachments int

	// CopyPitchAlign is the required row pitch alignment of buffer-texture
	// copies. CopyPlacementAlign is the required offset alignment of each
	// subresource inside the buffer.
	CopyPitchAlign     int
	CopyPlacementAlign int

	MaxResourceSlots int
	MaxSamplerSlots  int
}

// AdapterInfo describes one adapter.
type AdapterInfo struct {
	Name string
	Type AdapterType
	Caps Caps
}

// TextureDesc describes a texture.
type TextureDesc struct {
	Width, Height int
	Mips          int
	Format        TextureFormat
	Usage         Usage
}

// ShaderStage is a mask of programmable stages.
type ShaderStage uint8

// Shader stages.
const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute
)

// ShaderDesc carries an opaque compiled shader blob.
type ShaderDesc struct {
	Stage ShaderStage
	Code  []byte
	Entry string
}

// BindingKind is the kind of resource a binding slot holds.
type BindingKind uint8

// Binding kinds. A texture binding is a combined texture and sampler.
const (
	BindTexture BindingKind = iota
	BindUniformBuffer
	BindStorageBuffer
)

func (k BindingKind) String() string {
	switch k {
	case BindTexture:
		return "Texture"
	case BindUniformBuffer:
		return "UniformBuffer"
	case BindStorageBuffer:
		return "StorageBuffer"
	}
	return fmt.Sprintf("BindingKind(%d)", uint8(k))
}

// BindingEntry is one shader-reflected binding.
type BindingEntry struct {
	Binding int
	Kind    BindingKind
	Stages  ShaderStage
}

// HeapKind selects a descriptor sub-heap.
type HeapKind uint8

// Descriptor heaps. Samplers live in their own heap.
const (
	HeapResources HeapKind = iota
	HeapSamplers
)

// Filter is a texture filter.
type Filter uint8

// Filters.
const (
	FilterLinear Filter = iota
	FilterNearest
)

// AddressMode is a texture addressing mode.
type AddressMode uint8

// Address modes.
const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
	AddressMirrorRepeat
)

// Sampler describes texture sampling state.
type Sampler struct {
	Mag, Min  Filter
	MipFilter Filter
	Address   AddressMode
}

// Topology is the primitive topology.
type Topology uint8

// Topologies.
const (
	TriangleList Topology = iota
	TriangleStrip
	LineList
	PointList
)

// CullMode selects culled faces.
type CullMode uint8

// Cull modes.
const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// BlendMode is a preset color blend equation.
type BlendMode uint8

// Blend modes.
const (
	BlendOpaque BlendMode = iota
	BlendAlpha
	BlendPremultiplied
	BlendAdditive
)

// CompareFunc is a depth comparison function.
type CompareFunc uint8

// Compare functions.
const (
	CompareAlways CompareFunc = iota
	CompareNever
	CompareLess
	CompareLessEqual
	CompareGreater
	CompareGreaterEqual
	CompareEqual
	CompareNotEqual
)

// RenderState is the fixed-function state of a graphics pipeline.
type RenderState struct {
	Topology   Topology
	Cull       CullMode
	Blend      BlendMode
	DepthTest  CompareFunc
	DepthWrite bool
}

// VertexFormat is the format of one vertex attribute.
type VertexFormat uint8

// Vertex formats.
const (
	VertexFloat32 VertexFormat = iota
	VertexFloat32x2
	VertexFloat32x3
	VertexFloat32x4
	VertexUnorm8x4
	VertexUint32
)

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() int {
	switch f {
	case VertexFloat32, VertexUnorm8x4, VertexUint32:
		return 4
	case VertexFloat32x2:
		return 8
	case VertexFloat32x3:
		return 12
	case VertexFloat32x4:
		return 16
	}
	return 0
}

// VertexAttribute is one attribute of a vertex buffer.
type VertexAttribute struct {
	Location int
	Format   VertexFormat
	Offset   int
}

// VertexLayout describes the single interleaved vertex buffer.
type VertexLayout struct {
	Stride     int
	Attributes []VertexAttribute
}

// PipelineDesc fully describes a native graphics pipeline, including the
// attachment formats it renders to.
type PipelineDesc struct {
	Layout       BindingLayout
	Vertex       Shader
	Fragment     Shader
	VertexLayout VertexLayout
	State        RenderState
	ColorFormats []TextureFormat
	DepthFormat  TextureFormat
}

// ComputeDesc describes a native compute pipeline.
type ComputeDesc struct {
	Layout BindingLayout
	Shader Shader
}

// LoadOp is the load operation of a pass attachment.
type LoadOp uint8

// Load operations.
const (
	LoadClear LoadOp = iota
	LoadKeep
	LoadDiscard
)

// ColorTarget is one color attachment of a pass.
type ColorTarget struct {
	Texture Texture
	Load    LoadOp
	Clear   [4]float32
}

// DepthTarget is the depth attachment of a pass.
type DepthTarget struct {
	Texture Texture
	Load    LoadOp
	Clear   float32
}

// PassDesc describes a render pass.
type PassDesc struct {
	Color []ColorTarget
	Depth *DepthTarget
}

// IndexFormat is the format of index buffer elements.
type IndexFormat uint8

// Index formats.
const (
	Index16 IndexFormat = iota
	Index32
)

// BufferLayout describes the placement of one texture subresource
// inside a buffer. For compressed formats BytesPerRow and Rows count
// rows of 4x4 blocks.
type BufferLayout struct {
	Offset      int64
	BytesPerRow int
	Rows        int
}
