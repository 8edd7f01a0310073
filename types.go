// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"math/bits"

	"github.com/gogpu/rhi/driver"
)

// TextureFormat is a pixel format.
type TextureFormat = driver.TextureFormat

// Pixel formats.
const (
	Undefined = driver.FormatUndefined
	R8        = driver.FormatR8
	RG8       = driver.FormatRG8
	RGB8      = driver.FormatRGB8
	RGBA8     = driver.FormatRGBA8
	R16       = driver.FormatR16
	RG16      = driver.FormatRG16
	RGB16     = driver.FormatRGB16
	RGBA16    = driver.FormatRGBA16
	Depth16   = driver.FormatDepth16
	Depth24S8 = driver.FormatDepth24S8
	Depth24x8 = driver.FormatDepth24x8
	DXT1      = driver.FormatDXT1
	DXT3      = driver.FormatDXT3
	DXT5      = driver.FormatDXT5
)

// MemUsage is a mask of buffer usages.
type MemUsage = driver.Usage

// Buffer usages.
const (
	TransferSrc   = driver.UsageCopySrc
	TransferDst   = driver.UsageCopyDst
	UniformBuffer = driver.UsageUniform
	VertexBuffer  = driver.UsageVertex
	IndexBuffer   = driver.UsageIndex
	StorageBuffer = driver.UsageStorage
)

// BufferHeap is the memory class of a buffer.
type BufferHeap = driver.Heap

// Memory classes.
const (
	HeapStatic   = driver.HeapStatic
	HeapUpload   = driver.HeapUpload
	HeapReadback = driver.HeapReadback
)

// TextureLayout is the GPU-side state of a texture.
type TextureLayout = driver.Layout

// Texture layouts.
const (
	LayoutUndefined   = driver.LayoutUndefined
	LayoutSampler     = driver.LayoutSampler
	LayoutColorAttach = driver.LayoutColorAttach
	LayoutDepthAttach = driver.LayoutDepthAttach
	LayoutPresent     = driver.LayoutPresent
	LayoutTransferSrc = driver.LayoutTransferSrc
	LayoutTransferDst = driver.LayoutTransferDst
)

// Pipeline description types.
type (
	RenderState     = driver.RenderState
	VertexLayout    = driver.VertexLayout
	VertexAttribute = driver.VertexAttribute
	BindingEntry    = driver.BindingEntry
	Sampler         = driver.Sampler
	IndexFormat     = driver.IndexFormat
	BufferLayout    = driver.BufferLayout
	LoadOp          = driver.LoadOp
)

// Attachment load operations.
const (
	LoadClear   = driver.LoadClear
	LoadKeep    = driver.LoadKeep
	LoadDiscard = driver.LoadDiscard
)

// AdapterType classifies adapters.
type AdapterType = driver.AdapterType

// Adapter types.
const (
	AdapterOther      = driver.AdapterOther
	AdapterDiscrete   = driver.AdapterDiscrete
	AdapterIntegrated = driver.AdapterIntegrated
	AdapterVirtual    = driver.AdapterVirtual
	AdapterCPU        = driver.AdapterCPU
)

// Binding kinds.
const (
	BindTexture       = driver.BindTexture
	BindUniformBuffer = driver.BindUniformBuffer
	BindStorageBuffer = driver.BindStorageBuffer
)

// Shader stages.
const (
	StageVertex   = driver.StageVertex
	StageFragment = driver.StageFragment
	StageCompute  = driver.StageCompute
)

// Index formats.
const (
	Index16 = driver.Index16
	Index32 = driver.Index32
)

// Shader is an opaque compiled shader blob handed to the backend as-is.
type Shader struct {
	Code  []byte
	Entry string
}

// MipCount returns the length of the full mip chain of a width x height
// texture.
func MipCount(width, height int) int {
	n := max(width, height)
	if n < 1 {
		return 1
	}
	return bits.Len(uint(n))
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}
