// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

// textureFormats maps driver formats onto WebGPU formats.
// Three-channel formats have no WebGPU equivalent.
var textureFormats = map[driver.TextureFormat]gputypes.TextureFormat{
	driver.FormatR8:        gputypes.TextureFormatR8Unorm,
	driver.FormatRG8:       gputypes.TextureFormatRG8Unorm,
	driver.FormatRGBA8:     gputypes.TextureFormatRGBA8Unorm,
	driver.FormatR16:       gputypes.TextureFormatR16Unorm,
	driver.FormatRG16:      gputypes.TextureFormatRG16Unorm,
	driver.FormatRGBA16:    gputypes.TextureFormatRGBA16Unorm,
	driver.FormatDepth16:   gputypes.TextureFormatDepth16Unorm,
	driver.FormatDepth24S8: gputypes.TextureFormatDepth24PlusStencil8,
	driver.FormatDepth24x8: gputypes.TextureFormatDepth24Plus,
	driver.FormatDXT1:      gputypes.TextureFormatBC1RGBAUnorm,
	driver.FormatDXT3:      gputypes.TextureFormatBC2RGBAUnorm,
	driver.FormatDXT5:      gputypes.TextureFormatBC3RGBAUnorm,
}

func textureFormat(f driver.TextureFormat) (gputypes.TextureFormat, bool) {
	tf, ok := textureFormats[f]
	return tf, ok
}

// formatCapabilities is the subset of hal.Adapter that reports format
// support.
type formatCapabilities interface {
	TextureFormatCapabilities(gputypes.TextureFormat) hal.TextureFormatCapabilities
}

// capsOf builds the capability table of an exposed adapter.
func capsOf(a formatCapabilities, features gputypes.Features, c hal.Capabilities) driver.Caps {
	caps := driver.Caps{
		MaxTextureSize:      int(c.Limits.MaxTextureDimension2D),
		MaxColorAttachments: int(c.Limits.MaxColorAttachments),
		CopyPitchAlign:      int(max(c.AlignmentsMask.BufferCopyPitch, 1)),
		CopyPlacementAlign:  int(max(c.AlignmentsMask.BufferCopyOffset, copyPlacementAlign)),
		MaxResourceSlots:    maxResourceSlots,
		MaxSamplerSlots:     maxSamplerSlots,
	}
	bc := features.Contains(gputypes.FeatureTextureCompressionBC)
	for f, tf := range textureFormats {
		if f.IsCompressed() && !bc {
			continue
		}
		flags := a.TextureFormatCapabilities(tf).Flags
		switch {
		case f.IsDepth():
			if flags&hal.TextureFormatCapabilityRenderAttachment != 0 {
				caps.Depth = caps.Depth.With(f)
			}
		default:
			if flags&hal.TextureFormatCapabilitySampled != 0 {
				caps.Sampled = caps.Sampled.With(f)
			}
			if !f.IsCompressed() && flags&hal.TextureFormatCapabilityRenderAttachment != 0 {
				caps.Attachment = caps.Attachment.With(f)
			}
		}
	}
	return caps
}

// baselineCaps is the capability table WebGPU guarantees on every adapter.
// It is used for adopted devices whose adapter cannot be queried.
func baselineCaps(limits gputypes.Limits) driver.Caps {
	color := driver.NewFormatSet(driver.FormatR8, driver.FormatRG8, driver.FormatRGBA8)
	return driver.Caps{
		Sampled:             color,
		Attachment:          color,
		Depth:               driver.NewFormatSet(driver.FormatDepth16, driver.FormatDepth24S8, driver.FormatDepth24x8),
		MaxTextureSize:      int(limits.MaxTextureDimension2D),
		MaxColorAttachments: int(limits.MaxColorAttachments),
		CopyPitchAlign:      256,
		CopyPlacementAlign:  copyPlacementAlign,
		MaxResourceSlots:    maxResourceSlots,
		MaxSamplerSlots:     maxSamplerSlots,
	}
}

func adapterType(t gputypes.DeviceType) driver.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return driver.AdapterDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return driver.AdapterIntegrated
	case gputypes.DeviceTypeVirtualGPU:
		return driver.AdapterVirtual
	case gputypes.DeviceTypeCPU:
		return driver.AdapterCPU
	}
	return driver.AdapterOther
}

func bufferUsage(u driver.Usage, heap driver.Heap) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u.Has(driver.UsageCopySrc) {
		out |= gputypes.BufferUsageCopySrc
	}
	if u.Has(driver.UsageCopyDst) {
		out |= gputypes.BufferUsageCopyDst
	}
	if u.Has(driver.UsageUniform) {
		out |= gputypes.BufferUsageUniform
	}
	if u.Has(driver.UsageVertex) {
		out |= gputypes.BufferUsageVertex
	}
	if u.Has(driver.UsageIndex) {
		out |= gputypes.BufferUsageIndex
	}
	if u.Has(driver.UsageStorage) {
		out |= gputypes.BufferUsageStorage
	}
	switch heap {
	case driver.HeapUpload:
		out |= gputypes.BufferUsageMapWrite
	case driver.HeapReadback:
		out |= gputypes.BufferUsageMapRead
	}
	return out
}

func textureUsage(u driver.Usage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u.Has(driver.UsageCopySrc) {
		out |= gputypes.TextureUsageCopySrc
	}
	if u.Has(driver.UsageCopyDst) {
		out |= gputypes.TextureUsageCopyDst
	}
	if u.Has(driver.UsageSampled) {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u.Has(driver.UsageStorage) {
		out |= gputypes.TextureUsageStorageBinding
	}
	if u.Has(driver.UsageColorAttachment) || u.Has(driver.UsageDepthAttachment) {
		out |= gputypes.TextureUsageRenderAttachment
	}
	return out
}

// layoutUsage maps a texture layout onto the HAL usage it corresponds to.
// present is the usage a presentable image is read with.
func layoutUsage(l driver.Layout, present gputypes.TextureUsage) gputypes.TextureUsage {
	switch l {
	case driver.LayoutSampler:
		return gputypes.TextureUsageTextureBinding
	case driver.LayoutColorAttach, driver.LayoutDepthAttach:
		return gputypes.TextureUsageRenderAttachment
	case driver.LayoutPresent:
		return present
	case driver.LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case driver.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	}
	return gputypes.TextureUsageNone
}

func shaderStages(s driver.ShaderStage) gputypes.ShaderStages {
	var out gputypes.ShaderStages
	if s&driver.StageVertex != 0 {
		out |= gputypes.ShaderStageVertex
	}
	if s&driver.StageFragment != 0 {
		out |= gputypes.ShaderStageFragment
	}
	if s&driver.StageCompute != 0 {
		out |= gputypes.ShaderStageCompute
	}
	return out
}

func vertexFormat(f driver.VertexFormat) gputypes.VertexFormat {
	switch f {
	case driver.VertexFloat32:
		return gputypes.VertexFormatFloat32
	case driver.VertexFloat32x2:
		return gputypes.VertexFormatFloat32x2
	case driver.VertexFloat32x3:
		return gputypes.VertexFormatFloat32x3
	case driver.VertexFloat32x4:
		return gputypes.VertexFormatFloat32x4
	case driver.VertexUnorm8x4:
		return gputypes.VertexFormatUnorm8x4
	case driver.VertexUint32:
		return gputypes.VertexFormatUint32
	}
	return gputypes.VertexFormatUndefined
}

func topology(t driver.Topology) gputypes.PrimitiveTopology {
	switch t {
	case driver.TriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	case driver.LineList:
		return gputypes.PrimitiveTopologyLineList
	case driver.PointList:
		return gputypes.PrimitiveTopologyPointList
	}
	return gputypes.PrimitiveTopologyTriangleList
}

func cullMode(c driver.CullMode) gputypes.CullMode {
	switch c {
	case driver.CullFront:
		return gputypes.CullModeFront
	case driver.CullBack:
		return gputypes.CullModeBack
	}
	return gputypes.CullModeNone
}

// blendState returns nil for opaque rendering.
func blendState(b driver.BlendMode) *gputypes.BlendState {
	var s gputypes.BlendState
	switch b {
	case driver.BlendAlpha:
		s = gputypes.BlendStateAlpha()
	case driver.BlendPremultiplied:
		s = gputypes.BlendStatePremultiplied()
	case driver.BlendAdditive:
		add := gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		}
		s = gputypes.BlendState{Color: add, Alpha: add}
	default:
		return nil
	}
	return &s
}

func compareFunction(c driver.CompareFunc) gputypes.CompareFunction {
	switch c {
	case driver.CompareNever:
		return gputypes.CompareFunctionNever
	case driver.CompareLess:
		return gputypes.CompareFunctionLess
	case driver.CompareLessEqual:
		return gputypes.CompareFunctionLessEqual
	case driver.CompareGreater:
		return gputypes.CompareFunctionGreater
	case driver.CompareGreaterEqual:
		return gputypes.CompareFunctionGreaterEqual
	case driver.CompareEqual:
		return gputypes.CompareFunctionEqual
	case driver.CompareNotEqual:
		return gputypes.CompareFunctionNotEqual
	}
	return gputypes.CompareFunctionAlways
}

func filterMode(f driver.Filter) gputypes.FilterMode {
	if f == driver.FilterNearest {
		return gputypes.FilterModeNearest
	}
	return gputypes.FilterModeLinear
}

func addressMode(a driver.AddressMode) gputypes.AddressMode {
	switch a {
	case driver.AddressClampToEdge:
		return gputypes.AddressModeClampToEdge
	case driver.AddressMirrorRepeat:
		return gputypes.AddressModeMirrorRepeat
	}
	return gputypes.AddressModeRepeat
}

func indexFormat(f driver.IndexFormat) gputypes.IndexFormat {
	if f == driver.Index32 {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

func loadOp(l driver.LoadOp) gputypes.LoadOp {
	if l == driver.LoadKeep {
		return gputypes.LoadOpLoad
	}
	// WebGPU has no discard load; LoadDiscard clears.
	return gputypes.LoadOpClear
}
