// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements a hardware backend on top of the gogpu/wgpu HAL,
// which drives Vulkan, Metal, DX12 or GLES depending on the platform.
//
// Importing the package registers a driver named "wgpu". The driver does not
// pull in any HAL backend by itself; link the ones the program should use:
//
//	import (
//	    _ "github.com/gogpu/rhi/backend/wgpu"
//	    _ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
// Every adapter of every registered HAL backend is reported, named
// "<adapter> (<backend>)".
//
// # Shaders
//
// Shader blobs are either WGSL source or SPIR-V binaries (recognized by the
// SPIR-V magic word). WGSL is parsed and validated with naga when the
// shader is created, so errors surface at creation time. An empty entry
// point name selects the single entry point of the requested stage.
//
// In WGSL, a texture binding N is sampled through the sampler declared at
// binding N+SamplerBindingOffset of group 0.
//
// # Descriptors
//
// The HAL has no shader-visible descriptor heaps. Descriptor heaps are kept
// on the CPU, and bind groups are built from the heap contents when a
// command buffer is submitted. Command buffers record into the HAL encoder
// at Submit as well.
//
// # Presentation
//
// A swapchain owns its images and copies (or, when the surface format
// differs, blits) the presented image onto the surface texture it acquires
// from the HAL. Surfaces are given as a Window or as an existing
// hal.Surface.
//
// # Sharing a device
//
// Adopt wraps the device of a gpucontext.DeviceProvider, such as a gogpu
// window, instead of opening a new one.
package wgpu
