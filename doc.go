// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rhi is a render hardware interface: one API for allocating GPU
// resources, recording work and synchronizing with the GPU, independent of
// the native backend underneath.
//
// # Overview
//
// A Device owns one adapter, one queue and everything created from it:
// buffers and textures (with staged uploads), attachment layouts and
// framebuffers, pipelines with a per-pipeline cache of native pipeline
// states, binding tables carved out of shared descriptor heaps, command
// buffers, fences and semaphores.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/rhi"
//	    _ "github.com/gogpu/rhi/backend/soft"
//	)
//
//	dev, err := rhi.CreateDevice("", rhi.WithSoftwareFallback())
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	tex, _ := dev.AllocateAttachment(128, 128, rhi.RGBA8)
//	fb, _ := dev.CreateFramebuffer(rhi.NewAttachmentLayout(rhi.RGBA8), tex)
//
//	cmd, _ := dev.NewCommandBuffer()
//	cmd.Begin()
//	cmd.BeginPass(fb, rhi.ClearColor(0, 0, 1, 1))
//	cmd.EndPass()
//	cmd.End()
//
//	fence, _ := dev.NewFence()
//	dev.Submit([]*rhi.CommandBuffer{cmd}, nil, nil, fence)
//	fence.Wait(-1)
//
// # Backends
//
// Backends implement the small interface set of package driver and register
// themselves on import. backend/soft executes transfer work on the CPU;
// backend/wgpu drives gogpu/wgpu's hardware abstraction layer.
//
// # Object lifetimes
//
// Every object that the GPU may still be reading is reference counted.
// Destroy drops the client reference; each submission holds its own
// references until the device timeline passes it. Native objects are
// released only when both are gone.
//
// # Errors
//
// Environmental failures are returned as errors that match ErrNoDevice,
// ErrOutOfDeviceMemory, ErrUnsupportedTextureFormat or
// ErrIncompleteFramebuffer with errors.Is. Misuse of the API (recording into
// a submitted command buffer, mutating a binding table that is in flight,
// backend assertion failures) panics.
package rhi

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"
)
