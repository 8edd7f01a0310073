// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "time"

// Destroyer is implemented by every native object.
// Destroy must be called at most once, after the GPU stopped using it.
type Destroyer interface {
	Destroy()
}

// GPU is an open device with a single execution queue.
//
// Thread Safety:
// Object creation may be called from any goroutine. Submit and
// Swapchain.Present are serialized by the caller.
type GPU interface {
	// Info returns the adapter the device was opened on.
	Info() AdapterInfo

	NewBuffer(size int64, usage Usage, heap Heap) (Buffer, error)
	NewTexture(desc TextureDesc) (Texture, error)
	NewShader(desc ShaderDesc) (Shader, error)
	NewBindingLayout(entries []BindingEntry) (BindingLayout, error)
	NewPipeline(desc PipelineDesc) (Pipeline, error)
	NewComputePipeline(desc ComputeDesc) (Pipeline, error)
	NewDescriptorHeap(kind HeapKind, n int) (DescriptorHeap, error)
	NewCmdBuffer() (CmdBuffer, error)
	NewFence() (Fence, error)
	NewSemaphore() (Semaphore, error)
	NewSwapchain(surface Surface, width, height int) (Swapchain, error)

	// Submit enqueues cmds after every semaphore in wait has been signaled,
	// signals every semaphore in signal once they complete and then
	// advances fence to value. It does not wait for execution.
	Submit(cmds []CmdBuffer, wait, signal []Semaphore, fence Fence, value uint64) error

	// WaitIdle blocks until the queue drained.
	WaitIdle() error

	// Close destroys the device. Every object created from it must have
	// been destroyed already.
	Close()
}

// Buffer is a native buffer.
type Buffer interface {
	Destroyer
	Size() int64
	// Write copies p into host-visible memory at off.
	Write(off int64, p []byte) error
	// Read copies host-visible memory at off into p.
	Read(off int64, p []byte) error
}

// Texture is a native texture.
type Texture interface {
	Destroyer
	Desc() TextureDesc
}

// Shader is a native shader module.
type Shader interface{ Destroyer }

// BindingLayout is the native signature of a set of bindings
// (root signature, descriptor set layout, bind group layout).
type BindingLayout interface{ Destroyer }

// Pipeline is a native pipeline state object.
type Pipeline interface{ Destroyer }

// DescriptorHeap is a shader-visible array of descriptors.
// Writes are immediate.
type DescriptorHeap interface {
	Destroyer
	Kind() HeapKind
	Len() int
	SetTexture(slot int, tex Texture)
	SetBuffer(slot int, buf Buffer, off, size int64)
	SetSampler(slot int, s Sampler)
}

// CmdBuffer records commands for later submission.
// A CmdBuffer is recorded by one goroutine at a time.
type CmdBuffer interface {
	Destroyer

	Begin() error
	End() error
	Reset() error

	BeginPass(desc PassDesc)
	EndPass()

	SetPipeline(p Pipeline)
	// SetBindings binds the descriptor ranges starting at resBase and
	// smpBase as the resources described by layout. The i-th entry of the
	// layout reads resource slot resBase+i, and the j-th texture entry
	// reads sampler slot smpBase+j.
	SetBindings(layout BindingLayout, res DescriptorHeap, resBase int, smp DescriptorHeap, smpBase int)
	SetVertexBuffer(slot int, buf Buffer, off int64)
	SetIndexBuffer(buf Buffer, format IndexFormat, off int64)
	Draw(vertices, instances, firstVertex, firstInstance int)
	DrawIndexed(indices, instances, firstIndex, baseVertex, firstInstance int)
	Dispatch(x, y, z int)

	Transition(tex Texture, mip int, from, to Layout)
	CopyBuffer(dst Buffer, dstOff int64, src Buffer, srcOff, size int64)
	CopyBufferToTexture(dst Texture, mip int, src Buffer, layout BufferLayout)
	CopyTextureToBuffer(dst Buffer, layout BufferLayout, src Texture, mip int)
	// Blit scales level srcMip of src into level dstMip of dst with linear
	// filtering, converting formats as needed.
	Blit(dst Texture, dstMip int, src Texture, srcMip int)
}

// Fence is a timeline of completed submissions.
type Fence interface {
	Destroyer
	// Wait blocks until the fence reached value or timeout elapsed.
	// A negative timeout waits forever.
	Wait(value uint64, timeout time.Duration) (bool, error)
	// Completed returns the last value the fence reached.
	Completed() uint64
}

// Semaphore orders submissions on the GPU.
type Semaphore interface{ Destroyer }

// Surface is an opaque platform presentation surface supplied by the
// windowing layer.
type Surface any

// Swapchain is a ring of presentable images.
type Swapchain interface {
	Destroyer
	Images() []Texture
	Format() TextureFormat
	// Acquire returns the index of the next image and arranges for signal
	// to be signaled once it can be rendered to.
	Acquire(signal Semaphore) (int, error)
	// Present queues image for presentation after wait is signaled.
	Present(image int, wait Semaphore) error
	Resize(width, height int) error
}
