// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogpu/rhi/backend/soft"
	"github.com/gogpu/rhi/driver"
)

// countingDriver wraps the soft driver and counts native object creation.
type countingDriver struct {
	driver.Driver
	gpu *countingGPU
}

func (c *countingDriver) Open(name string) (driver.GPU, error) {
	g, err := c.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	c.gpu = &countingGPU{GPU: g}
	return c.gpu, nil
}

type countingGPU struct {
	driver.GPU
	textures  atomic.Int32
	buffers   atomic.Int32
	pipelines atomic.Int32

	mu    sync.Mutex
	heaps map[driver.HeapKind]*recordingHeap
}

func (g *countingGPU) NewTexture(desc driver.TextureDesc) (driver.Texture, error) {
	g.textures.Add(1)
	return g.GPU.NewTexture(desc)
}

func (g *countingGPU) NewBuffer(size int64, usage driver.Usage, heap driver.Heap) (driver.Buffer, error) {
	g.buffers.Add(1)
	return g.GPU.NewBuffer(size, usage, heap)
}

func (g *countingGPU) NewPipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	g.pipelines.Add(1)
	return g.GPU.NewPipeline(desc)
}

func (g *countingGPU) NewDescriptorHeap(kind driver.HeapKind, n int) (driver.DescriptorHeap, error) {
	h := &recordingHeap{kind: kind, slots: make([]any, n)}
	g.mu.Lock()
	if g.heaps == nil {
		g.heaps = make(map[driver.HeapKind]*recordingHeap)
	}
	g.heaps[kind] = h
	g.mu.Unlock()
	return h, nil
}

func (g *countingGPU) heap(kind driver.HeapKind) *recordingHeap {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.heaps[kind]
}

// recordingHeap keeps every descriptor written to it.
type recordingHeap struct {
	kind  driver.HeapKind
	mu    sync.Mutex
	slots []any
}

type bufferRange struct {
	buf       driver.Buffer
	off, size int64
}

func (h *recordingHeap) Kind() driver.HeapKind { return h.kind }
func (h *recordingHeap) Len() int              { return len(h.slots) }
func (h *recordingHeap) Destroy()              {}

func (h *recordingHeap) SetTexture(slot int, tex driver.Texture) { h.set(slot, tex) }
func (h *recordingHeap) SetSampler(slot int, s driver.Sampler)   { h.set(slot, s) }
func (h *recordingHeap) SetBuffer(slot int, buf driver.Buffer, off, size int64) {
	h.set(slot, bufferRange{buf: buf, off: off, size: size})
}

func (h *recordingHeap) set(slot int, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots[slot] = v
}

func (h *recordingHeap) get(slot int) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots[slot]
}

// newTestDevice opens a soft device through a countingDriver.
func newTestDevice(t *testing.T, cfg soft.Config, opts ...Option) (*Device, *countingGPU) {
	t.Helper()
	drv := &countingDriver{Driver: soft.New(cfg)}
	opts = append([]Option{WithDriver(drv), WithSoftwareFallback()}, opts...)
	dev, err := CreateDevice("", opts...)
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	return dev, drv.gpu
}

// submitAndWait records fn into a fresh command buffer, submits it and
// waits for it to retire.
func submitAndWait(t *testing.T, dev *Device, fn func(cmd *CommandBuffer)) {
	t.Helper()
	cmd, err := dev.NewCommandBuffer()
	require.NoError(t, err)
	defer cmd.Destroy()
	require.NoError(t, cmd.Begin())
	fn(cmd)
	require.NoError(t, cmd.End())
	fence, err := dev.NewFence()
	require.NoError(t, err)
	require.NoError(t, dev.Submit([]*CommandBuffer{cmd}, nil, nil, fence))
	require.True(t, fence.Wait(-1))
}

var testShader = Shader{Code: []byte{0x03, 0x02, 0x23, 0x07}, Entry: "main"}
