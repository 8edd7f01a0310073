// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rhi/backend/soft"
	"github.com/gogpu/rhi/driver"
)

func uboTextureLayout(t *testing.T, dev *Device) *BindingLayout {
	t.Helper()
	bl, err := dev.CreateBindingLayout(
		BindingEntry{Binding: 3, Kind: BindTexture, Stages: StageFragment},
		BindingEntry{Binding: 0, Kind: BindUniformBuffer, Stages: StageVertex | StageFragment},
	)
	require.NoError(t, err)
	t.Cleanup(bl.Destroy)
	return bl
}

func TestBindingLayoutSlots(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	bl := uboTextureLayout(t, dev)

	entries := bl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Binding, "entries are sorted by binding")
	assert.Equal(t, 3, entries[1].Binding)

	res, smp := bl.Slots()
	assert.Equal(t, 2, res)
	assert.Equal(t, 1, smp)

	assert.Panics(t, func() {
		_, _ = dev.CreateBindingLayout(
			BindingEntry{Binding: 1, Kind: BindTexture},
			BindingEntry{Binding: 1, Kind: BindUniformBuffer},
		)
	})
}

func TestBindingTablesAreIsolated(t *testing.T) {
	dev, gpu := newTestDevice(t, soft.Config{})
	bl := uboTextureLayout(t, dev)

	ubo1, err := dev.AllocateBuffer(make([]byte, 256), 1, 256, 0, UniformBuffer, HeapUpload)
	require.NoError(t, err)
	defer ubo1.Destroy()
	ubo2, err := dev.AllocateBuffer(make([]byte, 256), 1, 256, 0, UniformBuffer, HeapUpload)
	require.NoError(t, err)
	defer ubo2.Destroy()
	tex1, err := dev.AllocateTexture(solidPixmap(2, 2, [4]byte{1, 0, 0, 255}), 1)
	require.NoError(t, err)
	defer tex1.Destroy()
	tex2, err := dev.AllocateTexture(solidPixmap(2, 2, [4]byte{0, 1, 0, 255}), 1)
	require.NoError(t, err)
	defer tex2.Destroy()

	t1, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	defer t1.Destroy()
	t2, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	defer t2.Destroy()
	assert.Same(t, bl, t1.Layout())

	linear := Sampler{}
	nearest := Sampler{Mag: driver.FilterNearest, Min: driver.FilterNearest}
	t1.BindBuffer(0, ubo1, 0, 128)
	t1.BindTexture(3, tex1, linear)
	t2.BindBuffer(0, ubo2, 64, 192)
	t2.BindTexture(3, tex2, nearest)

	res := gpu.heap(driver.HeapResources)
	smp := gpu.heap(driver.HeapSamplers)
	assert.Equal(t, bufferRange{buf: ubo1.native, off: 0, size: 128}, res.get(t1.resBase))
	assert.Equal(t, tex1.native, res.get(t1.resBase+1))
	assert.Equal(t, bufferRange{buf: ubo2.native, off: 64, size: 192}, res.get(t2.resBase))
	assert.Equal(t, tex2.native, res.get(t2.resBase+1))
	assert.Equal(t, linear, smp.get(t1.smpBase))
	assert.Equal(t, nearest, smp.get(t2.smpBase))

	assert.NotEqual(t, t1.resBase, t2.resBase)
	assert.NotEqual(t, t1.smpBase, t2.smpBase)
	r, s := dev.DescriptorUsage()
	assert.Equal(t, 4, r)
	assert.Equal(t, 2, s)
}

func TestBindingTableSlotsReused(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	bl := uboTextureLayout(t, dev)

	t1, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	t2, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	defer t2.Destroy()

	base := t1.resBase
	t1.Destroy()
	t1.Destroy()
	r, s := dev.DescriptorUsage()
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, s)

	t3, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	defer t3.Destroy()
	assert.Equal(t, base, t3.resBase, "freed runs are handed out again")
}

func TestOutOfDescriptors(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{}, WithDescriptorCapacity(5, 8))
	bl := uboTextureLayout(t, dev)

	t1, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	defer t1.Destroy()
	t2, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	defer t2.Destroy()

	_, err = dev.CreateBindingTable(bl)
	assert.True(t, errors.Is(err, ErrOutOfDescriptors), "got %v", err)
	assert.True(t, errors.Is(err, ErrOutOfDeviceMemory), "got %v", err)
	r, _ := dev.DescriptorUsage()
	assert.Equal(t, 4, r)
}

func TestOutOfSamplerSlotsReturnsResources(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{}, WithDescriptorCapacity(64, 1))
	bl, err := dev.CreateBindingLayout(
		BindingEntry{Binding: 0, Kind: BindTexture, Stages: StageFragment},
		BindingEntry{Binding: 1, Kind: BindTexture, Stages: StageFragment},
	)
	require.NoError(t, err)
	defer bl.Destroy()

	_, err = dev.CreateBindingTable(bl)
	assert.True(t, errors.Is(err, ErrOutOfDescriptors), "got %v", err)
	r, s := dev.DescriptorUsage()
	assert.Zero(t, r)
	assert.Zero(t, s)
}

func TestBindingTableMisuse(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	bl := uboTextureLayout(t, dev)
	table, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	defer table.Destroy()

	ubo, err := dev.AllocateBuffer(nil, 1, 64, 0, UniformBuffer, HeapUpload)
	require.NoError(t, err)
	defer ubo.Destroy()
	depth, err := dev.AllocateDepth(4, 4, Depth16)
	require.NoError(t, err)
	defer depth.Destroy()
	tex, err := dev.AllocateTexture(solidPixmap(2, 2, [4]byte{}), 1)
	require.NoError(t, err)
	defer tex.Destroy()

	assert.Panics(t, func() { table.BindTexture(0, tex, Sampler{}) }, "texture into a buffer binding")
	assert.Panics(t, func() { table.BindBuffer(3, ubo, 0, 64) }, "buffer into a texture binding")
	assert.Panics(t, func() { table.BindBuffer(7, ubo, 0, 64) }, "binding not in the layout")
	assert.Panics(t, func() { table.BindBuffer(0, ubo, 32, 64) }, "range past the end")
	assert.Panics(t, func() { table.BindTexture(3, depth, Sampler{}) }, "texture that cannot be sampled")

	table.inflight.Add(1)
	assert.Panics(t, func() { table.BindBuffer(0, ubo, 0, 64) }, "write while in flight")
	table.retired()
	table.BindBuffer(0, ubo, 0, 64)
}

func TestBindingTableRetiresAfterSubmit(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	bl, err := dev.CreateBindingLayout(BindingEntry{Binding: 0, Kind: BindStorageBuffer, Stages: StageCompute})
	require.NoError(t, err)
	defer bl.Destroy()
	cp, err := dev.CreateComputePipeline(bl, testShader)
	require.NoError(t, err)
	defer cp.Destroy()
	buf, err := dev.AllocateBuffer(nil, 4, 4, 0, StorageBuffer, HeapStatic)
	require.NoError(t, err)
	defer buf.Destroy()
	table, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	table.BindBuffer(0, buf, 0, 16)

	submitAndWait(t, dev, func(cmd *CommandBuffer) {
		cmd.SetComputePipeline(cp)
		cmd.SetBindings(table)
		cmd.SetBindings(table)
		cmd.Dispatch(1, 1, 1)
	})
	assert.Zero(t, table.inflight.Load())
	table.BindBuffer(0, buf, 4, 12)

	buf.Destroy()
	assert.EqualValues(t, 1, buf.n.Load(), "the table holds the bound buffer")
	table.Destroy()
	assert.Zero(t, buf.n.Load())
}

func TestBindingTableWritableOnceSignaled(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	bl, err := dev.CreateBindingLayout(BindingEntry{Binding: 0, Kind: BindStorageBuffer, Stages: StageCompute})
	require.NoError(t, err)
	defer bl.Destroy()
	cp, err := dev.CreateComputePipeline(bl, testShader)
	require.NoError(t, err)
	defer cp.Destroy()
	buf, err := dev.AllocateBuffer(nil, 4, 4, 0, StorageBuffer, HeapStatic)
	require.NoError(t, err)
	defer buf.Destroy()
	table, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	defer table.Destroy()
	table.BindBuffer(0, buf, 0, 16)

	cmd, err := dev.NewCommandBuffer()
	require.NoError(t, err)
	defer cmd.Destroy()
	require.NoError(t, cmd.Begin())
	cmd.SetComputePipeline(cp)
	cmd.SetBindings(table)
	cmd.Dispatch(1, 1, 1)
	require.NoError(t, cmd.End())
	fence, err := dev.NewFence()
	require.NoError(t, err)
	require.NoError(t, dev.Submit([]*CommandBuffer{cmd}, nil, nil, fence))

	require.Eventually(t, fence.Signaled, 5*time.Second, time.Millisecond)
	assert.NotPanics(t, func() { table.BindBuffer(0, buf, 4, 12) },
		"a signaled submission no longer pins the table")
	assert.Zero(t, table.inflight.Load())
}

func TestSetBindingsNeedsMatchingLayout(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	bl := uboTextureLayout(t, dev)
	other, err := dev.CreateBindingLayout(BindingEntry{Binding: 0, Kind: BindStorageBuffer, Stages: StageCompute})
	require.NoError(t, err)
	defer other.Destroy()
	cp, err := dev.CreateComputePipeline(other, testShader)
	require.NoError(t, err)
	defer cp.Destroy()
	table, err := dev.CreateBindingTable(bl)
	require.NoError(t, err)
	defer table.Destroy()

	cmd, err := dev.NewCommandBuffer()
	require.NoError(t, err)
	defer cmd.Destroy()
	require.NoError(t, cmd.Begin())
	assert.Panics(t, func() { cmd.SetBindings(table) }, "no pipeline bound")
	cmd.SetComputePipeline(cp)
	assert.Panics(t, func() { cmd.SetBindings(table) })
}
