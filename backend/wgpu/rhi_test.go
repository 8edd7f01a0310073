// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend/wgpu"
	"github.com/gogpu/rhi/driver"

	_ "github.com/gogpu/wgpu/hal/noop"
)

const noopAdapter = "Noop Adapter (Empty)"

const texturedWGSL = `
@group(0) @binding(0) var tex: texture_2d<f32>;
@group(0) @binding(16) var tex_sampler: sampler;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(pos, 0.0, 1.0);
    out.uv = pos * 0.5 + vec2<f32>(0.5, 0.5);
    return out;
}

@fragment
fn fs_main(input: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(tex, tex_sampler, input.uv);
}
`

func noopDriver() rhi.Option {
	return rhi.WithDriver(wgpu.New(wgpu.Config{
		Backends: gputypes.Backends(1) << gputypes.BackendEmpty,
	}))
}

func newDevice(t *testing.T) *rhi.Device {
	t.Helper()
	dev, err := rhi.CreateDevice(noopAdapter, noopDriver())
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	return dev
}

func submit(t *testing.T, dev *rhi.Device, record func(*rhi.CommandBuffer)) {
	t.Helper()
	cmd, err := dev.NewCommandBuffer()
	require.NoError(t, err)
	defer cmd.Destroy()
	require.NoError(t, cmd.Begin())
	record(cmd)
	require.NoError(t, cmd.End())
	fence, err := dev.NewFence()
	require.NoError(t, err)
	require.NoError(t, dev.Submit([]*rhi.CommandBuffer{cmd}, nil, nil, fence))
	require.True(t, fence.Wait(-1))
}

func TestDeviceOverNoopBackend(t *testing.T) {
	devs, err := rhi.ListDevices(noopDriver())
	require.NoError(t, err)
	require.NotEmpty(t, devs)
	assert.Equal(t, noopAdapter, devs[0].Name)
	assert.Equal(t, wgpu.DriverName, devs[0].Driver)

	dev := newDevice(t)
	assert.Equal(t, rhi.AdapterOther, dev.Adapter().Type)
	assert.True(t, dev.Capabilities().SupportsSampled(rhi.RGBA8))
	assert.False(t, dev.Capabilities().SupportsSampled(rhi.DXT1), "the noop adapter has no BC feature")

	_, err = dev.AllocateTexture(&rhi.Pixmap{Width: 4, Height: 4, Format: rhi.DXT1, Data: make([]byte, 8*4)}, 1)
	assert.True(t, errors.Is(err, rhi.ErrUnsupportedTextureFormat), "%v", err)
}

func TestTexturedDraw(t *testing.T) {
	dev := newDevice(t)

	pix := rhi.NewPixmap(16, 16, rhi.RGBA8)
	for i := range pix.Data {
		pix.Data[i] = byte(i)
	}
	tex, err := dev.AllocateTexture(pix, 0)
	require.NoError(t, err)
	defer tex.Destroy()
	assert.Equal(t, 1, tex.Mips(), "mips is clamped to at least one level")

	mipped, err := dev.AllocateTexture(pix, 8)
	require.NoError(t, err)
	defer mipped.Destroy()
	assert.Equal(t, rhi.MipCount(16, 16), mipped.Mips())

	target, err := dev.AllocateAttachment(16, 16, rhi.RGBA8)
	require.NoError(t, err)
	defer target.Destroy()
	depth, err := dev.AllocateDepth(16, 16, rhi.Depth24S8)
	require.NoError(t, err)
	defer depth.Destroy()

	layout, err := dev.CreateBindingLayout(rhi.BindingEntry{
		Binding: 0, Kind: rhi.BindTexture, Stages: rhi.StageFragment,
	})
	require.NoError(t, err)
	defer layout.Destroy()

	code := []byte(texturedWGSL)
	pipe, err := dev.CreatePipeline(
		rhi.RenderState{DepthTest: driver.CompareLessEqual, DepthWrite: true},
		rhi.VertexLayout{Stride: 8, Attributes: []rhi.VertexAttribute{{Location: 0, Format: driver.VertexFloat32x2}}},
		layout,
		rhi.Shader{Code: code, Entry: "vs_main"},
		rhi.Shader{Code: code, Entry: "fs_main"},
	)
	require.NoError(t, err)
	defer pipe.Destroy()

	table, err := dev.CreateBindingTable(layout)
	require.NoError(t, err)
	defer table.Destroy()
	table.BindTexture(0, mipped, rhi.Sampler{Mag: driver.FilterLinear, Min: driver.FilterLinear, MipFilter: driver.FilterLinear})

	verts := []byte{
		0, 0, 128, 191, 0, 0, 128, 191, // -1, -1
		0, 0, 64, 64, 0, 0, 128, 191, // 3, -1
		0, 0, 128, 191, 0, 0, 64, 64, // -1, 3
	}
	vb, err := dev.AllocateBuffer(verts, 3, 8, 8, rhi.VertexBuffer, rhi.HeapStatic)
	require.NoError(t, err)
	defer vb.Destroy()

	fb, err := dev.CreateFramebuffer(rhi.NewAttachmentLayout(rhi.RGBA8, rhi.Depth24S8), target, depth)
	require.NoError(t, err)
	defer fb.Destroy()

	for range 2 {
		submit(t, dev, func(cmd *rhi.CommandBuffer) {
			cmd.BeginPass(fb, rhi.ClearColor(0, 0, 0, 1), rhi.ClearDepth(1))
			require.NoError(t, cmd.SetPipeline(pipe))
			cmd.SetBindings(table)
			cmd.SetVertexBuffer(0, vb, 0)
			cmd.Draw(3, 1, 0, 0)
			cmd.EndPass()
		})
	}
	st := pipe.Stats()
	assert.Equal(t, 1, st.Instances)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, uint64(1), st.Hits)

	out, err := dev.ReadPixels(target, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, out.Width)
	assert.Len(t, out.Data, 16*16*4)
}

func TestGenerateMipsAndBlit(t *testing.T) {
	dev := newDevice(t)
	tex, err := dev.AllocateEmptyTexture(32, 32, 0, rhi.RGBA8)
	require.NoError(t, err)
	defer tex.Destroy()
	require.Equal(t, 1, tex.Mips())

	chain, err := dev.AllocateEmptyTexture(32, 32, 6, rhi.RGBA8)
	require.NoError(t, err)
	defer chain.Destroy()

	submit(t, dev, func(cmd *rhi.CommandBuffer) {
		cmd.Blit(chain, 0, tex, 0)
		cmd.GenerateMips(chain)
	})
	mip, err := dev.ReadPixels(chain, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, mip.Width)
	assert.Equal(t, 1, mip.Height)
}

func TestComputeOverNoopBackend(t *testing.T) {
	dev := newDevice(t)
	layout, err := dev.CreateBindingLayout(rhi.BindingEntry{
		Binding: 0, Kind: rhi.BindStorageBuffer, Stages: rhi.StageCompute,
	})
	require.NoError(t, err)
	defer layout.Destroy()

	cs := rhi.Shader{Code: []byte(`
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] + 1u;
}
`)}
	pipe, err := dev.CreateComputePipeline(layout, cs)
	require.NoError(t, err)
	defer pipe.Destroy()

	buf, err := dev.AllocateBuffer(make([]byte, 256), 64, 4, 4, rhi.StorageBuffer, rhi.HeapStatic)
	require.NoError(t, err)
	defer buf.Destroy()

	table, err := dev.CreateBindingTable(layout)
	require.NoError(t, err)
	defer table.Destroy()
	table.BindBuffer(0, buf, 0, 256)

	submit(t, dev, func(cmd *rhi.CommandBuffer) {
		cmd.SetComputePipeline(pipe)
		cmd.SetBindings(table)
		cmd.Dispatch(1, 1, 1)
	})
	res, smp := dev.DescriptorUsage()
	assert.Equal(t, 1, res)
	assert.Equal(t, 0, smp)
}

func TestSwapchainOverNoopBackend(t *testing.T) {
	dev := newDevice(t)
	sw, err := dev.CreateSwapchain(wgpu.Window{}, 64, 32)
	require.NoError(t, err)
	defer sw.Destroy()
	require.Equal(t, wgpu.SwapchainImages, sw.Len())
	assert.Equal(t, rhi.RGBA8, sw.Format())

	for frame := range 2 * dev.MaxFramesInFlight() {
		image, err := sw.Acquire(nil)
		require.NoError(t, err)
		fb, err := dev.SwapchainFramebuffer(sw, image, nil)
		require.NoError(t, err)
		submit(t, dev, func(cmd *rhi.CommandBuffer) {
			cmd.BeginPass(fb, rhi.ClearColor(float32(frame)/8, 0, 0, 1))
			cmd.EndPass()
		})
		fb.Destroy()
		require.NoError(t, dev.Present(sw, image, nil))
	}
	assert.Equal(t, 0, dev.FrameIndex())

	require.NoError(t, dev.WaitIdle())
	require.NoError(t, sw.Resize(128, 128))
	assert.Equal(t, 128, sw.Image(0).Width())
}

// provider hands out a HAL device the way *wgpu.Device does.
type provider struct {
	dev   hal.Device
	queue hal.Queue
}

type halDevice struct{ p *provider }

func (d halDevice) HalDevice() hal.Device { return d.p.dev }
func (d halDevice) HalQueue() hal.Queue   { return d.p.queue }

func (p *provider) Device() gpucontext.Device { return halDevice{p} }
func (p *provider) Queue() gpucontext.Queue   { return p.queue }
func (p *provider) Adapter() gpucontext.Adapter {
	return nil
}
func (p *provider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (p *provider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "host", Type: gpucontext.AdapterTypeIntegrated}
}

func openNoop(t *testing.T) *provider {
	t.Helper()
	b, ok := hal.GetBackend(gputypes.BackendEmpty)
	require.True(t, ok)
	inst, err := b.CreateInstance(&hal.InstanceDescriptor{Backends: gputypes.Backends(1) << gputypes.BackendEmpty})
	require.NoError(t, err)
	t.Cleanup(inst.Destroy)
	exposed := inst.EnumerateAdapters(nil)
	require.NotEmpty(t, exposed)
	open, err := exposed[0].Adapter.Open(exposed[0].Features, exposed[0].Capabilities.Limits)
	require.NoError(t, err)
	t.Cleanup(open.Device.Destroy)
	return &provider{dev: open.Device, queue: open.Queue}
}

func TestAdoptedDevice(t *testing.T) {
	gpu, err := wgpu.Adopt(openNoop(t))
	require.NoError(t, err)
	dev, err := rhi.NewDevice(gpu, "host")
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, "host", dev.Adapter().Name)
	assert.Equal(t, rhi.AdapterIntegrated, dev.Adapter().Type)

	tex, err := dev.AllocateTexture(rhi.NewPixmap(8, 8, rhi.RGBA8), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, tex.Mips())
	tex.Destroy()

	_, err = dev.CreateSwapchain(wgpu.Window{}, 8, 8)
	assert.True(t, errors.Is(err, rhi.ErrNoDevice), "adopted devices cannot create surfaces: %v", err)
}

func TestAdoptRejectsForeignDevice(t *testing.T) {
	p := openNoop(t)
	_, err := wgpu.Adopt(foreign{p})
	assert.True(t, errors.Is(err, driver.ErrNoDevice), "%v", err)
}

type foreign struct{ *provider }

func (foreign) Device() gpucontext.Device { return struct{}{} }
