// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft implements a CPU reference backend.
//
// The backend executes transfer work (buffer and texture copies, clears,
// blits, mip generation, block decompression) on a dedicated queue
// goroutine, so submission, fence and ordering semantics behave like a real
// device. Draws and dispatches are validated and counted but not
// rasterized: there is no shading language on this backend.
//
// Importing the package registers a driver named "soft" whose single
// adapter is reported as a CPU adapter:
//
//	import _ "github.com/gogpu/rhi/backend/soft"
package soft

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// DriverName is the name the default soft driver registers under.
const DriverName = "soft"

// DefaultAdapterName is the adapter name reported by the default driver.
const DefaultAdapterName = "Soft Rasterizer"

// Config configures a soft driver.
type Config struct {
	// DriverName defaults to DriverName.
	DriverName string

	// AdapterName defaults to DefaultAdapterName.
	AdapterName string

	// MemoryBudget is the device memory size in bytes.
	// Defaults to DefaultMaxMemoryMB.
	MemoryBudget int64

	// DisableCompressed removes the DXT formats from the sampled
	// capability set.
	DisableCompressed bool
}

func init() {
	driver.Register(New(Config{}))
}

// New returns a soft driver. Register it with driver.Register or pass it
// to rhi.WithDriver.
func New(cfg Config) driver.Driver {
	if cfg.DriverName == "" {
		cfg.DriverName = DriverName
	}
	if cfg.AdapterName == "" {
		cfg.AdapterName = DefaultAdapterName
	}
	return &softDriver{cfg: cfg}
}

type softDriver struct {
	cfg Config
}

func (d *softDriver) Name() string { return d.cfg.DriverName }

func (d *softDriver) Adapters() ([]driver.AdapterInfo, error) {
	return []driver.AdapterInfo{d.info()}, nil
}

func (d *softDriver) info() driver.AdapterInfo {
	color := driver.NewFormatSet(
		driver.FormatR8, driver.FormatRG8, driver.FormatRGBA8,
		driver.FormatR16, driver.FormatRG16, driver.FormatRGBA16,
	)
	sampled := color.With(driver.FormatDXT1).With(driver.FormatDXT3).With(driver.FormatDXT5)
	if d.cfg.DisableCompressed {
		sampled = color
	}
	return driver.AdapterInfo{
		Name: d.cfg.AdapterName,
		Type: driver.AdapterCPU,
		Caps: driver.Caps{
			Sampled:             sampled,
			Attachment:          color,
			Depth:               driver.NewFormatSet(driver.FormatDepth16, driver.FormatDepth24S8, driver.FormatDepth24x8),
			MaxTextureSize:      16384,
			MaxColorAttachments: 8,
			CopyPitchAlign:      256,
			CopyPlacementAlign:  512,
			MaxResourceSlots:    1 << 16,
			MaxSamplerSlots:     2048,
		},
	}
}

func (d *softDriver) Open(adapter string) (driver.GPU, error) {
	info := d.info()
	if adapter != info.Name {
		return nil, errors.Wrapf(driver.ErrNoDevice, "soft: unknown adapter %q", adapter)
	}
	g := &gpu{
		info: info,
		mem:  newMemoryBudget(d.cfg.MemoryBudget),
	}
	g.q = newQueue()
	slogger().Debug("soft: device opened", "adapter", info.Name, "budget", g.mem.budgetBytes)
	return g, nil
}

// Stats counts the work a soft device executed.
type Stats struct {
	Submissions uint64
	Passes      uint64
	Draws       uint64
	Dispatches  uint64
	Copies      uint64
	Blits       uint64
	Presents    uint64
}

// Reporter is implemented by soft devices. Use a type assertion on the
// driver.GPU to reach it.
type Reporter interface {
	Stats() Stats
	Memory() MemoryStats
}

type gpu struct {
	info driver.AdapterInfo
	mem  *memoryBudget
	q    *queue

	submissions atomic.Uint64
	passes      atomic.Uint64
	draws       atomic.Uint64
	dispatches  atomic.Uint64
	copies      atomic.Uint64
	blits       atomic.Uint64
	presents    atomic.Uint64
}

var _ Reporter = (*gpu)(nil)

func (g *gpu) Info() driver.AdapterInfo { return g.info }

func (g *gpu) Stats() Stats {
	return Stats{
		Submissions: g.submissions.Load(),
		Passes:      g.passes.Load(),
		Draws:       g.draws.Load(),
		Dispatches:  g.dispatches.Load(),
		Copies:      g.copies.Load(),
		Blits:       g.blits.Load(),
		Presents:    g.presents.Load(),
	}
}

func (g *gpu) Memory() MemoryStats { return g.mem.stats() }

func (g *gpu) NewBuffer(size int64, usage driver.Usage, heap driver.Heap) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.AssertionFailedf("soft: buffer size %d", size)
	}
	if err := g.mem.reserve(size); err != nil {
		return nil, err
	}
	return &buffer{gpu: g, data: make([]byte, size), usage: usage, heap: heap}, nil
}

func (g *gpu) NewTexture(desc driver.TextureDesc) (driver.Texture, error) {
	if !desc.Format.Valid() || desc.Width <= 0 || desc.Height <= 0 || desc.Mips <= 0 {
		return nil, errors.AssertionFailedf("soft: invalid texture %+v", desc)
	}
	if desc.Width > g.info.Caps.MaxTextureSize || desc.Height > g.info.Caps.MaxTextureSize {
		return nil, errors.AssertionFailedf("soft: texture %dx%d exceeds %d",
			desc.Width, desc.Height, g.info.Caps.MaxTextureSize)
	}
	t := &texture{gpu: g, desc: desc, levels: make([][]byte, desc.Mips)}
	for i := range t.levels {
		w, h := driver.MipSize(desc.Width, desc.Height, i)
		t.size += int64(desc.Format.Size(w, h))
	}
	if err := g.mem.reserve(t.size); err != nil {
		return nil, err
	}
	for i := range t.levels {
		w, h := driver.MipSize(desc.Width, desc.Height, i)
		t.levels[i] = make([]byte, desc.Format.Size(w, h))
	}
	return t, nil
}

func (g *gpu) NewShader(desc driver.ShaderDesc) (driver.Shader, error) {
	if len(desc.Code) == 0 {
		return nil, errors.AssertionFailedf("soft: empty shader blob")
	}
	return &shader{desc: desc}, nil
}

func (g *gpu) NewBindingLayout(entries []driver.BindingEntry) (driver.BindingLayout, error) {
	return &bindingLayout{entries: append([]driver.BindingEntry(nil), entries...)}, nil
}

func (g *gpu) NewPipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	if desc.Vertex == nil || desc.Layout == nil {
		return nil, errors.AssertionFailedf("soft: pipeline without vertex shader or layout")
	}
	for _, f := range desc.ColorFormats {
		if !g.info.Caps.Attachment.Has(f) {
			return nil, errors.Wrapf(driver.ErrUnsupportedFormat, "soft: color target %s", f)
		}
	}
	return &pipeline{graphics: &desc}, nil
}

func (g *gpu) NewComputePipeline(desc driver.ComputeDesc) (driver.Pipeline, error) {
	if desc.Shader == nil || desc.Layout == nil {
		return nil, errors.AssertionFailedf("soft: compute pipeline without shader or layout")
	}
	return &pipeline{compute: &desc}, nil
}

func (g *gpu) NewDescriptorHeap(kind driver.HeapKind, n int) (driver.DescriptorHeap, error) {
	return &descriptorHeap{kind: kind, slots: make([]descriptor, n)}, nil
}

func (g *gpu) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &cmdBuffer{gpu: g}, nil
}

func (g *gpu) NewFence() (driver.Fence, error) { return newFence(), nil }

func (g *gpu) NewSemaphore() (driver.Semaphore, error) { return semaphore{}, nil }

func (g *gpu) Submit(cmds []driver.CmdBuffer, _, _ []driver.Semaphore, fnc driver.Fence, value uint64) error {
	// One queue: semaphores need no work beyond submission order.
	work := make([][]op, 0, len(cmds))
	for _, c := range cmds {
		cb, ok := c.(*cmdBuffer)
		if !ok || cb.gpu != g {
			return errors.Wrap(driver.ErrFatal, "soft: foreign command buffer")
		}
		if cb.recording || !cb.ended {
			return errors.Wrap(driver.ErrFatal, "soft: command buffer not executable")
		}
		work = append(work, cb.ops)
	}
	var f *fence
	if fnc != nil {
		f = fnc.(*fence)
	}
	g.submissions.Add(1)
	g.q.enqueue(func() {
		for _, ops := range work {
			for _, o := range ops {
				o()
			}
		}
	}, f, value)
	return nil
}

func (g *gpu) WaitIdle() error {
	g.q.waitIdle()
	return nil
}

func (g *gpu) Close() {
	g.q.close()
	slogger().Debug("soft: device closed", "memory", g.mem.stats().String())
}
