// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/cases"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/internal/slots"
)

// Capabilities is the immutable capability table of an adapter.
type Capabilities struct {
	caps driver.Caps
}

// SupportsSampled reports whether textures of format f can be sampled.
func (c Capabilities) SupportsSampled(f TextureFormat) bool { return c.caps.Sampled.Has(f) }

// SupportsAttachment reports whether f can be a color attachment.
func (c Capabilities) SupportsAttachment(f TextureFormat) bool {
	return !f.IsDepth() && c.caps.Attachment.Has(f)
}

// SupportsDepth reports whether f can be a depth attachment.
func (c Capabilities) SupportsDepth(f TextureFormat) bool { return f.IsDepth() && c.caps.Depth.Has(f) }

// MaxTextureSize returns the largest texture dimension.
func (c Capabilities) MaxTextureSize() int { return c.caps.MaxTextureSize }

// MaxColorAttachments returns the largest number of color attachments.
func (c Capabilities) MaxColorAttachments() int { return c.caps.MaxColorAttachments }

// capable reports whether an adapter can run the layer at all.
func (c Capabilities) capable() bool {
	if !c.SupportsSampled(RGBA8) || !c.SupportsAttachment(RGBA8) {
		return false
	}
	for _, f := range []TextureFormat{Depth24S8, Depth24x8, Depth16} {
		if c.SupportsDepth(f) {
			return true
		}
	}
	return false
}

// AdapterInfo describes an adapter found by ListDevices.
type AdapterInfo struct {
	Name   string
	Type   AdapterType
	Driver string
	Caps   Capabilities
}

type candidate struct {
	drv  driver.Driver
	info driver.AdapterInfo
}

func enumerate(o options) []candidate {
	drivers := o.drivers
	if len(drivers) == 0 {
		drivers = driver.Drivers()
	}
	var out []candidate
	for _, drv := range drivers {
		infos, err := drv.Adapters()
		if err != nil {
			Logger().Debug("rhi: driver unavailable", "driver", drv.Name(), "error", err)
			continue
		}
		for _, info := range infos {
			out = append(out, candidate{drv: drv, info: info})
		}
	}
	return out
}

// ListDevices returns every adapter of the registered drivers, or of the
// drivers given with WithDriver.
func ListDevices(opts ...Option) ([]AdapterInfo, error) {
	o := applyOptions(opts)
	cands := enumerate(o)
	out := make([]AdapterInfo, 0, len(cands))
	for _, c := range cands {
		out = append(out, AdapterInfo{
			Name:   c.info.Name,
			Type:   c.info.Type,
			Driver: c.drv.Name(),
			Caps:   Capabilities{caps: c.info.Caps},
		})
	}
	return out, nil
}

// sameName compares adapter names with Unicode case folding.
func sameName(a, b string) bool {
	return cases.Fold().String(a) == cases.Fold().String(b)
}

// CreateDevice opens the first capable hardware adapter, or the adapter
// called name when name is not empty. CPU adapters are picked only by name
// or when WithSoftwareFallback is given and no hardware adapter qualifies.
// An empty name falls back to the adapter named by WithConfig. It fails
// with ErrNoDevice when no adapter qualifies.
func CreateDevice(name string, opts ...Option) (*Device, error) {
	o := applyOptions(opts)
	if name == "" {
		name = o.adapter
	}
	cands := enumerate(o)

	pick := func(cpu bool) (candidate, bool) {
		for _, c := range cands {
			if name != "" && !sameName(c.info.Name, name) {
				continue
			}
			if name == "" && (c.info.Type == AdapterCPU) != cpu {
				continue
			}
			if !(Capabilities{caps: c.info.Caps}).capable() {
				Logger().Debug("rhi: adapter not capable", "adapter", c.info.Name)
				continue
			}
			return c, true
		}
		return candidate{}, false
	}

	c, ok := pick(false)
	if !ok && name == "" && o.softwareFallback {
		c, ok = pick(true)
		if ok {
			Logger().Warn("rhi: using software adapter", "adapter", c.info.Name)
		}
	}
	if !ok {
		if name != "" {
			return nil, errors.Wrapf(ErrNoDevice, "rhi: adapter %q", name)
		}
		return nil, ErrNoDevice
	}

	gpu, err := c.drv.Open(c.info.Name)
	if err != nil {
		return nil, translate(err, "rhi: open %s", c.info.Name)
	}
	dev, err := newDevice(gpu, c.drv.Name(), o)
	if err != nil {
		gpu.Close()
		return nil, err
	}
	return dev, nil
}

// NewDevice wraps an already open native device, such as one adopted from
// a host application. driverName is reported in the device's AdapterInfo.
// The device takes ownership of gpu and closes it on Close.
func NewDevice(gpu driver.GPU, driverName string, opts ...Option) (*Device, error) {
	info := gpu.Info()
	if !(Capabilities{caps: info.Caps}).capable() {
		return nil, errors.Wrapf(ErrNoDevice, "rhi: adapter %q is not capable", info.Name)
	}
	return newDevice(gpu, driverName, applyOptions(opts))
}

// Device owns one adapter, its queue and every object created from it.
//
// Thread Safety:
// Device methods may be called from any goroutine. Command buffers are
// recorded by one goroutine at a time.
type Device struct {
	gpu    driver.GPU
	info   AdapterInfo
	caps   Capabilities
	opts   options
	closed atomic.Bool

	// timeline advances once per queue submission.
	timeline  driver.Fence
	queueMu   sync.Mutex
	lastValue atomic.Uint64

	retireMu sync.Mutex
	inflight []submission

	uploadMu sync.Mutex
	batch    *uploadBatch

	resHeap  driver.DescriptorHeap
	smpHeap  driver.DescriptorHeap
	resSlots *slots.List
	smpSlots *slots.List

	frameMu     sync.Mutex
	frameValues []uint64
	frame       int
}

func newDevice(gpu driver.GPU, drvName string, o options) (_ *Device, err error) {
	info := gpu.Info()
	d := &Device{
		gpu:         gpu,
		caps:        Capabilities{caps: info.Caps},
		opts:        o,
		frameValues: make([]uint64, o.framesInFlight),
	}
	d.info = AdapterInfo{Name: info.Name, Type: info.Type, Driver: drvName, Caps: d.caps}

	defer func() {
		if err != nil {
			d.destroyNative()
		}
	}()
	if d.timeline, err = gpu.NewFence(); err != nil {
		return nil, translate(err, "rhi: timeline fence")
	}
	res, smp := o.resourceSlots, o.samplerSlots
	if limit := info.Caps.MaxResourceSlots; limit > 0 {
		res = min(res, limit)
	}
	if limit := info.Caps.MaxSamplerSlots; limit > 0 {
		smp = min(smp, limit)
	}
	if d.resHeap, err = gpu.NewDescriptorHeap(driver.HeapResources, res); err != nil {
		return nil, translate(err, "rhi: resource heap")
	}
	if d.smpHeap, err = gpu.NewDescriptorHeap(driver.HeapSamplers, smp); err != nil {
		return nil, translate(err, "rhi: sampler heap")
	}
	d.resSlots = slots.New(res)
	d.smpSlots = slots.New(smp)

	Logger().Info("rhi: device created",
		"adapter", info.Name, "type", info.Type, "driver", drvName,
		"resourceSlots", res, "samplerSlots", smp, "framesInFlight", o.framesInFlight)
	return d, nil
}

// Adapter describes the adapter the device runs on.
func (d *Device) Adapter() AdapterInfo { return d.info }

// Capabilities returns the capability table of the device.
func (d *Device) Capabilities() Capabilities { return d.caps }

// Native returns the backend device.
func (d *Device) Native() driver.GPU { return d.gpu }

// DescriptorUsage reports how many resource and sampler slots are in use.
func (d *Device) DescriptorUsage() (resources, samplers int) {
	return d.resSlots.Used(), d.smpSlots.Used()
}

func (d *Device) checkOpen() error {
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	return nil
}

// WaitIdle blocks until every submission retired and releases everything
// they retained.
func (d *Device) WaitIdle() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if err := d.Commit(); err != nil {
		return err
	}
	if err := d.gpu.WaitIdle(); err != nil {
		return translate(err, "rhi: wait idle")
	}
	d.collect()
	return nil
}

// Close drains the queue and destroys the device. Objects created from the
// device must not be used afterwards.
func (d *Device) Close() {
	if d.closed.Load() {
		return
	}
	if err := d.WaitIdle(); err != nil {
		Logger().Warn("rhi: wait idle on close", "error", err)
	}
	d.closed.Store(true)
	d.destroyNative()
	d.gpu.Close()
	Logger().Info("rhi: device closed", "adapter", d.info.Name)
}

func (d *Device) destroyNative() {
	if d.resHeap != nil {
		d.resHeap.Destroy()
	}
	if d.smpHeap != nil {
		d.smpHeap.Destroy()
	}
	if d.timeline != nil {
		d.timeline.Destroy()
	}
}
