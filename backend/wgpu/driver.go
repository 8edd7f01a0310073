// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

// DriverName is the name the default wgpu driver registers under.
const DriverName = "wgpu"

const (
	// SamplerBindingOffset is the distance between a texture binding and
	// the binding of its sampler.
	SamplerBindingOffset = 16

	// Descriptor heaps live on the CPU; these bound their size.
	maxResourceSlots = 1 << 16
	maxSamplerSlots  = 4096

	copyPlacementAlign = 4
)

// Config configures a wgpu driver.
type Config struct {
	// DriverName defaults to DriverName.
	DriverName string

	// Backends restricts the HAL backends that are enumerated.
	// Zero means every registered backend.
	Backends gputypes.Backends

	// Flags are passed to every HAL instance.
	Flags gputypes.InstanceFlags
}

func init() {
	driver.Register(New(Config{}))
}

// New returns a wgpu driver. Register it with driver.Register or pass it to
// rhi.WithDriver.
func New(cfg Config) driver.Driver {
	if cfg.DriverName == "" {
		cfg.DriverName = DriverName
	}
	return &wgpuDriver{cfg: cfg}
}

type wgpuDriver struct {
	cfg Config
}

func (d *wgpuDriver) Name() string { return d.cfg.DriverName }

// adapter is an exposed adapter together with the instance owning it.
type adapter struct {
	instance hal.Instance
	exposed  hal.ExposedAdapter
	info     driver.AdapterInfo
}

// enumerate creates one instance per selected backend and lists its
// adapters. The caller destroys what it does not keep.
func (d *wgpuDriver) enumerate() ([]adapter, error) {
	variants := hal.AvailableBackends()
	if len(variants) == 0 {
		return nil, errors.Wrap(driver.ErrNotInstalled,
			"wgpu: no HAL backend linked (import github.com/gogpu/wgpu/hal/allbackends)")
	}
	slices.Sort(variants)
	var out []adapter
	for _, v := range variants {
		// Backends.Contains never matches BackendEmpty, so test the bit.
		if d.cfg.Backends != 0 && d.cfg.Backends&(gputypes.Backends(1)<<v) == 0 {
			continue
		}
		b, ok := hal.GetBackend(v)
		if !ok {
			continue
		}
		inst, err := b.CreateInstance(&hal.InstanceDescriptor{
			Backends: gputypes.Backends(1) << v,
			Flags:    d.cfg.Flags,
		})
		if err != nil {
			slogger().Debug("wgpu: backend unavailable", "backend", v, "error", err)
			continue
		}
		exposed := inst.EnumerateAdapters(nil)
		if len(exposed) == 0 {
			inst.Destroy()
			continue
		}
		for _, e := range exposed {
			out = append(out, adapter{
				instance: inst,
				exposed:  e,
				info: driver.AdapterInfo{
					Name: adapterName(e.Info),
					Type: adapterType(e.Info.DeviceType),
					Caps: capsOf(e.Adapter, e.Features, e.Capabilities),
				},
			})
		}
	}
	return out, nil
}

func adapterName(info gputypes.AdapterInfo) string {
	return fmt.Sprintf("%s (%s)", info.Name, info.Backend)
}

// release destroys the adapters and instances in as, except keep.
func release(as []adapter, keep *adapter) {
	seen := make(map[hal.Instance]bool)
	for i := range as {
		a := &as[i]
		if keep != nil && a.exposed.Adapter == keep.exposed.Adapter {
			continue
		}
		a.exposed.Adapter.Destroy()
	}
	for i := range as {
		inst := as[i].instance
		if seen[inst] || (keep != nil && inst == keep.instance) {
			continue
		}
		seen[inst] = true
		inst.Destroy()
	}
}

func (d *wgpuDriver) Adapters() ([]driver.AdapterInfo, error) {
	as, err := d.enumerate()
	if err != nil {
		return nil, err
	}
	defer release(as, nil)
	infos := make([]driver.AdapterInfo, len(as))
	for i, a := range as {
		infos[i] = a.info
	}
	return infos, nil
}

func (d *wgpuDriver) Open(name string) (driver.GPU, error) {
	as, err := d.enumerate()
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(as, func(a adapter) bool { return a.info.Name == name })
	if i < 0 {
		release(as, nil)
		return nil, errors.Wrapf(driver.ErrNoDevice, "wgpu: unknown adapter %q", name)
	}
	a := as[i]
	release(as, &a)

	open, err := a.exposed.Adapter.Open(a.exposed.Features, a.exposed.Capabilities.Limits)
	if err != nil {
		a.exposed.Adapter.Destroy()
		a.instance.Destroy()
		return nil, errors.Wrapf(halError(err), "wgpu: open %s", name)
	}
	g := newGPU(a.info, open.Device, open.Queue, a.exposed.Capabilities.Limits)
	g.instance = a.instance
	g.adapter = a.exposed.Adapter
	g.owned = true
	slogger().Info("wgpu: device opened", "adapter", name, "driver", a.exposed.Info.Driver)
	return g, nil
}

// halDevice is implemented by devices that expose their HAL objects,
// such as *wgpu.Device.
type halDevice interface {
	HalDevice() hal.Device
	HalQueue() hal.Queue
}

// Adopt wraps the device of p. The returned GPU does not own the device:
// closing it destroys only the objects created through it.
//
// The adapter behind p cannot be queried, so the capability table holds
// what WebGPU guarantees on every adapter.
func Adopt(p gpucontext.DeviceProvider) (driver.GPU, error) {
	hd, ok := p.Device().(halDevice)
	if !ok {
		return nil, errors.Wrapf(driver.ErrNoDevice, "wgpu: device %T exposes no HAL device", p.Device())
	}
	dev, queue := hd.HalDevice(), hd.HalQueue()
	if dev == nil || queue == nil {
		return nil, errors.Wrap(driver.ErrNoDevice, "wgpu: device was released")
	}
	pi := p.AdapterInfo()
	info := driver.AdapterInfo{
		Name: pi.Name,
		Type: providerType(pi.Type),
		Caps: baselineCaps(gputypes.DefaultLimits()),
	}
	g := newGPU(info, dev, queue, gputypes.DefaultLimits())
	g.surfaceFormat = p.SurfaceFormat()
	slogger().Info("wgpu: device adopted", "adapter", pi.Name)
	return g, nil
}

func providerType(t gpucontext.AdapterType) driver.AdapterType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return driver.AdapterDiscrete
	case gpucontext.AdapterTypeIntegrated:
		return driver.AdapterIntegrated
	case gpucontext.AdapterTypeSoftware:
		return driver.AdapterCPU
	}
	return driver.AdapterOther
}

// halError maps HAL errors onto the driver taxonomy.
func halError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return errors.Mark(err, driver.ErrNoDeviceMemory)
	case errors.Is(err, hal.ErrDeviceLost), errors.Is(err, hal.ErrDriverBug):
		return errors.Mark(err, driver.ErrFatal)
	}
	return err
}
