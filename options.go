// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"time"

	"github.com/gogpu/rhi/driver"
)

// Option configures device enumeration and creation.
// Use functional options to customize Device behavior.
//
// Example:
//
//	// First hardware adapter of any registered driver
//	dev, err := rhi.CreateDevice("")
//
//	// Pin the driver and allow CPU adapters
//	dev, err := rhi.CreateDevice("", rhi.WithDriver(soft.New(soft.Config{})),
//	    rhi.WithSoftwareFallback())
type Option func(*options)

// options holds optional configuration for Device creation.
type options struct {
	drivers          []driver.Driver
	adapter          string
	softwareFallback bool
	framesInFlight   int
	resourceSlots    int
	samplerSlots     int
	fenceTimeout     time.Duration
}

// Default option values.
const (
	DefaultMaxFramesInFlight = 2
	DefaultResourceSlots     = 4096
	DefaultSamplerSlots      = 512
	DefaultFenceTimeout      = 5 * time.Second
)

// defaultOptions returns the default device options.
func defaultOptions() options {
	return options{
		framesInFlight: DefaultMaxFramesInFlight,
		resourceSlots:  DefaultResourceSlots,
		samplerSlots:   DefaultSamplerSlots,
		fenceTimeout:   DefaultFenceTimeout,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDriver restricts enumeration to the given drivers instead of every
// registered one. Drivers passed here need not be registered.
func WithDriver(drv ...driver.Driver) Option {
	return func(o *options) {
		o.drivers = append(o.drivers, drv...)
	}
}

// WithSoftwareFallback lets CreateDevice pick a CPU adapter when no
// hardware adapter qualifies.
func WithSoftwareFallback() Option {
	return func(o *options) {
		o.softwareFallback = true
	}
}

// WithMaxFramesInFlight sets how many presented frames may be pending on
// the GPU before Present blocks. Values below 1 are ignored.
func WithMaxFramesInFlight(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.framesInFlight = n
		}
	}
}

// WithDescriptorCapacity sets the size of the device-wide resource and
// sampler descriptor heaps. Values are clamped to the adapter limits.
func WithDescriptorCapacity(resources, samplers int) Option {
	return func(o *options) {
		if resources > 0 {
			o.resourceSlots = resources
		}
		if samplers > 0 {
			o.samplerSlots = samplers
		}
	}
}

// WithFenceTimeout bounds the internal waits of synchronous helpers such as
// ReadPixels. A negative value waits forever.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fenceTimeout = d
	}
}

// WithConfig applies a loaded Config.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		if cfg.Adapter != "" {
			o.adapter = cfg.Adapter
		}
		if cfg.SoftwareFallback {
			o.softwareFallback = true
		}
		WithMaxFramesInFlight(cfg.MaxFramesInFlight)(o)
		WithDescriptorCapacity(cfg.ResourceSlots, cfg.SamplerSlots)(o)
		if cfg.FenceTimeoutMS != 0 {
			o.fenceTimeout = time.Duration(cfg.FenceTimeoutMS) * time.Millisecond
		}
	}
}
