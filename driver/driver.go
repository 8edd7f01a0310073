// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package driver defines the minimal set of native operations a GPU backend
// must provide. Everything that can be expressed once (staged uploads,
// pipeline caching, binding slot arithmetic, object lifetimes) lives in the
// rhi package on top of these interfaces; backends only allocate, copy,
// create views and submit.
//
// Backends register themselves from an init function:
//
//	func init() { driver.Register(&softDriver{}) }
//
// and client code selects one through rhi.CreateDevice.
package driver

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Driver loads an underlying native API and opens devices on its adapters.
type Driver interface {
	// Name returns the name of the driver.
	// It must not cause the native API to be loaded.
	Name() string

	// Adapters enumerates the adapters exposed by the native API.
	Adapters() ([]AdapterInfo, error)

	// Open creates a device on the adapter whose name is exactly adapter.
	// Each call returns a distinct GPU.
	Open(adapter string) (GPU, error)
}

// ErrNotInstalled means that a platform library required by the driver
// is not present in the system.
var ErrNotInstalled = errors.New("driver: missing required library")

// ErrNoDevice means that no suitable adapter could be found.
var ErrNoDevice = errors.New("driver: no suitable device found")

// ErrNoDeviceMemory means that device memory could not be allocated.
var ErrNoDeviceMemory = errors.New("driver: out of device memory")

// ErrUnsupportedFormat means that the native API rejected a pixel format.
var ErrUnsupportedFormat = errors.New("driver: unsupported format")

// ErrFatal means that the native API reported a broken invariant
// (invalid arguments, device removed). The device cannot be used anymore.
var ErrFatal = errors.New("driver: fatal error")

var (
	mu      sync.Mutex
	drivers = make([]Driver, 0, 2)
)

// Register registers a Driver.
// If a driver with the same name is already registered it is replaced.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			return
		}
	}
	drivers = append(drivers, drv)
}

// Drivers returns the registered drivers in registration order.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, len(drivers))
	copy(drv, drivers)
	return drv
}
