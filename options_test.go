// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"testing"
	"time"

	"github.com/gogpu/rhi/backend/soft"
)

// TestDefaultOptions verifies the option defaults.
func TestDefaultOptions(t *testing.T) {
	o := applyOptions(nil)
	if o.softwareFallback {
		t.Error("software fallback should be off by default")
	}
	if o.framesInFlight != DefaultMaxFramesInFlight {
		t.Errorf("framesInFlight = %d, want %d", o.framesInFlight, DefaultMaxFramesInFlight)
	}
	if o.resourceSlots != DefaultResourceSlots || o.samplerSlots != DefaultSamplerSlots {
		t.Errorf("slots = %d/%d, want %d/%d", o.resourceSlots, o.samplerSlots, DefaultResourceSlots, DefaultSamplerSlots)
	}
	if o.fenceTimeout != DefaultFenceTimeout {
		t.Errorf("fenceTimeout = %v, want %v", o.fenceTimeout, DefaultFenceTimeout)
	}
	if len(o.drivers) != 0 {
		t.Errorf("drivers = %d, want none", len(o.drivers))
	}
}

// TestOptionsIgnoreInvalidValues verifies that out of range values keep
// the defaults.
func TestOptionsIgnoreInvalidValues(t *testing.T) {
	o := applyOptions([]Option{
		WithMaxFramesInFlight(0),
		WithMaxFramesInFlight(-3),
		WithDescriptorCapacity(0, -1),
	})
	if o.framesInFlight != DefaultMaxFramesInFlight {
		t.Errorf("framesInFlight = %d, want %d", o.framesInFlight, DefaultMaxFramesInFlight)
	}
	if o.resourceSlots != DefaultResourceSlots || o.samplerSlots != DefaultSamplerSlots {
		t.Errorf("slots = %d/%d, want defaults", o.resourceSlots, o.samplerSlots)
	}
}

// TestOptionsApplyInOrder verifies that later options win.
func TestOptionsApplyInOrder(t *testing.T) {
	a, b := soft.New(soft.Config{DriverName: "a"}), soft.New(soft.Config{DriverName: "b"})
	o := applyOptions([]Option{
		WithMaxFramesInFlight(4),
		WithMaxFramesInFlight(1),
		WithDescriptorCapacity(100, 0),
		WithDescriptorCapacity(0, 10),
		WithFenceTimeout(-1),
		WithDriver(a),
		WithDriver(b),
		WithSoftwareFallback(),
	})
	if o.framesInFlight != 1 {
		t.Errorf("framesInFlight = %d, want 1", o.framesInFlight)
	}
	if o.resourceSlots != 100 || o.samplerSlots != 10 {
		t.Errorf("slots = %d/%d, want 100/10", o.resourceSlots, o.samplerSlots)
	}
	if o.fenceTimeout != -1 {
		t.Errorf("fenceTimeout = %v, want -1", o.fenceTimeout)
	}
	if len(o.drivers) != 2 || o.drivers[0].Name() != "a" || o.drivers[1].Name() != "b" {
		t.Errorf("drivers not appended in order")
	}
	if !o.softwareFallback {
		t.Error("WithSoftwareFallback had no effect")
	}
}

// TestWithConfig verifies that a loaded Config maps onto options.
func TestWithConfig(t *testing.T) {
	o := applyOptions([]Option{WithConfig(Config{
		SoftwareFallback:  true,
		MaxFramesInFlight: 3,
		ResourceSlots:     1024,
		FenceTimeoutMS:    250,
	})})
	if !o.softwareFallback || o.framesInFlight != 3 || o.resourceSlots != 1024 {
		t.Errorf("WithConfig() = %+v", o)
	}
	if o.samplerSlots != DefaultSamplerSlots {
		t.Errorf("unset sampler_slots changed samplerSlots to %d", o.samplerSlots)
	}
	if o.fenceTimeout != 250*time.Millisecond {
		t.Errorf("fenceTimeout = %v, want 250ms", o.fenceTimeout)
	}

	o = applyOptions([]Option{WithFenceTimeout(time.Second), WithConfig(Config{})})
	if o.fenceTimeout != time.Second {
		t.Errorf("an empty Config overrode fenceTimeout to %v", o.fenceTimeout)
	}
}
