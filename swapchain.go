// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// Swapchain is a ring of presentable images on a platform surface.
//
// Swapchain images rest in LayoutPresent. They are owned by the swapchain;
// Destroy on an image does nothing.
type Swapchain struct {
	dev    *Device
	native driver.Swapchain

	mu     sync.Mutex
	images []*Texture
}

// CreateSwapchain creates a swapchain on surface, an opaque handle from
// the windowing layer.
func (d *Device) CreateSwapchain(surface driver.Surface, width, height int) (*Swapchain, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	native, err := d.gpu.NewSwapchain(surface, width, height)
	if err != nil {
		return nil, translate(err, "rhi: create %dx%d swapchain", width, height)
	}
	sw := &Swapchain{dev: d, native: native}
	if err := sw.wrap(); err != nil {
		native.Destroy()
		return nil, err
	}
	Logger().Info("rhi: swapchain created", "width", width, "height", height,
		"images", len(sw.images), "format", native.Format().String())
	return sw, nil
}

// wrap adopts the native images and queues their move to LayoutPresent.
func (sw *Swapchain) wrap() error {
	natives := sw.native.Images()
	images := make([]*Texture, len(natives))
	for i, n := range natives {
		t := newTexture(sw.dev, n, LayoutPresent)
		t.release = nil
		t.swapchain = true
		images[i] = t
	}
	sw.mu.Lock()
	sw.images = images
	sw.mu.Unlock()
	return sw.dev.record(func(cmd driver.CmdBuffer, _ *retainList) {
		for _, t := range images {
			cmd.Transition(t.native, 0, LayoutUndefined, LayoutPresent)
		}
	})
}

// Len returns the number of images.
func (sw *Swapchain) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.images)
}

// Format returns the pixel format of the images.
func (sw *Swapchain) Format() TextureFormat { return sw.native.Format() }

// Image returns image i.
func (sw *Swapchain) Image(i int) *Texture {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	invariant(i >= 0 && i < len(sw.images), "rhi: swapchain image %d of %d", i, len(sw.images))
	return sw.images[i]
}

// Acquire returns the index of the next image. signal, if not nil, is
// signaled once the image can be rendered to.
func (sw *Swapchain) Acquire(signal *Semaphore) (int, error) {
	d := sw.dev
	if err := d.checkOpen(); err != nil {
		return 0, err
	}
	var native driver.Semaphore
	var sems []*Semaphore
	if signal != nil {
		native = signal.native
		sems = []*Semaphore{signal}
	}
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	checkSemaphores(nil, sems)
	i, err := sw.native.Acquire(native)
	if err != nil {
		return 0, translate(err, "rhi: acquire swapchain image")
	}
	applySemaphores(nil, sems)
	return i, nil
}

// Resize recreates the images. It waits for the device to go idle first,
// so framebuffers of the old images must not be used afterwards.
func (sw *Swapchain) Resize(width, height int) error {
	if err := sw.dev.WaitIdle(); err != nil {
		return err
	}
	if err := sw.native.Resize(width, height); err != nil {
		return translate(err, "rhi: resize swapchain to %dx%d", width, height)
	}
	Logger().Debug("rhi: swapchain resized", "width", width, "height", height)
	return sw.wrap()
}

// Destroy waits for the device to go idle and destroys the swapchain.
func (sw *Swapchain) Destroy() {
	if err := sw.dev.WaitIdle(); err != nil {
		Logger().Warn("rhi: wait idle before swapchain destroy", "error", err)
	}
	sw.native.Destroy()
	sw.mu.Lock()
	sw.images = nil
	sw.mu.Unlock()
}

// Present queues image of sw for presentation after wait is signaled.
//
// Present does not wait for the GPU to render the image. It records the
// last submission as the end of the current frame and then blocks until
// the frame that used the next frame slot retired, so at most
// MaxFramesInFlight frames are pending on the GPU.
func (d *Device) Present(sw *Swapchain, image int, wait *Semaphore) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	var native driver.Semaphore
	var sems []*Semaphore
	if wait != nil {
		native = wait.native
		sems = []*Semaphore{wait}
	}

	last, err := d.present(sw, image, native, sems)
	if err != nil {
		return err
	}
	return d.endFrame(last)
}

// present hands image to the swapchain under queueMu and returns the
// timeline value of the last submission before it.
func (d *Device) present(sw *Swapchain, image int, native driver.Semaphore, sems []*Semaphore) (uint64, error) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	if err := d.commitLocked(); err != nil {
		return 0, err
	}
	checkSemaphores(sems, nil)
	if err := sw.native.Present(image, native); err != nil {
		return 0, translate(err, "rhi: present image %d", image)
	}
	applySemaphores(sems, nil)
	return d.lastValue.Load(), nil
}

// endFrame closes the current frame at timeline value last and waits for
// the frame slot it moves to.
func (d *Device) endFrame(last uint64) error {
	d.frameMu.Lock()
	d.frameValues[d.frame] = last
	d.frame = (d.frame + 1) % len(d.frameValues)
	v := d.frameValues[d.frame]
	d.frameMu.Unlock()

	if v > 0 && d.timeline.Completed() < v {
		ok, err := d.timeline.Wait(v, d.opts.fenceTimeout)
		if err != nil {
			fatal(errors.Wrapf(err, "rhi: wait for frame at value %d", v))
		}
		if !ok {
			return errors.Wrapf(ErrTimeout, "rhi: frame at timeline value %d", v)
		}
	}
	d.collect()
	return nil
}

// FrameIndex returns the current frame slot, in [0, MaxFramesInFlight).
func (d *Device) FrameIndex() int {
	d.frameMu.Lock()
	defer d.frameMu.Unlock()
	return d.frame
}

// MaxFramesInFlight returns the number of frame slots.
func (d *Device) MaxFramesInFlight() int { return len(d.frameValues) }
