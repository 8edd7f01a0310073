// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

// SwapchainImages is the number of images in a wgpu swapchain.
const SwapchainImages = 3

// Window is a native window to present to. The values are the platform
// handles hal.Instance.CreateSurface takes.
type Window struct {
	Display uintptr
	Handle  uintptr
}

// presented is the encoding of one present, kept until it completed.
type presented struct {
	index     uint64
	raw       hal.CommandEncoder
	buf       hal.CommandBuffer
	view      hal.TextureView
	transient []hal.BindGroup
}

// swapchain renders into images it owns and blits the presented image
// onto the surface texture. Owned images rest in the sampled usage.
type swapchain struct {
	gpu         *gpu
	surface     hal.Surface
	ownsSurface bool
	format      gputypes.TextureFormat

	mu       sync.Mutex
	images   []driver.Texture
	next     int
	width    int
	height   int
	inflight []presented
}

func (g *gpu) NewSwapchain(surface driver.Surface, width, height int) (driver.Swapchain, error) {
	s := &swapchain{gpu: g}
	switch v := surface.(type) {
	case Window:
		if g.instance == nil {
			return nil, errors.Wrap(driver.ErrNoDevice, "wgpu: adopted devices present to a hal.Surface only")
		}
		raw, err := g.instance.CreateSurface(v.Display, v.Handle)
		if err != nil {
			return nil, errors.Wrap(halError(err), "wgpu: create surface")
		}
		s.surface, s.ownsSurface = raw, true
	case hal.Surface:
		s.surface = v
	default:
		return nil, errors.AssertionFailedf("wgpu: surface of type %T", surface)
	}
	s.format = g.surfaceFormatFor(s.surface)
	if err := s.Resize(width, height); err != nil {
		if s.ownsSurface {
			s.surface.Destroy()
		}
		return nil, err
	}
	return s, nil
}

// surfaceFormatFor picks RGBA8 when the surface supports it.
func (g *gpu) surfaceFormatFor(surface hal.Surface) gputypes.TextureFormat {
	if g.adapter == nil {
		if g.surfaceFormat != gputypes.TextureFormatUndefined {
			return g.surfaceFormat
		}
		return gputypes.TextureFormatBGRA8Unorm
	}
	caps := g.adapter.SurfaceCapabilities(surface)
	if caps == nil || len(caps.Formats) == 0 {
		return gputypes.TextureFormatBGRA8Unorm
	}
	if slices.Contains(caps.Formats, gputypes.TextureFormatRGBA8Unorm) {
		return gputypes.TextureFormatRGBA8Unorm
	}
	return caps.Formats[0]
}

func (s *swapchain) Format() driver.TextureFormat { return driver.FormatRGBA8 }

func (s *swapchain) Images() []driver.Texture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]driver.Texture(nil), s.images...)
}

func (s *swapchain) configure(width, height int) error {
	err := s.surface.Configure(s.gpu.dev, &hal.SurfaceConfiguration{
		Width:       uint32(width),
		Height:      uint32(height),
		Format:      s.format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: hal.PresentModeFifo,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		return errors.Wrapf(halError(err), "wgpu: configure %dx%d surface", width, height)
	}
	return nil
}

// Resize is called with the device idle.
func (s *swapchain) Resize(width, height int) error {
	if err := s.configure(width, height); err != nil {
		return err
	}
	imgs := make([]driver.Texture, 0, SwapchainImages)
	for i := 0; i < SwapchainImages; i++ {
		t, err := s.gpu.NewTexture(driver.TextureDesc{
			Width:  width,
			Height: height,
			Mips:   1,
			Format: driver.FormatRGBA8,
			Usage:  driver.UsageColorAttachment | driver.UsageCopySrc | driver.UsageSampled,
		})
		if err != nil {
			for _, t := range imgs {
				t.Destroy()
			}
			return errors.Wrap(err, "wgpu: swapchain image")
		}
		t.(*texture).present = gputypes.TextureUsageTextureBinding
		imgs = append(imgs, t)
	}
	s.mu.Lock()
	old := s.images
	s.images = imgs
	s.next = 0
	s.width, s.height = width, height
	s.mu.Unlock()
	for _, t := range old {
		t.Destroy()
	}
	return nil
}

func (s *swapchain) Acquire(driver.Semaphore) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.next
	s.next = (s.next + 1) % len(s.images)
	return i, nil
}

// acquire returns the next surface texture, reconfiguring the surface
// once if it went out of date.
func (s *swapchain) acquire() (*hal.AcquiredSurfaceTexture, error) {
	for attempt := 0; ; attempt++ {
		st, err := s.surface.AcquireTexture(nil)
		switch {
		case err == nil:
			if st.Suboptimal {
				slogger().Debug("wgpu: suboptimal surface texture")
			}
			return st, nil
		case attempt > 0:
			return nil, errors.Wrap(halError(err), "wgpu: acquire surface texture")
		case errors.Is(err, hal.ErrSurfaceOutdated):
			if err := s.configure(s.width, s.height); err != nil {
				return nil, err
			}
		case errors.Is(err, hal.ErrNotReady), errors.Is(err, hal.ErrTimeout):
		default:
			return nil, errors.Wrap(halError(err), "wgpu: acquire surface texture")
		}
	}
}

// Present blits image onto a surface texture and presents it. Work of
// earlier presents is released once the queue completed it.
func (s *swapchain) Present(image int, _ driver.Semaphore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if image < 0 || image >= len(s.images) {
		return errors.AssertionFailedf("wgpu: present of image %d out of %d", image, len(s.images))
	}
	src := s.images[image].(*texture)

	g := s.gpu
	g.submitMu.Lock()
	defer g.submitMu.Unlock()
	s.retire(g.queue.PollCompleted())

	st, err := s.acquire()
	if err != nil {
		return err
	}
	p, err := s.encode(st.Texture, src)
	if err != nil {
		s.surface.DiscardTexture(st.Texture)
		return err
	}
	idx, err := g.queue.Submit([]hal.CommandBuffer{p.buf})
	if err != nil {
		s.free(p)
		s.surface.DiscardTexture(st.Texture)
		return errors.Wrap(halError(err), "wgpu: submit present")
	}
	g.lastIndex = idx
	p.index = idx
	s.inflight = append(s.inflight, p)
	if err := g.queue.Present(s.surface, st.Texture, nil); err != nil {
		if errors.Is(err, hal.ErrSurfaceOutdated) {
			return s.configure(s.width, s.height)
		}
		return errors.Wrap(halError(err), "wgpu: present")
	}
	return nil
}

func (s *swapchain) encode(dst hal.SurfaceTexture, src *texture) (presented, error) {
	g := s.gpu
	var p presented
	view, err := g.dev.CreateTextureView(dst, &hal.TextureViewDescriptor{
		Label:           "rhi surface",
		Format:          s.format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return p, errors.Wrap(halError(err), "wgpu: surface view")
	}
	p.view = view
	raw, err := g.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "rhi present"})
	if err != nil {
		s.free(p)
		return p, errors.Wrap(halError(err), "wgpu: command encoder")
	}
	p.raw = raw
	if err := raw.BeginEncoding("rhi present"); err != nil {
		s.free(p)
		return p, errors.Wrap(halError(err), "wgpu: begin encoding")
	}
	e := &encoder{gpu: g, raw: raw}
	e.blitPass(view, s.format, src, 0, src.present)
	p.transient = e.transient
	if e.err != nil {
		raw.DiscardEncoding()
		s.free(p)
		return p, e.err
	}
	buf, err := raw.EndEncoding()
	if err != nil {
		s.free(p)
		return p, errors.Wrap(halError(err), "wgpu: end encoding")
	}
	p.buf = buf
	return p, nil
}

func (s *swapchain) free(p presented) {
	dev := s.gpu.dev
	for _, g := range p.transient {
		dev.DestroyBindGroup(g)
	}
	if p.buf != nil {
		dev.FreeCommandBuffer(p.buf)
	}
	if p.raw != nil {
		p.raw.Destroy()
	}
	if p.view != nil {
		dev.DestroyTextureView(p.view)
	}
}

// retire frees the presents whose submission index is at most done.
func (s *swapchain) retire(done uint64) {
	n := 0
	for _, p := range s.inflight {
		if p.index > done {
			break
		}
		s.free(p)
		n++
	}
	s.inflight = slices.Delete(s.inflight, 0, n)
}

func (s *swapchain) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gpu.dev.WaitIdle(); err != nil {
		slogger().Warn("wgpu: wait idle before swapchain destroy", "error", err)
	}
	for _, p := range s.inflight {
		s.free(p)
	}
	s.inflight = nil
	for _, t := range s.images {
		t.Destroy()
	}
	s.images = nil
	s.surface.Unconfigure(s.gpu.dev)
	if s.ownsSurface {
		s.surface.Destroy()
	}
}
