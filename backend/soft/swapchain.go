// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// SwapchainImages is the number of images in a soft swapchain.
const SwapchainImages = 3

// PresentFunc receives every presented image on the queue goroutine.
// A soft swapchain is created with a PresentFunc as its surface to observe
// presented frames; any other surface value is ignored.
type PresentFunc func(image int, pixels []byte, width, height int)

type swapchain struct {
	gpu     *gpu
	present PresentFunc

	mu     sync.Mutex
	images []driver.Texture
	next   int
}

func (g *gpu) NewSwapchain(surface driver.Surface, width, height int) (driver.Swapchain, error) {
	s := &swapchain{gpu: g}
	if fn, ok := surface.(PresentFunc); ok {
		s.present = fn
	}
	if err := s.Resize(width, height); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *swapchain) Format() driver.TextureFormat { return driver.FormatRGBA8 }

func (s *swapchain) Images() []driver.Texture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]driver.Texture(nil), s.images...)
}

func (s *swapchain) Resize(width, height int) error {
	imgs := make([]driver.Texture, 0, SwapchainImages)
	for i := 0; i < SwapchainImages; i++ {
		t, err := s.gpu.NewTexture(driver.TextureDesc{
			Width:  width,
			Height: height,
			Mips:   1,
			Format: driver.FormatRGBA8,
			Usage:  driver.UsageColorAttachment | driver.UsageCopySrc,
		})
		if err != nil {
			for _, t := range imgs {
				t.Destroy()
			}
			return errors.Wrap(err, "soft: swapchain image")
		}
		imgs = append(imgs, t)
	}
	s.mu.Lock()
	old := s.images
	s.images = imgs
	s.next = 0
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

func (s *swapchain) Present(image int, _ driver.Semaphore) error {
	s.mu.Lock()
	if image < 0 || image >= len(s.images) {
		s.mu.Unlock()
		return errors.AssertionFailedf("soft: present of image %d out of %d", image, len(s.images))
	}
	t := s.images[image].(*texture)
	s.mu.Unlock()

	g := s.gpu
	s.gpu.q.enqueue(func() {
		g.presents.Add(1)
		if s.present != nil {
			s.present(image, t.levels[0], t.desc.Width, t.desc.Height)
		}
	}, nil, 0)
	return nil
}

func (s *swapchain) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.images {
		t.Destroy()
	}
	s.images = nil
}
