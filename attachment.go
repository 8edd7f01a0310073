// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// MaxColorAttachments is the largest number of color attachments of an
// AttachmentLayout.
const MaxColorAttachments = 8

// AttachmentLayout describes the formats of a render target: ordered color
// formats, an optional depth format and whether the first color attachment
// is a swapchain image.
//
// AttachmentLayout is a comparable value. Two layouts are interchangeable
// for a pipeline when Equal reports true; the swapchain flag does not take
// part in the comparison.
type AttachmentLayout struct {
	colors    [MaxColorAttachments]TextureFormat
	n         uint8
	depth     TextureFormat
	swapchain bool
}

// NewAttachmentLayout builds a layout from formats. Depth formats go to the
// depth slot, every other format is a color attachment in order.
func NewAttachmentLayout(formats ...TextureFormat) AttachmentLayout {
	var l AttachmentLayout
	for _, f := range formats {
		invariant(f.Valid(), "rhi: invalid attachment format %s", f)
		if f.IsDepth() {
			invariant(l.depth == Undefined, "rhi: two depth formats in an attachment layout")
			l.depth = f
			continue
		}
		invariant(int(l.n) < MaxColorAttachments, "rhi: more than %d color attachments", MaxColorAttachments)
		l.colors[l.n] = f
		l.n++
	}
	return l
}

// WithSwapchain marks the first color attachment as a swapchain image.
func (l AttachmentLayout) WithSwapchain() AttachmentLayout {
	invariant(l.n > 0, "rhi: swapchain layout without a color attachment")
	l.swapchain = true
	return l
}

// Colors returns the color formats in order.
func (l AttachmentLayout) Colors() []TextureFormat {
	return append([]TextureFormat(nil), l.colors[:l.n]...)
}

// Depth returns the depth format and whether the layout has one.
func (l AttachmentLayout) Depth() (TextureFormat, bool) { return l.depth, l.depth != Undefined }

// Swapchain reports whether the first color attachment is a swapchain image.
func (l AttachmentLayout) Swapchain() bool { return l.swapchain }

// Equal reports whether pipelines built for l can render to o.
func (l AttachmentLayout) Equal(o AttachmentLayout) bool { return l.key() == o.key() }

// key is the cache identity of l.
func (l AttachmentLayout) key() AttachmentLayout {
	l.swapchain = false
	return l
}

func (l AttachmentLayout) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range l.colors[:l.n] {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.String())
	}
	if l.depth != Undefined {
		b.WriteString(" | ")
		b.WriteString(l.depth.String())
	}
	if l.swapchain {
		b.WriteString(" swapchain")
	}
	b.WriteByte(']')
	return b.String()
}

// Framebuffer binds textures to an AttachmentLayout.
type Framebuffer struct {
	refs
	dev       *Device
	layout    AttachmentLayout
	colors    []*Texture
	depth     *Texture
	width     int
	height    int
	destroyed atomic.Bool
}

// CreateFramebuffer binds textures to layout: the color attachments in
// order, then the depth attachment if the layout has one. Count, format or
// size mismatches fail with ErrIncompleteFramebuffer.
func (d *Device) CreateFramebuffer(layout AttachmentLayout, textures ...*Texture) (*Framebuffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	_, hasDepth := layout.Depth()
	want := int(layout.n)
	if hasDepth {
		want++
	}
	if len(textures) != want {
		return nil, errors.Wrapf(ErrIncompleteFramebuffer, "rhi: layout %s takes %d attachments, got %d",
			layout, want, len(textures))
	}
	if want == 0 {
		return nil, errors.Wrap(ErrIncompleteFramebuffer, "rhi: framebuffer without attachments")
	}

	for i, t := range textures {
		invariant(t != nil, "rhi: nil framebuffer attachment %d", i)
		t.checkAlive()
		invariant(t.dev == d, "rhi: attachment %d of another device", i)
	}
	fb := &Framebuffer{dev: d, layout: layout, colors: textures[:layout.n:layout.n]}
	if hasDepth {
		fb.depth = textures[layout.n]
	}
	fb.width, fb.height = textures[0].Width(), textures[0].Height()

	for i, t := range textures {
		if t.Width() != fb.width || t.Height() != fb.height {
			return nil, errors.Wrapf(ErrIncompleteFramebuffer, "rhi: attachment %d is %dx%d, want %dx%d",
				i, t.Width(), t.Height(), fb.width, fb.height)
		}
	}
	for i, t := range fb.colors {
		if t.Format() != layout.colors[i] {
			return nil, errors.Wrapf(ErrIncompleteFramebuffer, "rhi: color attachment %d is %s, layout wants %s",
				i, t.Format(), layout.colors[i])
		}
		if !t.Usage().Has(driver.UsageColorAttachment) {
			return nil, errors.Wrapf(ErrIncompleteFramebuffer, "rhi: color attachment %d is not renderable", i)
		}
		if i == 0 && layout.swapchain != t.swapchain {
			return nil, errors.Wrapf(ErrIncompleteFramebuffer, "rhi: swapchain layout %s with a non-swapchain image", layout)
		}
	}
	if fb.depth != nil {
		if fb.depth.Format() != layout.depth || !fb.depth.Usage().Has(driver.UsageDepthAttachment) {
			return nil, errors.Wrapf(ErrIncompleteFramebuffer, "rhi: depth attachment %s, layout wants %s",
				fb.depth.Format(), layout.depth)
		}
	}

	fb.colors = append([]*Texture(nil), fb.colors...)
	for _, t := range textures {
		t.retain()
	}
	fb.init(func() {
		for _, t := range fb.colors {
			t.drop()
		}
		if fb.depth != nil {
			fb.depth.drop()
		}
	})
	return fb, nil
}

// SwapchainFramebuffer binds image of sw, plus an optional depth texture.
// Swapchain framebuffers are created again for every acquired image.
func (d *Device) SwapchainFramebuffer(sw *Swapchain, image int, depth *Texture) (*Framebuffer, error) {
	img := sw.Image(image)
	if depth == nil {
		return d.CreateFramebuffer(NewAttachmentLayout(img.Format()).WithSwapchain(), img)
	}
	return d.CreateFramebuffer(NewAttachmentLayout(img.Format(), depth.Format()).WithSwapchain(), img, depth)
}

// Layout returns the attachment layout.
func (fb *Framebuffer) Layout() AttachmentLayout { return fb.layout }

// Width returns the width shared by all attachments.
func (fb *Framebuffer) Width() int { return fb.width }

// Height returns the height shared by all attachments.
func (fb *Framebuffer) Height() int { return fb.height }

// Destroy releases the framebuffer once no submission uses it.
func (fb *Framebuffer) Destroy() {
	if fb.destroyed.CompareAndSwap(false, true) {
		fb.drop()
	}
}
