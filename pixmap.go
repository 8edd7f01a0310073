// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/internal/s3tc"
)

// Pixmap is the pixel container exchanged with image loaders.
//
// Uncompressed pixmaps hold Height tightly packed rows of
// Width*Format.BytesPerPixel() bytes; 16-bit channels are little endian.
// Compressed pixmaps hold Mips levels of 4x4 blocks back to back, largest
// level first.
type Pixmap struct {
	Width  int
	Height int
	Format TextureFormat
	Mips   int
	Data   []byte
}

// NewPixmap creates a zeroed single-level pixmap.
func NewPixmap(width, height int, format TextureFormat) *Pixmap {
	return &Pixmap{
		Width:  width,
		Height: height,
		Format: format,
		Mips:   1,
		Data:   make([]byte, format.Size(width, height)),
	}
}

// BytesPerPixel returns the texel size, 0 for compressed formats.
func (p *Pixmap) BytesPerPixel() int { return p.Format.BytesPerPixel() }

// levels returns the mip count stored in Data.
func (p *Pixmap) levels() int { return max(p.Mips, 1) }

// Level returns the bytes of level mip of a compressed pixmap, or the
// whole data of an uncompressed one when mip is 0.
func (p *Pixmap) Level(mip int) []byte {
	off := 0
	for i := 0; i < mip; i++ {
		w, h := driver.MipSize(p.Width, p.Height, i)
		off += p.Format.Size(w, h)
	}
	w, h := driver.MipSize(p.Width, p.Height, mip)
	return p.Data[off : off+p.Format.Size(w, h)]
}

// validate reports a malformed pixmap.
func (p *Pixmap) validate() error {
	if p.Width <= 0 || p.Height <= 0 || !p.Format.Valid() {
		return errors.Newf("rhi: invalid pixmap %dx%d %s", p.Width, p.Height, p.Format)
	}
	need := 0
	for i := 0; i < p.levels(); i++ {
		w, h := driver.MipSize(p.Width, p.Height, i)
		need += p.Format.Size(w, h)
	}
	if len(p.Data) < need {
		return errors.Newf("rhi: pixmap %dx%d %s x%d needs %d bytes, has %d",
			p.Width, p.Height, p.Format, p.levels(), need, len(p.Data))
	}
	return nil
}

// Convert returns the base level of p in format to. Supported conversions
// are between the uncompressed color formats and from the DXT formats to
// uncompressed color formats.
func (p *Pixmap) Convert(to TextureFormat) (*Pixmap, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Format == to && p.levels() == 1 {
		return p, nil
	}
	if to.IsCompressed() || to.IsDepth() || p.Format.IsDepth() {
		return nil, errors.Mark(errors.Newf("rhi: cannot convert %s to %s", p.Format, to), ErrUnsupportedTextureFormat)
	}
	src := p.nrgba64()
	out := NewPixmap(p.Width, p.Height, to)
	out.store(src)
	return out, nil
}

// ToImage converts the base level to an image.
func (p *Pixmap) ToImage() (image.Image, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Format.IsDepth() {
		return nil, errors.Newf("rhi: no image form for %s", p.Format)
	}
	return p.nrgba64(), nil
}

// FromImage creates an RGBA8 pixmap from an image.
func FromImage(img image.Image) *Pixmap {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Pixmap{Width: b.Dx(), Height: b.Dy(), Format: RGBA8, Mips: 1, Data: dst.Pix}
}

// nrgba64 expands the base level into 16-bit RGBA.
func (p *Pixmap) nrgba64() *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, p.Width, p.Height))
	n := p.Width * p.Height
	if p.Format.IsCompressed() {
		rgba := make([]byte, n*4)
		kind := map[TextureFormat]s3tc.Kind{DXT1: s3tc.DXT1, DXT3: s3tc.DXT3, DXT5: s3tc.DXT5}[p.Format]
		if err := s3tc.Decode(rgba, p.Level(0), p.Width, p.Height, kind); err != nil {
			fatal(err)
		}
		for i := 0; i < n; i++ {
			img.SetNRGBA64(i%p.Width, i/p.Width, color.NRGBA64{
				R: uint16(rgba[i*4]) * 0x101,
				G: uint16(rgba[i*4+1]) * 0x101,
				B: uint16(rgba[i*4+2]) * 0x101,
				A: uint16(rgba[i*4+3]) * 0x101,
			})
		}
		return img
	}
	ch, bpp := p.Format.Channels(), p.Format.BytesPerPixel()
	for i := 0; i < n; i++ {
		var v [4]uint16
		v[3] = 0xffff
		for c := 0; c < ch; c++ {
			if bpp/ch == 2 {
				v[c] = binary.LittleEndian.Uint16(p.Data[i*bpp+c*2:])
			} else {
				v[c] = uint16(p.Data[i*bpp+c]) * 0x101
			}
		}
		img.SetNRGBA64(i%p.Width, i/p.Width, color.NRGBA64{R: v[0], G: v[1], B: v[2], A: v[3]})
	}
	return img
}

// store encodes img into p's uncompressed format.
func (p *Pixmap) store(img *image.NRGBA64) {
	ch, bpp := p.Format.Channels(), p.Format.BytesPerPixel()
	for i := 0; i < p.Width*p.Height; i++ {
		px := img.NRGBA64At(i%p.Width, i/p.Width)
		v := [4]uint16{px.R, px.G, px.B, px.A}
		for c := 0; c < ch; c++ {
			if bpp/ch == 2 {
				binary.LittleEndian.PutUint16(p.Data[i*bpp+c*2:], v[c])
			} else {
				p.Data[i*bpp+c] = byte(v[c] >> 8)
			}
		}
	}
}
