// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"encoding/binary"
	"image"
	"math"
	"runtime"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/internal/s3tc"
)

// bandRows is the height of the row bands encoded in parallel.
const bandRows = 64

func canEncode(f driver.TextureFormat) bool {
	return f.Valid() && (!f.IsCompressed() || f == driver.FormatDXT1)
}

func s3tcKind(f driver.TextureFormat) s3tc.Kind {
	switch f {
	case driver.FormatDXT3:
		return s3tc.DXT3
	case driver.FormatDXT5:
		return s3tc.DXT5
	}
	return s3tc.DXT1
}

func unorm8(v float32) byte {
	return byte(math.Round(float64(clamp01(v)) * 255))
}

func unorm16(v float32) uint16 {
	return uint16(math.Round(float64(clamp01(v)) * 65535))
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}

// encodeColor returns one texel of f holding c.
func encodeColor(f driver.TextureFormat, c [4]float32) []byte {
	n := f.Channels()
	px := make([]byte, f.BytesPerPixel())
	for i := 0; i < n; i++ {
		switch f {
		case driver.FormatR16, driver.FormatRG16, driver.FormatRGB16, driver.FormatRGBA16:
			binary.LittleEndian.PutUint16(px[i*2:], unorm16(c[i]))
		default:
			px[i] = unorm8(c[i])
		}
	}
	return px
}

// encodeDepth returns one texel of the depth format f holding d.
// 24-bit depth occupies the low bits with stencil (or padding) above.
func encodeDepth(f driver.TextureFormat, d float32) []byte {
	switch f {
	case driver.FormatDepth16:
		px := make([]byte, 2)
		binary.LittleEndian.PutUint16(px, unorm16(d))
		return px
	default:
		px := make([]byte, 4)
		binary.LittleEndian.PutUint32(px, uint32(math.Round(float64(clamp01(d))*(1<<24-1))))
		return px
	}
}

func clearLevel(t *texture, mip int, px []byte) {
	lvl := t.levels[mip]
	for i := 0; i+len(px) <= len(lvl); i += len(px) {
		copy(lvl[i:], px)
	}
}

// decodeLevel expands a level of t into non-premultiplied 16-bit RGBA.
// Missing color channels read as zero and missing alpha as opaque.
func decodeLevel(t *texture, mip int) *image.NRGBA64 {
	data, w, h := t.level(mip)
	img := image.NewNRGBA64(image.Rect(0, 0, w, h))
	f := t.desc.Format

	if f.IsCompressed() {
		rgba := make([]byte, w*h*4)
		if err := s3tc.Decode(rgba, data, w, h, s3tcKind(f)); err != nil {
			panic(err)
		}
		for i := 0; i < w*h; i++ {
			for c := 0; c < 4; c++ {
				binary.BigEndian.PutUint16(img.Pix[i*8+c*2:], uint16(rgba[i*4+c])*0x101)
			}
		}
		return img
	}

	n, bpp := f.Channels(), f.BytesPerPixel()
	wide := bpp/n == 2
	for i := 0; i < w*h; i++ {
		px := data[i*bpp:]
		out := img.Pix[i*8:]
		binary.BigEndian.PutUint16(out[6:], 0xffff)
		for c := 0; c < n; c++ {
			var v uint16
			if wide {
				v = binary.LittleEndian.Uint16(px[c*2:])
			} else {
				v = uint16(px[c]) * 0x101
			}
			binary.BigEndian.PutUint16(out[c*2:], v)
		}
	}
	return img
}

// encodeLevel stores img into a level of t, converting to t's format.
func encodeLevel(t *texture, mip int, img *image.NRGBA64) {
	data, w, h := t.level(mip)
	f := t.desc.Format

	if f.IsCompressed() {
		rgba := make([]byte, w*h*4)
		for i := range rgba {
			rgba[i] = img.Pix[i*2]
		}
		copy(data, s3tc.EncodeDXT1(rgba, w, h))
		return
	}

	n, bpp := f.Channels(), f.BytesPerPixel()
	wide := bpp/n == 2
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for y0 := 0; y0 < h; y0 += bandRows {
		y1 := min(y0+bandRows, h)
		g.Go(func() error {
			for i := y0 * w; i < y1*w; i++ {
				in := img.Pix[i*8:]
				px := data[i*bpp:]
				for c := 0; c < n; c++ {
					v := binary.BigEndian.Uint16(in[c*2:])
					if wide {
						binary.LittleEndian.PutUint16(px[c*2:], v)
					} else {
						px[c] = byte(v >> 8)
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// blit scales level srcMip of src into level dstMip of dst.
func blit(dst *texture, dstMip int, src *texture, srcMip int) {
	in := decodeLevel(src, srcMip)
	_, w, h := dst.level(dstMip)
	out := image.NewNRGBA64(image.Rect(0, 0, w, h))
	if in.Bounds().Eq(out.Bounds()) {
		draw.Copy(out, image.Point{}, in, in.Bounds(), draw.Src, nil)
	} else {
		draw.BiLinear.Scale(out, out.Bounds(), in, in.Bounds(), draw.Src, nil)
	}
	encodeLevel(dst, dstMip, out)
}
