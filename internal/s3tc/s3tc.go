// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package s3tc decodes S3 texture compression (DXT1/BC1, DXT3/BC2,
// DXT5/BC3) blocks into RGBA8 pixels and encodes RGBA8 pixels as DXT1.
package s3tc

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Kind is a block compression scheme.
type Kind uint8

// Compression schemes.
const (
	DXT1 Kind = iota
	DXT3
	DXT5
)

// BlockBytes returns the size of one 4x4 block.
func (k Kind) BlockBytes() int {
	if k == DXT1 {
		return 8
	}
	return 16
}

// Size returns the size of a width x height image compressed with k.
func (k Kind) Size(width, height int) int {
	return ((width + 3) / 4) * ((height + 3) / 4) * k.BlockBytes()
}

// ErrShortData is returned when the source holds fewer blocks than the
// image extent requires.
var ErrShortData = errors.New("s3tc: not enough block data")

// Decode decompresses src into dst as tightly packed RGBA8 rows.
// dst must hold width*height*4 bytes.
func Decode(dst, src []byte, width, height int, k Kind) error {
	if len(src) < k.Size(width, height) {
		return errors.Wrapf(ErrShortData, "%dx%d needs %d bytes, got %d",
			width, height, k.Size(width, height), len(src))
	}
	if len(dst) < width*height*4 {
		return errors.Newf("s3tc: destination holds %d bytes, need %d", len(dst), width*height*4)
	}
	bw := (width + 3) / 4
	bb := k.BlockBytes()
	var block [64]byte
	for by := 0; by < (height+3)/4; by++ {
		for bx := 0; bx < bw; bx++ {
			b := src[(by*bw+bx)*bb:]
			switch k {
			case DXT1:
				decodeColor(&block, b[:8], true)
			case DXT3:
				decodeColor(&block, b[8:16], false)
				decodeExplicitAlpha(&block, b[:8])
			case DXT5:
				decodeColor(&block, b[8:16], false)
				decodeInterpolatedAlpha(&block, b[:8])
			}
			for y := 0; y < 4; y++ {
				py := by*4 + y
				if py >= height {
					break
				}
				for x := 0; x < 4; x++ {
					px := bx*4 + x
					if px >= width {
						break
					}
					copy(dst[(py*width+px)*4:], block[(y*4+x)*4:(y*4+x)*4+4])
				}
			}
		}
	}
	return nil
}

func expand565(c uint16) [3]byte {
	r := byte(c >> 11 & 0x1f)
	g := byte(c >> 5 & 0x3f)
	b := byte(c & 0x1f)
	return [3]byte{r<<3 | r>>2, g<<2 | g>>4, b<<3 | b>>2}
}

// palette returns the four colors a block with endpoints c0 and c1 indexes.
// The 3-color mode with transparent black is only available to DXT1.
func palette(c0, c1 uint16, dxt1 bool) [4][4]byte {
	e0, e1 := expand565(c0), expand565(c1)

	var pal [4][4]byte
	pal[0] = [4]byte{e0[0], e0[1], e0[2], 255}
	pal[1] = [4]byte{e1[0], e1[1], e1[2], 255}
	if c0 > c1 || !dxt1 {
		for i := 0; i < 3; i++ {
			pal[2][i] = byte((2*int(e0[i]) + int(e1[i]) + 1) / 3)
			pal[3][i] = byte((int(e0[i]) + 2*int(e1[i]) + 1) / 3)
		}
		pal[2][3], pal[3][3] = 255, 255
	} else {
		for i := 0; i < 3; i++ {
			pal[2][i] = byte((int(e0[i]) + int(e1[i])) / 2)
		}
		pal[2][3] = 255
	}
	return pal
}

func decodeColor(out *[64]byte, b []byte, dxt1 bool) {
	pal := palette(binary.LittleEndian.Uint16(b[0:]), binary.LittleEndian.Uint16(b[2:]), dxt1)
	idx := binary.LittleEndian.Uint32(b[4:])
	for i := 0; i < 16; i++ {
		copy(out[i*4:i*4+4], pal[idx>>(2*i)&3][:])
	}
}

func decodeExplicitAlpha(out *[64]byte, b []byte) {
	a := binary.LittleEndian.Uint64(b)
	for i := 0; i < 16; i++ {
		v := byte(a >> (4 * i) & 0xf)
		out[i*4+3] = v<<4 | v
	}
}

func decodeInterpolatedAlpha(out *[64]byte, b []byte) {
	a0, a1 := int(b[0]), int(b[1])
	var pal [8]byte
	pal[0], pal[1] = byte(a0), byte(a1)
	if a0 > a1 {
		for i := 1; i < 7; i++ {
			pal[i+1] = byte(((7-i)*a0 + i*a1 + 3) / 7)
		}
	} else {
		for i := 1; i < 5; i++ {
			pal[i+1] = byte(((5-i)*a0 + i*a1 + 2) / 5)
		}
		pal[6], pal[7] = 0, 255
	}
	var bits uint64
	for i := 0; i < 6; i++ {
		bits |= uint64(b[2+i]) << (8 * i)
	}
	for i := 0; i < 16; i++ {
		out[i*4+3] = pal[bits>>(3*i)&7]
	}
}

func pack565(r, g, b byte) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// EncodeDXT1 compresses tightly packed RGBA8 rows into DXT1 blocks using
// the bounding-box endpoints of each block. Alpha is ignored.
func EncodeDXT1(src []byte, width, height int) []byte {
	bw, bh := (width+3)/4, (height+3)/4
	dst := make([]byte, bw*bh*8)
	var px [16][3]byte
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			lo := [3]byte{255, 255, 255}
			var hi [3]byte
			for i := 0; i < 16; i++ {
				x := min(bx*4+i%4, width-1)
				y := min(by*4+i/4, height-1)
				p := src[(y*width+x)*4:]
				for c := 0; c < 3; c++ {
					px[i][c] = p[c]
					lo[c] = min(lo[c], p[c])
					hi[c] = max(hi[c], p[c])
				}
			}
			c0, c1 := pack565(hi[0], hi[1], hi[2]), pack565(lo[0], lo[1], lo[2])
			if c0 < c1 {
				c0, c1 = c1, c0
			}
			b := dst[(by*bw+bx)*8:]
			binary.LittleEndian.PutUint16(b[0:], c0)
			binary.LittleEndian.PutUint16(b[2:], c1)
			if c0 == c1 {
				binary.LittleEndian.PutUint32(b[4:], 0)
				continue
			}
			pal := palette(c0, c1, true)
			var idx uint32
			for i := 0; i < 16; i++ {
				best, bestDist := 0, 1<<30
				for j := 0; j < 4; j++ {
					d := 0
					for c := 0; c < 3; c++ {
						v := int(px[i][c]) - int(pal[j][c])
						d += v * v
					}
					if d < bestDist {
						best, bestDist = j, d
					}
				}
				idx |= uint32(best) << (2 * i)
			}
			binary.LittleEndian.PutUint32(b[4:], idx)
		}
	}
	return dst
}
