// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "fmt"

// TextureFormat is a pixel format.
type TextureFormat uint8

// Pixel formats. The numbering is shared by every backend and by the
// pixel containers exchanged with image loaders.
const (
	FormatUndefined TextureFormat = iota
	FormatR8
	FormatRG8
	FormatRGB8
	FormatRGBA8
	FormatR16
	FormatRG16
	FormatRGB16
	FormatRGBA16
	FormatDepth16
	FormatDepth24S8
	FormatDepth24x8
	FormatDXT1
	FormatDXT3
	FormatDXT5

	formatCount
)

var formatNames = [formatCount]string{
	FormatUndefined: "Undefined",
	FormatR8:        "R8",
	FormatRG8:       "RG8",
	FormatRGB8:      "RGB8",
	FormatRGBA8:     "RGBA8",
	FormatR16:       "R16",
	FormatRG16:      "RG16",
	FormatRGB16:     "RGB16",
	FormatRGBA16:    "RGBA16",
	FormatDepth16:   "Depth16",
	FormatDepth24S8: "Depth24S8",
	FormatDepth24x8: "Depth24x8",
	FormatDXT1:      "DXT1",
	FormatDXT3:      "DXT3",
	FormatDXT5:      "DXT5",
}

// String returns the format name.
func (f TextureFormat) String() string {
	if f < formatCount {
		return formatNames[f]
	}
	return fmt.Sprintf("TextureFormat(%d)", uint8(f))
}

// Valid reports whether f is a known, defined format.
func (f TextureFormat) Valid() bool { return f > FormatUndefined && f < formatCount }

// IsCompressed reports whether f is a block-compressed format.
func (f TextureFormat) IsCompressed() bool {
	return f == FormatDXT1 || f == FormatDXT3 || f == FormatDXT5
}

// IsDepth reports whether f is a depth(-stencil) format.
func (f TextureFormat) IsDepth() bool {
	return f == FormatDepth16 || f == FormatDepth24S8 || f == FormatDepth24x8
}

// BlockBytes returns the size of one 4x4 block for compressed formats
// and 0 otherwise.
func (f TextureFormat) BlockBytes() int {
	switch f {
	case FormatDXT1:
		return 8
	case FormatDXT3, FormatDXT5:
		return 16
	}
	return 0
}

// BytesPerPixel returns the texel size of uncompressed formats
// and 0 for compressed or undefined formats.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case FormatR8:
		return 1
	case FormatRG8, FormatR16, FormatDepth16:
		return 2
	case FormatRGB8:
		return 3
	case FormatRGBA8, FormatRG16, FormatDepth24S8, FormatDepth24x8:
		return 4
	case FormatRGB16:
		return 6
	case FormatRGBA16:
		return 8
	}
	return 0
}

// Channels returns the number of color channels, 0 for depth formats.
func (f TextureFormat) Channels() int {
	switch f {
	case FormatR8, FormatR16:
		return 1
	case FormatRG8, FormatRG16:
		return 2
	case FormatRGB8, FormatRGB16:
		return 3
	case FormatRGBA8, FormatRGBA16, FormatDXT1, FormatDXT3, FormatDXT5:
		return 4
	}
	return 0
}

// RowBytes returns the tightly packed size of one row of texels, or of one
// row of 4x4 blocks for compressed formats.
func (f TextureFormat) RowBytes(width int) int {
	if bb := f.BlockBytes(); bb > 0 {
		return BlockCount(width) * bb
	}
	return width * f.BytesPerPixel()
}

// Rows returns the number of rows RowBytes describes for a given height:
// the height itself, or the number of block rows.
func (f TextureFormat) Rows(height int) int {
	if f.IsCompressed() {
		return BlockCount(height)
	}
	return height
}

// Size returns the tightly packed size of a width x height image.
func (f TextureFormat) Size(width, height int) int {
	return f.RowBytes(width) * f.Rows(height)
}

// BlockCount returns the number of 4-texel blocks covering n texels.
func BlockCount(n int) int { return (n + 3) / 4 }

// MipSize returns the extent of level mip of a texture of the given size.
func MipSize(width, height, mip int) (int, int) {
	w, h := width>>mip, height>>mip
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// FormatSet is a set of texture formats.
type FormatSet uint32

// NewFormatSet returns the set holding fs.
func NewFormatSet(fs ...TextureFormat) FormatSet {
	var s FormatSet
	for _, f := range fs {
		s = s.With(f)
	}
	return s
}

// Has reports whether f is in the set.
func (s FormatSet) Has(f TextureFormat) bool { return f.Valid() && s&(1<<f) != 0 }

// With returns s with f added.
func (s FormatSet) With(f TextureFormat) FormatSet { return s | 1<<f }

// Without returns s with f removed.
func (s FormatSet) Without(f TextureFormat) FormatSet { return s &^ (1 << f) }
