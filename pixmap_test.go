// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/internal/s3tc"
)

// TestNewPixmapSize checks the allocation size of every format.
func TestNewPixmapSize(t *testing.T) {
	tests := []struct {
		format TextureFormat
		want   int
	}{
		{R8, 6 * 5},
		{RGB8, 6 * 5 * 3},
		{RGBA8, 6 * 5 * 4},
		{RGBA16, 6 * 5 * 8},
		{DXT1, 2 * 2 * 8},
		{DXT5, 2 * 2 * 16},
	}
	for _, tt := range tests {
		pm := NewPixmap(6, 5, tt.format)
		if len(pm.Data) != tt.want {
			t.Errorf("NewPixmap(6, 5, %s) has %d bytes, want %d", tt.format, len(pm.Data), tt.want)
		}
		if pm.Mips != 1 {
			t.Errorf("NewPixmap(6, 5, %s).Mips = %d, want 1", tt.format, pm.Mips)
		}
	}
}

// TestPixmapLevel checks level offsets of a compressed mip chain.
func TestPixmapLevel(t *testing.T) {
	pm := &Pixmap{Width: 16, Height: 8, Format: DXT1, Mips: 4, Data: make([]byte, 64+16+8+8)}
	for i := range pm.Data {
		pm.Data[i] = byte(i)
	}
	tests := []struct {
		mip       int
		off, size int
	}{
		{0, 0, 64},
		{1, 64, 16},
		{2, 80, 8},
		{3, 88, 8},
	}
	for _, tt := range tests {
		got := pm.Level(tt.mip)
		if len(got) != tt.size || got[0] != byte(tt.off) {
			t.Errorf("Level(%d) = %d bytes starting with %d, want %d bytes at %d",
				tt.mip, len(got), got[0], tt.size, tt.off)
		}
	}
	if err := pm.validate(); err != nil {
		t.Errorf("validate() = %v", err)
	}
	pm.Data = pm.Data[:90]
	if err := pm.validate(); err == nil {
		t.Error("validate() accepted a truncated mip chain")
	}
}

// TestPixmapConvert checks channel expansion and narrowing.
func TestPixmapConvert(t *testing.T) {
	rgb := &Pixmap{Width: 2, Height: 1, Format: RGB8, Mips: 1, Data: []byte{10, 20, 30, 40, 50, 60}}
	rgba, err := rgb.Convert(RGBA8)
	if err != nil {
		t.Fatalf("Convert(RGBA8) = %v", err)
	}
	if want := []byte{10, 20, 30, 255, 40, 50, 60, 255}; !bytes.Equal(rgba.Data, want) {
		t.Errorf("RGB8 to RGBA8 = %v, want %v", rgba.Data, want)
	}

	wide, err := rgb.Convert(RGBA16)
	if err != nil {
		t.Fatalf("Convert(RGBA16) = %v", err)
	}
	if wide.Data[0] != 10 || wide.Data[1] != 10 || wide.Data[6] != 0xff || wide.Data[7] != 0xff {
		t.Errorf("RGB8 to RGBA16 first texel = %v", wide.Data[:8])
	}
	back, err := wide.Convert(RGB8)
	if err != nil {
		t.Fatalf("Convert(RGB8) = %v", err)
	}
	if !bytes.Equal(back.Data, rgb.Data) {
		t.Errorf("round trip through RGBA16 = %v, want %v", back.Data, rgb.Data)
	}

	r8, err := rgb.Convert(R8)
	if err != nil {
		t.Fatalf("Convert(R8) = %v", err)
	}
	if !bytes.Equal(r8.Data, []byte{10, 40}) {
		t.Errorf("RGB8 to R8 = %v, want [10 40]", r8.Data)
	}

	same, err := rgba.Convert(RGBA8)
	if err != nil || same != rgba {
		t.Errorf("Convert to the same format should return the pixmap itself")
	}
}

// TestPixmapConvertRejects checks unsupported conversions.
func TestPixmapConvertRejects(t *testing.T) {
	pm := NewPixmap(4, 4, RGBA8)
	for _, to := range []TextureFormat{DXT1, Depth16} {
		_, err := pm.Convert(to)
		if !errors.Is(err, ErrUnsupportedTextureFormat) {
			t.Errorf("Convert(%s) = %v, want ErrUnsupportedTextureFormat", to, err)
		}
	}
	if _, err := NewPixmap(4, 4, Depth16).Convert(RGBA8); err == nil {
		t.Error("Convert of a depth pixmap succeeded")
	}
	if _, err := (&Pixmap{Width: 4, Height: 4, Format: RGBA8}).Convert(R8); err == nil {
		t.Error("Convert of a pixmap without data succeeded")
	}
}

// TestPixmapConvertDecodesBlocks checks that DXT data decodes to RGBA8.
func TestPixmapConvertDecodesBlocks(t *testing.T) {
	rgba := make([]byte, 8*8*4)
	for i := 0; i < len(rgba); i += 4 {
		copy(rgba[i:], []byte{255, 0, 0, 255})
	}
	pm := &Pixmap{Width: 8, Height: 8, Format: DXT1, Mips: 1, Data: s3tc.EncodeDXT1(rgba, 8, 8)}
	out, err := pm.Convert(RGBA8)
	if err != nil {
		t.Fatalf("Convert(RGBA8) = %v", err)
	}
	if !bytes.Equal(out.Data, rgba) {
		t.Errorf("decoded solid red block differs: first texel %v", out.Data[:4])
	}
}

// TestPixmapImageRoundTrip checks FromImage and ToImage.
func TestPixmapImageRoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(3, 4, 6, 6))
	img.SetNRGBA(3, 4, color.NRGBA{R: 1, G: 2, B: 3, A: 4})
	img.SetNRGBA(5, 5, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	pm := FromImage(img)
	if pm.Width != 3 || pm.Height != 2 || pm.Format != RGBA8 {
		t.Fatalf("FromImage() = %dx%d %s, want 3x2 RGBA8", pm.Width, pm.Height, pm.Format)
	}
	if !bytes.Equal(pm.Data[:4], []byte{1, 2, 3, 4}) {
		t.Errorf("first texel = %v, want [1 2 3 4]", pm.Data[:4])
	}

	out, err := pm.ToImage()
	if err != nil {
		t.Fatalf("ToImage() = %v", err)
	}
	got := color.NRGBAModel.Convert(out.At(2, 1)).(color.NRGBA)
	if got != (color.NRGBA{R: 200, G: 100, B: 50, A: 255}) {
		t.Errorf("ToImage().At(2, 1) = %v", got)
	}
	if _, err := NewPixmap(2, 2, Depth24S8).ToImage(); err == nil {
		t.Error("ToImage of a depth pixmap succeeded")
	}
}

// TestPixmapBytesPerPixel checks texel sizes.
func TestPixmapBytesPerPixel(t *testing.T) {
	if got := NewPixmap(1, 1, RGB16).BytesPerPixel(); got != 6 {
		t.Errorf("RGB16 BytesPerPixel() = %d, want 6", got)
	}
	if got := NewPixmap(4, 4, DXT3).BytesPerPixel(); got != 0 {
		t.Errorf("DXT3 BytesPerPixel() = %d, want 0", got)
	}
}
