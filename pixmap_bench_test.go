// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"testing"

	"github.com/gogpu/rhi/backend/soft"
)

// BenchmarkPixmapConvert measures the CPU format conversions used by
// LoadTexture.
func BenchmarkPixmapConvert(b *testing.B) {
	benchmarks := []struct {
		name     string
		from, to TextureFormat
	}{
		{"RGB8_RGBA8", RGB8, RGBA8},
		{"RGB16_RGBA16", RGB16, RGBA16},
		{"DXT5_RGBA8", DXT5, RGBA8},
	}
	for _, bm := range benchmarks {
		pm := NewPixmap(256, 256, bm.from)
		b.Run(bm.name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := pm.Convert(bm.to); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkAllocateTexture measures a staged upload with mip generation.
func BenchmarkAllocateTexture(b *testing.B) {
	dev, err := CreateDevice("", WithDriver(soft.New(soft.Config{})), WithSoftwareFallback())
	if err != nil {
		b.Fatal(err)
	}
	defer dev.Close()
	pm := NewPixmap(256, 256, RGBA8)
	b.ReportAllocs()
	for b.Loop() {
		tex, err := dev.AllocateTexture(pm, 0)
		if err != nil {
			b.Fatal(err)
		}
		tex.Destroy()
		if err := dev.WaitIdle(); err != nil {
			b.Fatal(err)
		}
	}
}
