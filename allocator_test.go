// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rhi/backend/soft"
	"github.com/gogpu/rhi/internal/s3tc"
)

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

func TestUploadBufferRoundTrip(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	data := pattern(64)

	buf, err := dev.AllocateBuffer(data, 16, 4, 4, UniformBuffer, HeapUpload)
	require.NoError(t, err)
	defer buf.Destroy()

	got := make([]byte, 64)
	require.NoError(t, buf.Read(0, got))
	assert.Equal(t, data, got)

	require.NoError(t, buf.Update(8, []byte{1, 2, 3, 4}))
	require.NoError(t, buf.Read(8, got[:4]))
	assert.Equal(t, []byte{1, 2, 3, 4}, got[:4])
}

func readBack(t *testing.T, dev *Device, src *Buffer) []byte {
	t.Helper()
	rb, err := dev.AllocateBuffer(nil, int(src.Size()), 1, 1, TransferDst, HeapReadback)
	require.NoError(t, err)
	defer rb.Destroy()
	submitAndWait(t, dev, func(cmd *CommandBuffer) {
		cmd.CopyBuffer(rb, 0, src, 0, src.Size())
	})
	out := make([]byte, src.Size())
	require.NoError(t, rb.Read(0, out))
	return out
}

func TestStaticBufferStagedRoundTrip(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	data := pattern(256)

	buf, err := dev.AllocateBuffer(data, 64, 4, 4, VertexBuffer|TransferSrc, HeapStatic)
	require.NoError(t, err)
	defer buf.Destroy()
	assert.True(t, buf.Usage().Has(TransferDst))

	assert.Equal(t, data, readBack(t, dev, buf))

	require.NoError(t, dev.WaitIdle())
	dev.retireMu.Lock()
	assert.Empty(t, dev.inflight, "retired submissions keep nothing alive")
	dev.retireMu.Unlock()
}

func TestStaticBufferRestride(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	data := []byte{1, 2, 3, 4, 5, 6}

	buf, err := dev.AllocateBuffer(data, 3, 2, 4, UniformBuffer|TransferSrc, HeapStatic)
	require.NoError(t, err)
	defer buf.Destroy()
	require.EqualValues(t, 12, buf.Size())

	assert.Equal(t, []byte{1, 2, 0, 0, 3, 4, 0, 0, 5, 6, 0, 0}, readBack(t, dev, buf))
}

func TestStaticBufferUpdate(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})

	buf, err := dev.AllocateBuffer(make([]byte, 16), 16, 1, 1, StorageBuffer|TransferSrc, HeapStatic)
	require.NoError(t, err)
	defer buf.Destroy()
	require.NoError(t, buf.Update(4, []byte{9, 9}))

	got := readBack(t, dev, buf)
	assert.Equal(t, []byte{9, 9}, got[4:6])
}

func TestBufferDestroyedBeforeUploadRetires(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})

	buf, err := dev.AllocateBuffer(pattern(32), 32, 1, 1, UniformBuffer, HeapStatic)
	require.NoError(t, err)
	buf.Destroy()
	assert.EqualValues(t, 1, buf.n.Load(), "the upload batch still holds the buffer")

	require.NoError(t, dev.WaitIdle())
	assert.EqualValues(t, 0, buf.n.Load())
}

func TestOutOfDeviceMemory(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{MemoryBudget: 1 << 20})

	_, err := dev.AllocateBuffer(nil, 2<<20, 1, 1, StorageBuffer, HeapStatic)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfDeviceMemory), "got %v", err)
}

func solidPixmap(w, h int, px [4]byte) *Pixmap {
	p := NewPixmap(w, h, RGBA8)
	for i := 0; i < w*h; i++ {
		copy(p.Data[i*4:], px[:])
	}
	return p
}

func TestTextureUploadReadPixels(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	pix := NewPixmap(37, 5, RGBA8)
	copy(pix.Data, pattern(len(pix.Data)))

	tex, err := dev.AllocateTexture(pix, 1)
	require.NoError(t, err)
	defer tex.Destroy()
	assert.Equal(t, LayoutSampler, tex.Layout())

	got, err := dev.ReadPixels(tex, 0)
	require.NoError(t, err)
	assert.Equal(t, 37, got.Width)
	assert.True(t, bytes.Equal(pix.Data, got.Data))
}

func TestTextureMipGeneration(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	px := [4]byte{200, 100, 50, 255}

	tex, err := dev.AllocateTexture(solidPixmap(8, 4, px), 100)
	require.NoError(t, err)
	defer tex.Destroy()
	require.Equal(t, 4, tex.Mips(), "mips are clamped to the full chain")

	last, err := dev.ReadPixels(tex, 3)
	require.NoError(t, err)
	require.Equal(t, 1, last.Width)
	require.Equal(t, 1, last.Height)
	assert.Equal(t, px[:], last.Data)
}

func dxt1Pixmap(w, h int) (*Pixmap, []byte) {
	src := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			src[i] = byte(x * 255 / (w - 1))
			src[i+1] = byte(y * 255 / (h - 1))
			src[i+2] = 128
			src[i+3] = 255
		}
	}
	blocks := s3tc.EncodeDXT1(src, w, h)
	ref := make([]byte, w*h*4)
	if err := s3tc.Decode(ref, blocks, w, h, s3tc.DXT1); err != nil {
		panic(err)
	}
	return &Pixmap{Width: w, Height: h, Format: DXT1, Mips: 1, Data: blocks}, ref
}

func TestCompressedTextureMatchesReference(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	pix, ref := dxt1Pixmap(16, 8)

	tex, err := dev.AllocateTexture(pix, 1)
	require.NoError(t, err)
	defer tex.Destroy()
	require.Equal(t, DXT1, tex.Format())

	raw, err := dev.ReadPixels(tex, 0)
	require.NoError(t, err)
	assert.Equal(t, pix.Data, raw.Data, "blocks survive the pitch-aligned staging")

	dst, err := dev.AllocateAttachment(16, 8, RGBA8)
	require.NoError(t, err)
	defer dst.Destroy()
	submitAndWait(t, dev, func(cmd *CommandBuffer) {
		cmd.Blit(dst, 0, tex, 0)
	})
	decoded, err := dev.ReadPixels(dst, 0)
	require.NoError(t, err)

	refTex, err := dev.AllocateTexture(&Pixmap{Width: 16, Height: 8, Format: RGBA8, Mips: 1, Data: ref}, 1)
	require.NoError(t, err)
	defer refTex.Destroy()
	refPix, err := dev.ReadPixels(refTex, 0)
	require.NoError(t, err)

	assert.Equal(t, refPix.Data, decoded.Data)
}

func TestCompressedMipChain(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	w, h := 8, 8
	var data []byte
	for mip := 0; mip < 3; mip++ {
		mw, mh := max(w>>mip, 1), max(h>>mip, 1)
		data = append(data, bytes.Repeat([]byte{byte(mip + 1)}, DXT1.Size(mw, mh))...)
	}
	pix := &Pixmap{Width: w, Height: h, Format: DXT1, Mips: 3, Data: data}

	tex, err := dev.AllocateTexture(pix, 8)
	require.NoError(t, err)
	defer tex.Destroy()
	require.Equal(t, 3, tex.Mips(), "compressed mips are limited to the supplied levels")

	for mip := 0; mip < 3; mip++ {
		got, err := dev.ReadPixels(tex, mip)
		require.NoError(t, err)
		assert.Equal(t, pix.Level(mip), got.Data, "mip %d", mip)
	}
}

func TestCompressedRegions(t *testing.T) {
	regions, total := compressedRegions(DXT1, 16, 16, 3, 256, 512)
	require.Len(t, regions, 3)
	assert.Equal(t, region{offset: 0, pitch: 256, rows: 4, row: 32}, regions[0])
	assert.Equal(t, region{offset: 1024, pitch: 256, rows: 2, row: 16}, regions[1])
	assert.Equal(t, region{offset: 1536, pitch: 256, rows: 1, row: 8}, regions[2])
	assert.EqualValues(t, 1792, total)

	regions, total = compressedRegions(DXT5, 256, 4, 1, 256, 512)
	assert.Equal(t, region{offset: 0, pitch: 1024, rows: 1, row: 1024}, regions[0])
	assert.EqualValues(t, 1024, total)

	regions, _ = compressedRegions(DXT3, 6, 6, 2, 256, 512)
	assert.Equal(t, 32, regions[0].row, "partial blocks round up")
	assert.Equal(t, 2, regions[0].rows)
}

func TestUnsupportedFormatRejectedBeforeNativeCalls(t *testing.T) {
	dev, gpu := newTestDevice(t, soft.Config{DisableCompressed: true})
	pix, _ := dxt1Pixmap(8, 8)
	textures, buffers := gpu.textures.Load(), gpu.buffers.Load()

	_, err := dev.AllocateTexture(pix, 1)
	assert.True(t, errors.Is(err, ErrUnsupportedTextureFormat), "got %v", err)

	_, err = dev.AllocateTexture(NewPixmap(4, 4, RGB8), 1)
	assert.True(t, errors.Is(err, ErrUnsupportedTextureFormat), "got %v", err)

	_, err = dev.AllocateAttachment(4, 4, DXT1)
	assert.True(t, errors.Is(err, ErrUnsupportedTextureFormat), "got %v", err)

	_, err = dev.AllocateDepth(4, 4, RGBA8)
	assert.True(t, errors.Is(err, ErrUnsupportedTextureFormat), "got %v", err)

	_, err = dev.AllocateEmptyTexture(4, 4, 1, RGB16)
	assert.True(t, errors.Is(err, ErrUnsupportedTextureFormat), "got %v", err)

	assert.Equal(t, textures, gpu.textures.Load())
	assert.Equal(t, buffers, gpu.buffers.Load())
}

func TestLoadTextureFallbacks(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{DisableCompressed: true})

	pix, ref := dxt1Pixmap(8, 8)
	tex, err := dev.LoadTexture(pix, 1)
	require.NoError(t, err)
	defer tex.Destroy()
	assert.Equal(t, RGBA8, tex.Format())
	got, err := dev.ReadPixels(tex, 0)
	require.NoError(t, err)
	assert.Equal(t, ref, got.Data)

	rgb := NewPixmap(2, 1, RGB8)
	copy(rgb.Data, []byte{1, 2, 3, 4, 5, 6})
	tex2, err := dev.LoadTexture(rgb, 1)
	require.NoError(t, err)
	defer tex2.Destroy()
	assert.Equal(t, RGBA8, tex2.Format())
	got, err = dev.ReadPixels(tex2, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 255, 4, 5, 6, 255}, got.Data)
}

func TestLoadTextureKeepsSupportedFormat(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})
	pix, _ := dxt1Pixmap(8, 8)

	tex, err := dev.LoadTexture(pix, 1)
	require.NoError(t, err)
	defer tex.Destroy()
	assert.Equal(t, DXT1, tex.Format())
}

func TestAllocateDepth(t *testing.T) {
	dev, _ := newTestDevice(t, soft.Config{})

	depth, err := dev.AllocateDepth(16, 16, Depth24S8)
	require.NoError(t, err)
	defer depth.Destroy()
	assert.Equal(t, LayoutDepthAttach, depth.Layout())
}
