// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// AllocateBuffer creates a buffer of count elements of alignedStride
// bytes. When data is not nil it holds count elements of stride bytes,
// which are re-strided to alignedStride.
//
// Upload buffers are written immediately. Static buffers with data are
// filled through a staging buffer whose copy is queued in the pending
// upload batch; the staging buffer lives until that batch retires.
func (d *Device) AllocateBuffer(data []byte, count, stride, alignedStride int, usage MemUsage, heap BufferHeap) (*Buffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if alignedStride == 0 {
		alignedStride = stride
	}
	invariant(count > 0 && stride > 0 && alignedStride >= stride,
		"rhi: buffer of %d elements, stride %d aligned to %d", count, stride, alignedStride)
	invariant(data == nil || len(data) >= count*stride,
		"rhi: %d bytes of initial data for %d elements of %d bytes", len(data), count, stride)
	invariant(data == nil || heap != HeapReadback, "rhi: initial data for a readback buffer")

	size := int64(count * alignedStride)
	if data != nil && stride != alignedStride {
		data = restride(data, count, stride, alignedStride)
	} else if data != nil {
		data = data[:size]
	}
	if heap == HeapStatic && data != nil {
		usage |= TransferDst
	}

	native, err := d.gpu.NewBuffer(size, usage, heap)
	if err != nil {
		return nil, translate(err, "rhi: allocate %d byte %s buffer", size, heap)
	}
	b := newBuffer(d, native, usage, heap)
	Logger().Debug("rhi: buffer", "size", size, "heap", heap.String())

	if data == nil {
		return b, nil
	}
	if heap == HeapUpload {
		if err := native.Write(0, data); err != nil {
			b.Destroy()
			return nil, translate(err, "rhi: write buffer")
		}
		return b, nil
	}
	if err := d.stageBuffer(b, 0, data); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func restride(data []byte, count, stride, aligned int) []byte {
	out := make([]byte, count*aligned)
	for i := 0; i < count; i++ {
		copy(out[i*aligned:i*aligned+stride], data[i*stride:(i+1)*stride])
	}
	return out
}

// stageBuffer queues a copy of data into dst at off through a staging
// buffer.
func (d *Device) stageBuffer(dst *Buffer, off int64, data []byte) error {
	staging, err := d.staging(int64(len(data)))
	if err != nil {
		return err
	}
	if err := staging.Write(0, data); err != nil {
		staging.Destroy()
		return translate(err, "rhi: write staging buffer")
	}
	return d.record(func(cmd driver.CmdBuffer, keep *retainList) {
		cmd.CopyBuffer(dst.native, off, staging, 0, int64(len(data)))
		keep.add(dst)
		*keep = append(*keep, onRetire(staging.Destroy))
	})
}

func (d *Device) staging(size int64) (driver.Buffer, error) {
	b, err := d.gpu.NewBuffer(size, driver.UsageCopySrc, driver.HeapUpload)
	if err != nil {
		return nil, translate(err, "rhi: allocate %d byte staging buffer", size)
	}
	return b, nil
}

// AllocateTexture creates a sampled texture from pix with up to mips
// levels. mips is clamped to the full chain length.
//
// Uncompressed pixmaps upload level 0 and generate the remaining levels by
// blits when the format is renderable. Compressed pixmaps carry their own
// levels, one copy per level.
func (d *Device) AllocateTexture(pix *Pixmap, mips int) (*Texture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	invariant(pix != nil, "rhi: nil pixmap")
	if err := pix.validate(); err != nil {
		return nil, err
	}
	f := pix.Format
	if !d.caps.SupportsSampled(f) {
		return nil, errors.Wrapf(ErrUnsupportedTextureFormat, "rhi: %s is not sampleable on %s", f, d.info.Name)
	}
	mips = min(max(mips, 1), MipCount(pix.Width, pix.Height))
	if f.IsCompressed() {
		return d.allocateCompressed(pix, min(mips, pix.levels()))
	}

	usage := driver.UsageSampled | driver.UsageCopyDst | driver.UsageCopySrc
	if mips > 1 {
		if d.caps.SupportsAttachment(f) {
			usage |= driver.UsageColorAttachment
		} else {
			Logger().Warn("rhi: no mip generation for format", "format", f.String())
			mips = 1
		}
	}
	tex, err := d.newTexture(pix.Width, pix.Height, mips, f, usage, LayoutSampler)
	if err != nil {
		return nil, err
	}

	row := f.RowBytes(pix.Width)
	pitch := alignUp(row, d.caps.caps.CopyPitchAlign)
	staging, err := d.staging(int64(pitch * pix.Height))
	if err != nil {
		tex.Destroy()
		return nil, err
	}
	data := pix.Level(0)
	if err := writeRows(staging, data, row, pitch, pix.Height, 0); err != nil {
		staging.Destroy()
		tex.Destroy()
		return nil, err
	}

	err = d.record(func(cmd driver.CmdBuffer, keep *retainList) {
		cmd.Transition(tex.native, 0, LayoutUndefined, LayoutTransferDst)
		cmd.CopyBufferToTexture(tex.native, 0, staging, BufferLayout{BytesPerRow: pitch, Rows: pix.Height})
		if mips > 1 {
			recordMips(cmd, tex.native, mips, LayoutTransferDst, LayoutUndefined, LayoutSampler)
		} else {
			cmd.Transition(tex.native, 0, LayoutTransferDst, LayoutSampler)
		}
		keep.add(tex)
		*keep = append(*keep, onRetire(staging.Destroy))
	})
	if err != nil {
		staging.Destroy()
		tex.Destroy()
		return nil, err
	}
	return tex, nil
}

func writeRows(dst driver.Buffer, src []byte, row, pitch, rows int, off int64) error {
	if row == pitch {
		return translate(dst.Write(off, src[:row*rows]), "rhi: write staging buffer")
	}
	buf := make([]byte, pitch*rows)
	for r := 0; r < rows; r++ {
		copy(buf[r*pitch:], src[r*row:(r+1)*row])
	}
	return translate(dst.Write(off, buf), "rhi: write staging buffer")
}

// region places one level of a texture in a staging buffer.
type region struct {
	offset int64
	pitch  int
	rows   int
	row    int
}

// compressedRegions lays out mips levels of a block-compressed texture:
// rows of blocks are pitch-aligned and every level starts at a
// placement-aligned offset. It returns the regions and the total size.
func compressedRegions(f TextureFormat, width, height, mips, pitchAlign, placeAlign int) ([]region, int64) {
	out := make([]region, mips)
	total := 0
	for i := range out {
		w, h := driver.MipSize(width, height, i)
		row := driver.BlockCount(w) * f.BlockBytes()
		rows := driver.BlockCount(h)
		total = alignUp(total, placeAlign)
		out[i] = region{offset: int64(total), pitch: alignUp(row, pitchAlign), rows: rows, row: row}
		total += out[i].pitch * rows
	}
	return out, int64(total)
}

func (d *Device) allocateCompressed(pix *Pixmap, mips int) (*Texture, error) {
	caps := d.caps.caps
	tex, err := d.newTexture(pix.Width, pix.Height, mips, pix.Format,
		driver.UsageSampled|driver.UsageCopyDst|driver.UsageCopySrc, LayoutSampler)
	if err != nil {
		return nil, err
	}
	regions, size := compressedRegions(pix.Format, pix.Width, pix.Height, mips, caps.CopyPitchAlign, caps.CopyPlacementAlign)
	staging, err := d.staging(size)
	if err != nil {
		tex.Destroy()
		return nil, err
	}
	for i, r := range regions {
		if err := writeRows(staging, pix.Level(i), r.row, r.pitch, r.rows, r.offset); err != nil {
			staging.Destroy()
			tex.Destroy()
			return nil, err
		}
	}
	err = d.record(func(cmd driver.CmdBuffer, keep *retainList) {
		for i, r := range regions {
			cmd.Transition(tex.native, i, LayoutUndefined, LayoutTransferDst)
			cmd.CopyBufferToTexture(tex.native, i, staging, BufferLayout{Offset: r.offset, BytesPerRow: r.pitch, Rows: r.rows})
			cmd.Transition(tex.native, i, LayoutTransferDst, LayoutSampler)
		}
		keep.add(tex)
		*keep = append(*keep, onRetire(staging.Destroy))
	})
	if err != nil {
		staging.Destroy()
		tex.Destroy()
		return nil, err
	}
	Logger().Debug("rhi: compressed texture", "format", pix.Format.String(), "mips", mips, "staging", size)
	return tex, nil
}

// AllocateEmptyTexture creates a sampled texture with undefined contents,
// to be filled by copies or blits.
func (d *Device) AllocateEmptyTexture(width, height, mips int, format TextureFormat) (*Texture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if !d.caps.SupportsSampled(format) {
		return nil, errors.Wrapf(ErrUnsupportedTextureFormat, "rhi: %s is not sampleable on %s", format, d.info.Name)
	}
	usage := driver.UsageSampled | driver.UsageCopyDst | driver.UsageCopySrc
	if d.caps.SupportsAttachment(format) {
		usage |= driver.UsageColorAttachment
	}
	mips = min(max(mips, 1), MipCount(width, height))
	return d.newInitialized(width, height, mips, format, usage, LayoutSampler)
}

// AllocateAttachment creates a color render target that can also be
// sampled and copied.
func (d *Device) AllocateAttachment(width, height int, format TextureFormat) (*Texture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if !d.caps.SupportsAttachment(format) {
		return nil, errors.Wrapf(ErrUnsupportedTextureFormat, "rhi: %s is not renderable on %s", format, d.info.Name)
	}
	usage := driver.UsageColorAttachment | driver.UsageCopySrc | driver.UsageCopyDst
	if d.caps.SupportsSampled(format) {
		usage |= driver.UsageSampled
	}
	return d.newInitialized(width, height, 1, format, usage, LayoutSampler)
}

// AllocateDepth creates a depth render target.
func (d *Device) AllocateDepth(width, height int, format TextureFormat) (*Texture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if !d.caps.SupportsDepth(format) {
		return nil, errors.Wrapf(ErrUnsupportedTextureFormat, "rhi: %s is not a depth format on %s", format, d.info.Name)
	}
	return d.newInitialized(width, height, 1, format,
		driver.UsageDepthAttachment|driver.UsageCopySrc, LayoutDepthAttach)
}

func (d *Device) newTexture(width, height, mips int, format TextureFormat, usage MemUsage, resting TextureLayout) (*Texture, error) {
	limit := d.caps.MaxTextureSize()
	invariant(width > 0 && height > 0, "rhi: texture size %dx%d", width, height)
	if limit > 0 && (width > limit || height > limit) {
		return nil, errors.Newf("rhi: texture %dx%d exceeds the %d limit of %s", width, height, limit, d.info.Name)
	}
	native, err := d.gpu.NewTexture(driver.TextureDesc{
		Width:  width,
		Height: height,
		Mips:   mips,
		Format: format,
		Usage:  usage,
	})
	if err != nil {
		return nil, translate(err, "rhi: allocate %dx%d %s texture", width, height, format)
	}
	Logger().Debug("rhi: texture", "width", width, "height", height, "mips", mips, "format", format.String())
	return newTexture(d, native, resting), nil
}

// newInitialized creates a texture and queues its move from Undefined to
// its resting layout.
func (d *Device) newInitialized(width, height, mips int, format TextureFormat, usage MemUsage, resting TextureLayout) (*Texture, error) {
	tex, err := d.newTexture(width, height, mips, format, usage, resting)
	if err != nil {
		return nil, err
	}
	err = d.record(func(cmd driver.CmdBuffer, keep *retainList) {
		for i := 0; i < mips; i++ {
			cmd.Transition(tex.native, i, LayoutUndefined, resting)
		}
		keep.add(tex)
	})
	if err != nil {
		tex.Destroy()
		return nil, err
	}
	return tex, nil
}

// LoadTexture uploads pix like AllocateTexture, first converting formats
// the device cannot sample: RGB8 and RGB16 gain an alpha channel and
// block-compressed data is decoded to RGBA8.
func (d *Device) LoadTexture(pix *Pixmap, mips int) (*Texture, error) {
	invariant(pix != nil, "rhi: nil pixmap")
	var to TextureFormat
	switch f := pix.Format; {
	case d.caps.SupportsSampled(f):
		return d.AllocateTexture(pix, mips)
	case f == RGB8:
		to = RGBA8
	case f == RGB16:
		to = RGBA16
	case f.IsCompressed():
		to = RGBA8
	default:
		return nil, errors.Wrapf(ErrUnsupportedTextureFormat, "rhi: %s is not sampleable on %s", f, d.info.Name)
	}
	conv, err := pix.Convert(to)
	if err != nil {
		return nil, err
	}
	Logger().Warn("rhi: texture format fallback", "from", pix.Format.String(), "to", to.String())
	return d.AllocateTexture(conv, mips)
}

// ReadPixels copies level mip of tex back to the CPU. It submits a copy
// into a readback buffer and waits for it, bounded by the fence timeout.
func (d *Device) ReadPixels(tex *Texture, mip int) (*Pixmap, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	invariant(mip >= 0 && mip < tex.Mips(), "rhi: mip %d of %d", mip, tex.Mips())
	invariant(tex.Usage().Has(driver.UsageCopySrc), "rhi: %s texture without copy source usage", tex.Format())
	f := tex.Format()
	w, h := driver.MipSize(tex.Width(), tex.Height(), mip)
	row, rows := f.RowBytes(w), f.Rows(h)
	pitch := alignUp(row, d.caps.caps.CopyPitchAlign)

	rb, err := d.AllocateBuffer(nil, rows, pitch, pitch, TransferDst, HeapReadback)
	if err != nil {
		return nil, err
	}
	defer rb.Destroy()
	cmd, err := d.NewCommandBuffer()
	if err != nil {
		return nil, err
	}
	defer cmd.Destroy()
	if err := cmd.Begin(); err != nil {
		return nil, err
	}
	cmd.CopyTextureToBuffer(rb, BufferLayout{BytesPerRow: pitch, Rows: rows}, tex, mip)
	if err := cmd.End(); err != nil {
		return nil, err
	}
	fence, err := d.NewFence()
	if err != nil {
		return nil, err
	}
	if err := d.Submit([]*CommandBuffer{cmd}, nil, nil, fence); err != nil {
		return nil, err
	}
	if !fence.Wait(d.opts.fenceTimeout) {
		return nil, errors.Wrapf(ErrTimeout, "rhi: read back %dx%d %s", w, h, f)
	}

	pix := &Pixmap{Width: w, Height: h, Format: f, Mips: 1, Data: make([]byte, row*rows)}
	padded := make([]byte, pitch*rows)
	if err := rb.Read(0, padded); err != nil {
		return nil, err
	}
	for r := 0; r < rows; r++ {
		copy(pix.Data[r*row:(r+1)*row], padded[r*pitch:])
	}
	return pix, nil
}
