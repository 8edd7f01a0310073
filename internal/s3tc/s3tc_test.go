// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package s3tc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dxt1Block(c0, c1 uint16, idx uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b[0:], c0)
	binary.LittleEndian.PutUint16(b[2:], c1)
	binary.LittleEndian.PutUint32(b[4:], idx)
	return b
}

func TestDecodeDXT1Endpoints(t *testing.T) {
	// Red and blue endpoints; the first row uses index 0, the second index 1,
	// the rest index 2 and 3.
	idx := uint32(0x00000000) | 0x55<<8 | 0xaa<<16 | 0xff<<24
	src := dxt1Block(0xf800, 0x001f, idx)
	dst := make([]byte, 4*4*4)
	require.NoError(t, Decode(dst, src, 4, 4, DXT1))

	assert.Equal(t, []byte{255, 0, 0, 255}, dst[0:4])
	assert.Equal(t, []byte{0, 0, 255, 255}, dst[4*4:4*4+4])
	assert.Equal(t, []byte{170, 0, 85, 255}, dst[8*4:8*4+4])
	assert.Equal(t, []byte{85, 0, 170, 255}, dst[12*4:12*4+4])
}

func TestDecodeDXT1Transparent(t *testing.T) {
	src := dxt1Block(0x001f, 0xf800, 0xffffffff)
	dst := make([]byte, 4*4*4)
	require.NoError(t, Decode(dst, src, 4, 4, DXT1))
	assert.Equal(t, []byte{0, 0, 0, 0}, dst[0:4])
}

func TestDecodeDXT3Alpha(t *testing.T) {
	src := make([]byte, 16)
	for i := 0; i < 8; i++ {
		src[i] = 0x8f // alternating 0xf and 0x8 nibbles
	}
	copy(src[8:], dxt1Block(0xffff, 0xffff, 0))
	dst := make([]byte, 4*4*4)
	require.NoError(t, Decode(dst, src, 4, 4, DXT3))

	assert.Equal(t, byte(0xff), dst[3])
	assert.Equal(t, byte(0x88), dst[7])
	assert.Equal(t, byte(255), dst[0])
}

func TestDecodeDXT5Alpha(t *testing.T) {
	src := make([]byte, 16)
	src[0], src[1] = 255, 0
	// Texel 0 uses index 0, texel 1 index 1, texel 2 index 2.
	src[2] = 0 | 1<<3 | 2<<6
	copy(src[8:], dxt1Block(0, 0, 0))
	dst := make([]byte, 4*4*4)
	require.NoError(t, Decode(dst, src, 4, 4, DXT5))

	assert.Equal(t, byte(255), dst[3])
	assert.Equal(t, byte(0), dst[7])
	assert.Equal(t, byte((6*255+3)/7), dst[11])
}

func TestDecodePartialBlocks(t *testing.T) {
	src := append(dxt1Block(0xf800, 0xf800, 0), dxt1Block(0x07e0, 0x07e0, 0)...)
	dst := make([]byte, 5*3*4)
	require.NoError(t, Decode(dst, src, 5, 3, DXT1))
	assert.Equal(t, []byte{255, 0, 0, 255}, dst[3*4:3*4+4])
	assert.Equal(t, []byte{0, 255, 0, 255}, dst[4*4:4*4+4])
}

func TestDecodeShortData(t *testing.T) {
	err := Decode(make([]byte, 64), make([]byte, 4), 4, 4, DXT1)
	assert.ErrorIs(t, err, ErrShortData)
}

func TestEncodeDXT1RoundTrip(t *testing.T) {
	const w, h = 8, 4
	src := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		if i%w < 4 {
			copy(src[i*4:], []byte{255, 0, 0, 255})
		} else {
			copy(src[i*4:], []byte{0, 0, 255, 255})
		}
	}
	enc := EncodeDXT1(src, w, h)
	require.Len(t, enc, DXT1.Size(w, h))

	dst := make([]byte, len(src))
	require.NoError(t, Decode(dst, enc, w, h, DXT1))
	assert.Equal(t, src, dst)
}
