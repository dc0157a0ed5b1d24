// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package astc decompresses ASTC 2D LDR data to RGBA8 for hosts with
// neither native nor compute-accelerated support.
//
// Void-extent blocks are decoded exactly. Everything else, including error
// blocks, reserved modes and HDR blocks, decodes to the standard opaque
// magenta error color. The accelerated host path handles full weight-grid
// blocks; this fallback only has to keep solid-color assets and invalid
// data well defined.
package astc

import "encoding/binary"

// BlockSize is the byte size of one ASTC block, independent of footprint.
const BlockSize = 16

// Error color mandated for invalid LDR blocks, as RGBA8.
var errColor = [4]byte{0xFF, 0x00, 0xFF, 0xFF}

// Decompress decodes src into dst as RGBA8. The image is width by height
// texels, tiled into blockW by blockH blocks. dst must hold
// width*height*4 bytes.
func Decompress(src, dst []byte, width, height, blockW, blockH uint32) {
	bw := (width + blockW - 1) / blockW
	bh := (height + blockH - 1) / blockH
	texel := [4]byte{}
	for by := uint32(0); by < bh; by++ {
		for bx := uint32(0); bx < bw; bx++ {
			texel = DecodeBlockColor(src[(by*bw+bx)*BlockSize:])
			for ty := uint32(0); ty < blockH; ty++ {
				y := by*blockH + ty
				if y >= height {
					break
				}
				for tx := uint32(0); tx < blockW; tx++ {
					x := bx*blockW + tx
					if x >= width {
						break
					}
					o := (uint64(y)*uint64(width) + uint64(x)) * 4
					copy(dst[o:o+4], texel[:])
				}
			}
		}
	}
}

// DecodeBlockColor returns the RGBA8 color a 16-byte block decodes to.
// Only LDR void-extent blocks carry a color; all other blocks map to the
// error color.
func DecodeBlockColor(block []byte) [4]byte {
	lo := binary.LittleEndian.Uint64(block)
	if lo&0x1FF != 0x1FC {
		return errColor
	}
	if lo&0x200 != 0 {
		// HDR void extent, out of LDR scope.
		return errColor
	}
	hi := binary.LittleEndian.Uint64(block[8:])
	// Colors are four UNORM16 channels; the high byte is the UNORM8 value.
	return [4]byte{
		byte(hi >> 8),
		byte(hi >> 24),
		byte(hi >> 40),
		byte(hi >> 56),
	}
}
