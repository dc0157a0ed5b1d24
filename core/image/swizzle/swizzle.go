// Copyright (C) 2018 Google Inc.
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

// Package swizzle converts between the guest GPU's block-linear tiled
// layout and linear row-major layout.
//
// Memory is tiled into GOBs of 64 bytes by 8 rows (512 bytes). A block
// stacks blockHeight GOBs vertically; blocks are laid out in row-major
// order across the image. Within a GOB the bytes interleave as
//
//	offset = (x%64)/32*256 + (y%8)/2*64 + (x%32)/16*32 + (y%2)*16 + x%16
//
// with x in bytes.
package swizzle

import "github.com/kentjhall/mizu-sub011/core/math/u64"

const (
	// GobWidthBytes is the byte width of one GOB.
	GobWidthBytes = 64
	// GobHeight is the row count of one GOB.
	GobHeight = 8
	// GobSize is the byte size of one GOB.
	GobSize = GobWidthBytes * GobHeight
)

// SwizzledSize returns the byte size of the block-linear storage for an
// image slice of widthBytes by height with the given block height in GOBs.
func SwizzledSize(widthBytes, height, blockHeight uint32) uint64 {
	gobsPerRow := u64.DivCeil(uint64(widthBytes), GobWidthBytes)
	blockRows := u64.DivCeil(uint64(height), uint64(GobHeight*blockHeight))
	return gobsPerRow * blockRows * uint64(blockHeight) * GobSize
}

// AdjustBlockHeight shrinks blockHeight until the block is no taller than
// the mip level it stores. Small mip levels use shorter blocks.
func AdjustBlockHeight(blockHeight, height uint32) uint32 {
	for blockHeight > 1 && height <= GobHeight*blockHeight/2 {
		blockHeight /= 2
	}
	return blockHeight
}

// Unswizzle copies a block-linear src slice into a linear dst slice.
// widthBytes is the row byte width of the linear image.
func Unswizzle(dst, src []byte, widthBytes, height, blockHeight uint32) {
	swizzle(dst, src, widthBytes, height, blockHeight, false)
}

// Swizzle copies a linear src slice into a block-linear dst slice.
func Swizzle(dst, src []byte, widthBytes, height, blockHeight uint32) {
	swizzle(src, dst, widthBytes, height, blockHeight, true)
}

// swizzle walks the image row by row in 16-byte segments, which are
// contiguous on both sides of the transform.
func swizzle(linear, tiled []byte, widthBytes, height, blockHeight uint32, toTiled bool) {
	gobsPerRow := (uint64(widthBytes) + GobWidthBytes - 1) / GobWidthBytes
	blockSize := uint64(blockHeight) * GobSize
	rowBlockSize := gobsPerRow * blockSize
	for y := uint32(0); y < height; y++ {
		blockRowBase := uint64(y/(GobHeight*blockHeight)) * rowBlockSize
		gobInBlock := uint64(y%(GobHeight*blockHeight)/GobHeight) * GobSize
		yBits := uint64(y%GobHeight/2)*64 + uint64(y%2)*16
		linRow := uint64(y) * uint64(widthBytes)
		for x := uint32(0); x < widthBytes; x += 16 {
			n := uint32(16)
			if x+n > widthBytes {
				n = widthBytes - x
			}
			tiledOff := blockRowBase +
				uint64(x/GobWidthBytes)*blockSize +
				gobInBlock +
				uint64(x%64/32)*256 + yBits + uint64(x%32/16)*32
			linOff := linRow + uint64(x)
			if toTiled {
				copy(tiled[tiledOff:tiledOff+uint64(n)], linear[linOff:linOff+uint64(n)])
			} else {
				copy(linear[linOff:linOff+uint64(n)], tiled[tiledOff:tiledOff+uint64(n)])
			}
		}
	}
}
