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

// Package bc4 decompresses BC4 (RGTC1) blocks to RGBA8 for hosts without
// native support.
package bc4

import "encoding/binary"

// BlockSize is the byte size of one BC4 block.
const BlockSize = 8

// Decompress decodes unsigned BC4 data of width by height texels into
// RGBA8. dst must hold width*height*4 bytes.
func Decompress(src, dst []byte, width, height uint32) {
	decompress(src, dst, width, height, false)
}

// DecompressSnorm decodes signed BC4 data, mapping [-1, 1] onto [0, 255].
func DecompressSnorm(src, dst []byte, width, height uint32) {
	decompress(src, dst, width, height, true)
}

func decompress(src, dst []byte, width, height uint32, signed bool) {
	bw := (width + 3) / 4
	bh := (height + 3) / 4
	for by := uint32(0); by < bh; by++ {
		for bx := uint32(0); bx < bw; bx++ {
			block := src[(by*bw+bx)*BlockSize:]
			r0, r1 := block[0], block[1]
			codes := binary.LittleEndian.Uint64(block) >> 16
			for i := 0; i < 16; i++ {
				x := bx*4 + uint32(i%4)
				y := by*4 + uint32(i/4)
				if x >= width || y >= height {
					continue
				}
				c := codes >> (i * 3) & 7
				var v byte
				if signed {
					v = mixSigned(int8(r0), int8(r1), c)
				} else {
					v = mixUnsigned(r0, r1, c)
				}
				o := (uint64(y)*uint64(width) + uint64(x)) * 4
				dst[o] = v
				dst[o+1] = 0
				dst[o+2] = 0
				dst[o+3] = 255
			}
		}
	}
}

func mixUnsigned(v0, v1 byte, c uint64) byte {
	a, b := int(v0), int(v1)
	switch {
	case c == 0:
		return v0
	case c == 1:
		return v1
	case a > b:
		return byte((a*int(8-c) + b*int(c-1)) / 7)
	case c == 6:
		return 0
	case c == 7:
		return 255
	default:
		return byte((a*int(6-c) + b*int(c-1)) / 5)
	}
}

func mixSigned(v0, v1 int8, c uint64) byte {
	toFloat := func(i int8) float32 {
		if i == -128 {
			return -1.0
		}
		return float32(i) / 127.0
	}
	f0, f1 := toFloat(v0), toFloat(v1)
	var f float32
	switch {
	case c == 0:
		f = f0
	case c == 1:
		f = f1
	case f0 > f1:
		f = (f0*float32(8-c) + f1*float32(c-1)) / 7.0
	case c == 6:
		f = -1.0
	case c == 7:
		f = 1.0
	default:
		f = (f0*float32(6-c) + f1*float32(c-1)) / 5.0
	}
	return byte((f + 1.0) * 255.0 / 2.0)
}
