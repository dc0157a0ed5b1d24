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

package astc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// voidExtent builds an LDR void-extent block with the given UNORM16
// channel values.
func voidExtent(r, g, b, a uint16) []byte {
	block := make([]byte, BlockSize)
	block[0] = 0xFC
	block[1] = 0x01
	for i := 2; i < 8; i++ {
		block[i] = 0xFF // all-ones extent means no extent
	}
	for i, v := range []uint16{r, g, b, a} {
		block[8+i*2] = byte(v)
		block[9+i*2] = byte(v >> 8)
	}
	return block
}

func TestVoidExtentBlock(t *testing.T) {
	block := voidExtent(0x2211, 0x4433, 0x6655, 0x8877)
	assert.Equal(t, [4]byte{0x22, 0x44, 0x66, 0x88}, DecodeBlockColor(block))
}

func TestErrorBlock(t *testing.T) {
	// All-zero bits is a reserved block mode.
	block := make([]byte, BlockSize)
	assert.Equal(t, [4]byte{0xFF, 0x00, 0xFF, 0xFF}, DecodeBlockColor(block))
}

func TestHDRVoidExtentIsError(t *testing.T) {
	block := voidExtent(0xFFFF, 0, 0, 0xFFFF)
	block[1] |= 0x02 // HDR flag, bit 9
	assert.Equal(t, [4]byte{0xFF, 0x00, 0xFF, 0xFF}, DecodeBlockColor(block))
}

func TestDecompressTilesAndClips(t *testing.T) {
	// A 6x6 image of 4x4 blocks needs a 2x2 block grid with clipping.
	blocks := make([]byte, 0, 4*BlockSize)
	colors := []uint16{0x1100, 0x2200, 0x3300, 0x4400}
	for _, c := range colors {
		blocks = append(blocks, voidExtent(c, c, c, 0xFFFF)...)
	}
	dst := make([]byte, 6*6*4)
	Decompress(blocks, dst, 6, 6, 4, 4)

	at := func(x, y int) byte { return dst[(y*6+x)*4] }
	assert.Equal(t, byte(0x11), at(0, 0))
	assert.Equal(t, byte(0x22), at(5, 0))
	assert.Equal(t, byte(0x33), at(0, 5))
	assert.Equal(t, byte(0x44), at(5, 5))
	assert.Equal(t, byte(0x11), at(3, 3))
	assert.Equal(t, byte(0x44), at(4, 4))
}
