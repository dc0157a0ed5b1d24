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

package bc4

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSolidBlock(t *testing.T) {
	// r0 = r1 = 0x80, all codes 0 -> every texel 0x80.
	block := []byte{0x80, 0x80, 0, 0, 0, 0, 0, 0}
	dst := make([]byte, 4*4*4)
	Decompress(block, dst, 4, 4)
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(0x80), dst[i*4], "texel %d red", i)
		assert.Equal(t, byte(255), dst[i*4+3], "texel %d alpha", i)
	}
}

func TestEndpointSelectors(t *testing.T) {
	// Codes alternate 0 and 1, selecting r0 and r1.
	// 3-bit codes 0,1,0,1... packed little-endian: 001000001000... per pair.
	var codes uint64
	for i := 0; i < 16; i++ {
		if i%2 == 1 {
			codes |= 1 << (i * 3)
		}
	}
	block := make([]byte, 8)
	block[0], block[1] = 0x10, 0xF0
	for i := 0; i < 6; i++ {
		block[2+i] = byte(codes >> (8 * i))
	}
	dst := make([]byte, 4*4*4)
	Decompress(block, dst, 4, 4)
	for i := 0; i < 16; i++ {
		want := byte(0x10)
		if i%2 == 1 {
			want = 0xF0
		}
		assert.Equal(t, want, dst[i*4], "texel %d", i)
	}
}

func TestSixValueRampExtremes(t *testing.T) {
	// r0 <= r1 selects the 6-value ramp where code 6 is 0 and code 7 is 255.
	var codes uint64
	for i := 0; i < 16; i++ {
		c := uint64(6)
		if i >= 8 {
			c = 7
		}
		codes |= c << (i * 3)
	}
	block := make([]byte, 8)
	block[0], block[1] = 0x40, 0x80
	for i := 0; i < 6; i++ {
		block[2+i] = byte(codes >> (8 * i))
	}
	dst := make([]byte, 4*4*4)
	Decompress(block, dst, 4, 4)
	for i := 0; i < 16; i++ {
		want := byte(0)
		if i >= 8 {
			want = 255
		}
		assert.Equal(t, want, dst[i*4], "texel %d", i)
	}
}
