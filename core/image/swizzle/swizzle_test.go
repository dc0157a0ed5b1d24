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

package swizzle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGobInterleave(t *testing.T) {
	// One GOB: 64 bytes wide, 8 rows, block height 1.
	linear := make([]byte, GobSize)
	for i := range linear {
		linear[i] = byte(i)
	}
	tiled := make([]byte, SwizzledSize(64, 8, 1))
	Swizzle(tiled, linear, 64, 8, 1)

	// Hand-computed byte positions inside a GOB.
	for _, tc := range []struct {
		x, y uint32
		off  uint64
	}{
		{0, 0, 0},
		{15, 0, 15},
		{0, 1, 16},
		{16, 0, 32},
		{0, 2, 64},
		{32, 0, 256},
		{63, 7, 511},
	} {
		assert.Equal(t, linear[tc.y*64+tc.x], tiled[tc.off], "texel (%d,%d)", tc.x, tc.y)
	}
}

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, tc := range []struct {
		widthBytes, height, blockHeight uint32
	}{
		{64, 8, 1},
		{256, 64, 16},
		{100, 30, 4}, // unaligned width and height
		{16, 4, 2},
	} {
		linear := make([]byte, tc.widthBytes*tc.height)
		r.Read(linear)
		tiled := make([]byte, SwizzledSize(tc.widthBytes, tc.height, tc.blockHeight))
		Swizzle(tiled, linear, tc.widthBytes, tc.height, tc.blockHeight)

		back := make([]byte, len(linear))
		Unswizzle(back, tiled, tc.widthBytes, tc.height, tc.blockHeight)
		assert.Equal(t, linear, back, "%dx%d bh=%d", tc.widthBytes, tc.height, tc.blockHeight)
	}
}

func TestAdjustBlockHeight(t *testing.T) {
	assert.Equal(t, uint32(16), AdjustBlockHeight(16, 1024))
	assert.Equal(t, uint32(1), AdjustBlockHeight(16, 4))
	assert.Equal(t, uint32(2), AdjustBlockHeight(16, 16))
	assert.Equal(t, uint32(1), AdjustBlockHeight(1, 1000))
}
