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

package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmapRuns(t *testing.T) {
	b := newBitmap(256)
	b.set(3, 10)
	b.set(64, 130)
	b.set(200, 201)

	var got [][2]uint64
	b.forEachRun(0, 256, func(lo, hi uint64) { got = append(got, [2]uint64{lo, hi}) })
	assert.Equal(t, [][2]uint64{{3, 10}, {64, 130}, {200, 201}}, got)

	assert.True(t, b.any(0, 4))
	assert.False(t, b.any(10, 64))
	b.clear(5, 128)
	got = nil
	b.forEachRun(0, 256, func(lo, hi uint64) { got = append(got, [2]uint64{lo, hi}) })
	assert.Equal(t, [][2]uint64{{3, 5}, {128, 130}, {200, 201}}, got)
}

func TestDirtyProtocolDisjoint(t *testing.T) {
	b := newBuffer(0x10000, 0x8000, 1)
	// A fresh buffer is entirely CPU modified.
	assert.True(t, b.IsRegionCPUModified(0x10000, 0x8000))
	assert.False(t, b.IsRegionGPUModified(0x10000, 0x8000))

	b.MarkRegionGPUModified(0x11000, 0x2000)
	assert.True(t, b.dirtyCPU.disjointWith(b.dirtyGPU))
	assert.True(t, b.IsRegionGPUModified(0x11000, 0x2000))
	assert.False(t, b.IsRegionCPUModified(0x11000, 0x2000))

	b.MarkRegionCPUModified(0x11000, 0x1000)
	assert.True(t, b.dirtyCPU.disjointWith(b.dirtyGPU))
	assert.True(t, b.IsRegionGPUModified(0x12000, 0x1000))
	assert.False(t, b.IsRegionGPUModified(0x11000, 0x1000))
}

func TestUploadRangesClear(t *testing.T) {
	b := newBuffer(0, 0x10000, 1)
	b.dirtyCPU.clearAll()
	b.MarkRegionCPUModified(0x1000, 0x2000)
	b.MarkRegionCPUModified(0x8000, 0x1000)

	var got [][2]uint64
	b.ForEachUploadRange(0, 0x10000, func(off, sz uint64) { got = append(got, [2]uint64{off, sz}) })
	assert.Equal(t, [][2]uint64{{0x1000, 0x2000}, {0x8000, 0x1000}}, got)
	assert.False(t, b.IsRegionCPUModified(0, 0x10000))
}

func TestUploadRangeClipsToQuery(t *testing.T) {
	b := newBuffer(0, 0x10000, 1)
	b.dirtyCPU.clearAll()
	b.MarkRegionCPUModified(0x1000, 0x4000)

	var got [][2]uint64
	b.ForEachUploadRange(0x2000, 0x1000, func(off, sz uint64) { got = append(got, [2]uint64{off, sz}) })
	assert.Equal(t, [][2]uint64{{0x2000, 0x1000}}, got)
	// Bits outside the query survive.
	assert.True(t, b.IsRegionCPUModified(0x1000, 0x1000))
	assert.True(t, b.IsRegionCPUModified(0x3000, 0x2000))
	assert.False(t, b.IsRegionCPUModified(0x2000, 0x1000))
}

func TestCachedWritesDeferred(t *testing.T) {
	b := newBuffer(0, 0x10000, 1)
	b.dirtyCPU.clearAll()
	b.markCachedWrite(0x2000, 0x1000)
	b.hasCachedWrites = true
	assert.False(t, b.IsRegionCPUModified(0x2000, 0x1000))

	b.flushCachedWrites()
	assert.True(t, b.IsRegionCPUModified(0x2000, 0x1000))
	assert.False(t, b.hasCachedWrites)
}

func TestCachedWriteLosesToNewerGPUWrite(t *testing.T) {
	b := newBuffer(0, 0x10000, 1)
	b.dirtyCPU.clearAll()
	b.markCachedWrite(0x2000, 0x2000)
	b.hasCachedWrites = true
	b.MarkRegionGPUModified(0x3000, 0x1000)

	b.flushCachedWrites()
	assert.True(t, b.IsRegionCPUModified(0x2000, 0x1000))
	assert.True(t, b.IsRegionGPUModified(0x3000, 0x1000))
	assert.False(t, b.IsRegionCPUModified(0x3000, 0x1000))
	assert.True(t, b.dirtyCPU.disjointWith(b.dirtyGPU))
}
