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
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentjhall/mizu-sub011/core/log"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/mmu"
	"github.com/kentjhall/mizu-sub011/video/runtime"
)

const (
	testCPUBase = uint64(0x1000_0000)
	testGPUBase = uint64(0x8000_0000)
	testMemSize = uint64(32 << 20)
)

func newTestCache(t *testing.T, cfg Config, caps runtime.Caps) (context.Context, *Cache, *runtime.Soft, *mmu.SoftMMU, *engine.State) {
	ctx := log.Testing(t)
	m := mmu.NewSoftMMU(testCPUBase, testMemSize)
	require.NoError(t, m.Map(testGPUBase, testCPUBase, testMemSize))
	rt := runtime.NewSoft(caps)
	st := &engine.State{}
	c := New(ctx, rt, m, m.Host(), mmu.NopRasterizer{}, st, cfg)
	return ctx, c, rt, m, st
}

func fillPattern(dst []byte, seed byte) {
	for i := range dst {
		dst[i] = seed + byte(i)
	}
}

func TestUniformBindingWarmPath(t *testing.T) {
	ctx, c, rt, m, _ := newTestCache(t, Config{}, runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000
	cpuAddr := testCPUBase + 0x10_0000
	fillPattern(m.Pointer(cpuAddr, 256), 7)

	c.BindGraphicsUniformBuffer(engine.StageVertex, 0, gpuAddr, 256)
	c.UpdateGraphicsBuffers(ctx, false)
	c.BindHostStageBuffers(ctx, engine.StageVertex)

	assert.Equal(t, 1, rt.BuffersCreated)
	assert.Equal(t, 1, rt.BufferUploads)

	id := c.FindBuffer(ctx, cpuAddr, 256)
	b := c.buffers.Get(id)
	assert.Equal(t, cpuAddr, b.CPUAddr())
	assert.GreaterOrEqual(t, b.Size(), uint64(256))
	assert.Equal(t, b.handle, rt.BoundUniform[[2]int{int(engine.StageVertex), 0}])
	got := rt.BufferData(b.handle)[b.Offset(cpuAddr) : b.Offset(cpuAddr)+256]
	assert.Equal(t, m.Pointer(cpuAddr, 256), got)
	// The bound range is no longer CPU modified.
	assert.False(t, b.IsRegionCPUModified(cpuAddr, 256))
}

func TestOverlapJoinPreservesGPUData(t *testing.T) {
	ctx, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	base := testCPUBase + 0x1000

	a := c.FindBuffer(ctx, base, 0x1000)
	ab := c.buffers.Get(a)
	// Simulate a GPU write covering all of A.
	fillPattern(rt.BufferData(ab.handle), 0x40)
	want := append([]byte(nil), rt.BufferData(ab.handle)...)
	c.MarkRegionGPUModified(ctx, base, 0x1000)

	joined := c.FindBuffer(ctx, base+0x800, 0x2800)
	assert.NotEqual(t, a, joined)
	assert.False(t, c.buffers.Live(a))
	assert.Equal(t, 1, c.delayed.Pending())

	jb := c.buffers.Get(joined)
	assert.Equal(t, base, jb.CPUAddr())
	assert.Equal(t, uint64(0x2800+0x800), jb.Size())
	assert.Equal(t, joined, c.pageTable[base>>PageBits])

	// A's GPU pending bytes moved to the matching offset.
	assert.True(t, jb.IsRegionGPUModified(base, 0x1000))
	assert.Equal(t, want, rt.BufferData(jb.handle)[:0x1000])
	assert.False(t, jb.IsRegionCPUModified(base, 0x1000))
	assert.True(t, jb.dirtyCPU.disjointWith(jb.dirtyGPU))
}

func TestJoinedIDNotReusedUntilRingDrains(t *testing.T) {
	ctx, c, _, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	base := testCPUBase + 0x1000

	a := c.FindBuffer(ctx, base, 0x1000)
	c.FindBuffer(ctx, base, 0x4000)
	for i := 0; i < 16; i++ {
		id := c.FindBuffer(ctx, testCPUBase+uint64(i+8)<<PageBits, 0x100)
		assert.NotEqual(t, a, id, "parked id handed out before destruction")
	}
}

func TestRoundTripUploadDownload(t *testing.T) {
	ctx, c, rt, m, _ := newTestCache(t, Config{}, runtime.Caps{PersistentMappedStaging: true})
	cpuAddr := testCPUBase + 0x20_0000

	id := c.FindBuffer(ctx, cpuAddr, 0x2000)
	b := c.buffers.Get(id)
	fillPattern(m.Pointer(cpuAddr, 0x2000), 3)
	c.WriteMemory(ctx, cpuAddr, 0x2000)
	assert.False(t, c.SynchronizeBuffer(ctx, cpuAddr, 0x2000))
	assert.Equal(t, m.Pointer(cpuAddr, 0x2000), rt.BufferData(b.handle)[:0x2000])

	// GPU overwrites the host copy; download restores guest memory.
	fillPattern(rt.BufferData(b.handle)[:0x2000], 0x90)
	c.MarkRegionGPUModified(ctx, cpuAddr, 0x2000)
	c.DownloadMemory(ctx, cpuAddr, 0x2000)
	assert.Equal(t, rt.BufferData(b.handle)[:0x2000], m.Pointer(cpuAddr, 0x2000))
	assert.False(t, b.IsRegionGPUModified(cpuAddr, 0x2000))
	assert.GreaterOrEqual(t, rt.FinishCalls, 1)
}

func TestDMAClearCancelsPendingDownload(t *testing.T) {
	cfg := Config{Accuracy: func() Accuracy { return AccuracyHigh }}
	ctx, c, rt, m, _ := newTestCache(t, cfg, runtime.Caps{})
	cpuAddr := testCPUBase

	id := c.FindBuffer(ctx, cpuAddr, 0x1000)
	b := c.buffers.Get(id)
	c.MarkRegionGPUModified(ctx, cpuAddr, 0x400)

	c.DMAClear(ctx, testGPUBase, 0x400, 0xDEADBEEF)
	c.CommitAsyncFlushes(ctx)
	assert.False(t, c.ShouldWaitAsyncFlushes())
	c.PopAsyncFlushes(ctx)
	assert.Zero(t, rt.FinishCalls, "a download was issued for a cancelled range")

	for off := uint64(0); off < 0x400; off += 4 {
		assert.Equal(t, uint32(0xDEADBEEF), binary.LittleEndian.Uint32(rt.BufferData(b.handle)[off:]))
		assert.Equal(t, uint32(0xDEADBEEF), binary.LittleEndian.Uint32(m.Pointer(cpuAddr+off, 4)))
	}
}

func TestAsyncFlushWriteback(t *testing.T) {
	cfg := Config{Accuracy: func() Accuracy { return AccuracyHigh }}
	ctx, c, rt, m, _ := newTestCache(t, cfg, runtime.Caps{})
	cpuAddr := testCPUBase + 0x8000

	id := c.FindBuffer(ctx, cpuAddr, 0x1000)
	b := c.buffers.Get(id)
	fillPattern(rt.BufferData(b.handle)[:0x1000], 0x55)
	c.MarkRegionGPUModified(ctx, cpuAddr, 0x1000)
	assert.True(t, c.HasUncommittedFlushes())

	c.CommitAsyncFlushes(ctx)
	assert.True(t, c.ShouldWaitAsyncFlushes())
	c.PopAsyncFlushes(ctx)
	assert.False(t, c.ShouldWaitAsyncFlushes())
	assert.False(t, c.HasUncommittedFlushes())
	assert.Equal(t, rt.BufferData(b.handle)[:0x1000], m.Pointer(cpuAddr, 0x1000))
}

func TestCommitDiscardsBelowHighAccuracy(t *testing.T) {
	ctx, c, rt, m, _ := newTestCache(t, Config{AsyncGPUEmulation: true}, runtime.Caps{})
	cpuAddr := testCPUBase + 0x8000

	id := c.FindBuffer(ctx, cpuAddr, 0x1000)
	b := c.buffers.Get(id)
	fillPattern(rt.BufferData(b.handle)[:0x1000], 0x66)
	c.MarkRegionGPUModified(ctx, cpuAddr, 0x1000)

	c.CommitAsyncFlushes(ctx)
	assert.False(t, c.ShouldWaitAsyncFlushes())
	// A later synchronous download still works: the dirty bits survive.
	c.DownloadMemory(ctx, cpuAddr, 0x1000)
	assert.Equal(t, rt.BufferData(b.handle)[:0x1000], m.Pointer(cpuAddr, 0x1000))
}

func TestDMACopyMirrorsPendingRanges(t *testing.T) {
	cfg := Config{Accuracy: func() Accuracy { return AccuracyHigh }}
	ctx, c, rt, m, _ := newTestCache(t, cfg, runtime.Caps{})
	srcCPU := testCPUBase
	dstCPU := testCPUBase + 0x10_0000

	srcID := c.FindBuffer(ctx, srcCPU, 0x2000)
	src := c.buffers.Get(srcID)
	fillPattern(m.Pointer(srcCPU, 0x2000), 1)
	c.WriteMemory(ctx, srcCPU, 0x2000)
	// One page of the source holds newer GPU data.
	fillPattern(rt.BufferData(src.handle)[0x1000:0x2000], 0xA0)
	c.MarkRegionGPUModified(ctx, srcCPU+0x1000, 0x1000)

	c.DMACopy(ctx, testGPUBase, testGPUBase+0x10_0000, 0x2000)

	dstID := c.FindBuffer(ctx, dstCPU, 0x2000)
	dst := c.buffers.Get(dstID)
	assert.Equal(t, rt.BufferData(src.handle)[:0x2000], rt.BufferData(dst.handle)[dst.Offset(dstCPU):dst.Offset(dstCPU)+0x2000])
	assert.True(t, dst.IsRegionGPUModified(dstCPU+0x1000, 0x1000))
	assert.False(t, dst.IsRegionGPUModified(dstCPU, 0x1000))
	// The CPU side copy matches the source guest bytes.
	assert.Equal(t, m.Pointer(srcCPU, 0x1000), m.Pointer(dstCPU, 0x1000))
}

func TestGarbageCollectionUnderPressure(t *testing.T) {
	cfg := Config{ExpectedMemory: 128 << 10, CriticalMemory: 256 << 10}
	ctx, c, rt, m, _ := newTestCache(t, cfg, runtime.Caps{})

	const n = 8
	for i := uint64(0); i < n; i++ {
		c.FindBuffer(ctx, testCPUBase+i<<PageBits, PageSize)
	}
	assert.Equal(t, uint64(n*PageSize), c.TotalUsedMemory())

	// One buffer holds GPU data that must survive eviction.
	id := c.FindBuffer(ctx, testCPUBase, PageSize)
	b := c.buffers.Get(id)
	fillPattern(rt.BufferData(b.handle)[:0x100], 0xC0)
	want := append([]byte(nil), rt.BufferData(b.handle)[:0x100]...)
	c.MarkRegionGPUModified(ctx, testCPUBase, 0x100)

	for i := 0; i < gcAggressiveMaxAge; i++ {
		c.TickFrame(ctx)
	}
	assert.Equal(t, n, c.tracker.Count(), "evicted buffers younger than the age floor")

	c.TickFrame(ctx)
	assert.Zero(t, c.tracker.Count())
	assert.Zero(t, c.TotalUsedMemory())
	assert.Equal(t, want, m.Pointer(testCPUBase, 0x100))
}

func TestQuadIndexExpansion(t *testing.T) {
	ctx, c, rt, _, st := newTestCache(t, Config{}, runtime.Caps{})
	st.Topology = engine.Quads
	st.IndexArray = engine.IndexArray{Format: engine.IndexUint32, First: 0, Count: 8}

	c.UpdateGraphicsBuffers(ctx, true)
	c.BindHostGeometryBuffers(ctx, true)

	require.Equal(t, c.quadTable.handle, rt.BoundIndex)
	data := rt.BufferData(c.quadTable.handle)
	want := []uint32{0, 1, 2, 0, 2, 3, 4, 5, 6, 4, 6, 7}
	for i, w := range want {
		assert.Equal(t, w, binary.LittleEndian.Uint32(data[i*4:]), "index %d", i)
	}
}

func TestQuadIndexPhase(t *testing.T) {
	ctx, c, rt, _, st := newTestCache(t, Config{}, runtime.Caps{})
	st.Topology = engine.Quads
	st.IndexArray = engine.IndexArray{Format: engine.IndexUint32, First: 5, Count: 4}

	c.UpdateGraphicsBuffers(ctx, true)
	c.BindHostGeometryBuffers(ctx, true)

	// Phase 1 table entries start one vertex later.
	phaseSize := uint64(c.quadTable.quads) * quadIndexStride
	offset := phaseSize + uint64(5/4)*quadIndexStride
	data := rt.BufferData(c.quadTable.handle)
	first := binary.LittleEndian.Uint32(data[offset:])
	assert.Equal(t, uint32(5), first)
}

func TestUnmappedBindingUsesNullBuffer(t *testing.T) {
	ctx, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	c.BindGraphicsUniformBuffer(engine.StageFragment, 3, 0xDEAD_0000_0000, 64)
	c.UpdateGraphicsBuffers(ctx, false)
	c.BindHostStageBuffers(ctx, engine.StageFragment)

	h := rt.BoundUniform[[2]int{int(engine.StageFragment), 3}]
	assert.Equal(t, c.nullBuffer, h)
	assert.NotZero(t, h)
}

func TestCachedWriteMemoryBatches(t *testing.T) {
	ctx, c, rt, m, _ := newTestCache(t, Config{}, runtime.Caps{})
	cpuAddr := testCPUBase + 0x4000

	id := c.FindBuffer(ctx, cpuAddr, 0x2000)
	b := c.buffers.Get(id)
	c.SynchronizeBuffer(ctx, cpuAddr, 0x2000)
	uploads := rt.BufferUploads

	fillPattern(m.Pointer(cpuAddr, 0x1000), 9)
	c.CachedWriteMemory(ctx, cpuAddr, 0x800)
	c.CachedWriteMemory(ctx, cpuAddr+0x800, 0x800)
	assert.True(t, c.SynchronizeBuffer(ctx, cpuAddr, 0x2000), "deferred writes uploaded early")
	assert.Equal(t, uploads, rt.BufferUploads)

	c.FlushCachedWrites(ctx)
	assert.False(t, c.SynchronizeBuffer(ctx, cpuAddr, 0x2000))
	assert.Equal(t, m.Pointer(cpuAddr, 0x1000), rt.BufferData(b.handle)[:0x1000])
}

func TestStreamLeapGrowsOnce(t *testing.T) {
	ctx, c, _, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	base := testCPUBase

	var id = c.FindBuffer(ctx, base, 0x1000)
	for i := uint64(2); i < 24; i++ {
		id = c.FindBuffer(ctx, base, 0x1000*i)
		if c.buffers.Get(id).Size() >= streamLeapSize {
			break
		}
	}
	assert.GreaterOrEqual(t, c.buffers.Get(id).Size(), uint64(streamLeapSize))
}

func TestStreamLeapDisabled(t *testing.T) {
	ctx, c, _, _, _ := newTestCache(t, Config{DisableStreamLeap: true}, runtime.Caps{})
	base := testCPUBase

	var id = c.FindBuffer(ctx, base, 0x1000)
	for i := uint64(2); i < 24; i++ {
		id = c.FindBuffer(ctx, base, 0x1000*i)
	}
	assert.Less(t, c.buffers.Get(id).Size(), uint64(streamLeapSize))
}

func TestUnmapMemoryDropsBuffers(t *testing.T) {
	ctx, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	cpuAddr := testCPUBase + 0x30_0000

	c.FindBuffer(ctx, cpuAddr, 0x1000)
	c.UnmapMemory(ctx, cpuAddr, 0x1000)
	assert.Zero(t, c.tracker.Count())
	assert.Equal(t, 1, c.delayed.Pending())

	// Ring completion releases the host buffer.
	for i := 0; i < 8; i++ {
		c.TickFrame(ctx)
	}
	assert.Equal(t, 1, rt.BuffersDestroyed)
}
