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
	"github.com/kentjhall/mizu-sub011/core/math/u64"
	"github.com/kentjhall/mizu-sub011/video/lru"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

// Dirty tracking granularity. One bit covers 4 KiB of the buffer.
const (
	granuleBits = 12
	granuleSize = 1 << granuleBits
)

func granules(size uint64) uint64 {
	return u64.DivCeil(size, granuleSize)
}

// Buffer is one host buffer backing a contiguous guest CPU range.
//
// dirtyCPU marks sub-ranges where the host copy is stale and needs an
// upload; dirtyGPU marks sub-ranges where the guest copy is stale and needs
// a download. The two are disjoint at all times: marking one side clears
// the other.
type Buffer struct {
	id      slot.ID
	cpuAddr uint64
	size    uint64
	handle  runtime.BufferHandle

	dirtyCPU bitmap
	dirtyGPU bitmap
	// cachedWrites holds CPU writes deferred until FlushCachedWrites.
	cachedWrites    bitmap
	hasCachedWrites bool

	streamScore uint32
	lruHandle   lru.Handle
	picked      bool
}

// newBuffer returns a buffer whose whole extent is CPU modified, so the
// first use uploads everything.
func newBuffer(cpuAddr, size uint64, handle runtime.BufferHandle) Buffer {
	b := Buffer{cpuAddr: cpuAddr, size: size, handle: handle}
	g := granules(size)
	b.dirtyCPU = newBitmap(g)
	b.dirtyGPU = newBitmap(g)
	b.dirtyCPU.set(0, g)
	return b
}

// ID returns the buffer's slot id.
func (b *Buffer) ID() slot.ID { return b.id }

// CPUAddr returns the guest CPU address of the first byte.
func (b *Buffer) CPUAddr() uint64 { return b.cpuAddr }

// Size returns the byte size.
func (b *Buffer) Size() uint64 { return b.size }

// Handle returns the host buffer handle.
func (b *Buffer) Handle() runtime.BufferHandle { return b.handle }

// End returns one past the last guest CPU address.
func (b *Buffer) End() uint64 { return b.cpuAddr + b.size }

// Contains reports whether [cpuAddr, cpuAddr+size) lies inside the buffer.
func (b *Buffer) Contains(cpuAddr, size uint64) bool {
	return cpuAddr >= b.cpuAddr && cpuAddr+size <= b.End()
}

// Overlaps reports whether [cpuAddr, cpuAddr+size) intersects the buffer.
func (b *Buffer) Overlaps(cpuAddr, size uint64) bool {
	return cpuAddr < b.End() && b.cpuAddr < cpuAddr+size
}

// Offset returns cpuAddr relative to the buffer start.
func (b *Buffer) Offset(cpuAddr uint64) uint64 { return cpuAddr - b.cpuAddr }

// clampGranules converts an absolute byte range to a granule span inside
// the buffer. ok is false when the intersection is empty.
func (b *Buffer) clampGranules(cpuAddr, size uint64) (lo, hi uint64, ok bool) {
	start := u64.Max(cpuAddr, b.cpuAddr)
	end := u64.Min(cpuAddr+size, b.End())
	if start >= end {
		return 0, 0, false
	}
	return (start - b.cpuAddr) >> granuleBits, granules(end - b.cpuAddr), true
}

// clampBytes converts an absolute byte range to the intersecting absolute
// byte range, widened to granule boundaries.
func (b *Buffer) clampBytes(cpuAddr, size uint64) (addr, n uint64, ok bool) {
	lo, hi, ok := b.clampGranules(cpuAddr, size)
	if !ok {
		return 0, 0, false
	}
	start := b.cpuAddr + lo<<granuleBits
	end := u64.Min(b.cpuAddr+hi<<granuleBits, b.End())
	return start, end - start, true
}

// MarkRegionCPUModified records a guest CPU write over the region.
func (b *Buffer) MarkRegionCPUModified(cpuAddr, size uint64) {
	lo, hi, ok := b.clampGranules(cpuAddr, size)
	if !ok {
		return
	}
	b.dirtyCPU.set(lo, hi)
	b.dirtyGPU.clear(lo, hi)
	debugAssert(b.dirtyCPU.disjointWith(b.dirtyGPU), "dirty bitmaps overlap")
}

// MarkRegionGPUModified records a GPU write over the region.
func (b *Buffer) MarkRegionGPUModified(cpuAddr, size uint64) {
	lo, hi, ok := b.clampGranules(cpuAddr, size)
	if !ok {
		return
	}
	b.dirtyGPU.set(lo, hi)
	b.dirtyCPU.clear(lo, hi)
	debugAssert(b.dirtyCPU.disjointWith(b.dirtyGPU), "dirty bitmaps overlap")
}

// clearDirty drops both stale markers over the region. Used after an
// operation that made host and guest copies equal.
func (b *Buffer) clearDirty(cpuAddr, size uint64) {
	lo, hi, ok := b.clampGranules(cpuAddr, size)
	if !ok {
		return
	}
	b.dirtyCPU.clear(lo, hi)
	b.dirtyGPU.clear(lo, hi)
}

// IsRegionCPUModified reports whether any granule in the region needs an
// upload.
func (b *Buffer) IsRegionCPUModified(cpuAddr, size uint64) bool {
	lo, hi, ok := b.clampGranules(cpuAddr, size)
	return ok && b.dirtyCPU.any(lo, hi)
}

// IsRegionGPUModified reports whether any granule in the region needs a
// download.
func (b *Buffer) IsRegionGPUModified(cpuAddr, size uint64) bool {
	lo, hi, ok := b.clampGranules(cpuAddr, size)
	return ok && b.dirtyGPU.any(lo, hi)
}

// ForEachUploadRange yields CPU modified sub-ranges of the region as
// (offset, size) pairs relative to the buffer start, clearing their bits.
func (b *Buffer) ForEachUploadRange(cpuAddr, size uint64, f func(offset, size uint64)) {
	b.forEachDirtyRange(b.dirtyCPU, cpuAddr, size, true, f)
}

// ForEachDownloadRangeAndClear yields GPU modified sub-ranges of the
// region, clearing their bits.
func (b *Buffer) ForEachDownloadRangeAndClear(cpuAddr, size uint64, f func(offset, size uint64)) {
	b.forEachDirtyRange(b.dirtyGPU, cpuAddr, size, true, f)
}

// ForEachGPUModifiedRange yields GPU modified sub-ranges without clearing
// them.
func (b *Buffer) ForEachGPUModifiedRange(cpuAddr, size uint64, f func(offset, size uint64)) {
	b.forEachDirtyRange(b.dirtyGPU, cpuAddr, size, false, f)
}

func (b *Buffer) forEachDirtyRange(m bitmap, cpuAddr, size uint64, clear bool, f func(offset, size uint64)) {
	lo, hi, ok := b.clampGranules(cpuAddr, size)
	if !ok {
		return
	}
	m.forEachRun(lo, hi, func(rlo, rhi uint64) {
		off := rlo << granuleBits
		end := u64.Min(rhi<<granuleBits, b.size)
		f(off, end-off)
	})
	if clear {
		m.clear(lo, hi)
	}
}

// markCachedWrite defers a CPU write until flushCachedWrites.
func (b *Buffer) markCachedWrite(cpuAddr, size uint64) {
	lo, hi, ok := b.clampGranules(cpuAddr, size)
	if !ok {
		return
	}
	if b.cachedWrites == nil {
		b.cachedWrites = newBitmap(granules(b.size))
	}
	b.cachedWrites.set(lo, hi)
}

// flushCachedWrites promotes deferred writes to CPU modified. Granules the
// GPU wrote after the deferred write keep the GPU data: the GPU write is
// newer.
func (b *Buffer) flushCachedWrites() {
	if !b.hasCachedWrites {
		return
	}
	for i := range b.cachedWrites {
		b.dirtyCPU[i] |= b.cachedWrites[i] &^ b.dirtyGPU[i]
	}
	b.cachedWrites.clearAll()
	b.hasCachedWrites = false
	debugAssert(b.dirtyCPU.disjointWith(b.dirtyGPU), "dirty bitmaps overlap")
}
