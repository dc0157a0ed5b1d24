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

// Package buffer maps guest buffer address ranges to host buffers, keeps
// the two sides in sync and binds the host buffers for draws and
// dispatches.
//
// The cache is protected by one coarse mutex; every public method takes it.
// Failure never propagates to callers: an unmapped guest address resolves
// to the null buffer and the draw proceeds.
package buffer

import (
	"context"
	"sync"

	"github.com/kentjhall/mizu-sub011/core/log"
	"github.com/kentjhall/mizu-sub011/core/math/interval"
	"github.com/kentjhall/mizu-sub011/core/math/u64"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/lru"
	"github.com/kentjhall/mizu-sub011/video/mmu"
	"github.com/kentjhall/mizu-sub011/video/ring"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

const (
	// PageBits selects the page table granularity. A page is 64 KiB.
	PageBits = 16
	// PageSize is the byte size of one buffer cache page.
	PageSize = 1 << PageBits

	streamScoreThreshold = 16
	streamLeapSize       = 16 << 20
)

// deadBuffer sits in the delayed destruction ring until in-flight GPU work
// that may still reference the host buffer has completed.
type deadBuffer struct {
	id     slot.ID
	handle runtime.BufferHandle
}

// Cache is the buffer cache.
type Cache struct {
	mu sync.Mutex

	rt    runtime.Runtime
	caps  runtime.Caps
	mm    mmu.MemoryManager
	host  mmu.HostMemory
	rast  mmu.Rasterizer
	state *engine.State
	cfg   Config

	buffers   *slot.Table[Buffer]
	pageTable map[uint64]slot.ID
	tracker   *lru.Tracker[slot.ID]
	delayed   *ring.Destructor[deadBuffer]

	frameTick         uint64
	totalUsedMemory   uint64
	hasDeletedBuffers bool

	// commonRanges holds every GPU written range not yet reflected into
	// guest memory. uncommittedRanges is the subset queued for the next
	// async flush checkpoint; committedRanges are the checkpoint snapshots.
	commonRanges      interval.U64RangeList
	uncommittedRanges interval.U64RangeList
	committedRanges   []interval.U64RangeList
	pendingDownloads  []pendingDownload
	downloadStaging   runtime.StagingMap

	cachedWriteIDs []slot.ID

	// Binding state, see bindings.go.
	indexBinding   resolvedBinding
	vertexBindings [engine.NumVertexBuffers]resolvedBinding
	tfbBindings    [engine.NumTransformFeedbackBuffers]resolvedBinding

	uniformIntents  [engine.NumStages][engine.NumUniformBuffersPerStage]bindingIntent
	uniformBindings [engine.NumStages][engine.NumUniformBuffersPerStage]resolvedBinding
	enabledUniforms [engine.NumStages]uint32
	dirtyUniforms   [engine.NumStages]uint32

	storageIntents  [engine.NumStages][engine.NumStorageBuffersPerStage]bindingIntent
	storageBindings [engine.NumStages][engine.NumStorageBuffersPerStage]resolvedBinding
	enabledStorage  [engine.NumStages]uint32

	textureIntents  [engine.NumStages][engine.NumTextureBuffersPerStage]bindingIntent
	textureBindings [engine.NumStages][engine.NumTextureBuffersPerStage]resolvedBinding
	enabledTexture  [engine.NumStages]uint32

	computeUniformIntents  [engine.NumUniformBuffersPerStage]bindingIntent
	computeUniformBindings [engine.NumUniformBuffersPerStage]resolvedBinding
	enabledComputeUniforms uint32

	computeStorageIntents  [engine.NumStorageBuffersPerStage]bindingIntent
	computeStorageBindings [engine.NumStorageBuffersPerStage]resolvedBinding
	enabledComputeStorage  uint32

	computeTextureIntents  [engine.NumTextureBuffersPerStage]bindingIntent
	computeTextureBindings [engine.NumTextureBuffersPerStage]resolvedBinding
	enabledComputeTexture  uint32

	nullBuffer runtime.BufferHandle
	quadTable  quadTable
	immediate  []byte
}

// New returns a buffer cache over the given runtime and guest memory.
// state is the engine register snapshot read during updates.
func New(ctx context.Context, rt runtime.Runtime, mm mmu.MemoryManager, host mmu.HostMemory, rast mmu.Rasterizer, state *engine.State, cfg Config) *Cache {
	c := &Cache{
		rt:        rt,
		caps:      rt.Caps(),
		mm:        mm,
		host:      host,
		rast:      rast,
		state:     state,
		cfg:       cfg,
		buffers:   slot.NewTable[Buffer](),
		pageTable: map[uint64]slot.ID{},
		tracker:   lru.NewTracker[slot.ID](),
	}
	c.delayed = ring.New(func(d deadBuffer) {
		rt.DestroyBuffer(d.handle)
		if d.id != slot.Nil {
			c.buffers.Recycle(d.id)
		}
	})
	return c
}

// WriteMemory marks every sub-range overlapping the region CPU modified on
// all overlapping buffers. The next bind of those ranges uploads them.
func (c *Cache) WriteMemory(ctx context.Context, cpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forEachBufferInRange(cpuAddr, size, func(b *Buffer) {
		b.MarkRegionCPUModified(cpuAddr, size)
	})
}

// CachedWriteMemory defers the CPU modified marking until
// FlushCachedWrites, batching bursts of small guest writes.
func (c *Cache) CachedWriteMemory(ctx context.Context, cpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forEachBufferInRange(cpuAddr, size, func(b *Buffer) {
		b.markCachedWrite(cpuAddr, size)
		if !b.hasCachedWrites {
			b.hasCachedWrites = true
			c.cachedWriteIDs = append(c.cachedWriteIDs, b.id)
		}
	})
}

// FlushCachedWrites promotes all deferred writes to CPU modified.
func (c *Cache) FlushCachedWrites(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.cachedWriteIDs {
		if c.buffers.Live(id) {
			c.buffers.Get(id).flushCachedWrites()
		}
	}
	c.cachedWriteIDs = c.cachedWriteIDs[:0]
}

// DownloadMemory copies every GPU modified sub-range overlapping the
// region back into guest memory.
func (c *Cache) DownloadMemory(ctx context.Context, cpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forEachBufferInRange(cpuAddr, size, func(b *Buffer) {
		c.downloadBufferMemory(ctx, b, cpuAddr, size)
	})
}

// MarkRegionGPUModified records a GPU write over the region on every
// overlapping buffer and queues it for guest writeback accounting.
func (c *Cache) MarkRegionGPUModified(ctx context.Context, cpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forEachBufferInRange(cpuAddr, size, func(b *Buffer) {
		c.markRegionGPUModified(b, cpuAddr, size)
	})
}

// UnmapMemory drops every buffer overlapping the region. Their guest pages
// are going away, so pending downloads over the region are cancelled.
func (c *Cache) UnmapMemory(ctx context.Context, cpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unmapMemory(ctx, cpuAddr, size)
}

// UnmapGPUMemory is UnmapMemory addressed by GPUVA.
func (c *Cache) UnmapGPUMemory(ctx context.Context, gpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cpuAddr, ok := c.mm.GPUToCPUAddress(gpuAddr)
	if !ok {
		return
	}
	c.unmapMemory(ctx, cpuAddr, size)
}

func (c *Cache) unmapMemory(ctx context.Context, cpuAddr, size uint64) {
	var ids []slot.ID
	c.forEachBufferInRange(cpuAddr, size, func(b *Buffer) {
		ids = append(ids, b.id)
	})
	for _, id := range ids {
		c.removeBuffer(ctx, c.buffers.Get(id))
	}
	r := interval.U64Range{First: cpuAddr, Count: size}
	c.commonRanges.Sub(r)
	c.uncommittedRanges.Sub(r)
	if len(ids) > 0 {
		c.hasDeletedBuffers = true
	}
}

// FindBuffer returns the buffer backing the region, creating or joining as
// needed.
func (c *Cache) FindBuffer(ctx context.Context, cpuAddr, size uint64) slot.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findBuffer(ctx, cpuAddr, size)
}

func (c *Cache) findBuffer(ctx context.Context, cpuAddr, size uint64) slot.ID {
	if id, ok := c.pageTable[cpuAddr>>PageBits]; ok {
		if c.buffers.Get(id).Contains(cpuAddr, size) {
			return id
		}
	}
	return c.createBuffer(ctx, cpuAddr, size)
}

// createBuffer allocates a host buffer covering the request plus every
// overlapping buffer's extent, migrates their pending GPU data and retires
// them.
func (c *Cache) createBuffer(ctx context.Context, cpuAddr, wantedSize uint64) slot.ID {
	begin, end := cpuAddr, cpuAddr+wantedSize
	var overlaps []slot.ID
	var score uint32
	hasStreamLeap := false
	for changed := true; changed; {
		changed = false
		for page := begin >> PageBits; page <= (end-1)>>PageBits; page++ {
			oid, ok := c.pageTable[page]
			if !ok {
				continue
			}
			o := c.buffers.Get(oid)
			if o.picked {
				continue
			}
			o.picked = true
			overlaps = append(overlaps, oid)
			begin = u64.Min(begin, o.cpuAddr)
			end = u64.Max(end, o.End())
			score += o.streamScore
			if !c.cfg.DisableStreamLeap && score > streamScoreThreshold && !hasStreamLeap {
				// Streaming pattern: grow once by a large step instead of
				// re-joining on every draw.
				hasStreamLeap = true
				end += streamLeapSize
			}
			changed = true
			break
		}
	}

	size := end - begin
	handle := c.rt.CreateBuffer(size)
	id := c.buffers.Insert(newBuffer(begin, size, handle))
	nb := c.buffers.Get(id)
	nb.id = id

	for _, oid := range overlaps {
		o := c.buffers.Get(oid)
		if !hasStreamLeap {
			nb.streamScore += o.streamScore + 1
		}
		base := o.cpuAddr - begin
		var copies []runtime.BufferCopy
		o.ForEachGPUModifiedRange(o.cpuAddr, o.size, func(off, sz uint64) {
			copies = append(copies, runtime.BufferCopy{
				SrcOffset: off,
				DstOffset: base + off,
				Size:      sz,
			})
			nb.MarkRegionGPUModified(o.cpuAddr+off, sz)
		})
		if len(copies) > 0 {
			c.rt.CopyBuffer(handle, o.handle, copies)
		}
		c.removeBuffer(ctx, o)
	}
	if len(overlaps) > 0 {
		log.D(ctx, "joined %d buffers into [%#x+%#x]", len(overlaps), begin, size)
	}

	for page := begin >> PageBits; page <= (end-1)>>PageBits; page++ {
		c.pageTable[page] = id
	}
	nb.lruHandle = c.tracker.Insert(id, c.frameTick)
	c.rast.UpdatePages(begin, size, 1)
	c.totalUsedMemory += u64.AlignUp(size, 1024)
	c.hasDeletedBuffers = true
	return id
}

// removeBuffer unregisters a buffer and parks it in the destruction ring.
// The slot id stays unavailable until the ring completes.
func (c *Cache) removeBuffer(ctx context.Context, b *Buffer) {
	for page := b.cpuAddr >> PageBits; page <= (b.End()-1)>>PageBits; page++ {
		if id, ok := c.pageTable[page]; ok && id == b.id {
			delete(c.pageTable, page)
		}
	}
	c.tracker.Free(b.lruHandle)
	c.rast.UpdatePages(b.cpuAddr, b.size, -1)
	c.totalUsedMemory -= u64.AlignUp(b.size, 1024)
	id, handle := b.id, b.handle
	c.buffers.Remove(id)
	c.delayed.Push(deadBuffer{id: id, handle: handle})
}

// markRegionGPUModified is the cache-level GPU write mark: it updates the
// buffer bitmap and the writeback interval sets.
func (c *Cache) markRegionGPUModified(b *Buffer, cpuAddr, size uint64) {
	b.MarkRegionGPUModified(cpuAddr, size)
	addr, n, ok := b.clampBytes(cpuAddr, size)
	if !ok {
		return
	}
	r := interval.U64Range{First: addr, Count: n}
	c.commonRanges.Add(r)
	if c.cfg.trackUncommitted() {
		c.uncommittedRanges.Add(r)
	}
}

// forEachBufferInRange visits every distinct buffer overlapping the
// region. The callback must not create or remove buffers.
func (c *Cache) forEachBufferInRange(cpuAddr, size uint64, f func(*Buffer)) {
	if size == 0 {
		return
	}
	seen := map[slot.ID]struct{}{}
	for page := cpuAddr >> PageBits; page <= (cpuAddr+size-1)>>PageBits; page++ {
		id, ok := c.pageTable[page]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		b := c.buffers.Get(id)
		if b.Overlaps(cpuAddr, size) {
			f(b)
		}
	}
}

func (c *Cache) touch(b *Buffer) {
	c.tracker.Touch(b.lruHandle, c.frameTick)
}

// TickFrame advances the frame tick, runs the garbage collector and drains
// one ring slot of deferred destructions.
func (c *Cache) TickFrame(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameTick++
	c.runGarbageCollector(ctx)
	c.delayed.Tick()
	c.rt.TickFrame()
}

// Garbage collection tiers. Aggressive mode kicks in above the critical
// threshold and evicts younger, and more, buffers.
const (
	gcNormalEvictions     = 32
	gcNormalMaxAge        = 120
	gcAggressiveEvictions = 64
	gcAggressiveMaxAge    = 60
)

func (c *Cache) runGarbageCollector(ctx context.Context) {
	aggressive := c.totalUsedMemory >= c.cfg.criticalMemory()
	if !aggressive && c.totalUsedMemory < c.cfg.expectedMemory() {
		return
	}
	maxEvictions, maxAge := gcNormalEvictions, uint64(gcNormalMaxAge)
	if aggressive {
		maxEvictions, maxAge = gcAggressiveEvictions, gcAggressiveMaxAge
	}
	if c.frameTick <= maxAge {
		return
	}
	evicted := 0
	c.tracker.ForEachBelow(c.frameTick-maxAge, func(id slot.ID, h lru.Handle) bool {
		if evicted >= maxEvictions {
			return false
		}
		b := c.buffers.Get(id)
		if b.IsRegionGPUModified(b.cpuAddr, b.size) {
			// Pending GPU data must reach guest memory before the host
			// buffer goes away.
			c.downloadBufferMemory(ctx, b, b.cpuAddr, b.size)
		}
		c.removeBuffer(ctx, b)
		c.hasDeletedBuffers = true
		evicted++
		return true
	})
	if evicted > 0 {
		log.D(ctx, "garbage collector evicted %d buffers, %d MiB in use", evicted, c.totalUsedMemory>>20)
	}
}

// TotalUsedMemory returns the tracked host memory, rounded per buffer to
// 1 KiB.
func (c *Cache) TotalUsedMemory() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalUsedMemory
}
