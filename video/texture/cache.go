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

// Package texture maps guest image descriptors to host images, views,
// samplers and framebuffers, and keeps guest and host contents in sync.
//
// The cache is protected by one coarse mutex; every public method takes it.
// Degenerate guest descriptors resolve to the null image (slot id 0) and
// never fail outward.
package texture

import (
	"context"
	"sync"

	"github.com/kentjhall/mizu-sub011/core/log"
	"github.com/kentjhall/mizu-sub011/core/math/u64"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/format"
	"github.com/kentjhall/mizu-sub011/video/lru"
	"github.com/kentjhall/mizu-sub011/video/mmu"
	"github.com/kentjhall/mizu-sub011/video/ring"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

const (
	// PageBits selects the page table granularity. A page is 1 MiB; image
	// footprints are large and sparse hash maps of slices keep the tables
	// small.
	PageBits = 20
	// PageSize is the byte size of one texture cache page.
	PageSize = 1 << PageBits
)

// RelaxedOptions loosens the compatibility relation used when matching an
// existing image to a request.
type RelaxedOptions uint32

const (
	// RelaxSize accepts an image whose subresources contain the request.
	RelaxSize RelaxedOptions = 1 << iota
	// RelaxFormat accepts a format reinterpretation of the same byte width.
	RelaxFormat
	// RelaxSamples accepts a differing sample count.
	RelaxSamples
)

// deadImage sits in the delayed destruction ring until in-flight GPU work
// that may still reference the host objects has completed.
type deadImage struct {
	id      slot.ID
	handle  runtime.ImageHandle
	views   []runtime.ViewHandle
	viewIDs []slot.ID
}

// Cache is the texture cache.
type Cache struct {
	mu sync.Mutex

	rt    runtime.Runtime
	caps  runtime.Caps
	mm    mmu.MemoryManager
	host  mmu.HostMemory
	rast  mmu.Rasterizer
	state *engine.State
	cfg   Config

	images   *slot.Table[Image]
	views    *slot.Table[ImageView]
	samplers *slot.Table[Sampler]

	// Two page tables: GPU pages are the primary lookup, CPU pages serve
	// write propagation since one CPU range can back several GPU aliases.
	gpuPageTable map[uint64][]slot.ID
	cpuPageTable map[uint64][]slot.ID

	tracker *lru.Tracker[slot.ID]
	delayed *ring.Destructor[deadImage]

	frameTick        uint64
	totalUsedMemory  uint64
	hasDeletedImages bool
	modificationTick uint64

	samplerMemo map[engine.TSCEntry]slot.ID

	framebuffers map[FramebufferKey]runtime.FramebufferHandle
	currentKey   FramebufferKey
	currentFB    runtime.FramebufferHandle
	haveFB       bool

	graphicsDescriptors descriptorTable
	computeDescriptors  descriptorTable

	uploadScratch []byte
}

// New returns a texture cache over the given runtime and guest memory.
// state is the engine register snapshot read during updates.
func New(ctx context.Context, rt runtime.Runtime, mm mmu.MemoryManager, host mmu.HostMemory, rast mmu.Rasterizer, state *engine.State, cfg Config) *Cache {
	c := &Cache{
		rt:           rt,
		caps:         rt.Caps(),
		mm:           mm,
		host:         host,
		rast:         rast,
		state:        state,
		cfg:          cfg,
		images:       slot.NewTable[Image](),
		views:        slot.NewTable[ImageView](),
		samplers:     slot.NewTable[Sampler](),
		gpuPageTable: map[uint64][]slot.ID{},
		cpuPageTable: map[uint64][]slot.ID{},
		tracker:      lru.NewTracker[slot.ID](),
		samplerMemo:  map[engine.TSCEntry]slot.ID{},
		framebuffers: map[FramebufferKey]runtime.FramebufferHandle{},
	}
	c.delayed = ring.New(func(d deadImage) {
		for _, v := range d.views {
			rt.DestroyImageView(v)
		}
		rt.DestroyImage(d.handle)
		for _, id := range d.viewIDs {
			c.views.Recycle(id)
		}
		if d.id != slot.Nil {
			c.images.Recycle(d.id)
		}
	})
	return c
}

// WriteMemory marks every image overlapping the region as CPU modified. The
// next use of those images refreshes them from guest memory.
func (c *Cache) WriteMemory(ctx context.Context, cpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forEachImageInCPURange(cpuAddr, size, func(img *Image) {
		img.setFlag(FlagCPUModified)
	})
}

// DownloadMemory writes every GPU modified image overlapping the region
// back to guest memory.
func (c *Cache) DownloadMemory(ctx context.Context, cpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forEachImageInCPURange(cpuAddr, size, func(img *Image) {
		if img.HasFlag(FlagGPUModified) {
			c.downloadImage(ctx, img)
		}
	})
}

// UnmapMemory drops every image overlapping the region. Their guest pages
// are going away.
func (c *Cache) UnmapMemory(ctx context.Context, cpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []slot.ID
	c.forEachImageInCPURange(cpuAddr, size, func(img *Image) {
		ids = append(ids, img.id)
	})
	for _, id := range ids {
		img := c.images.Get(id)
		img.setFlag(FlagRemapped)
		c.unregisterImage(ctx, img)
	}
}

// UnmapGPUMemory is UnmapMemory addressed by GPUVA. Sparse images are only
// reachable this way.
func (c *Cache) UnmapGPUMemory(ctx context.Context, gpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []slot.ID
	c.forEachImageInGPURange(gpuAddr, size, func(img *Image) {
		ids = append(ids, img.id)
	})
	for _, id := range ids {
		img := c.images.Get(id)
		img.setFlag(FlagRemapped)
		c.unregisterImage(ctx, img)
	}
}

// FindOrInsertImage returns an image compatible with info at gpuAddr,
// creating one when no registered image can serve the request. slot.Nil is
// returned for degenerate requests, buffer-typed descriptors and failed
// translations without RelaxSize.
func (c *Cache) FindOrInsertImage(ctx context.Context, info ImageInfo, gpuAddr uint64, opts RelaxedOptions) slot.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findOrInsertImage(ctx, info, gpuAddr, opts)
}

func (c *Cache) findOrInsertImage(ctx context.Context, info ImageInfo, gpuAddr uint64, opts RelaxedOptions) slot.ID {
	// Buffer-typed descriptors belong to the buffer cache; they are never
	// registered here.
	if info.Type == engine.TextureBuffer || gpuAddr == 0 {
		return slot.Nil
	}
	guestSize := info.GuestSizeBytes()
	if guestSize == 0 {
		return slot.Nil
	}
	cpuAddr, mapped := c.mm.GPUToCPUAddress(gpuAddr)
	if !mapped && opts&RelaxSize == 0 {
		log.D(ctx, "image at unmapped gpu address %#x", gpuAddr)
		return slot.Nil
	}

	var found slot.ID
	c.forEachImageInGPURange(gpuAddr, guestSize, func(img *Image) {
		if found != slot.Nil {
			return
		}
		if img.gpuAddr == gpuAddr && compatible(img.info, info, opts) {
			found = img.id
		}
	})
	if found != slot.Nil {
		c.touch(c.images.Get(found))
		return found
	}
	return c.insertImage(ctx, info, gpuAddr, cpuAddr, mapped)
}

// insertImage allocates the host image, records alias recipes against every
// overlapping registered image and registers the new image in the page
// tables.
func (c *Cache) insertImage(ctx context.Context, info ImageInfo, gpuAddr, cpuAddr uint64, mapped bool) slot.ID {
	img := newImage(info, gpuAddr, cpuAddr)
	if !mapped {
		img.setFlag(FlagSparse)
	}
	c.classifyUpload(&img)
	if img.HasFlag(FlagConverted) {
		img.convertedSize = img.hostDesc().TotalBytes()
	}
	img.hostFormat = img.hostDesc().Format
	img.handle = c.rt.CreateImage(img.hostDesc())

	id := c.images.Insert(img)
	ni := c.images.Get(id)
	ni.id = id

	// Overlap enumeration. Images sharing a base address get a copy recipe
	// and become aliases; anything else is a weak overlap.
	var overlaps []slot.ID
	c.forEachImageInGPURange(gpuAddr, ni.guestSize, func(o *Image) {
		if o.id != id {
			overlaps = append(overlaps, o.id)
		}
	})
	for _, oid := range overlaps {
		o := c.images.Get(oid)
		if o.gpuAddr == ni.gpuAddr && aliasWith(ni, o) {
			continue
		}
		ni.overlapping = append(ni.overlapping, oid)
		o.overlapping = append(o.overlapping, id)
		ni.setFlag(FlagBadOverlap)
		o.setFlag(FlagBadOverlap)
	}

	c.registerImage(ni)
	return id
}

func (c *Cache) registerImage(img *Image) {
	id := img.id
	for page := img.gpuAddr >> PageBits; page <= (img.gpuAddr+img.guestSize-1)>>PageBits; page++ {
		c.gpuPageTable[page] = append(c.gpuPageTable[page], id)
	}
	if !img.HasFlag(FlagSparse) {
		for page := img.cpuAddr >> PageBits; page <= (img.cpuAddr+img.guestSize-1)>>PageBits; page++ {
			c.cpuPageTable[page] = append(c.cpuPageTable[page], id)
		}
		c.rast.UpdatePages(img.cpuAddr, img.guestSize, 1)
		img.setFlag(FlagTracked)
	}
	img.setFlag(FlagRegistered)
	img.lruHandle = c.tracker.Insert(id, c.frameTick)
	c.totalUsedMemory += u64.AlignUp(img.guestSize, 1024)
}

// unregisterImage removes the image from both page tables, severs its alias
// relations, drops framebuffers built over its views and parks the host
// objects in the destruction ring.
func (c *Cache) unregisterImage(ctx context.Context, img *Image) {
	id := img.id
	for page := img.gpuAddr >> PageBits; page <= (img.gpuAddr+img.guestSize-1)>>PageBits; page++ {
		c.gpuPageTable[page] = removeID(c.gpuPageTable[page], id)
		if len(c.gpuPageTable[page]) == 0 {
			delete(c.gpuPageTable, page)
		}
	}
	if img.HasFlag(FlagTracked) {
		for page := img.cpuAddr >> PageBits; page <= (img.cpuAddr+img.guestSize-1)>>PageBits; page++ {
			c.cpuPageTable[page] = removeID(c.cpuPageTable[page], id)
			if len(c.cpuPageTable[page]) == 0 {
				delete(c.cpuPageTable, page)
			}
		}
		c.rast.UpdatePages(img.cpuAddr, img.guestSize, -1)
		img.clearFlag(FlagTracked)
	}
	for _, a := range img.aliases {
		if c.images.Live(a.id) {
			c.images.Get(a.id).dropAlias(id)
		}
	}
	for _, oid := range img.overlapping {
		if c.images.Live(oid) {
			other := c.images.Get(oid)
			other.overlapping = removeID(other.overlapping, id)
		}
	}
	c.tracker.Free(img.lruHandle)
	c.totalUsedMemory -= u64.AlignUp(img.guestSize, 1024)
	img.clearFlag(FlagRegistered)

	dead := deadImage{id: id, handle: img.handle}
	for _, ve := range img.views {
		v := c.views.Remove(ve.id)
		dead.views = append(dead.views, v.handle)
		dead.viewIDs = append(dead.viewIDs, ve.id)
	}
	c.dropFramebuffersOf(dead.viewIDs)
	c.images.Remove(id)
	c.delayed.Push(dead)
	c.hasDeletedImages = true
	c.graphicsDescriptors.invalidateImage(id)
	c.computeDescriptors.invalidateImage(id)
}

// findOrEmplaceView returns a view of the image matching desc, creating it
// on first use. Views are immutable and live exactly as long as the image.
func (c *Cache) findOrEmplaceView(img *Image, desc runtime.ViewDesc) slot.ID {
	for _, ve := range img.views {
		if ve.desc == desc {
			return ve.id
		}
	}
	handle := c.rt.CreateImageView(img.handle, desc)
	id := c.views.Insert(ImageView{imageID: img.id, desc: desc, handle: handle})
	v := c.views.Get(id)
	v.id = id
	img.views = append(img.views, viewEntry{desc: desc, id: id})
	return id
}

// ViewHandle resolves a view slot id to its host handle; slot.Nil yields
// the zero handle.
func (c *Cache) ViewHandle(id slot.ID) runtime.ViewHandle {
	if id == slot.Nil || !c.views.Live(id) {
		return 0
	}
	return c.views.Get(id).handle
}

// forEachImageInCPURange visits every distinct registered image overlapping
// the CPU region. The callback must not register or unregister images.
func (c *Cache) forEachImageInCPURange(cpuAddr, size uint64, f func(*Image)) {
	if size == 0 {
		return
	}
	seen := map[slot.ID]struct{}{}
	for page := cpuAddr >> PageBits; page <= (cpuAddr+size-1)>>PageBits; page++ {
		for _, id := range c.cpuPageTable[page] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			img := c.images.Get(id)
			if img.Overlaps(cpuAddr, size) {
				f(img)
			}
		}
	}
}

// forEachImageInGPURange is forEachImageInCPURange over the GPU table.
func (c *Cache) forEachImageInGPURange(gpuAddr, size uint64, f func(*Image)) {
	if size == 0 {
		return
	}
	seen := map[slot.ID]struct{}{}
	for page := gpuAddr >> PageBits; page <= (gpuAddr+size-1)>>PageBits; page++ {
		for _, id := range c.gpuPageTable[page] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			img := c.images.Get(id)
			if img.OverlapsGPU(gpuAddr, size) {
				f(img)
			}
		}
	}
}

func (c *Cache) touch(img *Image) {
	c.tracker.Touch(img.lruHandle, c.frameTick)
}

// TickFrame advances the frame tick, runs the garbage collector and drains
// one ring slot of deferred destructions. The buffer cache owns the
// runtime's frame boundary; this cache does not tick it again.
func (c *Cache) TickFrame(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameTick++
	c.runGarbageCollector(ctx)
	c.delayed.Tick()
}

// Garbage collection tiers, shared with the buffer cache: above critical,
// evict harder and younger.
const (
	gcNormalEvictions     = 32
	gcNormalMaxAge        = 120
	gcAggressiveEvictions = 64
	gcAggressiveMaxAge    = 60
)

// RunGarbageCollector evicts cold images when memory use exceeds the
// configured thresholds.
func (c *Cache) RunGarbageCollector(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runGarbageCollector(ctx)
}

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
		img := c.images.Get(id)
		if img.HasFlag(FlagGPUModified) {
			c.downloadImage(ctx, img)
		}
		c.unregisterImage(ctx, img)
		evicted++
		return true
	})
	if evicted > 0 {
		log.D(ctx, "garbage collector evicted %d images, %d MiB in use", evicted, c.totalUsedMemory>>20)
	}
}

// TotalUsedMemory returns the tracked guest memory footprint, rounded per
// image to 1 KiB.
func (c *Cache) TotalUsedMemory() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalUsedMemory
}

// classifyUpload decides the upload path for compressed formats the host
// may not support natively.
func (c *Cache) classifyUpload(img *Image) {
	f := img.info.Format
	switch {
	case f.IsASTC():
		if c.caps.NativeASTC {
			return
		}
		if c.cfg.AccelerateASTC && c.caps.AcceleratedASTC {
			img.setFlag(FlagAcceleratedUpload)
			return
		}
		img.setFlag(FlagConverted)
	case f == format.BC4Unorm || f == format.BC4Snorm:
		if !c.caps.NativeBCn {
			img.setFlag(FlagConverted)
		}
	}
}

// compatible implements the relaxed compatibility relation between a
// registered image's info and a request at the same address.
func compatible(existing, requested ImageInfo, opts RelaxedOptions) bool {
	if existing.Linear != requested.Linear {
		return false
	}
	if existing.Format != requested.Format {
		if opts&RelaxFormat == 0 {
			return false
		}
		if existing.Format.BytesPerBlock() != requested.Format.BytesPerBlock() ||
			existing.Format.BlockWidth() != requested.Format.BlockWidth() ||
			existing.Format.BlockHeight() != requested.Format.BlockHeight() {
			return false
		}
	}
	if existing.Samples != requested.Samples && opts&RelaxSamples == 0 {
		return false
	}
	if existing.Type != requested.Type {
		if opts&RelaxSize == 0 || !layerTypesCompatible(existing.Type, requested.Type) {
			return false
		}
	}
	if existing.Levels < requested.Levels || existing.Layers < requested.Layers {
		return false
	}
	if opts&RelaxSize != 0 {
		return existing.Width >= requested.Width &&
			existing.Height >= requested.Height &&
			existing.Depth >= requested.Depth
	}
	return blockAlignedSameSize(existing, requested)
}

// layerTypesCompatible reports whether two texture types view the same
// layered storage.
func layerTypesCompatible(a, b engine.TextureType) bool {
	layered := func(t engine.TextureType) bool {
		switch t {
		case engine.Texture2D, engine.Texture2DArray, engine.TextureCube, engine.TextureCubeArray:
			return true
		}
		return false
	}
	return layered(a) && layered(b)
}

// blockAlignedSameSize compares extents with block-linear rounding: two
// images whose rows round up to the same GOB count occupy the same storage
// even when their texel widths differ.
func blockAlignedSameSize(a, b ImageInfo) bool {
	if a.Depth != b.Depth {
		return false
	}
	if a.Linear {
		return a.Width == b.Width && a.Height == b.Height
	}
	aw := u64.AlignUp(a.levelRowBytes(0), 64)
	bw := u64.AlignUp(b.levelRowBytes(0), 64)
	ah := u64.AlignUp(uint64(a.Height), uint64(8*a.BlockHeight))
	bh := u64.AlignUp(uint64(b.Height), uint64(8*b.BlockHeight))
	return aw == bw && ah == bh
}

func removeID(list []slot.ID, id slot.ID) []slot.ID {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
