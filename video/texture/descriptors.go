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

package texture

import (
	"context"

	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

// descriptorTable caches the image view resolved for each TIC index, so a
// draw that reuses descriptors skips the page table walk.
type descriptorTable struct {
	entries []descriptorEntry
}

type descriptorEntry struct {
	valid   bool
	tic     engine.TICEntry
	imageID slot.ID
	viewID  slot.ID
}

func (t *descriptorTable) synchronize(tics []engine.TICEntry) {
	if len(t.entries) != len(tics) {
		t.entries = make([]descriptorEntry, len(tics))
	}
	for i := range t.entries {
		if t.entries[i].valid && t.entries[i].tic != tics[i] {
			t.entries[i] = descriptorEntry{}
		}
	}
}

// invalidateImage drops every cached entry resolved to the given image.
func (t *descriptorTable) invalidateImage(id slot.ID) {
	for i := range t.entries {
		if t.entries[i].valid && t.entries[i].imageID == id {
			t.entries[i] = descriptorEntry{}
		}
	}
}

// SynchronizeGraphicsDescriptors reconciles the cached graphics descriptor
// table with the TIC pool snapshot. Call before FillGraphicsImageViews.
func (c *Cache) SynchronizeGraphicsDescriptors(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphicsDescriptors.synchronize(c.state.TICs)
}

// SynchronizeComputeDescriptors is SynchronizeGraphicsDescriptors for
// dispatches.
func (c *Cache) SynchronizeComputeDescriptors(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computeDescriptors.synchronize(c.state.TICs)
}

// FillGraphicsImageViews resolves the TIC indices a draw samples into host
// view handles. out must be at least as long as indices; unresolvable
// descriptors fill the zero handle.
func (c *Cache) FillGraphicsImageViews(ctx context.Context, indices []uint32, out []runtime.ViewHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fillImageViews(ctx, &c.graphicsDescriptors, indices, out)
}

// FillComputeImageViews is FillGraphicsImageViews for dispatches.
func (c *Cache) FillComputeImageViews(ctx context.Context, indices []uint32, out []runtime.ViewHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fillImageViews(ctx, &c.computeDescriptors, indices, out)
}

func (c *Cache) fillImageViews(ctx context.Context, table *descriptorTable, indices []uint32, out []runtime.ViewHandle) {
	for {
		c.hasDeletedImages = false
		for n, idx := range indices {
			out[n] = c.fillImageView(ctx, table, idx)
			if c.hasDeletedImages {
				break
			}
		}
		if !c.hasDeletedImages {
			return
		}
		// An insert evicted an image another entry had resolved; start over
		// with the now-stale entries invalidated.
	}
}

func (c *Cache) fillImageView(ctx context.Context, table *descriptorTable, index uint32) runtime.ViewHandle {
	if int(index) >= len(table.entries) {
		return 0
	}
	e := &table.entries[index]
	if e.valid {
		// Contents may still be stale even when the resolution is cached.
		c.prepareImage(ctx, e.imageID, false, false)
		return c.ViewHandle(e.viewID)
	}
	tic := c.state.TICs[index]
	e.valid = true
	e.tic = tic
	e.imageID = slot.Nil
	e.viewID = slot.Nil

	info, ok := InfoFromTIC(tic)
	if !ok || info.Type == engine.TextureBuffer {
		return 0
	}
	id := c.findOrInsertImage(ctx, info, tic.Addr, RelaxSize|RelaxFormat)
	if id == slot.Nil {
		return 0
	}
	c.prepareImage(ctx, id, false, false)
	img := c.images.Get(id)
	viewID := c.findOrEmplaceView(img, shaderViewDesc(img, info))
	e.imageID = id
	e.viewID = viewID
	return c.ViewHandle(viewID)
}

// GetGraphicsSampler returns the host sampler for a TSC index of the
// graphics pool.
func (c *Cache) GetGraphicsSampler(index uint32) runtime.SamplerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samplerForIndex(index)
}

// GetComputeSampler returns the host sampler for a TSC index of the
// compute pool.
func (c *Cache) GetComputeSampler(index uint32) runtime.SamplerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samplerForIndex(index)
}

func (c *Cache) samplerForIndex(index uint32) runtime.SamplerHandle {
	if int(index) >= len(c.state.TSCs) {
		return 0
	}
	id := c.findSampler(c.state.TSCs[index])
	if id == slot.Nil || !c.samplers.Live(id) {
		return 0
	}
	return c.samplers.Get(id).handle
}
