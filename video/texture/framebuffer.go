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

// FramebufferKey identifies a framebuffer structurally by its attachment
// views and draw buffer mapping. Equal keys share one host framebuffer.
type FramebufferKey struct {
	ColorViews  [engine.NumRenderTargets]slot.ID
	DepthView   slot.ID
	DrawBuffers [engine.NumRenderTargets]byte
	NumDraw     uint32
	Width       uint32
	Height      uint32
	Samples     uint32
}

// UpdateRenderTargets derives images and attachment views from the color
// target and zeta registers and selects the framebuffer for them. isClear
// invalidates pending guest contents of the attachments, since the clear
// overwrites them.
func (c *Cache) UpdateRenderTargets(ctx context.Context, isClear bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		c.hasDeletedImages = false
		key := c.buildRenderTargets(ctx, isClear)
		if c.hasDeletedImages {
			// Inserting one attachment image may have evicted another
			// attachment's image; rebuild from scratch.
			continue
		}
		c.currentKey = key
		c.currentFB = c.framebufferFor(key)
		c.haveFB = true
		return
	}
}

func (c *Cache) buildRenderTargets(ctx context.Context, isClear bool) FramebufferKey {
	st := c.state
	var key FramebufferKey
	key.NumDraw = st.RTControl.Count
	width, height := uint32(0), uint32(0)
	samples := uint32(1)

	clamp := func(w, h uint32) {
		if width == 0 || w < width {
			width = w
		}
		if height == 0 || h < height {
			height = h
		}
	}

	for i := uint32(0); i < st.RTControl.Count && i < engine.NumRenderTargets; i++ {
		rtIndex := st.RTControl.Map[i]
		key.DrawBuffers[i] = rtIndex
		rt := st.RenderTargets[rtIndex]
		info, ok := InfoFromRenderTarget(rt)
		if !ok {
			continue
		}
		id := c.findOrInsertImage(ctx, info, rt.Addr, RelaxSize)
		if id == slot.Nil {
			continue
		}
		img := c.images.Get(id)
		c.prepareImage(ctx, id, true, isClear)
		key.ColorViews[rtIndex] = c.findOrEmplaceView(img, renderTargetViewDesc(info))
		clamp(info.Width, info.Height)
		samples = info.Samples
	}

	if info, ok := InfoFromZeta(st.Zeta); ok {
		id := c.findOrInsertImage(ctx, info, st.Zeta.Addr, RelaxSize)
		if id != slot.Nil {
			img := c.images.Get(id)
			c.prepareImage(ctx, id, true, isClear)
			key.DepthView = c.findOrEmplaceView(img, renderTargetViewDesc(info))
			clamp(info.Width, info.Height)
			samples = info.Samples
		}
	}

	key.Width = width
	key.Height = height
	key.Samples = samples
	return key
}

// framebufferFor returns the host framebuffer for the key, creating one on
// first use.
func (c *Cache) framebufferFor(key FramebufferKey) runtime.FramebufferHandle {
	if fb, ok := c.framebuffers[key]; ok {
		return fb
	}
	var desc runtime.FramebufferDesc
	for i := range key.ColorViews {
		desc.ColorViews[i] = c.ViewHandle(key.ColorViews[i])
	}
	desc.DepthView = c.ViewHandle(key.DepthView)
	desc.DrawBuffers = key.DrawBuffers
	desc.NumDraw = key.NumDraw
	desc.Width = key.Width
	desc.Height = key.Height
	desc.Samples = key.Samples
	fb := c.rt.CreateFramebuffer(desc)
	c.framebuffers[key] = fb
	return fb
}

// GetFramebuffer returns the framebuffer selected by the last
// UpdateRenderTargets call, or 0 before the first call.
func (c *Cache) GetFramebuffer() runtime.FramebufferHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveFB {
		return 0
	}
	return c.currentFB
}

// TryFindFramebufferImageView returns a whole-image view of a registered
// image whose guest address matches exactly, for presentation of completed
// frames. ok is false when no image starts at the address.
func (c *Cache) TryFindFramebufferImageView(cpuAddr uint64) (runtime.ViewHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.cpuPageTable[cpuAddr>>PageBits] {
		img := c.images.Get(id)
		if img.cpuAddr != cpuAddr {
			continue
		}
		viewID := c.findOrEmplaceView(img, renderTargetViewDesc(img.info))
		return c.ViewHandle(viewID), true
	}
	return 0, false
}

// dropFramebuffersOf destroys every framebuffer referencing one of the
// given views, called when their image is unregistered.
func (c *Cache) dropFramebuffersOf(viewIDs []slot.ID) {
	if len(viewIDs) == 0 {
		return
	}
	dead := map[slot.ID]struct{}{}
	for _, id := range viewIDs {
		dead[id] = struct{}{}
	}
	for key, fb := range c.framebuffers {
		refs := false
		if _, ok := dead[key.DepthView]; ok {
			refs = true
		}
		for _, v := range key.ColorViews {
			if _, ok := dead[v]; ok {
				refs = true
				break
			}
		}
		if !refs {
			continue
		}
		c.rt.DestroyFramebuffer(fb)
		delete(c.framebuffers, key)
		if key == c.currentKey {
			c.haveFB = false
			c.currentFB = 0
		}
	}
}
