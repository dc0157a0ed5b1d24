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

	"github.com/kentjhall/mizu-sub011/core/log"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

// BlitImage copies a region between two guest surfaces, picking the copy
// mechanism from their formats and sample counts: resolve for MSAA to
// single-sample, a framebuffer blit for plain color and for depth-stencil
// when the backend supports it, and an emulated copy otherwise.
func (c *Cache) BlitImage(ctx context.Context, dst, src engine.RenderTarget, dstRegion, srcRegion runtime.Region2D, filter runtime.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	srcInfo, ok := InfoFromRenderTarget(src)
	if !ok {
		log.D(ctx, "blit with degenerate source surface")
		return
	}
	dstInfo, ok := InfoFromRenderTarget(dst)
	if !ok {
		log.D(ctx, "blit with degenerate destination surface")
		return
	}

	opts := RelaxSize | RelaxFormat | RelaxSamples
	srcID := c.findOrInsertImage(ctx, srcInfo, src.Addr, opts)
	dstID := c.findOrInsertImage(ctx, dstInfo, dst.Addr, opts)
	if srcID == slot.Nil || dstID == slot.Nil {
		return
	}
	c.prepareImage(ctx, srcID, false, false)
	fullOverwrite := coversSurface(dstRegion, dstInfo)
	c.prepareImage(ctx, dstID, true, fullOverwrite)

	si := c.images.Get(srcID)
	di := c.images.Get(dstID)

	switch {
	case si.info.Samples > 1 && di.info.Samples == 1:
		c.rt.ResolveImage(di.handle, si.handle)

	case si.info.Format.IsDepthStencil() || di.info.Format.IsDepthStencil():
		if c.caps.DepthStencilBlit {
			dstFB := c.attachmentFramebuffer(di, true)
			srcFB := c.attachmentFramebuffer(si, true)
			c.rt.BlitFramebuffer(dstFB, srcFB, dstRegion, srcRegion, runtime.FilterNearest, runtime.BlitDepthStencil)
		} else {
			c.rt.EmulateCopyImage(di.handle, si.handle, sharedCopy(si, di))
		}

	case si.hostFormat != di.hostFormat:
		c.rt.EmulateCopyImage(di.handle, si.handle, sharedCopy(si, di))

	default:
		dstFB := c.attachmentFramebuffer(di, false)
		srcFB := c.attachmentFramebuffer(si, false)
		c.rt.BlitFramebuffer(dstFB, srcFB, dstRegion, srcRegion, filter, runtime.BlitColor)
	}
}

// coversSurface reports whether the destination rectangle overwrites the
// whole surface, allowing the blit to skip refreshing stale guest bytes.
func coversSurface(r runtime.Region2D, info ImageInfo) bool {
	x0, x1 := r.X0, r.X1
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	y0, y1 := r.Y0, r.Y1
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return x0 <= 0 && y0 <= 0 &&
		uint32(x1) >= info.Width && uint32(y1) >= info.Height
}

// attachmentFramebuffer returns a single-attachment framebuffer over the
// image, memoized in the framebuffer map like any other.
func (c *Cache) attachmentFramebuffer(img *Image, depth bool) runtime.FramebufferHandle {
	viewID := c.findOrEmplaceView(img, renderTargetViewDesc(img.info))
	var key FramebufferKey
	key.Width = img.info.Width
	key.Height = img.info.Height
	key.Samples = img.info.Samples
	if depth {
		key.DepthView = viewID
	} else {
		key.ColorViews[0] = viewID
		key.NumDraw = 1
	}
	return c.framebufferFor(key)
}

// sharedCopy is the whole-subresource copy recipe over the extents both
// images have.
func sharedCopy(src, dst *Image) []runtime.ImageCopy {
	levels := u32Min(src.info.Levels, dst.info.Levels)
	layers := u32Min(src.info.Layers, dst.info.Layers)
	var copies []runtime.ImageCopy
	for l := uint32(0); l < levels; l++ {
		sw, sh, sd := src.info.LevelExtent(l)
		dw, dh, dd := dst.info.LevelExtent(l)
		copies = append(copies, runtime.ImageCopy{
			SrcLevel:   l,
			DstLevel:   l,
			LayerCount: layers,
			Width:      u32Min(sw, dw),
			Height:     u32Min(sh, dh),
			Depth:      u32Min(sd, dd),
		})
	}
	return copies
}
