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
	"sort"

	"github.com/kentjhall/mizu-sub011/core/image/astc"
	"github.com/kentjhall/mizu-sub011/core/image/bc4"
	"github.com/kentjhall/mizu-sub011/core/image/swizzle"
	"github.com/kentjhall/mizu-sub011/video/format"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

// PrepareImage readies an image for use by the GPU: aliases are pulled in,
// stale guest contents are uploaded unless the use overwrites everything,
// and writes are recorded.
func (c *Cache) PrepareImage(ctx context.Context, id slot.ID, isModification, invalidate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepareImage(ctx, id, isModification, invalidate)
}

func (c *Cache) prepareImage(ctx context.Context, id slot.ID, isModification, invalidate bool) {
	if id == slot.Nil || !c.images.Live(id) {
		return
	}
	img := c.images.Get(id)
	c.syncAliases(ctx, img)
	if img.HasFlag(FlagCPUModified) {
		if invalidate {
			// The pending guest data is about to be overwritten wholesale;
			// uploading it first would be wasted work.
			img.clearFlag(FlagCPUModified)
		} else {
			c.refreshContents(ctx, img)
		}
	}
	if isModification {
		c.markModification(img)
	}
	c.touch(img)
}

// markModification records a GPU write to the image. Aliases observe it
// through the modification tick ordering on their next use.
func (c *Cache) markModification(img *Image) {
	img.setFlag(FlagGPUModified)
	c.modificationTick++
	img.modificationTick = c.modificationTick
}

// SynchronizeAliases pulls newer GPU-written subresources from every alias
// into the image.
func (c *Cache) SynchronizeAliases(ctx context.Context, id slot.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != slot.Nil && c.images.Live(id) {
		c.syncAliases(ctx, c.images.Get(id))
	}
}

func (c *Cache) syncAliases(ctx context.Context, img *Image) {
	if !img.HasFlag(FlagAlias) {
		return
	}
	type pending struct {
		alias  *Image
		recipe []runtime.ImageCopy
	}
	var newer []pending
	for _, a := range img.aliases {
		if !c.images.Live(a.id) {
			continue
		}
		src := c.images.Get(a.id)
		if src.HasFlag(FlagGPUModified) && src.modificationTick > img.modificationTick {
			newer = append(newer, pending{alias: src, recipe: a.copies})
		}
	}
	if len(newer) == 0 {
		return
	}
	// Oldest first, so the newest write lands last.
	sort.Slice(newer, func(i, j int) bool {
		return newer[i].alias.modificationTick < newer[j].alias.modificationTick
	})
	for _, p := range newer {
		if p.alias.hostFormat == img.hostFormat {
			c.rt.CopyImage(img.handle, p.alias.handle, p.recipe)
		} else {
			c.rt.EmulateCopyImage(img.handle, p.alias.handle, p.recipe)
		}
		if p.alias.modificationTick > img.modificationTick {
			img.modificationTick = p.alias.modificationTick
		}
	}
	img.setFlag(FlagGPUModified)
	img.clearFlag(FlagCPUModified)
}

// refreshContents uploads the guest bytes into the host image, unswizzling
// and, for converted formats, decoding on the way.
func (c *Cache) refreshContents(ctx context.Context, img *Image) {
	guest := c.scratch(img.guestSize)
	c.readGuest(img, guest)

	if img.HasFlag(FlagAcceleratedUpload) {
		// The runtime's compute decoder consumes the raw block-linear bytes.
		st := c.rt.UploadStaging(img.guestSize)
		copy(st.Data, guest)
		var params []runtime.SwizzleParams
		for l := uint32(0); l < img.info.Levels; l++ {
			w, h, d := img.info.LevelExtent(l)
			params = append(params, runtime.SwizzleParams{
				BufferOffset: img.info.GuestLevelOffset(l),
				Level:        l,
				BlockHeight:  swizzle.AdjustBlockHeight(img.info.BlockHeight, uint32(img.info.levelRows(l))),
				Width:        w,
				Height:       h,
				Depth:        d,
			})
		}
		c.rt.AccelerateImageUpload(img.handle, st, params)
		img.clearFlag(FlagCPUModified)
		return
	}

	linear := make([]byte, img.unswizzledSize)
	unswizzleImage(linear, guest, img.info)

	upload := linear
	desc := img.info.HostDesc(false)
	if img.HasFlag(FlagConverted) {
		desc = img.info.HostDesc(true)
		converted := make([]byte, img.convertedSize)
		convertImage(converted, linear, img.info, desc)
		upload = converted
	}

	st := c.rt.UploadStaging(uint64(len(upload)))
	copy(st.Data, upload)
	var copies []runtime.BufferImageCopy
	for l := uint32(0); l < img.info.Levels; l++ {
		w, h, d := img.info.LevelExtent(l)
		copies = append(copies, runtime.BufferImageCopy{
			BufferOffset: desc.LevelOffset(l),
			Level:        l,
			BaseLayer:    0,
			LayerCount:   img.info.Layers,
			Width:        w,
			Height:       h,
			Depth:        d,
		})
	}
	c.rt.UploadImage(img.handle, st, copies)
	img.clearFlag(FlagCPUModified)
}

// downloadImage writes the host image back to guest memory. Converted
// images cannot be re-encoded and sparse images have no guest destination;
// both only drop the flag.
func (c *Cache) downloadImage(ctx context.Context, img *Image) {
	if img.HasFlag(FlagConverted) || img.HasFlag(FlagSparse) {
		img.clearFlag(FlagGPUModified)
		return
	}
	desc := img.info.HostDesc(false)
	st := c.rt.DownloadStaging(img.unswizzledSize)
	var copies []runtime.BufferImageCopy
	for l := uint32(0); l < img.info.Levels; l++ {
		w, h, d := img.info.LevelExtent(l)
		copies = append(copies, runtime.BufferImageCopy{
			BufferOffset: desc.LevelOffset(l),
			Level:        l,
			BaseLayer:    0,
			LayerCount:   img.info.Layers,
			Width:        w,
			Height:       h,
			Depth:        d,
		})
	}
	c.rt.DownloadImage(img.handle, st, copies)
	c.rt.Finish()

	guest := c.scratch(img.guestSize)
	c.readGuest(img, guest)
	swizzleImage(guest, st.Data, img.info)
	c.host.WriteBlockUnsafe(img.cpuAddr, guest)
	img.clearFlag(FlagGPUModified)
}

func (c *Cache) readGuest(img *Image, dst []byte) {
	if img.HasFlag(FlagSparse) {
		c.mm.ReadBlockUnsafe(img.gpuAddr, dst)
	} else {
		c.host.ReadBlockUnsafe(img.cpuAddr, dst)
	}
}

func (c *Cache) scratch(size uint64) []byte {
	if uint64(cap(c.uploadScratch)) < size {
		c.uploadScratch = make([]byte, size)
	}
	return c.uploadScratch[:size]
}

// unswizzleImage converts the guest block-linear (or pitch-linear) bytes
// into the level-major linear layout staging transfers use.
func unswizzleImage(linear, guest []byte, info ImageInfo) {
	forEachSlice(info, func(s sliceSpan) {
		dst := linear[s.linOff : s.linOff+s.linSize]
		if info.Linear {
			for y := uint64(0); y < s.rows; y++ {
				copy(dst[y*s.rowBytes:(y+1)*s.rowBytes],
					guest[s.guestOff+y*uint64(info.Pitch):])
			}
			return
		}
		src := guest[s.guestOff : s.guestOff+s.guestSize]
		swizzle.Unswizzle(dst, src, uint32(s.rowBytes), uint32(s.rows), s.blockHeight)
	})
}

// swizzleImage is the inverse of unswizzleImage, for writebacks.
func swizzleImage(guest, linear []byte, info ImageInfo) {
	forEachSlice(info, func(s sliceSpan) {
		src := linear[s.linOff : s.linOff+s.linSize]
		if info.Linear {
			for y := uint64(0); y < s.rows; y++ {
				copy(guest[s.guestOff+y*uint64(info.Pitch):s.guestOff+y*uint64(info.Pitch)+s.rowBytes],
					src[y*s.rowBytes:])
			}
			return
		}
		dst := guest[s.guestOff : s.guestOff+s.guestSize]
		swizzle.Swizzle(dst, src, uint32(s.rowBytes), uint32(s.rows), s.blockHeight)
	})
}

// sliceSpan locates one depth slice of one level of one layer in both the
// guest and the linear layout.
type sliceSpan struct {
	level       uint32
	layer       uint32
	rowBytes    uint64
	rows        uint64
	blockHeight uint32
	guestOff    uint64
	guestSize   uint64
	linOff      uint64
	linSize     uint64
}

func forEachSlice(info ImageInfo, f func(sliceSpan)) {
	desc := info.HostDesc(false)
	layerStride := info.GuestLayerStride()
	for l := uint32(0); l < info.Levels; l++ {
		rowBytes := info.levelRowBytes(l)
		rows := info.levelRows(l)
		_, _, d := info.LevelExtent(l)
		bh := swizzle.AdjustBlockHeight(info.BlockHeight, uint32(rows))
		var sliceGuest uint64
		if info.Linear {
			sliceGuest = uint64(info.Pitch) * rows
		} else {
			sliceGuest = swizzle.SwizzledSize(uint32(rowBytes), uint32(rows), bh)
		}
		sliceLin := rowBytes * rows
		levelLin := desc.LevelSize(l)
		for layer := uint32(0); layer < info.Layers; layer++ {
			guestBase := uint64(layer)*layerStride + info.GuestLevelOffset(l)
			linBase := desc.LevelOffset(l) + uint64(layer)*levelLin
			for z := uint64(0); z < uint64(d); z++ {
				f(sliceSpan{
					level:       l,
					layer:       layer,
					rowBytes:    rowBytes,
					rows:        rows,
					blockHeight: bh,
					guestOff:    guestBase + z*sliceGuest,
					guestSize:   sliceGuest,
					linOff:      linBase + z*sliceLin,
					linSize:     sliceLin,
				})
			}
		}
	}
}

// convertImage decodes compressed guest formats the host cannot consume
// into the RGBA8 layout of the converted host image.
func convertImage(rgba, linear []byte, info ImageInfo, convDesc runtime.ImageDesc) {
	srcDesc := info.HostDesc(false)
	f := info.Format
	bw, bh := f.BlockWidth(), f.BlockHeight()
	for l := uint32(0); l < info.Levels; l++ {
		w, h, d := info.LevelExtent(l)
		srcLevel := srcDesc.LevelSize(l)
		dstLevel := convDesc.LevelSize(l)
		srcSlice := srcLevel / uint64(d)
		dstSlice := dstLevel / uint64(d)
		for layer := uint32(0); layer < info.Layers; layer++ {
			so := srcDesc.LevelOffset(l) + uint64(layer)*srcLevel
			do := convDesc.LevelOffset(l) + uint64(layer)*dstLevel
			for z := uint32(0); z < d; z++ {
				src := linear[so+uint64(z)*srcSlice : so+uint64(z+1)*srcSlice]
				dst := rgba[do+uint64(z)*dstSlice : do+uint64(z+1)*dstSlice]
				switch {
				case f.IsASTC():
					astc.Decompress(src, dst, w, h, bw, bh)
				case f == format.BC4Unorm:
					bc4.Decompress(src, dst, w, h)
				case f == format.BC4Snorm:
					bc4.DecompressSnorm(src, dst, w, h)
				}
			}
		}
	}
}
