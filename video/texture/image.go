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
	"github.com/kentjhall/mizu-sub011/video/format"
	"github.com/kentjhall/mizu-sub011/video/lru"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

// ImageFlags is the image state bitset.
type ImageFlags uint32

const (
	// FlagCPUModified marks guest memory newer than the host image.
	FlagCPUModified ImageFlags = 1 << iota
	// FlagGPUModified marks the host image newer than guest memory.
	FlagGPUModified
	// FlagTracked marks the CPU write tracking pages as counted.
	FlagTracked
	// FlagRegistered marks the image as present in the page tables.
	FlagRegistered
	// FlagPicked guards the overlap enumeration against revisits.
	FlagPicked
	// FlagSparse marks an image with no CPU mapping behind its GPUVA.
	FlagSparse
	// FlagRemapped marks an image whose guest mapping was torn down.
	FlagRemapped
	// FlagAlias marks an image with at least one alias copy recipe.
	FlagAlias
	// FlagBadOverlap marks an overlap with no computable copy recipe.
	FlagBadOverlap
	// FlagAcceleratedUpload routes uploads through the runtime's compute
	// decoder.
	FlagAcceleratedUpload
	// FlagConverted allocates the host image as RGBA8 and decodes on the
	// CPU during upload. Converted images cannot be written back.
	FlagConverted
)

// AliasedImage records an overlapping image and the copy recipe that moves
// the shared subresources between the two.
type AliasedImage struct {
	id     slot.ID
	copies []runtime.ImageCopy
}

// Image is one cached guest image.
type Image struct {
	id   slot.ID
	info ImageInfo

	gpuAddr uint64
	cpuAddr uint64 // undefined when FlagSparse

	guestSize      uint64 // block-linear bytes in guest memory
	unswizzledSize uint64 // linear bytes in the guest pixel format
	convertedSize  uint64 // linear bytes after conversion; 0 when unconverted

	flags      ImageFlags
	handle     runtime.ImageHandle
	hostFormat format.PixelFormat

	views       []viewEntry
	aliases     []AliasedImage
	overlapping []slot.ID

	lruHandle lru.Handle
	// modificationTick orders GPU writes across aliases; higher is newer.
	modificationTick uint64
}

type viewEntry struct {
	desc runtime.ViewDesc
	id   slot.ID
}

func newImage(info ImageInfo, gpuAddr, cpuAddr uint64) Image {
	return Image{
		info:           info,
		gpuAddr:        gpuAddr,
		cpuAddr:        cpuAddr,
		guestSize:      info.GuestSizeBytes(),
		unswizzledSize: info.HostDesc(false).TotalBytes(),
		flags:          FlagCPUModified,
		hostFormat:     info.Format,
	}
}

// HostDesc returns the host allocation for an image with this info.
// Converted images allocate as RGBA8 with the same texel dimensions.
func (i ImageInfo) HostDesc(converted bool) runtime.ImageDesc {
	f := i.Format
	if converted {
		f = format.RGBA8Unorm
	}
	return runtime.ImageDesc{
		Format:  f,
		Type:    i.Type,
		Width:   i.Width,
		Height:  i.Height,
		Depth:   i.Depth,
		Levels:  i.Levels,
		Layers:  i.Layers,
		Samples: i.Samples,
	}
}

// ID returns the image's slot id.
func (i *Image) ID() slot.ID { return i.id }

// Info returns the image description.
func (i *Image) Info() ImageInfo { return i.info }

// Handle returns the host image handle.
func (i *Image) Handle() runtime.ImageHandle { return i.handle }

// GPUAddr returns the guest GPU virtual address of level 0.
func (i *Image) GPUAddr() uint64 { return i.gpuAddr }

// CPUAddr returns the guest CPU address, valid unless the image is sparse.
func (i *Image) CPUAddr() uint64 { return i.cpuAddr }

// GuestSizeBytes returns the block-linear footprint in guest memory.
func (i *Image) GuestSizeBytes() uint64 { return i.guestSize }

// HasFlag reports whether all given flags are set.
func (i *Image) HasFlag(f ImageFlags) bool { return i.flags&f == f }

func (i *Image) setFlag(f ImageFlags)   { i.flags |= f }
func (i *Image) clearFlag(f ImageFlags) { i.flags &^= f }

// Overlaps reports whether the image's guest CPU range intersects the
// region. Sparse images never overlap CPU ranges.
func (i *Image) Overlaps(cpuAddr, size uint64) bool {
	if i.HasFlag(FlagSparse) {
		return false
	}
	return cpuAddr < i.cpuAddr+i.guestSize && i.cpuAddr < cpuAddr+size
}

// OverlapsGPU reports whether the image's GPUVA range intersects the
// region.
func (i *Image) OverlapsGPU(gpuAddr, size uint64) bool {
	return gpuAddr < i.gpuAddr+i.guestSize && i.gpuAddr < gpuAddr+size
}

// hostDesc returns the allocation description matching the image's flags.
func (i *Image) hostDesc() runtime.ImageDesc {
	return i.info.HostDesc(i.HasFlag(FlagConverted))
}

// aliasWith records a symmetric alias recipe between two images that share
// their base address. Subresources are matched level by level from the
// common base; extents clamp to the smaller image.
func aliasWith(a, b *Image) bool {
	levels := u32Min(a.info.Levels, b.info.Levels)
	layers := u32Min(a.info.Layers, b.info.Layers)
	if levels == 0 || layers == 0 {
		return false
	}
	if a.info.Format.BytesPerBlock() != b.info.Format.BytesPerBlock() {
		return false
	}
	var ab, ba []runtime.ImageCopy
	for l := uint32(0); l < levels; l++ {
		aw, ah, ad := a.info.LevelExtent(l)
		bw, bh, bd := b.info.LevelExtent(l)
		cp := runtime.ImageCopy{
			SrcLevel:   l,
			DstLevel:   l,
			LayerCount: layers,
			Width:      u32Min(aw, bw),
			Height:     u32Min(ah, bh),
			Depth:      u32Min(ad, bd),
		}
		ab = append(ab, cp)
		ba = append(ba, cp)
	}
	a.aliases = append(a.aliases, AliasedImage{id: b.id, copies: ba})
	b.aliases = append(b.aliases, AliasedImage{id: a.id, copies: ab})
	a.setFlag(FlagAlias)
	b.setFlag(FlagAlias)
	return true
}

// dropAlias removes the recipe pointing at the given image, keeping the
// relation symmetric when the other side is unregistered.
func (i *Image) dropAlias(id slot.ID) {
	out := i.aliases[:0]
	for _, a := range i.aliases {
		if a.id != id {
			out = append(out, a)
		}
	}
	i.aliases = out
	if len(i.aliases) == 0 {
		i.clearFlag(FlagAlias)
	}
}

// renderTargetViewDesc returns the attachment view of the whole image.
// Attachment views never swizzle.
func renderTargetViewDesc(info ImageInfo) runtime.ViewDesc {
	return runtime.ViewDesc{
		Format:    info.Format,
		Type:      info.Type,
		BaseLevel: 0,
		Levels:    1,
		BaseLayer: 0,
		Layers:    info.Layers,
		Swizzle:   IdentitySwizzle,
	}
}

// shaderViewDesc returns the sampled view a TIC entry asks for, clamped to
// the image's subresources. Converted images drop the guest format for the
// converted one.
func shaderViewDesc(img *Image, info ImageInfo) runtime.ViewDesc {
	f := info.Format
	if img.HasFlag(FlagConverted) {
		f = format.RGBA8Unorm
	}
	return runtime.ViewDesc{
		Format:    f,
		Type:      info.Type,
		BaseLevel: 0,
		Levels:    u32Min(info.Levels, img.info.Levels),
		BaseLayer: 0,
		Layers:    u32Min(info.Layers, img.info.Layers),
		Swizzle:   info.Swizzle,
	}
}

// ImageView is one host view over a cached image.
type ImageView struct {
	id      slot.ID
	imageID slot.ID
	desc    runtime.ViewDesc
	handle  runtime.ViewHandle
}

// Handle returns the host view handle.
func (v *ImageView) Handle() runtime.ViewHandle { return v.handle }

// ImageID returns the slot id of the viewed image.
func (v *ImageView) ImageID() slot.ID { return v.imageID }

// Sampler is one memoized host sampler.
type Sampler struct {
	id     slot.ID
	handle runtime.SamplerHandle
}

// Handle returns the host sampler handle.
func (s *Sampler) Handle() runtime.SamplerHandle { return s.handle }

func u32Min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
