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
	"github.com/kentjhall/mizu-sub011/core/image/swizzle"
	"github.com/kentjhall/mizu-sub011/core/math/u64"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/format"
)

// MaxMipLevels bounds the level count a TIC can encode.
const MaxMipLevels = 15

// ImageInfo is the normalized description of a guest image, derived from a
// TIC entry, the color target registers or the depth-stencil registers.
type ImageInfo struct {
	Format  format.PixelFormat
	Type    engine.TextureType
	Width   uint32
	Height  uint32
	Depth   uint32 // 3D depth; 1 otherwise
	Levels  uint32
	Layers  uint32
	Samples uint32

	// Guest layout.
	Linear      bool
	BlockHeight uint32 // GOBs per block, power of two
	Pitch       uint32 // bytes per row when Linear

	Swizzle [4]engine.SwizzleSource
}

// IdentitySwizzle is the component mapping of render target views.
var IdentitySwizzle = [4]engine.SwizzleSource{
	engine.SourceR, engine.SourceG, engine.SourceB, engine.SourceA,
}

// InfoFromTIC derives an ImageInfo from a texture header. ok is false for
// degenerate descriptors, which callers must map to the null image.
func InfoFromTIC(tic engine.TICEntry) (ImageInfo, bool) {
	if tic.Width == 0 || tic.Height == 0 || tic.Format == format.Invalid || tic.Format >= format.Count {
		return ImageInfo{}, false
	}
	levels := tic.Levels
	if levels == 0 {
		levels = 1
	}
	if levels > MaxMipLevels {
		return ImageInfo{}, false
	}
	info := ImageInfo{
		Format:      tic.Format,
		Type:        tic.Type,
		Width:       tic.Width,
		Height:      tic.Height,
		Depth:       1,
		Levels:      levels,
		Layers:      1,
		Samples:     u32Max(tic.Samples, 1),
		Linear:      tic.Linear || tic.Type == engine.TextureLinear,
		BlockHeight: 1 << tic.BlockHeight,
		Pitch:       tic.Pitch,
		Swizzle: [4]engine.SwizzleSource{
			tic.SwizzleR, tic.SwizzleG, tic.SwizzleB, tic.SwizzleA,
		},
	}
	switch tic.Type {
	case engine.Texture3D:
		info.Depth = u32Max(tic.Depth, 1)
	case engine.Texture1DArray, engine.Texture2DArray:
		info.Layers = u32Max(tic.Depth, 1)
	case engine.TextureCube:
		info.Layers = 6
	case engine.TextureCubeArray:
		info.Layers = u32Max(tic.Depth, 1) * 6
	}
	if info.Linear {
		// A linear image cannot be mipmapped and its pitch must cover one
		// row of blocks.
		rowBytes := u64.DivCeil(uint64(info.Width), uint64(info.Format.BlockWidth())) * uint64(info.Format.BytesPerBlock())
		if info.Levels != 1 || uint64(info.Pitch) < rowBytes {
			return ImageInfo{}, false
		}
		info.BlockHeight = 1
	}
	return info, true
}

// InfoFromRenderTarget derives an ImageInfo from a color target register
// block.
func InfoFromRenderTarget(rt engine.RenderTarget) (ImageInfo, bool) {
	if rt.Addr == 0 || rt.Width == 0 || rt.Height == 0 || rt.Format == format.Invalid {
		return ImageInfo{}, false
	}
	info := ImageInfo{
		Format:      rt.Format,
		Type:        engine.Texture2D,
		Width:       rt.Width,
		Height:      rt.Height,
		Depth:       1,
		Levels:      1,
		Layers:      1,
		Samples:     u32Max(rt.Samples, 1),
		BlockHeight: 1 << rt.BlockHeight,
		Swizzle:     IdentitySwizzle,
	}
	if rt.Volume {
		info.Type = engine.Texture3D
		info.Depth = u32Max(rt.Depth, 1)
	} else if rt.Depth > 1 {
		info.Type = engine.Texture2DArray
		info.Layers = rt.Depth
	}
	return info, true
}

// InfoFromZeta derives an ImageInfo from the depth-stencil registers.
func InfoFromZeta(zeta engine.DepthStencil) (ImageInfo, bool) {
	if !zeta.Enable || zeta.Addr == 0 || zeta.Width == 0 || zeta.Height == 0 {
		return ImageInfo{}, false
	}
	if !zeta.Format.IsDepth() && !zeta.Format.IsStencil() {
		return ImageInfo{}, false
	}
	info := ImageInfo{
		Format:      zeta.Format,
		Type:        engine.Texture2D,
		Width:       zeta.Width,
		Height:      zeta.Height,
		Depth:       1,
		Levels:      1,
		Layers:      u32Max(zeta.Layers, 1),
		Samples:     u32Max(zeta.Samples, 1),
		BlockHeight: 1 << zeta.BlockHeight,
		Swizzle:     IdentitySwizzle,
	}
	if info.Layers > 1 {
		info.Type = engine.Texture2DArray
	}
	return info, true
}

// LevelExtent returns the texel dimensions of one mip level.
func (i ImageInfo) LevelExtent(level uint32) (w, h, d uint32) {
	w = u32Max(i.Width>>level, 1)
	h = u32Max(i.Height>>level, 1)
	d = 1
	if i.Type == engine.Texture3D {
		d = u32Max(i.Depth>>level, 1)
	}
	return w, h, d
}

// levelRowBytes returns the byte width of one row of blocks at a level.
func (i ImageInfo) levelRowBytes(level uint32) uint64 {
	w, _, _ := i.LevelExtent(level)
	return u64.DivCeil(uint64(w), uint64(i.Format.BlockWidth())) * uint64(i.Format.BytesPerBlock())
}

// levelRows returns the block row count at a level.
func (i ImageInfo) levelRows(level uint32) uint64 {
	_, h, _ := i.LevelExtent(level)
	return u64.DivCeil(uint64(h), uint64(i.Format.BlockHeight()))
}

// GuestLevelSize returns the byte size one layer of a mip level occupies in
// guest memory, honoring the block-linear layout.
func (i ImageInfo) GuestLevelSize(level uint32) uint64 {
	_, _, d := i.LevelExtent(level)
	if i.Linear {
		return uint64(i.Pitch) * i.levelRows(level)
	}
	bh := swizzle.AdjustBlockHeight(i.BlockHeight, uint32(i.levelRows(level)))
	return swizzle.SwizzledSize(uint32(i.levelRowBytes(level)), uint32(i.levelRows(level)), bh) * uint64(d)
}

// GuestSizeBytes returns the byte size of the whole image in guest memory.
func (i ImageInfo) GuestSizeBytes() uint64 {
	var layerSize uint64
	for l := uint32(0); l < i.Levels; l++ {
		layerSize += i.GuestLevelSize(l)
	}
	return layerSize * uint64(i.Layers)
}

// GuestLayerStride returns the guest byte stride between array layers.
func (i ImageInfo) GuestLayerStride() uint64 {
	var s uint64
	for l := uint32(0); l < i.Levels; l++ {
		s += i.GuestLevelSize(l)
	}
	return s
}

// GuestLevelOffset returns the guest byte offset of a level within one
// layer.
func (i ImageInfo) GuestLevelOffset(level uint32) uint64 {
	var off uint64
	for l := uint32(0); l < level; l++ {
		off += i.GuestLevelSize(l)
	}
	return off
}

func u32Max(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
