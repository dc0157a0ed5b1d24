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

package opengl

import (
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"

	"github.com/kentjhall/mizu-sub011/core/log"
	"github.com/kentjhall/mizu-sub011/core/math/u64"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/format"
	"github.com/kentjhall/mizu-sub011/video/runtime"
)

type imageMeta struct {
	desc   runtime.ImageDesc
	target uint32
	fmt    glFormat
}

type viewMeta struct {
	format format.PixelFormat
}

func textureTarget(t engine.TextureType, samples uint32) uint32 {
	if samples > 1 {
		if t == engine.Texture2DArray {
			return gl.TEXTURE_2D_MULTISAMPLE_ARRAY
		}
		return gl.TEXTURE_2D_MULTISAMPLE
	}
	switch t {
	case engine.Texture1D:
		return gl.TEXTURE_1D
	case engine.Texture1DArray:
		return gl.TEXTURE_1D_ARRAY
	case engine.Texture3D:
		return gl.TEXTURE_3D
	case engine.TextureCube:
		return gl.TEXTURE_CUBE_MAP
	case engine.TextureCubeArray:
		return gl.TEXTURE_CUBE_MAP_ARRAY
	case engine.Texture2DArray:
		return gl.TEXTURE_2D_ARRAY
	default:
		return gl.TEXTURE_2D
	}
}

// CreateImage implements runtime.Runtime.
func (b *Backend) CreateImage(desc runtime.ImageDesc) runtime.ImageHandle {
	g := lookupFormat(desc.Format)
	target := textureTarget(desc.Type, desc.Samples)
	var tex uint32
	gl.CreateTextures(target, 1, &tex)

	levels := int32(max(1, desc.Levels))
	w, h := int32(desc.Width), int32(desc.Height)
	layers := int32(max(1, desc.Layers))
	switch target {
	case gl.TEXTURE_1D:
		gl.TextureStorage1D(tex, levels, g.internal, w)
	case gl.TEXTURE_1D_ARRAY:
		gl.TextureStorage2D(tex, levels, g.internal, w, layers)
	case gl.TEXTURE_2D, gl.TEXTURE_CUBE_MAP:
		gl.TextureStorage2D(tex, levels, g.internal, w, h)
	case gl.TEXTURE_2D_ARRAY, gl.TEXTURE_CUBE_MAP_ARRAY:
		gl.TextureStorage3D(tex, levels, g.internal, w, h, layers)
	case gl.TEXTURE_3D:
		gl.TextureStorage3D(tex, levels, g.internal, w, h, int32(max(1, desc.Depth)))
	case gl.TEXTURE_2D_MULTISAMPLE:
		gl.TextureStorage2DMultisample(tex, int32(desc.Samples), g.internal, w, h, false)
	case gl.TEXTURE_2D_MULTISAMPLE_ARRAY:
		gl.TextureStorage3DMultisample(tex, int32(desc.Samples), g.internal, w, h, layers, false)
	}

	h2 := runtime.ImageHandle(tex)
	b.images[h2] = imageMeta{desc: desc, target: target, fmt: g}
	return h2
}

// DestroyImage implements runtime.Runtime.
func (b *Backend) DestroyImage(h runtime.ImageHandle) {
	tex := uint32(h)
	gl.DeleteTextures(1, &tex)
	delete(b.images, h)
}

// UploadImage implements runtime.Runtime.
func (b *Backend) UploadImage(img runtime.ImageHandle, src runtime.StagingMap, copies []runtime.BufferImageCopy) {
	m := b.images[img]
	if src.Handle != 0 {
		gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, uint32(src.Handle))
		defer gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, 0)
	}
	for _, cp := range copies {
		ptr := stagingPtr(src, cp.BufferOffset)
		level := int32(cp.Level)
		w, h := int32(cp.Width), int32(cp.Height)
		z, depth := int32(cp.BaseLayer), int32(max(1, cp.LayerCount))
		if m.target == gl.TEXTURE_3D {
			z, depth = 0, int32(max(1, cp.Depth))
		}
		if m.fmt.compressed {
			size := int32(compressedBytes(m.desc.Format, cp.Width, cp.Height, uint32(depth)))
			if flatTarget(m.target) {
				gl.CompressedTextureSubImage2D(uint32(img), level, 0, 0, w, h, m.fmt.internal, size, ptr)
			} else {
				gl.CompressedTextureSubImage3D(uint32(img), level, 0, 0, z, w, h, depth, m.fmt.internal, size, ptr)
			}
			continue
		}
		switch m.target {
		case gl.TEXTURE_1D:
			gl.TextureSubImage1D(uint32(img), level, 0, w, m.fmt.format, m.fmt.xtype, ptr)
		case gl.TEXTURE_2D, gl.TEXTURE_2D_MULTISAMPLE:
			gl.TextureSubImage2D(uint32(img), level, 0, 0, w, h, m.fmt.format, m.fmt.xtype, ptr)
		default:
			gl.TextureSubImage3D(uint32(img), level, 0, 0, z, w, h, depth, m.fmt.format, m.fmt.xtype, ptr)
		}
	}
}

// DownloadImage implements runtime.Runtime.
func (b *Backend) DownloadImage(img runtime.ImageHandle, dst runtime.StagingMap, copies []runtime.BufferImageCopy) {
	m := b.images[img]
	if dst.Handle != 0 {
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, uint32(dst.Handle))
		defer gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	}
	for _, cp := range copies {
		ptr := stagingPtr(dst, cp.BufferOffset)
		level := int32(cp.Level)
		w, h := int32(cp.Width), int32(cp.Height)
		z, depth := int32(cp.BaseLayer), int32(max(1, cp.LayerCount))
		if m.target == gl.TEXTURE_3D {
			z, depth = 0, int32(max(1, cp.Depth))
		}
		size := int32(m.desc.LevelSize(cp.Level) * uint64(depth))
		if m.fmt.compressed {
			gl.GetCompressedTextureSubImage(uint32(img), level, 0, 0, z, w, h, depth, size, ptr)
			continue
		}
		gl.GetTextureSubImage(uint32(img), level, 0, 0, z, w, h, depth, m.fmt.format, m.fmt.xtype, size, ptr)
	}
}

// AccelerateImageUpload implements runtime.Runtime. The backend reports no
// accelerated decode in its caps, so reaching this is a caller bug.
func (b *Backend) AccelerateImageUpload(img runtime.ImageHandle, src runtime.StagingMap, swizzles []runtime.SwizzleParams) {
	log.F(b.ctx, "accelerated image upload requested but not advertised")
}

// CopyImage implements runtime.Runtime.
func (b *Backend) CopyImage(dst, src runtime.ImageHandle, copies []runtime.ImageCopy) {
	sm, dm := b.images[src], b.images[dst]
	for _, cp := range copies {
		sz, depth := copyZRange(sm.target, cp.SrcZ, cp.SrcBaseLayer, cp)
		dz, _ := copyZRange(dm.target, cp.DstZ, cp.DstBaseLayer, cp)
		gl.CopyImageSubData(
			uint32(src), sm.target, int32(cp.SrcLevel), cp.SrcX, cp.SrcY, sz,
			uint32(dst), dm.target, int32(cp.DstLevel), cp.DstX, cp.DstY, dz,
			int32(cp.Width), int32(cp.Height), depth)
	}
}

// EmulateCopyImage implements runtime.Runtime. The regions bounce through
// client memory; both formats are guaranteed to share a block byte width.
func (b *Backend) EmulateCopyImage(dst, src runtime.ImageHandle, copies []runtime.ImageCopy) {
	sm, dm := b.images[src], b.images[dst]
	for _, cp := range copies {
		sz, depth := copyZRange(sm.target, cp.SrcZ, cp.SrcBaseLayer, cp)
		dz, _ := copyZRange(dm.target, cp.DstZ, cp.DstBaseLayer, cp)

		sf, df := sm.desc.Format, dm.desc.Format
		sbw := u64.DivCeil(uint64(cp.Width), uint64(sf.BlockWidth()))
		sbh := u64.DivCeil(uint64(cp.Height), uint64(sf.BlockHeight()))
		bytes := sbw * sbh * uint64(depth) * uint64(sf.BytesPerBlock())
		data := b.clientScratch(bytes)
		ptr := unsafe.Pointer(&data[0])

		if sm.fmt.compressed {
			gl.GetCompressedTextureSubImage(uint32(src), int32(cp.SrcLevel),
				cp.SrcX, cp.SrcY, sz, int32(cp.Width), int32(cp.Height), depth, int32(bytes), ptr)
		} else {
			gl.GetTextureSubImage(uint32(src), int32(cp.SrcLevel),
				cp.SrcX, cp.SrcY, sz, int32(cp.Width), int32(cp.Height), depth,
				sm.fmt.format, sm.fmt.xtype, int32(bytes), ptr)
		}

		// The destination extent covers the same bytes in its own block
		// dimensions.
		dw := int32(sbw * uint64(df.BlockWidth()))
		dh := int32(sbh * uint64(df.BlockHeight()))
		if dm.fmt.compressed {
			if flatTarget(dm.target) {
				gl.CompressedTextureSubImage2D(uint32(dst), int32(cp.DstLevel),
					cp.DstX, cp.DstY, dw, dh, dm.fmt.internal, int32(bytes), ptr)
			} else {
				gl.CompressedTextureSubImage3D(uint32(dst), int32(cp.DstLevel),
					cp.DstX, cp.DstY, dz, dw, dh, depth, dm.fmt.internal, int32(bytes), ptr)
			}
		} else if flatTarget(dm.target) {
			gl.TextureSubImage2D(uint32(dst), int32(cp.DstLevel),
				cp.DstX, cp.DstY, dw, dh, dm.fmt.format, dm.fmt.xtype, ptr)
		} else {
			gl.TextureSubImage3D(uint32(dst), int32(cp.DstLevel),
				cp.DstX, cp.DstY, dz, dw, dh, depth, dm.fmt.format, dm.fmt.xtype, ptr)
		}
	}
}

// ResolveImage implements runtime.Runtime.
func (b *Backend) ResolveImage(dst, src runtime.ImageHandle) {
	dm := b.images[dst]
	w, h := int32(dm.desc.Width), int32(dm.desc.Height)
	gl.NamedFramebufferTexture(b.resolveRead, gl.COLOR_ATTACHMENT0, uint32(src), 0)
	gl.NamedFramebufferTexture(b.resolveDraw, gl.COLOR_ATTACHMENT0, uint32(dst), 0)
	gl.NamedFramebufferReadBuffer(b.resolveRead, gl.COLOR_ATTACHMENT0)
	gl.NamedFramebufferDrawBuffer(b.resolveDraw, gl.COLOR_ATTACHMENT0)
	gl.BlitNamedFramebuffer(b.resolveRead, b.resolveDraw,
		0, 0, w, h, 0, 0, w, h, gl.COLOR_BUFFER_BIT, gl.NEAREST)
	gl.NamedFramebufferTexture(b.resolveRead, gl.COLOR_ATTACHMENT0, 0, 0)
	gl.NamedFramebufferTexture(b.resolveDraw, gl.COLOR_ATTACHMENT0, 0, 0)
}

// BlitFramebuffer implements runtime.Runtime.
func (b *Backend) BlitFramebuffer(dst, src runtime.FramebufferHandle, dstRegion, srcRegion runtime.Region2D, filter runtime.Filter, op runtime.BlitOp) {
	mask := uint32(gl.COLOR_BUFFER_BIT)
	glFilter := uint32(gl.NEAREST)
	if filter == runtime.FilterLinear {
		glFilter = gl.LINEAR
	}
	if op == runtime.BlitDepthStencil {
		mask = gl.DEPTH_BUFFER_BIT | gl.STENCIL_BUFFER_BIT
		glFilter = gl.NEAREST
	}
	gl.BlitNamedFramebuffer(uint32(src), uint32(dst),
		srcRegion.X0, srcRegion.Y0, srcRegion.X1, srcRegion.Y1,
		dstRegion.X0, dstRegion.Y0, dstRegion.X1, dstRegion.Y1,
		mask, glFilter)
}

var swizzleSources = map[engine.SwizzleSource]int32{
	engine.SourceZero: gl.ZERO,
	engine.SourceOne:  gl.ONE,
	engine.SourceR:    gl.RED,
	engine.SourceG:    gl.GREEN,
	engine.SourceB:    gl.BLUE,
	engine.SourceA:    gl.ALPHA,
}

// CreateImageView implements runtime.Runtime.
func (b *Backend) CreateImageView(img runtime.ImageHandle, desc runtime.ViewDesc) runtime.ViewHandle {
	m := b.images[img]
	g := lookupFormat(desc.Format)
	var view uint32
	// Texture views need glGenTextures; glCreateTextures would give the name
	// a state vector of its own.
	gl.GenTextures(1, &view)
	gl.TextureView(view, textureTarget(desc.Type, m.desc.Samples), uint32(img),
		g.internal, desc.BaseLevel, max(1, desc.Levels), desc.BaseLayer, max(1, desc.Layers))
	if !desc.Format.IsDepthStencil() {
		sw := [4]int32{
			swizzleSources[desc.Swizzle[0]],
			swizzleSources[desc.Swizzle[1]],
			swizzleSources[desc.Swizzle[2]],
			swizzleSources[desc.Swizzle[3]],
		}
		gl.TextureParameteriv(view, gl.TEXTURE_SWIZZLE_RGBA, &sw[0])
	}
	h := runtime.ViewHandle(view)
	b.views[h] = viewMeta{format: desc.Format}
	return h
}

// DestroyImageView implements runtime.Runtime.
func (b *Backend) DestroyImageView(h runtime.ViewHandle) {
	view := uint32(h)
	gl.DeleteTextures(1, &view)
	delete(b.views, h)
}

var wrapModes = map[engine.WrapMode]int32{
	engine.WrapRepeat:         gl.REPEAT,
	engine.WrapMirror:         gl.MIRRORED_REPEAT,
	engine.WrapClampEdge:      gl.CLAMP_TO_EDGE,
	engine.WrapBorder:         gl.CLAMP_TO_BORDER,
	engine.WrapClamp:          gl.CLAMP_TO_BORDER,
	engine.WrapMirrorOnceEdge: gl.MIRROR_CLAMP_TO_EDGE,
}

var compareOps = map[engine.CompareOp]int32{
	engine.CompareNever:        gl.NEVER,
	engine.CompareLess:         gl.LESS,
	engine.CompareEqual:        gl.EQUAL,
	engine.CompareLessEqual:    gl.LEQUAL,
	engine.CompareGreater:      gl.GREATER,
	engine.CompareNotEqual:     gl.NOTEQUAL,
	engine.CompareGreaterEqual: gl.GEQUAL,
	engine.CompareAlways:       gl.ALWAYS,
}

const (
	// GL_ARB_texture_filter_minmax
	glTextureReductionMode = 0x9366
	glWeightedAverage      = 0x9367
)

// CreateSampler implements runtime.Runtime.
func (b *Backend) CreateSampler(tsc engine.TSCEntry) runtime.SamplerHandle {
	var s uint32
	gl.CreateSamplers(1, &s)
	gl.SamplerParameteri(s, gl.TEXTURE_WRAP_S, wrapModes[tsc.WrapU])
	gl.SamplerParameteri(s, gl.TEXTURE_WRAP_T, wrapModes[tsc.WrapV])
	gl.SamplerParameteri(s, gl.TEXTURE_WRAP_R, wrapModes[tsc.WrapP])
	gl.SamplerParameteri(s, gl.TEXTURE_MAG_FILTER, magFilter(tsc.MagFilter))
	gl.SamplerParameteri(s, gl.TEXTURE_MIN_FILTER, minFilter(tsc.MinFilter, tsc.MipFilter))
	if tsc.CompareEnable {
		gl.SamplerParameteri(s, gl.TEXTURE_COMPARE_MODE, gl.COMPARE_REF_TO_TEXTURE)
		gl.SamplerParameteri(s, gl.TEXTURE_COMPARE_FUNC, compareOps[tsc.CompareOp])
	}
	gl.SamplerParameterf(s, gl.TEXTURE_LOD_BIAS, tsc.LODBias)
	gl.SamplerParameterf(s, gl.TEXTURE_MIN_LOD, tsc.MinLOD)
	gl.SamplerParameterf(s, gl.TEXTURE_MAX_LOD, tsc.MaxLOD)
	gl.SamplerParameterf(s, gl.TEXTURE_MAX_ANISOTROPY, tsc.Anisotropy)
	border := tsc.BorderColor
	gl.SamplerParameterfv(s, gl.TEXTURE_BORDER_COLOR, &border[0])
	if b.hasMinMaxFilter {
		mode := int32(glWeightedAverage)
		switch tsc.Reduction {
		case engine.ReduceMin:
			mode = gl.MIN
		case engine.ReduceMax:
			mode = gl.MAX
		}
		gl.SamplerParameteri(s, glTextureReductionMode, mode)
	}
	return runtime.SamplerHandle(s)
}

// DestroySampler implements runtime.Runtime.
func (b *Backend) DestroySampler(h runtime.SamplerHandle) {
	s := uint32(h)
	gl.DeleteSamplers(1, &s)
}

// CreateFramebuffer implements runtime.Runtime.
func (b *Backend) CreateFramebuffer(desc runtime.FramebufferDesc) runtime.FramebufferHandle {
	var fb uint32
	gl.CreateFramebuffers(1, &fb)
	for i, view := range desc.ColorViews {
		if view != 0 {
			gl.NamedFramebufferTexture(fb, gl.COLOR_ATTACHMENT0+uint32(i), uint32(view), 0)
		}
	}
	if desc.DepthView != 0 {
		f := b.views[desc.DepthView].format
		attachment := uint32(gl.DEPTH_STENCIL_ATTACHMENT)
		switch {
		case f.IsDepth() && !f.IsStencil():
			attachment = gl.DEPTH_ATTACHMENT
		case f.IsStencil() && !f.IsDepth():
			attachment = gl.STENCIL_ATTACHMENT
		}
		gl.NamedFramebufferTexture(fb, attachment, uint32(desc.DepthView), 0)
	}
	if desc.NumDraw > 0 {
		var bufs [engine.NumRenderTargets]uint32
		for i := uint32(0); i < desc.NumDraw; i++ {
			bufs[i] = gl.COLOR_ATTACHMENT0 + uint32(desc.DrawBuffers[i])
		}
		gl.NamedFramebufferDrawBuffers(fb, int32(desc.NumDraw), &bufs[0])
	} else {
		gl.NamedFramebufferDrawBuffer(fb, gl.NONE)
	}
	if status := gl.CheckNamedFramebufferStatus(fb, gl.DRAW_FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		log.W(b.ctx, "incomplete framebuffer: status 0x%x", status)
	}
	return runtime.FramebufferHandle(fb)
}

// DestroyFramebuffer implements runtime.Runtime.
func (b *Backend) DestroyFramebuffer(h runtime.FramebufferHandle) {
	fb := uint32(h)
	gl.DeleteFramebuffers(1, &fb)
}

func magFilter(f engine.TextureFilter) int32 {
	if f == engine.FilterLinear {
		return gl.LINEAR
	}
	return gl.NEAREST
}

func minFilter(f engine.TextureFilter, mip engine.MipFilter) int32 {
	linear := f == engine.FilterLinear
	switch mip {
	case engine.MipNearest:
		if linear {
			return gl.LINEAR_MIPMAP_NEAREST
		}
		return gl.NEAREST_MIPMAP_NEAREST
	case engine.MipLinear:
		if linear {
			return gl.LINEAR_MIPMAP_LINEAR
		}
		return gl.NEAREST_MIPMAP_LINEAR
	default:
		if linear {
			return gl.LINEAR
		}
		return gl.NEAREST
	}
}

func copyZRange(target uint32, z int32, baseLayer uint32, cp runtime.ImageCopy) (int32, int32) {
	if target == gl.TEXTURE_3D {
		return z, int32(max(1, cp.Depth))
	}
	return int32(baseLayer), int32(max(1, cp.LayerCount))
}

// flatTarget reports whether the target has no third texel dimension.
func flatTarget(target uint32) bool {
	switch target {
	case gl.TEXTURE_1D, gl.TEXTURE_2D, gl.TEXTURE_2D_MULTISAMPLE:
		return true
	}
	return false
}

func compressedBytes(f format.PixelFormat, w, h, depth uint32) uint64 {
	wb := u64.DivCeil(uint64(w), uint64(f.BlockWidth()))
	hb := u64.DivCeil(uint64(h), uint64(f.BlockHeight()))
	return wb * hb * uint64(depth) * uint64(f.BytesPerBlock())
}

func stagingPtr(m runtime.StagingMap, off uint64) unsafe.Pointer {
	if m.Handle == 0 {
		return gl.Ptr(m.Data[off:])
	}
	return gl.PtrOffset(int(m.Offset + off))
}
