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

// Package runtime is the bridge between the caches and the host GPU
// backend.
//
// Every operation is infallible from the caller's point of view: a backend
// that cannot satisfy an allocation logs and aborts. The backend is
// responsible for the barrier discipline around the copies it emits.
package runtime

import (
	"github.com/kentjhall/mizu-sub011/core/math/u64"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/format"
)

// Handles to host GPU objects. Zero is never a live handle.
type (
	BufferHandle      uint32
	ImageHandle       uint32
	ViewHandle        uint32
	SamplerHandle     uint32
	FramebufferHandle uint32
)

// BufferCopy is one region of a buffer to buffer copy.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// ImageCopy is one subresource region of an image to image copy.
type ImageCopy struct {
	SrcLevel      uint32
	SrcBaseLayer  uint32
	DstLevel      uint32
	DstBaseLayer  uint32
	LayerCount    uint32
	SrcX, SrcY, SrcZ int32
	DstX, DstY, DstZ int32
	Width, Height, Depth uint32
}

// BufferImageCopy describes one level/layer slice of an image upload or
// download through a staging buffer.
type BufferImageCopy struct {
	BufferOffset uint64
	Level        uint32
	BaseLayer    uint32
	LayerCount   uint32
	Width        uint32
	Height       uint32
	Depth        uint32
}

// StagingMap is a host-visible span handed out by UploadStaging or
// DownloadStaging. The runtime applies Offset to staged copy source
// offsets, so callers address Data from zero.
type StagingMap struct {
	Handle BufferHandle // backing buffer; 0 when the map is CPU memory only
	Offset uint64
	Data   []byte
}

// ViewDesc describes an image view.
type ViewDesc struct {
	Format    format.PixelFormat
	Type      engine.TextureType
	BaseLevel uint32
	Levels    uint32
	BaseLayer uint32
	Layers    uint32
	// Swizzle applies to shader views only; render target views leave it
	// as the identity.
	Swizzle [4]engine.SwizzleSource
}

// FramebufferDesc describes a framebuffer by its attachments.
type FramebufferDesc struct {
	ColorViews   [engine.NumRenderTargets]ViewHandle
	DepthView    ViewHandle
	DrawBuffers  [engine.NumRenderTargets]byte
	NumDraw      uint32
	Width        uint32
	Height       uint32
	Samples      uint32
}

// Region2D is a blit rectangle in texels.
type Region2D struct {
	X0, Y0, X1, Y1 int32
}

// Filter selects blit filtering.
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

// BlitOp selects which aspects a framebuffer blit moves.
type BlitOp int

const (
	BlitColor BlitOp = iota
	BlitDepthStencil
)

// SwizzleParams parameterizes one level of an accelerated (GPU side)
// unswizzle during image upload.
type SwizzleParams struct {
	BufferOffset uint64
	Level        uint32
	BlockHeight  uint32
	Width        uint32
	Height       uint32
	Depth        uint32
}

// Caps reports the feature set of a backend. The caches consult it once at
// construction.
type Caps struct {
	// PersistentMappedStaging is set when UploadStaging returns spans of a
	// persistently mapped buffer, enabling the single-copy upload path.
	PersistentMappedStaging bool
	// PersistentUniformBindings keeps uniform buffer bindings live across
	// draws, so unchanged bindings need not be re-emitted.
	PersistentUniformBindings bool
	// DepthStencilBlit is set when BlitFramebuffer supports depth/stencil.
	DepthStencilBlit bool
	// NativeASTC is set when images can be created with ASTC formats.
	NativeASTC bool
	// NativeBCn is set when images can be created with BCn formats.
	NativeBCn bool
	// AcceleratedASTC is set when AccelerateImageUpload can decode ASTC.
	AcceleratedASTC bool
	// CustomBorderColors is set when samplers accept arbitrary border
	// colors.
	CustomBorderColors bool
}

// Runtime is the host GPU backend interface consumed by the caches.
type Runtime interface {
	Caps() Caps

	CreateBuffer(size uint64) BufferHandle
	DestroyBuffer(h BufferHandle)
	// CopyBuffer copies the given regions from src to dst.
	CopyBuffer(dst, src BufferHandle, copies []BufferCopy)
	// ClearBuffer fills [offset, offset+size) of dst with the 32-bit value.
	ClearBuffer(dst BufferHandle, offset, size uint64, value uint32)
	// ImmediateUpload copies data into dst at offset without staging.
	ImmediateUpload(dst BufferHandle, offset uint64, data []byte)

	// UploadStaging returns a staging span for CPU to GPU transfers.
	UploadStaging(size uint64) StagingMap
	// DownloadStaging returns a staging span for GPU to CPU transfers.
	DownloadStaging(size uint64) StagingMap
	// CopyStagingToBuffer copies regions whose SrcOffset is relative to the
	// staging map into dst.
	CopyStagingToBuffer(src StagingMap, dst BufferHandle, copies []BufferCopy)
	// CopyBufferToStaging copies regions whose DstOffset is relative to the
	// staging map out of src.
	CopyBufferToStaging(dst StagingMap, src BufferHandle, copies []BufferCopy)

	CreateImage(desc ImageDesc) ImageHandle
	DestroyImage(h ImageHandle)
	CreateImageView(img ImageHandle, desc ViewDesc) ViewHandle
	DestroyImageView(h ViewHandle)
	CreateSampler(tsc engine.TSCEntry) SamplerHandle
	DestroySampler(h SamplerHandle)
	CreateFramebuffer(desc FramebufferDesc) FramebufferHandle
	DestroyFramebuffer(h FramebufferHandle)

	CopyImage(dst, src ImageHandle, copies []ImageCopy)
	// EmulateCopyImage copies between images whose formats are not
	// copy-compatible but share a byte width.
	EmulateCopyImage(dst, src ImageHandle, copies []ImageCopy)
	// UploadImage copies linear texel data from staging into the image.
	UploadImage(img ImageHandle, src StagingMap, copies []BufferImageCopy)
	// DownloadImage copies linear texel data from the image into staging.
	DownloadImage(img ImageHandle, dst StagingMap, copies []BufferImageCopy)
	// AccelerateImageUpload performs a GPU side unswizzle of staged data.
	// Only valid when Caps().AcceleratedASTC or the backend advertises
	// accelerated uploads for the image's format.
	AccelerateImageUpload(img ImageHandle, src StagingMap, swizzles []SwizzleParams)
	// ResolveImage resolves a multisampled src into a single sampled dst.
	ResolveImage(dst, src ImageHandle)
	// BlitFramebuffer blits a region between two framebuffers.
	BlitFramebuffer(dst, src FramebufferHandle, dstRegion, srcRegion Region2D, filter Filter, op BlitOp)

	// Bindings. Graphics stages are indexed by engine.ShaderStage.
	BindIndexBuffer(h BufferHandle, offset, size uint64, fmt engine.IndexFormat)
	BindVertexBuffer(index uint32, h BufferHandle, offset, size uint64, stride uint32)
	BindUniformBuffer(stage engine.ShaderStage, index uint32, h BufferHandle, offset, size uint64)
	BindStorageBuffer(stage engine.ShaderStage, index uint32, h BufferHandle, offset, size uint64, written bool)
	BindTextureBuffer(stage engine.ShaderStage, index uint32, h BufferHandle, offset, size uint64, fmt format.PixelFormat)
	BindTransformFeedbackBuffer(index uint32, h BufferHandle, offset, size uint64)
	BindComputeUniformBuffer(index uint32, h BufferHandle, offset, size uint64)
	BindComputeStorageBuffer(index uint32, h BufferHandle, offset, size uint64, written bool)
	BindComputeTextureBuffer(index uint32, h BufferHandle, offset, size uint64, fmt format.PixelFormat)

	// Finish blocks until all submitted GPU work has completed.
	Finish()
	// TickFrame marks a frame boundary for staging reuse.
	TickFrame()
}

// ImageDesc describes a host image allocation.
type ImageDesc struct {
	Format  format.PixelFormat
	Type    engine.TextureType
	Width   uint32
	Height  uint32
	Depth   uint32
	Levels  uint32
	Layers  uint32
	Samples uint32
}

// LevelSize returns the byte size of one layer of the given mip level.
func (d ImageDesc) LevelSize(level uint32) uint64 {
	f := d.Format
	w := u64.Max(1, uint64(d.Width)>>level)
	h := u64.Max(1, uint64(d.Height)>>level)
	depth := uint64(1)
	if d.Type == engine.Texture3D {
		depth = u64.Max(1, uint64(d.Depth)>>level)
	}
	wb := u64.DivCeil(w, uint64(f.BlockWidth()))
	hb := u64.DivCeil(h, uint64(f.BlockHeight()))
	return wb * hb * depth * uint64(f.BytesPerBlock())
}

// LevelOffset returns the byte offset of one layer-0 mip level in the linear
// layout used by staging transfers.
func (d ImageDesc) LevelOffset(level uint32) uint64 {
	off := uint64(0)
	for l := uint32(0); l < level; l++ {
		off += d.LevelSize(l) * uint64(d.layers())
	}
	return off
}

// TotalBytes returns the byte size of the whole image in linear layout.
func (d ImageDesc) TotalBytes() uint64 {
	return d.LevelOffset(d.Levels)
}

func (d ImageDesc) layers() uint32 {
	if d.Type == engine.Texture3D {
		return 1
	}
	if d.Layers == 0 {
		return 1
	}
	return d.Layers
}
