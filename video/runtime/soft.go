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

package runtime

import (
	"encoding/binary"
	"fmt"

	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/format"
)

// Soft is a software Runtime that performs every copy on host byte slices.
// It backs the tests and headless operation; "GPU work" completes
// synchronously, so Finish only counts.
type Soft struct {
	caps Caps

	nextHandle   uint32
	buffers      map[BufferHandle][]byte
	images       map[ImageHandle]*softImage
	views        map[ViewHandle]ViewDesc
	viewImages   map[ViewHandle]ImageHandle
	samplers     map[SamplerHandle]struct{}
	framebuffers map[FramebufferHandle]FramebufferDesc

	// Counters inspected by tests.
	BuffersCreated      int
	BuffersDestroyed    int
	BufferUploads       int
	ImagesCreated       int
	ImagesDestroyed     int
	ImageUploads        int
	ImageDownloads      int
	SamplersCreated     int
	FramebuffersCreated int
	ResolveCalls        int
	BlitCalls           int
	EmulateCopyCalls    int
	FinishCalls         int
	FrameTicks          int

	// Last bindings, keyed for test inspection.
	BoundIndex   BufferHandle
	BoundVertex  [32]BufferHandle
	BoundUniform map[[2]int]BufferHandle
	BoundStorage map[[2]int]BufferHandle
}

type softImage struct {
	desc ImageDesc
	data []byte
}

var _ Runtime = (*Soft)(nil)

// NewSoft returns a software runtime with the given capabilities.
func NewSoft(caps Caps) *Soft {
	return &Soft{
		caps:         caps,
		buffers:      map[BufferHandle][]byte{},
		images:       map[ImageHandle]*softImage{},
		views:        map[ViewHandle]ViewDesc{},
		viewImages:   map[ViewHandle]ImageHandle{},
		samplers:     map[SamplerHandle]struct{}{},
		framebuffers: map[FramebufferHandle]FramebufferDesc{},
		BoundUniform: map[[2]int]BufferHandle{},
		BoundStorage: map[[2]int]BufferHandle{},
	}
}

// Caps implements Runtime.
func (s *Soft) Caps() Caps { return s.caps }

func (s *Soft) handle() uint32 {
	s.nextHandle++
	return s.nextHandle
}

// BufferData returns the backing store of a buffer, for test inspection.
func (s *Soft) BufferData(h BufferHandle) []byte { return s.mustBuffer(h) }

func (s *Soft) mustBuffer(h BufferHandle) []byte {
	b, ok := s.buffers[h]
	if !ok {
		panic(fmt.Errorf("runtime: unknown buffer %d", h))
	}
	return b
}

func (s *Soft) mustImage(h ImageHandle) *softImage {
	img, ok := s.images[h]
	if !ok {
		panic(fmt.Errorf("runtime: unknown image %d", h))
	}
	return img
}

// CreateBuffer implements Runtime.
func (s *Soft) CreateBuffer(size uint64) BufferHandle {
	h := BufferHandle(s.handle())
	s.buffers[h] = make([]byte, size)
	s.BuffersCreated++
	return h
}

// DestroyBuffer implements Runtime.
func (s *Soft) DestroyBuffer(h BufferHandle) {
	delete(s.buffers, h)
	s.BuffersDestroyed++
}

// CopyBuffer implements Runtime.
func (s *Soft) CopyBuffer(dst, src BufferHandle, copies []BufferCopy) {
	d, c := s.mustBuffer(dst), s.mustBuffer(src)
	for _, cp := range copies {
		copy(d[cp.DstOffset:cp.DstOffset+cp.Size], c[cp.SrcOffset:cp.SrcOffset+cp.Size])
	}
}

// ClearBuffer implements Runtime.
func (s *Soft) ClearBuffer(dst BufferHandle, offset, size uint64, value uint32) {
	d := s.mustBuffer(dst)[offset : offset+size]
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], value)
	for i := range d {
		d[i] = word[i%4]
	}
}

// ImmediateUpload implements Runtime.
func (s *Soft) ImmediateUpload(dst BufferHandle, offset uint64, data []byte) {
	copy(s.mustBuffer(dst)[offset:], data)
	s.BufferUploads++
}

// UploadStaging implements Runtime.
func (s *Soft) UploadStaging(size uint64) StagingMap {
	return StagingMap{Data: make([]byte, size)}
}

// DownloadStaging implements Runtime.
func (s *Soft) DownloadStaging(size uint64) StagingMap {
	return StagingMap{Data: make([]byte, size)}
}

// CopyStagingToBuffer implements Runtime.
func (s *Soft) CopyStagingToBuffer(src StagingMap, dst BufferHandle, copies []BufferCopy) {
	d := s.mustBuffer(dst)
	s.BufferUploads++
	for _, cp := range copies {
		copy(d[cp.DstOffset:cp.DstOffset+cp.Size], src.Data[cp.SrcOffset:cp.SrcOffset+cp.Size])
	}
}

// CopyBufferToStaging implements Runtime.
func (s *Soft) CopyBufferToStaging(dst StagingMap, src BufferHandle, copies []BufferCopy) {
	c := s.mustBuffer(src)
	for _, cp := range copies {
		copy(dst.Data[cp.DstOffset:cp.DstOffset+cp.Size], c[cp.SrcOffset:cp.SrcOffset+cp.Size])
	}
}

// CreateImage implements Runtime.
func (s *Soft) CreateImage(desc ImageDesc) ImageHandle {
	h := ImageHandle(s.handle())
	s.images[h] = &softImage{desc: desc, data: make([]byte, desc.TotalBytes())}
	s.ImagesCreated++
	return h
}

// DestroyImage implements Runtime.
func (s *Soft) DestroyImage(h ImageHandle) {
	delete(s.images, h)
	s.ImagesDestroyed++
}

// ImageData returns the linear backing store of an image, for test
// inspection.
func (s *Soft) ImageData(h ImageHandle) []byte { return s.mustImage(h).data }

// CreateImageView implements Runtime.
func (s *Soft) CreateImageView(img ImageHandle, desc ViewDesc) ViewHandle {
	s.mustImage(img)
	h := ViewHandle(s.handle())
	s.views[h] = desc
	s.viewImages[h] = img
	return h
}

// DestroyImageView implements Runtime.
func (s *Soft) DestroyImageView(h ViewHandle) {
	delete(s.views, h)
	delete(s.viewImages, h)
}

// CreateSampler implements Runtime.
func (s *Soft) CreateSampler(tsc engine.TSCEntry) SamplerHandle {
	h := SamplerHandle(s.handle())
	s.samplers[h] = struct{}{}
	s.SamplersCreated++
	return h
}

// DestroySampler implements Runtime.
func (s *Soft) DestroySampler(h SamplerHandle) { delete(s.samplers, h) }

// CreateFramebuffer implements Runtime.
func (s *Soft) CreateFramebuffer(desc FramebufferDesc) FramebufferHandle {
	h := FramebufferHandle(s.handle())
	s.framebuffers[h] = desc
	s.FramebuffersCreated++
	return h
}

// DestroyFramebuffer implements Runtime.
func (s *Soft) DestroyFramebuffer(h FramebufferHandle) { delete(s.framebuffers, h) }

// CopyImage implements Runtime. Regions are copied level by level through
// the linear layout; partial rectangles copy whole subresources, which is
// exact for the cache's full-subresource recipes.
func (s *Soft) CopyImage(dst, src ImageHandle, copies []ImageCopy) {
	d, c := s.mustImage(dst), s.mustImage(src)
	for _, cp := range copies {
		for layer := uint32(0); layer < cp.LayerCount; layer++ {
			so := c.desc.LevelOffset(cp.SrcLevel) + uint64(cp.SrcBaseLayer+layer)*c.desc.LevelSize(cp.SrcLevel)
			do := d.desc.LevelOffset(cp.DstLevel) + uint64(cp.DstBaseLayer+layer)*d.desc.LevelSize(cp.DstLevel)
			n := min64(c.desc.LevelSize(cp.SrcLevel), d.desc.LevelSize(cp.DstLevel))
			copy(d.data[do:do+n], c.data[so:so+n])
		}
	}
}

// EmulateCopyImage implements Runtime.
func (s *Soft) EmulateCopyImage(dst, src ImageHandle, copies []ImageCopy) {
	s.EmulateCopyCalls++
	s.CopyImage(dst, src, copies)
}

// UploadImage implements Runtime.
func (s *Soft) UploadImage(img ImageHandle, src StagingMap, copies []BufferImageCopy) {
	im := s.mustImage(img)
	s.ImageUploads++
	for _, cp := range copies {
		for layer := uint32(0); layer < cp.LayerCount; layer++ {
			size := im.desc.LevelSize(cp.Level)
			off := im.desc.LevelOffset(cp.Level) + uint64(cp.BaseLayer+layer)*size
			bo := cp.BufferOffset + uint64(layer)*size
			copy(im.data[off:off+size], src.Data[bo:bo+size])
		}
	}
}

// DownloadImage implements Runtime.
func (s *Soft) DownloadImage(img ImageHandle, dst StagingMap, copies []BufferImageCopy) {
	im := s.mustImage(img)
	s.ImageDownloads++
	for _, cp := range copies {
		for layer := uint32(0); layer < cp.LayerCount; layer++ {
			size := im.desc.LevelSize(cp.Level)
			off := im.desc.LevelOffset(cp.Level) + uint64(cp.BaseLayer+layer)*size
			bo := cp.BufferOffset + uint64(layer)*size
			copy(dst.Data[bo:bo+size], im.data[off:off+size])
		}
	}
}

// AccelerateImageUpload implements Runtime. The soft backend has no decode
// shaders; staged data is copied through as-is.
func (s *Soft) AccelerateImageUpload(img ImageHandle, src StagingMap, swizzles []SwizzleParams) {
	im := s.mustImage(img)
	s.ImageUploads++
	for _, sw := range swizzles {
		size := im.desc.LevelSize(sw.Level)
		off := im.desc.LevelOffset(sw.Level)
		end := min64(uint64(len(src.Data)), sw.BufferOffset+size)
		if sw.BufferOffset < end {
			copy(im.data[off:], src.Data[sw.BufferOffset:end])
		}
	}
}

// ResolveImage implements Runtime.
func (s *Soft) ResolveImage(dst, src ImageHandle) {
	s.ResolveCalls++
	d, c := s.mustImage(dst), s.mustImage(src)
	copy(d.data, c.data)
}

// BlitFramebuffer implements Runtime. The soft backend does not rescale;
// blits are tracked but not executed.
func (s *Soft) BlitFramebuffer(dst, src FramebufferHandle, dstRegion, srcRegion Region2D, filter Filter, op BlitOp) {
	s.BlitCalls++
}

// BindIndexBuffer implements Runtime.
func (s *Soft) BindIndexBuffer(h BufferHandle, offset, size uint64, fmt engine.IndexFormat) {
	s.BoundIndex = h
}

// BindVertexBuffer implements Runtime.
func (s *Soft) BindVertexBuffer(index uint32, h BufferHandle, offset, size uint64, stride uint32) {
	s.BoundVertex[index] = h
}

// BindUniformBuffer implements Runtime.
func (s *Soft) BindUniformBuffer(stage engine.ShaderStage, index uint32, h BufferHandle, offset, size uint64) {
	s.BoundUniform[[2]int{int(stage), int(index)}] = h
}

// BindStorageBuffer implements Runtime.
func (s *Soft) BindStorageBuffer(stage engine.ShaderStage, index uint32, h BufferHandle, offset, size uint64, written bool) {
	s.BoundStorage[[2]int{int(stage), int(index)}] = h
}

// BindTextureBuffer implements Runtime.
func (s *Soft) BindTextureBuffer(stage engine.ShaderStage, index uint32, h BufferHandle, offset, size uint64, fmt format.PixelFormat) {
}

// BindTransformFeedbackBuffer implements Runtime.
func (s *Soft) BindTransformFeedbackBuffer(index uint32, h BufferHandle, offset, size uint64) {}

// BindComputeUniformBuffer implements Runtime.
func (s *Soft) BindComputeUniformBuffer(index uint32, h BufferHandle, offset, size uint64) {}

// BindComputeStorageBuffer implements Runtime.
func (s *Soft) BindComputeStorageBuffer(index uint32, h BufferHandle, offset, size uint64, written bool) {
}

// BindComputeTextureBuffer implements Runtime.
func (s *Soft) BindComputeTextureBuffer(index uint32, h BufferHandle, offset, size uint64, fmt format.PixelFormat) {
}

// Finish implements Runtime. All soft work is synchronous already.
func (s *Soft) Finish() { s.FinishCalls++ }

// TickFrame implements Runtime.
func (s *Soft) TickFrame() { s.FrameTicks++ }

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
