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

	"github.com/kentjhall/mizu-sub011/core/math/u64"
	"github.com/kentjhall/mizu-sub011/video/runtime"
)

const (
	uploadStagingSize   = 64 << 20
	downloadStagingSize = 32 << 20
	// stagingAlign matches the offset alignment the caches already apply to
	// staged copies.
	stagingAlign = 256
	// stagingFrames bounds how many frames of staged data can be in flight
	// before an allocation blocks.
	stagingFrames = 8
)

// stagingRing is a persistently mapped buffer carved into spans front to
// back. A fence per frame keeps the GPU out of spans that are reused after a
// wrap.
type stagingRing struct {
	buffer uint32
	size   uint64
	data   []byte
	head   uint64
	fences [stagingFrames]uintptr
	frame  int
}

func newStagingRing(size uint64, mapBits uint32) *stagingRing {
	r := &stagingRing{size: size}
	gl.CreateBuffers(1, &r.buffer)
	storage := mapBits | gl.MAP_PERSISTENT_BIT | gl.MAP_COHERENT_BIT
	if mapBits&gl.MAP_READ_BIT != 0 {
		storage |= gl.CLIENT_STORAGE_BIT
	}
	gl.NamedBufferStorage(r.buffer, int(size), nil, storage)
	p := gl.MapNamedBufferRange(r.buffer, 0, int(size),
		mapBits|gl.MAP_PERSISTENT_BIT|gl.MAP_COHERENT_BIT)
	r.data = unsafe.Slice((*byte)(p), size)
	return r
}

func (r *stagingRing) alloc(size uint64) (runtime.StagingMap, bool) {
	if size > r.size {
		return runtime.StagingMap{}, false
	}
	r.head = u64.AlignUp(r.head, stagingAlign)
	if r.head+size > r.size {
		// Wrapping reuses spans the GPU may still be reading; drain first.
		r.waitAll()
		r.head = 0
	}
	m := runtime.StagingMap{
		Handle: runtime.BufferHandle(r.buffer),
		Offset: r.head,
		Data:   r.data[r.head : r.head+size],
	}
	r.head += size
	return m, true
}

func (r *stagingRing) tickFrame() {
	if r.fences[r.frame] != 0 {
		gl.DeleteSync(r.fences[r.frame])
	}
	r.fences[r.frame] = gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	r.frame = (r.frame + 1) % stagingFrames
	if f := r.fences[r.frame]; f != 0 {
		gl.ClientWaitSync(f, gl.SYNC_FLUSH_COMMANDS_BIT, gl.TIMEOUT_IGNORED)
		gl.DeleteSync(f)
		r.fences[r.frame] = 0
	}
}

func (r *stagingRing) waitAll() {
	for i, f := range r.fences {
		if f == 0 {
			continue
		}
		gl.ClientWaitSync(f, gl.SYNC_FLUSH_COMMANDS_BIT, gl.TIMEOUT_IGNORED)
		gl.DeleteSync(f)
		r.fences[i] = 0
	}
	gl.Finish()
}

func (r *stagingRing) destroy() {
	r.waitAll()
	gl.UnmapNamedBuffer(r.buffer)
	gl.DeleteBuffers(1, &r.buffer)
}

// CreateBuffer implements runtime.Runtime.
func (b *Backend) CreateBuffer(size uint64) runtime.BufferHandle {
	var buf uint32
	gl.CreateBuffers(1, &buf)
	gl.NamedBufferStorage(buf, int(size), nil, gl.DYNAMIC_STORAGE_BIT)
	return runtime.BufferHandle(buf)
}

// DestroyBuffer implements runtime.Runtime.
func (b *Backend) DestroyBuffer(h runtime.BufferHandle) {
	buf := uint32(h)
	gl.DeleteBuffers(1, &buf)
}

// CopyBuffer implements runtime.Runtime.
func (b *Backend) CopyBuffer(dst, src runtime.BufferHandle, copies []runtime.BufferCopy) {
	for _, c := range copies {
		gl.CopyNamedBufferSubData(uint32(src), uint32(dst),
			int(c.SrcOffset), int(c.DstOffset), int(c.Size))
	}
}

// ClearBuffer implements runtime.Runtime.
func (b *Backend) ClearBuffer(dst runtime.BufferHandle, offset, size uint64, value uint32) {
	gl.ClearNamedBufferSubData(uint32(dst), gl.R32UI, int(offset), int(size),
		gl.RED_INTEGER, gl.UNSIGNED_INT, unsafe.Pointer(&value))
}

// ImmediateUpload implements runtime.Runtime.
func (b *Backend) ImmediateUpload(dst runtime.BufferHandle, offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	gl.NamedBufferSubData(uint32(dst), int(offset), len(data), gl.Ptr(data))
}

// UploadStaging implements runtime.Runtime. Requests larger than the ring
// fall back to plain client memory; the copy methods accept both.
func (b *Backend) UploadStaging(size uint64) runtime.StagingMap {
	if m, ok := b.upload.alloc(size); ok {
		return m
	}
	return runtime.StagingMap{Data: b.clientScratch(size)}
}

// DownloadStaging implements runtime.Runtime.
func (b *Backend) DownloadStaging(size uint64) runtime.StagingMap {
	if m, ok := b.download.alloc(size); ok {
		return m
	}
	return runtime.StagingMap{Data: b.clientScratch(size)}
}

// CopyStagingToBuffer implements runtime.Runtime.
func (b *Backend) CopyStagingToBuffer(src runtime.StagingMap, dst runtime.BufferHandle, copies []runtime.BufferCopy) {
	for _, c := range copies {
		if src.Handle == 0 {
			gl.NamedBufferSubData(uint32(dst), int(c.DstOffset), int(c.Size),
				gl.Ptr(src.Data[c.SrcOffset:]))
			continue
		}
		gl.CopyNamedBufferSubData(uint32(src.Handle), uint32(dst),
			int(src.Offset+c.SrcOffset), int(c.DstOffset), int(c.Size))
	}
}

// CopyBufferToStaging implements runtime.Runtime.
func (b *Backend) CopyBufferToStaging(dst runtime.StagingMap, src runtime.BufferHandle, copies []runtime.BufferCopy) {
	for _, c := range copies {
		if dst.Handle == 0 {
			gl.GetNamedBufferSubData(uint32(src), int(c.SrcOffset), int(c.Size),
				gl.Ptr(dst.Data[c.DstOffset:]))
			continue
		}
		gl.CopyNamedBufferSubData(uint32(src), uint32(dst.Handle),
			int(c.SrcOffset), int(dst.Offset+c.DstOffset), int(c.Size))
	}
}

func (b *Backend) clientScratch(size uint64) []byte {
	if uint64(cap(b.scratch)) < size {
		b.scratch = make([]byte, size)
	}
	return b.scratch[:size]
}
