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
	"github.com/go-gl/gl/v4.6-core/gl"

	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/format"
	"github.com/kentjhall/mizu-sub011/video/runtime"
)

// Binding points are flattened per stage, with the compute slots after the
// five graphics stages.

func uniformSlot(stage engine.ShaderStage, index uint32) uint32 {
	return uint32(stage)*engine.NumUniformBuffersPerStage + index
}

func storageSlot(stage engine.ShaderStage, index uint32) uint32 {
	return uint32(stage)*engine.NumStorageBuffersPerStage + index
}

func textureBufferUnit(stage engine.ShaderStage, index uint32) uint32 {
	return uint32(stage)*engine.NumTextureBuffersPerStage + index
}

const computeStage = engine.ShaderStage(engine.NumStages)

// BindIndexBuffer implements runtime.Runtime.
func (b *Backend) BindIndexBuffer(h runtime.BufferHandle, offset, size uint64, fmt engine.IndexFormat) {
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, uint32(h))
}

// BindVertexBuffer implements runtime.Runtime.
func (b *Backend) BindVertexBuffer(index uint32, h runtime.BufferHandle, offset, size uint64, stride uint32) {
	gl.BindVertexBuffer(index, uint32(h), int(offset), int32(stride))
}

// BindUniformBuffer implements runtime.Runtime.
func (b *Backend) BindUniformBuffer(stage engine.ShaderStage, index uint32, h runtime.BufferHandle, offset, size uint64) {
	b.bindRange(gl.UNIFORM_BUFFER, uniformSlot(stage, index), h, offset, size)
}

// BindStorageBuffer implements runtime.Runtime.
func (b *Backend) BindStorageBuffer(stage engine.ShaderStage, index uint32, h runtime.BufferHandle, offset, size uint64, written bool) {
	b.bindRange(gl.SHADER_STORAGE_BUFFER, storageSlot(stage, index), h, offset, size)
	if written {
		b.storageWritten = true
	}
}

// BindTextureBuffer implements runtime.Runtime.
func (b *Backend) BindTextureBuffer(stage engine.ShaderStage, index uint32, h runtime.BufferHandle, offset, size uint64, fmt format.PixelFormat) {
	b.bindTextureBuffer(textureBufferUnit(stage, index), h, offset, size, fmt)
}

// BindTransformFeedbackBuffer implements runtime.Runtime.
func (b *Backend) BindTransformFeedbackBuffer(index uint32, h runtime.BufferHandle, offset, size uint64) {
	b.bindRange(gl.TRANSFORM_FEEDBACK_BUFFER, index, h, offset, size)
}

// BindComputeUniformBuffer implements runtime.Runtime.
func (b *Backend) BindComputeUniformBuffer(index uint32, h runtime.BufferHandle, offset, size uint64) {
	b.bindRange(gl.UNIFORM_BUFFER, uniformSlot(computeStage, index), h, offset, size)
}

// BindComputeStorageBuffer implements runtime.Runtime.
func (b *Backend) BindComputeStorageBuffer(index uint32, h runtime.BufferHandle, offset, size uint64, written bool) {
	b.bindRange(gl.SHADER_STORAGE_BUFFER, storageSlot(computeStage, index), h, offset, size)
	if written {
		b.storageWritten = true
	}
}

// BindComputeTextureBuffer implements runtime.Runtime.
func (b *Backend) BindComputeTextureBuffer(index uint32, h runtime.BufferHandle, offset, size uint64, fmt format.PixelFormat) {
	b.bindTextureBuffer(textureBufferUnit(computeStage, index), h, offset, size, fmt)
}

func (b *Backend) bindRange(target, slot uint32, h runtime.BufferHandle, offset, size uint64) {
	if h == 0 {
		gl.BindBufferBase(target, slot, 0)
		return
	}
	gl.BindBufferRange(target, slot, uint32(h), int(offset), int(size))
}

type texBufferKey struct {
	unit uint32
}

// bindTextureBuffer respecifies the unit's TBO texture over the new range.
func (b *Backend) bindTextureBuffer(unit uint32, h runtime.BufferHandle, offset, size uint64, f format.PixelFormat) {
	if h == 0 {
		gl.BindTextureUnit(unit, 0)
		return
	}
	key := texBufferKey{unit: unit}
	tex, ok := b.texBuffers[key]
	if !ok {
		gl.CreateTextures(gl.TEXTURE_BUFFER, 1, &tex)
		b.texBuffers[key] = tex
	}
	gl.TextureBufferRange(tex, lookupFormat(f).internal, uint32(h), int(offset), int(size))
	gl.BindTextureUnit(unit, tex)
}
