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

package buffer

import (
	"context"

	"github.com/kentjhall/mizu-sub011/core/log"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/format"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

// bindingIntent is a binding as the guest declared it, before address
// translation.
type bindingIntent struct {
	gpuAddr uint64
	size    uint64
	format  format.PixelFormat // texture buffers only
	written bool               // storage buffers only
}

// resolvedBinding is a binding resolved to a concrete buffer. A zero value
// is a null binding.
type resolvedBinding struct {
	id      slot.ID
	cpuAddr uint64
	size    uint64
	format  format.PixelFormat
	written bool
}

// BindGraphicsUniformBuffer records a uniform buffer binding intent.
// Resolution happens in UpdateGraphicsBuffers.
func (c *Cache) BindGraphicsUniformBuffer(stage engine.ShaderStage, index uint32, gpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uniformIntents[stage][index] = bindingIntent{gpuAddr: gpuAddr, size: size}
	if size == 0 {
		c.enabledUniforms[stage] &^= 1 << index
	} else {
		c.enabledUniforms[stage] |= 1 << index
	}
	c.dirtyUniforms[stage] |= 1 << index
}

// BindGraphicsStorageBuffer records a storage buffer binding intent.
func (c *Cache) BindGraphicsStorageBuffer(stage engine.ShaderStage, index uint32, gpuAddr, size uint64, written bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storageIntents[stage][index] = bindingIntent{gpuAddr: gpuAddr, size: size, written: written}
	if size == 0 {
		c.enabledStorage[stage] &^= 1 << index
	} else {
		c.enabledStorage[stage] |= 1 << index
	}
}

// BindGraphicsTextureBuffer records a texture buffer binding intent.
func (c *Cache) BindGraphicsTextureBuffer(stage engine.ShaderStage, index uint32, gpuAddr, size uint64, fmt format.PixelFormat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textureIntents[stage][index] = bindingIntent{gpuAddr: gpuAddr, size: size, format: fmt}
	if size == 0 {
		c.enabledTexture[stage] &^= 1 << index
	} else {
		c.enabledTexture[stage] |= 1 << index
	}
}

// BindComputeUniformBuffer records a compute uniform buffer binding.
func (c *Cache) BindComputeUniformBuffer(index uint32, gpuAddr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computeUniformIntents[index] = bindingIntent{gpuAddr: gpuAddr, size: size}
	if size == 0 {
		c.enabledComputeUniforms &^= 1 << index
	} else {
		c.enabledComputeUniforms |= 1 << index
	}
}

// BindComputeStorageBuffer records a compute storage buffer binding.
func (c *Cache) BindComputeStorageBuffer(index uint32, gpuAddr, size uint64, written bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computeStorageIntents[index] = bindingIntent{gpuAddr: gpuAddr, size: size, written: written}
	if size == 0 {
		c.enabledComputeStorage &^= 1 << index
	} else {
		c.enabledComputeStorage |= 1 << index
	}
}

// BindComputeTextureBuffer records a compute texture buffer binding.
func (c *Cache) BindComputeTextureBuffer(index uint32, gpuAddr, size uint64, fmt format.PixelFormat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computeTextureIntents[index] = bindingIntent{gpuAddr: gpuAddr, size: size, format: fmt}
	if size == 0 {
		c.enabledComputeTexture &^= 1 << index
	} else {
		c.enabledComputeTexture |= 1 << index
	}
}

// UpdateGraphicsBuffers resolves every enabled graphics binding against the
// current engine state. Buffer creation can retire overlapped buffers, in
// which case the whole pass restarts until it is stable.
func (c *Cache) UpdateGraphicsBuffers(ctx context.Context, isIndexed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		c.hasDeletedBuffers = false
		if isIndexed {
			c.updateIndexBuffer(ctx)
		}
		c.updateVertexBuffers(ctx)
		c.updateTransformFeedbackBuffers(ctx)
		for stage := engine.ShaderStage(0); stage < engine.NumStages; stage++ {
			c.updateUniformBuffers(ctx, stage)
			c.updateStorageBuffers(ctx, stage)
			c.updateTextureBuffers(ctx, stage)
		}
		if !c.hasDeletedBuffers {
			return
		}
	}
}

// UpdateComputeBuffers resolves every enabled compute binding.
func (c *Cache) UpdateComputeBuffers(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		c.hasDeletedBuffers = false
		c.updateComputeUniformBuffers(ctx)
		c.updateComputeStorageBuffers(ctx)
		c.updateComputeTextureBuffers(ctx)
		if !c.hasDeletedBuffers {
			return
		}
	}
}

// resolveBinding translates and backs one binding. Failed translation
// yields the null binding.
func (c *Cache) resolveBinding(ctx context.Context, in bindingIntent) resolvedBinding {
	if in.size == 0 {
		return resolvedBinding{}
	}
	cpuAddr, ok := c.mm.GPUToCPUAddress(in.gpuAddr)
	if !ok {
		log.D(ctx, "binding at unmapped GPUVA %#x", in.gpuAddr)
		return resolvedBinding{}
	}
	id := c.findBuffer(ctx, cpuAddr, in.size)
	c.touch(c.buffers.Get(id))
	return resolvedBinding{id: id, cpuAddr: cpuAddr, size: in.size, format: in.format, written: in.written}
}

func (c *Cache) updateIndexBuffer(ctx context.Context) {
	ia := c.state.IndexArray
	if ia.Count == 0 {
		c.indexBinding = resolvedBinding{}
		return
	}
	if c.state.Topology == engine.Quads {
		// Bound from the expansion table instead, see bindQuadIndexBuffer.
		c.indexBinding = resolvedBinding{}
		return
	}
	c.indexBinding = c.resolveBinding(ctx, bindingIntent{gpuAddr: ia.StartAddr, size: ia.SizeBytes()})
}

func (c *Cache) updateVertexBuffers(ctx context.Context) {
	for i := range c.state.VertexArrays {
		va := &c.state.VertexArrays[i]
		size := va.SizeBytes()
		if size == 0 {
			c.vertexBindings[i] = resolvedBinding{}
			continue
		}
		c.vertexBindings[i] = c.resolveBinding(ctx, bindingIntent{gpuAddr: va.Addr, size: size})
	}
}

func (c *Cache) updateTransformFeedbackBuffers(ctx context.Context) {
	if !c.state.TransformFeedbackActive {
		for i := range c.tfbBindings {
			c.tfbBindings[i] = resolvedBinding{}
		}
		return
	}
	for i := range c.state.TransformFeedback {
		tfb := &c.state.TransformFeedback[i]
		if !tfb.Enable || tfb.Size == 0 {
			c.tfbBindings[i] = resolvedBinding{}
			continue
		}
		rb := c.resolveBinding(ctx, bindingIntent{gpuAddr: tfb.Addr, size: tfb.Size})
		if rb.id != slot.Nil {
			// The GPU writes transform feedback output.
			c.markRegionGPUModified(c.buffers.Get(rb.id), rb.cpuAddr, rb.size)
		}
		c.tfbBindings[i] = rb
	}
}

func (c *Cache) updateUniformBuffers(ctx context.Context, stage engine.ShaderStage) {
	forEachEnabledBit(c.enabledUniforms[stage], func(i uint32) {
		rb := c.resolveBinding(ctx, c.uniformIntents[stage][i])
		if rb != c.uniformBindings[stage][i] {
			c.dirtyUniforms[stage] |= 1 << i
		}
		c.uniformBindings[stage][i] = rb
	})
}

func (c *Cache) updateStorageBuffers(ctx context.Context, stage engine.ShaderStage) {
	forEachEnabledBit(c.enabledStorage[stage], func(i uint32) {
		rb := c.resolveBinding(ctx, c.storageIntents[stage][i])
		if rb.written && rb.id != slot.Nil {
			c.markRegionGPUModified(c.buffers.Get(rb.id), rb.cpuAddr, rb.size)
		}
		c.storageBindings[stage][i] = rb
	})
}

func (c *Cache) updateTextureBuffers(ctx context.Context, stage engine.ShaderStage) {
	forEachEnabledBit(c.enabledTexture[stage], func(i uint32) {
		c.textureBindings[stage][i] = c.resolveBinding(ctx, c.textureIntents[stage][i])
	})
}

func (c *Cache) updateComputeUniformBuffers(ctx context.Context) {
	forEachEnabledBit(c.enabledComputeUniforms, func(i uint32) {
		c.computeUniformBindings[i] = c.resolveBinding(ctx, c.computeUniformIntents[i])
	})
}

func (c *Cache) updateComputeStorageBuffers(ctx context.Context) {
	forEachEnabledBit(c.enabledComputeStorage, func(i uint32) {
		rb := c.resolveBinding(ctx, c.computeStorageIntents[i])
		if rb.written && rb.id != slot.Nil {
			c.markRegionGPUModified(c.buffers.Get(rb.id), rb.cpuAddr, rb.size)
		}
		c.computeStorageBindings[i] = rb
	})
}

func (c *Cache) updateComputeTextureBuffers(ctx context.Context) {
	forEachEnabledBit(c.enabledComputeTexture, func(i uint32) {
		c.computeTextureBindings[i] = c.resolveBinding(ctx, c.computeTextureIntents[i])
	})
}

// BindHostGeometryBuffers synchronizes and emits the index, vertex and
// transform feedback bindings for the next draw.
func (c *Cache) BindHostGeometryBuffers(ctx context.Context, isIndexed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isIndexed {
		c.bindHostIndexBuffer(ctx)
	}
	for i := range c.vertexBindings {
		rb := c.vertexBindings[i]
		stride := c.state.VertexArrays[i].Stride
		if rb.id == slot.Nil {
			c.rt.BindVertexBuffer(uint32(i), c.nullBufferHandle(), 0, nullBufferSize, stride)
			continue
		}
		b := c.buffers.Get(rb.id)
		c.synchronizeBuffer(ctx, b, rb.cpuAddr, rb.size)
		c.rt.BindVertexBuffer(uint32(i), b.handle, b.Offset(rb.cpuAddr), rb.size, stride)
	}
	if c.state.TransformFeedbackActive {
		for i := range c.tfbBindings {
			rb := c.tfbBindings[i]
			if rb.id == slot.Nil {
				c.rt.BindTransformFeedbackBuffer(uint32(i), c.nullBufferHandle(), 0, nullBufferSize)
				continue
			}
			b := c.buffers.Get(rb.id)
			c.synchronizeBuffer(ctx, b, rb.cpuAddr, rb.size)
			c.rt.BindTransformFeedbackBuffer(uint32(i), b.handle, b.Offset(rb.cpuAddr), rb.size)
		}
	}
}

func (c *Cache) bindHostIndexBuffer(ctx context.Context) {
	ia := c.state.IndexArray
	if c.state.Topology == engine.Quads {
		c.bindQuadIndexBuffer(ctx, ia)
		return
	}
	rb := c.indexBinding
	if rb.id == slot.Nil {
		c.rt.BindIndexBuffer(c.nullBufferHandle(), 0, nullBufferSize, engine.IndexUint32)
		return
	}
	b := c.buffers.Get(rb.id)
	c.synchronizeBuffer(ctx, b, rb.cpuAddr, rb.size)
	c.rt.BindIndexBuffer(b.handle, b.Offset(rb.cpuAddr), rb.size, ia.Format)
}

// BindHostStageBuffers synchronizes and emits the uniform, storage and
// texture buffer bindings of one graphics stage.
func (c *Cache) BindHostStageBuffers(ctx context.Context, stage engine.ShaderStage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	forEachEnabledBit(c.enabledUniforms[stage], func(i uint32) {
		rb := c.uniformBindings[stage][i]
		if rb.id == slot.Nil {
			c.rt.BindUniformBuffer(stage, i, c.nullBufferHandle(), 0, nullBufferSize)
			return
		}
		b := c.buffers.Get(rb.id)
		c.synchronizeBuffer(ctx, b, rb.cpuAddr, rb.size)
		if c.caps.PersistentUniformBindings && c.dirtyUniforms[stage]&(1<<i) == 0 {
			// The binding is unchanged and still live on the host.
			return
		}
		c.rt.BindUniformBuffer(stage, i, b.handle, b.Offset(rb.cpuAddr), rb.size)
	})
	c.dirtyUniforms[stage] = 0
	forEachEnabledBit(c.enabledStorage[stage], func(i uint32) {
		rb := c.storageBindings[stage][i]
		if rb.id == slot.Nil {
			c.rt.BindStorageBuffer(stage, i, c.nullBufferHandle(), 0, nullBufferSize, false)
			return
		}
		b := c.buffers.Get(rb.id)
		c.synchronizeBuffer(ctx, b, rb.cpuAddr, rb.size)
		c.rt.BindStorageBuffer(stage, i, b.handle, b.Offset(rb.cpuAddr), rb.size, rb.written)
	})
	forEachEnabledBit(c.enabledTexture[stage], func(i uint32) {
		rb := c.textureBindings[stage][i]
		if rb.id == slot.Nil {
			c.rt.BindTextureBuffer(stage, i, c.nullBufferHandle(), 0, nullBufferSize, rb.format)
			return
		}
		b := c.buffers.Get(rb.id)
		c.synchronizeBuffer(ctx, b, rb.cpuAddr, rb.size)
		c.rt.BindTextureBuffer(stage, i, b.handle, b.Offset(rb.cpuAddr), rb.size, rb.format)
	})
}

// BindHostComputeBuffers synchronizes and emits the compute bindings.
func (c *Cache) BindHostComputeBuffers(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	forEachEnabledBit(c.enabledComputeUniforms, func(i uint32) {
		rb := c.computeUniformBindings[i]
		if rb.id == slot.Nil {
			c.rt.BindComputeUniformBuffer(i, c.nullBufferHandle(), 0, nullBufferSize)
			return
		}
		b := c.buffers.Get(rb.id)
		c.synchronizeBuffer(ctx, b, rb.cpuAddr, rb.size)
		c.rt.BindComputeUniformBuffer(i, b.handle, b.Offset(rb.cpuAddr), rb.size)
	})
	forEachEnabledBit(c.enabledComputeStorage, func(i uint32) {
		rb := c.computeStorageBindings[i]
		if rb.id == slot.Nil {
			c.rt.BindComputeStorageBuffer(i, c.nullBufferHandle(), 0, nullBufferSize, false)
			return
		}
		b := c.buffers.Get(rb.id)
		c.synchronizeBuffer(ctx, b, rb.cpuAddr, rb.size)
		c.rt.BindComputeStorageBuffer(i, b.handle, b.Offset(rb.cpuAddr), rb.size, rb.written)
	})
	forEachEnabledBit(c.enabledComputeTexture, func(i uint32) {
		rb := c.computeTextureBindings[i]
		if rb.id == slot.Nil {
			c.rt.BindComputeTextureBuffer(i, c.nullBufferHandle(), 0, nullBufferSize, rb.format)
			return
		}
		b := c.buffers.Get(rb.id)
		c.synchronizeBuffer(ctx, b, rb.cpuAddr, rb.size)
		c.rt.BindComputeTextureBuffer(i, b.handle, b.Offset(rb.cpuAddr), rb.size, rb.format)
	})
}

func forEachEnabledBit(mask uint32, f func(i uint32)) {
	for i := uint32(0); mask != 0; i++ {
		if mask&(1<<i) != 0 {
			mask &^= 1 << i
			f(i)
		}
	}
}
