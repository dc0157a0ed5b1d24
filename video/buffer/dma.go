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
	"github.com/kentjhall/mizu-sub011/core/math/interval"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

// DMACopy accelerates a guest DMA engine copy. The guest side copy always
// happens so the next CPU read is coherent; when both addresses translate,
// the host buffers are copied too and pending GPU data is re-homed onto the
// destination.
func (c *Cache) DMACopy(ctx context.Context, srcGPUAddr, dstGPUAddr, amount uint64) {
	if amount == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tmp := make([]byte, amount)
	c.mm.ReadBlockUnsafe(srcGPUAddr, tmp)
	c.mm.WriteBlockUnsafe(dstGPUAddr, tmp)

	srcCPU, sok := c.mm.GPUToCPUAddress(srcGPUAddr)
	dstCPU, dok := c.mm.GPUToCPUAddress(dstGPUAddr)
	if !sok || !dok {
		log.D(ctx, "dma copy with unmapped endpoint %#x -> %#x", srcGPUAddr, dstGPUAddr)
		return
	}

	// The destination is overwritten: pending downloads over it are stale.
	dstRange := interval.U64Range{First: dstCPU, Count: amount}
	c.commonRanges.Sub(dstRange)
	c.uncommittedRanges.Sub(dstRange)

	// Finding the destination can join away the source buffer; repeat until
	// both ids are live. Every join reduces the buffer count, so this
	// terminates.
	var srcID, dstID slot.ID
	for {
		srcID = c.findBuffer(ctx, srcCPU, amount)
		dstID = c.findBuffer(ctx, dstCPU, amount)
		if c.buffers.Live(srcID) && c.buffers.Live(dstID) {
			break
		}
	}
	src, dst := c.buffers.Get(srcID), c.buffers.Get(dstID)

	c.synchronizeBuffer(ctx, src, srcCPU, amount)
	c.rt.CopyBuffer(dst.handle, src.handle, []runtime.BufferCopy{{
		SrcOffset: src.Offset(srcCPU),
		DstOffset: dst.Offset(dstCPU),
		Size:      amount,
	}})
	dst.clearDirty(dstCPU, amount)

	// GPU data pending in the source is now also pending at the copied
	// position in the destination.
	src.ForEachGPUModifiedRange(srcCPU, amount, func(off, sz uint64) {
		addr := src.cpuAddr + off
		if addr < srcCPU {
			sz -= srcCPU - addr
			addr = srcCPU
		}
		if end := srcCPU + amount; addr+sz > end {
			sz = end - addr
		}
		c.markRegionGPUModified(dst, dstCPU+(addr-srcCPU), sz)
	})

	c.touch(src)
	c.touch(dst)
}

// DMAClear accelerates a guest DMA engine fill with a 32-bit pattern.
func (c *Cache) DMAClear(ctx context.Context, dstGPUAddr, amount uint64, value uint32) {
	if amount == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fill := make([]byte, amount)
	for i := range fill {
		fill[i] = byte(value >> (8 * (i % 4)))
	}
	c.mm.WriteBlockUnsafe(dstGPUAddr, fill)

	dstCPU, ok := c.mm.GPUToCPUAddress(dstGPUAddr)
	if !ok {
		return
	}
	dstRange := interval.U64Range{First: dstCPU, Count: amount}
	c.commonRanges.Sub(dstRange)
	c.uncommittedRanges.Sub(dstRange)

	id := c.findBuffer(ctx, dstCPU, amount)
	b := c.buffers.Get(id)
	c.rt.ClearBuffer(b.handle, b.Offset(dstCPU), amount, value)
	// Host and guest copies now agree over the cleared range.
	b.clearDirty(dstCPU, amount)
	c.touch(b)
}
