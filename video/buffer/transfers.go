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

	"github.com/kentjhall/mizu-sub011/core/math/interval"
	"github.com/kentjhall/mizu-sub011/video/runtime"
)

// SynchronizeBuffer uploads every CPU modified sub-range of the region on
// the buffer backing cpuAddr. It returns true when the buffer was already
// fresh or no buffer covers the address.
func (c *Cache) SynchronizeBuffer(ctx context.Context, cpuAddr, size uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.pageTable[cpuAddr>>PageBits]
	if !ok {
		return true
	}
	return c.synchronizeBuffer(ctx, c.buffers.Get(id), cpuAddr, size)
}

func (c *Cache) synchronizeBuffer(ctx context.Context, b *Buffer, cpuAddr, size uint64) bool {
	var copies []runtime.BufferCopy
	total, largest := uint64(0), uint64(0)
	b.ForEachUploadRange(cpuAddr, size, func(off, sz uint64) {
		copies = append(copies, runtime.BufferCopy{SrcOffset: total, DstOffset: off, Size: sz})
		total += sz
		if sz > largest {
			largest = sz
		}
	})
	if len(copies) == 0 {
		return true
	}
	if c.caps.PersistentMappedStaging {
		c.mappedUpload(b, copies, total)
	} else {
		c.immediateUpload(b, copies, largest)
	}
	return false
}

// mappedUpload gathers all ranges into one staging span and issues a single
// staged copy.
func (c *Cache) mappedUpload(b *Buffer, copies []runtime.BufferCopy, total uint64) {
	staging := c.rt.UploadStaging(total)
	for _, cp := range copies {
		c.host.ReadBlockUnsafe(b.cpuAddr+cp.DstOffset, staging.Data[cp.SrcOffset:cp.SrcOffset+cp.Size])
	}
	c.rt.CopyStagingToBuffer(staging, b.handle, copies)
}

// immediateUpload pushes each range separately. A range inside a single
// guest page is read in place; anything else bounces through the reusable
// immediate buffer.
func (c *Cache) immediateUpload(b *Buffer, copies []runtime.BufferCopy, largest uint64) {
	for _, cp := range copies {
		addr := b.cpuAddr + cp.DstOffset
		var data []byte
		if addr>>PageBits == (addr+cp.Size-1)>>PageBits {
			data = c.host.Pointer(addr, cp.Size)
		} else {
			if uint64(len(c.immediate)) < largest {
				c.immediate = make([]byte, largest)
			}
			data = c.immediate[:cp.Size]
			c.host.ReadBlockUnsafe(addr, data)
		}
		c.rt.ImmediateUpload(b.handle, cp.DstOffset, data)
	}
}

// downloadBufferMemory synchronously copies GPU modified sub-ranges of the
// region back into guest memory and clears their bits.
func (c *Cache) downloadBufferMemory(ctx context.Context, b *Buffer, cpuAddr, size uint64) {
	var copies []runtime.BufferCopy
	total := uint64(0)
	b.ForEachDownloadRangeAndClear(cpuAddr, size, func(off, sz uint64) {
		copies = append(copies, runtime.BufferCopy{SrcOffset: off, DstOffset: total, Size: sz})
		total += sz
		c.commonRanges.Sub(interval.U64Range{First: b.cpuAddr + off, Count: sz})
	})
	if len(copies) == 0 {
		return
	}
	staging := c.rt.DownloadStaging(total)
	c.rt.CopyBufferToStaging(staging, b.handle, copies)
	c.rt.Finish()
	for _, cp := range copies {
		c.host.WriteBlockUnsafe(b.cpuAddr+cp.SrcOffset, staging.Data[cp.DstOffset:cp.DstOffset+cp.Size])
	}
}
