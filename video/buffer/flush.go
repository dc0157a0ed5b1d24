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
	"github.com/kentjhall/mizu-sub011/core/math/u64"
	"github.com/kentjhall/mizu-sub011/video/runtime"
)

// Async flush destination offsets are aligned to avoid host cache line
// conflicts between adjacent downloads.
const asyncCopyAlignment = 256

type pendingDownload struct {
	cpuAddr       uint64
	size          uint64
	stagingOffset uint64
}

// HasUncommittedFlushes reports whether GPU written ranges await a commit.
func (c *Cache) HasUncommittedFlushes() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.uncommittedRanges.Empty() || len(c.committedRanges) > 0
}

// ShouldWaitAsyncFlushes reports whether committed downloads are in flight
// and PopAsyncFlushes would block on the GPU.
func (c *Cache) ShouldWaitAsyncFlushes() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingDownloads) > 0
}

// AccumulateFlushes snapshots the uncommitted ranges into the committed
// FIFO.
func (c *Cache) AccumulateFlushes(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accumulateFlushes()
}

func (c *Cache) accumulateFlushes() {
	if c.uncommittedRanges.Empty() {
		return
	}
	c.committedRanges = append(c.committedRanges, c.uncommittedRanges)
	c.uncommittedRanges = nil
}

// CommitAsyncFlushes queues downloads for every committed range. Below
// AccuracyHigh the pending sets are discarded; commonRanges still records
// the pending GPU data, so a later synchronous DownloadMemory works.
func (c *Cache) CommitAsyncFlushes(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accumulateFlushes()
	if c.cfg.accuracy() != AccuracyHigh {
		c.committedRanges = c.committedRanges[:0]
		return
	}
	c.commitAsyncFlushesHigh(ctx)
}

func (c *Cache) commitAsyncFlushesHigh(ctx context.Context) {
	type queued struct {
		handle runtime.BufferHandle
		copy   runtime.BufferCopy
		addr   uint64
	}
	var downloads []queued
	total := uint64(0)
	for _, ranges := range c.committedRanges {
		for _, r := range ranges {
			c.forEachBufferInRange(r.First, r.Count, func(b *Buffer) {
				b.ForEachDownloadRangeAndClear(r.First, r.Count, func(off, sz uint64) {
					total = u64.AlignUp(total, asyncCopyAlignment)
					downloads = append(downloads, queued{
						handle: b.handle,
						copy:   runtime.BufferCopy{SrcOffset: off, DstOffset: total, Size: sz},
						addr:   b.cpuAddr + off,
					})
					c.commonRanges.Sub(interval.U64Range{First: b.cpuAddr + off, Count: sz})
					total += sz
				})
			})
		}
	}
	c.committedRanges = c.committedRanges[:0]
	if len(downloads) == 0 {
		return
	}
	staging := c.rt.DownloadStaging(total)
	for _, d := range downloads {
		c.rt.CopyBufferToStaging(staging, d.handle, []runtime.BufferCopy{d.copy})
		c.pendingDownloads = append(c.pendingDownloads, pendingDownload{
			cpuAddr:       d.addr,
			size:          d.copy.Size,
			stagingOffset: d.copy.DstOffset,
		})
	}
	c.downloadStaging = staging
}

// PopAsyncFlushes waits for the committed downloads and writes them back
// into guest memory.
func (c *Cache) PopAsyncFlushes(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pendingDownloads) == 0 {
		return
	}
	c.rt.Finish()
	for _, p := range c.pendingDownloads {
		c.host.WriteBlockUnsafe(p.cpuAddr, c.downloadStaging.Data[p.stagingOffset:p.stagingOffset+p.size])
	}
	c.pendingDownloads = c.pendingDownloads[:0]
	c.downloadStaging = runtime.StagingMap{}
}
