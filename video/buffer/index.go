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
	"encoding/binary"

	"github.com/kentjhall/mizu-sub011/core/math/u64"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

// nullBufferSize is the size of the lazily created null buffer substituted
// for unmapped or zero sized bindings.
const nullBufferSize = 4

func (c *Cache) nullBufferHandle() runtime.BufferHandle {
	if c.nullBuffer == 0 {
		c.nullBuffer = c.rt.CreateBuffer(nullBufferSize)
		c.rt.ClearBuffer(c.nullBuffer, 0, nullBufferSize, 0)
	}
	return c.nullBuffer
}

// quadTable is the host index buffer that expands quads into triangles.
// Quads are not native on the host, so each quad (v, v+1, v+2, v+3) draws
// as two triangles (v, v+1, v+2) and (v, v+2, v+3). The table is replicated
// four times with the vertex base shifted by 0..3, so a draw whose First is
// not quad aligned selects the matching phase.
type quadTable struct {
	handle runtime.BufferHandle
	quads  uint32
}

const quadIndexStride = 6 * 4 // six uint32 indices per quad

var quadPattern = [6]uint32{0, 1, 2, 0, 2, 3}

func (c *Cache) ensureQuadTable(ctx context.Context, quads uint32) {
	if c.quadTable.handle != 0 && c.quadTable.quads >= quads {
		return
	}
	n := uint32(u64.NextPow2(u64.Max(uint64(quads), 1024)))
	data := make([]byte, 4*n*quadIndexStride)
	off := 0
	for phase := uint32(0); phase < 4; phase++ {
		for q := uint32(0); q < n; q++ {
			base := q*4 + phase
			for _, v := range quadPattern {
				binary.LittleEndian.PutUint32(data[off:], base+v)
				off += 4
			}
		}
	}
	if c.quadTable.handle != 0 {
		c.delayed.Push(deadBuffer{id: slot.Nil, handle: c.quadTable.handle})
	}
	h := c.rt.CreateBuffer(uint64(len(data)))
	c.rt.ImmediateUpload(h, 0, data)
	c.quadTable = quadTable{handle: h, quads: n}
}

// bindQuadIndexBuffer binds the expansion table in place of the guest
// index buffer for a quad topology draw.
func (c *Cache) bindQuadIndexBuffer(ctx context.Context, ia engine.IndexArray) {
	quads := (ia.First + ia.Count) / 4
	c.ensureQuadTable(ctx, quads)
	phase := uint64(ia.First % 4)
	phaseSize := uint64(c.quadTable.quads) * quadIndexStride
	offset := phaseSize*phase + uint64(ia.First/4)*quadIndexStride
	size := uint64(ia.Count/4) * quadIndexStride
	c.rt.BindIndexBuffer(c.quadTable.handle, offset, size, engine.IndexUint32)
}
