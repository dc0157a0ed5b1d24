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

package mmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	m := NewSoftMMU(0x1000, 0x10000)
	require.NoError(t, m.Map(0x10_0000, 0x2000, 0x4000))

	cpu, ok := m.GPUToCPUAddress(0x10_0000)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x2000), cpu)

	cpu, ok = m.GPUToCPUAddress(0x10_3FFF)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x5FFF), cpu)

	_, ok = m.GPUToCPUAddress(0x10_4000)
	assert.False(t, ok)
	_, ok = m.GPUToCPUAddress(0x0F_FFFF)
	assert.False(t, ok)
}

func TestReadWriteBlocks(t *testing.T) {
	m := NewSoftMMU(0, 0x10000)
	require.NoError(t, m.Map(0x20_0000, 0x100, 0x100))

	m.WriteBlockUnsafe(0x20_0000, []byte{1, 2, 3, 4})
	got := make([]byte, 4)
	m.ReadBlockUnsafe(0x20_0000, got)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	// Same bytes through the CPUVA view.
	assert.Equal(t, []byte{1, 2, 3, 4}, m.Host().Pointer(0x100, 4))
}

func TestUnmap(t *testing.T) {
	m := NewSoftMMU(0, 0x1000)
	require.NoError(t, m.Map(0x1000, 0, 0x1000))
	m.Unmap(0x1000)
	_, ok := m.GPUToCPUAddress(0x1000)
	assert.False(t, ok)
}

func TestRangeOps(t *testing.T) {
	a := Range{Base: 0x1000, Size: 0x1000}
	b := Range{Base: 0x1800, Size: 0x1000}
	assert.True(t, a.Overlaps(b))
	assert.Equal(t, Range{Base: 0x1800, Size: 0x800}, a.Intersect(b))
	assert.Equal(t, Range{Base: 0x800, Size: 0x1000}, a.Window(Range{Base: 0x800, Size: 0x10000}))
	assert.True(t, a.Includes(Range{Base: 0x1000, Size: 1}))
	assert.False(t, a.Includes(b))
}
