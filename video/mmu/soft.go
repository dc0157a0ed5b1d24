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
	"sort"

	"github.com/pkg/errors"
)

// SoftMMU is a slice-backed guest memory with a GPUVA to CPUVA mapping
// table. It implements both MemoryManager and HostMemory and backs the
// software runtime and the tests.
type SoftMMU struct {
	base uint64 // first valid CPUVA
	mem  []byte
	maps []mapping // sorted by gpu base
}

type mapping struct {
	gpu  uint64
	cpu  uint64
	size uint64
}

// NewSoftMMU returns a SoftMMU covering CPUVAs [base, base+size).
func NewSoftMMU(base, size uint64) *SoftMMU {
	return &SoftMMU{base: base, mem: make([]byte, size)}
}

// Map installs a GPUVA range backed by the CPUVA range of the same size.
func (m *SoftMMU) Map(gpuAddr, cpuAddr, size uint64) error {
	if cpuAddr < m.base || cpuAddr+size > m.base+uint64(len(m.mem)) {
		return errors.Errorf("cpu range [0x%x+0x%x] outside guest memory", cpuAddr, size)
	}
	i := sort.Search(len(m.maps), func(i int) bool { return m.maps[i].gpu > gpuAddr })
	m.maps = append(m.maps, mapping{})
	copy(m.maps[i+1:], m.maps[i:])
	m.maps[i] = mapping{gpu: gpuAddr, cpu: cpuAddr, size: size}
	return nil
}

// Unmap removes any mapping beginning at gpuAddr.
func (m *SoftMMU) Unmap(gpuAddr uint64) {
	for i, mp := range m.maps {
		if mp.gpu == gpuAddr {
			m.maps = append(m.maps[:i], m.maps[i+1:]...)
			return
		}
	}
}

func (m *SoftMMU) lookup(gpuAddr uint64) (mapping, bool) {
	i := sort.Search(len(m.maps), func(i int) bool { return m.maps[i].gpu > gpuAddr })
	if i == 0 {
		return mapping{}, false
	}
	mp := m.maps[i-1]
	if gpuAddr >= mp.gpu+mp.size {
		return mapping{}, false
	}
	return mp, true
}

// GPUToCPUAddress implements MemoryManager.
func (m *SoftMMU) GPUToCPUAddress(gpuAddr uint64) (uint64, bool) {
	mp, ok := m.lookup(gpuAddr)
	if !ok {
		return 0, false
	}
	return mp.cpu + (gpuAddr - mp.gpu), true
}

// ReadBlockUnsafe implements MemoryManager.
func (m *SoftMMU) ReadBlockUnsafe(gpuAddr uint64, dst []byte) {
	if cpu, ok := m.GPUToCPUAddress(gpuAddr); ok {
		copy(dst, m.Pointer(cpu, uint64(len(dst))))
	}
}

// WriteBlockUnsafe implements MemoryManager.
func (m *SoftMMU) WriteBlockUnsafe(gpuAddr uint64, src []byte) {
	if cpu, ok := m.GPUToCPUAddress(gpuAddr); ok {
		copy(m.Pointer(cpu, uint64(len(src))), src)
	}
}

// Host returns the HostMemory view of the same guest memory.
func (m *SoftMMU) Host() *SoftHostMemory { return &SoftHostMemory{m} }

// SoftHostMemory is the CPUVA view of a SoftMMU.
type SoftHostMemory struct {
	m *SoftMMU
}

// Pointer implements HostMemory.
func (h *SoftHostMemory) Pointer(cpuAddr, size uint64) []byte {
	return h.m.Pointer(cpuAddr, size)
}

// ReadBlockUnsafe implements HostMemory.
func (h *SoftHostMemory) ReadBlockUnsafe(cpuAddr uint64, dst []byte) {
	copy(dst, h.m.Pointer(cpuAddr, uint64(len(dst))))
}

// WriteBlockUnsafe implements HostMemory.
func (h *SoftHostMemory) WriteBlockUnsafe(cpuAddr uint64, src []byte) {
	copy(h.m.Pointer(cpuAddr, uint64(len(src))), src)
}

// Pointer returns the host bytes backing [cpuAddr, cpuAddr+size).
func (m *SoftMMU) Pointer(cpuAddr, size uint64) []byte {
	off := cpuAddr - m.base
	return m.mem[off : off+size]
}
