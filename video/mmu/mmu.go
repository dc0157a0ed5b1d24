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

// Package mmu defines the guest address spaces the caches operate on.
//
// GPUVA is the guest GPU virtual address space (40 bit). CPUVA is the guest
// physical address space as mapped into the host process. A MemoryManager
// translates between them; a HostMemory reaches the bytes behind a CPUVA.
package mmu

// MemoryManager maps guest GPU virtual addresses to guest CPU addresses and
// moves blocks across the GPU address space.
type MemoryManager interface {
	// GPUToCPUAddress translates a GPUVA to a CPUVA. ok is false when the
	// address is unmapped.
	GPUToCPUAddress(gpuAddr uint64) (cpuAddr uint64, ok bool)
	// ReadBlockUnsafe copies len(dst) bytes at gpuAddr into dst without
	// touching cache residency.
	ReadBlockUnsafe(gpuAddr uint64, dst []byte)
	// WriteBlockUnsafe copies src to gpuAddr without touching cache
	// residency.
	WriteBlockUnsafe(gpuAddr uint64, src []byte)
}

// HostMemory gives direct access to guest memory addressed by CPUVA.
type HostMemory interface {
	// Pointer returns the host bytes backing [cpuAddr, cpuAddr+size). The
	// returned slice aliases guest memory.
	Pointer(cpuAddr, size uint64) []byte
	// ReadBlockUnsafe copies len(dst) bytes at cpuAddr into dst.
	ReadBlockUnsafe(cpuAddr uint64, dst []byte)
	// WriteBlockUnsafe copies src to cpuAddr.
	WriteBlockUnsafe(cpuAddr uint64, src []byte)
}

// Rasterizer is notified when the caches start or stop caring about CPU
// writes to a span of guest pages.
type Rasterizer interface {
	// UpdatePages adjusts the write-tracking count on every page overlapping
	// [cpuAddr, cpuAddr+size) by delta.
	UpdatePages(cpuAddr, size uint64, delta int)
}

// NopRasterizer is a Rasterizer that tracks nothing.
type NopRasterizer struct{}

// UpdatePages implements Rasterizer.
func (NopRasterizer) UpdatePages(cpuAddr, size uint64, delta int) {}
