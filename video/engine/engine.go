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

// Package engine models the guest GPU engine register state the caches
// read.
//
// The caches treat a State as a snapshot valid for the duration of one
// top-level cache operation; the command processor mutates it between
// operations.
package engine

import "github.com/kentjhall/mizu-sub011/video/format"

// Limits of the guest 3D engine.
const (
	NumStages                   = 5  // vertex, tess control, tess eval, geometry, fragment
	NumVertexBuffers            = 32 // vertex array slots
	NumUniformBuffersPerStage   = 18 // constant buffer slots per stage
	NumStorageBuffersPerStage   = 16
	NumTextureBuffersPerStage   = 16
	NumTransformFeedbackBuffers = 4
	NumRenderTargets            = 8
)

// ShaderStage indexes the five graphics shader stages.
type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StageTessControl
	StageTessEval
	StageGeometry
	StageFragment
)

// PrimitiveTopology is the guest draw topology.
type PrimitiveTopology int

const (
	Points PrimitiveTopology = iota
	Lines
	LineStrip
	Triangles
	TriangleStrip
	TriangleFan
	Quads
	Patches
)

// IndexFormat is a guest index element format.
type IndexFormat int

const (
	IndexUint8 IndexFormat = iota
	IndexUint16
	IndexUint32
)

// Bytes returns the byte size of one index element.
func (f IndexFormat) Bytes() uint32 {
	switch f {
	case IndexUint8:
		return 1
	case IndexUint16:
		return 2
	default:
		return 4
	}
}

// IndexArray describes the bound index buffer.
type IndexArray struct {
	StartAddr uint64 // GPUVA of the first index
	Format    IndexFormat
	First     uint32 // first index of the draw
	Count     uint32 // index count of the draw
}

// SizeBytes returns the byte size of the indices consumed by the draw.
func (a IndexArray) SizeBytes() uint64 {
	return uint64(a.First+a.Count) * uint64(a.Format.Bytes())
}

// VertexArray describes one vertex buffer slot.
type VertexArray struct {
	Enable bool
	Addr   uint64 // GPUVA of the first byte
	Limit  uint64 // GPUVA of the last byte
	Stride uint32
}

// SizeBytes returns the byte size of the enabled array, or 0.
func (a VertexArray) SizeBytes() uint64 {
	if !a.Enable || a.Limit < a.Addr {
		return 0
	}
	return a.Limit - a.Addr + 1
}

// BufferBinding is a GPUVA range bound to a shader slot.
type BufferBinding struct {
	Addr uint64 // GPUVA
	Size uint64 // 0 means unbound
}

// TransformFeedbackBinding is one transform feedback buffer slot.
type TransformFeedbackBinding struct {
	Enable bool
	Addr   uint64
	Size   uint64
}

// RenderTarget describes one color target register block.
type RenderTarget struct {
	Addr        uint64 // GPUVA
	Width       uint32
	Height      uint32
	Depth       uint32 // layers for 2D arrays, depth for 3D
	Format      format.PixelFormat
	BlockHeight uint32 // block-linear GOB block height log2
	Volume      bool   // true for 3D targets
	Samples     uint32
}

// DepthStencil describes the zeta target register block.
type DepthStencil struct {
	Enable      bool
	Addr        uint64
	Width       uint32
	Height      uint32
	Layers      uint32
	Format      format.PixelFormat
	BlockHeight uint32
	Samples     uint32
}

// RenderTargetControl gives the draw buffer mapping.
type RenderTargetControl struct {
	Count uint32                 // number of active draw buffers
	Map   [NumRenderTargets]byte // draw buffer index -> render target index
}

// State is the register snapshot the caches read.
type State struct {
	Topology     PrimitiveTopology
	IndexArray   IndexArray
	VertexArrays [NumVertexBuffers]VertexArray

	TransformFeedback       [NumTransformFeedbackBuffers]TransformFeedbackBinding
	TransformFeedbackActive bool

	RenderTargets [NumRenderTargets]RenderTarget
	Zeta          DepthStencil
	RTControl     RenderTargetControl

	// Descriptor pools: GPUVAs of the TIC and TSC tables plus their
	// maximum indices.
	TexHeaderPool   uint64
	TexHeaderLimit  uint32
	TexSamplerPool  uint64
	TexSamplerLimit uint32

	TICs []TICEntry // decoded texture headers, indexed by TIC id
	TSCs []TSCEntry // decoded sampler headers, indexed by TSC id
}
