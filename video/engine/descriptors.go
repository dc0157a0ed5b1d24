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

package engine

import "github.com/kentjhall/mizu-sub011/video/format"

// TextureType is the image dimensionality field of a TIC entry.
type TextureType int

const (
	Texture1D TextureType = iota
	Texture2D
	Texture3D
	TextureCube
	Texture1DArray
	Texture2DArray
	TextureCubeArray
	TextureLinear // pitch-linear 2D
	TextureBuffer // 1D buffer-backed
)

// TICEntry is a decoded Texture Image Control descriptor.
type TICEntry struct {
	Addr   uint64 // GPUVA of level 0
	Format format.PixelFormat
	Type   TextureType

	Width  uint32
	Height uint32
	Depth  uint32 // depth for 3D, layer count for arrays

	Levels  uint32
	Samples uint32

	// Block-linear layout. BlockHeight and BlockDepth are log2 GOB counts.
	Linear      bool
	BlockHeight uint32
	BlockDepth  uint32
	Pitch       uint32 // bytes per row when Linear

	// Component swizzle sources for shader views.
	SwizzleR, SwizzleG, SwizzleB, SwizzleA SwizzleSource
}

// SwizzleSource selects the source of one view component.
type SwizzleSource int

const (
	SourceZero SwizzleSource = iota
	SourceOne
	SourceR
	SourceG
	SourceB
	SourceA
)

// WrapMode is a TSC address mode.
type WrapMode int

const (
	WrapRepeat WrapMode = iota
	WrapMirror
	WrapClampEdge
	WrapBorder
	WrapClamp
	WrapMirrorOnceEdge
)

// TextureFilter is a TSC min/mag filter.
type TextureFilter int

const (
	FilterNearest TextureFilter = iota
	FilterLinear
)

// MipFilter is a TSC mipmap filter.
type MipFilter int

const (
	MipNone MipFilter = iota
	MipNearest
	MipLinear
)

// CompareOp is a TSC depth compare operation.
type CompareOp int

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareEqual
	CompareLessEqual
	CompareGreater
	CompareNotEqual
	CompareGreaterEqual
	CompareAlways
)

// ReductionMode is a TSC filter reduction mode.
type ReductionMode int

const (
	ReduceWeightedAverage ReductionMode = iota
	ReduceMin
	ReduceMax
)

// TSCEntry is a decoded Texture Sampler Control descriptor.
type TSCEntry struct {
	WrapU, WrapV, WrapP WrapMode

	MagFilter TextureFilter
	MinFilter TextureFilter
	MipFilter MipFilter

	CompareEnable bool
	CompareOp     CompareOp

	Reduction ReductionMode

	LODBias float32
	MinLOD  float32
	MaxLOD  float32

	Anisotropy  float32
	BorderColor [4]float32
}
