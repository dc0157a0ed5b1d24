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

// Package format enumerates the pixel formats the caches understand and
// their memory layout properties.
package format

// PixelFormat identifies a host pixel format.
type PixelFormat int

const (
	Invalid PixelFormat = iota
	R8Unorm
	R8Uint
	RG8Unorm
	R16Unorm
	R16Float
	RG16Unorm
	RG16Float
	R32Float
	R32Uint
	RG32Float
	RGBA8Unorm
	RGBA8Srgb
	RGBA8Uint
	BGRA8Unorm
	RGB10A2Unorm
	RG11B10Float
	RGBA16Float
	RGBA16Unorm
	RGBA32Float
	RGBA32Uint
	S8Uint
	D16Unorm
	D24UnormS8Uint
	D32Float
	D32FloatS8Uint
	BC1RGBAUnorm
	BC2Unorm
	BC3Unorm
	BC4Unorm
	BC4Snorm
	BC5Unorm
	BC7Unorm
	ASTC2D4x4Unorm
	ASTC2D5x5Unorm
	ASTC2D6x6Unorm
	ASTC2D8x8Unorm
	ASTC2D10x10Unorm
	ASTC2D12x12Unorm

	Count
)

type properties struct {
	name          string
	blockWidth    uint32
	blockHeight   uint32
	bytesPerBlock uint32
	depth         bool
	stencil       bool
	compressed    bool
	astc          bool
}

var table = [Count]properties{
	Invalid:          {"Invalid", 1, 1, 0, false, false, false, false},
	R8Unorm:          {"R8Unorm", 1, 1, 1, false, false, false, false},
	R8Uint:           {"R8Uint", 1, 1, 1, false, false, false, false},
	RG8Unorm:         {"RG8Unorm", 1, 1, 2, false, false, false, false},
	R16Unorm:         {"R16Unorm", 1, 1, 2, false, false, false, false},
	R16Float:         {"R16Float", 1, 1, 2, false, false, false, false},
	RG16Unorm:        {"RG16Unorm", 1, 1, 4, false, false, false, false},
	RG16Float:        {"RG16Float", 1, 1, 4, false, false, false, false},
	R32Float:         {"R32Float", 1, 1, 4, false, false, false, false},
	R32Uint:          {"R32Uint", 1, 1, 4, false, false, false, false},
	RG32Float:        {"RG32Float", 1, 1, 8, false, false, false, false},
	RGBA8Unorm:       {"RGBA8Unorm", 1, 1, 4, false, false, false, false},
	RGBA8Srgb:        {"RGBA8Srgb", 1, 1, 4, false, false, false, false},
	RGBA8Uint:        {"RGBA8Uint", 1, 1, 4, false, false, false, false},
	BGRA8Unorm:       {"BGRA8Unorm", 1, 1, 4, false, false, false, false},
	RGB10A2Unorm:     {"RGB10A2Unorm", 1, 1, 4, false, false, false, false},
	RG11B10Float:     {"RG11B10Float", 1, 1, 4, false, false, false, false},
	RGBA16Float:      {"RGBA16Float", 1, 1, 8, false, false, false, false},
	RGBA16Unorm:      {"RGBA16Unorm", 1, 1, 8, false, false, false, false},
	RGBA32Float:      {"RGBA32Float", 1, 1, 16, false, false, false, false},
	RGBA32Uint:       {"RGBA32Uint", 1, 1, 16, false, false, false, false},
	S8Uint:           {"S8Uint", 1, 1, 1, false, true, false, false},
	D16Unorm:         {"D16Unorm", 1, 1, 2, true, false, false, false},
	D24UnormS8Uint:   {"D24UnormS8Uint", 1, 1, 4, true, true, false, false},
	D32Float:         {"D32Float", 1, 1, 4, true, false, false, false},
	D32FloatS8Uint:   {"D32FloatS8Uint", 1, 1, 8, true, true, false, false},
	BC1RGBAUnorm:     {"BC1RGBAUnorm", 4, 4, 8, false, false, true, false},
	BC2Unorm:         {"BC2Unorm", 4, 4, 16, false, false, true, false},
	BC3Unorm:         {"BC3Unorm", 4, 4, 16, false, false, true, false},
	BC4Unorm:         {"BC4Unorm", 4, 4, 8, false, false, true, false},
	BC4Snorm:         {"BC4Snorm", 4, 4, 8, false, false, true, false},
	BC5Unorm:         {"BC5Unorm", 4, 4, 16, false, false, true, false},
	BC7Unorm:         {"BC7Unorm", 4, 4, 16, false, false, true, false},
	ASTC2D4x4Unorm:   {"ASTC2D4x4Unorm", 4, 4, 16, false, false, true, true},
	ASTC2D5x5Unorm:   {"ASTC2D5x5Unorm", 5, 5, 16, false, false, true, true},
	ASTC2D6x6Unorm:   {"ASTC2D6x6Unorm", 6, 6, 16, false, false, true, true},
	ASTC2D8x8Unorm:   {"ASTC2D8x8Unorm", 8, 8, 16, false, false, true, true},
	ASTC2D10x10Unorm: {"ASTC2D10x10Unorm", 10, 10, 16, false, false, true, true},
	ASTC2D12x12Unorm: {"ASTC2D12x12Unorm", 12, 12, 16, false, false, true, true},
}

func (f PixelFormat) props() properties {
	if f < 0 || f >= Count {
		return table[Invalid]
	}
	return table[f]
}

func (f PixelFormat) String() string { return f.props().name }

// BlockWidth returns the width in texels of one compression block.
func (f PixelFormat) BlockWidth() uint32 { return f.props().blockWidth }

// BlockHeight returns the height in texels of one compression block.
func (f PixelFormat) BlockHeight() uint32 { return f.props().blockHeight }

// BytesPerBlock returns the byte size of one block (one texel for
// uncompressed formats).
func (f PixelFormat) BytesPerBlock() uint32 { return f.props().bytesPerBlock }

// IsDepth reports whether the format carries a depth aspect.
func (f PixelFormat) IsDepth() bool { return f.props().depth }

// IsStencil reports whether the format carries a stencil aspect.
func (f PixelFormat) IsStencil() bool { return f.props().stencil }

// IsDepthStencil reports whether the format carries depth or stencil.
func (f PixelFormat) IsDepthStencil() bool {
	p := f.props()
	return p.depth || p.stencil
}

// IsCompressed reports whether the format is block compressed.
func (f PixelFormat) IsCompressed() bool { return f.props().compressed }

// IsASTC reports whether the format is an ASTC format.
func (f PixelFormat) IsASTC() bool { return f.props().astc }
