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

package opengl

import (
	"github.com/go-gl/gl/v4.6-core/gl"

	"github.com/kentjhall/mizu-sub011/video/format"
)

// S3TC and ASTC enums come from extensions the core bindings do not carry.
const (
	glCompressedRGBAS3TCDXT1 = 0x83F1
	glCompressedRGBAS3TCDXT3 = 0x83F2
	glCompressedRGBAS3TCDXT5 = 0x83F3

	glCompressedRGBAASTC4x4   = 0x93B0
	glCompressedRGBAASTC5x5   = 0x93B2
	glCompressedRGBAASTC6x6   = 0x93B4
	glCompressedRGBAASTC8x8   = 0x93B7
	glCompressedRGBAASTC10x10 = 0x93BB
	glCompressedRGBAASTC12x12 = 0x93BD
)

type glFormat struct {
	internal   uint32
	format     uint32
	xtype      uint32
	compressed bool
}

var formatTable = map[format.PixelFormat]glFormat{
	format.R8Unorm:        {gl.R8, gl.RED, gl.UNSIGNED_BYTE, false},
	format.R8Uint:         {gl.R8UI, gl.RED_INTEGER, gl.UNSIGNED_BYTE, false},
	format.RG8Unorm:       {gl.RG8, gl.RG, gl.UNSIGNED_BYTE, false},
	format.R16Unorm:       {gl.R16, gl.RED, gl.UNSIGNED_SHORT, false},
	format.R16Float:       {gl.R16F, gl.RED, gl.HALF_FLOAT, false},
	format.RG16Unorm:      {gl.RG16, gl.RG, gl.UNSIGNED_SHORT, false},
	format.RG16Float:      {gl.RG16F, gl.RG, gl.HALF_FLOAT, false},
	format.R32Float:       {gl.R32F, gl.RED, gl.FLOAT, false},
	format.R32Uint:        {gl.R32UI, gl.RED_INTEGER, gl.UNSIGNED_INT, false},
	format.RG32Float:      {gl.RG32F, gl.RG, gl.FLOAT, false},
	format.RGBA8Unorm:     {gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE, false},
	format.RGBA8Srgb:      {gl.SRGB8_ALPHA8, gl.RGBA, gl.UNSIGNED_BYTE, false},
	format.RGBA8Uint:      {gl.RGBA8UI, gl.RGBA_INTEGER, gl.UNSIGNED_BYTE, false},
	format.BGRA8Unorm:     {gl.RGBA8, gl.BGRA, gl.UNSIGNED_BYTE, false},
	format.RGB10A2Unorm:   {gl.RGB10_A2, gl.RGBA, gl.UNSIGNED_INT_2_10_10_10_REV, false},
	format.RG11B10Float:   {gl.R11F_G11F_B10F, gl.RGB, gl.UNSIGNED_INT_10F_11F_11F_REV, false},
	format.RGBA16Float:    {gl.RGBA16F, gl.RGBA, gl.HALF_FLOAT, false},
	format.RGBA16Unorm:    {gl.RGBA16, gl.RGBA, gl.UNSIGNED_SHORT, false},
	format.RGBA32Float:    {gl.RGBA32F, gl.RGBA, gl.FLOAT, false},
	format.RGBA32Uint:     {gl.RGBA32UI, gl.RGBA_INTEGER, gl.UNSIGNED_INT, false},
	format.S8Uint:         {gl.STENCIL_INDEX8, gl.STENCIL_INDEX, gl.UNSIGNED_BYTE, false},
	format.D16Unorm:       {gl.DEPTH_COMPONENT16, gl.DEPTH_COMPONENT, gl.UNSIGNED_SHORT, false},
	format.D24UnormS8Uint: {gl.DEPTH24_STENCIL8, gl.DEPTH_STENCIL, gl.UNSIGNED_INT_24_8, false},
	format.D32Float:       {gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT, false},
	format.D32FloatS8Uint: {gl.DEPTH32F_STENCIL8, gl.DEPTH_STENCIL, gl.FLOAT_32_UNSIGNED_INT_24_8_REV, false},

	format.BC1RGBAUnorm: {glCompressedRGBAS3TCDXT1, 0, 0, true},
	format.BC2Unorm:     {glCompressedRGBAS3TCDXT3, 0, 0, true},
	format.BC3Unorm:     {glCompressedRGBAS3TCDXT5, 0, 0, true},
	format.BC4Unorm:     {gl.COMPRESSED_RED_RGTC1, 0, 0, true},
	format.BC4Snorm:     {gl.COMPRESSED_SIGNED_RED_RGTC1, 0, 0, true},
	format.BC5Unorm:     {gl.COMPRESSED_RG_RGTC2, 0, 0, true},
	format.BC7Unorm:     {gl.COMPRESSED_RGBA_BPTC_UNORM, 0, 0, true},

	format.ASTC2D4x4Unorm:   {glCompressedRGBAASTC4x4, 0, 0, true},
	format.ASTC2D5x5Unorm:   {glCompressedRGBAASTC5x5, 0, 0, true},
	format.ASTC2D6x6Unorm:   {glCompressedRGBAASTC6x6, 0, 0, true},
	format.ASTC2D8x8Unorm:   {glCompressedRGBAASTC8x8, 0, 0, true},
	format.ASTC2D10x10Unorm: {glCompressedRGBAASTC10x10, 0, 0, true},
	format.ASTC2D12x12Unorm: {glCompressedRGBAASTC12x12, 0, 0, true},
}

func lookupFormat(f format.PixelFormat) glFormat {
	if g, ok := formatTable[f]; ok {
		return g
	}
	// An unmapped format is a programming error upstream; allocate something
	// of the right byte width rather than crash the context.
	return glFormat{gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE, false}
}
