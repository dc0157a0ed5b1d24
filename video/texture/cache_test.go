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

package texture

import (
	"context"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentjhall/mizu-sub011/core/log"
	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/format"
	"github.com/kentjhall/mizu-sub011/video/mmu"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

const (
	testCPUBase = uint64(0x1000_0000)
	testGPUBase = uint64(0x8000_0000)
	testMemSize = uint64(32 << 20)
)

func newTestCache(t *testing.T, cfg Config, caps runtime.Caps) (context.Context, *Cache, *runtime.Soft, *mmu.SoftMMU, *engine.State) {
	ctx := log.Testing(t)
	m := mmu.NewSoftMMU(testCPUBase, testMemSize)
	require.NoError(t, m.Map(testGPUBase, testCPUBase, testMemSize))
	rt := runtime.NewSoft(caps)
	st := &engine.State{}
	c := New(ctx, rt, m, m.Host(), mmu.NopRasterizer{}, st, cfg)
	return ctx, c, rt, m, st
}

func fillPattern(dst []byte, seed byte) {
	for i := range dst {
		dst[i] = seed + byte(i)
	}
}

func linearTIC(gpuAddr uint64, w, h, pitch uint32) engine.TICEntry {
	return engine.TICEntry{
		Addr:   gpuAddr,
		Format: format.RGBA8Unorm,
		Type:   engine.TextureLinear,
		Width:  w,
		Height: h,
		Levels: 1,
		Linear: true,
		Pitch:  pitch,
	}
}

func TestLinearImageUpload(t *testing.T) {
	ctx, c, rt, m, _ := newTestCache(t, Config{}, runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000
	cpuAddr := testCPUBase + 0x10_0000

	info, ok := InfoFromTIC(linearTIC(gpuAddr, 8, 4, 32))
	require.True(t, ok)
	fillPattern(m.Pointer(cpuAddr, 128), 3)

	id := c.FindOrInsertImage(ctx, info, gpuAddr, 0)
	require.NotEqual(t, slot.Nil, id)
	c.PrepareImage(ctx, id, false, false)

	img := c.images.Get(id)
	assert.Equal(t, cpuAddr, img.CPUAddr())
	assert.False(t, img.HasFlag(FlagCPUModified))
	// Pitch equals the row width, so the host bytes match the guest bytes.
	assert.Equal(t, m.Pointer(cpuAddr, 128), rt.ImageData(img.Handle()))
	assert.Equal(t, 1, rt.ImageUploads)

	// A second prepare is a no-op.
	c.PrepareImage(ctx, id, false, false)
	assert.Equal(t, 1, rt.ImageUploads)
}

func TestFindOrInsertImageReuse(t *testing.T) {
	ctx, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000
	info, _ := InfoFromTIC(linearTIC(gpuAddr, 8, 4, 32))

	id1 := c.FindOrInsertImage(ctx, info, gpuAddr, 0)
	id2 := c.FindOrInsertImage(ctx, info, gpuAddr, 0)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, rt.ImagesCreated)
}

func TestFindOrInsertRelaxations(t *testing.T) {
	ctx, c, _, _, _ := newTestCache(t, Config{}, runtime.Caps{})

	tic := func(addr uint64) engine.TICEntry {
		return engine.TICEntry{
			Addr:   addr,
			Format: format.RGBA8Unorm,
			Type:   engine.Texture2D,
			Width:  64,
			Height: 64,
			Levels: 2,
		}
	}

	// Format reinterpretation of the same byte width.
	addrA := testGPUBase + 0x10_0000
	infoA, _ := InfoFromTIC(tic(addrA))
	idA := c.FindOrInsertImage(ctx, infoA, addrA, 0)
	bgra := infoA
	bgra.Format = format.BGRA8Unorm
	assert.NotEqual(t, idA, c.FindOrInsertImage(ctx, bgra, addrA, 0))
	assert.Equal(t, idA, c.FindOrInsertImage(ctx, infoA, addrA, RelaxFormat))

	// A smaller request resolves into the larger image under RelaxSize.
	addrB := testGPUBase + 0x20_0000
	infoB, _ := InfoFromTIC(tic(addrB))
	idB := c.FindOrInsertImage(ctx, infoB, addrB, 0)
	small := infoB
	small.Width, small.Height, small.Levels = 32, 32, 1
	assert.Equal(t, idB, c.FindOrInsertImage(ctx, small, addrB, RelaxSize))
	assert.NotEqual(t, idB, c.FindOrInsertImage(ctx, small, addrB, 0))

	// Sample count mismatch needs RelaxSamples.
	addrC := testGPUBase + 0x30_0000
	msaa, _ := InfoFromTIC(tic(addrC))
	msaa.Samples = 4
	idC := c.FindOrInsertImage(ctx, msaa, addrC, 0)
	single := msaa
	single.Samples = 1
	assert.Equal(t, idC, c.FindOrInsertImage(ctx, single, addrC, RelaxSamples))
	assert.NotEqual(t, idC, c.FindOrInsertImage(ctx, single, addrC, 0))
}

func TestAliasSyncPropagatesNewestWrite(t *testing.T) {
	ctx, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000

	infoA, _ := InfoFromTIC(linearTIC(gpuAddr, 8, 4, 32))
	infoB := infoA
	infoB.Format = format.BGRA8Unorm

	idA := c.FindOrInsertImage(ctx, infoA, gpuAddr, 0)
	idB := c.FindOrInsertImage(ctx, infoB, gpuAddr, 0)
	require.NotEqual(t, idA, idB)
	a, b := c.images.Get(idA), c.images.Get(idB)
	assert.True(t, a.HasFlag(FlagAlias))
	assert.True(t, b.HasFlag(FlagAlias))

	// A GPU write lands in A.
	c.PrepareImage(ctx, idA, true, false)
	fillPattern(rt.ImageData(a.Handle()), 0x40)

	// Using B pulls A's newer contents across the format reinterpretation.
	c.PrepareImage(ctx, idB, false, false)
	assert.Equal(t, 1, rt.EmulateCopyCalls)
	assert.Equal(t, rt.ImageData(a.Handle()), rt.ImageData(b.Handle()))
	assert.True(t, b.HasFlag(FlagGPUModified))

	// Nothing newer on either side; no further copies.
	c.PrepareImage(ctx, idA, false, false)
	c.PrepareImage(ctx, idB, false, false)
	assert.Equal(t, 1, rt.EmulateCopyCalls)
}

func TestFramebufferReuse(t *testing.T) {
	ctx, c, rt, _, st := newTestCache(t, Config{}, runtime.Caps{})
	st.RTControl = engine.RenderTargetControl{Count: 1}
	st.RenderTargets[0] = engine.RenderTarget{
		Addr:    testGPUBase + 0x10_0000,
		Width:   64,
		Height:  64,
		Format:  format.RGBA8Unorm,
		Samples: 1,
	}

	c.UpdateRenderTargets(ctx, false)
	fb1 := c.GetFramebuffer()
	require.NotZero(t, fb1)

	c.UpdateRenderTargets(ctx, false)
	fb2 := c.GetFramebuffer()
	assert.Equal(t, fb1, fb2)
	assert.Equal(t, 1, rt.FramebuffersCreated)
	assert.Equal(t, 1, rt.ImagesCreated)
}

func TestRenderTargetRoundTrip(t *testing.T) {
	ctx, c, rt, _, st := newTestCache(t, Config{}, runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000
	cpuAddr := testCPUBase + 0x10_0000
	st.RTControl = engine.RenderTargetControl{Count: 1}
	st.RenderTargets[0] = engine.RenderTarget{
		Addr:    gpuAddr,
		Width:   16,
		Height:  8,
		Format:  format.RGBA8Unorm,
		Samples: 1,
	}

	c.UpdateRenderTargets(ctx, false)
	info, ok := InfoFromRenderTarget(st.RenderTargets[0])
	require.True(t, ok)
	id := c.FindOrInsertImage(ctx, info, gpuAddr, 0)
	img := c.images.Get(id)
	require.True(t, img.HasFlag(FlagGPUModified))

	// Pretend the GPU rendered into the target, then flush it to the guest.
	fillPattern(rt.ImageData(img.Handle()), 0x90)
	want := append([]byte(nil), rt.ImageData(img.Handle())...)
	c.DownloadMemory(ctx, cpuAddr, img.GuestSizeBytes())
	assert.Equal(t, 1, rt.ImageDownloads)
	assert.False(t, img.HasFlag(FlagGPUModified))

	// Re-uploading the written-back bytes reproduces the host image, so the
	// block-linear writeback inverted the upload swizzle exactly.
	c.WriteMemory(ctx, cpuAddr, img.GuestSizeBytes())
	c.PrepareImage(ctx, id, false, false)
	assert.Equal(t, want, rt.ImageData(img.Handle()))
}

func TestDescriptorFillCachesResolution(t *testing.T) {
	ctx, c, rt, _, st := newTestCache(t, Config{}, runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000
	st.TICs = []engine.TICEntry{linearTIC(gpuAddr, 8, 4, 32)}

	c.SynchronizeGraphicsDescriptors(ctx)
	out := make([]runtime.ViewHandle, 1)
	c.FillGraphicsImageViews(ctx, []uint32{0}, out)
	require.NotZero(t, out[0])
	first := out[0]
	assert.Equal(t, 1, rt.ImagesCreated)

	// Same descriptors: the cached resolution is reused.
	c.SynchronizeGraphicsDescriptors(ctx)
	c.FillGraphicsImageViews(ctx, []uint32{0}, out)
	assert.Equal(t, first, out[0])
	assert.Equal(t, 1, rt.ImagesCreated)

	// A changed descriptor re-resolves.
	st.TICs[0] = linearTIC(gpuAddr+0x10_0000, 8, 4, 32)
	c.SynchronizeGraphicsDescriptors(ctx)
	c.FillGraphicsImageViews(ctx, []uint32{0}, out)
	require.NotZero(t, out[0])
	assert.NotEqual(t, first, out[0])
	assert.Equal(t, 2, rt.ImagesCreated)
}

func TestDegenerateDescriptorFillsNullView(t *testing.T) {
	ctx, c, _, _, st := newTestCache(t, Config{}, runtime.Caps{})
	st.TICs = []engine.TICEntry{{}} // zero descriptor

	c.SynchronizeGraphicsDescriptors(ctx)
	out := make([]runtime.ViewHandle, 1)
	c.FillGraphicsImageViews(ctx, []uint32{0}, out)
	assert.Zero(t, out[0])
}

func TestSamplerMemoization(t *testing.T) {
	_, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	base := engine.TSCEntry{
		WrapU:      engine.WrapRepeat,
		MagFilter:  engine.FilterLinear,
		Anisotropy: 1,
		MaxLOD:     14,
	}

	id1 := c.FindSampler(base)
	id2 := c.FindSampler(base)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, rt.SamplersCreated)

	other := base
	other.WrapU = engine.WrapClampEdge
	assert.NotEqual(t, id1, c.FindSampler(other))
	assert.Equal(t, 2, rt.SamplersCreated)
}

func TestSamplerSanitation(t *testing.T) {
	_, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	nan := math32.NaN()

	// Out-of-range anisotropy values clamp to the same sampler.
	a := engine.TSCEntry{Anisotropy: 20}
	b := engine.TSCEntry{Anisotropy: 1000}
	assert.Equal(t, c.FindSampler(a), c.FindSampler(b))
	assert.Equal(t, 1, rt.SamplersCreated)

	// NaN LODs sanitize to the defaults.
	nanLOD := engine.TSCEntry{Anisotropy: 16, MinLOD: nan, MaxLOD: nan}
	clean := engine.TSCEntry{Anisotropy: 16, MinLOD: 0, MaxLOD: maxLODRange}
	assert.Equal(t, c.FindSampler(clean), c.FindSampler(nanLOD))
}

func TestBorderColorSnapsWithoutCustomBorders(t *testing.T) {
	_, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	near := engine.TSCEntry{Anisotropy: 1, BorderColor: [4]float32{0.9, 0.95, 1, 1}}
	white := engine.TSCEntry{Anisotropy: 1, BorderColor: [4]float32{1, 1, 1, 1}}
	assert.Equal(t, c.FindSampler(white), c.FindSampler(near))
	assert.Equal(t, 1, rt.SamplersCreated)
}

func TestTryFindFramebufferImageView(t *testing.T) {
	ctx, c, _, _, st := newTestCache(t, Config{}, runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000
	cpuAddr := testCPUBase + 0x10_0000
	st.RTControl = engine.RenderTargetControl{Count: 1}
	st.RenderTargets[0] = engine.RenderTarget{
		Addr:    gpuAddr,
		Width:   64,
		Height:  64,
		Format:  format.RGBA8Unorm,
		Samples: 1,
	}
	c.UpdateRenderTargets(ctx, false)

	view, ok := c.TryFindFramebufferImageView(cpuAddr)
	assert.True(t, ok)
	assert.NotZero(t, view)

	_, ok = c.TryFindFramebufferImageView(cpuAddr + 0x40_0000)
	assert.False(t, ok)
}

func TestGarbageCollectionAgeFloor(t *testing.T) {
	ctx, c, rt, m, _ := newTestCache(t,
		Config{ExpectedMemory: 1024, CriticalMemory: 2048},
		runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000
	cpuAddr := testCPUBase + 0x10_0000

	info, _ := InfoFromTIC(linearTIC(gpuAddr, 8, 4, 32))
	id := c.FindOrInsertImage(ctx, info, gpuAddr, 0)
	other := c.FindOrInsertImage(ctx, info, gpuAddr+0x10_0000, 0)
	require.NotEqual(t, slot.Nil, other)

	// A GPU write that must survive eviction.
	c.PrepareImage(ctx, id, true, false)
	img := c.images.Get(id)
	fillPattern(rt.ImageData(img.Handle()), 0x55)
	want := append([]byte(nil), rt.ImageData(img.Handle())...)

	// Aggressive mode never evicts images younger than 60 ticks.
	for i := 0; i < 60; i++ {
		c.TickFrame(ctx)
	}
	assert.True(t, c.images.Live(id))
	assert.True(t, c.images.Live(other))

	c.TickFrame(ctx)
	assert.False(t, c.images.Live(id))
	assert.False(t, c.images.Live(other))
	// The modified image was written back before destruction.
	assert.Equal(t, 1, rt.ImageDownloads)
	assert.Equal(t, want, m.Pointer(cpuAddr, uint64(len(want))))

	// Host objects die when the destruction ring drains.
	for i := 0; i < 8; i++ {
		c.TickFrame(ctx)
	}
	assert.Equal(t, 2, rt.ImagesDestroyed)
}

func TestUnmapMemoryDropsImages(t *testing.T) {
	ctx, c, _, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000
	cpuAddr := testCPUBase + 0x10_0000

	info, _ := InfoFromTIC(linearTIC(gpuAddr, 8, 4, 32))
	id := c.FindOrInsertImage(ctx, info, gpuAddr, 0)
	require.NotEqual(t, slot.Nil, id)

	c.UnmapMemory(ctx, cpuAddr, 0x1000)
	assert.False(t, c.images.Live(id))
	assert.Zero(t, c.TotalUsedMemory())
}

func TestBlitResolvesMSAASource(t *testing.T) {
	ctx, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	src := engine.RenderTarget{
		Addr: testGPUBase + 0x10_0000, Width: 32, Height: 32,
		Format: format.RGBA8Unorm, Samples: 4,
	}
	dst := engine.RenderTarget{
		Addr: testGPUBase + 0x20_0000, Width: 32, Height: 32,
		Format: format.RGBA8Unorm, Samples: 1,
	}
	region := runtime.Region2D{X0: 0, Y0: 0, X1: 32, Y1: 32}
	c.BlitImage(ctx, dst, src, region, region, runtime.FilterLinear)
	assert.Equal(t, 1, rt.ResolveCalls)
	assert.Zero(t, rt.BlitCalls)
}

func TestBlitColorUsesFramebufferBlit(t *testing.T) {
	ctx, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	src := engine.RenderTarget{
		Addr: testGPUBase + 0x10_0000, Width: 32, Height: 32,
		Format: format.RGBA8Unorm, Samples: 1,
	}
	dst := engine.RenderTarget{
		Addr: testGPUBase + 0x20_0000, Width: 64, Height: 64,
		Format: format.RGBA8Unorm, Samples: 1,
	}
	c.BlitImage(ctx, dst, src,
		runtime.Region2D{X1: 64, Y1: 64}, runtime.Region2D{X1: 32, Y1: 32},
		runtime.FilterLinear)
	assert.Equal(t, 1, rt.BlitCalls)
	assert.Equal(t, 2, rt.FramebuffersCreated)

	// The same pair reuses both framebuffers.
	c.BlitImage(ctx, dst, src,
		runtime.Region2D{X1: 64, Y1: 64}, runtime.Region2D{X1: 32, Y1: 32},
		runtime.FilterLinear)
	assert.Equal(t, 2, rt.BlitCalls)
	assert.Equal(t, 2, rt.FramebuffersCreated)
}

func TestBlitDepthFallsBackToEmulatedCopy(t *testing.T) {
	ctx, c, rt, _, _ := newTestCache(t, Config{}, runtime.Caps{})
	src := engine.RenderTarget{
		Addr: testGPUBase + 0x10_0000, Width: 32, Height: 32,
		Format: format.D32Float, Samples: 1,
	}
	dst := engine.RenderTarget{
		Addr: testGPUBase + 0x20_0000, Width: 32, Height: 32,
		Format: format.D32Float, Samples: 1,
	}
	region := runtime.Region2D{X1: 32, Y1: 32}
	c.BlitImage(ctx, dst, src, region, region, runtime.FilterNearest)
	assert.Equal(t, 1, rt.EmulateCopyCalls)
	assert.Zero(t, rt.BlitCalls)
}

func TestASTCConvertedUpload(t *testing.T) {
	ctx, c, rt, m, _ := newTestCache(t, Config{}, runtime.Caps{})
	gpuAddr := testGPUBase + 0x10_0000
	cpuAddr := testCPUBase + 0x10_0000

	info, ok := InfoFromTIC(engine.TICEntry{
		Addr:   gpuAddr,
		Format: format.ASTC2D4x4Unorm,
		Type:   engine.TextureLinear,
		Width:  4,
		Height: 4,
		Levels: 1,
		Linear: true,
		Pitch:  16,
	})
	require.True(t, ok)

	// An LDR void-extent block decodes to one flat color.
	block := []byte{
		0xFC, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88,
	}
	copy(m.Pointer(cpuAddr, 16), block)

	id := c.FindOrInsertImage(ctx, info, gpuAddr, 0)
	img := c.images.Get(id)
	assert.True(t, img.HasFlag(FlagConverted))
	c.PrepareImage(ctx, id, false, false)

	data := rt.ImageData(img.Handle())
	require.Len(t, data, 4*4*4)
	for i := 0; i < len(data); i += 4 {
		assert.Equal(t, []byte{0x22, 0x44, 0x66, 0x88}, data[i:i+4])
	}
}

func TestASTCAcceleratedUpload(t *testing.T) {
	ctx, c, rt, _, _ := newTestCache(t,
		Config{AccelerateASTC: true},
		runtime.Caps{AcceleratedASTC: true})
	gpuAddr := testGPUBase + 0x10_0000

	info, ok := InfoFromTIC(engine.TICEntry{
		Addr:   gpuAddr,
		Format: format.ASTC2D4x4Unorm,
		Type:   engine.TextureLinear,
		Width:  4,
		Height: 4,
		Levels: 1,
		Linear: true,
		Pitch:  16,
	})
	require.True(t, ok)

	id := c.FindOrInsertImage(ctx, info, gpuAddr, 0)
	img := c.images.Get(id)
	assert.True(t, img.HasFlag(FlagAcceleratedUpload))
	assert.False(t, img.HasFlag(FlagConverted))
	c.PrepareImage(ctx, id, false, false)
	assert.Equal(t, 1, rt.ImageUploads)
}
