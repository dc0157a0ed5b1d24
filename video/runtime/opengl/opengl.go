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

// Package opengl is the OpenGL host backend.
//
// It targets GL 4.5 level hardware and uses direct state access throughout,
// so no method disturbs the bound-object state a renderer layered on top of
// the caches may be relying on. The caller must make a GL context current on
// the calling goroutine before New and keep every method on that goroutine.
package opengl

import (
	"context"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/pkg/errors"

	"github.com/kentjhall/mizu-sub011/core/log"
	"github.com/kentjhall/mizu-sub011/video/runtime"
)

// Backend implements runtime.Runtime on an OpenGL context.
type Backend struct {
	ctx  context.Context
	caps runtime.Caps

	images map[runtime.ImageHandle]imageMeta
	views  map[runtime.ViewHandle]viewMeta

	upload   *stagingRing
	download *stagingRing
	scratch  []byte

	// Scratch framebuffers for resolves.
	resolveRead uint32
	resolveDraw uint32

	// Texture buffer objects, one per binding slot, respecified on bind.
	texBuffers map[texBufferKey]uint32

	hasMinMaxFilter bool
	storageWritten  bool
}

var _ runtime.Runtime = (*Backend)(nil)

// New initializes the GL function pointers and builds a backend over the
// current context.
func New(ctx context.Context) (*Backend, error) {
	if err := gl.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing OpenGL")
	}
	ctx = log.Tag(ctx, "opengl")

	ext := extensionSet()
	b := &Backend{
		ctx:    ctx,
		images: make(map[runtime.ImageHandle]imageMeta),
		views:  make(map[runtime.ViewHandle]viewMeta),
		caps: runtime.Caps{
			PersistentMappedStaging:   true,
			PersistentUniformBindings: true,
			DepthStencilBlit:          true,
			NativeASTC:                ext["GL_KHR_texture_compression_astc_ldr"],
			NativeBCn:                 ext["GL_EXT_texture_compression_s3tc"],
			CustomBorderColors:        true,
		},
		texBuffers:      make(map[texBufferKey]uint32),
		hasMinMaxFilter: ext["GL_ARB_texture_filter_minmax"],
	}

	// Staging layouts are tightly packed.
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)

	b.upload = newStagingRing(uploadStagingSize, gl.MAP_WRITE_BIT)
	b.download = newStagingRing(downloadStagingSize, gl.MAP_READ_BIT)
	gl.CreateFramebuffers(1, &b.resolveRead)
	gl.CreateFramebuffers(1, &b.resolveDraw)

	log.I(ctx, "vendor: %s", gl.GoStr(gl.GetString(gl.VENDOR)))
	log.I(ctx, "renderer: %s", gl.GoStr(gl.GetString(gl.RENDERER)))
	log.I(ctx, "version: %s", gl.GoStr(gl.GetString(gl.VERSION)))
	return b, nil
}

// Caps implements runtime.Runtime.
func (b *Backend) Caps() runtime.Caps { return b.caps }

// Finish implements runtime.Runtime.
func (b *Backend) Finish() {
	b.barrierIfWritten()
	gl.Finish()
}

// TickFrame implements runtime.Runtime.
func (b *Backend) TickFrame() {
	b.barrierIfWritten()
	b.upload.tickFrame()
	b.download.tickFrame()
}

// Destroy releases every GL object the backend owns. The caches must have
// been torn down first.
func (b *Backend) Destroy() {
	b.upload.destroy()
	b.download.destroy()
	gl.DeleteFramebuffers(1, &b.resolveRead)
	gl.DeleteFramebuffers(1, &b.resolveDraw)
	for _, tex := range b.texBuffers {
		t := tex
		gl.DeleteTextures(1, &t)
	}
	clear(b.texBuffers)
}

func (b *Backend) barrierIfWritten() {
	if b.storageWritten {
		gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT)
		b.storageWritten = false
	}
}

func extensionSet() map[string]bool {
	var n int32
	gl.GetIntegerv(gl.NUM_EXTENSIONS, &n)
	ext := make(map[string]bool, n)
	for i := int32(0); i < n; i++ {
		ext[gl.GoStr(gl.GetStringi(gl.EXTENSIONS, uint32(i)))] = true
	}
	return ext
}
