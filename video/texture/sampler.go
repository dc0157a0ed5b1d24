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
	"github.com/chewxy/math32"

	"github.com/kentjhall/mizu-sub011/video/engine"
	"github.com/kentjhall/mizu-sub011/video/runtime"
	"github.com/kentjhall/mizu-sub011/video/slot"
)

const (
	minAnisotropy = 1.0
	maxAnisotropy = 16.0
	maxLODRange   = 16.0
)

// FindSampler returns a host sampler for the TSC entry, memoized on the
// sanitized descriptor. Samplers are cheap and never collected.
func (c *Cache) FindSampler(tsc engine.TSCEntry) slot.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findSampler(tsc)
}

func (c *Cache) findSampler(tsc engine.TSCEntry) slot.ID {
	key := c.sanitizeTSC(tsc)
	if id, ok := c.samplerMemo[key]; ok {
		return id
	}
	handle := c.rt.CreateSampler(key)
	id := c.samplers.Insert(Sampler{handle: handle})
	c.samplers.Get(id).id = id
	c.samplerMemo[key] = id
	return id
}

// SamplerHandle resolves a sampler slot id to its host handle.
func (c *Cache) SamplerHandle(id slot.ID) runtime.SamplerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == slot.Nil || !c.samplers.Live(id) {
		return 0
	}
	return c.samplers.Get(id).handle
}

// sanitizeTSC normalizes garbage guest values before the descriptor is used
// as a memoization key: NaN LODs, out-of-range anisotropy and, on backends
// without custom border colors, non-standard borders.
func (c *Cache) sanitizeTSC(tsc engine.TSCEntry) engine.TSCEntry {
	if math32.IsNaN(tsc.Anisotropy) {
		tsc.Anisotropy = minAnisotropy
	}
	tsc.Anisotropy = math32.Max(minAnisotropy, math32.Min(maxAnisotropy, tsc.Anisotropy))
	if math32.IsNaN(tsc.LODBias) {
		tsc.LODBias = 0
	}
	if math32.IsNaN(tsc.MinLOD) {
		tsc.MinLOD = 0
	}
	if math32.IsNaN(tsc.MaxLOD) {
		tsc.MaxLOD = maxLODRange
	}
	tsc.MinLOD = math32.Max(0, math32.Min(maxLODRange, tsc.MinLOD))
	tsc.MaxLOD = math32.Max(tsc.MinLOD, math32.Min(maxLODRange, tsc.MaxLOD))
	if !c.caps.CustomBorderColors {
		tsc.BorderColor = snapBorderColor(tsc.BorderColor)
	}
	return tsc
}

// Standard border colors every backend can express.
var standardBorders = [3][4]float32{
	{0, 0, 0, 0}, // transparent black
	{0, 0, 0, 1}, // opaque black
	{1, 1, 1, 1}, // opaque white
}

// snapBorderColor picks the nearest standard border color.
func snapBorderColor(border [4]float32) [4]float32 {
	best, bestDist := standardBorders[0], math32.Inf(1)
	for _, std := range standardBorders {
		var d float32
		for i := 0; i < 4; i++ {
			diff := border[i] - std[i]
			d += diff * diff
		}
		if d < bestDist {
			best, bestDist = std, d
		}
	}
	return best
}
