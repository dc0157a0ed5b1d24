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

package buffer

import "github.com/kentjhall/mizu-sub011/core/math/u64"

// bitmap tracks one bit per granule of a buffer's address space.
type bitmap []uint64

func newBitmap(granules uint64) bitmap {
	return make(bitmap, (granules+63)/64)
}

// bitMask covers n bits starting at bit. n may be 64 when bit is 0.
func bitMask(bit, n uint64) uint64 {
	return (uint64(1)<<n - 1) << bit
}

func (b bitmap) set(lo, hi uint64) {
	for lo < hi {
		w, bit := lo>>6, lo&63
		n := u64.Min(hi-lo, 64-bit)
		b[w] |= bitMask(bit, n)
		lo += n
	}
}

func (b bitmap) clear(lo, hi uint64) {
	for lo < hi {
		w, bit := lo>>6, lo&63
		n := u64.Min(hi-lo, 64-bit)
		b[w] &^= bitMask(bit, n)
		lo += n
	}
}

func (b bitmap) test(i uint64) bool {
	return b[i>>6]&(1<<(i&63)) != 0
}

func (b bitmap) any(lo, hi uint64) bool {
	for lo < hi {
		w, bit := lo>>6, lo&63
		n := u64.Min(hi-lo, 64-bit)
		if b[w]&bitMask(bit, n) != 0 {
			return true
		}
		lo += n
	}
	return false
}

// forEachRun calls f once per maximal run of set bits inside [lo, hi).
func (b bitmap) forEachRun(lo, hi uint64, f func(lo, hi uint64)) {
	run, inRun := uint64(0), false
	for i := lo; i <= hi; i++ {
		set := i < hi && b.test(i)
		if set && !inRun {
			run, inRun = i, true
		} else if !set && inRun {
			f(run, i)
			inRun = false
		}
	}
}

func (b bitmap) orFrom(o bitmap) {
	for i := range b {
		b[i] |= o[i]
	}
}

func (b bitmap) andNotFrom(o bitmap) {
	for i := range b {
		b[i] &^= o[i]
	}
}

func (b bitmap) clearAll() {
	for i := range b {
		b[i] = 0
	}
}

func (b bitmap) disjointWith(o bitmap) bool {
	for i := range b {
		if b[i]&o[i] != 0 {
			return false
		}
	}
	return true
}
