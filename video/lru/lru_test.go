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

package lru

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOldestFirst(t *testing.T) {
	tr := NewTracker[string]()
	ha := tr.Insert("a", 1)
	tr.Insert("b", 2)
	tr.Insert("c", 3)
	tr.Touch(ha, 4) // "a" becomes youngest

	var got []string
	tr.ForEachBelow(10, func(v string, h Handle) bool {
		got = append(got, v)
		tr.Free(h)
		return true
	})
	assert.Equal(t, []string{"b", "c", "a"}, got)
	assert.Equal(t, 0, tr.Count())
}

func TestThresholdStopsWalk(t *testing.T) {
	tr := NewTracker[int]()
	tr.Insert(1, 10)
	tr.Insert(2, 20)
	tr.Insert(3, 30)

	var got []int
	tr.ForEachBelow(20, func(v int, h Handle) bool {
		got = append(got, v)
		tr.Free(h)
		return true
	})
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 1, tr.Count())
}

func TestCallbackStop(t *testing.T) {
	tr := NewTracker[int]()
	tr.Insert(1, 1)
	tr.Insert(2, 2)

	calls := 0
	tr.ForEachBelow(10, func(int, Handle) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, tr.Count())
}

func TestHandleReuseAfterFree(t *testing.T) {
	tr := NewTracker[int]()
	h := tr.Insert(1, 1)
	tr.Free(h)
	assert.Panics(t, func() { tr.Touch(h, 2) })
	h2 := tr.Insert(2, 2)
	assert.Equal(t, h, h2)
}
