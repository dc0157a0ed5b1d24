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

package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDestroyAfterFrames(t *testing.T) {
	var dead []int
	d := New(func(v int) { dead = append(dead, v) })
	d.Push(1)
	d.Push(2)

	for i := 0; i < Frames-1; i++ {
		d.Tick()
		assert.Empty(t, dead, "destroyed early at tick %d", i+1)
	}
	d.Tick()
	assert.Equal(t, []int{1, 2}, dead)
	assert.Equal(t, 0, d.Pending())
}

func TestStaggeredPushes(t *testing.T) {
	var dead []int
	d := New(func(v int) { dead = append(dead, v) })
	d.Push(1)
	d.Tick()
	d.Push(2)
	for i := 0; i < Frames-1; i++ {
		d.Tick()
	}
	assert.Equal(t, []int{1}, dead)
	d.Tick()
	assert.Equal(t, []int{1, 2}, dead)
}

func TestDrain(t *testing.T) {
	var dead []int
	d := New(func(v int) { dead = append(dead, v) })
	d.Push(1)
	d.Tick()
	d.Push(2)
	d.Drain()
	assert.ElementsMatch(t, []int{1, 2}, dead)
	assert.Equal(t, 0, d.Pending())
}
