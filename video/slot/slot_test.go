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

package slot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertGetRemove(t *testing.T) {
	tbl := NewTable[string]()
	a := tbl.Insert("a")
	b := tbl.Insert("b")
	assert.NotEqual(t, Nil, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "a", *tbl.Get(a))
	assert.Equal(t, "b", *tbl.Get(b))
	assert.Equal(t, 2, tbl.Count())

	assert.Equal(t, "a", tbl.Remove(a))
	assert.Equal(t, 1, tbl.Count())
	assert.False(t, tbl.Live(a))
	assert.Panics(t, func() { tbl.Get(a) })
}

func TestParkedIDsAreNotReused(t *testing.T) {
	tbl := NewTable[int]()
	a := tbl.Insert(1)
	tbl.Remove(a)
	b := tbl.Insert(2)
	assert.NotEqual(t, a, b, "removed id handed out before Recycle")

	tbl.Recycle(a)
	c := tbl.Insert(3)
	assert.Equal(t, a, c, "recycled id not reused")
}

func TestForEachSkipsDeadAndSentinel(t *testing.T) {
	tbl := NewTable[int]()
	a := tbl.Insert(1)
	tbl.Insert(2)
	tbl.Remove(a)

	var got []int
	tbl.ForEach(func(_ ID, v *int) { got = append(got, *v) })
	assert.Equal(t, []int{2}, got)
}

func TestNullSentinel(t *testing.T) {
	tbl := NewTable[int]()
	assert.True(t, tbl.Live(Nil))
	assert.Panics(t, func() { tbl.Remove(Nil) })
}
