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

package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func span(s, e uint64) U64Span   { return U64Span{Start: s, End: e} }
func rng(f, c uint64) U64Range   { return U64Range{First: f, Count: c} }
func spans(s ...U64Span) U64SpanList {
	if s == nil {
		return U64SpanList{}
	}
	return s
}

func TestMerge(t *testing.T) {
	for _, test := range []struct {
		name     string
		list     U64SpanList
		with     U64Span
		joinAdj  bool
		expected U64SpanList
	}{
		{"empty", spans(), span(10, 20), false, spans(span(10, 20))},
		{"duplicate", spans(span(10, 20)), span(10, 20), false, spans(span(10, 20))},
		{"before", spans(span(10, 20)), span(0, 5), false, spans(span(0, 5), span(10, 20))},
		{"after", spans(span(10, 20)), span(30, 40), false, spans(span(10, 20), span(30, 40))},
		{"overlap low", spans(span(10, 20)), span(5, 15), false, spans(span(5, 20))},
		{"overlap high", spans(span(10, 20)), span(15, 25), false, spans(span(10, 25))},
		{"contained", spans(span(10, 20)), span(12, 18), false, spans(span(10, 20))},
		{"covering", spans(span(10, 20)), span(5, 25), false, spans(span(5, 25))},
		{"adjacent not joined", spans(span(10, 20)), span(20, 30), false, spans(span(10, 20), span(20, 30))},
		{"adjacent joined", spans(span(10, 20)), span(20, 30), true, spans(span(10, 30))},
		{"bridging", spans(span(0, 5), span(10, 15), span(20, 25)), span(4, 21), false, spans(span(0, 25))},
	} {
		t.Run(test.name, func(t *testing.T) {
			l := append(U64SpanList{}, test.list...)
			Merge(&l, test.with, test.joinAdj)
			assert.Equal(t, test.expected, l)
		})
	}
}

func TestRemove(t *testing.T) {
	for _, test := range []struct {
		name     string
		list     U64SpanList
		cut      U64Span
		expected U64SpanList
	}{
		{"empty", spans(), span(10, 20), spans()},
		{"miss", spans(span(10, 20)), span(30, 40), spans(span(10, 20))},
		{"exact", spans(span(10, 20)), span(10, 20), spans()},
		{"head", spans(span(10, 20)), span(10, 15), spans(span(15, 20))},
		{"tail", spans(span(10, 20)), span(15, 20), spans(span(10, 15))},
		{"hole", spans(span(10, 20)), span(13, 17), spans(span(10, 13), span(17, 20))},
		{"spanning", spans(span(0, 5), span(10, 15), span(20, 25)), span(3, 22), spans(span(0, 3), span(22, 25))},
	} {
		t.Run(test.name, func(t *testing.T) {
			l := append(U64SpanList{}, test.list...)
			Remove(&l, test.cut)
			assert.Equal(t, test.expected, l)
		})
	}
}

func TestIntersect(t *testing.T) {
	l := U64SpanList{span(10, 20), span(30, 40), span(50, 60)}
	for _, test := range []struct {
		name  string
		query U64Span
		first int
		count int
	}{
		{"before all", span(0, 10), 0, 0},
		{"first only", span(15, 25), 0, 1},
		{"gap", span(20, 30), 1, 0},
		{"middle two", span(35, 55), 1, 2},
		{"all", span(0, 100), 0, 3},
	} {
		t.Run(test.name, func(t *testing.T) {
			first, count := Intersect(&l, test.query)
			assert.Equal(t, test.first, first)
			assert.Equal(t, test.count, count)
		})
	}
}

func TestIndexOf(t *testing.T) {
	l := U64SpanList{span(10, 20), span(30, 40)}
	assert.Equal(t, -1, IndexOf(&l, 5))
	assert.Equal(t, 0, IndexOf(&l, 10))
	assert.Equal(t, 0, IndexOf(&l, 19))
	assert.Equal(t, -1, IndexOf(&l, 20))
	assert.Equal(t, 1, IndexOf(&l, 35))
	assert.Equal(t, -1, IndexOf(&l, 40))
}

func TestRangeListAddSub(t *testing.T) {
	l := U64RangeList{}
	l.Add(rng(0x1000, 0x400))
	l.Add(rng(0x1400, 0x400)) // adjacent, coalesces
	assert.Equal(t, U64RangeList{rng(0x1000, 0x800)}, l)

	l.Sub(rng(0x1200, 0x100))
	assert.Equal(t, U64RangeList{rng(0x1000, 0x200), rng(0x1300, 0x500)}, l)

	l.Sub(rng(0, 0x10000))
	assert.True(t, l.Empty())
}

func TestIterateIn(t *testing.T) {
	l := U64RangeList{rng(0, 0x100), rng(0x200, 0x100), rng(0x400, 0x100)}
	var got U64RangeList
	l.IterateIn(rng(0x80, 0x400), func(r U64Range) bool {
		got = append(got, r)
		return true
	})
	assert.Equal(t, U64RangeList{rng(0x80, 0x80), rng(0x200, 0x100), rng(0x400, 0x80)}, got)

	// Early stop.
	calls := 0
	l.IterateIn(rng(0, 0x1000), func(U64Range) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
}
