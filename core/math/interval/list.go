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

// Package interval implements algorithms over lists of disjoint half-open
// intervals, kept sorted by start address.
package interval

// List is the interface to an object that can be used as an interval list by
// the algorithms in this package.
type List interface {
	// Length returns the number of elements in the list.
	Length() int
	// GetSpan returns the span for the element at index in the list.
	GetSpan(index int) U64Span
}

// MutableList is a list that can be modified by the algorithms in this
// package.
type MutableList interface {
	List
	// SetSpan sets the span for the element at index in the list.
	SetSpan(index int, span U64Span)
	// New creates a new element at the specified index with the specified
	// span.
	New(index int, span U64Span)
	// Copy count list entries from from to to.
	Copy(to, from, count int)
	// Resize adjusts the length of the list.
	Resize(length int)
}

// Predicate is used as the condition for a Search.
type Predicate func(test U64Span) bool

// IndexOf returns the index of the span the value lies within, or -1 if the
// value is not contained in any span of the list.
func IndexOf(l List, value uint64) int {
	return findSpanFor(l, value)
}

// Contains reports whether value lies within any span of the list.
func Contains(l List, value uint64) bool {
	return findSpanFor(l, value) >= 0
}

// Search finds the first span in the list that satisfies the predicate, and
// returns its index. If no span matches, the list length is returned.
func Search(l List, t Predicate) int {
	return search(l, t)
}

// Merge adds a span to the list, merging it with existing spans it overlaps.
// If joinAdj is true, the span is also merged with spans it is immediately
// adjacent to. The index of the merged span is returned.
func Merge(l MutableList, span U64Span, joinAdj bool) int {
	return merge(l, span, joinAdj)
}

// Replace cuts a hole matching span out of any overlapping spans, and fills
// it with a new span. The index of the new span is returned.
func Replace(l MutableList, span U64Span) int {
	i, s := cut(l, span, true)
	l.SetSpan(i, s)
	return i
}

// Remove cuts a hole matching span out of any overlapping spans in the list.
// It returns the index at which the hole was made.
func Remove(l MutableList, span U64Span) int {
	i, _ := cut(l, span, false)
	return i
}

// Intersect returns the index of the first span intersecting span, and the
// count of spans it intersects.
func Intersect(l List, span U64Span) (first, count int) {
	s := intersection{}
	s.intersect(l, span, false)
	return s.lowIndex, s.overlap
}
