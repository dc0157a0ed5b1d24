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

// Package lru tracks least-recently-used resources by a monotonic tick.
//
// Ticks only grow, so moving a touched entry to the back of an intrusive
// list keeps the list sorted oldest-first without any searching.
package lru

import "fmt"

// Handle refers to a tracked entry.
type Handle int32

// NilHandle is the zero value of Handle and refers to no entry.
const NilHandle Handle = 0

const nilIndex int32 = -1

type node[T any] struct {
	value      T
	tick       uint64
	prev, next int32
	live       bool
}

// Tracker maintains (value, tick) pairs ordered by tick.
type Tracker[T any] struct {
	nodes []node[T]
	free  []int32
	head  int32
	tail  int32
}

// NewTracker returns an empty tracker.
func NewTracker[T any]() *Tracker[T] {
	return &Tracker[T]{
		// Index 0 is burned so that NilHandle is never a valid handle.
		nodes: make([]node[T], 1),
		head:  nilIndex,
		tail:  nilIndex,
	}
}

// Insert adds value with the given tick and returns a handle to it. tick
// must not be smaller than any tick previously given to the tracker.
func (t *Tracker[T]) Insert(value T, tick uint64) Handle {
	var i int32
	if n := len(t.free); n > 0 {
		i = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.nodes = append(t.nodes, node[T]{})
		i = int32(len(t.nodes) - 1)
	}
	t.nodes[i] = node[T]{value: value, tick: tick, prev: t.tail, next: nilIndex, live: true}
	if t.tail != nilIndex {
		t.nodes[t.tail].next = i
	} else {
		t.head = i
	}
	t.tail = i
	return Handle(i)
}

// Touch updates the tick of the entry at h, moving it to the young end.
func (t *Tracker[T]) Touch(h Handle, tick uint64) {
	i := t.index(h)
	t.unlink(i)
	t.nodes[i].tick = tick
	t.nodes[i].prev, t.nodes[i].next = t.tail, nilIndex
	if t.tail != nilIndex {
		t.nodes[t.tail].next = i
	} else {
		t.head = i
	}
	t.tail = i
}

// Free removes the entry at h.
func (t *Tracker[T]) Free(h Handle) {
	i := t.index(h)
	t.unlink(i)
	t.nodes[i] = node[T]{}
	t.free = append(t.free, i)
}

// ForEachBelow visits entries whose tick is not greater than threshold,
// oldest first. If f returns true the visited entry is expected to have been
// freed by f (eviction) and the walk continues; returning false stops the
// walk.
func (t *Tracker[T]) ForEachBelow(threshold uint64, f func(value T, h Handle) bool) {
	for i := t.head; i != nilIndex; {
		n := t.nodes[i]
		if !n.live || n.tick > threshold {
			return
		}
		if !f(n.value, Handle(i)) {
			return
		}
		i = n.next
	}
}

// Count returns the number of tracked entries.
func (t *Tracker[T]) Count() int {
	return len(t.nodes) - len(t.free) - 1
}

func (t *Tracker[T]) index(h Handle) int32 {
	i := int32(h)
	if i <= 0 || int(i) >= len(t.nodes) || !t.nodes[i].live {
		panic(fmt.Errorf("lru: invalid handle %d", h))
	}
	return i
}

func (t *Tracker[T]) unlink(i int32) {
	n := t.nodes[i]
	if n.prev != nilIndex {
		t.nodes[n.prev].next = n.next
	} else {
		t.head = n.next
	}
	if n.next != nilIndex {
		t.nodes[n.next].prev = n.prev
	} else {
		t.tail = n.prev
	}
}
