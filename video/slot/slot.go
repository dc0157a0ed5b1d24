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

// Package slot provides a densely packed pool of values addressed by stable
// ids.
//
// Id 0 is a null sentinel occupied at construction, so a zero-valued id can
// always be used to mean "no resource". Removal is split in two phases so
// callers can defer id reuse until any external references (typically
// in-flight GPU work) have drained: Remove kills the entry, Recycle returns
// the id to the free list.
package slot

import "fmt"

// ID identifies an entry in a Table. The zero ID is the null sentinel.
type ID uint32

// Nil is the id of the null sentinel entry.
const Nil ID = 0

type entry[T any] struct {
	value T
	live  bool
}

// Table is a pool of T addressed by ID.
type Table[T any] struct {
	entries []entry[T]
	free    []ID
	count   int
}

// NewTable returns a table holding only the null sentinel.
func NewTable[T any]() *Table[T] {
	return &Table[T]{entries: []entry[T]{{live: true}}}
}

// Insert adds value to the table and returns its id. Freed slots are reused
// before the table grows.
func (t *Table[T]) Insert(value T) ID {
	if n := len(t.free); n > 0 {
		id := t.free[n-1]
		t.free = t.free[:n-1]
		t.entries[id] = entry[T]{value: value, live: true}
		t.count++
		return id
	}
	t.entries = append(t.entries, entry[T]{value: value, live: true})
	t.count++
	return ID(len(t.entries) - 1)
}

// Get returns a pointer to the value stored at id. The pointer is stable
// until the entry is removed. Get panics if the entry is dead or the id out
// of range.
func (t *Table[T]) Get(id ID) *T {
	e := &t.entries[id]
	if !e.live {
		panic(fmt.Errorf("slot: access to dead id %d", id))
	}
	return &e.value
}

// Live reports whether id refers to a live entry.
func (t *Table[T]) Live(id ID) bool {
	return int(id) < len(t.entries) && t.entries[id].live
}

// Remove kills the entry at id and returns its value. The id is parked: it
// will not be handed out again until Recycle is called for it.
func (t *Table[T]) Remove(id ID) T {
	if id == Nil {
		panic(fmt.Errorf("slot: remove of null sentinel"))
	}
	e := &t.entries[id]
	if !e.live {
		panic(fmt.Errorf("slot: remove of dead id %d", id))
	}
	value := e.value
	var zero T
	e.value, e.live = zero, false
	t.count--
	return value
}

// Recycle returns a previously removed id to the free list.
func (t *Table[T]) Recycle(id ID) {
	if id == Nil || t.entries[id].live {
		panic(fmt.Errorf("slot: recycle of live id %d", id))
	}
	t.free = append(t.free, id)
}

// Count returns the number of live entries, not counting the sentinel.
func (t *Table[T]) Count() int { return t.count }

// ForEach calls f for every live entry other than the sentinel.
func (t *Table[T]) ForEach(f func(ID, *T)) {
	for i := 1; i < len(t.entries); i++ {
		if t.entries[i].live {
			f(ID(i), &t.entries[i].value)
		}
	}
}
