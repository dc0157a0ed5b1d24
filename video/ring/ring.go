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

// Package ring implements delayed destruction of resources.
//
// A resource pushed into the ring is destroyed Frames ticks later, which
// guarantees any in-flight GPU work referencing it has completed by the time
// the host object is released.
package ring

// Frames is the number of Tick calls a pushed value survives.
const Frames = 8

// Destructor is a ring of per-frame buckets. Push places a value in the
// current bucket; Tick advances the ring and destroys the bucket it lands
// on.
type Destructor[T any] struct {
	buckets [Frames][]T
	index   int
	destroy func(T)
}

// New returns a Destructor that calls destroy on each value when its frame
// comes around.
func New[T any](destroy func(T)) *Destructor[T] {
	return &Destructor[T]{destroy: destroy}
}

// Push defers destruction of value by Frames ticks.
func (d *Destructor[T]) Push(value T) {
	d.buckets[d.index] = append(d.buckets[d.index], value)
}

// Tick advances the ring by one frame, destroying the contents of the bucket
// that becomes current.
func (d *Destructor[T]) Tick() {
	d.index = (d.index + 1) % Frames
	bucket := d.buckets[d.index]
	d.buckets[d.index] = bucket[:0]
	for _, v := range bucket {
		d.destroy(v)
	}
}

// Drain destroys everything still queued, oldest bucket first. Used on
// shutdown.
func (d *Destructor[T]) Drain() {
	for i := 0; i < Frames; i++ {
		d.Tick()
	}
}

// Pending returns the number of values awaiting destruction.
func (d *Destructor[T]) Pending() int {
	n := 0
	for _, b := range d.buckets {
		n += len(b)
	}
	return n
}
