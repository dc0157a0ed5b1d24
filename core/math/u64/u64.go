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

package u64

// Min returns the minimum value of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Max returns the maximum value of a and b.
func Max(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// AlignUp returns the result of aligning up the given value to the given
// alignment. alignment must be a power of two.
func AlignUp(value, alignment uint64) uint64 {
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown returns the result of aligning down the given value to the given
// alignment. alignment must be a power of two.
func AlignDown(value, alignment uint64) uint64 {
	return value &^ (alignment - 1)
}

// DivCeil returns value divided by divisor, rounded up.
func DivCeil(value, divisor uint64) uint64 {
	return (value + divisor - 1) / divisor
}

// NextPow2 returns the smallest power of two not less than value.
func NextPow2(value uint64) uint64 {
	if value == 0 {
		return 1
	}
	value--
	value |= value >> 1
	value |= value >> 2
	value |= value >> 4
	value |= value >> 8
	value |= value >> 16
	value |= value >> 32
	return value + 1
}
