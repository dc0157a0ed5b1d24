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

package texture

// Default garbage collection thresholds.
const (
	DefaultExpectedMemory = 512 << 20
	DefaultCriticalMemory = 1024 << 20
)

// Config carries the texture cache options, captured at construction.
type Config struct {
	// AccelerateASTC prefers the runtime's compute decoder over CPU decode
	// for ASTC images, when the runtime advertises one.
	AccelerateASTC bool

	// ExpectedMemory and CriticalMemory are the garbage collection
	// thresholds. Zero selects the defaults.
	ExpectedMemory uint64
	CriticalMemory uint64
}

func (c Config) expectedMemory() uint64 {
	if c.ExpectedMemory == 0 {
		return DefaultExpectedMemory
	}
	return c.ExpectedMemory
}

func (c Config) criticalMemory() uint64 {
	if c.CriticalMemory == 0 {
		return DefaultCriticalMemory
	}
	return c.CriticalMemory
}
