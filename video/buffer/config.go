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

package buffer

// Accuracy selects how faithfully GPU writes are reflected back into guest
// memory.
type Accuracy int

const (
	AccuracyNormal Accuracy = iota
	AccuracyHigh
	AccuracyExtreme
)

// Default garbage collection thresholds in bytes.
const (
	DefaultExpectedMemory uint64 = 256 << 20
	DefaultCriticalMemory uint64 = 512 << 20
)

// Config carries the tunables the cache captures at construction. Accuracy
// may change at runtime, so it is a getter sampled on each use.
type Config struct {
	// Accuracy returns the current accuracy setting. nil means
	// AccuracyNormal.
	Accuracy func() Accuracy
	// AsyncGPUEmulation enables uncommitted range accounting the same way
	// AccuracyHigh does.
	AsyncGPUEmulation bool
	// DisableStreamLeap turns off the 16 MiB growth applied to hot
	// streaming buffers. Leaped buffers can crowd out other content under
	// memory pressure.
	DisableStreamLeap bool
	// ExpectedMemory and CriticalMemory are the garbage collection
	// thresholds. Zero selects the defaults.
	ExpectedMemory uint64
	CriticalMemory uint64
}

func (c Config) accuracy() Accuracy {
	if c.Accuracy == nil {
		return AccuracyNormal
	}
	return c.Accuracy()
}

func (c Config) trackUncommitted() bool {
	return c.AsyncGPUEmulation || c.accuracy() == AccuracyHigh
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
