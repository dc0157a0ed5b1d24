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

package log

// Severity defines the dividing line between messages that are filtered out
// and messages that are handled.
type Severity int

const (
	// Debug is the severity of verbose development messages.
	Debug Severity = iota
	// Info is the severity of standard progress messages.
	Info
	// Warning is the severity of messages about unexpected but recoverable
	// conditions.
	Warning
	// Error is the severity of messages about failures.
	Error
	// Fatal is the severity of messages logged immediately before a panic.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "Debug"
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}
