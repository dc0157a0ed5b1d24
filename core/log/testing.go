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

import (
	"context"
	"testing"
)

// Testing returns a context with a logger that writes to t. Fatal messages
// fail the test immediately.
func Testing(t *testing.T) context.Context {
	l := New(func(s Severity, tag, message string) {
		t.Helper()
		if tag != "" {
			message = "[" + tag + "] " + message
		}
		if s >= Fatal {
			t.Fatal(message)
			return
		}
		t.Log(s.String() + ": " + message)
	}, Debug)
	return l.Bind(context.Background())
}
