// Copyright (c) 2026 The IceCube Collaboration and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package worker provides the shared work loop every pipeline component
// runs inside: claim a record, process it, report liveness, repeat.
package worker

import "context"

// Component is one pipeline worker's claim-and-process logic. The work
// loop calls DoWorkClaim repeatedly; each call pops at most one record,
// processes it to completion (advance or quarantine), and reports whether
// a record was claimed.
type Component interface {
	// Type names the component kind ("picker", "bundler", ...).
	Type() string

	// Name names this replica ("<component-name>-<instance-uuid>"), used
	// as the claimant string.
	Name() string

	// DoWorkClaim pops and processes at most one record. It returns true
	// when a record was claimed, false when no work was available. Errors
	// cover failures outside any single record; per-record failures end in
	// quarantine and a nil error.
	DoWorkClaim(ctx context.Context) (bool, error)
}
