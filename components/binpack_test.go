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

package components

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// tests the bin count formula across its regimes
func TestBinCount(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	cases := []struct {
		totalSize int64
		idealSize int64
		fileCount int
		want      int
	}{
		{50, 100, 5, 1},     // far under one ideal bundle
		{200, 100, 50, 2},   // exact multiple
		{1000, 100, 50, 10}, // rounding dominates
		{130, 100, 10, 2},   // 1.3 S would overflow one bin; the 1.2 S ceiling forces two
		{1000, 100, 3, 3},   // never more bins than files
		{0, 100, 1, 1},      // degenerate: a single empty file
	}
	for _, c := range cases {
		assert.Equal(c.want, binCount(c.totalSize, c.idealSize, c.fileCount),
			fmt.Sprintf("binCount(%d, %d, %d)", c.totalSize, c.idealSize, c.fileCount))
	}
}

// tests that packing assigns every file exactly once and leaves no bin empty
func TestPackCoversAllFiles(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	files := []catalogFile{
		{UUID: "a", Size: 90},
		{UUID: "b", Size: 80},
		{UUID: "c", Size: 70},
		{UUID: "d", Size: 60},
		{UUID: "e", Size: 50},
		{UUID: "f", Size: 50},
	}
	bins := pack(files, 200)

	seen := make(map[string]int)
	for _, bin := range bins {
		assert.NotEmpty(bin)
		for _, file := range bin {
			seen[file.UUID]++
		}
	}
	assert.Equal(len(files), len(seen))
	for uuid, count := range seen {
		assert.Equal(1, count, uuid)
	}
}

// tests that packing is independent of input order, so every replica
// computes the same bundles from the same catalog pages
func TestPackDeterministic(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	forward := []catalogFile{
		{UUID: "a", Size: 300},
		{UUID: "b", Size: 200},
		{UUID: "c", Size: 200},
		{UUID: "d", Size: 100},
		{UUID: "e", Size: 50},
	}
	backward := make([]catalogFile, len(forward))
	for i, file := range forward {
		backward[len(forward)-1-i] = file
	}

	assert.Equal(pack(forward, 300), pack(backward, 300))
}

// tests that a file set with no bytes still lands in one bin per file cap
func TestPackEmptyInput(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	assert.Nil(pack(nil, 100))
}
