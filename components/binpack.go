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
	"math"
	"sort"
)

// catalogFile is the slice of a File Catalog record the Picker packs with.
type catalogFile struct {
	UUID string
	Size int64
}

// binCount computes how many bundles a file set of total size T should be
// split into for an ideal bundle size S. The count guarantees no bundle
// exceeds 1.2 S while keeping the count as small as possible, and never
// exceeds the number of files.
func binCount(totalSize, idealSize int64, fileCount int) int {
	t := float64(totalSize)
	s := float64(idealSize)
	bins := int(math.Max(math.Ceil(t/(s*1.2)), math.Round(t/s)))
	if bins < 1 {
		bins = 1
	}
	if bins > fileCount {
		bins = fileCount
	}
	return bins
}

// pack distributes files into bins. The pass is deterministic: files are
// sorted largest first (uuid breaks ties) and each lands in the currently
// least-loaded bin, so every replica computes the same bundles for the
// same catalog page set.
func pack(files []catalogFile, idealSize int64) [][]catalogFile {
	if len(files) == 0 {
		return nil
	}
	var totalSize int64
	for _, file := range files {
		totalSize += file.Size
	}
	bins := binCount(totalSize, idealSize, len(files))

	sorted := make([]catalogFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size > sorted[j].Size
		}
		return sorted[i].UUID < sorted[j].UUID
	})

	packed := make([][]catalogFile, bins)
	loads := make([]int64, bins)
	for _, file := range sorted {
		lightest := 0
		for i := 1; i < bins; i++ {
			if loads[i] < loads[lightest] {
				lightest = i
			}
		}
		packed[lightest] = append(packed[lightest], file)
		loads[lightest] += file.Size
	}
	return packed
}
