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

package archive

import "fmt"

// indicates a malformed or unreadable metadata sidecar
type ManifestError struct {
	Path    string
	Message string
}

func (e ManifestError) Error() string {
	return fmt.Sprintf("manifest %s: %s", e.Path, e.Message)
}

// indicates a member file whose logical name falls outside the transfer
// request's path
type EntryEscapeError struct {
	LogicalName string
	RequestPath string
}

func (e EntryEscapeError) Error() string {
	return fmt.Sprintf("file %s lies outside the request path %s", e.LogicalName, e.RequestPath)
}
