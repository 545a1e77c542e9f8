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

package transfer

import "fmt"

// indicates an attempt to register two drivers under one provider name
type AlreadyRegisteredError struct {
	Provider string
}

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("transfer provider '%s' is already registered", e.Provider)
}

// indicates that the configuration names a provider no driver registered
type UnknownProviderError struct {
	Provider string
}

func (e UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown transfer provider: '%s'", e.Provider)
}

// indicates a transfer reference that does not parse as <scheme>/<task id>
type BadReferenceError struct {
	Reference string
}

func (e BadReferenceError) Error() string {
	return fmt.Sprintf("malformed transfer reference: '%s'", e.Reference)
}

// indicates a task id the driver has no record of
type TaskNotFoundError struct {
	TaskID string
}

func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("no such transfer task: '%s'", e.TaskID)
}
