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

package ltadb

import (
	"errors"
	"fmt"
)

// indicates that the LTA DB answered a request with a non-2xx status
type RequestError struct {
	Method     string
	Resource   string
	StatusCode int
	Message    string
}

func (e RequestError) Error() string {
	return fmt.Sprintf("LTA DB: %s %s returned %d: %s", e.Method, e.Resource, e.StatusCode, e.Message)
}

// indicates that a conditional update failed because another worker now
// holds the claim on the record
type ClaimLostError struct {
	UUID     string
	Claimant string
}

func (e ClaimLostError) Error() string {
	return fmt.Sprintf("claim on record %s no longer held by %s", e.UUID, e.Claimant)
}

func asRequestError(err error, target **RequestError) bool {
	return errors.As(err, target)
}
