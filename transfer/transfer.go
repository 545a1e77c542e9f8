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

// Package transfer defines the narrow interface the pipeline depends on for
// moving bundle bytes between sites, and a registry of driver
// implementations.
package transfer

import (
	"context"
)

// Status is the state of a submitted transfer task.
type Status int

const (
	StatusUnknown Status = iota
	StatusActive
	StatusInactive
	StatusSucceeded
	StatusFailed
)

func (status Status) String() string {
	switch status {
	case StatusActive:
		return "ACTIVE"
	case StatusInactive:
		return "INACTIVE"
	case StatusSucceeded:
		return "SUCCEEDED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the task has stopped moving bytes for good.
func (status Status) Terminal() bool {
	return status == StatusSucceeded || status == StatusFailed || status == StatusInactive
}

// Service moves bundle containers between sites. Implementations must not
// log credentials and must honor cancellation at every blocking call.
type Service interface {
	// Scheme names the driver, and prefixes task ids in transfer references
	// ("globus/abc-123").
	Scheme() string

	// TransferFile submits a transfer of the file at the absolute source
	// path to the given destination path and returns a driver task id
	// without waiting for completion.
	TransferFile(ctx context.Context, sourcePath, destPath string) (string, error)

	// WaitForTransferToFinish polls the task until it reaches a terminal
	// status or the context is done.
	WaitForTransferToFinish(ctx context.Context, taskID string) (Status, error)

	// RetrieveFile pulls a copy of the file at the destination-site path
	// back to a local path, for verification.
	RetrieveFile(ctx context.Context, remotePath, localPath string) error

	// CancelTask asks the driver to stop a task. Best effort; drivers may
	// not be able to honor it.
	CancelTask(ctx context.Context, taskID string) error
}
