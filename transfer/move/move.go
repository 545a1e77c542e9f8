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

// Package move implements the transfer service over a shared filesystem.
// It exists for tests and for deployments where both sites mount the same
// storage; a "transfer" is a local copy.
package move

import (
	"context"

	"github.com/google/uuid"

	"github.com/WIPACrepo/lta/archive"
	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/transfer"
)

// Service satisfies the transfer.Service interface with local file copies.
// Copies happen synchronously at submission; the task table remembers the
// outcome so the poll path behaves like a real driver's.
type Service struct {
	tasks map[string]transfer.Status
}

// New creates a filesystem-copy transfer service.
func New(conf config.Transfer) (transfer.Service, error) {
	return &Service{tasks: make(map[string]transfer.Status)}, nil
}

func (service *Service) Scheme() string {
	return "move"
}

func (service *Service) TransferFile(ctx context.Context, sourcePath, destPath string) (string, error) {
	taskID := uuid.New().String()
	err := archive.CopyFile(sourcePath, destPath)
	if err != nil {
		service.tasks[taskID] = transfer.StatusFailed
		return taskID, nil
	}
	service.tasks[taskID] = transfer.StatusSucceeded
	return taskID, nil
}

func (service *Service) WaitForTransferToFinish(ctx context.Context, taskID string) (transfer.Status, error) {
	status, found := service.tasks[taskID]
	if !found {
		return transfer.StatusUnknown, &transfer.TaskNotFoundError{TaskID: taskID}
	}
	return status, nil
}

func (service *Service) RetrieveFile(ctx context.Context, remotePath, localPath string) error {
	return archive.CopyFile(remotePath, localPath)
}

func (service *Service) CancelTask(ctx context.Context, taskID string) error {
	// copies finish at submission; there is nothing to cancel
	return nil
}
