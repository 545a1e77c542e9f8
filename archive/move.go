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

import (
	"io"
	"os"
	"path/filepath"
)

// MoveFile moves a finished container from the workbox to the outbox.
// Rename is atomic on a shared filesystem; when the outbox lives on a
// different filesystem the move degrades to copy-then-rename so a reader
// never observes a half-written container at the final path.
func MoveFile(sourcePath, destPath string) error {
	err := os.Rename(sourcePath, destPath)
	if err == nil {
		return nil
	}
	// cross-device: copy to a partial file beside the destination, then
	// rename into place
	partial := destPath + ".part"
	err = copyFile(sourcePath, partial)
	if err != nil {
		os.Remove(partial)
		return err
	}
	err = os.Rename(partial, destPath)
	if err != nil {
		os.Remove(partial)
		return err
	}
	return os.Remove(sourcePath)
}

// CopyFile copies a file, creating any missing parent directories.
func CopyFile(sourcePath, destPath string) error {
	err := os.MkdirAll(filepath.Dir(destPath), 0o755)
	if err != nil {
		return err
	}
	return copyFile(sourcePath, destPath)
}

func copyFile(sourcePath, destPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer source.Close()
	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(dest, source)
	if err != nil {
		dest.Close()
		return err
	}
	err = dest.Sync()
	if err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
