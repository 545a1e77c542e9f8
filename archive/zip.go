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
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Builder writes one ZIP64 container, store-only. Entries are streamed one
// file at a time to cap memory no matter how large the members are.
type Builder struct {
	file    *os.File
	zip     *zip.Writer
	entries int
}

// NewBuilder creates (or truncates) the container at the given path.
func NewBuilder(path string) (*Builder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Builder{file: file, zip: zip.NewWriter(file)}, nil
}

// AddFile streams the file at sourcePath into the container at entryPath.
// Entries carry no modification time so rebuilding a bundle from the same
// inputs yields byte-identical output.
func (builder *Builder) AddFile(sourcePath, entryPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer source.Close()
	// Method Store: the warehouse holds compressed physics data already,
	// and tape robots want predictable sizes
	entry, err := builder.zip.CreateHeader(&zip.FileHeader{
		Name:   entryPath,
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, source)
	if err != nil {
		return err
	}
	builder.entries++
	return nil
}

// Entries returns the number of entries written so far.
func (builder *Builder) Entries() int {
	return builder.entries
}

// Close finalizes the central directory and closes the container.
func (builder *Builder) Close() error {
	err := builder.zip.Close()
	if err != nil {
		builder.file.Close()
		return err
	}
	return builder.file.Close()
}

// EntryPath computes where a warehouse file lands inside the container:
// its logical name made relative to the transfer request's path.
func EntryPath(logicalName, requestPath string) (string, error) {
	relative, err := filepath.Rel(requestPath, logicalName)
	if err != nil {
		return "", err
	}
	if relative == ".." || strings.HasPrefix(relative, "../") {
		return "", &EntryEscapeError{LogicalName: logicalName, RequestPath: requestPath}
	}
	return relative, nil
}

// BuildZip builds the container for a bundle from its finished sidecar.
// The sidecar itself is the first entry, stored at its basename; member
// files follow in sidecar order at their relative entry paths. It returns
// the number of member files written.
func BuildZip(zipPath, manifestPath, requestPath string) (int, error) {
	manifest, err := OpenManifest(manifestPath)
	if err != nil {
		return 0, err
	}
	defer manifest.Close()

	builder, err := NewBuilder(zipPath)
	if err != nil {
		return 0, err
	}

	err = builder.AddFile(manifestPath, filepath.Base(manifestPath))
	if err != nil {
		builder.Close()
		return 0, err
	}

	members := 0
	for {
		record, err := manifest.Next()
		if err != nil {
			builder.Close()
			return members, err
		}
		if record == nil {
			break
		}
		logicalName, ok := record["logical_name"].(string)
		if !ok || logicalName == "" {
			builder.Close()
			return members, &ManifestError{Path: manifestPath, Message: "record without a logical_name"}
		}
		entryPath, err := EntryPath(logicalName, requestPath)
		if err != nil {
			builder.Close()
			return members, err
		}
		err = builder.AddFile(logicalName, entryPath)
		if err != nil {
			builder.Close()
			return members, err
		}
		members++
	}
	return members, builder.Close()
}
