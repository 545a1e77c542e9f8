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

// Package archive builds and verifies the ZIP64 containers the pipeline
// ships to archival sites, along with their newline-delimited JSON
// metadata sidecars.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// current sidecar format version
const ManifestVersion = 3

// manifest lines can carry arbitrarily nested catalog metadata; this caps
// a single line at 16 MiB
const maxManifestLine = 16 * 1024 * 1024

// ManifestHeader is the first line of a metadata sidecar.
type ManifestHeader struct {
	UUID            string `json:"uuid"`
	Component       string `json:"component"`
	Version         int    `json:"version"`
	CreateTimestamp string `json:"create_timestamp"`
	FileCount       int    `json:"file_count"`
}

// ManifestWriter writes a metadata sidecar: one header line followed by one
// projected File Catalog record per member file. The sidecar doubles as the
// builder's spill file, so member records never need to be held in memory.
type ManifestWriter struct {
	file    *os.File
	writer  *bufio.Writer
	records int
}

// NewManifestWriter creates (or truncates) the sidecar at the given path
// and writes the header line.
func NewManifestWriter(path string, header ManifestHeader) (*ManifestWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	writer := &ManifestWriter{file: file, writer: bufio.NewWriter(file)}
	err = writer.writeLine(header)
	if err != nil {
		file.Close()
		return nil, err
	}
	return writer, nil
}

// WriteRecord appends one member file's projected catalog record.
func (manifest *ManifestWriter) WriteRecord(record map[string]any) error {
	err := manifest.writeLine(record)
	if err != nil {
		return err
	}
	manifest.records++
	return nil
}

// Records returns the number of member records written so far.
func (manifest *ManifestWriter) Records() int {
	return manifest.records
}

// Close flushes and closes the sidecar.
func (manifest *ManifestWriter) Close() error {
	err := manifest.writer.Flush()
	if err != nil {
		manifest.file.Close()
		return err
	}
	return manifest.file.Close()
}

func (manifest *ManifestWriter) writeLine(line any) error {
	encoded, err := json.Marshal(line)
	if err != nil {
		return err
	}
	_, err = manifest.writer.Write(encoded)
	if err != nil {
		return err
	}
	return manifest.writer.WriteByte('\n')
}

// ManifestReader reads a metadata sidecar back, header first, then one
// record per call to Next.
type ManifestReader struct {
	file    *os.File
	scanner *bufio.Scanner
	header  ManifestHeader
}

// OpenManifest opens a sidecar and parses its header line.
func OpenManifest(path string) (*ManifestReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxManifestLine)
	if !scanner.Scan() {
		file.Close()
		return nil, &ManifestError{Path: path, Message: "missing header line"}
	}
	var header ManifestHeader
	err = json.Unmarshal(scanner.Bytes(), &header)
	if err != nil {
		file.Close()
		return nil, &ManifestError{Path: path, Message: fmt.Sprintf("unparseable header: %s", err.Error())}
	}
	if header.Version != ManifestVersion {
		file.Close()
		return nil, &ManifestError{Path: path, Message: fmt.Sprintf("unsupported version %d", header.Version)}
	}
	return &ManifestReader{file: file, scanner: scanner, header: header}, nil
}

// Header returns the sidecar's header line.
func (manifest *ManifestReader) Header() ManifestHeader {
	return manifest.header
}

// Next returns the next member record, or nil at end of file.
func (manifest *ManifestReader) Next() (map[string]any, error) {
	if !manifest.scanner.Scan() {
		err := manifest.scanner.Err()
		if err != nil {
			return nil, err
		}
		return nil, nil
	}
	var record map[string]any
	err := json.Unmarshal(manifest.scanner.Bytes(), &record)
	if err != nil {
		return nil, &ManifestError{Path: manifest.file.Name(), Message: fmt.Sprintf("unparseable record: %s", err.Error())}
	}
	return record, nil
}

// Close closes the sidecar.
func (manifest *ManifestReader) Close() error {
	return manifest.file.Close()
}
