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

// Package filecatalog provides a client for the File Catalog, the
// authoritative record of warehouse files and archived bundles.
package filecatalog

// Location is one place a cataloged file lives. Archive locations point at
// a member of a bundle and use the form "<bundle path>:<logical name>".
type Location struct {
	Site    string `json:"site"`
	Path    string `json:"path"`
	Archive bool   `json:"archive,omitempty"`
	HPSS    bool   `json:"hpss,omitempty"`
	Online  bool   `json:"online,omitempty"`
}

// Record is a File Catalog entry. Warehouse files and finished bundles are
// both cataloged with the same shape.
type Record struct {
	UUID           string            `json:"uuid,omitempty"`
	LogicalName    string            `json:"logical_name"`
	Checksum       map[string]string `json:"checksum,omitempty"`
	FileSize       int64             `json:"file_size"`
	MetaModifyDate string            `json:"meta_modify_date,omitempty"`
	Locations      []Location        `json:"locations,omitempty"`
}

// Projected returns the subset of a record that travels inside a bundle's
// metadata sidecar and in cherry-picked catalog sub-documents: just enough
// to restore and verify the file, nothing site-specific.
func (record Record) Projected() map[string]any {
	return map[string]any{
		"uuid":             record.UUID,
		"logical_name":     record.LogicalName,
		"checksum":         record.Checksum,
		"file_size":        record.FileSize,
		"meta_modify_date": record.MetaModifyDate,
	}
}
