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

// Package ltadb holds the record types stored in the LTA DB and a REST
// client for reading and writing them. The LTA DB is the single source of
// truth for pipeline state; every component reads and advances records
// through it and never talks to another component directly.
package ltadb

import (
	"time"
)

// TransferRequest statuses. A request is ethereal until the Picker (or the
// Locator, for restores) expands it into bundles.
const (
	RequestStatusEthereal    = "ethereal"
	RequestStatusSpecified   = "specified"
	RequestStatusQuarantined = "quarantined"
)

// Bundle statuses, in pipeline order. Located is an alternative entry point
// used when an archive already exists at the remote site and only needs to
// be moved back to the warehouse.
const (
	BundleStatusSpecified    = "specified"
	BundleStatusCreated      = "created"
	BundleStatusTransferring = "transferring"
	BundleStatusTaping       = "taping"
	BundleStatusCompleted    = "completed"
	BundleStatusDeleted      = "deleted"
	BundleStatusLocated      = "located"
	BundleStatusQuarantined  = "quarantined"
)

// TransferRequest is an operator's ask to archive the files under a logical
// path at a source site to a destination site. The Picker consumes it and
// emits Bundle records.
type TransferRequest struct {
	Type       string `json:"type"`
	UUID       string `json:"uuid"`
	Status     string `json:"status"`
	SourceSite string `json:"source"`
	DestSite   string `json:"dest"`
	Path       string `json:"path"`

	// claim bookkeeping
	Claimed  bool   `json:"claimed"`
	Claimant string `json:"claimant,omitempty"`

	// quarantine bookkeeping
	OriginalStatus string `json:"original_status,omitempty"`
	Reason         string `json:"reason,omitempty"`

	CreateTimestamp       string `json:"create_timestamp"`
	UpdateTimestamp       string `json:"update_timestamp"`
	WorkPriorityTimestamp string `json:"work_priority_timestamp"`
}

// Checksum carries the two digests computed over every archive: adler32 for
// cheap spot checks at the destination, sha512 as the integrity digest of
// record.
type Checksum struct {
	Adler32 string `json:"adler32,omitempty"`
	Sha512  string `json:"sha512"`
}

// Bundle is the unit of work that flows through the pipeline. A bundle is
// specified by the Picker, built by the Bundler, shipped by the Replicator,
// verified at the destination, cataloged, and finally cleaned up by the
// Deleter.
type Bundle struct {
	Type   string `json:"type"`
	UUID   string `json:"uuid"`
	Status string `json:"status"`

	// the transfer request this bundle was carved from
	Request    string `json:"request"`
	SourceSite string `json:"source"`
	DestSite   string `json:"dest"`
	Path       string `json:"path"`

	// claim bookkeeping
	Claimed  bool   `json:"claimed"`
	Claimant string `json:"claimant,omitempty"`

	// quarantine bookkeeping
	OriginalStatus string `json:"original_status,omitempty"`
	Reason         string `json:"reason,omitempty"`

	// filled in as the bundle advances
	FileCount         int            `json:"file_count,omitempty"`
	Size              int64          `json:"size,omitempty"`
	BundlePath        string         `json:"bundle_path,omitempty"`
	Checksum          *Checksum      `json:"checksum,omitempty"`
	TransferReference string         `json:"transfer_reference,omitempty"`
	Verified          bool           `json:"verified,omitempty"`
	Catalog           map[string]any `json:"catalog,omitempty"`

	CreateTimestamp       string `json:"create_timestamp"`
	UpdateTimestamp       string `json:"update_timestamp"`
	WorkPriorityTimestamp string `json:"work_priority_timestamp"`
}

// Metadata links one File Catalog record to the bundle that carries it.
// The Picker bulk-creates these; the Bundler and Deleter page through them.
type Metadata struct {
	UUID            string `json:"uuid"`
	BundleUUID      string `json:"bundle_uuid"`
	FileCatalogUUID string `json:"file_catalog_uuid"`
}

// valid forward transitions for bundles; quarantine is handled separately
// since it is reachable from any non-terminal status
var bundleTransitions = map[string][]string{
	BundleStatusSpecified:    {BundleStatusCreated},
	BundleStatusCreated:      {BundleStatusTransferring},
	BundleStatusLocated:      {BundleStatusTransferring},
	BundleStatusTransferring: {BundleStatusTaping},
	BundleStatusTaping:       {BundleStatusCompleted},
	BundleStatusCompleted:    {BundleStatusDeleted},
}

var requestTransitions = map[string][]string{
	RequestStatusEthereal: {RequestStatusSpecified},
}

// terminal statuses never leave via normal transitions
var bundleTerminal = map[string]bool{
	BundleStatusDeleted: true,
}

// ValidBundleTransition reports whether a bundle may move from one status
// to another. Entering quarantine is allowed from any non-terminal status,
// and a quarantined bundle may be reset to any non-quarantine status by an
// operator.
func ValidBundleTransition(from, to string) bool {
	if to == BundleStatusQuarantined {
		return from != BundleStatusQuarantined && !bundleTerminal[from]
	}
	if from == BundleStatusQuarantined {
		return true
	}
	for _, next := range bundleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidTransferRequestTransition reports whether a transfer request may
// move from one status to another.
func ValidTransferRequestTransition(from, to string) bool {
	if to == RequestStatusQuarantined {
		return from != RequestStatusQuarantined
	}
	if from == RequestStatusQuarantined {
		return true
	}
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Now returns the current UTC time in the second-resolution ISO 8601 form
// used for every timestamp stored in the LTA DB.
func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05")
}
