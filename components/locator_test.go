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

package components

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/WIPACrepo/lta/filecatalog"
	"github.com/WIPACrepo/lta/ltadb"
)

// addArchivedFile catalogs a member file whose bytes live inside an
// archive container at the archive site.
func addArchivedFile(h *harness, site, containerPath, logicalName string) {
	h.catalog.AddRecord(filecatalog.Record{
		LogicalName: logicalName,
		FileSize:    100,
		Locations: []filecatalog.Location{{
			Site:    site,
			Path:    fmt.Sprintf("%s:%s", containerPath, logicalName),
			Archive: true,
		}},
	})
}

// addArchiveRecord catalogs the container itself.
func addArchiveRecord(h *harness, site, containerPath string, size int64) string {
	return h.catalog.AddRecord(filecatalog.Record{
		LogicalName: containerPath,
		FileSize:    size,
		Checksum: map[string]string{
			"adler32": "11e60398",
			"sha512":  strings.Repeat("b", 128),
		},
		Locations: []filecatalog.Location{{Site: site, Path: containerPath, Archive: true}},
	})
}

// tests the restore path: a request for an archived prefix becomes one
// located bundle per covering container, carrying the container's size,
// checksum, and catalog record
func TestLocatorCreatesLocatedBundles(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	h := startHarness(t)
	// restores run against the archive site, back toward the warehouse
	h.conf.SourceSite = "NERSC"
	h.conf.DestSite = "WIPAC"

	// two containers under the requested prefix, three member files
	containerOne := "/data/exp/foo/archives/b1.zip"
	containerTwo := "/data/exp/foo/archives/b2.zip"
	addArchivedFile(h, "NERSC", containerOne, "/data/exp/foo/file1.dat")
	addArchivedFile(h, "NERSC", containerOne, "/data/exp/foo/file2.dat")
	addArchivedFile(h, "NERSC", containerTwo, "/data/exp/foo/file3.dat")
	archiveOne := addArchiveRecord(h, "NERSC", containerOne, 5000)
	archiveTwo := addArchiveRecord(h, "NERSC", containerTwo, 7000)
	// an archive under a different prefix must not be located
	addArchivedFile(h, "NERSC", "/data/sim/bar/archives/b3.zip", "/data/sim/bar/file.dat")

	requestUUID := h.db.SeedTransferRequest(ltadb.TransferRequest{
		Status:     ltadb.RequestStatusEthereal,
		SourceSite: "NERSC",
		DestSite:   "WIPAC",
		Path:       "/data/exp/foo",
	})

	locator, err := NewLocator(h.conf, h.client, h.fc, nil)
	assert.Nil(err)
	processed, err := locator.DoWorkClaim(context.Background())
	assert.Nil(err)
	assert.True(processed)

	request := h.db.TransferRequest(requestUUID)
	assert.Equal(ltadb.RequestStatusSpecified, request.Status)
	assert.False(request.Claimed)

	bundles := h.db.Bundles()
	assert.Len(bundles, 2)
	byPath := make(map[string]ltadb.Bundle)
	for _, bundle := range bundles {
		assert.Equal(ltadb.BundleStatusLocated, bundle.Status)
		assert.Equal(requestUUID, bundle.Request)
		assert.Equal("NERSC", bundle.SourceSite)
		assert.Equal("WIPAC", bundle.DestSite)
		assert.NotNil(bundle.Checksum)
		assert.Len(bundle.Checksum.Sha512, 128)
		byPath[bundle.BundlePath] = bundle
	}
	assert.Equal(int64(5000), byPath[containerOne].Size)
	assert.Equal(archiveOne, byPath[containerOne].Catalog["uuid"])
	assert.Equal(int64(7000), byPath[containerTwo].Size)
	assert.Equal(archiveTwo, byPath[containerTwo].Catalog["uuid"])
}

// tests that a restore request covering no archives goes to quarantine
func TestLocatorQuarantinesEmptyRequest(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	h := startHarness(t)
	h.conf.SourceSite = "NERSC"
	h.conf.DestSite = "WIPAC"

	requestUUID := h.db.SeedTransferRequest(ltadb.TransferRequest{
		Status:     ltadb.RequestStatusEthereal,
		SourceSite: "NERSC",
		DestSite:   "WIPAC",
		Path:       "/data/exp/nothing",
	})

	locator, err := NewLocator(h.conf, h.client, h.fc, nil)
	assert.Nil(err)
	processed, err := locator.DoWorkClaim(context.Background())
	assert.Nil(err)
	assert.True(processed)

	request := h.db.TransferRequest(requestUUID)
	assert.Equal(ltadb.RequestStatusQuarantined, request.Status)
	assert.Contains(request.Reason, "zero files")
}

// tests deriving the original bundle uuid from an archive container path
func TestBundleUUIDFromArchivePath(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	assert.Equal("8abf2b8e-31b9-4092-b849-a6e8a1e5b51a",
		BundleUUIDFromArchivePath("/tape/archive/8abf2b8e-31b9-4092-b849-a6e8a1e5b51a.zip"))
	assert.Equal("plain", BundleUUIDFromArchivePath("plain.zip"))
}
