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
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/filecatalog"
	"github.com/WIPACrepo/lta/journal"
	"github.com/WIPACrepo/lta/ltadb"
)

// Locator maps a restore TransferRequest (source = archive site, dest =
// warehouse) into Bundles at located, one per archive that covers the
// requested path.
type Locator struct {
	base
	fc *filecatalog.Client
}

// NewLocator creates a Locator.
func NewLocator(conf *config.Config, db *ltadb.Client, fc *filecatalog.Client, journ *journal.Journal) (*Locator, error) {
	return &Locator{
		base: newBase("locator", conf, db, journ),
		fc:   fc,
	}, nil
}

func (locator *Locator) DoWorkClaim(ctx context.Context) (bool, error) {
	request, err := locator.db.PopTransferRequest(ctx, locator.conf.SourceSite, locator.conf.DestSite, locator.name)
	if err != nil {
		return false, err
	}
	if request == nil {
		return false, nil
	}
	slog.Info(fmt.Sprintf("%s claimed restore request %s (%s -> %s, %s)",
		locator.name, request.UUID, request.SourceSite, request.DestSite, request.Path))

	err = locator.locate(ctx, request)
	if err != nil {
		locator.quarantineRequest(ctx, request, err.Error())
	}
	return true, nil
}

// locate discovers which archives at the source site cover the requested
// path and enqueues one located Bundle per archive.
func (locator *Locator) locate(ctx context.Context, request *ltadb.TransferRequest) error {
	archivePaths, err := locator.coveringArchives(ctx, request)
	if err != nil {
		return err
	}
	if len(archivePaths) == 0 {
		return fmt.Errorf("File Catalog returned zero files for the TransferRequest")
	}

	bundleStatus := locator.outputStatus(ltadb.BundleStatusLocated)
	now := ltadb.Now()
	bundles := make([]ltadb.Bundle, 0, len(archivePaths))
	for _, archivePath := range archivePaths {
		archiveRecord, err := locator.archiveRecord(ctx, archivePath)
		if err != nil {
			return err
		}
		slog.Debug(fmt.Sprintf("%s located archive %s (originally bundle %s)",
			locator.name, archivePath, BundleUUIDFromArchivePath(archivePath)))
		bundles = append(bundles, ltadb.Bundle{
			Type:       "Bundle",
			Status:     bundleStatus,
			Reason:     "",
			Request:    request.UUID,
			SourceSite: request.SourceSite,
			DestSite:   request.DestSite,
			Path:       request.Path,
			Size:       archiveRecord.FileSize,
			BundlePath: archivePath,
			Checksum: &ltadb.Checksum{
				Adler32: archiveRecord.Checksum["adler32"],
				Sha512:  archiveRecord.Checksum["sha512"],
			},
			Catalog:               archiveRecord.Projected(),
			CreateTimestamp:       now,
			UpdateTimestamp:       now,
			WorkPriorityTimestamp: now,
		})
	}
	bundleUUIDs, err := locator.db.CreateBundles(ctx, bundles)
	if err != nil {
		return err
	}
	for _, bundleUUID := range bundleUUIDs {
		locator.record(journal.Record{
			BundleUUID: bundleUUID,
			FromStatus: request.Status,
			ToStatus:   bundleStatus,
		})
	}
	slog.Info(fmt.Sprintf("%s located %d archives for request %s", locator.name, len(bundleUUIDs), request.UUID))

	return locator.db.PatchTransferRequest(ctx, request.UUID, map[string]any{
		"status":           ltadb.RequestStatusSpecified,
		"claimed":          false,
		"claimant":         "",
		"reason":           "",
		"update_timestamp": ltadb.Now(),
	})
}

// coveringArchives reduces the archive locations of every file under the
// requested path to the sorted set of distinct archive container paths.
func (locator *Locator) coveringArchives(ctx context.Context, request *ltadb.TransferRequest) ([]string, error) {
	selector := map[string]any{
		"locations.archive": map[string]any{"$eq": true},
		"locations.site":    map[string]any{"$eq": request.SourceSite},
		"locations.path":    map[string]any{"$regex": "^" + request.Path},
	}
	keys := []string{"uuid", "logical_name", "locations"}
	pageSize := locator.conf.FileCatalogPageSize

	distinct := make(map[string]bool)
	start := 0
	for {
		page, err := locator.fc.Query(ctx, selector, keys, pageSize, start)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, record := range page {
			for _, location := range record.Locations {
				if !location.Archive || location.Site != request.SourceSite {
					continue
				}
				// archive locations read "<container path>:<logical name>"
				containerPath, _, _ := strings.Cut(location.Path, ":")
				distinct[containerPath] = true
			}
		}
		start += len(page)
	}

	archivePaths := make([]string, 0, len(distinct))
	for containerPath := range distinct {
		archivePaths = append(archivePaths, containerPath)
	}
	sort.Strings(archivePaths)
	return archivePaths, nil
}

// archiveRecord fetches the catalog record of the archive itself, which
// carries the container's size and checksums.
func (locator *Locator) archiveRecord(ctx context.Context, archivePath string) (*filecatalog.Record, error) {
	records, err := locator.fc.Query(ctx, map[string]any{
		"logical_name": map[string]any{"$eq": archivePath},
	}, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("archive %s is not itself cataloged", archivePath)
	}
	return &records[0], nil
}

// BundleUUIDFromArchivePath derives the bundle uuid an archive container
// was built from: the container's basename with its extension stripped.
func BundleUUIDFromArchivePath(archivePath string) string {
	basename := path.Base(archivePath)
	return strings.TrimSuffix(basename, path.Ext(basename))
}
