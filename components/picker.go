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
	"strconv"

	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/filecatalog"
	"github.com/WIPACrepo/lta/journal"
	"github.com/WIPACrepo/lta/ltadb"
)

// Picker expands a TransferRequest at ethereal into size-balanced Bundles
// at specified, plus the Metadata rows linking each bundle to its files.
type Picker struct {
	base
	fc *filecatalog.Client
}

// NewPicker creates a Picker. It refuses a non-positive ideal bundle size
// up front rather than producing degenerate bundles later.
func NewPicker(conf *config.Config, db *ltadb.Client, fc *filecatalog.Client, journ *journal.Journal) (*Picker, error) {
	if conf.IdealBundleSize <= 0 {
		return nil, &config.InvalidValueError{
			Name:  "IDEAL_BUNDLE_SIZE",
			Value: strconv.FormatInt(conf.IdealBundleSize, 10),
		}
	}
	return &Picker{
		base: newBase("picker", conf, db, journ),
		fc:   fc,
	}, nil
}

func (picker *Picker) DoWorkClaim(ctx context.Context) (bool, error) {
	request, err := picker.db.PopTransferRequest(ctx, picker.conf.SourceSite, picker.conf.DestSite, picker.name)
	if err != nil {
		return false, err
	}
	if request == nil {
		return false, nil
	}
	slog.Info(fmt.Sprintf("%s claimed request %s (%s -> %s, %s)",
		picker.name, request.UUID, request.SourceSite, request.DestSite, request.Path))

	err = picker.expand(ctx, request)
	if err != nil {
		// partially created bundles are complete per bin and safe for the
		// Bundler; only the request itself goes to quarantine
		picker.quarantineRequest(ctx, request, err.Error())
	}
	return true, nil
}

// expand turns the request into bundles. Any error leaves already-created
// bundles in place and quarantines the request.
func (picker *Picker) expand(ctx context.Context, request *ltadb.TransferRequest) error {
	files, err := picker.catalogFiles(ctx, request)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("File Catalog returned zero files for the TransferRequest")
	}

	bins := pack(files, picker.conf.IdealBundleSize)
	slog.Info(fmt.Sprintf("%s packing %d files into %d bundles", picker.name, len(files), len(bins)))

	bundleStatus := picker.outputStatus(ltadb.BundleStatusSpecified)
	now := ltadb.Now()
	bundles := make([]ltadb.Bundle, len(bins))
	for i, bin := range bins {
		bundles[i] = ltadb.Bundle{
			Type:                  "Bundle",
			Status:                bundleStatus,
			Reason:                "",
			Request:               request.UUID,
			SourceSite:            request.SourceSite,
			DestSite:              request.DestSite,
			Path:                  request.Path,
			FileCount:             len(bin),
			CreateTimestamp:       now,
			UpdateTimestamp:       now,
			WorkPriorityTimestamp: now,
		}
	}
	bundleUUIDs, err := picker.db.CreateBundles(ctx, bundles)
	if err != nil {
		return err
	}
	if len(bundleUUIDs) != len(bins) {
		return fmt.Errorf("bulk_create returned %d bundles for %d bins", len(bundleUUIDs), len(bins))
	}

	for i, bin := range bins {
		fileUUIDs := make([]string, len(bin))
		for j, file := range bin {
			fileUUIDs[j] = file.UUID
		}
		count, err := picker.db.CreateMetadata(ctx, bundleUUIDs[i], fileUUIDs)
		if err != nil {
			return err
		}
		if count != len(bin) {
			return fmt.Errorf("bundle %s: created %d metadata rows for %d files", bundleUUIDs[i], count, len(bin))
		}
		picker.record(journal.Record{
			BundleUUID: bundleUUIDs[i],
			FromStatus: request.Status,
			ToStatus:   bundleStatus,
			NumFiles:   len(bin),
		})
	}

	return picker.db.PatchTransferRequest(ctx, request.UUID, map[string]any{
		"status":           ltadb.RequestStatusSpecified,
		"claimed":          false,
		"claimant":         "",
		"reason":           "",
		"update_timestamp": ltadb.Now(),
	})
}

// catalogFiles pages through the File Catalog for every file under the
// request's path at the source site.
func (picker *Picker) catalogFiles(ctx context.Context, request *ltadb.TransferRequest) ([]catalogFile, error) {
	selector := map[string]any{
		"locations.site": map[string]any{"$eq": request.SourceSite},
		"locations.path": map[string]any{"$regex": "^" + request.Path},
		"logical_name":   map[string]any{"$regex": "^" + request.Path},
	}
	keys := []string{"uuid", "file_size"}
	pageSize := picker.conf.FileCatalogPageSize

	var files []catalogFile
	start := 0
	for {
		page, err := picker.fc.Query(ctx, selector, keys, pageSize, start)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return files, nil
		}
		for _, record := range page {
			files = append(files, catalogFile{UUID: record.UUID, Size: record.FileSize})
		}
		// the final partial page still advances the offset by its own size
		start += len(page)
	}
}
