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
	"path/filepath"

	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/filecatalog"
	"github.com/WIPACrepo/lta/journal"
	"github.com/WIPACrepo/lta/ltadb"
)

// Cataloger records an archived bundle and its constituents in the File
// Catalog at the destination site, then marks the bundle completed.
type Cataloger struct {
	base
	fc *filecatalog.Client
}

// NewCataloger creates a Cataloger. The tape base path names where the
// destination site parks archives long-term.
func NewCataloger(conf *config.Config, db *ltadb.Client, fc *filecatalog.Client, journ *journal.Journal) (*Cataloger, error) {
	if conf.TapeBasePath == "" {
		return nil, &config.MissingKeyError{Name: "TAPE_BASE_PATH"}
	}
	return &Cataloger{
		base: newBase("cataloger", conf, db, journ),
		fc:   fc,
	}, nil
}

func (cataloger *Cataloger) DoWorkClaim(ctx context.Context) (bool, error) {
	bundle, err := cataloger.db.PopBundle(ctx, cataloger.conf.SourceSite, cataloger.conf.DestSite,
		cataloger.inputStatus(ltadb.BundleStatusTaping), cataloger.name)
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}
	slog.Info(fmt.Sprintf("%s claimed bundle %s", cataloger.name, bundle.UUID))

	err = cataloger.catalog(ctx, bundle)
	if err != nil {
		cataloger.settleBundle(ctx, bundle, err)
	}
	return true, nil
}

// catalog registers the archive and every member file's archive location,
// and stores a cherry-picked catalog document on the bundle.
func (cataloger *Cataloger) catalog(ctx context.Context, bundle *ltadb.Bundle) error {
	if bundle.Checksum == nil || bundle.Checksum.Sha512 == "" {
		return fmt.Errorf("bundle carries no checksum to catalog")
	}
	archivePath := path.Join(cataloger.conf.TapeBasePath, filepath.Base(bundle.BundlePath))

	archiveRecord, err := cataloger.ensureArchiveRecord(ctx, bundle, archivePath)
	if err != nil {
		return err
	}

	// every member file gains an archive location pointing into the
	// container: "<archive path>:<logical name>"
	rows, err := cataloger.db.AllMetadata(ctx, bundle.UUID, metadataPageSize)
	if err != nil {
		return err
	}
	for _, row := range rows {
		member, err := cataloger.fc.Get(ctx, row.FileCatalogUUID)
		if err != nil {
			return err
		}
		err = cataloger.fc.AddLocation(ctx, member.UUID, []filecatalog.Location{{
			Site:    bundle.DestSite,
			Path:    fmt.Sprintf("%s:%s", archivePath, member.LogicalName),
			Archive: true,
		}})
		if err != nil {
			return err
		}
	}

	slog.Info(fmt.Sprintf("%s cataloged bundle %s as %s (%d members)",
		cataloger.name, bundle.UUID, archivePath, len(rows)))
	return cataloger.advanceBundle(ctx, bundle, cataloger.outputStatus(ltadb.BundleStatusCompleted), map[string]any{
		"catalog": archiveRecord.Projected(),
	})
}

// ensureArchiveRecord finds or creates the File Catalog record for the
// archive itself at the destination site. Retries after a partial failure
// find the existing record instead of erroring on the duplicate.
func (cataloger *Cataloger) ensureArchiveRecord(ctx context.Context, bundle *ltadb.Bundle, archivePath string) (*filecatalog.Record, error) {
	existing, err := cataloger.fc.Query(ctx, map[string]any{
		"logical_name": map[string]any{"$eq": archivePath},
	}, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	record := filecatalog.Record{
		LogicalName: archivePath,
		Checksum: map[string]string{
			"adler32": bundle.Checksum.Adler32,
			"sha512":  bundle.Checksum.Sha512,
		},
		FileSize:       bundle.Size,
		MetaModifyDate: ltadb.Now(),
		Locations: []filecatalog.Location{{
			Site:    bundle.DestSite,
			Path:    archivePath,
			Archive: true,
			HPSS:    true,
			Online:  false,
		}},
	}
	uuid, err := cataloger.fc.Create(ctx, record)
	if err != nil {
		return nil, err
	}
	record.UUID = uuid
	return &record, nil
}
