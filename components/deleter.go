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
	"os"
	"strings"

	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/filecatalog"
	"github.com/WIPACrepo/lta/journal"
	"github.com/WIPACrepo/lta/ltadb"
)

// Deleter removes warehouse files whose Bundle reached completed, and
// retires their source-site locations in the File Catalog.
type Deleter struct {
	base
	fc *filecatalog.Client
}

// NewDeleter creates a Deleter.
func NewDeleter(conf *config.Config, db *ltadb.Client, fc *filecatalog.Client, journ *journal.Journal) (*Deleter, error) {
	return &Deleter{
		base: newBase("deleter", conf, db, journ),
		fc:   fc,
	}, nil
}

func (deleter *Deleter) DoWorkClaim(ctx context.Context) (bool, error) {
	bundle, err := deleter.db.PopBundle(ctx, deleter.conf.SourceSite, deleter.conf.DestSite,
		deleter.inputStatus(ltadb.BundleStatusCompleted), deleter.name)
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}
	slog.Info(fmt.Sprintf("%s claimed bundle %s", deleter.name, bundle.UUID))

	err = deleter.clean(ctx, bundle)
	if err != nil {
		deleter.settleBundle(ctx, bundle, err)
	}
	return true, nil
}

func (deleter *Deleter) clean(ctx context.Context, bundle *ltadb.Bundle) error {
	rows, err := deleter.db.AllMetadata(ctx, bundle.UUID, metadataPageSize)
	if err != nil {
		return err
	}

	// first pass: no file is touched until every member's archive presence
	// at the destination is confirmed
	members := make([]*filecatalog.Record, len(rows))
	for i, row := range rows {
		member, err := deleter.fc.Get(ctx, row.FileCatalogUUID)
		if err != nil {
			return err
		}
		if !archivedAt(member, bundle.DestSite) {
			return fmt.Errorf("file %s has no archive location at %s", member.LogicalName, bundle.DestSite)
		}
		members[i] = member
	}

	// deleting warehouse files is the one side effect nothing can undo;
	// re-confirm the lease right before doing it
	err = deleter.db.PatchBundleIfClaimed(ctx, bundle.UUID, deleter.name, map[string]any{
		"update_timestamp": ltadb.Now(),
	})
	if err != nil {
		return err
	}

	// second pass: unlink, collecting failures so the operator sees every
	// problem at once
	var failures []string
	for _, member := range members {
		err = os.Remove(member.LogicalName)
		if err != nil && !os.IsNotExist(err) {
			failures = append(failures, err.Error())
			continue
		}
		err = deleter.retireSourceLocations(ctx, member, bundle.SourceSite)
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d files could not be deleted: %s",
			len(failures), len(members), strings.Join(failures, "; "))
	}

	slog.Info(fmt.Sprintf("%s deleted %d warehouse files for bundle %s",
		deleter.name, len(members), bundle.UUID))
	return deleter.advanceBundle(ctx, bundle, deleter.outputStatus(ltadb.BundleStatusDeleted), nil)
}

// archivedAt reports whether a record carries an archive location at the
// given site.
func archivedAt(record *filecatalog.Record, site string) bool {
	for _, location := range record.Locations {
		if location.Site == site && location.Archive {
			return true
		}
	}
	return false
}

// retireSourceLocations drops the record's non-archive locations at the
// source site, leaving the archive locations as the record of where the
// bytes now live.
func (deleter *Deleter) retireSourceLocations(ctx context.Context, record *filecatalog.Record, site string) error {
	kept := make([]filecatalog.Location, 0, len(record.Locations))
	for _, location := range record.Locations {
		if location.Site == site && !location.Archive {
			continue
		}
		kept = append(kept, location)
	}
	if len(kept) == len(record.Locations) {
		return nil
	}
	return deleter.fc.Update(ctx, record.UUID, map[string]any{"locations": kept})
}
