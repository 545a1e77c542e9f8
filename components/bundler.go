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
	"path/filepath"

	"github.com/frictionlessdata/datapackage-go/datapackage"

	"github.com/WIPACrepo/lta/archive"
	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/filecatalog"
	"github.com/WIPACrepo/lta/journal"
	"github.com/WIPACrepo/lta/ltadb"
	"github.com/WIPACrepo/lta/metrics"
)

// the Bundler pages Metadata rows from the LTA DB in chunks of this size
const metadataPageSize = 1000

// Bundler materializes a Bundle at specified into one ZIP64 container on
// the outbox filesystem and records its size and checksums.
type Bundler struct {
	base
	fc *filecatalog.Client
}

// NewBundler creates a Bundler. Workbox and outbox paths are required.
func NewBundler(conf *config.Config, db *ltadb.Client, fc *filecatalog.Client, journ *journal.Journal) (*Bundler, error) {
	if conf.WorkboxPath == "" {
		return nil, &config.MissingKeyError{Name: "BUNDLER_WORKBOX_PATH"}
	}
	if conf.OutboxPath == "" {
		return nil, &config.MissingKeyError{Name: "BUNDLER_OUTBOX_PATH"}
	}
	return &Bundler{
		base: newBase("bundler", conf, db, journ),
		fc:   fc,
	}, nil
}

func (bundler *Bundler) DoWorkClaim(ctx context.Context) (bool, error) {
	bundle, err := bundler.db.PopBundle(ctx, bundler.conf.SourceSite, bundler.conf.DestSite,
		bundler.inputStatus(ltadb.BundleStatusSpecified), bundler.name)
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}
	slog.Info(fmt.Sprintf("%s claimed bundle %s (%d files under %s)",
		bundler.name, bundle.UUID, bundle.FileCount, bundle.Path))

	err = bundler.build(ctx, bundle)
	if err != nil {
		// the sidecar and partial container stay behind for operator
		// inspection; a retry overwrites them
		bundler.settleBundle(ctx, bundle, err)
	}
	return true, nil
}

// build writes the sidecar, streams the container, checksums it, and moves
// it to the outbox.
func (bundler *Bundler) build(ctx context.Context, bundle *ltadb.Bundle) error {
	zipPath := filepath.Join(bundler.conf.WorkboxPath, bundle.UUID+".zip")
	manifestPath := filepath.Join(bundler.conf.WorkboxPath, bundle.UUID+".metadata.ndjson")

	// crash-recovery reset
	os.Remove(zipPath)
	os.Remove(manifestPath)

	err := bundler.writeManifest(ctx, bundle, manifestPath)
	if err != nil {
		return err
	}

	members, err := archive.BuildZip(zipPath, manifestPath, bundle.Path)
	if err != nil {
		return err
	}
	if members != bundle.FileCount {
		return fmt.Errorf("container holds %d files but the bundle specifies %d", members, bundle.FileCount)
	}

	adler, sha, err := archive.Checksums(zipPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(zipPath)
	if err != nil {
		return err
	}
	size := info.Size()

	// snapshot the payload for the journal before the sidecar can go away
	manifest := bundler.payloadManifest(bundle, manifestPath)

	finalPath := zipPath
	if bundler.conf.OutboxPath != bundler.conf.WorkboxPath {
		finalPath = filepath.Join(bundler.conf.OutboxPath, bundle.UUID+".zip")
		err = archive.MoveFile(zipPath, finalPath)
		if err != nil {
			return err
		}
		os.Remove(manifestPath)
	}

	metrics.BundleBytes.WithLabelValues(bundler.kind).Add(float64(size))
	slog.Info(fmt.Sprintf("%s built %s: %d files, %d bytes, sha512 %s...",
		bundler.name, finalPath, members, size, sha[:16]))

	bundle.Size = size
	return bundler.advanceBundleWithManifest(ctx, bundle, bundler.outputStatus(ltadb.BundleStatusCreated), map[string]any{
		"size": size,
		"checksum": map[string]string{
			"adler32": adler,
			"sha512":  sha,
		},
		"bundle_path": finalPath,
		"verified":    false,
	}, manifest)
}

// payloadManifest rereads the sidecar into a frictionless data package for
// the journal record. The package is advisory; a failure to build it only
// warns.
func (bundler *Bundler) payloadManifest(bundle *ltadb.Bundle, manifestPath string) *datapackage.Package {
	if bundler.journal == nil {
		return nil
	}
	reader, err := archive.OpenManifest(manifestPath)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s couldn't reread the sidecar for %s: %s",
			bundler.name, bundle.UUID, err.Error()))
		return nil
	}
	defer reader.Close()

	var members []map[string]any
	for {
		record, err := reader.Next()
		if err != nil {
			slog.Warn(fmt.Sprintf("%s couldn't reread the sidecar for %s: %s",
				bundler.name, bundle.UUID, err.Error()))
			return nil
		}
		if record == nil {
			break
		}
		members = append(members, record)
	}

	manifest, err := journal.NewManifest(bundle.UUID, members)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s couldn't build a payload manifest for %s: %s",
			bundler.name, bundle.UUID, err.Error()))
		return nil
	}
	return manifest
}

// writeManifest pages the bundle's Metadata rows, resolves each file
// against the File Catalog, and spills the projected records to the
// sidecar so the zip phase never holds them in memory.
func (bundler *Bundler) writeManifest(ctx context.Context, bundle *ltadb.Bundle, manifestPath string) error {
	manifest, err := archive.NewManifestWriter(manifestPath, archive.ManifestHeader{
		UUID:            bundle.UUID,
		Component:       "bundler",
		Version:         archive.ManifestVersion,
		CreateTimestamp: ltadb.Now(),
		FileCount:       bundle.FileCount,
	})
	if err != nil {
		return err
	}

	skip := 0
	for {
		rows, err := bundler.db.Metadata(ctx, bundle.UUID, metadataPageSize, skip)
		if err != nil {
			manifest.Close()
			return err
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			record, err := bundler.fc.Get(ctx, row.FileCatalogUUID)
			if err != nil {
				manifest.Close()
				return err
			}
			err = manifest.WriteRecord(record.Projected())
			if err != nil {
				manifest.Close()
				return err
			}
		}
		skip += len(rows)
	}

	if manifest.Records() != bundle.FileCount {
		manifest.Close()
		return fmt.Errorf("found %d metadata rows but the bundle specifies %d files",
			manifest.Records(), bundle.FileCount)
	}
	return manifest.Close()
}
