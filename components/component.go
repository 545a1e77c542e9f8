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

// Package components implements the pipeline's worker components. Each one
// claims records from the LTA DB, advances them one status, and quarantines
// the ones it cannot advance.
package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/google/uuid"

	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/journal"
	"github.com/WIPACrepo/lta/ltadb"
	"github.com/WIPACrepo/lta/metrics"
)

// base carries what every component needs: its identity, its configuration,
// the LTA DB client, and an optional local journal.
type base struct {
	kind    string
	name    string
	conf    *config.Config
	db      *ltadb.Client
	journal *journal.Journal
}

func newBase(kind string, conf *config.Config, db *ltadb.Client, journ *journal.Journal) base {
	componentName := conf.ComponentName
	if componentName == "" {
		componentName = kind
	}
	return base{
		kind:    kind,
		name:    fmt.Sprintf("%s-%s", componentName, uuid.New().String()),
		conf:    conf,
		db:      db,
		journal: journ,
	}
}

func (component *base) Type() string {
	return component.kind
}

func (component *base) Name() string {
	return component.name
}

// inputStatus returns the status this component pops, honoring the
// INPUT_STATUS override operators use to point a replica at another lane
// (a replicator popping located bundles works the restore track).
func (component *base) inputStatus(deflt string) string {
	if component.conf.InputStatus != "" {
		return component.conf.InputStatus
	}
	return deflt
}

// outputStatus returns the status this component advances records to,
// honoring the OUTPUT_STATUS override.
func (component *base) outputStatus(deflt string) string {
	if component.conf.OutputStatus != "" {
		return component.conf.OutputStatus
	}
	return deflt
}

// settleBundle disposes of a bundle the component could not advance. A
// lost claim means another replica owns the record now, so the worker
// logs and walks away; any other failure sends the bundle to quarantine.
func (component *base) settleBundle(ctx context.Context, bundle *ltadb.Bundle, err error) {
	var claimLost *ltadb.ClaimLostError
	if errors.As(err, &claimLost) {
		slog.Warn(fmt.Sprintf("%s lost its claim on bundle %s; leaving it to the new claimant",
			component.name, bundle.UUID))
		return
	}
	component.quarantineBundle(ctx, bundle, err.Error())
}

// quarantineBundle sends a bundle to the quarantine lane and logs it. The
// quarantine PATCH is conditional on the claim, so a stale worker's
// attempt is refused and only logged. Any other failure to quarantine is
// also only logged; the record stays claimed until its lease goes stale
// and another replica retries it.
func (component *base) quarantineBundle(ctx context.Context, bundle *ltadb.Bundle, reason string) {
	slog.Error(fmt.Sprintf("%s quarantining bundle %s: %s", component.name, bundle.UUID, reason))
	metrics.Quarantines.WithLabelValues(component.kind).Inc()
	err := component.db.QuarantineBundle(ctx, bundle, component.name, reason)
	if err != nil {
		var claimLost *ltadb.ClaimLostError
		if errors.As(err, &claimLost) {
			slog.Warn(fmt.Sprintf("%s lost its claim on bundle %s before it could quarantine",
				component.name, bundle.UUID))
			return
		}
		slog.Error(fmt.Sprintf("%s couldn't quarantine bundle %s: %s", component.name, bundle.UUID, err.Error()))
		return
	}
	component.record(journal.Record{
		BundleUUID: bundle.UUID,
		FromStatus: bundle.Status,
		ToStatus:   ltadb.BundleStatusQuarantined,
		Reason:     reason,
	})
}

// quarantineRequest sends a transfer request to the quarantine lane,
// conditional on the claim the same way quarantineBundle is.
func (component *base) quarantineRequest(ctx context.Context, request *ltadb.TransferRequest, reason string) {
	slog.Error(fmt.Sprintf("%s quarantining request %s: %s", component.name, request.UUID, reason))
	metrics.Quarantines.WithLabelValues(component.kind).Inc()
	err := component.db.QuarantineTransferRequest(ctx, request, component.name, reason)
	if err != nil {
		var claimLost *ltadb.ClaimLostError
		if errors.As(err, &claimLost) {
			slog.Warn(fmt.Sprintf("%s lost its claim on request %s before it could quarantine",
				component.name, request.UUID))
			return
		}
		slog.Error(fmt.Sprintf("%s couldn't quarantine request %s: %s", component.name, request.UUID, err.Error()))
	}
}

// record appends a transition to the local journal, when one is configured.
func (component *base) record(entry journal.Record) {
	if component.journal == nil {
		return
	}
	entry.Component = component.kind
	entry.Worker = component.name
	entry.Timestamp = time.Now().UTC()
	err := component.journal.Append(entry)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s couldn't journal a transition: %s", component.name, err.Error()))
	}
}

// advanceBundle applies the ordinary forward PATCH: new status, claim
// released, reason cleared, plus whatever extras the component supplies.
func (component *base) advanceBundle(ctx context.Context, bundle *ltadb.Bundle, toStatus string, extra map[string]any) error {
	return component.advanceBundleWithManifest(ctx, bundle, toStatus, extra, nil)
}

// advanceBundleWithManifest is advanceBundle with a payload manifest
// attached to the journal record. Only the Bundler has one to attach.
func (component *base) advanceBundleWithManifest(ctx context.Context, bundle *ltadb.Bundle,
	toStatus string, extra map[string]any, manifest *datapackage.Package) error {
	update := map[string]any{
		"status":           toStatus,
		"claimed":          false,
		"claimant":         "",
		"reason":           "",
		"update_timestamp": ltadb.Now(),
	}
	for key, value := range extra {
		update[key] = value
	}
	err := component.db.PatchBundle(ctx, bundle.UUID, update)
	if err != nil {
		return err
	}
	component.record(journal.Record{
		BundleUUID:  bundle.UUID,
		FromStatus:  bundle.Status,
		ToStatus:    toStatus,
		PayloadSize: bundle.Size,
		NumFiles:    bundle.FileCount,
		Manifest:    manifest,
	})
	return nil
}
