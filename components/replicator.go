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
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/journal"
	"github.com/WIPACrepo/lta/ltadb"
	"github.com/WIPACrepo/lta/metrics"
	"github.com/WIPACrepo/lta/transfer"
)

// Replicator ships a Bundle at created to the destination site via the
// configured transfer service.
type Replicator struct {
	base
	xfer transfer.Service
}

// NewReplicator creates a Replicator around a transfer service.
func NewReplicator(conf *config.Config, db *ltadb.Client, xfer transfer.Service, journ *journal.Journal) (*Replicator, error) {
	if conf.Transfer.DestRoot == "" {
		return nil, &config.MissingKeyError{Name: "DEST_ROOT"}
	}
	return &Replicator{
		base: newBase("replicator", conf, db, journ),
		xfer: xfer,
	}, nil
}

// destPath computes where a bundle lands at the destination site: under
// dest_root by basename, or under dest_root by the request path when
// USE_FULL_BUNDLE_PATH is set.
func destPath(conf *config.Config, bundle *ltadb.Bundle) string {
	basename := filepath.Base(bundle.BundlePath)
	if conf.UseFullBundlePath {
		return path.Join(conf.Transfer.DestRoot, bundle.Path, basename)
	}
	return path.Join(conf.Transfer.DestRoot, basename)
}

func (replicator *Replicator) DoWorkClaim(ctx context.Context) (bool, error) {
	bundle, err := replicator.db.PopBundle(ctx, replicator.conf.SourceSite, replicator.conf.DestSite,
		replicator.inputStatus(ltadb.BundleStatusCreated), replicator.name)
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}
	slog.Info(fmt.Sprintf("%s claimed bundle %s (%s)", replicator.name, bundle.UUID, bundle.BundlePath))

	err = replicator.replicate(ctx, bundle)
	if err != nil {
		replicator.settleBundle(ctx, bundle, err)
	}
	return true, nil
}

func (replicator *Replicator) replicate(ctx context.Context, bundle *ltadb.Bundle) error {
	dest := destPath(replicator.conf, bundle)
	taskID, err := replicator.xfer.TransferFile(ctx, bundle.BundlePath, dest)
	if err != nil {
		return err
	}
	reference := transfer.Reference(replicator.xfer.Scheme(), taskID)

	// record the task id right away so an operator can find the transfer
	// even if this replica dies mid-poll
	err = replicator.db.PatchBundle(ctx, bundle.UUID, map[string]any{
		"transfer_reference": reference,
		"update_timestamp":   ltadb.Now(),
	})
	if err != nil {
		return err
	}
	bundle.TransferReference = reference

	if !replicator.conf.Transfer.ReplicatorWaits {
		// hand off to the verifier, which polls the task itself
		return replicator.advanceBundle(ctx, bundle, replicator.outputStatus(ltadb.BundleStatusTransferring), nil)
	}

	deadline := time.Duration(replicator.conf.Transfer.DeadlineSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	status, err := replicator.xfer.WaitForTransferToFinish(waitCtx, taskID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			cancelErr := replicator.xfer.CancelTask(ctx, taskID)
			if cancelErr != nil {
				slog.Warn(fmt.Sprintf("%s couldn't cancel task %s: %s", replicator.name, taskID, cancelErr.Error()))
			}
			return fmt.Errorf("timed out")
		}
		return err
	}
	if status != transfer.StatusSucceeded {
		return fmt.Errorf("transfer task %s finished %s", taskID, status)
	}

	metrics.BundleBytes.WithLabelValues(replicator.kind).Add(float64(bundle.Size))
	return replicator.advanceBundle(ctx, bundle, replicator.outputStatus(ltadb.BundleStatusTransferring), nil)
}
