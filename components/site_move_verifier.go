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
	"os"
	"path/filepath"
	"time"

	"github.com/WIPACrepo/lta/archive"
	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/journal"
	"github.com/WIPACrepo/lta/ltadb"
	"github.com/WIPACrepo/lta/metrics"
	"github.com/WIPACrepo/lta/transfer"
)

// SiteMoveVerifier proves that the bytes at the destination match the
// bytes that left the source: it pulls the shipped container back to a
// scratch file and recomputes its SHA-512.
type SiteMoveVerifier struct {
	base
	xfer transfer.Service
}

// NewSiteMoveVerifier creates a SiteMoveVerifier. A scratch path for
// pulled copies is required.
func NewSiteMoveVerifier(conf *config.Config, db *ltadb.Client, xfer transfer.Service, journ *journal.Journal) (*SiteMoveVerifier, error) {
	if conf.ScratchPath == "" {
		return nil, &config.MissingKeyError{Name: "SCRATCH_PATH"}
	}
	return &SiteMoveVerifier{
		base: newBase("site_move_verifier", conf, db, journ),
		xfer: xfer,
	}, nil
}

func (verifier *SiteMoveVerifier) DoWorkClaim(ctx context.Context) (bool, error) {
	bundle, err := verifier.db.PopBundle(ctx, verifier.conf.SourceSite, verifier.conf.DestSite,
		verifier.inputStatus(ltadb.BundleStatusTransferring), verifier.name)
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}
	slog.Info(fmt.Sprintf("%s claimed bundle %s (%s)", verifier.name, bundle.UUID, bundle.TransferReference))

	ready, err := verifier.transferFinished(ctx, bundle)
	if err != nil {
		verifier.settleBundle(ctx, bundle, err)
		return true, nil
	}
	if !ready {
		// the transfer is still moving bytes; release the claim and let a
		// later cycle look again
		slog.Info(fmt.Sprintf("%s: bundle %s transfer still active, unclaiming", verifier.name, bundle.UUID))
		err = verifier.db.UnclaimBundle(ctx, bundle.UUID)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s couldn't unclaim bundle %s: %s", verifier.name, bundle.UUID, err.Error()))
		}
		return true, nil
	}

	err = verifier.verify(ctx, bundle)
	if err != nil {
		verifier.settleBundle(ctx, bundle, err)
	}
	return true, nil
}

// transferFinished checks the bundle's transfer task. It reports false
// while the task is still active, and an error when the task failed.
func (verifier *SiteMoveVerifier) transferFinished(ctx context.Context, bundle *ltadb.Bundle) (bool, error) {
	if bundle.TransferReference == "" {
		return false, fmt.Errorf("bundle has no transfer_reference")
	}
	scheme, taskID, err := transfer.ParseReference(bundle.TransferReference)
	if err != nil {
		return false, err
	}
	if scheme != verifier.xfer.Scheme() {
		return false, fmt.Errorf("transfer reference scheme '%s' does not match driver '%s'",
			scheme, verifier.xfer.Scheme())
	}

	// bound the poll by one poll interval; a still-active task parks the
	// bundle for a later cycle instead of pinning this worker
	pollWindow := time.Duration(verifier.conf.Transfer.PollSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, pollWindow)
	defer cancel()
	status, err := verifier.xfer.WaitForTransferToFinish(waitCtx, taskID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, err
	}
	if status != transfer.StatusSucceeded {
		return false, fmt.Errorf("transfer task %s finished %s", taskID, status)
	}
	return true, nil
}

// verify pulls the destination copy to scratch, recomputes its SHA-512,
// and advances the bundle to taping on a match.
func (verifier *SiteMoveVerifier) verify(ctx context.Context, bundle *ltadb.Bundle) error {
	if bundle.Checksum == nil || bundle.Checksum.Sha512 == "" {
		return fmt.Errorf("bundle carries no creation checksum")
	}

	remotePath := destPath(verifier.conf, bundle)
	scratchPath := filepath.Join(verifier.conf.ScratchPath, filepath.Base(bundle.BundlePath))
	err := verifier.xfer.RetrieveFile(ctx, remotePath, scratchPath)
	if err != nil {
		return err
	}
	// the scratch copy lives only long enough to hash
	defer os.Remove(scratchPath)

	computed, err := archive.Sha512(scratchPath)
	if err != nil {
		return err
	}
	if computed != bundle.Checksum.Sha512 {
		return fmt.Errorf("Checksum mismatch between creation and destination: %s", computed)
	}

	metrics.BundleBytes.WithLabelValues(verifier.kind).Add(float64(bundle.Size))
	slog.Info(fmt.Sprintf("%s verified bundle %s at %s", verifier.name, bundle.UUID, remotePath))
	return verifier.advanceBundle(ctx, bundle, verifier.outputStatus(ltadb.BundleStatusTaping), map[string]any{
		"verified": true,
	})
}
