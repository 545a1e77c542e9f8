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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/WIPACrepo/lta/ltadb"
)

// tests that a worker that no longer holds the claim on a bundle cannot
// push it into quarantine out from under the new claimant
func TestStaleWorkerCannotQuarantine(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	h := startHarness(t)

	bundleUUID := h.db.SeedBundle(ltadb.Bundle{
		Status:     ltadb.BundleStatusCompleted,
		Request:    "r1",
		SourceSite: "WIPAC",
		DestSite:   "NERSC",
		Path:       "/data/exp/foo",
	})
	h.db.ReassignClaim(bundleUUID, "deleter-thief")

	deleter, err := NewDeleter(h.conf, h.client, h.fc, nil)
	assert.Nil(err)
	// a replica that popped the bundle before the takeover tries to
	// quarantine it with a stale view of the record
	deleter.quarantineBundle(context.Background(), &ltadb.Bundle{
		UUID:   bundleUUID,
		Status: ltadb.BundleStatusCompleted,
	}, "stale worker says the warehouse is broken")

	bundle := h.db.Bundle(bundleUUID)
	assert.Equal(ltadb.BundleStatusCompleted, bundle.Status)
	assert.True(bundle.Claimed)
	assert.Equal("deleter-thief", bundle.Claimant)
	assert.Empty(bundle.Reason)
}
