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

package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { journal.Close() })
	return journal
}

// tests recording a transition and reading it back by time range
func TestAppendAndRecords(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	journal := openTestJournal(t)

	now := time.Now().UTC().Truncate(time.Second)
	err := journal.Append(Record{
		BundleUUID:  "b1",
		Component:   "bundler",
		Worker:      "bundler-f00f",
		FromStatus:  "specified",
		ToStatus:    "created",
		Timestamp:   now,
		PayloadSize: 12853294,
		NumFiles:    12,
	})
	assert.Nil(err)

	records, err := journal.Records(now.Add(-time.Minute), now.Add(time.Minute))
	assert.Nil(err)
	assert.Len(records, 1)
	assert.Equal("b1", records[0].BundleUUID)
	assert.Equal("bundler", records[0].Component)
	assert.Equal("specified", records[0].FromStatus)
	assert.Equal("created", records[0].ToStatus)
	assert.Equal(int64(12853294), records[0].PayloadSize)
	assert.Equal(12, records[0].NumFiles)

	// outside the window
	records, err = journal.Records(now.Add(time.Hour), now.Add(2*time.Hour))
	assert.Nil(err)
	assert.Empty(records)
}

// tests that a manifest survives the round trip alongside its transition
func TestAppendWithManifest(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	journal := openTestJournal(t)

	manifest, err := NewManifest("B1", []map[string]any{
		{"logical_name": "/data/exp/alpha.dat", "file_size": int64(100)},
		{"logical_name": "/data/exp/beta.dat", "file_size": int64(200)},
	})
	assert.Nil(err)
	assert.NotNil(manifest)

	now := time.Now().UTC().Truncate(time.Second)
	err = journal.Append(Record{
		BundleUUID: "b1",
		Component:  "bundler",
		Worker:     "bundler-f00f",
		FromStatus: "specified",
		ToStatus:   "created",
		Timestamp:  now,
		NumFiles:   2,
		Manifest:   manifest,
	})
	assert.Nil(err)

	records, err := journal.Records(now.Add(-time.Minute), now.Add(time.Minute))
	assert.Nil(err)
	assert.Len(records, 1)
	assert.NotNil(records[0].Manifest)
	assert.Equal(manifest.ResourceNames(), records[0].Manifest.ResourceNames())
}

// tests that same-second transitions for different bundles both survive
func TestAppendSameSecond(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	journal := openTestJournal(t)

	now := time.Now().UTC().Truncate(time.Second)
	for _, bundleUUID := range []string{"b1", "b2"} {
		err := journal.Append(Record{
			BundleUUID: bundleUUID,
			Component:  "replicator",
			Worker:     "replicator-f00f",
			FromStatus: "created",
			ToStatus:   "transferring",
			Timestamp:  now,
		})
		assert.Nil(err)
	}

	records, err := journal.Records(now, now)
	assert.Nil(err)
	assert.Len(records, 2)
}

// tests that an incomplete record is refused
func TestAppendIncomplete(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	journal := openTestJournal(t)

	err := journal.Append(Record{Component: "bundler"})
	var recordErr *NewRecordError
	assert.ErrorAs(err, &recordErr)
}
