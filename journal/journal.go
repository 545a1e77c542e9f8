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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"
	bolt "go.etcd.io/bbolt"
)

// This is the worker's local journal, an audit trail of every status
// transition the worker applied. The LTA DB holds the live state; the
// journal answers "what did this replica do, and when" after the fact.

// a record storing one applied status transition
type Record struct {
	// the bundle the transition applied to
	BundleUUID string `json:"bundle_uuid"`
	// component type and full worker name that applied it
	Component string `json:"component"`
	Worker    string `json:"worker"`
	// the transition itself
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	// quarantine or unclaim reason, when there is one
	Reason string `json:"reason,omitempty"`
	// when the transition was applied
	Timestamp time.Time `json:"timestamp"`
	// container size in bytes and member count, once known
	PayloadSize int64 `json:"payload_size,omitempty"`
	NumFiles    int   `json:"num_files,omitempty"`
	// manifest describing the bundle's payload (stored separate from record)
	Manifest *datapackage.Package `json:"-"`
}

// Journal is an append-only store of transition records, one database file
// per worker replica.
type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal at the given path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &CantOpenError{Message: err.Error()}
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucketName := range []string{"transitions", "manifests"} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucketName)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &CantOpenError{Message: err.Error()}
	}
	return &Journal{db: db}, nil
}

// Append records one applied transition. If the record carries a manifest,
// the manifest is stored alongside, indexed by bundle uuid.
func (journal *Journal) Append(record Record) error {
	if record.BundleUUID == "" || record.ToStatus == "" {
		return &NewRecordError{
			Id:      record.BundleUUID,
			Message: "a transition record needs a bundle_uuid and a to_status",
		}
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	tx, err := journal.db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// store the transition record, indexed by its timestamp; the bundle
	// uuid suffix keeps same-second transitions from colliding
	bucket := tx.Bucket([]byte("transitions"))
	key := fmt.Sprintf("%s/%s", record.Timestamp.Format(time.RFC3339), record.BundleUUID)
	jsonBytes, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	err = bucket.Put([]byte(key), jsonBytes)
	if err != nil {
		return err
	}

	if record.Manifest != nil {
		jsonManifest, err := json.Marshal(record.Manifest.Descriptor())
		if err != nil {
			return &NewRecordError{
				Id:      record.BundleUUID,
				Message: err.Error(),
			}
		}
		bucket := tx.Bucket([]byte("manifests"))
		err = bucket.Put([]byte(record.BundleUUID), jsonManifest)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Records retrieves transitions applied within the time range with the
// given (inclusive) bounds. Manifests are re-attached where present.
func (journal *Journal) Records(start, stop time.Time) ([]Record, error) {
	records := make([]Record, 0)
	err := journal.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte("transitions")).Cursor()

		startKey := []byte(start.Format(time.RFC3339))
		// '0' sorts after the RFC3339 zone suffix, making the bound inclusive
		stopKey := []byte(stop.Format(time.RFC3339) + "0")

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, stopKey) <= 0; k, v = c.Next() {
			var record Record
			err := json.Unmarshal(v, &record)
			if err != nil {
				return err
			}
			records = append(records, record)
		}

		// re-attach manifests (this can be slow)
		bucket := tx.Bucket([]byte("manifests"))
		for i := range records {
			m := bucket.Get([]byte(records[i].BundleUUID))
			if m != nil {
				var err error
				records[i].Manifest, err = datapackage.FromString(string(m), "manifest.json", validator.InMemoryLoader())
				if err != nil {
					return &InvalidRecordError{
						Id:      records[i].BundleUUID,
						Message: "unable to retrieve manifest for bundle",
					}
				}
			}
		}
		return nil
	})

	return records, err
}

// Close saves and closes the journal.
func (journal *Journal) Close() error {
	err := journal.db.Close()
	if err != nil {
		return &CantCloseError{Message: err.Error()}
	}
	return nil
}

// NewManifest builds a data package describing a bundle's payload from the
// member records of its metadata sidecar.
func NewManifest(bundleUUID string, members []map[string]any) (*datapackage.Package, error) {
	resources := make([]any, len(members))
	for i, member := range members {
		resource := map[string]any{
			"name":   fmt.Sprintf("file-%d", i),
			"format": "binary",
		}
		if logicalName, ok := member["logical_name"].(string); ok {
			resource["path"] = strings.TrimPrefix(logicalName, "/")
		}
		// sidecar records parsed from JSON carry sizes as float64
		switch size := member["file_size"].(type) {
		case int64:
			resource["bytes"] = size
		case float64:
			resource["bytes"] = int64(size)
		}
		resources[i] = resource
	}
	descriptor := map[string]any{
		"name":      "bundle-" + strings.ToLower(bundleUUID),
		"resources": resources,
	}
	return datapackage.New(descriptor, ".", validator.InMemoryLoader())
}
