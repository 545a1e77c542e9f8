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
	"testing"
	"time"

	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/filecatalog"
	"github.com/WIPACrepo/lta/ltadb"
	"github.com/WIPACrepo/lta/ltadbtest"
)

// harness boots an LTA DB double and a File Catalog double and points a
// baseline component configuration at them.
type harness struct {
	db      *ltadbtest.Server
	catalog *ltadbtest.Catalog
	conf    *config.Config
	client  *ltadb.Client
	fc      *filecatalog.Client
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	db, err := ltadbtest.StartServer()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	catalog, err := ltadbtest.StartCatalog()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(catalog.Close)

	conf := &config.Config{
		SourceSite:          "WIPAC",
		DestSite:            "NERSC",
		LtaRestURL:          db.URL(),
		FileCatalogRestURL:  catalog.URL(),
		FileCatalogPageSize: 2, // small pages exercise the paging loops
		IdealBundleSize:     200,
		Transfer: config.Transfer{
			Provider:        "move",
			PollSeconds:     60,
			DeadlineSeconds: 10,
			ReplicatorWaits: true,
		},
	}
	return &harness{
		db:      db,
		catalog: catalog,
		conf:    conf,
		client:  ltadb.NewClient(db.URL(), nil, 5*time.Second, 0),
		fc:      filecatalog.NewClient(catalog.URL(), nil, 5*time.Second),
	}
}
