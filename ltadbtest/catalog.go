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

package ltadbtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"sort"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humamux"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/WIPACrepo/lta/filecatalog"
)

// Catalog is an in-memory File Catalog double. It evaluates the subset of
// the catalog query language the pipeline uses: $eq and $regex conditions
// on logical_name and on location fields.
type Catalog struct {
	// GetHook, when set, runs before each single-record fetch. Tests use
	// it to interleave state changes while a component is mid-flight.
	GetHook func(uuid string)

	mutex   sync.Mutex
	records map[string]filecatalog.Record

	listener net.Listener
	server   *http.Server
}

// StartCatalog starts a File Catalog double on an ephemeral port.
func StartCatalog() (*Catalog, error) {
	catalog := &Catalog{
		records: make(map[string]filecatalog.Record),
	}

	router := mux.NewRouter()
	api := humamux.New(router, huma.DefaultConfig("File Catalog double", "0.0.0"))
	huma.Get(api, "/api/files", catalog.queryFiles)
	huma.Post(api, "/api/files", catalog.createFile)
	huma.Get(api, "/api/files/{uuid}", catalog.getFile)
	huma.Patch(api, "/api/files/{uuid}", catalog.patchFile)
	huma.Post(api, "/api/files/{uuid}/locations", catalog.addLocations)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	catalog.listener = netutil.LimitListener(listener, maxConnections)
	catalog.server = &http.Server{Handler: router}
	go catalog.server.Serve(catalog.listener)
	return catalog, nil
}

// URL returns the base URL clients should talk to.
func (catalog *Catalog) URL() string {
	return "http://" + catalog.listener.Addr().String()
}

// Close shuts the double down.
func (catalog *Catalog) Close() {
	catalog.server.Close()
}

// AddRecord stores a record, assigning a uuid when the caller left it
// empty, and returns the uuid.
func (catalog *Catalog) AddRecord(record filecatalog.Record) string {
	catalog.mutex.Lock()
	defer catalog.mutex.Unlock()
	if record.UUID == "" {
		record.UUID = uuid.New().String()
	}
	catalog.records[record.UUID] = record
	return record.UUID
}

// Record returns the stored record, or nil.
func (catalog *Catalog) Record(recordUUID string) *filecatalog.Record {
	catalog.mutex.Lock()
	defer catalog.mutex.Unlock()
	record, found := catalog.records[recordUUID]
	if !found {
		return nil
	}
	return &record
}

// FindByLogicalName returns the stored record with the given logical
// name, or nil.
func (catalog *Catalog) FindByLogicalName(logicalName string) *filecatalog.Record {
	catalog.mutex.Lock()
	defer catalog.mutex.Unlock()
	for _, record := range catalog.records {
		if record.LogicalName == logicalName {
			found := record
			return &found
		}
	}
	return nil
}

//-----------
// Endpoints
//-----------

type queryFilesInput struct {
	Query string `query:"query"`
	Keys  string `query:"keys"`
	Limit int    `query:"limit"`
	Start int    `query:"start"`
}

type queryFilesOutput struct {
	Body struct {
		Files []filecatalog.Record `json:"files"`
	}
}

func (catalog *Catalog) queryFiles(ctx context.Context, input *queryFilesInput) (*queryFilesOutput, error) {
	var selector map[string]any
	if input.Query != "" {
		err := json.Unmarshal([]byte(input.Query), &selector)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
	}

	catalog.mutex.Lock()
	defer catalog.mutex.Unlock()
	var matched []filecatalog.Record
	for _, record := range catalog.records {
		ok, err := matches(record, selector)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if ok {
			matched = append(matched, record)
		}
	}
	// stable order so paging over multiple requests never skips a record
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LogicalName < matched[j].LogicalName
	})

	limit := input.Limit
	if limit <= 0 {
		limit = len(matched)
	}
	// the real catalog projects to the requested keys; the double returns
	// whole records, a superset the clients tolerate
	output := new(queryFilesOutput)
	output.Body.Files = page(matched, input.Start, limit)
	return output, nil
}

type createFileInput struct {
	Body filecatalog.Record
}

type createFileOutput struct {
	Body struct {
		UUID string `json:"uuid"`
	}
}

func (catalog *Catalog) createFile(ctx context.Context, input *createFileInput) (*createFileOutput, error) {
	output := new(createFileOutput)
	output.Body.UUID = catalog.AddRecord(input.Body)
	return output, nil
}

type getFileInput struct {
	UUID string `path:"uuid"`
}

type recordOutput struct {
	Body filecatalog.Record
}

func (catalog *Catalog) getFile(ctx context.Context, input *getFileInput) (*recordOutput, error) {
	if catalog.GetHook != nil {
		catalog.GetHook(input.UUID)
	}
	catalog.mutex.Lock()
	defer catalog.mutex.Unlock()
	record, found := catalog.records[input.UUID]
	if !found {
		return nil, huma.Error404NotFound(fmt.Sprintf("no such file: %s", input.UUID))
	}
	return &recordOutput{Body: record}, nil
}

type patchFileInput struct {
	UUID    string `path:"uuid"`
	RawBody []byte
}

func (catalog *Catalog) patchFile(ctx context.Context, input *patchFileInput) (*recordOutput, error) {
	catalog.mutex.Lock()
	defer catalog.mutex.Unlock()
	record, found := catalog.records[input.UUID]
	if !found {
		return nil, huma.Error404NotFound(fmt.Sprintf("no such file: %s", input.UUID))
	}
	var update map[string]any
	err := json.Unmarshal(input.RawBody, &update)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	doc := toDocument(record)
	for key, value := range update {
		doc[key] = value
	}
	fromDocument(doc, &record)
	catalog.records[input.UUID] = record
	return &recordOutput{Body: record}, nil
}

type addLocationsInput struct {
	UUID string `path:"uuid"`
	Body struct {
		Locations []filecatalog.Location `json:"locations"`
	}
}

func (catalog *Catalog) addLocations(ctx context.Context, input *addLocationsInput) (*recordOutput, error) {
	catalog.mutex.Lock()
	defer catalog.mutex.Unlock()
	record, found := catalog.records[input.UUID]
	if !found {
		return nil, huma.Error404NotFound(fmt.Sprintf("no such file: %s", input.UUID))
	}
	record.Locations = append(record.Locations, input.Body.Locations...)
	catalog.records[input.UUID] = record
	return &recordOutput{Body: record}, nil
}

//-----------
// Internals
//-----------

// matches evaluates a selector document against a record. Each condition
// must hold for at least one value of its field.
func matches(record filecatalog.Record, selector map[string]any) (bool, error) {
	for field, condition := range selector {
		operators, ok := condition.(map[string]any)
		if !ok {
			return false, fmt.Errorf("condition on %s is not an operator document", field)
		}
		values := fieldValues(record, field)
		for operator, operand := range operators {
			ok, err := anyValueSatisfies(values, operator, operand)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func anyValueSatisfies(values []any, operator string, operand any) (bool, error) {
	switch operator {
	case "$eq":
		for _, value := range values {
			if value == operand {
				return true, nil
			}
		}
		return false, nil
	case "$regex":
		pattern, ok := operand.(string)
		if !ok {
			return false, fmt.Errorf("$regex operand is not a string")
		}
		expr, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		for _, value := range values {
			text, ok := value.(string)
			if ok && expr.MatchString(text) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", operator)
	}
}

// fieldValues extracts the values a selector field may refer to.
func fieldValues(record filecatalog.Record, field string) []any {
	switch field {
	case "logical_name":
		return []any{record.LogicalName}
	case "uuid":
		return []any{record.UUID}
	case "locations.site":
		values := make([]any, len(record.Locations))
		for i, location := range record.Locations {
			values[i] = location.Site
		}
		return values
	case "locations.path":
		values := make([]any, len(record.Locations))
		for i, location := range record.Locations {
			values[i] = location.Path
		}
		return values
	case "locations.archive":
		values := make([]any, len(record.Locations))
		for i, location := range record.Locations {
			values[i] = location.Archive
		}
		return values
	default:
		return nil
	}
}
