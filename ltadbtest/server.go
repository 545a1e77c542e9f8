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
	"sort"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humamux"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/WIPACrepo/lta/ltadb"
)

// Server is an in-memory LTA DB double. It implements the subset of the
// REST interface the pipeline components use: claim-based pops,
// bulk_create, Metadata paging, merge-style PATCHes with transition
// validation and If-Claimant enforcement, and the /status endpoint.
type Server struct {
	// LeaseStaleSeconds controls when a claimed record becomes poppable
	// again; tests shrink it to exercise lease takeover.
	LeaseStaleSeconds int

	mutex    sync.Mutex
	requests map[string]map[string]any
	bundles  map[string]map[string]any
	metadata []ltadb.Metadata
	status   map[string]map[string]any

	listener net.Listener
	server   *http.Server
}

// StartServer starts an LTA DB double on an ephemeral port.
func StartServer() (*Server, error) {
	server := &Server{
		LeaseStaleSeconds: 1800,
		requests:          make(map[string]map[string]any),
		bundles:           make(map[string]map[string]any),
		status:            make(map[string]map[string]any),
	}

	router := mux.NewRouter()
	api := humamux.New(router, huma.DefaultConfig("LTA DB double", "0.0.0"))
	huma.Post(api, "/TransferRequests/actions/pop", server.popTransferRequest)
	huma.Get(api, "/TransferRequests/{uuid}", server.getTransferRequest)
	huma.Patch(api, "/TransferRequests/{uuid}", server.patchTransferRequest)
	huma.Post(api, "/Bundles/actions/pop", server.popBundle)
	huma.Post(api, "/Bundles/actions/bulk_create", server.createBundles)
	huma.Get(api, "/Bundles/{uuid}", server.getBundle)
	huma.Patch(api, "/Bundles/{uuid}", server.patchBundle)
	huma.Post(api, "/Metadata/actions/bulk_create", server.createMetadata)
	huma.Get(api, "/Metadata", server.listMetadata)
	huma.Patch(api, "/status/{component}", server.patchStatus)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	server.listener = netutil.LimitListener(listener, maxConnections)
	server.server = &http.Server{Handler: router}
	go server.server.Serve(server.listener)
	return server, nil
}

// URL returns the base URL clients should talk to.
func (server *Server) URL() string {
	return "http://" + server.listener.Addr().String()
}

// Close shuts the double down.
func (server *Server) Close() {
	server.server.Close()
}

//--------------------
// Seeding and access
//--------------------

// SeedTransferRequest stores a request, assigning a uuid and timestamps
// where the caller left them empty, and returns the uuid.
func (server *Server) SeedTransferRequest(request ltadb.TransferRequest) string {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	if request.UUID == "" {
		request.UUID = uuid.New().String()
	}
	request.Type = "TransferRequest"
	doc := toDocument(request)
	stampDocument(doc)
	server.requests[request.UUID] = doc
	return request.UUID
}

// SeedBundle stores a bundle, assigning a uuid and timestamps where the
// caller left them empty, and returns the uuid.
func (server *Server) SeedBundle(bundle ltadb.Bundle) string {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	if bundle.UUID == "" {
		bundle.UUID = uuid.New().String()
	}
	bundle.Type = "Bundle"
	doc := toDocument(bundle)
	stampDocument(doc)
	server.bundles[bundle.UUID] = doc
	return bundle.UUID
}

// ReassignClaim hands the claim on a bundle to another worker, the way a
// lease-stale pop by a second replica would. Tests use it to take a claim
// over at a chosen moment.
func (server *Server) ReassignClaim(bundleUUID, claimant string) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	doc, found := server.bundles[bundleUUID]
	if !found {
		return
	}
	doc["claimed"] = true
	doc["claimant"] = claimant
	doc["update_timestamp"] = ltadb.Now()
}

// SeedMetadata links file catalog uuids to a bundle.
func (server *Server) SeedMetadata(bundleUUID string, fileUUIDs []string) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	for _, fileUUID := range fileUUIDs {
		server.metadata = append(server.metadata, ltadb.Metadata{
			UUID:            uuid.New().String(),
			BundleUUID:      bundleUUID,
			FileCatalogUUID: fileUUID,
		})
	}
}

// TransferRequest returns the stored request, decoded, or nil.
func (server *Server) TransferRequest(requestUUID string) *ltadb.TransferRequest {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	doc, found := server.requests[requestUUID]
	if !found {
		return nil
	}
	var request ltadb.TransferRequest
	fromDocument(doc, &request)
	return &request
}

// Bundle returns the stored bundle, decoded, or nil.
func (server *Server) Bundle(bundleUUID string) *ltadb.Bundle {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	doc, found := server.bundles[bundleUUID]
	if !found {
		return nil
	}
	var bundle ltadb.Bundle
	fromDocument(doc, &bundle)
	return &bundle
}

// BundleDocument returns the raw stored document for assertions on fields
// the Bundle type doesn't carry.
func (server *Server) BundleDocument(bundleUUID string) map[string]any {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return server.bundles[bundleUUID]
}

// Bundles returns every stored bundle, sorted by uuid.
func (server *Server) Bundles() []ltadb.Bundle {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	uuids := make([]string, 0, len(server.bundles))
	for bundleUUID := range server.bundles {
		uuids = append(uuids, bundleUUID)
	}
	sort.Strings(uuids)
	bundles := make([]ltadb.Bundle, len(uuids))
	for i, bundleUUID := range uuids {
		fromDocument(server.bundles[bundleUUID], &bundles[i])
	}
	return bundles
}

// MetadataFor returns the metadata rows linked to a bundle.
func (server *Server) MetadataFor(bundleUUID string) []ltadb.Metadata {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	var rows []ltadb.Metadata
	for _, row := range server.metadata {
		if row.BundleUUID == bundleUUID {
			rows = append(rows, row)
		}
	}
	return rows
}

// StatusFor returns the last status report PATCHed for a component.
func (server *Server) StatusFor(component string) map[string]any {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return server.status[component]
}

//-----------
// Endpoints
//-----------

type popInput struct {
	Source string `query:"source"`
	Dest   string `query:"dest"`
	Status string `query:"status"`
	Body   struct {
		Claimant string `json:"claimant"`
	}
}

type popTransferRequestOutput struct {
	Body struct {
		TransferRequest map[string]any `json:"transfer_request"`
	}
}

func (server *Server) popTransferRequest(ctx context.Context, input *popInput) (*popTransferRequestOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	output := new(popTransferRequestOutput)
	output.Body.TransferRequest = server.claim(server.requests, func(doc map[string]any) bool {
		return str(doc, "status") == ltadb.RequestStatusEthereal &&
			str(doc, "source") == input.Source &&
			str(doc, "dest") == input.Dest
	}, input.Body.Claimant)
	return output, nil
}

type popBundleOutput struct {
	Body struct {
		Bundle map[string]any `json:"bundle"`
	}
}

func (server *Server) popBundle(ctx context.Context, input *popInput) (*popBundleOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	output := new(popBundleOutput)
	output.Body.Bundle = server.claim(server.bundles, func(doc map[string]any) bool {
		return str(doc, "status") == input.Status &&
			str(doc, "source") == input.Source &&
			str(doc, "dest") == input.Dest
	}, input.Body.Claimant)
	return output, nil
}

type createBundlesInput struct {
	Body struct {
		Bundles []map[string]any `json:"bundles"`
	}
}

type createBundlesOutput struct {
	Body struct {
		Bundles []string `json:"bundles"`
	}
}

func (server *Server) createBundles(ctx context.Context, input *createBundlesInput) (*createBundlesOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	output := new(createBundlesOutput)
	for _, doc := range input.Body.Bundles {
		bundleUUID := uuid.New().String()
		doc["uuid"] = bundleUUID
		doc["type"] = "Bundle"
		stampDocument(doc)
		server.bundles[bundleUUID] = doc
		output.Body.Bundles = append(output.Body.Bundles, bundleUUID)
	}
	return output, nil
}

type createMetadataInput struct {
	Body struct {
		BundleUUID string   `json:"bundle_uuid"`
		Files      []string `json:"files"`
	}
}

type createMetadataOutput struct {
	Body struct {
		Count int `json:"count"`
	}
}

func (server *Server) createMetadata(ctx context.Context, input *createMetadataInput) (*createMetadataOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	for _, fileUUID := range input.Body.Files {
		server.metadata = append(server.metadata, ltadb.Metadata{
			UUID:            uuid.New().String(),
			BundleUUID:      input.Body.BundleUUID,
			FileCatalogUUID: fileUUID,
		})
	}
	output := new(createMetadataOutput)
	output.Body.Count = len(input.Body.Files)
	return output, nil
}

type listMetadataInput struct {
	BundleUUID string `query:"bundle_uuid"`
	Limit      int    `query:"limit"`
	Skip       int    `query:"skip"`
}

type listMetadataOutput struct {
	Body struct {
		Results []ltadb.Metadata `json:"results"`
	}
}

func (server *Server) listMetadata(ctx context.Context, input *listMetadataInput) (*listMetadataOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	var rows []ltadb.Metadata
	for _, row := range server.metadata {
		if row.BundleUUID == input.BundleUUID {
			rows = append(rows, row)
		}
	}
	limit := input.Limit
	if limit <= 0 {
		limit = len(rows)
	}
	output := new(listMetadataOutput)
	output.Body.Results = page(rows, input.Skip, limit)
	return output, nil
}

type getInput struct {
	UUID string `path:"uuid"`
}

type documentOutput struct {
	Body map[string]any
}

func (server *Server) getTransferRequest(ctx context.Context, input *getInput) (*documentOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	doc, found := server.requests[input.UUID]
	if !found {
		return nil, huma.Error404NotFound(fmt.Sprintf("no such transfer request: %s", input.UUID))
	}
	return &documentOutput{Body: doc}, nil
}

func (server *Server) getBundle(ctx context.Context, input *getInput) (*documentOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	doc, found := server.bundles[input.UUID]
	if !found {
		return nil, huma.Error404NotFound(fmt.Sprintf("no such bundle: %s", input.UUID))
	}
	return &documentOutput{Body: doc}, nil
}

type patchInput struct {
	UUID       string `path:"uuid"`
	IfClaimant string `header:"If-Claimant"`
	RawBody    []byte
}

func (server *Server) patchTransferRequest(ctx context.Context, input *patchInput) (*documentOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return server.patch(server.requests, input, ltadb.ValidTransferRequestTransition)
}

func (server *Server) patchBundle(ctx context.Context, input *patchInput) (*documentOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return server.patch(server.bundles, input, ltadb.ValidBundleTransition)
}

type patchStatusInput struct {
	Component string `path:"component"`
	RawBody   []byte
}

func (server *Server) patchStatus(ctx context.Context, input *patchStatusInput) (*documentOutput, error) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	var update map[string]any
	err := json.Unmarshal(input.RawBody, &update)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	doc := server.status[input.Component]
	if doc == nil {
		doc = make(map[string]any)
	}
	for key, value := range update {
		doc[key] = value
	}
	server.status[input.Component] = doc
	return &documentOutput{Body: doc}, nil
}

//-----------
// Internals
//-----------

// claim finds the claimable record matching the filter with the oldest
// work_priority_timestamp (uuid breaks ties) and claims it. The caller
// holds the mutex.
func (server *Server) claim(store map[string]map[string]any, match func(map[string]any) bool, claimant string) map[string]any {
	var candidates []map[string]any
	for _, doc := range store {
		if match(doc) && server.claimable(doc) {
			candidates = append(candidates, doc)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		a := str(candidates[i], "work_priority_timestamp")
		b := str(candidates[j], "work_priority_timestamp")
		if a != b {
			return a < b
		}
		return str(candidates[i], "uuid") < str(candidates[j], "uuid")
	})
	doc := candidates[0]
	doc["claimed"] = true
	doc["claimant"] = claimant
	doc["update_timestamp"] = ltadb.Now()
	return doc
}

// claimable reports whether a record may be popped: either unclaimed, or
// claimed so long ago that the lease has gone stale.
func (server *Server) claimable(doc map[string]any) bool {
	claimed, _ := doc["claimed"].(bool)
	if !claimed {
		return true
	}
	claimedAt, err := time.Parse("2006-01-02T15:04:05", str(doc, "update_timestamp"))
	if err != nil {
		return true
	}
	stale := time.Duration(server.LeaseStaleSeconds) * time.Second
	return time.Now().UTC().Sub(claimedAt) > stale
}

// patch applies a merge-style update, enforcing If-Claimant and status
// transition validity. The caller holds the mutex.
func (server *Server) patch(store map[string]map[string]any, input *patchInput,
	validTransition func(from, to string) bool) (*documentOutput, error) {

	doc, found := store[input.UUID]
	if !found {
		return nil, huma.Error404NotFound(fmt.Sprintf("no such record: %s", input.UUID))
	}
	if input.IfClaimant != "" {
		claimed, _ := doc["claimed"].(bool)
		if !claimed || str(doc, "claimant") != input.IfClaimant {
			return nil, huma.Error409Conflict(fmt.Sprintf("record %s is not claimed by %s", input.UUID, input.IfClaimant))
		}
	}
	var update map[string]any
	err := json.Unmarshal(input.RawBody, &update)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if value, present := update["status"]; present {
		to, ok := value.(string)
		if !ok {
			return nil, huma.Error400BadRequest("status is not a string")
		}
		from := str(doc, "status")
		if to != from && !validTransition(from, to) {
			return nil, huma.Error400BadRequest(fmt.Sprintf("invalid status transition %s -> %s", from, to))
		}
	}
	for key, value := range update {
		doc[key] = value
	}
	return &documentOutput{Body: doc}, nil
}

// stampDocument fills in any missing timestamps.
func stampDocument(doc map[string]any) {
	now := ltadb.Now()
	for _, key := range []string{"create_timestamp", "update_timestamp", "work_priority_timestamp"} {
		if str(doc, key) == "" {
			doc[key] = now
		}
	}
}

func str(doc map[string]any, key string) string {
	value, _ := doc[key].(string)
	return value
}

func page[T any](rows []T, skip, limit int) []T {
	if skip >= len(rows) {
		return nil
	}
	stop := min(skip+limit, len(rows))
	return rows[skip:stop]
}
