// These tests exercise the LTA DB client against local HTTP stand-ins.
package ltadb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testClient(serverURL string) *Client {
	return NewClient(serverURL, nil, 5*time.Second, 2)
}

// tests that a pop with no eligible work yields a nil record and no error
func TestPopBundleNoWork(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		assert.Equal("WIPAC", r.URL.Query().Get("source"))
		assert.Equal("NERSC", r.URL.Query().Get("dest"))
		assert.Equal("specified", r.URL.Query().Get("status"))
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal("bundler-f00f", body["claimant"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bundle": null}`))
	}))
	defer server.Close()

	bundle, err := testClient(server.URL).PopBundle(context.Background(), "WIPAC", "NERSC", "specified", "bundler-f00f")
	assert.Nil(err)
	assert.Nil(bundle)
}

// tests that a popped bundle round-trips its fields
func TestPopBundle(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bundle": {"uuid": "b1", "status": "specified", "source": "WIPAC",
			"dest": "NERSC", "path": "/data/exp", "claimed": true, "claimant": "bundler-f00f",
			"file_count": 3}}`))
	}))
	defer server.Close()

	bundle, err := testClient(server.URL).PopBundle(context.Background(), "WIPAC", "NERSC", "specified", "bundler-f00f")
	assert.Nil(err)
	assert.NotNil(bundle)
	assert.Equal("b1", bundle.UUID)
	assert.Equal(BundleStatusSpecified, bundle.Status)
	assert.True(bundle.Claimed)
	assert.Equal(3, bundle.FileCount)
}

// tests that metadata bulk creation splits large uuid lists into chunks
func TestCreateMetadataChunks(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	var chunkSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			BundleUUID string   `json:"bundle_uuid"`
			Files      []string `json:"files"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal("b1", body.BundleUUID)
		chunkSizes = append(chunkSizes, len(body.Files))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"count": len(body.Files)})
	}))
	defer server.Close()

	fileUUIDs := make([]string, 2500)
	for i := range fileUUIDs {
		fileUUIDs[i] = "f"
	}
	count, err := testClient(server.URL).CreateMetadata(context.Background(), "b1", fileUUIDs)
	assert.Nil(err)
	assert.Equal(2500, count)
	assert.Equal([]int{1000, 1000, 500}, chunkSizes)
}

// tests that transient server errors are retried and eventually succeed
func TestRetryOnServerError(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	failures := 2
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures > 0 {
			failures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transfer_request": null}`))
	}))
	defer server.Close()

	request, err := testClient(server.URL).PopTransferRequest(context.Background(), "WIPAC", "NERSC", "picker-f00f")
	assert.Nil(err)
	assert.Nil(request)
	assert.Zero(failures)
}

// tests that client errors are not retried
func TestNoRetryOnClientError(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	err := testClient(server.URL).PatchBundle(context.Background(), "b1", map[string]any{"status": "nonsense"})
	assert.NotNil(err)
	var requestErr *RequestError
	assert.ErrorAs(err, &requestErr)
	assert.Equal(http.StatusUnprocessableEntity, requestErr.StatusCode)
	assert.Equal(1, calls)
}

// tests the shape of the quarantine update, and that it is conditional on
// the worker still holding the claim
func TestQuarantineBundle(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	var update map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPatch, r.Method)
		assert.Equal("/Bundles/b1", r.URL.Path)
		assert.Equal("replicator-f00f", r.Header.Get("If-Claimant"))
		json.NewDecoder(r.Body).Decode(&update)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	bundle := Bundle{UUID: "b1", Status: BundleStatusTransferring}
	err := testClient(server.URL).QuarantineBundle(context.Background(), &bundle, "replicator-f00f", "timed out")
	assert.Nil(err)
	assert.Equal(BundleStatusQuarantined, update["status"])
	assert.Equal(BundleStatusTransferring, update["original_status"])
	assert.Equal("BY:replicator-f00f REASON:timed out", update["reason"])
	assert.NotEmpty(update["work_priority_timestamp"])
}

// tests that a conditional patch surfaces a lost claim as its own error
func TestPatchBundleIfClaimedConflict(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("deleter-f00f", r.Header.Get("If-Claimant"))
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	err := testClient(server.URL).PatchBundleIfClaimed(context.Background(), "b1", "deleter-f00f",
		map[string]any{"status": BundleStatusDeleted})
	assert.NotNil(err)
	var claimErr *ClaimLostError
	assert.ErrorAs(err, &claimErr)
	assert.Equal("b1", claimErr.UUID)
}

// tests the forward edges and the quarantine lane of the bundle status
// machine
func TestValidBundleTransition(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	assert.True(ValidBundleTransition(BundleStatusSpecified, BundleStatusCreated))
	assert.True(ValidBundleTransition(BundleStatusCreated, BundleStatusTransferring))
	assert.True(ValidBundleTransition(BundleStatusLocated, BundleStatusTransferring))
	assert.True(ValidBundleTransition(BundleStatusTransferring, BundleStatusTaping))
	assert.True(ValidBundleTransition(BundleStatusTaping, BundleStatusCompleted))
	assert.True(ValidBundleTransition(BundleStatusCompleted, BundleStatusDeleted))
	assert.False(ValidBundleTransition(BundleStatusSpecified, BundleStatusTaping))
	assert.False(ValidBundleTransition(BundleStatusDeleted, BundleStatusSpecified))

	// quarantine is reachable from any non-terminal status
	assert.True(ValidBundleTransition(BundleStatusSpecified, BundleStatusQuarantined))
	assert.True(ValidBundleTransition(BundleStatusTaping, BundleStatusQuarantined))
	assert.False(ValidBundleTransition(BundleStatusDeleted, BundleStatusQuarantined))
	assert.False(ValidBundleTransition(BundleStatusQuarantined, BundleStatusQuarantined))

	// operator reset restores the saved status
	assert.True(ValidBundleTransition(BundleStatusQuarantined, BundleStatusTransferring))
}

func TestValidTransferRequestTransition(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	assert.True(ValidTransferRequestTransition(RequestStatusEthereal, RequestStatusSpecified))
	assert.False(ValidTransferRequestTransition(RequestStatusSpecified, RequestStatusEthereal))
	assert.True(ValidTransferRequestTransition(RequestStatusEthereal, RequestStatusQuarantined))
	assert.True(ValidTransferRequestTransition(RequestStatusQuarantined, RequestStatusEthereal))
}

// tests that timestamps carry second resolution and no zone suffix
func TestNowFormat(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	stamp := Now()
	matched, err := regexp.MatchString(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`, stamp)
	assert.Nil(err)
	assert.True(matched, "unexpected timestamp format: %s", stamp)
}
