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

package ltadb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/WIPACrepo/lta/auth"
)

// header used by conditional PATCHes that must not proceed if the caller
// has lost its claim on the record
const claimantHeader = "If-Claimant"

// metadata bulk_create requests carry at most this many file uuids each
const metadataChunkSize = 1000

// Client talks to the LTA DB REST service. It is safe for use by a single
// worker goroutine; workers are single-threaded by design, so no internal
// locking is done.
type Client struct {
	baseURL string
	http    http.Client
	tokens  oauth2.TokenSource
	retries int
}

// NewClient returns a client for the LTA DB at the given base URL. The
// token source may be nil for unauthenticated test servers. Transient
// failures (network errors and 5xx responses) are retried up to the given
// number of times with exponential backoff.
func NewClient(baseURL string, tokens oauth2.TokenSource, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    auth.SecureHTTPClient(timeout),
		tokens:  tokens,
		retries: retries,
	}
}

// PopTransferRequest atomically claims at most one unclaimed TransferRequest
// matching the source and dest site selectors. A nil record with a nil error
// means no work is available.
func (client *Client) PopTransferRequest(ctx context.Context, source, dest, claimant string) (*TransferRequest, error) {
	query := url.Values{}
	query.Set("source", source)
	query.Set("dest", dest)
	body, err := client.do(ctx, http.MethodPost, "/TransferRequests/actions/pop?"+query.Encode(),
		map[string]any{"claimant": claimant}, nil)
	if err != nil {
		return nil, err
	}
	var popped struct {
		TransferRequest *TransferRequest `json:"transfer_request"`
	}
	err = json.Unmarshal(body, &popped)
	if err != nil {
		return nil, err
	}
	return popped.TransferRequest, nil
}

// PopBundle atomically claims at most one unclaimed Bundle at the given
// status matching the site selectors. A nil record with a nil error means
// no work is available.
func (client *Client) PopBundle(ctx context.Context, source, dest, status, claimant string) (*Bundle, error) {
	query := url.Values{}
	query.Set("source", source)
	query.Set("dest", dest)
	query.Set("status", status)
	body, err := client.do(ctx, http.MethodPost, "/Bundles/actions/pop?"+query.Encode(),
		map[string]any{"claimant": claimant}, nil)
	if err != nil {
		return nil, err
	}
	var popped struct {
		Bundle *Bundle `json:"bundle"`
	}
	err = json.Unmarshal(body, &popped)
	if err != nil {
		return nil, err
	}
	return popped.Bundle, nil
}

// CreateBundles bulk-creates the given bundles and returns their uuids.
func (client *Client) CreateBundles(ctx context.Context, bundles []Bundle) ([]string, error) {
	body, err := client.do(ctx, http.MethodPost, "/Bundles/actions/bulk_create",
		map[string]any{"bundles": bundles}, nil)
	if err != nil {
		return nil, err
	}
	var created struct {
		Bundles []string `json:"bundles"`
	}
	err = json.Unmarshal(body, &created)
	if err != nil {
		return nil, err
	}
	return created.Bundles, nil
}

// CreateMetadata records the mapping from a bundle to the File Catalog
// records it carries, chunking the uuids so no single request exceeds the
// bulk_create limit. It returns the total number of rows created.
func (client *Client) CreateMetadata(ctx context.Context, bundleUUID string, fileUUIDs []string) (int, error) {
	total := 0
	for start := 0; start < len(fileUUIDs); start += metadataChunkSize {
		stop := min(start+metadataChunkSize, len(fileUUIDs))
		body, err := client.do(ctx, http.MethodPost, "/Metadata/actions/bulk_create",
			map[string]any{"bundle_uuid": bundleUUID, "files": fileUUIDs[start:stop]}, nil)
		if err != nil {
			return total, err
		}
		var created struct {
			Count int `json:"count"`
		}
		err = json.Unmarshal(body, &created)
		if err != nil {
			return total, err
		}
		total += created.Count
	}
	return total, nil
}

// Metadata returns one page of Metadata rows for the given bundle.
func (client *Client) Metadata(ctx context.Context, bundleUUID string, limit, skip int) ([]Metadata, error) {
	query := url.Values{}
	query.Set("bundle_uuid", bundleUUID)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("skip", strconv.Itoa(skip))
	body, err := client.do(ctx, http.MethodGet, "/Metadata?"+query.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Results []Metadata `json:"results"`
	}
	err = json.Unmarshal(body, &page)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// AllMetadata pages through every Metadata row for the given bundle.
func (client *Client) AllMetadata(ctx context.Context, bundleUUID string, pageSize int) ([]Metadata, error) {
	var rows []Metadata
	for skip := 0; ; skip += pageSize {
		page, err := client.Metadata(ctx, bundleUUID, pageSize, skip)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if len(page) < pageSize {
			return rows, nil
		}
	}
}

// GetBundle fetches one Bundle by uuid.
func (client *Client) GetBundle(ctx context.Context, uuid string) (*Bundle, error) {
	body, err := client.do(ctx, http.MethodGet, "/Bundles/"+uuid, nil, nil)
	if err != nil {
		return nil, err
	}
	var bundle Bundle
	err = json.Unmarshal(body, &bundle)
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

// GetTransferRequest fetches one TransferRequest by uuid.
func (client *Client) GetTransferRequest(ctx context.Context, uuid string) (*TransferRequest, error) {
	body, err := client.do(ctx, http.MethodGet, "/TransferRequests/"+uuid, nil, nil)
	if err != nil {
		return nil, err
	}
	var request TransferRequest
	err = json.Unmarshal(body, &request)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// PatchBundle applies a partial update to a Bundle. The server validates
// any status transition the update contains.
func (client *Client) PatchBundle(ctx context.Context, uuid string, update map[string]any) error {
	_, err := client.do(ctx, http.MethodPatch, "/Bundles/"+uuid, update, nil)
	return err
}

// PatchBundleIfClaimed applies a partial update that only succeeds while the
// caller still holds the claim on the bundle. Components use this before any
// destructive side effect, so a worker whose lease was stolen cannot delete
// warehouse files out from under the new claimant.
func (client *Client) PatchBundleIfClaimed(ctx context.Context, uuid, claimant string, update map[string]any) error {
	headers := map[string]string{claimantHeader: claimant}
	_, err := client.do(ctx, http.MethodPatch, "/Bundles/"+uuid, update, headers)
	var requestErr *RequestError
	if err != nil {
		if asRequestError(err, &requestErr) && requestErr.StatusCode == http.StatusConflict {
			return &ClaimLostError{UUID: uuid, Claimant: claimant}
		}
		return err
	}
	return nil
}

// PatchTransferRequest applies a partial update to a TransferRequest.
func (client *Client) PatchTransferRequest(ctx context.Context, uuid string, update map[string]any) error {
	_, err := client.do(ctx, http.MethodPatch, "/TransferRequests/"+uuid, update, nil)
	return err
}

// PatchTransferRequestIfClaimed applies a partial update that only succeeds
// while the caller still holds the claim on the request.
func (client *Client) PatchTransferRequestIfClaimed(ctx context.Context, uuid, claimant string, update map[string]any) error {
	headers := map[string]string{claimantHeader: claimant}
	_, err := client.do(ctx, http.MethodPatch, "/TransferRequests/"+uuid, update, headers)
	var requestErr *RequestError
	if err != nil {
		if asRequestError(err, &requestErr) && requestErr.StatusCode == http.StatusConflict {
			return &ClaimLostError{UUID: uuid, Claimant: claimant}
		}
		return err
	}
	return nil
}

// QuarantineBundle moves a bundle to the quarantine lane, preserving its
// current status for later operator reset. The PATCH is conditional on the
// worker still holding the claim, so a replica whose lease went stale
// cannot yank a record out from under the new claimant; a lost claim
// surfaces as ClaimLostError.
func (client *Client) QuarantineBundle(ctx context.Context, bundle *Bundle, worker, reason string) error {
	return client.PatchBundleIfClaimed(ctx, bundle.UUID, worker, map[string]any{
		"original_status":         bundle.Status,
		"status":                  BundleStatusQuarantined,
		"reason":                  fmt.Sprintf("BY:%s REASON:%s", worker, reason),
		"work_priority_timestamp": Now(),
	})
}

// QuarantineTransferRequest moves a transfer request to the quarantine
// lane. Conditional on the claim the same way QuarantineBundle is.
func (client *Client) QuarantineTransferRequest(ctx context.Context, request *TransferRequest, worker, reason string) error {
	return client.PatchTransferRequestIfClaimed(ctx, request.UUID, worker, map[string]any{
		"original_status":         request.Status,
		"status":                  RequestStatusQuarantined,
		"reason":                  fmt.Sprintf("BY:%s REASON:%s", worker, reason),
		"work_priority_timestamp": Now(),
	})
}

// UnclaimBundle releases a claimed bundle without changing its status, for
// work that turned out not to be ready yet.
func (client *Client) UnclaimBundle(ctx context.Context, uuid string) error {
	return client.PatchBundle(ctx, uuid, map[string]any{
		"claimed":                 false,
		"claimant":                "",
		"work_priority_timestamp": Now(),
	})
}

// PatchStatus reports component liveness to the LTA DB status endpoint.
// Failures here are expected to be logged and otherwise ignored by callers.
func (client *Client) PatchStatus(ctx context.Context, component string, report map[string]any) error {
	_, err := client.do(ctx, http.MethodPatch, "/status/"+component, report, nil)
	return err
}

//-----------
// Internals
//-----------

// do issues one request against the LTA DB, retrying transient failures.
// Responses with 2xx statuses return the response body; 4xx statuses fail
// immediately since retrying a bad request cannot help.
func (client *Client) do(ctx context.Context, method, resource string, payload any, headers map[string]string) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= client.retries; attempt++ {
		if attempt > 0 {
			// exponential backoff: 1s, 2s, 4s, ...
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, retryable, err := client.attempt(ctx, method, resource, encoded, headers)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (client *Client) attempt(ctx context.Context, method, resource string, encoded []byte, headers map[string]string) ([]byte, bool, error) {
	var reader io.Reader
	if encoded != nil {
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, client.baseURL+resource, reader)
	if err != nil {
		return nil, false, err
	}
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	if client.tokens != nil {
		token, err := client.tokens.Token()
		if err != nil {
			return nil, false, err
		}
		token.SetAuthHeader(req)
	}

	resp, err := client.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, false, nil
	case resp.StatusCode >= 500:
		return nil, true, &RequestError{
			Method:     method,
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	default:
		return nil, false, &RequestError{
			Method:     method,
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}
}
