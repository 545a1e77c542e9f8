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

package filecatalog

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

// Client talks to the File Catalog REST service.
type Client struct {
	baseURL string
	http    http.Client
	tokens  oauth2.TokenSource
}

// NewClient returns a client for the File Catalog at the given base URL.
// The token source may be nil for unauthenticated test servers.
func NewClient(baseURL string, tokens oauth2.TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    auth.SecureHTTPClient(timeout),
		tokens:  tokens,
	}
}

// Query fetches one page of records matching the given selector document,
// asking the catalog to return only the named keys. Selectors follow the
// catalog's query language, e.g.
//
//	{"locations.site": {"$eq": "WIPAC"}, "logical_name": {"$regex": "^/data/exp"}}
func (client *Client) Query(ctx context.Context, selector map[string]any, keys []string, limit, start int) ([]Record, error) {
	encoded, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("query", string(encoded))
	if len(keys) > 0 {
		query.Set("keys", strings.Join(keys, "|"))
	}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("start", strconv.Itoa(start))

	body, err := client.do(ctx, http.MethodGet, "/api/files?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Files []Record `json:"files"`
	}
	err = json.Unmarshal(body, &page)
	if err != nil {
		return nil, err
	}
	return page.Files, nil
}

// Get fetches one record by uuid.
func (client *Client) Get(ctx context.Context, uuid string) (*Record, error) {
	body, err := client.do(ctx, http.MethodGet, "/api/files/"+uuid, nil)
	if err != nil {
		return nil, err
	}
	var record Record
	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Create registers a new record and returns its uuid.
func (client *Client) Create(ctx context.Context, record Record) (string, error) {
	body, err := client.do(ctx, http.MethodPost, "/api/files", record)
	if err != nil {
		return "", err
	}
	var created struct {
		UUID string `json:"uuid"`
		// older catalogs answer with a _links self href instead of a uuid
		Links struct {
			Self struct {
				Href string `json:"href"`
			} `json:"self"`
		} `json:"_links"`
	}
	err = json.Unmarshal(body, &created)
	if err != nil {
		return "", err
	}
	if created.UUID != "" {
		return created.UUID, nil
	}
	if href := created.Links.Self.Href; href != "" {
		return href[strings.LastIndex(href, "/")+1:], nil
	}
	return "", &ResponseError{Resource: "/api/files", Message: "create response carried no uuid"}
}

// Update applies a partial update to a record.
func (client *Client) Update(ctx context.Context, uuid string, update map[string]any) error {
	_, err := client.do(ctx, http.MethodPatch, "/api/files/"+uuid, update)
	return err
}

// AddLocation appends locations to a record without disturbing the ones
// already there.
func (client *Client) AddLocation(ctx context.Context, uuid string, locations []Location) error {
	_, err := client.do(ctx, http.MethodPost, "/api/files/"+uuid+"/locations",
		map[string]any{"locations": locations})
	return err
}

//-----------
// Internals
//-----------

func (client *Client) do(ctx context.Context, method, resource string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, client.baseURL+resource, reader)
	if err != nil {
		return nil, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if client.tokens != nil {
		token, err := client.tokens.Token()
		if err != nil {
			return nil, err
		}
		token.SetAuthHeader(req)
	}

	resp, err := client.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Resource: resource}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ResponseError{
			Resource: resource,
			Message:  fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	return body, nil
}
