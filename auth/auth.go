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

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/StalkR/hsts"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// This package provides the OIDC client-credentials flow used by all pipeline
// components to authenticate with the LTA DB and the File Catalog, plus a
// hardened HTTP client shared by the REST clients.

// NewTokenSource discovers the token endpoint of the given OpenID provider
// and returns a self-refreshing token source for the client-credentials
// grant. Tokens are opaque to the pipeline; they are attached as bearer
// tokens and never logged.
func NewTokenSource(ctx context.Context, openidURL, clientID, clientSecret string) (oauth2.TokenSource, error) {
	tokenEndpoint, err := discoverTokenEndpoint(ctx, openidURL)
	if err != nil {
		return nil, err
	}
	conf := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenEndpoint,
	}
	return conf.TokenSource(ctx), nil
}

// fetches <openidURL>/.well-known/openid-configuration and extracts the
// token endpoint from the provider metadata
func discoverTokenEndpoint(ctx context.Context, openidURL string) (string, error) {
	wellKnown := strings.TrimRight(openidURL, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, http.NoBody)
	if err != nil {
		return "", err
	}
	client := http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", &DiscoveryError{URL: wellKnown, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &DiscoveryError{URL: wellKnown, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	type providerMetadata struct {
		TokenEndpoint string `json:"token_endpoint"`
	}
	var metadata providerMetadata
	err = json.Unmarshal(body, &metadata)
	if err != nil {
		return "", &DiscoveryError{URL: wellKnown, Message: err.Error()}
	}
	if metadata.TokenEndpoint == "" {
		return "", &DiscoveryError{URL: wellKnown, Message: "provider metadata has no token_endpoint"}
	}
	return metadata.TokenEndpoint, nil
}

// Here's a secure HTTP client used to connect to the LTA DB and the File
// Catalog. It sets a reasonable timeout and enables HTTP Strict Transport
// Security (HSTS).
func SecureHTTPClient(timeout time.Duration) http.Client {
	client := http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme == "http" {
				return &DowngradedRedirectError{
					Endpoint: fmt.Sprintf("%s%s", req.URL.Host, req.URL.Path),
				}
			}
			return http.ErrUseLastResponse
		},
	}
	client.Transport = hsts.New(client.Transport) // enable HSTS
	return client
}
