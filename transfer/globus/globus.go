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

// Package globus implements the transfer service against the Globus
// Transfer API described at https://docs.globus.org/api/transfer/.
package globus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/transfer"
)

const (
	globusAuthURL            = "https://auth.globus.org/v2/oauth2/token"
	globusTransferBaseURL    = "https://transfer.api.globusonline.org"
	globusTransferApiVersion = "v0.10"
	globusTransferScope      = "urn:globus:auth:scope:transfer.api.globus.org:all"
)

// tokens are refreshed this long before their reported expiry
const tokenRefreshSlack = 5 * time.Minute

// Service satisfies the transfer.Service interface for Globus collections.
type Service struct {
	clientID         string
	clientSecret     string
	sourceCollection string
	destCollection   string
	label            string
	pollInterval     time.Duration
	client           http.Client

	// OAuth2 access token and its expiry
	accessToken string
	expires     time.Time
}

// New creates a Globus transfer service from the transfer configuration.
func New(conf config.Transfer) (transfer.Service, error) {
	if conf.Globus.ClientID == "" || conf.Globus.ClientSecret == "" {
		return nil, &config.MissingKeyError{Name: "GLOBUS_CLIENT_ID / GLOBUS_CLIENT_SECRET"}
	}
	service := &Service{
		clientID:         conf.Globus.ClientID,
		clientSecret:     conf.Globus.ClientSecret,
		sourceCollection: conf.Globus.SourceCollection,
		destCollection:   conf.Globus.DestCollection,
		label:            conf.Globus.Label,
		pollInterval:     time.Duration(conf.PollSeconds) * time.Second,
	}
	return service, nil
}

func (service *Service) Scheme() string {
	return "globus"
}

// TransferFile submits a transfer of the container at the absolute source
// path to the given path on the destination collection and returns the
// Globus task id.
func (service *Service) TransferFile(ctx context.Context, sourcePath, destPath string) (string, error) {
	return service.submit(ctx, service.sourceCollection, service.destCollection, sourcePath, destPath)
}

// RetrieveFile pulls a copy of a container from the destination collection
// back to a local path by submitting a reverse transfer and waiting for it.
func (service *Service) RetrieveFile(ctx context.Context, remotePath, localPath string) error {
	taskID, err := service.submit(ctx, service.destCollection, service.sourceCollection, remotePath, localPath)
	if err != nil {
		return err
	}
	status, err := service.WaitForTransferToFinish(ctx, taskID)
	if err != nil {
		return err
	}
	if status != transfer.StatusSucceeded {
		return &TransferError{Message: fmt.Sprintf("retrieval task %s finished %s", taskID, status)}
	}
	return nil
}

// WaitForTransferToFinish polls the task at the configured interval until
// it reaches a terminal status or the context is done.
func (service *Service) WaitForTransferToFinish(ctx context.Context, taskID string) (transfer.Status, error) {
	for {
		status, err := service.taskStatus(ctx, taskID)
		if err != nil {
			return transfer.StatusUnknown, err
		}
		if status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return transfer.StatusUnknown, ctx.Err()
		case <-time.After(service.pollInterval):
		}
	}
}

// CancelTask asks Globus to cancel a task. Because cancellation requests
// can't be honored under all circumstances this Globus call is
// asynchronous, and the documentation warns it can take up to 10 seconds
// before returning. We issue the request in the background and settle for
// best-effort execution, which is just a less elaborate framing of what
// Globus gives us anyway.
func (service *Service) CancelTask(ctx context.Context, taskID string) error {
	errChan := make(chan error, 1) // <-- captures immediately issued errors
	go func() {
		resource := fmt.Sprintf("task/%s/cancel", url.PathEscape(taskID))
		_, err := service.post(context.WithoutCancel(ctx), resource, nil) // can take up to 10 seconds!
		if err != nil {
			errChan <- err
			return
		}
		// no need to read the response
		close(errChan)
	}()
	select {
	case err := <-errChan: // error received!
		return err
	case <-time.After(10 * time.Millisecond): // short timeout period
		return nil
	}
}

//-----------
// Internals
//-----------

// authenticates with Globus using the client id and secret to obtain an
// access token (https://docs.globus.org/api/auth/reference/#client_credentials_grant)
func (service *Service) authenticate(ctx context.Context) error {
	data := url.Values{}
	data.Set("scope", globusTransferScope)
	data.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, globusAuthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(service.clientID, service.clientSecret)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := service.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return &TransferError{Message: fmt.Sprintf("couldn't authenticate via Globus Auth API (%d)", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	type AuthResponse struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	var authResponse AuthResponse
	err = json.Unmarshal(body, &authResponse)
	if err != nil {
		return err
	}

	// stash the access token; never log it
	service.accessToken = authResponse.AccessToken
	service.expires = time.Now().Add(time.Duration(authResponse.ExpiresIn) * time.Second)
	return nil
}

// refreshes the access token when it is missing or close to expiry
func (service *Service) freshen(ctx context.Context) error {
	if service.accessToken != "" && time.Until(service.expires) > tokenRefreshSlack {
		return nil
	}
	return service.authenticate(ctx)
}

func (service *Service) get(ctx context.Context, resource string, values url.Values) ([]byte, error) {
	return service.request(ctx, http.MethodGet, resource, values, nil)
}

func (service *Service) post(ctx context.Context, resource string, body []byte) ([]byte, error) {
	return service.request(ctx, http.MethodPost, resource, url.Values{}, body)
}

func (service *Service) request(ctx context.Context, method, resource string, values url.Values, payload []byte) ([]byte, error) {
	err := service.freshen(ctx)
	if err != nil {
		return nil, err
	}
	u, err := url.ParseRequestURI(globusTransferBaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = fmt.Sprintf("%s/%s", globusTransferApiVersion, resource)
	u.RawQuery = values.Encode()
	res := u.String()
	slog.Debug(fmt.Sprintf("%s: %s", method, res))
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, res, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", service.accessToken))
	if payload != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	resp, err := service.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// https://docs.globus.org/api/transfer/task_submit/#get_submission_id
func (service *Service) getSubmissionId(ctx context.Context) (string, error) {
	body, err := service.get(ctx, "submission_id", url.Values{})
	if err != nil {
		return "", err
	}
	type SubmissionIdResponse struct {
		Value string `json:"value"`
	}
	var response SubmissionIdResponse
	err = json.Unmarshal(body, &response)
	if err != nil {
		return "", err
	}
	if response.Value == "" {
		return "", &TransferError{Message: "Globus returned an empty submission id"}
	}
	return response.Value, nil
}

// https://docs.globus.org/api/transfer/task_submit/#submit_transfer_task
// https://docs.globus.org/api/transfer/task_submit/#transfer_item_fields
func (service *Service) submit(ctx context.Context, sourceCollection, destCollection, sourcePath, destPath string) (string, error) {
	submissionId, err := service.getSubmissionId(ctx)
	if err != nil {
		return "", err
	}

	type TransferItem struct {
		DataType        string `json:"DATA_TYPE"` // "transfer_item"
		SourcePath      string `json:"source_path"`
		DestinationPath string `json:"destination_path"`
	}
	type SubmissionRequest struct {
		DataType            string         `json:"DATA_TYPE"` // "transfer"
		Id                  string         `json:"submission_id"`
		Label               string         `json:"label"`
		Data                []TransferItem `json:"DATA"`
		DestinationEndpoint string         `json:"destination_endpoint"`
		SourceEndpoint      string         `json:"source_endpoint"`
		SyncLevel           int            `json:"sync_level"`
		VerifyChecksum      bool           `json:"verify_checksum"`
		FailOnQuotaErrors   bool           `json:"fail_on_quota_errors"`
		NotifyOnSucceeded   bool           `json:"notify_on_succeeded"`
		NotifyOnFailed      bool           `json:"notify_on_failed"`
	}
	data, err := json.Marshal(SubmissionRequest{
		DataType: "transfer",
		Id:       submissionId,
		Label:    service.label,
		Data: []TransferItem{{
			DataType:        "transfer_item",
			SourcePath:      sourcePath,
			DestinationPath: destPath,
		}},
		DestinationEndpoint: destCollection,
		SourceEndpoint:      sourceCollection,
		SyncLevel:           2, // transfer if size or mtime differ
		VerifyChecksum:      true,
		FailOnQuotaErrors:   true,
	})
	if err != nil {
		return "", err
	}
	body, err := service.post(ctx, "transfer", data)
	if err != nil {
		return "", err
	}
	type SubmissionResponse struct {
		TaskId  string `json:"task_id"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	var response SubmissionResponse
	err = json.Unmarshal(body, &response)
	if err != nil {
		return "", err
	}
	if response.TaskId == "" { // trouble!
		return "", &TransferError{Message: fmt.Sprintf("%s (%s)", response.Message, response.Code)}
	}
	return response.TaskId, nil
}

// mapping of Globus status code strings to pipeline status codes
var statusCodesForStrings = map[string]transfer.Status{
	"ACTIVE":    transfer.StatusActive,
	"INACTIVE":  transfer.StatusInactive,
	"SUCCEEDED": transfer.StatusSucceeded,
	"FAILED":    transfer.StatusFailed,
}

// https://docs.globus.org/api/transfer/task/#get_task_by_id
func (service *Service) taskStatus(ctx context.Context, taskID string) (transfer.Status, error) {
	resource := fmt.Sprintf("task/%s", url.PathEscape(taskID))
	body, err := service.get(ctx, resource, url.Values{})
	if err != nil {
		return transfer.StatusUnknown, err
	}
	type TaskResponse struct {
		Status string `json:"status"`
		// the following fields are present only when an error occurs
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	var response TaskResponse
	err = json.Unmarshal(body, &response)
	if err != nil {
		return transfer.StatusUnknown, err
	}
	if strings.Contains(response.Code, "ClientError") { // e.g. not found
		return transfer.StatusUnknown, &transfer.TaskNotFoundError{TaskID: taskID}
	}
	return statusCodesForStrings[response.Status], nil
}
