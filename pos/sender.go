/*
Copyright 2024 TillSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tillsync/tillsync/model"
)

const (
	SenderRetryable    = "RETRYABLE"
	SenderNonRetryable = "NON_RETRYABLE"
)

// Sender is the transport boundary of the drainer. It receives the job under
// attempt together with its reserved lease token, so the transport can
// correlate its traffic with the attempt that authorized it. A nil return
// means the server durably holds the transaction; a DUPLICATE acknowledgement
// is a success and must come back as nil too.
type Sender interface {
	Send(ctx context.Context, job *model.OutboxJob, attemptToken int64, payload *model.SalePayload) error
}

// SenderError is a classified transmission failure. RETRYABLE failures come
// back quickly; NON_RETRYABLE ones are retried on the slow schedule rather
// than dropped, since the cause may be fixed server-side.
type SenderError struct {
	Class  string
	Code   string
	Detail string
}

func (e *SenderError) Error() string {
	return fmt.Sprintf("send failed (%s/%s): %s", e.Class, e.Code, e.Detail)
}

// Retryable reports whether err is a SenderError of the RETRYABLE class.
// Unclassified errors are not retryable in this sense; the drainer treats
// them as generic failures on the fast schedule anyway.
func Retryable(err error) bool {
	senderErr, ok := err.(*SenderError)
	return ok && senderErr.Class == SenderRetryable
}

// HTTPSender pushes payloads to the server's sync endpoint.
type HTTPSender struct {
	client    *http.Client
	serverURL string
	secretKey string
}

func NewHTTPSender(serverURL, secretKey string) *HTTPSender {
	return &HTTPSender{
		client:    &http.Client{Timeout: 30 * time.Second},
		serverURL: serverURL,
		secretKey: secretKey,
	}
}

type pushRequest struct {
	Transactions []model.SalePayload `json:"transactions"`
}

type pushResult struct {
	ClientTxID string `json:"client_tx_id"`
	Result     string `json:"result"`
	Code       string `json:"code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

type pushResponse struct {
	Results []pushResult `json:"results"`
}

func (s *HTTPSender) Send(ctx context.Context, job *model.OutboxJob, attemptToken int64, payload *model.SalePayload) error {
	body, err := json.Marshal(pushRequest{Transactions: []model.SalePayload{*payload}})
	if err != nil {
		return &SenderError{Class: SenderNonRetryable, Code: "ENCODING", Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/sync/pos-transactions", bytes.NewReader(body))
	if err != nil {
		return &SenderError{Class: SenderNonRetryable, Code: "REQUEST", Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tillsync-Job", job.JobID)
	req.Header.Set("X-Tillsync-Attempt", strconv.FormatInt(attemptToken, 10))
	if s.secretKey != "" {
		req.Header.Set("X-Tillsync-Key", s.secretKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Offline or unreachable server is the normal case for this client;
		// the job just waits for the next drain.
		return &SenderError{Class: SenderRetryable, Code: "TRANSPORT", Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SenderError{Class: SenderRetryable, Code: "TRANSPORT", Detail: err.Error()}
	}

	switch {
	case resp.StatusCode >= 500:
		return &SenderError{Class: SenderRetryable, Code: "SERVER", Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &SenderError{Class: SenderNonRetryable, Code: "AUTH", Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return &SenderError{Class: SenderNonRetryable, Code: "HTTP", Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var parsed pushResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &SenderError{Class: SenderRetryable, Code: "DECODING", Detail: err.Error()}
	}

	for _, result := range parsed.Results {
		if result.ClientTxID != payload.ClientTxID {
			continue
		}
		return classifyResult(result)
	}
	return &SenderError{Class: SenderRetryable, Code: "MISSING_RESULT", Detail: "server response did not cover this transaction"}
}

// classifyResult maps a per-document server verdict onto the retry schedule.
// DUPLICATE means the server already has it, which is exactly as good as OK.
func classifyResult(result pushResult) error {
	switch result.Result {
	case "OK", "DUPLICATE":
		return nil
	}
	if result.Code == "RETRYABLE" {
		return &SenderError{Class: SenderRetryable, Code: result.Code, Detail: result.Detail}
	}
	return &SenderError{Class: SenderNonRetryable, Code: result.Code, Detail: result.Detail}
}
