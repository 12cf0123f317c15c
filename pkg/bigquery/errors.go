// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bigquery

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError carries a BigQuery API failure with the backend's native error
// body preserved verbatim, so callers can surface it without loss.
type APIError struct {
	StatusCode int             `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Message    string          `json:"message"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bigquery: %s (%d %s)", e.Message, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("bigquery: %s (%d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a backend not-found failure.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsInvalidQuery reports whether err is a query-level failure (malformed
// SQL, unknown table). These surface as tool execution errors rather than
// transport errors.
func IsInvalidQuery(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Reason {
	case "invalidQuery", "invalid", "badRequest":
		return apiErr.StatusCode == http.StatusBadRequest
	}
	return false
}

// googleErrorBody is the standard error envelope of Google Cloud APIs.
type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// apiErrorFromBody parses an error response body into an APIError. The raw
// body is preserved even when it does not parse.
func apiErrorFromBody(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
		Raw:        json.RawMessage(body),
	}

	var parsed googleErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		if len(parsed.Error.Errors) > 0 {
			apiErr.Reason = parsed.Error.Errors[0].Reason
		}
	}
	return apiErr
}
