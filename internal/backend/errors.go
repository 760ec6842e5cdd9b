// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrUnauthorized matches API errors with status 401 or 403.
var ErrUnauthorized = errors.New("backend: unauthorized")

// GenericErrorMessage is shown when the backend gives no usable message.
const GenericErrorMessage = "Something went wrong. Please try again."

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match auth failures.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Message extracts a user-facing message from err. Backend-provided text
// wins; anything else yields fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// messageKeys are checked in order when decoding an error body.
var messageKeys = []string{"error", "message", "detail", "non_field_errors"}

// parseErrorMessage pulls a readable message out of a DRF-style error body.
// Known keys come first, then the first field error in key order.
func parseErrorMessage(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}

	for _, key := range messageKeys {
		if msg := rawMessage(fields[key]); msg != "" {
			return msg
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "success" {
			continue
		}
		if msg := rawMessage(fields[k]); msg != "" {
			return k + ": " + msg
		}
	}
	return ""
}

// rawMessage decodes a string, a list of strings or a nested object of them.
func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, " "))
	}

	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err == nil {
		return parseErrorMessage(raw)
	}
	return ""
}
