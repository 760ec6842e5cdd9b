// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"

	"github.com/go-chi/render"
)

// jsonError is the error body of every JSON endpoint.
type jsonError struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, jsonError{Error: message})
}

// writeJSONFieldErrors writes a 422 response listing invalid fields.
func writeJSONFieldErrors(w http.ResponseWriter, r *http.Request, message string, fields map[string]string) {
	render.Status(r, http.StatusUnprocessableEntity)
	render.JSON(w, r, jsonError{Error: message, Fields: fields})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v any) {
	render.Status(r, statusCode)
	render.JSON(w, r, v)
}
