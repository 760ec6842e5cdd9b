// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for sessions, route guards,
// login protection and response headers.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/session"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// Context keys for request data.
const (
	ContextKeyHandle  ContextKey = "session_handle"
	ContextKeyRenewal ContextKey = "renewal_notice"
)

// LoadSession attaches the browser's session handle to the request context.
// A store that is still bootstrapping is given up to settleWait to finish
// before the request continues. The handle is persisted into the scs
// session before the first byte of the response goes out.
//
// It must run inside the scs LoadAndSave middleware.
func LoadSession(m *session.Manager, settleWait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := m.Load(r.Context())

			if settleWait > 0 && h.Store.State() == session.StateLoading {
				ctx, cancel := context.WithTimeout(r.Context(), settleWait)
				h.Store.WaitSettled(ctx)
				cancel()
			}

			pw := &persistWriter{ResponseWriter: w}
			pw.persist = func() { m.Persist(r.Context(), h) }

			ctx := context.WithValue(r.Context(), ContextKeyHandle, h)
			next.ServeHTTP(pw, r.WithContext(ctx))
			pw.flush()
		})
	}
}

// persistWriter runs persist once, before headers are committed.
type persistWriter struct {
	http.ResponseWriter
	persist func()
	once    sync.Once
}

func (w *persistWriter) flush() {
	w.once.Do(w.persist)
}

func (w *persistWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *persistWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *persistWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// GetHandle returns the session handle for the request, or nil.
func GetHandle(r *http.Request) *session.Handle {
	h, _ := r.Context().Value(ContextKeyHandle).(*session.Handle)
	return h
}

// GetStore returns the session store for the request, or nil.
func GetStore(r *http.Request) *session.Store {
	if h := GetHandle(r); h != nil {
		return h.Store
	}
	return nil
}

// GetUser returns the signed-in user, or nil for anonymous requests.
func GetUser(r *http.Request) *model.User {
	if s := GetStore(r); s != nil {
		return s.User()
	}
	return nil
}

// GetUserIDPtr returns a pointer to the current user's ID, or nil.
// Useful for optional user ID parameters in event logging.
func GetUserIDPtr(r *http.Request) *int64 {
	if user := GetUser(r); user != nil {
		id := user.ID
		return &id
	}
	return nil
}
