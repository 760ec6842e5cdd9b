// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session keeps per-browser authentication state. The scs session
// manager carries a session id, the backend cookies and a Snapshot of the
// Store; a Manager maps session ids to live Stores.
package session

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/oportal-go/internal/model"
)

// Session cookie names. Production uses the __Host- prefix, which browsers
// only accept over HTTPS with Path=/ and no Domain.
const (
	CookieName       = "oportal_session"
	SecureCookieName = "__Host-oportal_session"
)

// New creates a new session manager configured with SQLite store.
func New(db *sql.DB, isDev bool) *scs.SessionManager {
	sm := scs.New()

	// Use SQLite store
	sm.Store = sqlite3store.New(db)

	// Configure session
	sm.Lifetime = 24 * time.Hour
	sm.IdleTimeout = 12 * time.Hour
	sm.Cookie.Name = CookieName
	sm.Cookie.Path = "/"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = !isDev // Secure cookies in production only
	if !isDev {
		sm.Cookie.Name = SecureCookieName
	}

	return sm
}

// Snapshot is the persisted form of a settled Store.
type Snapshot struct {
	State     State                `json:"state"`
	User      *model.User          `json:"user,omitempty"`
	Features  []model.FeatureGrant `json:"features"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// Snapshot captures the store. A loading or uninitialized store yields a
// snapshot that Restore ignores.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		State:     s.state,
		Features:  make([]model.FeatureGrant, len(s.features)),
		FetchedAt: s.fetchedAt,
	}
	copy(snap.Features, s.features)
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// Restore installs a previously captured snapshot. It reports false, and
// leaves the store alone, when the snapshot is not a settled state or
// claims authentication without a user.
func (s *Store) Restore(snap Snapshot) bool {
	if !snap.State.Settled() {
		return false
	}
	if snap.State == StateAuthenticated && snap.User == nil {
		return false
	}

	features := snap.Features

	s.mu.Lock()
	s.generation++
	if snap.State == StateAnonymous {
		s.user = nil
		s.features = []model.FeatureGrant{}
	} else {
		u := *snap.User
		s.user = &u
		s.features = make([]model.FeatureGrant, len(features))
		copy(s.features, features)
	}
	s.fetchedAt = snap.FetchedAt
	s.setStateLocked(snap.State)
	s.mu.Unlock()
	s.notify()
	return true
}
