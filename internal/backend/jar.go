// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package backend

import (
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names set by the accounts API.
const (
	AccessCookie  = "access"
	RefreshCookie = "refresh"
)

// Jar holds the backend cookies of one browser session. It implements
// http.CookieJar for a single backend host, so the request URL is ignored.
// Its contents round-trip through Export and NewJar for storage in the
// portal's own session.
type Jar struct {
	mu      sync.Mutex
	cookies map[string]string
	now     func() time.Time
}

var _ http.CookieJar = (*Jar)(nil)

// NewJar returns a jar seeded with values. The map is copied.
func NewJar(values map[string]string) *Jar {
	j := &Jar{cookies: make(map[string]string, len(values)), now: time.Now}
	for k, v := range values {
		if v != "" {
			j.cookies[k] = v
		}
	}
	return j
}

// SetCookies stores cookies from a response, honouring deletions.
func (j *Jar) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		expired := c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now))
		if expired || c.Value == "" {
			delete(j.cookies, c.Name)
			continue
		}
		j.cookies[c.Name] = c.Value
	}
}

// Cookies returns the stored cookies in name order.
func (j *Jar) Cookies(_ *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	names := make([]string, 0, len(j.cookies))
	for name := range j.cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, &http.Cookie{Name: name, Value: j.cookies[name]})
	}
	return out
}

// Export returns a copy of the jar contents.
func (j *Jar) Export() map[string]string {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make(map[string]string, len(j.cookies))
	for k, v := range j.cookies {
		out[k] = v
	}
	return out
}

// Has reports whether a cookie is present.
func (j *Jar) Has(name string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.cookies[name]
	return ok
}

// Clear drops every cookie.
func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = make(map[string]string)
}

// AccessTokenExpiry reads the exp claim of the access cookie. The token is
// not verified; the backend remains the authority, this is only used to
// decide when cached identity must be re-checked.
func (j *Jar) AccessTokenExpiry() (time.Time, bool) {
	j.mu.Lock()
	token := j.cookies[AccessCookie]
	j.mu.Unlock()

	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
