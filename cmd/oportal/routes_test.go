// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/olegiv/oportal-go/internal/backend"
	"github.com/olegiv/oportal-go/internal/cache"
	"github.com/olegiv/oportal-go/internal/config"
	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/render"
	"github.com/olegiv/oportal-go/internal/service"
	"github.com/olegiv/oportal-go/internal/session"
	"github.com/olegiv/oportal-go/internal/store"
	"github.com/olegiv/oportal-go/web"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	// Every backend call is unauthenticated.
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Authentication credentials were not provided."}`)
	}))
	t.Cleanup(api.Close)

	cfg := &config.Config{
		SessionSecret:      "Test-Secret-0123456789-abcdefghijk",
		ServerPort:         8080,
		Env:                "development",
		BackendURL:         api.URL + "/api/",
		CatalogTTL:         time.Minute,
		SnapshotTTL:        time.Minute,
		RenewalWarningDays: 7,
		PaymentMinAmount:   10,
		PaymentMaxAmount:   50000,
		CheckoutScriptURL:  "https://checkout.example.com/v1/checkout.js",
	}

	db, err := store.NewDB(filepath.Join(t.TempDir(), "routes.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	client, err := backend.New(backend.Config{BaseURL: cfg.BackendURL})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	sessions := session.New(db, true)
	manager := session.NewManager(sessions, client, session.ManagerConfig{SnapshotTTL: cfg.SnapshotTTL})

	renderer, err := render.New(render.Config{TemplatesFS: web.TemplatesFS(), SessionManager: sessions})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}

	mem := cache.NewMemoryCache(cache.MemoryOptions{})
	t.Cleanup(func() { _ = mem.Close() })
	lp := middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig())
	t.Cleanup(lp.Close)

	router := newRouter(routerDeps{
		cfg:             cfg,
		db:              db,
		sessions:        sessions,
		manager:         manager,
		renderer:        renderer,
		cache:           mem,
		catalog:         cache.NewCatalog(mem, cfg.CatalogTTL, nil),
		events:          service.NewEventService(db),
		loginProtection: lp,
		logger:          slog.Default(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestRouter_PublicEndpoints(t *testing.T) {
	srv := testServer(t)
	client := noRedirectClient()

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/health/live", http.StatusOK, `"alive"`},
		{"/health/ready", http.StatusOK, `"ready"`},
		{"/health", http.StatusOK, `"healthy"`},
		{"/metrics", http.StatusOK, "go_goroutines"},
		{"/robots.txt", http.StatusOK, "Disallow: /"},
		{"/static/dist/portal.js", http.StatusOK, "portalGoogleLogin"},
		{"/auth/login", http.StatusOK, "Sign in"},
		{"/", http.StatusOK, "CRM System"},
		{"/missing", http.StatusNotFound, "Page not found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := client.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body does not contain %q", tt.wantBody)
			}
		})
	}
}

func TestRouter_GuardedPagesRedirectToLogin(t *testing.T) {
	srv := testServer(t)
	client := noRedirectClient()

	for _, path := range []string{"/dashboard", "/payments", "/product/crm", "/product/privacy", "/manager", "/admin/system"} {
		t.Run(path, func(t *testing.T) {
			resp, err := client.Get(srv.URL + path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			_ = resp.Body.Close()

			if resp.StatusCode != http.StatusSeeOther {
				t.Errorf("status = %d, want 303", resp.StatusCode)
			}
			if got := resp.Header.Get("Location"); got != "/auth/login" {
				t.Errorf("Location = %q, want /auth/login", got)
			}
			if got := resp.Header.Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}
		})
	}
}

func TestRouter_LegacyProductRedirects(t *testing.T) {
	srv := testServer(t)
	client := noRedirectClient()

	for path, want := range map[string]string{
		"/product/dashboard": "/dashboard",
		"/product/payment":   "/payments",
	} {
		resp, err := client.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusMovedPermanently || resp.Header.Get("Location") != want {
			t.Errorf("GET %s = %d %q, want 301 %q", path, resp.StatusCode, resp.Header.Get("Location"), want)
		}
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/auth/login")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()

	csp := resp.Header.Get("Content-Security-Policy")
	if !strings.Contains(csp, "https://checkout.example.com") {
		t.Errorf("CSP %q does not allow the checkout origin", csp)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Options missing")
	}
}

func TestRouter_RejectsCrossSiteLogin(t *testing.T) {
	srv := testServer(t)

	form := url.Values{"email": {"user@example.com"}, "password": {"secret123"}}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Sec-Fetch-Site", "cross-site")

	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}
