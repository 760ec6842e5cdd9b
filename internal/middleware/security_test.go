// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		isDev    bool
		wantHSTS bool
		wantEval bool
	}{
		{name: "production mode enables HSTS", isDev: false, wantHSTS: true},
		{name: "development mode disables HSTS", isDev: true, wantEval: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSecurityHeadersConfig(tt.isDev, "https://checkout.razorpay.com")
			handler := SecurityHeaders(cfg)(okHandler())

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			hsts := rec.Header().Get("Strict-Transport-Security")
			if tt.wantHSTS && hsts != "max-age=31536000; includeSubDomains" {
				t.Errorf("HSTS = %q", hsts)
			}
			if !tt.wantHSTS && hsts != "" {
				t.Errorf("expected no HSTS header but got: %s", hsts)
			}

			csp := rec.Header().Get("Content-Security-Policy")
			if !strings.HasPrefix(csp, "default-src 'self'; script-src") {
				t.Errorf("CSP = %q, want default-src first", csp)
			}
			if got := strings.Contains(csp, "'unsafe-eval'"); got != tt.wantEval {
				t.Errorf("unsafe-eval present = %v, want %v", got, tt.wantEval)
			}

			if got := rec.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
				t.Errorf("X-Frame-Options = %q, want SAMEORIGIN", got)
			}
			if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
			}
			if got := rec.Header().Get("Referrer-Policy"); got != "strict-origin-when-cross-origin" {
				t.Errorf("Referrer-Policy = %q", got)
			}
		})
	}
}

func TestSecurityHeaders_CheckoutOrigin(t *testing.T) {
	cfg := DefaultSecurityHeadersConfig(false, "https://checkout.razorpay.com")

	for _, directive := range []string{"script-src", "connect-src", "frame-src"} {
		if !directiveAllows(cfg.ContentSecurityPolicy, directive, "https://checkout.razorpay.com") {
			t.Errorf("%s does not allow the checkout origin: %s", directive, cfg.ContentSecurityPolicy)
		}
		if !directiveAllows(cfg.ContentSecurityPolicy, directive, googleIdentityOrigin) {
			t.Errorf("%s does not allow Google sign-in", directive)
		}
	}
	if !strings.Contains(cfg.PermissionsPolicy, `payment=(self "https://checkout.razorpay.com")`) {
		t.Errorf("Permissions-Policy = %q", cfg.PermissionsPolicy)
	}

	without := DefaultSecurityHeadersConfig(false, "")
	if strings.Contains(without.ContentSecurityPolicy, "razorpay") {
		t.Error("checkout origin should be absent when not configured")
	}
	if !strings.Contains(without.PermissionsPolicy, "payment=()") {
		t.Errorf("payment should be disabled, got %q", without.PermissionsPolicy)
	}
}

func directiveAllows(csp, directive, source string) bool {
	for _, part := range strings.Split(csp, "; ") {
		fields := strings.Fields(part)
		if len(fields) > 0 && fields[0] == directive {
			for _, f := range fields[1:] {
				if f == source {
					return true
				}
			}
		}
	}
	return false
}

func TestSecurityHeaders_ExcludePaths(t *testing.T) {
	cfg := DefaultSecurityHeadersConfig(false, "")
	cfg.ExcludePaths = []string{"/metrics"}
	handler := SecurityHeaders(cfg)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Header().Get("Content-Security-Policy") != "" {
		t.Error("excluded path should not get a CSP")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("regular path should get a CSP")
	}
}

func TestBuildCSP_Order(t *testing.T) {
	got := buildCSP(map[string]string{
		"zeta-src":    "'none'",
		"object-src":  "'none'",
		"default-src": "'self'",
		"alpha-src":   "'self'",
	})
	want := "default-src 'self'; object-src 'none'; alpha-src 'self'; zeta-src 'none'"
	if got != want {
		t.Errorf("buildCSP() = %q, want %q", got, want)
	}
}

func TestBuildPermissionsPolicy_Sorted(t *testing.T) {
	got := buildPermissionsPolicy(map[string]string{"usb": "()", "camera": "()"})
	if got != "camera=(), usb=()" {
		t.Errorf("buildPermissionsPolicy() = %q", got)
	}
}

func TestCacheHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("NoStore Cache-Control = %q", got)
	}

	rec = httptest.NewRecorder()
	StaticCache(3600)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("StaticCache Cache-Control = %q", got)
	}
}
