// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/olegiv/oportal-go/internal/backend"
	"github.com/olegiv/oportal-go/internal/cache"
	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/render"
	"github.com/olegiv/oportal-go/internal/scheduler"
	"github.com/olegiv/oportal-go/internal/service"
	"github.com/olegiv/oportal-go/internal/session"
	"github.com/olegiv/oportal-go/internal/store"
	"github.com/olegiv/oportal-go/internal/version"
	"github.com/olegiv/oportal-go/web"
)

const testAccessToken = "token-abc"

// fakeBackend imitates the accounts, features and payments API. Requests
// other than login need the access cookie issued by login.
type fakeBackend struct {
	server *httptest.Server

	mu            sync.Mutex
	user          model.User
	grants        []model.FeatureGrant
	features      []model.Feature
	featuresDown  bool
	loginStatus   int
	loginCalls    int
	featureCalls  int
	otpSent       []string
	toggles       []model.ToggleFeatureRequest
	verifyCalls   int
	orderCoins    int64
	orderAmount   string
	registerError string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		user:        model.User{ID: 7, Email: "user@example.com", FirstName: "Asha", LastName: "Rao", Role: model.RoleUser},
		orderCoins:  500,
		orderAmount: "500.00",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/accounts/login/", func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.loginCalls++
		if fb.loginStatus != 0 {
			writeTestJSON(w, fb.loginStatus, map[string]string{"error": "Invalid email or password"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: backend.AccessCookie, Value: testAccessToken, Path: "/"})
		writeTestJSON(w, http.StatusOK, map[string]any{"message": "Login successful", "user": fb.user})
	})
	mux.HandleFunc("POST /api/accounts/refresh/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"error": "Refresh token not found"})
	})
	mux.HandleFunc("POST /api/accounts/logout/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	})
	mux.HandleFunc("POST /api/accounts/register/", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.registerError != "" {
			writeTestJSON(w, http.StatusBadRequest, map[string][]string{"email": {fb.registerError}})
			return
		}
		var reg model.Registration
		_ = json.NewDecoder(r.Body).Decode(&reg)
		writeTestJSON(w, http.StatusCreated, map[string]any{"message": "Registered", "user": model.User{ID: 99, Email: reg.Email, Role: model.RoleUser}})
	})
	mux.HandleFunc("POST /api/accounts/send-email/", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		fb.mu.Lock()
		fb.otpSent = append(fb.otpSent, in["email"])
		fb.mu.Unlock()
		writeTestJSON(w, http.StatusOK, map[string]string{"message": "OTP sent to " + in["email"]})
	})
	mux.HandleFunc("POST /api/accounts/verify-email/", func(w http.ResponseWriter, r *http.Request) {
		var v model.OTPVerification
		_ = json.NewDecoder(r.Body).Decode(&v)
		if v.OTP != "123456" {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid OTP"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]string{"message": "Email verified"})
	})

	authed := func(fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(backend.AccessCookie); err != nil || c.Value != testAccessToken {
				writeTestJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
				return
			}
			fn(w, r)
		}
	}
	mux.HandleFunc("GET /api/accounts/profile/", authed(func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		writeTestJSON(w, http.StatusOK, map[string]any{"success": true, "user": fb.user})
	}))
	mux.HandleFunc("GET /api/accounts/dashboard/", authed(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"success": true, "dashboard": model.Dashboard{
			Wallet: &model.Wallet{CoinBalance: 1200},
			Stats:  model.DashboardStats{TotalOrders: 3, SuccessfulOrders: 2},
		}})
	}))
	mux.HandleFunc("GET /api/user/features/", authed(func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		writeTestJSON(w, http.StatusOK, fb.grants)
	}))
	mux.HandleFunc("GET /api/features/", authed(func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.featureCalls++
		if fb.featuresDown {
			writeTestJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream down"})
			return
		}
		writeTestJSON(w, http.StatusOK, fb.features)
	}))
	mux.HandleFunc("POST /api/features/toggle/", authed(func(w http.ResponseWriter, r *http.Request) {
		var req model.ToggleFeatureRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fb.mu.Lock()
		fb.toggles = append(fb.toggles, req)
		fb.mu.Unlock()
		writeTestJSON(w, http.StatusOK, map[string]any{"message": "Feature updated"})
	}))
	mux.HandleFunc("GET /api/payments/wallet/", authed(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"success": true, "wallet": model.Wallet{CoinBalance: 1200, TotalMoneySpent: "2500.00"}})
	}))
	mux.HandleFunc("POST /api/payments/create-order/", authed(func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		writeTestJSON(w, http.StatusOK, model.CreateOrderResponse{
			Success:       true,
			RazorpayKeyID: "rzp_test_key",
			Order: &model.PaymentOrder{
				OrderID:         "ORD1",
				RazorpayOrderID: "order_rzp_1",
				Amount:          fb.orderAmount,
				CoinsToCredit:   fb.orderCoins,
				Currency:        "INR",
				Status:          model.OrderStatusPending,
			},
		})
	}))
	mux.HandleFunc("POST /api/payments/verify-payment/", authed(func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.verifyCalls++
		writeTestJSON(w, http.StatusOK, model.VerifyPaymentResponse{
			Success:       true,
			WalletBalance: 1700,
			Order:         &model.PaymentOrder{OrderID: "ORD1", CoinsToCredit: fb.orderCoins, Status: model.OrderStatusPaid, Amount: fb.orderAmount},
		})
	}))
	mux.HandleFunc("GET /api/payments/order-status/{id}/", authed(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, model.OrderStatusResponse{
			Success: true,
			Order:   &model.PaymentOrder{OrderID: r.PathValue("id"), Status: model.OrderStatusPaid, Amount: "500.00", CoinsToCredit: 500},
		})
	}))

	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) setRole(role model.Role) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.user.Role = role
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testEnv wires the handlers the way the server does, over a fake backend.
type testEnv struct {
	backend  *fakeBackend
	db       *sql.DB
	sessions *scs.SessionManager
	manager  *session.Manager
	renderer *render.Renderer
	events   *service.EventService
	cache    cache.Cache
	catalog  *cache.Catalog
	lp       *middleware.LoginProtection
	jobs     JobRunner

	server *httptest.Server
	client *http.Client
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "handler-test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func testRenderer(t *testing.T, sm *scs.SessionManager) *render.Renderer {
	t.Helper()
	r, err := render.New(render.Config{TemplatesFS: web.TemplatesFS(), SessionManager: sm})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	return r
}

// newTestEnv builds the environment. Options run before the server starts.
func newTestEnv(t *testing.T, opts ...func(*testEnv)) *testEnv {
	t.Helper()

	fb := newFakeBackend(t)
	client, err := backend.New(backend.Config{BaseURL: fb.server.URL + "/api/"})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}

	sm := scs.New()
	db := testDB(t)
	mem := cache.NewMemoryCache(cache.MemoryOptions{})
	t.Cleanup(func() { _ = mem.Close() })
	lp := middleware.NewLoginProtection(middleware.LoginProtectionConfig{IPRateLimit: 1000, IPBurst: 1000})
	t.Cleanup(lp.Close)

	env := &testEnv{
		backend:  fb,
		db:       db,
		sessions: sm,
		manager:  session.NewManager(sm, client, session.ManagerConfig{SnapshotTTL: time.Minute}),
		renderer: testRenderer(t, sm),
		events:   service.NewEventService(db),
		cache:    mem,
		catalog:  cache.NewCatalog(mem, time.Minute, nil),
		lp:       lp,
	}
	for _, opt := range opts {
		opt(env)
	}

	env.server = httptest.NewServer(env.routes())
	t.Cleanup(env.server.Close)

	jar, _ := cookiejar.New(nil)
	env.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return env
}

func (e *testEnv) routes() http.Handler {
	guards := middleware.NewGuards(middleware.GuardConfig{RenewalWindow: 7})
	auth := NewAuthHandler(e.renderer, e.manager, e.events, e.lp, "")
	dash := NewDashboardHandler(e.renderer, e.catalog, 7)
	pay := NewPaymentsHandler(e.renderer, e.manager, e.events, PaymentsConfig{
		MinAmount:         10,
		MaxAmount:         50000,
		CheckoutScriptURL: "https://checkout.example.com/v1/checkout.js",
	})
	admin := NewAdminHandler(e.renderer, e.catalog, e.cache, e.events, e.jobs)
	mgr := NewManagerHandler(e.renderer, e.catalog)
	product := NewProductHandler(e.renderer)
	home := NewHomeHandler(e.renderer)
	health := NewHealthHandler(e.db, e.cache, e.manager, version.Info{Version: "v0.0.0-test"})

	r := chi.NewRouter()
	r.Use(e.sessions.LoadAndSave, middleware.LoadSession(e.manager, 2*time.Second))

	r.Get(RouteRoot, home.Home)
	r.Get(RouteHealth, health.Health)
	r.Get(RouteHealthLive, health.Liveness)
	r.Get(RouteHealthReady, health.Readiness)

	r.Get(RouteLogin, auth.LoginForm)
	r.Post(RouteLogin, auth.Login)
	r.Post(RouteGoogleLogin, auth.GoogleLogin)
	r.Post(RouteLogout, auth.Logout)
	r.Get(RouteSignup, auth.SignupForm)
	r.Post(RouteSignup, auth.Signup)
	r.Get(RouteVerifyEmail, auth.VerifyForm)
	r.Post(RouteVerifyEmail, auth.VerifyEmail)
	r.Post(RouteResendOTP, auth.ResendOTP)

	r.Group(func(r chi.Router) {
		r.Use(guards.RequireAuth)
		r.Get(RouteDashboard, dash.Dashboard)
		r.Post(RouteDashboardRefresh, dash.RefreshFeatures)
		r.Get(RouteProfile, dash.Profile)
		r.Get(RouteSettings, dash.Settings)

		r.Get(RoutePayments, pay.Page)
		r.Get(RoutePaymentsSuccess, pay.Success)
		r.Post(RoutePaymentsOrders, pay.CreateOrder)
		r.Get(RoutePaymentsOrderID, pay.OrderStatus)
		r.Post(RoutePaymentsVerify, pay.Verify)
	})

	r.Group(func(r chi.Router) {
		r.Use(guards.RequireRoute())
		r.Get(RouteProductPrivacy, product.Privacy)
	})
	r.With(guards.RequireFeature(middleware.FeatureOptions{
		Code:     model.FeatureCRM,
		Fallback: product.Upgrade(model.FeatureCRM),
	})).Get(RouteProductCRM, product.Page(model.FeatureCRM))

	r.Route(RouteManager, func(r chi.Router) {
		r.Use(guards.RequireRole(middleware.RoleOptions{Required: model.RoleManager}))
		r.Get("/", mgr.Dashboard)
		r.Get("/reports", mgr.Reports)
		r.Get("/team", mgr.Team)
	})

	r.Route(RouteAdmin, func(r chi.Router) {
		r.Use(guards.RequireRole(middleware.RoleOptions{Required: model.RoleAdmin}))
		r.Get("/", admin.Dashboard)
		r.Get("/users", admin.Users)
		r.Get("/system", admin.System)
		r.Post("/features/toggle", admin.ToggleFeature)
		r.Post("/cache/catalog", admin.InvalidateCatalog)
		r.Post("/jobs/{name}/run", admin.RunJob)
	})

	r.NotFound(home.NotFound)
	return r
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := e.client.Post(e.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// login signs in as the fake backend's user with role.
func (e *testEnv) login(t *testing.T, role model.Role) {
	t.Helper()
	e.backend.setRole(role)
	resp := e.postForm(t, RouteLogin, url.Values{"email": {"user@example.com"}, "password": {"secret123"}})
	readBody(t, resp)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

func assertRedirect(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	readBody(t, resp)
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if got := resp.Header.Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

// fakeJobs is a JobRunner with canned results.
type fakeJobs struct {
	mu        sync.Mutex
	triggered []string
	err       error
}

func (f *fakeJobs) Jobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Name: scheduler.JobPurgeEvents, Description: "Delete old events", Schedule: "@daily"}}
}

func (f *fakeJobs) Trigger(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, name)
	return f.err
}
