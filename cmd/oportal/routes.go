// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/oportal-go/internal/cache"
	"github.com/olegiv/oportal-go/internal/config"
	"github.com/olegiv/oportal-go/internal/handler"
	"github.com/olegiv/oportal-go/internal/metrics"
	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/render"
	"github.com/olegiv/oportal-go/internal/service"
	"github.com/olegiv/oportal-go/internal/session"
	"github.com/olegiv/oportal-go/internal/version"
	"github.com/olegiv/oportal-go/web"
)

// staticMaxAge is the cache lifetime of embedded assets (one year).
const staticMaxAge = 31536000

// routerDeps holds everything the router wires into handlers.
type routerDeps struct {
	cfg             *config.Config
	db              *sql.DB
	sessions        *scs.SessionManager
	manager         *session.Manager
	renderer        *render.Renderer
	cache           cache.Cache
	catalog         *cache.Catalog
	events          *service.EventService
	jobs            handler.JobRunner
	loginProtection *middleware.LoginProtection
	logger          *slog.Logger
}

// productPages lists the feature-gated product routes.
var productPages = []struct {
	route string
	code  string
}{
	{handler.RouteProductCRM, model.FeatureCRM},
	{handler.RouteProductAIBot, model.FeatureAIBot},
	{handler.RouteProductReferly, model.FeatureReferly},
}

func newRouter(d routerDeps) http.Handler {
	cfg := d.cfg

	guards := middleware.NewGuards(middleware.GuardConfig{
		RedirectTo:    handler.RouteLogin,
		RenewalWindow: cfg.RenewalWarningDays,
		Logger:        d.logger,
	})

	authHandler := handler.NewAuthHandler(d.renderer, d.manager, d.events, d.loginProtection, cfg.GoogleClientID)
	dashboardHandler := handler.NewDashboardHandler(d.renderer, d.catalog, cfg.RenewalWarningDays)
	paymentsHandler := handler.NewPaymentsHandler(d.renderer, d.manager, d.events, handler.PaymentsConfig{
		MinAmount:         cfg.PaymentMinAmount,
		MaxAmount:         cfg.PaymentMaxAmount,
		CheckoutScriptURL: cfg.CheckoutScriptURL,
	})
	adminHandler := handler.NewAdminHandler(d.renderer, d.catalog, d.cache, d.events, d.jobs)
	managerHandler := handler.NewManagerHandler(d.renderer, d.catalog)
	productHandler := handler.NewProductHandler(d.renderer)
	homeHandler := handler.NewHomeHandler(d.renderer)
	healthHandler := handler.NewHealthHandler(d.db, d.cache, d.manager, version.Get())

	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment(), cfg.CheckoutOrigin())))
	slog.Info("security headers middleware initialized",
		"hsts", !cfg.IsDevelopment(),
		"checkout_origin", cfg.CheckoutOrigin(),
	)

	// Health and metrics answer without a session.
	r.Get(handler.RouteHealthLive, healthHandler.Liveness)
	r.Get(handler.RouteHealthReady, healthHandler.Readiness)
	r.With(middleware.NoStore).Handle(handler.RouteMetrics, metrics.Handler())
	r.Get(handler.RouteRobots, handler.Robots(cfg.IsDevelopment()))

	r.Handle(handler.RouteStatic, middleware.StaticCache(staticMaxAge)(
		http.StripPrefix("/static/dist/", http.FileServer(http.FS(web.StaticFS())))))

	csrfConfig := middleware.DefaultCSRFConfig([]byte(cfg.SessionSecret), cfg.IsDevelopment(), strconv.Itoa(cfg.ServerPort))
	slog.Info("CSRF protection initialized", "trusted_origins", csrfConfig.TrustedOrigins)

	r.Group(func(r chi.Router) {
		r.Use(d.sessions.LoadAndSave)
		r.Use(middleware.LoadSession(d.manager, sessionSettleWait))
		r.Use(middleware.CSRF(csrfConfig))

		// Full report for admins, status only for everyone else.
		r.With(middleware.NoStore).Get(handler.RouteHealth, healthHandler.Health)

		r.Get(handler.RouteRoot, homeHandler.Home)

		// Auth routes: POSTs are rate limited per IP.
		r.Group(func(r chi.Router) {
			r.Use(d.loginProtection.Middleware())
			r.Get(handler.RouteLogin, authHandler.LoginForm)
			r.Post(handler.RouteLogin, authHandler.Login)
			r.Post(handler.RouteGoogleLogin, authHandler.GoogleLogin)
			r.Get(handler.RouteSignup, authHandler.SignupForm)
			r.Post(handler.RouteSignup, authHandler.Signup)
			r.Get(handler.RouteVerifyEmail, authHandler.VerifyForm)
			r.Post(handler.RouteVerifyEmail, authHandler.VerifyEmail)
			r.Post(handler.RouteResendOTP, authHandler.ResendOTP)
		})
		r.Post(handler.RouteLogout, authHandler.Logout)

		// Signed-in pages
		r.Group(func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Use(guards.RequireAuth)

			r.Get(handler.RouteDashboard, dashboardHandler.Dashboard)
			r.Post(handler.RouteDashboardRefresh, dashboardHandler.RefreshFeatures)
			r.Get(handler.RouteProfile, dashboardHandler.Profile)
			r.Get(handler.RouteSettings, dashboardHandler.Settings)

			r.Get(handler.RoutePayments, paymentsHandler.Page)
			r.Get(handler.RoutePaymentsSuccess, paymentsHandler.Success)
			r.Post(handler.RoutePaymentsOrders, paymentsHandler.CreateOrder)
			r.Get(handler.RoutePaymentsOrderID, paymentsHandler.OrderStatus)
			r.Post(handler.RoutePaymentsVerify, paymentsHandler.Verify)
		})

		// Product pages
		r.Group(func(r chi.Router) {
			r.Use(middleware.NoStore)
			for _, p := range productPages {
				r.With(guards.RequireFeature(middleware.FeatureOptions{
					Code:     p.code,
					Fallback: productHandler.Upgrade(p.code),
				})).Get(p.route, productHandler.Page(p.code))
			}
			r.With(guards.RequireRoute()).Get(handler.RouteProductPrivacy, productHandler.Privacy)
		})
		r.Get(handler.RouteProductDashboard, handler.Redirect(handler.RouteDashboard))
		r.Get(handler.RouteProductPayment, handler.Redirect(handler.RoutePayments))

		// Manager console (managers and admins)
		r.Route(handler.RouteManager, func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Use(guards.RequireRole(middleware.RoleOptions{Required: model.RoleManager}))
			r.Get("/", managerHandler.Dashboard)
			r.Get("/reports", managerHandler.Reports)
			r.Get("/team", managerHandler.Team)
		})

		// Admin console
		r.Route(handler.RouteAdmin, func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Use(guards.RequireRole(middleware.RoleOptions{Required: model.RoleAdmin}))
			r.Get("/", adminHandler.Dashboard)
			r.Get("/users", adminHandler.Users)
			r.Get("/system", adminHandler.System)
			r.Post("/features/toggle", adminHandler.ToggleFeature)
			r.Post("/cache/catalog", adminHandler.InvalidateCatalog)
			r.Post("/jobs/{name}/run", adminHandler.RunJob)
		})

		r.NotFound(homeHandler.NotFound)
	})

	return r
}
