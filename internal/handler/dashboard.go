// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/olegiv/oportal-go/internal/backend"
	"github.com/olegiv/oportal-go/internal/cache"
	"github.com/olegiv/oportal-go/internal/logging"
	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/policy"
	"github.com/olegiv/oportal-go/internal/render"
)

// DashboardHandler serves the signed-in user's pages.
type DashboardHandler struct {
	renderer      *render.Renderer
	catalog       *cache.Catalog
	renewalWindow int
	now           func() time.Time
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(renderer *render.Renderer, catalog *cache.Catalog, renewalWindow int) *DashboardHandler {
	return &DashboardHandler{
		renderer:      renderer,
		catalog:       catalog,
		renewalWindow: renewalWindow,
		now:           time.Now,
	}
}

// DashboardData holds data for the dashboard template.
type DashboardData struct {
	Catalog policy.Catalog
	// CatalogPartial is set when the catalog could not be loaded and only
	// the user's own grants are listed.
	CatalogPartial bool
	Summary        *model.Dashboard
	Routes         []string
}

// ProfileData holds data for the profile template.
type ProfileData struct {
	RoleName  string
	RoleColor string
	Features  []policy.CatalogEntry
}

// Dashboard handles GET /dashboard.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	handle := middleware.GetHandle(r)
	user := handle.Store.User()
	now := h.now()

	features, partial := h.features(r.Context(), handle.Conn, handle.Store.Features())
	data := DashboardData{
		Catalog:        policy.Categorize(features, handle.Store.Features(), now),
		CatalogPartial: partial,
		Routes:         policy.AvailableRoutes(user.Role),
	}

	if summary, err := handle.Conn.Dashboard(r.Context()); err != nil {
		slog.Debug("dashboard summary unavailable", "error", err)
	} else {
		data.Summary = summary
	}

	h.renderer.Page(w, r, "pages/dashboard", render.TemplateData{
		Title:    "Dashboard",
		Data:     data,
		Renewals: append(middleware.GetRenewalNotices(r), h.renewals(data.Catalog.Active)...),
	})
}

// features returns the catalog, or the features named by grants when the
// catalog is unavailable.
func (h *DashboardHandler) features(ctx context.Context, src cache.CatalogSource, grants []model.FeatureGrant) ([]model.Feature, bool) {
	features, err := h.catalog.Features(ctx, src)
	if err == nil {
		return features, false
	}

	slog.Warn("feature catalog unavailable",
		logging.AttrCategory, model.EventCategoryBackend,
		"error", err,
	)
	seen := make(map[string]bool, len(grants))
	for _, g := range grants {
		if seen[g.Code()] {
			continue
		}
		seen[g.Code()] = true
		features = append(features, g.Feature)
	}
	return features, true
}

// renewals lists held features whose access ends within the window.
func (h *DashboardHandler) renewals(active []policy.CatalogEntry) []middleware.RenewalNotice {
	var notices []middleware.RenewalNotice
	for _, e := range active {
		if !e.Expiry.NeedsRenewalWarning(h.renewalWindow) {
			continue
		}
		notices = append(notices, middleware.RenewalNotice{
			Code:        e.Feature.Code,
			ProductName: e.DisplayName,
			DaysLeft:    *e.Expiry.DaysUntilExpiry,
			ExpiresOn:   *e.Expiry.ExpiresOn,
			RenewURL:    policy.PurchaseURL(e.Feature.Code, e.DisplayName),
		})
	}
	return notices
}

// Profile handles GET /dashboard/profile.
func (h *DashboardHandler) Profile(w http.ResponseWriter, r *http.Request) {
	store := middleware.GetStore(r)
	user := store.User()
	now := h.now()

	var features []policy.CatalogEntry
	for _, g := range store.ActiveFeatures() {
		if containsEntry(features, g.Code()) {
			continue
		}
		features = append(features, policy.CatalogEntry{
			Feature:     g.Feature,
			DisplayName: policy.FeatureDisplayName(g.Code()),
			Expiry:      policy.FeatureExpiryInfo(store.Features(), g.Code(), now),
			Accessible:  true,
		})
	}

	h.renderer.Page(w, r, "pages/profile", render.TemplateData{
		Title: "Profile",
		Data: ProfileData{
			RoleName:  policy.DisplayName(user.Role),
			RoleColor: policy.Color(user.Role),
			Features:  features,
		},
	})
}

// Settings handles GET /dashboard/settings.
func (h *DashboardHandler) Settings(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	h.renderer.Page(w, r, "pages/settings", render.TemplateData{
		Title: "Settings",
		Data: struct {
			Routes        []string
			RenewalWindow int
		}{
			Routes:        policy.AvailableRoutes(user.Role),
			RenewalWindow: h.renewalWindow,
		},
	})
}

// RefreshFeatures handles POST /dashboard/refresh, reloading the profile
// and grants from the backend.
func (h *DashboardHandler) RefreshFeatures(w http.ResponseWriter, r *http.Request) {
	store := middleware.GetStore(r)
	if err := store.Reload(r.Context()); err != nil {
		flashError(w, r, h.renderer, RouteDashboard, backend.Message(err, "Could not refresh your account. Please try again."))
		return
	}
	flashSuccess(w, r, h.renderer, RouteDashboard, "Your account is up to date.")
}

func containsEntry(entries []policy.CatalogEntry, code string) bool {
	for _, e := range entries {
		if e.Feature.Code == code {
			return true
		}
	}
	return false
}
