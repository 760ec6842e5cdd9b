// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler implements the portal's HTTP handlers: sign-in and
// sign-up, the dashboards, payments, the product pages and the consoles.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator"

	"github.com/olegiv/oportal-go/internal/backend"
	"github.com/olegiv/oportal-go/internal/cache"
	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/render"
	"github.com/olegiv/oportal-go/internal/scheduler"
	"github.com/olegiv/oportal-go/internal/service"
)

// recentEventsLimit is the number of audit events shown on the console.
const recentEventsLimit = 50

// detailsLengthThreshold is the max chars before details are collapsible
const detailsLengthThreshold = 80

// JobRunner lists and triggers scheduled jobs.
type JobRunner interface {
	Jobs() []scheduler.JobInfo
	Trigger(name string) error
}

// AdminHandler serves the admin console.
type AdminHandler struct {
	renderer     *render.Renderer
	catalog      *cache.Catalog
	cache        cache.Cache
	eventService *service.EventService
	jobs         JobRunner
	validate     *validator.Validate
}

// NewAdminHandler creates a new AdminHandler. jobs may be nil.
func NewAdminHandler(renderer *render.Renderer, catalog *cache.Catalog, c cache.Cache, es *service.EventService, jobs JobRunner) *AdminHandler {
	return &AdminHandler{
		renderer:     renderer,
		catalog:      catalog,
		cache:        c,
		eventService: es,
		jobs:         jobs,
		validate:     newValidator(),
	}
}

// EventView is an audit event prepared for display.
type EventView struct {
	ID          int64
	Level       string
	Category    string
	Message     string
	UserID      string
	IP          string
	Details     string // Formatted metadata as readable text
	DetailsLong bool   // True if details exceed display threshold
	CreatedAt   time.Time
}

// CacheView summarizes the catalog cache.
type CacheView struct {
	Backend string
	Stats   *cache.Stats
}

// AdminData holds data for the admin console template.
type AdminData struct {
	Section     string
	Features    []model.Feature
	CatalogErr  string
	Events      []EventView
	Category    string
	Categories  []string
	Cache       CacheView
	Jobs        []scheduler.JobInfo
	EventsError string
}

var eventCategories = []string{
	model.EventCategoryAuth,
	model.EventCategoryAccess,
	model.EventCategoryFeature,
	model.EventCategoryPayment,
	model.EventCategoryBackend,
	model.EventCategoryCache,
	model.EventCategorySystem,
}

// Admin console sections.
const (
	sectionOverview = "overview"
	sectionUsers    = "users"
	sectionSystem   = "system"
)

// Dashboard handles GET /admin.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, sectionOverview)
}

// Users handles GET /admin/users, the feature grant console.
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, sectionUsers)
}

// System handles GET /admin/system.
func (h *AdminHandler) System(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, sectionSystem)
}

func (h *AdminHandler) page(w http.ResponseWriter, r *http.Request, section string) {
	handle := middleware.GetHandle(r)
	ctx := r.Context()

	data := AdminData{
		Section:    section,
		Categories: eventCategories,
		Cache:      CacheView{Backend: cache.Backend(h.cache)},
	}

	if section != sectionSystem {
		if features, err := h.catalog.Features(ctx, handle.Conn); err != nil {
			data.CatalogErr = backend.Message(err, "The feature catalog is unavailable.")
		} else {
			data.Features = features
		}
	}

	switch section {
	case sectionUsers:
		data.Category = model.EventCategoryFeature
		h.loadEvents(r, &data)
	case sectionSystem:
		if c := r.URL.Query().Get("category"); validCategory(c) {
			data.Category = c
		}
		h.loadEvents(r, &data)
		if sp, ok := h.cache.(cache.StatsProvider); ok {
			stats := sp.Stats()
			data.Cache.Stats = &stats
		}
		if h.jobs != nil {
			data.Jobs = h.jobs.Jobs()
		}
	}

	h.renderer.Page(w, r, "admin/dashboard", render.TemplateData{
		Title: "Admin",
		Data:  data,
	})
}

func (h *AdminHandler) loadEvents(r *http.Request, data *AdminData) {
	events, err := h.eventService.RecentEvents(r.Context(), data.Category, recentEventsLimit)
	if err != nil {
		slog.Error("failed to list events", "error", err)
		data.EventsError = "Could not load recent events."
		return
	}
	data.Events = make([]EventView, 0, len(events))
	for _, e := range events {
		details := formatMetadata(e.Metadata)
		v := EventView{
			ID:          e.ID,
			Level:       e.Level,
			Category:    e.Category,
			Message:     e.Message,
			IP:          e.IpAddress,
			Details:     details,
			DetailsLong: len(details) > detailsLengthThreshold,
			CreatedAt:   e.CreatedAt,
		}
		if e.UserID.Valid {
			v.UserID = strconv.FormatInt(e.UserID.Int64, 10)
		}
		data.Events = append(data.Events, v)
	}
}

// ToggleFeature handles POST /admin/features/toggle.
func (h *AdminHandler) ToggleFeature(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteAdminUsers) {
		return
	}
	handle := middleware.GetHandle(r)
	admin := handle.Store.User()

	userID, _ := strconv.ParseInt(strings.TrimSpace(r.FormValue("user_id")), 10, 64)
	featureID, _ := strconv.ParseInt(strings.TrimSpace(r.FormValue("feature_id")), 10, 64)
	req := model.ToggleFeatureRequest{
		UserID:    userID,
		FeatureID: featureID,
		IsActive:  r.FormValue("is_active") == "true" || r.FormValue("is_active") == "on",
	}

	if err := h.validate.Struct(req); err != nil {
		fields := fieldErrors(err)
		flashError(w, r, h.renderer, RouteAdminUsers, firstFieldError(fields, "user_id", "feature_id"))
		return
	}

	meta := map[string]any{
		"target_user_id": req.UserID,
		"feature_id":     req.FeatureID,
		"is_active":      req.IsActive,
	}

	if _, err := handle.Conn.ToggleFeature(r.Context(), req); err != nil {
		meta["error"] = err.Error()
		_ = h.eventService.LogFeatureEvent(r, model.EventLevelError, "Feature toggle failed", admin, meta)
		flashError(w, r, h.renderer, RouteAdminUsers, backend.Message(err, "Could not update the feature."))
		return
	}

	_ = h.eventService.LogFeatureEvent(r, model.EventLevelInfo, "Feature toggled", admin, meta)
	slog.Info("feature toggled",
		"admin_id", admin.ID,
		"target_user_id", req.UserID,
		"feature_id", req.FeatureID,
		"is_active", req.IsActive,
	)

	// The admin's own grants changed, so the session must see them now.
	if admin.ID == req.UserID {
		if err := handle.Store.Reload(r.Context()); err != nil {
			slog.Warn("reload after self toggle failed", "error", err)
		}
	}

	state := "disabled"
	if req.IsActive {
		state = "enabled"
	}
	flashSuccess(w, r, h.renderer, RouteAdminUsers, "Feature "+state+" for user "+strconv.FormatInt(req.UserID, 10)+".")
}

// InvalidateCatalog handles POST /admin/cache/catalog.
func (h *AdminHandler) InvalidateCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Invalidate(r.Context()); err != nil {
		slog.Error("catalog invalidation failed", "error", err)
		flashError(w, r, h.renderer, RouteAdminSystem, "Could not clear the catalog cache.")
		return
	}
	_ = h.eventService.LogRequestEvent(r, model.EventLevelInfo, model.EventCategoryCache, "Catalog cache cleared", middleware.GetUser(r), nil)
	flashSuccess(w, r, h.renderer, RouteAdminSystem, "Catalog cache cleared.")
}

// RunJob handles POST /admin/jobs/{name}/run.
func (h *AdminHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.jobs == nil {
		flashError(w, r, h.renderer, RouteAdminSystem, "The scheduler is not running.")
		return
	}

	err := h.jobs.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		flashError(w, r, h.renderer, RouteAdminSystem, "Unknown job.")
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		flashAndRedirect(w, r, h.renderer, RouteAdminSystem, "The job is already running.", render.FlashInfo)
		return
	case err != nil:
		flashError(w, r, h.renderer, RouteAdminSystem, "Job failed: "+err.Error())
		return
	}

	_ = h.eventService.LogRequestEvent(r, model.EventLevelInfo, model.EventCategorySystem, "Job triggered", middleware.GetUser(r), map[string]any{"job": name})
	flashSuccess(w, r, h.renderer, RouteAdminSystem, "Job "+name+" finished.")
}

func validCategory(c string) bool {
	for _, v := range eventCategories {
		if v == c {
			return true
		}
	}
	return false
}

// formatMetadata converts JSON metadata to readable text format.
// Example: {"path":"/admin","error":"not found"} -> "error: not found, path: /admin"
func formatMetadata(metadata string) string {
	if metadata == "" || metadata == "{}" {
		return ""
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(metadata), &data); err != nil {
		return metadata // Return as-is if not valid JSON
	}

	if len(data) == 0 {
		return ""
	}

	// Sort keys for consistent output order
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		var strValue string
		switch v := data[key].(type) {
		case string:
			strValue = v
		case float64:
			strValue = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			strValue = strconv.FormatBool(v)
		default:
			// For nested objects, marshal back to JSON
			if b, err := json.Marshal(v); err == nil {
				strValue = string(b)
			}
		}
		parts = append(parts, key+": "+strValue)
	}

	return strings.Join(parts, ", ")
}
