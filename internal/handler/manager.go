// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"
	"sort"

	"github.com/olegiv/oportal-go/internal/backend"
	"github.com/olegiv/oportal-go/internal/cache"
	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/policy"
	"github.com/olegiv/oportal-go/internal/render"
)

// ManagerHandler serves the manager console.
type ManagerHandler struct {
	renderer *render.Renderer
	catalog  *cache.Catalog
}

// NewManagerHandler creates a new ManagerHandler.
func NewManagerHandler(renderer *render.Renderer, catalog *cache.Catalog) *ManagerHandler {
	return &ManagerHandler{renderer: renderer, catalog: catalog}
}

// StatusCount is the number of catalog features in one status.
type StatusCount struct {
	Status model.FeatureStatus
	Count  int
}

// RoleRoutes lists the navigation a role is offered.
type RoleRoutes struct {
	Role   model.Role
	Name   string
	Color  string
	Routes []string
}

// ManagerData holds data for the manager template.
type ManagerData struct {
	Section    string
	Features   []model.Feature
	CatalogErr string
	Statuses   []StatusCount
	Roles      []RoleRoutes
}

// Dashboard handles GET /manager.
func (h *ManagerHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, sectionOverview)
}

// Reports handles GET /manager/reports.
func (h *ManagerHandler) Reports(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, "reports")
}

// Team handles GET /manager/team.
func (h *ManagerHandler) Team(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, "team")
}

func (h *ManagerHandler) page(w http.ResponseWriter, r *http.Request, section string) {
	data := ManagerData{Section: section}

	if section != "team" {
		handle := middleware.GetHandle(r)
		features, err := h.catalog.Features(r.Context(), handle.Conn)
		if err != nil {
			data.CatalogErr = backend.Message(err, "The feature catalog is unavailable.")
		} else {
			data.Features = features
			data.Statuses = countStatuses(features)
		}
	}

	for _, role := range model.Roles {
		data.Roles = append(data.Roles, RoleRoutes{
			Role:   role,
			Name:   policy.DisplayName(role),
			Color:  policy.Color(role),
			Routes: policy.AvailableRoutes(role),
		})
	}

	h.renderer.Page(w, r, "pages/manager", render.TemplateData{
		Title: "Manager",
		Data:  data,
	})
}

func countStatuses(features []model.Feature) []StatusCount {
	counts := make(map[model.FeatureStatus]int)
	for _, f := range features {
		counts[f.Status]++
	}
	out := make([]StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out
}
