// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"

	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/policy"
	"github.com/olegiv/oportal-go/internal/render"
)

// HomeHandler serves the landing and error pages.
type HomeHandler struct {
	renderer *render.Renderer
}

// NewHomeHandler creates a new HomeHandler.
func NewHomeHandler(renderer *render.Renderer) *HomeHandler {
	return &HomeHandler{renderer: renderer}
}

// HomeData holds data for the landing page.
type HomeData struct {
	Products []ProductData
}

// Home handles GET /. Signed-in users go to their landing page.
func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUser(r); user != nil {
		http.Redirect(w, r, policy.LandingPage(user.Role), http.StatusSeeOther)
		return
	}

	var data HomeData
	for _, code := range []string{model.FeatureCRM, model.FeatureAIBot, model.FeatureReferly} {
		name := policy.FeatureDisplayName(code)
		data.Products = append(data.Products, ProductData{
			Code:        code,
			Name:        name,
			Benefits:    policy.FeatureBenefits(code),
			PurchaseURL: policy.PurchaseURL(code, name),
		})
	}
	h.renderer.Page(w, r, "pages/home", render.TemplateData{Data: data})
}

// NotFound renders the 404 page.
func (h *HomeHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	if err := h.renderer.RenderStatus(w, r, http.StatusNotFound, "pages/not_found", render.TemplateData{
		Title: "Page not found",
	}); err != nil {
		http.NotFound(w, r)
	}
}
