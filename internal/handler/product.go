// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"
	"time"

	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/policy"
	"github.com/olegiv/oportal-go/internal/render"
)

// ProductHandler serves the feature-gated product pages.
type ProductHandler struct {
	renderer *render.Renderer
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(renderer *render.Renderer) *ProductHandler {
	return &ProductHandler{renderer: renderer}
}

// ProductData holds data for the product template.
type ProductData struct {
	Code        string
	Name        string
	Benefits    []string
	Expiry      policy.ExpiryInfo
	PurchaseURL string
}

// Page returns the handler for the product page of feature code. The route
// must be wrapped in a feature guard for code.
func (h *ProductHandler) Page(code string) http.HandlerFunc {
	name := policy.FeatureDisplayName(code)
	return func(w http.ResponseWriter, r *http.Request) {
		store := middleware.GetStore(r)
		h.renderer.Page(w, r, "pages/product", render.TemplateData{
			Title: name,
			Data: ProductData{
				Code:        code,
				Name:        name,
				Benefits:    policy.FeatureBenefits(code),
				Expiry:      policy.FeatureExpiryInfo(store.Features(), code, time.Now()),
				PurchaseURL: policy.PurchaseURL(code, name),
			},
		})
	}
}

// Upgrade returns the fallback page shown by a feature guard when the user
// lacks code.
func (h *ProductHandler) Upgrade(code string) http.Handler {
	name := policy.FeatureDisplayName(code)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h.renderer.RenderStatus(w, r, http.StatusForbidden, "pages/upgrade", render.TemplateData{
			Title: name,
			Data: ProductData{
				Code:        code,
				Name:        name,
				Benefits:    policy.FeatureBenefits(code),
				PurchaseURL: policy.PurchaseURL(code, name),
			},
		})
		if err != nil {
			logAndInternalError(w, "failed to render upgrade page", "feature", code, "error", err)
		}
	})
}

// Privacy handles GET /product/privacy.
func (h *ProductHandler) Privacy(w http.ResponseWriter, r *http.Request) {
	h.renderer.Page(w, r, "pages/privacy", render.TemplateData{Title: "Privacy"})
}

// Redirect returns a handler sending legacy product paths to target.
func Redirect(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	}
}
