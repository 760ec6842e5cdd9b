// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package backend

import (
	"context"
	"net/http"

	"github.com/olegiv/oportal-go/internal/model"
)

// Features lists the whole feature catalog.
func (c *Conn) Features(ctx context.Context) ([]model.Feature, error) {
	var out []model.Feature
	if err := c.do(ctx, http.MethodGet, "/features/", "features/list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserFeatures lists the current user's grants.
func (c *Conn) UserFeatures(ctx context.Context) ([]model.FeatureGrant, error) {
	var out []model.FeatureGrant
	if err := c.do(ctx, http.MethodGet, "/user/features/", "user/features", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleFeature enables or disables a feature for a user. Admin only.
func (c *Conn) ToggleFeature(ctx context.Context, req model.ToggleFeatureRequest) (*model.FeatureGrant, error) {
	var resp struct {
		Message string              `json:"message"`
		Data    *model.FeatureGrant `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/features/toggle/", "features/toggle", req, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
