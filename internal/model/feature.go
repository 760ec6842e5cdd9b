// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// FeatureStatus is the catalog lifecycle state of a feature.
type FeatureStatus string

// Feature statuses.
const (
	FeatureStatusActive     FeatureStatus = "active"
	FeatureStatusInactive   FeatureStatus = "inactive"
	FeatureStatusUpcoming   FeatureStatus = "upcoming"
	FeatureStatusDeprecated FeatureStatus = "deprecated"
)

// Well-known feature codes.
const (
	FeatureCRM        = "crm"
	FeatureAIBot      = "ai_bot"
	FeatureReferly    = "referly"
	FeatureTimeTravel = "time_travel"
)

// Feature is a catalog entry describing a purchasable capability.
type Feature struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Code        string        `json:"code"`
	Description string        `json:"description"`
	Status      FeatureStatus `json:"status"`
}

// FeatureGrant records that a user holds a feature, possibly until a deadline.
// A nil ExpiresOn means the grant never expires.
type FeatureGrant struct {
	ID          int64      `json:"id"`
	Feature     Feature    `json:"feature"`
	IsActive    bool       `json:"is_active"`
	ActivatedOn time.Time  `json:"activated_on"`
	ExpiresOn   *time.Time `json:"expires_on"`
}

// Code is shorthand for g.Feature.Code.
func (g FeatureGrant) Code() string {
	return g.Feature.Code
}

// ToggleFeatureRequest is the admin payload for enabling or disabling a
// feature for a user.
type ToggleFeatureRequest struct {
	UserID    int64 `json:"user_id" validate:"required,min=1"`
	FeatureID int64 `json:"feature_id" validate:"required,min=1"`
	IsActive  bool  `json:"is_active"`
}
