// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package policy

import (
	"time"

	"github.com/olegiv/oportal-go/internal/model"
)

// GrantIndex groups a user's grants by feature code.
type GrantIndex map[string][]model.FeatureGrant

// IndexGrants builds a GrantIndex preserving per-code input order.
func IndexGrants(grants []model.FeatureGrant) GrantIndex {
	idx := make(GrantIndex, len(grants))
	for _, g := range grants {
		idx[g.Code()] = append(idx[g.Code()], g)
	}
	return idx
}

// Holds reports whether any grant exists for code, active or not.
func (idx GrantIndex) Holds(code string) bool {
	return len(idx[code]) > 0
}

// Active reports whether code is accessible at now.
func (idx GrantIndex) Active(code string, now time.Time) bool {
	return HasFeatureAccess(idx[code], code, now)
}

// CatalogEntry pairs a catalog feature with the user's standing on it.
type CatalogEntry struct {
	Feature     model.Feature
	DisplayName string
	Expiry      ExpiryInfo
	Accessible  bool
}

// Catalog is a feature catalog partitioned for a dashboard.
type Catalog struct {
	Active    []CatalogEntry
	Available []CatalogEntry
	Upcoming  []CatalogEntry
}

// Categorize partitions catalog into features the user holds, features that
// can be bought and features that are not released yet. Held features in
// the upcoming state are listed as upcoming only. Inactive or deprecated
// features the user does not hold are left out.
func Categorize(catalog []model.Feature, grants []model.FeatureGrant, now time.Time) Catalog {
	idx := IndexGrants(grants)
	var out Catalog
	for _, f := range catalog {
		entry := CatalogEntry{
			Feature:     f,
			DisplayName: FeatureDisplayName(f.Code),
			Expiry:      FeatureExpiryInfo(idx[f.Code], f.Code, now),
			Accessible:  idx.Active(f.Code, now),
		}
		switch {
		case f.Status == model.FeatureStatusUpcoming:
			out.Upcoming = append(out.Upcoming, entry)
		case idx.Holds(f.Code):
			out.Active = append(out.Active, entry)
		case f.Status == model.FeatureStatusActive:
			out.Available = append(out.Available, entry)
		}
	}
	return out
}
