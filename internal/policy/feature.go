// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package policy

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/olegiv/oportal-go/internal/model"
)

// DefaultRenewalWindowDays is how close to expiry a grant must be before a
// renewal banner is shown.
const DefaultRenewalWindowDays = 7

const day = 24 * time.Hour

// IsGrantActive reports whether g confers access at now. A grant is valid up
// to and including the instant it expires.
func IsGrantActive(g model.FeatureGrant, now time.Time) bool {
	if !g.IsActive {
		return false
	}
	return g.ExpiresOn == nil || !now.After(*g.ExpiresOn)
}

// HasFeatureAccess reports whether any grant for code is active at now.
func HasFeatureAccess(grants []model.FeatureGrant, code string, now time.Time) bool {
	for _, g := range grants {
		if g.Code() == code && IsGrantActive(g, now) {
			return true
		}
	}
	return false
}

// HasAnyFeatureAccess reports whether any of codes is accessible at now.
func HasAnyFeatureAccess(grants []model.FeatureGrant, codes []string, now time.Time) bool {
	for _, code := range codes {
		if HasFeatureAccess(grants, code, now) {
			return true
		}
	}
	return false
}

// ActiveFeatures returns the grants active at now in input order.
// The input slice is not modified.
func ActiveFeatures(grants []model.FeatureGrant, now time.Time) []model.FeatureGrant {
	out := make([]model.FeatureGrant, 0, len(grants))
	for _, g := range grants {
		if IsGrantActive(g, now) {
			out = append(out, g)
		}
	}
	return out
}

// AccessibleFeatureCodes returns the codes of ActiveFeatures.
func AccessibleFeatureCodes(grants []model.FeatureGrant, now time.Time) []string {
	active := ActiveFeatures(grants, now)
	codes := make([]string, 0, len(active))
	for _, g := range active {
		codes = append(codes, g.Code())
	}
	return codes
}

// ExpiryInfo describes how long a user keeps a feature.
// ExpiresOn and DaysUntilExpiry are nil for perpetual grants and for
// features the user does not hold.
type ExpiryInfo struct {
	HasFeature      bool
	IsExpired       bool
	ExpiresOn       *time.Time
	DaysUntilExpiry *int
}

// NeedsRenewalWarning reports whether the grant expires within window days
// but has at least part of a day left.
func (e ExpiryInfo) NeedsRenewalWarning(window int) bool {
	if !e.HasFeature || e.IsExpired || e.DaysUntilExpiry == nil {
		return false
	}
	d := *e.DaysUntilExpiry
	return d > 0 && d <= window
}

// FeatureExpiryInfo reports expiry details for code. Only the is_active flag
// decides HasFeature; an expired grant still counts as held. When several
// active-flagged grants share the code the longest-lived one is reported.
func FeatureExpiryInfo(grants []model.FeatureGrant, code string, now time.Time) ExpiryInfo {
	var best *model.FeatureGrant
	for i := range grants {
		g := &grants[i]
		if g.Code() != code || !g.IsActive {
			continue
		}
		if best == nil || outlives(g, best) {
			best = g
		}
	}

	if best == nil {
		return ExpiryInfo{}
	}
	if best.ExpiresOn == nil {
		return ExpiryInfo{HasFeature: true}
	}

	expiresOn := *best.ExpiresOn
	info := ExpiryInfo{
		HasFeature: true,
		IsExpired:  now.After(expiresOn),
		ExpiresOn:  &expiresOn,
	}
	days := 0
	if !info.IsExpired {
		days = int(math.Ceil(float64(expiresOn.Sub(now)) / float64(day)))
	}
	info.DaysUntilExpiry = &days
	return info
}

// outlives reports whether a expires later than b. Perpetual grants outlive
// everything.
func outlives(a, b *model.FeatureGrant) bool {
	switch {
	case b.ExpiresOn == nil:
		return false
	case a.ExpiresOn == nil:
		return true
	default:
		return a.ExpiresOn.After(*b.ExpiresOn)
	}
}

var featureNames = map[string]string{
	model.FeatureCRM:        "CRM System",
	model.FeatureAIBot:      "AI Bot Assistant",
	model.FeatureReferly:    "Email Marketing",
	model.FeatureTimeTravel: "Time Travel Analytics",
}

// FeatureDisplayName returns the marketing name for a feature code. Unknown
// codes have their first underscore replaced by a space and are title-cased.
func FeatureDisplayName(code string) string {
	if name, ok := featureNames[code]; ok {
		return name
	}
	return cases.Title(language.English).String(strings.Replace(code, "_", " ", 1))
}

var featureBenefits = map[string][]string{
	model.FeatureCRM: {
		"Manage customer relationships",
		"Track sales pipeline",
		"Generate detailed reports",
		"Automate follow-ups",
	},
	model.FeatureAIBot: {
		"24/7 automated customer support",
		"Natural language processing",
		"Custom training on your data",
		"Multi-channel integration",
	},
	model.FeatureReferly: {
		"Send bulk email campaigns",
		"Track open and click rates",
		"Manage subscriber lists",
		"Design email templates",
	},
}

var genericBenefits = []string{
	"Full access to premium features",
	"Priority support",
	"Regular updates",
}

// FeatureBenefits returns the selling points shown on the upgrade prompt.
func FeatureBenefits(code string) []string {
	b, ok := featureBenefits[code]
	if !ok {
		b = genericBenefits
	}
	out := make([]string, len(b))
	copy(out, b)
	return out
}
