// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package policy

import (
	"testing"

	"github.com/olegiv/oportal-go/internal/model"
)

func codes(entries []CatalogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Feature.Code)
	}
	return out
}

func TestCategorize(t *testing.T) {
	catalog := []model.Feature{
		{Code: "crm", Status: model.FeatureStatusActive},
		{Code: "ai_bot", Status: model.FeatureStatusActive},
		{Code: "time_travel", Status: model.FeatureStatusUpcoming},
		{Code: "legacy", Status: model.FeatureStatusDeprecated},
		{Code: "referly", Status: model.FeatureStatusInactive},
	}
	grants := []model.FeatureGrant{
		grant("crm", true, nil),
		grant("time_travel", true, nil),
		grant("referly", true, at(testNow.Add(-day))),
	}

	got := Categorize(catalog, grants, testNow)

	if c := codes(got.Active); len(c) != 2 || c[0] != "crm" || c[1] != "referly" {
		t.Errorf("Active = %v, want [crm referly]", c)
	}
	if c := codes(got.Available); len(c) != 1 || c[0] != "ai_bot" {
		t.Errorf("Available = %v, want [ai_bot]", c)
	}
	if c := codes(got.Upcoming); len(c) != 1 || c[0] != "time_travel" {
		t.Errorf("Upcoming = %v, want [time_travel]", c)
	}

	if !got.Active[0].Accessible {
		t.Error("crm should be accessible")
	}
	if got.Active[1].Accessible {
		t.Error("expired referly should not be accessible")
	}
	if got.Active[0].DisplayName != "CRM System" {
		t.Errorf("DisplayName = %q, want CRM System", got.Active[0].DisplayName)
	}
}

func TestCategorizeIsPartition(t *testing.T) {
	catalog := []model.Feature{
		{Code: "a", Status: model.FeatureStatusActive},
		{Code: "b", Status: model.FeatureStatusUpcoming},
		{Code: "c", Status: model.FeatureStatusActive},
	}
	grants := []model.FeatureGrant{grant("a", true, nil), grant("b", true, nil)}

	got := Categorize(catalog, grants, testNow)
	seen := map[string]int{}
	for _, list := range [][]CatalogEntry{got.Active, got.Available, got.Upcoming} {
		for _, e := range list {
			seen[e.Feature.Code]++
		}
	}
	for code, n := range seen {
		if n != 1 {
			t.Errorf("feature %q appears %d times", code, n)
		}
	}
}

func TestIndexGrants(t *testing.T) {
	idx := IndexGrants([]model.FeatureGrant{
		grant("crm", false, nil),
		grant("crm", true, nil),
	})
	if !idx.Holds("crm") {
		t.Error("Holds(crm) = false")
	}
	if idx.Holds("ai_bot") {
		t.Error("Holds(ai_bot) = true")
	}
	if !idx.Active("crm", testNow) {
		t.Error("Active(crm) = false, want true through the second grant")
	}
}
