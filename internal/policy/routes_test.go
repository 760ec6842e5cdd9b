// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package policy

import (
	"reflect"
	"testing"

	"github.com/olegiv/oportal-go/internal/model"
)

func TestRequiredRole(t *testing.T) {
	tests := []struct {
		path string
		want model.Role
	}{
		{"/dashboard", model.RoleUser},
		{"/auth/login", model.RoleUser},
		{"/manager", model.RoleManager},
		{"/manager/team", model.RoleManager},
		{"/manager/reports/2026", model.RoleManager},
		{"/admin", model.RoleAdmin},
		{"/admin/", model.RoleAdmin},
		{"/admin/users/42", model.RoleAdmin},
		{"/administrator", model.RoleUser},
		{"/managerial", model.RoleUser},
		{"/product/crm", model.RoleUser},
		{"/", model.RoleUser},
		{"", model.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := RequiredRole(tt.path); got != tt.want {
				t.Errorf("RequiredRole(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestRequiredRoleDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		if got := RequiredRole("/admin/system/logs"); got != model.RoleAdmin {
			t.Fatalf("iteration %d: RequiredRole = %q, want ADMIN", i, got)
		}
	}
}

func TestCanUserAccessRoute(t *testing.T) {
	tests := []struct {
		name string
		role model.Role
		path string
		want bool
	}{
		{"user on payment product page", model.RoleUser, "/product/payment", true},
		{"manager on user-only page", model.RoleManager, "/product/payment", false},
		{"admin on user-only page", model.RoleAdmin, "/product/privacy", false},
		{"admin on manager page", model.RoleAdmin, "/manager/team", true},
		{"user on admin page", model.RoleUser, "/admin", false},
		{"manager on dashboard", model.RoleManager, "/dashboard", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanUserAccessRoute(tt.role, tt.path); got != tt.want {
				t.Errorf("CanUserAccessRoute(%q, %q) = %v, want %v", tt.role, tt.path, got, tt.want)
			}
		})
	}
}

func TestPurchaseURL(t *testing.T) {
	tests := []struct {
		code    string
		product string
		want    string
	}{
		{"crm", "CRM System", "/payments?feature=crm&product=CRM%20System"},
		{"crm", "", "/payments?feature=crm&product=CRM%20System"},
		{"ai_bot", "AI & Bots", "/payments?feature=ai_bot&product=AI%20%26%20Bots"},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.product, func(t *testing.T) {
			if got := PurchaseURL(tt.code, tt.product); got != tt.want {
				t.Errorf("PurchaseURL(%q, %q) = %q, want %q", tt.code, tt.product, got, tt.want)
			}
		})
	}
}

func TestGuardedSections(t *testing.T) {
	want := []string{"/admin", "/auth", "/dashboard", "/manager", "/payments", "/product", "/profile", "/settings"}
	if got := GuardedSections(); !reflect.DeepEqual(got, want) {
		t.Errorf("GuardedSections() = %v, want %v", got, want)
	}
}
