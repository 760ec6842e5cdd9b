// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package policy holds the pure authorization rules of the portal: the role
// hierarchy, route-to-role resolution and feature entitlement checks.
// Nothing here performs I/O and every function is total.
package policy

import "github.com/olegiv/oportal-go/internal/model"

// Rank returns the hierarchy level of a role. Unknown roles rank as USER.
func Rank(role model.Role) int {
	switch role {
	case model.RoleAdmin:
		return 3
	case model.RoleManager:
		return 2
	default:
		return 1
	}
}

// HasExactRole reports whether userRole is exactly required.
func HasExactRole(userRole, required model.Role) bool {
	return userRole == required
}

// CanAccess reports whether userRole is at or above required in the hierarchy.
func CanAccess(userRole, required model.Role) bool {
	return Rank(userRole) >= Rank(required)
}

// HasAnyRole reports whether userRole is one of allowed.
func HasAnyRole(userRole model.Role, allowed ...model.Role) bool {
	for _, r := range allowed {
		if r == userRole {
			return true
		}
	}
	return false
}

// IsAdmin reports whether role is ADMIN.
func IsAdmin(role model.Role) bool {
	return role == model.RoleAdmin
}

// IsManagerOrAbove reports whether role ranks at least MANAGER.
func IsManagerOrAbove(role model.Role) bool {
	return Rank(role) >= Rank(model.RoleManager)
}

// LandingPage is where a user of the given role is sent after login or when
// a guard denies access.
func LandingPage(role model.Role) string {
	switch role {
	case model.RoleAdmin:
		return "/admin"
	case model.RoleManager:
		return "/manager"
	default:
		return "/dashboard"
	}
}

// DisplayName returns the human label for a role.
func DisplayName(role model.Role) string {
	switch role {
	case model.RoleAdmin:
		return "Administrator"
	case model.RoleManager:
		return "Manager"
	default:
		return "User"
	}
}

// Color returns the badge color used for a role.
func Color(role model.Role) string {
	switch role {
	case model.RoleUser:
		return "blue"
	case model.RoleManager:
		return "green"
	case model.RoleAdmin:
		return "red"
	default:
		return "gray"
	}
}

var availableRoutes = map[model.Role][]string{
	model.RoleUser: {
		"/dashboard", "/profile", "/settings", "/payments", "/product/privacy",
	},
	model.RoleManager: {
		"/dashboard", "/profile", "/settings",
		"/manager", "/manager/reports", "/manager/team",
	},
	model.RoleAdmin: {
		"/dashboard", "/profile", "/settings",
		"/manager", "/manager/reports", "/manager/team",
		"/admin", "/admin/users", "/admin/system",
	},
}

// AvailableRoutes returns the navigation entries offered to a role.
// The returned slice is a copy.
func AvailableRoutes(role model.Role) []string {
	routes, ok := availableRoutes[role]
	if !ok {
		routes = availableRoutes[model.RoleUser]
	}
	out := make([]string, len(routes))
	copy(out, routes)
	return out
}
