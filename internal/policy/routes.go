// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package policy

import (
	"net/url"
	"sort"
	"strings"

	"github.com/olegiv/oportal-go/internal/model"
)

// routeAccess maps exact paths to the minimum role they require.
var routeAccess = map[string]model.Role{
	"/auth/login":        model.RoleUser,
	"/auth/signup":       model.RoleUser,
	"/auth/verify-email": model.RoleUser,

	"/dashboard":         model.RoleUser,
	"/profile":           model.RoleUser,
	"/settings":          model.RoleUser,
	"/payments":          model.RoleUser,
	"/product/dashboard": model.RoleUser,
	"/product/payment":   model.RoleUser,
	"/product/privacy":   model.RoleUser,

	"/manager":         model.RoleManager,
	"/manager/reports": model.RoleManager,
	"/manager/team":    model.RoleManager,

	"/admin":        model.RoleAdmin,
	"/admin/users":  model.RoleAdmin,
	"/admin/system": model.RoleAdmin,
}

// PrefixRule assigns a role to every path under Prefix.
type PrefixRule struct {
	Prefix string
	Role   model.Role
}

// prefixRules are evaluated in order; the first match wins.
var prefixRules = []PrefixRule{
	{Prefix: "/admin", Role: model.RoleAdmin},
	{Prefix: "/manager", Role: model.RoleManager},
}

// userOnlyRoutes are closed to managers and admins.
var userOnlyRoutes = map[string]bool{
	"/product/payment": true,
	"/product/privacy": true,
}

// Matches reports whether path is the rule's prefix or a sub-path of it.
func (p PrefixRule) Matches(path string) bool {
	return path == p.Prefix || strings.HasPrefix(path, p.Prefix+"/")
}

// RequiredRole resolves the minimum role for path: exact table match first,
// then the ordered prefix rules, then USER.
func RequiredRole(path string) model.Role {
	path = normalizePath(path)
	if role, ok := routeAccess[path]; ok {
		return role
	}
	for _, rule := range prefixRules {
		if rule.Matches(path) {
			return rule.Role
		}
	}
	return model.RoleUser
}

// IsUserOnlyRoute reports whether path is reserved for plain users.
func IsUserOnlyRoute(path string) bool {
	return userOnlyRoutes[normalizePath(path)]
}

// CanUserAccessRoute combines the user-only check with the role hierarchy.
func CanUserAccessRoute(role model.Role, path string) bool {
	if IsUserOnlyRoute(path) && role != model.RoleUser {
		return false
	}
	return CanAccess(role, RequiredRole(path))
}

// normalizePath strips a trailing slash so "/admin/" resolves like "/admin".
func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

// PurchasePath is the page that sells features.
const PurchasePath = "/payments"

// PurchaseURL builds the link to the purchase page for a feature. The
// product name is escaped the way browsers escape URI components, so spaces
// become %20 rather than +.
func PurchaseURL(code, productName string) string {
	if productName == "" {
		productName = FeatureDisplayName(code)
	}
	return PurchasePath + "?feature=" + escapeComponent(code) + "&product=" + escapeComponent(productName)
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// GuardedSections returns the sorted top-level path segments that sit
// behind a guard, e.g. "/admin" for "/admin/users".
func GuardedSections() []string {
	seen := make(map[string]bool)
	add := func(path string) {
		if i := strings.IndexByte(path[1:], '/'); i >= 0 {
			path = path[:i+1]
		}
		seen[path] = true
	}
	for path := range routeAccess {
		add(path)
	}
	for _, rule := range prefixRules {
		add(rule.Prefix)
	}

	sections := make([]string, 0, len(seen))
	for s := range seen {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	return sections
}
