// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the domain types shared between the backend client,
// the session store and the HTTP layer: users, roles, features, grants,
// wallets and payment orders.
package model

// Role is a user's authorization tier.
type Role string

// Roles in ascending order of privilege.
const (
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// Roles lists every known role, lowest privilege first.
var Roles = []Role{RoleUser, RoleManager, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// User is the authenticated identity as returned by the accounts API.
type User struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	PhoneNumber      string `json:"phone_number,omitempty"`
	Role             Role   `json:"role"`
	IsVerified       bool   `json:"is_verified"`
	CoinBalance      int64  `json:"coin_balance"`
	TotalCoinsEarned int64  `json:"total_coins_earned"`
	TotalCoinsSpent  int64  `json:"total_coins_spent"`
	TotalMoneySpent  string `json:"total_money_spent"`
}

// FullName returns "First Last", falling back to the username.
func (u *User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}
