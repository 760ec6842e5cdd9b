// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"net/http"

	"github.com/olegiv/oportal-go/internal/model"
)

// errMissingUser is returned when a success response carries no user.
var errMissingUser = errors.New("backend response has no user")

type profileResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
	Message string      `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Login exchanges credentials for auth cookies and returns the user.
func (c *Conn) Login(ctx context.Context, creds model.Credentials) (*model.User, error) {
	var resp model.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/accounts/login/", "accounts/login", creds, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errMissingUser
	}
	return resp.User, nil
}

// GoogleLogin exchanges a Google ID token for auth cookies.
func (c *Conn) GoogleLogin(ctx context.Context, token string) (*model.User, error) {
	var resp model.LoginResponse
	in := map[string]string{"token": token}
	if err := c.do(ctx, http.MethodPost, "/accounts/google-login/", "accounts/google-login", in, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errMissingUser
	}
	return resp.User, nil
}

// Profile fetches the current user.
func (c *Conn) Profile(ctx context.Context) (*model.User, error) {
	var resp profileResponse
	if err := c.do(ctx, http.MethodGet, "/accounts/profile/", "accounts/profile", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errMissingUser
	}
	return resp.User, nil
}

// Refresh rotates the access cookie using the refresh cookie.
func (c *Conn) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/accounts/refresh/", "accounts/refresh", struct{}{}, nil)
}

// Logout invalidates the refresh token and clears the auth cookies. The jar
// is emptied even when the call fails.
func (c *Conn) Logout(ctx context.Context) error {
	defer c.jar.Clear()
	return c.do(ctx, http.MethodPost, "/accounts/logout/", "accounts/logout", struct{}{}, nil)
}

// Register creates an account. The user must verify the e-mail address
// before logging in.
func (c *Conn) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	var resp struct {
		Message string      `json:"message"`
		User    *model.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/accounts/register/", "accounts/register", reg, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// SendOTP e-mails a one-time verification code.
func (c *Conn) SendOTP(ctx context.Context, email string) (string, error) {
	var resp messageResponse
	in := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, "/accounts/send-email/", "accounts/send-email", in, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// VerifyOTP checks a verification code.
func (c *Conn) VerifyOTP(ctx context.Context, v model.OTPVerification) error {
	return c.do(ctx, http.MethodPost, "/accounts/verify-email/", "accounts/verify-email", v, nil)
}

// Dashboard fetches the wallet, recent activity and counters.
func (c *Conn) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	var resp struct {
		Success   bool             `json:"success"`
		Dashboard *model.Dashboard `json:"dashboard"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/dashboard/", "accounts/dashboard", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Dashboard == nil {
		return &model.Dashboard{}, nil
	}
	return resp.Dashboard, nil
}
