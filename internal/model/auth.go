// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Credentials are the e-mail and password submitted on the login form.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration is the sign-up payload.
type Registration struct {
	Email           string `json:"email" validate:"required,email"`
	FirstName       string `json:"first_name" validate:"max=150"`
	LastName        string `json:"last_name" validate:"max=150"`
	PhoneNumber     string `json:"phone_number,omitempty" validate:"omitempty,max=20"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// OTPVerification submits the code sent to an e-mail address.
type OTPVerification struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// LoginResponse is returned by the login and federated-login endpoints.
// The tokens are also set as cookies; the body copies are informational.
type LoginResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
	Access  string `json:"access,omitempty"`
	Refresh string `json:"refresh,omitempty"`
}
