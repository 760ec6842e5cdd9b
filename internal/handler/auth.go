// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/olegiv/oportal-go/internal/backend"
	"github.com/olegiv/oportal-go/internal/logging"
	"github.com/olegiv/oportal-go/internal/metrics"
	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/policy"
	"github.com/olegiv/oportal-go/internal/render"
	"github.com/olegiv/oportal-go/internal/service"
	"github.com/olegiv/oportal-go/internal/session"
	"github.com/olegiv/oportal-go/internal/util"
)

// Login methods recorded in metrics and events.
const (
	loginMethodPassword = "password"
	loginMethodGoogle   = "google"
)

// AuthHandler handles sign-in, sign-up and e-mail verification.
type AuthHandler struct {
	renderer        *render.Renderer
	manager         *session.Manager
	eventService    *service.EventService
	loginProtection *middleware.LoginProtection
	validate        *validator.Validate
	googleClientID  string
}

// NewAuthHandler creates a new AuthHandler. lp and es may be nil.
func NewAuthHandler(renderer *render.Renderer, m *session.Manager, es *service.EventService, lp *middleware.LoginProtection, googleClientID string) *AuthHandler {
	return &AuthHandler{
		renderer:        renderer,
		manager:         m,
		eventService:    es,
		loginProtection: lp,
		validate:        newValidator(),
		googleClientID:  googleClientID,
	}
}

// LoginData holds data for the login page.
type LoginData struct {
	Email          string
	GoogleClientID string
}

// SignupData holds data for the sign-up page.
type SignupData struct {
	Form   model.Registration
	Errors map[string]string
}

// VerifyData holds data for the e-mail verification page.
type VerifyData struct {
	Email string
}

// LoginForm renders the login page. Signed-in users go to their landing page.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUser(r); user != nil {
		http.Redirect(w, r, policy.LandingPage(user.Role), http.StatusSeeOther)
		return
	}
	h.renderer.Page(w, r, "auth/login", render.TemplateData{
		Title: "Sign in",
		Data: LoginData{
			Email:          r.URL.Query().Get("email"),
			GoogleClientID: h.googleClientID,
		},
	})
}

// Login handles the login form submission.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteLogin) {
		return
	}

	creds := model.Credentials{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
	retry := loginURL(creds.Email)

	if err := h.validate.Struct(creds); err != nil {
		flashError(w, r, h.renderer, retry, firstFieldError(fieldErrors(err), "email", "password"))
		return
	}

	if h.loginProtection != nil {
		if locked, remaining := h.loginProtection.IsAccountLocked(creds.Email); locked {
			h.logAuth(r, model.EventLevelWarning, "Login attempt on locked account", nil, map[string]any{"email": creds.Email})
			flashError(w, r, h.renderer, retry,
				fmt.Sprintf("Too many failed attempts. Try again in %s.", formatDuration(remaining)))
			return
		}
	}

	store := middleware.GetStore(r)
	if store == nil {
		logAndInternalError(w, "login without session handle")
		return
	}

	if err := store.Login(r.Context(), creds); err != nil {
		metrics.LoginAttempts.WithLabelValues(loginMethodPassword, "failure").Inc()
		h.logAuth(r, model.EventLevelWarning, "Login failed", nil, map[string]any{
			"email":        creds.Email,
			"login_method": loginMethodPassword,
			"reason":       backend.Message(err, "request failed"),
		})
		flashError(w, r, h.renderer, retry, h.failedLoginMessage(creds.Email, err))
		return
	}

	if h.loginProtection != nil {
		h.loginProtection.RecordSuccessfulLogin(creds.Email)
	}
	h.completeLogin(w, r, store, loginMethodPassword)
}

// failedLoginMessage records the failure and picks the message to show.
// Only credential rejections count towards the lockout.
func (h *AuthHandler) failedLoginMessage(email string, err error) string {
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode >= http.StatusInternalServerError {
		return backend.GenericErrorMessage
	}

	if h.loginProtection != nil {
		if locked, lockDuration := h.loginProtection.RecordFailedAttempt(email); locked {
			return fmt.Sprintf("Too many failed attempts. Try again in %s.", formatDuration(lockDuration))
		}
		if remaining := h.loginProtection.GetRemainingAttempts(email); remaining > 0 && remaining <= 2 {
			return fmt.Sprintf("%s %d attempts remaining.", backend.Message(err, msgInvalidCredentials), remaining)
		}
	}
	return backend.Message(err, msgInvalidCredentials)
}

// GoogleLogin exchanges a Google ID token posted by the sign-in button.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteLogin) {
		return
	}

	token := r.FormValue("credential")
	if token == "" {
		flashError(w, r, h.renderer, RouteLogin, "Google sign-in did not return a credential.")
		return
	}

	store := middleware.GetStore(r)
	if store == nil {
		logAndInternalError(w, "google login without session handle")
		return
	}

	if err := store.LoginWithFederatedCredential(r.Context(), token); err != nil {
		metrics.LoginAttempts.WithLabelValues(loginMethodGoogle, "failure").Inc()
		h.logAuth(r, model.EventLevelWarning, "Login failed", nil, map[string]any{
			"login_method": loginMethodGoogle,
			"reason":       backend.Message(err, "request failed"),
		})
		flashError(w, r, h.renderer, RouteLogin, backend.Message(err, "Google sign-in failed. Please try again."))
		return
	}

	h.completeLogin(w, r, store, loginMethodGoogle)
}

// completeLogin rotates the session token and sends the user to their
// landing page.
func (h *AuthHandler) completeLogin(w http.ResponseWriter, r *http.Request, store *session.Store, method string) {
	metrics.LoginAttempts.WithLabelValues(method, "success").Inc()

	if err := h.manager.Renew(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}

	user := store.User()
	h.logAuth(r, model.EventLevelInfo, "User logged in", user, map[string]any{"login_method": method})
	slog.Info("user logged in",
		logging.AttrCategory, model.EventCategoryAuth,
		logging.AttrUserID, user.ID,
		"login_method", method,
	)

	flashSuccess(w, r, h.renderer, policy.LandingPage(user.Role), "Welcome back, "+user.FullName()+"!")
}

// Logout clears the session and asks the backend to drop its tokens.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	store := middleware.GetStore(r)
	if store != nil {
		user := store.User()
		if err := store.Logout(r.Context()); err != nil {
			slog.Debug("remote logout failed", "error", err)
		}
		if user != nil {
			h.logAuth(r, model.EventLevelInfo, "User logged out", user, nil)
		}
	}

	if err := h.manager.Renew(r.Context()); err != nil {
		slog.Error("session renewal error", "error", err)
	}
	flashAndRedirect(w, r, h.renderer, RouteLogin, "You have been signed out.", render.FlashInfo)
}

// SignupForm renders the sign-up page.
func (h *AuthHandler) SignupForm(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUser(r); user != nil {
		http.Redirect(w, r, policy.LandingPage(user.Role), http.StatusSeeOther)
		return
	}
	h.renderer.Page(w, r, "auth/signup", render.TemplateData{
		Title: "Create account",
		Data:  SignupData{Errors: map[string]string{}},
	})
}

// Signup registers an account, sends the verification code and moves on
// to the verification page.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteSignup) {
		return
	}

	reg := model.Registration{
		Email:           strings.TrimSpace(r.FormValue("email")),
		FirstName:       strings.TrimSpace(r.FormValue("first_name")),
		LastName:        strings.TrimSpace(r.FormValue("last_name")),
		PhoneNumber:     strings.TrimSpace(r.FormValue("phone_number")),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}

	rerender := func(status int, fields map[string]string, flash string) {
		form := reg
		form.Password, form.ConfirmPassword = "", ""
		data := render.TemplateData{
			Title: "Create account",
			Data:  SignupData{Form: form, Errors: fields},
			Flash: flash,
		}
		if flash != "" {
			data.FlashType = render.FlashError
		}
		if err := h.renderer.RenderStatus(w, r, status, "auth/signup", data); err != nil {
			logAndInternalError(w, "failed to render signup page", "error", err)
		}
	}

	if err := h.validate.Struct(reg); err != nil {
		rerender(http.StatusUnprocessableEntity, fieldErrors(err), "")
		return
	}

	store := middleware.GetStore(r)
	if store == nil {
		logAndInternalError(w, "signup without session handle")
		return
	}
	conn := middleware.GetHandle(r).Conn

	if _, err := conn.Register(r.Context(), reg); err != nil {
		h.logAuth(r, model.EventLevelWarning, "Registration failed", nil, map[string]any{
			"email":  reg.Email,
			"reason": backend.Message(err, "request failed"),
		})
		rerender(http.StatusUnprocessableEntity, map[string]string{}, backend.Message(err, "Registration failed. Please try again."))
		return
	}
	h.logAuth(r, model.EventLevelInfo, "User registered", nil, map[string]any{"email": reg.Email})

	target := verifyURL(reg.Email)
	if _, err := conn.SendOTP(r.Context(), reg.Email); err != nil {
		slog.Warn("failed to send verification code",
			logging.AttrCategory, model.EventCategoryAuth,
			"email", reg.Email,
			"error", err,
		)
		flashError(w, r, h.renderer, target, "Account created, but we could not send the verification code. Use resend below.")
		return
	}
	flashSuccess(w, r, h.renderer, target, "Account created. We sent a verification code to "+reg.Email+".")
}

// VerifyForm renders the OTP form for the address in ?email=.
func (h *AuthHandler) VerifyForm(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		if user := middleware.GetUser(r); user != nil {
			email = user.Email
		}
	}
	h.renderer.Page(w, r, "auth/verify_email", render.TemplateData{
		Title: "Verify your e-mail",
		Data:  VerifyData{Email: email},
	})
}

// VerifyEmail checks the submitted code.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteVerifyEmail) {
		return
	}

	v := model.OTPVerification{
		Email: strings.TrimSpace(r.FormValue("email")),
		OTP:   strings.TrimSpace(r.FormValue("otp")),
	}
	retry := verifyURL(v.Email)

	if err := h.validate.Struct(v); err != nil {
		flashError(w, r, h.renderer, retry, firstFieldError(fieldErrors(err), "email", "otp"))
		return
	}

	handle := middleware.GetHandle(r)
	if handle == nil {
		logAndInternalError(w, "verify without session handle")
		return
	}

	if err := handle.Conn.VerifyOTP(r.Context(), v); err != nil {
		h.logAuth(r, model.EventLevelWarning, "E-mail verification failed", nil, map[string]any{"email": v.Email})
		flashError(w, r, h.renderer, retry, backend.Message(err, msgOTPInvalid))
		return
	}
	h.logAuth(r, model.EventLevelInfo, "E-mail verified", handle.Store.User(), map[string]any{"email": v.Email})

	if handle.Store.IsAuthenticated() {
		if err := handle.Store.Reload(r.Context()); err != nil {
			slog.Warn("profile reload after verification failed", "error", err)
		}
		flashSuccess(w, r, h.renderer, RouteDashboard, "Your e-mail address is verified.")
		return
	}
	flashSuccess(w, r, h.renderer, loginURL(v.Email), "Your e-mail address is verified. You can sign in now.")
}

// ResendOTP sends a fresh verification code.
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteVerifyEmail) {
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	retry := verifyURL(email)
	if err := h.validate.Var(email, "required,email"); err != nil {
		flashError(w, r, h.renderer, retry, "Enter a valid email address")
		return
	}

	handle := middleware.GetHandle(r)
	if handle == nil {
		logAndInternalError(w, "resend without session handle")
		return
	}

	msg, err := handle.Conn.SendOTP(r.Context(), email)
	if err != nil {
		slog.Warn("failed to send verification code",
			logging.AttrCategory, model.EventCategoryAuth,
			"email", email,
			"error", err,
		)
		flashError(w, r, h.renderer, retry, msgOTPSendFailed)
		return
	}
	if msg == "" {
		msg = "A new verification code is on its way."
	}
	flashSuccess(w, r, h.renderer, retry, msg)
}

func (h *AuthHandler) logAuth(r *http.Request, level, message string, user *model.User, metadata map[string]any) {
	if h.eventService == nil {
		return
	}
	if err := h.eventService.LogAuthEvent(r, level, message, user, metadata); err != nil {
		slog.Error("failed to record auth event", "error", err, "ip", util.ClientIP(r))
	}
}

func loginURL(email string) string {
	if email == "" {
		return RouteLogin
	}
	return RouteLogin + "?email=" + url.QueryEscape(email)
}

func verifyURL(email string) string {
	if email == "" {
		return RouteVerifyEmail
	}
	return RouteVerifyEmail + "?email=" + url.QueryEscape(email)
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
