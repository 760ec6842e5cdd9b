// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/olegiv/oportal-go/internal/logging"
	"github.com/olegiv/oportal-go/internal/metrics"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/policy"
	"github.com/olegiv/oportal-go/internal/session"
	"github.com/olegiv/oportal-go/internal/util"
)

// Guard kinds, used as metric labels.
const (
	guardAuth    = "auth"
	guardRole    = "role"
	guardRoute   = "route"
	guardFeature = "feature"
)

// DefaultLoginPath is where anonymous visitors are sent.
const DefaultLoginPath = "/auth/login"

// GuardConfig configures route guards.
type GuardConfig struct {
	// RedirectTo is the login destination for anonymous visitors.
	RedirectTo string

	// RenewalWindow is the number of days before expiry at which the
	// feature guard starts attaching a renewal notice.
	RenewalWindow int

	// Loading renders the placeholder shown while a session bootstraps.
	// A minimal self-refreshing page is used when nil.
	Loading http.Handler

	Logger *slog.Logger
}

// Guards builds the role, route and feature guards for route groups.
type Guards struct {
	redirectTo    string
	renewalWindow int
	loading       http.Handler
	logger        *slog.Logger
}

// NewGuards creates Guards from cfg.
func NewGuards(cfg GuardConfig) *Guards {
	if cfg.RedirectTo == "" {
		cfg.RedirectTo = DefaultLoginPath
	}
	if cfg.RenewalWindow < 0 {
		cfg.RenewalWindow = 0
	}
	if cfg.Loading == nil {
		cfg.Loading = http.HandlerFunc(loadingPlaceholder)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Guards{
		redirectTo:    cfg.RedirectTo,
		renewalWindow: cfg.RenewalWindow,
		loading:       cfg.Loading,
		logger:        cfg.Logger.With(logging.AttrCategory, model.EventCategoryAccess),
	}
}

// RoleOptions configures a role guard. Exactly one of Required or Allowed
// should be set; Allowed wins when both are.
type RoleOptions struct {
	Required model.Role
	Allowed  []model.Role

	// NoRedirect renders Fallback (or nothing) instead of redirecting a
	// signed-in user without the role.
	NoRedirect bool
	Fallback   http.Handler
}

// FeatureOptions configures a feature guard.
type FeatureOptions struct {
	Code string

	// ProductName is carried to the purchase page. Defaults to the
	// feature's display name.
	ProductName string

	RedirectOnNoAccess bool
	Fallback           http.Handler
}

// RenewalNotice asks the page to show a renewal banner for a feature that
// is about to expire.
type RenewalNotice struct {
	Code        string
	ProductName string
	DaysLeft    int
	ExpiresOn   time.Time
	RenewURL    string
}

// GetRenewalNotices returns the notices attached by feature guards.
func GetRenewalNotices(r *http.Request) []RenewalNotice {
	notices, _ := r.Context().Value(ContextKeyRenewal).([]RenewalNotice)
	return notices
}

// RequireAuth lets only signed-in users through.
func (g *Guards) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.authenticate(w, r, guardAuth); !ok {
			return
		}
		metrics.GuardDecisions.WithLabelValues(guardAuth, metrics.OutcomeAllowed).Inc()
		next.ServeHTTP(w, r)
	})
}

// RequireRole requires the signed-in user to hold a role. A user without it
// is sent to the landing page for the role they do have.
func (g *Guards) RequireRole(opts RoleOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := g.authenticate(w, r, guardRole)
			if !ok {
				return
			}
			user := s.User()

			var allowed bool
			if len(opts.Allowed) > 0 {
				allowed = policy.HasAnyRole(user.Role, opts.Allowed...)
			} else {
				allowed = s.CanAccess(opts.Required)
			}
			if allowed {
				metrics.GuardDecisions.WithLabelValues(guardRole, metrics.OutcomeAllowed).Inc()
				next.ServeHTTP(w, r)
				return
			}

			attrs := []any{"user_role", string(user.Role)}
			if len(opts.Allowed) > 0 {
				attrs = append(attrs, "allowed_roles", rolesString(opts.Allowed))
			} else {
				attrs = append(attrs, "required_role", string(opts.Required))
			}

			if opts.NoRedirect {
				g.deny(r, guardRole, metrics.OutcomeFallback, user, attrs...)
				renderFallback(w, r, opts.Fallback)
				return
			}
			g.deny(r, guardRole, metrics.OutcomeRole, user, attrs...)
			http.Redirect(w, r, policy.LandingPage(user.Role), http.StatusSeeOther)
		})
	}
}

// RequireRoute resolves the role needed for the request path from the
// route table and redirects users who may not visit it.
func (g *Guards) RequireRoute() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := g.authenticate(w, r, guardRoute)
			if !ok {
				return
			}
			user := s.User()

			if policy.CanUserAccessRoute(user.Role, r.URL.Path) {
				metrics.GuardDecisions.WithLabelValues(guardRoute, metrics.OutcomeAllowed).Inc()
				next.ServeHTTP(w, r)
				return
			}

			g.deny(r, guardRoute, metrics.OutcomeRole, user,
				"user_role", string(user.Role),
				"required_role", string(policy.RequiredRole(r.URL.Path)),
			)
			http.Redirect(w, r, policy.LandingPage(user.Role), http.StatusSeeOther)
		})
	}
}

// RequireFeature requires an active grant for opts.Code. Users about to
// lose the feature get a RenewalNotice in the request context.
func (g *Guards) RequireFeature(opts FeatureOptions) func(http.Handler) http.Handler {
	product := opts.ProductName
	if product == "" {
		product = policy.FeatureDisplayName(opts.Code)
	}
	purchaseURL := policy.PurchaseURL(opts.Code, product)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := g.authenticate(w, r, guardFeature)
			if !ok {
				return
			}

			if !s.HasFeature(opts.Code) {
				user := s.User()
				if opts.RedirectOnNoAccess {
					g.deny(r, guardFeature, metrics.OutcomePurchase, user, "feature", opts.Code)
					http.Redirect(w, r, purchaseURL, http.StatusSeeOther)
					return
				}
				g.deny(r, guardFeature, metrics.OutcomeFallback, user, "feature", opts.Code)
				renderFallback(w, r, opts.Fallback)
				return
			}

			metrics.GuardDecisions.WithLabelValues(guardFeature, metrics.OutcomeAllowed).Inc()

			info := s.FeatureExpiryInfo(opts.Code)
			if info.NeedsRenewalWarning(g.renewalWindow) {
				notice := RenewalNotice{
					Code:        opts.Code,
					ProductName: product,
					DaysLeft:    *info.DaysUntilExpiry,
					ExpiresOn:   *info.ExpiresOn,
					RenewURL:    purchaseURL,
				}
				notices := append(append([]RenewalNotice(nil), GetRenewalNotices(r)...), notice)
				r = r.WithContext(context.WithValue(r.Context(), ContextKeyRenewal, notices))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate resolves the session for a guard. It writes the loading
// placeholder or the login redirect itself and reports false when the
// request must stop.
func (g *Guards) authenticate(w http.ResponseWriter, r *http.Request, guard string) (*session.Store, bool) {
	s := GetStore(r)
	if s != nil {
		switch s.State() {
		case session.StateUninitialized, session.StateLoading:
			metrics.GuardDecisions.WithLabelValues(guard, metrics.OutcomeLoading).Inc()
			g.loading.ServeHTTP(w, r)
			return nil, false
		case session.StateAuthenticated:
			if s.User() != nil {
				return s, true
			}
		}
	}

	metrics.GuardDecisions.WithLabelValues(guard, metrics.OutcomeLogin).Inc()
	g.logger.Debug("anonymous request redirected to login",
		"guard", guard,
		logging.AttrURL, r.URL.Path,
	)
	http.Redirect(w, r, g.redirectTo, http.StatusSeeOther)
	return nil, false
}

// deny counts and logs a guard denial for a signed-in user. The WARN record
// lands in the event log with the access category.
func (g *Guards) deny(r *http.Request, guard, outcome string, user *model.User, attrs ...any) {
	metrics.GuardDecisions.WithLabelValues(guard, outcome).Inc()

	args := []any{
		"guard", guard,
		"outcome", outcome,
		logging.AttrIP, util.ClientIP(r),
		logging.AttrURL, r.URL.Path,
	}
	if user != nil {
		args = append(args, logging.AttrUserID, user.ID)
	}
	args = append(args, attrs...)
	g.logger.Warn("access denied", args...)
}

func renderFallback(w http.ResponseWriter, r *http.Request, fallback http.Handler) {
	if fallback != nil {
		fallback.ServeHTTP(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func rolesString(roles []model.Role) string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return strings.Join(names, ",")
}

const loadingPage = `<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>Loading</title></head>
<body><div class="loading" role="status">Loading your session...</div></body></html>
`

// loadingPlaceholder is the default page served while a session bootstraps.
func loadingPlaceholder(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Refresh", "1")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loadingPage))
}
