// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

// Route pattern constants for chi router registration.
const (
	// RouteRoot is the root path.
	RouteRoot = "/"

	// RouteLogin is the login route.
	RouteLogin = "/auth/login"
	// RouteGoogleLogin accepts a Google ID token.
	RouteGoogleLogin = "/auth/google"
	// RouteSignup is the sign-up route.
	RouteSignup = "/auth/signup"
	// RouteVerifyEmail is the OTP verification route.
	RouteVerifyEmail = "/auth/verify-email"
	// RouteResendOTP re-sends the verification code.
	RouteResendOTP = "/auth/verify-email/resend"
	// RouteLogout is the logout route.
	RouteLogout = "/auth/logout"

	// RouteDashboard is the user dashboard.
	RouteDashboard = "/dashboard"
	// RouteProfile is the profile page.
	RouteProfile = "/profile"
	// RouteSettings is the settings page.
	RouteSettings = "/settings"
	// RouteDashboardRefresh reloads the profile and grants.
	RouteDashboardRefresh = "/dashboard/refresh"

	// RoutePayments is the coin purchase page.
	RoutePayments = "/payments"
	// RoutePaymentsSuccess is shown after a verified payment.
	RoutePaymentsSuccess = "/payments/success"
	// RoutePaymentsOrders creates checkout orders.
	RoutePaymentsOrders = "/payments/orders"
	// RoutePaymentsOrderID looks up one order.
	RoutePaymentsOrderID = "/payments/orders/{orderID}"
	// RoutePaymentsVerify forwards checkout callbacks.
	RoutePaymentsVerify = "/payments/verify"

	// RouteManager is the manager console.
	RouteManager = "/manager"
	// RouteManagerReports lists feature adoption.
	RouteManagerReports = "/manager/reports"
	// RouteManagerTeam lists the navigation available per role.
	RouteManagerTeam = "/manager/team"

	// RouteAdmin is the admin console.
	RouteAdmin = "/admin"
	// RouteAdminUsers is the feature grant console.
	RouteAdminUsers = "/admin/users"
	// RouteAdminSystem shows the event log, cache and jobs.
	RouteAdminSystem = "/admin/system"
	// RouteAdminToggle grants or revokes a feature.
	RouteAdminToggle = "/admin/features/toggle"
	// RouteAdminCatalogCache drops the cached catalog.
	RouteAdminCatalogCache = "/admin/cache/catalog"
	// RouteAdminJobRun triggers a scheduled job.
	RouteAdminJobRun = "/admin/jobs/{name}/run"

	// RouteProductCRM is the CRM product page.
	RouteProductCRM = "/product/crm"
	// RouteProductAIBot is the AI bot product page.
	RouteProductAIBot = "/product/ai_bot"
	// RouteProductReferly is the e-mail marketing product page.
	RouteProductReferly = "/product/referly"
	// RouteProductPrivacy is the user-only privacy page.
	RouteProductPrivacy = "/product/privacy"
	// RouteProductDashboard and RouteProductPayment are legacy aliases.
	RouteProductDashboard = "/product/dashboard"
	RouteProductPayment   = "/product/payment"

	// RouteHealth and friends are the health endpoints.
	RouteHealth      = "/health"
	RouteHealthLive  = "/health/live"
	RouteHealthReady = "/health/ready"

	// RouteMetrics exposes Prometheus metrics.
	RouteMetrics = "/metrics"
	// RouteRobots serves robots.txt.
	RouteRobots = "/robots.txt"
	// RouteStatic serves embedded assets.
	RouteStatic = "/static/dist/*"
)

// Header constants.
const (
	HeaderContentType = "Content-Type"
)

// Default messages.
const (
	msgInvalidCredentials = "Invalid email or password."
	msgOTPSendFailed      = "Failed to send verification code. Please try again."
	msgOTPInvalid         = "Invalid or expired verification code."
)
