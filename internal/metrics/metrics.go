// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oportal"

// Guard outcomes.
const (
	OutcomeAllowed  = "allowed"
	OutcomeLogin    = "login_redirect"
	OutcomeRole     = "role_redirect"
	OutcomePurchase = "purchase_redirect"
	OutcomeFallback = "fallback"
	OutcomeLoading  = "loading"
)

var (
	// BackendRequestDuration times calls to the accounts/features/payments API.
	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Latency of backend API calls by endpoint and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "status"})

	// GuardDecisions counts route guard outcomes.
	GuardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "guard",
		Name:      "decisions_total",
		Help:      "Route guard decisions by guard kind and outcome.",
	}, []string{"guard", "outcome"})

	// SessionBootstraps counts how session bootstraps resolved.
	SessionBootstraps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "bootstraps_total",
		Help:      "Session bootstrap results (authenticated, refreshed, anonymous).",
	}, []string{"result"})

	// LoginAttempts counts login attempts by method and result.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts by method (password, google) and result.",
	}, []string{"method", "result"})

	// PaymentOrders counts order creation and verification outcomes.
	PaymentOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "orders_total",
		Help:      "Payment order operations by stage (create, verify) and result.",
	}, []string{"stage", "result"})

	// CatalogCacheLookups counts feature catalog cache hits and misses.
	CatalogCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "catalog_lookups_total",
		Help:      "Feature catalog cache lookups by result (hit, miss).",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result maps an error to a label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
