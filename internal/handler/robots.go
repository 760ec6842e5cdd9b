// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"

	"github.com/olegiv/oportal-go/internal/policy"
	"github.com/olegiv/oportal-go/internal/seo"
)

// Robots serves robots.txt. Non-production deployments block every crawler.
func Robots(disallowAll bool) http.HandlerFunc {
	content := seo.NewRobotsBuilder(seo.RobotsConfig{
		DisallowAll:   disallowAll,
		DisallowPaths: policy.GuardedSections(),
	}).Build()

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(HeaderContentType, "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write([]byte(content))
	}
}
