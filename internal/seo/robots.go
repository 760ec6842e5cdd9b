// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package seo builds the crawler-facing files of the portal.
package seo

import (
	"slices"
	"strings"
)

// RobotsConfig holds configuration for robots.txt generation.
type RobotsConfig struct {
	// DisallowAll closes the whole site, used outside production.
	DisallowAll bool
	// DisallowPaths are the signed-in sections, e.g. "/admin".
	DisallowPaths []string
	ExtraRules    string
}

// RobotsBuilder builds robots.txt content.
type RobotsBuilder struct {
	config RobotsConfig
}

// NewRobotsBuilder creates a new robots.txt builder.
func NewRobotsBuilder(config RobotsConfig) *RobotsBuilder {
	return &RobotsBuilder{config: config}
}

// Build renders the rules. Paths are emitted sorted and deduplicated, and
// only the landing page itself stays open.
func (b *RobotsBuilder) Build() string {
	lines := []string{"User-agent: *"}

	if b.config.DisallowAll {
		lines = append(lines, "Disallow: /")
	} else {
		paths := slices.Clone(b.config.DisallowPaths)
		slices.Sort(paths)
		for _, p := range slices.Compact(paths) {
			lines = append(lines, "Disallow: "+p)
		}
		lines = append(lines, "Allow: /$")
	}

	if extra := strings.TrimRight(b.config.ExtraRules, "\n"); extra != "" {
		lines = append(lines, "", extra)
	}

	return strings.Join(lines, "\n") + "\n"
}
