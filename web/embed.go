// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package web embeds the portal's page templates and compiled assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:templates
var Templates embed.FS

//go:embed all:static/dist
var Static embed.FS

// TemplatesFS returns the template tree rooted at templates/, so page names
// read like "pages/dashboard".
func TemplatesFS() fs.FS {
	return mustSub(Templates, "templates")
}

// StaticFS returns the asset tree served under /static/dist/.
func StaticFS() fs.FS {
	return mustSub(Static, "static/dist")
}

// mustSub panics only if the embed directives above and the directory
// names drift apart.
func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
