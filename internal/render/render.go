// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package render parses the embedded page templates and renders them with
// the request's session, flash message and renewal notices.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/policy"
)

// Flash session keys.
const (
	flashKey     = "flash"
	flashTypeKey = "flash_type"
)

// Flash types.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// pageDirs are the template directories rendered inside the base layout.
var pageDirs = []string{"pages", "auth", "admin"}

// Renderer handles template rendering with caching.
type Renderer struct {
	templates      map[string]*template.Template
	sessionManager *scs.SessionManager
	sanitizer      *bluemonday.Policy
	extraFuncs     template.FuncMap
	siteName       string
	now            func() time.Time
}

// Config holds renderer configuration.
type Config struct {
	TemplatesFS    fs.FS
	SessionManager *scs.SessionManager
	SiteName       string

	// Funcs are added to, and may override, the built-in template functions.
	Funcs template.FuncMap
}

// New creates a new Renderer with parsed templates.
func New(cfg Config) (*Renderer, error) {
	if cfg.SiteName == "" {
		cfg.SiteName = "oPortal"
	}
	r := &Renderer{
		templates:      make(map[string]*template.Template),
		sessionManager: cfg.SessionManager,
		sanitizer:      bluemonday.UGCPolicy(),
		extraFuncs:     cfg.Funcs,
		siteName:       cfg.SiteName,
		now:            time.Now,
	}

	if err := r.parseTemplates(cfg.TemplatesFS); err != nil {
		return nil, err
	}
	return r, nil
}

// parseTemplates parses every page template together with the base layout
// and all partials. Pages are named "<dir>/<file without .html>".
func (r *Renderer) parseTemplates(templatesFS fs.FS) error {
	partials, err := templateFiles(templatesFS, "partials")
	if err != nil {
		return fmt.Errorf("getting partials: %w", err)
	}
	baseLayout := "layouts/base.html"

	for _, dir := range pageDirs {
		pages, err := templateFiles(templatesFS, dir)
		if err != nil {
			return fmt.Errorf("getting %s templates: %w", dir, err)
		}
		for _, page := range pages {
			name := dir + "/" + strings.TrimSuffix(path.Base(page), ".html")

			files := append([]string{baseLayout}, partials...)
			files = append(files, page)

			tmpl, err := template.New("").Funcs(r.templateFuncs()).ParseFS(templatesFS, files...)
			if err != nil {
				return fmt.Errorf("parsing template %s: %w", name, err)
			}
			r.templates[name] = tmpl
		}
	}

	if len(r.templates) == 0 {
		return fmt.Errorf("no page templates found")
	}
	return nil
}

// templateFiles returns all .html files in a directory. A missing
// directory yields no files.
func templateFiles(templatesFS fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(templatesFS, dir)
	if err != nil {
		return nil, nil
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".html") {
			files = append(files, path.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// Has reports whether a page template exists.
func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// templateFuncs returns custom template functions.
func (r *Renderer) templateFuncs() template.FuncMap {
	funcs := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
		"formatDateTime": func(t time.Time) string {
			return t.Format("Jan 2, 2006 3:04 PM")
		},
		"formatAmount": formatAnyAmount,
		"sanitize": func(s string) template.HTML {
			return template.HTML(r.sanitizer.Sanitize(s))
		},
		"truncate": func(s string, length int) string {
			runes := []rune(s)
			if len(runes) <= length {
				return s
			}
			return string(runes[:length]) + "..."
		},
		"roleName":    policy.DisplayName,
		"roleColor":   policy.Color,
		"featureName": policy.FeatureDisplayName,
		"purchaseURL": policy.PurchaseURL,
		"daysLabel":   DaysLabel,
		"derefInt": func(p *int) int {
			if p == nil {
				return 0
			}
			return *p
		},
		"hasRole": func(u *model.User, role string) bool {
			return u != nil && policy.CanAccess(u.Role, model.Role(role))
		},
		"add": func(a, b int) int {
			return a + b
		},
	}
	for name, fn := range r.extraFuncs {
		funcs[name] = fn
	}
	return funcs
}

// FormatAmount renders a rupee amount with Indian digit grouping, e.g.
// 150000 → "₹1,50,000".
func FormatAmount(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	whole := int64(amount)
	paise := int64((amount-float64(whole))*100 + 0.5)
	if paise == 100 {
		whole++
		paise = 0
	}

	digits := fmt.Sprintf("%d", whole)
	var grouped string
	if len(digits) <= 3 {
		grouped = digits
	} else {
		head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
		var parts []string
		for len(head) > 2 {
			parts = append([]string{head[len(head)-2:]}, parts...)
			head = head[:len(head)-2]
		}
		if head != "" {
			parts = append([]string{head}, parts...)
		}
		grouped = strings.Join(parts, ",") + "," + tail
	}

	out := "₹" + grouped
	if paise > 0 {
		out += fmt.Sprintf(".%02d", paise)
	}
	if neg {
		out = "-" + out
	}
	return out
}

// formatAnyAmount lets templates format amounts held as ints or as the
// decimal strings the payments API returns.
func formatAnyAmount(v any) string {
	switch n := v.(type) {
	case int:
		return FormatAmount(float64(n))
	case int64:
		return FormatAmount(float64(n))
	case float64:
		return FormatAmount(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return n
		}
		return FormatAmount(f)
	default:
		return fmt.Sprint(v)
	}
}

// DaysLabel phrases a remaining-days count for banners.
func DaysLabel(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "in 1 day"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

// TemplateData holds data passed to templates.
type TemplateData struct {
	Title       string
	SiteName    string
	User        *model.User
	Path        string
	Data        any
	Flash       string
	FlashType   string
	Renewals    []middleware.RenewalNotice
	CurrentYear int
}

// Render renders a page with status 200.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, name string, data TemplateData) error {
	return r.RenderStatus(w, req, http.StatusOK, name, data)
}

// RenderStatus renders a page with the given status code. The session user,
// pending flash and renewal notices are filled in from the request.
func (r *Renderer) RenderStatus(w http.ResponseWriter, req *http.Request, status int, name string, data TemplateData) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}

	data.SiteName = r.siteName
	data.CurrentYear = r.now().Year()
	data.Path = req.URL.Path
	if data.User == nil {
		data.User = middleware.GetUser(req)
	}
	if data.Renewals == nil {
		data.Renewals = middleware.GetRenewalNotices(req)
	}

	if r.sessionManager != nil && data.Flash == "" {
		if flash := r.sessionManager.PopString(req.Context(), flashKey); flash != "" {
			data.Flash = flash
			data.FlashType = r.sessionManager.PopString(req.Context(), flashTypeKey)
		}
	}
	if data.Flash != "" && data.FlashType == "" {
		data.FlashType = FlashInfo
	}

	// Render to buffer first to catch errors
	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, "base", data); err != nil {
		return fmt.Errorf("executing template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Page renders name and logs, then answers 500 on failure.
func (r *Renderer) Page(w http.ResponseWriter, req *http.Request, name string, data TemplateData) {
	if err := r.Render(w, req, name, data); err != nil {
		slog.Error("failed to render page", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// SetFlash sets a flash message shown on the next rendered page.
func (r *Renderer) SetFlash(req *http.Request, message, flashType string) {
	if r.sessionManager != nil {
		r.sessionManager.Put(req.Context(), flashKey, message)
		r.sessionManager.Put(req.Context(), flashTypeKey, flashType)
	}
}
