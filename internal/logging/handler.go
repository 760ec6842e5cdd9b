// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a custom slog handler that integrates with the Event Log system.
// It forwards logs at WARN level and above to the database-backed Event Log for auditing.
package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/store"
)

// Attribute keys lifted out of metadata into event columns.
const (
	AttrCategory = "category"
	AttrUserID   = "user_id"
	AttrIP       = "ip"
	AttrURL      = "url"
)

// EventLogHandler is a slog.Handler that wraps another handler and also writes
// WARN and ERROR level logs to the Event Log database.
type EventLogHandler struct {
	inner   slog.Handler
	queries *store.Queries
	level   slog.Level
	attrs   []slog.Attr
}

// NewEventLogHandler creates a new EventLogHandler that wraps the given handler.
func NewEventLogHandler(inner slog.Handler, db *sql.DB) *EventLogHandler {
	return NewEventLogHandlerWithLevel(inner, db, slog.LevelWarn)
}

// NewEventLogHandlerWithLevel creates a new EventLogHandler with a custom minimum level.
func NewEventLogHandlerWithLevel(inner slog.Handler, db *sql.DB, level slog.Level) *EventLogHandler {
	return &EventLogHandler{
		inner:   inner,
		queries: store.New(db),
		level:   level,
	}
}

// Enabled implements slog.Handler.
func (h *EventLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *EventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level >= h.level {
		h.writeToEventLog(r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EventLogHandler{
		inner:   h.inner.WithAttrs(attrs),
		queries: h.queries,
		level:   h.level,
		attrs:   append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

// WithGroup implements slog.Handler.
func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	return &EventLogHandler{
		inner:   h.inner.WithGroup(name),
		queries: h.queries,
		level:   h.level,
		attrs:   h.attrs,
	}
}

// writeToEventLog uses a background context so the event survives a
// cancelled request.
func (h *EventLogHandler) writeToEventLog(r slog.Record) {
	params := store.CreateEventParams{
		Level:     slogLevelToEventLevel(r.Level),
		Message:   r.Message,
		CreatedAt: r.Time,
	}

	meta := make(map[string]string)
	collect := func(a slog.Attr) bool {
		switch a.Key {
		case AttrCategory:
			params.Category = a.Value.String()
		case AttrUserID:
			if a.Value.Kind() == slog.KindInt64 {
				params.UserID = sql.NullInt64{Int64: a.Value.Int64(), Valid: true}
			}
		case AttrIP:
			params.IpAddress = a.Value.String()
		case AttrURL:
			params.RequestUrl = a.Value.String()
		default:
			meta[a.Key] = a.Value.String()
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	if params.Category == "" {
		params.Category = inferCategory(r.Message)
	}
	params.Metadata = "{}"
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			params.Metadata = string(raw)
		}
	}

	_, _ = h.queries.CreateEvent(context.Background(), params)
}

func slogLevelToEventLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.EventLevelError
	case level >= slog.LevelWarn:
		return model.EventLevelWarning
	default:
		return model.EventLevelInfo
	}
}

// inferCategory guesses a category from the message when none was given.
func inferCategory(message string) string {
	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, "login", "logout", "auth", "otp", "token", "lockout"):
		return model.EventCategoryAuth
	case containsAny(msg, "denied", "guard", "forbidden", "redirect"):
		return model.EventCategoryAccess
	case containsAny(msg, "payment", "order", "wallet"):
		return model.EventCategoryPayment
	case containsAny(msg, "feature", "grant", "catalog"):
		return model.EventCategoryFeature
	case containsAny(msg, "cache", "redis"):
		return model.EventCategoryCache
	case containsAny(msg, "backend", "api"):
		return model.EventCategoryBackend
	default:
		return model.EventCategorySystem
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
