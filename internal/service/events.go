// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service provides the audit trail written by handlers and guards.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mileusna/useragent"

	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/store"
	"github.com/olegiv/oportal-go/internal/util"
)

// EventService provides event logging functionality.
type EventService struct {
	queries *store.Queries
	now     func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(db *sql.DB) *EventService {
	return &EventService{
		queries: store.New(db),
		now:     time.Now,
	}
}

// LogEvent creates a new event log entry.
func (s *EventService) LogEvent(ctx context.Context, level, category, message string, userID *int64, ipAddress, requestURL string, metadata map[string]any) error {
	var nullUserID sql.NullInt64
	if userID != nil {
		nullUserID = sql.NullInt64{Int64: *userID, Valid: true}
	}

	metadataJSON := "{}"
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			metadataJSON = string(raw)
		}
	}

	_, err := s.queries.CreateEvent(ctx, store.CreateEventParams{
		Level:      level,
		Category:   category,
		Message:    message,
		UserID:     nullUserID,
		Metadata:   metadataJSON,
		IpAddress:  ipAddress,
		RequestUrl: requestURL,
		CreatedAt:  s.now(),
	})
	if err != nil {
		slog.Error("failed to log event", "error", err, "category", category)
		return err
	}
	return nil
}

// LogRequestEvent logs an event tied to a request. The client address,
// path and a parsed user agent are recorded with it.
func (s *EventService) LogRequestEvent(r *http.Request, level, category, message string, user *model.User, metadata map[string]any) error {
	meta := RequestMetadata(r)
	for k, v := range metadata {
		meta[k] = v
	}

	var userID *int64
	if user != nil {
		id := user.ID
		userID = &id
		meta["email"] = user.Email
	}

	return s.LogEvent(r.Context(), level, category, message, userID, util.ClientIP(r), r.URL.Path, meta)
}

// LogAuthEvent logs an authentication-related event.
func (s *EventService) LogAuthEvent(r *http.Request, level, message string, user *model.User, metadata map[string]any) error {
	return s.LogRequestEvent(r, level, model.EventCategoryAuth, message, user, metadata)
}

// LogPaymentEvent logs a payment-related event.
func (s *EventService) LogPaymentEvent(r *http.Request, level, message string, user *model.User, metadata map[string]any) error {
	return s.LogRequestEvent(r, level, model.EventCategoryPayment, message, user, metadata)
}

// LogFeatureEvent logs a feature administration event.
func (s *EventService) LogFeatureEvent(r *http.Request, level, message string, user *model.User, metadata map[string]any) error {
	return s.LogRequestEvent(r, level, model.EventCategoryFeature, message, user, metadata)
}

// LogSystemEvent logs an event without a request, e.g. from the scheduler.
func (s *EventService) LogSystemEvent(ctx context.Context, level, message string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategorySystem, message, nil, "", "", metadata)
}

// RecentEvents lists the newest events, optionally in one category.
func (s *EventService) RecentEvents(ctx context.Context, category string, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queries.ListRecentEvents(ctx, store.ListRecentEventsParams{Category: category, Limit: int64(limit)})
}

// DeleteOldEvents removes events older than the specified duration.
func (s *EventService) DeleteOldEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.queries.DeleteEventsBefore(ctx, s.now().Add(-olderThan))
}

// RequestMetadata describes the client making r.
func RequestMetadata(r *http.Request) map[string]any {
	meta := map[string]any{"method": r.Method}

	raw := r.UserAgent()
	if raw == "" {
		return meta
	}
	ua := useragent.Parse(raw)

	browser, osName := ua.Name, ua.OS
	if browser == "" {
		browser = "Unknown"
	}
	if osName == "" {
		osName = "Unknown"
	}
	meta["browser"] = browser
	meta["os"] = osName

	switch {
	case ua.Mobile:
		meta["device"] = "mobile"
	case ua.Tablet:
		meta["device"] = "tablet"
	case ua.Bot:
		meta["device"] = "bot"
	default:
		meta["device"] = "desktop"
	}
	return meta
}
