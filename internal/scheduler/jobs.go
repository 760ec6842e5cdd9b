// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/oportal-go/internal/cache"
	"github.com/olegiv/oportal-go/internal/model"
)

// Job names.
const (
	JobPurgeEvents   = "purge-events"
	JobSweepSessions = "sweep-sessions"
	JobWarmCatalog   = "warm-catalog"
)

// EventPurger deletes audit events older than a cutoff.
type EventPurger interface {
	DeleteOldEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SessionSweeper drops idle live session handles.
type SessionSweeper interface {
	Sweep(maxIdle time.Duration) int
}

// CatalogStore receives a freshly loaded catalog.
type CatalogStore interface {
	Store(ctx context.Context, features []model.Feature) error
}

// PurgeEventsJob deletes audit events past the retention period once a day.
func PurgeEventsJob(p EventPurger, retention time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:        JobPurgeEvents,
		Description: fmt.Sprintf("Delete audit events older than %s", retention),
		Schedule:    "@daily",
		Run: func(ctx context.Context) error {
			n, err := p.DeleteOldEvents(ctx, retention)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("purged old events", "count", n)
			}
			return nil
		},
	}
}

// SweepSessionsJob releases session handles idle for maxIdle.
func SweepSessionsJob(s SessionSweeper, maxIdle time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:        JobSweepSessions,
		Description: fmt.Sprintf("Release sessions idle for %s", maxIdle),
		Schedule:    "@every 5m",
		Run: func(context.Context) error {
			if n := s.Sweep(maxIdle); n > 0 {
				logger.Debug("swept idle sessions", "count", n)
			}
			return nil
		},
	}
}

// WarmCatalogJob refreshes the cached feature catalog. The catalog endpoint
// needs credentials, so the job borrows a signed-in session's connection
// and does nothing while nobody is signed in.
func WarmCatalogJob(catalog CatalogStore, source func() (cache.CatalogSource, bool), every time.Duration, logger *slog.Logger) Job {
	if every <= 0 {
		every = 10 * time.Minute
	}
	return Job{
		Name:        JobWarmCatalog,
		Description: "Refresh the cached feature catalog",
		Schedule:    "@every " + every.String(),
		Run: func(ctx context.Context) error {
			src, ok := source()
			if !ok {
				logger.Debug("catalog warmup skipped, no signed-in session")
				return nil
			}
			features, err := src.Features(ctx)
			if err != nil {
				return fmt.Errorf("loading catalog: %w", err)
			}
			if err := catalog.Store(ctx, features); err != nil {
				return fmt.Errorf("storing catalog: %w", err)
			}
			logger.Debug("catalog warmed", "features", len(features))
			return nil
		},
	}
}
