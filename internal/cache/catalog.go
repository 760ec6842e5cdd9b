// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/olegiv/oportal-go/internal/metrics"
	"github.com/olegiv/oportal-go/internal/model"
)

const catalogKey = "catalog:features"

// CatalogSource loads the feature catalog from the backend.
type CatalogSource interface {
	Features(ctx context.Context) ([]model.Feature, error)
}

// Catalog caches the feature catalog. The catalog is the same for every
// user, so one authenticated fetch serves all sessions until the TTL ends.
type Catalog struct {
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCatalog wraps c.
func NewCatalog(c Cache, ttl time.Duration, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{cache: c, ttl: ttl, logger: logger}
}

// Features returns the cached catalog or loads it from src. Cache errors
// fall through to src.
func (c *Catalog) Features(ctx context.Context, src CatalogSource) ([]model.Feature, error) {
	raw, err := c.cache.Get(ctx, catalogKey)
	switch {
	case err == nil:
		var features []model.Feature
		if jerr := json.Unmarshal(raw, &features); jerr == nil {
			metrics.CatalogCacheLookups.WithLabelValues("hit").Inc()
			return features, nil
		}
		c.logger.Warn("discarding corrupt catalog cache entry", "category", model.EventCategoryCache)
		metrics.CatalogCacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, ErrCacheMiss):
		metrics.CatalogCacheLookups.WithLabelValues("miss").Inc()
	default:
		c.logger.Warn("catalog cache read failed", "category", model.EventCategoryCache, "error", err)
		metrics.CatalogCacheLookups.WithLabelValues("error").Inc()
	}

	features, err := src.Features(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Store(ctx, features); err != nil {
		c.logger.Warn("catalog cache write failed", "category", model.EventCategoryCache, "error", err)
	}
	return features, nil
}

// Store replaces the cached catalog.
func (c *Catalog) Store(ctx context.Context, features []model.Feature) error {
	if features == nil {
		features = []model.Feature{}
	}
	raw, err := json.Marshal(features)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, catalogKey, raw, c.ttl)
}

// Invalidate drops the cached catalog, e.g. after an admin change.
func (c *Catalog) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, catalogKey)
}
