// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"time"
)

// Config selects and configures the cache backend.
type Config struct {
	// RedisURL enables Redis when set, e.g. redis://localhost:6379/0.
	RedisURL string

	// Prefix namespaces Redis keys.
	Prefix string

	DefaultTTL time.Duration

	// MaxItems bounds the memory cache.
	MaxItems int
}

// New returns a Redis cache when RedisURL is set and a memory cache
// otherwise. A Redis connection failure is returned, not hidden.
func New(cfg Config) (Cache, error) {
	if cfg.RedisURL != "" {
		opts := DefaultRedisOptions()
		opts.URL = cfg.RedisURL
		if cfg.Prefix != "" {
			opts.Prefix = cfg.Prefix
		}
		if cfg.DefaultTTL > 0 {
			opts.DefaultTTL = cfg.DefaultTTL
		}
		return NewRedisCache(opts)
	}

	return NewMemoryCache(MemoryOptions{
		DefaultTTL:      cfg.DefaultTTL,
		MaxItems:        cfg.MaxItems,
		CleanupInterval: time.Minute,
	}), nil
}

// Backend names the implementation behind c.
func Backend(c Cache) string {
	switch c.(type) {
	case *RedisCache:
		return "redis"
	case *MemoryCache:
		return "memory"
	default:
		return "unknown"
	}
}
