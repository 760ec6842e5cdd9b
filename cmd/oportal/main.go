// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/olegiv/oportal-go/internal/backend"
	"github.com/olegiv/oportal-go/internal/cache"
	"github.com/olegiv/oportal-go/internal/config"
	"github.com/olegiv/oportal-go/internal/logging"
	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/render"
	"github.com/olegiv/oportal-go/internal/scheduler"
	"github.com/olegiv/oportal-go/internal/service"
	"github.com/olegiv/oportal-go/internal/session"
	"github.com/olegiv/oportal-go/internal/store"
	"github.com/olegiv/oportal-go/internal/version"
	"github.com/olegiv/oportal-go/web"
)

// sessionSettleWait is how long a request waits for its session to finish
// bootstrapping before the loading placeholder is shown.
const sessionSettleWait = 3 * time.Second

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "oPortal - customer portal for the accounts, features and payments API\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PORTAL_SESSION_SECRET    Session encryption key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PORTAL_BACKEND_URL       Backend API root, e.g. https://api.example.com/api/ (required)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PORTAL_DB_PATH           SQLite database path (default: ./data/oportal.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PORTAL_SERVER_PORT       Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PORTAL_ENV               Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PORTAL_REDIS_URL         Redis URL for the catalog cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PORTAL_GOOGLE_CLIENT_ID  Enables Google sign-in (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		_, _ = fmt.Println(version.Get().String())
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := logging.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// WARN and ERROR records also go to the event log.
	logger = slog.New(logging.NewEventLogHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}), db))
	slog.SetDefault(logger)

	client, err := backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
	})
	if err != nil {
		return fmt.Errorf("initializing backend client: %w", err)
	}

	sessions := session.New(db, cfg.IsDevelopment())
	manager := session.NewManager(sessions, client, session.ManagerConfig{
		SnapshotTTL:      cfg.SnapshotTTL,
		BootstrapTimeout: cfg.BackendTimeout,
		Logger:           logger,
	})
	slog.Info("session manager initialized", "snapshot_ttl", cfg.SnapshotTTL)

	catalogCache, err := cache.New(cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: cfg.CatalogTTL,
	})
	if err != nil {
		slog.Warn("redis unavailable, using memory cache", "error", err)
		catalogCache = cache.NewMemoryCache(cache.MemoryOptions{DefaultTTL: cfg.CatalogTTL, CleanupInterval: time.Minute})
	}
	defer func() { _ = catalogCache.Close() }()
	slog.Info("catalog cache initialized", "backend", cache.Backend(catalogCache))
	catalog := cache.NewCatalog(catalogCache, cfg.CatalogTTL, logger)

	renderer, err := render.New(render.Config{
		TemplatesFS:    web.TemplatesFS(),
		SessionManager: sessions,
	})
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}

	eventService := service.NewEventService(db)

	sched := scheduler.New(logger)
	jobs := []scheduler.Job{
		scheduler.PurgeEventsJob(eventService, cfg.EventRetention(), logger),
		scheduler.SweepSessionsJob(manager, cfg.SessionIdle, logger),
		scheduler.WarmCatalogJob(catalog, func() (cache.CatalogSource, bool) {
			conn, ok := manager.AuthenticatedConn()
			if !ok {
				return nil, false
			}
			return conn, true
		}, cfg.CatalogTTL, logger),
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return fmt.Errorf("registering job %s: %w", job.Name, err)
		}
	}
	sched.Start()
	defer sched.Stop()

	loginProtection := middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig())
	defer loginProtection.Close()

	router := newRouter(routerDeps{
		cfg:             cfg,
		db:              db,
		sessions:        sessions,
		manager:         manager,
		renderer:        renderer,
		cache:           catalogCache,
		catalog:         catalog,
		events:          eventService,
		jobs:            sched,
		loginProtection: loginProtection,
		logger:          logger,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", version.Get().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
