// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

// testDB creates a migrated database in a temp dir.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "portal-test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrateCreatesTables(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"sessions", "events"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	version, err := MigrationVersion(db)
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}

	// Running again is a no-op.
	if err := Migrate(db); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
}

func TestCreateEvent(t *testing.T) {
	db := testDB(t)
	q := New(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ev, err := q.CreateEvent(ctx, CreateEventParams{
		Level:      "warning",
		Category:   "access",
		Message:    "route denied",
		UserID:     sql.NullInt64{Int64: 42, Valid: true},
		IpAddress:  "203.0.113.9",
		RequestUrl: "/admin",
		CreatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	if ev.ID == 0 {
		t.Error("ev.ID should not be 0")
	}
	if ev.Metadata != "{}" {
		t.Errorf("Metadata = %q, want {}", ev.Metadata)
	}
	if !ev.UserID.Valid || ev.UserID.Int64 != 42 {
		t.Errorf("UserID = %+v, want 42", ev.UserID)
	}
	if !ev.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", ev.CreatedAt, now)
	}
}

func TestListRecentEvents(t *testing.T) {
	db := testDB(t)
	q := New(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, cat := range []string{"auth", "access", "auth", "payment"} {
		_, err := q.CreateEvent(ctx, CreateEventParams{
			Level:     "info",
			Category:  cat,
			Message:   cat,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	all, err := q.ListRecentEvents(ctx, ListRecentEventsParams{Limit: 10})
	if err != nil {
		t.Fatalf("ListRecentEvents: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	if all[0].Category != "payment" {
		t.Errorf("newest category = %q, want payment", all[0].Category)
	}

	auth, err := q.ListRecentEvents(ctx, ListRecentEventsParams{Category: "auth", Limit: 1})
	if err != nil {
		t.Fatalf("ListRecentEvents(auth): %v", err)
	}
	if len(auth) != 1 || !auth[0].CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("ListRecentEvents(auth, 1) = %+v", auth)
	}

	count, err := q.CountEvents(ctx, "auth")
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 2 {
		t.Errorf("CountEvents(auth) = %d, want 2", count)
	}
}

func TestDeleteEventsBefore(t *testing.T) {
	db := testDB(t)
	q := New(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, time.Hour} {
		if _, err := q.CreateEvent(ctx, CreateEventParams{
			Level: "info", Category: "system", Message: "tick", CreatedAt: now.Add(-age),
		}); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	removed, err := q.DeleteEventsBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteEventsBefore: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if n, _ := q.CountEvents(ctx, ""); n != 1 {
		t.Errorf("remaining = %d, want 1", n)
	}
}

func TestWithTxRollback(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := New(db).WithTx(tx).CreateEvent(ctx, CreateEventParams{
		Level: "info", Category: "system", Message: "rolled back", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateEvent in tx: %v", err)
	}
	_ = tx.Rollback()

	if n, _ := New(db).CountEvents(ctx, ""); n != 0 {
		t.Errorf("CountEvents = %d after rollback, want 0", n)
	}
}
