// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"

	"github.com/olegiv/oportal-go/internal/backend"
)

// Session data keys.
const (
	keyID       = "portal_id"
	keySnapshot = "portal_snapshot"
	keyCookies  = "backend_cookies"
	keyOrders   = "payment_orders"
)

// maxRememberedOrders bounds the order ids kept per session.
const maxRememberedOrders = 20

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// SnapshotTTL is how long a persisted snapshot is trusted before the
	// store re-validates identity with the backend.
	SnapshotTTL time.Duration

	// BootstrapTimeout bounds a background Init.
	BootstrapTimeout time.Duration

	Logger *slog.Logger
}

// Handle is one browser's live session: its store and backend connection.
type Handle struct {
	ID    string
	Store *Store
	Conn  *backend.Conn

	lastSeen  atomic.Int64
	reloading atomic.Bool
	dirty     atomic.Bool
}

// Manager maps portal session ids to live Handles. The scs session holds
// the id plus everything needed to rebuild a Handle after a restart.
type Manager struct {
	sessions *scs.SessionManager
	client   *backend.Client
	cfg      ManagerConfig
	now      func() time.Time

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewManager creates a Manager.
func NewManager(sm *scs.SessionManager, client *backend.Client, cfg ManagerConfig) *Manager {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Minute
	}
	if cfg.BootstrapTimeout <= 0 {
		cfg.BootstrapTimeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		sessions: sm,
		client:   client,
		cfg:      cfg,
		now:      time.Now,
		handles:  make(map[string]*Handle),
	}
}

// Sessions returns the underlying scs session manager.
func (m *Manager) Sessions() *scs.SessionManager {
	return m.sessions
}

// Load returns the Handle for the request's session, rebuilding it from
// the scs session if needed and starting a bootstrap for a fresh store.
// ctx must carry a loaded scs session.
func (m *Manager) Load(ctx context.Context) *Handle {
	id := m.sessions.GetString(ctx, keyID)
	if id == "" {
		id = uuid.NewString()
		m.sessions.Put(ctx, keyID, id)
	}

	m.mu.Lock()
	h, ok := m.handles[id]
	if !ok {
		h = m.rebuild(ctx, id)
		m.handles[id] = h
	}
	m.mu.Unlock()

	h.lastSeen.Store(m.now().UnixNano())
	m.revalidate(h)
	return h
}

func (m *Manager) rebuild(ctx context.Context, id string) *Handle {
	var cookies map[string]string
	if raw := m.sessions.GetBytes(ctx, keyCookies); len(raw) > 0 {
		if err := json.Unmarshal(raw, &cookies); err != nil {
			m.cfg.Logger.Warn("discarding unreadable backend cookies", "error", err)
			cookies = nil
		}
	}

	jar := backend.NewJar(cookies)
	h := &Handle{ID: id, Conn: m.client.Conn(jar)}
	h.Store = NewStore(h.Conn,
		WithLogger(m.cfg.Logger),
		WithClock(m.now),
		WithObserver(func() { h.dirty.Store(true) }),
	)

	if raw := m.sessions.GetBytes(ctx, keySnapshot); len(raw) > 0 {
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			m.cfg.Logger.Warn("discarding unreadable session snapshot", "error", err)
		} else if m.trustSnapshot(snap, jar) {
			h.Store.Restore(snap)
		}
	}

	return h
}

// trustSnapshot reports whether snap can stand in for a backend round trip.
func (m *Manager) trustSnapshot(snap Snapshot, jar *backend.Jar) bool {
	now := m.now()
	if now.Sub(snap.FetchedAt) > m.cfg.SnapshotTTL {
		return false
	}
	if snap.State != StateAuthenticated {
		return true
	}
	if exp, ok := jar.AccessTokenExpiry(); ok && !now.Before(exp) {
		return false
	}
	return true
}

// revalidate starts a background bootstrap for a new store, or a reload
// for an authenticated store whose data is older than SnapshotTTL.
func (m *Manager) revalidate(h *Handle) {
	switch h.Store.State() {
	case StateUninitialized:
		if run := h.Store.Start(); run != nil {
			go m.background(run)
		}
	case StateAuthenticated:
		if m.now().Sub(h.Store.FetchedAt()) <= m.cfg.SnapshotTTL {
			return
		}
		if !h.reloading.CompareAndSwap(false, true) {
			return
		}
		go m.background(func(ctx context.Context) {
			defer h.reloading.Store(false)
			if err := h.Store.Reload(ctx); err != nil {
				m.cfg.Logger.Debug("session reload failed", "error", err)
			}
		})
	}
}

// background runs fn on a context detached from the request.
func (m *Manager) background(fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.BootstrapTimeout)
	defer cancel()
	fn(ctx)
}

// Persist writes changed backend cookies and, once the store has settled
// after a change, its snapshot into the scs session. Unchanged data is not
// rewritten so idle requests leave the session row alone.
func (m *Manager) Persist(ctx context.Context, h *Handle) {
	if raw, err := json.Marshal(h.Conn.Jar().Export()); err == nil &&
		!bytes.Equal(raw, m.sessions.GetBytes(ctx, keyCookies)) {
		m.sessions.Put(ctx, keyCookies, raw)
	}

	if !h.dirty.Swap(false) {
		return
	}
	snap := h.Store.Snapshot()
	if !snap.State.Settled() {
		h.dirty.Store(true)
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		m.cfg.Logger.Error("failed to encode session snapshot", "error", err)
		return
	}
	m.sessions.Put(ctx, keySnapshot, raw)
}

// Renew rotates the scs token after a privilege change.
func (m *Manager) Renew(ctx context.Context) error {
	return m.sessions.RenewToken(ctx)
}

// RememberOrder records an order id created by this session.
func (m *Manager) RememberOrder(ctx context.Context, orderID string) {
	orders := m.orders(ctx)
	for _, id := range orders {
		if id == orderID {
			return
		}
	}
	orders = append(orders, orderID)
	if len(orders) > maxRememberedOrders {
		orders = orders[len(orders)-maxRememberedOrders:]
	}
	if raw, err := json.Marshal(orders); err == nil {
		m.sessions.Put(ctx, keyOrders, raw)
	}
}

// OwnsOrder reports whether this session created orderID.
func (m *Manager) OwnsOrder(ctx context.Context, orderID string) bool {
	for _, id := range m.orders(ctx) {
		if id == orderID {
			return true
		}
	}
	return false
}

func (m *Manager) orders(ctx context.Context) []string {
	raw := m.sessions.GetBytes(ctx, keyOrders)
	if len(raw) == 0 {
		return nil
	}
	var orders []string
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil
	}
	return orders
}

// Sweep drops live handles not seen for maxIdle and returns how many went.
// Dropped sessions are rebuilt from scs on their next request.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle).UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, h := range m.handles {
		if h.lastSeen.Load() < cutoff {
			delete(m.handles, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// AuthenticatedConn returns the backend connection of the most recently
// seen authenticated session, for background reads that need credentials.
func (m *Manager) AuthenticatedConn() (*backend.Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Handle
	for _, h := range m.handles {
		if !h.Store.IsAuthenticated() {
			continue
		}
		if best == nil || h.lastSeen.Load() > best.lastSeen.Load() {
			best = h
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Conn, true
}
