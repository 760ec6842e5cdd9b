// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/olegiv/oportal-go/internal/metrics"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/policy"
)

// State is the lifecycle state of a Store.
type State int

// Store states.
const (
	StateUninitialized State = iota
	StateLoading
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "uninitialized"
	}
}

// Settled reports whether the state is final until the next identity change.
func (s State) Settled() bool {
	return s == StateAnonymous || s == StateAuthenticated
}

// API is the part of the backend the Store depends on.
type API interface {
	Profile(ctx context.Context) (*model.User, error)
	Refresh(ctx context.Context) error
	Login(ctx context.Context, creds model.Credentials) (*model.User, error)
	GoogleLogin(ctx context.Context, token string) (*model.User, error)
	Logout(ctx context.Context) error
	UserFeatures(ctx context.Context) ([]model.FeatureGrant, error)
}

// ErrNotAuthenticated is returned by operations that need a user.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// Store owns the identity and feature grants of one browser session.
// It is the single writer of user and features; everything else reads.
//
// Every identity change bumps a generation counter. Fetches remember the
// generation they started under and drop their result if it has moved on,
// so a slow grant fetch can never land on a logged-out or re-logged-in
// store.
type Store struct {
	api    API
	logger *slog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	state      State
	user       *model.User
	features   []model.FeatureGrant
	fetchedAt  time.Time
	generation uint64
	settled    chan struct{}
	onChange   func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithObserver registers a callback run after every state change, outside
// the store lock.
func WithObserver(fn func()) Option {
	return func(s *Store) { s.onChange = fn }
}

// NewStore creates an uninitialized Store.
func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:     api,
		logger:  slog.Default(),
		now:     time.Now,
		settled: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init bootstraps identity: fetch the profile, and on failure refresh the
// access token once and retry. If both fail the store becomes anonymous
// without reporting an error. On success grants are loaded afterwards.
func (s *Store) Init(ctx context.Context) {
	if run := s.Start(); run != nil {
		run(ctx)
	}
}

// Start moves the store into Loading and returns the function that
// completes the bootstrap. It returns nil if a bootstrap is already
// running. Callers that hand the bootstrap to a goroutine use Start so
// the store reports Loading before the goroutine is scheduled.
func (s *Store) Start() func(context.Context) {
	gen, ok := s.beginLoading()
	if !ok {
		return nil
	}
	return func(ctx context.Context) { s.bootstrap(ctx, gen) }
}

func (s *Store) bootstrap(ctx context.Context, gen uint64) {
	user, err := s.api.Profile(ctx)
	result := "authenticated"
	if err != nil {
		s.logger.Debug("profile fetch failed, trying token refresh", "error", err)
		if rerr := s.api.Refresh(ctx); rerr == nil {
			user, err = s.api.Profile(ctx)
			result = "refreshed"
		} else {
			err = rerr
		}
	}

	if err != nil || user == nil {
		metrics.SessionBootstraps.WithLabelValues("anonymous").Inc()
		s.becomeAnonymous(gen)
		return
	}

	metrics.SessionBootstraps.WithLabelValues(result).Inc()
	s.becomeAuthenticated(ctx, gen, user)
}

// Login authenticates with credentials. On failure the store is untouched.
func (s *Store) Login(ctx context.Context, creds model.Credentials) error {
	user, err := s.api.Login(ctx, creds)
	if err != nil {
		return err
	}
	s.becomeAuthenticated(ctx, s.nextGeneration(), user)
	return nil
}

// LoginWithFederatedCredential authenticates with a Google ID token.
func (s *Store) LoginWithFederatedCredential(ctx context.Context, token string) error {
	user, err := s.api.GoogleLogin(ctx, token)
	if err != nil {
		return err
	}
	s.becomeAuthenticated(ctx, s.nextGeneration(), user)
	return nil
}

// Logout clears the local session first and then asks the backend to
// invalidate its tokens. The returned error only reports the remote call;
// the store is anonymous either way.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	s.user = nil
	s.features = []model.FeatureGrant{}
	s.fetchedAt = s.now()
	s.setStateLocked(StateAnonymous)
	s.mu.Unlock()
	s.notify()

	if err := s.api.Logout(ctx); err != nil {
		s.logger.Debug("remote logout failed", "error", err)
		return err
	}
	return nil
}

// Reload re-fetches the profile and grants of an authenticated store, for
// example after a purchase. On failure the last known state is kept.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.RLock()
	gen, state := s.generation, s.state
	s.mu.RUnlock()
	if state != StateAuthenticated {
		return ErrNotAuthenticated
	}

	user, err := s.api.Profile(ctx)
	if err != nil {
		if rerr := s.api.Refresh(ctx); rerr != nil {
			return err
		}
		if user, err = s.api.Profile(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	s.user = user
	s.mu.Unlock()
	s.notify()

	return s.loadFeatures(ctx, gen)
}

// RefreshFeatures reloads grants only.
func (s *Store) RefreshFeatures(ctx context.Context) error {
	s.mu.RLock()
	gen, state := s.generation, s.state
	s.mu.RUnlock()
	if state != StateAuthenticated {
		return ErrNotAuthenticated
	}
	return s.loadFeatures(ctx, gen)
}

// WaitSettled blocks until the store leaves the loading state or ctx ends.
// It reports whether the store settled.
func (s *Store) WaitSettled(ctx context.Context) bool {
	s.mu.RLock()
	state, ch := s.state, s.settled
	s.mu.RUnlock()
	if state.Settled() {
		return true
	}
	if state == StateUninitialized {
		return false
	}
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Store) beginLoading() (uint64, bool) {
	s.mu.Lock()
	if s.state == StateLoading {
		s.mu.Unlock()
		return 0, false
	}
	s.generation++
	gen := s.generation
	s.settled = make(chan struct{})
	s.state = StateLoading
	s.mu.Unlock()
	s.notify()
	return gen, true
}

func (s *Store) nextGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *Store) becomeAnonymous(gen uint64) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.user = nil
	s.features = []model.FeatureGrant{}
	s.fetchedAt = s.now()
	s.setStateLocked(StateAnonymous)
	s.mu.Unlock()
	s.notify()
}

// becomeAuthenticated installs user and then loads grants. The grant fetch
// only starts once the identity is in place.
func (s *Store) becomeAuthenticated(ctx context.Context, gen uint64, user *model.User) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.user = user
	s.features = []model.FeatureGrant{}
	s.fetchedAt = s.now()
	s.setStateLocked(StateAuthenticated)
	s.mu.Unlock()
	s.notify()

	_ = s.loadFeatures(ctx, gen)
}

// loadFeatures fetches grants. A failure leaves an empty grant list and is
// logged, never reverting authentication.
func (s *Store) loadFeatures(ctx context.Context, gen uint64) error {
	grants, err := s.api.UserFeatures(ctx)
	if err != nil {
		s.logger.Warn("failed to load feature grants", "category", model.EventCategoryFeature, "error", err)
		grants = []model.FeatureGrant{}
	}
	if grants == nil {
		grants = []model.FeatureGrant{}
	}

	s.mu.Lock()
	if s.generation != gen || s.state != StateAuthenticated {
		s.mu.Unlock()
		s.logger.Debug("discarding stale feature grants")
		return err
	}
	s.features = grants
	s.fetchedAt = s.now()
	s.mu.Unlock()
	s.notify()
	return err
}

// setStateLocked must be called with mu held.
func (s *Store) setStateLocked(state State) {
	wasLoading := s.state == StateLoading
	s.state = state
	if wasLoading && state.Settled() {
		close(s.settled)
	}
}

func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns a copy of the current user, or nil.
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Features returns a copy of the current grants. Never nil.
func (s *Store) Features() []model.FeatureGrant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.FeatureGrant, len(s.features))
	copy(out, s.features)
	return out
}

// FetchedAt is when identity or grants were last loaded.
func (s *Store) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// IsAuthenticated reports whether a user is present.
func (s *Store) IsAuthenticated() bool {
	return s.User() != nil
}

func (s *Store) role() (model.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return "", false
	}
	return s.user.Role, true
}

// HasRole reports whether the user has exactly role.
func (s *Store) HasRole(role model.Role) bool {
	r, ok := s.role()
	return ok && policy.HasExactRole(r, role)
}

// IsAdmin reports whether the user is an admin.
func (s *Store) IsAdmin() bool {
	r, ok := s.role()
	return ok && policy.IsAdmin(r)
}

// IsManager reports whether the user is a manager or above.
func (s *Store) IsManager() bool {
	r, ok := s.role()
	return ok && policy.IsManagerOrAbove(r)
}

// CanAccess reports whether the user ranks at least required.
func (s *Store) CanAccess(required model.Role) bool {
	r, ok := s.role()
	return ok && policy.CanAccess(r, required)
}

// HasFeature reports whether the user can use code now.
func (s *Store) HasFeature(code string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	return policy.HasFeatureAccess(s.Features(), code, s.now())
}

// HasAnyFeature reports whether the user can use any of codes now.
func (s *Store) HasAnyFeature(codes ...string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	return policy.HasAnyFeatureAccess(s.Features(), codes, s.now())
}

// ActiveFeatures returns the grants active now.
func (s *Store) ActiveFeatures() []model.FeatureGrant {
	if !s.IsAuthenticated() {
		return []model.FeatureGrant{}
	}
	return policy.ActiveFeatures(s.Features(), s.now())
}

// AccessibleFeatureCodes returns the codes of ActiveFeatures.
func (s *Store) AccessibleFeatureCodes() []string {
	if !s.IsAuthenticated() {
		return []string{}
	}
	return policy.AccessibleFeatureCodes(s.Features(), s.now())
}

// FeatureExpiryInfo reports expiry details for code.
func (s *Store) FeatureExpiryInfo(code string) policy.ExpiryInfo {
	if !s.IsAuthenticated() {
		return policy.ExpiryInfo{}
	}
	return policy.FeatureExpiryInfo(s.Features(), code, s.now())
}
