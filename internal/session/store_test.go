// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/olegiv/oportal-go/internal/backend"
	"github.com/olegiv/oportal-go/internal/model"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

var errUnauthorized = &backend.APIError{StatusCode: http.StatusUnauthorized, Endpoint: "test", Message: "Not authenticated"}

// fakeAPI is an in-process stand-in for backend.Conn.
type fakeAPI struct {
	mu          sync.Mutex
	calls       []string
	user        *model.User
	profileErrs []error
	refreshErr  error
	loginErr    error
	logoutErr   error
	grants      []model.FeatureGrant
	grantsErr   error

	// When grantsGate is set UserFeatures signals grantsStarted and blocks
	// until the gate is closed.
	grantsGate    chan struct{}
	grantsStarted chan struct{}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeAPI) Profile(context.Context) (*model.User, error) {
	f.record("profile")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.profileErrs) > 0 {
		err := f.profileErrs[0]
		f.profileErrs = f.profileErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.user == nil {
		return nil, errUnauthorized
	}
	u := *f.user
	return &u, nil
}

func (f *fakeAPI) Refresh(context.Context) error {
	f.record("refresh")
	return f.refreshErr
}

func (f *fakeAPI) Login(_ context.Context, creds model.Credentials) (*model.User, error) {
	f.record("login")
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &model.User{ID: 7, Email: creds.Email, Role: model.RoleUser}, nil
}

func (f *fakeAPI) GoogleLogin(_ context.Context, token string) (*model.User, error) {
	f.record("google-login")
	if token != "good-token" {
		return nil, &backend.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid token"}
	}
	return &model.User{ID: 8, Email: "g@example.com", Role: model.RoleManager}, nil
}

func (f *fakeAPI) Logout(context.Context) error {
	f.record("logout")
	return f.logoutErr
}

func (f *fakeAPI) UserFeatures(context.Context) ([]model.FeatureGrant, error) {
	f.record("features")
	if f.grantsGate != nil {
		close(f.grantsStarted)
		<-f.grantsGate
	}
	if f.grantsErr != nil {
		return nil, f.grantsErr
	}
	return slices.Clone(f.grants), nil
}

func crmGrant(expires time.Time) model.FeatureGrant {
	return model.FeatureGrant{
		ID:        1,
		Feature:   model.Feature{ID: 1, Code: model.FeatureCRM, Name: "CRM System", Status: model.FeatureStatusActive},
		IsActive:  true,
		ExpiresOn: &expires,
	}
}

func newTestStore(api API, opts ...Option) *Store {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewStore(api, opts...)
}

func TestInitAuthenticated(t *testing.T) {
	api := &fakeAPI{
		user:   &model.User{ID: 1, Email: "a@example.com", Role: model.RoleAdmin},
		grants: []model.FeatureGrant{crmGrant(testNow.Add(72 * time.Hour))},
	}
	s := newTestStore(api)
	s.Init(context.Background())

	if s.State() != StateAuthenticated {
		t.Fatalf("State() = %v, want authenticated", s.State())
	}
	if got := s.User().Email; got != "a@example.com" {
		t.Errorf("User().Email = %q, want a@example.com", got)
	}
	if !s.HasFeature(model.FeatureCRM) {
		t.Error("HasFeature(crm) = false, want true")
	}
	want := []string{"profile", "features"}
	if got := api.Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestInitRefreshesOnce(t *testing.T) {
	api := &fakeAPI{
		user:        &model.User{ID: 1, Role: model.RoleUser},
		profileErrs: []error{errUnauthorized},
	}
	s := newTestStore(api)
	s.Init(context.Background())

	if s.State() != StateAuthenticated {
		t.Fatalf("State() = %v, want authenticated", s.State())
	}
	want := []string{"profile", "refresh", "profile", "features"}
	if got := api.Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestInitAnonymousWhenRefreshFails(t *testing.T) {
	api := &fakeAPI{refreshErr: errUnauthorized}
	s := newTestStore(api)
	s.Init(context.Background())

	if s.State() != StateAnonymous {
		t.Fatalf("State() = %v, want anonymous", s.State())
	}
	if s.User() != nil {
		t.Error("User() should be nil")
	}
	want := []string{"profile", "refresh"}
	if got := api.Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v (no grant fetch for anonymous)", got, want)
	}
}

func TestInitGrantFailureKeepsAuthentication(t *testing.T) {
	api := &fakeAPI{
		user:      &model.User{ID: 1, Role: model.RoleUser},
		grantsErr: errors.New("connection refused"),
	}
	s := newTestStore(api)
	s.Init(context.Background())

	if s.State() != StateAuthenticated {
		t.Fatalf("State() = %v, want authenticated", s.State())
	}
	features := s.Features()
	if features == nil || len(features) != 0 {
		t.Errorf("Features() = %v, want empty non-nil slice", features)
	}
}

func TestLoginFailureLeavesStoreUntouched(t *testing.T) {
	api := &fakeAPI{refreshErr: errUnauthorized, loginErr: &backend.APIError{StatusCode: 400, Message: "Invalid credentials"}}
	s := newTestStore(api)
	s.Init(context.Background())

	err := s.Login(context.Background(), model.Credentials{Email: "x@example.com", Password: "bad"})
	if err == nil {
		t.Fatal("Login() error = nil, want error")
	}
	if got := backend.Message(err, ""); got != "Invalid credentials" {
		t.Errorf("Message(err) = %q, want Invalid credentials", got)
	}
	if s.State() != StateAnonymous || s.User() != nil {
		t.Errorf("store changed after failed login: state=%v user=%v", s.State(), s.User())
	}
}

func TestLoginFetchesGrantsAfterIdentity(t *testing.T) {
	api := &fakeAPI{grants: []model.FeatureGrant{crmGrant(testNow.Add(time.Hour))}}
	s := newTestStore(api)

	if err := s.Login(context.Background(), model.Credentials{Email: "u@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("State() = %v, want authenticated", s.State())
	}
	want := []string{"login", "features"}
	if got := api.Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if got := s.AccessibleFeatureCodes(); !slices.Equal(got, []string{model.FeatureCRM}) {
		t.Errorf("AccessibleFeatureCodes() = %v, want [crm]", got)
	}
}

func TestLoginWithFederatedCredential(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(api)

	if err := s.LoginWithFederatedCredential(context.Background(), "bad-token"); err == nil {
		t.Error("expected error for rejected token")
	}
	if s.IsAuthenticated() {
		t.Fatal("store authenticated after rejected token")
	}
	if err := s.LoginWithFederatedCredential(context.Background(), "good-token"); err != nil {
		t.Fatalf("LoginWithFederatedCredential() error = %v", err)
	}
	if !s.IsManager() {
		t.Error("IsManager() = false, want true")
	}
}

func TestLogoutClearsEvenWhenRemoteFails(t *testing.T) {
	api := &fakeAPI{
		user:      &model.User{ID: 1, Role: model.RoleAdmin},
		grants:    []model.FeatureGrant{crmGrant(testNow.Add(time.Hour))},
		logoutErr: errors.New("backend unreachable"),
	}
	s := newTestStore(api)
	s.Init(context.Background())

	if err := s.Logout(context.Background()); err == nil {
		t.Error("Logout() error = nil, want remote error")
	}
	if s.State() != StateAnonymous {
		t.Errorf("State() = %v, want anonymous", s.State())
	}
	if s.User() != nil {
		t.Error("User() should be nil after logout")
	}
	if len(s.Features()) != 0 {
		t.Errorf("Features() = %v, want empty", s.Features())
	}
	if s.HasFeature(model.FeatureCRM) || s.IsAdmin() {
		t.Error("derived queries should be false after logout")
	}
}

func TestStaleGrantFetchIsDiscarded(t *testing.T) {
	api := &fakeAPI{
		grants:        []model.FeatureGrant{crmGrant(testNow.Add(time.Hour))},
		grantsGate:    make(chan struct{}),
		grantsStarted: make(chan struct{}),
	}
	s := newTestStore(api)

	done := make(chan error, 1)
	go func() {
		done <- s.Login(context.Background(), model.Credentials{Email: "u@example.com", Password: "pw"})
	}()

	gate := api.grantsGate
	<-api.grantsStarted
	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	// Let the in-flight grant fetch complete after logout.
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if s.State() != StateAnonymous {
		t.Errorf("State() = %v, want anonymous", s.State())
	}
	if got := s.Features(); len(got) != 0 {
		t.Errorf("Features() = %v, want empty: stale grants were applied", got)
	}
}

func TestReloadKeepsStateOnFailure(t *testing.T) {
	api := &fakeAPI{user: &model.User{ID: 1, Email: "a@example.com", Role: model.RoleUser, CoinBalance: 10}}
	s := newTestStore(api)
	s.Init(context.Background())

	api.mu.Lock()
	api.user = nil
	api.refreshErr = errUnauthorized
	api.mu.Unlock()

	if err := s.Reload(context.Background()); err == nil {
		t.Error("Reload() error = nil, want error")
	}
	if s.State() != StateAuthenticated || s.User().CoinBalance != 10 {
		t.Errorf("Reload failure changed state: %v %+v", s.State(), s.User())
	}

	api.mu.Lock()
	api.user = &model.User{ID: 1, Email: "a@example.com", Role: model.RoleUser, CoinBalance: 60}
	api.mu.Unlock()

	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := s.User().CoinBalance; got != 60 {
		t.Errorf("CoinBalance = %d, want 60", got)
	}
}

func TestReloadRequiresAuthentication(t *testing.T) {
	s := newTestStore(&fakeAPI{})
	if err := s.Reload(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Reload() error = %v, want ErrNotAuthenticated", err)
	}
	if err := s.RefreshFeatures(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("RefreshFeatures() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestDerivedQueriesDefaultWhenAnonymous(t *testing.T) {
	s := newTestStore(&fakeAPI{})

	if s.IsAuthenticated() || s.IsAdmin() || s.IsManager() || s.HasRole(model.RoleUser) {
		t.Error("role queries should be false without a user")
	}
	if s.CanAccess(model.RoleUser) {
		t.Error("CanAccess(USER) should be false without a user")
	}
	if s.HasFeature(model.FeatureCRM) || s.HasAnyFeature(model.FeatureCRM, model.FeatureAIBot) {
		t.Error("feature queries should be false without a user")
	}
	if got := s.ActiveFeatures(); got == nil || len(got) != 0 {
		t.Errorf("ActiveFeatures() = %v, want empty", got)
	}
	if got := s.AccessibleFeatureCodes(); got == nil || len(got) != 0 {
		t.Errorf("AccessibleFeatureCodes() = %v, want empty", got)
	}
	if info := s.FeatureExpiryInfo(model.FeatureCRM); info.HasFeature {
		t.Errorf("FeatureExpiryInfo() = %+v, want zero", info)
	}
}

func TestDerivedQueriesAuthenticated(t *testing.T) {
	api := &fakeAPI{
		user:   &model.User{ID: 1, Role: model.RoleManager},
		grants: []model.FeatureGrant{crmGrant(testNow.Add(3 * 24 * time.Hour))},
	}
	s := newTestStore(api)
	s.Init(context.Background())

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"HasRole(MANAGER)", s.HasRole(model.RoleManager), true},
		{"HasRole(USER)", s.HasRole(model.RoleUser), false},
		{"IsManager", s.IsManager(), true},
		{"IsAdmin", s.IsAdmin(), false},
		{"CanAccess(USER)", s.CanAccess(model.RoleUser), true},
		{"CanAccess(ADMIN)", s.CanAccess(model.RoleAdmin), false},
		{"HasAnyFeature(ai_bot, crm)", s.HasAnyFeature(model.FeatureAIBot, model.FeatureCRM), true},
		{"HasFeature(referly)", s.HasFeature(model.FeatureReferly), false},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	info := s.FeatureExpiryInfo(model.FeatureCRM)
	if info.DaysUntilExpiry == nil || *info.DaysUntilExpiry != 3 || !info.NeedsRenewalWarning(7) {
		t.Errorf("FeatureExpiryInfo() = %+v, want 3 days with warning", info)
	}
}

func TestAccessibleFeatureCodesIsStable(t *testing.T) {
	api := &fakeAPI{
		user:   &model.User{ID: 1, Role: model.RoleUser},
		grants: []model.FeatureGrant{crmGrant(testNow.Add(time.Hour))},
	}
	s := newTestStore(api)
	s.Init(context.Background())

	first := s.AccessibleFeatureCodes()
	second := s.AccessibleFeatureCodes()
	if !slices.Equal(first, second) {
		t.Errorf("AccessibleFeatureCodes() not stable: %v then %v", first, second)
	}
}

func TestSnapshotRestore(t *testing.T) {
	api := &fakeAPI{
		user:   &model.User{ID: 3, Email: "s@example.com", Role: model.RoleAdmin},
		grants: []model.FeatureGrant{crmGrant(testNow.Add(time.Hour))},
	}
	s := newTestStore(api)
	s.Init(context.Background())

	raw, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	restored := newTestStore(&fakeAPI{})
	if !restored.Restore(snap) {
		t.Fatal("Restore() = false, want true")
	}
	if !restored.IsAdmin() || !restored.HasFeature(model.FeatureCRM) {
		t.Errorf("restored store lost identity or grants: %+v", restored.Snapshot())
	}
}

func TestRestoreRejectsUnsettledSnapshots(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"uninitialized", Snapshot{State: StateUninitialized}},
		{"loading", Snapshot{State: StateLoading}},
		{"authenticated without user", Snapshot{State: StateAuthenticated}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(&fakeAPI{})
			if s.Restore(tt.snap) {
				t.Error("Restore() = true, want false")
			}
			if s.State() != StateUninitialized {
				t.Errorf("State() = %v, want uninitialized", s.State())
			}
		})
	}
}

func TestObserverSeesEveryChange(t *testing.T) {
	var mu sync.Mutex
	var states []State
	var s *Store
	s = newTestStore(&fakeAPI{user: &model.User{ID: 1, Role: model.RoleUser}}, WithObserver(func() {
		mu.Lock()
		states = append(states, s.State())
		mu.Unlock()
	}))

	s.Init(context.Background())
	_ = s.Logout(context.Background())

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateLoading, StateAuthenticated, StateAuthenticated, StateAnonymous}
	if !slices.Equal(states, want) {
		t.Errorf("observed states = %v, want %v", states, want)
	}
}

func TestStartAndWaitSettled(t *testing.T) {
	s := newTestStore(&fakeAPI{user: &model.User{ID: 1, Role: model.RoleUser}})

	if s.WaitSettled(context.Background()) {
		t.Error("WaitSettled() = true for uninitialized store")
	}

	run := s.Start()
	if run == nil {
		t.Fatal("Start() = nil, want bootstrap func")
	}
	if s.State() != StateLoading {
		t.Errorf("State() = %v, want loading", s.State())
	}
	if s.Start() != nil {
		t.Error("second Start() should return nil while loading")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if s.WaitSettled(ctx) {
		t.Error("WaitSettled() = true before bootstrap ran")
	}

	go run(context.Background())
	if !s.WaitSettled(context.Background()) {
		t.Fatal("WaitSettled() = false after bootstrap")
	}
	if s.State() != StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", s.State())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUninitialized: "uninitialized",
		StateLoading:       "loading",
		StateAnonymous:     "anonymous",
		StateAuthenticated: "authenticated",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
