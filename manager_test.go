package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vaultcore/vaultcore/sdk/go/routes"
)

// staticTokenStore is a TokenStore without the TokenWatcher capability,
// for tests that must attribute re-verification to the refresh timer alone.
type staticTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *staticTokenStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *staticTokenStore) Save(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *staticTokenStore) Clear(ctx context.Context) error {
	return s.Save(ctx, "")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func newTestManager(t *testing.T, srv *httptest.Server, tokens TokenStore, hooks TelemetryHooks) *SessionManager {
	t.Helper()
	client := newTestClient(t, srv)
	manager, err := NewSessionManager(Config{
		Client:   client,
		Verifier: NewTokenVerifier(client, tokens),
		Tokens:   tokens,
		Hooks:    hooks,
	})
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	return manager
}

func TestLoginEstablishesSession(t *testing.T) {
	accessToken := testUserToken(t, time.Hour, "user")
	var meHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case routes.AuthLogin:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": accessToken})
		case routes.AuthMe:
			meHits.Add(1)
			if r.Header.Get("Authorization") != "Bearer "+accessToken {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"user": userPayload(time.Hour, "user")})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tokens := NewMemoryTokenStore()
	manager := newTestManager(t, srv, tokens, TelemetryHooks{})

	snap, err := manager.Login(context.Background(), Credentials{Username: "demo", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !snap.Authenticated || !snap.HasRole("user") {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got := manager.RedirectTarget(); got != routes.PageUser {
		t.Fatalf("redirect = %q, want %q", got, routes.PageUser)
	}
	if stored, _ := tokens.Load(context.Background()); stored != accessToken {
		t.Fatalf("token not persisted, got %q", stored)
	}
}

func TestLoginErrorPropagatesVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "Invalid user credentials",
		})
	}))
	defer srv.Close()

	manager := newTestManager(t, srv, NewMemoryTokenStore(), TelemetryHooks{})
	_, err := manager.Login(context.Background(), Credentials{Username: "demo", Password: "wrong"})
	var loginErr LoginError
	if !errors.As(err, &loginErr) {
		t.Fatalf("error %T is not a LoginError: %v", err, err)
	}
	if loginErr.Description != "Invalid user credentials" {
		t.Fatalf("description = %q", loginErr.Description)
	}
	if manager.Current().Authenticated {
		t.Fatalf("failed login left an authenticated snapshot")
	}
}

// Server-side revocation: the next check transitions the store to
// unauthenticated without an error, and the redirect policy sends the
// user back to login.
func TestRevokedSessionTransitionsToUnauthenticated(t *testing.T) {
	var revoked atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if revoked.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"user": userPayload(time.Hour, "user")})
	}))
	defer srv.Close()

	tokens := NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), testUserToken(t, time.Hour, "user"))
	manager := newTestManager(t, srv, tokens, TelemetryHooks{})

	if snap, err := manager.Refresh(context.Background()); err != nil || !snap.Authenticated {
		t.Fatalf("initial refresh = %+v, %v", snap, err)
	}

	revoked.Store(true)
	snap, err := manager.Refresh(context.Background())
	if err != nil {
		t.Fatalf("confirmed unauthenticated must not error: %v", err)
	}
	if snap.Authenticated || snap.Claims != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got := manager.RedirectTarget(); got != routes.PageLogin {
		t.Fatalf("redirect = %q, want %q", got, routes.PageLogin)
	}
}

// Two near-simultaneous verification triggers must share one round trip.
func TestConcurrentRefreshCoalesces(t *testing.T) {
	var meHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meHits.Add(1)
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"user": userPayload(time.Hour, "user")})
	}))
	defer srv.Close()

	tokens := NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), testUserToken(t, time.Hour, "user"))
	manager := newTestManager(t, srv, tokens, TelemetryHooks{})

	var wg sync.WaitGroup
	snaps := make([]Snapshot, 2)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := manager.Refresh(context.Background())
			if err != nil {
				t.Errorf("refresh %d: %v", i, err)
			}
			snaps[i] = snap
		}(i)
	}
	wg.Wait()

	if got := meHits.Load(); got != 1 {
		t.Fatalf("round trips = %d, want 1", got)
	}
	if !snaps[0].Authenticated || !snaps[1].Authenticated {
		t.Fatalf("coalesced callers disagree: %+v vs %+v", snaps[0], snaps[1])
	}
}

func TestTransportFailureLeavesSnapshotUntouched(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"user": userPayload(time.Hour, "user")})
	}))
	defer srv.Close()

	var transportErrs atomic.Int64
	hooks := TelemetryHooks{
		OnTransportError: func(ctx context.Context, err error) { transportErrs.Add(1) },
	}
	tokens := NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), testUserToken(t, time.Hour, "user"))
	manager := newTestManager(t, srv, tokens, hooks)

	if _, err := manager.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	failing.Store(true)
	_, err := manager.Refresh(context.Background())
	if !IsTransportError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if snap := manager.Current(); !snap.Authenticated {
		t.Fatalf("transport failure forced a logout: %+v", snap)
	}
	if transportErrs.Load() != 1 {
		t.Fatalf("side channel fired %d times, want 1", transportErrs.Load())
	}
}

func TestObserversNotifiedOncePerCommit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"user": userPayload(time.Hour, "user")})
	}))
	defer srv.Close()

	tokens := NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), testUserToken(t, time.Hour, "user"))
	manager := newTestManager(t, srv, tokens, TelemetryHooks{})

	var notifications atomic.Int64
	unsub := manager.Subscribe(func(Snapshot) { notifications.Add(1) })
	defer unsub()

	if _, err := manager.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := notifications.Load(); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}
}

// A near-dead credential is re-verified immediately after the first pass,
// driven by the refresh timer rather than any store watcher.
func TestNearExpirySchedulesImmediateRecheck(t *testing.T) {
	payload := userPayload(90*time.Second, "user")
	var meHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"user": payload})
	}))
	defer srv.Close()

	tokens := &staticTokenStore{token: testToken(t, payload)}
	manager := newTestManager(t, srv, tokens, TelemetryHooks{})
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = manager.Close() }()

	waitFor(t, 2*time.Second, func() bool { return meHits.Load() >= 2 },
		"near-expiry claims never triggered an immediate re-verification")
}

func TestExternalTokenChangeTriggersReverification(t *testing.T) {
	accessToken := testUserToken(t, time.Hour, "user")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+accessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"user": userPayload(time.Hour, "user")})
	}))
	defer srv.Close()

	tokens := NewMemoryTokenStore()
	manager := newTestManager(t, srv, tokens, TelemetryHooks{})
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = manager.Close() }()

	waitFor(t, 2*time.Second, func() bool { return !manager.Current().Settling },
		"initial verification never settled")
	if manager.Current().Authenticated {
		t.Fatalf("empty store reported authenticated")
	}

	// Another surface logs in and writes the shared slot.
	if err := tokens.Save(context.Background(), accessToken); err != nil {
		t.Fatalf("save: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return manager.Current().Authenticated },
		"external credential change never re-verified")
}

func TestLogoutClearsSession(t *testing.T) {
	accessToken := testUserToken(t, time.Hour, "user")
	var logoutHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case routes.AuthMe:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"user": userPayload(time.Hour, "user")})
		case routes.AuthLogout:
			logoutHits.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tokens := NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), accessToken)
	manager := newTestManager(t, srv, tokens, TelemetryHooks{})

	if snap, err := manager.Refresh(context.Background()); err != nil || !snap.Authenticated {
		t.Fatalf("refresh = %+v, %v", snap, err)
	}
	if err := manager.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if logoutHits.Load() != 1 {
		t.Fatalf("logout hits = %d", logoutHits.Load())
	}
	if snap := manager.Current(); snap.Authenticated || snap.Claims != nil {
		t.Fatalf("snapshot after logout = %+v", snap)
	}
	if stored, _ := tokens.Load(context.Background()); stored != "" {
		t.Fatalf("token survived logout: %q", stored)
	}
	// Idempotent: logging out again is safe.
	if err := manager.Logout(context.Background()); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestNewSessionManagerValidatesConfig(t *testing.T) {
	client, err := NewClient(ClientConfig{BaseURL: "https://idp.example"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := NewSessionManager(Config{Verifier: NewCookieVerifier(client)}); err == nil {
		t.Fatalf("missing client accepted")
	}
	if _, err := NewSessionManager(Config{Client: client}); err == nil {
		t.Fatalf("missing verifier accepted")
	}
}
