package sdk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultVerifyTimeout = 20 * time.Second

const verifyKey = "verify"

// Config wires the session manager's collaborators.
type Config struct {
	// Client talks to the identity service. Required.
	Client *Client
	// Verifier confirms the session server-side. Required; pick
	// NewTokenVerifier or NewCookieVerifier per deployment mode.
	Verifier Verifier
	// Tokens holds the bearer credential in token mode. Optional; when it
	// also implements TokenWatcher, external changes trigger re-verification.
	Tokens TokenStore
	// Logger receives engine events. Disabled when left zero.
	Logger zerolog.Logger
	// Retry shapes backoff after transport failures.
	Retry RetryConfig
	// Hooks expose HTTP and transport-failure callbacks.
	Hooks TelemetryHooks
	// VerifyTimeout bounds a single verification round trip, keeping the
	// settling state transient even when the identity service hangs.
	VerifyTimeout time.Duration
}

// SessionManager is the owned instance holding a process's session state:
// one SessionStore, one refresh timer, one verifier. Create it at startup,
// inject it where the session is needed, and Close it at shutdown. Safe for
// concurrent use from any number of callers that come and go independently.
type SessionManager struct {
	client        *Client
	verifier      Verifier
	tokens        TokenStore
	store         *SessionStore
	sched         *refreshScheduler
	flight        singleflight.Group
	retry         RetryConfig
	hooks         TelemetryHooks
	log           zerolog.Logger
	verifyTimeout time.Duration

	mu        sync.Mutex
	started   bool
	failures  int
	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewSessionManager validates the configuration and returns a manager in
// the initial settling state. Nothing runs until Start.
func NewSessionManager(cfg Config) (*SessionManager, error) {
	if cfg.Client == nil {
		return nil, errors.New("sdk: client required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("sdk: verifier required")
	}
	timeout := cfg.VerifyTimeout
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	m := &SessionManager{
		client:        cfg.Client,
		verifier:      cfg.Verifier,
		tokens:        cfg.Tokens,
		store:         NewSessionStore(),
		retry:         cfg.Retry.normalized(),
		hooks:         cfg.Hooks,
		log:           cfg.Logger,
		verifyTimeout: timeout,
	}
	m.sched = newRefreshScheduler(m.fireRefresh, cfg.Logger)
	return m, nil
}

// Start launches the initial verification pass and, when the token store is
// watchable, the external-change watcher. Returns immediately; the outcome
// of the initial pass lands in the store and reaches observers.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("sdk: session manager already started")
	}
	m.started = true
	m.runCtx, m.runCancel = context.WithCancel(context.Background())
	runCtx := m.runCtx
	m.mu.Unlock()

	if watcher, ok := m.tokens.(TokenWatcher); ok {
		ch, err := watcher.Watch(runCtx)
		if err != nil {
			m.log.Warn().Err(err).Msg("credential store watch unavailable")
		} else {
			go m.watchTokens(ch)
		}
	}
	go func() {
		//nolint:errcheck // the outcome lands in the store; failures reach the hooks
		_, _ = m.Refresh(runCtx)
	}()
	return nil
}

// Close disarms the refresh timer and stops background work. The final
// snapshot stays readable.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	cancel := m.runCancel
	m.runCancel = nil
	m.mu.Unlock()
	m.sched.Disarm()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Current returns the latest session snapshot.
func (m *SessionManager) Current() Snapshot {
	return m.store.Current()
}

// Subscribe registers an observer for snapshot commits and returns its
// unsubscribe handle. Unsubscribing never cancels an in-flight
// verification; other observers may depend on it.
func (m *SessionManager) Subscribe(fn func(Snapshot)) func() {
	return m.store.Subscribe(fn)
}

// HasRole reports whether the current session grants the given role.
func (m *SessionManager) HasRole(role string) bool {
	return m.store.Current().HasRole(role)
}

// RedirectTarget returns the authoritative destination for the current
// session state.
func (m *SessionManager) RedirectTarget() string {
	return RedirectTarget(m.store.Current())
}

// Refresh re-verifies the session now. Concurrent calls coalesce into a
// single round trip and share its resolution, so a re-mount racing the
// refresh timer costs one request, not two.
func (m *SessionManager) Refresh(ctx context.Context) (Snapshot, error) {
	_, err, _ := m.flight.Do(verifyKey, func() (any, error) {
		return nil, m.verifyOnce(ctx)
	})
	return m.store.Current(), err
}

// Login exchanges credentials for a session, persists the returned bearer
// token (token mode), and verifies to obtain the canonical claim set.
// A LoginError propagates untranslated for the caller to display.
func (m *SessionManager) Login(ctx context.Context, creds Credentials) (Snapshot, error) {
	tokens, err := m.client.Login(ctx, creds)
	if err != nil {
		return m.store.Current(), err
	}
	if m.tokens != nil && tokens.AccessToken != "" {
		if err := m.tokens.Save(ctx, tokens.AccessToken); err != nil {
			return m.store.Current(), TransportError{
				Kind:    TransportErrorStorage,
				Message: "credential store write failed",
				Cause:   err,
			}
		}
	}
	// The login is newer evidence than any verification already in flight;
	// do not join one that predates it.
	m.flight.Forget(verifyKey)
	return m.Refresh(ctx)
}

// Logout invalidates the server-side session and clears local state. Local
// state is cleared even when the round trip fails: failing closed is the
// safe direction, and in cookie mode a still-live server session is simply
// re-discovered by the next verification.
func (m *SessionManager) Logout(ctx context.Context) error {
	var bearer string
	if m.tokens != nil {
		bearer, _ = m.tokens.Load(ctx) //nolint:errcheck // best-effort; logout proceeds without it
	}
	err := m.client.Logout(ctx, bearer)
	if m.tokens != nil {
		if cerr := m.tokens.Clear(ctx); cerr != nil && err == nil {
			err = TransportError{
				Kind:    TransportErrorStorage,
				Message: "credential store clear failed",
				Cause:   cerr,
			}
		}
	}
	seq := m.store.begin()
	m.store.commit(seq, Snapshot{})
	m.arm(defaultRefreshInterval)
	m.log.Info().Err(err).Msg("logged out")
	return err
}

// verifyOnce runs a single verification attempt and reschedules the timer
// from its outcome. Runs inside the singleflight group.
func (m *SessionManager) verifyOnce(ctx context.Context) error {
	seq := m.store.begin()
	vctx, cancel := context.WithTimeout(ctx, m.verifyTimeout)
	defer cancel()

	claims, err := m.verifier.Verify(vctx)
	if err != nil {
		// Unknown state: leave the snapshot alone, settle the initial
		// check if it was the one failing, report on the side channel,
		// and retry with backoff.
		m.store.settle(seq)
		m.mu.Lock()
		m.failures++
		failures := m.failures
		m.mu.Unlock()
		delay := m.retry.backoffDelay(failures)
		m.hooks.transportError(ctx, err)
		m.log.Warn().Err(err).Int("consecutive_failures", failures).Dur("retry_in", delay).
			Msg("verification failed, snapshot unchanged")
		m.arm(delay)
		return err
	}

	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()

	next := Snapshot{Claims: claims, Authenticated: claims != nil}
	prev := m.store.Current()
	if !m.store.commit(seq, next) {
		// Superseded by a newer attempt, which owns rescheduling.
		m.log.Debug().Uint64("seq", seq).Msg("stale verification result discarded")
		return nil
	}
	unchanged := prev.sameIdentity(next)
	if unchanged {
		m.log.Debug().Bool("authenticated", next.Authenticated).Msg("session unchanged")
	} else {
		m.log.Info().Bool("authenticated", next.Authenticated).Msg("session verified")
	}
	delay := refreshDelay(claims, time.Now())
	if delay == 0 && unchanged {
		// The immediate re-check did not produce a fresher credential;
		// pace follow-ups instead of looping at zero delay.
		delay = minRefreshDelay
	}
	m.arm(delay)
	return nil
}

func (m *SessionManager) fireRefresh() {
	ctx := m.running()
	if ctx == nil {
		return
	}
	//nolint:errcheck // outcome lands in the store
	_, _ = m.Refresh(ctx)
}

func (m *SessionManager) watchTokens(ch <-chan struct{}) {
	for range ch {
		ctx := m.running()
		if ctx == nil {
			return
		}
		m.log.Debug().Msg("credential store changed externally")
		//nolint:errcheck // outcome lands in the store
		_, _ = m.Refresh(ctx)
	}
}

// arm schedules the next verification unless the manager is stopped.
func (m *SessionManager) arm(delay time.Duration) {
	if m.running() == nil {
		return
	}
	m.sched.Arm(delay)
}

// running returns the lifecycle context, or nil when the manager has not
// started or has been closed.
func (m *SessionManager) running() context.Context {
	m.mu.Lock()
	ctx := m.runCtx
	m.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return nil
	}
	return ctx
}
