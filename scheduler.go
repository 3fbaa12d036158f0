package sdk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaultcore/vaultcore/sdk/go/auth"
)

const (
	// defaultRefreshInterval applies when no expiry is available: a
	// conservative ceiling between re-verifications.
	defaultRefreshInterval = 5 * time.Minute

	// nearExpiryWindow: a credential this close to expiry is re-verified
	// immediately rather than waiting for it to die under the user.
	nearExpiryWindow = 2 * time.Minute

	// refreshMargin lands the refresh comfortably before expiry, absorbing
	// clock drift and the latency of the refresh call itself.
	refreshMargin = time.Minute

	// minRefreshDelay floors the computed delay so skewed clocks cannot
	// produce a tight re-verification loop.
	minRefreshDelay = 10 * time.Second
)

// refreshDelay computes how long to wait before the next verification for
// the given claim set. Nil claims or a missing expiry fall back to the
// default interval.
func refreshDelay(claims *auth.Claims, now time.Time) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return defaultRefreshInterval
	}
	remaining := claims.ExpiresAt.Time.Sub(now)
	if remaining < nearExpiryWindow {
		return 0
	}
	delay := remaining - refreshMargin
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	return delay
}

// refreshScheduler arms a single timer keyed to "next time we must
// re-verify". Arming always disarms the previous timer first, so at most
// one pending timer exists at any time. Cancellation is a first-class
// operation, not a side effect of teardown.
type refreshScheduler struct {
	fire func()
	log  zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func newRefreshScheduler(fire func(), log zerolog.Logger) *refreshScheduler {
	return &refreshScheduler{fire: fire, log: log}
}

// Arm schedules the next verification after the given delay. A zero delay
// fires immediately (still asynchronously, on the timer goroutine).
func (s *refreshScheduler) Arm(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.log.Debug().Dur("delay", delay).Msg("refresh armed")
	s.timer = time.AfterFunc(delay, s.fire)
}

// Disarm cancels any pending timer.
func (s *refreshScheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.log.Debug().Msg("refresh disarmed")
	}
}
