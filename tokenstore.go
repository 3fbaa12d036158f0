package sdk

import (
	"context"
	"sync"
)

// TokenStore is a key-value slot holding the current bearer credential.
// Implementations may be observable for external changes (another process
// logging out); see TokenWatcher.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// TokenWatcher is an optional TokenStore capability. Watch delivers a
// signal whenever the stored credential changes externally; the session
// manager reacts by re-running verification rather than trusting its stale
// in-memory snapshot. Best-effort: signals may be coalesced.
type TokenWatcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// MemoryTokenStore keeps the credential in process memory. Watchable:
// Save and Clear signal watchers, which makes it the natural store for
// tests and single-process deployments.
type MemoryTokenStore struct {
	mu       sync.Mutex
	token    string
	watchers []chan struct{}
}

// NewMemoryTokenStore returns an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Load implements TokenStore.
func (s *MemoryTokenStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Save implements TokenStore. Watchers are signaled under the lock: the
// sends are non-blocking, and holding the lock keeps them mutually
// exclusive with a watcher's channel close during cancellation.
func (s *MemoryTokenStore) Save(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		return nil
	}
	s.token = token
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Clear implements TokenStore.
func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	return s.Save(ctx, "")
}

// Watch implements TokenWatcher. The channel closes when ctx is done.
func (s *MemoryTokenStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		// Remove and close under the lock so a concurrent Save can never
		// send on the closed channel.
		s.mu.Lock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}
