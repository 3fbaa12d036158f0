package sdk

import (
	"sync"

	"github.com/google/uuid"
)

// SessionStore holds the single live Snapshot and is the only place
// mutation happens. All writers go through begin/commit: begin issues a
// monotonically increasing sequence number for the attempt, and commit
// discards any completion whose sequence is no longer the latest issued,
// so stale in-flight results never overwrite newer state.
type SessionStore struct {
	mu     sync.Mutex
	snap   Snapshot
	issued uint64
	subs   map[uuid.UUID]func(Snapshot)
}

// NewSessionStore returns a store in the initial settling state: the
// process has not yet confirmed anything about the session.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		snap: Snapshot{Settling: true},
		subs: make(map[uuid.UUID]func(Snapshot)),
	}
}

// Current returns the latest committed snapshot.
func (s *SessionStore) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers an observer and returns its unsubscribe handle.
// Observers are notified exactly once per commit. Unsubscribing does not
// cancel any in-flight verification: other observers may depend on it.
func (s *SessionStore) Subscribe(fn func(Snapshot)) func() {
	id := uuid.New()
	s.mu.Lock()
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// begin registers a new mutation attempt and returns its sequence number.
// Issuing a newer sequence invalidates every outstanding older attempt.
func (s *SessionStore) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// commit installs the snapshot for the given attempt. Returns false when
// the attempt has been superseded, in which case the store is untouched.
func (s *SessionStore) commit(seq uint64, next Snapshot) bool {
	s.mu.Lock()
	if seq != s.issued {
		s.mu.Unlock()
		return false
	}
	next.Settling = false
	s.snap = next
	subs := s.observersLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
	return true
}

// settle clears the settling flag without otherwise changing the snapshot.
// Used when a verification fails ambiguously: the previous state stands,
// but the snapshot must still resolve out of settling in bounded time.
func (s *SessionStore) settle(seq uint64) {
	s.mu.Lock()
	if seq != s.issued || !s.snap.Settling {
		s.mu.Unlock()
		return
	}
	s.snap.Settling = false
	next := s.snap
	subs := s.observersLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
}

// observersLocked snapshots the subscriber list so notification happens
// outside the lock. An observer may unsubscribe or read Current reentrantly.
func (s *SessionStore) observersLocked() []func(Snapshot) {
	if len(s.subs) == 0 {
		return nil
	}
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}
