package sdk

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/vaultcore/vaultcore/sdk/go/auth"
)

// Snapshot is the process's current belief about the user's authentication
// status. Snapshots are replaced wholesale, never mutated: readers hold a
// value whose Claims pointer refers to an immutable claim set, so no
// locking is needed on the read side.
//
// Invariant: Authenticated implies Claims != nil. Settling is transient; it
// resolves within a bounded time because every verification either commits
// or fails explicitly.
type Snapshot struct {
	Claims        *auth.Claims
	Authenticated bool
	Settling      bool
}

// HasRole reports whether the snapshot's claim set grants the given role.
// Absent claims mean absence of privilege.
func (s Snapshot) HasRole(role string) bool {
	return s.Claims.HasRole(role)
}

// sameIdentity reports whether two snapshots describe the same session, so
// redundant commits can skip rescheduling. Claims are compared by identity
// fields, not deep equality: a re-issued credential for the same subject
// still counts as a new session when its timestamps differ.
func (s Snapshot) sameIdentity(o Snapshot) bool {
	if s.Authenticated != o.Authenticated || s.Settling != o.Settling {
		return false
	}
	a, b := s.Claims, o.Claims
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Subject == b.Subject &&
		a.ID == b.ID &&
		numericDateEqual(a.ExpiresAt, b.ExpiresAt) &&
		numericDateEqual(a.IssuedAt, b.IssuedAt)
}

func numericDateEqual(a, b *jwt.NumericDate) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Time.Equal(b.Time)
}
