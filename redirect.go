package sdk

import "github.com/vaultcore/vaultcore/sdk/go/routes"

// Role names recognized by the redirect policy. Roles are plain string
// tags compared by membership only; there is no hierarchy beyond the
// explicit precedence in RedirectTarget.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// RedirectTarget maps a snapshot to the single authoritative destination.
// Priority order is policy and pinned by tests: unauthenticated goes to
// login; admin takes precedence over user; an authenticated session
// holding no recognized role is insufficient and also goes to login.
func RedirectTarget(snap Snapshot) string {
	if !snap.Authenticated {
		return routes.PageLogin
	}
	if snap.HasRole(RoleAdmin) {
		return routes.PageAdmin
	}
	if snap.HasRole(RoleUser) {
		return routes.PageUser
	}
	return routes.PageLogin
}
