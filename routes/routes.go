// Package routes provides shared route constants used by both
// the identity service and its clients to prevent path mismatches.
package routes

// Identity service endpoints.
const (
	// AuthLogin accepts form-encoded username/password and establishes a session.
	AuthLogin = "/login"

	// AuthLogout invalidates the server-side session. Idempotent.
	AuthLogout = "/logout"

	// AuthMe returns the canonical claim set for the current session,
	// or 401 when no valid session exists.
	AuthMe = "/me"
)

// UI destinations used by the redirect policy.
const (
	// PageLogin is the login page.
	PageLogin = "/login"

	// PageAdmin is the administrative area (requires the admin role).
	PageAdmin = "/admin"

	// PageUser is the standard member area (requires the user role).
	PageUser = "/user"
)
