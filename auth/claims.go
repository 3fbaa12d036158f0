// Package auth provides claim set decoding and role evaluation for the
// VaultCore SDK.
package auth

import (
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// RealmAccess carries the role grants embedded in a session credential.
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// Claims is the decoded content of a session credential.
//
// This is a DTO matching the identity service's access token contract
// (Keycloak-shaped). A Claims value is immutable once constructed: a new
// session event always produces a wholly new Claims, never a mutation.
type Claims struct {
	PreferredUsername string       `json:"preferred_username,omitempty"`
	RealmAccess       *RealmAccess `json:"realm_access,omitempty"`
	AuthorizedParty   string       `json:"azp,omitempty"`
	SessionState      string       `json:"session_state,omitempty"`
	ACR               string       `json:"acr,omitempty"`
	Typ               string       `json:"typ,omitempty"`

	// Extra preserves provider-specific claims the SDK does not model.
	Extra map[string]any `json:"-"`

	jwt.RegisteredClaims
}

// registeredKeys are claims decoded into typed fields and therefore
// excluded from Extra.
var registeredKeys = []string{
	"iss", "sub", "aud", "exp", "nbf", "iat", "jti",
	"preferred_username", "realm_access", "azp", "session_state", "acr", "typ",
}

// DecodeError reports a malformed credential. Local and non-retryable:
// callers treat it as "no usable claims".
type DecodeError struct {
	Cause error
}

// Error implements the error interface.
func (e DecodeError) Error() string {
	if e.Cause == nil {
		return "auth: malformed credential"
	}
	return fmt.Sprintf("auth: malformed credential: %v", e.Cause)
}

// Unwrap returns the underlying error.
func (e DecodeError) Unwrap() error { return e.Cause }

// Decode parses an opaque bearer credential into a Claims without verifying
// its signature. Signature verification belongs to the identity service;
// client-side the payload is only advisory. Pure and non-blocking.
func Decode(credential string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	_, parts, err := parser.ParseUnverified(credential, claims)
	if err != nil {
		return nil, DecodeError{Cause: err}
	}
	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, DecodeError{Cause: err}
	}
	claims.Extra = extraClaims(payload)
	return claims, nil
}

// DecodeLenient decodes a credential best-effort, returning nil instead of
// an error on malformed input. Used where a previously stored credential
// may have been tampered with and absence must be tolerated.
func DecodeLenient(credential string) *Claims {
	claims, err := Decode(credential)
	if err != nil {
		return nil
	}
	return claims
}

// FromPayload builds a Claims from a server-provided claim map, as returned
// by the identity service's whoami endpoint. The payload has already been
// validated server-side, so it is trusted as decoded.
func FromPayload(payload map[string]any) (*Claims, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, DecodeError{Cause: err}
	}
	claims := &Claims{}
	if err := json.Unmarshal(raw, claims); err != nil {
		return nil, DecodeError{Cause: err}
	}
	claims.Extra = extraClaims(raw)
	return claims, nil
}

func extraClaims(payload []byte) map[string]any {
	var all map[string]any
	if err := json.Unmarshal(payload, &all); err != nil {
		return nil
	}
	for _, key := range registeredKeys {
		delete(all, key)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

// HasRole reports whether the claim set grants the given role. Absent
// claims or an absent role collection mean absence of privilege, never an
// error. O(n) in the role set, does not mutate the receiver.
func (c *Claims) HasRole(role string) bool {
	if c == nil || c.RealmAccess == nil {
		return false
	}
	for _, r := range c.RealmAccess.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Roles returns a deduplicated copy of the role set. An empty role list is
// a valid claim set, not an error.
func (c *Claims) Roles() []string {
	if c == nil || c.RealmAccess == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(c.RealmAccess.Roles))
	roles := make([]string, 0, len(c.RealmAccess.Roles))
	for _, r := range c.RealmAccess.Roles {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	return roles
}
