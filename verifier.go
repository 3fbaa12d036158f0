package sdk

import (
	"context"
	"time"

	"github.com/vaultcore/vaultcore/sdk/go/auth"
)

// Verifier confirms the session server-side and returns the canonical
// claim set. Nil claims with a nil error is the server-confirmed absence of
// a valid session. A TransportError means the state is unknown: the caller
// must retry later, never force a logout.
//
// The two implementations correspond to the two credential transports:
// TokenVerifier carries a bearer token read from a TokenStore,
// CookieVerifier relies on a session cookie attached by the HTTP client's
// jar. The session manager is agnostic to which is active.
type Verifier interface {
	Verify(ctx context.Context) (*auth.Claims, error)
}

// TokenVerifier verifies bearer-token sessions. The stored credential is
// decoded best-effort before the round trip: a token that is already past
// its expiry is reported unauthenticated without bothering the server.
type TokenVerifier struct {
	client *Client
	tokens TokenStore
}

// NewTokenVerifier returns a Verifier for the bearer-token transport.
func NewTokenVerifier(client *Client, tokens TokenStore) *TokenVerifier {
	return &TokenVerifier{client: client, tokens: tokens}
}

// Verify implements Verifier.
func (v *TokenVerifier) Verify(ctx context.Context) (*auth.Claims, error) {
	token, err := v.tokens.Load(ctx)
	if err != nil {
		return nil, TransportError{
			Kind:    TransportErrorStorage,
			Message: "credential store read failed",
			Cause:   err,
		}
	}
	if token == "" {
		// No credential at all: confirmed unauthenticated, no I/O needed.
		return nil, nil
	}
	if local := auth.DecodeLenient(token); local != nil && local.ExpiresAt != nil {
		if !local.ExpiresAt.Time.After(time.Now()) {
			return nil, nil
		}
	}
	res, err := v.client.Me(ctx, token)
	if err != nil {
		return nil, err
	}
	if !res.Authenticated {
		return nil, nil
	}
	return claimsFromMe(res, token)
}

// CookieVerifier verifies cookie-based sessions. The claim payload comes
// back already validated by the identity service, so it is trusted as
// decoded; there is no client-held credential to inspect.
type CookieVerifier struct {
	client *Client
}

// NewCookieVerifier returns a Verifier for the cookie transport. The
// client's HTTP client must carry a cookie jar.
func NewCookieVerifier(client *Client) *CookieVerifier {
	return &CookieVerifier{client: client}
}

// Verify implements Verifier.
func (v *CookieVerifier) Verify(ctx context.Context) (*auth.Claims, error) {
	res, err := v.client.Me(ctx, "")
	if err != nil {
		return nil, err
	}
	if !res.Authenticated {
		return nil, nil
	}
	return claimsFromMe(res, "")
}

// claimsFromMe translates the whoami payload into a claim set. When the
// server omits the claim body, the bearer credential itself (if any) is the
// fallback source; with neither usable the response counts as malformed.
func claimsFromMe(res MeResult, bearer string) (*auth.Claims, error) {
	if len(res.User) > 0 {
		claims, err := auth.FromPayload(res.User)
		if err == nil {
			return claims, nil
		}
	}
	if bearer != "" {
		if claims := auth.DecodeLenient(bearer); claims != nil {
			return claims, nil
		}
	}
	return nil, TransportError{
		Kind:    TransportErrorMalformedResponse,
		Message: "whoami returned no usable claims",
	}
}
