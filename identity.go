package sdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vaultcore/vaultcore/sdk/go/routes"
)

// Login exchanges user credentials for a session. On success the identity
// service returns a bearer token and/or sets a session cookie, depending on
// deployment mode. A rejected credential surfaces as a LoginError with the
// service's human-readable description preserved verbatim; I/O failures
// surface as TransportError.
func (c *Client) Login(ctx context.Context, creds Credentials) (TokenResponse, error) {
	if strings.TrimSpace(creds.Username) == "" || strings.TrimSpace(creds.Password) == "" {
		return TokenResponse{}, LoginError{Description: "username and password required"}
	}
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+routes.AuthLogin, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, body, err := c.send(ctx, req, "")
	if err != nil {
		return TokenResponse{}, err
	}
	if resp.StatusCode >= 400 {
		return TokenResponse{}, decodeLoginError(resp, body)
	}
	var tokens TokenResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &tokens); err != nil {
			return TokenResponse{}, TransportError{
				Kind:    TransportErrorMalformedResponse,
				Message: "undecodable login response",
				Cause:   err,
			}
		}
	}
	return tokens, nil
}

// Me confirms the session server-side and returns the canonical claim
// payload. A 401 is reported as MeResult{Authenticated: false} with a nil
// error: confirmed unauthenticated is a valid outcome, distinct from the
// TransportError returned for genuine I/O failure.
func (c *Client) Me(ctx context.Context, bearer string) (MeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+routes.AuthMe, nil)
	if err != nil {
		return MeResult{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, body, err := c.send(ctx, req, bearer)
	if err != nil {
		return MeResult{}, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return MeResult{Authenticated: false}, nil
	}
	if resp.StatusCode >= 400 {
		return MeResult{}, TransportError{
			Kind:    TransportErrorServer,
			Message: "whoami failed",
			Status:  resp.StatusCode,
		}
	}
	var payload struct {
		User map[string]any `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return MeResult{}, TransportError{
			Kind:    TransportErrorMalformedResponse,
			Message: "undecodable whoami response",
			Cause:   err,
		}
	}
	return MeResult{Authenticated: true, User: payload.User}, nil
}

// Logout invalidates the server-side session. Idempotent: logging out an
// already-dead session (401) is success.
func (c *Client) Logout(ctx context.Context, bearer string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+routes.AuthLogout, nil)
	if err != nil {
		return err
	}
	resp, _, err := c.send(ctx, req, bearer)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnauthorized {
		return TransportError{
			Kind:    TransportErrorServer,
			Message: "logout failed",
			Status:  resp.StatusCode,
		}
	}
	return nil
}

// send performs the round trip and drains the body. Network-level failures
// are classified into TransportError; HTTP status handling stays with the
// caller, which knows which statuses are meaningful outcomes.
func (c *Client) send(ctx context.Context, req *http.Request, bearer string) (*http.Response, []byte, error) {
	req.Header.Set("User-Agent", c.userAgent)
	var chain authChain
	if bearer != "" {
		chain = append(chain, bearerAuth{token: bearer})
	}
	chain.Apply(req)
	injectTraceparent(ctx, req)

	if c.telemetry.OnHTTPRequest != nil {
		c.telemetry.OnHTTPRequest(ctx, req)
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.telemetry.OnHTTPResponse != nil {
		c.telemetry.OnHTTPResponse(ctx, req, resp, err, time.Since(start))
	}
	if err != nil {
		return nil, nil, TransportError{
			Kind:    classifyTransportErrorKind(err),
			Message: "identity service request failed",
			Cause:   err,
		}
	}
	//nolint:errcheck // best-effort cleanup on return
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, TransportError{
			Kind:    classifyTransportErrorKind(err),
			Message: "identity service response unreadable",
			Cause:   err,
		}
	}
	return resp, body, nil
}
