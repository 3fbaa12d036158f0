package sdk

import (
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func testToken(t *testing.T, payload map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]any{"alg": "RS256", "typ": "JWT"})
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(body) + "."
}

func testUserToken(t *testing.T, expiresIn time.Duration, roles ...string) string {
	t.Helper()
	return testToken(t, userPayload(expiresIn, roles...))
}

func userPayload(expiresIn time.Duration, roles ...string) map[string]any {
	return map[string]any{
		"sub":                "user-123",
		"preferred_username": "demo",
		"realm_access":       map[string]any{"roles": roles},
		"exp":                time.Now().Add(expiresIn).Unix(),
		"iat":                time.Now().Unix(),
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new test client: %v", err)
	}
	return client
}
