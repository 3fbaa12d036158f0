package sdk

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultUserAgent = "vaultcore-sdk/" + Version

const (
	defaultConnectTO = 5 * time.Second
	defaultRequestTO = 15 * time.Second
)

// ClientConfig wires the base URL, HTTP transport, and telemetry for the
// identity service client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Telemetry  TelemetryHooks
	UserAgent  string
}

// Client issues login, logout, and whoami requests against the identity
// service. It is agnostic to which credential transport is active: bearer
// tokens are passed per call, cookies ride on the configured HTTP client's
// jar.
type Client struct {
	baseURL    string
	httpClient *http.Client
	telemetry  TelemetryHooks
	userAgent  string
}

// Credentials encapsulates username/password inputs for login.
type Credentials struct {
	Username string
	Password string
}

// TokenResponse mirrors the identity service's login response body. The
// access token may be empty in cookie-only deployments, where the session
// rides on a server-set cookie instead.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// MeResult is the outcome of a whoami round trip. Authenticated=false with
// a nil error is the server-confirmed absence of a valid session, which is
// a normal outcome and deliberately not an error.
type MeResult struct {
	Authenticated bool
	User          map[string]any
}

// NewClient validates the configuration and returns a ready-to-use Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	normalized, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(defaultConnectTO, defaultRequestTO)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		baseURL:    normalized,
		httpClient: httpClient,
		telemetry:  cfg.Telemetry,
		userAgent:  ua,
	}, nil
}

func newHTTPClient(connectTimeout, requestTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("sdk: base URL required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("sdk: invalid base URL: %w", err)
	}
	if u.Scheme == "" {
		return "", errors.New("sdk: base URL missing scheme (http/https)")
	}
	if u.Host == "" {
		return "", errors.New("sdk: base URL missing host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return strings.TrimSuffix(u.String(), "/"), nil
}
