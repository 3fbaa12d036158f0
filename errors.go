package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// TransportErrorKind categorizes transport failures.
type TransportErrorKind string

const (
	// TransportErrorConnection indicates the identity service was unreachable.
	TransportErrorConnection TransportErrorKind = "connection"
	// TransportErrorTimeout indicates the round trip exceeded its deadline.
	TransportErrorTimeout TransportErrorKind = "timeout"
	// TransportErrorCanceled indicates the caller canceled the request.
	TransportErrorCanceled TransportErrorKind = "canceled"
	// TransportErrorServer indicates an unexpected status from the identity service.
	TransportErrorServer TransportErrorKind = "server"
	// TransportErrorMalformedResponse indicates an undecodable response body.
	TransportErrorMalformedResponse TransportErrorKind = "malformed_response"
	// TransportErrorStorage indicates the local credential store failed.
	TransportErrorStorage TransportErrorKind = "storage"
)

// TransportError reports a genuine I/O failure while talking to the
// identity service or the credential store. Retryable: callers treat it as
// "unknown state, retry later", never as confirmed unauthenticated.
type TransportError struct {
	Kind    TransportErrorKind
	Message string
	Status  int
	Cause   error
}

// Error implements the error interface.
func (e TransportError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "transport failure"
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("sdk: %s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("sdk: %s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e TransportError) Unwrap() error { return e.Cause }

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te TransportError
	return errors.As(err, &te)
}

func classifyTransportErrorKind(err error) TransportErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return TransportErrorCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return TransportErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportErrorTimeout
	}
	return TransportErrorConnection
}

// LoginError reports a credential rejection from the identity service. It
// is surfaced verbatim to the caller of Login for user display.
type LoginError struct {
	Status      int
	Code        string
	Description string
}

// Error implements the error interface.
func (e LoginError) Error() string {
	desc := e.Description
	if desc == "" {
		desc = fmt.Sprintf("login rejected (%d)", e.Status)
	}
	if e.Code == "" {
		return fmt.Sprintf("sdk: %s", desc)
	}
	return fmt.Sprintf("sdk: %s: %s", e.Code, desc)
}

func decodeLoginError(resp *http.Response, body []byte) error {
	loginErr := LoginError{Status: resp.StatusCode}
	if len(body) == 0 {
		loginErr.Description = resp.Status
		return loginErr
	}
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		loginErr.Description = strings.TrimSpace(string(body))
		return loginErr
	}
	loginErr.Code = payload.Error
	loginErr.Description = payload.ErrorDescription
	if loginErr.Description == "" {
		loginErr.Description = payload.Message
	}
	if loginErr.Description == "" {
		loginErr.Description = resp.Status
	}
	return loginErr
}
