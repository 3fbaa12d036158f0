package sdk

import (
	"context"
	"net/http"
	"time"
)

// TelemetryHooks expose observability callbacks without forcing dependencies on the caller.
type TelemetryHooks struct {
	// OnHTTPRequest fires before an identity service request is sent.
	OnHTTPRequest func(ctx context.Context, req *http.Request)
	// OnHTTPResponse fires after the request completes (even when err != nil).
	OnHTTPResponse func(ctx context.Context, req *http.Request, resp *http.Response, err error, latency time.Duration)
	// OnTransportError fires when a verification fails for transport reasons.
	// This is the side channel for UI warnings: the session snapshot itself
	// is left untouched by transport failures.
	OnTransportError func(ctx context.Context, err error)
}

func (t TelemetryHooks) transportError(ctx context.Context, err error) {
	if t.OnTransportError == nil {
		return
	}
	t.OnTransportError(ctx, err)
}
