package internaldefs

import (
	authclient "github.com/evdealer/authclient"
)

// CounterDef binds a client counter to its exported name.
type CounterDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// HistogramDef binds a client latency histogram to its exported name.
type HistogramDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authclient.MetricLoginSuccess, Name: "evauth_login_success_total", Help: "Sign-ins that stored a verified session."},
	{ID: authclient.MetricLoginFailure, Name: "evauth_login_failure_total", Help: "Sign-ins rejected or unreachable."},
	{ID: authclient.MetricLoginDegraded, Name: "evauth_login_degraded_total", Help: "Identity sign-ins stored without backend confirmation."},
	{ID: authclient.MetricLoginInvalidResponse, Name: "evauth_login_invalid_response_total", Help: "Sign-in responses missing a user or access token."},
	{ID: authclient.MetricLogout, Name: "evauth_logout_total", Help: "Logout operations."},
	{ID: authclient.MetricRefreshSuccess, Name: "evauth_refresh_success_total", Help: "Successful access token refreshes."},
	{ID: authclient.MetricRefreshFailure, Name: "evauth_refresh_failure_total", Help: "Failed access token refreshes."},
	{ID: authclient.MetricSessionWrite, Name: "evauth_session_write_total", Help: "Session records written."},
	{ID: authclient.MetricSessionClear, Name: "evauth_session_clear_total", Help: "Session records cleared."},
	{ID: authclient.MetricSessionDiscard, Name: "evauth_session_discard_total", Help: "Stored records discarded as unreadable."},
	{ID: authclient.MetricDispatchSuccess, Name: "evauth_dispatch_success_total", Help: "Authenticated requests answered with 2xx."},
	{ID: authclient.MetricDispatchNoToken, Name: "evauth_dispatch_no_token_total", Help: "Requests refused locally for lack of a token."},
	{ID: authclient.MetricDispatchHTTPError, Name: "evauth_dispatch_http_error_total", Help: "Authenticated requests answered with a non-2xx status."},
	{ID: authclient.MetricDispatchTransportError, Name: "evauth_dispatch_transport_error_total", Help: "Authenticated requests that got no response."},
}

var HistogramDefs = []HistogramDef{
	{ID: authclient.MetricExchangeLatency, Name: "evauth_exchange_latency_seconds", Help: "Credential exchange latency."},
	{ID: authclient.MetricDispatchLatency, Name: "evauth_dispatch_latency_seconds", Help: "Authenticated request latency."},
}

// HistogramUpperBounds are the bucket limits in seconds; the last bucket is
// unbounded.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
