package authclient

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// LintSeverity ranks a lint finding.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	}
	return fmt.Sprintf("LintSeverity(%d)", int(s))
}

// LintWarning is one configuration finding that Validate accepts but an
// operator should look at.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintResult []LintWarning

func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the findings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the findings at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint inspects a valid configuration for risky but legal settings.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if u, err := url.Parse(c.Backend.BaseURL); err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		add("backend_plain_http", LintHigh, "bearer tokens would cross the network unencrypted")
	}
	if c.Backend.Timeout == 0 {
		add("timeout_disabled", LintWarn, "calls without a context deadline can hang indefinitely")
	}
	if len(c.Session.SigningSecret) == 0 {
		add("session_unsealed", LintWarn, "session-backed copy is stored without a seal")
	}
	if c.Session.TTL > 90*24*time.Hour {
		add("session_ttl_long", LintWarn, "session TTL exceeds 90 days")
	}
	if c.Session.DurablePath == "" {
		add("durable_in_memory", LintInfo, "durable copy does not survive restarts")
	}
	if c.IdentityProvider.ClientSecret != "" && c.IdentityProvider.ClientID == "" {
		add("idp_secret_without_id", LintWarn, "identity provider secret set without a client id")
	}
	if c.IdentityProvider.ClientID != "" && !hasScope(c.IdentityProvider.Scopes, "openid") {
		add("idp_missing_openid", LintHigh, "provider sign-in without the openid scope yields no ID token")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "login and session events are not audited")
	} else if c.Audit.DropIfFull {
		add("audit_drop_if_full", LintInfo, "audit events are dropped when the buffer is full")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		add("latency_without_metrics", LintWarn, "latency histograms need metrics enabled")
	}
	return ws
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
