package authclient

import (
	"testing"
	"time"
)

func TestLint_DefaultConfigNoHighFindings(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Lint().AsError(LintHigh); err != nil {
		t.Fatalf("default config should not fail AsError(LintHigh): %v", err)
	}
	codes := cfg.Lint().Codes()
	if !containsCode(codes, "session_unsealed") || !containsCode(codes, "durable_in_memory") {
		t.Fatalf("expected unsealed and in-memory findings, got %v", codes)
	}
}

func TestLint_PlainHTTPBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Backend.BaseURL = "http://api.dealer.vn"
	ws := cfg.Lint()
	if !containsCode(ws.Codes(), "backend_plain_http") {
		t.Fatal("expected backend_plain_http")
	}
	for _, w := range ws {
		if w.Code == "backend_plain_http" && w.Severity != LintHigh {
			t.Errorf("backend_plain_http should be HIGH, got %s", w.Severity)
		}
	}

	for _, base := range []string{"http://127.0.0.1:3001", "http://[::1]:3001", "https://api.dealer.vn"} {
		cfg.Backend.BaseURL = base
		if containsCode(cfg.Lint().Codes(), "backend_plain_http") {
			t.Errorf("%s should not warn", base)
		}
	}
}

func TestLint_SealedSessionAndLongTTL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Session.SigningSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Session.TTL = 120 * 24 * time.Hour
	codes := cfg.Lint().Codes()
	if containsCode(codes, "session_unsealed") {
		t.Error("sealed session should not warn")
	}
	if !containsCode(codes, "session_ttl_long") {
		t.Error("expected session_ttl_long")
	}
}

func TestLint_IdentityProviderScopes(t *testing.T) {
	cfg := defaultConfig()
	cfg.IdentityProvider.ClientID = "client"
	cfg.IdentityProvider.Scopes = []string{"email"}
	ws := cfg.Lint()
	if len(ws.BySeverity(LintHigh)) == 0 {
		t.Fatal("expected a HIGH finding for missing openid")
	}

	cfg = defaultConfig()
	cfg.IdentityProvider.ClientSecret = "s"
	if !containsCode(cfg.Lint().Codes(), "idp_secret_without_id") {
		t.Error("expected idp_secret_without_id")
	}
}

func TestLint_AuditAndMetrics(t *testing.T) {
	cfg := defaultConfig()
	if !containsCode(cfg.Lint().Codes(), "audit_disabled") {
		t.Error("expected audit_disabled when audit is off")
	}
	cfg.Audit.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	codes := cfg.Lint().Codes()
	if containsCode(codes, "audit_disabled") || !containsCode(codes, "audit_drop_if_full") {
		t.Errorf("unexpected audit findings %v", codes)
	}
	if !containsCode(codes, "latency_without_metrics") {
		t.Error("expected latency_without_metrics")
	}
}

func TestLint_TimeoutDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.Backend.Timeout = 0
	if !containsCode(cfg.Lint().Codes(), "timeout_disabled") {
		t.Error("expected timeout_disabled")
	}
}

func TestLintSeverityString(t *testing.T) {
	if LintHigh.String() != "HIGH" || LintSeverity(9).String() != "LintSeverity(9)" {
		t.Fatal("unexpected severity names")
	}
}

// helpers

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
