package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evdealer/authclient/session"
)

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *captureSink) next(t *testing.T) AuditEvent {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
	return AuditEvent{}
}

func auditClient(t *testing.T, sink AuditSink) *Client {
	t.Helper()
	c, _ := newTestClient(t, func(b *Builder) {
		cfg := b.config
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
		cfg.Session.ClientID = "web"
		b.WithConfig(cfg).WithAuditSink(sink)
	})
	return c
}

func TestAuditLoginSuccessAndLogout(t *testing.T) {
	sink := newCaptureSink(8)
	c := auditClient(t, sink)
	ctx := WithRequestID(context.Background(), "req-7")

	res, err := c.Exchange(ctx, PasswordAssertion{Email: "admin@evm.vn", Password: "admin123"})
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	ev := sink.next(t)
	if ev.EventType != auditEventLoginSuccess || !ev.Success || ev.UserID != "u-admin" {
		t.Fatalf("unexpected login event: %+v", ev)
	}
	if ev.ClientID != "web" || ev.RequestID != "req-7" || ev.SessionID != res.Record.SessionID {
		t.Fatalf("missing correlation fields: %+v", ev)
	}
	if ev.Metadata["method"] != "password" || ev.Metadata["role"] != "Admin" {
		t.Fatalf("unexpected metadata: %v", ev.Metadata)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	ev = sink.next(t)
	if ev.EventType != auditEventLogout || ev.UserID != "u-admin" || !ev.Success {
		t.Fatalf("unexpected logout event: %+v", ev)
	}
}

func TestAuditLoginFailureNeverCarriesPassword(t *testing.T) {
	sink := newCaptureSink(8)
	c := auditClient(t, sink)

	_, _ = c.Exchange(context.Background(), PasswordAssertion{Email: "admin@evm.vn", Password: "hunter2-secret"})
	ev := sink.next(t)
	if ev.EventType != auditEventLoginFailure || ev.Success {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Metadata["identifier"] != "admin@evm.vn" || ev.Metadata["reason"] != "rejected" {
		t.Fatalf("unexpected metadata: %v", ev.Metadata)
	}
	data, _ := json.Marshal(ev)
	if bytes.Contains(data, []byte("hunter2-secret")) {
		t.Fatal("password leaked into audit event")
	}
}

func TestAuditDegradedLogin(t *testing.T) {
	sink := newCaptureSink(8)
	c, srv := newTestClient(t, func(b *Builder) {
		cfg := b.config
		cfg.Audit.Enabled = true
		b.WithConfig(cfg).WithAuditSink(sink)
	})
	srv.FailIdentity(true)

	if _, err := c.Exchange(context.Background(), IdentityAssertion{IDToken: identityToken(t, "g-1", "x@gmail.com", "X")}); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	ev := sink.next(t)
	if ev.EventType != auditEventLoginDegraded || ev.UserID != "g-1" || ev.Metadata["reason"] != "rejected" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestAuditJSONWriterSink(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	sink := NewJSONWriterSink(lockedWriter{mu: &mu, w: &buf})
	c := auditClient(t, sink)

	if _, err := c.Exchange(context.Background(), PasswordAssertion{Email: "staff@evm.vn", Password: "staff123"}); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	line := strings.TrimSpace(buf.String())
	var ev AuditEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", line, err)
	}
	if ev.EventType != auditEventLoginSuccess || ev.UserID != "u-evm" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := newCaptureSink(8)
	c, _ := newTestClient(t, func(b *Builder) { b.WithAuditSink(sink) })

	if _, err := c.Exchange(context.Background(), PasswordAssertion{Email: "admin@evm.vn", Password: "admin123"}); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	select {
	case ev := <-sink.events:
		t.Fatalf("unexpected event with audit disabled: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAuditErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{session.ErrWriteFailed, auditErrSessionStore},
		{errors.Join(errors.New("x"), session.ErrBackendUnavailable), auditErrSessionStore},
		{context.DeadlineExceeded, auditErrTimeout},
		{&Error{Kind: KindTransport, Timeout: true}, auditErrTimeout},
		{context.Canceled, auditErrCanceled},
		{errors.New("boom"), auditErrBackend},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
