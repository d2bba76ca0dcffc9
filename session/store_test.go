package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evdealer/authclient/permission"
)

type failingBackend struct {
	MemoryBackend
	saveErr   error
	deleteErr error
}

func (f *failingBackend) Delete(ctx context.Context) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryBackend.Delete(ctx)
}

func (f *failingBackend) Save(ctx context.Context, data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryBackend.Save(ctx, data)
}

// prefixSealer marks sealed payloads so tests can tell which copy was read.
type prefixSealer struct{}

func (prefixSealer) Seal(p []byte) (string, error) { return "sealed:" + string(p), nil }
func (prefixSealer) Open(s string) ([]byte, error) {
	rest, ok := strings.CutPrefix(s, "sealed:")
	if !ok {
		return nil, errors.New("bad seal")
	}
	return []byte(rest), nil
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	store := NewStore(Options{})
	ctx := context.Background()

	p, tok := testPrincipal(), testTokens()
	written, err := store.Write(ctx, p, tok)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, ok := store.Read(ctx)
	if !ok {
		t.Fatal("expected record")
	}
	if rec.Principal != p || rec.Tokens != tok {
		t.Fatalf("read mismatch: %+v", rec)
	}
	if rec.SessionID == "" || rec.SessionID != written.SessionID {
		t.Fatalf("session id mismatch: %q vs %q", rec.SessionID, written.SessionID)
	}
	if rec.Principal.Role != permission.RoleDealerStaff {
		t.Fatalf("expected Dealer Staff, got %q", rec.Principal.Role)
	}
}

func TestWriteReplacesPreviousSessionWholesale(t *testing.T) {
	store := NewStore(Options{})
	ctx := context.Background()

	if _, err := store.Write(ctx, testPrincipal(), testTokens()); err != nil {
		t.Fatalf("first write: %v", err)
	}
	next := Principal{ID: "c9", Role: permission.RoleCustomer}
	if _, err := store.Write(ctx, next, TokenPair{AccessToken: "tok2"}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	rec, ok := store.Read(ctx)
	if !ok {
		t.Fatal("expected record")
	}
	if rec.Principal != next || rec.Tokens.RefreshToken != "" || rec.Tokens.AccessToken != "tok2" {
		t.Fatalf("stale fields survived: %+v", rec)
	}
}

func TestWriteRejectsIncompletePrincipal(t *testing.T) {
	store := NewStore(Options{})
	ctx := context.Background()

	if _, err := store.Write(ctx, Principal{Role: permission.RoleCustomer}, testTokens()); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for empty id, got %v", err)
	}
	if _, err := store.Write(ctx, Principal{ID: "x", Role: "Owner"}, testTokens()); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for unknown role, got %v", err)
	}
	if _, ok := store.Read(ctx); ok {
		t.Fatal("rejected write must not leave a record")
	}
}

func TestSessionFailureRollsBackDurable(t *testing.T) {
	durable := NewMemoryBackend()
	sessionBackend := &failingBackend{}
	store := NewStore(Options{Session: sessionBackend, Durable: durable})
	ctx := context.Background()

	if _, err := store.Write(ctx, testPrincipal(), testTokens()); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	before, _ := durable.Load(ctx)

	sessionBackend.saveErr = errors.New("boom")
	_, err := store.Write(ctx, Principal{ID: "u2", Role: permission.RoleAdmin}, TokenPair{AccessToken: "tok2"})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	after, _ := durable.Load(ctx)
	if !bytes.Equal(before, after) {
		t.Fatal("durable store must hold the previous record after a failed write")
	}
}

func TestSealedSessionCopyIsPreferred(t *testing.T) {
	sessionBackend := NewMemoryBackend()
	store := NewStore(Options{Session: sessionBackend, Sealer: prefixSealer{}})
	ctx := context.Background()

	if _, err := store.Write(ctx, testPrincipal(), testTokens()); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := sessionBackend.Load(ctx)
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if !strings.HasPrefix(string(raw), "sealed:") {
		t.Fatalf("session copy not sealed: %q", raw)
	}
	if _, src, ok := store.ReadWithSource(ctx); !ok || src != SourceSession {
		t.Fatalf("expected session source, got %q ok=%v", src, ok)
	}
}

func TestTamperedSealIsDiscarded(t *testing.T) {
	sessionBackend := NewMemoryBackend()
	var discarded []DiscardReason
	store := NewStore(Options{
		Session:   sessionBackend,
		Sealer:    prefixSealer{},
		OnDiscard: func(_ Source, r DiscardReason) { discarded = append(discarded, r) },
	})
	ctx := context.Background()

	if _, err := store.Write(ctx, testPrincipal(), testTokens()); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = sessionBackend.Save(ctx, []byte("forged"))

	rec, src, ok := store.ReadWithSource(ctx)
	if !ok || src != SourceDurable {
		t.Fatalf("expected durable fallback, got src=%q ok=%v", src, ok)
	}
	if rec.Tokens.AccessToken != "tok1" {
		t.Fatalf("unexpected token %q", rec.Tokens.AccessToken)
	}
	if len(discarded) != 1 || discarded[0] != DiscardSeal {
		t.Fatalf("expected one seal discard, got %v", discarded)
	}
	if _, err := sessionBackend.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("forged entry must be deleted, got %v", err)
	}
}

func TestDurableLegacyAndCorruptEntriesAreDiscarded(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		reason DiscardReason
	}{
		{"bare token", "eyJhbGciOiJIUzI1NiJ9.e30.sig", DiscardLegacy},
		{"bearer prefixed token", "Bearer abc.def", DiscardLegacy},
		{"legacy accessToken blob", `{"accessToken":"tok","user":{"id":1}}`, DiscardLegacy},
		{"legacy token blob", `{"token":"tok"}`, DiscardLegacy},
		{"future version", `{"version":9,"principal":{}}`, DiscardUnsupported},
		{"truncated", `{"version":1,"principal":{"id":"u1"`, DiscardCorrupt},
		{"unknown field", `{"version":1,"session_id":"s","principal":{"id":"u1","role":"Customer"},"tokens":{},"saved_at":0,"extra":1}`, DiscardCorrupt},
		{"unknown role", `{"version":1,"session_id":"s","principal":{"id":"u1","role":"Owner"},"tokens":{},"saved_at":0}`, DiscardCorrupt},
		{"binary", "\x00\x01\x02", DiscardCorrupt},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			durable := NewMemoryBackend()
			var logs bytes.Buffer
			var got []DiscardReason
			store := NewStore(Options{
				Durable:   durable,
				Logger:    slog.New(slog.NewTextHandler(&logs, nil)),
				OnDiscard: func(_ Source, r DiscardReason) { got = append(got, r) },
			})
			ctx := context.Background()
			_ = durable.Save(ctx, []byte(tc.stored))

			if rec, ok := store.Read(ctx); ok {
				t.Fatalf("expected no record, got %+v", rec)
			}
			if len(got) != 1 || got[0] != tc.reason {
				t.Fatalf("expected discard %q, got %v", tc.reason, got)
			}
			if _, err := durable.Load(ctx); !errors.Is(err, ErrNotFound) {
				t.Fatalf("discarded entry must be deleted, got %v", err)
			}
			if !strings.Contains(logs.String(), "discarding stored record") {
				t.Fatalf("expected a warning log, got %q", logs.String())
			}
			if strings.Contains(logs.String(), "tok") && tc.reason == DiscardLegacy {
				t.Fatalf("token value leaked into logs: %q", logs.String())
			}
		})
	}
}

func TestSubscribersNotifiedSynchronously(t *testing.T) {
	store := NewStore(Options{})
	ctx := context.Background()

	var seen []string
	cancel := store.Subscribe(func(r *Record) {
		if r == nil {
			seen = append(seen, "cleared")
			return
		}
		seen = append(seen, r.Principal.ID)
	})

	if _, err := store.Write(ctx, testPrincipal(), testTokens()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(seen) != 1 || seen[0] != "u1" {
		t.Fatalf("write notification missing: %v", seen)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(seen) != 2 || seen[1] != "cleared" {
		t.Fatalf("clear notification missing: %v", seen)
	}

	cancel()
	cancel()
	_, _ = store.Write(ctx, testPrincipal(), testTokens())
	if len(seen) != 2 {
		t.Fatalf("cancelled subscriber still notified: %v", seen)
	}
}

func TestSubscriberMayReadStore(t *testing.T) {
	store := NewStore(Options{})
	ctx := context.Background()

	var token string
	store.Subscribe(func(*Record) {
		token, _ = store.AccessToken(ctx)
	})
	if _, err := store.Write(ctx, testPrincipal(), testTokens()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if token != "tok1" {
		t.Fatalf("subscriber read %q", token)
	}
}

func TestDegradedRecordHasNoAccessToken(t *testing.T) {
	store := NewStore(Options{})
	ctx := context.Background()

	p := Principal{ID: "google-sub", Role: permission.RoleCustomer, IdentityToken: "idtok"}
	if _, err := store.Write(ctx, p, TokenPair{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, ok := store.Read(ctx)
	if !ok || !rec.Degraded() {
		t.Fatalf("expected degraded record, got %+v", rec)
	}
	if _, ok := store.AccessToken(ctx); ok {
		t.Fatal("degraded record must not yield an access token")
	}
}

func TestConcurrentWritesLeaveBackendsConsistent(t *testing.T) {
	sessionBackend := NewMemoryBackend()
	durable := NewMemoryBackend()
	store := NewStore(Options{Session: sessionBackend, Durable: durable})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := testPrincipal()
			p.ID = "u" + string(rune('a'+i%26))
			_, _ = store.Write(ctx, p, testTokens())
			_, _ = store.Read(ctx)
		}(i)
	}
	wg.Wait()

	s, _ := sessionBackend.Load(ctx)
	d, _ := durable.Load(ctx)
	if !bytes.Equal(s, d) {
		t.Fatal("session and durable copies diverged")
	}
}

func TestFileBackendPermissionsAndIdempotentDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultDurableFile)
	fb, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	ctx := context.Background()

	if _, err := fb.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := fb.Save(ctx, []byte(`{"version":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
	if err := fb.Delete(ctx); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := fb.Delete(ctx); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFailedClearStopsServingToken(t *testing.T) {
	sess := &failingBackend{}
	store := NewStore(Options{Session: sess, Durable: NewMemoryBackend()})
	ctx := context.Background()

	if _, err := store.Write(ctx, testPrincipal(), testTokens()); err != nil {
		t.Fatalf("write: %v", err)
	}
	var cleared int
	store.Subscribe(func(r *Record) {
		if r == nil {
			cleared++
		}
	})

	sess.deleteErr = errors.New("down")
	err := store.Clear(ctx)
	if !errors.Is(err, ErrClearFailed) || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected ErrClearFailed carrying the cause, got %v", err)
	}
	if tok, ok := store.AccessToken(ctx); ok || tok != "" {
		t.Fatalf("token still served after failed clear: %q", tok)
	}
	if _, err := sess.MemoryBackend.Load(ctx); err != nil {
		t.Fatalf("session copy should still be on the backend: %v", err)
	}
	if cleared != 0 {
		t.Fatalf("subscribers told the session is gone while a copy remains")
	}

	sess.deleteErr = nil
	if _, ok := store.Read(ctx); ok {
		t.Fatal("read after recovery should find nothing")
	}
	if _, err := sess.MemoryBackend.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("retried delete did not run: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected one clear notification after the retry, got %d", cleared)
	}
}

func TestWriteAfterFailedClearIsReadable(t *testing.T) {
	sess := &failingBackend{deleteErr: errors.New("down")}
	store := NewStore(Options{Session: sess, Durable: NewMemoryBackend()})
	ctx := context.Background()

	if _, err := store.Write(ctx, testPrincipal(), testTokens()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Clear(ctx); err == nil {
		t.Fatal("expected clear to fail")
	}
	if _, err := store.Write(ctx, testPrincipal(), TokenPair{AccessToken: "tok2"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	tok, ok := store.AccessToken(ctx)
	if !ok || tok != "tok2" {
		t.Fatalf("expected fresh token, got %q ok=%v", tok, ok)
	}
}

func TestRecordsExpireAfterMaxAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var discarded []Source
	store := NewStore(Options{
		Sealer:    prefixSealer{},
		MaxAge:    time.Hour,
		Now:       func() time.Time { return now },
		OnDiscard: func(src Source, r DiscardReason) {
			if r == DiscardExpired {
				discarded = append(discarded, src)
			}
		},
	})
	ctx := context.Background()

	if _, err := store.Write(ctx, testPrincipal(), testTokens()); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(59 * time.Minute)
	if _, src, ok := store.ReadWithSource(ctx); !ok || src != SourceSession {
		t.Fatalf("record should still be live, ok=%v src=%q", ok, src)
	}

	now = now.Add(2 * time.Minute)
	if tok, ok := store.AccessToken(ctx); ok {
		t.Fatalf("expired record served token %q", tok)
	}
	if len(discarded) != 2 || discarded[0] != SourceSession || discarded[1] != SourceDurable {
		t.Fatalf("expected both copies discarded as expired, got %v", discarded)
	}
}
