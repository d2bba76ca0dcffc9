package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/evdealer/authclient/internal/testbackend"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

type harness struct {
	t           *testing.T
	backend     *testbackend.Server
	sessionFile string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := testbackend.New()
	t.Cleanup(srv.Close)
	return &harness{
		t:           t,
		backend:     srv,
		sessionFile: filepath.Join(t.TempDir(), "session.json"),
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{
		"--config", "",
		"--server", h.backend.URL,
		"--session-file", h.sessionFile,
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginStatusGetLogout(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("login", "--email", "staff@dealer.vn", "--password", "dealer123")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Dealer Staff (Dealer Staff)")
	assert.Contains(t, out, "Home: /dashboard/dealer")
	assert.FileExists(t, h.sessionFile)

	out, err = h.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "User: Dealer Staff (u1)")
	assert.Contains(t, out, "Role: Dealer Staff")
	assert.Contains(t, out, "Loaded from: durable")
	assert.Contains(t, out, "Access token: present")

	out, err = h.run("get", "/me")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "u1"`)

	out, err = h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = h.run("status")
	require.ErrorIs(t, err, errNotSignedIn)
}

func TestLoginRejectedCredentials(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("login", "--email", "staff@dealer.vn", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.NoFileExists(t, h.sessionFile)
}

func TestLoginPasswordFromEnvironment(t *testing.T) {
	h := newHarness(t)
	t.Setenv("EVAUTH_PASSWORD", "admin123")

	out, err := h.run("login", "--email", "admin@evm.vn")
	require.NoError(t, err)
	assert.Contains(t, out, "Home: /dashboard/evm")
}

func TestLoginRequiresAMethod(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email")
}

func TestLoginIdentityTokenDegraded(t *testing.T) {
	h := newHarness(t)
	h.backend.FailIdentity(true)

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"sub":   "google-123",
		"email": "lan@gmail.com",
		"name":  "lan",
	})
	raw, err := token.SignedString([]byte("provider-secret"))
	require.NoError(t, err)

	out, err := h.run("login", "--id-token", raw)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in without backend confirmation")
	assert.Contains(t, out, "Home: /dashboard/customer")

	out, err = h.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend did not confirm this sign-in")

	_, err = h.run("get", "/me")
	require.Error(t, err)
	assert.Equal(t, "No token provided", err.Error())
}

func TestGetWithoutSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("get", "/vehicles")
	require.Error(t, err)
	assert.Equal(t, "No token provided", err.Error())
	assert.Zero(t, h.backend.CountPath("/vehicles"))
}

func TestGetPassesQuery(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("login", "--email", "manager@dealer.vn", "--password", "manager123")
	require.NoError(t, err)

	_, err = h.run("get", "/vehicles", "--query", "model=VF8")
	require.NoError(t, err)

	var found bool
	for _, r := range h.backend.Requests() {
		if r.Path == "/vehicles" {
			found = true
			assert.Contains(t, r.Authorization, "Bearer ")
		}
	}
	assert.True(t, found, "backend never saw /vehicles")
}

func TestExportShells(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("login", "--email", "staff@evm.vn", "--password", "staff123")
	require.NoError(t, err)

	out, err := h.run("export")
	require.NoError(t, err)
	assert.Regexp(t, `^export EVAUTH_ACCESS_TOKEN=".+"\n$`, out)

	out, err = h.run("export", "--shell", "fish")
	require.NoError(t, err)
	assert.Contains(t, out, "set -gx EVAUTH_ACCESS_TOKEN")

	_, err = h.run("export", "--shell", "tcsh")
	require.Error(t, err)
}

func TestRefreshRewritesSession(t *testing.T) {
	h := newHarness(t)
	h.backend.RotateRefresh(true)
	_, err := h.run("login", "--email", "staff@dealer.vn", "--password", "dealer123")
	require.NoError(t, err)
	before, err := h.run("export")
	require.NoError(t, err)

	out, err := h.run("refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Access token refreshed for Dealer Staff")

	after, err := h.run("export")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestRefreshWithoutSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("refresh")
	require.Error(t, err)
}

func TestRedisSessionCopy(t *testing.T) {
	h := newHarness(t)
	mr := miniredis.RunT(t)

	_, err := h.run("--redis", mr.Addr(), "login", "--email", "staff@dealer.vn", "--password", "dealer123")
	require.NoError(t, err)
	assert.True(t, mr.Exists("evauth:session:default"))

	out, err := h.run("--redis", mr.Addr(), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded from: session")
}

func TestIdPURLRequiresProvider(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("idp", "url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity provider is not configured")
}

func TestVietnameseLocale(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("--locale", "vi", "get", "/vehicles")
	require.Error(t, err)
	assert.Equal(t, "No token provided", err.Error())

	_, err = h.run("--locale", "fr", "status")
	require.Error(t, err)
}
