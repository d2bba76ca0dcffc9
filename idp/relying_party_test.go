package idp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "dealer-web"
	testKeyID    = "k1"
)

type fakeProvider struct {
	*httptest.Server
	key      *rsa.PrivateKey
	omitID   bool
	audience string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &fakeProvider{key: key, audience: testClientID}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"issuer":                                p.URL,
			"authorization_endpoint":                p.URL + "/authorize",
			"token_endpoint":                        p.URL + "/token",
			"jwks_uri":                              p.URL + "/keys",
			"response_types_supported":              []string{"code"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		pub := p.key.PublicKey
		writeJSON(w, map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		body := map[string]any{
			"access_token": "provider-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if !p.omitID {
			body["id_token"] = p.idToken(t)
		}
		writeJSON(w, body)
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) idToken(t *testing.T) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            p.URL,
		"sub":            "google-123",
		"aud":            p.audience,
		"exp":            now.Add(time.Hour).Unix(),
		"iat":            now.Unix(),
		"email":          "lan@gmail.com",
		"email_verified": true,
		"name":           "Lan Nguyen",
	})
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(p.key)
	if err != nil {
		t.Errorf("sign id token: %v", err)
	}
	return signed
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestRP(t *testing.T, p *fakeProvider) *RelyingParty {
	t.Helper()
	r, err := NewRelyingParty(context.Background(), Config{
		Issuer:       p.URL,
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:3000/api/auth/callback/google",
		HTTPClient:   p.Client(),
	})
	require.NoError(t, err)
	return r
}

func TestAuthCodeURL(t *testing.T) {
	p := newFakeProvider(t)
	r := newTestRP(t, p)

	state, err := NewState()
	require.NoError(t, err)

	u, err := url.Parse(r.AuthCodeURL(state))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "http://localhost:3000/api/auth/callback/google", q.Get("redirect_uri"))
	assert.ElementsMatch(t, []string{"openid", "email", "profile"}, strings.Fields(q.Get("scope")))
}

func TestExchangeReturnsVerifiedIDToken(t *testing.T) {
	p := newFakeProvider(t)
	r := newTestRP(t, p)

	res, err := r.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	require.NotEmpty(t, res.IDToken)
	assert.Equal(t, "google-123", res.Claims.Subject)
	assert.Equal(t, "lan@gmail.com", res.Claims.Email)
	assert.Equal(t, "provider-access", res.Token.AccessToken)
}

func TestExchangeRejectsWrongAudience(t *testing.T) {
	p := newFakeProvider(t)
	p.audience = "someone-else"
	r := newTestRP(t, p)

	_, err := r.Exchange(context.Background(), "good-code")
	require.Error(t, err)
}

func TestExchangeRejectsBadCode(t *testing.T) {
	p := newFakeProvider(t)
	r := newTestRP(t, p)

	_, err := r.Exchange(context.Background(), "bad-code")
	require.Error(t, err)

	_, err = r.Exchange(context.Background(), " ")
	require.ErrorIs(t, err, ErrEmptyCode)
}

func TestExchangeWithoutIDToken(t *testing.T) {
	p := newFakeProvider(t)
	p.omitID = true
	r := newTestRP(t, p)

	_, err := r.Exchange(context.Background(), "good-code")
	require.Error(t, err)
}

func TestNewRelyingPartyValidation(t *testing.T) {
	_, err := NewRelyingParty(context.Background(), Config{Issuer: "", ClientID: "x"})
	require.Error(t, err)

	p := newFakeProvider(t)
	_, err = NewRelyingParty(context.Background(), Config{Issuer: p.URL + "/wrong", ClientID: "x", HTTPClient: p.Client()})
	require.Error(t, err)
}
