package idp

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrMissingIDToken = errors.New("provider returned no id_token")
	ErrEmptyCode      = errors.New("authorization code is empty")
)

// Config registers the client with the provider.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scopes default to openid, email and profile.
	Scopes     []string
	HTTPClient *http.Client
	// IssuedAtMaxAge rejects ID tokens issued longer ago. Zero disables the
	// check.
	IssuedAtMaxAge time.Duration
}

// RelyingParty wraps a zitadel OIDC relying party discovered from Issuer.
type RelyingParty struct {
	rp rp.RelyingParty
}

// Result is a completed code exchange.
type Result struct {
	// IDToken is the raw token to pass to authclient.IdentityAssertion.
	IDToken string
	Claims  *oidc.IDTokenClaims
	Token   *oauth2.Token
}

func NewRelyingParty(ctx context.Context, cfg Config) (*RelyingParty, error) {
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("idp: issuer and client ID are required")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, oidc.ScopeEmail, oidc.ScopeProfile}
	}

	var verifierOpts []rp.VerifierOption
	if cfg.IssuedAtMaxAge > 0 {
		verifierOpts = append(verifierOpts, rp.WithIssuedAtMaxAge(cfg.IssuedAtMaxAge))
	}
	options := []rp.Option{rp.WithVerifierOpts(verifierOpts...)}
	if cfg.HTTPClient != nil {
		options = append(options, rp.WithHTTPClient(cfg.HTTPClient))
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL, scopes, options...)
	if err != nil {
		return nil, fmt.Errorf("idp: discover %s: %w", cfg.Issuer, err)
	}
	return &RelyingParty{rp: relyingParty}, nil
}

// AuthCodeURL is the provider page the user is sent to. state must be
// checked again when the provider redirects back.
func (r *RelyingParty) AuthCodeURL(state string) string {
	return rp.AuthURL(state, r.rp)
}

// Exchange trades an authorization code for tokens and verifies the ID
// token's signature, issuer and audience.
func (r *RelyingParty) Exchange(ctx context.Context, code string) (*Result, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}
	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, r.rp)
	if err != nil {
		return nil, fmt.Errorf("idp: code exchange: %w", err)
	}
	if tokens.IDToken == "" {
		return nil, ErrMissingIDToken
	}
	return &Result{IDToken: tokens.IDToken, Claims: tokens.IDTokenClaims, Token: tokens.Token}, nil
}

// NewState returns a random value for the state parameter.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("idp: random state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
