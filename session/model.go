package session

import (
	"strings"
	"time"

	"github.com/evdealer/authclient/permission"
)

// Principal is the authenticated identity the client acts as.
type Principal struct {
	ID          string          `json:"id"`
	Email       string          `json:"email,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	Role        permission.Role `json:"role"`
	// IdentityToken is the identity-provider ID token the principal signed
	// in with, kept for calls that need it.
	IdentityToken string `json:"identity_provider_token,omitempty"`
}

// TokenPair holds the opaque backend credentials.
type TokenPair struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// HasAccess reports whether the pair carries a usable access token.
func (t TokenPair) HasAccess() bool {
	return strings.TrimSpace(t.AccessToken) != ""
}

// Record is the single session a client holds.
type Record struct {
	SessionID string
	Principal Principal
	Tokens    TokenPair
	CreatedAt time.Time
}

// Degraded reports whether the record was produced by an identity sign-in
// the backend did not confirm.
func (r *Record) Degraded() bool {
	return r != nil && !r.Tokens.HasAccess()
}
