package jwt

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrIdentityToken = errors.New("identity token unreadable")

// IdentityClaims is the subset of a provider ID token the client keeps when
// the backend could not verify it.
type IdentityClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// ParseIdentityClaims reads the claims of a provider ID token without
// verifying its signature. The result is display data only; the backend is
// the party that verifies identity.
func ParseIdentityClaims(idToken string) (*IdentityClaims, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, ErrIdentityToken
	}
	claims := &IdentityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, errors.Join(ErrIdentityToken, err)
	}
	if claims.Subject == "" && claims.Email == "" {
		return nil, ErrIdentityToken
	}
	return claims, nil
}

// DisplayName returns Name, falling back to the local part of Email.
func (c *IdentityClaims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if at := strings.IndexByte(c.Email, '@'); at > 0 {
		return c.Email[:at]
	}
	return c.Email
}

// PrincipalID returns Subject, falling back to Email.
func (c *IdentityClaims) PrincipalID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.Email
}
