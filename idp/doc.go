// Package idp signs a user in at the identity provider with the OIDC
// authorization code flow and hands back the ID token that authclient
// exchanges with the dealer backend.
package idp
