// Package jwt seals session records with the session-signing secret and reads
// the claims of identity-provider ID tokens.
//
// Sealed records are compact JWTs carrying the encoded record in a single
// "rec" claim. Verification pins the algorithm, requires an expiry and checks
// issuer and audience when configured.
package jwt
