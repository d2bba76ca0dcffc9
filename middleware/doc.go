// Package middleware exposes net/http guards for the dealer dashboard built
// on top of a session source such as authclient.Client.
//
// # Guards
//
//   - [RequireSession] sends visitors without a session to the login page,
//     keeping where they were going in callbackUrl.
//   - [RoleHome] redirects the bare dashboard root to the role's home.
//   - [RequireArea] answers 403 when the role may not open an area.
//   - [Dashboard] chains the three for paths under /dashboard.
//
// # What this package must NOT do
//
//   - Exchange credentials or refresh tokens.
//   - Write to the session store.
package middleware
