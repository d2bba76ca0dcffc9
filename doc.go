// Package authclient signs a user of the EV dealer app in against the dealer
// backend, keeps the resulting session, and attaches its access token to
// protected calls.
//
// The package is designed for concurrent use: Client methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authclient is the public surface. It exposes [Client], [Builder], [Config],
// [Error] and the session value types. Flow orchestration, audit dispatch
// and the backend stub used in tests live under internal/ and are never
// exported. The session store and its backends live in the session package.
//
// # Failures
//
// Every failure an operation returns is an [*Error] with a [ErrorKind].
// errors.Is works against the sentinel of each kind, and [ErrTimeout]
// matches transport failures caused by a deadline. [NeedsLogin] reports the
// failures that should send the user back to the login page.
//
// # What this package must NOT do
//
//   - Send a protected request without an access token.
//   - Retry a request or refresh a token on its own.
//   - Update one session copy without the other.
//   - Log tokens or passwords.
package authclient
