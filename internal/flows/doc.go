// Package flows contains the orchestration for every client operation:
// password and identity exchange, refresh, logout and authenticated dispatch.
//
// Each flow function (RunPasswordExchange, RunDispatch, etc.) accepts a typed
// dependency struct and returns a result with a failure kind the root package
// maps to its public errors.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authclient (to avoid import cycles).
//   - Perform I/O directly. Backend calls go through a Sender and session
//     changes through the store interfaces.
//   - Retry, or refresh a token on its own.
package flows
