// Package audit implements async event dispatching for session and credential
// events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: audit record with timestamp, type, user, session, request and metadata.
//
// This package does NOT decide which events to emit; the client and the flow
// functions do.
//
// # What this package must NOT do
//
//   - Import authclient or any sibling internal package.
//   - Record token values or passwords.
package audit
