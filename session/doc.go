// Package session owns the client's single session record and the two places
// it is kept.
//
// # Backends
//
// The session-backed store ([RedisBackend] or [MemoryBackend]) is
// authoritative and holds a sealed copy of the record. The durable store
// ([FileBackend]) survives restarts and may be stale. [Store] writes both in
// one serialized step and reads the session-backed copy first.
//
// # Durable layout
//
// Records are stored as a versioned JSON envelope. Entries in any other
// shape, including bare tokens left by older clients, are discarded on read
// and treated as absent.
//
// # What this package must NOT do
//
//   - Import authclient, jwt or middleware.
//   - Talk to the backend API or refresh tokens.
//   - Log token values.
package session
