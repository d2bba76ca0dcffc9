// Package permission holds the closed role set of the dealer portal and the
// routing table that maps each role onto dashboard areas.
//
// # Areas
//
// Areas are stored as bits of an [AreaSet]. A [RoleTable] is built once,
// frozen, and then read concurrently by HTTP guards.
//
// # What this package must NOT do
//
//   - Access the network, Redis or the session store.
//   - Import authclient, jwt or session.
package permission
