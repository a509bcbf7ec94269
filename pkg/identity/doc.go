// Package identity defines the data model and persistence contract for the
// Meridian identity core: users, organizations (tenants), memberships,
// per-membership permission claims, tenant-defined roles, and refresh-token
// records.
//
// # Store
//
// The Store interface is the single persistence boundary. Two implementations
// are provided:
//
//   - PostgresStore: the production backend. InTx runs the callback inside a
//     real transaction so multi-row provisioning writes commit or roll back
//     as a unit.
//   - MemoryStore: a map-backed store for tests and local development. InTx
//     executes directly, matching the "direct execution on a
//     non-transactional backend" behavior the higher layers are written
//     against.
//
// Both enforce the same invariants: a case-sensitive unique external subject
// ID per user, at most one non-left membership per (user, organization), a
// unique SHA-256 hash per refresh token, and per-organization normalized-name
// uniqueness for custom roles. Concurrent provisioning races surface as
// ErrConflict, which callers resolve by re-reading and retrying.
package identity
