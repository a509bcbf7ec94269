// Package exchange implements the token-exchange protocol: an externally
// issued identity assertion is validated, its jti claimed exactly once, the
// user and their default organization provisioned atomically, and a
// first-party credential set issued with freshly computed permissions.
//
// Ordering is load bearing. The replay claim happens before any store write,
// and provisioning happens before permission computation and signing. Two
// concurrent exchanges of the same assertion resolve through the replay
// guard; two concurrent exchanges for the same brand-new user resolve
// through the store's uniqueness constraints plus a single retry.
package exchange
