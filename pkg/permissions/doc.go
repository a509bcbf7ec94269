// Package permissions computes effective permission sets for (user, tenant)
// pairs.
//
// The Engine resolves a membership's role through the system-role catalogue
// or the tenant's custom role, unions non-expired grant claims, then removes
// deny claims. Denies always subtract, even when a role implies the same
// permission.
//
// CachedEngine is an optional cache-aside decorator (in-process LRU over
// Redis) with the same contract. Staleness is bounded by the cache TTL, which
// is why the refresh path always goes through the uncached engine.
//
// AuthorizeGrant is the privilege-escalation guard: an actor may only grant
// permissions their own current effective set already contains.
package permissions
