package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
)

// Set is an effective permission set
type Set map[string]struct{}

// NewSet builds a set from a permission list
func NewSet(perms ...string) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Contains reports whether the set holds a permission
func (s Set) Contains(perm string) bool {
	_, ok := s[perm]
	return ok
}

// List returns the permissions in sorted order
func (s Set) List() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RoleResolver resolves a system role name to its implied permission set.
// Implemented by roles.Registry.
type RoleResolver interface {
	Implied(role string) ([]string, bool)
}

// Calculator computes the effective permission set for a (user, tenant) pair.
// Engine is the uncached implementation; CachedEngine decorates it.
type Calculator interface {
	Calculate(ctx context.Context, userID, orgID string) (Set, error)
}

// Engine computes effective permissions from current store state
type Engine struct {
	store    identity.Store
	registry RoleResolver
	now      func() time.Time
}

// NewEngine creates a permission engine
func NewEngine(store identity.Store, registry RoleResolver) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		now:      time.Now,
	}
}

// Calculate resolves the active membership for (userID, orgID), expands the
// membership's role through the system catalogue or the tenant's custom role,
// applies non-expired grant claims, then removes deny claims. No membership
// means an empty set, never an error; deny always wins regardless of order.
func (e *Engine) Calculate(ctx context.Context, userID, orgID string) (Set, error) {
	membership, err := e.store.GetActiveMembership(ctx, userID, orgID)
	if errors.Is(err, identity.ErrNotFound) {
		return Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}

	result := make(Set)

	if implied, ok := e.registry.Implied(membership.Role); ok {
		for _, p := range implied {
			result[p] = struct{}{}
		}
	} else {
		custom, err := e.store.GetCustomRole(ctx, orgID, identity.NormalizeRoleName(membership.Role))
		if err != nil && !errors.Is(err, identity.ErrNotFound) {
			return nil, fmt.Errorf("failed to load custom role: %w", err)
		}
		if custom != nil {
			for _, p := range custom.Permissions {
				result[p] = struct{}{}
			}
		}
		// An unknown role contributes nothing; claims below may still grant.
	}

	claims, err := e.store.ListMembershipClaims(ctx, membership.ID, e.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load membership claims: %w", err)
	}

	// Grants first, then denies, so a deny subtracts no matter how the
	// claims were ordered in the store.
	for _, c := range claims {
		if c.Kind == identity.ClaimGrant {
			result[c.Permission] = struct{}{}
		}
	}
	for _, c := range claims {
		if c.Kind == identity.ClaimDeny {
			delete(result, c.Permission)
		}
	}

	return result, nil
}
