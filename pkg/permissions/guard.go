package permissions

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnownedPermission is returned when an actor tries to grant a permission
// their own effective set does not contain.
var ErrUnownedPermission = errors.New("actor does not hold permission being granted")

// AuthorizeGrant checks that the actor's current effective permission set
// already contains every permission in target. One missing permission aborts
// the whole operation; the caller is expected to log it as a security event.
//
// The check always runs against the uncached engine so a freshly demoted
// actor cannot escalate through a stale cache entry.
func (e *Engine) AuthorizeGrant(ctx context.Context, actorID, orgID string, target []string) error {
	owned, err := e.Calculate(ctx, actorID, orgID)
	if err != nil {
		return fmt.Errorf("failed to compute actor permissions: %w", err)
	}

	for _, perm := range target {
		if !owned.Contains(perm) {
			return fmt.Errorf("%w: %s", ErrUnownedPermission, perm)
		}
	}
	return nil
}
