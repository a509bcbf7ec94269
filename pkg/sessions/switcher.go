package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/audit"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/events"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
)

// ErrNotAMember is returned when a switch targets an organization the user
// has no active membership in.
var ErrNotAMember = errors.New("no active membership in target organization")

// OrganizationSwitcher re-issues credentials scoped to a different
// organization the user already belongs to. No external assertion is
// involved, so the replay guard is never touched.
type OrganizationSwitcher struct {
	store     identity.Store
	creds     *CredentialIssuer
	publisher *events.Publisher
	security  *audit.SecurityLogger
	now       func() time.Time
}

// NewOrganizationSwitcher creates an organization switcher
func NewOrganizationSwitcher(store identity.Store, creds *CredentialIssuer, publisher *events.Publisher, security *audit.SecurityLogger) *OrganizationSwitcher {
	return &OrganizationSwitcher{
		store:     store,
		creds:     creds,
		publisher: publisher,
		security:  security,
		now:       time.Now,
	}
}

// Switch issues a fresh credential set for the target organization and makes
// it the user's preferred one. Permissions are recomputed for the target
// organization; nothing from the previous token carries over.
func (s *OrganizationSwitcher) Switch(ctx context.Context, userID, orgID string, opts IssueOptions) (*Credentials, error) {
	now := s.now().UTC()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.IsDeleted() {
		s.security.OrgSwitchDenied(userID, orgID, "user deleted")
		return nil, ErrNotAMember
	}

	membership, err := s.store.GetActiveMembership(ctx, userID, orgID)
	if errors.Is(err, identity.ErrNotFound) {
		s.security.OrgSwitchDenied(userID, orgID, "no active membership")
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}

	if user.PreferredOrgID == nil || *user.PreferredOrgID != orgID {
		user.PreferredOrgID = &orgID
		user.UpdatedAt = now
		if err := s.store.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to update preferred organization: %w", err)
		}
	}

	creds, err := s.creds.Issue(ctx, user, membership, opts)
	if err != nil {
		return nil, err
	}

	s.publisher.Emit(ctx, events.New(events.TypeOrganizationSwitch, userID, orgID, now, nil))
	return creds, nil
}
