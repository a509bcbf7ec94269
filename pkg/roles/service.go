package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/audit"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/permissions"
)

var (
	// ErrReservedRoleName is returned when a custom role collides with a
	// system role name
	ErrReservedRoleName = errors.New("role name is reserved")

	// ErrInvalidRoleName is returned for empty or malformed role names
	ErrInvalidRoleName = errors.New("invalid role name")

	// ErrUnknownRole is returned when assigning a role that does not exist
	ErrUnknownRole = errors.New("unknown role")
)

// EscalationGuard authorizes an actor to grant a permission set.
// Implemented by permissions.Engine; the guard must run uncached.
type EscalationGuard interface {
	AuthorizeGrant(ctx context.Context, actorID, orgID string, target []string) error
}

// Service manages tenant-defined roles and role assignment. Every operation
// that grants or assigns permissions runs through the escalation guard.
type Service struct {
	store    identity.Store
	registry *Registry
	guard    EscalationGuard
	security *audit.SecurityLogger
	now      func() time.Time
}

// NewService creates a role-management service
func NewService(store identity.Store, registry *Registry, guard EscalationGuard, security *audit.SecurityLogger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		guard:    guard,
		security: security,
		now:      time.Now,
	}
}

// CreateRole creates a tenant-defined role. The actor must already hold every
// permission the new role would carry; otherwise the whole operation aborts
// and no role row is created.
func (s *Service) CreateRole(ctx context.Context, actorID, orgID, name string, perms []string) (*identity.CustomRole, error) {
	normalized, err := s.validateName(name)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, actorID, orgID, perms); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	role := &identity.CustomRole{
		ID:             uuid.NewString(),
		OrgID:          orgID,
		Name:           strings.TrimSpace(name),
		NormalizedName: normalized,
		Permissions:    dedupe(perms),
		CreatedBy:      actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateCustomRole(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	return role, nil
}

// UpdateRole replaces a custom role's permission list (and optionally its
// name). The actor must hold every permission in the new list.
func (s *Service) UpdateRole(ctx context.Context, actorID, orgID, currentName, newName string, perms []string) (*identity.CustomRole, error) {
	role, err := s.store.GetCustomRole(ctx, orgID, identity.NormalizeRoleName(currentName))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrUnknownRole
		}
		return nil, err
	}

	if newName == "" {
		newName = role.Name
	}
	normalized, err := s.validateName(newName)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, actorID, orgID, perms); err != nil {
		return nil, err
	}

	role.Name = strings.TrimSpace(newName)
	role.NormalizedName = normalized
	role.Permissions = dedupe(perms)
	role.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateCustomRole(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return role, nil
}

// AssignRole changes the role on an active membership. Assigning a role is
// equivalent to granting its permission set, so the guard applies here too.
func (s *Service) AssignRole(ctx context.Context, actorID, orgID, targetUserID, roleName string) error {
	implied, ok := s.registry.Implied(roleName)
	if !ok {
		custom, err := s.store.GetCustomRole(ctx, orgID, identity.NormalizeRoleName(roleName))
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return ErrUnknownRole
			}
			return err
		}
		implied = custom.Permissions
	}

	if err := s.authorize(ctx, actorID, orgID, implied); err != nil {
		return err
	}

	membership, err := s.store.GetActiveMembership(ctx, targetUserID, orgID)
	if err != nil {
		return fmt.Errorf("failed to load target membership: %w", err)
	}

	if err := s.store.UpdateMembershipRole(ctx, membership.ID, roleName); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, actorID, orgID string, perms []string) error {
	if err := s.guard.AuthorizeGrant(ctx, actorID, orgID, perms); err != nil {
		if errors.Is(err, permissions.ErrUnownedPermission) {
			s.security.EscalationAttempt(actorID, orgID, perms)
		}
		return err
	}
	return nil
}

func (s *Service) validateName(name string) (string, error) {
	normalized := identity.NormalizeRoleName(name)
	if normalized == "" {
		return "", ErrInvalidRoleName
	}
	if s.registry.IsSystemRole(normalized) {
		return "", fmt.Errorf("%w: %s", ErrReservedRoleName, normalized)
	}
	return normalized, nil
}

func dedupe(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	var out []string
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
