package roles

import "sort"

// System role names. These are reserved: tenant-defined roles may not reuse
// them, and the registry's permission sets are fixed at process start.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Permission strings follow the resource:action convention
const (
	PermOrgRead       = "org:read"
	PermOrgUpdate     = "org:update"
	PermOrgDelete     = "org:delete"
	PermMembersRead   = "members:read"
	PermMembersInvite = "members:invite"
	PermMembersRemove = "members:remove"
	PermRolesRead     = "roles:read"
	PermRolesManage   = "roles:manage"
	PermTokensRead    = "tokens:read"
	PermTokensRevoke  = "tokens:revoke"
	PermBillingRead   = "billing:read"
	PermBillingManage = "billing:manage"
	PermAuditRead     = "audit:read"
)

// Registry is the immutable catalogue of system roles and their implied
// permissions. It is built once and treated as read-only configuration.
type Registry struct {
	implied map[string][]string
}

// NewRegistry builds the default system-role catalogue.
// Each tier is a strict superset of the one below it.
func NewRegistry() *Registry {
	viewer := []string{
		PermOrgRead,
		PermMembersRead,
		PermRolesRead,
	}
	member := append([]string{
		PermTokensRead,
		PermBillingRead,
	}, viewer...)
	admin := append([]string{
		PermOrgUpdate,
		PermMembersInvite,
		PermMembersRemove,
		PermRolesManage,
		PermTokensRevoke,
		PermAuditRead,
	}, member...)
	owner := append([]string{
		PermOrgDelete,
		PermBillingManage,
	}, admin...)

	return &Registry{
		implied: map[string][]string{
			RoleOwner:  sorted(owner),
			RoleAdmin:  sorted(admin),
			RoleMember: sorted(member),
			RoleViewer: sorted(viewer),
		},
	}
}

// Implied returns the permission set a system role carries.
// The second return value is false for unknown (custom) role names.
func (r *Registry) Implied(role string) ([]string, bool) {
	perms, ok := r.implied[role]
	if !ok {
		return nil, false
	}
	// Copy so callers cannot mutate the catalogue.
	out := make([]string, len(perms))
	copy(out, perms)
	return out, true
}

// IsSystemRole reports whether the name is a reserved system role
func (r *Registry) IsSystemRole(role string) bool {
	_, ok := r.implied[role]
	return ok
}

// SystemRoles returns the reserved role names in stable order
func (r *Registry) SystemRoles() []string {
	names := make([]string, 0, len(r.implied))
	for name := range r.implied {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllPermissions returns every permission known to the catalogue
func (r *Registry) AllPermissions() []string {
	seen := make(map[string]struct{})
	for _, perms := range r.implied {
		for _, p := range perms {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func sorted(perms []string) []string {
	out := make([]string, len(perms))
	copy(out, perms)
	sort.Strings(out)
	return out
}
