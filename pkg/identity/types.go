package identity

import (
	"strings"
	"time"
)

// ManualExternalIDPrefix marks users that were provisioned manually and have
// never been bound to an external identity provider. The first successful
// token exchange replaces the sentinel with the provider's subject ID.
const ManualExternalIDPrefix = "manual:"

// DeletionGracePeriod is how long a soft-deleted user is retained before the
// maintenance job finalizes the deletion.
const DeletionGracePeriod = 30 * 24 * time.Hour

// User represents a platform identity record
type User struct {
	ID              string     `json:"id"`
	ExternalID      string     `json:"external_id"`
	Email           string     `json:"email"`
	NormalizedEmail string     `json:"-"`
	DisplayName     string     `json:"display_name,omitempty"`
	PreferredOrgID  *string    `json:"preferred_org_id,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsDeleted reports whether the user has been soft-deleted.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// HasExternalLogin reports whether the user is bound to an external identity
// provider subject, as opposed to carrying the manual sentinel.
func (u *User) HasExternalLogin() bool {
	return u.ExternalID != "" && !strings.HasPrefix(u.ExternalID, ManualExternalIDPrefix)
}

// InvitePolicy controls who may invite new members into an organization
type InvitePolicy string

const (
	InvitePolicyOwner   InvitePolicy = "owner"   // Only the owner may invite
	InvitePolicyAdmins  InvitePolicy = "admins"  // Owner and admins may invite
	InvitePolicyMembers InvitePolicy = "members" // Any active member may invite
)

// Organization represents a tenant
type Organization struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Slug         string       `json:"slug"`
	OwnerID      string       `json:"owner_id"`
	MaxMembers   int          `json:"max_members"`
	InvitePolicy InvitePolicy `json:"invite_policy"`
	DeletedAt    *time.Time   `json:"deleted_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Membership binds a user to an organization with a role.
// At most one non-left membership may exist per (user, organization) pair;
// the store enforces this with a partial unique index.
type Membership struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"organization_id"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	InvitedBy *string    `json:"invited_by,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

// ClaimKind distinguishes permission grants from denies
type ClaimKind string

const (
	ClaimGrant ClaimKind = "grant"
	ClaimDeny  ClaimKind = "deny"
)

// MembershipClaim is an explicit per-membership permission override.
// Denies always subtract, even when a role implies the same permission.
type MembershipClaim struct {
	ID           string     `json:"id"`
	MembershipID string     `json:"membership_id"`
	Permission   string     `json:"permission"`
	Kind         ClaimKind  `json:"kind"`
	Resource     *string    `json:"resource,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Expired reports whether the claim's expiry is at or before now.
func (c *MembershipClaim) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// CustomRole is a tenant-defined role with its own permission list
type CustomRole struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"organization_id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"-"`
	Permissions    []string  `json:"permissions"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RefreshToken is the persisted record of an opaque refresh token.
// Only the SHA-256 hash of the token value is ever stored.
type RefreshToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	OrgID      string     `json:"organization_id"`
	TokenHash  string     `json:"-"`
	DeviceName *string    `json:"device_name,omitempty"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Usable reports whether the token may still be redeemed at the given time.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// NormalizeEmail lower-cases and trims an email address for lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeRoleName produces the collision-checked form of a role name
func NormalizeRoleName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
