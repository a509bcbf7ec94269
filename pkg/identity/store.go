package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	// Callers racing on provisioning are expected to retry their read path.
	ErrConflict = errors.New("uniqueness conflict")
)

// Store is the persistence contract for the identity core.
//
// InTx runs fn against a transactional view of the store and commits only if
// fn returns nil. Non-transactional backends (the in-memory store used in
// tests and local development) execute fn directly.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error

	// Users
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)
	GetUserByEmail(ctx context.Context, normalizedEmail string) (*User, error)

	// Organizations
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganizationByID(ctx context.Context, id string) (*Organization, error)

	// Memberships
	CreateMembership(ctx context.Context, m *Membership) error
	GetActiveMembership(ctx context.Context, userID, orgID string) (*Membership, error)
	UpdateMembershipRole(ctx context.Context, membershipID, role string) error
	ListActiveMemberships(ctx context.Context, userID string) ([]*Membership, error)
	ListMembershipClaims(ctx context.Context, membershipID string, now time.Time) ([]*MembershipClaim, error)

	// Custom roles
	CreateCustomRole(ctx context.Context, role *CustomRole) error
	UpdateCustomRole(ctx context.Context, role *CustomRole) error
	GetCustomRole(ctx context.Context, orgID, normalizedName string) (*CustomRole, error)

	// Refresh tokens
	CreateRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, now time.Time) error
	RevokeAllRefreshTokensForUser(ctx context.Context, userID string, now time.Time) (int64, error)
	RevokeAllRefreshTokensForUserInOrg(ctx context.Context, userID, orgID string, now time.Time) (int64, error)
	ListActiveRefreshTokens(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error)
	GetRefreshTokenForUser(ctx context.Context, userID, tokenID string) (*RefreshToken, error)

	// Maintenance
	PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
	PurgeExpiredMembershipClaims(ctx context.Context, before time.Time) (int64, error)
	FinalizeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error)
}
