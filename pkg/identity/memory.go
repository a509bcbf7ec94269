package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a non-transactional Store used in tests and local
// development. InTx executes directly; writes are applied immediately, so it
// does not provide rollback semantics.
type MemoryStore struct {
	mu sync.RWMutex

	users         map[string]*User
	orgs          map[string]*Organization
	memberships   map[string]*Membership
	claims        map[string]*MembershipClaim
	customRoles   map[string]*CustomRole
	refreshTokens map[string]*RefreshToken
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*User),
		orgs:          make(map[string]*Organization),
		memberships:   make(map[string]*Membership),
		claims:        make(map[string]*MembershipClaim),
		customRoles:   make(map[string]*CustomRole),
		refreshTokens: make(map[string]*RefreshToken),
	}
}

// InTx executes fn directly against the store
func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}

// CreateUser inserts a user, enforcing external-ID and email uniqueness
func (s *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.ExternalID == user.ExternalID {
			return fmt.Errorf("%w: users.external_id", ErrConflict)
		}
		if existing.NormalizedEmail == user.NormalizedEmail {
			return fmt.Errorf("%w: users.normalized_email", ErrConflict)
		}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// UpdateUser replaces a user's record
func (s *MemoryStore) UpdateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// GetUserByID retrieves a user by internal ID
func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

// GetUserByExternalID retrieves a user by external subject ID (case-sensitive)
func (s *MemoryStore) GetUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.ExternalID == externalID {
			return cloneUser(user), nil
		}
	}
	return nil, ErrNotFound
}

// GetUserByEmail retrieves a user by normalized email
func (s *MemoryStore) GetUserByEmail(ctx context.Context, normalizedEmail string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.NormalizedEmail == normalizedEmail {
			return cloneUser(user), nil
		}
	}
	return nil, ErrNotFound
}

// CreateOrganization inserts an organization, enforcing slug uniqueness
func (s *MemoryStore) CreateOrganization(ctx context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orgs {
		if existing.Slug == org.Slug {
			return fmt.Errorf("%w: organizations.slug", ErrConflict)
		}
	}
	copied := *org
	s.orgs[org.ID] = &copied
	return nil
}

// GetOrganizationByID retrieves an organization
func (s *MemoryStore) GetOrganizationByID(ctx context.Context, id string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *org
	return &copied, nil
}

// CreateMembership inserts a membership, enforcing one non-left membership
// per (user, organization)
func (s *MemoryStore) CreateMembership(ctx context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.memberships {
		if existing.UserID == m.UserID && existing.OrgID == m.OrgID && existing.LeftAt == nil {
			return fmt.Errorf("%w: memberships.user_org_active", ErrConflict)
		}
	}
	copied := *m
	s.memberships[m.ID] = &copied
	return nil
}

// GetActiveMembership retrieves the active membership for a (user, org) pair
func (s *MemoryStore) GetActiveMembership(ctx context.Context, userID, orgID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.UserID == userID && m.OrgID == orgID && m.IsActive && m.LeftAt == nil {
			copied := *m
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// ListActiveMemberships lists a user's active memberships ordered by join time
func (s *MemoryStore) ListActiveMemberships(ctx context.Context, userID string) ([]*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var memberships []*Membership
	for _, m := range s.memberships {
		if m.UserID == userID && m.IsActive && m.LeftAt == nil {
			copied := *m
			memberships = append(memberships, &copied)
		}
	}
	sort.Slice(memberships, func(i, j int) bool {
		return memberships[i].JoinedAt.Before(memberships[j].JoinedAt)
	})
	return memberships, nil
}

// UpdateMembershipRole changes the role on a membership
func (s *MemoryStore) UpdateMembershipRole(ctx context.Context, membershipID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[membershipID]
	if !ok || m.LeftAt != nil {
		return ErrNotFound
	}
	m.Role = role
	return nil
}

// SetMembership upserts a membership record directly. Test helper.
func (s *MemoryStore) SetMembership(m *Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	s.memberships[m.ID] = &copied
}

// AddMembershipClaim inserts a claim record directly. Test helper.
func (s *MemoryStore) AddMembershipClaim(c *MembershipClaim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *c
	s.claims[c.ID] = &copied
}

// ListMembershipClaims lists non-expired claims for a membership
func (s *MemoryStore) ListMembershipClaims(ctx context.Context, membershipID string, now time.Time) ([]*MembershipClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var claims []*MembershipClaim
	for _, c := range s.claims {
		if c.MembershipID == membershipID && !c.Expired(now) {
			copied := *c
			claims = append(claims, &copied)
		}
	}
	sort.Slice(claims, func(i, j int) bool {
		return claims[i].CreatedAt.Before(claims[j].CreatedAt)
	})
	return claims, nil
}

// CreateCustomRole inserts a role, enforcing per-org normalized-name uniqueness
func (s *MemoryStore) CreateCustomRole(ctx context.Context, role *CustomRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.customRoles {
		if existing.OrgID == role.OrgID && existing.NormalizedName == role.NormalizedName {
			return fmt.Errorf("%w: custom_roles.normalized_name", ErrConflict)
		}
	}
	s.customRoles[role.ID] = cloneCustomRole(role)
	return nil
}

// UpdateCustomRole replaces a custom role
func (s *MemoryStore) UpdateCustomRole(ctx context.Context, role *CustomRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customRoles[role.ID]
	if !ok || existing.OrgID != role.OrgID {
		return ErrNotFound
	}
	s.customRoles[role.ID] = cloneCustomRole(role)
	return nil
}

// GetCustomRole retrieves a role by normalized name
func (s *MemoryStore) GetCustomRole(ctx context.Context, orgID, normalizedName string) (*CustomRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, role := range s.customRoles {
		if role.OrgID == orgID && role.NormalizedName == normalizedName {
			return cloneCustomRole(role), nil
		}
	}
	return nil, ErrNotFound
}

// CreateRefreshToken inserts a refresh-token record
func (s *MemoryStore) CreateRefreshToken(ctx context.Context, token *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.refreshTokens {
		if existing.TokenHash == token.TokenHash {
			return fmt.Errorf("%w: refresh_tokens.token_hash", ErrConflict)
		}
	}
	copied := *token
	s.refreshTokens[token.ID] = &copied
	return nil
}

// GetRefreshTokenByHash retrieves a token record by hash
func (s *MemoryStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.refreshTokens {
		if t.TokenHash == tokenHash {
			copied := *t
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// GetRefreshTokenForUser retrieves a token by ID scoped to its owner
func (s *MemoryStore) GetRefreshTokenForUser(ctx context.Context, userID, tokenID string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.refreshTokens[tokenID]
	if !ok || t.UserID != userID {
		return nil, ErrNotFound
	}
	copied := *t
	return &copied, nil
}

// RevokeRefreshToken marks one token revoked
func (s *MemoryStore) RevokeRefreshToken(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refreshTokens[id]
	if !ok || t.RevokedAt != nil {
		return ErrNotFound
	}
	revokedAt := now
	t.RevokedAt = &revokedAt
	return nil
}

// RevokeAllRefreshTokensForUser revokes every active token for a user
func (s *MemoryStore) RevokeAllRefreshTokensForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, t := range s.refreshTokens {
		if t.UserID == userID && t.RevokedAt == nil {
			revokedAt := now
			t.RevokedAt = &revokedAt
			count++
		}
	}
	return count, nil
}

// RevokeAllRefreshTokensForUserInOrg revokes active tokens for one tenant
func (s *MemoryStore) RevokeAllRefreshTokensForUserInOrg(ctx context.Context, userID, orgID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, t := range s.refreshTokens {
		if t.UserID == userID && t.OrgID == orgID && t.RevokedAt == nil {
			revokedAt := now
			t.RevokedAt = &revokedAt
			count++
		}
	}
	return count, nil
}

// ListActiveRefreshTokens lists non-revoked, non-expired tokens newest first
func (s *MemoryStore) ListActiveRefreshTokens(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []*RefreshToken
	for _, t := range s.refreshTokens {
		if t.UserID == userID && t.Usable(now) {
			copied := *t
			tokens = append(tokens, &copied)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].IssuedAt.After(tokens[j].IssuedAt)
	})
	return tokens, nil
}

// PurgeExpiredRefreshTokens deletes expired or revoked tokens before the cutoff
func (s *MemoryStore) PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, t := range s.refreshTokens {
		if t.ExpiresAt.Before(before) || (t.RevokedAt != nil && t.RevokedAt.Before(before)) {
			delete(s.refreshTokens, id)
			count++
		}
	}
	return count, nil
}

// PurgeExpiredMembershipClaims deletes claims expired before the cutoff
func (s *MemoryStore) PurgeExpiredMembershipClaims(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, c := range s.claims {
		if c.ExpiresAt != nil && c.ExpiresAt.Before(before) {
			delete(s.claims, id)
			count++
		}
	}
	return count, nil
}

// FinalizeDeletedUsers hard-deletes users past the soft-delete grace window
func (s *MemoryStore) FinalizeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, u := range s.users {
		if u.DeletedAt != nil && u.DeletedAt.Before(deletedBefore) {
			delete(s.users, id)
			count++
		}
	}
	return count, nil
}

func cloneUser(u *User) *User {
	copied := *u
	return &copied
}

func cloneCustomRole(r *CustomRole) *CustomRole {
	copied := *r
	copied.Permissions = append([]string(nil), r.Permissions...)
	return &copied
}
