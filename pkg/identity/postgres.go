package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db   *sql.DB
	conn dbtx
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, conn: db}
}

// InTx runs fn inside a single transaction. A nil return commits; any error
// rolls back every write fn performed.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already inside a transaction; run directly.
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&PostgresStore{conn: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// translateErr maps driver-level errors onto the store's sentinel errors
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	return err
}

// CreateUser inserts a new user row
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, external_id, email, normalized_email, display_name,
		                   preferred_org_id, email_verified_at, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.conn.ExecContext(ctx, query,
		user.ID, user.ExternalID, user.Email, user.NormalizedEmail, user.DisplayName,
		user.PreferredOrgID, user.EmailVerifiedAt, user.LastLoginAt, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateErr(err))
	}
	return nil
}

// UpdateUser updates a user's mutable fields
func (s *PostgresStore) UpdateUser(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET external_id = $2, email = $3, normalized_email = $4, display_name = $5,
		    preferred_org_id = $6, email_verified_at = $7, deleted_at = $8,
		    last_login_at = $9, updated_at = $10
		WHERE id = $1
	`
	result, err := s.conn.ExecContext(ctx, query,
		user.ID, user.ExternalID, user.Email, user.NormalizedEmail, user.DisplayName,
		user.PreferredOrgID, user.EmailVerifiedAt, user.DeletedAt, user.LastLoginAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translateErr(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const userColumns = `id, external_id, email, normalized_email, display_name,
	preferred_org_id, email_verified_at, deleted_at, last_login_at, created_at, updated_at`

// GetUserByID retrieves a user by internal ID
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(s.conn.QueryRowContext(ctx, query, id))
}

// GetUserByExternalID retrieves a user by its external-auth subject ID.
// The lookup is case-sensitive; the column carries a plain unique index.
func (s *PostgresStore) GetUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	return s.scanUser(s.conn.QueryRowContext(ctx, query, externalID))
}

// GetUserByEmail retrieves a user by normalized email
func (s *PostgresStore) GetUserByEmail(ctx context.Context, normalizedEmail string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE normalized_email = $1`
	return s.scanUser(s.conn.QueryRowContext(ctx, query, normalizedEmail))
}

func (s *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var displayName sql.NullString
	var preferredOrgID sql.NullString
	var emailVerifiedAt, deletedAt, lastLoginAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.ExternalID, &user.Email, &user.NormalizedEmail, &displayName,
		&preferredOrgID, &emailVerifiedAt, &deletedAt, &lastLoginAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if displayName.Valid {
		user.DisplayName = displayName.String
	}
	if preferredOrgID.Valid {
		user.PreferredOrgID = &preferredOrgID.String
	}
	if emailVerifiedAt.Valid {
		user.EmailVerifiedAt = &emailVerifiedAt.Time
	}
	if deletedAt.Valid {
		user.DeletedAt = &deletedAt.Time
	}
	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}
	return user, nil
}

// CreateOrganization inserts a new organization row
func (s *PostgresStore) CreateOrganization(ctx context.Context, org *Organization) error {
	query := `
		INSERT INTO organizations (id, name, slug, owner_id, max_members, invite_policy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.conn.ExecContext(ctx, query,
		org.ID, org.Name, org.Slug, org.OwnerID, org.MaxMembers, org.InvitePolicy,
		org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", translateErr(err))
	}
	return nil
}

// GetOrganizationByID retrieves an organization by ID
func (s *PostgresStore) GetOrganizationByID(ctx context.Context, id string) (*Organization, error) {
	query := `
		SELECT id, name, slug, owner_id, max_members, invite_policy, deleted_at, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	org := &Organization{}
	var deletedAt sql.NullTime
	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&org.ID, &org.Name, &org.Slug, &org.OwnerID, &org.MaxMembers, &org.InvitePolicy,
		&deletedAt, &org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if deletedAt.Valid {
		org.DeletedAt = &deletedAt.Time
	}
	return org, nil
}

// CreateMembership inserts a new membership row
func (s *PostgresStore) CreateMembership(ctx context.Context, m *Membership) error {
	query := `
		INSERT INTO memberships (id, organization_id, user_id, role, is_active, invited_by, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.conn.ExecContext(ctx, query,
		m.ID, m.OrgID, m.UserID, m.Role, m.IsActive, m.InvitedBy, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", translateErr(err))
	}
	return nil
}

// UpdateMembershipRole changes the role on a membership row
func (s *PostgresStore) UpdateMembershipRole(ctx context.Context, membershipID, role string) error {
	query := `UPDATE memberships SET role = $2 WHERE id = $1 AND left_at IS NULL`
	result, err := s.conn.ExecContext(ctx, query, membershipID, role)
	if err != nil {
		return fmt.Errorf("failed to update membership role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const membershipColumns = `id, organization_id, user_id, role, is_active, invited_by, joined_at, left_at`

// GetActiveMembership retrieves the active, non-left membership for a
// (user, organization) pair
func (s *PostgresStore) GetActiveMembership(ctx context.Context, userID, orgID string) (*Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE user_id = $1 AND organization_id = $2 AND is_active AND left_at IS NULL
	`
	return scanMembership(s.conn.QueryRowContext(ctx, query, userID, orgID))
}

// ListActiveMemberships lists a user's active memberships ordered by join time
func (s *PostgresStore) ListActiveMemberships(ctx context.Context, userID string) ([]*Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE user_id = $1 AND is_active AND left_at IS NULL
		ORDER BY joined_at ASC
	`
	rows, err := s.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMembership(row rowScanner) (*Membership, error) {
	m := &Membership{}
	var invitedBy sql.NullString
	var leftAt sql.NullTime

	err := row.Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.IsActive, &invitedBy, &m.JoinedAt, &leftAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}
	if invitedBy.Valid {
		m.InvitedBy = &invitedBy.String
	}
	if leftAt.Valid {
		m.LeftAt = &leftAt.Time
	}
	return m, nil
}

// ListMembershipClaims lists the non-expired claims attached to a membership
func (s *PostgresStore) ListMembershipClaims(ctx context.Context, membershipID string, now time.Time) ([]*MembershipClaim, error) {
	query := `
		SELECT id, membership_id, permission, kind, resource, expires_at, created_at
		FROM membership_claims
		WHERE membership_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at ASC
	`
	rows, err := s.conn.QueryContext(ctx, query, membershipID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership claims: %w", err)
	}
	defer rows.Close()

	var claims []*MembershipClaim
	for rows.Next() {
		c := &MembershipClaim{}
		var resource sql.NullString
		var expiresAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.MembershipID, &c.Permission, &c.Kind, &resource, &expiresAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership claim: %w", err)
		}
		if resource.Valid {
			c.Resource = &resource.String
		}
		if expiresAt.Valid {
			c.ExpiresAt = &expiresAt.Time
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// CreateCustomRole inserts a tenant-defined role
func (s *PostgresStore) CreateCustomRole(ctx context.Context, role *CustomRole) error {
	query := `
		INSERT INTO custom_roles (id, organization_id, name, normalized_name, permissions, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.conn.ExecContext(ctx, query,
		role.ID, role.OrgID, role.Name, role.NormalizedName, pq.Array(role.Permissions),
		role.CreatedBy, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create custom role: %w", translateErr(err))
	}
	return nil
}

// UpdateCustomRole replaces a custom role's name and permission list
func (s *PostgresStore) UpdateCustomRole(ctx context.Context, role *CustomRole) error {
	query := `
		UPDATE custom_roles
		SET name = $3, normalized_name = $4, permissions = $5, updated_at = $6
		WHERE id = $1 AND organization_id = $2
	`
	result, err := s.conn.ExecContext(ctx, query,
		role.ID, role.OrgID, role.Name, role.NormalizedName, pq.Array(role.Permissions), role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update custom role: %w", translateErr(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCustomRole retrieves a tenant role by normalized name
func (s *PostgresStore) GetCustomRole(ctx context.Context, orgID, normalizedName string) (*CustomRole, error) {
	query := `
		SELECT id, organization_id, name, normalized_name, permissions, created_by, created_at, updated_at
		FROM custom_roles
		WHERE organization_id = $1 AND normalized_name = $2
	`
	role := &CustomRole{}
	err := s.conn.QueryRowContext(ctx, query, orgID, normalizedName).Scan(
		&role.ID, &role.OrgID, &role.Name, &role.NormalizedName,
		pq.Array(&role.Permissions), &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get custom role: %w", err)
	}
	return role, nil
}
