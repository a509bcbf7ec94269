package identity

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all identity-store migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL,
					email VARCHAR(320) NOT NULL,
					normalized_email VARCHAR(320) NOT NULL,
					display_name VARCHAR(255),
					preferred_org_id UUID,
					email_verified_at TIMESTAMPTZ,
					deleted_at TIMESTAMPTZ,
					last_login_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				-- Case-sensitive: external subject IDs are opaque provider strings.
				CREATE UNIQUE INDEX idx_users_external_id ON users(external_id);
				CREATE UNIQUE INDEX idx_users_normalized_email ON users(normalized_email);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL,
					owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					max_members INT NOT NULL DEFAULT 50,
					invite_policy VARCHAR(20) NOT NULL DEFAULT 'admins',
					deleted_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX idx_organizations_slug ON organizations(slug);
			`,
		},
		{
			Version:     3,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					id UUID PRIMARY KEY,
					organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(255) NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					invited_by UUID REFERENCES users(id) ON DELETE SET NULL,
					joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					left_at TIMESTAMPTZ
				);

				-- At most one non-left membership per (user, organization).
				CREATE UNIQUE INDEX idx_memberships_user_org_active
					ON memberships(user_id, organization_id)
					WHERE left_at IS NULL;
				CREATE INDEX idx_memberships_user_active
					ON memberships(user_id)
					WHERE is_active AND left_at IS NULL;
			`,
		},
		{
			Version:     4,
			Description: "Create membership_claims table",
			SQL: `
				CREATE TABLE IF NOT EXISTS membership_claims (
					id UUID PRIMARY KEY,
					membership_id UUID NOT NULL REFERENCES memberships(id) ON DELETE CASCADE,
					permission VARCHAR(255) NOT NULL,
					kind VARCHAR(10) NOT NULL CHECK (kind IN ('grant', 'deny')),
					resource VARCHAR(255),
					expires_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_membership_claims_membership ON membership_claims(membership_id);
			`,
		},
		{
			Version:     5,
			Description: "Create custom_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS custom_roles (
					id UUID PRIMARY KEY,
					organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					normalized_name VARCHAR(255) NOT NULL,
					permissions TEXT[] NOT NULL DEFAULT '{}',
					created_by UUID REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, normalized_name)
				);
			`,
		},
		{
			Version:     6,
			Description: "Create refresh_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS refresh_tokens (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					token_hash CHAR(64) NOT NULL,
					device_name VARCHAR(255),
					issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMPTZ NOT NULL,
					revoked_at TIMESTAMPTZ
				);

				CREATE UNIQUE INDEX idx_refresh_tokens_hash ON refresh_tokens(token_hash);
				CREATE INDEX idx_refresh_tokens_user_active
					ON refresh_tokens(user_id)
					WHERE revoked_at IS NULL;
			`,
		},
		{
			Version:     7,
			Description: "Add preferred_org foreign key",
			SQL: `
				ALTER TABLE users
					ADD CONSTRAINT fk_users_preferred_org
					FOREIGN KEY (preferred_org_id) REFERENCES organizations(id) ON DELETE SET NULL;
			`,
		},
	}
}

// RunMigrations applies all pending migrations in order
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS identity_schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range GetMigrations() {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM identity_schema_migrations WHERE version = $1)`,
			migration.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", migration.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w",
				migration.Version, migration.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO identity_schema_migrations (version, description) VALUES ($1, $2)`,
			migration.Version, migration.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}
	return nil
}
