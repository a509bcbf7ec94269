package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const refreshTokenColumns = `id, user_id, organization_id, token_hash, device_name, issued_at, expires_at, revoked_at`

// CreateRefreshToken inserts a refresh-token record
func (s *PostgresStore) CreateRefreshToken(ctx context.Context, token *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, organization_id, token_hash, device_name, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.conn.ExecContext(ctx, query,
		token.ID, token.UserID, token.OrgID, token.TokenHash, token.DeviceName,
		token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", translateErr(err))
	}
	return nil
}

// GetRefreshTokenByHash retrieves a refresh-token record by its SHA-256 hash
func (s *PostgresStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	return scanRefreshToken(s.conn.QueryRowContext(ctx, query, tokenHash))
}

// GetRefreshTokenForUser retrieves a token by ID scoped to its owner.
// Ownership scoping means a user can only ever address their own sessions.
func (s *PostgresStore) GetRefreshTokenForUser(ctx context.Context, userID, tokenID string) (*RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE id = $1 AND user_id = $2`
	return scanRefreshToken(s.conn.QueryRowContext(ctx, query, tokenID, userID))
}

func scanRefreshToken(row rowScanner) (*RefreshToken, error) {
	t := &RefreshToken{}
	var deviceName sql.NullString
	var revokedAt sql.NullTime

	err := row.Scan(&t.ID, &t.UserID, &t.OrgID, &t.TokenHash, &deviceName,
		&t.IssuedAt, &t.ExpiresAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan refresh token: %w", err)
	}
	if deviceName.Valid {
		t.DeviceName = &deviceName.String
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return t, nil
}

// RevokeRefreshToken marks a single token revoked
func (s *PostgresStore) RevokeRefreshToken(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	result, err := s.conn.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
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

// RevokeAllRefreshTokensForUser revokes every active token a user holds
func (s *PostgresStore) RevokeAllRefreshTokensForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	result, err := s.conn.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return result.RowsAffected()
}

// RevokeAllRefreshTokensForUserInOrg revokes a user's active tokens scoped to one tenant
func (s *PostgresStore) RevokeAllRefreshTokensForUserInOrg(ctx context.Context, userID, orgID string, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked_at = $3
		WHERE user_id = $1 AND organization_id = $2 AND revoked_at IS NULL
	`
	result, err := s.conn.ExecContext(ctx, query, userID, orgID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return result.RowsAffected()
}

// ListActiveRefreshTokens lists a user's non-revoked, non-expired tokens
func (s *PostgresStore) ListActiveRefreshTokens(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY issued_at DESC
	`
	rows, err := s.conn.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// PurgeExpiredRefreshTokens deletes tokens that expired or were revoked
// before the cutoff. Run by the maintenance binary.
func (s *PostgresStore) PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1 OR revoked_at < $1`
	result, err := s.conn.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return result.RowsAffected()
}

// PurgeExpiredMembershipClaims deletes claims whose expiry passed before the cutoff
func (s *PostgresStore) PurgeExpiredMembershipClaims(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM membership_claims WHERE expires_at IS NOT NULL AND expires_at < $1`
	result, err := s.conn.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge membership claims: %w", err)
	}
	return result.RowsAffected()
}

// FinalizeDeletedUsers hard-deletes users whose soft-delete grace window has
// elapsed. Dependent rows are removed by ON DELETE CASCADE.
func (s *PostgresStore) FinalizeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error) {
	query := `DELETE FROM users WHERE deleted_at IS NOT NULL AND deleted_at < $1`
	result, err := s.conn.ExecContext(ctx, query, deletedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to finalize deleted users: %w", err)
	}
	return result.RowsAffected()
}
