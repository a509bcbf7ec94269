package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/audit"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/events"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/tokens"
)

var (
	// ErrInvalidRefreshToken covers every refresh rejection: unknown hash,
	// expired, revoked, deleted user, missing membership. One error on
	// purpose; refresh callers learn nothing beyond "start over".
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrSessionNotFound is returned when a session ID does not exist or is
	// not owned by the requesting user.
	ErrSessionNotFound = errors.New("session not found")
)

// RefreshState is the re-validated identity state a refresh is issued from
type RefreshState struct {
	User       *identity.User
	Membership *identity.Membership
}

// Session is the caller-visible view of an active refresh token
type Session struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	DeviceName     *string   `json:"device_name,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Lifecycle manages refresh tokens: redemption with full state re-validation,
// rotation, revocation and session listing.
type Lifecycle struct {
	store     identity.Store
	creds     *CredentialIssuer
	publisher *events.Publisher
	security  *audit.SecurityLogger
	now       func() time.Time
}

// NewLifecycle creates a refresh-token lifecycle manager
func NewLifecycle(store identity.Store, creds *CredentialIssuer, publisher *events.Publisher, security *audit.SecurityLogger) *Lifecycle {
	return &Lifecycle{
		store:     store,
		creds:     creds,
		publisher: publisher,
		security:  security,
		now:       time.Now,
	}
}

// ReloadForRefresh re-reads the user and their active membership in the
// hinted organization (or the user's preferred one). Returns nil state, nil
// error when any check fails: the caller must reject the refresh outright
// rather than fall back to anything carried in the old token.
func (l *Lifecycle) ReloadForRefresh(ctx context.Context, userID, orgHint string) (*RefreshState, error) {
	user, err := l.store.GetUserByID(ctx, userID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	if user.IsDeleted() {
		return nil, nil
	}

	orgID := orgHint
	if orgID == "" {
		if user.PreferredOrgID == nil {
			return nil, nil
		}
		orgID = *user.PreferredOrgID
	}

	membership, err := l.store.GetActiveMembership(ctx, userID, orgID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reload membership: %w", err)
	}
	if !membership.IsActive || membership.LeftAt != nil {
		return nil, nil
	}

	return &RefreshState{User: user, Membership: membership}, nil
}

// Refresh redeems a raw refresh token for a fresh credential set. The used
// token is revoked and replaced; permissions are recomputed from current
// state, never carried over.
func (l *Lifecycle) Refresh(ctx context.Context, rawToken string, opts IssueOptions) (*Credentials, error) {
	now := l.now().UTC()

	record, err := l.store.GetRefreshTokenByHash(ctx, tokens.HashRefreshToken(rawToken))
	if errors.Is(err, identity.ErrNotFound) {
		l.security.RefreshRejected("", "", "unknown token")
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if !record.Usable(now) {
		l.security.RefreshRejected(record.UserID, record.OrgID, "token expired or revoked")
		return nil, ErrInvalidRefreshToken
	}

	state, err := l.ReloadForRefresh(ctx, record.UserID, record.OrgID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		l.security.RefreshRejected(record.UserID, record.OrgID, "identity state no longer valid")
		return nil, ErrInvalidRefreshToken
	}

	// Rotate: the redeemed token dies with this call.
	if err := l.store.RevokeRefreshToken(ctx, record.ID, now); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	if opts.DeviceName == nil {
		opts.DeviceName = record.DeviceName
	}
	creds, err := l.creds.Issue(ctx, state.User, state.Membership, opts)
	if err != nil {
		return nil, err
	}

	l.publisher.Emit(ctx, events.New(events.TypeSessionRefreshed, state.User.ID, state.Membership.OrgID, now, nil))
	return creds, nil
}

// ValidateToken reports whether a raw refresh token is currently redeemable
func (l *Lifecycle) ValidateToken(ctx context.Context, rawToken string) (bool, error) {
	record, err := l.store.GetRefreshTokenByHash(ctx, tokens.HashRefreshToken(rawToken))
	if errors.Is(err, identity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	return record.Usable(l.now().UTC()), nil
}

// Revoke invalidates one refresh token by its raw value
func (l *Lifecycle) Revoke(ctx context.Context, rawToken string) error {
	now := l.now().UTC()
	record, err := l.store.GetRefreshTokenByHash(ctx, tokens.HashRefreshToken(rawToken))
	if errors.Is(err, identity.ErrNotFound) {
		return ErrInvalidRefreshToken
	}
	if err != nil {
		return fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if err := l.store.RevokeRefreshToken(ctx, record.ID, now); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	l.publisher.Emit(ctx, events.New(events.TypeSessionRevoked, record.UserID, record.OrgID, now, nil))
	return nil
}

// RevokeAllForUser revokes every active refresh token the user holds
func (l *Lifecycle) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	now := l.now().UTC()
	n, err := l.store.RevokeAllRefreshTokensForUser(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	if n > 0 {
		l.publisher.Emit(ctx, events.New(events.TypeSessionRevoked, userID, "", now, map[string]interface{}{
			"revoked": n,
			"scope":   "user",
		}))
	}
	return n, nil
}

// RevokeAllForUserInOrg revokes the user's active refresh tokens scoped to
// one organization
func (l *Lifecycle) RevokeAllForUserInOrg(ctx context.Context, userID, orgID string) (int64, error) {
	now := l.now().UTC()
	n, err := l.store.RevokeAllRefreshTokensForUserInOrg(ctx, userID, orgID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	if n > 0 {
		l.publisher.Emit(ctx, events.New(events.TypeSessionRevoked, userID, orgID, now, map[string]interface{}{
			"revoked": n,
			"scope":   "organization",
		}))
	}
	return n, nil
}

// ListActiveSessions returns the user's non-revoked, non-expired sessions
func (l *Lifecycle) ListActiveSessions(ctx context.Context, userID string) ([]*Session, error) {
	records, err := l.store.ListActiveRefreshTokens(ctx, userID, l.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]*Session, 0, len(records))
	for _, r := range records {
		sessions = append(sessions, &Session{
			ID:             r.ID,
			OrganizationID: r.OrgID,
			DeviceName:     r.DeviceName,
			IssuedAt:       r.IssuedAt,
			ExpiresAt:      r.ExpiresAt,
		})
	}
	return sessions, nil
}

// RevokeSession revokes one session by ID, scoped to ownership: a user may
// only revoke their own sessions.
func (l *Lifecycle) RevokeSession(ctx context.Context, userID, sessionID string) error {
	now := l.now().UTC()
	record, err := l.store.GetRefreshTokenForUser(ctx, userID, sessionID)
	if errors.Is(err, identity.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if err := l.store.RevokeRefreshToken(ctx, record.ID, now); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	l.publisher.Emit(ctx, events.New(events.TypeSessionRevoked, userID, record.OrgID, now, nil))
	return nil
}
