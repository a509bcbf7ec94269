package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/permissions"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/tokens"
)

// Credentials is the issued credential set returned to callers of exchange,
// refresh and organization switch.
type Credentials struct {
	AccessToken    string   `json:"access_token"`
	RefreshToken   string   `json:"refresh_token"`
	TokenType      string   `json:"token_type"`
	ExpiresIn      int64    `json:"expires_in"`
	UserID         string   `json:"user_id"`
	OrganizationID string   `json:"organization_id"`
	Role           string   `json:"role"`
	Permissions    []string `json:"permissions"`
}

// IssueOptions carries per-request issuance parameters
type IssueOptions struct {
	Scopes     []string
	ClientApp  string
	DeviceName *string
}

// CredentialIssuer performs the issuing tail shared by every credential
// flow: recompute permissions from current state, mint a token pair, persist
// the refresh-token hash. Permissions are always recomputed here; no flow is
// allowed to carry them over from a prior token.
type CredentialIssuer struct {
	store  identity.Store
	perms  permissions.Calculator
	issuer *tokens.Issuer
	now    func() time.Time
}

// NewCredentialIssuer creates a credential issuer
func NewCredentialIssuer(store identity.Store, perms permissions.Calculator, issuer *tokens.Issuer) *CredentialIssuer {
	return &CredentialIssuer{store: store, perms: perms, issuer: issuer, now: time.Now}
}

// Issue computes the user's effective permissions in the membership's
// organization, mints a token pair and records the refresh token.
func (ci *CredentialIssuer) Issue(ctx context.Context, user *identity.User, membership *identity.Membership, opts IssueOptions) (*Credentials, error) {
	set, err := ci.perms.Calculate(ctx, user.ID, membership.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute permissions: %w", err)
	}
	permList := set.List()

	pair, err := ci.issuer.GenerateTokenPair(ctx, tokens.AccessClaims{
		UserID:         user.ID,
		OrganizationID: membership.OrgID,
		Email:          user.Email,
		Role:           membership.Role,
		Permissions:    permList,
		ClientApp:      opts.ClientApp,
		Scopes:         opts.Scopes,
	})
	if err != nil {
		return nil, err
	}

	record := &identity.RefreshToken{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		OrgID:      membership.OrgID,
		TokenHash:  pair.RefreshTokenHash,
		DeviceName: opts.DeviceName,
		IssuedAt:   pair.IssuedAt,
		ExpiresAt:  pair.RefreshExpiresAt,
	}
	if err := ci.store.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}

	return &Credentials{
		AccessToken:    pair.AccessToken,
		RefreshToken:   pair.RefreshToken,
		TokenType:      "Bearer",
		ExpiresIn:      pair.ExpiresIn(),
		UserID:         user.ID,
		OrganizationID: membership.OrgID,
		Role:           membership.Role,
		Permissions:    permList,
	}, nil
}
