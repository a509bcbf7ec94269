package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/audit"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/events"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/roles"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/sessions"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/tokens"
)

// Tagged failures returned to callers. Infra failures (store, cache, signing)
// surface as wrapped errors instead and are retryable.
var (
	// ErrInvalidAssertion covers every validation failure on the inbound
	// assertion. Deliberately unspecific: the caller must not learn which
	// check failed.
	ErrInvalidAssertion = errors.New("invalid exchange assertion")

	// ErrReplayDetected is returned when the assertion's jti was already consumed
	ErrReplayDetected = errors.New("exchange assertion already used")

	// ErrExternalAuthConflict is returned when the assertion's email resolves
	// to an account already bound to a different external subject.
	ErrExternalAuthConflict = errors.New("external identity conflict")
)

// DefaultOrganizationName is the tenant created on a user's first exchange
const DefaultOrganizationName = "Default Organization"

// Validator verifies an inbound exchange assertion. nil claims mean
// rejection; reason is for the security log only.
type Validator interface {
	Validate(ctx context.Context, raw string) (claims *tokens.ExchangeClaims, reason string)
}

// Coordinator orchestrates the token exchange: assertion validation, replay
// claim, atomic user and tenant provisioning, permission computation and
// credential issuance.
type Coordinator struct {
	validator Validator
	replay    ReplayGuard
	store     identity.Store
	creds     *sessions.CredentialIssuer
	publisher *events.Publisher
	security  *audit.SecurityLogger
	now       func() time.Time
}

// NewCoordinator creates an exchange coordinator
func NewCoordinator(validator Validator, replay ReplayGuard, store identity.Store, creds *sessions.CredentialIssuer, publisher *events.Publisher, security *audit.SecurityLogger) *Coordinator {
	return &Coordinator{
		validator: validator,
		replay:    replay,
		store:     store,
		creds:     creds,
		publisher: publisher,
		security:  security,
		now:       time.Now,
	}
}

type provisioned struct {
	user       *identity.User
	membership *identity.Membership
	newUser    bool
	newOrg     bool
}

// Exchange converts an external assertion into first-party credentials.
// The replay claim happens before any store write; provisioning happens
// before permission computation and signing.
func (c *Coordinator) Exchange(ctx context.Context, assertion string, scopes []string) (*sessions.Credentials, error) {
	claims, reason := c.validator.Validate(ctx, assertion)
	if claims == nil {
		c.security.InvalidAssertion(reason)
		return nil, ErrInvalidAssertion
	}
	if claims.Purpose != tokens.PurposeTokenExchange {
		c.security.InvalidAssertion("wrong purpose claim")
		return nil, ErrInvalidAssertion
	}
	if claims.Subject == "" || claims.Email == "" || claims.JTI == "" {
		c.security.InvalidAssertion("missing required claim")
		return nil, ErrInvalidAssertion
	}

	ok, err := c.replay.Claim(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("replay guard unavailable: %w", err)
	}
	if !ok {
		c.security.ReplayDetected(claims.JTI, claims.Subject)
		return nil, ErrReplayDetected
	}

	prov, err := c.provision(ctx, claims)
	if err != nil {
		return nil, err
	}

	creds, err := c.creds.Issue(ctx, prov.user, prov.membership, sessions.IssueOptions{
		Scopes:    scopes,
		ClientApp: claims.ClientApp,
	})
	if err != nil {
		return nil, err
	}

	c.publish(ctx, prov)
	return creds, nil
}

// provision resolves or creates the user and their tenant in one transaction.
// A uniqueness conflict means another exchange for the same new user won the
// race; the losing attempt re-reads instead of surfacing the conflict.
func (c *Coordinator) provision(ctx context.Context, claims *tokens.ExchangeClaims) (*provisioned, error) {
	prov, err := c.provisionOnce(ctx, claims)
	if errors.Is(err, identity.ErrConflict) {
		prov, err = c.provisionOnce(ctx, claims)
	}
	if err != nil {
		return nil, err
	}
	return prov, nil
}

func (c *Coordinator) provisionOnce(ctx context.Context, claims *tokens.ExchangeClaims) (*provisioned, error) {
	var result provisioned
	now := c.now().UTC()

	err := c.store.InTx(ctx, func(tx identity.Store) error {
		user, created, err := c.resolveUser(ctx, tx, claims, now)
		if err != nil {
			return err
		}
		result.user = user
		result.newUser = created

		membership, createdOrg, err := c.resolveMembership(ctx, tx, user, now)
		if err != nil {
			return err
		}
		result.membership = membership
		result.newOrg = createdOrg

		user.LastLoginAt = &now
		user.UpdatedAt = now
		if err := tx.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to record login: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Coordinator) resolveUser(ctx context.Context, tx identity.Store, claims *tokens.ExchangeClaims, now time.Time) (*identity.User, bool, error) {
	user, err := tx.GetUserByExternalID(ctx, claims.Subject)
	if err == nil {
		if user.IsDeleted() {
			c.security.InvalidAssertion("subject resolves to deleted user")
			return nil, false, ErrInvalidAssertion
		}
		return user, false, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to resolve user by subject: %w", err)
	}

	user, err = tx.GetUserByEmail(ctx, identity.NormalizeEmail(claims.Email))
	if err == nil {
		if user.IsDeleted() {
			c.security.InvalidAssertion("email resolves to deleted user")
			return nil, false, ErrInvalidAssertion
		}
		if user.HasExternalLogin() && user.ExternalID != claims.Subject {
			c.security.ExternalAuthConflict(claims.Email, claims.Subject)
			return nil, false, ErrExternalAuthConflict
		}
		// Manually provisioned account: bind the external login now.
		user.ExternalID = claims.Subject
		user.EmailVerifiedAt = &now
		user.UpdatedAt = now
		if err := tx.UpdateUser(ctx, user); err != nil {
			return nil, false, fmt.Errorf("failed to bind external login: %w", err)
		}
		return user, false, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to resolve user by email: %w", err)
	}

	user = &identity.User{
		ID:              uuid.New().String(),
		ExternalID:      claims.Subject,
		Email:           claims.Email,
		NormalizedEmail: identity.NormalizeEmail(claims.Email),
		DisplayName:     displayNameFromEmail(claims.Email),
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	return user, true, nil
}

func (c *Coordinator) resolveMembership(ctx context.Context, tx identity.Store, user *identity.User, now time.Time) (*identity.Membership, bool, error) {
	memberships, err := tx.ListActiveMemberships(ctx, user.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load memberships: %w", err)
	}

	if len(memberships) == 0 {
		membership, err := c.createDefaultOrganization(ctx, tx, user, now)
		if err != nil {
			return nil, false, err
		}
		return membership, true, nil
	}

	if user.PreferredOrgID != nil {
		for _, m := range memberships {
			if m.OrgID == *user.PreferredOrgID {
				return m, false, nil
			}
		}
	}
	// Preferred tenant gone or never set: fall back to the earliest
	// membership. ListActiveMemberships orders by join time.
	return memberships[0], false, nil
}

func (c *Coordinator) createDefaultOrganization(ctx context.Context, tx identity.Store, user *identity.User, now time.Time) (*identity.Membership, error) {
	org := &identity.Organization{
		ID:           uuid.New().String(),
		Name:         DefaultOrganizationName,
		Slug:         defaultOrgSlug(user),
		OwnerID:      user.ID,
		InvitePolicy: identity.InvitePolicyAdmins,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.CreateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create default organization: %w", err)
	}

	membership := &identity.Membership{
		ID:       uuid.New().String(),
		OrgID:    org.ID,
		UserID:   user.ID,
		Role:     roles.RoleOwner,
		IsActive: true,
		JoinedAt: now,
	}
	if err := tx.CreateMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	user.PreferredOrgID = &org.ID
	return membership, nil
}

func (c *Coordinator) publish(ctx context.Context, prov *provisioned) {
	now := c.now()
	if prov.newUser {
		c.publisher.Emit(ctx, events.New(events.TypeUserProvisioned, prov.user.ID, prov.membership.OrgID, now, map[string]interface{}{
			"email": prov.user.Email,
		}))
	}
	if prov.newOrg {
		c.publisher.Emit(ctx, events.New(events.TypeOrganizationCreated, prov.user.ID, prov.membership.OrgID, now, nil))
	}
	c.publisher.Emit(ctx, events.New(events.TypeSessionIssued, prov.user.ID, prov.membership.OrgID, now, map[string]interface{}{
		"role": prov.membership.Role,
	}))
}

func displayNameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

func defaultOrgSlug(user *identity.User) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, displayNameFromEmail(user.Email))
	base = strings.Trim(base, "-")
	if base == "" {
		base = "org"
	}
	// Slug uniqueness is global; suffix with the user ID prefix to avoid
	// collisions between users sharing an email local part.
	suffix := user.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return base + "-" + suffix
}
