package sessions

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/audit"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/events"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/permissions"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/tokens"
)

// stubResolver is a minimal role catalogue for tests
type stubResolver map[string][]string

func (r stubResolver) Implied(role string) ([]string, bool) {
	perms, ok := r[role]
	return perms, ok
}

var testRoles = stubResolver{
	"owner":  {"org:read", "org:update", "org:delete"},
	"member": {"org:read"},
}

type lifecycleFixture struct {
	store     *identity.MemoryStore
	issuer    *tokens.Issuer
	creds     *CredentialIssuer
	lifecycle *Lifecycle
	switcher  *OrganizationSwitcher
	recorder  *audit.MemoryRecorder
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	store := identity.NewMemoryStore()
	engine := permissions.NewEngine(store, testRoles)
	issuer := tokens.NewIssuer(tokens.IssuerConfig{
		Issuer:          "https://identity.example.com",
		Audience:        "example-platform",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}, &tokens.StaticKeyProvider{Key: &tokens.SigningKey{Private: key, KeyID: "test"}})
	creds := NewCredentialIssuer(store, engine, issuer)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	publisher := events.NewPublisher(&events.MemorySink{}, logger)

	recorder := &audit.MemoryRecorder{}
	security := audit.NewSecurityLogger(io.Discard)
	security.SetRecorder(recorder)

	return &lifecycleFixture{
		store:     store,
		issuer:    issuer,
		creds:     creds,
		lifecycle: NewLifecycle(store, creds, publisher, security),
		switcher:  NewOrganizationSwitcher(store, creds, publisher, security),
		recorder:  recorder,
	}
}

// seedUser creates a user with an active membership and returns both
func (f *lifecycleFixture) seedUser(t *testing.T, userID, orgID, role string) (*identity.User, *identity.Membership) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	user := &identity.User{
		ID:              userID,
		ExternalID:      "idp|" + userID,
		Email:           userID + "@example.com",
		NormalizedEmail: userID + "@example.com",
		PreferredOrgID:  &orgID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := f.store.CreateUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	membership := &identity.Membership{
		ID:       "m-" + userID + "-" + orgID,
		OrgID:    orgID,
		UserID:   userID,
		Role:     role,
		IsActive: true,
		JoinedAt: now,
	}
	f.store.SetMembership(membership)
	return user, membership
}

func TestCredentialIssuerIssue(t *testing.T) {
	f := newLifecycleFixture(t)
	user, membership := f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()

	device := "laptop"
	creds, err := f.creds.Issue(ctx, user, membership, IssueOptions{DeviceName: &device})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if creds.UserID != "u1" || creds.OrganizationID != "o1" || creds.Role != "owner" {
		t.Errorf("credentials = %+v", creds)
	}
	if len(creds.Permissions) != 3 {
		t.Errorf("permissions = %v, want the owner set", creds.Permissions)
	}
	if creds.ExpiresIn != 900 {
		t.Errorf("expires_in = %d, want 900", creds.ExpiresIn)
	}

	record, err := f.store.GetRefreshTokenByHash(ctx, tokens.HashRefreshToken(creds.RefreshToken))
	if err != nil {
		t.Fatalf("refresh token not persisted: %v", err)
	}
	if record.DeviceName == nil || *record.DeviceName != "laptop" {
		t.Errorf("device name = %v", record.DeviceName)
	}
}

func TestRefreshRotation(t *testing.T) {
	f := newLifecycleFixture(t)
	user, membership := f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()

	first, err := f.creds.Issue(ctx, user, membership, IssueOptions{})
	if err != nil {
		t.Fatal(err)
	}

	second, err := f.lifecycle.Refresh(ctx, first.RefreshToken, IssueOptions{})
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh did not rotate the token")
	}

	// The redeemed token is dead.
	_, err = f.lifecycle.Refresh(ctx, first.RefreshToken, IssueOptions{})
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("reuse error = %v, want ErrInvalidRefreshToken", err)
	}

	// The replacement works.
	if _, err := f.lifecycle.Refresh(ctx, second.RefreshToken, IssueOptions{}); err != nil {
		t.Errorf("refresh of rotated token error = %v", err)
	}
}

func TestRefreshRecomputesPermissions(t *testing.T) {
	f := newLifecycleFixture(t)
	user, membership := f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()

	first, err := f.creds.Issue(ctx, user, membership, IssueOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Permissions) != 3 {
		t.Fatalf("permissions = %v", first.Permissions)
	}

	// Demote between issue and refresh.
	if err := f.store.UpdateMembershipRole(ctx, membership.ID, "member"); err != nil {
		t.Fatal(err)
	}

	second, err := f.lifecycle.Refresh(ctx, first.RefreshToken, IssueOptions{})
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.Role != "member" || len(second.Permissions) != 1 {
		t.Errorf("refreshed credentials = role %q perms %v, demotion not reflected", second.Role, second.Permissions)
	}
}

func TestRefreshRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		f := newLifecycleFixture(t)
		_, err := f.lifecycle.Refresh(ctx, "never-issued", IssueOptions{})
		if !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("error = %v, want ErrInvalidRefreshToken", err)
		}
		if len(f.recorder.Records) != 1 || f.recorder.Records[0].Event != audit.EventRefreshRejected {
			t.Errorf("security events = %+v", f.recorder.Records)
		}
	})

	t.Run("revoked token", func(t *testing.T) {
		f := newLifecycleFixture(t)
		user, membership := f.seedUser(t, "u1", "o1", "owner")
		creds, err := f.creds.Issue(ctx, user, membership, IssueOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if err := f.lifecycle.Revoke(ctx, creds.RefreshToken); err != nil {
			t.Fatal(err)
		}
		if _, err := f.lifecycle.Refresh(ctx, creds.RefreshToken, IssueOptions{}); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("error = %v, want ErrInvalidRefreshToken", err)
		}
	})

	t.Run("deleted user", func(t *testing.T) {
		f := newLifecycleFixture(t)
		user, membership := f.seedUser(t, "u1", "o1", "owner")
		creds, err := f.creds.Issue(ctx, user, membership, IssueOptions{})
		if err != nil {
			t.Fatal(err)
		}
		now := time.Now().UTC()
		user.DeletedAt = &now
		if err := f.store.UpdateUser(ctx, user); err != nil {
			t.Fatal(err)
		}
		if _, err := f.lifecycle.Refresh(ctx, creds.RefreshToken, IssueOptions{}); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("error = %v, want ErrInvalidRefreshToken", err)
		}
	})

	t.Run("membership gone", func(t *testing.T) {
		f := newLifecycleFixture(t)
		user, membership := f.seedUser(t, "u1", "o1", "owner")
		creds, err := f.creds.Issue(ctx, user, membership, IssueOptions{})
		if err != nil {
			t.Fatal(err)
		}
		left := time.Now().UTC()
		membership.LeftAt = &left
		f.store.SetMembership(membership)
		if _, err := f.lifecycle.Refresh(ctx, creds.RefreshToken, IssueOptions{}); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("error = %v, want ErrInvalidRefreshToken", err)
		}
	})
}

func TestRefreshCarriesDeviceName(t *testing.T) {
	f := newLifecycleFixture(t)
	user, membership := f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()

	device := "laptop"
	first, err := f.creds.Issue(ctx, user, membership, IssueOptions{DeviceName: &device})
	if err != nil {
		t.Fatal(err)
	}

	second, err := f.lifecycle.Refresh(ctx, first.RefreshToken, IssueOptions{})
	if err != nil {
		t.Fatal(err)
	}

	record, err := f.store.GetRefreshTokenByHash(ctx, tokens.HashRefreshToken(second.RefreshToken))
	if err != nil {
		t.Fatal(err)
	}
	if record.DeviceName == nil || *record.DeviceName != "laptop" {
		t.Errorf("device name = %v, want carried over from the rotated token", record.DeviceName)
	}
}

func TestValidateToken(t *testing.T) {
	f := newLifecycleFixture(t)
	user, membership := f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()

	creds, err := f.creds.Issue(ctx, user, membership, IssueOptions{})
	if err != nil {
		t.Fatal(err)
	}

	ok, err := f.lifecycle.ValidateToken(ctx, creds.RefreshToken)
	if err != nil || !ok {
		t.Errorf("ValidateToken() = %v, %v, want true", ok, err)
	}
	ok, err = f.lifecycle.ValidateToken(ctx, "never-issued")
	if err != nil || ok {
		t.Errorf("ValidateToken(unknown) = %v, %v, want false", ok, err)
	}
}

func TestRevokeAllScoping(t *testing.T) {
	f := newLifecycleFixture(t)
	user, m1 := f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()
	now := time.Now().UTC()

	m2 := &identity.Membership{ID: "m-u1-o2", OrgID: "o2", UserID: "u1", Role: "member", IsActive: true, JoinedAt: now}
	f.store.SetMembership(m2)

	for _, m := range []*identity.Membership{m1, m1, m2} {
		if _, err := f.creds.Issue(ctx, user, m, IssueOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := f.lifecycle.RevokeAllForUserInOrg(ctx, "u1", "o1")
	if err != nil {
		t.Fatalf("RevokeAllForUserInOrg() error = %v", err)
	}
	if n != 2 {
		t.Errorf("revoked = %d, want 2", n)
	}

	remaining, err := f.lifecycle.ListActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].OrganizationID != "o2" {
		t.Errorf("remaining sessions = %+v", remaining)
	}

	n, err = f.lifecycle.RevokeAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}
	if n != 1 {
		t.Errorf("revoked = %d, want 1", n)
	}
}

func TestRevokeSessionOwnership(t *testing.T) {
	f := newLifecycleFixture(t)
	alice, aliceMembership := f.seedUser(t, "alice", "o1", "owner")
	bob, bobMembership := f.seedUser(t, "bob", "o2", "owner")
	ctx := context.Background()

	if _, err := f.creds.Issue(ctx, alice, aliceMembership, IssueOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.creds.Issue(ctx, bob, bobMembership, IssueOptions{}); err != nil {
		t.Fatal(err)
	}

	aliceSessions, err := f.lifecycle.ListActiveSessions(ctx, "alice")
	if err != nil || len(aliceSessions) != 1 {
		t.Fatalf("alice sessions = %v, %v", aliceSessions, err)
	}

	// Bob cannot revoke Alice's session.
	err = f.lifecycle.RevokeSession(ctx, "bob", aliceSessions[0].ID)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("cross-user revoke error = %v, want ErrSessionNotFound", err)
	}

	if err := f.lifecycle.RevokeSession(ctx, "alice", aliceSessions[0].ID); err != nil {
		t.Errorf("own revoke error = %v", err)
	}
	after, _ := f.lifecycle.ListActiveSessions(ctx, "alice")
	if len(after) != 0 {
		t.Errorf("sessions after revoke = %+v", after)
	}
}
