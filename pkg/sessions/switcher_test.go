package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/audit"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
)

func TestSwitchToMemberOrganization(t *testing.T) {
	f := newLifecycleFixture(t)
	user, _ := f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()
	now := time.Now().UTC()

	f.store.SetMembership(&identity.Membership{
		ID: "m-u1-o2", OrgID: "o2", UserID: "u1", Role: "member", IsActive: true, JoinedAt: now,
	})

	creds, err := f.switcher.Switch(ctx, "u1", "o2", IssueOptions{})
	if err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if creds.OrganizationID != "o2" || creds.Role != "member" {
		t.Errorf("credentials = %+v", creds)
	}
	if len(creds.Permissions) != 1 {
		t.Errorf("permissions = %v, want recomputed for the member role", creds.Permissions)
	}

	// The switch becomes sticky via the preferred organization.
	updated, err := f.store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.PreferredOrgID == nil || *updated.PreferredOrgID != "o2" {
		t.Errorf("preferred org = %v, want o2", updated.PreferredOrgID)
	}
}

func TestSwitchDeniedForNonMember(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()

	_, err := f.switcher.Switch(ctx, "u1", "o-foreign", IssueOptions{})
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("Switch() error = %v, want ErrNotAMember", err)
	}

	if len(f.recorder.Records) != 1 || f.recorder.Records[0].Event != audit.EventOrgSwitchDenied {
		t.Errorf("security events = %+v, want one denied switch", f.recorder.Records)
	}

	// Preference unchanged on denial.
	user, _ := f.store.GetUserByID(ctx, "u1")
	if *user.PreferredOrgID != "o1" {
		t.Errorf("preferred org = %q, should be unchanged", *user.PreferredOrgID)
	}
}

func TestSwitchDeniedForDeletedUser(t *testing.T) {
	f := newLifecycleFixture(t)
	user, _ := f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()

	now := time.Now().UTC()
	user.DeletedAt = &now
	if err := f.store.UpdateUser(ctx, user); err != nil {
		t.Fatal(err)
	}

	_, err := f.switcher.Switch(ctx, "u1", "o1", IssueOptions{})
	if !errors.Is(err, ErrNotAMember) {
		t.Errorf("Switch() error = %v, want ErrNotAMember", err)
	}
}

func TestSwitchInactiveMembershipDenied(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedUser(t, "u1", "o1", "owner")
	ctx := context.Background()
	now := time.Now().UTC()

	f.store.SetMembership(&identity.Membership{
		ID: "m-u1-o2", OrgID: "o2", UserID: "u1", Role: "member", IsActive: false, JoinedAt: now,
	})

	_, err := f.switcher.Switch(ctx, "u1", "o2", IssueOptions{})
	if !errors.Is(err, ErrNotAMember) {
		t.Errorf("Switch() error = %v, want ErrNotAMember", err)
	}
}
