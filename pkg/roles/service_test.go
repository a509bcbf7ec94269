package roles

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/audit"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/permissions"
)

type serviceFixture struct {
	store    *identity.MemoryStore
	service  *Service
	recorder *audit.MemoryRecorder
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := identity.NewMemoryStore()
	registry := NewRegistry()
	guard := permissions.NewEngine(store, registry)

	recorder := &audit.MemoryRecorder{}
	security := audit.NewSecurityLogger(io.Discard)
	security.SetRecorder(recorder)

	return &serviceFixture{
		store:    store,
		service:  NewService(store, registry, guard, security),
		recorder: recorder,
	}
}

func (f *serviceFixture) addMember(id, userID, orgID, role string) {
	f.store.SetMembership(&identity.Membership{
		ID:       id,
		OrgID:    orgID,
		UserID:   userID,
		Role:     role,
		IsActive: true,
		JoinedAt: time.Now().UTC(),
	})
}

func TestCreateRole(t *testing.T) {
	ctx := context.Background()

	t.Run("admin creates role within their permissions", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addMember("m1", "admin-user", "o1", RoleAdmin)

		role, err := f.service.CreateRole(ctx, "admin-user", "o1", " Auditor ", []string{PermAuditRead, PermOrgRead, PermAuditRead})
		if err != nil {
			t.Fatalf("CreateRole() error = %v", err)
		}
		if role.Name != "Auditor" {
			t.Errorf("name = %q, want trimmed original casing", role.Name)
		}
		if role.NormalizedName != "auditor" {
			t.Errorf("normalized name = %q", role.NormalizedName)
		}
		if len(role.Permissions) != 2 {
			t.Errorf("permissions = %v, want deduplicated", role.Permissions)
		}

		stored, err := f.store.GetCustomRole(ctx, "o1", "auditor")
		if err != nil {
			t.Fatalf("role not persisted: %v", err)
		}
		if stored.CreatedBy != "admin-user" {
			t.Errorf("created_by = %q", stored.CreatedBy)
		}
	})

	t.Run("reserved name rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addMember("m1", "admin-user", "o1", RoleOwner)

		_, err := f.service.CreateRole(ctx, "admin-user", "o1", "Admin", []string{PermOrgRead})
		if !errors.Is(err, ErrReservedRoleName) {
			t.Errorf("error = %v, want ErrReservedRoleName", err)
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.service.CreateRole(ctx, "admin-user", "o1", "   ", []string{PermOrgRead})
		if !errors.Is(err, ErrInvalidRoleName) {
			t.Errorf("error = %v, want ErrInvalidRoleName", err)
		}
	})

	t.Run("escalation blocked and logged", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addMember("m1", "member-user", "o1", RoleMember)

		_, err := f.service.CreateRole(ctx, "member-user", "o1", "Superpower", []string{PermOrgDelete})
		if !errors.Is(err, permissions.ErrUnownedPermission) {
			t.Fatalf("error = %v, want ErrUnownedPermission", err)
		}
		if _, err := f.store.GetCustomRole(ctx, "o1", "superpower"); !errors.Is(err, identity.ErrNotFound) {
			t.Error("role row was created despite the guard rejecting")
		}

		records := f.recorder.Records
		if len(records) != 1 || records[0].Event != audit.EventEscalationAttempt {
			t.Errorf("security events = %+v, want one escalation attempt", records)
		}
	})
}

func TestUpdateRole(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.addMember("m1", "admin-user", "o1", RoleAdmin)

	if _, err := f.service.CreateRole(ctx, "admin-user", "o1", "Auditor", []string{PermAuditRead}); err != nil {
		t.Fatalf("CreateRole() error = %v", err)
	}

	t.Run("replaces permissions and renames", func(t *testing.T) {
		role, err := f.service.UpdateRole(ctx, "admin-user", "o1", "auditor", "Reviewer", []string{PermAuditRead, PermRolesRead})
		if err != nil {
			t.Fatalf("UpdateRole() error = %v", err)
		}
		if role.Name != "Reviewer" || len(role.Permissions) != 2 {
			t.Errorf("role = %+v", role)
		}
		if _, err := f.store.GetCustomRole(ctx, "o1", "reviewer"); err != nil {
			t.Errorf("renamed role not found: %v", err)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := f.service.UpdateRole(ctx, "admin-user", "o1", "ghost", "", []string{PermOrgRead})
		if !errors.Is(err, ErrUnknownRole) {
			t.Errorf("error = %v, want ErrUnknownRole", err)
		}
	})

	t.Run("escalation blocked", func(t *testing.T) {
		_, err := f.service.UpdateRole(ctx, "admin-user", "o1", "reviewer", "", []string{PermBillingManage})
		if !errors.Is(err, permissions.ErrUnownedPermission) {
			t.Errorf("error = %v, want ErrUnownedPermission (admin does not hold billing:manage)", err)
		}
	})
}

func TestAssignRole(t *testing.T) {
	ctx := context.Background()

	t.Run("assign system role", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addMember("m1", "owner-user", "o1", RoleOwner)
		f.addMember("m2", "target-user", "o1", RoleViewer)

		if err := f.service.AssignRole(ctx, "owner-user", "o1", "target-user", RoleAdmin); err != nil {
			t.Fatalf("AssignRole() error = %v", err)
		}
		m, err := f.store.GetActiveMembership(ctx, "target-user", "o1")
		if err != nil {
			t.Fatal(err)
		}
		if m.Role != RoleAdmin {
			t.Errorf("role = %q, want admin", m.Role)
		}
	})

	t.Run("assign custom role", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addMember("m1", "owner-user", "o1", RoleOwner)
		f.addMember("m2", "target-user", "o1", RoleViewer)
		if _, err := f.service.CreateRole(ctx, "owner-user", "o1", "Auditor", []string{PermAuditRead}); err != nil {
			t.Fatal(err)
		}

		if err := f.service.AssignRole(ctx, "owner-user", "o1", "target-user", "Auditor"); err != nil {
			t.Fatalf("AssignRole() error = %v", err)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addMember("m1", "owner-user", "o1", RoleOwner)
		err := f.service.AssignRole(ctx, "owner-user", "o1", "target-user", "ghost")
		if !errors.Is(err, ErrUnknownRole) {
			t.Errorf("error = %v, want ErrUnknownRole", err)
		}
	})

	t.Run("assigning above own tier is escalation", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addMember("m1", "admin-user", "o1", RoleAdmin)
		f.addMember("m2", "target-user", "o1", RoleViewer)

		err := f.service.AssignRole(ctx, "admin-user", "o1", "target-user", RoleOwner)
		if !errors.Is(err, permissions.ErrUnownedPermission) {
			t.Fatalf("error = %v, want ErrUnownedPermission", err)
		}
		if len(f.recorder.Records) != 1 {
			t.Errorf("security events = %d, want 1", len(f.recorder.Records))
		}
		m, _ := f.store.GetActiveMembership(ctx, "target-user", "o1")
		if m.Role != RoleViewer {
			t.Errorf("target role = %q, should be unchanged", m.Role)
		}
	})
}
