package provisioning

import (
	"context"
	"testing"
	"time"

	"github.com/jitgroups/broker/internal/adapter/outbound/memory"
	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/policy"
)

func buildGroup(t *testing.T, privileges []policy.IamRoleBinding) *policy.JitGroupPolicy {
	t.Helper()
	env, err := policy.NewEnvironmentPolicy("prod", policy.Metadata{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	sys, err := policy.AddSystem(env, "billing", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	group, err := policy.AddGroup(sys, "ops-oncall", "on-call rotation", nil, nil, privileges)
	if err != nil {
		t.Fatal(err)
	}
	return group
}

func TestProvisionMembershipCreatesGroupAndReconciles(t *testing.T) {
	mapping, err := identity.NewGroupMapping("example.com")
	if err != nil {
		t.Fatal(err)
	}
	group := buildGroup(t, []policy.IamRoleBinding{
		{Resource: "projects/prod-billing", Role: "roles/billing.viewer"},
	})

	dir := memory.NewDirectoryStore()
	iam := memory.NewIamStore()
	prov := New(dir, iam, mapping)

	expiry := time.Now().Add(time.Hour)
	if err := prov.ProvisionMembership(context.Background(), group, "alice@example.com", expiry); err != nil {
		t.Fatalf("ProvisionMembership: %v", err)
	}

	email := mapping.DirectoryEmail(identity.JitGroupId{Environment: "prod", System: "billing", Name: "ops-oncall"})
	got, err := dir.GetGroup(context.Background(), email)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if !checksumUpToDate(got.Description, group.Privileges) {
		t.Fatalf("expected description %q to carry an up-to-date checksum", got.Description)
	}

	membership, err := dir.GetMembership(context.Background(), email, "alice@example.com")
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	if len(membership.Roles) != 1 || !membership.Roles[0].Expiry.Equal(expiry) {
		t.Fatalf("unexpected membership roles: %+v", membership.Roles)
	}

	policyDoc, err := iam.GetIamPolicy(context.Background(), "projects/prod-billing")
	if err != nil {
		t.Fatalf("GetIamPolicy: %v", err)
	}
	if len(policyDoc.Bindings) != 1 || policyDoc.Bindings[0].Role != "roles/billing.viewer" {
		t.Fatalf("unexpected bindings: %+v", policyDoc.Bindings)
	}
	if len(policyDoc.Bindings[0].Members) != 1 || policyDoc.Bindings[0].Members[0] != "group:"+email {
		t.Fatalf("unexpected members: %+v", policyDoc.Bindings[0].Members)
	}
}

func TestProvisionMembershipRejectsPastExpiry(t *testing.T) {
	mapping, _ := identity.NewGroupMapping("example.com")
	group := buildGroup(t, nil)
	dir := memory.NewDirectoryStore()
	iam := memory.NewIamStore()
	prov := New(dir, iam, mapping)

	err := prov.ProvisionMembership(context.Background(), group, "alice@example.com", time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("expected an error for a non-future expiry")
	}
}

func TestProvisionMembershipIsIdempotent(t *testing.T) {
	mapping, _ := identity.NewGroupMapping("example.com")
	group := buildGroup(t, []policy.IamRoleBinding{{Resource: "projects/prod-billing", Role: "roles/billing.viewer"}})
	dir := memory.NewDirectoryStore()
	iam := memory.NewIamStore()
	prov := New(dir, iam, mapping)
	ctx := context.Background()

	if err := prov.ProvisionMembership(ctx, group, "alice@example.com", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("first provision: %v", err)
	}
	if err := prov.ProvisionMembership(ctx, group, "alice@example.com", time.Now().Add(2*time.Hour)); err != nil {
		t.Fatalf("second provision: %v", err)
	}

	email := mapping.DirectoryEmail(identity.JitGroupId{Environment: "prod", System: "billing", Name: "ops-oncall"})
	policyDoc, err := iam.GetIamPolicy(ctx, "projects/prod-billing")
	if err != nil {
		t.Fatal(err)
	}
	if len(policyDoc.Bindings) != 1 || len(policyDoc.Bindings[0].Members) != 1 {
		t.Fatalf("re-provisioning must not duplicate bindings: %+v", policyDoc.Bindings)
	}
	if m, err := dir.GetMembership(ctx, email, "alice@example.com"); err != nil || len(m.Roles) != 1 {
		t.Fatalf("expected a single updated membership record, got %+v, err=%v", m, err)
	}
}

func TestReconcileIsNoOpWhenChecksumCurrent(t *testing.T) {
	mapping, _ := identity.NewGroupMapping("example.com")
	group := buildGroup(t, []policy.IamRoleBinding{{Resource: "projects/prod-billing", Role: "roles/billing.viewer"}})
	dir := memory.NewDirectoryStore()
	iam := memory.NewIamStore()
	prov := New(dir, iam, mapping)
	ctx := context.Background()

	if err := prov.ProvisionMembership(ctx, group, "alice@example.com", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	before, err := iam.GetIamPolicy(ctx, "projects/prod-billing")
	if err != nil {
		t.Fatal(err)
	}
	if err := prov.Reconcile(ctx, group); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	after, err := iam.GetIamPolicy(ctx, "projects/prod-billing")
	if err != nil {
		t.Fatal(err)
	}
	if before.ETag != after.ETag {
		t.Fatalf("reconcile on an already-current group must not write: etag %s -> %s", before.ETag, after.ETag)
	}
}

func TestReconcilePicksUpPrivilegeChanges(t *testing.T) {
	mapping, _ := identity.NewGroupMapping("example.com")
	group := buildGroup(t, []policy.IamRoleBinding{{Resource: "projects/prod-billing", Role: "roles/billing.viewer"}})
	dir := memory.NewDirectoryStore()
	iam := memory.NewIamStore()
	prov := New(dir, iam, mapping)
	ctx := context.Background()

	if err := prov.ProvisionMembership(ctx, group, "alice@example.com", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	group.Privileges = append(group.Privileges, policy.IamRoleBinding{Resource: "projects/prod-billing", Role: "roles/billing.admin"})
	if err := prov.Reconcile(ctx, group); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	policyDoc, err := iam.GetIamPolicy(ctx, "projects/prod-billing")
	if err != nil {
		t.Fatal(err)
	}
	if len(policyDoc.Bindings) != 2 {
		t.Fatalf("expected the new privilege's binding to appear, got %+v", policyDoc.Bindings)
	}
}

func TestProvisionedGroupsSearchesByEnvironmentPrefix(t *testing.T) {
	mapping, _ := identity.NewGroupMapping("example.com")
	group := buildGroup(t, nil)
	dir := memory.NewDirectoryStore()
	iam := memory.NewIamStore()
	prov := New(dir, iam, mapping)
	ctx := context.Background()

	if err := prov.ProvisionMembership(ctx, group, "alice@example.com", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	groups, err := prov.ProvisionedGroups(ctx, "prod")
	if err != nil {
		t.Fatalf("ProvisionedGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected exactly one provisioned group in prod, got %d", len(groups))
	}

	none, err := prov.ProvisionedGroups(ctx, "staging")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no provisioned groups in staging, got %d", len(none))
	}
}
