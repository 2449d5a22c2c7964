package subject

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/port/outbound"
)

type fakeDirectory struct {
	mu          sync.Mutex
	memberships map[string][]outbound.UserMembership
	membership  map[string]outbound.Membership // key: groupEmail+"|"+user
	notFound    map[string]bool
	listErr     error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		memberships: map[string][]outbound.UserMembership{},
		membership:  map[string]outbound.Membership{},
		notFound:    map[string]bool{},
	}
}

func (f *fakeDirectory) ListMembershipsByUser(_ context.Context, user string) ([]outbound.UserMembership, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.memberships[user], nil
}

func (f *fakeDirectory) GetMembership(_ context.Context, groupEmail, user string) (outbound.Membership, error) {
	key := groupEmail + "|" + user
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notFound[key] {
		return outbound.Membership{}, ErrNotFound
	}
	m, ok := f.membership[key]
	if !ok {
		return outbound.Membership{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeDirectory) LookupGroup(context.Context, string) (outbound.GroupKey, error) { return "", nil }
func (f *fakeDirectory) GetGroup(context.Context, string) (outbound.Group, error)        { return outbound.Group{}, nil }
func (f *fakeDirectory) CreateGroup(context.Context, string, outbound.GroupKind, string, string) (outbound.GroupKey, error) {
	return "", nil
}
func (f *fakeDirectory) PatchGroup(context.Context, outbound.GroupKey, string) error { return nil }
func (f *fakeDirectory) AddMembership(context.Context, outbound.GroupKey, string, time.Time) (string, error) {
	return "", nil
}
func (f *fakeDirectory) DeleteMembership(context.Context, string, string, string) error { return nil }
func (f *fakeDirectory) ListMemberships(context.Context, string) ([]outbound.GroupMember, error) {
	return nil, nil
}
func (f *fakeDirectory) SearchGroupsByPrefix(context.Context, string) ([]outbound.Group, error) {
	return nil, nil
}
func (f *fakeDirectory) SearchGroupsByID(context.Context, []string) ([]outbound.Group, error) {
	return nil, nil
}

var _ outbound.DirectoryGroupsClient = (*fakeDirectory)(nil)

func mustMapping(t *testing.T) *identity.GroupMapping {
	t.Helper()
	m, err := identity.NewGroupMapping("example.com")
	if err != nil {
		t.Fatalf("NewGroupMapping: %v", err)
	}
	return m
}

func TestResolveAssemblesFullPrincipalSet(t *testing.T) {
	defer goleak.VerifyNone(t)

	mapping := mustMapping(t)
	dir := newFakeDirectory()
	user := "alice@example.com"
	dir.memberships[user] = []outbound.UserMembership{
		{GroupEmail: "team@example.com"},
		{GroupEmail: "jit.prod.sys.ops-oncall@example.com"},
		{GroupEmail: "jit.prod.sys.no-expiry@example.com"},
	}
	expiry := time.Now().Add(time.Hour)
	dir.membership["jit.prod.sys.ops-oncall@example.com|"+user] = outbound.Membership{
		ID: "m1", Roles: []outbound.MembershipRoleDetail{{Role: outbound.RoleMember, Expiry: expiry}},
	}
	dir.membership["jit.prod.sys.no-expiry@example.com|"+user] = outbound.Membership{
		ID: "m2", Roles: []outbound.MembershipRoleDetail{{Role: outbound.RoleMember}},
	}

	r := New(dir, mapping, 4, nil)
	userID := identity.NewUser(user)
	subj, err := r.Resolve(context.Background(), userID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if !subj.Has(userID) {
		t.Fatal("expected subject to contain the end-user")
	}
	if !subj.Has(identity.AuthenticatedUsersClass) {
		t.Fatal("expected subject to contain the authenticated-users class")
	}
	if !subj.Has(identity.NewGroup("team@example.com")) {
		t.Fatal("expected ordinary group principal")
	}
	jitID, _ := mapping.JitGroupFromEmail("jit.prod.sys.ops-oncall@example.com")
	p, ok := subj.ActivePrincipal(jitID.PrincipalId(), time.Now())
	if !ok || !p.ValidAt(time.Now()) {
		t.Fatal("expected a valid jit-group principal with expiry")
	}

	noExpiryID, _ := mapping.JitGroupFromEmail("jit.prod.sys.no-expiry@example.com")
	if subj.Has(noExpiryID.PrincipalId()) {
		t.Fatal("expected jit-named group lacking expiry to be skipped")
	}
}

func TestResolveTreatsNotFoundMembershipAsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	mapping := mustMapping(t)
	dir := newFakeDirectory()
	user := "alice@example.com"
	dir.memberships[user] = []outbound.UserMembership{{GroupEmail: "jit.prod.sys.revoked@example.com"}}
	dir.notFound["jit.prod.sys.revoked@example.com|"+user] = true

	r := New(dir, mapping, 4, nil)
	subj, err := r.Resolve(context.Background(), identity.NewUser(user))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	jitID, _ := mapping.JitGroupFromEmail("jit.prod.sys.revoked@example.com")
	if subj.Has(jitID.PrincipalId()) {
		t.Fatal("expected not-found membership to be dropped, not credited")
	}
}

func TestResolvePropagatesUserNotFound(t *testing.T) {
	mapping := mustMapping(t)
	dir := newFakeDirectory()
	dir.listErr = errors.New("user not found")

	r := New(dir, mapping, 4, nil)
	_, err := r.Resolve(context.Background(), identity.NewUser("ghost@example.com"))
	if err == nil {
		t.Fatal("expected user-not-found to propagate as an error")
	}
}

func TestResolveToleratesPartialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	mapping := mustMapping(t)
	dir := newFakeDirectory()
	user := "alice@example.com"
	dir.memberships[user] = []outbound.UserMembership{
		{GroupEmail: "jit.prod.sys.ok@example.com"},
		{GroupEmail: "jit.prod.sys.broken@example.com"},
	}
	expiry := time.Now().Add(time.Hour)
	dir.membership["jit.prod.sys.ok@example.com|"+user] = outbound.Membership{
		Roles: []outbound.MembershipRoleDetail{{Role: outbound.RoleMember, Expiry: expiry}},
	}
	// "broken" has no membership entry, so the fake's GetMembership reports
	// ErrNotFound for it and that lookup is dropped; the test checks that the
	// "ok" lookup is still credited. Lookups that end in an error are
	// exercised by the cancelled-context test below.

	r := New(dir, mapping, 1, nil)
	subj, err := r.Resolve(context.Background(), identity.NewUser(user))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	okID, _ := mapping.JitGroupFromEmail("jit.prod.sys.ok@example.com")
	if !subj.Has(okID.PrincipalId()) {
		t.Fatal("expected the succeeding lookup to still be credited despite the other task")
	}
}

func TestResolveBoundedConcurrencyRespectsContextCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	mapping := mustMapping(t)
	dir := newFakeDirectory()
	user := "alice@example.com"
	var emails []string
	for i := 0; i < 5; i++ {
		email := "jit.prod.sys.g" + string(rune('a'+i)) + "@example.com"
		emails = append(emails, email)
		dir.memberships[user] = append(dir.memberships[user], outbound.UserMembership{GroupEmail: email})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(dir, mapping, 1, nil)
	subj, err := r.Resolve(ctx, identity.NewUser(user))
	if err != nil {
		t.Fatalf("Resolve must still return a usable subject on cancellation, got error: %v", err)
	}
	if !subj.Has(identity.NewUser(user)) {
		t.Fatal("expected at least the end-user to be present")
	}
}
