package activation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jitgroups/broker/internal/domain/catalog"
	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/policy"
	"github.com/jitgroups/broker/internal/port/outbound"
)

type fakeProvisioner struct {
	calls []provisionCall
	err   error
}

type provisionCall struct {
	user   string
	expiry time.Time
}

func (f *fakeProvisioner) ProvisionMembership(_ context.Context, _ *policy.JitGroupPolicy, user string, expiry time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, provisionCall{user: user, expiry: expiry})
	return nil
}

type fakeSigner struct {
	issued outbound.ActivationTokenPayload
	expire bool
}

func (f *fakeSigner) Sign(_ context.Context, payload outbound.ActivationTokenPayload) (outbound.SignedToken, error) {
	f.issued = payload
	return outbound.SignedToken{Token: "tok", IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeSigner) Verify(_ context.Context, token string) (outbound.ActivationTokenPayload, error) {
	if f.expire {
		return outbound.ActivationTokenPayload{}, outbound.ErrTokenExpired
	}
	if token != "tok" {
		return outbound.ActivationTokenPayload{}, outbound.ErrTokenInvalid
	}
	return f.issued, nil
}

func buildActivationDoc(t *testing.T) (*policy.Document, identity.PrincipalId, identity.PrincipalId) {
	t.Helper()
	alice, err := identity.Parse("user:alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := identity.Parse("user:bob@example.com")
	if err != nil {
		t.Fatal(err)
	}

	env, err := policy.NewEnvironmentPolicy("prod", policy.Metadata{}, policy.AccessControlList{
		{Principal: alice, Mask: policy.PermissionApproveSelf, Kind: policy.Allow},
		{Principal: bob, Mask: policy.PermissionApproveOthers, Kind: policy.Allow},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sys, err := policy.AddSystem(env, "sys", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := policy.AddGroup(sys, "ops-oncall", "", policy.AccessControlList{
		{Principal: alice, Mask: policy.PermissionJoin, Kind: policy.Allow},
		{Principal: bob, Mask: policy.PermissionJoin, Kind: policy.Allow},
	}, nil, nil); err != nil {
		t.Fatal(err)
	}
	doc, err := policy.NewDocument([]*policy.EnvironmentPolicy{env})
	if err != nil {
		t.Fatal(err)
	}
	return doc, alice, bob
}

func TestCreateJitProvisionsImmediately(t *testing.T) {
	doc, alice, _ := buildActivationDoc(t)
	cat := catalog.New(doc)
	prov := &fakeProvisioner{}
	act := New(cat, prov, &fakeSigner{}, DefaultReviewerBounds(), nil, nil)

	subject := identity.NewSubject(alice)
	groupID := identity.JitGroupId{Environment: "prod", System: "sys", Name: "ops-oncall"}

	_, err := act.CreateJit(context.Background(), CreateJitRequest{
		Subject: subject, GroupID: groupID, Duration: time.Hour, Justification: "oncall",
	})
	if err != nil {
		t.Fatalf("CreateJit: %v", err)
	}
	if len(prov.calls) != 1 {
		t.Fatalf("expected exactly one provisioning call, got %d", len(prov.calls))
	}
	if prov.calls[0].user != "alice@example.com" {
		t.Fatalf("unexpected user: %q", prov.calls[0].user)
	}
}

func TestCreateJitRequiresApproveSelf(t *testing.T) {
	doc, _, bob := buildActivationDoc(t)
	// bob has APPROVE_OTHERS but not APPROVE_SELF in this document.
	cat := catalog.New(doc)
	prov := &fakeProvisioner{}
	act := New(cat, prov, &fakeSigner{}, DefaultReviewerBounds(), nil, nil)

	subject := identity.NewSubject(bob)
	groupID := identity.JitGroupId{Environment: "prod", System: "sys", Name: "ops-oncall"}

	_, err := act.CreateJit(context.Background(), CreateJitRequest{Subject: subject, GroupID: groupID, Duration: time.Hour})
	if !errors.Is(err, ErrSelfApprovalNotPermitted) {
		t.Fatalf("expected ErrSelfApprovalNotPermitted, got %v", err)
	}
	if len(prov.calls) != 0 {
		t.Fatal("provisioning must not run when self-approval is denied")
	}
}

func TestCreateMpaRejectsOutOfBoundsReviewers(t *testing.T) {
	doc, _, bob := buildActivationDoc(t)
	cat := catalog.New(doc)
	act := New(cat, &fakeProvisioner{}, &fakeSigner{}, ReviewerBounds{Min: 1, Max: 2}, nil, nil)

	subject := identity.NewSubject(bob)
	groupID := identity.JitGroupId{Environment: "prod", System: "sys", Name: "ops-oncall"}

	_, err := act.CreateMpa(context.Background(), CreateMpaRequest{
		Subject: subject, GroupID: groupID, Duration: time.Hour,
		Reviewers: []string{"a@example.com", "b@example.com", "c@example.com"},
	})
	if !errors.Is(err, ErrReviewerCountOutOfBounds) {
		t.Fatalf("expected ErrReviewerCountOutOfBounds, got %v", err)
	}
}

func TestApproveMpaRejectsSelfApproval(t *testing.T) {
	doc, alice, _ := buildActivationDoc(t)
	cat := catalog.New(doc)
	signer := &fakeSigner{issued: outbound.ActivationTokenPayload{
		ID: "r1", Requester: "alice@example.com", Environment: "prod", System: "sys", GroupName: "ops-oncall",
		Start: time.Now(), Duration: time.Hour, Reviewers: []string{"alice@example.com"},
	}}
	act := New(cat, &fakeProvisioner{}, signer, DefaultReviewerBounds(), nil, nil)

	_, err := act.ApproveMpa(context.Background(), identity.NewSubject(alice), "tok")
	if !errors.Is(err, ErrApproverIsRequester) {
		t.Fatalf("expected ErrApproverIsRequester, got %v", err)
	}
}

func TestApproveMpaRequiresApproveOthers(t *testing.T) {
	doc, alice, _ := buildActivationDoc(t)
	// alice has APPROVE_SELF but not APPROVE_OTHERS.
	cat := catalog.New(doc)
	signer := &fakeSigner{issued: outbound.ActivationTokenPayload{
		ID: "r1", Requester: "requester@example.com", Environment: "prod", System: "sys", GroupName: "ops-oncall",
		Start: time.Now(), Duration: time.Hour, Reviewers: []string{"alice@example.com"},
	}}
	act := New(cat, &fakeProvisioner{}, signer, DefaultReviewerBounds(), nil, nil)

	_, err := act.ApproveMpa(context.Background(), identity.NewSubject(alice), "tok")
	if err == nil {
		t.Fatal("expected denial: alice lacks APPROVE_OTHERS")
	}
}

func TestApproveMpaProvisionsForRequester(t *testing.T) {
	doc, _, bob := buildActivationDoc(t)
	cat := catalog.New(doc)
	start := time.Now()
	signer := &fakeSigner{issued: outbound.ActivationTokenPayload{
		ID: "r1", Requester: "requester@example.com", Environment: "prod", System: "sys", GroupName: "ops-oncall",
		Start: start, Duration: time.Hour, Reviewers: []string{"bob@example.com"},
	}}
	prov := &fakeProvisioner{}
	act := New(cat, prov, signer, DefaultReviewerBounds(), nil, nil)

	result, err := act.ApproveMpa(context.Background(), identity.NewSubject(bob), "tok")
	if err != nil {
		t.Fatalf("ApproveMpa: %v", err)
	}
	if result.User != "requester@example.com" {
		t.Fatalf("unexpected user: %q", result.User)
	}
	if len(prov.calls) != 1 || prov.calls[0].user != "requester@example.com" {
		t.Fatalf("expected provisioning for the requester, got %+v", prov.calls)
	}
}

func TestApproveMpaRejectsExpiredToken(t *testing.T) {
	doc, _, bob := buildActivationDoc(t)
	cat := catalog.New(doc)
	signer := &fakeSigner{expire: true}
	act := New(cat, &fakeProvisioner{}, signer, DefaultReviewerBounds(), nil, nil)

	_, err := act.ApproveMpa(context.Background(), identity.NewSubject(bob), "tok")
	if !errors.Is(err, outbound.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

type fakeNotifier struct {
	calls []notifyCall
}

type notifyCall struct {
	kind       outbound.NotificationKind
	recipients []string
}

func (f *fakeNotifier) SendNotification(_ context.Context, kind outbound.NotificationKind, recipients, _ []string, _ string, _ map[string]string) error {
	f.calls = append(f.calls, notifyCall{kind: kind, recipients: recipients})
	return nil
}

func TestCreateMpaNotifiesReviewers(t *testing.T) {
	doc, _, bob := buildActivationDoc(t)
	cat := catalog.New(doc)
	notifier := &fakeNotifier{}
	act := New(cat, &fakeProvisioner{}, &fakeSigner{}, DefaultReviewerBounds(), notifier, nil)

	subject := identity.NewSubject(bob)
	groupID := identity.JitGroupId{Environment: "prod", System: "sys", Name: "ops-oncall"}

	if _, err := act.CreateMpa(context.Background(), CreateMpaRequest{
		Subject: subject, GroupID: groupID, Duration: time.Hour, Reviewers: []string{"reviewer@example.com"},
	}); err != nil {
		t.Fatalf("CreateMpa: %v", err)
	}

	if len(notifier.calls) != 1 || notifier.calls[0].kind != outbound.NotificationMpaRequested {
		t.Fatalf("expected one mpa-requested notification, got %+v", notifier.calls)
	}
	if len(notifier.calls[0].recipients) != 1 || notifier.calls[0].recipients[0] != "reviewer@example.com" {
		t.Fatalf("expected the reviewer as recipient, got %+v", notifier.calls[0].recipients)
	}
}

func TestApproveMpaNotifiesRequester(t *testing.T) {
	doc, _, bob := buildActivationDoc(t)
	cat := catalog.New(doc)
	signer := &fakeSigner{issued: outbound.ActivationTokenPayload{
		ID: "r1", Requester: "requester@example.com", Environment: "prod", System: "sys", GroupName: "ops-oncall",
		Start: time.Now(), Duration: time.Hour, Reviewers: []string{"bob@example.com"},
	}}
	notifier := &fakeNotifier{}
	act := New(cat, &fakeProvisioner{}, signer, DefaultReviewerBounds(), notifier, nil)

	if _, err := act.ApproveMpa(context.Background(), identity.NewSubject(bob), "tok"); err != nil {
		t.Fatalf("ApproveMpa: %v", err)
	}

	if len(notifier.calls) != 1 || notifier.calls[0].kind != outbound.NotificationMpaApproved {
		t.Fatalf("expected one mpa-approved notification, got %+v", notifier.calls)
	}
	if len(notifier.calls[0].recipients) != 1 || notifier.calls[0].recipients[0] != "requester@example.com" {
		t.Fatalf("expected the requester as recipient, got %+v", notifier.calls[0].recipients)
	}
}

func TestIntrospectDeniesNonParticipant(t *testing.T) {
	doc, alice, _ := buildActivationDoc(t)
	cat := catalog.New(doc)
	signer := &fakeSigner{issued: outbound.ActivationTokenPayload{
		ID: "r1", Requester: "requester@example.com", Environment: "prod", System: "sys", GroupName: "ops-oncall",
		Start: time.Now(), Duration: time.Hour, Reviewers: []string{"bob@example.com"},
	}}
	act := New(cat, &fakeProvisioner{}, signer, DefaultReviewerBounds(), nil, nil)

	_, err := act.Introspect(context.Background(), identity.NewSubject(alice), "tok")
	if !errors.Is(err, ErrApproverNotReviewer) {
		t.Fatalf("expected ErrApproverNotReviewer, got %v", err)
	}
}
