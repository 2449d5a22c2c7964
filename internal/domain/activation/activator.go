package activation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jitgroups/broker/internal/domain/catalog"
	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/policy"
	"github.com/jitgroups/broker/internal/port/outbound"
)

// MembershipProvisioner is the subset of internal/domain/provisioning's
// Provisioner the activator depends on, so activation can be tested without
// a real directory/IAM backend.
type MembershipProvisioner interface {
	ProvisionMembership(ctx context.Context, group *policy.JitGroupPolicy, user string, expiry time.Time) error
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Activator runs the §4.6 state machine over a loaded catalog.
type Activator struct {
	catalog     *catalog.Catalog
	provisioner MembershipProvisioner
	signer      outbound.TokenSigner
	notifier    outbound.NotificationDispatcher
	bounds      ReviewerBounds
	now         Clock
	logger      *slog.Logger
}

// New constructs an Activator. bounds is normalized here, at construction.
// notifier may be nil: MPA requested/approved notifications become a no-op
// rather than an error (§6: NotificationDispatcher is an optional
// collaborator). logger may be nil, selecting slog.Default().
func New(cat *catalog.Catalog, provisioner MembershipProvisioner, signer outbound.TokenSigner, bounds ReviewerBounds, notifier outbound.NotificationDispatcher, logger *slog.Logger) *Activator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activator{
		catalog:     cat,
		provisioner: provisioner,
		signer:      signer,
		notifier:    notifier,
		bounds:      bounds.normalized(),
		now:         time.Now,
		logger:      logger,
	}
}

// notify dispatches a best-effort MPA lifecycle notification. A dispatch
// failure is logged and never propagated (§6, E.3): the activation it is
// attached to has already succeeded or is independent of delivery.
func (a *Activator) notify(ctx context.Context, kind outbound.NotificationKind, recipients []string, subject string, properties map[string]string) {
	if a.notifier == nil || len(recipients) == 0 {
		return
	}
	if err := a.notifier.SendNotification(ctx, kind, recipients, nil, subject, properties); err != nil {
		a.logger.WarnContext(ctx, "mpa notification dispatch failed", "kind", kind, "error", err)
	}
}

func (a *Activator) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func buildInput(subject identity.Subject, groupID identity.JitGroupId, duration time.Duration, inputs map[string]string) policy.EvaluationInput {
	principals := make([]string, 0)
	for _, p := range subject.Principals() {
		principals = append(principals, p.ID.String())
	}
	return policy.EvaluationInput{
		SubjectEmail:      subject.User().Value(),
		SubjectPrincipals: principals,
		Environment:       groupID.Environment,
		System:            groupID.System,
		GroupName:         groupID.Name,
		RequestedDuration: duration,
		Variables:         inputs,
	}
}

// CreateJit runs §4.6's createJit operation: access analysis under class
// JOIN, a self-approval permission check, then provisioning in one call.
func (a *Activator) CreateJit(ctx context.Context, req CreateJitRequest) (ActivationResult, error) {
	group, ok := a.catalog.GroupNode(req.GroupID)
	if !ok {
		return ActivationResult{}, ErrGroupNotFound
	}

	input := buildInput(req.Subject, req.GroupID, req.Duration, req.Inputs)
	analysis := catalog.Analyze(ctx, req.Subject, group, policy.PermissionJoin, policy.ClassJoin, input, true)
	if err := catalog.Verify(analysis); err != nil {
		a.logger.WarnContext(ctx, "jit activation denied", "user", req.Subject.User().Value(), "group", req.GroupID.String(), "error", err)
		return ActivationResult{}, err
	}

	if !policy.EffectiveACL(group).IsAllowed(req.Subject, policy.PermissionApproveSelf) {
		a.logger.WarnContext(ctx, "jit activation denied: self-approval not permitted", "user", req.Subject.User().Value(), "group", req.GroupID.String())
		return ActivationResult{}, ErrSelfApprovalNotPermitted
	}

	duration := req.Duration
	if adopted, ok := catalog.AdoptedDuration(analysis); ok {
		duration = adopted
	}

	start := a.clock()
	expiry := start.Add(duration)
	if err := a.provisioner.ProvisionMembership(ctx, group, req.Subject.User().Value(), expiry); err != nil {
		return ActivationResult{}, fmt.Errorf("activation: provision membership: %w", err)
	}

	a.logger.InfoContext(ctx, "jit activation approved", "user", req.Subject.User().Value(), "group", req.GroupID.String(), "expiry", expiry)
	return ActivationResult{GroupID: req.GroupID, User: req.Subject.User().Value(), Start: start, Duration: duration, Expiry: expiry}, nil
}

// CreateMpa runs §4.6's createMpa operation: the same analysis as CreateJit
// but for a subject lacking APPROVE_SELF, issuing a signed, stateless
// activation token instead of provisioning directly.
func (a *Activator) CreateMpa(ctx context.Context, req CreateMpaRequest) (outbound.SignedToken, error) {
	group, ok := a.catalog.GroupNode(req.GroupID)
	if !ok {
		return outbound.SignedToken{}, ErrGroupNotFound
	}

	input := buildInput(req.Subject, req.GroupID, req.Duration, req.Inputs)
	analysis := catalog.Analyze(ctx, req.Subject, group, policy.PermissionJoin, policy.ClassJoin, input, true)
	if err := catalog.Verify(analysis); err != nil {
		a.logger.WarnContext(ctx, "mpa request denied", "user", req.Subject.User().Value(), "group", req.GroupID.String(), "error", err)
		return outbound.SignedToken{}, err
	}

	if policy.EffectiveACL(group).IsAllowed(req.Subject, policy.PermissionApproveSelf) {
		return outbound.SignedToken{}, ErrSelfApprovalRequired
	}

	if !a.bounds.contains(len(req.Reviewers)) {
		return outbound.SignedToken{}, ErrReviewerCountOutOfBounds
	}

	duration := req.Duration
	if adopted, ok := catalog.AdoptedDuration(analysis); ok {
		duration = adopted
	}

	payload := outbound.ActivationTokenPayload{
		ID:            uuid.NewString(),
		Requester:     req.Subject.User().Value(),
		Environment:   req.GroupID.Environment,
		System:        req.GroupID.System,
		GroupName:     req.GroupID.Name,
		Justification: req.Justification,
		Start:         a.clock(),
		Duration:      duration,
		Reviewers:     req.Reviewers,
		Inputs:        req.Inputs,
	}

	signed, err := a.signer.Sign(ctx, payload)
	if err != nil {
		return outbound.SignedToken{}, fmt.Errorf("activation: sign token: %w", err)
	}

	a.logger.InfoContext(ctx, "mpa request issued", "user", req.Subject.User().Value(), "group", req.GroupID.String(), "reviewers", req.Reviewers)
	a.notify(ctx, outbound.NotificationMpaRequested, req.Reviewers,
		fmt.Sprintf("MPA request: %s for %s", req.Subject.User().Value(), req.GroupID.String()),
		map[string]string{"requester": req.Subject.User().Value(), "group": req.GroupID.String(), "justification": req.Justification})
	return signed, nil
}

// ApproveMpa runs §4.6's approveMpa operation.
func (a *Activator) ApproveMpa(ctx context.Context, approver identity.Subject, token string) (ActivationResult, error) {
	payload, err := a.signer.Verify(ctx, token)
	if err != nil {
		a.logger.WarnContext(ctx, "mpa token verification failed", "error", err)
		return ActivationResult{}, err
	}

	if approver.User().Value() == payload.Requester {
		a.logger.WarnContext(ctx, "mpa approval denied: self-approval", "requester", payload.Requester)
		return ActivationResult{}, ErrApproverIsRequester
	}
	if !isReviewer(approver.User().Value(), payload.Reviewers) {
		a.logger.WarnContext(ctx, "mpa approval denied: not a listed reviewer", "approver", approver.User().Value(), "requester", payload.Requester)
		return ActivationResult{}, ErrApproverNotReviewer
	}

	groupID := identity.JitGroupId{Environment: payload.Environment, System: payload.System, Name: payload.GroupName}
	group, ok := a.catalog.GroupNode(groupID)
	if !ok {
		return ActivationResult{}, ErrGroupNotFound
	}

	input := buildInput(approver, groupID, payload.Duration, payload.Inputs)
	analysis := catalog.Analyze(ctx, approver, group, policy.PermissionApproveOthers, policy.ClassApprove, input, true)
	if err := catalog.Verify(analysis); err != nil {
		a.logger.WarnContext(ctx, "mpa approval denied", "approver", approver.User().Value(), "group", groupID.String(), "error", err)
		return ActivationResult{}, err
	}

	expiry := payload.Start.Add(payload.Duration)
	if err := a.provisioner.ProvisionMembership(ctx, group, payload.Requester, expiry); err != nil {
		return ActivationResult{}, fmt.Errorf("activation: provision membership: %w", err)
	}

	a.logger.InfoContext(ctx, "mpa approved", "approver", approver.User().Value(), "requester", payload.Requester, "group", groupID.String(), "expiry", expiry)
	a.notify(ctx, outbound.NotificationMpaApproved, []string{payload.Requester},
		fmt.Sprintf("MPA approved: %s for %s", payload.Requester, groupID.String()),
		map[string]string{"approver": approver.User().Value(), "group": groupID.String()})
	return ActivationResult{GroupID: groupID, User: payload.Requester, Start: payload.Start, Duration: payload.Duration, Expiry: expiry}, nil
}

// Introspect runs §4.6's introspect operation: verify-only, never a
// side-effecting call. The caller must be the requester or one of the
// reviewers.
func (a *Activator) Introspect(ctx context.Context, caller identity.Subject, token string) (RequestView, error) {
	payload, err := a.signer.Verify(ctx, token)
	if err != nil {
		return RequestView{}, err
	}

	email := caller.User().Value()
	if email != payload.Requester && !isReviewer(email, payload.Reviewers) {
		return RequestView{}, ErrApproverNotReviewer
	}

	return RequestView{
		ID:            payload.ID,
		Requester:     payload.Requester,
		GroupID:       identity.JitGroupId{Environment: payload.Environment, System: payload.System, Name: payload.GroupName},
		Justification: payload.Justification,
		Start:         payload.Start,
		Duration:      payload.Duration,
		Reviewers:     payload.Reviewers,
		Inputs:        payload.Inputs,
		ApprovedBy:    payload.ApprovedBy,
		ApprovedAt:    payload.ApprovedAt,
	}, nil
}

func isReviewer(email string, reviewers []string) bool {
	for _, r := range reviewers {
		if r == email {
			return true
		}
	}
	return false
}
