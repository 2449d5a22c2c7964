// Package service composes the domain core (subject resolution, catalog,
// activation, provisioning) into the operations the CLI calls, adding the
// cross-cutting ambient concerns the domain packages themselves stay free
// of: metrics, tracing, and audit-ledger recording.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jitgroups/broker/internal/domain/activation"
	"github.com/jitgroups/broker/internal/domain/catalog"
	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/provisioning"
	"github.com/jitgroups/broker/internal/domain/subject"
	"github.com/jitgroups/broker/internal/metrics"
	"github.com/jitgroups/broker/internal/port/outbound"
	"github.com/jitgroups/broker/internal/telemetry"
)

// Broker composes the domain core for CLI/application use. Activate,
// RequestMpa, ApproveMpa and Reconcile wrap their domain call with a trace
// span, a metrics observation, and an audit-ledger record; ResolveSubject
// and AuditHistory call straight through.
type Broker struct {
	Catalog     *catalog.Catalog
	Resolver    *subject.Resolver
	Activator   *activation.Activator
	Provisioner *provisioning.Provisioner

	metrics   *metrics.Metrics
	telemetry *telemetry.Providers
	ledger    outbound.AuditLedger
	logger    *slog.Logger
}

// New composes a Broker from its domain collaborators and ambient
// infrastructure. m, tel, and ledger may each be nil: metrics/spans/audit
// recording become no-ops rather than errors, matching the domain
// packages' own "optional collaborator" posture (logger nil selects
// slog.Default(), telemetry nil selects telemetry.Noop()).
func New(cat *catalog.Catalog, resolver *subject.Resolver, act *activation.Activator, prov *provisioning.Provisioner, m *metrics.Metrics, tel *telemetry.Providers, ledger outbound.AuditLedger, logger *slog.Logger) *Broker {
	if tel == nil {
		tel = telemetry.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		Catalog: cat, Resolver: resolver, Activator: act, Provisioner: prov,
		metrics: m, telemetry: tel, ledger: ledger, logger: logger,
	}
}

func (b *Broker) recordAudit(ctx context.Context, kind outbound.AuditRecordKind, groupID, subjectEmail, outcome, detail string) {
	if b.ledger == nil {
		return
	}
	if err := b.ledger.Record(ctx, outbound.AuditRecord{
		Kind: kind, GroupID: groupID, Subject: subjectEmail, Outcome: outcome, Detail: detail,
	}); err != nil {
		b.logger.WarnContext(ctx, "audit ledger record failed", "error", err)
	}
}

// ResolveSubject expands an authenticated end-user email into its full
// principal set (§4.4).
func (b *Broker) ResolveSubject(ctx context.Context, userEmail string) (identity.Subject, error) {
	user, err := identity.ParseUser(userEmail)
	if err != nil {
		return identity.Subject{}, fmt.Errorf("service: parse user: %w", err)
	}
	return b.Resolver.Resolve(ctx, user)
}

// Activate runs CreateJit, instrumented with a span, an activation-outcome
// counter, an activation-duration histogram, and an audit record.
func (b *Broker) Activate(ctx context.Context, req activation.CreateJitRequest) (activation.ActivationResult, error) {
	ctx, span := b.telemetry.StartActivationSpan(ctx, "jit", req.GroupID.String())
	started := time.Now()
	result, err := b.Activator.CreateJit(ctx, req)
	b.observeActivation("jit", started, err)
	telemetry.EndSpan(span, err)

	outcome := "allowed"
	if err != nil {
		outcome = "denied"
	}
	b.recordAudit(ctx, outbound.AuditActivation, req.GroupID.String(), req.Subject.User().Value(), outcome, "jit")
	return result, err
}

// RequestMpa runs CreateMpa, instrumented the same way as Activate.
func (b *Broker) RequestMpa(ctx context.Context, req activation.CreateMpaRequest) (outbound.SignedToken, error) {
	ctx, span := b.telemetry.StartActivationSpan(ctx, "mpa", req.GroupID.String())
	started := time.Now()
	token, err := b.Activator.CreateMpa(ctx, req)
	b.observeActivation("mpa", started, err)
	telemetry.EndSpan(span, err)

	outcome := "allowed"
	if err != nil {
		outcome = "denied"
	}
	b.recordAudit(ctx, outbound.AuditActivation, req.GroupID.String(), req.Subject.User().Value(), outcome, "mpa-requested")
	return token, err
}

// ApproveMpa runs ApproveMpa, instrumented the same way as Activate.
func (b *Broker) ApproveMpa(ctx context.Context, approver identity.Subject, token string) (activation.ActivationResult, error) {
	ctx, span := b.telemetry.StartActivationSpan(ctx, "mpa-approve", "")
	started := time.Now()
	result, err := b.Activator.ApproveMpa(ctx, approver, token)
	b.observeActivation("mpa-approve", started, err)
	telemetry.EndSpan(span, err)

	outcome := "allowed"
	groupID := ""
	if err == nil {
		groupID = result.GroupID.String()
	}
	if err != nil {
		outcome = "denied"
	}
	b.recordAudit(ctx, outbound.AuditActivation, groupID, approver.User().Value(), outcome, "mpa-approved")
	return result, err
}

func (b *Broker) observeActivation(kind string, started time.Time, err error) {
	if b.metrics == nil {
		return
	}
	outcome := "allowed"
	if err != nil {
		outcome = "denied"
	}
	b.metrics.ActivationsTotal.WithLabelValues(kind, outcome).Inc()
	b.metrics.ActivationDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// Reconcile runs provisioning reconciliation for a single group. It checks
// no RECONCILE permission itself.
func (b *Broker) Reconcile(ctx context.Context, groupID identity.JitGroupId) error {
	group, ok := b.Catalog.GroupNode(groupID)
	if !ok {
		return fmt.Errorf("service: group %s not found", groupID.String())
	}

	ctx, span := b.telemetry.StartProvisionSpan(ctx, groupID.String())
	err := b.Provisioner.Reconcile(ctx, group)
	telemetry.EndSpan(span, err)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if b.metrics != nil {
		b.metrics.ProvisioningTotal.WithLabelValues(outcome).Inc()
	}
	b.recordAudit(ctx, outbound.AuditProvisioning, groupID.String(), "system", outcome, "reconcile")
	return err
}

// AuditHistory returns the most recent audit records for groupID, callers
// having already verified EXPORT permission.
func (b *Broker) AuditHistory(ctx context.Context, groupID identity.JitGroupId, limit int) ([]outbound.AuditRecord, error) {
	if b.ledger == nil {
		return nil, nil
	}
	return b.ledger.RecentByGroup(ctx, groupID.String(), limit)
}

// Close releases the broker's owned resources (the audit ledger, telemetry
// exporters).
func (b *Broker) Close(ctx context.Context) error {
	var err error
	if b.ledger != nil {
		if cerr := b.ledger.Close(); cerr != nil {
			err = cerr
		}
	}
	if b.telemetry != nil && b.telemetry.Shutdown != nil {
		if serr := b.telemetry.Shutdown(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
