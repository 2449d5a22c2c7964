package catalog

import (
	"context"
	"time"

	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/policy"
)

// AnalysisResult is the outcome of an access analysis for
// (subject, groupPolicy, requestedMask) per §4.5.
type AnalysisResult struct {
	ACLAllowed       bool
	Checks           []policy.CheckResult
	ActiveMembership bool
	Allowed          bool
}

// Analyze runs the §4.5 access analysis: evaluate the effective ACL,
// collect and evaluate the effective constraints for class, and look up
// whether subject currently holds a valid membership principal for group.
//
// includeConstraints selects the decision policy: true applies the default
// "include constraints" rule (allowed iff aclAllowed AND no check is
// unsatisfied); false applies "ignore constraints" (allowed iff aclAllowed
// alone). activeMembership is recorded but never substitutes for a denied
// ACL (§4.5, §8 property 8).
func Analyze(ctx context.Context, subject identity.Subject, group *policy.JitGroupPolicy, requestedMask policy.PermissionMask, class policy.ConstraintClass, input policy.EvaluationInput, includeConstraints bool) AnalysisResult {
	aclAllowed := policy.EffectiveACL(group).IsAllowed(subject, requestedMask)

	constraints := policy.EffectiveConstraintsForClass(group, class)
	checks := make([]policy.CheckResult, 0, len(constraints))
	unsatisfied := false
	for _, c := range constraints {
		res := c.Evaluate(ctx, input)
		checks = append(checks, res)
		if !res.Satisfied {
			unsatisfied = true
		}
	}

	groupID := identity.NewJitGroup(group.Environment().Name, group.System().Name, group.Name)
	_, activeMembership := subject.ActivePrincipal(groupID, time.Now())

	allowed := aclAllowed
	if includeConstraints {
		allowed = aclAllowed && !unsatisfied
	}

	return AnalysisResult{
		ACLAllowed:       aclAllowed,
		Checks:           checks,
		ActiveMembership: activeMembership,
		Allowed:          allowed,
	}
}

// Verify applies §4.5's error-raising rule to a denied AnalysisResult:
// ConstraintFailedError if any check errored, else a
// ConstraintUnsatisfiedError naming the first unsatisfied check, else the
// generic access-denied error. Returns nil when result.Allowed.
func Verify(result AnalysisResult) error {
	if result.Allowed {
		return nil
	}

	var failedNames []string
	for _, c := range result.Checks {
		if c.Failed {
			failedNames = append(failedNames, c.Name)
		}
	}
	if len(failedNames) > 0 {
		return &policy.ConstraintFailedError{ConstraintNames: failedNames}
	}

	for _, c := range result.Checks {
		if !c.Satisfied {
			return &policy.ConstraintUnsatisfiedError{ConstraintName: c.Name}
		}
	}

	return policy.ErrAccessDenied
}

// AdoptedDuration returns the membership duration produced by whichever
// check in result.Checks carried one (the winning ExpiryConstraint, §4.3),
// and whether one was found.
func AdoptedDuration(result AnalysisResult) (time.Duration, bool) {
	for _, c := range result.Checks {
		if c.Duration > 0 {
			return c.Duration, true
		}
	}
	return 0, false
}
