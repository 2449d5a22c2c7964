// Package activation implements the MPA/JIT activation state machine
// (§4.6): access analysis followed by either immediate self-approval or a
// signed, stateless token handed off to a reviewer.
package activation

import (
	"time"

	"github.com/jitgroups/broker/internal/domain/identity"
)

// ReviewerBounds configures the allowed |reviewers| range for an MPA
// request (§4.6: "configurable; defaults min=1, max=10").
type ReviewerBounds struct {
	Min int
	Max int
}

// DefaultReviewerBounds returns the spec's default bounds.
func DefaultReviewerBounds() ReviewerBounds {
	return ReviewerBounds{Min: 1, Max: 10}
}

func (b ReviewerBounds) normalized() ReviewerBounds {
	if b.Min <= 0 {
		b.Min = 1
	}
	if b.Max <= 0 {
		b.Max = 10
	}
	return b
}

func (b ReviewerBounds) contains(n int) bool {
	b = b.normalized()
	return n >= b.Min && n <= b.Max
}

// CreateJitRequest is the input to Activator.CreateJit.
type CreateJitRequest struct {
	Subject       identity.Subject
	GroupID       identity.JitGroupId
	Inputs        map[string]string
	Justification string
	Duration      time.Duration
}

// CreateMpaRequest is the input to Activator.CreateMpa.
type CreateMpaRequest struct {
	Subject       identity.Subject
	GroupID       identity.JitGroupId
	Inputs        map[string]string
	Justification string
	Duration      time.Duration
	Reviewers     []string // reviewer emails
}

// ActivationResult is the outcome of a successful CreateJit or ApproveMpa
// call: the membership that was (or is being) provisioned.
type ActivationResult struct {
	GroupID  identity.JitGroupId
	User     string
	Start    time.Time
	Duration time.Duration
	Expiry   time.Time
}

// RequestView is the read-only projection of a token's contents returned by
// Introspect: every field an authorized caller may see, never a live
// capability.
type RequestView struct {
	ID            string
	Requester     string
	GroupID       identity.JitGroupId
	Justification string
	Start         time.Time
	Duration      time.Duration
	Reviewers     []string
	Inputs        map[string]string
	ApprovedBy    string
	ApprovedAt    time.Time
}
