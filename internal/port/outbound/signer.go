package outbound

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors a TokenSigner implementation's Verify must surface so
// callers can distinguish an expired token from any other malformed/invalid
// one (§4.6: "after expiry, both approveMpa and introspect reject with a
// distinct 'expired' error").
var (
	ErrTokenExpired = errors.New("outbound: activation token expired")
	ErrTokenInvalid = errors.New("outbound: activation token malformed or signature invalid")
)

// ActivationTokenPayload is the full contents of a signed MPA activation
// token (§6): everything needed to reconstruct and re-verify the request
// without any server-side state.
type ActivationTokenPayload struct {
	ID             string
	Requester      string
	Environment    string
	System         string
	GroupName      string
	Justification  string
	Start          time.Time
	Duration       time.Duration
	Reviewers      []string
	Inputs         map[string]string
	ApprovedBy     string    // empty until approved
	ApprovedAt     time.Time // zero until approved
}

// Clone returns a deep copy of payload, safe for a caller to mutate (e.g.
// stamping ApprovedBy/ApprovedAt) without aliasing the slice/map fields.
func (p ActivationTokenPayload) Clone() ActivationTokenPayload {
	out := p
	if p.Reviewers != nil {
		out.Reviewers = append([]string(nil), p.Reviewers...)
	}
	if p.Inputs != nil {
		out.Inputs = make(map[string]string, len(p.Inputs))
		for k, v := range p.Inputs {
			out.Inputs[k] = v
		}
	}
	return out
}

// SignedToken is the result of signing an ActivationTokenPayload.
type SignedToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenSigner asymmetrically signs and verifies activation token payloads
// (§6). Tokens are the sole state an MPA request carries between requester
// and approver (§9): there is no server-side request store.
type TokenSigner interface {
	// Sign produces a signed token for payload, with an expiry roughly one
	// hour out.
	Sign(ctx context.Context, payload ActivationTokenPayload) (SignedToken, error)

	// Verify checks signature, issuer, audience, and expiry, and returns the
	// decoded payload. Fails on: malformed, bad signature, wrong
	// issuer/audience, or expired — expiry is always checked and reported
	// before any other access-control failure (§8 property, S3).
	Verify(ctx context.Context, token string) (ActivationTokenPayload, error)
}
