// Package jwtsigner implements outbound.TokenSigner as Ed25519-signed
// compact JWS, carrying the activation request as a private claim.
package jwtsigner

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/jitgroups/broker/internal/port/outbound"
)

// defaultTokenTTL is the activation token's lifetime, independent of the
// membership start/duration it carries (§4.6 step 2).
const defaultTokenTTL = time.Hour

// requestClaims is the activation request, carried as a private JWT claim
// alongside the standard registered claims used for issuer/audience/expiry
// checks.
type requestClaims struct {
	Environment   string            `json:"environment"`
	System        string            `json:"system"`
	GroupName     string            `json:"group_name"`
	Justification string            `json:"justification"`
	Start         time.Time         `json:"start"`
	Duration      time.Duration     `json:"duration"`
	Reviewers     []string          `json:"reviewers"`
	Inputs        map[string]string `json:"inputs,omitempty"`
}

type tokenClaims struct {
	jwt.Claims
	Request requestClaims `json:"req"`
}

// Signer signs and verifies activation tokens with an Ed25519 key pair.
type Signer struct {
	private  ed25519.PrivateKey
	public   ed25519.PublicKey
	issuer   string
	audience string
	ttl      time.Duration
}

// New constructs a Signer. issuer/audience are the registered claims every
// signed token carries and every verified token is checked against.
func New(private ed25519.PrivateKey, issuer, audience string) *Signer {
	return &Signer{
		private:  private,
		public:   private.Public().(ed25519.PublicKey),
		issuer:   issuer,
		audience: audience,
		ttl:      defaultTokenTTL,
	}
}

var _ outbound.TokenSigner = (*Signer)(nil)

// Sign implements outbound.TokenSigner.
func (s *Signer) Sign(_ context.Context, payload outbound.ActivationTokenPayload) (outbound.SignedToken, error) {
	key := jose.SigningKey{Algorithm: jose.EdDSA, Key: s.private}
	signer, err := jose.NewSigner(key, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return outbound.SignedToken{}, fmt.Errorf("jwtsigner: new signer: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := tokenClaims{
		Claims: jwt.Claims{
			ID:       payload.ID,
			Subject:  payload.Requester,
			Issuer:   s.issuer,
			Audience: jwt.Audience{s.audience},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(expiresAt),
		},
		Request: requestClaims{
			Environment:   payload.Environment,
			System:        payload.System,
			GroupName:     payload.GroupName,
			Justification: payload.Justification,
			Start:         payload.Start,
			Duration:      payload.Duration,
			Reviewers:     payload.Reviewers,
			Inputs:        payload.Inputs,
		},
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return outbound.SignedToken{}, fmt.Errorf("jwtsigner: serialize: %w", err)
	}

	return outbound.SignedToken{Token: token, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// Verify implements outbound.TokenSigner.
func (s *Signer) Verify(_ context.Context, token string) (outbound.ActivationTokenPayload, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return outbound.ActivationTokenPayload{}, fmt.Errorf("%w: %v", outbound.ErrTokenInvalid, err)
	}

	var claims tokenClaims
	if err := parsed.Claims(s.public, &claims); err != nil {
		return outbound.ActivationTokenPayload{}, fmt.Errorf("%w: %v", outbound.ErrTokenInvalid, err)
	}

	expected := jwt.Expected{
		Issuer:      s.issuer,
		AnyAudience: jwt.Audience{s.audience},
		Time:        time.Now(),
	}
	if err := claims.Claims.Validate(expected); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return outbound.ActivationTokenPayload{}, outbound.ErrTokenExpired
		}
		return outbound.ActivationTokenPayload{}, fmt.Errorf("%w: %v", outbound.ErrTokenInvalid, err)
	}

	return outbound.ActivationTokenPayload{
		ID:            claims.ID,
		Requester:     claims.Subject,
		Environment:   claims.Request.Environment,
		System:        claims.Request.System,
		GroupName:     claims.Request.GroupName,
		Justification: claims.Request.Justification,
		Start:         claims.Request.Start,
		Duration:      claims.Request.Duration,
		Reviewers:     claims.Request.Reviewers,
		Inputs:        claims.Request.Inputs,
	}, nil
}
