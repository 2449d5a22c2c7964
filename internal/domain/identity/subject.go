package identity

import "time"

// Principal is a PrincipalId optionally paired with an expiry timestamp.
// Membership is "valid" iff the expiry is absent (zero) or in the future.
type Principal struct {
	ID     PrincipalId
	Expiry time.Time // zero value means "no expiry"
}

// HasExpiry reports whether this principal carries an expiry timestamp.
func (p Principal) HasExpiry() bool { return !p.Expiry.IsZero() }

// ValidAt reports whether the principal's membership is valid at time t:
// true if it has no expiry, or its expiry is strictly after t.
func (p Principal) ValidAt(t time.Time) bool {
	return !p.HasExpiry() || p.Expiry.After(t)
}

// Subject is an immutable pair of an authenticated end-user PrincipalId and
// the full set of Principals credited to them (always including the
// end-user itself and the authenticated-users class).
//
// Equality of principals within the set is by id only; expiry is metadata
// carried alongside, not part of identity.
type Subject struct {
	user       PrincipalId
	principals map[PrincipalId]Principal
}

// NewSubject builds a Subject for the given end-user, adding the end-user
// itself and the authenticated-users class to the supplied extra principals.
func NewSubject(user PrincipalId, extra ...Principal) Subject {
	set := make(map[PrincipalId]Principal, len(extra)+2)
	set[user] = Principal{ID: user}
	set[AuthenticatedUsersClass] = Principal{ID: AuthenticatedUsersClass}
	for _, p := range extra {
		set[p.ID] = p
	}
	return Subject{user: user, principals: set}
}

// User returns the end-user PrincipalId this subject was resolved for.
func (s Subject) User() PrincipalId { return s.user }

// Principals returns a copy of the subject's principal set.
func (s Subject) Principals() []Principal {
	out := make([]Principal, 0, len(s.principals))
	for _, p := range s.principals {
		out = append(out, p)
	}
	return out
}

// Has reports whether the subject's principal set contains id, regardless
// of expiry.
func (s Subject) Has(id PrincipalId) bool {
	_, ok := s.principals[id]
	return ok
}

// ActivePrincipal returns the Principal for id and whether it is present
// and currently valid (see Principal.ValidAt) at time t.
func (s Subject) ActivePrincipal(id PrincipalId, t time.Time) (Principal, bool) {
	p, ok := s.principals[id]
	if !ok {
		return Principal{}, false
	}
	return p, p.ValidAt(t)
}

// Matches reports whether an ACE principal id is satisfied by this subject:
// direct id membership, or (for the authenticated-users class) always true
// since NewSubject guarantees its presence.
func (s Subject) Matches(ace PrincipalId) bool {
	return s.Has(ace)
}
