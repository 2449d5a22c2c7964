// Package identity contains the domain types and parsing logic for
// principal identities: end users, directory groups, service accounts,
// JIT-group logical identities, and principal classes.
package identity

import (
	"fmt"
	"strings"
)

// Kind identifies the variant of a PrincipalId.
type Kind string

const (
	// KindUser identifies an end-user principal ("user:<email>").
	KindUser Kind = "user"
	// KindGroup identifies a directory group principal ("group:<email>").
	KindGroup Kind = "group"
	// KindServiceAccount identifies a service account principal.
	KindServiceAccount Kind = "serviceAccount"
	// KindJitGroup identifies a JIT-group logical identity, not a directory principal.
	KindJitGroup Kind = "jit-group"
	// KindClass identifies a principal class ("class:iap-users", "class:authenticated-users").
	KindClass Kind = "class"
)

// Well-known principal classes.
const (
	ClassIAPUsers           = "iap-users"
	ClassAuthenticatedUsers = "authenticated-users"
)

// PrincipalId is a tagged-variant identifier with a canonical-lowercase
// string form ("user:<email>", "group:<email>", "serviceAccount:<id>@...",
// "jit-group:<env>.<system>.<name>", "class:<name>").
type PrincipalId struct {
	kind  Kind
	value string // the part after the "kind:" prefix, already canonicalized
}

// Kind returns the principal's kind.
func (p PrincipalId) Kind() Kind { return p.kind }

// Value returns the part of the id after the "kind:" prefix.
func (p PrincipalId) Value() string { return p.value }

// String returns the canonical "kind:value" form.
func (p PrincipalId) String() string {
	if p.kind == "" {
		return ""
	}
	return string(p.kind) + ":" + p.value
}

// IsZero reports whether this is the zero-value PrincipalId.
func (p PrincipalId) IsZero() bool { return p.kind == "" }

// Equal compares two principal ids by their canonical string form.
func (p PrincipalId) Equal(other PrincipalId) bool {
	return p.kind == other.kind && p.value == other.value
}

// NewUser constructs a user principal id from an already-validated email.
func NewUser(email string) PrincipalId {
	return PrincipalId{kind: KindUser, value: strings.ToLower(strings.TrimSpace(email))}
}

// NewGroup constructs a directory group principal id.
func NewGroup(email string) PrincipalId {
	return PrincipalId{kind: KindGroup, value: strings.ToLower(strings.TrimSpace(email))}
}

// NewServiceAccount constructs a service account principal id.
func NewServiceAccount(idAtProject string) PrincipalId {
	return PrincipalId{kind: KindServiceAccount, value: strings.ToLower(strings.TrimSpace(idAtProject))}
}

// NewJitGroup constructs a JIT-group logical principal id from its
// dotted "env.system.name" components.
func NewJitGroup(env, system, name string) PrincipalId {
	v := strings.ToLower(env) + "." + strings.ToLower(system) + "." + strings.ToLower(name)
	return PrincipalId{kind: KindJitGroup, value: v}
}

// NewClass constructs a principal class id (e.g. "authenticated-users").
func NewClass(name string) PrincipalId {
	return PrincipalId{kind: KindClass, value: strings.ToLower(strings.TrimSpace(name))}
}

// AuthenticatedUsersClass is the principal class every Subject implicitly carries.
var AuthenticatedUsersClass = NewClass(ClassAuthenticatedUsers)

// IAPUsersClass is the principal class for identity-aware-proxy authenticated callers.
var IAPUsersClass = NewClass(ClassIAPUsers)

// Parse parses a canonical "kind:value" string into a PrincipalId.
// It is tolerant of surrounding whitespace, canonicalizes to lowercase, and
// requires the type prefix — bare emails do not parse as end-users.
func Parse(s string) (PrincipalId, error) {
	s = strings.TrimSpace(s)
	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return PrincipalId{}, fmt.Errorf("identity: %q is not a prefixed principal id", s)
	}
	prefix := s[:idx]
	rest := strings.ToLower(strings.TrimSpace(s[idx+1:]))
	if rest == "" {
		return PrincipalId{}, fmt.Errorf("identity: %q has an empty principal value", s)
	}

	switch Kind(prefix) {
	case KindUser:
		return ParseUser(rest)
	case KindGroup:
		return ParseGroup(rest)
	case KindServiceAccount:
		return ParseServiceAccount(rest)
	case KindJitGroup:
		return ParseJitGroup(rest)
	case KindClass:
		return ParseClass(rest)
	default:
		return PrincipalId{}, fmt.Errorf("identity: unknown principal kind %q", prefix)
	}
}

// ParseUser parses the value portion of a "user:" principal.
func ParseUser(value string) (PrincipalId, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if !looksLikeEmail(value) {
		return PrincipalId{}, fmt.Errorf("identity: %q is not a valid user email", value)
	}
	return PrincipalId{kind: KindUser, value: value}, nil
}

// ParseGroup parses the value portion of a "group:" principal.
func ParseGroup(value string) (PrincipalId, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if !looksLikeEmail(value) {
		return PrincipalId{}, fmt.Errorf("identity: %q is not a valid group email", value)
	}
	return PrincipalId{kind: KindGroup, value: value}, nil
}

// ParseServiceAccount parses the value portion of a "serviceAccount:" principal,
// expecting the "<id>@<project>.iam.*" shape.
func ParseServiceAccount(value string) (PrincipalId, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	at := strings.Index(value, "@")
	if at <= 0 || !strings.Contains(value[at+1:], ".iam.") {
		return PrincipalId{}, fmt.Errorf("identity: %q is not a valid service account id", value)
	}
	return PrincipalId{kind: KindServiceAccount, value: value}, nil
}

// ParseJitGroup parses the value portion of a "jit-group:" principal,
// expecting the "<env>.<system>.<name>" shape.
func ParseJitGroup(value string) (PrincipalId, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return PrincipalId{}, fmt.Errorf("identity: %q is not a valid jit-group id (want env.system.name)", value)
	}
	for _, p := range parts {
		if !isDNSLabel(p) {
			return PrincipalId{}, fmt.Errorf("identity: %q is not a valid jit-group id (bad segment %q)", value, p)
		}
	}
	return PrincipalId{kind: KindJitGroup, value: value}, nil
}

// ParseClass parses the value portion of a "class:" principal.
func ParseClass(value string) (PrincipalId, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case ClassIAPUsers, ClassAuthenticatedUsers:
		return PrincipalId{kind: KindClass, value: value}, nil
	default:
		return PrincipalId{}, fmt.Errorf("identity: unknown principal class %q", value)
	}
}

func looksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	if strings.ContainsAny(s, " \t\n\"'") {
		return false
	}
	return strings.Contains(s[at+1:], ".")
}

func isDNSLabel(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' {
			return false
		}
	}
	return true
}
