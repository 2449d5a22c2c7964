package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// jitGroupLabel matches a single "[a-z0-9-]+" path segment.
var jitGroupLabel = `[a-z0-9-]+`

// GroupMapping builds the bijection between a JIT-group logical id
// (env, system, name) and the directory group email that backs it:
// "jit.<env>.<system>.<name>@<domain>" (§4.1).
type GroupMapping struct {
	domain  string
	inverse *regexp.Regexp
}

// NewGroupMapping constructs a GroupMapping for the given directory domain.
// domain must not include a leading "@".
func NewGroupMapping(domain string) (*GroupMapping, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("identity: group mapping domain must not be empty")
	}
	pattern := fmt.Sprintf(`^jit\.(%s)\.(%s)\.(%s)@%s$`, jitGroupLabel, jitGroupLabel, jitGroupLabel, regexp.QuoteMeta(domain))
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("identity: compiling group mapping pattern: %w", err)
	}
	return &GroupMapping{domain: domain, inverse: re}, nil
}

// Domain returns the configured directory domain.
func (m *GroupMapping) Domain() string { return m.domain }

// JitGroupId identifies a JIT group by its three-level logical path.
type JitGroupId struct {
	Environment string
	System      string
	Name        string
}

// PrincipalId returns the jit-group: PrincipalId for this logical id.
func (j JitGroupId) PrincipalId() PrincipalId {
	return NewJitGroup(j.Environment, j.System, j.Name)
}

// String returns the dotted "env.system.name" form.
func (j JitGroupId) String() string {
	return strings.ToLower(j.Environment) + "." + strings.ToLower(j.System) + "." + strings.ToLower(j.Name)
}

// DirectoryEmail builds the directory group email for a logical JIT-group id:
// "jit.<env>.<system>.<name>@<domain>".
func (m *GroupMapping) DirectoryEmail(id JitGroupId) string {
	return fmt.Sprintf("jit.%s.%s.%s@%s",
		strings.ToLower(id.Environment), strings.ToLower(id.System), strings.ToLower(id.Name), m.domain)
}

// JitGroupFromEmail recovers the logical JIT-group id from a directory
// group email. ok is false if the email does not match the mapping pattern.
func (m *GroupMapping) JitGroupFromEmail(email string) (JitGroupId, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	matches := m.inverse.FindStringSubmatch(email)
	if matches == nil {
		return JitGroupId{}, false
	}
	return JitGroupId{Environment: matches[1], System: matches[2], Name: matches[3]}, true
}

// IsJitGroup reports whether email is a directory group email produced by
// this mapping.
func (m *GroupMapping) IsJitGroup(email string) bool {
	_, ok := m.JitGroupFromEmail(email)
	return ok
}

// EnvironmentPrefix returns the "jit.<env>." prefix used to enumerate all
// directory groups belonging to an environment via a prefix search.
func (m *GroupMapping) EnvironmentPrefix(environment string) string {
	return fmt.Sprintf("jit.%s.", strings.ToLower(environment))
}
