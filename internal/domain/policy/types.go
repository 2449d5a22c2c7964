// Package policy contains the in-memory policy tree: environments, systems,
// and JIT groups, each carrying an optional ACL and a set of constraints,
// inherited down the tree and overridable by name (§3, §4.2).
package policy

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// nameRe matches the "[a-z0-9-]" name charset shared by environments,
// systems, and groups. Environment names are additionally capped at 16
// characters (§3).
var nameRe = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateName checks a policy node name against the shared charset and,
// for environments, the length cap.
func ValidateName(name string, maxLen int) error {
	if name == "" {
		return fmt.Errorf("policy: name must not be empty")
	}
	if maxLen > 0 && len(name) > maxLen {
		return fmt.Errorf("policy: name %q exceeds maximum length %d", name, maxLen)
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("policy: name %q must match [a-z0-9-]+", name)
	}
	return nil
}

// Metadata records provenance information for an EnvironmentPolicy.
type Metadata struct {
	// Source identifies where the policy document was loaded from
	// (e.g. a file path or a config-management ref).
	Source string
	// LastModified is when the source document was last modified.
	LastModified time.Time
}

// IamRoleBinding is the one privilege kind a JIT group can declare today:
// a resource-IAM role grant, with an optional CEL condition expression and
// an optional human-readable description copied through verbatim.
type IamRoleBinding struct {
	Resource    string
	Role        string
	Condition   string // empty means "no condition"
	Description string // empty means "no description"
}

// Node is the shared capability every policy-tree node exposes: a parent
// reference (nil for the root environment), the ACL declared directly on
// this node (may be empty/nil for non-root nodes), and the constraints
// declared directly on this node.
type Node interface {
	// Parent returns the node's parent, or nil for the root EnvironmentPolicy.
	Parent() Node
	// OwnACL returns the ACL declared directly on this node (not inherited).
	OwnACL() AccessControlList
	// OwnConstraints returns the constraints declared directly on this node.
	OwnConstraints() []Constraint
	// NodeName returns this node's own (not dotted) name.
	NodeName() string
}

// EnvironmentPolicy is the root of a policy tree.
type EnvironmentPolicy struct {
	Name        string
	Metadata    Metadata
	ACL         AccessControlList // required, non-empty
	Constraints []Constraint
	Systems     []*SystemPolicy
}

var _ Node = (*EnvironmentPolicy)(nil)

// Parent implements Node; environments have no parent.
func (e *EnvironmentPolicy) Parent() Node { return nil }

// OwnACL implements Node.
func (e *EnvironmentPolicy) OwnACL() AccessControlList { return e.ACL }

// OwnConstraints implements Node.
func (e *EnvironmentPolicy) OwnConstraints() []Constraint { return e.Constraints }

// NodeName implements Node.
func (e *EnvironmentPolicy) NodeName() string { return e.Name }

// System looks up a direct child system by case-insensitive name.
func (e *EnvironmentPolicy) System(name string) (*SystemPolicy, bool) {
	lower := strings.ToLower(name)
	for _, s := range e.Systems {
		if strings.ToLower(s.Name) == lower {
			return s, true
		}
	}
	return nil, false
}

// SystemPolicy is a second-level node under an EnvironmentPolicy.
type SystemPolicy struct {
	Name        string
	parent      *EnvironmentPolicy
	ACL         AccessControlList // optional; nil means "none declared here"
	Constraints []Constraint
	Groups      []*JitGroupPolicy
}

var _ Node = (*SystemPolicy)(nil)

// Parent implements Node.
func (s *SystemPolicy) Parent() Node { return s.parent }

// Environment returns the owning EnvironmentPolicy.
func (s *SystemPolicy) Environment() *EnvironmentPolicy { return s.parent }

// OwnACL implements Node.
func (s *SystemPolicy) OwnACL() AccessControlList { return s.ACL }

// OwnConstraints implements Node.
func (s *SystemPolicy) OwnConstraints() []Constraint { return s.Constraints }

// NodeName implements Node.
func (s *SystemPolicy) NodeName() string { return s.Name }

// Group looks up a direct child JIT group by case-insensitive name.
func (s *SystemPolicy) Group(name string) (*JitGroupPolicy, bool) {
	lower := strings.ToLower(name)
	for _, g := range s.Groups {
		if strings.ToLower(g.Name) == lower {
			return g, true
		}
	}
	return nil, false
}

// JitGroupPolicy is a third-level (leaf) node: a JIT-activatable group.
type JitGroupPolicy struct {
	Name        string
	Description string
	parent      *SystemPolicy
	ACL         AccessControlList // optional
	Constraints []Constraint
	Privileges  []IamRoleBinding
}

var _ Node = (*JitGroupPolicy)(nil)

// Parent implements Node.
func (g *JitGroupPolicy) Parent() Node { return g.parent }

// System returns the owning SystemPolicy.
func (g *JitGroupPolicy) System() *SystemPolicy { return g.parent }

// Environment returns the owning EnvironmentPolicy.
func (g *JitGroupPolicy) Environment() *EnvironmentPolicy { return g.parent.parent }

// OwnACL implements Node.
func (g *JitGroupPolicy) OwnACL() AccessControlList { return g.ACL }

// OwnConstraints implements Node.
func (g *JitGroupPolicy) OwnConstraints() []Constraint { return g.Constraints }

// NodeName implements Node.
func (g *JitGroupPolicy) NodeName() string { return g.Name }
