package policy

import (
	"fmt"
	"strings"

	"github.com/jitgroups/broker/internal/domain/identity"
)

// maxEnvironmentNameLen is the §3 cap on environment names.
const maxEnvironmentNameLen = 16

// DefaultEnvironmentACL is the ACL installed on an environment when none is
// supplied: VIEW for the authenticated-users class (§3).
func DefaultEnvironmentACL() AccessControlList {
	return AccessControlList{
		{Principal: identity.AuthenticatedUsersClass, Mask: PermissionView, Kind: Allow},
	}
}

// NewEnvironmentPolicy constructs a root environment node. Its systems and
// their groups must be attached via AddSystem/AddGroup before the tree is
// used, so that parent pointers are set exactly once at construction and are
// immutable thereafter (§3 invariant).
//
// If acl is empty, DefaultEnvironmentACL is installed (§3: "The environment
// ACL must be non-empty; by default it grants VIEW to authenticated-users").
func NewEnvironmentPolicy(name string, meta Metadata, acl AccessControlList, constraints []Constraint) (*EnvironmentPolicy, error) {
	if err := ValidateName(name, maxEnvironmentNameLen); err != nil {
		return nil, err
	}
	if len(acl) == 0 {
		acl = DefaultEnvironmentACL()
	}
	if err := validateConstraintNames(constraints); err != nil {
		return nil, err
	}
	return &EnvironmentPolicy{
		Name:        name,
		Metadata:    meta,
		ACL:         acl,
		Constraints: constraints,
	}, nil
}

// AddSystem creates a SystemPolicy under env, rejecting a duplicate
// (case-insensitive) sibling name.
func AddSystem(env *EnvironmentPolicy, name string, acl AccessControlList, constraints []Constraint) (*SystemPolicy, error) {
	if err := ValidateName(name, 0); err != nil {
		return nil, err
	}
	if _, exists := env.System(name); exists {
		return nil, fmt.Errorf("policy: duplicate system name %q under environment %q", name, env.Name)
	}
	if err := validateConstraintNames(constraints); err != nil {
		return nil, err
	}
	sys := &SystemPolicy{
		Name:        name,
		parent:      env,
		ACL:         acl,
		Constraints: constraints,
	}
	env.Systems = append(env.Systems, sys)
	return sys, nil
}

// AddGroup creates a JitGroupPolicy under sys, rejecting a duplicate
// (case-insensitive) sibling name.
func AddGroup(sys *SystemPolicy, name, description string, acl AccessControlList, constraints []Constraint, privileges []IamRoleBinding) (*JitGroupPolicy, error) {
	if err := ValidateName(name, 0); err != nil {
		return nil, err
	}
	if _, exists := sys.Group(name); exists {
		return nil, fmt.Errorf("policy: duplicate group name %q under system %q", name, sys.Name)
	}
	if err := validateConstraintNames(constraints); err != nil {
		return nil, err
	}
	g := &JitGroupPolicy{
		Name:        name,
		Description: description,
		parent:      sys,
		ACL:         acl,
		Constraints: constraints,
		Privileges:  privileges,
	}
	sys.Groups = append(sys.Groups, g)
	return g, nil
}

// validateConstraintNames rejects two constraints declared directly on the
// same node sharing a (class, name) pair. Only ancestor/descendant pairs may
// share a name — see DESIGN.md's Open Question decision for duplicate
// expiry constraints.
func validateConstraintNames(constraints []Constraint) error {
	seen := make(map[string]bool, len(constraints))
	for _, c := range constraints {
		key := string(c.Class()) + "/" + strings.ToLower(c.Name())
		if seen[key] {
			return fmt.Errorf("policy: duplicate constraint (class=%s, name=%s) declared on the same node", c.Class(), c.Name())
		}
		seen[key] = true
	}
	return nil
}

// Ancestors returns the chain from the root environment down to and
// including n, root-first. This is the order ACLs and constraints are
// concatenated in (§4.2).
func Ancestors(n Node) []Node {
	var chain []Node
	for cur := n; cur != nil; cur = cur.Parent() {
		chain = append(chain, cur)
	}
	// chain is currently leaf-first; reverse to root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// EffectiveACL concatenates the ACLs of n's ancestor chain, root-first,
// including n itself (§4.2).
func EffectiveACL(n Node) AccessControlList {
	var acl AccessControlList
	for _, a := range Ancestors(n) {
		acl = append(acl, a.OwnACL()...)
	}
	return acl
}

// EffectiveConstraints returns all constraints inherited from ancestors of
// n plus n's own, with override by (class, name): a node's constraint
// shadows an ancestor's constraint of the same class and name (§4.2, §4.3).
func EffectiveConstraints(n Node) []Constraint {
	byKey := make(map[string]Constraint)
	var order []string
	for _, a := range Ancestors(n) {
		for _, c := range a.OwnConstraints() {
			key := string(c.Class()) + "/" + strings.ToLower(c.Name())
			if _, existed := byKey[key]; !existed {
				order = append(order, key)
			}
			byKey[key] = c // descendants are visited later and win
		}
	}
	out := make([]Constraint, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

// EffectiveConstraintsForClass filters EffectiveConstraints to a single class.
func EffectiveConstraintsForClass(n Node, class ConstraintClass) []Constraint {
	all := EffectiveConstraints(n)
	out := make([]Constraint, 0, len(all))
	for _, c := range all {
		if c.Class() == class {
			out = append(out, c)
		}
	}
	return out
}
