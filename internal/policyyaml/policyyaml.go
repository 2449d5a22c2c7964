// Package policyyaml parses the §6 "Policy document" YAML format into the
// §3 in-memory policy tree (internal/domain/policy). The wire format is
// deliberately flat and declarative — schemaVersion, then an
// environment → systems → groups tree — so a human can review a diff of it
// the same way they'd review any other declarative infra config.
package policyyaml

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/policy"
)

// supportedSchemaVersion is the only schemaVersion this loader accepts.
// Bump alongside a format change, never silently widen.
const supportedSchemaVersion = 1

// rawDocument mirrors the YAML shape; field-level validation happens during
// conversion to the domain model, not via struct tags, since cross-field
// rules (duplicate names, constraint overrides) are already enforced by
// policy.NewEnvironmentPolicy/AddSystem/AddGroup.
type rawDocument struct {
	SchemaVersion int              `yaml:"schemaVersion"`
	Environments  []rawEnvironment `yaml:"environments"`
}

type rawEnvironment struct {
	Name        string          `yaml:"name"`
	Source      string          `yaml:"source"`
	ACL         []rawACE        `yaml:"acl"`
	Constraints []rawConstraint `yaml:"constraints"`
	Systems     []rawSystem     `yaml:"systems"`
}

type rawSystem struct {
	Name        string          `yaml:"name"`
	ACL         []rawACE        `yaml:"acl"`
	Constraints []rawConstraint `yaml:"constraints"`
	Groups      []rawGroup      `yaml:"groups"`
}

type rawGroup struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	ACL         []rawACE          `yaml:"acl"`
	Constraints []rawConstraint   `yaml:"constraints"`
	Privileges  rawPrivilegeBlock `yaml:"privileges"`
}

type rawPrivilegeBlock struct {
	Iam []rawIamBinding `yaml:"iam"`
}

type rawIamBinding struct {
	Resource    string `yaml:"resource"`
	Role        string `yaml:"role"`
	Condition   string `yaml:"condition"`
	Description string `yaml:"description"`
}

// rawACE is one "<principal>: <mask>" entry; Kind defaults to ALLOW when
// omitted, matching the common case of an all-allow policy document.
type rawACE struct {
	Principal string `yaml:"principal"`
	Mask      string `yaml:"mask"`
	Kind      string `yaml:"kind"`
}

// rawConstraint carries both constraint shapes; only the fields matching
// Type are read.
type rawConstraint struct {
	Type  string `yaml:"type"` // "expiry" | "expression"
	Class string `yaml:"class"`
	Name  string `yaml:"name"`

	// expiry
	Min string `yaml:"min"`
	Max string `yaml:"max"`

	// expression
	DisplayName string        `yaml:"displayName"`
	Variables   []rawVariable `yaml:"variables"`
	Predicate   string        `yaml:"predicate"`
}

type rawVariable struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"` // "string" | "int" | "bool"
	MinLen *int   `yaml:"minLen"`
	MaxLen *int   `yaml:"maxLen"`
	Min    *int64 `yaml:"min"`
	Max    *int64 `yaml:"max"`
}

// permissionNames maps the document's mask vocabulary to §3's bitset.
var permissionNames = map[string]policy.PermissionMask{
	"VIEW":           policy.PermissionView,
	"JOIN":           policy.PermissionJoin,
	"APPROVE_OTHERS": policy.PermissionApproveOthers,
	"APPROVE_SELF":   policy.PermissionApproveSelf,
	"EXPORT":         policy.PermissionExport,
	"RECONCILE":      policy.PermissionReconcile,
}

// Load parses raw YAML bytes into a *policy.Document, resolving
// ExpressionConstraint predicates through evaluator.
func Load(data []byte, evaluator policy.PredicateEvaluator) (*policy.Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("policyyaml: parse yaml: %w", err)
	}
	if raw.SchemaVersion != supportedSchemaVersion {
		return nil, fmt.Errorf("policyyaml: unsupported schemaVersion %d (want %d)", raw.SchemaVersion, supportedSchemaVersion)
	}

	envs := make([]*policy.EnvironmentPolicy, 0, len(raw.Environments))
	for _, re := range raw.Environments {
		env, err := buildEnvironment(re, evaluator)
		if err != nil {
			return nil, fmt.Errorf("policyyaml: environment %q: %w", re.Name, err)
		}
		envs = append(envs, env)
	}

	doc, err := policy.NewDocument(envs)
	if err != nil {
		return nil, fmt.Errorf("policyyaml: %w", err)
	}
	return doc, nil
}

func buildEnvironment(re rawEnvironment, evaluator policy.PredicateEvaluator) (*policy.EnvironmentPolicy, error) {
	acl, err := buildACL(re.ACL)
	if err != nil {
		return nil, fmt.Errorf("acl: %w", err)
	}
	constraints, err := buildConstraints(re.Constraints, evaluator)
	if err != nil {
		return nil, fmt.Errorf("constraints: %w", err)
	}

	env, err := policy.NewEnvironmentPolicy(re.Name, policy.Metadata{Source: re.Source, LastModified: time.Now()}, acl, constraints)
	if err != nil {
		return nil, err
	}

	for _, rs := range re.Systems {
		if err := buildSystem(env, rs, evaluator); err != nil {
			return nil, fmt.Errorf("system %q: %w", rs.Name, err)
		}
	}
	return env, nil
}

func buildSystem(env *policy.EnvironmentPolicy, rs rawSystem, evaluator policy.PredicateEvaluator) error {
	acl, err := buildACL(rs.ACL)
	if err != nil {
		return fmt.Errorf("acl: %w", err)
	}
	constraints, err := buildConstraints(rs.Constraints, evaluator)
	if err != nil {
		return fmt.Errorf("constraints: %w", err)
	}

	sys, err := policy.AddSystem(env, rs.Name, acl, constraints)
	if err != nil {
		return err
	}

	for _, rg := range rs.Groups {
		if err := buildGroup(sys, rg, evaluator); err != nil {
			return fmt.Errorf("group %q: %w", rg.Name, err)
		}
	}
	return nil
}

func buildGroup(sys *policy.SystemPolicy, rg rawGroup, evaluator policy.PredicateEvaluator) error {
	acl, err := buildACL(rg.ACL)
	if err != nil {
		return fmt.Errorf("acl: %w", err)
	}
	constraints, err := buildConstraints(rg.Constraints, evaluator)
	if err != nil {
		return fmt.Errorf("constraints: %w", err)
	}

	privileges := make([]policy.IamRoleBinding, 0, len(rg.Privileges.Iam))
	for _, b := range rg.Privileges.Iam {
		if b.Resource == "" || b.Role == "" {
			return fmt.Errorf("iam binding requires resource and role")
		}
		privileges = append(privileges, policy.IamRoleBinding{
			Resource:    b.Resource,
			Role:        b.Role,
			Condition:   b.Condition,
			Description: b.Description,
		})
	}

	_, err = policy.AddGroup(sys, rg.Name, rg.Description, acl, constraints, privileges)
	return err
}

func buildACL(entries []rawACE) (policy.AccessControlList, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	acl := make(policy.AccessControlList, 0, len(entries))
	for _, e := range entries {
		principal, err := identity.Parse(e.Principal)
		if err != nil {
			return nil, err
		}
		mask, ok := permissionNames[e.Mask]
		if !ok {
			return nil, fmt.Errorf("unknown permission mask %q", e.Mask)
		}
		kind := policy.Allow
		if e.Kind == "DENY" {
			kind = policy.Deny
		}
		acl = append(acl, policy.AccessControlEntry{Principal: principal, Mask: mask, Kind: kind})
	}
	return acl, nil
}

func buildConstraints(entries []rawConstraint, evaluator policy.PredicateEvaluator) ([]policy.Constraint, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make([]policy.Constraint, 0, len(entries))
	for _, rc := range entries {
		c, err := buildConstraint(rc, evaluator)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", rc.Name, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func buildConstraint(rc rawConstraint, evaluator policy.PredicateEvaluator) (policy.Constraint, error) {
	switch rc.Type {
	case "expiry":
		minDur, err := time.ParseDuration(rc.Min)
		if err != nil {
			return nil, fmt.Errorf("min: %w", err)
		}
		maxDur, err := time.ParseDuration(rc.Max)
		if err != nil {
			return nil, fmt.Errorf("max: %w", err)
		}
		return policy.ExpiryConstraint{NameValue: rc.Name, Min: minDur, Max: maxDur}, nil
	case "expression":
		vars := make([]policy.VariableSpec, 0, len(rc.Variables))
		for _, rv := range rc.Variables {
			kind, err := parseVariableKind(rv.Kind)
			if err != nil {
				return nil, err
			}
			vars = append(vars, policy.VariableSpec{
				Name: rv.Name, Kind: kind,
				MinLen: rv.MinLen, MaxLen: rv.MaxLen,
				Min: rv.Min, Max: rv.Max,
			})
		}
		class := policy.ConstraintClass(rc.Class)
		if class != policy.ClassJoin && class != policy.ClassApprove {
			return nil, fmt.Errorf("unknown constraint class %q", rc.Class)
		}
		return policy.ExpressionConstraint{
			NameValue:        rc.Name,
			DisplayNameValue: rc.DisplayName,
			Variables:        vars,
			Predicate:        rc.Predicate,
			Evaluator:        evaluator,
			ClassValue:       class,
		}, nil
	default:
		return nil, fmt.Errorf("unknown constraint type %q", rc.Type)
	}
}

func parseVariableKind(s string) (policy.VariableKind, error) {
	switch s {
	case "string":
		return policy.VariableString, nil
	case "int":
		return policy.VariableInt, nil
	case "bool":
		return policy.VariableBool, nil
	default:
		return 0, fmt.Errorf("unknown variable kind %q", s)
	}
}
