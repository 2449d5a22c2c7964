// Package catalog exposes the policy tree to a resolved subject, filtered
// by VIEW permission, and implements the access analysis used by the
// activator (§4.5).
package catalog

import (
	"sort"

	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/policy"
)

// GroupView is the VIEW-filtered projection of a JitGroupPolicy.
type GroupView struct {
	Environment string
	System      string
	Name        string
	Description string
}

// ID returns the logical JIT-group id this view projects.
func (v GroupView) ID() identity.JitGroupId {
	return identity.JitGroupId{Environment: v.Environment, System: v.System, Name: v.Name}
}

// SystemView is the VIEW-filtered projection of a SystemPolicy: its own
// name plus only the child groups the subject may VIEW.
type SystemView struct {
	Environment string
	Name        string
	Groups      []GroupView
}

// EnvironmentView is the VIEW-filtered projection of an EnvironmentPolicy:
// its own name plus only the child systems the subject may VIEW.
type EnvironmentView struct {
	Name    string
	Systems []SystemView
}

// Catalog exposes a policy.Document filtered by a subject's VIEW permission
// (§4.5).
type Catalog struct {
	doc *policy.Document
}

// New constructs a Catalog over doc.
func New(doc *policy.Document) *Catalog {
	return &Catalog{doc: doc}
}

// Environments returns every environment whose effective ACL allows VIEW
// for subject, sorted by name, each filtered down to its VIEW-able systems
// and groups.
func (c *Catalog) Environments(subject identity.Subject) []EnvironmentView {
	var out []EnvironmentView
	for _, env := range c.doc.Environments {
		if !policy.EffectiveACL(env).IsAllowed(subject, policy.PermissionView) {
			continue
		}
		out = append(out, c.environmentView(subject, env))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Environment looks up one environment by name and projects it for subject,
// returning ok=false if it doesn't exist or subject lacks VIEW.
func (c *Catalog) Environment(subject identity.Subject, name string) (EnvironmentView, bool) {
	env, ok := c.doc.Environment(name)
	if !ok || !policy.EffectiveACL(env).IsAllowed(subject, policy.PermissionView) {
		return EnvironmentView{}, false
	}
	return c.environmentView(subject, env), true
}

// System looks up one system under env by name and projects it for subject.
func (c *Catalog) System(subject identity.Subject, envName, sysName string) (SystemView, bool) {
	env, ok := c.doc.Environment(envName)
	if !ok {
		return SystemView{}, false
	}
	sys, ok := env.System(sysName)
	if !ok || !policy.EffectiveACL(sys).IsAllowed(subject, policy.PermissionView) {
		return SystemView{}, false
	}
	return c.systemView(subject, sys), true
}

// Group looks up one group by its logical id and projects it for subject.
func (c *Catalog) Group(subject identity.Subject, id identity.JitGroupId) (GroupView, bool) {
	group, ok := c.lookupGroup(id)
	if !ok || !policy.EffectiveACL(group).IsAllowed(subject, policy.PermissionView) {
		return GroupView{}, false
	}
	return groupView(group), true
}

// GroupNode resolves id to its underlying policy node, without any VIEW
// filtering. Callers that need to run access analysis (which performs its
// own ACL check) rather than merely display a catalog entry use this
// instead of Group.
func (c *Catalog) GroupNode(id identity.JitGroupId) (*policy.JitGroupPolicy, bool) {
	return c.lookupGroup(id)
}

// lookupGroup resolves a logical JIT-group id to its policy node.
func (c *Catalog) lookupGroup(id identity.JitGroupId) (*policy.JitGroupPolicy, bool) {
	env, ok := c.doc.Environment(id.Environment)
	if !ok {
		return nil, false
	}
	sys, ok := env.System(id.System)
	if !ok {
		return nil, false
	}
	return sys.Group(id.Name)
}

func (c *Catalog) environmentView(subject identity.Subject, env *policy.EnvironmentPolicy) EnvironmentView {
	view := EnvironmentView{Name: env.Name}
	for _, sys := range env.Systems {
		if !policy.EffectiveACL(sys).IsAllowed(subject, policy.PermissionView) {
			continue
		}
		view.Systems = append(view.Systems, c.systemView(subject, sys))
	}
	return view
}

func (c *Catalog) systemView(subject identity.Subject, sys *policy.SystemPolicy) SystemView {
	view := SystemView{Environment: sys.Environment().Name, Name: sys.Name}
	for _, g := range sys.Groups {
		if !policy.EffectiveACL(g).IsAllowed(subject, policy.PermissionView) {
			continue
		}
		view.Groups = append(view.Groups, groupView(g))
	}
	return view
}

func groupView(g *policy.JitGroupPolicy) GroupView {
	return GroupView{
		Environment: g.Environment().Name,
		System:      g.System().Name,
		Name:        g.Name,
		Description: g.Description,
	}
}
