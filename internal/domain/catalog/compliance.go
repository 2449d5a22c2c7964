package catalog

import (
	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/policy"
)

// ComplianceEntry summarizes one effective ACE or constraint for display in
// a ComplianceView.
type ComplianceEntry struct {
	Kind string // "acl" or "constraint"
	Text string
}

// ComplianceView is a supplemental surface (not in the distilled spec)
// exposing a group's fully-resolved effective policy — every ACE and
// constraint inherited down to it — for audit review. Building one checks
// no permission; see Compliance.
type ComplianceView struct {
	Group       GroupView
	ACL         []ComplianceEntry
	Constraints []ComplianceEntry
}

// Compliance builds a ComplianceView for id. Callers must have already
// verified the requesting subject holds PermissionExport on the group;
// Compliance itself performs no authorization check.
func (c *Catalog) Compliance(id identity.JitGroupId) (ComplianceView, bool) {
	group, ok := c.lookupGroup(id)
	if !ok {
		return ComplianceView{}, false
	}

	view := ComplianceView{Group: groupView(group)}
	for _, ace := range policy.EffectiveACL(group) {
		view.ACL = append(view.ACL, ComplianceEntry{Kind: "acl", Text: describeACE(ace)})
	}
	for _, cons := range policy.EffectiveConstraints(group) {
		view.Constraints = append(view.Constraints, ComplianceEntry{Kind: "constraint", Text: string(cons.Class()) + ":" + cons.DisplayName()})
	}
	return view, true
}

func describeACE(ace policy.AccessControlEntry) string {
	kind := "ALLOW"
	if ace.Kind == policy.Deny {
		kind = "DENY"
	}
	return kind + " " + ace.Principal.String()
}
