// Package provisioning turns an activation decision into directory group
// membership and resource IAM bindings (§4.7): idempotent group creation,
// time-bound membership, and drift-detected IAM reconciliation.
package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/jitgroups/broker/internal/domain/activation"
	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/policy"
	"github.com/jitgroups/broker/internal/port/outbound"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Provisioner implements activation.MembershipProvisioner against a
// directory and a resource IAM backend.
type Provisioner struct {
	directory outbound.DirectoryGroupsClient
	iam       outbound.ResourceIamClient
	mapping   *identity.GroupMapping
	now       Clock
}

var _ activation.MembershipProvisioner = (*Provisioner)(nil)

// New constructs a Provisioner. mapping fixes the directory domain every
// group email is derived under.
func New(directory outbound.DirectoryGroupsClient, iam outbound.ResourceIamClient, mapping *identity.GroupMapping) *Provisioner {
	return &Provisioner{directory: directory, iam: iam, mapping: mapping, now: time.Now}
}

func (p *Provisioner) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// ProvisionMembership implements activation.MembershipProvisioner: ensures
// the group exists, grants user a time-bound membership, and reconciles the
// group's resource IAM bindings against group.Privileges (§4.7).
func (p *Provisioner) ProvisionMembership(ctx context.Context, group *policy.JitGroupPolicy, user string, expiry time.Time) error {
	if !expiry.After(p.clock()) {
		return fmt.Errorf("provisioning: expiry %s is not strictly in the future", expiry)
	}

	groupID := identity.JitGroupId{Environment: group.Environment().Name, System: group.System().Name, Name: group.Name}
	email := p.mapping.DirectoryEmail(groupID)

	key, err := p.createGroup(ctx, email, groupID, group)
	if err != nil {
		return fmt.Errorf("provisioning: create group %s: %w", email, err)
	}

	if _, err := p.directory.AddMembership(ctx, key, user, expiry); err != nil {
		return fmt.Errorf("provisioning: add membership for %s in %s: %w", user, email, err)
	}

	if err := p.reconcileBindings(ctx, key, group); err != nil {
		return fmt.Errorf("provisioning: reconcile bindings for %s: %w", email, err)
	}
	return nil
}

// createGroup idempotently creates the directory group backing groupID. The
// description carries no checksum yet: reconcileBindings stamps it only
// after the IAM writes it gates actually succeed (§4.7 step 5), so a freshly
// created group's zero/absent checksum is seen as drift on the first
// reconcile rather than short-circuiting it.
func (p *Provisioner) createGroup(ctx context.Context, email string, groupID identity.JitGroupId, group *policy.JitGroupPolicy) (outbound.GroupKey, error) {
	description := stripChecksum(group.Description)
	displayName := fmt.Sprintf("jit %s", groupID.String())
	return p.directory.CreateGroup(ctx, email, outbound.GroupKindJIT, displayName, description)
}

// Reconcile re-derives the group's IAM bindings from group.Privileges
// without touching membership, for administrative drift correction
// (§4.7's reconcile operation).
func (p *Provisioner) Reconcile(ctx context.Context, group *policy.JitGroupPolicy) error {
	groupID := identity.JitGroupId{Environment: group.Environment().Name, System: group.System().Name, Name: group.Name}
	email := p.mapping.DirectoryEmail(groupID)

	key, err := p.directory.LookupGroup(ctx, email)
	if err != nil {
		return fmt.Errorf("provisioning: lookup group %s: %w", email, err)
	}
	return p.reconcileBindings(ctx, key, group)
}

// reconcileBindings compares the group's stamped checksum against the one
// derived from group.Privileges; on drift, it re-applies every privilege's
// binding and re-stamps the description.
func (p *Provisioner) reconcileBindings(ctx context.Context, key outbound.GroupKey, group *policy.JitGroupPolicy) error {
	current, err := p.directory.GetGroup(ctx, string(key))
	if err != nil {
		return fmt.Errorf("get group: %w", err)
	}
	if checksumUpToDate(current.Description, group.Privileges) {
		return nil
	}

	memberEntry := "group:" + current.Email
	byResource := groupByResource(group.Privileges)
	for resource, bindings := range byResource {
		if err := p.iam.ModifyIamPolicy(ctx, resource, applyBindings(memberEntry, bindings), "jit-group-reconcile"); err != nil {
			return fmt.Errorf("modify iam policy on %s: %w", resource, err)
		}
	}

	description := describeWithChecksum(group.Description, group.Privileges)
	if err := p.directory.PatchGroup(ctx, key, description); err != nil {
		return fmt.Errorf("patch group description: %w", err)
	}
	return nil
}

// ProvisionedGroups lists every directory group provisioned for env,
// regardless of which system or JIT group minted them (§4.7).
func (p *Provisioner) ProvisionedGroups(ctx context.Context, env string) ([]outbound.Group, error) {
	prefix := p.mapping.EnvironmentPrefix(env)
	return p.directory.SearchGroupsByPrefix(ctx, prefix)
}

func groupByResource(bindings []policy.IamRoleBinding) map[string][]policy.IamRoleBinding {
	out := make(map[string][]policy.IamRoleBinding)
	for _, b := range bindings {
		out[b.Resource] = append(out[b.Resource], b)
	}
	return out
}

// applyBindings returns a PolicyMutator implementing §4.7's reconciliation
// step: remove member from every existing binding on the resource (dropping
// any binding that becomes empty), then add one fresh binding per declared
// IamRoleBinding. This is a full replace of member's grants on the
// resource, not an additive merge — a privilege dropped from the policy
// tree must disappear from the live IAM policy on the next reconcile, not
// linger alongside the newly declared set.
func applyBindings(member string, bindings []policy.IamRoleBinding) outbound.PolicyMutator {
	return func(current outbound.IamPolicy) (outbound.IamPolicy, error) {
		next := current
		next.Bindings = removeMember(current.Bindings, member)

		for _, b := range bindings {
			title := b.Description
			if title == "" {
				title = "-"
			}
			var condition *outbound.IamCondition
			if b.Condition != "" {
				condition = &outbound.IamCondition{
					Title:       title,
					Description: b.Description,
					Expression:  b.Condition,
				}
			}
			next.Bindings = append(next.Bindings, outbound.IamBinding{
				Role:      b.Role,
				Condition: condition,
				Members:   []string{member},
			})
		}
		return next, nil
	}
}

// removeMember strips member from every binding, dropping bindings that
// become empty as a result (§4.7 step 4).
func removeMember(bindings []outbound.IamBinding, member string) []outbound.IamBinding {
	out := make([]outbound.IamBinding, 0, len(bindings))
	for _, b := range bindings {
		members := make([]string, 0, len(b.Members))
		for _, m := range b.Members {
			if m != member {
				members = append(members, m)
			}
		}
		if len(members) == 0 {
			continue
		}
		b.Members = members
		out = append(out, b)
	}
	return out
}
