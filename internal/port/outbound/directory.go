// Package outbound declares the opaque external collaborators the core
// depends on: the directory service, resource IAM, token signing, and
// notifications (§6). Adapters live under internal/adapter/outbound.
package outbound

import (
	"context"
	"errors"
	"time"
)

// ErrGroupNotFound is returned by LookupGroup, GetGroup, and GetMembership
// when the named group or membership does not exist.
var ErrGroupNotFound = errors.New("outbound: directory group not found")

// GroupKind distinguishes the kinds of directory group createGroup can mint.
type GroupKind string

const (
	GroupKindJIT GroupKind = "jit"
)

// GroupKey opaquely identifies a directory group, independent of its email.
type GroupKey string

// Group is a directory group's identifying and descriptive attributes.
type Group struct {
	Key         GroupKey
	Email       string
	DisplayName string
	Description string
}

// MembershipRole is the role a membership record carries.
type MembershipRole string

const (
	RoleMember MembershipRole = "MEMBER"
)

// MembershipRoleDetail pairs a role with its expiry, as returned embedded in
// a membership lookup.
type MembershipRoleDetail struct {
	Role   MembershipRole
	Expiry time.Time // zero means no expiry
}

// Membership is one user's membership record in a group.
type Membership struct {
	ID    string
	Roles []MembershipRoleDetail
}

// UserMembership is one entry returned by ListMembershipsByUser: the group
// the user belongs to and the membership id within it.
type UserMembership struct {
	GroupEmail   string
	MembershipID string
}

// GroupMember is one entry returned by ListMemberships: the member's key,
// and their roles.
type GroupMember struct {
	Key       GroupKey
	MemberKey string
	Roles     []MembershipRoleDetail
}

// DirectoryGroupsClient is the opaque collaborator fronting the identity
// directory's group and membership APIs (§6). All idempotent operations are
// safe to retry; all operations are potentially blocking network calls and
// must honor ctx cancellation/deadline (§5).
type DirectoryGroupsClient interface {
	// LookupGroup resolves email to an opaque GroupKey. Fails on
	// unauthenticated, not-found, or access-denied.
	LookupGroup(ctx context.Context, email string) (GroupKey, error)

	// GetGroup fetches a group's attributes by key or email.
	GetGroup(ctx context.Context, keyOrEmail string) (Group, error)

	// CreateGroup idempotently creates a group, returning the existing key
	// on conflict. Sets the security-settings member restriction to local
	// users and service accounts.
	CreateGroup(ctx context.Context, email string, kind GroupKind, displayName, description string) (GroupKey, error)

	// PatchGroup updates a group's description.
	PatchGroup(ctx context.Context, key GroupKey, description string) error

	// AddMembership idempotently adds (or updates the expiry of) a
	// membership. expiry must be strictly in the future.
	AddMembership(ctx context.Context, key GroupKey, user string, expiry time.Time) (string, error)

	// GetMembership fetches a specific user's membership record in a group.
	GetMembership(ctx context.Context, keyOrEmail, user string) (Membership, error)

	// DeleteMembership is idempotent; not-found is success. Exactly one of
	// membershipID or (groupEmail, user) identifies the target.
	DeleteMembership(ctx context.Context, membershipID, groupEmail, user string) error

	// ListMemberships lists every member of a group.
	ListMemberships(ctx context.Context, groupEmail string) ([]GroupMember, error)

	// ListMembershipsByUser lists every group a user belongs to.
	// A not-found user is an error (§4.4 step 1).
	ListMembershipsByUser(ctx context.Context, user string) ([]UserMembership, error)

	// SearchGroupsByPrefix finds groups whose email begins with prefix.
	// Inputs containing quote characters are rejected.
	SearchGroupsByPrefix(ctx context.Context, prefix string) ([]Group, error)

	// SearchGroupsByID finds groups matching the given set of emails/keys.
	SearchGroupsByID(ctx context.Context, ids []string) ([]Group, error)
}
