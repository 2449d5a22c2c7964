// Package gcpdirectory adapts outbound.DirectoryGroupsClient to the Google
// Workspace Admin SDK Directory API.
package gcpdirectory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jitgroups/broker/internal/port/outbound"
)

// Client implements outbound.DirectoryGroupsClient against the real
// Admin SDK, grounded on crossplane-contrib-provider-gcp's
// `iamv1.NewService(ctx, opts...)` construction idiom.
type Client struct {
	svc *admin.Service
}

// New constructs a Client using Application Default Credentials plus any
// additional client options (e.g. a domain-wide delegated subject).
func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := admin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcpdirectory: new service: %w", err)
	}
	return &Client{svc: svc}, nil
}

var _ outbound.DirectoryGroupsClient = (*Client)(nil)

// LookupGroup implements outbound.DirectoryGroupsClient.
func (c *Client) LookupGroup(ctx context.Context, email string) (outbound.GroupKey, error) {
	g, err := c.svc.Groups.Get(email).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return "", outbound.ErrGroupNotFound
		}
		return "", fmt.Errorf("gcpdirectory: get group %s: %w", email, err)
	}
	return outbound.GroupKey(g.Id), nil
}

// GetGroup implements outbound.DirectoryGroupsClient.
func (c *Client) GetGroup(ctx context.Context, keyOrEmail string) (outbound.Group, error) {
	g, err := c.svc.Groups.Get(keyOrEmail).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return outbound.Group{}, outbound.ErrGroupNotFound
		}
		return outbound.Group{}, fmt.Errorf("gcpdirectory: get group %s: %w", keyOrEmail, err)
	}
	return toGroup(g), nil
}

// CreateGroup implements outbound.DirectoryGroupsClient, idempotently:
// a 409/already-exists response resolves the existing group instead of
// failing. It sets no security settings: posting and membership
// restrictions stay at the domain's defaults.
func (c *Client) CreateGroup(ctx context.Context, email string, _ outbound.GroupKind, displayName, description string) (outbound.GroupKey, error) {
	g := &admin.Group{
		Email:       email,
		Name:        displayName,
		Description: description,
	}
	created, err := c.svc.Groups.Insert(g).Context(ctx).Do()
	if err != nil {
		if isConflict(err) {
			return c.LookupGroup(ctx, email)
		}
		return "", fmt.Errorf("gcpdirectory: insert group %s: %w", email, err)
	}
	return outbound.GroupKey(created.Id), nil
}

// PatchGroup implements outbound.DirectoryGroupsClient.
func (c *Client) PatchGroup(ctx context.Context, key outbound.GroupKey, description string) error {
	_, err := c.svc.Groups.Patch(string(key), &admin.Group{Description: description}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gcpdirectory: patch group %s: %w", key, err)
	}
	return nil
}

// AddMembership implements outbound.DirectoryGroupsClient, idempotently.
func (c *Client) AddMembership(ctx context.Context, key outbound.GroupKey, user string, expiry time.Time) (string, error) {
	member := &admin.Member{
		Email: user,
		Role:  "MEMBER",
	}
	created, err := c.svc.Members.Insert(string(key), member).Context(ctx).Do()
	if err != nil {
		if isConflict(err) {
			existing, getErr := c.svc.Members.Get(string(key), user).Context(ctx).Do()
			if getErr != nil {
				return "", fmt.Errorf("gcpdirectory: get existing membership for %s in %s: %w", user, key, getErr)
			}
			created = existing
		} else {
			return "", fmt.Errorf("gcpdirectory: insert membership for %s in %s: %w", user, key, err)
		}
	}
	return created.Id, nil
}

// GetMembership implements outbound.DirectoryGroupsClient.
func (c *Client) GetMembership(ctx context.Context, keyOrEmail, user string) (outbound.Membership, error) {
	m, err := c.svc.Members.Get(keyOrEmail, user).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return outbound.Membership{}, outbound.ErrGroupNotFound
		}
		return outbound.Membership{}, fmt.Errorf("gcpdirectory: get membership for %s in %s: %w", user, keyOrEmail, err)
	}
	return outbound.Membership{
		ID:    m.Id,
		Roles: []outbound.MembershipRoleDetail{{Role: outbound.MembershipRole(m.Role)}},
	}, nil
}

// DeleteMembership implements outbound.DirectoryGroupsClient, idempotently.
func (c *Client) DeleteMembership(ctx context.Context, _, groupEmail, user string) error {
	err := c.svc.Members.Delete(groupEmail, user).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("gcpdirectory: delete membership for %s in %s: %w", user, groupEmail, err)
	}
	return nil
}

// ListMemberships implements outbound.DirectoryGroupsClient.
func (c *Client) ListMemberships(ctx context.Context, groupEmail string) ([]outbound.GroupMember, error) {
	var out []outbound.GroupMember
	call := c.svc.Members.List(groupEmail).Context(ctx)
	err := call.Pages(ctx, func(page *admin.Members) error {
		for _, m := range page.Members {
			out = append(out, outbound.GroupMember{
				MemberKey: m.Email,
				Roles:     []outbound.MembershipRoleDetail{{Role: outbound.MembershipRole(m.Role)}},
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gcpdirectory: list memberships of %s: %w", groupEmail, err)
	}
	return out, nil
}

// ListMembershipsByUser implements outbound.DirectoryGroupsClient.
func (c *Client) ListMembershipsByUser(ctx context.Context, user string) ([]outbound.UserMembership, error) {
	var out []outbound.UserMembership
	call := c.svc.Groups.List().UserKey(user).Context(ctx)
	err := call.Pages(ctx, func(page *admin.Groups) error {
		for _, g := range page.Groups {
			out = append(out, outbound.UserMembership{GroupEmail: g.Email})
		}
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, outbound.ErrGroupNotFound
		}
		return nil, fmt.Errorf("gcpdirectory: list groups for user %s: %w", user, err)
	}
	return out, nil
}

// SearchGroupsByPrefix implements outbound.DirectoryGroupsClient.
func (c *Client) SearchGroupsByPrefix(ctx context.Context, prefix string) ([]outbound.Group, error) {
	if strings.ContainsAny(prefix, `"'`) {
		return nil, fmt.Errorf("gcpdirectory: prefix %q contains disallowed quote characters", prefix)
	}
	var out []outbound.Group
	query := fmt.Sprintf("email:%s*", prefix)
	call := c.svc.Groups.List().Query(query).Context(ctx)
	err := call.Pages(ctx, func(page *admin.Groups) error {
		for _, g := range page.Groups {
			out = append(out, toGroup(g))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gcpdirectory: search groups by prefix %q: %w", prefix, err)
	}
	return out, nil
}

// SearchGroupsByID implements outbound.DirectoryGroupsClient.
func (c *Client) SearchGroupsByID(ctx context.Context, ids []string) ([]outbound.Group, error) {
	out := make([]outbound.Group, 0, len(ids))
	for _, id := range ids {
		g, err := c.svc.Groups.Get(id).Context(ctx).Do()
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("gcpdirectory: get group %s: %w", id, err)
		}
		out = append(out, toGroup(g))
	}
	return out, nil
}

func toGroup(g *admin.Group) outbound.Group {
	return outbound.Group{Key: outbound.GroupKey(g.Id), Email: g.Email, DisplayName: g.Name, Description: g.Description}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return asGoogleAPIError(err, &apiErr) && apiErr.Code == 404
}

func isConflict(err error) bool {
	var apiErr *googleapi.Error
	return asGoogleAPIError(err, &apiErr) && (apiErr.Code == 409 || apiErr.Code == 412)
}

func asGoogleAPIError(err error, target **googleapi.Error) bool {
	apiErr, ok := err.(*googleapi.Error)
	if ok {
		*target = apiErr
	}
	return ok
}
