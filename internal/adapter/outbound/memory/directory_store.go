// Package memory provides in-memory implementations of the outbound ports,
// for tests and local development without a live directory/IAM/notification
// backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jitgroups/broker/internal/port/outbound"
)

// DirectoryStore implements outbound.DirectoryGroupsClient with in-memory
// maps. Thread-safe for concurrent access.
type DirectoryStore struct {
	mu          sync.RWMutex
	groups      map[outbound.GroupKey]*outbound.Group
	byEmail     map[string]outbound.GroupKey
	memberships map[outbound.GroupKey]map[string]*outbound.Membership // groupKey -> user -> membership
}

// NewDirectoryStore creates an empty DirectoryStore.
func NewDirectoryStore() *DirectoryStore {
	return &DirectoryStore{
		groups:      make(map[outbound.GroupKey]*outbound.Group),
		byEmail:     make(map[string]outbound.GroupKey),
		memberships: make(map[outbound.GroupKey]map[string]*outbound.Membership),
	}
}

var _ outbound.DirectoryGroupsClient = (*DirectoryStore)(nil)

// LookupGroup implements outbound.DirectoryGroupsClient.
func (s *DirectoryStore) LookupGroup(_ context.Context, email string) (outbound.GroupKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return "", outbound.ErrGroupNotFound
	}
	return key, nil
}

// GetGroup implements outbound.DirectoryGroupsClient. keyOrEmail is tried as
// a key first, then as an email.
func (s *DirectoryStore) GetGroup(_ context.Context, keyOrEmail string) (outbound.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.groups[outbound.GroupKey(keyOrEmail)]; ok {
		return *g, nil
	}
	if key, ok := s.byEmail[strings.ToLower(keyOrEmail)]; ok {
		return *s.groups[key], nil
	}
	return outbound.Group{}, outbound.ErrGroupNotFound
}

// CreateGroup implements outbound.DirectoryGroupsClient, idempotently.
func (s *DirectoryStore) CreateGroup(_ context.Context, email string, _ outbound.GroupKind, displayName, description string) (outbound.GroupKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := strings.ToLower(email)
	if key, ok := s.byEmail[lower]; ok {
		return key, nil
	}
	key := outbound.GroupKey(uuid.NewString())
	s.groups[key] = &outbound.Group{Key: key, Email: lower, DisplayName: displayName, Description: description}
	s.byEmail[lower] = key
	s.memberships[key] = make(map[string]*outbound.Membership)
	return key, nil
}

// PatchGroup implements outbound.DirectoryGroupsClient.
func (s *DirectoryStore) PatchGroup(_ context.Context, key outbound.GroupKey, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[key]
	if !ok {
		return outbound.ErrGroupNotFound
	}
	g.Description = description
	return nil
}

// AddMembership implements outbound.DirectoryGroupsClient, idempotently:
// a repeat call for the same user updates the expiry rather than duplicating.
func (s *DirectoryStore) AddMembership(_ context.Context, key outbound.GroupKey, user string, expiry time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[key]; !ok {
		return "", outbound.ErrGroupNotFound
	}
	members := s.memberships[key]
	user = strings.ToLower(user)
	if m, ok := members[user]; ok {
		m.Roles = []outbound.MembershipRoleDetail{{Role: outbound.RoleMember, Expiry: expiry}}
		return m.ID, nil
	}
	m := &outbound.Membership{ID: uuid.NewString(), Roles: []outbound.MembershipRoleDetail{{Role: outbound.RoleMember, Expiry: expiry}}}
	members[user] = m
	return m.ID, nil
}

// GetMembership implements outbound.DirectoryGroupsClient.
func (s *DirectoryStore) GetMembership(_ context.Context, keyOrEmail, user string) (outbound.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, err := s.resolveKeyLocked(keyOrEmail)
	if err != nil {
		return outbound.Membership{}, err
	}
	m, ok := s.memberships[key][strings.ToLower(user)]
	if !ok {
		return outbound.Membership{}, outbound.ErrGroupNotFound
	}
	return *m, nil
}

// DeleteMembership implements outbound.DirectoryGroupsClient, idempotently.
func (s *DirectoryStore) DeleteMembership(_ context.Context, membershipID, groupEmail, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if groupEmail != "" {
		key, ok := s.byEmail[strings.ToLower(groupEmail)]
		if !ok {
			return nil
		}
		delete(s.memberships[key], strings.ToLower(user))
		return nil
	}
	for _, members := range s.memberships {
		for u, m := range members {
			if m.ID == membershipID {
				delete(members, u)
				return nil
			}
		}
	}
	return nil
}

// ListMemberships implements outbound.DirectoryGroupsClient.
func (s *DirectoryStore) ListMemberships(_ context.Context, groupEmail string) ([]outbound.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byEmail[strings.ToLower(groupEmail)]
	if !ok {
		return nil, outbound.ErrGroupNotFound
	}
	out := make([]outbound.GroupMember, 0, len(s.memberships[key]))
	for user, m := range s.memberships[key] {
		out = append(out, outbound.GroupMember{Key: key, MemberKey: user, Roles: m.Roles})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberKey < out[j].MemberKey })
	return out, nil
}

// ListMembershipsByUser implements outbound.DirectoryGroupsClient.
func (s *DirectoryStore) ListMembershipsByUser(_ context.Context, user string) ([]outbound.UserMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user = strings.ToLower(user)
	var out []outbound.UserMembership
	for key, members := range s.memberships {
		if m, ok := members[user]; ok {
			out = append(out, outbound.UserMembership{GroupEmail: s.groups[key].Email, MembershipID: m.ID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupEmail < out[j].GroupEmail })
	return out, nil
}

// SearchGroupsByPrefix implements outbound.DirectoryGroupsClient.
func (s *DirectoryStore) SearchGroupsByPrefix(_ context.Context, prefix string) ([]outbound.Group, error) {
	if strings.ContainsAny(prefix, `"'`) {
		return nil, fmt.Errorf("memory: prefix %q contains disallowed quote characters", prefix)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix = strings.ToLower(prefix)
	var out []outbound.Group
	for email, key := range s.byEmail {
		if strings.HasPrefix(email, prefix) {
			out = append(out, *s.groups[key])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// SearchGroupsByID implements outbound.DirectoryGroupsClient.
func (s *DirectoryStore) SearchGroupsByID(_ context.Context, ids []string) ([]outbound.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []outbound.Group
	for _, id := range ids {
		if key, ok := s.byEmail[strings.ToLower(id)]; ok {
			out = append(out, *s.groups[key])
			continue
		}
		if g, ok := s.groups[outbound.GroupKey(id)]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *DirectoryStore) resolveKeyLocked(keyOrEmail string) (outbound.GroupKey, error) {
	if _, ok := s.groups[outbound.GroupKey(keyOrEmail)]; ok {
		return outbound.GroupKey(keyOrEmail), nil
	}
	if key, ok := s.byEmail[strings.ToLower(keyOrEmail)]; ok {
		return key, nil
	}
	return "", outbound.ErrGroupNotFound
}
