// Package subject resolves an authenticated end-user into the full set of
// principals the system will credit them with (§4.4).
package subject

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/port/outbound"
)

// defaultFanoutLimit bounds the number of concurrent membership-detail
// lookups a single resolution fans out (§5: "a bounded worker pool").
const defaultFanoutLimit = 8

// Resolver resolves end-users into identity.Subject values by querying a
// DirectoryGroupsClient (§4.4).
type Resolver struct {
	directory   outbound.DirectoryGroupsClient
	mapping     *identity.GroupMapping
	fanoutLimit int
	logger      *slog.Logger
}

// New constructs a Resolver. fanoutLimit <= 0 selects defaultFanoutLimit.
func New(directory outbound.DirectoryGroupsClient, mapping *identity.GroupMapping, fanoutLimit int, logger *slog.Logger) *Resolver {
	if fanoutLimit <= 0 {
		fanoutLimit = defaultFanoutLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{directory: directory, mapping: mapping, fanoutLimit: fanoutLimit, logger: logger}
}

// membershipLookup is the result of resolving one JIT-backed group's
// expiry for the user, or the error encountered doing so.
type membershipLookup struct {
	jitID  identity.JitGroupId
	expiry time.Time
	ok     bool // true if a valid expiry was found and should be credited
	err    error
}

// Resolve implements §4.4 steps 1-5: list the user's direct group
// memberships, partition into JIT-backed and ordinary groups, fan out a
// bounded concurrent lookup of each JIT-backed membership's expiry, and
// assemble the final principal set. A user-not-found condition from the
// directory is surfaced as an error; an empty membership list is not.
func (r *Resolver) Resolve(ctx context.Context, user identity.PrincipalId) (identity.Subject, error) {
	memberships, err := r.directory.ListMembershipsByUser(ctx, user.Value())
	if err != nil {
		return identity.Subject{}, err
	}

	var ordinary []string
	var jitBacked []string
	for _, m := range memberships {
		if r.mapping.IsJitGroup(m.GroupEmail) {
			jitBacked = append(jitBacked, m.GroupEmail)
			continue
		}
		ordinary = append(ordinary, m.GroupEmail)
	}

	extra := make([]identity.Principal, 0, len(ordinary)+len(jitBacked))
	for _, email := range ordinary {
		extra = append(extra, identity.Principal{ID: identity.NewGroup(email)})
	}

	results := r.fanOutMembershipLookups(ctx, jitBacked, user.Value())
	for _, res := range results {
		if res.err != nil {
			r.logger.WarnContext(ctx, "membership lookup failed during subject resolution",
				"user", user.Value(), "group", res.jitID.String(), "error", res.err)
			continue
		}
		if !res.ok {
			r.logger.WarnContext(ctx, "jit-named group membership has no expiry, skipping",
				"user", user.Value(), "group", res.jitID.String())
			continue
		}
		extra = append(extra, identity.Principal{ID: res.jitID.PrincipalId(), Expiry: res.expiry})
	}

	return identity.NewSubject(user, extra...), nil
}

// fanOutMembershipLookups looks up, with bounded concurrency, the specific
// membership record of user in each JIT-backed group email, tolerating
// per-task failure (§4.4 step 3, §5).
func (r *Resolver) fanOutMembershipLookups(ctx context.Context, groupEmails []string, user string) []membershipLookup {
	results := make([]membershipLookup, len(groupEmails))
	if len(groupEmails) == 0 {
		return results
	}

	sem := make(chan struct{}, r.fanoutLimit)
	var wg sync.WaitGroup
	for i, email := range groupEmails {
		jitID, ok := r.mapping.JitGroupFromEmail(email)
		if !ok {
			// Cannot happen given the IsJitGroup partition above, but guard
			// against a mapping/email mismatch rather than panic.
			results[i] = membershipLookup{err: errNotJitGroupEmail(email)}
			continue
		}

		wg.Add(1)
		go func(i int, email string, jitID identity.JitGroupId) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = membershipLookup{jitID: jitID, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			results[i] = r.lookupOne(ctx, email, user, jitID)
		}(i, email, jitID)
	}
	wg.Wait()
	return results
}

// lookupOne fetches the user's membership expiry in one JIT-backed group.
// A not-found membership is tolerated (race with revocation) and dropped
// rather than treated as an error (§4.4 step 3).
func (r *Resolver) lookupOne(ctx context.Context, groupEmail, user string, jitID identity.JitGroupId) membershipLookup {
	membership, err := r.directory.GetMembership(ctx, groupEmail, user)
	if err != nil {
		if isNotFound(err) {
			return membershipLookup{jitID: jitID, ok: false}
		}
		return membershipLookup{jitID: jitID, err: err}
	}
	for _, role := range membership.Roles {
		if role.Role == outbound.RoleMember && !role.Expiry.IsZero() && role.Expiry.After(time.Now()) {
			return membershipLookup{jitID: jitID, expiry: role.Expiry, ok: true}
		}
	}
	return membershipLookup{jitID: jitID, ok: false}
}
