package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jitgroups/broker/internal/port/outbound"
)

// ErrPreconditionFailed is returned by ModifyIamPolicy after exhausting its
// retry budget against a resource under sustained concurrent writes.
var ErrPreconditionFailed = errors.New("memory: iam policy precondition failed after retries")

// modifyRetries and modifyBackoff match the §4.7 optimistic-concurrency
// contract: up to 4 retries, ~200ms fixed back-off between attempts.
const (
	modifyRetries = 4
	modifyBackoff = 200 * time.Millisecond
)

type iamEntry struct {
	policy  outbound.IamPolicy
	version uint64
}

// IamStore implements outbound.ResourceIamClient with an in-memory,
// etag-versioned policy per resource.
type IamStore struct {
	mu       sync.Mutex
	policies map[string]*iamEntry
	sleep    func(time.Duration)
}

// NewIamStore creates an empty IamStore.
func NewIamStore() *IamStore {
	return &IamStore{policies: make(map[string]*iamEntry), sleep: time.Sleep}
}

var _ outbound.ResourceIamClient = (*IamStore)(nil)

// GetIamPolicy implements outbound.ResourceIamClient.
func (s *IamStore) GetIamPolicy(_ context.Context, resource string) (outbound.IamPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(resource), nil
}

// ModifyIamPolicy implements outbound.ResourceIamClient: a read-modify-write
// loop guarded by an etag compare-and-swap, retried up to modifyRetries
// times with a fixed back-off on contention.
func (s *IamStore) ModifyIamPolicy(ctx context.Context, resource string, mutator outbound.PolicyMutator, reason string) error {
	for attempt := 0; attempt <= modifyRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		current := s.snapshotLocked(resource)
		currentVersion := s.policies[resource]
		s.mu.Unlock()

		next, err := mutator(current)
		if err != nil {
			return fmt.Errorf("memory: modify iam policy on %s (%s): %w", resource, reason, err)
		}

		ok := s.compareAndSwap(resource, currentVersion, next)
		if ok {
			return nil
		}
		if attempt < modifyRetries {
			s.sleep(modifyBackoff)
		}
	}
	return fmt.Errorf("%w: resource %s", ErrPreconditionFailed, resource)
}

func (s *IamStore) snapshotLocked(resource string) outbound.IamPolicy {
	entry, ok := s.policies[resource]
	if !ok {
		return outbound.IamPolicy{ETag: "0"}
	}
	p := entry.policy
	p.Bindings = append([]outbound.IamBinding(nil), entry.policy.Bindings...)
	p.ETag = strconv.FormatUint(entry.version, 10)
	return p
}

func (s *IamStore) compareAndSwap(resource string, expected *iamEntry, next outbound.IamPolicy) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.policies[resource]
	expectedVersion := uint64(0)
	if expected != nil {
		expectedVersion = expected.version
	}
	currentVersion := uint64(0)
	if current != nil {
		currentVersion = current.version
	}
	if currentVersion != expectedVersion {
		return false
	}

	next.ETag = strconv.FormatUint(currentVersion+1, 10)
	s.policies[resource] = &iamEntry{policy: next, version: currentVersion + 1}
	return true
}
