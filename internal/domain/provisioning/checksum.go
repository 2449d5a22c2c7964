package provisioning

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/jitgroups/broker/internal/domain/policy"
)

// checksumPrefix marks the hex checksum suffix this package stamps onto a
// directory group's description so reconcile can detect drift without
// re-deriving the full binding set from the policy tree.
const checksumPrefix = " #"

// bindingChecksum computes an order-independent 32-bit checksum over a
// privilege set: each binding hashes independently (folding the 64-bit
// xxhash digest down to 32 bits) and the results are XORed together, so
// reordering resource/role declarations in the policy tree never changes
// the checksum. Kept deliberately small per §9: it is only a reconciliation
// fast-path hint, and a collision only costs a skipped reconcile that
// self-heals the next time declared bindings actually change.
func bindingChecksum(bindings []policy.IamRoleBinding) uint32 {
	var acc uint32
	for _, b := range bindings {
		h := xxhash.New()
		_, _ = h.WriteString(b.Resource)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(b.Role)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(b.Condition)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(b.Description)
		sum := h.Sum64()
		acc ^= uint32(sum) ^ uint32(sum>>32)
	}
	return acc
}

// describeWithChecksum appends the current checksum to a group's base
// description, replacing any prior checksum suffix.
func describeWithChecksum(baseDescription string, bindings []policy.IamRoleBinding) string {
	base := stripChecksum(baseDescription)
	return fmt.Sprintf("%s%s%08x", base, checksumPrefix, bindingChecksum(bindings))
}

// stripChecksum removes a previously stamped checksum suffix, if present.
func stripChecksum(description string) string {
	idx := strings.LastIndex(description, checksumPrefix)
	if idx < 0 {
		return description
	}
	candidate := description[idx+len(checksumPrefix):]
	if _, err := strconv.ParseUint(candidate, 16, 64); err != nil {
		return description
	}
	return description[:idx]
}

// checksumUpToDate reports whether description already carries the
// checksum for bindings.
func checksumUpToDate(description string, bindings []policy.IamRoleBinding) bool {
	want := fmt.Sprintf("%08x", bindingChecksum(bindings))
	idx := strings.LastIndex(description, checksumPrefix)
	if idx < 0 {
		return false
	}
	return description[idx+len(checksumPrefix):] == want
}
