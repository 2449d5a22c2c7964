package subject

import (
	"errors"
	"fmt"

	"github.com/jitgroups/broker/internal/port/outbound"
)

// ErrNotFound reports a missing membership record. The resolver treats an
// error matching it, or outbound.ErrGroupNotFound (which the directory
// adapters return for a missing group or membership), as "not found"
// (tolerated), and any other error as a failure (logged).
var ErrNotFound = errors.New("subject: not found")

func errNotJitGroupEmail(email string) error {
	return fmt.Errorf("subject: %q does not match the jit-group mapping pattern", email)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, outbound.ErrGroupNotFound)
}
