package policy

import "errors"

// ErrConstraintFailed is wrapped into a typed error when one or more
// constraint checks errored during evaluation (§7: "ConstraintFailed").
var ErrConstraintFailed = errors.New("policy: one or more constraint checks failed to evaluate")

// ErrAccessDenied is returned when the ACL alone denies access, independent
// of any constraint outcome (§7: generic access-denied).
var ErrAccessDenied = errors.New("policy: access denied")

// ConstraintUnsatisfiedError names the first unsatisfied constraint
// encountered during an access analysis (§4.5, §7).
type ConstraintUnsatisfiedError struct {
	ConstraintName string
}

func (e *ConstraintUnsatisfiedError) Error() string {
	return "policy: constraint unsatisfied: " + e.ConstraintName
}

// ConstraintFailedError wraps ErrConstraintFailed with the names of every
// constraint whose evaluation errored.
type ConstraintFailedError struct {
	ConstraintNames []string
}

func (e *ConstraintFailedError) Error() string {
	msg := "policy: constraint evaluation failed:"
	for i, n := range e.ConstraintNames {
		if i > 0 {
			msg += ","
		}
		msg += " " + n
	}
	return msg
}

func (e *ConstraintFailedError) Unwrap() error { return ErrConstraintFailed }
