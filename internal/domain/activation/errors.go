package activation

import "errors"

var (
	// ErrReviewerCountOutOfBounds is returned by CreateMpa when the
	// supplied reviewer count falls outside [min, max] (§4.6 step 1).
	ErrReviewerCountOutOfBounds = errors.New("activation: reviewer count out of bounds")

	// ErrSelfApprovalNotPermitted is returned by CreateJit when the subject
	// lacks APPROVE_SELF on the group.
	ErrSelfApprovalNotPermitted = errors.New("activation: subject lacks APPROVE_SELF on group")

	// ErrSelfApprovalRequired is returned by CreateMpa when the subject
	// already holds APPROVE_SELF and should have used CreateJit instead.
	ErrSelfApprovalRequired = errors.New("activation: subject holds APPROVE_SELF; use a JIT self-approval instead")

	// ErrApproverIsRequester is returned by ApproveMpa when the approver
	// and the original requester are the same principal (§4.6 step 4).
	ErrApproverIsRequester = errors.New("activation: approver must not be the requester")

	// ErrApproverNotReviewer is returned by ApproveMpa/Introspect when the
	// caller is neither the requester nor a listed reviewer.
	ErrApproverNotReviewer = errors.New("activation: caller is not a reviewer of this request")

	// ErrGroupNotFound is returned when a request's group id no longer
	// resolves in the loaded policy document.
	ErrGroupNotFound = errors.New("activation: group not found")
)
