package authz

import "errors"

var (
	// ErrForbidden is returned by Require when the decision is a denial.
	ErrForbidden = errors.New("authz: forbidden")
	// ErrNotFound indicates a role, statement, assignment, or grant does not exist.
	ErrNotFound = errors.New("authz: not found")
	// ErrConflict indicates a duplicate assignment or an attempt to attach
	// policies to a built-in role.
	ErrConflict = errors.New("authz: conflict")
	// ErrInvalidPolicy indicates a malformed pattern or an empty
	// action/resource list, rejected before persistence.
	ErrInvalidPolicy = errors.New("authz: invalid policy")
	// ErrLocked indicates a deletion attempt against a locked role.
	ErrLocked = errors.New("authz: role is locked")
	// ErrStoreUnavailable indicates the policy store could not be read.
	// It is never collapsed into an allow or deny decision.
	ErrStoreUnavailable = errors.New("authz: policy store unavailable")
)
