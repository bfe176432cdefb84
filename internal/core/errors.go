package core

import "errors"

// Error kinds of the ledger engine. Callers match them with errors.Is;
// the HTTP layer translates them into response codes.
var (
	// ErrValidation marks malformed or missing required input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermission marks a request for data outside the caller's scope.
	ErrPermission = errors.New("permission denied")

	// ErrState marks a state transition that is not legal from the
	// record's current state.
	ErrState = errors.New("illegal state transition")

	// ErrTransaction marks an atomic operation the store could not commit.
	// All constituent writes have been rolled back.
	ErrTransaction = errors.New("transaction aborted")
)
